package mail

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Renderer turns an Email into an HTML body.
type Renderer struct {
	templates *template.Template
}

// NewRenderer parses the embedded templates.
func NewRenderer() (*Renderer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("mail: parse templates: %w", err)
	}
	return &Renderer{templates: tmpl}, nil
}

// Render executes the template named by the email with username and activation_code.
func (r *Renderer) Render(email Email) (string, error) {
	name := string(email.TemplateName()) + ".html"
	if r.templates.Lookup(name) == nil {
		return "", fmt.Errorf("mail: unknown template %q", email.TemplateName())
	}

	var buf bytes.Buffer
	data := map[string]string{
		"username":        email.Username,
		"activation_code": email.Code,
	}
	if err := r.templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("mail: render %s: %w", name, err)
	}
	return buf.String(), nil
}

// RenderText returns the plain-text alternative of the email.
func (r *Renderer) RenderText(email Email) string {
	var b strings.Builder
	if name := strings.TrimSpace(email.Username); name != "" {
		fmt.Fprintf(&b, "Hello %s,\r\n\r\n", name)
	} else {
		b.WriteString("Hello,\r\n\r\n")
	}
	fmt.Fprintf(&b, "Your verification code is %s.\r\n", email.Code)
	b.WriteString("If you did not request this email you can ignore it.\r\n")
	return b.String()
}
