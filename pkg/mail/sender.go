package mail

import (
	"context"
	"fmt"
	"strings"
)

// Template names a rendered email body.
type Template string

const (
	TemplateActivateAccount Template = "activate_account"
	TemplateChangeEmail     Template = "change_email"
	TemplateChangePassword  Template = "change_password"
	TemplateResetPassword   Template = "reset_password"
	// TemplateConfirmEmail is used when an Email does not name a template.
	TemplateConfirmEmail Template = "confirm_email"
)

// Email is a templated verification message addressed to a single user.
type Email struct {
	To       string   `json:"to"`
	Username string   `json:"username"`
	Template Template `json:"template"`
	Code     string   `json:"code"`
	Subject  string   `json:"subject"`
}

// TemplateName returns the template to render, falling back to TemplateConfirmEmail.
func (e Email) TemplateName() Template {
	if strings.TrimSpace(string(e.Template)) == "" {
		return TemplateConfirmEmail
	}
	return e.Template
}

// Sender delivers verification emails.
type Sender interface {
	Send(ctx context.Context, email Email) error
}

// Provider names a Sender implementation.
const (
	ProviderMock = "mock"
	ProviderSMTP = "smtp"
)

// Config selects and configures a Sender.
type Config struct {
	Provider string
	SMTP     SMTPSettings
	Delivery DeliveryOptions
}

// NewSender builds the Sender selected by cfg.Provider.
func NewSender(cfg Config) (Sender, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", ProviderMock:
		return NewMockSender(), nil
	case ProviderSMTP:
		settings := cfg.SMTP
		settings.Enabled = true
		mailer, err := NewSMTPMailer(settings)
		if err != nil {
			return nil, err
		}
		if cfg.Delivery.From == "" {
			cfg.Delivery.From = settings.From
		}
		return NewSMTPSender(mailer, cfg.Delivery)
	default:
		return nil, fmt.Errorf("mail: unsupported provider %q", cfg.Provider)
	}
}
