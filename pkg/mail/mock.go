package mail

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/logger"
)

// MockSender logs emails instead of delivering them and keeps a copy for inspection.
type MockSender struct {
	mu   sync.Mutex
	sent []Email
}

// NewMockSender returns an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

func (m *MockSender) Send(_ context.Context, email Email) error {
	logger.WithModule("mail").Info("mock email, would be sent in production",
		zap.String("to", email.To),
		zap.String("username", email.Username),
		zap.String("template", string(email.TemplateName())),
		zap.String("activation_code", email.Code),
		zap.String("subject", email.Subject),
	)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, email)
	return nil
}

// Sent returns a copy of every email passed to Send.
func (m *MockSender) Sent() []Email {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Email, len(m.sent))
	copy(out, m.sent)
	return out
}

// Last returns the most recent email sent to the address.
func (m *MockSender) Last(to string) (Email, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].To == to {
			return m.sent[i], true
		}
	}
	return Email{}, false
}
