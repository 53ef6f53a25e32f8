package checks

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/charlesng35/authcore/internal/monitoring"
)

// BreakerReporter exposes a circuit breaker state, implemented by mail.SMTPSender.
type BreakerReporter interface {
	BreakerState() gobreaker.State
}

// Mail reports degraded while the SMTP circuit breaker is not closed. Verification emails
// are fire-and-forget, so an open breaker never marks the service down.
func Mail(sender BreakerReporter) monitoring.Check {
	return monitoring.NewCheck("mail", func(ctx context.Context) monitoring.ProbeResult {
		if sender == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "mock sender"}
		}
		state := sender.BreakerState()
		if state == gobreaker.StateClosed {
			return monitoring.ProbeResult{Status: monitoring.StatusUp}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusDegraded, Details: "smtp circuit " + state.String()}
	})
}
