package mail

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/charlesng35/authcore/pkg/logger"
)

// ErrDeliveryUnavailable is returned while the SMTP circuit breaker is open.
var ErrDeliveryUnavailable = errors.New("mail: delivery temporarily unavailable")

// DeliveryOptions tune the SMTP sender's throttling and circuit breaker.
type DeliveryOptions struct {
	From string

	// RatePerSecond caps outbound messages; zero or less disables throttling.
	RatePerSecond float64
	Burst         int

	BreakerMaxFailures uint32
	BreakerInterval    time.Duration
	BreakerTimeout     time.Duration
}

// SMTPSender renders templated emails and delivers them through a Mailer.
type SMTPSender struct {
	mailer   Mailer
	renderer *Renderer
	from     string
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	log      *zap.Logger
}

// NewSMTPSender wraps mailer with template rendering, throttling and a circuit breaker.
func NewSMTPSender(mailer Mailer, opts DeliveryOptions) (*SMTPSender, error) {
	if mailer == nil {
		return nil, errors.New("mail: mailer is required")
	}
	renderer, err := NewRenderer()
	if err != nil {
		return nil, err
	}

	limit := rate.Inf
	burst := opts.Burst
	if opts.RatePerSecond > 0 {
		limit = rate.Limit(opts.RatePerSecond)
		if burst <= 0 {
			burst = 1
		}
	}

	maxFailures := opts.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	timeout := opts.BreakerTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	log := logger.WithModule("mail")
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "smtp",
		MaxRequests: 1,
		Interval:    opts.BreakerInterval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state", zap.String("name", name), zap.String("from", from.String()), zap.String("to", to.String()))
		},
	})

	return &SMTPSender{
		mailer:   mailer,
		renderer: renderer,
		from:     opts.From,
		limiter:  rate.NewLimiter(limit, burst),
		breaker:  breaker,
		log:      log,
	}, nil
}

func (s *SMTPSender) Send(ctx context.Context, email Email) error {
	body, err := s.renderer.Render(email)
	if err != nil {
		return err
	}

	if ctx == nil {
		ctx = context.Background()
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("mail: throttle: %w", err)
	}

	_, err = s.breaker.Execute(func() (interface{}, error) {
		return nil, s.mailer.Send(ctx, Message{
			From:    s.from,
			To:      []string{email.To},
			Subject: email.Subject,
			HTML:    body,
			Text:    s.renderer.RenderText(email),
		})
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrDeliveryUnavailable, err)
	}
	if err != nil {
		return err
	}

	s.log.Debug("email delivered", zap.String("to", email.To), zap.String("template", string(email.TemplateName())))
	return nil
}

// BreakerState reports the circuit breaker state for health probes.
func (s *SMTPSender) BreakerState() gobreaker.State {
	return s.breaker.State()
}
