package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
	"github.com/charlesng35/authcore/pkg/metrics"
)

// Dispatcher hands verification emails off for delivery without blocking the caller on
// the mail transport. A nil error only means the email was accepted.
type Dispatcher interface {
	Dispatch(ctx context.Context, email mail.Email) error
}

// Queue drivers.
const (
	DriverSync     = "sync"
	DriverInline   = "inline"
	DriverRabbitMQ = "rabbitmq"
	DriverKafka    = "kafka"
)

// DefaultQueueName is used for both the RabbitMQ queue and the Kafka topic.
const DefaultQueueName = "authcore.email"

// Config selects the delivery transport.
type Config struct {
	Driver      string
	Workers     int
	QueueSize   int
	SendTimeout time.Duration

	AMQP  AMQPConfig
	Kafka KafkaConfig

	// Consume starts a broker consumer in this process for the rabbitmq and kafka drivers.
	Consume bool
}

// AMQPConfig locates the RabbitMQ queue.
type AMQPConfig struct {
	URL   string
	Queue string
}

// KafkaConfig locates the Kafka topic.
type KafkaConfig struct {
	Brokers []string
	Topic   string
	GroupID string
}

type consumer interface {
	Run(ctx context.Context) error
	Close() error
}

type closer interface {
	Close(ctx context.Context) error
}

// Service is the configured Dispatcher plus an optional broker consumer.
type Service struct {
	Dispatcher

	consumer consumer
	cancel   context.CancelFunc
	done     chan struct{}
	log      *zap.Logger
}

// NewService builds the dispatcher selected by cfg.Driver around sender.
func NewService(cfg Config, sender mail.Sender) (*Service, error) {
	if sender == nil {
		return nil, errors.New("notifications: sender is required")
	}
	svc := &Service{log: logger.WithModule("notifications")}

	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case DriverSync:
		svc.Dispatcher = NewSyncDispatcher(sender, cfg.SendTimeout)
	case "", DriverInline:
		svc.Dispatcher = NewInlineDispatcher(sender, cfg.Workers, cfg.QueueSize, cfg.SendTimeout)
	case DriverRabbitMQ:
		publisher, err := NewAMQPPublisher(cfg.AMQP)
		if err != nil {
			return nil, err
		}
		svc.Dispatcher = publisher
		if cfg.Consume {
			svc.consumer = NewAMQPConsumer(cfg.AMQP, sender, cfg.SendTimeout)
		}
	case DriverKafka:
		publisher, err := NewKafkaPublisher(cfg.Kafka)
		if err != nil {
			return nil, err
		}
		svc.Dispatcher = publisher
		if cfg.Consume {
			svc.consumer = NewKafkaConsumer(cfg.Kafka, sender, cfg.SendTimeout)
		}
	default:
		return nil, fmt.Errorf("notifications: unsupported queue driver %q", cfg.Driver)
	}
	return svc, nil
}

// Start launches the broker consumer, if one is configured.
func (s *Service) Start(ctx context.Context) {
	if s == nil || s.consumer == nil || s.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go func() {
		defer close(s.done)
		if err := s.consumer.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Error("email consumer stopped", zap.Error(err))
		}
	}()
}

// Close stops the consumer and flushes the dispatcher.
func (s *Service) Close(ctx context.Context) error {
	if s == nil {
		return nil
	}
	var errs error
	if s.cancel != nil {
		s.cancel()
		select {
		case <-s.done:
		case <-ctx.Done():
			errs = multierr.Append(errs, ctx.Err())
		}
		errs = multierr.Append(errs, s.consumer.Close())
	}
	if c, ok := s.Dispatcher.(closer); ok {
		errs = multierr.Append(errs, c.Close(ctx))
	}
	return errs
}

func deliver(ctx context.Context, sender mail.Sender, email mail.Email, transport string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	sendCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := sender.Send(sendCtx, email)
	if err != nil {
		metrics.EmailDeliveries.WithLabelValues(transport, "failure").Inc()
		logger.WithModule("notifications").Error("email delivery failed",
			zap.String("transport", transport),
			zap.String("to", email.To),
			zap.String("template", string(email.TemplateName())),
			zap.Error(err),
		)
		return err
	}
	metrics.EmailDeliveries.WithLabelValues(transport, "success").Inc()
	return nil
}

func encodeEmail(email mail.Email) ([]byte, error) {
	return json.Marshal(email)
}

func decodeEmail(body []byte) (mail.Email, error) {
	var email mail.Email
	if err := json.Unmarshal(body, &email); err != nil {
		return mail.Email{}, fmt.Errorf("notifications: decode email: %w", err)
	}
	if strings.TrimSpace(email.To) == "" {
		return mail.Email{}, errors.New("notifications: email without recipient")
	}
	return email, nil
}
