package app

import (
	"strings"

	"github.com/charlesng35/authcore/internal/notifications"
	"github.com/charlesng35/authcore/pkg/mail"
)

// MailConfig converts EmailConfig to the mail package representation.
func (c EmailConfig) MailConfig() mail.Config {
	return mail.Config{
		Provider: strings.TrimSpace(c.Provider),
		SMTP: mail.SMTPSettings{
			Enabled:  strings.EqualFold(strings.TrimSpace(c.Provider), mail.ProviderSMTP),
			Host:     strings.TrimSpace(c.SMTP.Host),
			Port:     c.SMTP.Port,
			Username: c.SMTP.Username,
			Password: c.SMTP.Password,
			From:     c.From,
			UseTLS:   c.SMTP.UseTLS,
			Timeout:  c.SMTP.Timeout,
		},
		Delivery: mail.DeliveryOptions{
			From:               c.From,
			RatePerSecond:      c.RateLimit.PerSecond,
			Burst:              c.RateLimit.Burst,
			BreakerMaxFailures: c.Breaker.MaxFailures,
			BreakerInterval:    c.Breaker.Interval,
			BreakerTimeout:     c.Breaker.Timeout,
		},
	}
}

// NotificationConfig converts the queue settings to the dispatcher configuration.
func (c EmailConfig) NotificationConfig() notifications.Config {
	return notifications.Config{
		Driver:      strings.TrimSpace(c.Queue.Driver),
		Workers:     c.Queue.Workers,
		QueueSize:   c.Queue.Size,
		SendTimeout: c.Queue.SendTimeout,
		Consume:     c.Queue.Consume,
		AMQP: notifications.AMQPConfig{
			URL:   strings.TrimSpace(c.Queue.AMQP.URL),
			Queue: strings.TrimSpace(c.Queue.AMQP.Queue),
		},
		Kafka: notifications.KafkaConfig{
			Brokers: c.Queue.Kafka.Brokers,
			Topic:   strings.TrimSpace(c.Queue.Kafka.Topic),
			GroupID: strings.TrimSpace(c.Queue.Kafka.GroupID),
		},
	}
}
