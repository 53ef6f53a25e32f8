package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/charlesng35/authcore/pkg/logger"
	"github.com/charlesng35/authcore/pkg/mail"
)

func (c KafkaConfig) withDefaults() KafkaConfig {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if strings.TrimSpace(c.Topic) == "" {
		c.Topic = DefaultQueueName
	}
	if strings.TrimSpace(c.GroupID) == "" {
		c.GroupID = "authcore-mailer"
	}
	return c
}

// KafkaPublisher writes emails to a Kafka topic keyed by recipient.
type KafkaPublisher struct {
	writer *kafka.Writer
}

// NewKafkaPublisher builds a writer for cfg's topic. Connections are opened lazily.
func NewKafkaPublisher(cfg KafkaConfig) (*KafkaPublisher, error) {
	cfg = cfg.withDefaults()
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}, nil
}

func (p *KafkaPublisher) Dispatch(ctx context.Context, email mail.Email) error {
	body, err := encodeEmail(email)
	if err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(email.To),
		Value: body,
		Time:  time.Now().UTC(),
	})
}

// Close flushes pending writes.
func (p *KafkaPublisher) Close(context.Context) error {
	return p.writer.Close()
}

// KafkaConsumer reads emails from a consumer group and delivers them.
type KafkaConsumer struct {
	reader  *kafka.Reader
	sender  mail.Sender
	timeout time.Duration
	log     *zap.Logger
}

// NewKafkaConsumer builds a group reader for cfg's topic.
func NewKafkaConsumer(cfg KafkaConfig, sender mail.Sender, timeout time.Duration) *KafkaConsumer {
	cfg = cfg.withDefaults()
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1,
			MaxBytes: 1e6,
		}),
		sender:  sender,
		timeout: timeout,
		log:     logger.WithModule("notifications.kafka"),
	}
}

// Run fetches, delivers and commits messages until ctx is cancelled. Messages are
// committed even when delivery fails so a poisoned email cannot stall the partition.
func (c *KafkaConsumer) Run(ctx context.Context) error {
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			c.log.Warn("fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		if email, err := decodeEmail(msg.Value); err != nil {
			c.log.Error("discarding message", zap.Int64("offset", msg.Offset), zap.Error(err))
		} else {
			_ = deliver(ctx, c.sender, email, DriverKafka, c.timeout)
		}

		if err := c.reader.CommitMessages(ctx, msg); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("commit failed", zap.Error(err))
		}
	}
}

// Close releases the reader.
func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
