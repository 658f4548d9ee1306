// Package consumer runs the Kafka subscription that keeps business
// entitlements in sync with billing events.
package consumer

import (
	"context"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/bookwellhq/bookwell/internal/inbox"
	"github.com/bookwellhq/bookwell/internal/kafkax"
)

const (
	readRetryDelay = time.Second
	handleTimeout  = 30 * time.Second
)

type Handler func(ctx context.Context, msg kafka.Message) error

type Config struct {
	Brokers string
	GroupID string
	Topic   string
}

type Consumer struct {
	reader *kafka.Reader
	logger *slog.Logger
	dedupe *inbox.Repository
	handle Handler
}

func New(logger *slog.Logger, dedupe *inbox.Repository, cfg Config, handler Handler) *Consumer {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  kafkax.SplitBrokers(cfg.Brokers),
		GroupID:  cfg.GroupID,
		Topic:    cfg.Topic,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return &Consumer{reader: reader, logger: logger, dedupe: dedupe, handle: handler}
}

// Run reads until ctx is cancelled. Messages that fail are logged and
// skipped rather than retried; the inbox row already exists by then, so a
// redelivery would be ignored anyway.
func (c *Consumer) Run(ctx context.Context) {
	defer c.reader.Close()

	c.logger.Info("consumer started", "topic", c.reader.Config().Topic, "group_id", c.reader.Config().GroupID)
	for {
		msg, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.logger.Error("kafka read error", "err", err)
			time.Sleep(readRetryDelay)
			continue
		}
		c.process(ctx, msg)
	}
}

func (c *Consumer) process(parent context.Context, msg kafka.Message) {
	ctx := kafkax.ExtractTraceContext(parent, msg)
	ctx, span := otel.Tracer("kafka").Start(ctx, "kafka.consume",
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", msg.Topic),
		),
	)
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	meta := kafkax.ExtractEventMeta(msg)
	fresh, err := c.dedupe.Record(ctx, meta.EventID, meta.EventType)
	if err != nil {
		c.logger.Error("inbox record failed", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
		return
	}
	if !fresh {
		c.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return
	}

	if err := c.handle(ctx, msg); err != nil {
		c.logger.Error("handler error", "err", err, "event_id", meta.EventID)
		span.RecordError(err)
	}
}
