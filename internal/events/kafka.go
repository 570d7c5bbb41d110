package events

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/smallbiznis/nftcheckout/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	writer messageWriter
	log    *zap.Logger
}

var Module = fx.Module("events",
	fx.Provide(NewPublisher),
)

// NewPublisher returns a kafka-backed publisher, or a no-op one when
// KAFKA_BROKERS is empty.
func NewPublisher(lc fx.Lifecycle, cfg config.Config, log *zap.Logger) Publisher {
	log = log.Named("events")
	if len(cfg.Kafka.Brokers) == 0 {
		log.Info("kafka brokers not configured, events disabled")
		return NoopPublisher{}
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Kafka.Brokers...),
		Topic:        cfg.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		BatchTimeout: 50 * time.Millisecond,
		WriteTimeout: 5 * time.Second,
	}
	publisher := &KafkaPublisher{writer: writer, log: log}
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return writer.Close()
		},
	})
	return publisher
}

func (p *KafkaPublisher) Publish(ctx context.Context, event Event) error {
	msg, err := encodeMessage(event)
	if err != nil {
		return err
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Warn("failed to publish event",
			zap.String("type", event.Type),
			zap.String("key", event.Key),
			zap.Error(err),
		)
		return err
	}
	return nil
}
