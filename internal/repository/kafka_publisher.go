package repository

import (
	"context"
	"fmt"

	"TradeCast/internal/domain/models"
	pkgkafka "TradeCast/pkg/kafka"
	applogger "TradeCast/pkg/logger"
)

// KafkaPublisher implements EventPublisher over the shared fan-out topic.
// Messages are keyed by risk tier so the hash balancer pins each tier to one
// partition and per-tier ordering holds end to end.
type KafkaPublisher struct {
	producer *pkgkafka.Producer
	topic    string
	l        *applogger.Logger
}

func NewKafkaPublisher(producer *pkgkafka.Producer, topic string) *KafkaPublisher {
	return &KafkaPublisher{producer: producer, topic: topic}
}

// SetLogger injects a structured logger.
func (p *KafkaPublisher) SetLogger(l *applogger.Logger) { p.l = l }

func (p *KafkaPublisher) PublishEvent(ctx context.Context, ev *models.FanoutEvent) error {
	if err := p.producer.Publish(ctx, p.topic, []byte(ev.RiskTier), ev); err != nil {
		if p.l != nil {
			p.l.Error("kafka publish fanout event error",
				applogger.String("signal_id", ev.SignalID),
				applogger.String("risk_tier", string(ev.RiskTier)),
				applogger.Error(err),
			)
		}
		return fmt.Errorf("publish fanout event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.producer.Close()
}
