package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// KafkaPublisher writes notifications keyed by user id, so one user's
// notifications stay ordered on a partition.
type KafkaPublisher struct {
	writer *kafka.Writer
}

func NewKafkaPublisher(cfg config.KafkaConfig) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			MaxAttempts:  3,
		},
	}
}

func (p *KafkaPublisher) Publish(ctx context.Context, n models.Notification) error {
	raw, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(n.UserID),
		Value: raw,
	})
	if err != nil {
		return fmt.Errorf("write notification to kafka: %w", err)
	}

	return nil
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// LogPublisher only logs. Used when Kafka is disabled.
type LogPublisher struct {
	log *zap.Logger
}

func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, n models.Notification) error {
	p.log.Info("notification",
		zap.String("user_id", n.UserID),
		zap.String("kind", string(n.Kind)),
		zap.String("title", n.Title),
		zap.String("url", n.URL),
	)

	return nil
}

func (p *LogPublisher) Close() error {
	return nil
}
