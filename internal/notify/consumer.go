package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/config"
	"github.com/ottkdev/standoff2com-sub001/internal/metrics"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

const (
	deliverAttempts = 3
	deliverTimeout  = 10 * time.Second
)

// Consumer reads the notification topic as a consumer group and hands every
// message to a Sink. Offsets are marked once a message is delivered or
// given up on.
type Consumer struct {
	group sarama.ConsumerGroup
	topic string
	sink  Sink
	log   *zap.Logger
}

func NewConsumer(cfg config.KafkaConfig, sink Sink, log *zap.Logger) (*Consumer, error) {
	sc := sarama.NewConfig()
	sc.Version = sarama.V3_0_0_0
	sc.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Group.Session.Timeout = 20 * time.Second
	sc.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	sc.Consumer.MaxProcessingTime = 30 * time.Second
	sc.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, sc)
	if err != nil {
		return nil, fmt.Errorf("create consumer group: %w", err)
	}

	return &Consumer{
		group: group,
		topic: cfg.Topic,
		sink:  sink,
		log:   log.Named("consumer"),
	}, nil
}

// Run consumes until ctx is cancelled. Consume returns on every rebalance,
// so it is called in a loop.
func (c *Consumer) Run(ctx context.Context) error {
	go c.logErrors(ctx)

	h := &claimHandler{sink: c.sink, log: c.log}

	for {
		err := c.group.Consume(ctx, []string{c.topic}, h)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}

			c.log.Error("consume", zap.Error(err))

			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *Consumer) Close() error {
	return c.group.Close()
}

func (c *Consumer) logErrors(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-c.group.Errors():
			if !ok {
				return
			}

			c.log.Warn("consumer group", zap.Error(err))
		}
	}
}

type claimHandler struct {
	sink Sink
	log  *zap.Logger
}

func (h *claimHandler) Setup(s sarama.ConsumerGroupSession) error {
	h.log.Info("session started", zap.Any("claims", s.Claims()))
	return nil
}

func (h *claimHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.log.Info("session ended")
	return nil
}

func (h *claimHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			if !h.handle(session.Context(), msg) {
				return nil
			}

			session.MarkMessage(msg, "")
		}
	}
}

// handle reports false when the session ended before the message was
// settled; the offset then stays unmarked for the next owner.
func (h *claimHandler) handle(ctx context.Context, msg *sarama.ConsumerMessage) bool {
	var n models.Notification

	err := json.Unmarshal(msg.Value, &n)
	if err != nil {
		metrics.NotificationsConsumed.WithLabelValues("invalid").Inc()
		h.log.Warn("skip malformed notification",
			zap.Int32("partition", msg.Partition),
			zap.Int64("offset", msg.Offset),
			zap.Error(err),
		)

		return true
	}

	for attempt := 1; attempt <= deliverAttempts; attempt++ {
		dctx, cancel := context.WithTimeout(ctx, deliverTimeout)
		err = h.sink.Deliver(dctx, n)
		cancel()

		if err == nil {
			metrics.NotificationsConsumed.WithLabelValues(metrics.ResultOK).Inc()
			return true
		}

		if errors.Is(err, models.ErrInvalidRequest) || ctx.Err() != nil {
			break
		}

		select {
		case <-ctx.Done():
		case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
		}
	}

	if ctx.Err() != nil {
		return false
	}

	metrics.NotificationsConsumed.WithLabelValues(metrics.ResultError).Inc()
	h.log.Error("deliver notification",
		zap.String("user_id", n.UserID),
		zap.String("kind", string(n.Kind)),
		zap.Int64("offset", msg.Offset),
		zap.Error(err),
	)

	return true
}
