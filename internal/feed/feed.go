// Package feed pushes state changes to live clients over Redis pub/sub.
//
// Channels:
//
//	deposits:<depositId>       DepositEvent JSON
//	notifications:<userId>     models.Notification JSON
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// DepositEvent is what a deposit stream subscriber receives.
type DepositEvent struct {
	DepositID       string               `json:"depositId"`
	UserID          string               `json:"userId"`
	Status          models.DepositStatus `json:"status"`
	NetCreditAmount int64                `json:"netCreditAmount"`
	FailureReason   string               `json:"failureReason,omitempty"`
	At              time.Time            `json:"at"`
}

func NewDepositEvent(d models.Deposit) DepositEvent {
	at := d.UpdatedAt
	if d.CompletedAt != nil {
		at = *d.CompletedAt
	}

	return DepositEvent{
		DepositID:       d.ID,
		UserID:          d.UserID,
		Status:          d.Status,
		NetCreditAmount: d.NetCreditAmount,
		FailureReason:   d.FailureReason,
		At:              at,
	}
}

func DepositChannel(depositID string) string {
	return "deposits:" + depositID
}

func NotificationChannel(userID string) string {
	return "notifications:" + userID
}

type Feed struct {
	rdb redis.UniversalClient
}

func New(rdb redis.UniversalClient) *Feed {
	return &Feed{rdb: rdb}
}

func (f *Feed) PublishDeposit(ctx context.Context, d models.Deposit) error {
	return f.publish(ctx, DepositChannel(d.ID), NewDepositEvent(d))
}

func (f *Feed) PublishNotification(ctx context.Context, n models.Notification) error {
	return f.publish(ctx, NotificationChannel(n.UserID), n)
}

// Subscription is a live deposit stream. Close it when the client leaves.
type Subscription struct {
	ps     *redis.PubSub
	events chan DepositEvent
}

func (s *Subscription) Events() <-chan DepositEvent {
	return s.events
}

func (s *Subscription) Close() error {
	return s.ps.Close()
}

// SubscribeDeposit waits for the subscription to be confirmed so no event
// published after it returns is missed.
func (f *Feed) SubscribeDeposit(ctx context.Context, depositID string) (*Subscription, error) {
	ps := f.rdb.Subscribe(ctx, DepositChannel(depositID))

	_, err := ps.Receive(ctx)
	if err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", DepositChannel(depositID), err)
	}

	sub := &Subscription{ps: ps, events: make(chan DepositEvent, 4)}

	go func() {
		defer close(sub.events)

		for msg := range ps.Channel() {
			var ev DepositEvent

			if json.Unmarshal([]byte(msg.Payload), &ev) != nil {
				continue
			}

			select {
			case sub.events <- ev:
			default:
			}
		}
	}()

	return sub, nil
}

func (f *Feed) publish(ctx context.Context, channel string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", channel, err)
	}

	err = f.rdb.Publish(ctx, channel, raw).Err()
	if err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}

	return nil
}
