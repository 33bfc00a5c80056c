// Package notify carries user notifications out of the API process.
//
// Services call Notifier.Notify after their transaction commits. The API
// wires a Dispatcher that queues notifications in memory and hands them to a
// Publisher (Kafka in production). The notifier binary consumes the topic
// with a sarama consumer group and stores each notification.
package notify

import (
	"context"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

// Notifier is fire-and-forget: it never blocks on delivery and never
// reports failure to the caller.
type Notifier interface {
	Notify(ctx context.Context, n models.Notification)
}

// Publisher delivers one notification to the transport.
type Publisher interface {
	Publish(ctx context.Context, n models.Notification) error
	Close() error
}

// Nop discards notifications.
type Nop struct{}

func (Nop) Notify(context.Context, models.Notification) {}

// Recorder keeps notifications in memory. Used by tests.
type Recorder struct {
	ch chan models.Notification
}

func NewRecorder(size int) *Recorder {
	return &Recorder{ch: make(chan models.Notification, size)}
}

func (r *Recorder) Notify(_ context.Context, n models.Notification) {
	select {
	case r.ch <- n:
	default:
	}
}

// Drain returns everything recorded so far.
func (r *Recorder) Drain() []models.Notification {
	var out []models.Notification

	for {
		select {
		case n := <-r.ch:
			out = append(out, n)
		default:
			return out
		}
	}
}
