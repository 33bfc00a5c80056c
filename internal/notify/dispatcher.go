package notify

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/metrics"
	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

const publishTimeout = 5 * time.Second

// Dispatcher is a bounded queue in front of a Publisher. A full queue drops
// the notification.
type Dispatcher struct {
	pub   Publisher
	log   *zap.Logger
	queue chan models.Notification

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

var _ Notifier = (*Dispatcher)(nil)

func NewDispatcher(pub Publisher, size int, log *zap.Logger) *Dispatcher {
	if size <= 0 {
		size = 1024
	}

	return &Dispatcher{
		pub:   pub,
		log:   log.Named("notify"),
		queue: make(chan models.Notification, size),
		done:  make(chan struct{}),
	}
}

func (d *Dispatcher) Notify(_ context.Context, n models.Notification) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(n, "dispatcher closed")
		return
	}

	select {
	case d.queue <- n:
	default:
		d.drop(n, "queue full")
	}
}

// Run publishes queued notifications until Close drains the queue.
func (d *Dispatcher) Run() {
	defer close(d.done)

	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		err := d.pub.Publish(ctx, n)
		cancel()

		if err != nil {
			metrics.NotificationsPublished.WithLabelValues(metrics.ResultError).Inc()
			d.log.Warn("publish notification",
				zap.String("user_id", n.UserID),
				zap.String("kind", string(n.Kind)),
				zap.Error(err),
			)

			continue
		}

		metrics.NotificationsPublished.WithLabelValues(metrics.ResultOK).Inc()
	}
}

// Close stops accepting notifications and waits for Run to publish what is
// already queued, or for ctx to end.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	select {
	case <-d.done:
	case <-ctx.Done():
		return ctx.Err()
	}

	return d.pub.Close()
}

func (d *Dispatcher) drop(n models.Notification, reason string) {
	metrics.NotificationsDropped.Inc()
	d.log.Warn("notification dropped",
		zap.String("reason", reason),
		zap.String("user_id", n.UserID),
		zap.String("kind", string(n.Kind)),
	)
}
