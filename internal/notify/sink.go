package notify

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/notifications"
	pgnotifications "github.com/ottkdev/standoff2com-sub001/internal/repos/notifications/postgres"
)

// Sink is where the notifier binary delivers consumed notifications.
type Sink interface {
	Deliver(ctx context.Context, n models.Notification) error
}

// LiveFeed pushes a stored notification to connected clients.
type LiveFeed interface {
	PublishNotification(ctx context.Context, n models.Notification) error
}

// StoreSink persists notifications and then announces them on the live
// feed. A failed announcement is logged; the stored row is what counts.
type StoreSink struct {
	db    *sqlx.DB
	store notifications.Notifications
	live  LiveFeed
	log   *zap.Logger
}

func NewStoreSink(db *sqlx.DB, live LiveFeed, log *zap.Logger) *StoreSink {
	return &StoreSink{
		db:    db,
		store: pgnotifications.New(),
		live:  live,
		log:   log.Named("sink"),
	}
}

func (s *StoreSink) Deliver(ctx context.Context, n models.Notification) error {
	if n.UserID == "" {
		return fmt.Errorf("deliver notification: empty user id: %w", models.ErrInvalidRequest)
	}

	n.ID = 0
	n.IsRead = false

	err := s.store.Insert(ctx, s.db, &n)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}

	if s.live == nil {
		return nil
	}

	err = s.live.PublishNotification(ctx, n)
	if err != nil {
		s.log.Warn("publish live notification",
			zap.Int64("notification_id", n.ID),
			zap.String("user_id", n.UserID),
			zap.Error(err),
		)
	}

	return nil
}
