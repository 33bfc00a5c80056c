package notifications

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/notifications"
)

var _ notifications.Notifications = (*notificationsRepo)(nil)

type notificationsRepo struct{}

func New() *notificationsRepo {
	return &notificationsRepo{}
}

func (r *notificationsRepo) Insert(ctx context.Context, q sqlx.ExtContext, n *models.Notification) error {
	err := q.QueryRowxContext(ctx, `
		INSERT INTO notifications (user_id, kind, title, content, url)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`, n.UserID, n.Kind, n.Title, n.Content, n.URL).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}

	return nil
}

func (r *notificationsRepo) ListByUser(
	ctx context.Context,
	q sqlx.QueryerContext,
	userID string,
	limit int,
) ([]models.Notification, error) {
	out := []models.Notification{}

	err := sqlx.SelectContext(ctx, q, &out, `
		SELECT id, user_id, kind, title, content, url, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}

	return out, nil
}
