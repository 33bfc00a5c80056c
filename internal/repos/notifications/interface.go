package notifications

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

type Notifications interface {
	Insert(ctx context.Context, q sqlx.ExtContext, n *models.Notification) error
	ListByUser(ctx context.Context, q sqlx.QueryerContext, userID string, limit int) ([]models.Notification, error)
}
