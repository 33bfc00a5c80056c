package audit

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
)

type Audit interface {
	Insert(ctx context.Context, tx *sqlx.Tx, e models.AuditEntry) error
	ListByEntity(ctx context.Context, q sqlx.QueryerContext, entityType, entityID string) ([]models.AuditEntry, error)
}
