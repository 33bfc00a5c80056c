package audit

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ottkdev/standoff2com-sub001/internal/models"
	"github.com/ottkdev/standoff2com-sub001/internal/repos/audit"
)

var _ audit.Audit = (*auditRepo)(nil)

type auditRepo struct{}

func New() *auditRepo {
	return &auditRepo{}
}

func (r *auditRepo) Insert(ctx context.Context, tx *sqlx.Tx, e models.AuditEntry) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_logs (actor_id, action, entity_type, entity_id, meta)
		VALUES ($1, $2, $3, $4, $5)
	`, e.ActorID, e.Action, e.EntityType, e.EntityID, e.Meta)
	if err != nil {
		return fmt.Errorf("insert audit entry %s: %w", e.Action, err)
	}

	return nil
}

func (r *auditRepo) ListByEntity(
	ctx context.Context,
	q sqlx.QueryerContext,
	entityType, entityID string,
) ([]models.AuditEntry, error) {
	out := []models.AuditEntry{}

	err := sqlx.SelectContext(ctx, q, &out, `
		SELECT id, actor_id, action, entity_type, entity_id, meta, created_at
		FROM audit_logs
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY id
	`, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}

	return out, nil
}
