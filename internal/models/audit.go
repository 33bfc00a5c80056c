package models

import "time"

// AuditAction has exactly one member per domain event.
type AuditAction string

const (
	AuditOrderCreated        AuditAction = "ORDER_CREATED"
	AuditOrderCompleted      AuditAction = "ORDER_COMPLETED"
	AuditOrderAutoReleased   AuditAction = "ORDER_AUTO_RELEASED"
	AuditDisputeOpened       AuditAction = "DISPUTE_OPENED"
	AuditDisputeResolved     AuditAction = "DISPUTE_RESOLVED"
	AuditWithdrawalRequested AuditAction = "WITHDRAWAL_REQUESTED"
	AuditWithdrawalApproved  AuditAction = "WITHDRAWAL_APPROVED"
	AuditWithdrawalRejected  AuditAction = "WITHDRAWAL_REJECTED"
	AuditWithdrawalPaid      AuditAction = "WITHDRAWAL_PAID"
	AuditWithdrawalCancelled AuditAction = "WITHDRAWAL_CANCELLED"
	AuditDepositInitiated    AuditAction = "DEPOSIT_INITIATED"
	AuditDepositSucceeded    AuditAction = "DEPOSIT_SUCCEEDED"
	AuditDepositFailed       AuditAction = "DEPOSIT_FAILED"
)

// SystemActor is recorded for transitions nobody triggered by hand.
const SystemActor = "system"

type AuditEntry struct {
	ID         int64       `db:"id" json:"id"`
	ActorID    string      `db:"actor_id" json:"actorId"`
	Action     AuditAction `db:"action" json:"action"`
	EntityType string      `db:"entity_type" json:"entityType"`
	EntityID   string      `db:"entity_id" json:"entityId"`
	Meta       Meta        `db:"meta" json:"meta"`
	CreatedAt  time.Time   `db:"created_at" json:"createdAt"`
}
