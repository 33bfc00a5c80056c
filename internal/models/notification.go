package models

import "time"

type NotificationKind string

const (
	NotifyOrderCreated       NotificationKind = "order.created"
	NotifyOrderCompleted     NotificationKind = "order.completed"
	NotifyDisputeOpened      NotificationKind = "dispute.opened"
	NotifyDisputeResolved    NotificationKind = "dispute.resolved"
	NotifyWithdrawalRequest  NotificationKind = "withdrawal.requested"
	NotifyWithdrawalRejected NotificationKind = "withdrawal.rejected"
	NotifyWithdrawalPaid     NotificationKind = "withdrawal.paid"
	NotifyDepositSucceeded   NotificationKind = "deposit.succeeded"
)

type Notification struct {
	ID        int64            `db:"id" json:"id,omitempty"`
	UserID    string           `db:"user_id" json:"userId"`
	Kind      NotificationKind `db:"kind" json:"kind"`
	Title     string           `db:"title" json:"title"`
	Content   string           `db:"content" json:"content"`
	URL       string           `db:"url" json:"url"`
	IsRead    bool             `db:"is_read" json:"isRead"`
	CreatedAt time.Time        `db:"created_at" json:"createdAt"`
}
