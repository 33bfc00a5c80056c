package models

import "time"

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "PENDING"
	WithdrawalApproved  WithdrawalStatus = "APPROVED"
	WithdrawalRejected  WithdrawalStatus = "REJECTED"
	WithdrawalPaid      WithdrawalStatus = "PAID"
	WithdrawalCancelled WithdrawalStatus = "CANCELLED"
)

type WithdrawalRequest struct {
	ID           string           `db:"id" json:"id"`
	UserID       string           `db:"user_id" json:"userId"`
	Amount       int64            `db:"amount" json:"amount"`
	IBAN         string           `db:"iban" json:"iban"`
	AccountName  string           `db:"account_name" json:"accountName"`
	Status       WithdrawalStatus `db:"status" json:"status"`
	RejectReason string           `db:"reject_reason" json:"rejectReason,omitempty"`
	ReviewedBy   *string          `db:"reviewed_by" json:"reviewedBy,omitempty"`
	ReviewedAt   *time.Time       `db:"reviewed_at" json:"reviewedAt,omitempty"`
	PaidAt       *time.Time       `db:"paid_at" json:"paidAt,omitempty"`
	CreatedAt    time.Time        `db:"created_at" json:"createdAt"`
	UpdatedAt    time.Time        `db:"updated_at" json:"updatedAt"`
}
