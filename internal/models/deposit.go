package models

import "time"

type DepositStatus string

const (
	DepositPending DepositStatus = "PENDING"
	DepositSuccess DepositStatus = "SUCCESS"
	DepositFailed  DepositStatus = "FAILED"
)

func (s DepositStatus) Terminal() bool {
	return s == DepositSuccess || s == DepositFailed
}

type Deposit struct {
	ID                 string        `db:"id" json:"id"`
	UserID             string        `db:"user_id" json:"userId"`
	GrossAmount        int64         `db:"gross_amount" json:"grossAmount"`
	NetCreditAmount    int64         `db:"net_credit_amount" json:"netCreditAmount"`
	FeeAmount          int64         `db:"fee_amount" json:"feeAmount"`
	Status             DepositStatus `db:"status" json:"status"`
	GatewayMerchantOID string        `db:"gateway_merchant_oid" json:"gatewayMerchantOid"`
	GatewayResponse    Meta          `db:"gateway_response" json:"-"`
	FailureReason      string        `db:"failure_reason" json:"failureReason,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updatedAt"`
	CompletedAt        *time.Time    `db:"completed_at" json:"completedAt,omitempty"`
}
