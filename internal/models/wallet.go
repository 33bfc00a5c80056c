package models

import "time"

type Wallet struct {
	UserID           string    `db:"user_id" json:"userId"`
	BalanceAvailable int64     `db:"balance_available" json:"balanceAvailable"`
	BalanceHeld      int64     `db:"balance_held" json:"balanceHeld"`
	CreatedAt        time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time `db:"updated_at" json:"updatedAt"`
}

// Total is the user's money on the platform, escrowed or not.
func (w Wallet) Total() int64 {
	return w.BalanceAvailable + w.BalanceHeld
}

type TxType string

const (
	TxDeposit          TxType = "DEPOSIT"
	TxDepositFee       TxType = "DEPOSIT_FEE"
	TxHold             TxType = "HOLD"
	TxRelease          TxType = "RELEASE"
	TxRefund           TxType = "REFUND"
	TxWithdrawRequest  TxType = "WITHDRAW_REQUEST"
	TxWithdrawApproved TxType = "WITHDRAW_APPROVED"
	TxWithdrawRejected TxType = "WITHDRAW_REJECTED"
	TxWithdrawPaid     TxType = "WITHDRAW_PAID"
)

type TxStatus string

const (
	TxPending   TxStatus = "PENDING"
	TxSuccess   TxStatus = "SUCCESS"
	TxFailed    TxStatus = "FAILED"
	TxCancelled TxStatus = "CANCELLED"
)

// Terminal reports whether the status can no longer change.
func (s TxStatus) Terminal() bool {
	return s == TxSuccess || s == TxFailed || s == TxCancelled
}

// WalletTransaction is an append-only ledger row. AvailableDelta and
// HeldDelta record the signed effect the row applied to its owner's wallet.
type WalletTransaction struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"userId"`
	Type           TxType    `db:"type" json:"type"`
	Amount         int64     `db:"amount" json:"amount"`
	Status         TxStatus  `db:"status" json:"status"`
	AvailableDelta int64     `db:"available_delta" json:"availableDelta"`
	HeldDelta      int64     `db:"held_delta" json:"heldDelta"`
	Provider       string    `db:"provider" json:"provider"`
	ReferenceID    string    `db:"reference_id" json:"referenceId"`
	Meta           Meta      `db:"meta" json:"meta"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}
