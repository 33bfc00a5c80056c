package wallet

import "github.com/ottkdev/standoff2com-sub001/internal/models"

// ProviderInternal marks rows produced by the engine itself.
const ProviderInternal = "internal"

type CreditParams struct {
	UserID      string
	Amount      int64
	Type        models.TxType // DEPOSIT when empty
	Provider    string
	ReferenceID string
	Meta        models.Meta
}

type HoldParams struct {
	UserID string
	Amount int64
	Type   models.TxType // HOLD when empty
	// Status of the hold row. SUCCESS when empty; withdrawals hold with
	// PENDING and resolve the row once the payout is decided.
	Status      models.TxStatus
	ReferenceID string
	Meta        models.Meta
}

// ReleaseParams moves held money off FromUserID. An empty ToUserID means
// the money leaves the platform (withdrawal payout).
type ReleaseParams struct {
	FromUserID  string
	ToUserID    string
	Amount      int64
	Type        models.TxType // RELEASE when empty
	ReferenceID string
	Meta        models.Meta
}

type RefundParams struct {
	UserID      string
	Amount      int64
	Type        models.TxType // REFUND when empty
	ReferenceID string
	Meta        models.Meta
}

// NoteParams records a zero-effect SUCCESS row, e.g. an approval step.
type NoteParams struct {
	UserID      string
	Amount      int64
	Type        models.TxType
	ReferenceID string
	Meta        models.Meta
}

// PendingEntry is a zero-effect PENDING row written before the money moves.
type PendingEntry struct {
	UserID      string
	Amount      int64
	Type        models.TxType
	Provider    string
	ReferenceID string
	Meta        models.Meta
}

// Result is what a primitive did. Replayed is true when the idempotency key
// already existed and nothing changed; Transaction is then the prior row.
type Result struct {
	Transaction models.WalletTransaction
	// Counterpart is the receiving row of a release between two users.
	Counterpart *models.WalletTransaction
	Wallet      models.Wallet
	Replayed    bool
}

// Reconciliation compares a wallet with the sum of its ledger rows.
type Reconciliation struct {
	Wallet          models.Wallet `json:"wallet"`
	LedgerAvailable int64         `json:"ledgerAvailable"`
	LedgerHeld      int64         `json:"ledgerHeld"`
	AvailableDrift  int64         `json:"availableDrift"`
	HeldDrift       int64         `json:"heldDrift"`
}

func (r Reconciliation) Balanced() bool {
	return r.AvailableDrift == 0 && r.HeldDrift == 0
}
