package models

import "errors"

// Domain errors. Services wrap them with context; the API layer matches them
// with errors.Is.
var (
	ErrInvalidRequest         = errors.New("invalid request")
	ErrNotFound               = errors.New("not found")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrBelowMinimum           = errors.New("amount below minimum")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientHeldFunds  = errors.New("insufficient held funds")
	ErrTransactionClosed      = errors.New("wallet transaction already closed")
	ErrLedgerDrift            = errors.New("wallet balance does not match ledger")
	ErrInvalidOrderState      = errors.New("invalid order state")
	ErrNotDue                 = errors.New("order is not due for auto-release")
	ErrListingUnavailable     = errors.New("listing unavailable")
	ErrSelfPurchase           = errors.New("buyer cannot purchase own listing")
	ErrInvalidSplit           = errors.New("invalid split")
	ErrInvalidResolution      = errors.New("invalid resolution")
	ErrDisputeAlreadyResolved = errors.New("dispute already resolved")
	ErrInvalidWithdrawalState = errors.New("invalid withdrawal state")
	ErrTooManyPendingRequests = errors.New("too many pending withdrawal requests")
	ErrInvalidIBAN            = errors.New("invalid iban")
	ErrAmountMismatch         = errors.New("amount mismatch")
	ErrSignatureMismatch      = errors.New("signature mismatch")
)
