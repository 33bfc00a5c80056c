package models

import "time"

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "OPEN"
	DisputeResolved DisputeStatus = "RESOLVED"
)

type Resolution string

const (
	ResolutionRefundBuyer   Resolution = "REFUND_BUYER"
	ResolutionReleaseSeller Resolution = "RELEASE_SELLER"
	ResolutionPartial       Resolution = "PARTIAL"
)

func (r Resolution) Valid() bool {
	switch r {
	case ResolutionRefundBuyer, ResolutionReleaseSeller, ResolutionPartial:
		return true
	default:
		return false
	}
}

type Dispute struct {
	ID             string        `db:"id" json:"id"`
	OrderID        string        `db:"order_id" json:"orderId"`
	OpenedBy       string        `db:"opened_by" json:"openedBy"`
	Reason         string        `db:"reason" json:"reason"`
	Note           string        `db:"note" json:"note,omitempty"`
	Status         DisputeStatus `db:"status" json:"status"`
	Resolution     *Resolution   `db:"resolution" json:"resolution,omitempty"`
	BuyerAmount    int64         `db:"buyer_amount" json:"buyerAmount"`
	SellerAmount   int64         `db:"seller_amount" json:"sellerAmount"`
	ResolvedBy     *string       `db:"resolved_by" json:"resolvedBy,omitempty"`
	ResolutionNote string        `db:"resolution_note" json:"resolutionNote,omitempty"`
	ResolvedAt     *time.Time    `db:"resolved_at" json:"resolvedAt,omitempty"`
	CreatedAt      time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time     `db:"updated_at" json:"updatedAt"`
}

// Split is how a disputed escrow is divided. BuyerAmount is refunded,
// SellerAmount is released.
type Split struct {
	BuyerAmount  int64 `json:"buyerAmount"`
	SellerAmount int64 `json:"sellerAmount"`
}
