package models

import "time"

type ListingStatus string

const (
	ListingActive   ListingStatus = "ACTIVE"
	ListingSold     ListingStatus = "SOLD"
	ListingInactive ListingStatus = "INACTIVE"
)

// Listing is owned by the CRUD layer; the settlement engine only locks it and
// flips its status.
type Listing struct {
	ID        string        `db:"id" json:"id"`
	SellerID  string        `db:"seller_id" json:"sellerId"`
	Title     string        `db:"title" json:"title"`
	Price     int64         `db:"price" json:"price"`
	Status    ListingStatus `db:"status" json:"status"`
	CreatedAt time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `db:"updated_at" json:"updatedAt"`
}

type OrderStatus string

const (
	OrderPendingDelivery OrderStatus = "PENDING_DELIVERY"
	OrderCompleted       OrderStatus = "COMPLETED"
	OrderDisputed        OrderStatus = "DISPUTED"
	OrderRefunded        OrderStatus = "REFUNDED"
)

func (s OrderStatus) Open() bool {
	return s == OrderPendingDelivery || s == OrderDisputed
}

type Order struct {
	ID            string      `db:"id" json:"id"`
	ListingID     string      `db:"listing_id" json:"listingId"`
	BuyerID       string      `db:"buyer_id" json:"buyerId"`
	SellerID      string      `db:"seller_id" json:"sellerId"`
	Amount        int64       `db:"amount" json:"amount"`
	Status        OrderStatus `db:"status" json:"status"`
	AutoReleaseAt time.Time   `db:"auto_release_at" json:"autoReleaseAt"`
	CompletedAt   *time.Time  `db:"completed_at" json:"completedAt,omitempty"`
	DisputedAt    *time.Time  `db:"disputed_at" json:"disputedAt,omitempty"`
	RefundedAt    *time.Time  `db:"refunded_at" json:"refundedAt,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updatedAt"`
}

// IsParty reports whether userID is the buyer or the seller.
func (o Order) IsParty(userID string) bool {
	return userID != "" && (userID == o.BuyerID || userID == o.SellerID)
}

// Counterparty returns the other side of the order.
func (o Order) Counterparty(userID string) string {
	if userID == o.BuyerID {
		return o.SellerID
	}

	return o.BuyerID
}
