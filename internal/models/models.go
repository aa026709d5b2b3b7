package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// DefaultCurrency is used when a listing carries no explicit currency.
const DefaultCurrency = "GHS"

// Money is a fixed-point amount in minor units (pesewas for GHS) paired
// with a currency code. Mixed-currency arithmetic is a programming error
// and panics rather than being handled at runtime.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// NewMoney creates a Money value. Negative amounts are rejected: the
// platform never records negative balances.
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, fmt.Errorf("money amount must be non-negative, got %d", amount)
	}
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Amount: amount, Currency: currency}, nil
}

// Add returns m + other. Panics on currency mismatch.
func (m Money) Add(other Money) Money {
	if m.Currency != other.Currency {
		panic(fmt.Sprintf("money currency mismatch: %s vs %s", m.Currency, other.Currency))
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}
}

// Mul returns m multiplied by a positive quantity.
func (m Money) Mul(qty int) Money {
	if qty <= 0 {
		panic(fmt.Sprintf("money multiplier must be positive, got %d", qty))
	}
	return Money{Amount: m.Amount * int64(qty), Currency: m.Currency}
}

// Listing is the catalog entry the checkout orchestrator reads. The
// catalog itself (creation, editing, search) is owned elsewhere; this
// service only reads listings and decrements quantity at checkout.
type Listing struct {
	ID          int64     `db:"id" json:"id"`
	SellerID    int64     `db:"seller_id" json:"seller_id"`
	Title       string    `db:"title" json:"title"`
	UnitPrice   int64     `db:"unit_price" json:"unit_price"`
	ShippingFee int64     `db:"shipping_fee" json:"shipping_fee"`
	Currency    string    `db:"currency" json:"currency"`
	Quantity    int       `db:"quantity" json:"quantity"`
	Status      string    `db:"status" json:"status"`
	ImageURL    string    `db:"image_url" json:"image_url,omitempty"`
	Location    string    `db:"location" json:"location,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Listing statuses
const (
	ListingStatusActive   = "active"
	ListingStatusInactive = "inactive"
	ListingStatusDraft    = "draft"
)

// ListingSnapshot is the immutable copy of listing data embedded in an
// order at creation time. Later listing edits or deletions never alter
// it; it is the record of what the buyer agreed to purchase.
type ListingSnapshot struct {
	ListingID   int64  `json:"listing_id"`
	Title       string `json:"title"`
	UnitPrice   int64  `json:"unit_price"`
	ShippingFee int64  `json:"shipping_fee"`
	Currency    string `json:"currency"`
	Quantity    int    `json:"quantity"`
	ImageURL    string `json:"image_url,omitempty"`
	Location    string `json:"location,omitempty"`
}

// NewListingSnapshot copies the fields off a live listing. Pure copy, no
// side effects; the snapshot never re-reads the listing afterward.
func NewListingSnapshot(l *Listing, qty int) ListingSnapshot {
	return ListingSnapshot{
		ListingID:   l.ID,
		Title:       l.Title,
		UnitPrice:   l.UnitPrice,
		ShippingFee: l.ShippingFee,
		Currency:    l.Currency,
		Quantity:    qty,
		ImageURL:    l.ImageURL,
		Location:    l.Location,
	}
}

// Value implements driver.Valuer so the snapshot is stored as JSONB.
func (s ListingSnapshot) Value() (driver.Value, error) {
	return json.Marshal(s)
}

// Scan implements sql.Scanner.
func (s *ListingSnapshot) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return fmt.Errorf("cannot scan %T into ListingSnapshot", src)
	}
}

// Order statuses
const (
	OrderStatusNew                  = "NEW"
	OrderStatusFulfillmentSubmitted = "FULFILLMENT_SUBMITTED"
	OrderStatusDisputed             = "DISPUTED"
	OrderStatusReleased             = "RELEASED"
	OrderStatusRefunded             = "REFUNDED"
)

// Order is a single seller-scoped purchase. Created exclusively by the
// checkout orchestrator, mutated exclusively through the transition
// operations, never deleted (financial record).
type Order struct {
	ID        int64           `db:"id" json:"id"`
	BuyerID   int64           `db:"buyer_id" json:"buyer_id"`
	SellerID  int64           `db:"seller_id" json:"seller_id"`
	Status    string          `db:"status" json:"status"`
	Subtotal  int64           `db:"subtotal" json:"subtotal"`
	Shipping  int64           `db:"shipping" json:"shipping"`
	Total     int64           `db:"total" json:"total"`
	Currency  string          `db:"currency" json:"currency"`
	Snapshot  ListingSnapshot `db:"snapshot" json:"snapshot"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}

// TotalMoney returns the order total as a Money value.
func (o *Order) TotalMoney() Money {
	return Money{Amount: o.Total, Currency: o.Currency}
}

// Escrow statuses
const (
	EscrowStatusHeld     = "HELD"
	EscrowStatusReleased = "RELEASED"
	EscrowStatusRefunded = "REFUNDED"
)

// Escrow release targets
const (
	ReleasedToSeller = "seller"
	ReleasedToBuyer  = "buyer"
)

// Escrow is the money-movement record paired 1:1 with an order. Amount is
// copied from the order total at creation and never recomputed. Status,
// ReleasedAt and ReleasedTo change together, exactly once, when one of
// the two terminal transitions fires.
type Escrow struct {
	ID          int64      `db:"id" json:"id"`
	OrderID     int64      `db:"order_id" json:"order_id"`
	Amount      int64      `db:"amount" json:"amount"`
	Currency    string     `db:"currency" json:"currency"`
	PlatformFee int64      `db:"platform_fee" json:"platform_fee"`
	Status      string     `db:"status" json:"status"`
	HeldAt      time.Time  `db:"held_at" json:"held_at"`
	ReleasedAt  *time.Time `db:"released_at" json:"released_at,omitempty"`
	ReleasedTo  *string    `db:"released_to" json:"released_to,omitempty"`
}
