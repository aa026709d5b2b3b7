package models

import "time"

// Event types
const (
	EventTypeOrderCreated         = "ORDER_CREATED"
	EventTypeFulfillmentSubmitted = "FULFILLMENT_SUBMITTED"
	EventTypeEscrowReleased       = "ESCROW_RELEASED"
	EventTypeEscrowRefunded       = "ESCROW_REFUNDED"
	EventTypeOrderDisputed        = "ORDER_DISPUTED"
	EventTypeDisputeResolved      = "DISPUTE_RESOLVED"
)

// Dispute resolution outcomes carried by DisputeResolvedEvent.
const (
	DisputeOutcomeRelease = "release"
	DisputeOutcomeRefund  = "refund"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderCreatedEvent published for each order a checkout creates
type OrderCreatedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	BuyerID  int64 `json:"buyer_id"`
	SellerID int64 `json:"seller_id"`
	Total    int64 `json:"total"`
}

// FulfillmentSubmittedEvent published when the seller submits fulfillment
type FulfillmentSubmittedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	SellerID int64 `json:"seller_id"`
}

// EscrowReleasedEvent published when held funds go to the seller
type EscrowReleasedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	EscrowID int64 `json:"escrow_id"`
	Amount   int64 `json:"amount"`
}

// EscrowRefundedEvent published when held funds go back to the buyer
type EscrowRefundedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	EscrowID int64 `json:"escrow_id"`
	Amount   int64 `json:"amount"`
}

// OrderDisputedEvent published when a party opens a dispute
type OrderDisputedEvent struct {
	BaseEvent
	OrderID  int64 `json:"order_id"`
	OpenedBy int64 `json:"opened_by"`
}

// DisputeResolvedEvent is consumed from the mediation service. Outcome
// decides which terminal transition this service applies.
type DisputeResolvedEvent struct {
	BaseEvent
	OrderID int64  `json:"order_id"`
	Outcome string `json:"outcome"`
	Reason  string `json:"reason,omitempty"`
}
