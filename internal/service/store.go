package service

import (
	"context"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

// Store is the persistence surface the services depend on. *store.Store
// satisfies it; tests substitute mocks.
type Store interface {
	GetListingsByIDs(ctx context.Context, ids []int64) ([]models.Listing, error)
	Checkout(ctx context.Context, rows []store.CheckoutRow) error

	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	GetEscrowByOrderID(ctx context.Context, orderID int64) (*models.Escrow, error)
	GetEscrowsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.Escrow, error)
	GetOrdersByPartyID(ctx context.Context, userID int64) ([]models.Order, error)

	TransitionOrderStatus(ctx context.Context, orderID int64, from []string, to string) error
	ReleaseEscrow(ctx context.Context, orderID int64, escrowStatus, releasedTo string, orderFrom []string, orderTo string) (*models.Order, *models.Escrow, error)
	ListAutoReleasable(ctx context.Context, heldBefore time.Time, limit int) ([]int64, error)
}

// Publisher is the outbound event surface. *broker.EventPublisher
// satisfies it.
type Publisher interface {
	PublishOrderCreated(ctx context.Context, event *models.OrderCreatedEvent) error
	PublishFulfillmentSubmitted(ctx context.Context, event *models.FulfillmentSubmittedEvent) error
	PublishEscrowReleased(ctx context.Context, event *models.EscrowReleasedEvent) error
	PublishEscrowRefunded(ctx context.Context, event *models.EscrowRefundedEvent) error
	PublishOrderDisputed(ctx context.Context, event *models.OrderDisputedEvent) error
}

// Idempotency reserves checkout idempotency keys. *redisclient.Client
// satisfies it.
type Idempotency interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
