package service

import (
	"context"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/store"
)

// mockStore implements Store with overridable funcs, so each test wires
// only what it needs.
type mockStore struct {
	getListingsByIDsFunc      func(ctx context.Context, ids []int64) ([]models.Listing, error)
	checkoutFunc              func(ctx context.Context, rows []store.CheckoutRow) error
	getOrderByIDFunc          func(ctx context.Context, id int64) (*models.Order, error)
	getEscrowByOrderIDFunc    func(ctx context.Context, orderID int64) (*models.Escrow, error)
	getEscrowsByOrderIDsFunc  func(ctx context.Context, orderIDs []int64) ([]models.Escrow, error)
	getOrdersByPartyIDFunc    func(ctx context.Context, userID int64) ([]models.Order, error)
	transitionOrderStatusFunc func(ctx context.Context, orderID int64, from []string, to string) error
	releaseEscrowFunc         func(ctx context.Context, orderID int64, escrowStatus, releasedTo string, orderFrom []string, orderTo string) (*models.Order, *models.Escrow, error)
	listAutoReleasableFunc    func(ctx context.Context, heldBefore time.Time, limit int) ([]int64, error)
}

func (m *mockStore) GetListingsByIDs(ctx context.Context, ids []int64) ([]models.Listing, error) {
	return m.getListingsByIDsFunc(ctx, ids)
}

func (m *mockStore) Checkout(ctx context.Context, rows []store.CheckoutRow) error {
	return m.checkoutFunc(ctx, rows)
}

func (m *mockStore) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	return m.getOrderByIDFunc(ctx, id)
}

func (m *mockStore) GetEscrowByOrderID(ctx context.Context, orderID int64) (*models.Escrow, error) {
	return m.getEscrowByOrderIDFunc(ctx, orderID)
}

func (m *mockStore) GetEscrowsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.Escrow, error) {
	return m.getEscrowsByOrderIDsFunc(ctx, orderIDs)
}

func (m *mockStore) GetOrdersByPartyID(ctx context.Context, userID int64) ([]models.Order, error) {
	return m.getOrdersByPartyIDFunc(ctx, userID)
}

func (m *mockStore) TransitionOrderStatus(ctx context.Context, orderID int64, from []string, to string) error {
	return m.transitionOrderStatusFunc(ctx, orderID, from, to)
}

func (m *mockStore) ReleaseEscrow(ctx context.Context, orderID int64, escrowStatus, releasedTo string, orderFrom []string, orderTo string) (*models.Order, *models.Escrow, error) {
	return m.releaseEscrowFunc(ctx, orderID, escrowStatus, releasedTo, orderFrom, orderTo)
}

func (m *mockStore) ListAutoReleasable(ctx context.Context, heldBefore time.Time, limit int) ([]int64, error) {
	return m.listAutoReleasableFunc(ctx, heldBefore, limit)
}

// mockPublisher records every published event.
type mockPublisher struct {
	events []interface{}
}

func (p *mockPublisher) PublishOrderCreated(_ context.Context, e *models.OrderCreatedEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *mockPublisher) PublishFulfillmentSubmitted(_ context.Context, e *models.FulfillmentSubmittedEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *mockPublisher) PublishEscrowReleased(_ context.Context, e *models.EscrowReleasedEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *mockPublisher) PublishEscrowRefunded(_ context.Context, e *models.EscrowRefundedEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *mockPublisher) PublishOrderDisputed(_ context.Context, e *models.OrderDisputedEvent) error {
	p.events = append(p.events, e)
	return nil
}

// mockIdempotency tracks reservations with real claim semantics: a key
// is fresh once, stays claimed until released. duplicate forces every
// reservation to report a duplicate.
type mockIdempotency struct {
	duplicate bool
	reserved  map[string]bool
}

func (m *mockIdempotency) Reserve(_ context.Context, key string, _ time.Duration) (bool, error) {
	if m.duplicate {
		return false, nil
	}
	if m.reserved == nil {
		m.reserved = make(map[string]bool)
	}
	if m.reserved[key] {
		return false, nil
	}
	m.reserved[key] = true
	return true, nil
}

func (m *mockIdempotency) Release(_ context.Context, key string) error {
	delete(m.reserved, key)
	return nil
}
