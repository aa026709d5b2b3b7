package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/store"
	"marketplace/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// releasableFrom are the order statuses from which a buyer-triggered
// terminal transition may fire. DISPUTED is deliberately absent: once a
// dispute is open, only dispute resolution can move money.
var releasableFrom = []string{models.OrderStatusNew, models.OrderStatusFulfillmentSubmitted}

// OrderService owns the order state machine: who may trigger which
// transition, under what precondition, and with which escrow effect.
type OrderService struct {
	store          Store
	eventPublisher Publisher
	logger         *zap.Logger
}

// NewOrderService creates a new order service
func NewOrderService(st Store, eventPublisher Publisher) *OrderService {
	return &OrderService{
		store:          st,
		eventPublisher: eventPublisher,
		logger:         util.GetLogger(),
	}
}

// OrderWithEscrow bundles an order with its escrow summary
type OrderWithEscrow struct {
	Order  *models.Order  `json:"order"`
	Escrow *models.Escrow `json:"escrow"`
}

// GetOrder returns a single order with its escrow. Only the order's
// buyer or seller may see it.
func (s *OrderService) GetOrder(ctx context.Context, principalID, orderID int64) (*OrderWithEscrow, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.GetOrder")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != principalID && order.SellerID != principalID {
		return nil, fmt.Errorf("%w: not a party to order %d", ErrForbidden, orderID)
	}

	escrow, err := s.store.GetEscrowByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrow: %w", err)
	}
	return &OrderWithEscrow{Order: order, Escrow: escrow}, nil
}

// ListOrders returns every order where the principal is buyer or seller,
// newest first, each with its escrow.
func (s *OrderService) ListOrders(ctx context.Context, principalID int64) ([]OrderWithEscrow, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ListOrders")
	defer span.End()

	orders, err := s.store.GetOrdersByPartyID(ctx, principalID)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}
	escrows, err := s.store.GetEscrowsByOrderIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load escrows: %w", err)
	}
	escrowByOrder := make(map[int64]*models.Escrow, len(escrows))
	for i := range escrows {
		escrowByOrder[escrows[i].OrderID] = &escrows[i]
	}

	result := make([]OrderWithEscrow, 0, len(orders))
	for i := range orders {
		result = append(result, OrderWithEscrow{
			Order:  &orders[i],
			Escrow: escrowByOrder[orders[i].ID],
		})
	}
	return result, nil
}

// SubmitFulfillment moves a NEW order to FULFILLMENT_SUBMITTED. Seller
// only; no money moves.
func (s *OrderService) SubmitFulfillment(ctx context.Context, principalID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.SubmitFulfillment")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.SellerID != principalID {
		return nil, fmt.Errorf("%w: seller access required for order %d", ErrForbidden, orderID)
	}

	err = s.store.TransitionOrderStatus(ctx, orderID,
		[]string{models.OrderStatusNew}, models.OrderStatusFulfillmentSubmitted)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	s.logger.Info("Fulfillment submitted", zap.Int64("order_id", orderID))

	event := &models.FulfillmentSubmittedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeFulfillmentSubmitted,
			Timestamp: time.Now(),
		},
		OrderID:  orderID,
		SellerID: principalID,
	}
	if err := s.eventPublisher.PublishFulfillmentSubmitted(ctx, event); err != nil {
		s.logger.Error("Failed to publish FulfillmentSubmitted event", zap.Error(err))
	}

	return s.loadOrder(ctx, orderID)
}

// ConfirmDelivery releases the held funds to the seller. Buyer only;
// requires the escrow to still be HELD and the order not DISPUTED. A
// second confirm, or a confirm after refund, observes the escrow no
// longer HELD and fails with conflict.
func (s *OrderService) ConfirmDelivery(ctx context.Context, principalID, orderID int64) (*OrderWithEscrow, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ConfirmDelivery")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != principalID {
		return nil, fmt.Errorf("%w: buyer access required for order %d", ErrForbidden, orderID)
	}

	return s.release(ctx, orderID, models.ReleasedToSeller, releasableFrom)
}

// Refund releases the held funds back to the buyer. Buyer only; same
// precondition as ConfirmDelivery and mutually exclusive with it.
func (s *OrderService) Refund(ctx context.Context, principalID, orderID int64) (*OrderWithEscrow, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.Refund")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != principalID {
		return nil, fmt.Errorf("%w: buyer access required for order %d", ErrForbidden, orderID)
	}

	return s.release(ctx, orderID, models.ReleasedToBuyer, releasableFrom)
}

// OpenDispute marks the order DISPUTED, blocking both terminal
// transitions until resolution. Either party may open one while the
// escrow is still HELD. Resolution itself lives in a separate mediation
// service.
func (s *OrderService) OpenDispute(ctx context.Context, principalID, orderID int64) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.OpenDispute")
	defer span.End()

	order, err := s.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.BuyerID != principalID && order.SellerID != principalID {
		return nil, fmt.Errorf("%w: not a party to order %d", ErrForbidden, orderID)
	}

	err = s.store.TransitionOrderStatus(ctx, orderID, releasableFrom, models.OrderStatusDisputed)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}

	util.OrdersDisputedTotal.Inc()
	s.logger.Warn("Dispute opened",
		zap.Int64("order_id", orderID),
		zap.Int64("opened_by", principalID))

	event := &models.OrderDisputedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderDisputed,
			Timestamp: time.Now(),
		},
		OrderID:  orderID,
		OpenedBy: principalID,
	}
	if err := s.eventPublisher.PublishOrderDisputed(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderDisputed event", zap.Error(err))
	}

	return s.loadOrder(ctx, orderID)
}

// ResolveDispute applies the mediation outcome to a DISPUTED order. Only
// the dispute worker calls this; it is not exposed over HTTP.
func (s *OrderService) ResolveDispute(ctx context.Context, orderID int64, outcome string) (*OrderWithEscrow, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.ResolveDispute")
	defer span.End()

	var releasedTo string
	switch outcome {
	case models.DisputeOutcomeRelease:
		releasedTo = models.ReleasedToSeller
	case models.DisputeOutcomeRefund:
		releasedTo = models.ReleasedToBuyer
	default:
		return nil, fmt.Errorf("%w: unknown dispute outcome %q", ErrValidation, outcome)
	}

	return s.release(ctx, orderID, releasedTo, []string{models.OrderStatusDisputed})
}

// AutoRelease applies the confirm transition on behalf of the platform
// when the buyer never confirmed within the configured window. Same
// invariants as ConfirmDelivery; disputed orders are never swept.
func (s *OrderService) AutoRelease(ctx context.Context, orderID int64) (*OrderWithEscrow, error) {
	ctx, span := util.StartSpan(ctx, "OrderService.AutoRelease")
	defer span.End()

	return s.release(ctx, orderID, models.ReleasedToSeller, releasableFrom)
}

// ListAutoReleasable exposes the sweep scan to the worker.
func (s *OrderService) ListAutoReleasable(ctx context.Context, heldBefore time.Time, limit int) ([]int64, error) {
	return s.store.ListAutoReleasable(ctx, heldBefore, limit)
}

// release runs one of the two terminal transitions. The store performs
// the atomic check-and-set; this layer picks statuses, metrics, events.
func (s *OrderService) release(ctx context.Context, orderID int64, releasedTo string, orderFrom []string) (*OrderWithEscrow, error) {
	escrowStatus := models.EscrowStatusReleased
	orderStatus := models.OrderStatusReleased
	if releasedTo == models.ReleasedToBuyer {
		escrowStatus = models.EscrowStatusRefunded
		orderStatus = models.OrderStatusRefunded
	}

	order, escrow, err := s.store.ReleaseEscrow(ctx, orderID, escrowStatus, releasedTo, orderFrom, orderStatus)
	if err != nil {
		if errors.Is(err, store.ErrEscrowNotHeld) || errors.Is(err, store.ErrOrderStateConflict) {
			util.TransitionConflictsTotal.Inc()
		}
		return nil, s.mapStoreErr(err)
	}

	if releasedTo == models.ReleasedToSeller {
		util.EscrowsReleasedTotal.Inc()
	} else {
		util.EscrowsRefundedTotal.Inc()
	}
	util.EscrowHeldAmount.Sub(float64(escrow.Amount))
	s.logger.Info("Escrow settled",
		zap.Int64("order_id", orderID),
		zap.String("released_to", releasedTo),
		zap.Int64("amount", escrow.Amount))

	base := models.BaseEvent{
		EventID:   uuid.New().String(),
		Timestamp: time.Now(),
	}
	if releasedTo == models.ReleasedToSeller {
		base.EventType = models.EventTypeEscrowReleased
		event := &models.EscrowReleasedEvent{BaseEvent: base, OrderID: orderID, EscrowID: escrow.ID, Amount: escrow.Amount}
		if err := s.eventPublisher.PublishEscrowReleased(ctx, event); err != nil {
			s.logger.Error("Failed to publish EscrowReleased event", zap.Error(err))
		}
	} else {
		base.EventType = models.EventTypeEscrowRefunded
		event := &models.EscrowRefundedEvent{BaseEvent: base, OrderID: orderID, EscrowID: escrow.ID, Amount: escrow.Amount}
		if err := s.eventPublisher.PublishEscrowRefunded(ctx, event); err != nil {
			s.logger.Error("Failed to publish EscrowRefunded event", zap.Error(err))
		}
	}

	return &OrderWithEscrow{Order: order, Escrow: escrow}, nil
}

func (s *OrderService) loadOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := s.store.GetOrderByID(ctx, orderID)
	if err != nil {
		return nil, s.mapStoreErr(err)
	}
	return order, nil
}

// mapStoreErr translates store sentinels into the service taxonomy.
func (s *OrderService) mapStoreErr(err error) error {
	switch {
	case errors.Is(err, store.ErrOrderNotFound), errors.Is(err, store.ErrEscrowNotFound), errors.Is(err, store.ErrListingNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, store.ErrEscrowNotHeld), errors.Is(err, store.ErrOrderStateConflict), errors.Is(err, store.ErrInsufficientStock):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	default:
		return err
	}
}
