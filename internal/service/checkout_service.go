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

const idempotencyTTL = 24 * time.Hour

// CheckoutService converts a cart into one order + escrow pair per line
// item inside a single all-or-nothing transaction. No real payment
// capture happens here; in production this step would authorize payment
// first and create nothing on authorization failure.
type CheckoutService struct {
	store           Store
	idem            Idempotency
	eventPublisher  Publisher
	platformFeePct  int64
	defaultCurrency string
	logger          *zap.Logger
}

// NewCheckoutService creates a new checkout service
func NewCheckoutService(st Store, idem Idempotency, eventPublisher Publisher, platformFeePct int64) *CheckoutService {
	return &CheckoutService{
		store:           st,
		idem:            idem,
		eventPublisher:  eventPublisher,
		platformFeePct:  platformFeePct,
		defaultCurrency: models.DefaultCurrency,
		logger:          util.GetLogger(),
	}
}

// CheckoutRequest represents a cart submitted by a buyer
type CheckoutRequest struct {
	Items          []CheckoutItem `json:"items" binding:"required,min=1,dive"`
	IdempotencyKey string         `json:"idempotency_key,omitempty"`
}

// CheckoutItem is one cart line
type CheckoutItem struct {
	ListingID int64 `json:"listing_id" binding:"required,min=1"`
	Qty       int   `json:"qty" binding:"required,min=1"`
}

// CheckoutOrder summarizes one created order
type CheckoutOrder struct {
	ID       int64 `json:"id"`
	SellerID int64 `json:"seller_id"`
	Total    int64 `json:"total"`
}

// CheckoutResponse lists the orders a checkout created
type CheckoutResponse struct {
	Orders []CheckoutOrder `json:"orders"`
}

// Checkout validates the cart against live listings, captures a snapshot
// per line, computes totals, and persists every order + escrow pair
// atomically. Any bad line rejects the whole cart; a partially charged
// cart never exists.
func (s *CheckoutService) Checkout(ctx context.Context, buyerID int64, req *CheckoutRequest) (*CheckoutResponse, error) {
	ctx, span := util.StartSpan(ctx, "CheckoutService.Checkout")
	defer span.End()

	if len(req.Items) == 0 {
		return nil, fmt.Errorf("%w: cart must contain at least one item", ErrValidation)
	}
	for _, item := range req.Items {
		if item.ListingID <= 0 || item.Qty <= 0 {
			return nil, fmt.Errorf("%w: listing id and qty must be positive", ErrValidation)
		}
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}
	fresh, err := s.idem.Reserve(ctx, req.IdempotencyKey, idempotencyTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !fresh {
		util.CheckoutsFailedTotal.WithLabelValues("duplicate").Inc()
		return nil, fmt.Errorf("%w: duplicate checkout %s", ErrConflict, req.IdempotencyKey)
	}

	// A failed checkout creates nothing, so it must not burn the key:
	// the client retries the same cart with the same key.
	committed := false
	defer func() {
		if committed {
			return
		}
		if err := s.idem.Release(ctx, req.IdempotencyKey); err != nil {
			s.logger.Error("Failed to release idempotency key",
				zap.String("idempotency_key", req.IdempotencyKey),
				zap.Error(err))
		}
	}()

	listings, err := s.loadListings(ctx, req.Items)
	if err != nil {
		return nil, err
	}

	rows := make([]store.CheckoutRow, 0, len(req.Items))
	for _, item := range req.Items {
		listing := listings[item.ListingID]

		row, err := s.buildRow(buyerID, listing, item.Qty)
		if err != nil {
			util.CheckoutsFailedTotal.WithLabelValues("invalid_items").Inc()
			return nil, err
		}
		rows = append(rows, row)
	}

	if err := s.store.Checkout(ctx, rows); err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, fmt.Errorf("%w: %v", ErrConflict, err)
		}
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, fmt.Errorf("failed to commit checkout: %w", err)
	}
	committed = true

	resp := &CheckoutResponse{Orders: make([]CheckoutOrder, 0, len(rows))}
	for _, row := range rows {
		util.OrdersCreatedTotal.Inc()
		util.EscrowHeldAmount.Add(float64(row.Escrow.Amount))
		s.logger.Info("Order created",
			zap.Int64("order_id", row.Order.ID),
			zap.Int64("buyer_id", row.Order.BuyerID),
			zap.Int64("seller_id", row.Order.SellerID),
			zap.Int64("total", row.Order.Total))

		event := &models.OrderCreatedEvent{
			BaseEvent: models.BaseEvent{
				EventID:   uuid.New().String(),
				EventType: models.EventTypeOrderCreated,
				Timestamp: time.Now(),
			},
			OrderID:  row.Order.ID,
			BuyerID:  row.Order.BuyerID,
			SellerID: row.Order.SellerID,
			Total:    row.Order.Total,
		}
		if err := s.eventPublisher.PublishOrderCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish OrderCreated event", zap.Error(err))
		}

		resp.Orders = append(resp.Orders, CheckoutOrder{
			ID:       row.Order.ID,
			SellerID: row.Order.SellerID,
			Total:    row.Order.Total,
		})
	}

	return resp, nil
}

// loadListings batch-reads every referenced listing and rejects the cart
// on the first missing, inactive, or understocked line.
func (s *CheckoutService) loadListings(ctx context.Context, items []CheckoutItem) (map[int64]*models.Listing, error) {
	ids := make([]int64, len(items))
	for i, item := range items {
		ids[i] = item.ListingID
	}

	listings, err := s.store.GetListingsByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load listings: %w", err)
	}

	byID := make(map[int64]*models.Listing, len(listings))
	for i := range listings {
		byID[listings[i].ID] = &listings[i]
	}

	for _, item := range items {
		listing, ok := byID[item.ListingID]
		if !ok {
			util.CheckoutsFailedTotal.WithLabelValues("listing_not_found").Inc()
			return nil, fmt.Errorf("%w: listing %d", ErrNotFound, item.ListingID)
		}
		if listing.Status != models.ListingStatusActive {
			util.CheckoutsFailedTotal.WithLabelValues("listing_unavailable").Inc()
			return nil, fmt.Errorf("%w: listing %d is not available", ErrConflict, item.ListingID)
		}
		if listing.Quantity < item.Qty {
			util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
			return nil, fmt.Errorf("%w: listing %d has only %d available", ErrConflict, item.ListingID, listing.Quantity)
		}
	}

	return byID, nil
}

// buildRow captures the snapshot and computes the line totals:
// subtotal = unitPrice x qty, shipping = shippingFeePerUnit x qty,
// total = subtotal + shipping. Shipping is per unit, matching the demo
// checkout behavior.
func (s *CheckoutService) buildRow(buyerID int64, listing *models.Listing, qty int) (store.CheckoutRow, error) {
	unitPrice, err := models.NewMoney(listing.UnitPrice, listing.Currency)
	if err != nil {
		return store.CheckoutRow{}, fmt.Errorf("%w: listing %d: %v", ErrValidation, listing.ID, err)
	}
	shippingFee, err := models.NewMoney(listing.ShippingFee, listing.Currency)
	if err != nil {
		return store.CheckoutRow{}, fmt.Errorf("%w: listing %d: %v", ErrValidation, listing.ID, err)
	}

	subtotal := unitPrice.Mul(qty)
	shipping := shippingFee.Mul(qty)
	total := subtotal.Add(shipping)

	order := &models.Order{
		BuyerID:  buyerID,
		SellerID: listing.SellerID,
		Status:   models.OrderStatusNew,
		Subtotal: subtotal.Amount,
		Shipping: shipping.Amount,
		Total:    total.Amount,
		Currency: total.Currency,
		Snapshot: models.NewListingSnapshot(listing, qty),
	}
	escrow := &models.Escrow{
		Amount:      total.Amount,
		Currency:    total.Currency,
		PlatformFee: total.Amount * s.platformFeePct / 100,
		Status:      models.EscrowStatusHeld,
	}

	return store.CheckoutRow{Order: order, Escrow: escrow}, nil
}
