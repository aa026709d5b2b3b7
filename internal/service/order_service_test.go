package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"marketplace/internal/models"
	"marketplace/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	buyerID    int64 = 7
	sellerID   int64 = 9
	strangerID int64 = 13
)

func heldOrder(id int64, status string) *models.Order {
	return &models.Order{
		ID:       id,
		BuyerID:  buyerID,
		SellerID: sellerID,
		Status:   status,
		Subtotal: 500,
		Shipping: 50,
		Total:    550,
		Currency: "GHS",
	}
}

func storeWithOrder(order *models.Order) *mockStore {
	return &mockStore{
		getOrderByIDFunc: func(_ context.Context, id int64) (*models.Order, error) {
			if id != order.ID {
				return nil, fmt.Errorf("%w: %d", store.ErrOrderNotFound, id)
			}
			return order, nil
		},
	}
}

func TestGetOrderAuthorization(t *testing.T) {
	st := storeWithOrder(heldOrder(1, models.OrderStatusNew))
	st.getEscrowByOrderIDFunc = func(_ context.Context, orderID int64) (*models.Escrow, error) {
		return &models.Escrow{OrderID: orderID, Amount: 550, Status: models.EscrowStatusHeld}, nil
	}
	svc := NewOrderService(st, &mockPublisher{})

	tests := []struct {
		name      string
		principal int64
		wantErr   error
	}{
		{"buyer sees order", buyerID, nil},
		{"seller sees order", sellerID, nil},
		{"stranger rejected", strangerID, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := svc.GetOrder(context.Background(), tt.principal, 1)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, int64(550), result.Escrow.Amount)
		})
	}
}

func TestGetOrderNotFound(t *testing.T) {
	svc := NewOrderService(storeWithOrder(heldOrder(1, models.OrderStatusNew)), &mockPublisher{})

	_, err := svc.GetOrder(context.Background(), buyerID, 99)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitFulfillment(t *testing.T) {
	order := heldOrder(1, models.OrderStatusNew)

	t.Run("buyer cannot submit fulfillment", func(t *testing.T) {
		svc := NewOrderService(storeWithOrder(order), &mockPublisher{})
		_, err := svc.SubmitFulfillment(context.Background(), buyerID, 1)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("seller submits from NEW", func(t *testing.T) {
		st := storeWithOrder(order)
		var gotFrom []string
		st.transitionOrderStatusFunc = func(_ context.Context, orderID int64, from []string, to string) error {
			gotFrom = from
			assert.Equal(t, models.OrderStatusFulfillmentSubmitted, to)
			return nil
		}
		svc := NewOrderService(st, &mockPublisher{})

		_, err := svc.SubmitFulfillment(context.Background(), sellerID, 1)
		require.NoError(t, err)
		assert.Equal(t, []string{models.OrderStatusNew}, gotFrom)
	})

	t.Run("conflict when not NEW", func(t *testing.T) {
		st := storeWithOrder(order)
		st.transitionOrderStatusFunc = func(_ context.Context, orderID int64, _ []string, _ string) error {
			return fmt.Errorf("%w: order %d", store.ErrOrderStateConflict, orderID)
		}
		svc := NewOrderService(st, &mockPublisher{})

		_, err := svc.SubmitFulfillment(context.Background(), sellerID, 1)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestConfirmDelivery(t *testing.T) {
	order := heldOrder(1, models.OrderStatusFulfillmentSubmitted)

	t.Run("only buyer may confirm", func(t *testing.T) {
		svc := NewOrderService(storeWithOrder(order), &mockPublisher{})
		_, err := svc.ConfirmDelivery(context.Background(), sellerID, 1)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("releases to seller", func(t *testing.T) {
		st := storeWithOrder(order)
		st.releaseEscrowFunc = func(_ context.Context, orderID int64, escrowStatus, releasedTo string, orderFrom []string, orderTo string) (*models.Order, *models.Escrow, error) {
			assert.Equal(t, models.EscrowStatusReleased, escrowStatus)
			assert.Equal(t, models.ReleasedToSeller, releasedTo)
			assert.Equal(t, models.OrderStatusReleased, orderTo)
			assert.NotContains(t, orderFrom, models.OrderStatusDisputed)

			now := time.Now()
			released := heldOrder(orderID, models.OrderStatusReleased)
			to := releasedTo
			return released, &models.Escrow{
				OrderID: orderID, Amount: 550, Status: escrowStatus,
				ReleasedAt: &now, ReleasedTo: &to,
			}, nil
		}
		pub := &mockPublisher{}
		svc := NewOrderService(st, pub)

		result, err := svc.ConfirmDelivery(context.Background(), buyerID, 1)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusReleased, result.Order.Status)
		assert.Equal(t, models.EscrowStatusReleased, result.Escrow.Status)
		assert.Equal(t, models.ReleasedToSeller, *result.Escrow.ReleasedTo)
		assert.NotNil(t, result.Escrow.ReleasedAt)

		require.Len(t, pub.events, 1)
		_, ok := pub.events[0].(*models.EscrowReleasedEvent)
		assert.True(t, ok)
	})

	t.Run("conflict when escrow not held", func(t *testing.T) {
		st := storeWithOrder(order)
		st.releaseEscrowFunc = func(_ context.Context, orderID int64, _, _ string, _ []string, _ string) (*models.Order, *models.Escrow, error) {
			return nil, nil, fmt.Errorf("%w: order %d", store.ErrEscrowNotHeld, orderID)
		}
		svc := NewOrderService(st, &mockPublisher{})

		_, err := svc.ConfirmDelivery(context.Background(), buyerID, 1)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestRefund(t *testing.T) {
	order := heldOrder(1, models.OrderStatusNew)

	t.Run("only buyer may refund", func(t *testing.T) {
		svc := NewOrderService(storeWithOrder(order), &mockPublisher{})
		_, err := svc.Refund(context.Background(), strangerID, 1)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("refunds to buyer", func(t *testing.T) {
		st := storeWithOrder(order)
		st.releaseEscrowFunc = func(_ context.Context, orderID int64, escrowStatus, releasedTo string, _ []string, orderTo string) (*models.Order, *models.Escrow, error) {
			assert.Equal(t, models.EscrowStatusRefunded, escrowStatus)
			assert.Equal(t, models.ReleasedToBuyer, releasedTo)
			assert.Equal(t, models.OrderStatusRefunded, orderTo)

			now := time.Now()
			to := releasedTo
			return heldOrder(orderID, models.OrderStatusRefunded), &models.Escrow{
				OrderID: orderID, Amount: 550, Status: escrowStatus,
				ReleasedAt: &now, ReleasedTo: &to,
			}, nil
		}
		pub := &mockPublisher{}
		svc := NewOrderService(st, pub)

		result, err := svc.Refund(context.Background(), buyerID, 1)
		require.NoError(t, err)
		assert.Equal(t, models.ReleasedToBuyer, *result.Escrow.ReleasedTo)

		require.Len(t, pub.events, 1)
		_, ok := pub.events[0].(*models.EscrowRefundedEvent)
		assert.True(t, ok)
	})
}

func TestOpenDispute(t *testing.T) {
	order := heldOrder(1, models.OrderStatusFulfillmentSubmitted)

	t.Run("stranger cannot dispute", func(t *testing.T) {
		svc := NewOrderService(storeWithOrder(order), &mockPublisher{})
		_, err := svc.OpenDispute(context.Background(), strangerID, 1)
		assert.ErrorIs(t, err, ErrForbidden)
	})

	t.Run("either party may dispute", func(t *testing.T) {
		for _, principal := range []int64{buyerID, sellerID} {
			st := storeWithOrder(order)
			st.transitionOrderStatusFunc = func(_ context.Context, _ int64, from []string, to string) error {
				assert.Equal(t, models.OrderStatusDisputed, to)
				assert.ElementsMatch(t, []string{models.OrderStatusNew, models.OrderStatusFulfillmentSubmitted}, from)
				return nil
			}
			svc := NewOrderService(st, &mockPublisher{})

			_, err := svc.OpenDispute(context.Background(), principal, 1)
			require.NoError(t, err)
		}
	})

	t.Run("conflict on settled order", func(t *testing.T) {
		st := storeWithOrder(order)
		st.transitionOrderStatusFunc = func(_ context.Context, orderID int64, _ []string, _ string) error {
			return fmt.Errorf("%w: order %d", store.ErrOrderStateConflict, orderID)
		}
		svc := NewOrderService(st, &mockPublisher{})

		_, err := svc.OpenDispute(context.Background(), buyerID, 1)
		assert.ErrorIs(t, err, ErrConflict)
	})
}

func TestResolveDispute(t *testing.T) {
	t.Run("unknown outcome", func(t *testing.T) {
		svc := NewOrderService(&mockStore{}, &mockPublisher{})
		_, err := svc.ResolveDispute(context.Background(), 1, "split")
		assert.ErrorIs(t, err, ErrValidation)
	})

	t.Run("release outcome requires DISPUTED", func(t *testing.T) {
		st := &mockStore{
			releaseEscrowFunc: func(_ context.Context, orderID int64, escrowStatus, releasedTo string, orderFrom []string, orderTo string) (*models.Order, *models.Escrow, error) {
				assert.Equal(t, []string{models.OrderStatusDisputed}, orderFrom)
				assert.Equal(t, models.ReleasedToSeller, releasedTo)

				now := time.Now()
				to := releasedTo
				return heldOrder(orderID, orderTo), &models.Escrow{
					OrderID: orderID, Amount: 550, Status: escrowStatus,
					ReleasedAt: &now, ReleasedTo: &to,
				}, nil
			},
		}
		svc := NewOrderService(st, &mockPublisher{})

		result, err := svc.ResolveDispute(context.Background(), 1, models.DisputeOutcomeRelease)
		require.NoError(t, err)
		assert.Equal(t, models.EscrowStatusReleased, result.Escrow.Status)
	})
}

func TestAutoReleaseSkipsDisputed(t *testing.T) {
	st := &mockStore{
		releaseEscrowFunc: func(_ context.Context, orderID int64, escrowStatus, releasedTo string, orderFrom []string, _ string) (*models.Order, *models.Escrow, error) {
			assert.NotContains(t, orderFrom, models.OrderStatusDisputed)
			assert.Equal(t, models.ReleasedToSeller, releasedTo)

			now := time.Now()
			to := releasedTo
			return heldOrder(orderID, models.OrderStatusReleased), &models.Escrow{
				OrderID: orderID, Amount: 550, Status: escrowStatus,
				ReleasedAt: &now, ReleasedTo: &to,
			}, nil
		},
	}
	svc := NewOrderService(st, &mockPublisher{})

	_, err := svc.AutoRelease(context.Background(), 1)
	require.NoError(t, err)
}
