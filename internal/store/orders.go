package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
)

// CheckoutRow pairs one order with its escrow and the inventory
// decrement backing it. All rows of a checkout commit or none do.
type CheckoutRow struct {
	Order  *models.Order
	Escrow *models.Escrow
}

// Checkout atomically creates one order + escrow pair per row and
// decrements the listed quantity on each backing listing. The decrement
// re-checks availability under the transaction, so two concurrent
// checkouts can never oversell: the second sees the reduced quantity and
// the whole cart is rejected with ErrInsufficientStock.
func (s *Store) Checkout(ctx context.Context, rows []CheckoutRow) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, row := range rows {
		if err := s.checkoutRow(ctx, tx, row); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (s *Store) checkoutRow(ctx context.Context, tx *sqlx.Tx, row CheckoutRow) error {
	res, err := tx.ExecContext(ctx, `
		UPDATE listings
		SET quantity = quantity - $1, updated_at = NOW()
		WHERE id = $2 AND status = $3 AND quantity >= $1`,
		row.Order.Snapshot.Quantity, row.Order.Snapshot.ListingID, models.ListingStatusActive)
	if err != nil {
		return fmt.Errorf("failed to decrement listing %d: %w", row.Order.Snapshot.ListingID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: listing %d", ErrInsufficientStock, row.Order.Snapshot.ListingID)
	}

	orderQuery := `
		INSERT INTO orders (buyer_id, seller_id, status, subtotal, shipping, total, currency, snapshot)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at, updated_at`

	if err := tx.QueryRowxContext(ctx, orderQuery,
		row.Order.BuyerID, row.Order.SellerID, row.Order.Status,
		row.Order.Subtotal, row.Order.Shipping, row.Order.Total,
		row.Order.Currency, row.Order.Snapshot,
	).Scan(&row.Order.ID, &row.Order.CreatedAt, &row.Order.UpdatedAt); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}

	row.Escrow.OrderID = row.Order.ID

	escrowQuery := `
		INSERT INTO escrows (order_id, amount, currency, platform_fee, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, held_at`

	if err := tx.QueryRowxContext(ctx, escrowQuery,
		row.Escrow.OrderID, row.Escrow.Amount, row.Escrow.Currency,
		row.Escrow.PlatformFee, row.Escrow.Status,
	).Scan(&row.Escrow.ID, &row.Escrow.HeldAt); err != nil {
		return fmt.Errorf("failed to insert escrow for order %d: %w", row.Order.ID, err)
	}

	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrOrderNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetEscrowByOrderID retrieves the escrow paired with an order
func (s *Store) GetEscrowByOrderID(ctx context.Context, orderID int64) (*models.Escrow, error) {
	var escrow models.Escrow
	err := s.db.GetContext(ctx, &escrow, "SELECT * FROM escrows WHERE order_id = $1", orderID)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: order %d", ErrEscrowNotFound, orderID)
	}
	if err != nil {
		return nil, err
	}
	return &escrow, nil
}

// GetEscrowsByOrderIDs retrieves escrows for multiple orders in one read
func (s *Store) GetEscrowsByOrderIDs(ctx context.Context, orderIDs []int64) ([]models.Escrow, error) {
	if len(orderIDs) == 0 {
		return []models.Escrow{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM escrows WHERE order_id IN (?)", orderIDs)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var escrows []models.Escrow
	err = s.db.SelectContext(ctx, &escrows, query, args...)
	return escrows, err
}

// GetOrdersByPartyID retrieves orders where the user is buyer or seller,
// newest first
func (s *Store) GetOrdersByPartyID(ctx context.Context, userID int64) ([]models.Order, error) {
	var orders []models.Order
	err := s.db.SelectContext(ctx, &orders,
		"SELECT * FROM orders WHERE buyer_id = $1 OR seller_id = $1 ORDER BY created_at DESC", userID)
	return orders, err
}

// TransitionOrderStatus moves an order from one of the allowed statuses
// to the target status as a single conditional update. A zero row count
// is resolved to either ErrOrderNotFound or ErrOrderStateConflict, never
// a silent no-op.
func (s *Store) TransitionOrderStatus(ctx context.Context, orderID int64, from []string, to string) error {
	query, args, err := sqlx.In(
		"UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ? AND status IN (?)",
		to, orderID, from)
	if err != nil {
		return err
	}
	query = s.db.Rebind(query)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		if _, err := s.GetOrderByID(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %d", ErrOrderStateConflict, orderID)
	}
	return nil
}

// ReleaseEscrow performs one of the two terminal transitions: it flips
// the escrow out of HELD and the order into its terminal status in the
// same transaction. The escrow flip is a conditional update on
// status = HELD with the row count checked, so concurrent confirm and
// refund calls cannot both succeed; the loser observes ErrEscrowNotHeld.
// The order update is likewise conditional on the allowed source
// statuses, which is how DISPUTED blocks buyer-triggered releases.
func (s *Store) ReleaseEscrow(ctx context.Context, orderID int64, escrowStatus, releasedTo string, orderFrom []string, orderTo string) (*models.Order, *models.Escrow, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE escrows
		SET status = $1, released_to = $2, released_at = NOW()
		WHERE order_id = $3 AND status = $4`,
		escrowStatus, releasedTo, orderID, models.EscrowStatusHeld)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update escrow for order %d: %w", orderID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if affected == 0 {
		var exists bool
		if err := tx.GetContext(ctx, &exists,
			"SELECT EXISTS(SELECT 1 FROM escrows WHERE order_id = $1)", orderID); err != nil {
			return nil, nil, err
		}
		if !exists {
			return nil, nil, fmt.Errorf("%w: order %d", ErrEscrowNotFound, orderID)
		}
		return nil, nil, fmt.Errorf("%w: order %d", ErrEscrowNotHeld, orderID)
	}

	query, args, err := sqlx.In(
		"UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ? AND status IN (?)",
		orderTo, orderID, orderFrom)
	if err != nil {
		return nil, nil, err
	}
	query = tx.Rebind(query)

	res, err = tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to update order %d: %w", orderID, err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return nil, nil, err
	}
	if affected == 0 {
		// Rolls back the escrow flip too; the pair never diverges.
		return nil, nil, fmt.Errorf("%w: order %d", ErrOrderStateConflict, orderID)
	}

	var order models.Order
	if err := tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1", orderID); err != nil {
		return nil, nil, err
	}
	var escrow models.Escrow
	if err := tx.GetContext(ctx, &escrow, "SELECT * FROM escrows WHERE order_id = $1", orderID); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, err
	}
	return &order, &escrow, nil
}

// ListAutoReleasable returns order IDs whose escrow has been HELD since
// before the cutoff and whose order is still in a pre-terminal,
// non-disputed status. Used by the auto-release sweeper.
func (s *Store) ListAutoReleasable(ctx context.Context, heldBefore time.Time, limit int) ([]int64, error) {
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, `
		SELECT e.order_id
		FROM escrows e
		JOIN orders o ON o.id = e.order_id
		WHERE e.status = $1 AND e.held_at < $2 AND o.status IN ($3, $4)
		ORDER BY e.held_at
		LIMIT $5`,
		models.EscrowStatusHeld, heldBefore,
		models.OrderStatusNew, models.OrderStatusFulfillmentSubmitted, limit)
	return ids, err
}
