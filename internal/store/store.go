package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"marketplace/internal/models"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Sentinel errors surfaced to the service layer. The service maps them
// onto its own taxonomy; the HTTP layer never sees these directly.
var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrEscrowNotFound     = errors.New("escrow not found")
	ErrListingNotFound    = errors.New("listing not found")
	ErrEscrowNotHeld      = errors.New("escrow is not held")
	ErrOrderStateConflict = errors.New("order status does not allow this transition")
	ErrInsufficientStock  = errors.New("insufficient stock")
)

type Store struct {
	db *sqlx.DB
}

// NewStore creates a new database store
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetDB returns the underlying database connection
func (s *Store) GetDB() *sqlx.DB {
	return s.db
}

// GetListingByID retrieves a listing by ID regardless of status
func (s *Store) GetListingByID(ctx context.Context, id int64) (*models.Listing, error) {
	var listing models.Listing
	err := s.db.GetContext(ctx, &listing, "SELECT * FROM listings WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: %d", ErrListingNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &listing, nil
}

// GetListingsByIDs retrieves multiple listings by IDs in one batch read.
// Missing IDs are simply absent from the result; the caller decides how
// to report them.
func (s *Store) GetListingsByIDs(ctx context.Context, ids []int64) ([]models.Listing, error) {
	if len(ids) == 0 {
		return []models.Listing{}, nil
	}

	query, args, err := sqlx.In("SELECT * FROM listings WHERE id IN (?)", ids)
	if err != nil {
		return nil, err
	}
	query = s.db.Rebind(query)

	var listings []models.Listing
	err = s.db.SelectContext(ctx, &listings, query, args...)
	return listings, err
}

// UpsertListing inserts or replaces a listing. Used by seed tooling and
// integration tests; the live catalog is owned by a separate service.
func (s *Store) UpsertListing(ctx context.Context, l *models.Listing) error {
	query := `
		INSERT INTO listings (id, seller_id, title, unit_price, shipping_fee, currency, quantity, status, image_url, location)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			unit_price = EXCLUDED.unit_price,
			shipping_fee = EXCLUDED.shipping_fee,
			currency = EXCLUDED.currency,
			quantity = EXCLUDED.quantity,
			status = EXCLUDED.status,
			image_url = EXCLUDED.image_url,
			location = EXCLUDED.location,
			updated_at = NOW()
		RETURNING created_at, updated_at`

	return s.db.QueryRowxContext(ctx, query,
		l.ID, l.SellerID, l.Title, l.UnitPrice, l.ShippingFee, l.Currency,
		l.Quantity, l.Status, l.ImageURL, l.Location,
	).Scan(&l.CreatedAt, &l.UpdatedAt)
}
