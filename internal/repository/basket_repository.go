package repository

// basket_repository.go - persistence for `mock_baskets` and `mock_basket_legs`
// (spec.md §6: "basket create/append/execute"). A basket groups several order
// legs that are placed together once executed; legs are appended one at a
// time before execution and each gets an order_id once the engine places it.

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dhancore/internal/models"
)

// ErrBasketNotFound is returned when a basket id has no row.
var ErrBasketNotFound = errors.New("basket not found")

// BasketRepository is the Data Access Layer for baskets and their legs.
type BasketRepository struct {
	db *sql.DB
}

// NewBasketRepository builds a BasketRepository.
func NewBasketRepository(db *sql.DB) *BasketRepository {
	return &BasketRepository{db: db}
}

// Create inserts a new basket in PENDING status.
func (r *BasketRepository) Create(ctx context.Context, basket *models.Basket) error {
	now := time.Now()
	basket.Status = models.BasketStatusPending
	basket.CreatedAt, basket.UpdatedAt = now, now

	return r.db.QueryRowContext(ctx, `
		INSERT INTO mock_baskets (user_id, status, created_at, updated_at)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		basket.UserID, basket.Status, basket.CreatedAt, basket.UpdatedAt,
	).Scan(&basket.ID)
}

// Get returns a basket by ID, or nil if missing.
func (r *BasketRepository) Get(ctx context.Context, basketID int64) (*models.Basket, error) {
	b := &models.Basket{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, status, created_at, updated_at FROM mock_baskets WHERE id = $1`, basketID,
	).Scan(&b.ID, &b.UserID, &b.Status, &b.CreatedAt, &b.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// AppendLeg adds one leg to a basket, assigning it the next leg_index.
func (r *BasketRepository) AppendLeg(ctx context.Context, leg *models.BasketLeg) error {
	query := `
		INSERT INTO mock_basket_legs
			(basket_id, symbol, exchange_segment, transaction_type, quantity, order_type,
			 product_type, price, trigger_price, order_id, leg_index)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,
			COALESCE((SELECT MAX(leg_index) + 1 FROM mock_basket_legs WHERE basket_id = $1), 0))
		RETURNING id, leg_index`

	return r.db.QueryRowContext(ctx, query,
		leg.BasketID, leg.Symbol, leg.ExchangeSegment, leg.Side, leg.Quantity, leg.OrderType,
		leg.ProductType, leg.Price, leg.TriggerPrice, leg.OrderID,
	).Scan(&leg.ID, &leg.LegIndex)
}

// ListLegs returns a basket's legs ordered by leg_index.
func (r *BasketRepository) ListLegs(ctx context.Context, basketID int64) ([]*models.BasketLeg, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, basket_id, symbol, exchange_segment, transaction_type, quantity, order_type,
		       product_type, price, trigger_price, order_id, leg_index
		FROM mock_basket_legs WHERE basket_id = $1 ORDER BY leg_index`, basketID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var legs []*models.BasketLeg
	for rows.Next() {
		leg := &models.BasketLeg{}
		if err := rows.Scan(&leg.ID, &leg.BasketID, &leg.Symbol, &leg.ExchangeSegment, &leg.Side,
			&leg.Quantity, &leg.OrderType, &leg.ProductType, &leg.Price, &leg.TriggerPrice,
			&leg.OrderID, &leg.LegIndex); err != nil {
			return nil, err
		}
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

// SetLegOrderID records the order placed for a leg once the engine accepts it.
func (r *BasketRepository) SetLegOrderID(ctx context.Context, legID, orderID int64) error {
	_, err := r.db.ExecContext(ctx, `UPDATE mock_basket_legs SET order_id = $1 WHERE id = $2`, orderID, legID)
	return err
}

// UpdateStatus transitions a basket's aggregate status (PENDING -> EXECUTED,
// PARTIAL or FAILED once all legs have been attempted).
func (r *BasketRepository) UpdateStatus(ctx context.Context, basketID int64, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE mock_baskets SET status = $1, updated_at = $2 WHERE id = $3`,
		status, time.Now(), basketID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrBasketNotFound
	}
	return nil
}
