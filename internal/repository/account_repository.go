package repository

// account_repository.go - read-side persistence for `user_accounts`,
// `margin_accounts` and `user_allowed_segments`, implementing
// execution.AccountSource for the Execution Engine's pre-trade checks.
// This is distinct from sqlStoreTx's GetAccount/GetMargin in
// order_repository.go, which run inside the apply-fill transaction;
// AccountRepository is used outside any transaction, before an order is
// even accepted.

import (
	"context"
	"database/sql"
	"errors"

	"dhancore/internal/execution"
	"dhancore/internal/models"
)

var _ execution.AccountSource = (*AccountRepository)(nil)

// ErrAccountNotFound is returned when a user id has no account row.
var ErrAccountNotFound = errors.New("account not found")

// AccountRepository is the Data Access Layer backing execution.AccountSource.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository builds an AccountRepository.
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Account returns the wallet/brokerage-plan context the Execution Engine
// needs for pre-trade checks, including the user's allowed exchange segments.
func (r *AccountRepository) Account(ctx context.Context, userID int64) (*models.UserAccount, error) {
	a := &models.UserAccount{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, wallet_balance, margin_multiplier, brokerage_plan_id, blocked
		FROM user_accounts WHERE id = $1`, userID,
	).Scan(&a.ID, &a.WalletBalance, &a.MarginMultiplier, &a.BrokeragePlanID, &a.Blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT segment FROM user_allowed_segments WHERE user_id = $1`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var segment string
		if err := rows.Scan(&segment); err != nil {
			return nil, err
		}
		a.AllowedSegments = append(a.AllowedSegments, segment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return a, nil
}

// Margin returns a user's available/used margin snapshot.
func (r *AccountRepository) Margin(ctx context.Context, userID int64) (*models.MarginAccount, error) {
	m := &models.MarginAccount{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, available_margin, used_margin, updated_at
		FROM margin_accounts WHERE user_id = $1`, userID,
	).Scan(&m.UserID, &m.Available, &m.Used, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateMargin writes a recomputed margin snapshot outside any fill
// transaction (admin margin recompute).
func (r *AccountRepository) UpdateMargin(ctx context.Context, margin *models.MarginAccount) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE margin_accounts SET available_margin = $1, used_margin = $2, updated_at = $3
		WHERE user_id = $4`,
		margin.Available, margin.Used, margin.UpdatedAt, margin.UserID)
	return err
}

// ListOpenPositionsByUser returns every open (quantity != 0) position for
// userID, for admin margin recompute and position listing.
func (r *AccountRepository) ListOpenPositionsByUser(ctx context.Context, userID int64) ([]*models.Position, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, symbol, exchange_segment, product_type, quantity, avg_price, realized_pnl, status, updated_at
		FROM mock_positions WHERE user_id = $1 AND quantity != 0`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var positions []*models.Position
	for rows.Next() {
		p := &models.Position{}
		if err := rows.Scan(&p.UserID, &p.Symbol, &p.ExchangeSeg, &p.ProductType, &p.Quantity, &p.AvgPrice, &p.RealizedPnl, &p.Status, &p.UpdatedAt); err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

// GetPosition returns one position by its (user_id, symbol, product_type)
// key outside any fill transaction, for admin force-exit. mock_positions
// has no surrogate id; this key is the table's actual uniqueness
// constraint (see sqlStoreTx.UpsertPosition's ON CONFLICT target).
func (r *AccountRepository) GetPosition(ctx context.Context, userID int64, symbol, productType string) (*models.Position, error) {
	p := &models.Position{}
	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, symbol, exchange_segment, product_type, quantity, avg_price, realized_pnl, status, updated_at
		FROM mock_positions WHERE user_id = $1 AND symbol = $2 AND product_type = $3`,
		userID, symbol, productType,
	).Scan(&p.UserID, &p.Symbol, &p.ExchangeSeg, &p.ProductType, &p.Quantity, &p.AvgPrice, &p.RealizedPnl, &p.Status, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
