package repository

// subscription_repository.go - persistence for the Subscription Fabric's
// `subscriptions` and `subscription_log` tables (spec.md §6), implementing
// subscription.Repository.

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dhancore/internal/models"
)

// ErrSubscriptionNotFound is returned when a token has no subscription row.
var ErrSubscriptionNotFound = errors.New("subscription not found")

// SubscriptionRepository is the Data Access Layer for the subscriptions and
// subscription_log tables.
type SubscriptionRepository struct {
	db *sql.DB
}

// NewSubscriptionRepository builds a SubscriptionRepository.
func NewSubscriptionRepository(db *sql.DB) *SubscriptionRepository {
	return &SubscriptionRepository{db: db}
}

// Upsert inserts or updates a subscription row keyed by token.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	query := `
		INSERT INTO subscriptions (token, symbol, expiry, strike, option_type, tier, ws_id, subscribed_at, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (token) DO UPDATE SET
			symbol = EXCLUDED.symbol, expiry = EXCLUDED.expiry, strike = EXCLUDED.strike,
			option_type = EXCLUDED.option_type, tier = EXCLUDED.tier, ws_id = EXCLUDED.ws_id,
			subscribed_at = EXCLUDED.subscribed_at, active = EXCLUDED.active`

	_, err := r.db.ExecContext(ctx, query,
		sub.Token, sub.Symbol, sub.Expiry, sub.Strike, sub.OptionType,
		sub.Tier, sub.WSID, sub.SubscribedAt, sub.Active,
	)
	return err
}

// Delete removes a subscription row by token.
func (r *SubscriptionRepository) Delete(ctx context.Context, token string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE token = $1`, token)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

// ListActive returns every subscription row marked active, for fabric
// rehydration after a restart.
func (r *SubscriptionRepository) ListActive(ctx context.Context) ([]*models.Subscription, error) {
	query := `
		SELECT token, symbol, expiry, strike, option_type, tier, ws_id, subscribed_at, active
		FROM subscriptions
		WHERE active = true
		ORDER BY subscribed_at`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*models.Subscription
	for rows.Next() {
		sub := &models.Subscription{}
		if err := rows.Scan(&sub.Token, &sub.Symbol, &sub.Expiry, &sub.Strike,
			&sub.OptionType, &sub.Tier, &sub.WSID, &sub.SubscribedAt, &sub.Active); err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return subs, nil
}

// AppendLog inserts one subscribe/unsubscribe diff record.
func (r *SubscriptionRepository) AppendLog(ctx context.Context, entry *models.SubscriptionLogEntry) error {
	query := `
		INSERT INTO subscription_log (token, action, reason, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return r.db.QueryRowContext(ctx, query, entry.Token, entry.Action, entry.Reason, entry.CreatedAt).Scan(&entry.ID)
}
