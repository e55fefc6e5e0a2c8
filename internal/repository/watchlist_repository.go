package repository

// watchlist_repository.go - persistence for the `watchlist` table (spec.md
// §6), implementing core.WatchlistService's storage side. Unique on
// (user_id, symbol, expiry).

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"dhancore/internal/models"
)

// ErrWatchlistEntryExists is returned when the (user_id, symbol, expiry)
// unique constraint is violated.
var ErrWatchlistEntryExists = errors.New("symbol already on watchlist")

// WatchlistRepository is the Data Access Layer for the watchlist table.
type WatchlistRepository struct {
	db *sql.DB
}

// NewWatchlistRepository builds a WatchlistRepository.
func NewWatchlistRepository(db *sql.DB) *WatchlistRepository {
	return &WatchlistRepository{db: db}
}

// Add inserts a watchlist entry, assigning AddedOrder as the next sequence
// number for the user.
func (r *WatchlistRepository) Add(ctx context.Context, entry *models.WatchlistEntry) error {
	query := `
		INSERT INTO watchlist (user_id, symbol, expiry, instrument_type, added_order)
		VALUES ($1, $2, $3, $4, COALESCE((SELECT MAX(added_order) + 1 FROM watchlist WHERE user_id = $1), 0))`

	_, err := r.db.ExecContext(ctx, query, entry.UserID, entry.Symbol, entry.Expiry, entry.InstrumentType)
	if err != nil && isUniqueViolation(err) {
		return ErrWatchlistEntryExists
	}
	return err
}

// Remove deletes a watchlist entry by (user_id, symbol, expiry).
func (r *WatchlistRepository) Remove(ctx context.Context, userID int, symbol, expiry string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM watchlist WHERE user_id = $1 AND symbol = $2 AND expiry = $3`,
		userID, symbol, expiry)
	return err
}

// List returns a user's watchlist ordered by insertion order.
func (r *WatchlistRepository) List(ctx context.Context, userID int) ([]*models.WatchlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, symbol, expiry, instrument_type, added_order
		 FROM watchlist WHERE user_id = $1 ORDER BY added_order`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.WatchlistEntry
	for rows.Next() {
		e := &models.WatchlistEntry{}
		if err := rows.Scan(&e.UserID, &e.Symbol, &e.Expiry, &e.InstrumentType, &e.AddedOrder); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// ListAllActive returns every watchlist row across all users, ordered by
// user then insertion order. Used to seed the desired-subscription set
// reconciled against the Subscription Fabric, which has no per-user concept
// of its own.
func (r *WatchlistRepository) ListAllActive(ctx context.Context) ([]*models.WatchlistEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id, symbol, expiry, instrument_type, added_order
		 FROM watchlist ORDER BY user_id, added_order`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.WatchlistEntry
	for rows.Next() {
		e := &models.WatchlistEntry{}
		if err := rows.Scan(&e.UserID, &e.Symbol, &e.Expiry, &e.InstrumentType, &e.AddedOrder); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "duplicate key") || strings.Contains(s, "23505") || strings.Contains(s, "UNIQUE constraint")
}
