package repository

// atm_cache_repository.go - persistence for the `atm_cache` table (spec.md
// §6), letting the Option-Chain Cache seed its ATM strike window on restart
// instead of waiting for the first underlying tick.

import (
	"context"
	"database/sql"
	"errors"

	"dhancore/internal/models"
)

// ATMCacheRepository is the Data Access Layer for the atm_cache table.
type ATMCacheRepository struct {
	db *sql.DB
}

// NewATMCacheRepository builds an ATMCacheRepository.
func NewATMCacheRepository(db *sql.DB) *ATMCacheRepository {
	return &ATMCacheRepository{db: db}
}

// Upsert records the current ATM strike for an (underlying, expiry) pair.
func (r *ATMCacheRepository) Upsert(ctx context.Context, entry *models.ATMCacheEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO atm_cache (underlying, expiry, atm, updated_at)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (underlying, expiry) DO UPDATE SET
			atm = EXCLUDED.atm, updated_at = EXCLUDED.updated_at`,
		entry.Underlying, entry.Expiry, entry.ATM, entry.UpdatedAt)
	return err
}

// Get returns the last-known ATM strike for an (underlying, expiry) pair, or
// nil if none has ever been recorded.
func (r *ATMCacheRepository) Get(ctx context.Context, underlying, expiry string) (*models.ATMCacheEntry, error) {
	e := &models.ATMCacheEntry{}
	err := r.db.QueryRowContext(ctx, `
		SELECT underlying, expiry, atm, updated_at FROM atm_cache
		WHERE underlying = $1 AND expiry = $2`, underlying, expiry,
	).Scan(&e.Underlying, &e.Expiry, &e.ATM, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ListAll returns every recorded ATM cache entry, used to seed the
// Option-Chain Cache's in-memory skeletons at process start.
func (r *ATMCacheRepository) ListAll(ctx context.Context) ([]*models.ATMCacheEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT underlying, expiry, atm, updated_at FROM atm_cache`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ATMCacheEntry
	for rows.Next() {
		e := &models.ATMCacheEntry{}
		if err := rows.Scan(&e.Underlying, &e.Expiry, &e.ATM, &e.UpdatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
