package repository

// blacklist_repository.go - persistence for the admin-curated exclusion list
// that narrows the permitted universe (spec.md §4.1) below what the
// approved-universe table alone would allow.

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"dhancore/internal/models"
)

// Repository errors for excluded underlyings.
var (
	ErrExcludedUnderlyingNotFound = errors.New("excluded underlying not found")
	ErrExcludedUnderlyingExists   = errors.New("underlying already excluded")
)

// ExcludedUnderlyingRepository is the Data Access Layer for admin-curated
// universe exclusions.
type ExcludedUnderlyingRepository struct {
	db *sql.DB
}

// NewExcludedUnderlyingRepository builds an ExcludedUnderlyingRepository.
func NewExcludedUnderlyingRepository(db *sql.DB) *ExcludedUnderlyingRepository {
	return &ExcludedUnderlyingRepository{db: db}
}

// Create adds an underlying to the exclusion list.
func (r *ExcludedUnderlyingRepository) Create(ctx context.Context, entry *models.ExcludedUnderlying) error {
	entry.CreatedAt = time.Now()

	err := r.db.QueryRowContext(ctx, `
		INSERT INTO excluded_underlyings (underlying, reason, created_at)
		VALUES ($1, $2, $3)
		RETURNING id`,
		strings.ToUpper(entry.Underlying), entry.Reason, entry.CreatedAt,
	).Scan(&entry.ID)

	if err != nil {
		if isUniqueViolation(err) {
			return ErrExcludedUnderlyingExists
		}
		return err
	}
	return nil
}

// GetAll returns the full exclusion list, most recently added first.
func (r *ExcludedUnderlyingRepository) GetAll(ctx context.Context) ([]*models.ExcludedUnderlying, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, underlying, reason, created_at
		FROM excluded_underlyings ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*models.ExcludedUnderlying
	for rows.Next() {
		e := &models.ExcludedUnderlying{}
		if err := rows.Scan(&e.ID, &e.Underlying, &e.Reason, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IsExcluded reports whether an underlying is currently on the exclusion list.
func (r *ExcludedUnderlyingRepository) IsExcluded(ctx context.Context, underlying string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM excluded_underlyings WHERE underlying = $1)`,
		strings.ToUpper(underlying),
	).Scan(&exists)
	return exists, err
}

// Delete removes an underlying from the exclusion list by ID.
func (r *ExcludedUnderlyingRepository) Delete(ctx context.Context, id int) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM excluded_underlyings WHERE id = $1`, id)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrExcludedUnderlyingNotFound
	}
	return nil
}
