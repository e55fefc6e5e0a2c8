package repository

// notification_repository.go - persistence for the `notifications` table
// (spec.md §6): admin alerts the core produces (feed cooldown, vendor policy
// block, synthesis start, invariant failure, margin shortfall). Dispatch
// itself is out of core scope; this is an append-only audit log.

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/lib/pq"

	"dhancore/internal/models"
)

// NotificationRepository is the Data Access Layer for the notifications table.
type NotificationRepository struct {
	db *sql.DB
}

// NewNotificationRepository builds a NotificationRepository.
func NewNotificationRepository(db *sql.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create records a new notification.
func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	meta, err := json.Marshal(n.Meta)
	if err != nil {
		return err
	}

	return r.db.QueryRowContext(ctx, `
		INSERT INTO notifications (timestamp, type, severity, underlying, message, meta)
		VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		n.Timestamp, n.Type, n.Severity, n.Underlying, n.Message, meta,
	).Scan(&n.ID)
}

// GetRecent returns the most recent N notifications, newest first.
func (r *NotificationRepository) GetRecent(ctx context.Context, limit int) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, type, severity, underlying, message, meta
		FROM notifications ORDER BY timestamp DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// GetByTypes returns notifications of the given types, newest first.
func (r *NotificationRepository) GetByTypes(ctx context.Context, types []string) ([]*models.Notification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, timestamp, type, severity, underlying, message, meta
		FROM notifications WHERE type = ANY($1) ORDER BY timestamp DESC`, pq.Array(types))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotifications(rows)
}

// DeleteAll clears the notification log.
func (r *NotificationRepository) DeleteAll(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications`)
	return err
}

// DeleteOlderThan removes notifications older than the cutoff, for
// autocleanup of the log.
func (r *NotificationRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM notifications WHERE timestamp < $1`, cutoff)
	return err
}

func scanNotifications(rows *sql.Rows) ([]*models.Notification, error) {
	var notifications []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		var meta []byte
		if err := rows.Scan(&n.ID, &n.Timestamp, &n.Type, &n.Severity, &n.Underlying, &n.Message, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			if err := json.Unmarshal(meta, &n.Meta); err != nil {
				return nil, err
			}
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}
