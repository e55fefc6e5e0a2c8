package repository

// settings_repository.go - persistence for the single-row `admin_settings`
// table backing spec.md §6's admin controls: feed kill-switch, per-exchange
// market-hours override, max-targets override, notification preferences.

import (
	"context"
	"database/sql"
	"encoding/json"

	"dhancore/internal/models"
)

const settingsRowID = 1

// SettingsRepository is the Data Access Layer for admin_settings.
type SettingsRepository struct {
	db *sql.DB
}

// NewSettingsRepository builds a SettingsRepository.
func NewSettingsRepository(db *sql.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get returns the single admin settings row, seeding defaults on first read.
func (r *SettingsRepository) Get(ctx context.Context) (*models.AdminSettings, error) {
	s := &models.AdminSettings{}
	var hoursJSON, prefsJSON []byte

	err := r.db.QueryRowContext(ctx, `
		SELECT id, feed_kill_switch, market_hours_override, max_targets_override, notification_prefs, updated_at
		FROM admin_settings WHERE id = $1`, settingsRowID,
	).Scan(&s.ID, &s.FeedKillSwitch, &hoursJSON, &s.MaxTargetsOverride, &prefsJSON, &s.UpdatedAt)

	if err == sql.ErrNoRows {
		return r.seedDefaults(ctx)
	}
	if err != nil {
		return nil, err
	}
	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &s.MarketHoursOverride); err != nil {
			return nil, err
		}
	}
	if len(prefsJSON) > 0 {
		if err := json.Unmarshal(prefsJSON, &s.NotificationPrefs); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (r *SettingsRepository) seedDefaults(ctx context.Context) (*models.AdminSettings, error) {
	s := &models.AdminSettings{ID: settingsRowID}
	if err := r.Update(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Update persists the full settings row (upsert on the fixed row id).
func (r *SettingsRepository) Update(ctx context.Context, s *models.AdminSettings) error {
	hoursJSON, err := json.Marshal(s.MarketHoursOverride)
	if err != nil {
		return err
	}
	prefsJSON, err := json.Marshal(s.NotificationPrefs)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO admin_settings (id, feed_kill_switch, market_hours_override, max_targets_override, notification_prefs, updated_at)
		VALUES ($1,$2,$3,$4,$5,NOW())
		ON CONFLICT (id) DO UPDATE SET
			feed_kill_switch = EXCLUDED.feed_kill_switch,
			market_hours_override = EXCLUDED.market_hours_override,
			max_targets_override = EXCLUDED.max_targets_override,
			notification_prefs = EXCLUDED.notification_prefs,
			updated_at = EXCLUDED.updated_at`,
		settingsRowID, s.FeedKillSwitch, hoursJSON, s.MaxTargetsOverride, prefsJSON)
	return err
}

// UpdateNotificationPrefs patches only the notification preferences.
func (r *SettingsRepository) UpdateNotificationPrefs(ctx context.Context, prefs models.NotificationPreferences) error {
	prefsJSON, err := json.Marshal(prefs)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`UPDATE admin_settings SET notification_prefs = $1, updated_at = NOW() WHERE id = $2`,
		prefsJSON, settingsRowID)
	return err
}
