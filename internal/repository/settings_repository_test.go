package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"dhancore/internal/models"
)

func TestNewSettingsRepository(t *testing.T) {
	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewSettingsRepository(db)
	if repo == nil {
		t.Fatal("NewSettingsRepository returned nil")
	}
}

func TestSettingsRepositoryGet(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"id", "feed_kill_switch", "market_hours_override", "max_targets_override", "notification_prefs", "updated_at",
	}).AddRow(1, false, []byte(`{"NSE":true}`), nil, []byte(`{"feed_cooldown":true}`), now)

	mock.ExpectQuery("SELECT (.+) FROM admin_settings WHERE id").
		WithArgs(settingsRowID).
		WillReturnRows(rows)

	repo := NewSettingsRepository(db)
	settings, err := repo.Get(context.Background())
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if settings.FeedKillSwitch {
		t.Error("expected FeedKillSwitch = false")
	}
	if !settings.MarketHoursOverride["NSE"] {
		t.Errorf("expected MarketHoursOverride[NSE] = true, got %+v", settings.MarketHoursOverride)
	}
	if !settings.NotificationPrefs.FeedCooldown {
		t.Error("expected NotificationPrefs.FeedCooldown = true")
	}
}

func TestSettingsRepositoryUpdate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewSettingsRepository(db)
	settings := &models.AdminSettings{
		FeedKillSwitch:      true,
		MarketHoursOverride: map[string]bool{"NSE": true},
		NotificationPrefs:   models.NotificationPreferences{MarginExceeded: true},
	}

	mock.ExpectExec("INSERT INTO admin_settings").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), settings); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
}

func TestSettingsRepositoryUpdateNotificationPrefs(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	repo := NewSettingsRepository(db)
	mock.ExpectExec("UPDATE admin_settings SET notification_prefs").WillReturnResult(sqlmock.NewResult(0, 1))

	prefs := models.NotificationPreferences{ChannelBlock: true}
	if err := repo.UpdateNotificationPrefs(context.Background(), prefs); err != nil {
		t.Fatalf("UpdateNotificationPrefs() error = %v", err)
	}
}
