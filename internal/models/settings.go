package models

import "time"

// AdminSettings holds the core's admin-controlled runtime toggles (spec §6
// "Admin: kill-switch toggle, market-hours override per exchange, forced depth
// injection for tests, margin recompute, force position exit").
type AdminSettings struct {
	ID                   int                  `json:"id" db:"id"`
	FeedKillSwitch       bool                 `json:"feed_kill_switch" db:"feed_kill_switch"`
	MarketHoursOverride  map[string]bool      `json:"market_hours_override" db:"market_hours_override"` // exchange -> forced-open
	MaxTargetsOverride   *int                 `json:"max_targets_override,omitempty" db:"max_targets_override"`
	NotificationPrefs    NotificationPreferences `json:"notification_prefs" db:"notification_prefs"`
	UpdatedAt            time.Time            `json:"updated_at" db:"updated_at"`
}

// NotificationPreferences toggles which admin-alert categories are dispatched.
type NotificationPreferences struct {
	FeedCooldown     bool `json:"feed_cooldown"`
	ChannelBlock     bool `json:"channel_block"`
	SynthesisStarted bool `json:"synthesis_started"`
	MarginExceeded   bool `json:"margin_exceeded"`
	InvariantFailure bool `json:"invariant_failure"`
}
