package models

import "time"

// FeedDebugSnapshot is the "live-feed debug snapshot" surface named in spec §6:
// desired vs. active tokens, and per-symbol last-tick age, used to diagnose
// subscription drift without touching the vendor feed.
type FeedDebugSnapshot struct {
	State          string            `json:"state"` // IDLE, CONNECTING, STREAMING, BACKOFF, COOLDOWN
	DesiredCount   int               `json:"desired_count"`
	ActiveCount    int               `json:"active_count"`
	ShardCounts    map[int]int       `json:"shard_counts"`
	LastTickAge    map[string]time.Duration `json:"last_tick_age_ms"`
	RetryCount     int               `json:"retry_count"`
	CooldownUntil  *time.Time        `json:"cooldown_until,omitempty"`
}

// CacheStats summarizes Option-Chain Cache health across all tracked underlyings.
type CacheStats struct {
	Underlyings       int       `json:"underlyings"`
	Skeletons         int       `json:"skeletons"`
	Rebuilds          int64     `json:"rebuilds_total"`
	SynthesizedLegs   int64     `json:"synthesized_legs_total"`
	LastRebuildAt     time.Time `json:"last_rebuild_at,omitempty"`
}
