package models

import "time"

// Subscription tiers.
const (
	TierA = "A" // user-driven, evictable
	TierB = "B" // always-on, protected
)

// Subscription represents one active or historical vendor token subscription.
type Subscription struct {
	Token        string     `json:"token" db:"token"`
	Symbol       string     `json:"symbol" db:"symbol"`
	Expiry       string     `json:"expiry,omitempty" db:"expiry"`
	Strike       float64    `json:"strike,omitempty" db:"strike"`
	OptionType   string     `json:"option_type,omitempty" db:"option_type"`
	Tier         string     `json:"tier" db:"tier"`
	WSID         int        `json:"ws_id" db:"ws_id"`
	SubscribedAt time.Time  `json:"subscribed_at" db:"subscribed_at"`
	Active       bool       `json:"active" db:"active"`
}

// SubscriptionLogEntry records a subscribe/unsubscribe diff pushed to the vendor feed,
// for replay/debugging of desired-vs-active drift.
type SubscriptionLogEntry struct {
	ID        int       `json:"id" db:"id"`
	Token     string    `json:"token" db:"token"`
	Action    string    `json:"action" db:"action"` // subscribe, unsubscribe
	Reason    string    `json:"reason,omitempty" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Subscribe/unsubscribe reject reasons (Subscription Fabric contract, spec §4.1).
const (
	ReasonNotAllowed     = "NOT_ALLOWED"
	ReasonCapacity       = "CAPACITY"
	ReasonSyntheticToken = "SYNTHETIC_TOKEN_REJECTED"
)

// ShardCapacity is the max tokens (K) per WebSocket shard (spec default K=5000).
const ShardCapacity = 5000

// MaxShards is the max number of shard connections (N, spec default N=5).
const MaxShards = 5
