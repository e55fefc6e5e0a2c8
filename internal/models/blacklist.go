package models

import "time"

// ExcludedUnderlying is an admin-curated exclusion that narrows the permitted
// universe (spec §4.1) below what the approved-universe table alone would allow —
// e.g. a underlying pulled from trading during a corporate action.
type ExcludedUnderlying struct {
	ID        int       `json:"id" db:"id"`
	Underlying string   `json:"underlying" db:"underlying"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
