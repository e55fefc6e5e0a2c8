package models

import "time"

// MarginAccount tracks available/used margin for one user. Invariant: Available >= 0;
// Available = Wallet*Multiplier - Used after any settlement (spec §3).
type MarginAccount struct {
	UserID    int64     `json:"user_id" db:"user_id"`
	Available float64   `json:"available" db:"available_margin"`
	Used      float64   `json:"used" db:"used_margin"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// UserAccount is the minimal wallet/brokerage-plan context the Execution Engine reads
// when settling a fill. The account's RBAC/auth fields are out of core scope (spec §1);
// this carries only what apply-fill needs.
type UserAccount struct {
	ID              int64   `json:"id" db:"id"`
	WalletBalance   float64 `json:"wallet_balance" db:"wallet_balance"`
	MarginMultiplier float64 `json:"margin_multiplier" db:"margin_multiplier"`
	BrokeragePlanID *int64  `json:"brokerage_plan_id,omitempty" db:"brokerage_plan_id"`
	Blocked         bool    `json:"blocked" db:"blocked"`
	AllowedSegments []string `json:"allowed_segments,omitempty" db:"-"`
}

// BrokeragePlan defines flat + percent brokerage, capped at MaxFee.
type BrokeragePlan struct {
	ID         int64   `json:"id" db:"id"`
	Name       string  `json:"name" db:"name"`
	FlatFee    float64 `json:"flat_fee" db:"flat_fee"`
	PercentFee float64 `json:"percent_fee" db:"percent_fee"`
	MaxFee     float64 `json:"max_fee" db:"max_fee"`
}

// Brokerage computes the fee for a turnover under this plan: flat + percent, capped.
func (p *BrokeragePlan) Brokerage(turnover float64) float64 {
	fee := p.FlatFee + turnover*p.PercentFee
	if p.MaxFee > 0 && fee > p.MaxFee {
		fee = p.MaxFee
	}
	return fee
}

// DhanCredentials holds vendor API credentials, encrypted at rest via pkg/crypto.
type DhanCredentials struct {
	UserID             int64  `json:"user_id" db:"user_id"`
	ClientID           string `json:"client_id" db:"client_id"`
	EncryptedAccessToken string `json:"-" db:"access_token_enc"`
	AuthType           string `json:"auth_type" db:"auth_type"`
}
