package models

import "time"

// Ledger entry kinds.
const (
	LedgerPayin    = "PAYIN"
	LedgerPayout   = "PAYOUT"
	LedgerTradePnl = "TRADE_PNL"
	LedgerAdjust   = "ADJUST"
)

// LedgerEntry is an append-only wallet-balance movement. Running balance for a user
// equals initial balance + sum(credit-debit) up to any prefix (spec §8 invariant).
type LedgerEntry struct {
	ID             int64     `json:"id" db:"id"`
	UserID         int64     `json:"user_id" db:"user_id"`
	Kind           string    `json:"kind" db:"entry_type"`
	Credit         float64   `json:"credit" db:"credit"`
	Debit          float64   `json:"debit" db:"debit"`
	RunningBalance float64   `json:"running_balance" db:"balance"`
	Remarks        string    `json:"remarks,omitempty" db:"remarks"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
