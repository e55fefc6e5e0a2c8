package models

import "time"

// Tick is the normalized market-data event produced by the Live Feed Ingestor and
// consumed by the Option-Chain Cache and the Execution Engine's market state.
type Tick struct {
	Token      string       `json:"token"`
	Exchange   string       `json:"exchange"`
	Segment    string       `json:"segment"`
	Symbol     string       `json:"symbol"`
	Expiry     string       `json:"expiry,omitempty"`
	Strike     float64      `json:"strike,omitempty"`
	OptionType string       `json:"option_type,omitempty"`
	LTP        float64      `json:"ltp"`
	Bid        float64      `json:"bid,omitempty"`
	Ask        float64      `json:"ask,omitempty"`
	Depth      *MarketDepth `json:"depth,omitempty"`
	Timestamp  time.Time    `json:"timestamp"`
}

// IsOption reports whether the tick carries option metadata (strike + option type).
func (t *Tick) IsOption() bool {
	return t.OptionType == OptionTypeCall || t.OptionType == OptionTypePut
}
