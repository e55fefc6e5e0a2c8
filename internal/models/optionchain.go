package models

import "time"

// OptionLeg holds one side (CE or PE) of a strike's quote. All numeric fields are
// nullable in spirit; zero values mean "not yet populated" and are distinguished from
// a genuine zero LTP by callers checking UpdatedAt; HasLTP treats a zero LTP as absent.
type OptionLeg struct {
	Token      string             `json:"token"`
	LTP        float64            `json:"ltp"`
	Bid        float64            `json:"bid"`
	Ask        float64            `json:"ask"`
	OI         int64              `json:"oi"`
	Volume     int64              `json:"volume"`
	IV         float64            `json:"iv,omitempty"`
	Depth      *MarketDepth       `json:"depth,omitempty"`
	Synthetic  bool               `json:"synthetic"` // true if LTP was interpolated, not ticked
	UpdatedAt  time.Time          `json:"updated_at"`
}

// HasLTP reports whether the leg carries a usable (positive) last traded price.
func (l *OptionLeg) HasLTP() bool {
	return l != nil && l.LTP > 0
}

// SyntheticToken builds the fallback key used when the CSV option-token map has not
// yet resolved a vendor security_id for this leg: "CE|PE_UNDERLYING_STRIKE_EXPIRY".
func SyntheticToken(optionType, underlying string, strike float64, expiry string) string {
	return optionType + "_" + underlying + "_" + formatStrike(strike) + "_" + expiry
}

func formatStrike(strike float64) string {
	if strike == float64(int64(strike)) {
		return itoa(int64(strike))
	}
	return ftoa(strike)
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func ftoa(v float64) string {
	// strike prices carry at most 2 decimal places in practice (e.g. 24900.50)
	whole := int64(v)
	frac := int64((v-float64(whole))*100 + 0.5)
	if frac < 0 {
		frac = -frac
	}
	return itoa(whole) + "." + itoa(frac)
}

// StrikeData is one row of an option-chain skeleton: the CE and PE legs at a strike.
type StrikeData struct {
	Strike float64    `json:"strike"`
	CE     *OptionLeg `json:"CE,omitempty"`
	PE     *OptionLeg `json:"PE,omitempty"`
}

// OptionChainSkeleton is the authoritative cache entry for one (underlying, expiry) pair.
type OptionChainSkeleton struct {
	Underlying  string                 `json:"underlying"`
	Expiry      string                 `json:"expiry"`
	LotSize     int                    `json:"lot_size"`
	StrikeStep  float64                `json:"strike_step"`
	ATM         float64                `json:"atm"`
	Strikes     map[float64]*StrikeData `json:"strikes"`
	LastUpdated time.Time              `json:"last_updated"`
}

// Clone deep-copies the skeleton so it can be mutated and atomically swapped in
// without readers observing a half-built window (spec §9 re-architecture guidance:
// split the hot read path from the write/rebuild path).
func (s *OptionChainSkeleton) Clone() *OptionChainSkeleton {
	clone := &OptionChainSkeleton{
		Underlying:  s.Underlying,
		Expiry:      s.Expiry,
		LotSize:     s.LotSize,
		StrikeStep:  s.StrikeStep,
		ATM:         s.ATM,
		Strikes:     make(map[float64]*StrikeData, len(s.Strikes)),
		LastUpdated: s.LastUpdated,
	}
	for k, v := range s.Strikes {
		cp := *v
		if v.CE != nil {
			ce := *v.CE
			cp.CE = &ce
		}
		if v.PE != nil {
			pe := *v.PE
			cp.PE = &pe
		}
		clone.Strikes[k] = &cp
	}
	return clone
}

// ATMCacheEntry persists the last-known ATM strike per (underlying, expiry)
// so the Option-Chain Cache can seed its strike window immediately on
// restart instead of waiting for the first underlying tick.
type ATMCacheEntry struct {
	Underlying string    `json:"underlying" db:"underlying"`
	Expiry     string    `json:"expiry" db:"expiry"`
	ATM        float64   `json:"atm" db:"atm"`
	UpdatedAt  time.Time `json:"updated_at" db:"updated_at"`
}

// MarketDepth is normalized 5-level order book depth.
type MarketDepth struct {
	Bids []PriceLevel `json:"bids"`
	Asks []PriceLevel `json:"asks"`
}

// PriceLevel is one level of market depth.
type PriceLevel struct {
	Price float64 `json:"price"`
	Qty   int64   `json:"qty"`
}

// BestBidAsk returns best bid/ask and their quantities from depth. ok is false when
// depth is nil or either side is empty; there is no LTP fallback here.
func (d *MarketDepth) BestBidAsk() (bid, ask float64, bidQty, askQty int64, ok bool) {
	if d == nil || len(d.Bids) == 0 || len(d.Asks) == 0 {
		return 0, 0, 0, 0, false
	}
	return d.Bids[0].Price, d.Asks[0].Price, d.Bids[0].Qty, d.Asks[0].Qty, true
}
