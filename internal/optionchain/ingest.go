package optionchain

// ingest.go - the live ingest path: option-scoped ticks update a leg in
// place, underlying-scoped ticks drive ATM tracking and window rebuilds
// (spec.md §4.3 "Ingest path" / "ATM tracking and window rebuild").

import (
	"math"
	"time"

	"dhancore/internal/models"
)

// IngestOptionTick updates the CE/PE leg located by (underlying, expiry,
// strike, option_type); if the strike/expiry is not already in the
// cached window, the tick is dropped (spec.md: "Locate ...; if absent,
// drop").
func (c *Cache) IngestOptionTick(tick *models.Tick) {
	if tick == nil || !tick.IsOption() {
		return
	}

	underlying := underlyingOf(tick)
	st := c.stateFor(underlying)
	st.mu.Lock()
	defer st.mu.Unlock()

	skel, ok := st.expiries[tick.Expiry]
	if !ok {
		return
	}
	row, ok := skel.Strikes[tick.Strike]
	if !ok {
		return
	}

	leg := row.CE
	if tick.OptionType == models.OptionTypePut {
		leg = row.PE
	}
	if leg == nil {
		leg = &models.OptionLeg{}
		if tick.OptionType == models.OptionTypePut {
			row.PE = leg
		} else {
			row.CE = leg
		}
	}

	leg.LTP = tick.LTP
	leg.Bid = tick.Bid
	leg.Ask = tick.Ask
	leg.Depth = tick.Depth
	leg.Synthetic = false
	leg.UpdatedAt = tick.Timestamp
	skel.LastUpdated = tick.Timestamp

	c.trySynthesizeLocked(st, skel, tick.OptionType)
}

// underlyingOf extracts the bare underlying from a tick's symbol; option
// ticks carry the underlying as the leading component.
func underlyingOf(tick *models.Tick) string {
	s := tick.Symbol
	for i := 0; i < len(s); i++ {
		if s[i] == '-' || s[i] == ' ' {
			return s[:i]
		}
	}
	return s
}

// IngestUnderlyingTick processes an index/equity/future tick: recomputes
// ATM and triggers a window rebuild when it shifts enough or strays
// outside the current window (spec.md §4.3 ATM tracking).
func (c *Cache) IngestUnderlyingTick(underlying, exchange string, ltp float64, ts time.Time) {
	st := c.stateFor(underlying)

	st.mu.Lock()
	defer st.mu.Unlock()

	step := 1.0
	for _, skel := range st.expiries {
		if skel.StrikeStep > 0 {
			step = skel.StrikeStep
		}
		break
	}

	newATM := RoundToStep(ltp, step)

	shouldRebuild := false
	if math.Abs(newATM-st.atm) >= step {
		shouldRebuild = true
	} else {
		half := c.strikeWindowFor(underlying, step)
		for _, skel := range st.expiries {
			lo := skel.ATM - float64(half)*step
			hi := skel.ATM + float64(half)*step
			if newATM < lo || newATM > hi {
				shouldRebuild = true
			}
			break
		}
	}

	if !shouldRebuild {
		return
	}
	st.atm = newATM

	for expiry, skel := range st.expiries {
		c.rebuildWindowLocked(st, underlying, expiry, skel, newATM)
	}
}
