package optionchain

// synthesis.go - price synthesis for strikes whose leg still lacks a
// positive LTP (spec.md §4.3): interpolate linearly between the two
// nearest strikes with positive LTPs on the same side, clamped at the
// edges, gated to run at most once every 5s per (underlying, expiry,
// option_type), with one admin alert the first time it happens for a
// given (underlying, expiry).

import (
	"sort"
	"time"

	"dhancore/internal/metrics"
	"dhancore/internal/models"
)

const synthesisInterval = 5 * time.Second

// trySynthesizeLocked runs synthesis for side (CE/PE) of skel if the
// per-(expiry,side) gate has elapsed. Caller must hold st.mu.
func (c *Cache) trySynthesizeLocked(st *underlyingState, skel *models.OptionChainSkeleton, optionType string) {
	key := skel.Expiry + "|" + optionType
	last, seen := st.lastSynthesisAt[key]
	if seen && time.Since(last) < synthesisInterval {
		return
	}
	st.lastSynthesisAt[key] = time.Now()

	synthesizedAny := synthesizeSide(skel, optionType)
	if !synthesizedAny {
		return
	}

	if !st.synthesisAlerted[skel.Expiry] {
		st.synthesisAlerted[skel.Expiry] = true
		if c.alert != nil {
			c.alert.Alert(models.NotificationTypeSynthesisStarted,
				"price synthesis started for "+skel.Underlying+" "+skel.Expiry)
		}
	}
}

// synthesizeSide interpolates missing LTPs for one side across skel's
// strikes, returning whether anything was synthesized.
func synthesizeSide(skel *models.OptionChainSkeleton, optionType string) bool {
	strikes := make([]float64, 0, len(skel.Strikes))
	for k := range skel.Strikes {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	type point struct {
		strike float64
		ltp    float64
	}
	var known []point
	for _, k := range strikes {
		row := skel.Strikes[k]
		leg := legFor(row, optionType)
		if leg.HasLTP() && !leg.Synthetic {
			known = append(known, point{k, leg.LTP})
		}
	}
	if len(known) < 2 {
		return false
	}

	synthesized := false
	for _, k := range strikes {
		row := skel.Strikes[k]
		leg := legFor(row, optionType)
		if leg.HasLTP() {
			continue
		}

		// Find the bracketing known points.
		var lo, hi *point
		for idx := range known {
			if known[idx].strike <= k {
				lo = &known[idx]
			}
			if known[idx].strike >= k && hi == nil {
				hi = &known[idx]
			}
		}

		var value float64
		switch {
		case lo == nil && hi != nil:
			value = hi.ltp
		case hi == nil && lo != nil:
			value = lo.ltp
		case lo != nil && hi != nil && lo.strike == hi.strike:
			value = lo.ltp
		case lo != nil && hi != nil:
			frac := (k - lo.strike) / (hi.strike - lo.strike)
			value = lo.ltp + frac*(hi.ltp-lo.ltp)
		default:
			continue
		}

		setLegLTP(row, optionType, value)
		metrics.SynthesizedPricesTotal.WithLabelValues(skel.Underlying, optionType).Inc()
		synthesized = true
	}
	return synthesized
}

func legFor(row *models.StrikeData, optionType string) *models.OptionLeg {
	if optionType == models.OptionTypePut {
		if row.PE == nil {
			row.PE = &models.OptionLeg{}
		}
		return row.PE
	}
	if row.CE == nil {
		row.CE = &models.OptionLeg{}
	}
	return row.CE
}

func setLegLTP(row *models.StrikeData, optionType string, value float64) {
	leg := legFor(row, optionType)
	leg.LTP = value
	leg.Synthetic = true
	leg.UpdatedAt = time.Now()
}
