package optionchain

// rebuild.go - ATM-shift window rebuild (spec.md §4.3): preserve legs for
// overlapping strikes, create zero-priced legs for new strikes, drop
// vanishing strikes, re-resolve tokens, and push the diff to the
// Subscription Fabric via WindowPublisher. Serialized by the caller
// holding underlyingState.mu, which is what gives "at most one rebuild
// per ATM shift" its guarantee: a second concurrent tick for the same
// underlying blocks on the same mutex and, once unblocked, sees the
// already-updated ATM and takes the no-rebuild branch in
// IngestUnderlyingTick.

import (
	"time"

	"dhancore/internal/metrics"
	"dhancore/internal/models"
)

func (c *Cache) rebuildWindowLocked(st *underlyingState, underlying, expiry string, skel *models.OptionChainSkeleton, newATM float64) {
	step := skel.StrikeStep
	if step <= 0 {
		step = 1
	}
	half := c.strikeWindowFor(underlying, step)

	wantStrikes := make(map[float64]bool, 2*half+1)
	for i := -half; i <= half; i++ {
		wantStrikes[newATM+float64(i)*step] = true
	}

	var added, removed []WindowLeg

	newStrikes := make(map[float64]*models.StrikeData, len(wantStrikes))
	for strike := range wantStrikes {
		if existing, ok := skel.Strikes[strike]; ok {
			newStrikes[strike] = existing
			continue
		}
		row := &models.StrikeData{Strike: strike}
		row.CE = c.newLeg(underlying, expiry, strike, models.OptionTypeCall)
		row.PE = c.newLeg(underlying, expiry, strike, models.OptionTypePut)
		newStrikes[strike] = row

		added = append(added,
			WindowLeg{Token: row.CE.Token, Underlying: underlying, Expiry: expiry, Strike: strike, OptionType: models.OptionTypeCall},
			WindowLeg{Token: row.PE.Token, Underlying: underlying, Expiry: expiry, Strike: strike, OptionType: models.OptionTypePut},
		)
	}

	for strike, row := range skel.Strikes {
		if wantStrikes[strike] {
			continue
		}
		if row.CE != nil {
			removed = append(removed, WindowLeg{Token: row.CE.Token, Underlying: underlying, Expiry: expiry, Strike: strike, OptionType: models.OptionTypeCall})
		}
		if row.PE != nil {
			removed = append(removed, WindowLeg{Token: row.PE.Token, Underlying: underlying, Expiry: expiry, Strike: strike, OptionType: models.OptionTypePut})
		}
	}

	skel.Strikes = newStrikes
	skel.ATM = newATM
	skel.LastUpdated = time.Now()
	metrics.RebuildsTotal.WithLabelValues(underlying).Inc()

	if c.publisher != nil && (len(added) > 0 || len(removed) > 0) {
		c.publisher.PublishWindowDiff(underlying, expiry, added, removed)
	}
}

func (c *Cache) newLeg(underlying, expiry string, strike float64, optionType string) *models.OptionLeg {
	token := models.SyntheticToken(optionType, underlying, strike, expiry)
	if c.resolver != nil {
		if resolved, ok := c.resolver.ResolveOptionToken(underlying, expiry, strike, optionType); ok {
			token = resolved
		}
	}
	return &models.OptionLeg{Token: token}
}
