package execution

// pretrade.go - pre-trade rejection checks (spec.md §4.4). Margin
// shortfall is deliberately not in this rejection set: it is folded back
// onto the order as a warning rather than a rejection (the documented
// MARGIN_EXCEEDED compatibility quirk), handled separately in engine.go.

import (
	"dhancore/internal/core"
	"dhancore/internal/models"
)

// CheckPreTrade validates account/segment/trigger/price rules. Returns a
// rejection reason string (models.Reason*) and a wrapped core.Err*
// sentinel, or ("", nil) when the order may proceed.
func CheckPreTrade(acct *models.UserAccount, order *models.Order) (string, error) {
	if acct == nil || acct.Blocked {
		return models.ReasonUserBlocked, core.ErrUserBlocked
	}

	if !segmentAllowed(acct.AllowedSegments, order.ExchangeSegment) {
		return models.ReasonSegmentRestricted, core.ErrSegmentRestricted
	}

	if order.IsTriggerBased() && order.TriggerPrice <= 0 {
		return models.ReasonInvalidTrigger, core.ErrInvalidTrigger
	}

	if order.OrderType == models.OrderTypeLimit && order.Price <= 0 {
		return models.ReasonInvalidTrigger, core.ErrInvalidTrigger
	}

	if order.Quantity <= 0 {
		return models.ReasonInvalidTrigger, core.ErrInvalidTrigger
	}

	return "", nil
}

func segmentAllowed(allowed []string, segment string) bool {
	if len(allowed) == 0 {
		return true // no explicit restriction configured
	}
	for _, s := range allowed {
		if s == segment {
			return true
		}
	}
	return false
}

// CheckMargin reports whether the order's estimated required margin
// exceeds the account's available margin. Per spec.md §4.4 this is never
// a rejection: callers attach a MARGIN_EXCEEDED warning and proceed.
func CheckMargin(margin *models.MarginAccount, requiredMargin float64) bool {
	if margin == nil {
		return false
	}
	return requiredMargin > margin.Available
}

// RequiredMargin estimates notional exposure, divided by the account's
// margin multiplier for MIS (intraday) orders per spec.md §4.4's
// apply-fill formula (`used += notional/multiplier_if_MIS`), inverted
// here to a pre-trade estimate (spec.md §8 edge case: multiplier=5,
// MIS 100@100 -> used += 100*100/5 = 2000 for a full fill).
func RequiredMargin(price float64, quantity int64, productType string, marginMultiplier float64) float64 {
	notional := price * float64(quantity)
	if productType == models.ProductMIS && marginMultiplier > 0 {
		return notional / marginMultiplier
	}
	return notional
}
