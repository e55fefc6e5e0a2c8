package execution

// trigger.go - trigger activation for SL-M/SL-L/TRIGGER/GTT orders
// (spec.md §4.4): such orders stay PENDING until the relevant side
// crosses the trigger price, at which point they behave as MARKET (SL-M,
// TRIGGER, GTT) or LIMIT (SL-L) for fill purposes.

import "dhancore/internal/models"

// IsActivated reports whether order's trigger condition has been met
// against the current snapshot: a BUY trigger fires once the ask has
// risen to or through the trigger price, a SELL trigger fires once the
// bid has fallen to or through it.
func IsActivated(order *models.Order, snap Snapshot) bool {
	if !order.IsTriggerBased() {
		return true
	}
	if order.Side == models.SideBuy {
		return snap.BestAsk > 0 && snap.BestAsk >= order.TriggerPrice
	}
	return snap.BestBid > 0 && snap.BestBid <= order.TriggerPrice
}

// EffectiveOrderType returns the order type to use for fill computation
// once a trigger-based order has activated: SL-L behaves as LIMIT (it
// carries its own limit price), everything else (SL-M, TRIGGER, GTT)
// behaves as MARKET.
func EffectiveOrderType(order *models.Order) string {
	if order.OrderType == models.OrderTypeSLL {
		return models.OrderTypeLimit
	}
	if order.IsTriggerBased() {
		return models.OrderTypeMarket
	}
	return order.OrderType
}
