package execution

// slippage.go - the closed-form slippage model (spec.md §4.4): effective
// slippage per unit ~ α·s + β·(q/max(top_qty,1))^γ, applied in the
// direction that disadvantages the order (BUY pays up, SELL gets hit
// down). MARKET orders always absorb it; LIMIT orders only once the book
// has already crossed their limit.

import (
	"math"

	"dhancore/internal/models"
)

// SlippageParams are the α/β/γ coefficients for one exchange segment.
type SlippageParams struct {
	Alpha float64
	Beta  float64
	Gamma float64
}

// PerUnit computes the effective slippage per unit for a fill against
// top-of-book spread s and requested quantity q at the given top_qty.
func (p SlippageParams) PerUnit(spread float64, qty, topQty int64) float64 {
	tq := topQty
	if tq < 1 {
		tq = 1
	}
	ratio := float64(qty) / float64(tq)
	return p.Alpha*spread + p.Beta*math.Pow(ratio, p.Gamma)
}

// sign returns +1 for BUY (price moves against the buyer, i.e. up) and -1
// for SELL (price moves down).
func sign(side string) float64 {
	if side == models.SideSell {
		return -1
	}
	return 1
}

// ApplySlippage returns the effective fill price for side at top-of-book
// price pTop, given spread, requested quantity and available top_qty.
func ApplySlippage(params SlippageParams, side string, pTop, spread float64, qty, topQty int64) float64 {
	perUnit := params.PerUnit(spread, qty, topQty)
	return pTop + sign(side)*perUnit
}

// LimitCrosses reports whether a LIMIT order's price already crosses the
// book: a BUY limit at or above best ask, or a SELL limit at or below
// best bid.
func LimitCrosses(side string, limitPrice float64, snap Snapshot) bool {
	if side == models.SideBuy {
		return limitPrice >= snap.BestAsk && snap.BestAsk > 0
	}
	return limitPrice <= snap.BestBid && snap.BestBid > 0
}

// TopOfBook returns the relevant top-of-book price and quantity for side:
// BUY lifts the ask, SELL hits the bid.
func TopOfBook(side string, snap Snapshot) (price float64, qty int64) {
	if side == models.SideBuy {
		return snap.BestAsk, snap.AskQty
	}
	return snap.BestBid, snap.BidQty
}

// Spread returns the ask-minus-bid spread, floored at zero.
func Spread(snap Snapshot) float64 {
	s := snap.BestAsk - snap.BestBid
	if s < 0 {
		return 0
	}
	return s
}
