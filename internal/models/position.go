package models

import "time"

// Position status — OPEN iff quantity != 0 (spec §3 invariant).
const (
	PositionOpen   = "OPEN"
	PositionClosed = "CLOSED"
)

// Position is a per-user net holding in one (symbol, product_type). Quantity is
// signed: positive is long, negative is short. Uniqueness on (UserID, Symbol,
// ProductType).
type Position struct {
	UserID      int64     `json:"user_id" db:"user_id"`
	Symbol      string    `json:"symbol" db:"symbol"`
	ExchangeSeg string    `json:"exchange_segment" db:"exchange_segment"`
	ProductType string    `json:"product_type" db:"product_type"`
	Quantity    int64     `json:"quantity" db:"quantity"`
	AvgPrice    float64   `json:"avg_price" db:"avg_price"`
	RealizedPnl float64   `json:"realized_pnl" db:"realized_pnl"`
	Status      string    `json:"status" db:"status"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// IsOpen reports the invariant status == OPEN <=> quantity != 0.
func (p *Position) IsOpen() bool {
	return p.Quantity != 0
}

// ApplyFill folds a signed fill quantity into the position, returning the realized
// PnL delta (zero unless the fill closes or flips direction). Mirrors the
// same-direction-averaging / opposite-direction-realization logic of the original
// execution simulator's _apply_fill.
func (p *Position) ApplyFill(fillPrice float64, signedQty int64) (realizedDelta float64) {
	isClosing := (p.Quantity > 0 && signedQty < 0) || (p.Quantity < 0 && signedQty > 0)
	newQty := p.Quantity + signedQty

	if isClosing {
		closing := minAbs(p.Quantity, signedQty)
		pnl := (fillPrice - p.AvgPrice) * float64(closing)
		if p.Quantity < 0 {
			pnl = -pnl
		}
		p.RealizedPnl += pnl
		p.Quantity = newQty
		if p.Quantity == 0 {
			p.Status = PositionClosed
		} else {
			// direction flipped: remaining quantity re-prices at fill price
			p.AvgPrice = fillPrice
			p.Status = PositionOpen
		}
		return pnl
	}

	if newQty != 0 {
		p.AvgPrice = ((p.AvgPrice * float64(p.Quantity)) + (fillPrice * float64(signedQty))) / float64(newQty)
	}
	p.Quantity = newQty
	p.Status = PositionOpen
	return 0
}

func minAbs(a, b int64) int64 {
	abs := func(v int64) int64 {
		if v < 0 {
			return -v
		}
		return v
	}
	aa, ab := abs(a), abs(b)
	if aa < ab {
		return aa
	}
	return ab
}
