package execution

// snapshot.go - the pricing snapshot oracle (spec.md §4.4): resolve a
// pseudo-order-book top for (symbol, exchange_segment) via, in order,
// cached market depth, an option-chain leg, and finally last LTP with zero
// spread.

import (
	"strconv"
	"strings"
	"time"

	"dhancore/internal/core"
	"dhancore/internal/models"
)

// Snapshot is the resolved pseudo-order-book top for one instrument.
type Snapshot struct {
	BestBid    float64
	BestAsk    float64
	BidQty     int64
	AskQty     int64
	LastUpdate time.Time
}

// DepthSource serves cached market depth by symbol (the Live Feed
// Ingestor's latest tick per token, keyed by symbol).
type DepthSource interface {
	Depth(symbol string) (*models.MarketDepth, time.Time, bool)
}

// ChainLegSource resolves an option-leg snapshot when symbol parses as
// "UNDERLYING EXPIRY STRIKE CE|PE" (see ParseOptionSymbol).
type ChainLegSource interface {
	Leg(underlying, expiry string, strike float64, optionType string) (*models.OptionLeg, bool)
}

// LastPriceSource is the final fallback: last known LTP with zero spread.
type LastPriceSource interface {
	LastLTP(symbol string) (float64, time.Time, bool)
}

// Oracle resolves snapshots by trying each source in spec order.
type Oracle struct {
	depth DepthSource
	chain ChainLegSource
	last  LastPriceSource
}

// NewOracle builds an Oracle. Any source may be nil, in which case that
// resolution step is skipped.
func NewOracle(depth DepthSource, chain ChainLegSource, last LastPriceSource) *Oracle {
	return &Oracle{depth: depth, chain: chain, last: last}
}

// Resolve returns the snapshot for symbol, or core.ErrNoSnapshot if no
// source can resolve it.
func (o *Oracle) Resolve(symbol string) (Snapshot, error) {
	if o.depth != nil {
		if depth, ts, ok := o.depth.Depth(symbol); ok {
			if bid, ask, bidQty, askQty, ok := depth.BestBidAsk(); ok {
				return Snapshot{BestBid: bid, BestAsk: ask, BidQty: bidQty, AskQty: askQty, LastUpdate: ts}, nil
			}
		}
	}

	if o.chain != nil {
		if underlying, expiry, strike, optionType, ok := ParseOptionSymbol(symbol); ok {
			if leg, ok := o.chain.Leg(underlying, expiry, strike, optionType); ok && leg.HasLTP() {
				bid, ask := leg.Bid, leg.Ask
				if bid == 0 && ask == 0 {
					bid, ask = leg.LTP, leg.LTP
				}
				return Snapshot{BestBid: bid, BestAsk: ask, BidQty: 1, AskQty: 1, LastUpdate: leg.UpdatedAt}, nil
			}
		}
	}

	if o.last != nil {
		if ltp, ts, ok := o.last.LastLTP(symbol); ok && ltp > 0 {
			return Snapshot{BestBid: ltp, BestAsk: ltp, BidQty: 1, AskQty: 1, LastUpdate: ts}, nil
		}
	}

	return Snapshot{}, core.ErrNoSnapshot
}

// ParseOptionSymbol parses "UNDERLYING EXPIRY STRIKE CE|PE" (space or
// hyphen delimited) into its components.
func ParseOptionSymbol(symbol string) (underlying, expiry string, strike float64, optionType string, ok bool) {
	sep := "-"
	if !strings.Contains(symbol, "-") {
		sep = " "
	}
	parts := strings.Split(symbol, sep)
	if len(parts) != 4 {
		return "", "", 0, "", false
	}
	optType := parts[3]
	if optType != models.OptionTypeCall && optType != models.OptionTypePut {
		return "", "", 0, "", false
	}
	strikeVal, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return "", "", 0, "", false
	}
	return parts[0], parts[1], strikeVal, optType, true
}
