package feed

// normalize.go - tick normalization (spec.md §4.2): probe a raw vendor
// payload for a security_id (top level first, then nested objects,
// recursively) and for LTP (top level only), synthesize LTP from
// bid/ask when absent, parse 5-level depth, and enrich with subscription
// metadata before the tick reaches the TickBus.
//
// Decoding uses json-iterator's encoding/json-compatible API rather than
// the standard library, matching the teacher's own choice of jsoniter for
// hot-path market-data decode (internal/bot/arbitrage.go).

import (
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"dhancore/internal/models"
	"dhancore/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// securityIDKeys are candidate keys probed, in order, for the vendor
// instrument identifier.
var securityIDKeys = []string{"security_id", "securityId", "SecurityId", "token", "instrument_token"}

// ltpKeys are candidate keys probed, in order, for last traded price.
var ltpKeys = []string{"ltp", "LTP", "last_price", "lastPrice", "lp"}

var bidKeys = []string{"bid", "best_bid", "bidPrice"}
var askKeys = []string{"ask", "best_ask", "askPrice"}

// normalizeTick decodes raw, resolves security_id/LTP/depth, and enriches
// with subscription metadata. ok is false when the tick is dropped:
// unparseable payload, unresolved security_id, or no positive LTP and no
// bid/ask to take one from. A missing or non-positive LTP is replaced by
// the bid/ask mid, or by whichever of bid/ask is present. Market hours are
// not consulted, and no last-close price is fetched for a tick without a
// usable LTP.
func normalizeTick(raw []byte, subs SubscriptionSource, log *utils.Logger) (*models.Tick, bool) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}

	securityID, ok := probeString(payload, securityIDKeys)
	if !ok {
		return nil, false
	}

	ltp, hasLTP := probeFloat(payload, ltpKeys)
	bid, hasBid := probeFloat(payload, bidKeys)
	ask, hasAsk := probeFloat(payload, askKeys)

	if !hasLTP || ltp <= 0 {
		switch {
		case hasBid && hasAsk:
			ltp = (bid + ask) / 2
		case hasBid:
			ltp = bid
		case hasAsk:
			ltp = ask
		default:
			return nil, false
		}
	}

	tick := &models.Tick{
		Token:     securityID,
		LTP:       ltp,
		Bid:       bid,
		Ask:       ask,
		Timestamp: time.Now(),
	}

	if depth := parseDepth(payload); depth != nil {
		tick.Depth = depth
	}

	if subs != nil {
		if sub, found := subs.Lookup(securityID); found {
			tick.Symbol = sub.Symbol
			tick.Expiry = sub.Expiry
			tick.Strike = sub.Strike
			tick.OptionType = sub.OptionType
		}
	}

	return tick, true
}

func probeString(payload map[string]interface{}, keys []string) (string, bool) {
	for _, k := range keys {
		v, ok := payload[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if t != "" {
				return t, true
			}
		case float64:
			return formatSecurityID(t), true
		}
	}
	for _, v := range payload {
		if nested, ok := v.(map[string]interface{}); ok {
			if s, ok := probeString(nested, keys); ok {
				return s, true
			}
		}
	}
	return "", false
}

func probeFloat(payload map[string]interface{}, keys []string) (float64, bool) {
	for _, k := range keys {
		v, ok := payload[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return t, true
		case string:
			if f, ok := parseFloatLoose(t); ok {
				return f, true
			}
		}
	}
	return 0, false
}

// depthLevelKeys describes where to find bid/ask level arrays in the
// vendor's nested depth payload shape.
var depthContainerKeys = []string{"depth", "market_depth", "marketDepth"}

func parseDepth(payload map[string]interface{}) *models.MarketDepth {
	for _, ck := range depthContainerKeys {
		raw, ok := payload[ck]
		if !ok {
			continue
		}
		container, ok := raw.(map[string]interface{})
		if !ok {
			continue
		}
		bids := parseLevels(container["buy"])
		if bids == nil {
			bids = parseLevels(container["bids"])
		}
		asks := parseLevels(container["sell"])
		if asks == nil {
			asks = parseLevels(container["asks"])
		}
		if bids == nil && asks == nil {
			continue
		}
		return &models.MarketDepth{Bids: bids, Asks: asks}
	}
	return nil
}

func parseLevels(raw interface{}) []models.PriceLevel {
	arr, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	out := make([]models.PriceLevel, 0, len(arr))
	for _, entry := range arr {
		m, ok := entry.(map[string]interface{})
		if !ok {
			continue
		}
		price, _ := probeFloat(m, []string{"price"})
		qty, _ := probeFloat(m, []string{"quantity", "qty"})
		out = append(out, models.PriceLevel{Price: price, Qty: int64(qty)})
		if len(out) >= 5 {
			break
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func formatSecurityID(f float64) string {
	// Vendor payloads occasionally encode the numeric security_id as a
	// bare JSON number rather than a string.
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func parseFloatLoose(s string) (float64, bool) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
