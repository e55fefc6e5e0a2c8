package feed

// vendorlookup.go - the concrete SubscriptionSource: resolves an incoming
// tick's vendor security_id back to symbol/expiry/strike/option-type
// metadata against the instrument registry, and builds the vendor
// subscribe payloads for the Subscription Fabric's active set on
// (re)connect (spec.md §4.2 "subscribe/unsubscribe per (exchange_code,
// security_id, feed_mode); options and equities default to QUOTE, indices
// and most futures default to TICKER").

import (
	"dhancore/internal/models"
	"dhancore/internal/registry"
)

// ActiveLister is the narrow view of the Subscription Fabric's active set
// VendorLookup needs, avoiding a direct import of the subscription package.
type ActiveLister interface {
	Active() []*models.Subscription
}

// VendorLookup implements SubscriptionSource against the instrument
// registry and the Subscription Fabric's active set.
type VendorLookup struct {
	registry *registry.Registry
	active   ActiveLister
}

var _ SubscriptionSource = (*VendorLookup)(nil)

// NewVendorLookup builds a VendorLookup.
func NewVendorLookup(reg *registry.Registry, active ActiveLister) *VendorLookup {
	return &VendorLookup{registry: reg, active: active}
}

// Lookup resolves a vendor security_id to subscription enrichment metadata.
func (v *VendorLookup) Lookup(securityID string) (*models.Subscription, bool) {
	inst, ok := v.registry.BySecurityID(securityID)
	if !ok {
		return nil, false
	}
	return &models.Subscription{
		Token:      inst.SecurityID,
		Symbol:     inst.Symbol,
		Expiry:     inst.Expiry,
		Strike:     inst.Strike,
		OptionType: inst.OptionType,
	}, true
}

// vendorSubscribePayload mirrors the vendor's WS subscribe/unsubscribe
// message shape for one instrument.
type vendorSubscribePayload struct {
	RequestCode     int                  `json:"RequestCode"`
	InstrumentCount int                  `json:"InstrumentCount"`
	InstrumentList  []vendorInstrumentID `json:"InstrumentList"`
}

type vendorInstrumentID struct {
	ExchangeSegment string `json:"ExchangeSegment"`
	SecurityID      string `json:"SecurityId"`
}

const (
	requestCodeSubscribeTicker = 15
	requestCodeSubscribeQuote  = 17
)

// VendorSubscribePayloads builds one subscribe payload per active
// subscription, grouping feed mode by instrument type: options and
// equities default to QUOTE, indices and most futures default to TICKER.
func (v *VendorLookup) VendorSubscribePayloads() []interface{} {
	subs := v.active.Active()
	payloads := make([]interface{}, 0, len(subs))
	for _, sub := range subs {
		inst, ok := v.registry.BySymbol(sub.Symbol)
		if !ok {
			continue
		}
		requestCode := requestCodeSubscribeTicker
		if inst.Type == models.InstrumentTypeOption || inst.Type == models.InstrumentTypeEquity {
			requestCode = requestCodeSubscribeQuote
		}
		payloads = append(payloads, vendorSubscribePayload{
			RequestCode:     requestCode,
			InstrumentCount: 1,
			InstrumentList:  []vendorInstrumentID{{ExchangeSegment: inst.Exchange, SecurityID: inst.SecurityID}},
		})
	}
	return payloads
}
