package feed

import (
	"strings"
	"testing"

	"dhancore/internal/models"
	"dhancore/internal/registry"
)

const vendorLookupSampleCSV = `SEM_SMST_SECURITY_ID,SEM_TRADING_SYMBOL,SEM_CUSTOM_SYMBOL,SEM_EXM_EXCH_ID,SEM_INSTRUMENT_NAME,SEM_EXPIRY_DATE,SEM_STRIKE_PRICE,SEM_OPTION_TYPE,SEM_LOT_UNITS,SEM_STRIKE_STEP
11536,NIFTY,NIFTY,NSE,INDEX,,0,,1,50
48291,NIFTY-26DEC-25000-CE,NIFTY,NSE,OPTIDX,26DEC,25000,CE,75,50
`

type fakeActiveLister struct {
	subs []*models.Subscription
}

func (f *fakeActiveLister) Active() []*models.Subscription { return f.subs }

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	if _, err := r.LoadFrom(strings.NewReader(vendorLookupSampleCSV)); err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	return r
}

func TestVendorLookupLookup(t *testing.T) {
	r := newTestRegistry(t)
	v := NewVendorLookup(r, &fakeActiveLister{})

	sub, ok := v.Lookup("48291")
	if !ok {
		t.Fatal("expected Lookup to resolve a known security id")
	}
	if sub.Symbol != "NIFTY-26DEC-25000-CE" || sub.OptionType != "CE" {
		t.Errorf("unexpected subscription: %+v", sub)
	}

	if _, ok := v.Lookup("does-not-exist"); ok {
		t.Error("expected Lookup to report not-ok for an unknown security id")
	}
}

func TestVendorLookupSubscribePayloads(t *testing.T) {
	r := newTestRegistry(t)
	active := &fakeActiveLister{subs: []*models.Subscription{
		{Symbol: "NIFTY", Token: "11536"},
		{Symbol: "NIFTY-26DEC-25000-CE", Token: "48291"},
	}}
	v := NewVendorLookup(r, active)

	payloads := v.VendorSubscribePayloads()
	if len(payloads) != 2 {
		t.Fatalf("expected 2 payloads, got %d", len(payloads))
	}

	indexPayload := payloads[0].(vendorSubscribePayload)
	if indexPayload.RequestCode != requestCodeSubscribeTicker {
		t.Errorf("expected index to default to TICKER, got request code %d", indexPayload.RequestCode)
	}
	optionPayload := payloads[1].(vendorSubscribePayload)
	if optionPayload.RequestCode != requestCodeSubscribeQuote {
		t.Errorf("expected option to default to QUOTE, got request code %d", optionPayload.RequestCode)
	}
	if optionPayload.InstrumentList[0].SecurityID != "48291" {
		t.Errorf("unexpected instrument list: %+v", optionPayload.InstrumentList)
	}
}
