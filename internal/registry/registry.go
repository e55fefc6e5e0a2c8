package registry

// registry.go - the instrument registry: a read-mostly snapshot of the
// provider's scrip master, rebuilt wholesale on CSV (re)load and swapped in
// atomically so hot-path lookups never take a lock.
//
// Generalizes the teacher's bit-packed atomic.Uint64 config-field pattern
// (internal/bot/engine.go's PairState.entrySpreadBits) to a whole-snapshot
// atomic.Pointer swap: the registry is a value too large to pack into a
// word, but the same "never block a reader" goal applies, so the entire
// indexed snapshot is replaced in one atomic store instead of per-field.

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync/atomic"

	"dhancore/internal/models"
)

// Registry is the process-wide instrument registry. Zero value is usable
// but empty; call Load to populate it.
type Registry struct {
	snapshot atomic.Pointer[snapshot]
}

type snapshot struct {
	bySymbol     map[string]*models.Instrument
	bySecurityID map[string]*models.Instrument
	byUnderlying map[string][]*models.Instrument
	bySegment    map[string][]*models.Instrument
	byExpiry     map[symbolExpiryKey]*models.Instrument
	fnoEligible  map[string]bool
	all          []*models.Instrument
}

type symbolExpiryKey struct {
	underlying string
	expiry     string
}

// New returns an empty Registry; call Load before using it.
func New() *Registry {
	r := &Registry{}
	r.snapshot.Store(&snapshot{
		bySymbol:     make(map[string]*models.Instrument),
		bySecurityID: make(map[string]*models.Instrument),
		byUnderlying: make(map[string][]*models.Instrument),
		bySegment:    make(map[string][]*models.Instrument),
		byExpiry:     make(map[symbolExpiryKey]*models.Instrument),
		fnoEligible:  make(map[string]bool),
	})
	return r
}

// Load parses the provider's api-scrip-master-detailed.csv and atomically
// replaces the registry's contents. The CSV is expected to carry (at
// least) these columns, by header name, in any order: SEM_SMST_SECURITY_ID,
// SEM_TRADING_SYMBOL, SEM_CUSTOM_SYMBOL, SEM_EXM_EXCH_ID, SEM_SEGMENT,
// SEM_INSTRUMENT_NAME, SEM_EXPIRY_DATE, SEM_STRIKE_PRICE, SEM_OPTION_TYPE,
// SEM_LOT_UNITS, SEM_STRIKE_STEP. Unknown/missing optional columns default
// to their zero value rather than failing the whole load.
func (r *Registry) Load(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening scrip master: %w", err)
	}
	defer f.Close()
	return r.LoadFrom(f)
}

// LoadFrom parses csv rows from reader, for callers that already have the
// file open or are loading from an in-memory buffer in tests.
func (r *Registry) LoadFrom(reader io.Reader) (int, error) {
	cr := csv.NewReader(reader)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return 0, fmt.Errorf("reading header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, h := range header {
		col[strings.TrimSpace(h)] = i
	}

	next := &snapshot{
		bySymbol:     make(map[string]*models.Instrument),
		bySecurityID: make(map[string]*models.Instrument),
		byUnderlying: make(map[string][]*models.Instrument),
		bySegment:    make(map[string][]*models.Instrument),
		byExpiry:     make(map[symbolExpiryKey]*models.Instrument),
		fnoEligible:  make(map[string]bool),
	}

	get := func(row []string, key string) string {
		if i, ok := col[key]; ok && i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}

	count := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return count, fmt.Errorf("reading row %d: %w", count+1, err)
		}

		inst := &models.Instrument{
			SecurityID: get(row, "SEM_SMST_SECURITY_ID"),
			Symbol:     get(row, "SEM_TRADING_SYMBOL"),
			Underlying: get(row, "SEM_CUSTOM_SYMBOL"),
			Exchange:   get(row, "SEM_EXM_EXCH_ID"),
			Expiry:     get(row, "SEM_EXPIRY_DATE"),
			OptionType: get(row, "SEM_OPTION_TYPE"),
		}
		if inst.Underlying == "" {
			inst.Underlying = inst.Symbol
		}
		inst.Type = classifyInstrument(get(row, "SEM_INSTRUMENT_NAME"), inst.OptionType, inst.Expiry)
		if v := get(row, "SEM_STRIKE_PRICE"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				inst.Strike = f
			}
		}
		if v := get(row, "SEM_LOT_UNITS"); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				inst.LotSize = n
			}
		}
		if inst.LotSize == 0 {
			inst.LotSize = 1
		}
		if v := get(row, "SEM_STRIKE_STEP"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				inst.StrikeStep = f
			}
		}

		next.all = append(next.all, inst)
		if inst.Symbol != "" {
			next.bySymbol[inst.Symbol] = inst
		}
		if inst.SecurityID != "" {
			next.bySecurityID[inst.SecurityID] = inst
		}
		next.byUnderlying[inst.Underlying] = append(next.byUnderlying[inst.Underlying], inst)
		next.bySegment[inst.Exchange] = append(next.bySegment[inst.Exchange], inst)
		if inst.Expiry != "" {
			next.byExpiry[symbolExpiryKey{inst.Underlying, inst.Expiry}] = inst
		}
		if inst.IsDerivative() {
			next.fnoEligible[inst.Underlying] = true
		}
		count++
	}

	r.snapshot.Store(next)
	return count, nil
}

func classifyInstrument(instrumentName, optionType, expiry string) string {
	switch {
	case optionType == "CE" || optionType == "PE":
		return models.InstrumentTypeOption
	case expiry != "":
		return models.InstrumentTypeFuture
	case strings.Contains(strings.ToUpper(instrumentName), "INDEX"):
		return models.InstrumentTypeIndex
	default:
		return models.InstrumentTypeEquity
	}
}

// BySymbol returns the instrument with the given trading symbol, if any.
func (r *Registry) BySymbol(symbol string) (*models.Instrument, bool) {
	snap := r.snapshot.Load()
	inst, ok := snap.bySymbol[symbol]
	return inst, ok
}

// BySecurityID returns the instrument with the given vendor security id, if
// any. This is the lookup the Live Feed Ingestor uses to enrich an
// incoming tick (keyed by vendor security id on the wire) back to a
// symbol/expiry/strike/option-type.
func (r *Registry) BySecurityID(securityID string) (*models.Instrument, bool) {
	snap := r.snapshot.Load()
	inst, ok := snap.bySecurityID[securityID]
	return inst, ok
}

// ByUnderlyingExpiry returns the instrument matching (underlying, expiry) —
// typically a future; options are resolved by strike separately.
func (r *Registry) ByUnderlyingExpiry(underlying, expiry string) (*models.Instrument, bool) {
	snap := r.snapshot.Load()
	inst, ok := snap.byExpiry[symbolExpiryKey{underlying, expiry}]
	return inst, ok
}

// ByUnderlying returns every registry row sharing the given underlying.
func (r *Registry) ByUnderlying(underlying string) []*models.Instrument {
	snap := r.snapshot.Load()
	return snap.byUnderlying[underlying]
}

// ByOption resolves a specific option leg, searching the underlying's rows
// for a matching (expiry, strike, option_type). Returns false rather than
// any nearby match — option lookups never fall back to an unrelated
// instrument (spec.md §4.1's "never fall back to index security_id for an
// option request").
func (r *Registry) ByOption(underlying, expiry string, strike float64, optionType string) (*models.Instrument, bool) {
	for _, inst := range r.ByUnderlying(underlying) {
		if inst.Expiry == expiry && inst.OptionType == optionType && inst.Strike == strike {
			return inst, true
		}
	}
	return nil, false
}

// ResolveOptionToken resolves an option leg's vendor token against the
// registry, satisfying optionchain.TokenResolver. The vendor security id
// doubles as the subscribe token for option legs.
func (r *Registry) ResolveOptionToken(underlying, expiry string, strike float64, optionType string) (string, bool) {
	inst, ok := r.ByOption(underlying, expiry, strike, optionType)
	if !ok {
		return "", false
	}
	return inst.SecurityID, true
}

// LotSize resolves symbol's lot size, satisfying execution.LotSizeSource.
func (r *Registry) LotSize(symbol string) int64 {
	inst, ok := r.BySymbol(symbol)
	if !ok {
		return 0
	}
	return int64(inst.LotSize)
}

// ExchangeSegment resolves symbol's listing exchange, satisfying
// execution.LotSizeSource.
func (r *Registry) ExchangeSegment(symbol string) string {
	inst, ok := r.BySymbol(symbol)
	if !ok {
		return ""
	}
	return inst.Exchange
}

// IsFNOEligible reports whether the underlying has at least one listed
// derivative (future or option) in the registry.
func (r *Registry) IsFNOEligible(underlying string) bool {
	snap := r.snapshot.Load()
	return snap.fnoEligible[underlying]
}

// Len returns the number of loaded instrument rows.
func (r *Registry) Len() int {
	return len(r.snapshot.Load().all)
}

// All returns every loaded instrument. Callers must not mutate the
// returned slice's elements.
func (r *Registry) All() []*models.Instrument {
	return r.snapshot.Load().all
}
