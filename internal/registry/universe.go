package registry

// universe.go - the approved subscription universe: which underlyings, how
// many expiries/strikes, may ever reach the Subscription Fabric. Grounded
// on original_source's instrument_subscription_service.py approved_universe
// table (the Python original's hard-coded index/stock/MCX policy, which the
// distilled spec left implicit behind "the permitted universe").

// UniverseEntry describes one underlying's subscription policy: how many
// expiries are tracked and how wide the strike window is on each side of
// ATM, by instrument family.
type UniverseEntry struct {
	Underlying    string
	Exchange      string
	Family        string // index, stock_option, stock_future, equity, mcx_future, mcx_option
	NumExpiries   int
	StrikeWindow  int // window_half: strikes kept on each side of ATM
	WeeklyExpiry  bool
}

// Instrument families, matching the window sizes in spec.md §4.3.
const (
	FamilyIndex      = "index"
	FamilyStockOpt   = "stock_option"
	FamilyStockFut   = "stock_future"
	FamilyEquity     = "equity"
	FamilyMCXFuture  = "mcx_future"
	FamilyMCXOption  = "mcx_option"
)

// DefaultUniverse is the curated approved-universe table. Large-cap index
// underlyings get the ±50 window called out in spec.md §4.3; the rest of
// the index family uses ±25. Curated equities and stock options/futures are
// not hard-coded here; they are added through SeedCuratedEquities and
// SeedCuratedStockOptions. The MCX watch set is the hard-coded
// DefaultMCXUnderlyings list, which NewUniverse adds.
var DefaultUniverse = map[string]*UniverseEntry{
	"NIFTY":        {Underlying: "NIFTY", Exchange: "NSE", Family: FamilyIndex, NumExpiries: 2, StrikeWindow: 25, WeeklyExpiry: true},
	"BANKNIFTY":    {Underlying: "BANKNIFTY", Exchange: "NSE", Family: FamilyIndex, NumExpiries: 2, StrikeWindow: 50, WeeklyExpiry: true},
	"FINNIFTY":     {Underlying: "FINNIFTY", Exchange: "NSE", Family: FamilyIndex, NumExpiries: 2, StrikeWindow: 25, WeeklyExpiry: true},
	"MIDCPNIFTY":   {Underlying: "MIDCPNIFTY", Exchange: "NSE", Family: FamilyIndex, NumExpiries: 2, StrikeWindow: 25, WeeklyExpiry: true},
	"SENSEX":       {Underlying: "SENSEX", Exchange: "BSE", Family: FamilyIndex, NumExpiries: 2, StrikeWindow: 50, WeeklyExpiry: true},
	"BANKEX":       {Underlying: "BANKEX", Exchange: "BSE", Family: FamilyIndex, NumExpiries: 2, StrikeWindow: 25, WeeklyExpiry: false},
}

// DefaultMCXUnderlyings is the curated MCX watch set (spec.md §6).
var DefaultMCXUnderlyings = []string{
	"CRUDEOIL", "NATURALGAS", "GOLD", "SILVER", "COPPER", "ZINC", "LEAD", "NICKEL", "ALUMINIUM",
}

// Universe holds the mutable approved-universe table, seeded from
// DefaultUniverse/DefaultMCXUnderlyings and narrowed further by any admin
// ExcludedUnderlying rows (see internal/models.ExcludedUnderlying).
type Universe struct {
	entries   map[string]*UniverseEntry
	excluded  map[string]bool
	equities  map[string]bool // curated top-N NSE equities, EQ expiry sentinel
	stockOpts map[string]bool // curated F&O stock underlyings
}

// NewUniverse builds a Universe from the default tables.
func NewUniverse() *Universe {
	u := &Universe{
		entries:   make(map[string]*UniverseEntry, len(DefaultUniverse)),
		excluded:  make(map[string]bool),
		equities:  make(map[string]bool),
		stockOpts: make(map[string]bool),
	}
	for k, v := range DefaultUniverse {
		u.entries[k] = v
	}
	for _, m := range DefaultMCXUnderlyings {
		u.entries[m] = &UniverseEntry{Underlying: m, Exchange: "MCX", Family: FamilyMCXFuture, NumExpiries: 2, StrikeWindow: 5}
	}
	return u
}

// SeedCuratedEquities registers the curated top-N NSE equity list.
func (u *Universe) SeedCuratedEquities(symbols []string) {
	for _, s := range symbols {
		u.equities[s] = true
	}
}

// SeedCuratedStockOptions registers the curated F&O-eligible stock list and
// gives each a stock_option universe entry (±12 window, 2 expiries per
// spec.md §4.3).
func (u *Universe) SeedCuratedStockOptions(symbols []string) {
	for _, s := range symbols {
		u.stockOpts[s] = true
		u.entries[s] = &UniverseEntry{Underlying: s, Exchange: "NSE", Family: FamilyStockOpt, NumExpiries: 2, StrikeWindow: 12}
	}
}

// SetExcluded applies the admin exclusion list, narrowing the universe
// without mutating the curated tables themselves.
func (u *Universe) SetExcluded(underlyings []string) {
	excluded := make(map[string]bool, len(underlyings))
	for _, s := range underlyings {
		excluded[s] = true
	}
	u.excluded = excluded
}

// IsAllowed reports whether underlying may be subscribed: it must be in the
// approved universe (index, curated stock option/future, curated equity, or
// MCX watch set) and not admin-excluded.
func (u *Universe) IsAllowed(underlying string) bool {
	if u.excluded[underlying] {
		return false
	}
	if _, ok := u.entries[underlying]; ok {
		return true
	}
	return u.equities[underlying]
}

// Entry returns the universe policy for underlying, if it has one
// (equities have no strike-window policy since they carry no options).
func (u *Universe) Entry(underlying string) (*UniverseEntry, bool) {
	e, ok := u.entries[underlying]
	return e, ok
}

// Entries returns every underlying carrying an option-chain policy (indices,
// curated stock options, MCX), excluding admin-excluded ones. Used to drive
// option-chain cache bootstrap across the whole permitted universe rather
// than one underlying at a time.
func (u *Universe) Entries() []*UniverseEntry {
	out := make([]*UniverseEntry, 0, len(u.entries))
	for underlying, e := range u.entries {
		if u.excluded[underlying] {
			continue
		}
		out = append(out, e)
	}
	return out
}
