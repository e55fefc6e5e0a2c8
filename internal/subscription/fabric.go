package subscription

// fabric.go - the Subscription Fabric (spec.md §4.1): reconciles the
// desired set of instrument tokens against bounded, shard-capacity-limited
// active subscriptions, and pushes subscribe/unsubscribe diffs to the Live
// Feed Ingestor.
//
// Shard storage follows the same "shard behind its own lock" shape as the
// teacher's PriceTracker (internal/bot/spread.go), but shard *assignment*
// is deterministic first-fit by capacity rather than a hash of the key —
// spec.md §4.1 requires first-fit bin packing across shards 1..N, not
// hash-based routing, since ws_id must be something the Ingestor and the
// Fabric agree on by construction, not by re-deriving a hash on both sides.

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dhancore/internal/core"
	"dhancore/internal/metrics"
	"dhancore/internal/models"
	"dhancore/internal/registry"
	"dhancore/pkg/utils"
)

// Repository is the persistence boundary the Fabric writes through on
// every mutation and reads from at startup rehydration.
type Repository interface {
	Upsert(ctx context.Context, sub *models.Subscription) error
	Delete(ctx context.Context, token string) error
	ListActive(ctx context.Context) ([]*models.Subscription, error)
	AppendLog(ctx context.Context, entry *models.SubscriptionLogEntry) error
}

// WatchlistStore is the persistence boundary for the user-facing watchlist
// (spec.md §6, distinct from the subscription set itself): the Fabric
// satisfies core.WatchlistService by delegating storage here and letting
// the next SyncDesired tick fold the updated watchlist into the desired
// subscription set.
type WatchlistStore interface {
	Add(ctx context.Context, entry *models.WatchlistEntry) error
	Remove(ctx context.Context, userID int, symbol, expiry string) error
	List(ctx context.Context, userID int) ([]*models.WatchlistEntry, error)
}

// Diff is one subscribe/unsubscribe instruction pushed to the Ingestor.
type Diff struct {
	Token      string
	Action     string // subscribe, unsubscribe
	Exchange   string
	SecurityID string
	FeedMode   string // TICKER, QUOTE
}

const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionEvict       = "evict"

	FeedModeTicker = "TICKER"
	FeedModeQuote  = "QUOTE"
)

// DiffSink receives the batched diff whenever SyncDesired runs.
type DiffSink func(diffs []Diff)

// Fabric is the Subscription Fabric.
type Fabric struct {
	mu sync.Mutex

	universe  *registry.Universe
	reg       *registry.Registry
	repo      Repository
	watchlist WatchlistStore
	log       *utils.Logger

	maxShards    int
	shardCap     int
	criticalSyms map[string]bool
	maxTargets   int

	shards  []map[string]*models.Subscription // shards[i]: token -> subscription
	byToken map[string]int                     // token -> shard index

	desired map[string]desiredEntry // key -> desired subscription request

	onDiff DiffSink
}

var _ core.WatchlistService = (*Fabric)(nil)

type desiredEntry struct {
	token      string
	symbol     string
	expiry     string
	strike     float64
	optionType string
	tier       string
}

// Config bundles Fabric construction parameters.
type Config struct {
	MaxShards       int
	ShardCapacity   int
	MaxTargets      int
	CriticalSymbols []string
}

// New builds an empty Fabric. Call Rehydrate at startup to load persisted
// active subscriptions before the first SyncDesired.
func New(cfg Config, universe *registry.Universe, reg *registry.Registry, repo Repository, watchlist WatchlistStore, log *utils.Logger) *Fabric {
	if cfg.MaxShards <= 0 {
		cfg.MaxShards = models.MaxShards
	}
	if cfg.ShardCapacity <= 0 {
		cfg.ShardCapacity = models.ShardCapacity
	}
	if cfg.MaxTargets <= 0 {
		cfg.MaxTargets = 300
	}

	crit := make(map[string]bool, len(cfg.CriticalSymbols))
	for _, s := range cfg.CriticalSymbols {
		crit[s] = true
	}

	shards := make([]map[string]*models.Subscription, cfg.MaxShards)
	for i := range shards {
		shards[i] = make(map[string]*models.Subscription)
	}

	return &Fabric{
		universe:     universe,
		reg:          reg,
		repo:         repo,
		watchlist:    watchlist,
		log:          log,
		maxShards:    cfg.MaxShards,
		shardCap:     cfg.ShardCapacity,
		criticalSyms: crit,
		maxTargets:   cfg.MaxTargets,
		shards:       shards,
		byToken:      make(map[string]int),
		desired:      make(map[string]desiredEntry),
	}
}

// OnDiff registers the callback invoked by SyncDesired with the batch of
// subscribe/unsubscribe instructions to push to the Ingestor.
func (f *Fabric) OnDiff(sink DiffSink) {
	f.mu.Lock()
	f.onDiff = sink
	f.mu.Unlock()
}

// Rehydrate loads all persisted active=true rows and places them back into
// shards as stored, without re-running admission checks (they were already
// approved once). Instrument metadata is not re-resolved, so a row whose
// security_id has since rolled over is restored under its stored token.
func (f *Fabric) Rehydrate(ctx context.Context) error {
	rows, err := f.repo.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("rehydrating subscriptions: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	for _, sub := range rows {
		shardIdx := sub.WSID
		if shardIdx < 0 || shardIdx >= f.maxShards {
			shardIdx = f.firstFitShardLocked()
		}
		if shardIdx < 0 {
			continue
		}
		sub.WSID = shardIdx
		f.shards[shardIdx][sub.Token] = sub
		f.byToken[sub.Token] = shardIdx
	}
	f.reportShardGaugesLocked()
	return nil
}

// Subscribe admits token into a shard if the underlying is within the
// approved universe and a shard has capacity (or one can be freed by
// evicting a Tier-A entry). Idempotent on an already-active token.
func (f *Fabric) Subscribe(ctx context.Context, token, symbol, expiry string, strike float64, optionType, tier string) (bool, string, int, error) {
	if isSyntheticToken(token) {
		return false, models.ReasonSyntheticToken, 0, core.ErrSyntheticToken
	}

	underlying := underlyingOf(symbol)
	if !f.universe.IsAllowed(underlying) {
		return false, models.ReasonNotAllowed, 0, core.ErrNotAllowed
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if shardIdx, ok := f.byToken[token]; ok {
		return true, "", shardIdx, nil
	}

	shardIdx := f.firstFitShardLocked()
	if shardIdx < 0 {
		// Attempt one LRU eviction among Tier-A entries before failing.
		evictedToken, evicted := f.evictOneTierALocked()
		if !evicted {
			return false, models.ReasonCapacity, 0, core.ErrCapacity
		}
		shardIdx = f.firstFitShardLocked()
		if shardIdx < 0 {
			return false, models.ReasonCapacity, 0, core.ErrCapacity
		}
		if err := f.repo.Delete(ctx, evictedToken); err != nil {
			f.log.Warn("evicted subscription delete failed", utils.Token(evictedToken), utils.Err(err))
		}
		f.appendLog(ctx, evictedToken, ActionEvict, "capacity")
	}

	sub := &models.Subscription{
		Token:        token,
		Symbol:       symbol,
		Expiry:       expiry,
		Strike:       strike,
		OptionType:   optionType,
		Tier:         tier,
		WSID:         shardIdx,
		SubscribedAt: time.Now(),
		Active:       true,
	}
	f.shards[shardIdx][token] = sub
	f.byToken[token] = shardIdx
	f.reportShardGaugesLocked()

	if err := f.repo.Upsert(ctx, sub); err != nil {
		f.log.Warn("subscription persist failed", utils.Token(token), utils.Err(err))
	}
	f.appendLog(ctx, token, ActionSubscribe, "")

	return true, "", shardIdx, nil
}

// Unsubscribe removes token if present. Idempotent.
func (f *Fabric) Unsubscribe(ctx context.Context, token, reason string) error {
	f.mu.Lock()
	shardIdx, ok := f.byToken[token]
	if ok {
		delete(f.shards[shardIdx], token)
		delete(f.byToken, token)
		f.reportShardGaugesLocked()
	}
	f.mu.Unlock()

	if !ok {
		return nil
	}
	if err := f.repo.Delete(ctx, token); err != nil {
		f.log.Warn("subscription delete failed", utils.Token(token), utils.Err(err))
	}
	f.appendLog(ctx, token, ActionUnsubscribe, reason)
	return nil
}

// UnsubscribeAllTierA drops every Tier-A subscription at EOD, except any
// token whose (underlying, expiry, strike, option_type) matches an open
// position — callers supply that protected set.
func (f *Fabric) UnsubscribeAllTierA(ctx context.Context, protected func(sub *models.Subscription) bool) {
	f.mu.Lock()
	var toDrop []string
	for _, shard := range f.shards {
		for token, sub := range shard {
			if sub.Tier != models.TierA {
				continue
			}
			if protected != nil && protected(sub) {
				continue
			}
			toDrop = append(toDrop, token)
		}
	}
	f.mu.Unlock()

	for _, token := range toDrop {
		_ = f.Unsubscribe(ctx, token, "eod_cleanup")
	}
}

// Active returns a snapshot of every active subscription.
func (f *Fabric) Active() []*models.Subscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*models.Subscription, 0, len(f.byToken))
	for _, shard := range f.shards {
		for _, sub := range shard {
			out = append(out, sub)
		}
	}
	return out
}

// AddToWatchlist persists a watchlist entry, satisfying core.WatchlistService.
// The entry joins the desired subscription set on the next SyncDesired tick.
func (f *Fabric) AddToWatchlist(ctx context.Context, entry *models.WatchlistEntry) error {
	return f.watchlist.Add(ctx, entry)
}

// RemoveFromWatchlist deletes a watchlist entry, satisfying
// core.WatchlistService. The corresponding subscription, if no longer
// desired by anything else, is dropped on the next SyncDesired tick.
func (f *Fabric) RemoveFromWatchlist(ctx context.Context, userID int, symbol, expiry string) error {
	return f.watchlist.Remove(ctx, userID, symbol, expiry)
}

// ListWatchlist returns a user's watchlist, satisfying core.WatchlistService.
func (f *Fabric) ListWatchlist(ctx context.Context, userID int) ([]*models.WatchlistEntry, error) {
	return f.watchlist.List(ctx, userID)
}

// ActiveCount returns the total number of active subscriptions across all
// shards, satisfying feed.SubscriptionSnapshot.
func (f *Fabric) ActiveCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.byToken)
}

// DesiredCount returns the size of the last desired set computed by
// SyncDesired, satisfying feed.SubscriptionSnapshot.
func (f *Fabric) DesiredCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.desired)
}

// ShardCounts returns the current occupancy of every shard, for the feed
// debug snapshot.
func (f *Fabric) ShardCounts() map[int]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[int]int, len(f.shards))
	for i, shard := range f.shards {
		counts[i] = len(shard)
	}
	return counts
}

// firstFitShardLocked finds the first shard with spare capacity. Caller
// must hold f.mu.
func (f *Fabric) firstFitShardLocked() int {
	for i, shard := range f.shards {
		if len(shard) < f.shardCap {
			return i
		}
	}
	return -1
}

// evictOneTierALocked evicts the single oldest Tier-A subscription across
// all shards, mutating only the in-memory shard maps. It returns the
// evicted token and whether an eviction occurred; the caller is
// responsible for persisting the deletion (f.repo.Delete + appendLog) the
// same way Unsubscribe does, since it alone knows the eviction reason to
// log. Caller must hold f.mu.
func (f *Fabric) evictOneTierALocked() (string, bool) {
	var oldestToken string
	var oldestShard int
	var oldestAt time.Time
	found := false

	for i, shard := range f.shards {
		for token, sub := range shard {
			if sub.Tier != models.TierA {
				continue
			}
			if !found || sub.SubscribedAt.Before(oldestAt) {
				oldestToken, oldestShard, oldestAt, found = token, i, sub.SubscribedAt, true
			}
		}
	}
	if !found {
		return "", false
	}
	delete(f.shards[oldestShard], oldestToken)
	delete(f.byToken, oldestToken)
	metrics.EvictionsTotal.WithLabelValues("capacity").Inc()
	return oldestToken, true
}

// reportShardGaugesLocked refreshes the per-shard occupancy gauge. Caller
// must hold f.mu.
func (f *Fabric) reportShardGaugesLocked() {
	for i, shard := range f.shards {
		metrics.ActiveSubscriptionsPerShard.WithLabelValues(fmt.Sprintf("%d", i)).Set(float64(len(shard)))
	}
}

// SyncDesired recomputes the desired set from the given watchlist + Tier-B
// seed entries, diffs it against active subscriptions, issues
// subscribe/unsubscribe calls, and pushes the resulting diff batch to the
// registered DiffSink.
func (f *Fabric) SyncDesired(ctx context.Context, desired []DesiredInstrument) {
	trimmed := f.trimToCap(desired)

	wantKeys := make(map[string]DesiredInstrument, len(trimmed))
	for _, d := range trimmed {
		wantKeys[d.Token] = d
	}

	f.mu.Lock()
	f.desired = make(map[string]desiredEntry, len(trimmed))
	for _, d := range trimmed {
		f.desired[d.Token] = desiredEntry{token: d.Token, symbol: d.Symbol, expiry: d.Expiry, strike: d.Strike, optionType: d.OptionType, tier: d.Tier}
	}
	f.mu.Unlock()

	active := f.Active()
	haveKeys := make(map[string]bool, len(active))
	for _, sub := range active {
		haveKeys[sub.Token] = true
	}

	var diffs []Diff

	for token, d := range wantKeys {
		if haveKeys[token] {
			continue
		}
		ok, _, _, err := f.Subscribe(ctx, d.Token, d.Symbol, d.Expiry, d.Strike, d.OptionType, d.Tier)
		if err != nil || !ok {
			continue
		}
		diffs = append(diffs, Diff{Token: d.Token, Action: ActionSubscribe, Exchange: d.Exchange, SecurityID: d.SecurityID, FeedMode: d.FeedMode})
	}

	for token := range haveKeys {
		if _, want := wantKeys[token]; want {
			continue
		}
		_ = f.Unsubscribe(ctx, token, "no_longer_desired")
		diffs = append(diffs, Diff{Token: token, Action: ActionUnsubscribe})
	}

	if len(diffs) == 0 {
		return
	}

	f.mu.Lock()
	sink := f.onDiff
	f.mu.Unlock()
	if sink != nil {
		sink(diffs)
	}
}

// DesiredInstrument is one entry the caller (watchlist ∪ Tier-B seeds ∪
// default indices ∪ equity entries) wants subscribed.
type DesiredInstrument struct {
	Token      string
	Symbol     string
	Expiry     string
	Strike     float64
	OptionType string
	Tier       string
	Exchange   string
	SecurityID string
	FeedMode   string
}

// trimToCap enforces env.MAX_TARGETS above the threshold, retaining
// critical symbols (configured index names) until their own subset alone
// exceeds the cap.
func (f *Fabric) trimToCap(desired []DesiredInstrument) []DesiredInstrument {
	if len(desired) <= f.maxTargets {
		return desired
	}

	critical := make([]DesiredInstrument, 0, len(desired))
	rest := make([]DesiredInstrument, 0, len(desired))
	for _, d := range desired {
		if f.criticalSyms[underlyingOf(d.Symbol)] {
			critical = append(critical, d)
		} else {
			rest = append(rest, d)
		}
	}

	if len(critical) >= f.maxTargets {
		sort.Slice(critical, func(i, j int) bool { return critical[i].Token < critical[j].Token })
		return critical[:f.maxTargets]
	}

	budget := f.maxTargets - len(critical)
	if budget > len(rest) {
		budget = len(rest)
	}
	return append(critical, rest[:budget]...)
}

func (f *Fabric) appendLog(ctx context.Context, token, action, reason string) {
	entry := &models.SubscriptionLogEntry{Token: token, Action: action, Reason: reason, CreatedAt: time.Now()}
	if err := f.repo.AppendLog(ctx, entry); err != nil {
		f.log.Warn("subscription log append failed", utils.Token(token), utils.Err(err))
	}
}

func underlyingOf(symbol string) string {
	// Option/future symbols carry the underlying as their leading token
	// (e.g. "NIFTY-26DEC-25000-CE"); plain equities/indices are already
	// bare underlyings.
	for i := 0; i < len(symbol); i++ {
		if symbol[i] == '-' || symbol[i] == ' ' {
			return symbol[:i]
		}
	}
	return symbol
}

func isSyntheticToken(token string) bool {
	return len(token) > 3 && (token[:3] == "CE_" || token[:3] == "PE_")
}
