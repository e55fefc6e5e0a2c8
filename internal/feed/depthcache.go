package feed

// depthcache.go - the Live Feed Ingestor's per-symbol latest-state cache:
// the Execution Engine's snapshot oracle (execution.DepthSource,
// execution.LastPriceSource) reads the most recent tick per symbol from
// here rather than from the TickBus itself, since a channel can only be
// drained once and multiple consumers (cache ingest, execution snapshots,
// admin debug) all need the latest value. Also the home for "forced depth
// injection for tests" (spec.md §6 admin surface): Inject overwrites the
// live value until the next real tick for that symbol arrives.

import (
	"sync"
	"time"

	"dhancore/internal/models"
)

type depthEntry struct {
	depth     *models.MarketDepth
	ltp       float64
	updatedAt time.Time
}

// DepthCache tracks the latest tick per symbol, consumed from a TickBus.
type DepthCache struct {
	mu      sync.RWMutex
	bySymbol map[string]*depthEntry
}

// NewDepthCache builds an empty DepthCache.
func NewDepthCache() *DepthCache {
	return &DepthCache{bySymbol: make(map[string]*depthEntry)}
}

// Consume drains bus until stop is closed, updating the cache on every tick. Run
// this in its own goroutine.
func (c *DepthCache) Consume(stop <-chan struct{}, bus *TickBus) {
	for {
		select {
		case <-stop:
			return
		case tick, ok := <-bus.C():
			if !ok {
				return
			}
			c.Update(tick)
		}
	}
}

// Update applies one tick's depth/LTP to the cache.
func (c *DepthCache) Update(tick *models.Tick) {
	if tick == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.bySymbol[tick.Symbol] = &depthEntry{depth: tick.Depth, ltp: tick.LTP, updatedAt: tick.Timestamp}
}

// Depth satisfies execution.DepthSource.
func (c *DepthCache) Depth(symbol string) (*models.MarketDepth, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.bySymbol[symbol]
	if !ok || e.depth == nil {
		return nil, time.Time{}, false
	}
	return e.depth, e.updatedAt, true
}

// LastLTP satisfies execution.LastPriceSource.
func (c *DepthCache) LastLTP(symbol string) (float64, time.Time, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.bySymbol[symbol]
	if !ok || e.ltp <= 0 {
		return 0, time.Time{}, false
	}
	return e.ltp, e.updatedAt, true
}

// Inject forces symbol's depth to depth, satisfying core.AdminControls'
// forced-depth-injection surface. The override holds until the next real
// tick for symbol is consumed.
func (c *DepthCache) Inject(symbol string, depth *models.MarketDepth) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.bySymbol[symbol]
	if !ok {
		e = &depthEntry{}
		c.bySymbol[symbol] = e
	}
	e.depth = depth
	e.updatedAt = time.Now()
}
