package feed

import (
	"testing"
	"time"

	"dhancore/internal/models"
)

func TestDepthCacheUpdateAndRead(t *testing.T) {
	c := NewDepthCache()
	depth := &models.MarketDepth{Bids: []models.PriceLevel{{Price: 99, Qty: 10}}}
	c.Update(&models.Tick{Symbol: "NIFTY24JUL20000CE", LTP: 100, Depth: depth, Timestamp: time.Now()})

	got, _, ok := c.Depth("NIFTY24JUL20000CE")
	if !ok || got != depth {
		t.Fatalf("expected depth to round-trip, got %+v ok=%v", got, ok)
	}
	ltp, _, ok := c.LastLTP("NIFTY24JUL20000CE")
	if !ok || ltp != 100 {
		t.Fatalf("expected ltp=100, got %v ok=%v", ltp, ok)
	}
}

func TestDepthCacheMissingSymbol(t *testing.T) {
	c := NewDepthCache()
	if _, _, ok := c.Depth("UNKNOWN"); ok {
		t.Error("expected Depth() to report not-ok for an unknown symbol")
	}
	if _, _, ok := c.LastLTP("UNKNOWN"); ok {
		t.Error("expected LastLTP() to report not-ok for an unknown symbol")
	}
}

func TestDepthCacheUpdateIgnoresNilTick(t *testing.T) {
	c := NewDepthCache()
	c.Update(nil)
	if _, _, ok := c.Depth("ANY"); ok {
		t.Error("expected nil tick to be a no-op")
	}
}

func TestDepthCacheInjectOverridesUntilNextTick(t *testing.T) {
	c := NewDepthCache()
	fake := &models.MarketDepth{Bids: []models.PriceLevel{{Price: 1, Qty: 1}}}
	c.Inject("NIFTY24JUL20000CE", fake)

	got, _, ok := c.Depth("NIFTY24JUL20000CE")
	if !ok || got != fake {
		t.Fatalf("expected injected depth to be readable, got %+v ok=%v", got, ok)
	}

	real := &models.MarketDepth{Bids: []models.PriceLevel{{Price: 2, Qty: 2}}}
	c.Update(&models.Tick{Symbol: "NIFTY24JUL20000CE", LTP: 105, Depth: real, Timestamp: time.Now()})

	got, _, ok = c.Depth("NIFTY24JUL20000CE")
	if !ok || got != real {
		t.Fatalf("expected a real tick to overwrite the injected depth, got %+v ok=%v", got, ok)
	}
}

func TestDepthCacheConsume(t *testing.T) {
	bus := NewTickBus(4)
	c := NewDepthCache()
	stop := make(chan struct{})
	done := make(chan struct{})
	go func() {
		c.Consume(stop, bus)
		close(done)
	}()

	bus.Publish(&models.Tick{Symbol: "NIFTY24JUL20000CE", LTP: 110, Timestamp: time.Now()})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if ltp, _, ok := c.LastLTP("NIFTY24JUL20000CE"); ok && ltp == 110 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	if ltp, _, ok := c.LastLTP("NIFTY24JUL20000CE"); !ok || ltp != 110 {
		t.Fatalf("expected Consume to apply the published tick, got %v ok=%v", ltp, ok)
	}

	close(stop)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected Consume to return after stop is closed")
	}
}
