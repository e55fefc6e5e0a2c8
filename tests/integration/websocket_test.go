// Package integration - option-chain broadcaster tests.
//
// These exercise internal/feed.OptionChainBroadcaster end to end: an HTTP
// test server serving the broadcaster's ServeWS handler, a real gorilla/websocket client
// dialing in, and the periodic push loop actually writing a snapshot once
// the option chain cache has data for it to read.
//
// Run with: go test ./tests/integration/...
package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dhancore/internal/feed"
	"dhancore/internal/models"
	"dhancore/internal/optionchain"
	"dhancore/internal/registry"
	"dhancore/pkg/utils"

	"github.com/gorilla/websocket"
)

// fakeChainSource serves one fixed option-chain skeleton for every
// underlying/expiry, enough to drive EnsureLoaded without a live vendor call.
type fakeChainSource struct {
	skel *models.OptionChainSkeleton
}

func (f *fakeChainSource) FetchLiveSnapshot(ctx context.Context, underlying, expiry string) (*models.OptionChainSkeleton, error) {
	return f.skel, nil
}

func (f *fakeChainSource) FetchClosingSnapshot(ctx context.Context, underlying, expiry string) (*models.OptionChainSkeleton, error) {
	return f.skel, nil
}

func (f *fakeChainSource) FetchExpiries(ctx context.Context, underlying string) ([]string, error) {
	return []string{f.skel.Expiry}, nil
}

// alwaysOpenClock reports every exchange as open, forcing the broadcaster
// onto its tightest (market-hours) push interval.
type alwaysOpenClock struct{}

func (alwaysOpenClock) IsExchangeOpen(string) bool { return true }

// noopWindowPublisher discards window diffs; these tests don't exercise
// subscription fan-out.
type noopWindowPublisher struct{}

func (noopWindowPublisher) PublishWindowDiff(underlying, expiry string, added, removed []optionchain.WindowLeg) {
}

// noopAlertSink discards admin alerts.
type noopAlertSink struct{}

func (noopAlertSink) Alert(cause, message string) {}

func buildTestChainCache(t *testing.T) *optionchain.Cache {
	t.Helper()

	skel := &models.OptionChainSkeleton{
		Underlying:  "NIFTY",
		Expiry:      "2026-08-07",
		LotSize:     50,
		StrikeStep:  50,
		ATM:         24000,
		LastUpdated: time.Now(),
		Strikes: map[float64]*models.StrikeData{
			24000: {
				Strike: 24000,
				CE:     &models.OptionLeg{Token: "1001", LTP: 120.5, UpdatedAt: time.Now()},
				PE:     &models.OptionLeg{Token: "1002", LTP: 95.25, UpdatedAt: time.Now()},
			},
		},
	}

	universe := registry.NewUniverse()
	reg := registry.New()

	cache := optionchain.New(universe, reg, &fakeChainSource{skel: skel}, alwaysOpenClock{}, noopWindowPublisher{}, noopAlertSink{}, utils.GetGlobalLogger())

	if err := cache.EnsureLoaded(context.Background(), "NIFTY", models.ExchangeNSE); err != nil {
		t.Fatalf("failed to warm chain cache: %v", err)
	}
	return cache
}

func waitForClientCount(t *testing.T, b *feed.OptionChainBroadcaster, want int, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if b.ClientCount() == want {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for client count %d, got %d", want, b.ClientCount())
}

func TestOptionChainBroadcaster_PushesSnapshotToClient(t *testing.T) {
	cache := buildTestChainCache(t)
	broadcaster := feed.NewOptionChainBroadcaster(cache, alwaysOpenClock{}, utils.GetGlobalLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(broadcaster.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}
	defer conn.Close()

	waitForClientCount(t, broadcaster, 1, 5*time.Second)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("failed to read pushed snapshot: %v", err)
	}
	if !strings.Contains(string(payload), "option_chain_snapshot") {
		t.Errorf("expected a snapshot push, got: %s", payload)
	}
	if !strings.Contains(string(payload), "NIFTY") {
		t.Errorf("expected snapshot to carry the NIFTY underlying, got: %s", payload)
	}
}

func TestOptionChainBroadcaster_EvictsOnDisconnect(t *testing.T) {
	cache := buildTestChainCache(t)
	broadcaster := feed.NewOptionChainBroadcaster(cache, alwaysOpenClock{}, utils.GetGlobalLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(broadcaster.ServeWS))
	defer server.Close()

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("failed to dial websocket: %v", err)
	}

	waitForClientCount(t, broadcaster, 1, 5*time.Second)
	conn.Close()
	waitForClientCount(t, broadcaster, 0, 5*time.Second)
}

func TestOptionChainBroadcaster_MultipleClients(t *testing.T) {
	cache := buildTestChainCache(t)
	broadcaster := feed.NewOptionChainBroadcaster(cache, alwaysOpenClock{}, utils.GetGlobalLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go broadcaster.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(broadcaster.ServeWS))
	defer server.Close()
	wsURL := "ws" + strings.TrimPrefix(server.URL, "http")

	const numClients = 5
	conns := make([]*websocket.Conn, 0, numClients)
	for i := 0; i < numClients; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err != nil {
			t.Fatalf("client %d failed to dial: %v", i, err)
		}
		conns = append(conns, conn)
	}
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	waitForClientCount(t, broadcaster, numClients, 5*time.Second)

	for i, conn := range conns {
		conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("client %d failed to read snapshot: %v", i, err)
		}
		if !strings.Contains(string(payload), "option_chain_snapshot") {
			t.Errorf("client %d: expected a snapshot push, got: %s", i, payload)
		}
	}
}
