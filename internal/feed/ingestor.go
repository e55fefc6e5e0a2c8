package feed

// ingestor.go - the Live Feed Ingestor: a single authoritative WebSocket
// client to the vendor, with exponential backoff, an admin kill-switch,
// and a normalized tick fan-out to the TickBus.
//
// The connection discipline (atomic int32 state, readPump/pingPump
// goroutines, resubscribe-on-reconnect, closeChan-guarded shutdown) is
// adapted from internal/exchange/ws_reconnect.go's WSReconnectManager. Two
// things change: the backoff schedule is fixed-step 5s/10s/20s/40s (not
// doubling past a cap computed from InitialDelay), and a fifth state,
// COOLDOWN, sits below BACKOFF once M consecutive failures accumulate.

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"dhancore/internal/core"
	"dhancore/internal/metrics"
	"dhancore/internal/models"
	"dhancore/pkg/ratelimit"
	"dhancore/pkg/utils"
)

// State is the Ingestor's connection state.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateCooldown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateCooldown:
		return "cooldown"
	default:
		return "unknown"
	}
}

// backoffSchedule is the fixed step sequence before repeating/capping at
// the last entry (spec.md §4.2: 5s -> 10s -> 20s -> 40s, cap configurable).
var backoffSchedule = []time.Duration{5 * time.Second, 10 * time.Second, 20 * time.Second, 40 * time.Second}

// Config controls one Ingestor (one shard connection).
type Config struct {
	ShardID        int
	WSURL          string
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	PongTimeout    time.Duration
	MaxBackoff     time.Duration // default 120s
	FailThreshold  int           // M, default 10
	CooldownPeriod time.Duration // default 660s
	TickBusSize    int           // bounded channel capacity, drop-oldest on overflow
}

func (c *Config) setDefaults() {
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = 10 * time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 120 * time.Second
	}
	if c.FailThreshold <= 0 {
		c.FailThreshold = 10
	}
	if c.CooldownPeriod <= 0 {
		c.CooldownPeriod = 660 * time.Second
	}
	if c.TickBusSize <= 0 {
		c.TickBusSize = 10000
	}
}

// KillSwitch is consulted synchronously before any connect attempt and
// between reads; when it reports disabled, the Ingestor drains and closes.
type KillSwitch interface {
	FeedEnabled() bool
}

// SubscriptionSource resolves a vendor security_id -> enrichment metadata
// (exchange, segment, symbol, option leg fields) for tick enrichment, and
// lists the vendor-subscribe payloads to (re)send on connect.
type SubscriptionSource interface {
	Lookup(securityID string) (*models.Subscription, bool)
	VendorSubscribePayloads() []interface{}
}

// AlertSink receives deduped admin alerts (spec.md §4.2: one alert per
// cause with a min-interval throttle).
type AlertSink interface {
	Alert(cause, message string)
}

var _ core.FeedStatus = (*Ingestor)(nil)

// SubscriptionSnapshot reports the desired/active subscription counts and
// per-shard occupancy the Subscription Fabric owns, so DebugSnapshot can
// report them without the Ingestor reaching across package boundaries.
type SubscriptionSnapshot interface {
	ActiveCount() int
	DesiredCount() int
	ShardCounts() map[int]int
}

// Ingestor owns one vendor WebSocket connection (or shard connection) and
// fans normalized ticks out to the TickBus.
type Ingestor struct {
	cfg Config
	log *utils.Logger

	kill  KillSwitch
	subs  SubscriptionSource
	alert AlertSink
	rates *ratelimit.MultiLimiter
	subSnap SubscriptionSnapshot

	state      int32 // atomic State
	failures   int32 // atomic consecutive-failure counter
	cooldownUntil atomic.Value // time.Time, zero value until first cooldown
	closeChan  chan struct{}
	closeOnce  sync.Once

	connMu sync.RWMutex
	conn   *websocket.Conn

	bus *TickBus

	wg sync.WaitGroup
}

// SetSubscriptionSnapshot wires the Subscription Fabric's counters into
// DebugSnapshot. Optional: a nil snapshot leaves those fields zero-valued.
func (i *Ingestor) SetSubscriptionSnapshot(s SubscriptionSnapshot) {
	i.subSnap = s
}

// New builds an Ingestor. Call Start to begin connecting.
func New(cfg Config, kill KillSwitch, subs SubscriptionSource, alert AlertSink, rates *ratelimit.MultiLimiter, log *utils.Logger) *Ingestor {
	cfg.setDefaults()
	return &Ingestor{
		cfg:       cfg,
		log:       log,
		kill:      kill,
		subs:      subs,
		alert:     alert,
		rates:     rates,
		closeChan: make(chan struct{}),
		bus:       NewTickBus(cfg.TickBusSize),
	}
}

// Bus returns the tick fan-out channel consumers read from.
func (i *Ingestor) Bus() *TickBus { return i.bus }

// State returns the current connection state.
func (i *Ingestor) State() State {
	return State(atomic.LoadInt32(&i.state))
}

// Start launches the connection loop in the background. ctx cancellation
// triggers Stop.
func (i *Ingestor) Start(ctx context.Context) {
	i.wg.Add(1)
	go func() {
		defer i.wg.Done()
		i.runLoop(ctx)
	}()
}

// Stop cancels the read loop, closes the socket, and guarantees the
// background worker is joined within 5s (spec.md §4.2 cancellation).
func (i *Ingestor) Stop() {
	i.closeOnce.Do(func() { close(i.closeChan) })

	i.connMu.Lock()
	if i.conn != nil {
		i.conn.Close()
		i.conn = nil
	}
	i.connMu.Unlock()

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		i.log.Warn("ingestor worker did not join within 5s", utils.Int("shard", i.cfg.ShardID))
	}
}

var allStateNames = []string{
	StateIdle.String(), StateConnecting.String(), StateStreaming.String(),
	StateBackoff.String(), StateCooldown.String(),
}

func (i *Ingestor) setState(s State) {
	atomic.StoreInt32(&i.state, int32(s))
	metrics.SetIngestorState(allStateNames, s.String())
	if s != StateCooldown {
		metrics.CooldownRemainingSeconds.Set(0)
	}
}

func (i *Ingestor) closed() bool {
	select {
	case <-i.closeChan:
		return true
	default:
		return false
	}
}

// runLoop drives IDLE -> CONNECTING -> STREAMING -> BACKOFF -> COOLDOWN
// transitions, consulting the kill-switch before every connect attempt.
func (i *Ingestor) runLoop(ctx context.Context) {
	for !i.closed() {
		if ctx.Err() != nil {
			return
		}

		if i.kill != nil && !i.kill.FeedEnabled() {
			i.setState(StateIdle)
			if !i.sleepOrClose(ctx, time.Second) {
				return
			}
			continue
		}

		i.setState(StateConnecting)
		if err := i.connectAndStream(ctx); err != nil {
			i.log.Warn("ingestor connect/stream ended", utils.Int("shard", i.cfg.ShardID), utils.Err(err))
		}

		if i.closed() || ctx.Err() != nil {
			return
		}

		failures := atomic.AddInt32(&i.failures, 1)
		if int(failures) >= i.cfg.FailThreshold {
			i.setState(StateCooldown)
			metrics.CooldownRemainingSeconds.Set(i.cfg.CooldownPeriod.Seconds())
			i.cooldownUntil.Store(time.Now().Add(i.cfg.CooldownPeriod))
			i.emitAlert(models.NotificationTypeFeedCooldown, fmt.Sprintf("shard %d entering cooldown after %d consecutive failures", i.cfg.ShardID, failures))
			if !i.sleepOrClose(ctx, i.cfg.CooldownPeriod) {
				return
			}
			metrics.CooldownRemainingSeconds.Set(0)
			atomic.StoreInt32(&i.failures, 0)
			continue
		}

		i.setState(StateBackoff)
		delay := backoffDelay(int(failures), i.cfg.MaxBackoff)
		if !i.sleepOrClose(ctx, delay) {
			return
		}
	}
}

// backoffDelay maps a 1-based consecutive-failure count onto the fixed
// step schedule, holding at the last step (capped at maxBackoff) once the
// schedule is exhausted.
func backoffDelay(failureCount int, maxBackoff time.Duration) time.Duration {
	idx := failureCount - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	d := backoffSchedule[idx]
	if d > maxBackoff {
		d = maxBackoff
	}
	return d
}

func (i *Ingestor) sleepOrClose(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-i.closeChan:
		return false
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (i *Ingestor) connectAndStream(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, i.cfg.ConnectTimeout)
	defer cancel()

	dialer := websocket.Dialer{HandshakeTimeout: i.cfg.ConnectTimeout}
	conn, _, err := dialer.DialContext(dialCtx, i.cfg.WSURL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	i.connMu.Lock()
	i.conn = conn
	i.connMu.Unlock()

	if i.subs != nil {
		for _, payload := range i.subs.VendorSubscribePayloads() {
			if err := conn.WriteJSON(payload); err != nil {
				i.log.Warn("resubscribe failed", utils.Int("shard", i.cfg.ShardID), utils.Err(err))
			}
		}
	}

	atomic.StoreInt32(&i.failures, 0)
	i.setState(StateStreaming)

	readErrCh := make(chan error, 1)
	go i.readPump(conn, readErrCh)

	pingDone := make(chan struct{})
	go i.pingPump(conn, pingDone)
	defer close(pingDone)

	select {
	case <-i.closeChan:
		conn.Close()
		return nil
	case <-ctx.Done():
		conn.Close()
		return nil
	case err := <-readErrCh:
		conn.Close()
		return err
	}
}

func (i *Ingestor) readPump(conn *websocket.Conn, errCh chan<- error) {
	for {
		if i.kill != nil && !i.kill.FeedEnabled() {
			errCh <- fmt.Errorf("kill switch disabled between reads")
			return
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}

		tick, ok := normalizeTick(message, i.subs, i.log)
		if !ok {
			i.bus.recordDropped()
			continue
		}
		i.bus.Publish(tick)
	}
}

func (i *Ingestor) pingPump(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(i.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-i.closeChan:
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(i.cfg.PongTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (i *Ingestor) emitAlert(cause, message string) {
	if i.alert != nil {
		i.alert.Alert(cause, message)
	}
}

// IsStreaming reports whether the connection is currently in STREAMING
// state, satisfying core.FeedStatus.
func (i *Ingestor) IsStreaming() bool {
	return i.State() == StateStreaming
}

// DebugSnapshot reports the live-feed debug surface named in spec.md §6,
// satisfying core.FeedStatus.
func (i *Ingestor) DebugSnapshot() *models.FeedDebugSnapshot {
	snap := &models.FeedDebugSnapshot{
		State:      i.State().String(),
		RetryCount: int(atomic.LoadInt32(&i.failures)),
	}
	if i.subSnap != nil {
		snap.DesiredCount = i.subSnap.DesiredCount()
		snap.ActiveCount = i.subSnap.ActiveCount()
		snap.ShardCounts = i.subSnap.ShardCounts()
	}
	if until, ok := i.cooldownUntil.Load().(time.Time); ok && !until.IsZero() && i.State() == StateCooldown {
		snap.CooldownUntil = &until
	}
	return snap
}
