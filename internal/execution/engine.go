package execution

// engine.go - the Execution Engine composition (spec.md §4.4): ties the
// snapshot oracle, pre-trade checks, latency/slippage models, and the
// apply-fill transaction into the order lifecycle, plus the pending-order
// sweep loop. Mirrors the teacher's bot engine (internal/bot/engine.go)
// in shape: a struct owning its dependencies by interface, a Start/Stop
// pair around one background goroutine, and plain exported lifecycle
// methods rather than an actor/message-passing design.

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dhancore/internal/core"
	"dhancore/internal/metrics"
	"dhancore/internal/models"
	"dhancore/pkg/utils"
)

// AccountSource resolves user account and margin state.
type AccountSource interface {
	Account(ctx context.Context, userID int64) (*models.UserAccount, error)
	Margin(ctx context.Context, userID int64) (*models.MarginAccount, error)
}

// LotSizeSource resolves an instrument's lot size and exchange segment.
type LotSizeSource interface {
	LotSize(symbol string) int64
	ExchangeSegment(symbol string) string
}

// AlertSink is the admin-alert boundary, satisfied by feed.Deduper.
type AlertSink interface {
	Alert(cause, message string)
}

// Config tunes per-exchange latency, slippage and liquidity-timeout
// parameters. All per-exchange maps fall back to the Default* value when
// an exchange segment has no entry.
type Config struct {
	SweepInterval      time.Duration
	DefaultTimeout     time.Duration
	PerExchangeTimeout map[string]time.Duration

	DefaultLatency     LatencyShape
	PerExchangeLatency map[string]LatencyShape

	DefaultSlippage     SlippageParams
	PerExchangeSlippage map[string]SlippageParams
}

func (c *Config) setDefaults() {
	if c.SweepInterval <= 0 {
		c.SweepInterval = 2 * time.Second
	}
	if c.DefaultTimeout <= 0 {
		c.DefaultTimeout = 30 * time.Second
	}
}

func (c *Config) timeoutFor(segment string) time.Duration {
	if d, ok := c.PerExchangeTimeout[segment]; ok {
		return d
	}
	return c.DefaultTimeout
}

func (c *Config) latencyFor(segment string) LatencyShape {
	if shape, ok := c.PerExchangeLatency[segment]; ok {
		return shape
	}
	return c.DefaultLatency
}

func (c *Config) slippageFor(segment string) SlippageParams {
	if p, ok := c.PerExchangeSlippage[segment]; ok {
		return p
	}
	return c.DefaultSlippage
}

// Engine is the Execution Engine. It satisfies core.OrderService.
type Engine struct {
	cfg      Config
	oracle   *Oracle
	store    Store
	accounts AccountSource
	lots     LotSizeSource
	latency  *LatencyModel
	alert    AlertSink
	log      *utils.Logger

	mu           sync.Mutex
	pendingSince map[int64]time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

var _ core.OrderService = (*Engine)(nil)

// New builds an Engine. cfg is copied and defaulted.
func New(cfg Config, oracle *Oracle, store Store, accounts AccountSource, lots LotSizeSource, alert AlertSink, log *utils.Logger) *Engine {
	cfg.setDefaults()
	return &Engine{
		cfg:          cfg,
		oracle:       oracle,
		store:        store,
		accounts:     accounts,
		lots:         lots,
		latency:      NewLatencyModel(),
		alert:        alert,
		log:          log,
		pendingSince: make(map[int64]time.Time),
	}
}

// Start launches the pending-order sweep loop.
func (e *Engine) Start(ctx context.Context) {
	e.stopCh = make(chan struct{})
	e.doneCh = make(chan struct{})
	go e.sweepLoop(ctx)
}

// Stop signals the sweep loop to exit and waits (bounded) for it. The
// Engine keeps finishing any in-flight apply-fill transaction (spec.md
// §5): it only stops accepting new sweep iterations, never aborts a
// PlaceOrder call already in ApplyFill.
func (e *Engine) Stop() {
	if e.stopCh == nil {
		return
	}
	close(e.stopCh)
	select {
	case <-e.doneCh:
	case <-time.After(5 * time.Second):
	}
}

func (e *Engine) sweepLoop(ctx context.Context) {
	defer close(e.doneCh)
	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopCh:
			return
		case <-ticker.C:
			e.sweepOnce(ctx)
		}
	}
}

func (e *Engine) sweepOnce(ctx context.Context) {
	orders, err := e.store.ListPendingOrders(ctx)
	if err != nil {
		e.log.Error("list pending orders", utils.Err(err))
		return
	}
	for _, order := range orders {
		e.tryFillOrTimeout(ctx, order)
	}
}

func (e *Engine) tryFillOrTimeout(ctx context.Context, order *models.Order) {
	segment := e.lots.ExchangeSegment(order.Symbol)
	since := e.firstSeenLocked(order.ID)

	if time.Since(since) > e.cfg.timeoutFor(segment) {
		_ = e.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusRejected, models.ReasonNoLiquidityTimeout)
		e.clearPendingLocked(order.ID)
		metrics.RecordRejection(models.ReasonNoLiquidityTimeout)
		e.log.Warn("order timed out waiting for liquidity", utils.Int("order_id", int(order.ID)))
		return
	}

	snap, err := e.oracle.Resolve(order.Symbol)
	if err != nil {
		return
	}
	if !IsActivated(order, snap) {
		return
	}

	e.attemptFill(ctx, order, segment, snap)
}

func (e *Engine) firstSeenLocked(orderID int64) time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.pendingSince[orderID]; ok {
		return t
	}
	now := time.Now()
	e.pendingSince[orderID] = now
	metrics.PendingOrders.Set(float64(len(e.pendingSince)))
	return now
}

func (e *Engine) clearPendingLocked(orderID int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pendingSince, orderID)
	metrics.PendingOrders.Set(float64(len(e.pendingSince)))
}

func (e *Engine) attemptFill(ctx context.Context, order *models.Order, segment string, snap Snapshot) {
	lotSize := e.lots.LotSize(order.Symbol)
	fill := ComputeFill(order, snap, e.cfg.slippageFor(segment), lotSize)
	if !fill.Filled {
		return
	}

	acct, err := e.accounts.Account(ctx, order.UserID)
	if err != nil {
		e.log.Error("resolve account for fill", utils.Err(err))
		return
	}
	multiplier := 0.0
	if acct != nil {
		multiplier = acct.MarginMultiplier
	}

	if err := ApplyFill(ctx, e.store, order, segment, fill, multiplier, 0); err != nil {
		e.log.Error("apply fill", utils.Err(err), utils.Int("order_id", int(order.ID)))
		return
	}
	metrics.RecordFill(segment, order.OrderType, 0)
	if order.IsTerminal() {
		e.clearPendingLocked(order.ID)
	}
}

// PlaceOrder validates, persists and attempts an immediate fill for a new
// order, satisfying core.OrderService.
func (e *Engine) PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	acct, err := e.accounts.Account(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve account: %w", err)
	}

	if reason, rejErr := CheckPreTrade(acct, order); rejErr != nil {
		order.Status = models.OrderStatusRejected
		order.Remarks = reason
		if err := e.store.CreateOrder(ctx, order); err != nil {
			return nil, fmt.Errorf("persist rejected order: %w", err)
		}
		metrics.RecordRejection(reason)
		return order, nil
	}

	segment := e.lots.ExchangeSegment(order.Symbol)
	lotSize := e.lots.LotSize(order.Symbol)

	margin, err := e.accounts.Margin(ctx, order.UserID)
	if err != nil {
		return nil, fmt.Errorf("resolve margin: %w", err)
	}

	// required margin is estimated off a decision price resolved from the
	// current book top (ask for BUY, bid for SELL), falling back to the
	// order's own submitted price when no snapshot is available yet -
	// order.Price is always 0 for MARKET orders, which would otherwise
	// under-price every required-margin check for the majority order type
	decisionPrice := order.Price
	if snap, err := e.oracle.Resolve(order.Symbol); err == nil {
		if order.Side == models.SideBuy && snap.BestAsk > 0 {
			decisionPrice = snap.BestAsk
		} else if order.Side == models.SideSell && snap.BestBid > 0 {
			decisionPrice = snap.BestBid
		}
	}
	required := RequiredMargin(decisionPrice, order.Quantity, order.ProductType, acct.MarginMultiplier)
	if CheckMargin(margin, required) {
		order.Remarks = models.ReasonMarginExceeded
	}

	order.Status = models.OrderStatusPending
	if err := e.store.CreateOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("persist order: %w", err)
	}
	e.firstSeenLocked(order.ID)

	if order.IsTriggerBased() {
		return order, nil
	}

	latency := e.latency.Sleep(ctx, e.cfg.latencyFor(segment))

	snap, err := e.oracle.Resolve(order.Symbol)
	if err != nil {
		return order, nil
	}
	fill := ComputeFill(order, snap, e.cfg.slippageFor(segment), lotSize)
	if !fill.Filled {
		return order, nil
	}
	if err := ApplyFill(ctx, e.store, order, segment, fill, acct.MarginMultiplier, latency.Milliseconds()); err != nil {
		e.log.Error("apply fill on placement", utils.Err(err))
		return order, nil
	}
	metrics.RecordFill(segment, order.OrderType, float64(latency.Milliseconds()))
	if order.IsTerminal() {
		e.clearPendingLocked(order.ID)
	}
	return order, nil
}

// ModifyOrder updates price/quantity on a resting (non-terminal) order.
func (e *Engine) ModifyOrder(ctx context.Context, orderID int, price float64, qty int64) (*models.Order, error) {
	order, err := e.store.GetOrder(ctx, int64(orderID))
	if err != nil {
		return nil, err
	}
	if order == nil || order.IsTerminal() {
		return nil, core.ErrNotFound
	}
	order.Price = price
	order.Quantity = qty
	if err := e.store.UpdateOrderTerms(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// CancelOrder marks a resting order CANCELLED.
func (e *Engine) CancelOrder(ctx context.Context, orderID int) error {
	order, err := e.store.GetOrder(ctx, int64(orderID))
	if err != nil {
		return err
	}
	if order == nil || order.IsTerminal() {
		return core.ErrNotFound
	}
	if err := e.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled, ""); err != nil {
		return err
	}
	e.clearPendingLocked(order.ID)
	return nil
}

// SquareOff places no order: it returns an error on every call, whatever
// the position in symbol/productType. A position is flattened through
// PlaceOrder with the opposite side sized to the position quantity, as
// admin ForcePositionExit does.
func (e *Engine) SquareOff(ctx context.Context, userID int, symbol string, productType string) error {
	return fmt.Errorf("squareoff requires a position quantity: use PlaceOrder directly")
}

// GetOrder returns one order by ID.
func (e *Engine) GetOrder(ctx context.Context, orderID int) (*models.Order, error) {
	return e.store.GetOrder(ctx, int64(orderID))
}

// ListOrders returns all orders for a user.
func (e *Engine) ListOrders(ctx context.Context, userID int) ([]*models.Order, error) {
	return e.store.ListOrdersByUser(ctx, int64(userID))
}
