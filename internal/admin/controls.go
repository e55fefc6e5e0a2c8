package admin

// controls.go - the admin surface named in spec.md §6: feed kill-switch,
// per-exchange market-hours override, forced depth injection, margin
// recompute, force position exit. Controls is the single concrete
// implementer of core.AdminControls and feed.KillSwitch: the kill-switch
// flag is cached in-memory (sync/atomic) so the Ingestor's hot connect path
// never takes a DB round-trip to check it, while SetKillSwitch still
// persists through to admin_settings so the flag survives a restart.

import (
	"context"
	"errors"
	"sync/atomic"

	"dhancore/internal/core"
	"dhancore/internal/execution"
	"dhancore/internal/feed"
	"dhancore/internal/models"
	"dhancore/internal/repository"
)

var _ core.AdminControls = (*Controls)(nil)
var _ feed.KillSwitch = (*Controls)(nil)

// ErrNoOpenPosition is returned by ForcePositionExit when the user has no
// open position in (symbol, productType).
var ErrNoOpenPosition = errors.New("admin: no open position")

// Controls wires the admin surface to its backing stores.
type Controls struct {
	settings *repository.SettingsRepository
	accounts *repository.AccountRepository
	depth    *feed.DepthCache
	orders   core.OrderService

	killSwitch atomic.Bool
}

// New builds Controls, seeding the in-memory kill-switch flag from the
// persisted settings row. Call this once at startup before the Ingestor
// is started, since the Ingestor consults FeedEnabled synchronously.
func New(ctx context.Context, settings *repository.SettingsRepository, accounts *repository.AccountRepository, depth *feed.DepthCache, orders core.OrderService) (*Controls, error) {
	c := &Controls{settings: settings, accounts: accounts, depth: depth, orders: orders}

	s, err := settings.Get(ctx)
	if err != nil {
		return nil, err
	}
	c.killSwitch.Store(s.FeedKillSwitch)
	return c, nil
}

// FeedEnabled satisfies feed.KillSwitch: true means the feed may connect.
func (c *Controls) FeedEnabled() bool {
	return !c.killSwitch.Load()
}

// SetOrders injects the Execution Engine after construction: Controls must
// exist before the engine does (it is the Ingestor's kill-switch, wired
// first), so ForcePositionExit's order-placement dependency is supplied
// once the rest of the composition root has built the engine.
func (c *Controls) SetOrders(orders core.OrderService) {
	c.orders = orders
}

// SetKillSwitch flips the feed kill-switch, persisting it and updating the
// in-memory flag the Ingestor reads on its hot path.
func (c *Controls) SetKillSwitch(ctx context.Context, enabled bool) error {
	s, err := c.settings.Get(ctx)
	if err != nil {
		return err
	}
	s.FeedKillSwitch = enabled
	if err := c.settings.Update(ctx, s); err != nil {
		return err
	}
	c.killSwitch.Store(enabled)
	return nil
}

// SetMarketHoursOverride force-opens or force-closes trading hours for one
// exchange segment, independent of the real clock.
func (c *Controls) SetMarketHoursOverride(ctx context.Context, exchange string, forcedOpen bool) error {
	s, err := c.settings.Get(ctx)
	if err != nil {
		return err
	}
	if s.MarketHoursOverride == nil {
		s.MarketHoursOverride = make(map[string]bool)
	}
	s.MarketHoursOverride[exchange] = forcedOpen
	return c.settings.Update(ctx, s)
}

// InjectDepth overrides the live depth cache for one symbol, for
// reproducing fills against a known book in tests. token is the symbol
// key the feed's DepthCache and the Execution Engine's snapshot oracle
// both index by.
func (c *Controls) InjectDepth(ctx context.Context, token string, depth *models.MarketDepth) error {
	c.depth.Inject(token, depth)
	return nil
}

// RecomputeMargin rebuilds a user's used-margin figure from their currently
// open positions, per the same notional/multiplier formula ApplyFill uses
// on every fill (execution.RequiredMargin), and persists the result.
func (c *Controls) RecomputeMargin(ctx context.Context, userID int) (*models.MarginAccount, error) {
	account, err := c.accounts.Account(ctx, int64(userID))
	if err != nil {
		return nil, err
	}
	positions, err := c.accounts.ListOpenPositionsByUser(ctx, int64(userID))
	if err != nil {
		return nil, err
	}

	var used float64
	for _, p := range positions {
		qty := p.Quantity
		if qty < 0 {
			qty = -qty
		}
		used += execution.RequiredMargin(p.AvgPrice, qty, p.ProductType, account.MarginMultiplier)
	}

	margin, err := c.accounts.Margin(ctx, int64(userID))
	if err != nil {
		return nil, err
	}
	margin.Used = used
	margin.Available = account.WalletBalance*account.MarginMultiplier - used
	if err := c.accounts.UpdateMargin(ctx, margin); err != nil {
		return nil, err
	}
	return margin, nil
}

// ForcePositionExit places an immediate market order on the opposite side
// of the user's position in (symbol, productType), sized to flatten it.
func (c *Controls) ForcePositionExit(ctx context.Context, userID int, symbol, productType string) error {
	position, err := c.accounts.GetPosition(ctx, int64(userID), symbol, productType)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return ErrNoOpenPosition
		}
		return err
	}
	if !position.IsOpen() {
		return ErrNoOpenPosition
	}

	qty := position.Quantity
	side := models.SideSell
	if qty < 0 {
		side = models.SideBuy
		qty = -qty
	}

	order := &models.Order{
		UserID:          int64(userID),
		Symbol:          symbol,
		ExchangeSegment: position.ExchangeSeg,
		Side:            side,
		Quantity:        qty,
		OrderType:       models.OrderTypeMarket,
		ProductType:     productType,
		Remarks:         "admin force exit",
	}
	_, err = c.orders.PlaceOrder(ctx, order)
	return err
}
