package execution

// fill.go - fill computation and the apply-fill transaction (spec.md
// §4.4). Fill computation decides how much of an order can trade right
// now against the resolved snapshot; ApplyFill folds one fill atomically
// into Order, Trade, Position, Margin, Wallet and Ledger, mirroring the
// teacher's pattern of a narrow Store boundary interface owned by the
// package that uses it (see subscription.Repository, optionchain.ChainSource).

import (
	"context"
	"fmt"
	"time"

	"dhancore/internal/models"
	"dhancore/pkg/utils"
)

// FillResult is the outcome of one fill attempt against a snapshot.
type FillResult struct {
	Filled    bool
	Quantity  int64
	Price     float64
	Slippage  float64
	Remaining int64
}

// ComputeFill decides the fill for order against snap and lotSize,
// applying the slippage model. Returns Filled=false when nothing can
// trade yet (LIMIT not crossed, or zero top_qty).
func ComputeFill(order *models.Order, snap Snapshot, params SlippageParams, lotSize int64) FillResult {
	remaining := order.Remaining()
	effType := EffectiveOrderType(order)

	topPrice, topQty := TopOfBook(order.Side, snap)
	if topPrice <= 0 || topQty <= 0 {
		return FillResult{Remaining: remaining}
	}

	if effType == models.OrderTypeLimit && !LimitCrosses(order.Side, order.Price, snap) {
		return FillResult{Remaining: remaining}
	}

	spread := Spread(snap)
	fillQty := remaining
	if topQty < fillQty {
		fillQty = topQty
	}

	step := lotSize
	if step < 1 {
		step = 1
	}
	fillQty = int64(utils.RoundToLotSize(float64(fillQty), float64(step)))
	if fillQty <= 0 {
		return FillResult{Remaining: remaining}
	}

	perUnit := params.PerUnit(spread, fillQty, topQty)
	price := topPrice + sign(order.Side)*perUnit

	return FillResult{
		Filled:    true,
		Quantity:  fillQty,
		Price:     price,
		Slippage:  perUnit,
		Remaining: remaining - fillQty,
	}
}

// Store is the persistence boundary the apply-fill transaction runs
// against. A concrete implementation lives in internal/repository and is
// expected to execute ApplyFill's body inside one database transaction.
type Store interface {
	// WithTx runs fn inside one atomic unit of work; fn's error rolls
	// the unit back.
	WithTx(ctx context.Context, fn func(tx StoreTx) error) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrder(ctx context.Context, orderID int64) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID int64) ([]*models.Order, error)
	ListPendingOrders(ctx context.Context) ([]*models.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, status, remarks string) error
	UpdateOrderTerms(ctx context.Context, order *models.Order) error
}

// StoreTx is the set of operations ApplyFill needs from within one
// transaction.
type StoreTx interface {
	UpdateOrder(order *models.Order) error
	InsertTrade(trade *models.Trade) error
	GetPosition(userID int64, symbol, productType string) (*models.Position, error)
	UpsertPosition(pos *models.Position) error
	GetMargin(userID int64) (*models.MarginAccount, error)
	UpdateMargin(margin *models.MarginAccount) error
	GetAccount(userID int64) (*models.UserAccount, error)
	GetBrokeragePlan(planID int64) (*models.BrokeragePlan, error)
	UpdateWalletBalance(userID int64, newBalance float64) error
	AppendLedger(entry *models.LedgerEntry) error
	InsertExecutionEvent(event *models.ExecutionEvent) error
}

// ApplyFill folds one fill into order, inserting a Trade and updating
// Position/Margin/Wallet/Ledger, all within one Store transaction. The
// caller supplies the instrument's exchange_segment (for Position) and
// marginMultiplier (0 for non-MIS products, where it is ignored).
func ApplyFill(ctx context.Context, store Store, order *models.Order, exchangeSeg string, fill FillResult, marginMultiplier float64, latencyMs int64) error {
	return store.WithTx(ctx, func(tx StoreTx) error {
		signedQty := fill.Quantity
		if order.Side == models.SideSell {
			signedQty = -signedQty
		}

		order.FilledQty += fill.Quantity
		// a LIMIT order keeps its submitted price once set; only MARKET
		// orders (whose submitted price is always 0) or a LIMIT order
		// that somehow still has no price get overwritten with the fill
		if order.OrderType == models.OrderTypeMarket || order.Price <= 0 {
			order.Price = weightedFillPrice(order, fill)
		}

		eventType := models.EventPartialFill
		if order.Remaining() <= 0 {
			order.Status = models.OrderStatusExecuted
			eventType = models.EventFullFill
		} else {
			order.Status = models.OrderStatusPartial
		}

		if err := tx.UpdateOrder(order); err != nil {
			return fmt.Errorf("update order: %w", err)
		}

		trade := &models.Trade{
			OrderID:  order.ID,
			UserID:   order.UserID,
			Price:    fill.Price,
			Qty:      fill.Quantity,
			FilledAt: time.Now(),
		}
		if err := tx.InsertTrade(trade); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}

		pos, err := tx.GetPosition(order.UserID, order.Symbol, order.ProductType)
		if err != nil {
			return fmt.Errorf("get position: %w", err)
		}
		if pos == nil {
			pos = &models.Position{
				UserID:      order.UserID,
				Symbol:      order.Symbol,
				ExchangeSeg: exchangeSeg,
				ProductType: order.ProductType,
				Status:      models.PositionOpen,
			}
		}
		pos.ApplyFill(fill.Price, signedQty)
		pos.UpdatedAt = time.Now()
		if err := tx.UpsertPosition(pos); err != nil {
			return fmt.Errorf("upsert position: %w", err)
		}

		notional := fill.Price * float64(fill.Quantity)

		margin, err := tx.GetMargin(order.UserID)
		if err != nil {
			return fmt.Errorf("get margin: %w", err)
		}
		if margin != nil {
			marginDelta := notional
			if order.ProductType == models.ProductMIS && marginMultiplier > 0 {
				marginDelta = notional / marginMultiplier
			}
			margin.Used += marginDelta
			margin.UpdatedAt = time.Now()
			if err := tx.UpdateMargin(margin); err != nil {
				return fmt.Errorf("update margin: %w", err)
			}
		}

		acct, err := tx.GetAccount(order.UserID)
		if err != nil {
			return fmt.Errorf("get account: %w", err)
		}

		var brokerage float64
		if acct != nil && acct.BrokeragePlanID != nil {
			plan, err := tx.GetBrokeragePlan(*acct.BrokeragePlanID)
			if err != nil {
				return fmt.Errorf("get brokerage plan: %w", err)
			}
			if plan != nil {
				brokerage = plan.Brokerage(notional)
			}
		}

		if acct != nil {
			newBalance := acct.WalletBalance
			ledger := &models.LedgerEntry{
				UserID:    order.UserID,
				CreatedAt: time.Now(),
			}
			if order.Side == models.SideBuy {
				ledger.Kind = models.LedgerTradePnl
				ledger.Debit = notional + brokerage
				newBalance -= ledger.Debit
			} else {
				ledger.Kind = models.LedgerTradePnl
				ledger.Credit = notional - brokerage
				newBalance += ledger.Credit
			}
			ledger.RunningBalance = newBalance
			ledger.Remarks = fmt.Sprintf("fill order %d", order.ID)

			if err := tx.UpdateWalletBalance(order.UserID, newBalance); err != nil {
				return fmt.Errorf("update wallet: %w", err)
			}
			if err := tx.AppendLedger(ledger); err != nil {
				return fmt.Errorf("append ledger: %w", err)
			}
		}

		event := &models.ExecutionEvent{
			OrderID:      order.ID,
			UserID:       order.UserID,
			Symbol:       order.Symbol,
			EventType:    eventType,
			FillPrice:    fill.Price,
			FillQuantity: fill.Quantity,
			LatencyMs:    latencyMs,
			Slippage:     fill.Slippage,
			CreatedAt:    time.Now(),
		}
		if err := tx.InsertExecutionEvent(event); err != nil {
			return fmt.Errorf("insert execution event: %w", err)
		}

		return nil
	})
}

// weightedFillPrice folds a new fill into the order's running
// volume-weighted average price.
func weightedFillPrice(order *models.Order, fill FillResult) float64 {
	priorQty := order.FilledQty - fill.Quantity
	if priorQty <= 0 {
		return fill.Price
	}
	prices := []float64{order.Price, fill.Price}
	quantities := []float64{float64(priorQty), float64(fill.Quantity)}
	return utils.CalculateWeightedAverage(prices, quantities)
}
