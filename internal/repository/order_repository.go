package repository

// order_repository.go - persistence for `mock_orders`, `mock_trades`,
// `mock_positions`, `ledger_entries` and `execution_events` (spec.md §6),
// implementing execution.Store/execution.StoreTx. The apply-fill
// transaction runs as one database/sql transaction via WithTx, mirroring
// the rest of this package's plain database/sql DAL style.

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"dhancore/internal/execution"
	"dhancore/internal/models"
)

var _ execution.Store = (*OrderRepository)(nil)
var _ execution.StoreTx = (*sqlStoreTx)(nil)

// ErrOrderNotFound is returned when an order id has no row.
var ErrOrderNotFound = errors.New("order not found")

// OrderRepository is the Data Access Layer backing the Execution Engine's
// Store boundary.
type OrderRepository struct {
	db *sql.DB
}

// NewOrderRepository builds an OrderRepository.
func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateOrder inserts a new order row, assigning its generated ID.
func (r *OrderRepository) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO mock_orders
			(user_id, symbol, exchange_segment, transaction_type, quantity, filled_qty,
			 order_type, product_type, price, trigger_price, status, remarks, basket_id,
			 created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
		RETURNING id`

	now := time.Now()
	order.CreatedAt, order.UpdatedAt = now, now

	return r.db.QueryRowContext(ctx, query,
		order.UserID, order.Symbol, order.ExchangeSegment, order.Side, order.Quantity, order.FilledQty,
		order.OrderType, order.ProductType, order.Price, order.TriggerPrice, order.Status, order.Remarks,
		order.BasketID, order.CreatedAt, order.UpdatedAt,
	).Scan(&order.ID)
}

// GetOrder returns one order by ID.
func (r *OrderRepository) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	query := `
		SELECT id, user_id, symbol, exchange_segment, transaction_type, quantity, filled_qty,
		       order_type, product_type, price, trigger_price, status, remarks, basket_id,
		       created_at, updated_at
		FROM mock_orders WHERE id = $1`

	order := &models.Order{}
	err := r.db.QueryRowContext(ctx, query, orderID).Scan(
		&order.ID, &order.UserID, &order.Symbol, &order.ExchangeSegment, &order.Side, &order.Quantity,
		&order.FilledQty, &order.OrderType, &order.ProductType, &order.Price, &order.TriggerPrice,
		&order.Status, &order.Remarks, &order.BasketID, &order.CreatedAt, &order.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

// ListOrdersByUser returns all orders for a user, most recent first.
func (r *OrderRepository) ListOrdersByUser(ctx context.Context, userID int64) ([]*models.Order, error) {
	return r.queryOrders(ctx, `
		SELECT id, user_id, symbol, exchange_segment, transaction_type, quantity, filled_qty,
		       order_type, product_type, price, trigger_price, status, remarks, basket_id,
		       created_at, updated_at
		FROM mock_orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

// ListPendingOrders returns every order in PENDING or PARTIAL status,
// across all users, for the pending-order sweep loop.
func (r *OrderRepository) ListPendingOrders(ctx context.Context) ([]*models.Order, error) {
	return r.queryOrders(ctx, `
		SELECT id, user_id, symbol, exchange_segment, transaction_type, quantity, filled_qty,
		       order_type, product_type, price, trigger_price, status, remarks, basket_id,
		       created_at, updated_at
		FROM mock_orders WHERE status IN ($1, $2) ORDER BY created_at`,
		models.OrderStatusPending, models.OrderStatusPartial)
}

func (r *OrderRepository) queryOrders(ctx context.Context, query string, args ...interface{}) ([]*models.Order, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		order := &models.Order{}
		if err := rows.Scan(
			&order.ID, &order.UserID, &order.Symbol, &order.ExchangeSegment, &order.Side, &order.Quantity,
			&order.FilledQty, &order.OrderType, &order.ProductType, &order.Price, &order.TriggerPrice,
			&order.Status, &order.Remarks, &order.BasketID, &order.CreatedAt, &order.UpdatedAt,
		); err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// UpdateOrderStatus sets status and remarks on an order outside a fill
// transaction (cancellation, timeout rejection).
func (r *OrderRepository) UpdateOrderStatus(ctx context.Context, orderID int64, status, remarks string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE mock_orders SET status = $1, remarks = $2, updated_at = $3 WHERE id = $4`,
		status, remarks, time.Now(), orderID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// UpdateOrderTerms rewrites a resting order's price/quantity/trigger terms
// outside any fill transaction (order modification).
func (r *OrderRepository) UpdateOrderTerms(ctx context.Context, order *models.Order) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE mock_orders SET price = $1, quantity = $2, trigger_price = $3, updated_at = $4
		WHERE id = $5`,
		order.Price, order.Quantity, order.TriggerPrice, time.Now(), order.ID)
	if err != nil {
		return err
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrOrderNotFound
	}
	return nil
}

// WithTx runs fn inside one database transaction, committing on success
// and rolling back on any error fn returns.
func (r *OrderRepository) WithTx(ctx context.Context, fn func(tx execution.StoreTx) error) error {
	sqlTx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if err := fn(&sqlStoreTx{tx: sqlTx}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	return sqlTx.Commit()
}

// sqlStoreTx implements execution.StoreTx against one *sql.Tx.
type sqlStoreTx struct {
	tx *sql.Tx
}

func (t *sqlStoreTx) UpdateOrder(order *models.Order) error {
	order.UpdatedAt = time.Now()
	_, err := t.tx.Exec(`
		UPDATE mock_orders SET filled_qty = $1, price = $2, status = $3, updated_at = $4
		WHERE id = $5`,
		order.FilledQty, order.Price, order.Status, order.UpdatedAt, order.ID)
	return err
}

func (t *sqlStoreTx) InsertTrade(trade *models.Trade) error {
	if trade.FilledAt.IsZero() {
		trade.FilledAt = time.Now()
	}
	return t.tx.QueryRow(`
		INSERT INTO mock_trades (order_id, user_id, price, qty, filled_at)
		VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		trade.OrderID, trade.UserID, trade.Price, trade.Qty, trade.FilledAt,
	).Scan(&trade.ID)
}

func (t *sqlStoreTx) GetPosition(userID int64, symbol, productType string) (*models.Position, error) {
	pos := &models.Position{}
	err := t.tx.QueryRow(`
		SELECT user_id, symbol, exchange_segment, product_type, quantity, avg_price, realized_pnl, status, updated_at
		FROM mock_positions WHERE user_id = $1 AND symbol = $2 AND product_type = $3`,
		userID, symbol, productType,
	).Scan(&pos.UserID, &pos.Symbol, &pos.ExchangeSeg, &pos.ProductType, &pos.Quantity,
		&pos.AvgPrice, &pos.RealizedPnl, &pos.Status, &pos.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return pos, err
}

func (t *sqlStoreTx) UpsertPosition(pos *models.Position) error {
	_, err := t.tx.Exec(`
		INSERT INTO mock_positions (user_id, symbol, exchange_segment, product_type, quantity, avg_price, realized_pnl, status, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (user_id, symbol, product_type) DO UPDATE SET
			exchange_segment = EXCLUDED.exchange_segment, quantity = EXCLUDED.quantity,
			avg_price = EXCLUDED.avg_price, realized_pnl = EXCLUDED.realized_pnl,
			status = EXCLUDED.status, updated_at = EXCLUDED.updated_at`,
		pos.UserID, pos.Symbol, pos.ExchangeSeg, pos.ProductType, pos.Quantity,
		pos.AvgPrice, pos.RealizedPnl, pos.Status, pos.UpdatedAt)
	return err
}

func (t *sqlStoreTx) GetMargin(userID int64) (*models.MarginAccount, error) {
	m := &models.MarginAccount{}
	err := t.tx.QueryRow(`
		SELECT user_id, available_margin, used_margin, updated_at FROM margin_accounts WHERE user_id = $1`,
		userID,
	).Scan(&m.UserID, &m.Available, &m.Used, &m.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return m, err
}

func (t *sqlStoreTx) UpdateMargin(margin *models.MarginAccount) error {
	_, err := t.tx.Exec(`
		UPDATE margin_accounts SET available_margin = $1, used_margin = $2, updated_at = $3 WHERE user_id = $4`,
		margin.Available, margin.Used, margin.UpdatedAt, margin.UserID)
	return err
}

func (t *sqlStoreTx) GetAccount(userID int64) (*models.UserAccount, error) {
	a := &models.UserAccount{}
	err := t.tx.QueryRow(`
		SELECT id, wallet_balance, margin_multiplier, brokerage_plan_id, blocked
		FROM user_accounts WHERE id = $1`, userID,
	).Scan(&a.ID, &a.WalletBalance, &a.MarginMultiplier, &a.BrokeragePlanID, &a.Blocked)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return a, err
}

func (t *sqlStoreTx) GetBrokeragePlan(planID int64) (*models.BrokeragePlan, error) {
	p := &models.BrokeragePlan{}
	err := t.tx.QueryRow(`
		SELECT id, name, flat_fee, percent_fee, max_fee FROM brokerage_plans WHERE id = $1`, planID,
	).Scan(&p.ID, &p.Name, &p.FlatFee, &p.PercentFee, &p.MaxFee)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return p, err
}

func (t *sqlStoreTx) UpdateWalletBalance(userID int64, newBalance float64) error {
	_, err := t.tx.Exec(`UPDATE user_accounts SET wallet_balance = $1 WHERE id = $2`, newBalance, userID)
	return err
}

func (t *sqlStoreTx) AppendLedger(entry *models.LedgerEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return t.tx.QueryRow(`
		INSERT INTO ledger_entries (user_id, entry_type, credit, debit, balance, remarks, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) RETURNING id`,
		entry.UserID, entry.Kind, entry.Credit, entry.Debit, entry.RunningBalance, entry.Remarks, entry.CreatedAt,
	).Scan(&entry.ID)
}

func (t *sqlStoreTx) InsertExecutionEvent(event *models.ExecutionEvent) error {
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}
	return t.tx.QueryRow(`
		INSERT INTO execution_events
			(order_id, user_id, symbol, event_type, decision_time_price, fill_price, fill_quantity, reason, latency_ms, slippage, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11) RETURNING id`,
		event.OrderID, event.UserID, event.Symbol, event.EventType, event.DecisionPrice, event.FillPrice,
		event.FillQuantity, event.Reason, event.LatencyMs, event.Slippage, event.CreatedAt,
	).Scan(&event.ID)
}
