package execution

import (
	"context"
	"fmt"
	"testing"

	"dhancore/internal/models"
)

func TestComputeFill_MarketFullFill(t *testing.T) {
	order := &models.Order{Side: models.SideBuy, OrderType: models.OrderTypeMarket, Quantity: 50}
	snap := Snapshot{BestAsk: 100, AskQty: 100}
	fill := ComputeFill(order, snap, SlippageParams{}, 1)
	if !fill.Filled || fill.Quantity != 50 || fill.Remaining != 0 {
		t.Fatalf("expected full fill of 50, got %+v", fill)
	}
}

func TestComputeFill_MarketPartialFillWhenTopQtyInsufficient(t *testing.T) {
	order := &models.Order{Side: models.SideBuy, OrderType: models.OrderTypeMarket, Quantity: 50}
	snap := Snapshot{BestAsk: 100, AskQty: 20}
	fill := ComputeFill(order, snap, SlippageParams{}, 1)
	if !fill.Filled || fill.Quantity != 20 || fill.Remaining != 30 {
		t.Fatalf("expected partial fill of 20 with 30 remaining, got %+v", fill)
	}
}

func TestComputeFill_LimitDoesNotFillWhenNotCrossed(t *testing.T) {
	order := &models.Order{Side: models.SideBuy, OrderType: models.OrderTypeLimit, Quantity: 10, Price: 90}
	snap := Snapshot{BestAsk: 100, AskQty: 50}
	fill := ComputeFill(order, snap, SlippageParams{}, 1)
	if fill.Filled {
		t.Fatal("expected no fill: limit price below ask")
	}
}

func TestComputeFill_LimitFillsWhenCrossed(t *testing.T) {
	order := &models.Order{Side: models.SideBuy, OrderType: models.OrderTypeLimit, Quantity: 10, Price: 105}
	snap := Snapshot{BestAsk: 100, AskQty: 50}
	fill := ComputeFill(order, snap, SlippageParams{}, 1)
	if !fill.Filled || fill.Quantity != 10 {
		t.Fatalf("expected fill of 10, got %+v", fill)
	}
}

func TestComputeFill_RespectsLotStep(t *testing.T) {
	order := &models.Order{Side: models.SideBuy, OrderType: models.OrderTypeMarket, Quantity: 75}
	snap := Snapshot{BestAsk: 100, AskQty: 75}
	fill := ComputeFill(order, snap, SlippageParams{}, 50)
	if !fill.Filled || fill.Quantity != 50 {
		t.Fatalf("expected fill rounded down to lot step 50, got %+v", fill)
	}
}

func TestComputeFill_NoTopOfBookMeansNoFill(t *testing.T) {
	order := &models.Order{Side: models.SideBuy, OrderType: models.OrderTypeMarket, Quantity: 10}
	fill := ComputeFill(order, Snapshot{}, SlippageParams{}, 1)
	if fill.Filled {
		t.Fatal("expected no fill with empty snapshot")
	}
}

// fakeStore is an in-memory Store/StoreTx for apply-fill tests.
type fakeStore struct {
	orders    map[int64]*models.Order
	positions map[string]*models.Position
	margins   map[int64]*models.MarginAccount
	accounts  map[int64]*models.UserAccount
	plans     map[int64]*models.BrokeragePlan
	trades    []*models.Trade
	ledger    []*models.LedgerEntry
	events    []*models.ExecutionEvent
	nextID    int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		orders:    make(map[int64]*models.Order),
		positions: make(map[string]*models.Position),
		margins:   make(map[int64]*models.MarginAccount),
		accounts:  make(map[int64]*models.UserAccount),
		plans:     make(map[int64]*models.BrokeragePlan),
	}
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(tx StoreTx) error) error {
	return fn(s)
}

func (s *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	s.nextID++
	order.ID = s.nextID
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) GetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	return s.orders[orderID], nil
}

func (s *fakeStore) ListOrdersByUser(ctx context.Context, userID int64) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range s.orders {
		if o.UserID == userID {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) ListPendingOrders(ctx context.Context) ([]*models.Order, error) {
	var out []*models.Order
	for _, o := range s.orders {
		if o.Status == models.OrderStatusPending || o.Status == models.OrderStatusPartial {
			out = append(out, o)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateOrderStatus(ctx context.Context, orderID int64, status, remarks string) error {
	if o, ok := s.orders[orderID]; ok {
		o.Status = status
		o.Remarks = remarks
	}
	return nil
}

func (s *fakeStore) UpdateOrder(order *models.Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) UpdateOrderTerms(ctx context.Context, order *models.Order) error {
	s.orders[order.ID] = order
	return nil
}

func (s *fakeStore) InsertTrade(trade *models.Trade) error {
	s.trades = append(s.trades, trade)
	return nil
}

func posKey(userID int64, symbol, productType string) string {
	return fmt.Sprintf("%d|%s|%s", userID, symbol, productType)
}

func (s *fakeStore) GetPosition(userID int64, symbol, productType string) (*models.Position, error) {
	return s.positions[posKey(userID, symbol, productType)], nil
}

func (s *fakeStore) UpsertPosition(pos *models.Position) error {
	s.positions[posKey(pos.UserID, pos.Symbol, pos.ProductType)] = pos
	return nil
}

func (s *fakeStore) GetMargin(userID int64) (*models.MarginAccount, error) {
	return s.margins[userID], nil
}

func (s *fakeStore) UpdateMargin(margin *models.MarginAccount) error {
	s.margins[margin.UserID] = margin
	return nil
}

func (s *fakeStore) GetAccount(userID int64) (*models.UserAccount, error) {
	return s.accounts[userID], nil
}

func (s *fakeStore) GetBrokeragePlan(planID int64) (*models.BrokeragePlan, error) {
	return s.plans[planID], nil
}

func (s *fakeStore) UpdateWalletBalance(userID int64, newBalance float64) error {
	if a, ok := s.accounts[userID]; ok {
		a.WalletBalance = newBalance
	}
	return nil
}

func (s *fakeStore) AppendLedger(entry *models.LedgerEntry) error {
	s.ledger = append(s.ledger, entry)
	return nil
}

func (s *fakeStore) InsertExecutionEvent(event *models.ExecutionEvent) error {
	s.events = append(s.events, event)
	return nil
}

func TestApplyFill_UpdatesOrderPositionMarginWalletLedger(t *testing.T) {
	store := newFakeStore()
	planID := int64(1)
	store.plans[planID] = &models.BrokeragePlan{ID: planID, FlatFee: 10, PercentFee: 0.001, MaxFee: 100}
	store.accounts[1] = &models.UserAccount{ID: 1, WalletBalance: 100000, MarginMultiplier: 5, BrokeragePlanID: &planID}
	store.margins[1] = &models.MarginAccount{UserID: 1, Available: 50000}

	order := &models.Order{ID: 1, UserID: 1, Symbol: "RELIANCE", Side: models.SideBuy, Quantity: 100, ProductType: models.ProductMIS, Status: models.OrderStatusPending}

	fill := FillResult{Filled: true, Quantity: 100, Price: 60, Slippage: 0.1}
	if err := ApplyFill(context.Background(), store, order, "NSE_EQ", fill, 5, 12); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}

	if order.Status != models.OrderStatusExecuted {
		t.Errorf("expected order EXECUTED, got %s", order.Status)
	}
	if order.FilledQty != 100 {
		t.Errorf("expected filled_qty 100, got %d", order.FilledQty)
	}
	if len(store.trades) != 1 {
		t.Fatalf("expected 1 trade, got %d", len(store.trades))
	}

	pos := store.positions[posKey(1, "RELIANCE", models.ProductMIS)]
	if pos == nil || pos.Quantity != 100 {
		t.Fatalf("expected position qty 100, got %+v", pos)
	}

	margin := store.margins[1]
	wantUsed := 100.0 * 60.0 / 5.0
	if margin.Used != wantUsed {
		t.Errorf("expected margin used %v, got %v", wantUsed, margin.Used)
	}

	if len(store.ledger) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(store.ledger))
	}
	if len(store.events) != 1 || store.events[0].EventType != models.EventFullFill {
		t.Fatalf("expected FULL_FILL event, got %+v", store.events)
	}
}

func TestApplyFill_PartialFillKeepsOrderPartial(t *testing.T) {
	store := newFakeStore()
	store.accounts[1] = &models.UserAccount{ID: 1, WalletBalance: 100000}
	order := &models.Order{ID: 1, UserID: 1, Symbol: "NIFTY", Side: models.SideBuy, Quantity: 100, ProductType: models.ProductNormal, Status: models.OrderStatusPending}

	fill := FillResult{Filled: true, Quantity: 40, Price: 50}
	if err := ApplyFill(context.Background(), store, order, "NSE_FO", fill, 0, 5); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}
	if order.Status != models.OrderStatusPartial {
		t.Errorf("expected PARTIAL, got %s", order.Status)
	}
	if store.events[0].EventType != models.EventPartialFill {
		t.Errorf("expected PARTIAL_FILL event, got %s", store.events[0].EventType)
	}
}

func TestApplyFill_LimitOrderKeepsSubmittedPriceAcrossFills(t *testing.T) {
	store := newFakeStore()
	store.accounts[1] = &models.UserAccount{ID: 1, WalletBalance: 100000}
	order := &models.Order{
		ID: 1, UserID: 1, Symbol: "NIFTY", Side: models.SideBuy,
		OrderType: models.OrderTypeLimit, Price: 105, Quantity: 100,
		ProductType: models.ProductNormal, Status: models.OrderStatusPending,
	}

	fill := FillResult{Filled: true, Quantity: 40, Price: 100}
	if err := ApplyFill(context.Background(), store, order, "NSE_FO", fill, 0, 5); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}
	if order.Price != 105 {
		t.Errorf("expected LIMIT order price to stay pinned at 105, got %v", order.Price)
	}

	fill2 := FillResult{Filled: true, Quantity: 60, Price: 102}
	if err := ApplyFill(context.Background(), store, order, "NSE_FO", fill2, 0, 5); err != nil {
		t.Fatalf("ApplyFill() second call error = %v", err)
	}
	if order.Price != 105 {
		t.Errorf("expected LIMIT order price to still be pinned at 105 after second fill, got %v", order.Price)
	}
	if order.Status != models.OrderStatusExecuted {
		t.Errorf("expected EXECUTED after full quantity filled, got %s", order.Status)
	}
}

func TestApplyFill_MarketOrderPriceTracksWeightedFillAverage(t *testing.T) {
	store := newFakeStore()
	store.accounts[1] = &models.UserAccount{ID: 1, WalletBalance: 100000}
	order := &models.Order{
		ID: 1, UserID: 1, Symbol: "NIFTY", Side: models.SideBuy,
		OrderType: models.OrderTypeMarket, Quantity: 100,
		ProductType: models.ProductNormal, Status: models.OrderStatusPending,
	}

	fill := FillResult{Filled: true, Quantity: 50, Price: 100}
	if err := ApplyFill(context.Background(), store, order, "NSE_FO", fill, 0, 5); err != nil {
		t.Fatalf("ApplyFill() error = %v", err)
	}
	if order.Price != 100 {
		t.Errorf("expected first MARKET fill price 100, got %v", order.Price)
	}

	fill2 := FillResult{Filled: true, Quantity: 50, Price: 110}
	if err := ApplyFill(context.Background(), store, order, "NSE_FO", fill2, 0, 5); err != nil {
		t.Fatalf("ApplyFill() second call error = %v", err)
	}
	if order.Price != 105 {
		t.Errorf("expected weighted average price 105, got %v", order.Price)
	}
}
