package admin

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"dhancore/internal/feed"
	"dhancore/internal/models"
	"dhancore/internal/repository"
)

type fakeOrderService struct {
	placed []*models.Order
}

func (f *fakeOrderService) PlaceOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	f.placed = append(f.placed, order)
	order.Status = models.OrderStatusExecuted
	return order, nil
}
func (f *fakeOrderService) ModifyOrder(ctx context.Context, orderID int, price float64, qty int64) (*models.Order, error) {
	return nil, nil
}
func (f *fakeOrderService) CancelOrder(ctx context.Context, orderID int) error { return nil }
func (f *fakeOrderService) SquareOff(ctx context.Context, userID int, symbol string, productType string) error {
	return nil
}
func (f *fakeOrderService) GetOrder(ctx context.Context, orderID int) (*models.Order, error) {
	return nil, nil
}
func (f *fakeOrderService) ListOrders(ctx context.Context, userID int) ([]*models.Order, error) {
	return nil, nil
}

func settingsRowMock(mock sqlmock.Sqlmock, killSwitch bool) {
	mock.ExpectQuery("SELECT (.+) FROM admin_settings WHERE id").
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "feed_kill_switch", "market_hours_override", "max_targets_override", "notification_prefs", "updated_at",
		}).AddRow(1, killSwitch, []byte(`{}`), nil, []byte(`{}`), time.Now()))
}

func TestControlsFeedEnabledSeededFromSettings(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	settingsRowMock(mock, true)

	c, err := New(context.Background(), repository.NewSettingsRepository(db), repository.NewAccountRepository(db), feed.NewDepthCache(), &fakeOrderService{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if c.FeedEnabled() {
		t.Error("expected FeedEnabled() = false when kill switch is on")
	}
}

func TestControlsSetKillSwitch(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	settingsRowMock(mock, false)
	c, err := New(context.Background(), repository.NewSettingsRepository(db), repository.NewAccountRepository(db), feed.NewDepthCache(), &fakeOrderService{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if !c.FeedEnabled() {
		t.Fatal("expected FeedEnabled() = true initially")
	}

	settingsRowMock(mock, false)
	mock.ExpectExec("INSERT INTO admin_settings").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := c.SetKillSwitch(context.Background(), true); err != nil {
		t.Fatalf("SetKillSwitch() error = %v", err)
	}
	if c.FeedEnabled() {
		t.Error("expected FeedEnabled() = false after SetKillSwitch(true)")
	}
}

func TestControlsInjectDepth(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()
	settingsRowMock(mock, false)

	depth := feed.NewDepthCache()
	c, err := New(context.Background(), repository.NewSettingsRepository(db), repository.NewAccountRepository(db), depth, &fakeOrderService{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	fake := &models.MarketDepth{}
	if err := c.InjectDepth(context.Background(), "NIFTY24JUL20000CE", fake); err != nil {
		t.Fatalf("InjectDepth() error = %v", err)
	}
	got, _, ok := depth.Depth("NIFTY24JUL20000CE")
	if !ok || got != fake {
		t.Errorf("expected injected depth to be readable back, got %+v ok=%v", got, ok)
	}
}

func TestControlsForcePositionExit(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()
	settingsRowMock(mock, false)

	orders := &fakeOrderService{}
	c, err := New(context.Background(), repository.NewSettingsRepository(db), repository.NewAccountRepository(db), feed.NewDepthCache(), orders)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mock.ExpectQuery("SELECT (.+) FROM mock_positions WHERE user_id").
		WithArgs(int64(1), "NIFTY24JUL20000CE", "MIS").
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "symbol", "exchange_segment", "product_type", "quantity", "avg_price", "realized_pnl", "status", "updated_at"}).
			AddRow(1, "NIFTY24JUL20000CE", "NSE_FO", "MIS", 75, 120.5, 0.0, "OPEN", time.Now()))

	if err := c.ForcePositionExit(context.Background(), 1, "NIFTY24JUL20000CE", "MIS"); err != nil {
		t.Fatalf("ForcePositionExit() error = %v", err)
	}
	if len(orders.placed) != 1 {
		t.Fatalf("expected one order placed, got %d", len(orders.placed))
	}
	placed := orders.placed[0]
	if placed.Side != models.SideSell || placed.Quantity != 75 {
		t.Errorf("expected SELL 75 to flatten a long position, got side=%s qty=%d", placed.Side, placed.Quantity)
	}
}

func TestControlsForcePositionExit_NoPosition(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()
	settingsRowMock(mock, false)

	c, err := New(context.Background(), repository.NewSettingsRepository(db), repository.NewAccountRepository(db), feed.NewDepthCache(), &fakeOrderService{})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	mock.ExpectQuery("SELECT (.+) FROM mock_positions WHERE user_id").
		WithArgs(int64(9), "NIFTY24JUL20000CE", "MIS").
		WillReturnError(sql.ErrNoRows)

	if err := c.ForcePositionExit(context.Background(), 9, "NIFTY24JUL20000CE", "MIS"); err != ErrNoOpenPosition {
		t.Errorf("expected ErrNoOpenPosition, got %v", err)
	}
}
