// Package integration contains integration tests for the market-data and
// execution core.
//
// These tests verify the correct interaction between components:
// - Database tests: schema creation, repository round trips, transactions
// - WebSocket tests: the option-chain broadcaster's push stream
//
// Integration tests carry no build tag; tests that need a database skip
// when none is reachable (see SetupTestDB).
// Run with: go test ./tests/integration/...
package integration

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"testing"
	"time"

	"dhancore/internal/admin"
	"dhancore/internal/feed"
	"dhancore/internal/marketclock"
	"dhancore/internal/registry"
	"dhancore/internal/repository"
	"dhancore/internal/subscription"
	"dhancore/pkg/utils"

	_ "github.com/lib/pq"
)

// testEncryptionKey is the 32-byte ENCRYPTION_KEY stand-in used to exercise
// CredentialsRepository's AES-256-GCM wrapping in these tests.
const testEncryptionKey = "01234567890123456789012345678901"

// TestConfig contains configuration for integration tests.
type TestConfig struct {
	DBDriver   string
	DBHost     string
	DBPort     string
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
}

// TestRepositories contains all repository instances for testing.
type TestRepositories struct {
	Settings     *repository.SettingsRepository
	Account      *repository.AccountRepository
	Subscription *repository.SubscriptionRepository
	Watchlist    *repository.WatchlistRepository
	Order        *repository.OrderRepository
	Notification *repository.NotificationRepository
	ATMCache     *repository.ATMCacheRepository
	Basket       *repository.BasketRepository
	Excluded     *repository.ExcludedUnderlyingRepository
	Credentials  *repository.CredentialsRepository
}

// TestCore bundles the core components a test exercises: repositories plus
// the in-memory subscription fabric, admin controls, and market clock wired
// the same way cmd/coreserver/main.go wires them.
type TestCore struct {
	DB       *sql.DB
	Repos    *TestRepositories
	Fabric   *subscription.Fabric
	Admin    *admin.Controls
	Clock    *marketclock.Clock
	Depth    *feed.DepthCache
	Cleanup  func()
}

// getTestConfig returns configuration from environment variables or defaults.
func getTestConfig() TestConfig {
	return TestConfig{
		DBDriver:   getEnv("TEST_DB_DRIVER", "postgres"),
		DBHost:     getEnv("TEST_DB_HOST", "localhost"),
		DBPort:     getEnv("TEST_DB_PORT", "5432"),
		DBName:     getEnv("TEST_DB_NAME", "dhancore_test"),
		DBUser:     getEnv("TEST_DB_USER", "postgres"),
		DBPassword: getEnv("TEST_DB_PASSWORD", "postgres"),
		DBSSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// SetupTestDB creates a test database connection, skipping the test if no
// database is reachable.
func SetupTestDB(t *testing.T) (*sql.DB, func()) {
	cfg := getTestConfig()

	connStr := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBSSLMode,
	)

	db, err := sql.Open(cfg.DBDriver, connStr)
	if err != nil {
		t.Skipf("skipping integration test: cannot connect to database: %v", err)
		return nil, func() {}
	}

	if err := db.Ping(); err != nil {
		t.Skipf("skipping integration test: cannot ping database: %v", err)
		return nil, func() {}
	}

	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	cleanup := func() {
		if err := db.Close(); err != nil {
			log.Printf("error closing database: %v", err)
		}
	}

	return db, cleanup
}

// SetupTestCore creates a complete test core: a database with schema loaded,
// every repository, and the in-memory components main() wires around them.
func SetupTestCore(t *testing.T) *TestCore {
	db, dbCleanup := SetupTestDB(t)
	if db == nil {
		return nil
	}

	if err := initTestTables(db); err != nil {
		t.Skipf("skipping integration test: cannot initialize tables: %v", err)
		return nil
	}

	repos := &TestRepositories{
		Settings:     repository.NewSettingsRepository(db),
		Account:      repository.NewAccountRepository(db),
		Subscription: repository.NewSubscriptionRepository(db),
		Watchlist:    repository.NewWatchlistRepository(db),
		Order:        repository.NewOrderRepository(db),
		Notification: repository.NewNotificationRepository(db),
		ATMCache:     repository.NewATMCacheRepository(db),
		Basket:       repository.NewBasketRepository(db),
		Excluded:     repository.NewExcludedUnderlyingRepository(db),
		Credentials:  repository.NewCredentialsRepository(db, []byte(testEncryptionKey)),
	}

	universe := registry.NewUniverse()
	reg := registry.New()
	depth := feed.NewDepthCache()

	fabric := subscription.New(subscription.Config{
		MaxTargets: 1000,
	}, universe, reg, repos.Subscription, repos.Watchlist, utils.GetGlobalLogger())

	adminControls, err := admin.New(context.Background(), repos.Settings, repos.Account, depth, nil)
	if err != nil {
		t.Fatalf("failed to build admin controls: %v", err)
	}

	clock := marketclock.New(repos.Settings)

	cleanup := func() {
		cleanupTestTables(db)
		dbCleanup()
	}

	return &TestCore{
		DB:      db,
		Repos:   repos,
		Fabric:  fabric,
		Admin:   adminControls,
		Clock:   clock,
		Depth:   depth,
		Cleanup: cleanup,
	}
}

// initTestTables creates the tables the core persists to, if they don't
// already exist.
func initTestTables(db *sql.DB) error {
	tables := []string{
		`CREATE TABLE IF NOT EXISTS admin_settings (
			id INT PRIMARY KEY DEFAULT 1,
			feed_kill_switch BOOLEAN DEFAULT false,
			market_hours_override JSONB DEFAULT '{}',
			max_targets_override INT,
			notification_prefs JSONB DEFAULT '{}',
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS user_accounts (
			id BIGINT PRIMARY KEY,
			wallet_balance DECIMAL(20, 2) NOT NULL DEFAULT 0,
			margin_multiplier DECIMAL(10, 4) NOT NULL DEFAULT 1,
			brokerage_plan_id BIGINT,
			blocked BOOLEAN DEFAULT false
		)`,
		`CREATE TABLE IF NOT EXISTS user_allowed_segments (
			user_id BIGINT NOT NULL,
			segment VARCHAR(20) NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS margin_accounts (
			user_id BIGINT PRIMARY KEY,
			available_margin DECIMAL(20, 2) NOT NULL DEFAULT 0,
			used_margin DECIMAL(20, 2) NOT NULL DEFAULT 0,
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS brokerage_plans (
			id BIGINT PRIMARY KEY,
			name VARCHAR(50) NOT NULL,
			flat_fee DECIMAL(10, 2) DEFAULT 0,
			percent_fee DECIMAL(10, 6) DEFAULT 0,
			max_fee DECIMAL(10, 2) DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS mock_positions (
			user_id BIGINT NOT NULL,
			symbol VARCHAR(40) NOT NULL,
			exchange_segment VARCHAR(20) NOT NULL,
			product_type VARCHAR(20) NOT NULL,
			quantity BIGINT NOT NULL DEFAULT 0,
			avg_price DECIMAL(20, 4) NOT NULL DEFAULT 0,
			realized_pnl DECIMAL(20, 2) NOT NULL DEFAULT 0,
			status VARCHAR(10) NOT NULL DEFAULT 'CLOSED',
			updated_at TIMESTAMP DEFAULT NOW(),
			PRIMARY KEY (user_id, symbol, product_type)
		)`,
		`CREATE TABLE IF NOT EXISTS mock_orders (
			id SERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			symbol VARCHAR(40) NOT NULL,
			exchange_segment VARCHAR(20) NOT NULL,
			transaction_type VARCHAR(10) NOT NULL,
			quantity BIGINT NOT NULL,
			filled_qty BIGINT NOT NULL DEFAULT 0,
			order_type VARCHAR(20) NOT NULL,
			product_type VARCHAR(20) NOT NULL,
			price DECIMAL(20, 4) DEFAULT 0,
			trigger_price DECIMAL(20, 4) DEFAULT 0,
			status VARCHAR(20) NOT NULL,
			remarks TEXT DEFAULT '',
			basket_id BIGINT,
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS mock_trades (
			id SERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			price DECIMAL(20, 4) NOT NULL,
			qty BIGINT NOT NULL,
			filled_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS ledger_entries (
			id SERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			entry_type VARCHAR(20) NOT NULL,
			credit DECIMAL(20, 2) DEFAULT 0,
			debit DECIMAL(20, 2) DEFAULT 0,
			balance DECIMAL(20, 2) DEFAULT 0,
			remarks TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS execution_events (
			id SERIAL PRIMARY KEY,
			order_id BIGINT NOT NULL,
			user_id BIGINT NOT NULL,
			symbol VARCHAR(40) NOT NULL,
			event_type VARCHAR(20) NOT NULL,
			decision_time_price DECIMAL(20, 4) DEFAULT 0,
			fill_price DECIMAL(20, 4) DEFAULT 0,
			fill_quantity BIGINT DEFAULT 0,
			reason TEXT DEFAULT '',
			latency_ms BIGINT DEFAULT 0,
			slippage DECIMAL(20, 4) DEFAULT 0,
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS mock_baskets (
			id SERIAL PRIMARY KEY,
			user_id BIGINT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
			created_at TIMESTAMP DEFAULT NOW(),
			updated_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS mock_basket_legs (
			id SERIAL PRIMARY KEY,
			basket_id BIGINT NOT NULL,
			symbol VARCHAR(40) NOT NULL,
			exchange_segment VARCHAR(20) NOT NULL,
			transaction_type VARCHAR(10) NOT NULL,
			quantity BIGINT NOT NULL,
			order_type VARCHAR(20) NOT NULL,
			product_type VARCHAR(20) NOT NULL,
			price DECIMAL(20, 4) DEFAULT 0,
			trigger_price DECIMAL(20, 4) DEFAULT 0,
			order_id BIGINT,
			leg_index INT DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS subscriptions (
			token VARCHAR(40) PRIMARY KEY,
			symbol VARCHAR(40) NOT NULL,
			expiry VARCHAR(10) DEFAULT '',
			strike DECIMAL(20, 4) DEFAULT 0,
			option_type VARCHAR(5) DEFAULT '',
			tier VARCHAR(2) NOT NULL,
			ws_id INT DEFAULT 0,
			subscribed_at TIMESTAMP DEFAULT NOW(),
			active BOOLEAN DEFAULT true
		)`,
		`CREATE TABLE IF NOT EXISTS subscription_log (
			id SERIAL PRIMARY KEY,
			token VARCHAR(40) NOT NULL,
			action VARCHAR(20) NOT NULL,
			reason TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS watchlist (
			user_id INT NOT NULL,
			symbol VARCHAR(40) NOT NULL,
			expiry VARCHAR(10) NOT NULL,
			instrument_type VARCHAR(10) NOT NULL,
			added_order INT DEFAULT 0,
			PRIMARY KEY (user_id, symbol, expiry)
		)`,
		`CREATE TABLE IF NOT EXISTS notifications (
			id SERIAL PRIMARY KEY,
			timestamp TIMESTAMP DEFAULT NOW(),
			type VARCHAR(50) NOT NULL,
			severity VARCHAR(10) DEFAULT 'info',
			underlying VARCHAR(40) DEFAULT '',
			message TEXT NOT NULL,
			meta JSONB DEFAULT '{}'
		)`,
		`CREATE TABLE IF NOT EXISTS atm_cache (
			underlying VARCHAR(40) NOT NULL,
			expiry VARCHAR(10) NOT NULL,
			atm DECIMAL(20, 4) NOT NULL,
			updated_at TIMESTAMP DEFAULT NOW(),
			PRIMARY KEY (underlying, expiry)
		)`,
		`CREATE TABLE IF NOT EXISTS excluded_underlyings (
			id SERIAL PRIMARY KEY,
			underlying VARCHAR(40) UNIQUE NOT NULL,
			reason TEXT DEFAULT '',
			created_at TIMESTAMP DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS dhan_credentials (
			user_id BIGINT PRIMARY KEY,
			client_id VARCHAR(40) NOT NULL,
			access_token_enc TEXT NOT NULL,
			auth_type VARCHAR(20) NOT NULL DEFAULT 'access_token'
		)`,
	}

	for _, table := range tables {
		if _, err := db.Exec(table); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	_, err := db.Exec(`INSERT INTO admin_settings (id) VALUES (1) ON CONFLICT (id) DO NOTHING`)
	if err != nil {
		return fmt.Errorf("failed to insert default settings: %w", err)
	}

	return nil
}

// cleanupTestTables truncates all test tables.
func cleanupTestTables(db *sql.DB) {
	tables := []string{
		"execution_events",
		"ledger_entries",
		"mock_trades",
		"mock_basket_legs",
		"mock_baskets",
		"mock_orders",
		"mock_positions",
		"subscription_log",
		"subscriptions",
		"watchlist",
		"notifications",
		"atm_cache",
		"excluded_underlyings",
		"dhan_credentials",
		"margin_accounts",
		"user_allowed_segments",
		"user_accounts",
	}

	for _, table := range tables {
		db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table))
	}
}

// TruncateTable truncates a specific table for testing.
func TruncateTable(db *sql.DB, tableName string) error {
	_, err := db.Exec(fmt.Sprintf("TRUNCATE TABLE %s CASCADE", tableName))
	return err
}
