package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds the full process configuration, assembled once at startup
// by cmd/coreserver and handed to the components it constructs.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Security SecurityConfig
	Feed     FeedConfig
	Exec     ExecConfig
	Logging  LoggingConfig
}

// ServerConfig holds the ops-tooling HTTP server settings (/health,
// /metrics, /debug/pprof — not a trading API surface).
type ServerConfig struct {
	Port     int
	Host     string
	UseHTTPS bool
	CertFile string
	KeyFile  string
}

// DatabaseConfig holds the Postgres connection settings.
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     int
	Name     string
	User     string
	Password string
	SSLMode  string
}

// SecurityConfig holds credential-at-rest and session settings.
type SecurityConfig struct {
	JWTSecret      string
	EncryptionKey  string
	SessionTimeout int
}

// FeedConfig controls the Live Feed Ingestor and Subscription Fabric.
type FeedConfig struct {
	DisableDhanWS        bool // when set, the Live Feed Ingestor is not started
	BackendOffline       bool // when set, the Live Feed Ingestor is not started and the option chain cache makes no vendor REST calls
	DisableMarketStreams bool // when set, the Live Feed Ingestor is not started
	MaxTargets           int  // global cap on the Subscription Fabric's desired-subscription set
	CooldownSeconds      int  // duration of the ingestor's cooldown after repeated connect failures
	LockPort             int  // loopback TCP port bound as a single-instance lock for the ingestor; 0 disables the lock

	WSReconnectDelay  time.Duration
	WSPingInterval    time.Duration
	WSReadTimeout     time.Duration
	ReconcileInterval time.Duration // how often the desired-subscription set and option chain bootstrap are reconciled against the approved universe and watchlists

	WSURL          string // vendor market-data WebSocket endpoint
	DataAPIBaseURL string // vendor REST Data-API base URL (option chain, expiry list)
	DataAPIToken   string // vendor Data-API access token, used only when no dhan_credentials row exists for VendorUserID
	VendorUserID   int64  // account whose dhan_credentials row supplies the live vendor access token
	ScripMasterCSV string // path to the provider's scrip-master CSV, loaded into the instrument registry at startup
}

// ExecConfig controls the Execution Engine's simulated latency/slippage and
// retry behavior.
type ExecConfig struct {
	MaxRetries   int
	RetryBackoff time.Duration
	OrderTimeout time.Duration

	LatencyShape float64 // gamma distribution shape parameter for simulated tick-to-fill latency
	LatencyScale float64 // gamma distribution scale parameter, in milliseconds
}

// LoggingConfig selects the logger's level/format.
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from the environment, applying defaults for
// anything unset and validating the fields that must be present for the
// process to run safely.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:     getEnvAsInt("SERVER_PORT", 8080),
			Host:     getEnv("SERVER_HOST", "0.0.0.0"),
			UseHTTPS: getEnvAsBool("USE_HTTPS", false),
			CertFile: getEnv("CERT_FILE", ""),
			KeyFile:  getEnv("KEY_FILE", ""),
		},
		Database: DatabaseConfig{
			Driver:   getEnv("DB_DRIVER", "postgres"),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			Name:     getEnv("DB_NAME", "dhancore"),
			User:     getEnv("DB_USER", "user"),
			Password: getEnv("DB_PASSWORD", "password"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Security: SecurityConfig{
			JWTSecret:      getEnv("JWT_SECRET", "change-me-in-production"),
			EncryptionKey:  getEnv("ENCRYPTION_KEY", ""),
			SessionTimeout: getEnvAsInt("SESSION_TIMEOUT", 3600),
		},
		Feed: FeedConfig{
			DisableDhanWS:        getEnvAsBool("DISABLE_DHAN_WS", false),
			BackendOffline:       getEnvAsBool("BACKEND_OFFLINE", false),
			DisableMarketStreams: getEnvAsBool("DISABLE_MARKET_STREAMS", false),
			MaxTargets:           getEnvAsInt("LIVE_FEED_MAX_TARGETS", 300),
			CooldownSeconds:      getEnvAsInt("LIVE_FEED_COOLDOWN_SECONDS", 660),
			LockPort:             getEnvAsInt("LIVE_FEED_LOCK_PORT", 0),

			WSReconnectDelay:  getEnvAsDuration("WS_RECONNECT_DELAY", 5*time.Second),
			WSPingInterval:    getEnvAsDuration("WS_PING_INTERVAL", 15*time.Second),
			WSReadTimeout:     getEnvAsDuration("WS_READ_TIMEOUT", 30*time.Second),
			ReconcileInterval: getEnvAsDuration("FEED_RECONCILE_INTERVAL", 30*time.Second),

			WSURL:          getEnv("DHAN_WS_URL", "wss://api-feed.dhan.co"),
			DataAPIBaseURL: getEnv("DATA_API_BASE_URL", "https://api.dhan.co"),
			DataAPIToken:   getEnv("DATA_API_TOKEN", ""),
			VendorUserID:   getEnvAsInt64("DHAN_VENDOR_USER_ID", 1),
			ScripMasterCSV: getEnv("SCRIP_MASTER_CSV", ""),
		},
		Exec: ExecConfig{
			MaxRetries:   getEnvAsInt("MAX_RETRIES", 4),
			RetryBackoff: getEnvAsDuration("RETRY_BACKOFF", 500*time.Millisecond),
			OrderTimeout: getEnvAsDuration("ORDER_TIMEOUT", 5*time.Second),

			LatencyShape: getEnvAsFloat("EXEC_LATENCY_SHAPE", 2.0),
			LatencyScale: getEnvAsFloat("EXEC_LATENCY_SCALE_MS", 40.0),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	if cfg.Security.EncryptionKey == "" {
		return nil, fmt.Errorf("ENCRYPTION_KEY is required for encrypting dhan_credentials at rest")
	}
	if len(cfg.Security.EncryptionKey) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes for AES-256")
	}
	if cfg.Feed.MaxTargets <= 0 {
		return nil, fmt.Errorf("LIVE_FEED_MAX_TARGETS must be positive, got %d", cfg.Feed.MaxTargets)
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseInt(valueStr, 10, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
