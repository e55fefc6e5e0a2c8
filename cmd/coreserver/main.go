package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dhancore/internal/admin"
	"dhancore/internal/config"
	"dhancore/internal/dataapi"
	"dhancore/internal/execution"
	"dhancore/internal/feed"
	"dhancore/internal/marketclock"
	"dhancore/internal/metrics"
	"dhancore/internal/models"
	"dhancore/internal/optionchain"
	"dhancore/internal/registry"
	"dhancore/internal/repository"
	"dhancore/internal/subscription"
	"dhancore/pkg/ratelimit"
	"dhancore/pkg/retry"
	"dhancore/pkg/utils"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	_ "github.com/lib/pq"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	db, err := initDatabase(cfg)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("connected to database")

	// instrument registry, loaded once at startup from the vendor's
	// scrip-master CSV
	reg := registry.New()
	if cfg.Feed.ScripMasterCSV != "" {
		n, err := reg.Load(cfg.Feed.ScripMasterCSV)
		if err != nil {
			log.Fatalf("failed to load instrument registry: %v", err)
		}
		logger.Info("loaded instruments into registry", utils.Int("count", n))
	}
	universe := registry.NewUniverse()

	// repositories
	settingsRepo := repository.NewSettingsRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	subRepo := repository.NewSubscriptionRepository(db)
	watchlistRepo := repository.NewWatchlistRepository(db)
	orderRepo := repository.NewOrderRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	credentialsRepo := repository.NewCredentialsRepository(db, []byte(cfg.Security.EncryptionKey))

	// depth cache: latest-known tick per symbol, read by both the
	// execution engine's snapshot oracle and the admin debug surface
	depthCache := feed.NewDepthCache()

	// admin controls must exist before the ingestor, since it is the
	// ingestor's kill-switch; its order-placement dependency is injected
	// once the execution engine is built below
	adminControls, err := admin.New(context.Background(), settingsRepo, accountRepo, depthCache, nil)
	if err != nil {
		log.Fatalf("failed to build admin controls: %v", err)
	}

	fabric := subscription.New(subscription.Config{
		MaxTargets: cfg.Feed.MaxTargets,
	}, universe, reg, subRepo, watchlistRepo, logger)

	alertSink := feed.NewDeduper(&notifySink{repo: notificationRepo}, 5*time.Minute)

	rates := ratelimit.NewMultiLimiter()
	restRetry := retry.Config{
		MaxRetries:   cfg.Exec.MaxRetries,
		InitialDelay: cfg.Exec.RetryBackoff,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
		JitterFactor: 0.1,
		RetryIf:      retry.RetryIfNotContext,
	}
	rest := feed.NewRESTClient(nil, rates, restRetry)

	vendorLookup := feed.NewVendorLookup(reg, fabric)

	ingestor := feed.New(feed.Config{
		WSURL:          cfg.Feed.WSURL,
		CooldownPeriod: time.Duration(cfg.Feed.CooldownSeconds) * time.Second,
		TickBusSize:    10000,
	}, adminControls, vendorLookup, alertSink, rates, logger)
	ingestor.SetSubscriptionSnapshot(fabric)

	clock := marketclock.New(settingsRepo)

	// the live vendor token is read from dhan_credentials, encrypted at
	// rest; DATA_API_TOKEN only covers first boot, before any row exists
	vendorToken := cfg.Feed.DataAPIToken
	if stored, err := credentialsRepo.AccessToken(context.Background(), cfg.Feed.VendorUserID); err == nil {
		vendorToken = stored
	} else if !errors.Is(err, repository.ErrCredentialsNotFound) {
		logger.Error("failed to load vendor credentials, falling back to DATA_API_TOKEN", utils.Err(err))
	}
	dataClient := dataapi.New(rest, cfg.Feed.DataAPIBaseURL, vendorToken)

	var chainSource optionchain.ChainSource = dataClient
	if cfg.Feed.BackendOffline {
		chainSource = nil
	}
	chainCache := optionchain.New(universe, reg, chainSource, clock, &windowPublisher{fabric: fabric}, alertSink, logger)

	oracle := execution.NewOracle(depthCache, chainCache, depthCache)
	engine := execution.New(execution.Config{
		DefaultTimeout: cfg.Exec.OrderTimeout,
		DefaultLatency: execution.LatencyShape{
			Shape: cfg.Exec.LatencyShape,
			Scale: cfg.Exec.LatencyScale,
		},
	}, oracle, orderRepo, accountRepo, reg, alertSink, logger)

	adminControls.SetOrders(engine)

	// the tick bus can only be drained by one reader, so a single
	// dispatcher fans each tick out to both the depth cache and the
	// option chain cache rather than each consuming ingestor.Bus() on
	// its own
	stopDispatch := make(chan struct{})
	go dispatchTicks(stopDispatch, ingestor, depthCache, chainCache)

	broadcaster := feed.NewOptionChainBroadcaster(chainCache, clock, logger)

	// restore persisted subscriptions from a prior run before the Ingestor
	// starts connecting, so the first SyncDesired tick reconciles against
	// the true active set rather than an empty one
	if err := fabric.Rehydrate(context.Background()); err != nil {
		logger.Error("rehydrate subscription fabric", utils.Err(err))
	}

	// any disable flag keeps the vendor feed offline, and so does a lock
	// port already bound by another instance
	feedDisabled := cfg.Feed.DisableDhanWS || cfg.Feed.BackendOffline || cfg.Feed.DisableMarketStreams
	if cfg.Feed.LockPort > 0 && !feedDisabled {
		lock, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", cfg.Feed.LockPort))
		if err != nil {
			logger.Warn("feed lock port already held, ingestor not started", utils.Int("port", cfg.Feed.LockPort), utils.Err(err))
			feedDisabled = true
		} else {
			defer lock.Close()
		}
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	engine.Start(runCtx)
	if !feedDisabled {
		ingestor.Start(runCtx)
	}
	go broadcaster.Run(runCtx)
	go reconcileLoop(runCtx, cfg.Feed.ReconcileInterval, universe, reg, fabric, chainCache, watchlistRepo, logger)

	// ops-tooling HTTP server: /health, /metrics, /debug/pprof, plus the
	// option-chain push stream. Not a trading REST API surface.
	router := mux.NewRouter()
	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		if err := db.PingContext(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, "database unreachable: %v", err)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	router.Handle("/metrics", promhttp.Handler())
	router.HandleFunc("/debug/pprof/", pprof.Index)
	router.HandleFunc("/debug/pprof/profile", pprof.Profile)
	router.HandleFunc("/debug/pprof/trace", pprof.Trace)
	router.HandleFunc("/ws/optionchain", broadcaster.ServeWS)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info(fmt.Sprintf("starting ops server on %s", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("ops server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	close(stopDispatch)
	ingestor.Stop()
	engine.Stop()
	cancelRun()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("ops server forced to shutdown: %v", err)
	}

	logger.Info("exited cleanly")
}

// reconcileLoop periodically folds the approved universe and every user's
// watchlist into the Subscription Fabric's desired set, and keeps the
// Option-Chain Cache warm for every permitted underlying. Without this loop
// Rehydrate only restores what was already active; nothing ever grows the
// active set from watchlists or pulls a fresh option-chain skeleton after a
// cold start.
func reconcileLoop(ctx context.Context, interval time.Duration, universe *registry.Universe, reg *registry.Registry, fabric *subscription.Fabric, chainCache *optionchain.Cache, watchlistRepo *repository.WatchlistRepository, log *utils.Logger) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	reconcileOnce := func() {
		desired := buildDesiredUniverse(ctx, universe, reg, watchlistRepo, log)
		fabric.SyncDesired(ctx, desired)

		for _, entry := range universe.Entries() {
			if err := chainCache.EnsureLoaded(ctx, entry.Underlying, entry.Exchange); err != nil {
				log.Warn("ensure option chain loaded", utils.Symbol(entry.Underlying), utils.Err(err))
			}
		}
	}

	reconcileOnce()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			reconcileOnce()
		}
	}
}

// buildDesiredUniverse assembles the Subscription Fabric's desired set from
// every registry index and future instrument whose underlying the approved
// universe allows (always wanted at Tier A) plus every watchlist row across
// all users, resolved through the instrument registry for vendor token and
// feed-mode.
func buildDesiredUniverse(ctx context.Context, universe *registry.Universe, reg *registry.Registry, watchlistRepo *repository.WatchlistRepository, log *utils.Logger) []subscription.DesiredInstrument {
	seen := make(map[string]bool)
	var desired []subscription.DesiredInstrument

	add := func(inst *models.Instrument, tier string) {
		if inst == nil || inst.SecurityID == "" || seen[inst.SecurityID] {
			return
		}
		seen[inst.SecurityID] = true
		feedMode := subscription.FeedModeQuote
		if inst.Type == models.InstrumentTypeIndex {
			feedMode = subscription.FeedModeTicker
		}
		desired = append(desired, subscription.DesiredInstrument{
			Token:      inst.SecurityID,
			Symbol:     inst.Symbol,
			Expiry:     inst.Expiry,
			Strike:     inst.Strike,
			OptionType: inst.OptionType,
			Tier:       tier,
			Exchange:   inst.Exchange,
			SecurityID: inst.SecurityID,
			FeedMode:   feedMode,
		})
	}

	for _, inst := range reg.All() {
		if inst.Type != models.InstrumentTypeIndex && inst.Type != models.InstrumentTypeFuture {
			continue
		}
		if !universe.IsAllowed(inst.Underlying) {
			continue
		}
		add(inst, models.TierA)
	}

	rows, err := watchlistRepo.ListAllActive(ctx)
	if err != nil {
		log.Error("list watchlist for desired-set reconciliation", utils.Err(err))
	}
	for _, entry := range rows {
		inst, ok := reg.BySymbol(entry.Symbol)
		if !ok || !universe.IsAllowed(inst.Underlying) {
			continue
		}
		add(inst, models.TierA)
	}

	return desired
}

// dispatchTicks drains bus.C() exactly once and fans every tick out to the
// depth cache and, for option legs, the option chain cache's ingest path.
func dispatchTicks(stop <-chan struct{}, ingestor *feed.Ingestor, depth *feed.DepthCache, chain *optionchain.Cache) {
	bus := ingestor.Bus()
	for {
		select {
		case <-stop:
			return
		case tick, ok := <-bus.C():
			if !ok {
				return
			}
			depth.Update(tick)
			if tick.IsOption() {
				chain.IngestOptionTick(tick)
			} else {
				chain.IngestUnderlyingTick(tick.Symbol, tick.Exchange, tick.LTP, tick.Timestamp)
			}
			metrics.RecordTick(tick.Symbol, 0)
		}
	}
}

// notifySink adapts *repository.NotificationRepository (context-taking
// Create) to feed.NotificationSink (context-free Notify), since Deduper's
// alert path has no request-scoped context of its own to thread through.
type notifySink struct {
	repo *repository.NotificationRepository
}

func (s *notifySink) Notify(n *models.Notification) {
	_ = s.repo.Create(context.Background(), n)
}

// windowPublisher adapts the option chain cache's added/removed leg diff
// to the subscription fabric's Subscribe/Unsubscribe calls, joining every
// rebuilt window at Tier B (always-on, protected from eviction).
type windowPublisher struct {
	fabric *subscription.Fabric
}

func (p *windowPublisher) PublishWindowDiff(underlying, expiry string, added, removed []optionchain.WindowLeg) {
	ctx := context.Background()
	for _, leg := range added {
		_, _, _, _ = p.fabric.Subscribe(ctx, leg.Token, leg.Underlying, leg.Expiry, leg.Strike, leg.OptionType, models.TierB)
	}
	for _, leg := range removed {
		_ = p.fabric.Unsubscribe(ctx, leg.Token, "window rebuild")
	}
}

// initDatabase opens and validates the Postgres connection pool.
func initDatabase(cfg *config.Config) (*sql.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	db, err := sql.Open(cfg.Database.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}
