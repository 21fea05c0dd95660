package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/adapters/metrics"
	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/application/controller"
	"github.com/modula-erp/emag-sync-go/internal/application/syncengine"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/config"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/database"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/logging"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/pidfile"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/ratelimit"
)

func main() {
	// Parse command-line flags
	configFlag := flag.String("config", "", "Path to config file (default: search standard locations)")
	forceFlag := flag.Bool("force", false, "Kill any existing daemon and start a new one")
	flag.Parse()

	fmt.Println("eMAG Sync Daemon v0.1.0")
	fmt.Println("=======================")

	// Load configuration
	fmt.Println("Loading configuration...")
	cfg := config.MustLoadConfig(*configFlag)

	// Acquire PID file lock to prevent multiple instances
	fmt.Printf("Acquiring PID file lock: %s\n", cfg.Daemon.PIDFile)
	pf := pidfile.New(cfg.Daemon.PIDFile)

	// Try to acquire the lock
	err := pf.Acquire()
	if err != nil {
		if *forceFlag {
			// Force mode: kill existing daemon and try again
			fmt.Println("Force mode enabled - attempting to kill existing daemon...")
			if killErr := pf.KillExisting(); killErr != nil {
				log.Fatalf("Failed to kill existing daemon: %v", killErr)
			}
			fmt.Println("Existing daemon killed")

			// Try to acquire lock again
			if err := pf.Acquire(); err != nil {
				log.Fatalf("Failed to acquire PID file lock after killing existing daemon: %v", err)
			}
		} else {
			log.Fatalf("Failed to acquire PID file lock: %v\nUse --force to kill the existing daemon", err)
		}
	}

	defer func() {
		if err := pf.Release(); err != nil {
			log.Printf("Warning: failed to release PID file: %v", err)
		}
	}()
	fmt.Println("PID file lock acquired")

	// Initialize application
	if err := run(cfg); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run(cfg *config.Config) error {
	// 1. Setup structured logging
	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to build logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	// 2. Setup database connection
	fmt.Printf("Connecting to %s database...\n", cfg.Database.Type)

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close(db)
	fmt.Println("Database connected")

	// 3. Register metrics collectors when the observability server is on.
	// Nil collectors fall back to no-op recorders inside each component.
	var (
		limiterRecorder ratelimit.Recorder
		apiObserver     api.Observer
		syncCollector   syncengine.MetricsRecorder
	)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()

		rateCollector := metrics.NewRateLimitMetricsCollector()
		if err := rateCollector.Register(); err != nil {
			return fmt.Errorf("failed to register rate limit metrics: %w", err)
		}
		limiterRecorder = rateCollector

		apiCollector := metrics.NewAPIMetricsCollector()
		if err := apiCollector.Register(); err != nil {
			return fmt.Errorf("failed to register API metrics: %w", err)
		}
		apiObserver = apiCollector

		runCollector := metrics.NewSyncMetricsCollector()
		if err := runCollector.Register(); err != nil {
			return fmt.Errorf("failed to register sync metrics: %w", err)
		}
		syncCollector = runCollector

		fmt.Println("Metrics collectors registered")
	}

	// 4. Initialize the per-account rate limiter
	clock := shared.NewRealClock()
	limiter := ratelimit.NewLimiter(clock, nil, limiterRecorder)

	credentials := map[shared.Account]config.AccountCredentials{
		shared.AccountMain: cfg.Accounts.Main,
		shared.AccountFBE:  cfg.Accounts.FBE,
	}

	accounts := make(map[shared.Account]api.AccountConfig)
	configured := make([]shared.Account, 0, len(credentials))
	for _, acct := range shared.AllAccounts() {
		creds := credentials[acct]
		if !creds.Configured() {
			continue
		}
		accounts[acct] = api.AccountConfig{
			BaseURL:  creds.BaseURL,
			Username: creds.Username,
			Password: creds.Password,
		}
		if err := limiter.Configure(acct, syncrun.ClassOrders, ratelimit.Caps{
			PerSecond: cfg.API.RateLimit.Orders.PerSecond,
			PerMinute: cfg.API.RateLimit.Orders.PerMinute,
		}); err != nil {
			return err
		}
		if err := limiter.Configure(acct, syncrun.ClassOther, ratelimit.Caps{
			PerSecond: cfg.API.RateLimit.Other.PerSecond,
			PerMinute: cfg.API.RateLimit.Other.PerMinute,
		}); err != nil {
			return err
		}
		configured = append(configured, acct)
	}
	if len(configured) == 0 {
		return fmt.Errorf("no marketplace account configured: set EMAG_MAIN_USERNAME/PASSWORD or EMAG_FBE_USERNAME/PASSWORD")
	}
	fmt.Printf("Rate limiter configured for %d account(s)\n", len(configured))

	// 5. Initialize the marketplace API client
	apiClient := api.NewClient(api.ClientConfig{
		Accounts:        accounts,
		MaxRetries:      cfg.API.Retry.MaxAttempts,
		RetryBase:       cfg.API.Retry.BackoffBase,
		TotalBudget:     cfg.API.Retry.TotalBudget,
		CallTimeout:     cfg.API.Timeout,
		ConnectTimeout:  cfg.API.ConnectTimeout,
		BreakerFailures: cfg.API.Breaker.MaxFailures,
		BreakerCooldown: cfg.API.Breaker.Cooldown,
	}, limiter, clock, nil, logger, apiObserver)
	fmt.Println("API client initialized")

	// 6. Initialize repositories
	productRepo := persistence.NewGormProductRepository(db)
	orderRepo := persistence.NewGormOrderRepository(db)
	syncLogRepo := persistence.NewGormSyncLogRepository(db)

	// 7. Initialize the sync engine and its controller
	engine := syncengine.NewEngine(
		apiClient,
		productRepo,
		orderRepo,
		syncLogRepo,
		api.NewReferenceCache(apiClient, cfg.API.ReferenceTTL),
		clock,
		logger,
		syncCollector,
		syncengine.Config{
			PageSize:     cfg.Sync.PageSize,
			MaxPages:     cfg.Sync.MaxPages,
			RunTimeout:   cfg.Sync.Timeout,
			PushBulkSize: cfg.Sync.PushBulkSize,
			Warehouses: map[shared.Account]int{
				shared.AccountMain: cfg.Accounts.Main.WarehouseID,
				shared.AccountFBE:  cfg.Accounts.FBE.WarehouseID,
			},
		},
	)

	ctrl := controller.NewController(engine, syncLogRepo, clock, logger, controller.Config{
		OrphanTTL: cfg.Sync.OrphanTTL,
	})
	fmt.Println("Sync controller initialized")

	// 8. Build the recurring schedule for every configured account
	cadence := map[syncrun.Resource]time.Duration{
		syncrun.ResourceProducts: cfg.Daemon.Schedule.Products,
		syncrun.ResourceOffers:   cfg.Daemon.Schedule.Offers,
		syncrun.ResourceOrders:   cfg.Daemon.Schedule.Orders,
	}
	var schedules []controller.Schedule
	for _, acct := range configured {
		for res, every := range cadence {
			if every <= 0 {
				continue
			}
			schedules = append(schedules, controller.Schedule{
				Account:  acct,
				Resource: res,
				Mode:     syncrun.ModeIncremental,
				Every:    every,
			})
		}
	}
	scheduler := controller.NewScheduler(ctrl, schedules, cfg.Sync.SweepInterval, logger)
	fmt.Printf("Scheduler initialized with %d schedule(s)\n", len(schedules))

	// 9. Start the observability HTTP server
	var srv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle(cfg.Metrics.Path, metrics.Handler())
		mux.HandleFunc(cfg.Metrics.StatusPath, statusHandler(ctrl, configured))

		addr := fmt.Sprintf("%s:%d", cfg.Metrics.Host, cfg.Metrics.Port)
		srv = &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			fmt.Printf("Observability server listening on http://%s (%s, %s)\n",
				addr, cfg.Metrics.Path, cfg.Metrics.StatusPath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("observability server failed", zap.Error(err))
			}
		}()
	}

	// 10. Run until interrupted
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Println("\n✓ Daemon is running")
	fmt.Println("Press Ctrl+C to stop")

	scheduler.Kickoff(ctx)
	scheduler.Run(ctx)

	// 11. Graceful shutdown: let in-flight runs finish their page
	fmt.Println("\nShutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ShutdownTimeout)
	defer cancel()

	if err := ctrl.Shutdown(shutdownCtx); err != nil {
		logger.Warn("controller shutdown incomplete", zap.Error(err))
	}
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("observability server shutdown incomplete", zap.Error(err))
		}
	}

	fmt.Println("Daemon stopped")
	return nil
}

// statusHandler serves the latest sync state per (account, resource)
// scope, with live progress for runs owned by this process.
func statusHandler(ctrl *controller.Controller, accounts []shared.Account) http.HandlerFunc {
	resources := []syncrun.Resource{syncrun.ResourceProducts, syncrun.ResourceOffers, syncrun.ResourceOrders}

	type scopeStatus struct {
		Account    string            `json:"account"`
		Resource   string            `json:"resource"`
		SyncLogID  int64             `json:"sync_log_id"`
		Status     string            `json:"status"`
		Live       bool              `json:"live"`
		Progress   *syncrun.Progress `json:"progress,omitempty"`
		StartedAt  *time.Time        `json:"started_at,omitempty"`
		FinishedAt *time.Time        `json:"finished_at,omitempty"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		rows := make([]scopeStatus, 0, len(accounts)*len(resources))
		for _, acct := range accounts {
			for _, res := range resources {
				st, err := ctrl.Status(r.Context(), acct, res)
				if err != nil {
					if errors.Is(err, shared.ErrNotFound) {
						continue
					}
					http.Error(w, err.Error(), http.StatusInternalServerError)
					return
				}
				rows = append(rows, scopeStatus{
					Account:    string(st.Log.Account),
					Resource:   string(st.Log.Resource),
					SyncLogID:  st.Log.ID,
					Status:     string(st.Log.Status),
					Live:       st.Live,
					Progress:   st.Progress,
					StartedAt:  st.Log.StartedAt,
					FinishedAt: st.Log.FinishedAt,
				})
			}
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rows)
	}
}
