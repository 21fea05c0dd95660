package cli

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/modula-erp/emag-sync-go/internal/adapters/api"
	"github.com/modula-erp/emag-sync-go/internal/adapters/persistence"
	"github.com/modula-erp/emag-sync-go/internal/application/syncengine"
	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/config"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/database"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/logging"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/ratelimit"
)

// runtime bundles the pieces every command wires after flag parsing:
// configuration, the process logger and the database handle.
type runtime struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
}

// openRuntime loads configuration and connects the database. Commands
// call this once at the top of their run function.
func openRuntime() (*runtime, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.NewLogger(&cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	if !verbose {
		// Batch jobs keep structured logs out of the operator's way
		// unless asked for; errors still land on stderr.
		logger = logging.NewNop()
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return &runtime{cfg: cfg, logger: logger, db: db}, nil
}

// Close flushes buffered log output.
func (r *runtime) Close() {
	_ = r.logger.Sync()
}

// newClient builds the rate-limited marketplace client for every
// configured account. Errors when no account has credentials.
func (r *runtime) newClient() (*api.Client, error) {
	accounts := make(map[shared.Account]api.AccountConfig)
	creds := map[shared.Account]config.AccountCredentials{
		shared.AccountMain: r.cfg.Accounts.Main,
		shared.AccountFBE:  r.cfg.Accounts.FBE,
	}

	limiter := ratelimit.NewLimiter(shared.NewRealClock(), nil, nil)
	for acct, c := range creds {
		if !c.Configured() {
			continue
		}
		accounts[acct] = api.AccountConfig{
			BaseURL:  c.BaseURL,
			Username: c.Username,
			Password: c.Password,
		}
		if err := limiter.Configure(acct, syncrun.ClassOrders, ratelimit.Caps{
			PerSecond: r.cfg.API.RateLimit.Orders.PerSecond,
			PerMinute: r.cfg.API.RateLimit.Orders.PerMinute,
		}); err != nil {
			return nil, err
		}
		if err := limiter.Configure(acct, syncrun.ClassOther, ratelimit.Caps{
			PerSecond: r.cfg.API.RateLimit.Other.PerSecond,
			PerMinute: r.cfg.API.RateLimit.Other.PerMinute,
		}); err != nil {
			return nil, err
		}
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("no marketplace account configured: set EMAG_MAIN_USERNAME/PASSWORD or EMAG_FBE_USERNAME/PASSWORD")
	}

	client := api.NewClient(api.ClientConfig{
		Accounts:        accounts,
		MaxRetries:      r.cfg.API.Retry.MaxAttempts,
		RetryBase:       r.cfg.API.Retry.BackoffBase,
		TotalBudget:     r.cfg.API.Retry.TotalBudget,
		CallTimeout:     r.cfg.API.Timeout,
		ConnectTimeout:  r.cfg.API.ConnectTimeout,
		BreakerFailures: r.cfg.API.Breaker.MaxFailures,
		BreakerCooldown: r.cfg.API.Breaker.Cooldown,
	}, limiter, shared.NewRealClock(), nil, r.logger, nil)
	return client, nil
}

// newSyncEngine wires the sync engine over a marketplace client.
func (r *runtime) newSyncEngine(client *api.Client) *syncengine.Engine {
	return syncengine.NewEngine(
		client,
		persistence.NewGormProductRepository(r.db),
		persistence.NewGormOrderRepository(r.db),
		persistence.NewGormSyncLogRepository(r.db),
		api.NewReferenceCache(client, r.cfg.API.ReferenceTTL),
		shared.NewRealClock(),
		r.logger,
		nil,
		syncengine.Config{
			PageSize:     r.cfg.Sync.PageSize,
			MaxPages:     r.cfg.Sync.MaxPages,
			RunTimeout:   r.cfg.Sync.Timeout,
			PushBulkSize: r.cfg.Sync.PushBulkSize,
			Warehouses:   r.warehouses(),
		},
	)
}

// requireConfigured errors unless the account has usable credentials.
func (r *runtime) requireConfigured(acct shared.Account) error {
	creds := r.cfg.Accounts.Main
	if acct == shared.AccountFBE {
		creds = r.cfg.Accounts.FBE
	}
	if !creds.Configured() {
		return fmt.Errorf("account %s is not configured", acct)
	}
	return nil
}

// warehouses maps each account to its configured stock warehouse.
func (r *runtime) warehouses() map[shared.Account]int {
	return map[shared.Account]int{
		shared.AccountMain: r.cfg.Accounts.Main.WarehouseID,
		shared.AccountFBE:  r.cfg.Accounts.FBE.WarehouseID,
	}
}

// resolveAccounts expands the --account flag into concrete accounts.
// Priority: explicit flag > user config default. "both" selects every
// account.
func resolveAccounts() ([]shared.Account, error) {
	selector := account
	if selector == "" {
		handler, err := config.NewUserConfigHandler()
		if err == nil {
			if userCfg, err := handler.Load(); err == nil {
				selector = userCfg.DefaultAccount
			}
		}
	}
	if selector == "" {
		return nil, fmt.Errorf("no account specified: use --account main|fbe|both, or set a default with 'emagsync config set-account'")
	}
	if selector == "both" {
		return shared.AllAccounts(), nil
	}
	acct, err := shared.ParseAccount(selector)
	if err != nil {
		return nil, err
	}
	return []shared.Account{acct}, nil
}

// resolveOneAccount is resolveAccounts for commands that cannot fan
// out, like offer publish.
func resolveOneAccount() (shared.Account, error) {
	accounts, err := resolveAccounts()
	if err != nil {
		return "", err
	}
	if len(accounts) != 1 {
		return "", fmt.Errorf("this command needs exactly one account, not %q", account)
	}
	return accounts[0], nil
}

// formatTimePtr renders an optional timestamp for tables.
func formatTimePtr(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format("2006-01-02 15:04:05")
}

// truncate shortens long names so tables stay readable.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	if max <= 3 {
		return s[:max]
	}
	return s[:max-3] + "..."
}
