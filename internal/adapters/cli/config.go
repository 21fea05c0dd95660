package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/modula-erp/emag-sync-go/internal/domain/shared"
	"github.com/modula-erp/emag-sync-go/internal/domain/syncrun"
	"github.com/modula-erp/emag-sync-go/internal/infrastructure/config"
)

// NewConfigCommand creates the config command with subcommands
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration settings",
		Long: `Manage emagsync configuration settings.

Configuration is loaded from multiple sources with priority:
1. Environment variables (EMAG_* prefix)
2. Config file (config.yaml)
3. Default values

User preferences (default account and resource) are stored in
~/.emag-sync/config.json and never hold credentials.

Examples:
  emagsync config show
  emagsync config set-account fbe
  emagsync config set-resource orders
  emagsync config clear`,
	}

	cmd.AddCommand(newConfigShowCommand())
	cmd.AddCommand(newConfigSetAccountCommand())
	cmd.AddCommand(newConfigSetResourceCommand())
	cmd.AddCommand(newConfigClearCommand())

	return cmd
}

// newConfigShowCommand creates the config show subcommand
func newConfigShowCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		Long: `Display the current configuration settings.

Shows both system configuration and user preferences. Secrets are
never printed.

Example:
  emagsync config show`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				fmt.Printf("Warning: failed to load config: %v\n", err)
				fmt.Println("Showing defaults.")
				cfg = config.LoadConfigOrDefault(configPath)
			}

			handler, err := config.NewUserConfigHandler()
			if err != nil {
				return fmt.Errorf("failed to create user config handler: %w", err)
			}
			userCfg, err := handler.Load()
			if err != nil {
				fmt.Printf("Warning: failed to load user config: %v\n\n", err)
				userCfg = &config.UserConfig{}
			}

			fmt.Println("emagsync Configuration")
			fmt.Println("======================")

			fmt.Println("User Preferences:")
			fmt.Printf("  Config file:      %s\n", handler.GetConfigPath())
			fmt.Printf("  Default Account:  %s\n", orUnset(userCfg.DefaultAccount))
			fmt.Printf("  Default Resource: %s\n", orUnset(userCfg.DefaultResource))

			fmt.Println("\nDatabase:")
			fmt.Printf("  Type:             %s\n", cfg.Database.Type)
			if cfg.Database.URL != "" {
				fmt.Printf("  URL:              (set)\n")
			} else {
				fmt.Printf("  Host:             %s\n", cfg.Database.Host)
				fmt.Printf("  Port:             %d\n", cfg.Database.Port)
				fmt.Printf("  Database:         %s\n", cfg.Database.Name)
				fmt.Printf("  User:             %s\n", cfg.Database.User)
			}
			fmt.Printf("  Max Connections:  %d\n", cfg.Database.Pool.MaxOpen)

			fmt.Println("\nAccounts:")
			fmt.Printf("  MAIN:             %s\n", describeAccount(cfg.Accounts.Main))
			fmt.Printf("  FBE:              %s\n", describeAccount(cfg.Accounts.FBE))

			fmt.Println("\nMarketplace API:")
			fmt.Printf("  Call Timeout:     %s\n", cfg.API.Timeout)
			fmt.Printf("  Rate Limit:       orders %d/s %d/min, other %d/s %d/min\n",
				cfg.API.RateLimit.Orders.PerSecond, cfg.API.RateLimit.Orders.PerMinute,
				cfg.API.RateLimit.Other.PerSecond, cfg.API.RateLimit.Other.PerMinute)
			fmt.Printf("  Max Retries:      %d\n", cfg.API.Retry.MaxAttempts)
			fmt.Printf("  Retry Budget:     %s\n", cfg.API.Retry.TotalBudget)
			fmt.Printf("  Breaker:          %d failures, %s cooldown\n",
				cfg.API.Breaker.MaxFailures, cfg.API.Breaker.Cooldown)

			fmt.Println("\nSync:")
			fmt.Printf("  Page Size:        %d\n", cfg.Sync.PageSize)
			fmt.Printf("  Max Pages:        %d\n", cfg.Sync.MaxPages)
			fmt.Printf("  Run Timeout:      %s\n", cfg.Sync.Timeout)
			fmt.Printf("  Orphan TTL:       %s\n", cfg.Sync.OrphanTTL)

			fmt.Println("\nDaemon Schedule:")
			fmt.Printf("  Products:         %s\n", cfg.Daemon.Schedule.Products)
			fmt.Printf("  Offers:           %s\n", cfg.Daemon.Schedule.Offers)
			fmt.Printf("  Orders:           %s\n", cfg.Daemon.Schedule.Orders)

			fmt.Println("\nLogging:")
			fmt.Printf("  Level:            %s\n", cfg.Logging.Level)
			fmt.Printf("  Format:           %s\n", cfg.Logging.Format)
			fmt.Printf("  Output:           %s\n", cfg.Logging.Output)

			return nil
		},
	}

	return cmd
}

// newConfigSetAccountCommand creates the config set-account subcommand
func newConfigSetAccountCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-account <main|fbe|both>",
		Short: "Set the default account",
		Long: `Set the account commands use when --account is not given.

Examples:
  emagsync config set-account main
  emagsync config set-account both`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selector := args[0]
			if selector != "both" {
				if _, err := shared.ParseAccount(selector); err != nil {
					return err
				}
			}

			handler, err := config.NewUserConfigHandler()
			if err != nil {
				return fmt.Errorf("failed to create user config handler: %w", err)
			}
			if err := handler.SetDefaultAccount(selector); err != nil {
				return fmt.Errorf("failed to set default account: %w", err)
			}

			fmt.Printf("✓ Default account set to %s\n", selector)
			fmt.Println("Override per command with --account.")
			return nil
		},
	}

	return cmd
}

// newConfigSetResourceCommand creates the config set-resource subcommand
func newConfigSetResourceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set-resource <products|offers|orders>",
		Short: "Set the default sync resource",
		Long: `Set the resource 'sync' uses when --resource is not given.

Example:
  emagsync config set-resource products`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := syncrun.ParseResource(args[0]); err != nil {
				return err
			}

			handler, err := config.NewUserConfigHandler()
			if err != nil {
				return fmt.Errorf("failed to create user config handler: %w", err)
			}
			if err := handler.SetDefaultResource(args[0]); err != nil {
				return fmt.Errorf("failed to set default resource: %w", err)
			}

			fmt.Printf("✓ Default resource set to %s\n", args[0])
			return nil
		},
	}

	return cmd
}

// newConfigClearCommand creates the config clear subcommand
func newConfigClearCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear stored user preferences",
		Long: `Remove the default account and resource preferences.

Example:
  emagsync config clear`,
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, err := config.NewUserConfigHandler()
			if err != nil {
				return fmt.Errorf("failed to create user config handler: %w", err)
			}
			if err := handler.ClearDefaults(); err != nil {
				return fmt.Errorf("failed to clear preferences: %w", err)
			}

			fmt.Println("✓ User preferences cleared")
			return nil
		},
	}

	return cmd
}

// orUnset renders empty preference values
func orUnset(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}

// describeAccount renders one account's configuration state without
// leaking credentials
func describeAccount(creds config.AccountCredentials) string {
	if !creds.Configured() {
		return "(not configured)"
	}
	return fmt.Sprintf("%s as %s, warehouse %d", creds.BaseURL, creds.Username, creds.WarehouseID)
}
