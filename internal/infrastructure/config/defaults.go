package config

import "time"

// SetDefaults sets default values for all configuration fields
func SetDefaults(cfg *Config) {
	// Database defaults
	if cfg.Database.Type == "" {
		cfg.Database.Type = "postgres"
	}
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.User == "" {
		cfg.Database.User = "emag"
	}
	if cfg.Database.Name == "" {
		cfg.Database.Name = "emag_sync"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.Pool.MaxOpen == 0 {
		cfg.Database.Pool.MaxOpen = 25
	}
	if cfg.Database.Pool.MaxIdle == 0 {
		cfg.Database.Pool.MaxIdle = 5
	}
	if cfg.Database.Pool.MaxLifetime == 0 {
		cfg.Database.Pool.MaxLifetime = 5 * time.Minute
	}

	// Account defaults
	if cfg.Accounts.Main.BaseURL == "" {
		cfg.Accounts.Main.BaseURL = "https://marketplace-api.emag.ro/api-3"
	}
	if cfg.Accounts.FBE.BaseURL == "" {
		cfg.Accounts.FBE.BaseURL = "https://marketplace-api.emag.ro/api-3"
	}

	// API defaults
	if cfg.API.Timeout == 0 {
		cfg.API.Timeout = 30 * time.Second
	}
	if cfg.API.ConnectTimeout == 0 {
		cfg.API.ConnectTimeout = 10 * time.Second
	}
	if cfg.API.RateLimit.Orders.PerSecond == 0 {
		cfg.API.RateLimit.Orders.PerSecond = 12
	}
	if cfg.API.RateLimit.Orders.PerMinute == 0 {
		cfg.API.RateLimit.Orders.PerMinute = 720
	}
	if cfg.API.RateLimit.Other.PerSecond == 0 {
		cfg.API.RateLimit.Other.PerSecond = 3
	}
	if cfg.API.RateLimit.Other.PerMinute == 0 {
		cfg.API.RateLimit.Other.PerMinute = 180
	}
	if cfg.API.Retry.MaxAttempts == 0 {
		cfg.API.Retry.MaxAttempts = 3
	}
	if cfg.API.Retry.BackoffBase == 0 {
		cfg.API.Retry.BackoffBase = 1 * time.Second
	}
	if cfg.API.Retry.TotalBudget == 0 {
		cfg.API.Retry.TotalBudget = 30 * time.Second
	}
	if cfg.API.Breaker.MaxFailures == 0 {
		cfg.API.Breaker.MaxFailures = 5
	}
	if cfg.API.Breaker.Cooldown == 0 {
		cfg.API.Breaker.Cooldown = 60 * time.Second
	}
	if cfg.API.ReferenceTTL == 0 {
		cfg.API.ReferenceTTL = 1 * time.Hour
	}

	// Sync defaults
	if cfg.Sync.PageSize == 0 {
		cfg.Sync.PageSize = 100
	}
	if cfg.Sync.MaxPages == 0 {
		cfg.Sync.MaxPages = 100
	}
	if cfg.Sync.BatchSize == 0 {
		cfg.Sync.BatchSize = 100
	}
	if cfg.Sync.PushBulkSize == 0 {
		cfg.Sync.PushBulkSize = 50
	}
	if cfg.Sync.Timeout == 0 {
		cfg.Sync.Timeout = 10 * time.Minute
	}
	if cfg.Sync.OrphanTTL == 0 {
		cfg.Sync.OrphanTTL = 15 * time.Minute
	}
	if cfg.Sync.SweepInterval == 0 {
		cfg.Sync.SweepInterval = 1 * time.Minute
	}
	if cfg.Sync.Workers == 0 {
		cfg.Sync.Workers = 4
	}

	// Matching defaults
	if cfg.Matching.MinSimilarity == 0 {
		cfg.Matching.MinSimilarity = 0.75
	}
	if cfg.Matching.Workers == 0 {
		cfg.Matching.Workers = 4
	}

	// Reorder defaults
	if cfg.Reorder.CNYRate == 0 {
		cfg.Reorder.CNYRate = 0.65
	}
	if cfg.Reorder.LeadTimeDays == 0 {
		cfg.Reorder.LeadTimeDays = 45
	}

	// Daemon defaults
	if cfg.Daemon.PIDFile == "" {
		cfg.Daemon.PIDFile = "/tmp/emag-sync-daemon.pid"
	}
	if cfg.Daemon.ShutdownTimeout == 0 {
		cfg.Daemon.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Daemon.Schedule.Products == 0 {
		cfg.Daemon.Schedule.Products = 1 * time.Hour
	}
	if cfg.Daemon.Schedule.Offers == 0 {
		cfg.Daemon.Schedule.Offers = 30 * time.Minute
	}
	if cfg.Daemon.Schedule.Orders == 0 {
		cfg.Daemon.Schedule.Orders = 5 * time.Minute
	}

	// Metrics defaults
	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9464
	}
	if cfg.Metrics.Host == "" {
		cfg.Metrics.Host = "localhost"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Metrics.StatusPath == "" {
		cfg.Metrics.StatusPath = "/sync/status"
	}

	// Logging defaults
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
