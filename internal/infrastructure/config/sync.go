package config

import "time"

// SyncConfig holds sync engine tuning.
type SyncConfig struct {
	// Items requested per page read
	PageSize int `mapstructure:"page_size" validate:"min=1,max=100"`

	// Hard cap on pages per run; callers may lower it per run
	MaxPages int `mapstructure:"max_pages" validate:"min=1"`

	// Items per upsert transaction
	BatchSize int `mapstructure:"batch_size" validate:"min=1"`

	// Entities per bulk write call pushed to the marketplace
	PushBulkSize int `mapstructure:"push_bulk_size" validate:"min=1,max=50"`

	// Wall-clock soft cap for one run; exceeded runs fail at the
	// next page boundary
	Timeout time.Duration `mapstructure:"timeout"`

	// Age after which a silent running row is swept to failed
	OrphanTTL time.Duration `mapstructure:"orphan_ttl"`

	// Cadence of the orphan sweeper
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// Concurrent sync runs the engine executes
	Workers int `mapstructure:"workers" validate:"min=1"`
}
