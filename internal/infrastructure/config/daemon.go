package config

import "time"

// DaemonConfig holds the background service configuration
type DaemonConfig struct {
	// PID file location
	PIDFile string `mapstructure:"pid_file"`

	// Graceful shutdown timeout
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required"`

	// Scheduled sync cadence per resource; zero disables a schedule
	Schedule ScheduleConfig `mapstructure:"schedule"`
}

// ScheduleConfig holds the periodic sync intervals the daemon runs for
// every configured account.
type ScheduleConfig struct {
	Products time.Duration `mapstructure:"products"`
	Offers   time.Duration `mapstructure:"offers"`
	Orders   time.Duration `mapstructure:"orders"`
}
