package config

import "time"

// APIConfig holds marketplace API client configuration
type APIConfig struct {
	// Per-call timeout for one HTTP round trip
	Timeout time.Duration `mapstructure:"timeout" validate:"required"`

	// Dialer timeout for establishing connections
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`

	// Rate limiting settings per request class
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`

	// Retry configuration
	Retry RetryConfig `mapstructure:"retry"`

	// Circuit breaker configuration
	Breaker BreakerConfig `mapstructure:"breaker"`

	// How long VAT and handling-time registries are cached
	ReferenceTTL time.Duration `mapstructure:"reference_ttl"`
}

// RateLimitConfig holds the sliding-window caps for both request
// classes. Order endpoints get a far higher allowance than the rest.
type RateLimitConfig struct {
	Orders WindowCaps `mapstructure:"orders"`
	Other  WindowCaps `mapstructure:"other"`
}

// WindowCaps holds one class's per-second and per-minute caps.
type WindowCaps struct {
	PerSecond int `mapstructure:"per_second" validate:"min=1"`
	PerMinute int `mapstructure:"per_minute" validate:"min=1"`
}

// RetryConfig holds retry configuration for failed requests
type RetryConfig struct {
	// Maximum number of retry attempts after the initial one
	MaxAttempts int `mapstructure:"max_attempts" validate:"min=0"`

	// Base duration for exponential backoff
	BackoffBase time.Duration `mapstructure:"backoff_base"`

	// Cumulative time budget for one logical call, sleeps included
	TotalBudget time.Duration `mapstructure:"total_budget"`
}

// BreakerConfig holds circuit breaker configuration
type BreakerConfig struct {
	// Consecutive tripping failures before the circuit opens
	MaxFailures int `mapstructure:"max_failures" validate:"min=1"`

	// How long the circuit stays open before a probe
	Cooldown time.Duration `mapstructure:"cooldown"`
}
