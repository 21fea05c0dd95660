package config

// MatchingConfig holds supplier-product matching tuning.
type MatchingConfig struct {
	// Minimum name-similarity score for an automatic pending match
	MinSimilarity float64 `mapstructure:"min_similarity" validate:"min=0,max=1"`

	// Worker pool size for batch matching
	Workers int `mapstructure:"workers" validate:"min=1"`
}

// ReorderConfig holds replenishment and purchase-order tuning.
type ReorderConfig struct {
	// RON per CNY applied to Chinese suppliers
	CNYRate float64 `mapstructure:"cny_rate" validate:"min=0"`

	// Days ahead used for the expected-delivery estimate on drafts
	LeadTimeDays int `mapstructure:"lead_time_days" validate:"min=0"`
}
