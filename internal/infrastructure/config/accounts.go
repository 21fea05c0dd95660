package config

// AccountsConfig holds the two independently configured marketplace
// accounts. An account with an empty username is treated as absent.
type AccountsConfig struct {
	Main AccountCredentials `mapstructure:"main"`
	FBE  AccountCredentials `mapstructure:"fbe"`
}

// AccountCredentials holds one account's endpoint and basic-auth pair.
type AccountCredentials struct {
	BaseURL  string `mapstructure:"base_url" validate:"omitempty,url"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`

	// Warehouse used for stock and handling-time writes
	WarehouseID int `mapstructure:"warehouse_id"`
}

// Configured reports whether the credentials are usable.
func (c AccountCredentials) Configured() bool {
	return c.Username != "" && c.Password != ""
}
