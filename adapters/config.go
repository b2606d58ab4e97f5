package adapters

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// Config endpoints and cadences of the built-in feature adapters
type Config struct {
	// FleetEndpoint WebSocket URL of the fleet event stream
	FleetEndpoint string `mapstructure:"fleet_endpoint"`
	FleetChannel  string `mapstructure:"fleet_channel"`

	CustomersPath     string        `mapstructure:"customers_path"`
	CustomersPageSize int           `mapstructure:"customers_page_size"`
	CustomersTTL      time.Duration `mapstructure:"customers_ttl"`
	// CustomersRefreshInterval scheduler cadence for the watched page, 0 disables
	CustomersRefreshInterval time.Duration `mapstructure:"customers_refresh_interval"`

	DashboardPath string        `mapstructure:"dashboard_path"`
	DashboardTTL  time.Duration `mapstructure:"dashboard_ttl"`
	// DashboardRefreshThreshold fraction of DashboardTTL after which a read
	// triggers a background refresh
	DashboardRefreshThreshold float64 `mapstructure:"dashboard_refresh_threshold"`
}

func DefaultConfig() Config {
	return Config{
		FleetChannel:              "fleet.status",
		CustomersPath:             "/customers",
		CustomersPageSize:         20,
		CustomersTTL:              time.Minute,
		CustomersRefreshInterval:  0,
		DashboardPath:             "/dashboard/summary",
		DashboardTTL:              30 * time.Second,
		DashboardRefreshThreshold: 0.8,
	}
}

func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.FleetChannel == "" {
		c.FleetChannel = d.FleetChannel
	}
	if c.CustomersPath == "" {
		c.CustomersPath = d.CustomersPath
	}
	if c.CustomersPageSize <= 0 {
		c.CustomersPageSize = d.CustomersPageSize
	}
	if c.CustomersTTL <= 0 {
		c.CustomersTTL = d.CustomersTTL
	}
	if c.DashboardPath == "" {
		c.DashboardPath = d.DashboardPath
	}
	if c.DashboardTTL <= 0 {
		c.DashboardTTL = d.DashboardTTL
	}
	if c.DashboardRefreshThreshold <= 0 {
		c.DashboardRefreshThreshold = d.DashboardRefreshThreshold
	}
}

func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.CustomersPageSize, validation.Min(1), validation.Max(500)),
		validation.Field(&c.CustomersRefreshInterval, validation.Min(time.Duration(0))),
		validation.Field(&c.DashboardRefreshThreshold, validation.Min(0.0), validation.Max(1.0)),
	)
	if err != nil {
		return ErrConfigInvalid.Wrap(err)
	}
	return nil
}
