package adapters

import (
	"context"
	"time"

	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/httpclient"
)

// DashboardSummary headline counters of the operations dashboard
type DashboardSummary struct {
	ActiveVehicles   int       `json:"activeVehicles"`
	IdleVehicles     int       `json:"idleVehicles"`
	OpenIncidents    int       `json:"openIncidents"`
	PickupsToday     int       `json:"pickupsToday"`
	PickupsCompleted int       `json:"pickupsCompleted"`
	TonnageToday     float64   `json:"tonnageToday"`
	GeneratedAt      time.Time `json:"generatedAt"`
}

// NewDashboardSummary reads past DashboardRefreshThreshold of the TTL start
// a background refresh and keep serving the cached summary.
func NewDashboardSummary(engine *cache.Engine, client *httpclient.Client, cfg Config) *Query[DashboardSummary] {
	cfg.ApplyDefaults()
	path := cfg.DashboardPath
	fetch := func(ctx context.Context) (DashboardSummary, error) {
		return httpclient.Get[DashboardSummary](ctx, client, path, nil)
	}
	return NewQuery(engine, cache.Key(path, nil), fetch,
		cache.WithTTL(cfg.DashboardTTL),
		cache.WithStaleWhileRevalidate(true),
		cache.WithBackgroundRefresh(cfg.DashboardRefreshThreshold))
}
