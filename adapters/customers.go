package adapters

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/cache"
	"github.com/KOMKZ/opsfeed/httpclient"
	"github.com/KOMKZ/opsfeed/scheduler"
)

// CustomersRefreshJob scheduler job name of the watched customer page
const CustomersRefreshJob = "adapters.customers.refresh"

type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email,omitempty"`
	Phone     string    `json:"phone,omitempty"`
	Status    string    `json:"status,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// CustomerPage one page of the customer listing
type CustomerPage struct {
	Items    []Customer `json:"items"`
	Total    int        `json:"total"`
	Page     int        `json:"page"`
	PageSize int        `json:"pageSize"`
}

// CustomerParams zero Page means 1, zero PageSize the configured default
type CustomerParams struct {
	Page     int
	PageSize int
	Search   string
}

// CustomerList paginated customer queries over the cache engine.
type CustomerList struct {
	engine *cache.Engine
	client *httpclient.Client
	cfg    Config

	mu      sync.Mutex
	watched *Query[CustomerPage]
}

func NewCustomerList(engine *cache.Engine, client *httpclient.Client, cfg Config) *CustomerList {
	cfg.ApplyDefaults()
	return &CustomerList{
		engine: engine,
		client: client,
		cfg:    cfg,
	}
}

func (l *CustomerList) normalize(p CustomerParams) CustomerParams {
	if p.Page <= 0 {
		p.Page = 1
	}
	if p.PageSize <= 0 {
		p.PageSize = l.cfg.CustomersPageSize
	}
	return p
}

// Key cache key of one page; an empty search is left out.
func (l *CustomerList) Key(p CustomerParams) string {
	p = l.normalize(p)
	params := map[string]any{"page": p.Page, "pageSize": p.PageSize}
	if p.Search != "" {
		params["search"] = p.Search
	}
	return cache.Key(l.cfg.CustomersPath, params)
}

// Query binds one page onto the engine.
func (l *CustomerList) Query(p CustomerParams) *Query[CustomerPage] {
	p = l.normalize(p)
	query := url.Values{}
	query.Set("page", strconv.Itoa(p.Page))
	query.Set("pageSize", strconv.Itoa(p.PageSize))
	if p.Search != "" {
		query.Set("search", p.Search)
	}
	fetch := func(ctx context.Context) (CustomerPage, error) {
		return httpclient.Get[CustomerPage](ctx, l.client, l.cfg.CustomersPath, query)
	}
	return NewQuery(l.engine, l.Key(p), fetch,
		cache.WithTTL(l.cfg.CustomersTTL),
		cache.WithStaleWhileRevalidate(true))
}

// Page loads one page, serving a stale copy while it revalidates.
func (l *CustomerList) Page(ctx context.Context, p CustomerParams) Result[CustomerPage] {
	return l.Query(p).Load(ctx)
}

// Invalidate drops every cached page.
func (l *CustomerList) Invalidate() int {
	return l.engine.Invalidate(l.cfg.CustomersPath)
}

// Watch keeps page p refreshed on CustomersRefreshInterval, replacing the
// previously watched page. A zero interval only records p.
func (l *CustomerList) Watch(s *scheduler.Scheduler, p CustomerParams) error {
	q := l.Query(p)
	l.mu.Lock()
	l.watched = q
	l.mu.Unlock()

	if l.cfg.CustomersRefreshInterval <= 0 {
		return nil
	}
	return s.Every(CustomersRefreshJob, l.cfg.CustomersRefreshInterval, func(ctx context.Context) error {
		_, err := q.Refresh(ctx)
		return err
	})
}

// Watched the page passed to the last Watch, nil before that.
func (l *CustomerList) Watched() *Query[CustomerPage] {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.watched
}
