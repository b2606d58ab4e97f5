package adapters

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/scheduler"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func customersBackend(t *testing.T) *backend {
	b := newBackend(t)
	b.handle("/customers", func(r *http.Request) any {
		q := r.URL.Query()
		page, _ := strconv.Atoi(q.Get("page"))
		size, _ := strconv.Atoi(q.Get("pageSize"))
		return CustomerPage{
			Items:    []Customer{{ID: "c-" + q.Get("page"), Name: "Acme Waste " + q.Get("search")}},
			Total:    41,
			Page:     page,
			PageSize: size,
		}
	})
	return b
}

func TestCustomerList_Key(t *testing.T) {
	l := NewCustomerList(nil, nil, DefaultConfig())

	assert.Equal(t, "/customers?page=1&pageSize=20", l.Key(CustomerParams{}))
	assert.Equal(t, "/customers?page=2&pageSize=50&search=north", l.Key(CustomerParams{Search: "north", PageSize: 50, Page: 2}))
	assert.Equal(t, l.Key(CustomerParams{Page: 1}), l.Key(CustomerParams{Page: 1, PageSize: 20}))
}

func TestCustomerList_PageIsCached(t *testing.T) {
	b := customersBackend(t)
	e := newEngine(t, clockwork.NewFakeClock())
	l := NewCustomerList(e, b.client(t), DefaultConfig())
	ctx := context.Background()

	r := l.Page(ctx, CustomerParams{Page: 2, Search: "north"})
	require.NoError(t, r.Err)
	assert.Equal(t, 2, r.Data.Page)
	assert.Equal(t, 20, r.Data.PageSize)
	assert.Equal(t, 41, r.Data.Total)
	require.Len(t, r.Data.Items, 1)
	assert.Equal(t, "c-2", r.Data.Items[0].ID)

	reqs := b.requests()
	require.Len(t, reqs, 1)
	u, err := url.Parse(reqs[0])
	require.NoError(t, err)
	assert.Equal(t, "/customers", u.Path)
	assert.Equal(t, url.Values{"page": {"2"}, "pageSize": {"20"}, "search": {"north"}}, u.Query())

	r = l.Page(ctx, CustomerParams{Page: 2, Search: "north"})
	require.NoError(t, r.Err)
	assert.EqualValues(t, 1, b.hits.Load())

	require.NoError(t, l.Page(ctx, CustomerParams{Page: 3}).Err)
	assert.EqualValues(t, 2, b.hits.Load())

	assert.Equal(t, 2, l.Invalidate())
	assert.Equal(t, 0, e.Len())
}

func TestCustomerList_StalePageServedOnFailure(t *testing.T) {
	b := customersBackend(t)
	clock := clockwork.NewFakeClock()
	e := newEngine(t, clock)
	l := NewCustomerList(e, b.client(t), DefaultConfig())
	ctx := context.Background()

	require.NoError(t, l.Page(ctx, CustomerParams{}).Err)
	b.fail(http.StatusBadGateway)
	clock.Advance(2 * time.Minute)

	r := l.Page(ctx, CustomerParams{})
	require.NoError(t, r.Err)
	assert.Equal(t, 1, r.Data.Page)
	assert.True(t, r.IsStale)

	require.Eventually(t, func() bool {
		cur := l.Query(CustomerParams{}).Result()
		return !cur.IsLoading && cur.Err != nil
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, l.Query(CustomerParams{}).Result().Data.Page)
}

func TestCustomerList_WatchRefreshesOnSchedule(t *testing.T) {
	b := customersBackend(t)
	e := newEngine(t, clockwork.NewRealClock())
	cfg := DefaultConfig()
	cfg.CustomersRefreshInterval = 20 * time.Millisecond
	l := NewCustomerList(e, b.client(t), cfg)

	s, err := scheduler.New(scheduler.DefaultConfig(), scheduler.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	require.NoError(t, l.Watch(s, CustomerParams{Page: 4}))
	assert.Contains(t, s.Jobs(), CustomersRefreshJob)
	require.NotNil(t, l.Watched())
	assert.Equal(t, l.Key(CustomerParams{Page: 4}), l.Watched().Key())

	s.Start()
	require.Eventually(t, func() bool {
		return b.hits.Load() >= 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 4, l.Watched().Result().Data.Page)
}

func TestCustomerList_WatchWithoutInterval(t *testing.T) {
	e := newEngine(t, clockwork.NewFakeClock())
	l := NewCustomerList(e, nil, DefaultConfig())
	s, err := scheduler.New(scheduler.DefaultConfig(), scheduler.WithLogger(logger.NewNop()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Shutdown() })

	require.NoError(t, l.Watch(s, CustomerParams{}))
	assert.Empty(t, s.Jobs())
	assert.NotNil(t, l.Watched())
}
