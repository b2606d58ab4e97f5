package adapters

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/cache"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type summary struct {
	N int `json:"n"`
}

func counting() (func(context.Context) (summary, error), *atomic.Int32) {
	var n atomic.Int32
	return func(context.Context) (summary, error) {
		return summary{N: int(n.Add(1))}, nil
	}, &n
}

func TestQuery_LoadServesFreshValue(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newEngine(t, clock)
	fetch, calls := counting()
	q := NewQuery(e, "/summary", fetch, cache.WithTTL(time.Minute))
	ctx := context.Background()

	r := q.Load(ctx)
	require.NoError(t, r.Err)
	assert.Equal(t, summary{N: 1}, r.Data)
	assert.False(t, r.IsLoading)
	assert.False(t, r.IsStale)
	assert.Equal(t, clock.Now(), r.LastUpdated)
	assert.True(t, r.HasData())

	clock.Advance(30 * time.Second)
	r = q.Load(ctx)
	assert.Equal(t, summary{N: 1}, r.Data)
	assert.EqualValues(t, 1, calls.Load())
}

func TestQuery_ResultBeforeLoad(t *testing.T) {
	e := newEngine(t, clockwork.NewFakeClock())
	fetch, calls := counting()
	q := NewQuery(e, "/summary", fetch)

	r := q.Result()
	assert.False(t, r.HasData())
	assert.Zero(t, r.Data)
	assert.NoError(t, r.Err)
	assert.Zero(t, calls.Load())
}

func TestQuery_StaleWhileRevalidate(t *testing.T) {
	clock := clockwork.NewFakeClock()
	e := newEngine(t, clock)

	release := make(chan struct{})
	var n atomic.Int32
	fetch := func(ctx context.Context) (summary, error) {
		if n.Add(1) > 1 {
			<-release
		}
		return summary{N: int(n.Load())}, nil
	}
	q := NewQuery(e, "/summary", fetch, cache.WithTTL(time.Second), cache.WithStaleWhileRevalidate(true))
	ctx := context.Background()

	require.NoError(t, q.Load(ctx).Err)
	clock.Advance(2 * time.Second)

	r := q.Load(ctx)
	require.NoError(t, r.Err)
	assert.Equal(t, summary{N: 1}, r.Data)
	assert.True(t, r.IsStale)
	assert.True(t, r.IsLoading)

	close(release)
	require.Eventually(t, func() bool {
		cur := q.Result()
		return !cur.IsLoading && cur.Data.N == 2
	}, 2*time.Second, 5*time.Millisecond)
	assert.False(t, q.Result().IsStale)
}

func TestQuery_RefreshForcesFetch(t *testing.T) {
	e := newEngine(t, clockwork.NewFakeClock())
	fetch, calls := counting()
	q := NewQuery(e, "/summary", fetch, cache.WithTTL(time.Hour))
	ctx := context.Background()

	require.NoError(t, q.Load(ctx).Err)
	v, err := q.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, summary{N: 2}, v)

	r := q.Result()
	require.NoError(t, r.Refresh(ctx))
	assert.EqualValues(t, 3, calls.Load())
	assert.Equal(t, summary{N: 3}, q.Result().Data)
}

func TestQuery_Watch(t *testing.T) {
	e := newEngine(t, clockwork.NewFakeClock())
	fetch, _ := counting()
	q := NewQuery(e, "/summary", fetch)

	var mu sync.Mutex
	var got []Result[summary]
	stop := q.Watch(func(r Result[summary]) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, r)
	})

	require.NoError(t, q.Load(context.Background()).Err)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) > 0 && got[len(got)-1].Data.N == 1
	}, time.Second, 5*time.Millisecond)

	stop()
	mu.Lock()
	before := len(got)
	mu.Unlock()
	q.Invalidate()
	_, err := q.Refresh(context.Background())
	require.NoError(t, err)
	mu.Lock()
	assert.Equal(t, before, len(got))
	mu.Unlock()
}

func TestQuery_ErrorKeepsResultShape(t *testing.T) {
	e := newEngine(t, clockwork.NewFakeClock())
	boom := errors.New("boom")
	q := NewQuery(e, "/summary", func(context.Context) (summary, error) {
		return summary{}, boom
	})

	r := q.Load(context.Background())
	require.Error(t, r.Err)
	assert.ErrorIs(t, r.Err, boom)
	assert.False(t, r.HasData())
	assert.False(t, r.NeedsAuth())
}

func TestResult_NeedsAuth(t *testing.T) {
	r := Result[summary]{Err: auth.ErrUnauthorized.WithData("status", 401)}
	assert.True(t, r.NeedsAuth())

	var zero Result[summary]
	assert.False(t, zero.NeedsAuth())
	assert.NoError(t, zero.Refresh(context.Background()))
}
