package stream

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type readResult struct {
	msg Message
	err error
}

type fakeConn struct {
	reads  chan readResult
	closed chan struct{}
	once   sync.Once

	mu      sync.Mutex
	written []Message
}

func newFakeConn() *fakeConn {
	return &fakeConn{reads: make(chan readResult, 64), closed: make(chan struct{})}
}

func (c *fakeConn) Read() (Message, error) {
	select {
	case r := <-c.reads:
		return r.msg, r.err
	case <-c.closed:
		return Message{}, ErrConnectionLost
	}
}

func (c *fakeConn) Write(_ context.Context, m Message) error {
	select {
	case <-c.closed:
		return ErrConnectionLost
	default:
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.written = append(c.written, m)
	return nil
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(m Message) {
	c.reads <- readResult{msg: m}
}

func (c *fakeConn) fail(err error) {
	c.reads <- readResult{err: err}
}

func (c *fakeConn) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *fakeConn) sent(typ string) []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []Message
	for _, m := range c.written {
		if m.Type == typ {
			out = append(out, m)
		}
	}
	return out
}

// fakeDialer hands out queued results, then falls back to next.
type fakeDialer struct {
	mu      sync.Mutex
	dials   atomic.Int32
	headers []http.Header
	conns   []*fakeConn
	next    func() (Conn, error)
}

func (d *fakeDialer) Dial(_ context.Context, _ string, header http.Header) (Conn, error) {
	d.dials.Add(1)
	d.mu.Lock()
	d.headers = append(d.headers, header)
	next := d.next
	d.mu.Unlock()
	if next != nil {
		return next()
	}
	c := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, c)
	d.mu.Unlock()
	return c, nil
}

func (d *fakeDialer) setNext(fn func() (Conn, error)) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.next = fn
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i >= len(d.conns) {
		return nil
	}
	return d.conns[i]
}

func (d *fakeDialer) lastHeader() http.Header {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.headers) == 0 {
		return nil
	}
	return d.headers[len(d.headers)-1]
}

type harness struct {
	mux      *Multiplexer
	clock    *clockwork.FakeClock
	dialer   *fakeDialer
	breakers *breaker.Manager
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.ReconnectJitter = 0
	cfg.MetricsEnabled = false
	return cfg
}

func newHarness(t *testing.T, cfg Config, bcfg breaker.ResourceConfig, opts ...Option) *harness {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	log := logger.NewNop()
	bc := breaker.DefaultConfig()
	bc.Default = bcfg
	bm, err := breaker.NewManager(bc, breaker.WithClock(clock), breaker.WithLogger(log))
	require.NoError(t, err)
	d := &fakeDialer{}

	base := []Option{WithClock(clock), WithLogger(log), WithDialer(d), WithBreakers(bm)}
	mux, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() {
		mux.Close()
		_ = bm.Shutdown()
	})
	return &harness{mux: mux, clock: clock, dialer: d, breakers: bm}
}

func (h *harness) waitStatus(t *testing.T, endpoint string, want Status) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, _ := h.mux.Status(endpoint)
		return s == want
	}, 2*time.Second, 5*time.Millisecond, "status of %s never became %s", endpoint, want)
}

func (h *harness) waitDials(t *testing.T, n int32) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.dialer.dials.Load() == n
	}, 2*time.Second, 5*time.Millisecond, "expected %d dials", n)
}
