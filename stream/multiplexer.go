// Package stream shares long-lived duplex connections between subscribers.
//
// One connection is opened per endpoint and reference-counted by subscriber.
// Each endpoint is guarded by a circuit breaker from a breaker.Manager: after
// repeated failures Acquire and Send fail fast with ErrCircuitOpen until the
// reset timeout lets a single reconnection probe through. Background failures
// never reach Acquire or Send callers; they are published as ConnectionError
// events.
package stream

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/KOMKZ/opsfeed/auth"
	"github.com/KOMKZ/opsfeed/breaker"
	"github.com/KOMKZ/opsfeed/errcode"
	"github.com/KOMKZ/opsfeed/event"
	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/retry"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

type entry struct {
	endpoint string
	breaker  *breaker.Breaker
	ctx      context.Context
	cancel   context.CancelFunc
	kick     chan struct{}
	inbox    chan Message
	batch    *batcher

	// guarded by Multiplexer.mu
	subs         map[string]*subscriber
	channels     map[string]int // refcount per joined channel
	conn         Conn           // nil unless connected
	status       Status
	lastErr      error
	lastActivity time.Time
	authBlocked  bool // parked until Reconnect
	restart      bool // current conn closed by Reconnect
	permit       bool // breaker permit taken by Acquire, spent on the first dial
	attempt      int
	missed       int // heartbeats without an inbound frame

	in    atomic.Int64
	out   atomic.Int64
	dials atomic.Int64
}

// wake interrupts a pending reconnect wait
func (e *entry) wake() {
	select {
	case e.kick <- struct{}{}:
	default:
	}
}

// Multiplexer registry of shared connections keyed by endpoint URL.
type Multiplexer struct {
	cfg         Config
	clock       clockwork.Clock
	logger      *logger.CtxZapLogger
	dialer      Dialer
	tokens      auth.TokenSource
	breakers    *breaker.Manager
	ownBreakers bool
	events      *event.Dispatcher
	otel        *OTelMetrics
	backoff     retry.BackoffStrategy

	mu      sync.Mutex
	entries map[string]*entry
	closed  bool
	wg      sync.WaitGroup
}

// New creates a multiplexer. Without WithBreakers it owns a private
// breaker.Manager with default thresholds.
func New(cfg Config, opts ...Option) (*Multiplexer, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	d := NewWebsocketDialer()
	d.HandshakeTimeout = cfg.DialTimeout
	d.WriteTimeout = cfg.WriteTimeout
	m := &Multiplexer{
		cfg:     cfg,
		clock:   clockwork.NewRealClock(),
		logger:  logger.GetLogger("stream"),
		dialer:  d,
		entries: make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(m)
	}

	if m.breakers == nil {
		bm, err := breaker.NewManager(breaker.DefaultConfig(),
			breaker.WithClock(m.clock), breaker.WithLogger(m.logger))
		if err != nil {
			return nil, err
		}
		m.breakers = bm
		m.ownBreakers = true
	}

	events, err := event.NewDispatcher(event.WithPoolSize(cfg.EventWorkers), event.WithLogger(m.logger))
	if err != nil {
		return nil, err
	}
	m.events = events

	m.backoff = retry.ExponentialBackoff(cfg.ReconnectBase,
		retry.WithMultiplier(cfg.ReconnectMultiplier),
		retry.WithMaxDelay(cfg.ReconnectMaxDelay),
		retry.WithJitter(cfg.ReconnectJitter))

	if m.otel != nil {
		m.otel.bindStatuses(m.statusCounts)
	}
	return m, nil
}

// Acquire returns a handle on the shared connection for endpoint, opening it
// if absent. When the endpoint's circuit is open it returns ErrCircuitOpen and
// creates nothing. Acquire never waits for the connection; watch Status or
// the event stream for progress. An empty subscriberID gets a random one;
// re-acquiring with a known ID replaces that subscriber's options.
func (m *Multiplexer) Acquire(ctx context.Context, endpoint, subscriberID string, opts ...AcquireOption) (*Handle, error) {
	if subscriberID == "" {
		subscriberID = uuid.NewString()
	}
	sub := newSubscriber(subscriberID, opts)
	br := m.breakers.Get(endpoint)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}

	if ent, ok := m.entries[endpoint]; ok {
		if br.Rejecting() {
			m.mu.Unlock()
			m.logger.DebugCtx(ctx, "⛔ [Multiplexer] acquire rejected, circuit open", zap.String("endpoint", endpoint))
			return nil, ErrCircuitOpen
		}
		// a failing entry keeps its backoff schedule; only Reconnect skips it
		joined, left := m.addSubscriberLocked(ent, sub)
		conn := ent.conn
		m.mu.Unlock()

		m.sendControl(ent, conn, TypeUnsubscribe, left)
		m.sendControl(ent, conn, TypeSubscribe, joined)
		return &Handle{m: m, endpoint: endpoint, subscriberID: subscriberID}, nil
	}

	if err := br.Allow(); err != nil {
		m.mu.Unlock()
		m.logger.DebugCtx(ctx, "⛔ [Multiplexer] acquire rejected, circuit open", zap.String("endpoint", endpoint))
		return nil, err
	}

	ectx, cancel := context.WithCancel(context.Background())
	ent := &entry{
		endpoint:     endpoint,
		breaker:      br,
		ctx:          ectx,
		cancel:       cancel,
		kick:         make(chan struct{}, 1),
		inbox:        make(chan Message, m.cfg.InboxSize),
		subs:         make(map[string]*subscriber),
		channels:     make(map[string]int),
		status:       StatusConnecting,
		lastActivity: m.clock.Now(),
		permit:       true,
	}
	ent.batch = newBatcher(m.clock, m.cfg.BatchSize, m.cfg.BatchInterval)
	m.addSubscriberLocked(ent, sub)
	m.entries[endpoint] = ent

	m.wg.Add(2)
	go m.connectLoop(ent)
	go m.deliver(ent)
	m.mu.Unlock()

	m.logger.InfoCtx(ctx, "🔌 [Multiplexer] connection created",
		zap.String("endpoint", endpoint), zap.String("subscriber", subscriberID))
	return &Handle{m: m, endpoint: endpoint, subscriberID: subscriberID}, nil
}

// Release drops subscriberID from endpoint. The last release closes the
// connection and removes the entry unless KeepIdle is set. Unknown endpoints
// or subscribers are ignored.
func (m *Multiplexer) Release(endpoint, subscriberID string) {
	m.mu.Lock()
	ent, ok := m.entries[endpoint]
	if !ok {
		m.mu.Unlock()
		return
	}
	sub, ok := ent.subs[subscriberID]
	if !ok {
		m.mu.Unlock()
		return
	}
	delete(ent.subs, subscriberID)
	left := m.leaveLocked(ent, sub.channels)
	ent.lastActivity = m.clock.Now()
	conn := ent.conn
	removed := false
	if len(ent.subs) == 0 && !m.cfg.KeepIdle {
		m.removeLocked(ent)
		removed = true
	}
	m.mu.Unlock()

	if removed {
		m.finish(ent, "released")
		return
	}
	m.sendControl(ent, conn, TypeUnsubscribe, left)
}

// Send writes msg immediately; outbound messages are never batched. Fails with
// ErrCircuitOpen while quarantined and ErrNotConnected when no connection is
// open. Empty ID and Timestamp are filled in.
func (m *Multiplexer) Send(ctx context.Context, endpoint string, msg Message, priority Priority) error {
	if br, ok := m.breakers.Lookup(endpoint); ok && br.Rejecting() {
		return ErrCircuitOpen
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	ent, ok := m.entries[endpoint]
	if !ok || ent.conn == nil {
		m.mu.Unlock()
		return ErrNotConnected.WithData("endpoint", endpoint)
	}
	conn := ent.conn
	m.mu.Unlock()

	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.clock.Now()
	}
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if priority != "" {
		msg.Priority = priority
	}
	if err := m.write(ctx, ent, conn, msg); err != nil {
		return ErrSendFailed.WithData("endpoint", endpoint).Wrap(err)
	}
	return nil
}

// Subscribe joins channel on an acquired endpoint. Channels are
// reference-counted; the subscribe frame is sent on the first join and
// replayed after every reconnect.
func (m *Multiplexer) Subscribe(endpoint, channel string) error {
	m.mu.Lock()
	ent, ok := m.entries[endpoint]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownEndpoint.WithData("endpoint", endpoint)
	}
	joined := m.joinLocked(ent, []string{channel})
	conn := ent.conn
	m.mu.Unlock()

	m.sendControl(ent, conn, TypeSubscribe, joined)
	return nil
}

// Unsubscribe leaves channel; the unsubscribe frame is sent on the last leave.
func (m *Multiplexer) Unsubscribe(endpoint, channel string) error {
	m.mu.Lock()
	ent, ok := m.entries[endpoint]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownEndpoint.WithData("endpoint", endpoint)
	}
	left := m.leaveLocked(ent, []string{channel})
	conn := ent.conn
	m.mu.Unlock()

	m.sendControl(ent, conn, TypeUnsubscribe, left)
	return nil
}

// Reconnect forces a fresh connection. An open connection is closed and
// redialed at once without counting as a failure, and its channels are
// replayed on the new one. Otherwise any pending backoff wait is skipped and
// an endpoint stopped by an authentication failure resumes.
func (m *Multiplexer) Reconnect(endpoint string) error {
	m.mu.Lock()
	ent, ok := m.entries[endpoint]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownEndpoint.WithData("endpoint", endpoint)
	}
	ent.authBlocked = false
	ent.attempt = 0
	conn := ent.conn
	if conn != nil {
		ent.restart = true
	} else {
		ent.wake()
	}
	m.mu.Unlock()

	if conn != nil {
		m.logger.Info("🔄 [Multiplexer] reconnect requested", zap.String("endpoint", endpoint))
		_ = conn.Close()
	}
	return nil
}

// Status current status of endpoint; false when not acquired
func (m *Multiplexer) Status(endpoint string) (Status, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ent, ok := m.entries[endpoint]
	if !ok {
		return StatusDisconnected, false
	}
	return ent.status, true
}

// LastError most recent background error for endpoint, nil once connected
func (m *Multiplexer) LastError(endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ent, ok := m.entries[endpoint]; ok {
		return ent.lastErr
	}
	return nil
}

// Sweep closes connections without subscribers that have been idle for
// IdleTimeout and returns how many were closed.
func (m *Multiplexer) Sweep() int {
	now := m.clock.Now()
	m.mu.Lock()
	var idle []*entry
	for _, ent := range m.entries {
		if len(ent.subs) == 0 && now.Sub(ent.lastActivity) >= m.cfg.IdleTimeout {
			m.removeLocked(ent)
			idle = append(idle, ent)
		}
	}
	m.mu.Unlock()

	for _, ent := range idle {
		m.finish(ent, "idle")
	}
	return len(idle)
}

// Breakers registry used for endpoint quarantine
func (m *Multiplexer) Breakers() *breaker.Manager {
	return m.breakers
}

// Close closes every connection and waits for background goroutines.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	all := make([]*entry, 0, len(m.entries))
	for _, ent := range m.entries {
		m.removeLocked(ent)
		all = append(all, ent)
	}
	m.mu.Unlock()

	for _, ent := range all {
		m.finish(ent, "shutdown")
	}
	m.wg.Wait()
	m.events.Close()
	if m.ownBreakers {
		_ = m.breakers.Shutdown()
	}
	m.logger.Info("✅ [Multiplexer] closed", zap.Int("connections", len(all)))
}

// Shutdown implements do.Shutdowner.
func (m *Multiplexer) Shutdown() error {
	m.Close()
	return nil
}

// removeLocked detaches ent from the registry and stops its goroutines.
func (m *Multiplexer) removeLocked(ent *entry) {
	if m.entries[ent.endpoint] == ent {
		delete(m.entries, ent.endpoint)
	}
	ent.cancel()
}

func (m *Multiplexer) finish(ent *entry, reason string) {
	ent.batch.stop()
	m.logger.Info("🔌 [Multiplexer] connection closed",
		zap.String("endpoint", ent.endpoint), zap.String("reason", reason))
}

// addSubscriberLocked returns channels newly joined and left.
func (m *Multiplexer) addSubscriberLocked(ent *entry, sub *subscriber) (joined, left []string) {
	if old, ok := ent.subs[sub.id]; ok {
		left = m.leaveLocked(ent, old.channels)
	}
	ent.subs[sub.id] = sub
	ent.lastActivity = m.clock.Now()
	joined = m.joinLocked(ent, sub.channels)
	return joined, left
}

func (m *Multiplexer) joinLocked(ent *entry, channels []string) []string {
	var joined []string
	for _, ch := range channels {
		ent.channels[ch]++
		if ent.channels[ch] == 1 {
			joined = append(joined, ch)
		}
	}
	return joined
}

func (m *Multiplexer) leaveLocked(ent *entry, channels []string) []string {
	var left []string
	for _, ch := range channels {
		n, ok := ent.channels[ch]
		if !ok {
			continue
		}
		if n <= 1 {
			delete(ent.channels, ch)
			left = append(left, ch)
			continue
		}
		ent.channels[ch] = n - 1
	}
	return left
}

func (m *Multiplexer) takePermitLocked(ent *entry) bool {
	p := ent.permit
	ent.permit = false
	return p
}

// connectLoop owns the physical connection of ent: dial, serve, and on
// failure back off and retry under the breaker until the entry is removed.
func (m *Multiplexer) connectLoop(ent *entry) {
	defer m.wg.Done()
	defer m.setStatus(ent, StatusDisconnected, nil)

	for {
		m.mu.Lock()
		permitted := m.takePermitLocked(ent)
		m.mu.Unlock()

		if ent.ctx.Err() != nil {
			if permitted {
				ent.breaker.CancelProbe()
			}
			return
		}

		if !permitted {
			if err := ent.breaker.Allow(); err != nil {
				retryAt := ent.breaker.Snapshot().RetryAt
				delay := retryAt.Sub(m.clock.Now())
				if retryAt.IsZero() || delay <= 0 {
					delay = m.cfg.ReconnectBase
					retryAt = m.clock.Now().Add(delay)
				}
				m.report(ent, errcode.KindCircuit, err, retryAt)
				if !m.pause(ent, delay) {
					return
				}
				continue
			}
		}

		m.setStatus(ent, StatusConnecting, nil)
		conn, err := m.dial(ent)
		if err != nil {
			if ent.ctx.Err() != nil {
				ent.breaker.CancelProbe()
				return
			}
			m.otel.recordDial(ent.endpoint, "failure")
			if errcode.KindOf(err) == errcode.KindAuth {
				ent.breaker.CancelProbe()
				if !m.blockOnAuth(ent, err) {
					return
				}
				continue
			}
			if !m.pause(ent, m.failed(ent, err)) {
				return
			}
			continue
		}

		ent.breaker.RecordSuccess()
		cause := m.serve(ent, conn)
		if ent.ctx.Err() != nil {
			return
		}
		if m.takeRestart(ent) {
			continue
		}
		if !m.pause(ent, m.failed(ent, cause)) {
			return
		}
	}
}

func (m *Multiplexer) dial(ent *entry) (Conn, error) {
	header := http.Header{}
	if m.tokens != nil {
		bearer, err := auth.BearerHeader(ent.ctx, m.tokens)
		if err != nil {
			if errcode.KindOf(err) == errcode.KindAuth {
				return nil, ErrUnauthorized.Wrap(err)
			}
			return nil, ErrDialFailed.Wrap(err)
		}
		header.Set("Authorization", bearer)
	}

	ent.dials.Add(1)
	ctx, cancel := context.WithTimeout(ent.ctx, m.cfg.DialTimeout)
	defer cancel()
	return m.dialer.Dial(ctx, ent.endpoint, header)
}

// takeRestart reports whether the last connection was closed by Reconnect.
func (m *Multiplexer) takeRestart(ent *entry) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r := ent.restart
	ent.restart = false
	return r
}

// failed records a connection failure and returns the backoff delay.
func (m *Multiplexer) failed(ent *entry, cause error) time.Duration {
	if cause == nil {
		cause = ErrConnectionLost
	}
	ent.breaker.RecordFailure()

	m.mu.Lock()
	ent.attempt++
	attempt := ent.attempt
	m.mu.Unlock()

	now := m.clock.Now()
	delay := m.backoff.Next(attempt)
	// an opened circuit schedules its own probe
	if retryAt := ent.breaker.Snapshot().RetryAt; !retryAt.IsZero() && retryAt.Sub(now) < delay {
		delay = retryAt.Sub(now)
	}
	m.setStatus(ent, StatusError, cause)
	m.report(ent, errcode.KindTransient, cause, now.Add(delay))
	return delay
}

// blockOnAuth parks the entry until Reconnect. Auth failures are not breaker
// failures.
func (m *Multiplexer) blockOnAuth(ent *entry, cause error) bool {
	m.mu.Lock()
	ent.authBlocked = true
	m.mu.Unlock()
	m.setStatus(ent, StatusError, cause)
	m.report(ent, errcode.KindAuth, cause, time.Time{})

	for {
		select {
		case <-ent.ctx.Done():
			return false
		case <-ent.kick:
			m.mu.Lock()
			blocked := ent.authBlocked
			m.mu.Unlock()
			if !blocked {
				return true
			}
		}
	}
}

// pause waits d, returning early on wake; false when the entry is gone.
func (m *Multiplexer) pause(ent *entry, d time.Duration) bool {
	if d <= 0 {
		return ent.ctx.Err() == nil
	}
	t := m.clock.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.Chan():
		return true
	case <-ent.kick:
		return ent.ctx.Err() == nil
	case <-ent.ctx.Done():
		return false
	}
}

// serve runs one established connection until it fails or the entry is
// removed. The returned error is nil only on removal.
func (m *Multiplexer) serve(ent *entry, conn Conn) error {
	m.mu.Lock()
	if ent.ctx.Err() != nil {
		m.mu.Unlock()
		_ = conn.Close()
		return nil
	}
	ent.conn = conn
	ent.attempt = 0
	ent.missed = 0
	ent.restart = false
	ent.lastActivity = m.clock.Now()
	channels := make([]string, 0, len(ent.channels))
	for ch := range ent.channels {
		channels = append(channels, ch)
	}
	m.mu.Unlock()
	sort.Strings(channels)
	// a wake meant for the previous wait must not cut the next backoff short
	select {
	case <-ent.kick:
	default:
	}

	m.otel.recordDial(ent.endpoint, "success")
	m.setStatus(ent, StatusConnected, nil)
	m.logger.Info("🟢 [Multiplexer] connected",
		zap.String("endpoint", ent.endpoint), zap.Int64("dials", ent.dials.Load()))
	m.sendControl(ent, conn, TypeSubscribe, channels)

	readDone := make(chan error, 1)
	go m.readLoop(ent, conn, readDone)

	ticker := m.clock.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()

	var cause error
loop:
	for {
		select {
		case <-ent.ctx.Done():
			break loop
		case err := <-readDone:
			cause = err
			readDone = nil
			break loop
		case <-ticker.Chan():
			if err := m.heartbeat(ent, conn); err != nil {
				cause = err
				break loop
			}
		}
	}

	m.mu.Lock()
	if ent.conn == conn {
		ent.conn = nil
	}
	m.mu.Unlock()
	_ = conn.Close()
	if readDone != nil {
		<-readDone
	}
	if ent.ctx.Err() != nil {
		return nil
	}
	if cause == nil {
		cause = ErrConnectionLost
	}
	m.mu.Lock()
	restart := ent.restart
	m.mu.Unlock()
	if !restart {
		m.logger.Warn("🔴 [Multiplexer] connection lost",
			zap.String("endpoint", ent.endpoint), zap.Error(cause))
	}
	return cause
}

// heartbeat fails once MaxMissedHeartbeats pings went unanswered; any inbound
// frame resets the count.
func (m *Multiplexer) heartbeat(ent *entry, conn Conn) error {
	m.mu.Lock()
	if ent.missed >= m.cfg.MaxMissedHeartbeats {
		missed := ent.missed
		m.mu.Unlock()
		return ErrHeartbeatTimeout.WithData("missed", missed)
	}
	ent.missed++
	m.mu.Unlock()

	ping := Message{Type: TypePing, Timestamp: m.clock.Now()}
	if err := m.write(ent.ctx, ent, conn, ping); err != nil {
		return ErrConnectionLost.Wrap(err)
	}
	return nil
}

func (m *Multiplexer) readLoop(ent *entry, conn Conn, done chan<- error) {
	for {
		msg, err := conn.Read()
		if err != nil {
			if errors.Is(err, ErrInvalidMessage) {
				m.logger.Warn("⚠️ [Multiplexer] dropping malformed message",
					zap.String("endpoint", ent.endpoint), zap.Error(err))
				m.report(ent, errcode.KindProtocol, err, time.Time{})
				continue
			}
			done <- err
			return
		}

		m.mu.Lock()
		ent.lastActivity = m.clock.Now()
		ent.missed = 0
		m.mu.Unlock()
		ent.in.Add(1)
		m.otel.recordMessage(ent.endpoint, "in")

		switch msg.Type {
		case TypePing:
			pong := Message{Type: TypePong, ID: msg.ID, Timestamp: m.clock.Now()}
			if err := m.write(ent.ctx, ent, conn, pong); err != nil {
				m.logger.Debug("[Multiplexer] pong failed", zap.String("endpoint", ent.endpoint), zap.Error(err))
			}
		case TypePong:
		default:
			select {
			case ent.inbox <- msg:
			case <-ent.ctx.Done():
				done <- nil
				return
			}
		}
	}
}

// deliver is the single dispatch goroutine of ent, preserving arrival order.
// Timer batch flushes come through here too.
func (m *Multiplexer) deliver(ent *entry) {
	defer m.wg.Done()
	for {
		select {
		case <-ent.ctx.Done():
			return
		case msg := <-ent.inbox:
			m.dispatch(ent, msg)
		case gen := <-ent.batch.due:
			if batch := ent.batch.flushDue(gen); len(batch) > 0 {
				m.flushBatch(ent, batch)
			}
		}
	}
}

func (m *Multiplexer) dispatch(ent *entry, msg Message) {
	m.mu.Lock()
	var direct []*subscriber
	batched := false
	for _, s := range ent.subs {
		if !s.accepts(msg.Type) {
			continue
		}
		if s.onMessage != nil {
			direct = append(direct, s)
		}
		if s.onBatch != nil {
			batched = true
		}
	}
	m.mu.Unlock()

	for _, s := range direct {
		m.safeCall(ent, s.id, func() { s.onMessage(msg) })
	}
	if !batched {
		return
	}
	if batch := ent.batch.add(msg); len(batch) > 0 {
		m.flushBatch(ent, batch)
	}
}

func (m *Multiplexer) flushBatch(ent *entry, batch []Message) {
	m.otel.recordBatch(len(batch))
	m.mu.Lock()
	var subs []*subscriber
	for _, s := range ent.subs {
		if s.onBatch != nil {
			subs = append(subs, s)
		}
	}
	m.mu.Unlock()

	for _, s := range subs {
		filtered := batch
		if len(s.types) > 0 {
			filtered = make([]Message, 0, len(batch))
			for _, msg := range batch {
				if s.accepts(msg.Type) {
					filtered = append(filtered, msg)
				}
			}
		}
		if len(filtered) == 0 {
			continue
		}
		m.safeCall(ent, s.id, func() { s.onBatch(filtered) })
	}
}

func (m *Multiplexer) safeCall(ent *entry, subscriberID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("❌ [Multiplexer] subscriber handler panicked",
				zap.String("endpoint", ent.endpoint),
				zap.String("subscriber", subscriberID),
				zap.Any("panic", r))
		}
	}()
	fn()
}

func (m *Multiplexer) write(ctx context.Context, ent *entry, conn Conn, msg Message) error {
	wctx, cancel := context.WithTimeout(ctx, m.cfg.WriteTimeout)
	defer cancel()
	if err := conn.Write(wctx, msg); err != nil {
		return err
	}
	ent.out.Add(1)
	m.otel.recordMessage(ent.endpoint, "out")
	return nil
}

// sendControl best-effort subscribe/unsubscribe frames; failures surface via
// the read loop.
func (m *Multiplexer) sendControl(ent *entry, conn Conn, typ string, channels []string) {
	if conn == nil {
		return
	}
	for _, ch := range channels {
		if err := m.write(ent.ctx, ent, conn, controlMessage(typ, ch, m.clock.Now())); err != nil {
			m.logger.Warn("⚠️ [Multiplexer] control frame failed",
				zap.String("endpoint", ent.endpoint),
				zap.String("type", typ),
				zap.String("channel", ch),
				zap.Error(err))
			return
		}
	}
}

func (m *Multiplexer) setStatus(ent *entry, to Status, cause error) {
	m.mu.Lock()
	from := ent.status
	ent.status = to
	switch {
	case cause != nil:
		ent.lastErr = cause
	case to == StatusConnected:
		ent.lastErr = nil
	}
	m.mu.Unlock()

	if from == to {
		return
	}
	m.publish(&StatusChangedEvent{
		BaseEvent: event.NewEvent(EventStatusChanged, m.clock.Now()),
		Endpoint:  ent.endpoint,
		From:      from,
		To:        to,
	})
}

func (m *Multiplexer) report(ent *entry, kind errcode.Kind, cause error, retryAt time.Time) {
	m.mu.Lock()
	attempt := ent.attempt
	m.mu.Unlock()

	fields := []zap.Field{
		zap.String("endpoint", ent.endpoint),
		zap.String("kind", string(kind)),
		zap.Int("attempt", attempt),
		zap.Error(cause),
	}
	if !retryAt.IsZero() {
		fields = append(fields, zap.Time("retry_at", retryAt))
	}
	switch kind {
	case errcode.KindAuth:
		m.logger.Error("🔒 [Multiplexer] authentication failed, waiting for Reconnect", fields...)
	case errcode.KindCircuit:
		m.logger.Debug("⛔ [Multiplexer] reconnect deferred, circuit open", fields...)
	case errcode.KindTransient:
		m.logger.Warn("⚠️ [Multiplexer] connection failed", fields...)
	}

	m.otel.recordError(ent.endpoint, kind)
	m.publish(&ConnectionError{
		BaseEvent: event.NewEvent(EventConnectionError, m.clock.Now()),
		Endpoint:  ent.endpoint,
		Kind:      kind,
		Err:       cause,
		Attempt:   attempt,
		RetryAt:   retryAt,
	})
}

func (m *Multiplexer) publish(ev event.Event) {
	if err := m.events.Dispatch(context.Background(), ev); err != nil && !errors.Is(err, event.ErrClosed) {
		m.logger.Warn("⚠️ [Multiplexer] event listener failed", zap.String("event", ev.Name()), zap.Error(err))
	}
}

func (m *Multiplexer) statusCounts() map[Status]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[Status]int, 4)
	for _, ent := range m.entries {
		out[ent.status]++
	}
	return out
}
