package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/KOMKZ/opsfeed/logger"
	"github.com/KOMKZ/opsfeed/stream"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// TypeVehicleStatus message type carrying one VehicleStatus or a list of them
const TypeVehicleStatus = "vehicle.status"

// VehicleStatus last reported state of one vehicle
type VehicleStatus struct {
	VehicleID string    `json:"vehicleId"`
	Status    string    `json:"status"`
	Latitude  float64   `json:"lat"`
	Longitude float64   `json:"lng"`
	Speed     float64   `json:"speed,omitempty"`
	RouteID   string    `json:"routeId,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// FleetStatusFeed keeps the latest status per vehicle from the fleet channel.
type FleetStatusFeed struct {
	mux      *stream.Multiplexer
	endpoint string
	channel  string
	clock    clockwork.Clock
	logger   *logger.CtxZapLogger

	mu          sync.Mutex
	handle      *stream.Handle
	vehicles    map[string]VehicleStatus
	lastUpdated time.Time
	closed      bool
	nextWatch   uint64
	watchers    map[uint64]func(Result[map[string]VehicleStatus])
}

// FeedOption configures a FleetStatusFeed
type FeedOption func(*FleetStatusFeed)

func WithFeedClock(c clockwork.Clock) FeedOption {
	return func(f *FleetStatusFeed) {
		if c != nil {
			f.clock = c
		}
	}
}

func WithFeedLogger(l *logger.CtxZapLogger) FeedOption {
	return func(f *FleetStatusFeed) {
		if l != nil {
			f.logger = l
		}
	}
}

func NewFleetStatusFeed(mux *stream.Multiplexer, cfg Config, opts ...FeedOption) *FleetStatusFeed {
	cfg.ApplyDefaults()
	f := &FleetStatusFeed{
		mux:      mux,
		endpoint: cfg.FleetEndpoint,
		channel:  cfg.FleetChannel,
		clock:    clockwork.NewRealClock(),
		logger:   logger.GetLogger("adapters"),
		vehicles: make(map[string]VehicleStatus),
		watchers: make(map[uint64]func(Result[map[string]VehicleStatus])),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Start joins the fleet channel on the shared connection. Calling it again
// while started is a no-op.
func (f *FleetStatusFeed) Start(ctx context.Context) error {
	if f.endpoint == "" {
		return ErrNoEndpoint
	}
	f.mu.Lock()
	closed, started := f.closed, f.handle != nil
	f.mu.Unlock()
	if closed {
		return ErrFeedClosed
	}
	if started {
		return nil
	}

	h, err := f.mux.Acquire(ctx, f.endpoint, "fleet-status-"+uuid.NewString(),
		stream.WithChannels(f.channel),
		stream.WithTypes(TypeVehicleStatus),
		stream.OnBatch(f.apply))
	if err != nil {
		return err
	}

	f.mu.Lock()
	if f.closed || f.handle != nil {
		closed = f.closed
		f.mu.Unlock()
		h.Release()
		if closed {
			return ErrFeedClosed
		}
		return nil
	}
	f.handle = h
	f.mu.Unlock()

	f.logger.Debug("[Adapters] fleet feed started", zap.String("endpoint", f.endpoint), zap.String("channel", f.channel))
	return nil
}

func (f *FleetStatusFeed) apply(batch []stream.Message) {
	var changed bool
	f.mu.Lock()
	for _, m := range batch {
		for _, st := range decodeStatuses(m) {
			if st.VehicleID == "" {
				continue
			}
			if st.UpdatedAt.IsZero() {
				st.UpdatedAt = m.Timestamp
			}
			if prev, ok := f.vehicles[st.VehicleID]; ok && st.UpdatedAt.Before(prev.UpdatedAt) {
				continue
			}
			f.vehicles[st.VehicleID] = st
			changed = true
		}
	}
	if !changed {
		f.mu.Unlock()
		return
	}
	f.lastUpdated = f.clock.Now()
	fns := make([]func(Result[map[string]VehicleStatus]), 0, len(f.watchers))
	for _, fn := range f.watchers {
		fns = append(fns, fn)
	}
	f.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	r := f.Result()
	for _, fn := range fns {
		fn(r)
	}
}

func decodeStatuses(m stream.Message) []VehicleStatus {
	payload := bytes.TrimSpace(m.Payload)
	if len(payload) == 0 {
		return nil
	}
	if payload[0] == '[' {
		var list []VehicleStatus
		if err := json.Unmarshal(payload, &list); err != nil {
			return nil
		}
		return list
	}
	var st VehicleStatus
	if err := m.Decode(&st); err != nil {
		return nil
	}
	return []VehicleStatus{st}
}

// Result copy of the latest statuses. IsLoading is set while the connection
// is being established and IsStale whenever it is not connected.
func (f *FleetStatusFeed) Result() Result[map[string]VehicleStatus] {
	f.mu.Lock()
	data := make(map[string]VehicleStatus, len(f.vehicles))
	for k, v := range f.vehicles {
		data[k] = v
	}
	r := Result[map[string]VehicleStatus]{
		Data:        data,
		LastUpdated: f.lastUpdated,
		refresh:     f.Refresh,
	}
	started := f.handle != nil
	f.mu.Unlock()

	if !started {
		r.IsStale = true
		return r
	}
	status, _ := f.mux.Status(f.endpoint)
	r.IsLoading = status == stream.StatusConnecting
	r.IsStale = status != stream.StatusConnected
	if status != stream.StatusConnected {
		r.Err = f.mux.LastError(f.endpoint)
	}
	return r
}

// Vehicle latest status of one vehicle.
func (f *FleetStatusFeed) Vehicle(id string) (VehicleStatus, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, ok := f.vehicles[id]
	return st, ok
}

// Refresh forces a reconnect; the server replays current state on join.
func (f *FleetStatusFeed) Refresh(ctx context.Context) error {
	f.mu.Lock()
	started := f.handle != nil
	f.mu.Unlock()
	if !started {
		return f.Start(ctx)
	}
	return f.mux.Reconnect(f.endpoint)
}

// Watch calls fn after every batch that changed a status. fn runs on the
// delivery goroutine and must not block.
func (f *FleetStatusFeed) Watch(fn func(Result[map[string]VehicleStatus])) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextWatch++
	id := f.nextWatch
	f.watchers[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.watchers, id)
	}
}

// Close releases the connection share. The feed cannot be restarted.
func (f *FleetStatusFeed) Close() {
	f.mu.Lock()
	h := f.handle
	f.handle = nil
	f.closed = true
	f.mu.Unlock()
	if h != nil {
		h.Release()
	}
}
