package stream

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// batcher accumulates inbound messages until size or interval, whichever
// comes first. It never calls handlers itself: add hands back a full batch,
// and an expired timer posts its generation on due for the delivery
// goroutine to collect with flushDue. Batches therefore leave in flush order
// and handlers run without b.mu held.
type batcher struct {
	mu       sync.Mutex
	clock    clockwork.Clock
	size     int
	interval time.Duration
	due      chan uint64
	done     chan struct{}

	items  []Message
	timer  clockwork.Timer
	gen    uint64
	closed bool
}

func newBatcher(clock clockwork.Clock, size int, interval time.Duration) *batcher {
	return &batcher{
		clock:    clock,
		size:     size,
		interval: interval,
		due:      make(chan uint64, 1),
		done:     make(chan struct{}),
	}
}

// add queues m and returns the batch it completed, if any.
func (b *batcher) add(m Message) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.items = append(b.items, m)
	if len(b.items) >= b.size {
		return b.takeLocked()
	}
	if b.timer == nil {
		gen := b.gen
		b.timer = b.clock.AfterFunc(b.interval, func() { b.expire(gen) })
	}
	return nil
}

// expire runs on the timer goroutine
func (b *batcher) expire(gen uint64) {
	b.mu.Lock()
	live := !b.closed && gen == b.gen
	b.mu.Unlock()
	if !live {
		return
	}
	select {
	case b.due <- gen:
	case <-b.done:
	}
}

// flushDue returns the pending batch if gen still names it. A size flush
// between the timer firing and this call makes gen stale.
func (b *batcher) flushDue(gen uint64) []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || gen != b.gen {
		return nil
	}
	return b.takeLocked()
}

func (b *batcher) takeLocked() []Message {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	if len(b.items) == 0 {
		return nil
	}
	batch := b.items
	b.items = nil
	return batch
}

func (b *batcher) pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// stop drops pending messages. Safe to call from a batch handler.
func (b *batcher) stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.items = nil
	close(b.done)
}
