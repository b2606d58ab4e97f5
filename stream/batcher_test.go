package stream

import (
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatcher_FlushOnSize(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBatcher(clock, 2, time.Second)

	assert.Nil(t, b.add(Message{ID: "1"}))
	batch := b.add(Message{ID: "2"})
	assert.Nil(t, b.add(Message{ID: "3"}))

	require.Len(t, batch, 2)
	assert.Equal(t, "2", batch[1].ID)
	assert.Equal(t, 1, b.pending())
}

func TestBatcher_FlushOnInterval(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBatcher(clock, 10, time.Second)

	b.add(Message{ID: "1"})
	clock.Advance(500 * time.Millisecond)
	b.add(Message{ID: "2"})
	assert.Empty(t, b.due)

	// the interval runs from the first message of the batch
	clock.Advance(500 * time.Millisecond)
	select {
	case gen := <-b.due:
		assert.Len(t, b.flushDue(gen), 2)
		assert.Zero(t, b.pending())
	case <-time.After(time.Second):
		t.Fatal("timer did not post the batch")
	}
}

func TestBatcher_StaleTimerIgnored(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBatcher(clock, 2, time.Second)

	b.add(Message{ID: "1"})
	gen := b.gen
	assert.Len(t, b.add(Message{ID: "2"}), 2)

	// generation of the already-flushed batch
	b.add(Message{ID: "3"})
	assert.Nil(t, b.flushDue(gen))
	assert.Equal(t, 1, b.pending())
	assert.Len(t, b.flushDue(b.gen), 1)
}

func TestBatcher_StopDropsPending(t *testing.T) {
	clock := clockwork.NewFakeClock()
	b := newBatcher(clock, 10, time.Second)

	b.add(Message{ID: "1"})
	gen := b.gen
	b.stop()
	b.stop()
	clock.Advance(time.Second)

	assert.Nil(t, b.add(Message{ID: "2"}))
	assert.Nil(t, b.flushDue(gen))
	assert.Zero(t, b.pending())
	assert.Never(t, func() bool { return len(b.due) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
}

func TestBatcher_ExpireAfterStopDoesNotBlock(t *testing.T) {
	b := newBatcher(clockwork.NewFakeClock(), 10, time.Second)
	b.add(Message{ID: "1"})
	// occupy the slot so a second post would have to wait
	b.due <- b.gen

	done := make(chan struct{})
	go func() {
		b.expire(b.gen)
		close(done)
	}()
	b.stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expire blocked after stop")
	}
}
