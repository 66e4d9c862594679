package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collector gathers events safely across the delivery goroutine.
type collector struct {
	mu     sync.Mutex
	events []Event
}

func (c *collector) handle(evt Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
}

func (c *collector) snapshot() []Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Event, len(c.events))
	copy(out, c.events)
	return out
}

func (c *collector) waitFor(t *testing.T, n int) []Event {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if evts := c.snapshot(); len(evts) >= n {
			return evts
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d events, got %d", n, len(c.snapshot()))
	return nil
}

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(DefaultBusConfig)
	defer bus.Close()

	var c collector
	sub := bus.SubscribeAll(c.handle)
	require.NotNil(t, sub)

	evt := New(TypeNodeChunk, "run-1").WithNode("3", "Modèle LLM").WithContent("hello")
	require.NoError(t, bus.Publish(context.Background(), evt))

	got := c.waitFor(t, 1)
	assert.Equal(t, TypeNodeChunk, got[0].Kind)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, "3", got[0].NodeID)
	assert.Equal(t, "hello", got[0].Content)
	assert.NotEmpty(t, got[0].ID)
}

func TestBus_TypeFilter(t *testing.T) {
	bus := NewBus(DefaultBusConfig)
	defer bus.Close()

	var c collector
	bus.Subscribe([]Type{TypeRunFinished}, c.handle)

	require.NoError(t, bus.Publish(context.Background(), New(TypeNodeChunk, "run-1")))
	require.NoError(t, bus.Publish(context.Background(), New(TypeRunFinished, "run-1")))

	got := c.waitFor(t, 1)
	assert.Equal(t, TypeRunFinished, got[0].Kind)
	assert.Len(t, got, 1)
}

func TestBus_ChunkOrderPreserved(t *testing.T) {
	bus := NewBus(DefaultBusConfig)
	defer bus.Close()

	var c collector
	bus.Subscribe([]Type{TypeNodeChunk}, c.handle)

	for _, content := range []string{"a", "b", "c", "d"} {
		require.NoError(t, bus.Publish(context.Background(), New(TypeNodeChunk, "run-1").WithContent(content)))
	}

	got := c.waitFor(t, 4)
	var contents []string
	for _, evt := range got {
		contents = append(contents, evt.Content)
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, contents)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(DefaultBusConfig)
	defer bus.Close()

	var c collector
	sub := bus.SubscribeAll(c.handle)
	sub.Unsubscribe()
	sub.Unsubscribe() // idempotent

	require.NoError(t, bus.Publish(context.Background(), New(TypeNodeChunk, "run-1")))
	time.Sleep(20 * time.Millisecond)
	assert.Empty(t, c.snapshot())
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(DefaultBusConfig)
	require.NoError(t, bus.Close())
	require.NoError(t, bus.Close()) // idempotent

	err := bus.Publish(context.Background(), New(TypeNodeChunk, "run-1"))
	assert.ErrorIs(t, err, ErrBusClosed)
	assert.Nil(t, bus.SubscribeAll(func(Event) {}))
}

func TestBus_NonBlockingDrops(t *testing.T) {
	var dropped []string
	var mu sync.Mutex

	bus := NewBus(BusConfig{
		BufferSize:  1,
		NonBlocking: true,
		OnDrop: func(evt Event, subscriberID string) {
			mu.Lock()
			defer mu.Unlock()
			dropped = append(dropped, evt.Content)
		},
	})
	defer bus.Close()

	block := make(chan struct{})
	bus.SubscribeAll(func(Event) { <-block })

	// First event occupies the handler, second fills the buffer, third drops.
	for _, content := range []string{"1", "2", "3"} {
		require.NoError(t, bus.Publish(context.Background(), New(TypeNodeChunk, "r").WithContent(content)))
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		mu.Lock()
		n := len(dropped)
		mu.Unlock()
		if n > 0 || time.Now().After(deadline) {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(block)

	mu.Lock()
	defer mu.Unlock()
	assert.NotEmpty(t, dropped)
}
