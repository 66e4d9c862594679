package event

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"
)

// Handler consumes events delivered by a Bus subscription.
type Handler func(Event)

// Bus provides pub/sub distribution of run progress events.
type Bus interface {
	// Publish sends an event to all matching subscribers.
	// Blocks if a subscriber's buffer is full, unless the bus is
	// configured non-blocking.
	Publish(ctx context.Context, evt Event) error

	// Subscribe creates a subscription for specific event types.
	Subscribe(types []Type, handler Handler) Subscription

	// SubscribeAll subscribes to all events.
	SubscribeAll(handler Handler) Subscription

	// Close shuts down the bus and all subscriptions.
	Close() error
}

// Subscription represents an active subscription.
type Subscription interface {
	// Unsubscribe removes the subscription.
	Unsubscribe()
}

// BusConfig configures bus behavior.
type BusConfig struct {
	// BufferSize is the channel buffer size per subscription.
	// Default: 256
	BufferSize int

	// NonBlocking makes Publish drop events when a buffer is full instead
	// of waiting. Suited to UIs that prefer losing a chunk over stalling
	// the run.
	NonBlocking bool

	// OnDrop is called when an event is dropped (non-blocking mode).
	OnDrop func(evt Event, subscriberID string)
}

// DefaultBusConfig provides reasonable defaults.
var DefaultBusConfig = BusConfig{
	BufferSize: 256,
}

// LocalBus is an in-memory Bus implementation.
type LocalBus struct {
	config BusConfig

	mu            sync.RWMutex
	subscriptions map[string]*subscription

	nextID  atomic.Int64
	closed  atomic.Bool
	closeCh chan struct{}
}

// NewBus creates a new local event bus.
func NewBus(config BusConfig) *LocalBus {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBusConfig.BufferSize
	}
	return &LocalBus{
		config:        config,
		subscriptions: make(map[string]*subscription),
		closeCh:       make(chan struct{}),
	}
}

// subscription is an internal subscription implementation.
type subscription struct {
	id      string
	types   map[Type]bool // nil = all types
	handler Handler
	events  chan Event
	done    chan struct{}
	bus     *LocalBus
}

// Publish sends an event to all matching subscribers.
func (b *LocalBus) Publish(ctx context.Context, evt Event) error {
	if b.closed.Load() {
		return ErrBusClosed
	}

	b.mu.RLock()
	subs := make([]*subscription, 0, len(b.subscriptions))
	for _, sub := range b.subscriptions {
		if sub.types == nil || sub.types[evt.Kind] {
			subs = append(subs, sub)
		}
	}
	b.mu.RUnlock()

	for _, sub := range subs {
		if b.config.NonBlocking {
			select {
			case sub.events <- evt:
			default:
				if b.config.OnDrop != nil {
					b.config.OnDrop(evt, sub.id)
				}
			}
			continue
		}

		select {
		case sub.events <- evt:
		case <-ctx.Done():
			return ctx.Err()
		case <-b.closeCh:
			return ErrBusClosed
		}
	}

	return nil
}

// Subscribe creates a subscription for specific event types.
func (b *LocalBus) Subscribe(types []Type, handler Handler) Subscription {
	var set map[Type]bool
	if len(types) > 0 {
		set = make(map[Type]bool, len(types))
		for _, t := range types {
			set[t] = true
		}
	}
	return b.subscribe(set, handler)
}

// SubscribeAll subscribes to all events.
func (b *LocalBus) SubscribeAll(handler Handler) Subscription {
	return b.subscribe(nil, handler)
}

func (b *LocalBus) subscribe(types map[Type]bool, handler Handler) *subscription {
	if b.closed.Load() {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscription{
		id:      strconv.FormatInt(b.nextID.Add(1), 10),
		types:   types,
		handler: handler,
		events:  make(chan Event, b.config.BufferSize),
		done:    make(chan struct{}),
		bus:     b,
	}
	b.subscriptions[sub.id] = sub

	go sub.process()
	return sub
}

// Close shuts down the bus.
func (b *LocalBus) Close() error {
	if !b.closed.CompareAndSwap(false, true) {
		return nil // Already closed
	}

	close(b.closeCh)

	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subscriptions {
		close(sub.done)
		delete(b.subscriptions, id)
	}
	return nil
}

// process delivers events to the handler until the subscription ends.
func (s *subscription) process() {
	for {
		select {
		case evt := <-s.events:
			s.handler(evt)
		case <-s.done:
			// Drain anything already buffered so late chunks are not lost.
			for {
				select {
				case evt := <-s.events:
					s.handler(evt)
				default:
					return
				}
			}
		}
	}
}

// Unsubscribe removes the subscription.
func (s *subscription) Unsubscribe() {
	s.bus.mu.Lock()
	defer s.bus.mu.Unlock()

	if _, ok := s.bus.subscriptions[s.id]; !ok {
		return
	}
	delete(s.bus.subscriptions, s.id)
	close(s.done)
}
