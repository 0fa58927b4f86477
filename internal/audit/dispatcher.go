package audit

import (
	"context"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

const redactedValue = "[redacted]"

// Metadata keys containing any of these fragments never reach a sink.
var sensitiveKeyFragments = []string{"pin", "password", "secret", "token", "code"}

// Config controls queueing and shutdown.
type Config struct {
	Enabled    bool
	BufferSize int
	// DropIfFull discards events when the queue is full instead of blocking
	// the request that produced them.
	DropIfFull bool
	// DrainTimeout bounds how long Close keeps delivering queued events.
	// Events still queued afterwards count as dropped. Zero waits for all.
	DrainTimeout time.Duration
	// OnDrop is called for every discarded event with its type and the
	// running drop total.
	OnDrop func(eventType string, total uint64)
}

// Dispatcher relays identity audit events to a Sink on one background
// worker. A nil *Dispatcher accepts and discards everything.
type Dispatcher struct {
	sink         Sink
	queue        chan Event
	quit         chan struct{}
	stopped      chan struct{}
	dropIfFull   bool
	drainTimeout time.Duration
	onDrop       func(string, uint64)

	closing    atomic.Bool
	stopOnce   sync.Once
	dropped    atomic.Uint64
	sinkPanics atomic.Uint64

	mu     sync.Mutex
	byType map[string]uint64
}

// NewDispatcher starts the delivery worker. It returns nil when cfg is not
// enabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:         sink,
		queue:        make(chan Event, cfg.BufferSize),
		quit:         make(chan struct{}),
		stopped:      make(chan struct{}),
		dropIfFull:   cfg.DropIfFull,
		drainTimeout: cfg.DrainTimeout,
		onDrop:       cfg.OnDrop,
		byType:       make(map[string]uint64),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.stopped)
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		case <-d.quit:
			d.drain()
			return
		}
	}
}

// drain empties the queue after Close, giving up at the drain deadline.
func (d *Dispatcher) drain() {
	var deadline <-chan time.Time
	if d.drainTimeout > 0 {
		timer := time.NewTimer(d.drainTimeout)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		select {
		case <-deadline:
			d.discardQueued()
			return
		default:
		}
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

func (d *Dispatcher) discardQueued() {
	for {
		select {
		case ev := <-d.queue:
			d.recordDrop(ev.EventType)
		default:
			return
		}
	}
}

// deliver hands one event to the sink. A panicking sink loses that event
// but not the worker.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if r := recover(); r != nil {
			d.sinkPanics.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
}

// Emit queues event for delivery with sensitive metadata values redacted.
// In blocking mode it waits for queue space until ctx is done; an event
// abandoned that way counts as dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil || d.closing.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	event.Metadata = redact(event.Metadata)

	if d.dropIfFull {
		select {
		case d.queue <- event:
		case <-d.quit:
		default:
			d.recordDrop(event.EventType)
		}
		return
	}

	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.recordDrop(event.EventType)
	case <-d.quit:
	}
}

func (d *Dispatcher) recordDrop(eventType string) {
	total := d.dropped.Add(1)
	d.mu.Lock()
	d.byType[eventType]++
	d.mu.Unlock()
	if d.onDrop != nil {
		d.onDrop(eventType, total)
	}
}

// Close stops accepting events, drains the queue and waits for the worker.
// With a DrainTimeout it returns no later than that bound even if the sink
// is stuck. Close is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.closing.Store(true)
		close(d.quit)
	})
	if d.drainTimeout <= 0 {
		<-d.stopped
		return
	}
	timer := time.NewTimer(d.drainTimeout)
	defer timer.Stop()
	select {
	case <-d.stopped:
	case <-timer.C:
	}
}

// Dropped is the number of events discarded because the queue was full,
// the caller gave up, or the drain deadline passed.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// DroppedByType breaks Dropped down by event type.
func (d *Dispatcher) DroppedByType() map[string]uint64 {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.byType)
}

// SinkPanics counts events lost to a panicking sink.
func (d *Dispatcher) SinkPanics() uint64 {
	if d == nil {
		return 0
	}
	return d.sinkPanics.Load()
}

func redact(meta map[string]string) map[string]string {
	var out map[string]string
	for k := range meta {
		if !isSensitiveKey(k) {
			continue
		}
		if out == nil {
			out = maps.Clone(meta)
		}
		out[k] = redactedValue
	}
	if out == nil {
		return meta
	}
	return out
}

func isSensitiveKey(key string) bool {
	key = strings.ToLower(key)
	for _, fragment := range sensitiveKeyFragments {
		if strings.Contains(key, fragment) {
			return true
		}
	}
	return false
}
