package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

const defaultDeliveryTimeout = 5 * time.Second

// Config controls buffering and delivery. With DropIfFull, Emit never
// blocks; otherwise it waits for buffer space or the caller's context.
type Config struct {
	Enabled         bool
	BufferSize      int
	DropIfFull      bool
	DeliveryTimeout time.Duration
}

// Stats counts what happened to emitted events.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Panicked  uint64
}

// Dispatcher hands events to a sink on one background goroutine, so sink
// latency never reaches the request path.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool
	timeout    time.Duration

	queue   chan Event
	stop    chan struct{}
	stopped chan struct{}
	once    sync.Once
	closing atomic.Bool

	delivered atomic.Uint64
	dropped   atomic.Uint64
	panicked  atomic.Uint64
}

// NewDispatcher returns nil when auditing is disabled; every method is
// safe on a nil Dispatcher.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if cfg.DeliveryTimeout <= 0 {
		cfg.DeliveryTimeout = defaultDeliveryTimeout
	}
	if sink == nil {
		sink = NoOpSink{}
	}

	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		timeout:    cfg.DeliveryTimeout,
		queue:      make(chan Event, cfg.BufferSize),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
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
		case <-d.stop:
			d.drain()
			return
		}
	}
}

// drain flushes whatever is buffered at Close time.
func (d *Dispatcher) drain() {
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ev)
		default:
			return
		}
	}
}

// deliver isolates the loop from a panicking or hanging sink.
func (d *Dispatcher) deliver(ev Event) {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()
	defer func() {
		if recover() != nil {
			d.panicked.Add(1)
		}
	}()
	d.sink.Emit(ctx, ev)
	d.delivered.Add(1)
}

// Emit queues ev. Events emitted after Close are discarded.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil || d.closing.Load() {
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- ev:
		case <-d.stop:
		default:
			d.dropped.Add(1)
		}
		return
	}

	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case d.queue <- ev:
	case <-ctx.Done():
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events, delivers the buffer, and waits for the
// background goroutine. It is idempotent.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.once.Do(func() {
		d.closing.Store(true)
		close(d.stop)
		<-d.stopped
	})
}

func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Panicked:  d.panicked.Load(),
	}
}
