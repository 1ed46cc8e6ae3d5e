package bus

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// ErrDispatcherClosed is returned by Publish after Close.
var ErrDispatcherClosed = errors.New("dispatcher closed")

// Handler processes one stream event.
type Handler func(ctx context.Context, ev StreamEvent) error

// Dispatcher fans stream events out to a fixed set of workers. Events of the
// same stream always land on the same worker, so they are handled in the
// order they were published; different streams proceed concurrently.
type Dispatcher struct {
	queues  []chan StreamEvent
	handler Handler

	// sendMu is held shared by in-flight sends and exclusively by Close, so
	// workers only start draining once no send can still land in a queue.
	sendMu    sync.RWMutex
	closing   chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

// NewDispatcher creates a dispatcher with the given worker count and
// per-worker queue size. Non-positive values default to 1 worker and a
// queue of 16.
func NewDispatcher(workers, queueSize int, handler Handler) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if queueSize <= 0 {
		queueSize = 16
	}
	queues := make([]chan StreamEvent, workers)
	for i := range queues {
		queues[i] = make(chan StreamEvent, queueSize)
	}
	return &Dispatcher{
		queues:  queues,
		handler: handler,
		closing: make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Workers returns the number of workers.
func (d *Dispatcher) Workers() int {
	return len(d.queues)
}

func (d *Dispatcher) shard(ev StreamEvent) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(ev.Key()))
	return int(h.Sum32() % uint32(len(d.queues)))
}

// Publish queues an event, blocking while the worker's queue is full. An
// event accepted with a nil error is always handled, even if Close runs
// concurrently.
func (d *Dispatcher) Publish(ctx context.Context, ev StreamEvent) error {
	if ev.RequestID == "" {
		ev.RequestID = NewRequestID()
	}

	d.sendMu.RLock()
	defer d.sendMu.RUnlock()

	select {
	case <-d.closing:
		return ErrDispatcherClosed
	default:
	}
	select {
	case d.queues[d.shard(ev)] <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-d.closing:
		return ErrDispatcherClosed
	}
}

// Run starts the workers and blocks until ctx is cancelled or Close is
// called. Events still queued at Close are handled before Run returns.
// Handler errors are logged and do not stop the worker.
func (d *Dispatcher) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i, q := range d.queues {
		g.Go(func() error {
			d.work(ctx, i, q)
			return nil
		})
	}
	return g.Wait()
}

func (d *Dispatcher) work(ctx context.Context, worker int, q <-chan StreamEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-q:
			d.handle(ctx, worker, ev)
		case <-d.closed:
			for {
				select {
				case ev := <-q:
					d.handle(ctx, worker, ev)
				default:
					return
				}
			}
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, worker int, ev StreamEvent) {
	if d.handler == nil {
		return
	}
	if err := d.handler(WithRequestID(ctx, ev.RequestID), ev); err != nil {
		slog.Error("stream event handler failed",
			"worker", worker,
			"request_id", ev.RequestID,
			"application", ev.Application,
			"stream", ev.StreamName,
			"phase", ev.Phase,
			"error", err,
		)
	}
}

// Close stops accepting events and lets Run drain and return.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.closing)
		d.sendMu.Lock()
		close(d.closed)
		d.sendMu.Unlock()
	})
}
