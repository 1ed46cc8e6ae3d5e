package state

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/MEKXH/autorecord/internal/recorder"
)

const defaultFlushInterval = time.Second

// SnapshotFunc returns the recorders to persist.
type SnapshotFunc func() []recorder.Info

// Flusher batches recorder state writes. Callers mark the state dirty after
// each change; a background loop writes at most once per interval.
type Flusher struct {
	interval time.Duration
	snapshot SnapshotFunc
	state    *Manager
	dirty    atomic.Bool

	mu      sync.Mutex
	stopCh  chan struct{}
	stopped chan struct{}
	running bool
}

// NewFlusher creates a flusher writing snapshot() through mgr.
func NewFlusher(interval time.Duration, snapshot SnapshotFunc, mgr *Manager) *Flusher {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Flusher{
		interval: interval,
		snapshot: snapshot,
		state:    mgr,
	}
}

// MarkDirty schedules a write on the next tick.
func (f *Flusher) MarkDirty() {
	f.dirty.Store(true)
}

// Dirty reports whether unwritten changes are pending.
func (f *Flusher) Dirty() bool {
	return f.dirty.Load()
}

// IsRunning returns true when the flush loop is active.
func (f *Flusher) IsRunning() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.running
}

// Start launches the periodic flush loop.
func (f *Flusher) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.running {
		return
	}
	f.stopCh = make(chan struct{})
	f.stopped = make(chan struct{})
	f.running = true

	go f.loop(f.stopCh, f.stopped)
	slog.Debug("recorder state flusher started", "interval", f.interval.String(), "path", f.state.Path())
}

// Stop halts the loop and writes any pending changes.
func (f *Flusher) Stop() error {
	f.mu.Lock()
	if f.running {
		stopCh := f.stopCh
		stopped := f.stopped
		f.running = false
		f.stopCh = nil
		f.stopped = nil
		f.mu.Unlock()

		close(stopCh)
		<-stopped
	} else {
		f.mu.Unlock()
	}

	if !f.dirty.Load() {
		return nil
	}
	return f.Flush()
}

func (f *Flusher) loop(stopCh <-chan struct{}, stopped chan<- struct{}) {
	defer close(stopped)

	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !f.dirty.Load() {
				continue
			}
			if err := f.Flush(); err != nil {
				slog.Warn("failed to persist recorder state", "path", f.state.Path(), "error", err)
			}
		}
	}
}

// Flush writes the current snapshot immediately.
func (f *Flusher) Flush() error {
	f.dirty.Store(false)
	if err := f.state.SaveRecorderState(f.snapshot()); err != nil {
		f.dirty.Store(true)
		return err
	}
	return nil
}
