package recorder

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"
)

var (
	ErrEmptyApplication = errors.New("application name is required")
	ErrEmptyStream      = errors.New("stream name is required")
)

type appRecorders struct {
	recordAll bool
	params    Params
	recorders map[string]*Info
	live      map[string]bool
}

// Registry is an in-memory Manager. It keeps at most one recorder per
// application and stream name regardless of how many goroutines race to
// start it.
type Registry struct {
	mu       sync.Mutex
	apps     map[string]*appRecorders
	listener Listener
	now      func() time.Time
}

// NewRegistry creates an empty registry. listener may be nil.
func NewRegistry(listener Listener) *Registry {
	return &Registry{
		apps:     make(map[string]*appRecorders),
		listener: listener,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *Registry) app(name string) *appRecorders {
	a, ok := r.apps[name]
	if !ok {
		a = &appRecorders{
			recorders: make(map[string]*Info),
			live:      make(map[string]bool),
		}
		r.apps[name] = a
	}
	return a
}

// HasRecorder implements Manager.
func (r *Registry) HasRecorder(app, stream string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[app]
	if !ok {
		return false
	}
	_, ok = a.recorders[stream]
	return ok
}

// StartApplication implements Manager.
func (r *Registry) StartApplication(ctx context.Context, app string, params Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(app) == "" {
		return ErrEmptyApplication
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.app(app)
	a.recordAll = true
	a.params = params
	return nil
}

// RecordingAll reports whether StartApplication was called for app.
func (r *Registry) RecordingAll(app string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[app]
	return ok && a.recordAll
}

// StartStream implements Manager.
func (r *Registry) StartStream(ctx context.Context, app, stream string, params Params) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(app) == "" {
		return ErrEmptyApplication
	}
	if strings.TrimSpace(stream) == "" {
		return ErrEmptyStream
	}

	r.mu.Lock()
	a := r.app(app)
	if _, exists := a.recorders[stream]; exists {
		r.mu.Unlock()
		return nil
	}
	info := r.create(a, app, stream, params)
	r.mu.Unlock()

	r.notifyCreated(info)
	return nil
}

// create registers a recorder; the caller holds r.mu.
func (r *Registry) create(a *appRecorders, app, stream string, params Params) Info {
	now := r.now()
	info := &Info{
		Application: app,
		Stream:      stream,
		State:       StateWaiting,
		CreatedAt:   now,
		Params:      params,
	}
	if a.live[stream] {
		info.State = StateRecording
		info.StartedAt = now
	}
	a.recorders[stream] = info
	return *info
}

// StopStream implements Manager. Stopping an unknown recorder is a no-op.
func (r *Registry) StopStream(ctx context.Context, app, stream string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	a, ok := r.apps[app]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	info, ok := a.recorders[stream]
	if !ok {
		r.mu.Unlock()
		return nil
	}
	delete(a.recorders, stream)
	stopped := *info
	stopped.State = StateStopped
	r.mu.Unlock()

	if r.listener != nil {
		r.listener.OnStop(stopped)
	}
	return nil
}

// StreamPublished tells the registry a stream went live. Waiting recorders
// start writing; applications recording everything get a recorder on the spot.
func (r *Registry) StreamPublished(app, stream string) {
	r.mu.Lock()
	a := r.app(app)
	a.live[stream] = true

	info, exists := a.recorders[stream]
	switch {
	case exists && info.State != StateRecording:
		info.State = StateRecording
		info.StartedAt = r.now()
		started := *info
		r.mu.Unlock()
		if r.listener != nil {
			r.listener.OnStart(started)
		}
	case !exists && a.recordAll:
		created := r.create(a, app, stream, a.params)
		r.mu.Unlock()
		r.notifyCreated(created)
	default:
		r.mu.Unlock()
	}
}

// StreamUnpublished tells the registry a stream went away. A recorder that
// was not stopped stays allocated and waits for the next publish.
func (r *Registry) StreamUnpublished(app, stream string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.apps[app]
	if !ok {
		return
	}
	delete(a.live, stream)
	if info, ok := a.recorders[stream]; ok {
		info.State = StateWaiting
	}
}

func (r *Registry) notifyCreated(info Info) {
	if r.listener == nil {
		return
	}
	r.listener.OnCreate(info)
	if info.State == StateRecording {
		r.listener.OnStart(info)
	}
}

// Snapshot lists every recorder ordered by application and stream.
func (r *Registry) Snapshot() []Info {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Info
	for _, a := range r.apps {
		for _, info := range a.recorders {
			out = append(out, *info)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Application != out[j].Application {
			return out[i].Application < out[j].Application
		}
		return out[i].Stream < out[j].Stream
	})
	return out
}

// Count returns the number of recorders in the given state.
func (r *Registry) Count(state State) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, a := range r.apps {
		for _, info := range a.recorders {
			if info.State == state {
				n++
			}
		}
	}
	return n
}
