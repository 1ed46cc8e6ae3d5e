package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/MEKXH/autorecord/internal/audit"
	"github.com/MEKXH/autorecord/internal/bus"
	"github.com/MEKXH/autorecord/internal/config"
	"github.com/MEKXH/autorecord/internal/engine"
	"github.com/MEKXH/autorecord/internal/metrics"
	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/MEKXH/autorecord/internal/recorder"
	"github.com/MEKXH/autorecord/internal/state"
)

// ErrUnknownApplication is returned for events naming an application the
// host does not run.
var ErrUnknownApplication = errors.New("unknown application")

// Host runs every configured application against one recorder registry.
type Host struct {
	registry  *recorder.Registry
	instances map[string]*Instance
	order     []string
	state     *state.Manager
	flusher   *state.Flusher
	auditor   *audit.Writer

	mu       sync.Mutex
	previous []recorder.Info
}

// NewHost creates an instance per configured application. The recorder
// registry snapshot is persisted under cfg.State.Dir.
func NewHost(ctx context.Context, cfg *config.Config) *Host {
	h := &Host{
		instances: make(map[string]*Instance, len(cfg.Applications)),
	}
	h.registry = recorder.NewRegistry(h)
	h.state = state.NewManager(cfg.State.Dir)
	h.flusher = state.NewFlusher(
		time.Duration(cfg.State.FlushIntervalMS)*time.Millisecond,
		h.registry.Snapshot,
		h.state,
	)

	var opts []engine.Option
	if cfg.State.Audit {
		h.auditor = audit.NewWriter(cfg.State.Dir)
		opts = append(opts, engine.WithAuditor(h.auditor))
	}

	for _, appCfg := range cfg.Applications {
		inst := CreateInstance(ctx, cfg, appCfg, h.registry, opts...)
		h.instances[inst.Name()] = inst
		h.order = append(h.order, inst.Name())
	}
	return h
}

// Registry returns the shared recorder registry.
func (h *Host) Registry() *recorder.Registry {
	return h.registry
}

// Instance returns the named application.
func (h *Host) Instance(name string) (*Instance, bool) {
	inst, ok := h.instances[name]
	return inst, ok
}

// Policies returns every resolved snapshot in configuration order.
func (h *Host) Policies() []*policy.Snapshot {
	out := make([]*policy.Snapshot, 0, len(h.order))
	for _, name := range h.order {
		out = append(out, h.instances[name].Policy())
	}
	return out
}

// Policy returns the resolved snapshot of one application.
func (h *Host) Policy(name string) (*policy.Snapshot, bool) {
	inst, ok := h.instances[name]
	if !ok {
		return nil, false
	}
	return inst.Policy(), true
}

// Start bootstraps every application, writes the resulting registry and
// starts batching later writes. A failing application does not keep the
// others from starting; all failures are returned together.
func (h *Host) Start(ctx context.Context) error {
	prev, err := h.state.LoadRecorderState()
	if err != nil {
		slog.Warn("failed to load previous recorder state", "path", h.state.Path(), "error", err)
	}

	var result *multierror.Error
	for _, name := range h.order {
		if _, err := h.instances[name].Start(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("start application %s: %w", name, err))
		}
	}

	pending := h.notRearmed(prev.Recorders)
	h.mu.Lock()
	h.previous = pending
	h.mu.Unlock()
	if len(prev.Recorders) > 0 {
		slog.Info("compared recorders with previous run",
			"saved_at", prev.SavedAt,
			"previous", len(prev.Recorders),
			"awaiting_publish", len(pending),
		)
	}
	for _, info := range pending {
		slog.Info("recorder from previous run waits for the stream to publish again",
			"application", info.Application,
			"stream", info.Stream,
			"previous_state", info.State,
		)
	}

	if err := h.flusher.Flush(); err != nil {
		slog.Warn("failed to persist recorder state", "error", err)
	}
	h.flusher.Start()
	return result.ErrorOrNil()
}

// Handle routes a stream event to its application. It has the signature of
// bus.Handler.
func (h *Host) Handle(ctx context.Context, ev bus.StreamEvent) error {
	inst, ok := h.instances[ev.Application]
	if !ok {
		metrics.RecordDroppedEvent("unknown_application")
		slog.Warn("dropping event for unknown application",
			"application", ev.Application,
			"stream", ev.StreamName,
			"request_id", ev.RequestID,
		)
		return fmt.Errorf("%w: %s", ErrUnknownApplication, ev.Application)
	}
	_, err := inst.Handle(ctx, ev)
	h.flusher.MarkDirty()
	return err
}

// Close stops batching and writes any pending registry changes.
func (h *Host) Close() error {
	return h.flusher.Stop()
}

// Recorders returns the current registry contents.
func (h *Host) Recorders() []recorder.Info {
	return h.registry.Snapshot()
}

// RecordingAll reports whether app records every published stream.
func (h *Host) RecordingAll(app string) bool {
	return h.registry.RecordingAll(app)
}

// PreviousRecorders lists recorders saved by the previous run that have not
// been recreated yet. Entries drop out once their stream has a recorder.
func (h *Host) PreviousRecorders() []recorder.Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]recorder.Info, 0, len(h.previous))
	for _, info := range h.previous {
		if !h.registry.HasRecorder(info.Application, info.Stream) {
			out = append(out, info)
		}
	}
	return out
}

func (h *Host) notRearmed(saved []recorder.Info) []recorder.Info {
	var pending []recorder.Info
	for _, info := range saved {
		if _, ok := h.instances[info.Application]; !ok {
			slog.Debug("ignoring saved recorder for application no longer configured",
				"application", info.Application, "stream", info.Stream)
			continue
		}
		if h.registry.HasRecorder(info.Application, info.Stream) {
			continue
		}
		pending = append(pending, info)
	}
	return pending
}

func (h *Host) refreshGauges() {
	for _, st := range []recorder.State{recorder.StateWaiting, recorder.StateRecording} {
		metrics.SetRecorders(string(st), h.registry.Count(st))
	}
}

// OnCreate implements recorder.Listener.
func (h *Host) OnCreate(info recorder.Info) {
	slog.Info("recorder created", "application", info.Application, "stream", info.Stream, "state", info.State)
	h.recorderChanged(audit.TypeRecorderCreate, info)
}

// OnStart implements recorder.Listener.
func (h *Host) OnStart(info recorder.Info) {
	slog.Info("recorder started", "application", info.Application, "stream", info.Stream, "format", info.Params.FileFormat)
	h.recorderChanged(audit.TypeRecorderStart, info)
}

// OnStop implements recorder.Listener.
func (h *Host) OnStop(info recorder.Info) {
	slog.Info("recorder stopped", "application", info.Application, "stream", info.Stream)
	h.recorderChanged(audit.TypeRecorderStop, info)
}

func (h *Host) recorderChanged(kind string, info recorder.Info) {
	h.refreshGauges()
	if h.auditor == nil {
		return
	}
	if err := h.auditor.Append(audit.NewRecorderEvent(kind, info)); err != nil {
		slog.Warn("failed to write audit event", "error", err)
	}
}
