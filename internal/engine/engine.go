package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MEKXH/autorecord/internal/audit"
	"github.com/MEKXH/autorecord/internal/bus"
	"github.com/MEKXH/autorecord/internal/metrics"
	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/MEKXH/autorecord/internal/recorder"
)

// Action is what the engine asked the recording subsystem to do.
type Action string

const (
	ActionStartApplication Action = "start_application"
	ActionStart            Action = "start"
	ActionStop             Action = "stop"
	ActionNone             Action = "none"
)

// Outcome describes one engine decision.
type Outcome struct {
	Stream string
	Action Action
	Reason string
}

// Auditor records decisions. *audit.Writer satisfies it.
type Auditor interface {
	Append(event audit.Event) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithAuditor records every decision through a.
func WithAuditor(a Auditor) Option {
	return func(e *Engine) {
		e.auditor = a
	}
}

// Engine turns stream lifecycle events into recorder start and stop requests
// for one application. It holds no mutable state: the snapshot is read-only
// and the recorder manager owns the registry, so an Engine may be called from
// any number of goroutines.
type Engine struct {
	snap      *policy.Snapshot
	evaluator policy.Evaluator
	recorders recorder.Manager
	logger    *slog.Logger
	auditor   Auditor
}

// New builds an engine for the application described by snap.
func New(snap *policy.Snapshot, recorders recorder.Manager, opts ...Option) *Engine {
	if snap == nil {
		snap = &policy.Snapshot{Mode: policy.ModeNone}
	}
	e := &Engine{
		snap:      snap,
		evaluator: policy.NewEvaluator(snap),
		recorders: recorders,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("application", snap.Application)
	return e
}

// Snapshot returns the policy the engine decides with.
func (e *Engine) Snapshot() *policy.Snapshot {
	return e.snap
}

// Start runs the application start bootstrap. In mode all it asks the
// recording subsystem to record the whole application once; with named
// start enabled in allow mode it arms one recorder per literal stream name.
// Any other configuration waits for publish events.
func (e *Engine) Start(ctx context.Context) ([]Outcome, error) {
	app := e.snap.Application

	switch {
	case e.snap.Mode == policy.ModeAll:
		err := e.recorders.StartApplication(ctx, app, e.snap.RecorderParams)
		metrics.RecordRecorderOp("start_application", err)
		out := Outcome{Action: ActionStartApplication, Reason: "recording all streams"}
		e.observe(ctx, audit.TypeAppStart, bus.StreamEvent{Application: app}, out, err)
		if err != nil {
			return nil, fmt.Errorf("start recording application %s: %w", app, err)
		}
		e.logger.Info("recording all streams")
		return []Outcome{out}, nil

	case e.snap.Mode == policy.ModeAllow && e.snap.StartNamedOnAppStart:
		var outcomes []Outcome
		for _, p := range e.snap.Names.Patterns {
			if p.Kind != policy.KindLiteral {
				e.logger.Info("skipping non-literal stream name at start", "pattern", p.Raw, "kind", p.Kind)
				continue
			}
			err := e.recorders.StartStream(ctx, app, p.Raw, e.snap.RecorderParams)
			metrics.RecordRecorderOp("start_stream", err)
			out := Outcome{Stream: p.Raw, Action: ActionStart, Reason: "named stream armed at start"}
			e.observe(ctx, audit.TypeAppStart, bus.StreamEvent{Application: app, StreamName: p.Raw}, out, err)
			if err != nil {
				return outcomes, fmt.Errorf("start recorder for %s/%s: %w", app, p.Raw, err)
			}
			outcomes = append(outcomes, out)
		}
		e.logger.Info("armed named stream recorders", "count", len(outcomes))
		return outcomes, nil

	default:
		return nil, nil
	}
}

// Handle dispatches ev by phase.
func (e *Engine) Handle(ctx context.Context, ev bus.StreamEvent) (Outcome, error) {
	switch ev.Phase {
	case bus.PhasePublish:
		return e.OnPublish(ctx, ev)
	case bus.PhaseUnpublish:
		return e.OnUnpublish(ctx, ev)
	default:
		return Outcome{Stream: ev.StreamName, Action: ActionNone}, fmt.Errorf("unknown stream phase %q", ev.Phase)
	}
}

// OnPublish starts a recorder when the policy allows the stream. Streams that
// already have a recorder, and every stream in mode all, are left to the
// recording subsystem without re-evaluating the policy.
func (e *Engine) OnPublish(ctx context.Context, ev bus.StreamEvent) (Outcome, error) {
	out := Outcome{Stream: ev.StreamName, Action: ActionNone}

	if e.snap.Mode == policy.ModeAll {
		out.Reason = "recording all streams"
		e.observe(ctx, audit.TypePublish, ev, out, nil)
		return out, nil
	}
	if e.recorders.HasRecorder(e.snap.Application, ev.StreamName) {
		out.Reason = "recorder already exists"
		e.observe(ctx, audit.TypePublish, ev, out, nil)
		return out, nil
	}

	decision := e.evaluator.Evaluate(policy.Input{
		StreamName:         ev.StreamName,
		IsTranscoderOutput: ev.IsTranscoderOutput,
	})
	out.Reason = decision.Reason
	if !decision.CanRecord() {
		e.trace(ctx, "not starting recording", ev, decision.Reason)
		e.observe(ctx, audit.TypePublish, ev, out, nil)
		return out, nil
	}

	e.trace(ctx, "starting recording", ev, decision.Reason)
	out.Action = ActionStart
	err := e.recorders.StartStream(ctx, e.snap.Application, ev.StreamName, e.snap.RecorderParams)
	metrics.RecordRecorderOp("start_stream", err)
	e.observe(ctx, audit.TypePublish, ev, out, err)
	return out, err
}

// OnUnpublish stops the stream's recorder when the policy shuts recorders
// down on unpublish. Otherwise the recorder stays allocated for reuse.
func (e *Engine) OnUnpublish(ctx context.Context, ev bus.StreamEvent) (Outcome, error) {
	out := Outcome{Stream: ev.StreamName, Action: ActionNone, Reason: "recorder kept for reuse"}
	if !e.snap.ShutdownOnUnpublish {
		e.observe(ctx, audit.TypeUnpublish, ev, out, nil)
		return out, nil
	}

	e.trace(ctx, "shutting down recorder", ev, "")
	out.Action = ActionStop
	out.Reason = "shutdown on unpublish"
	err := e.recorders.StopStream(ctx, e.snap.Application, ev.StreamName)
	metrics.RecordRecorderOp("stop_stream", err)
	e.observe(ctx, audit.TypeUnpublish, ev, out, err)
	return out, err
}

func (e *Engine) trace(ctx context.Context, msg string, ev bus.StreamEvent, reason string) {
	level := slog.LevelDebug
	if e.snap.DebugLog {
		level = slog.LevelInfo
	}
	e.logger.Log(ctx, level, msg,
		"stream", ev.StreamName,
		"record_type", e.snap.Mode,
		"reason", reason,
	)
}

func (e *Engine) observe(ctx context.Context, kind string, ev bus.StreamEvent, out Outcome, err error) {
	metrics.RecordDecision(e.snap.Application, string(e.snap.Mode), kind, string(out.Action))

	if e.auditor == nil {
		return
	}

	requestID := ev.RequestID
	if requestID == "" {
		requestID = bus.RequestIDFromContext(ctx)
	}
	event := audit.Event{
		Type:        kind,
		RequestID:   requestID,
		Application: e.snap.Application,
		Stream:      out.Stream,
		Mode:        string(e.snap.Mode),
		Action:      string(out.Action),
		Reason:      out.Reason,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if aerr := e.auditor.Append(event); aerr != nil {
		e.logger.Warn("failed to write audit event", "error", aerr)
	}
}
