package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/MEKXH/autorecord/internal/bus"
	"github.com/MEKXH/autorecord/internal/config"
	"github.com/MEKXH/autorecord/internal/engine"
	"github.com/MEKXH/autorecord/internal/metrics"
	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/MEKXH/autorecord/internal/recorder"
)

const recordStreamTypeMarker = "-record"

// Instance is one running application with its resolved recording policy.
type Instance struct {
	name       string
	streamType string
	engine     *engine.Engine
	registry   *recorder.Registry
	warnings   []error
	logger     *slog.Logger
}

// ResolvePolicy builds the policy snapshot for one configured application
// from the application and recorder layers of cfg.
func ResolvePolicy(ctx context.Context, cfg *config.Config, appCfg config.ApplicationConfig, logger *slog.Logger) (*policy.Snapshot, []error) {
	if logger == nil {
		logger = slog.Default()
	}
	return policy.Resolve(policy.Sources{
		Application:    appCfg.Name,
		Instance:       appCfg.Properties,
		Subsystem:      cfg.Recorder.Properties,
		RecorderParams: cfg.Recorder.Params,
		VerboseLogging: logger.Enabled(ctx, slog.LevelDebug),
		Logger:         logger,
	})
}

// CreateInstance resolves the application's policy and builds its engine.
// Policy problems are logged and counted; they never prevent creation.
func CreateInstance(ctx context.Context, cfg *config.Config, appCfg config.ApplicationConfig, registry *recorder.Registry, opts ...engine.Option) *Instance {
	logger := slog.Default().With("application", appCfg.Name)

	inst := &Instance{
		name:       appCfg.Name,
		streamType: appCfg.StreamType,
		registry:   registry,
		logger:     logger,
	}

	if strings.Contains(appCfg.StreamType, recordStreamTypeMarker) {
		stripped := strings.ReplaceAll(appCfg.StreamType, recordStreamTypeMarker, "")
		inst.streamType = stripped
		logger.Info("stream type records on its own, switching to plain stream type",
			"configured", appCfg.StreamType,
			"stream_type", stripped,
		)
	}

	snap, warnings := ResolvePolicy(ctx, cfg, appCfg, slog.Default())
	for _, w := range warnings {
		logger.Warn("recording policy problem", "error", w)
	}
	metrics.RecordPolicyWarnings(appCfg.Name, len(warnings))
	inst.warnings = warnings

	logger.Info("recording policy resolved",
		"record_type", snap.Mode,
		"configured", snap.ConfiguredMode,
		"stream_names", snap.Names.Raw,
		"debug_log", snap.DebugLog,
	)
	if snap.ShutdownOnUnpublish {
		logger.Info("recorders will be shut down on unpublish")
	} else {
		logger.Info("recorders will not be shut down on unpublish")
	}

	inst.engine = engine.New(snap, registry, opts...)
	return inst
}

// Name returns the application name.
func (i *Instance) Name() string {
	return i.name
}

// StreamType returns the effective stream type with every "-record" marker
// removed, e.g. "live-record-lowlatency" becomes "live-lowlatency".
func (i *Instance) StreamType() string {
	return i.streamType
}

// Policy returns the resolved snapshot.
func (i *Instance) Policy() *policy.Snapshot {
	return i.engine.Snapshot()
}

// Warnings returns the problems found while resolving the policy.
func (i *Instance) Warnings() []error {
	return i.warnings
}

// Start runs the application start bootstrap.
func (i *Instance) Start(ctx context.Context) ([]engine.Outcome, error) {
	return i.engine.Start(ctx)
}

// OnPublish marks the stream live and lets the engine decide.
func (i *Instance) OnPublish(ctx context.Context, ev bus.StreamEvent) (engine.Outcome, error) {
	i.registry.StreamPublished(i.name, ev.StreamName)
	return i.engine.OnPublish(ctx, ev)
}

// OnUnpublish marks the stream gone and lets the engine decide.
func (i *Instance) OnUnpublish(ctx context.Context, ev bus.StreamEvent) (engine.Outcome, error) {
	i.registry.StreamUnpublished(i.name, ev.StreamName)
	return i.engine.OnUnpublish(ctx, ev)
}

// Handle dispatches ev by phase.
func (i *Instance) Handle(ctx context.Context, ev bus.StreamEvent) (engine.Outcome, error) {
	switch ev.Phase {
	case bus.PhasePublish:
		return i.OnPublish(ctx, ev)
	case bus.PhaseUnpublish:
		return i.OnUnpublish(ctx, ev)
	default:
		return i.engine.Handle(ctx, ev)
	}
}
