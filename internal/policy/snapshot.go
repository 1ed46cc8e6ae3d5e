package policy

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/MEKXH/autorecord/internal/recorder"
)

// Properties is one configuration layer. Nil fields are unset and fall
// through to the next, more general layer.
type Properties struct {
	RecordType                  *string `mapstructure:"record_type" json:"record_type,omitempty"`
	RecordAllStreams            *bool   `mapstructure:"record_all_streams" json:"record_all_streams,omitempty"`
	StreamNames                 *string `mapstructure:"stream_names" json:"stream_names,omitempty"`
	StreamNamesDelimiter        *string `mapstructure:"stream_names_delimiter" json:"stream_names_delimiter,omitempty"`
	ShutdownRecorderOnUnpublish *bool   `mapstructure:"shutdown_recorder_on_unpublish" json:"shutdown_recorder_on_unpublish,omitempty"`
	StartNamedOnAppStart        *bool   `mapstructure:"start_named_on_app_start" json:"start_named_on_app_start,omitempty"`
	DebugLog                    *bool   `mapstructure:"debug_log" json:"debug_log,omitempty"`
}

// Sources carries everything Resolve reads.
type Sources struct {
	Application string
	// Instance overrides Subsystem, which overrides the hardcoded defaults.
	Instance       Properties
	Subsystem      Properties
	RecorderParams recorder.Params
	// VerboseLogging turns on debug diagnostics regardless of debug_log,
	// typically because the process logs at debug level.
	VerboseLogging bool
	Logger         *slog.Logger
}

// Snapshot is the resolved recording policy of one application. It is built
// once by Resolve and never mutated, so any number of goroutines may read it.
type Snapshot struct {
	Application          string
	Mode                 RecordMode
	ConfiguredMode       string
	Names                NameList
	ShutdownOnUnpublish  bool
	StartNamedOnAppStart bool
	DebugLog             bool
	RecorderParams       recorder.Params
}

// Resolve builds the policy snapshot for one application. Problems with the
// configured values never fail resolution; they are returned as warnings and
// the affected setting falls back to its fail-closed default.
func Resolve(src Sources) (*Snapshot, []error) {
	logger := src.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var warnings []error

	snap := &Snapshot{
		Application:    src.Application,
		RecorderParams: src.RecorderParams,
	}

	snap.DebugLog = pick(false, src.Subsystem.DebugLog, src.Instance.DebugLog) || src.VerboseLogging

	snap.ConfiguredMode = pick(string(ModeAll), src.Subsystem.RecordType, src.Instance.RecordType)
	mode, err := ParseRecordMode(snap.ConfiguredMode)
	if err != nil {
		warnings = append(warnings, fmt.Errorf("record_type: %w; automatic recording disabled", err))
	}

	recordAll := pick(mode == ModeAll, src.Subsystem.RecordAllStreams, src.Instance.RecordAllStreams)
	if recordAll {
		mode = ModeAll
	}
	snap.Mode = mode

	rawNames := pick("", src.Subsystem.StreamNames, src.Instance.StreamNames)
	delimiter := pick(DefaultNamesDelimiter, src.Subsystem.StreamNamesDelimiter, src.Instance.StreamNamesDelimiter)
	names, err := ParseNameList(rawNames, delimiter)
	if err != nil {
		warnings = append(warnings, fmt.Errorf("stream_names_delimiter: %w; using %s", err, DefaultNamesDelimiter))
		names, _ = ParseNameList(rawNames, DefaultNamesDelimiter)
	}
	for _, p := range names.InvalidPatterns() {
		warnings = append(warnings, fmt.Errorf("stream_names: pattern %q never matches: %w", p.Raw, p.Err()))
	}
	if mode.UsesNames() && strings.TrimSpace(rawNames) == "" {
		warnings = append(warnings, fmt.Errorf("stream_names: empty list with record_type %s", mode))
	}
	snap.Names = names.WithDiagnostics(logger.With("application", src.Application), snap.DebugLog)

	snap.ShutdownOnUnpublish = pick(true, src.Subsystem.ShutdownRecorderOnUnpublish, src.Instance.ShutdownRecorderOnUnpublish)
	snap.StartNamedOnAppStart = pick(false, src.Subsystem.StartNamedOnAppStart, src.Instance.StartNamedOnAppStart)

	return snap, warnings
}

// pick returns the most specific set layer, layers ordered general to specific.
func pick[T any](fallback T, layers ...*T) T {
	v := fallback
	for _, layer := range layers {
		if layer != nil {
			v = *layer
		}
	}
	return v
}
