package recorder

import (
	"context"
	"time"
)

// Manager is the host recording subsystem as seen by the decision engine.
// Implementations must tolerate concurrent calls and treat a duplicate start
// for the same stream as a no-op.
type Manager interface {
	// HasRecorder reports whether a recorder exists for the stream.
	HasRecorder(app, stream string) bool
	// StartApplication records every stream of the application, creating
	// recorders lazily as streams publish.
	StartApplication(ctx context.Context, app string, params Params) error
	// StartStream arms a recorder for one stream name. It starts writing as
	// soon as the stream is published.
	StartStream(ctx context.Context, app, stream string, params Params) error
	// StopStream stops the recorder of one stream and releases it.
	StopStream(ctx context.Context, app, stream string) error
}

// File formats.
const (
	FormatMP4 = "mp4"
	FormatFLV = "flv"
)

// Segmentation types.
const (
	SegmentNone     = "none"
	SegmentDuration = "duration"
	SegmentSize     = "size"
	SegmentSchedule = "schedule"
)

// Versioning options applied when the target file already exists.
const (
	VersionAppend    = "append"
	VersionOverwrite = "overwrite"
	VersionFile      = "version"
)

// Params are the recorder defaults handed to every recorder this module
// starts. They are opaque to the decision logic.
type Params struct {
	ContentPath       string `mapstructure:"content_path" json:"content_path,omitempty"`
	FileFormat        string `mapstructure:"file_format" json:"file_format"`
	SegmentationType  string `mapstructure:"segmentation_type" json:"segmentation_type"`
	SegmentDurationMS int64  `mapstructure:"segment_duration_ms" json:"segment_duration_ms,omitempty"`
	SegmentSizeBytes  int64  `mapstructure:"segment_size_bytes" json:"segment_size_bytes,omitempty"`
	SegmentSchedule   string `mapstructure:"segment_schedule" json:"segment_schedule,omitempty"`
	VersioningOption  string `mapstructure:"versioning_option" json:"versioning_option"`
	StartOnKeyFrame   bool   `mapstructure:"start_on_key_frame" json:"start_on_key_frame"`
	RecordData        bool   `mapstructure:"record_data" json:"record_data"`
}

// DefaultParams returns the recorder defaults used when nothing is configured.
func DefaultParams() Params {
	return Params{
		FileFormat:       FormatMP4,
		SegmentationType: SegmentNone,
		VersioningOption: VersionFile,
		StartOnKeyFrame:  true,
		RecordData:       true,
	}
}

// State is the lifecycle state of one recorder.
type State string

const (
	// StateWaiting is armed and waiting for the stream to publish.
	StateWaiting   State = "waiting"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
)

// Info describes one recorder of the registry.
type Info struct {
	Application string    `json:"application"`
	Stream      string    `json:"stream"`
	State       State     `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	Params      Params    `json:"params"`
}

// Listener receives recorder lifecycle notifications. Calls happen outside
// the registry lock.
type Listener interface {
	OnCreate(info Info)
	OnStart(info Info)
	OnStop(info Info)
}
