package policy

import (
	"errors"
	"fmt"
	"strings"
)

// RecordMode selects which published streams are recorded automatically.
type RecordMode string

const (
	ModeAll            RecordMode = "all"
	ModeSourceOnly     RecordMode = "source"
	ModeTranscoderOnly RecordMode = "transcoder"
	ModeAllow          RecordMode = "allow"
	ModeDeny           RecordMode = "deny"
	ModeNone           RecordMode = "none"
)

// ErrInvalidRecordMode is returned for record-type values outside the known set.
var ErrInvalidRecordMode = errors.New("invalid record mode")

// ParseRecordMode maps a configured record-type onto a RecordMode.
// Unknown values yield ModeNone together with an error so the caller can warn
// and keep going with recording disabled.
func ParseRecordMode(raw string) (RecordMode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeAll):
		return ModeAll, nil
	case string(ModeSourceOnly):
		return ModeSourceOnly, nil
	case string(ModeTranscoderOnly):
		return ModeTranscoderOnly, nil
	case string(ModeAllow), "whitelist":
		return ModeAllow, nil
	case string(ModeDeny), "blacklist":
		return ModeDeny, nil
	case string(ModeNone):
		return ModeNone, nil
	default:
		return ModeNone, fmt.Errorf("%w: %q", ErrInvalidRecordMode, raw)
	}
}

// UsesNames reports whether the mode consults the stream name list.
func (m RecordMode) UsesNames() bool {
	return m == ModeAllow || m == ModeDeny
}

// Action is the policy verdict for a single stream.
type Action string

const (
	ActionRecord Action = "record"
	ActionSkip   Action = "skip"
)

// Input is the minimum evaluation context.
type Input struct {
	StreamName         string
	IsTranscoderOutput bool
}

// Decision is the deterministic policy result.
type Decision struct {
	Action Action
	Reason string
}

// CanRecord reports whether the decision allows recording.
func (d Decision) CanRecord() bool {
	return d.Action == ActionRecord
}
