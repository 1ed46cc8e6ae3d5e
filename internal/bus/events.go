package bus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type requestIDContextKey struct{}

// Phase is the stream transition reported by the host.
type Phase string

const (
	PhasePublish   Phase = "publish"
	PhaseUnpublish Phase = "unpublish"
)

// ParsePhase accepts "publish" and "unpublish" in any case.
func ParsePhase(raw string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(PhasePublish):
		return PhasePublish, nil
	case string(PhaseUnpublish):
		return PhaseUnpublish, nil
	default:
		return "", fmt.Errorf("unknown stream phase %q", raw)
	}
}

// StreamEvent is one publish or unpublish notification from the host.
type StreamEvent struct {
	Application        string
	StreamName         string
	IsTranscoderOutput bool
	Phase              Phase
	RequestID          string
	Timestamp          time.Time
}

// NewStreamEvent stamps a request id and time on a new event.
func NewStreamEvent(app, stream string, phase Phase, transcoder bool) StreamEvent {
	return StreamEvent{
		Application:        app,
		StreamName:         stream,
		IsTranscoderOutput: transcoder,
		Phase:              phase,
		RequestID:          NewRequestID(),
		Timestamp:          time.Now().UTC(),
	}
}

// Key identifies the stream an event belongs to.
func (e StreamEvent) Key() string {
	return e.Application + "/" + e.StreamName
}

// NewRequestID creates a request id for tracing.
func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID adds a request id to context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDContextKey{}, requestID)
}

// RequestIDFromContext reads request id from context.
func RequestIDFromContext(ctx context.Context) string {
	v := ctx.Value(requestIDContextKey{})
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s)
	}
	return ""
}
