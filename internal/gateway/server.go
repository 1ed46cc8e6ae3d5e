package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MEKXH/autorecord/internal/bus"
	"github.com/MEKXH/autorecord/internal/config"
	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/MEKXH/autorecord/internal/recorder"
	"github.com/MEKXH/autorecord/internal/version"
)

// Publisher accepts stream events for asynchronous handling.
type Publisher interface {
	Publish(ctx context.Context, ev bus.StreamEvent) error
}

// Inspector exposes the resolved policies and the recorder registry.
type Inspector interface {
	Policies() []*policy.Snapshot
	Policy(name string) (*policy.Snapshot, bool)
	RecordingAll(app string) bool
	Recorders() []recorder.Info
	PreviousRecorders() []recorder.Info
}

type Server struct {
	cfg        config.GatewayConfig
	publisher  Publisher
	inspector  Inspector
	httpServer *http.Server
}

func New(cfg config.GatewayConfig, publisher Publisher, inspector Inspector) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18791
	}

	cfg.Host = host
	cfg.Port = port
	return &Server{
		cfg:       cfg,
		publisher: publisher,
		inspector: inspector,
	}
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

func (s *Server) Start() error {
	mux := NewHandler(s.cfg.Token, s.publisher, s.inspector)
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

type eventRequest struct {
	Application string `json:"application"`
	Stream      string `json:"stream"`
	Phase       string `json:"phase"`
	Transcoder  bool   `json:"transcoder"`
}

type patternView struct {
	Raw   string `json:"raw"`
	Kind  string `json:"kind"`
	Error string `json:"error,omitempty"`
}

type policyView struct {
	Application          string        `json:"application"`
	RecordType           string        `json:"record_type"`
	Configured           string        `json:"configured_record_type"`
	StreamNames          string        `json:"stream_names"`
	Delimiter            string        `json:"stream_names_delimiter"`
	Patterns             []patternView `json:"patterns"`
	ShutdownOnUnpublish  bool          `json:"shutdown_recorder_on_unpublish"`
	StartNamedOnAppStart bool          `json:"start_named_on_app_start"`
	DebugLog             bool          `json:"debug_log"`
	RecordingAll         bool          `json:"recording_all"`
}

func newPolicyView(snap *policy.Snapshot, recordingAll bool) policyView {
	v := policyView{
		Application:          snap.Application,
		RecordType:           string(snap.Mode),
		Configured:           snap.ConfiguredMode,
		StreamNames:          snap.Names.Raw,
		Delimiter:            snap.Names.Delimiter,
		Patterns:             make([]patternView, 0, len(snap.Names.Patterns)),
		ShutdownOnUnpublish:  snap.ShutdownOnUnpublish,
		StartNamedOnAppStart: snap.StartNamedOnAppStart,
		DebugLog:             snap.DebugLog,
		RecordingAll:         recordingAll,
	}
	for _, p := range snap.Names.Patterns {
		pv := patternView{Raw: p.Raw, Kind: string(p.Kind)}
		if p.Err() != nil {
			pv.Error = p.Err().Error()
		}
		v.Patterns = append(v.Patterns, pv)
	}
	return v
}

func NewHandler(token string, publisher Publisher, inspector Inspector) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":     "ok",
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/version", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": requestID,
		})
	})
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/events", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodPost {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if strings.TrimSpace(token) != "" && !isAuthorized(r, token) {
			writeError(w, requestID, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
			return
		}

		var req eventRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "invalid json request")
			return
		}
		app := strings.TrimSpace(req.Application)
		if app == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "application is required")
			return
		}
		if req.Stream == "" {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", "stream is required")
			return
		}
		phase, err := bus.ParsePhase(req.Phase)
		if err != nil {
			writeError(w, requestID, http.StatusBadRequest, "bad_request", err.Error())
			return
		}
		if inspector != nil {
			if _, ok := inspector.Policy(app); !ok {
				writeError(w, requestID, http.StatusNotFound, "not_found", "unknown application")
				return
			}
		}

		if publisher == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "event publisher is not configured")
			return
		}

		ev := bus.NewStreamEvent(app, req.Stream, phase, req.Transcoder)
		ev.RequestID = requestID
		if err := publisher.Publish(r.Context(), ev); err != nil {
			slog.Error("gateway event publish failed", "request_id", requestID, "application", app, "stream", req.Stream, "error", err)
			if errors.Is(err, bus.ErrDispatcherClosed) {
				writeError(w, requestID, http.StatusServiceUnavailable, "unavailable", "shutting down")
				return
			}
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "failed to queue event")
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{
			"status":     "queued",
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/policy", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if inspector == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "inspector is not configured")
			return
		}
		if name := strings.TrimSpace(r.URL.Query().Get("application")); name != "" {
			snap, ok := inspector.Policy(name)
			if !ok {
				writeError(w, requestID, http.StatusNotFound, "not_found", "unknown application")
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{
				"policies":   []policyView{newPolicyView(snap, inspector.RecordingAll(name))},
				"request_id": requestID,
			})
			return
		}
		views := []policyView{}
		for _, snap := range inspector.Policies() {
			views = append(views, newPolicyView(snap, inspector.RecordingAll(snap.Application)))
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"policies":   views,
			"request_id": requestID,
		})
	})
	mux.HandleFunc("/recorders", func(w http.ResponseWriter, r *http.Request) {
		requestID := getRequestID(r)
		if r.Method != http.MethodGet {
			writeError(w, requestID, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
			return
		}
		if inspector == nil {
			writeError(w, requestID, http.StatusInternalServerError, "internal_error", "inspector is not configured")
			return
		}
		recorders := inspector.Recorders()
		if recorders == nil {
			recorders = []recorder.Info{}
		}
		previous := inspector.PreviousRecorders()
		if previous == nil {
			previous = []recorder.Info{}
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"recorders":          recorders,
			"awaiting_republish": previous,
			"request_id":         requestID,
		})
	})
	return mux
}

func isAuthorized(r *http.Request, expected string) bool {
	got := strings.TrimSpace(r.Header.Get("Authorization"))
	if got == "" {
		return false
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(got, prefix) {
		return false
	}
	token := strings.TrimSpace(strings.TrimPrefix(got, prefix))
	return token == expected
}

func getRequestID(r *http.Request) string {
	rid := strings.TrimSpace(r.Header.Get("X-Request-ID"))
	if rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
