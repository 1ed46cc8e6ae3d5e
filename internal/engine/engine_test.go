package engine

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/MEKXH/autorecord/internal/audit"
	"github.com/MEKXH/autorecord/internal/bus"
	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/MEKXH/autorecord/internal/recorder"
)

type fakeManager struct {
	mu        sync.Mutex
	existing  map[string]bool
	appStarts []string
	starts    []string
	stops     []string
	startErr  error
}

func newFakeManager() *fakeManager {
	return &fakeManager{existing: make(map[string]bool)}
}

func (f *fakeManager) HasRecorder(app, stream string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.existing[app+"/"+stream]
}

func (f *fakeManager) StartApplication(ctx context.Context, app string, params recorder.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.appStarts = append(f.appStarts, app)
	return nil
}

func (f *fakeManager) StartStream(ctx context.Context, app, stream string, params recorder.Params) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts = append(f.starts, stream)
	f.existing[app+"/"+stream] = true
	return nil
}

func (f *fakeManager) StopStream(ctx context.Context, app, stream string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops = append(f.stops, stream)
	delete(f.existing, app+"/"+stream)
	return nil
}

type memAuditor struct {
	mu     sync.Mutex
	events []audit.Event
}

func (m *memAuditor) Append(event audit.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, event)
	return nil
}

func snapshot(t *testing.T, mode policy.RecordMode, names string) *policy.Snapshot {
	t.Helper()
	list, err := policy.ParseNameList(names, "")
	if err != nil {
		t.Fatalf("ParseNameList: %v", err)
	}
	return &policy.Snapshot{
		Application:         "live",
		Mode:                mode,
		Names:               list,
		ShutdownOnUnpublish: true,
		RecorderParams:      recorder.DefaultParams(),
	}
}

func publish(stream string, transcoder bool) bus.StreamEvent {
	return bus.StreamEvent{Application: "live", StreamName: stream, Phase: bus.PhasePublish, IsTranscoderOutput: transcoder}
}

func unpublish(stream string) bus.StreamEvent {
	return bus.StreamEvent{Application: "live", StreamName: stream, Phase: bus.PhaseUnpublish}
}

func TestStart_AllIssuesOneApplicationWideStart(t *testing.T) {
	mgr := newFakeManager()
	e := New(snapshot(t, policy.ModeAll, "cam1,cam2"), mgr)

	outcomes, err := e.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(outcomes) != 1 || outcomes[0].Action != ActionStartApplication {
		t.Fatalf("unexpected outcomes: %+v", outcomes)
	}
	if len(mgr.appStarts) != 1 || mgr.appStarts[0] != "live" {
		t.Fatalf("expected one application start, got %v", mgr.appStarts)
	}
	if len(mgr.starts) != 0 {
		t.Fatalf("expected no per-name starts, got %v", mgr.starts)
	}

	for _, name := range []string{"cam1", "x", "y"} {
		out, err := e.OnPublish(context.Background(), publish(name, false))
		if err != nil {
			t.Fatalf("OnPublish: %v", err)
		}
		if out.Action != ActionNone {
			t.Fatalf("expected publish to short-circuit in mode all, got %+v", out)
		}
	}
	if len(mgr.starts) != 0 {
		t.Fatalf("expected no publish-time starts, got %v", mgr.starts)
	}
}

func TestStart_NamedStartArmsLiteralNames(t *testing.T) {
	mgr := newFakeManager()
	snap := snapshot(t, policy.ModeAllow, "myStream, cam*, other")
	snap.StartNamedOnAppStart = true
	e := New(snap, mgr)

	outcomes, err := e.Start(context.Background())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if len(outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %+v", outcomes)
	}
	if len(mgr.starts) != 2 || mgr.starts[0] != "myStream" || mgr.starts[1] != "other" {
		t.Fatalf("unexpected starts: %v", mgr.starts)
	}
}

func TestStart_OtherModesDoNothing(t *testing.T) {
	for _, mode := range []policy.RecordMode{policy.ModeAllow, policy.ModeDeny, policy.ModeSourceOnly, policy.ModeTranscoderOnly, policy.ModeNone} {
		mgr := newFakeManager()
		outcomes, err := New(snapshot(t, mode, "cam1"), mgr).Start(context.Background())
		if err != nil {
			t.Fatalf("%s: Start: %v", mode, err)
		}
		if len(outcomes) != 0 || len(mgr.starts) != 0 || len(mgr.appStarts) != 0 {
			t.Fatalf("%s: expected no startup action, got %+v", mode, outcomes)
		}
	}
}

func TestOnPublish_AllowScenario(t *testing.T) {
	mgr := newFakeManager()
	e := New(snapshot(t, policy.ModeAllow, "cam*,  *backup"), mgr)
	ctx := context.Background()

	cases := []struct {
		stream string
		want   Action
	}{
		{"cam_1", ActionStart},
		{"east_backup", ActionStart},
		{"studio", ActionNone},
	}
	for _, tc := range cases {
		out, err := e.OnPublish(ctx, publish(tc.stream, false))
		if err != nil {
			t.Fatalf("OnPublish(%s): %v", tc.stream, err)
		}
		if out.Action != tc.want {
			t.Fatalf("OnPublish(%s): expected %q, got %q", tc.stream, tc.want, out.Action)
		}
	}
	if len(mgr.starts) != 2 {
		t.Fatalf("expected 2 starts, got %v", mgr.starts)
	}
}

func TestOnPublish_DenyRecordsUnlisted(t *testing.T) {
	mgr := newFakeManager()
	e := New(snapshot(t, policy.ModeDeny, "cam*,  *backup"), mgr)
	ctx := context.Background()

	for _, stream := range []string{"cam_1", "east_backup", "studio"} {
		if _, err := e.OnPublish(ctx, publish(stream, false)); err != nil {
			t.Fatalf("OnPublish: %v", err)
		}
	}
	if len(mgr.starts) != 1 || mgr.starts[0] != "studio" {
		t.Fatalf("expected only studio to start, got %v", mgr.starts)
	}
}

func TestOnPublish_TranscoderClassification(t *testing.T) {
	ctx := context.Background()

	src := newFakeManager()
	e := New(snapshot(t, policy.ModeSourceOnly, ""), src)
	_, _ = e.OnPublish(ctx, publish("s", false))
	_, _ = e.OnPublish(ctx, publish("s_720p", true))
	if len(src.starts) != 1 || src.starts[0] != "s" {
		t.Fatalf("source mode: unexpected starts %v", src.starts)
	}

	tr := newFakeManager()
	e = New(snapshot(t, policy.ModeTranscoderOnly, ""), tr)
	_, _ = e.OnPublish(ctx, publish("s", false))
	_, _ = e.OnPublish(ctx, publish("s_720p", true))
	if len(tr.starts) != 1 || tr.starts[0] != "s_720p" {
		t.Fatalf("transcoder mode: unexpected starts %v", tr.starts)
	}
}

func TestOnPublish_NoneNeverRecords(t *testing.T) {
	mgr := newFakeManager()
	e := New(snapshot(t, policy.ModeNone, "*"), mgr)
	for _, ev := range []bus.StreamEvent{publish("a", false), publish("b", true), publish("cam1", false)} {
		if out, _ := e.OnPublish(context.Background(), ev); out.Action != ActionNone {
			t.Fatalf("expected no action, got %+v", out)
		}
	}
	if len(mgr.starts) != 0 {
		t.Fatalf("expected no starts, got %v", mgr.starts)
	}
}

func TestOnPublish_ExistingRecorderIsNotDuplicated(t *testing.T) {
	mgr := newFakeManager()
	e := New(snapshot(t, policy.ModeAllow, "cam*"), mgr)
	ctx := context.Background()

	first, _ := e.OnPublish(ctx, publish("cam1", false))
	second, _ := e.OnPublish(ctx, publish("cam1", false))

	if first.Action != ActionStart {
		t.Fatalf("expected first publish to start, got %+v", first)
	}
	if second.Action != ActionNone || second.Reason != "recorder already exists" {
		t.Fatalf("expected second publish to short-circuit, got %+v", second)
	}
	if len(mgr.starts) != 1 {
		t.Fatalf("expected exactly one start, got %v", mgr.starts)
	}
}

func TestOnPublish_ExistingRecorderSkipsPolicy(t *testing.T) {
	mgr := newFakeManager()
	mgr.existing["live/studio"] = true
	e := New(snapshot(t, policy.ModeAllow, "cam*"), mgr)

	out, _ := e.OnPublish(context.Background(), publish("studio", false))
	if out.Reason != "recorder already exists" {
		t.Fatalf("expected existing recorder short-circuit, got %+v", out)
	}
}

func TestOnPublish_AdapterErrorPropagates(t *testing.T) {
	boom := errors.New("disk full")
	mgr := newFakeManager()
	mgr.startErr = boom
	aud := &memAuditor{}
	e := New(snapshot(t, policy.ModeAllow, "*"), mgr, WithAuditor(aud))

	out, err := e.OnPublish(context.Background(), publish("cam1", false))
	if !errors.Is(err, boom) {
		t.Fatalf("expected adapter error, got %v", err)
	}
	if out.Action != ActionStart {
		t.Fatalf("expected start attempt, got %+v", out)
	}
	if len(aud.events) != 1 || aud.events[0].Error != "disk full" {
		t.Fatalf("expected audited failure, got %+v", aud.events)
	}
}

func TestOnUnpublish_ShutdownSetting(t *testing.T) {
	ctx := context.Background()

	mgr := newFakeManager()
	e := New(snapshot(t, policy.ModeAllow, "*"), mgr)
	out, err := e.OnUnpublish(ctx, unpublish("cam1"))
	if err != nil {
		t.Fatalf("OnUnpublish: %v", err)
	}
	if out.Action != ActionStop || len(mgr.stops) != 1 {
		t.Fatalf("expected exactly one stop, got %+v %v", out, mgr.stops)
	}

	keep := newFakeManager()
	snap := snapshot(t, policy.ModeAllow, "*")
	snap.ShutdownOnUnpublish = false
	e = New(snap, keep)
	out, _ = e.OnUnpublish(ctx, unpublish("cam1"))
	if out.Action != ActionNone || len(keep.stops) != 0 {
		t.Fatalf("expected no stop, got %+v %v", out, keep.stops)
	}
}

func TestHandle_DispatchesByPhase(t *testing.T) {
	mgr := newFakeManager()
	aud := &memAuditor{}
	e := New(snapshot(t, policy.ModeAllow, "cam*"), mgr, WithAuditor(aud))
	ctx := bus.WithRequestID(context.Background(), "req-9")

	if out, err := e.Handle(ctx, publish("cam1", false)); err != nil || out.Action != ActionStart {
		t.Fatalf("publish: %+v %v", out, err)
	}
	if out, err := e.Handle(ctx, unpublish("cam1")); err != nil || out.Action != ActionStop {
		t.Fatalf("unpublish: %+v %v", out, err)
	}
	if _, err := e.Handle(ctx, bus.StreamEvent{StreamName: "cam1", Phase: "play"}); err == nil {
		t.Fatal("expected error for unknown phase")
	}

	if len(aud.events) != 2 {
		t.Fatalf("expected 2 audit events, got %d", len(aud.events))
	}
	if aud.events[0].RequestID != "req-9" || aud.events[0].Type != audit.TypePublish {
		t.Fatalf("unexpected audit event: %+v", aud.events[0])
	}
}

func TestOnPublish_ConcurrentPublishesCreateOneRecorder(t *testing.T) {
	reg := recorder.NewRegistry(nil)
	e := New(snapshot(t, policy.ModeAllow, "cam*"), reg)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := e.OnPublish(ctx, publish("cam1", false)); err != nil {
				t.Errorf("OnPublish: %v", err)
			}
		}()
	}
	wg.Wait()

	if got := len(reg.Snapshot()); got != 1 {
		t.Fatalf("expected exactly one recorder, got %d", got)
	}
}

func TestNew_NilSnapshotFailsClosed(t *testing.T) {
	mgr := newFakeManager()
	e := New(nil, mgr)
	if e.Snapshot().Mode != policy.ModeNone {
		t.Fatalf("expected none, got %q", e.Snapshot().Mode)
	}
	if out, _ := e.OnPublish(context.Background(), publish("x", false)); out.Action != ActionNone {
		t.Fatalf("expected no action, got %+v", out)
	}
}
