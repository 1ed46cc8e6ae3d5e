package policy

import (
	"errors"
	"testing"

	"github.com/MEKXH/autorecord/internal/recorder"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestResolve_Defaults(t *testing.T) {
	snap, warnings := Resolve(Sources{Application: "live"})
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}
	if snap.Mode != ModeAll {
		t.Fatalf("expected default mode all, got %q", snap.Mode)
	}
	if !snap.ShutdownOnUnpublish {
		t.Fatal("expected shutdown on unpublish by default")
	}
	if snap.DebugLog || snap.StartNamedOnAppStart {
		t.Fatalf("unexpected defaults: %+v", snap)
	}
	if snap.Names.Delimiter != DefaultNamesDelimiter {
		t.Fatalf("expected default delimiter, got %q", snap.Names.Delimiter)
	}
}

func TestResolve_UnparsableModeFailsClosed(t *testing.T) {
	snap, warnings := Resolve(Sources{
		Subsystem: Properties{RecordType: strPtr("everything")},
	})
	if snap.Mode != ModeNone {
		t.Fatalf("expected none, got %q", snap.Mode)
	}
	if snap.ConfiguredMode != "everything" {
		t.Fatalf("expected configured mode to be kept, got %q", snap.ConfiguredMode)
	}
	if len(warnings) != 1 || !errors.Is(warnings[0], ErrInvalidRecordMode) {
		t.Fatalf("expected invalid mode warning, got %v", warnings)
	}
}

func TestResolve_InstanceLayerWins(t *testing.T) {
	snap, _ := Resolve(Sources{
		Subsystem: Properties{
			RecordType:                  strPtr("deny"),
			StreamNames:                 strPtr("a,b"),
			ShutdownRecorderOnUnpublish: boolPtr(true),
		},
		Instance: Properties{
			RecordType:                  strPtr("allow"),
			StreamNames:                 strPtr("cam*"),
			ShutdownRecorderOnUnpublish: boolPtr(false),
		},
	})
	if snap.Mode != ModeAllow {
		t.Fatalf("expected allow, got %q", snap.Mode)
	}
	if snap.Names.Raw != "cam*" {
		t.Fatalf("expected instance names, got %q", snap.Names.Raw)
	}
	if snap.ShutdownOnUnpublish {
		t.Fatal("expected instance shutdown=false to win")
	}
}

func TestResolve_SubsystemLayerOverridesDefault(t *testing.T) {
	snap, _ := Resolve(Sources{
		Subsystem: Properties{
			RecordType:                  strPtr("source"),
			ShutdownRecorderOnUnpublish: boolPtr(false),
			StreamNamesDelimiter:        strPtr(";"),
		},
	})
	if snap.Mode != ModeSourceOnly {
		t.Fatalf("expected source, got %q", snap.Mode)
	}
	if snap.ShutdownOnUnpublish {
		t.Fatal("expected subsystem shutdown=false")
	}
	if snap.Names.Delimiter != ";" {
		t.Fatalf("expected subsystem delimiter, got %q", snap.Names.Delimiter)
	}
}

func TestResolve_RecordAllStreamsForcesAll(t *testing.T) {
	snap, _ := Resolve(Sources{
		Subsystem: Properties{RecordType: strPtr("none")},
		Instance:  Properties{RecordAllStreams: boolPtr(true)},
	})
	if snap.Mode != ModeAll {
		t.Fatalf("expected all, got %q", snap.Mode)
	}

	snap, _ = Resolve(Sources{
		Subsystem: Properties{RecordType: strPtr("bogus"), RecordAllStreams: boolPtr(true)},
	})
	if snap.Mode != ModeAll {
		t.Fatalf("expected record_all_streams to override a bad record_type, got %q", snap.Mode)
	}
}

func TestResolve_RecordAllStreamsInstanceFalseWins(t *testing.T) {
	snap, _ := Resolve(Sources{
		Subsystem: Properties{RecordType: strPtr("allow"), StreamNames: strPtr("x"), RecordAllStreams: boolPtr(true)},
		Instance:  Properties{RecordAllStreams: boolPtr(false)},
	})
	if snap.Mode != ModeAllow {
		t.Fatalf("expected allow, got %q", snap.Mode)
	}
}

func TestResolve_InvalidDelimiterFallsBack(t *testing.T) {
	snap, warnings := Resolve(Sources{
		Subsystem: Properties{
			RecordType:           strPtr("allow"),
			StreamNames:          strPtr("a,b"),
			StreamNamesDelimiter: strPtr("("),
		},
	})
	if len(warnings) != 1 {
		t.Fatalf("expected one warning, got %v", warnings)
	}
	if snap.Names.Delimiter != DefaultNamesDelimiter || len(snap.Names.Patterns) != 2 {
		t.Fatalf("expected fallback to default delimiter, got %+v", snap.Names)
	}
}

func TestResolve_WarnsAboutInvalidPatternsAndEmptyList(t *testing.T) {
	_, warnings := Resolve(Sources{
		Subsystem: Properties{RecordType: strPtr("allow"), StreamNames: strPtr("[,x")},
	})
	if len(warnings) != 1 {
		t.Fatalf("expected pattern warning, got %v", warnings)
	}

	_, warnings = Resolve(Sources{
		Subsystem: Properties{RecordType: strPtr("deny")},
	})
	if len(warnings) != 1 {
		t.Fatalf("expected empty list warning, got %v", warnings)
	}
}

func TestResolve_VerboseLoggingEnablesDebug(t *testing.T) {
	snap, _ := Resolve(Sources{VerboseLogging: true})
	if !snap.DebugLog {
		t.Fatal("expected debug log")
	}

	snap, _ = Resolve(Sources{
		Subsystem: Properties{DebugLog: boolPtr(true)},
		Instance:  Properties{DebugLog: boolPtr(false)},
	})
	if snap.DebugLog {
		t.Fatal("expected instance debug_log=false to win")
	}
}

func TestResolve_CarriesRecorderParams(t *testing.T) {
	params := recorder.DefaultParams()
	params.FileFormat = recorder.FormatFLV
	snap, _ := Resolve(Sources{RecorderParams: params})
	if snap.RecorderParams.FileFormat != recorder.FormatFLV {
		t.Fatalf("expected flv params, got %+v", snap.RecorderParams)
	}
}
