package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the autorecord release, set at build time with
	// -ldflags "-X github.com/MEKXH/autorecord/internal/version.Version=...".
	// Falls back to the module version embedded by go install.
	Version = "dev"
)

func init() {
	if Version != "dev" {
		return
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" && info.Main.Version != "(devel)" {
		Version = info.Main.Version
	}
}

// String renders the version line printed by the CLI.
func String() string {
	return fmt.Sprintf("autorecord %s %s/%s", Version, runtime.GOOS, runtime.GOARCH)
}
