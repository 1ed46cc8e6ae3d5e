package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/MEKXH/autorecord/internal/app"
	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/MEKXH/autorecord/internal/recorder"
	"github.com/MEKXH/autorecord/internal/state"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show resolved recording policies and persisted recorders",
		RunE:  runStatus,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	fmt.Println("=== AutoRecord Status ===")
	fmt.Println()

	fmt.Println("Config")
	fmt.Printf("  Path: %s\n", activeConfigPath())
	if _, err := os.Stat(activeConfigPath()); err == nil {
		fmt.Println("  Status: OK")
	} else {
		fmt.Println("  Status: Not found (run 'autorecord init')")
	}

	fmt.Println("\nGateway")
	fmt.Printf("  Address: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
	if cfg.Gateway.Token != "" {
		fmt.Println("  Auth:    token configured")
	} else {
		fmt.Println("  Auth:    no token (open)")
	}

	fmt.Println("\nDispatch")
	fmt.Printf("  Workers: %d, queue: %d\n", cfg.Dispatch.Workers, cfg.Dispatch.QueueSize)
	fmt.Println()

	var rows [][]string
	for _, appCfg := range cfg.Applications {
		snap, warnings := app.ResolvePolicy(context.Background(), cfg, appCfg, slog.Default())
		rows = append(rows, []string{
			snap.Application,
			string(snap.Mode),
			namesSummary(snap),
			unpublishSummary(snap),
			strconv.Itoa(len(warnings)),
		})
	}
	printTable("Recording Policies", []column{
		{"APPLICATION", 16},
		{"RECORD TYPE", 12},
		{"STREAM NAMES", 28},
		{"ON UNPUBLISH", 13},
		{"WARNINGS", 8},
	}, rows, func(row []string, col int) lipgloss.TerminalColor {
		switch {
		case col == 1 && row[1] == string(policy.ModeNone):
			return skipColor
		case col == 1:
			return recordColor
		case col == 4 && row[4] != "0":
			return warningColor
		}
		return nil
	})

	st, err := state.NewManager(cfg.State.Dir).LoadRecorderState()
	if err != nil {
		return fmt.Errorf("failed to load recorder state: %w", err)
	}
	if len(st.Recorders) == 0 {
		fmt.Println("Recorders")
		fmt.Println("  none persisted yet")
		return nil
	}

	rows = rows[:0]
	for _, info := range st.Recorders {
		rows = append(rows, []string{
			info.Application,
			info.Stream,
			string(info.State),
			info.Params.FileFormat,
			info.CreatedAt.Local().Format("2006-01-02 15:04:05"),
		})
	}
	printTable(fmt.Sprintf("Recorders (saved %s)", st.SavedAt.Local().Format("2006-01-02 15:04:05")), []column{
		{"APPLICATION", 16},
		{"STREAM", 24},
		{"STATE", 10},
		{"FORMAT", 6},
		{"CREATED", 19},
	}, rows, func(row []string, col int) lipgloss.TerminalColor {
		if col != 2 {
			return nil
		}
		if row[2] == string(recorder.StateRecording) {
			return recordColor
		}
		return skipColor
	})

	return nil
}

func namesSummary(snap *policy.Snapshot) string {
	if !snap.Mode.UsesNames() {
		return "-"
	}
	if snap.Names.Empty() {
		return "(empty)"
	}
	return snap.Names.Raw
}

func unpublishSummary(snap *policy.Snapshot) string {
	if snap.ShutdownOnUnpublish {
		return "stop"
	}
	return "keep"
}
