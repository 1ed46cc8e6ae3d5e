package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/MEKXH/autorecord/internal/app"
	"github.com/MEKXH/autorecord/internal/policy"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

func NewCheckCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "check <application> <stream>",
		Short: "Evaluate whether a stream would be recorded",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			transcoder, _ := cmd.Flags().GetBool("transcoder")
			return runCheck(args[0], args[1], transcoder)
		},
	}
	cmd.Flags().Bool("transcoder", false, "Treat the stream as transcoder output")
	return cmd
}

func runCheck(application, stream string, transcoder bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	appCfg, ok := cfg.Application(application)
	if !ok {
		return fmt.Errorf("application %q is not configured (known: %v)", application, cfg.ApplicationNames())
	}

	snap, warnings := app.ResolvePolicy(context.Background(), cfg, appCfg, slog.Default())
	decision := policy.NewEvaluator(snap).Evaluate(policy.Input{
		StreamName:         stream,
		IsTranscoderOutput: transcoder,
	})

	verdict := lipgloss.NewStyle().Bold(true).Foreground(skipColor).Render("SKIP")
	if decision.CanRecord() {
		verdict = lipgloss.NewStyle().Bold(true).Foreground(recordColor).Render("RECORD")
	}

	fmt.Printf("%s %s/%s\n", verdict, application, stream)
	fmt.Printf("  record_type: %s\n", snap.Mode)
	if snap.ConfiguredMode != string(snap.Mode) {
		fmt.Printf("  configured:  %s\n", snap.ConfiguredMode)
	}
	if snap.Mode.UsesNames() {
		fmt.Printf("  stream_names: %s\n", namesSummary(snap))
	}
	fmt.Printf("  reason: %s\n", decision.Reason)
	for _, w := range warnings {
		fmt.Printf("  warning: %v\n", w)
	}
	return nil
}
