package commands

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/MEKXH/autorecord/internal/app"
	"github.com/MEKXH/autorecord/internal/bus"
	"github.com/MEKXH/autorecord/internal/config"
	"github.com/MEKXH/autorecord/internal/engine"
	"github.com/MEKXH/autorecord/internal/recorder"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// replayScript is a YAML list of stream events fed through the engine.
//
//	events:
//	  - application: live
//	    stream: cam1
//	    phase: publish
//	  - application: live
//	    stream: cam1_720p
//	    phase: publish
//	    transcoder: true
type replayScript struct {
	Events []replayEvent `yaml:"events"`
}

type replayEvent struct {
	Application string `yaml:"application"`
	Stream      string `yaml:"stream"`
	Phase       string `yaml:"phase"`
	Transcoder  bool   `yaml:"transcoder"`
}

type replayStep struct {
	Event   replayEvent
	Outcome engine.Outcome
	Err     error
}

type replayResult struct {
	Start     []engine.Outcome
	Steps     []replayStep
	Recorders []recorder.Info
}

func NewReplayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay <script.yaml>",
		Short: "Replay a scripted sequence of stream events against the configured policies",
		Long: `Replay feeds publish and unpublish events from a YAML script through the
decision engine using an in-memory recorder registry. Nothing is persisted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args[0])
		},
	}
}

func runReplay(path string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	script, err := loadReplayScript(path)
	if err != nil {
		return err
	}
	result, err := replayEvents(context.Background(), cfg, script)
	if err != nil {
		return err
	}
	printReplay(result)
	return nil
}

func loadReplayScript(path string) (*replayScript, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read replay script: %w", err)
	}
	return parseReplayScript(data)
}

func parseReplayScript(data []byte) (*replayScript, error) {
	var script replayScript
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&script); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parse replay script: %w", err)
	}
	for i, ev := range script.Events {
		if ev.Application == "" || ev.Stream == "" {
			return nil, fmt.Errorf("events[%d]: application and stream are required", i)
		}
		if _, err := bus.ParsePhase(ev.Phase); err != nil {
			return nil, fmt.Errorf("events[%d]: %w", i, err)
		}
	}
	return &script, nil
}

// replayEvents runs the script. Events of one stream are handled in script
// order; different streams run concurrently, as they would under the
// dispatcher.
func replayEvents(ctx context.Context, cfg *config.Config, script *replayScript) (*replayResult, error) {
	registry := recorder.NewRegistry(nil)
	instances := make(map[string]*app.Instance, len(cfg.Applications))
	result := &replayResult{Steps: make([]replayStep, len(script.Events))}

	for _, appCfg := range cfg.Applications {
		inst := app.CreateInstance(ctx, cfg, appCfg, registry)
		outcomes, err := inst.Start(ctx)
		if err != nil {
			return nil, fmt.Errorf("start application %s: %w", appCfg.Name, err)
		}
		result.Start = append(result.Start, outcomes...)
		instances[appCfg.Name] = inst
	}

	groups := make(map[string][]int)
	var order []string
	for i, raw := range script.Events {
		key := raw.Application + "/" + raw.Stream
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, key := range order {
		indexes := groups[key]
		g.Go(func() error {
			for _, i := range indexes {
				raw := script.Events[i]
				step := replayStep{Event: raw}
				phase, _ := bus.ParsePhase(raw.Phase)
				inst, ok := instances[raw.Application]
				if !ok {
					step.Outcome = engine.Outcome{Stream: raw.Stream, Action: engine.ActionNone, Reason: "unknown application"}
					step.Err = fmt.Errorf("%w: %s", app.ErrUnknownApplication, raw.Application)
				} else {
					ev := bus.NewStreamEvent(raw.Application, raw.Stream, phase, raw.Transcoder)
					step.Outcome, step.Err = inst.Handle(bus.WithRequestID(gctx, ev.RequestID), ev)
				}
				result.Steps[i] = step
			}
			return gctx.Err()
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Recorders = registry.Snapshot()
	return result, nil
}

func printReplay(result *replayResult) {
	if len(result.Start) > 0 {
		fmt.Println("Application start")
		for _, out := range result.Start {
			target := out.Stream
			if target == "" {
				target = "(all streams)"
			}
			fmt.Printf("  %s %s: %s\n", out.Action, target, out.Reason)
		}
		fmt.Println()
	}

	rows := make([][]string, 0, len(result.Steps))
	for i, step := range result.Steps {
		reason := step.Outcome.Reason
		if step.Err != nil {
			reason = "error: " + step.Err.Error()
		}
		rows = append(rows, []string{
			strconv.Itoa(i + 1),
			step.Event.Application,
			step.Event.Stream,
			step.Event.Phase,
			string(step.Outcome.Action),
			reason,
		})
	}
	printTable("Replayed Events", []column{
		{"#", 4},
		{"APPLICATION", 14},
		{"STREAM", 20},
		{"PHASE", 10},
		{"ACTION", 8},
		{"REASON", 32},
	}, rows, func(row []string, col int) lipgloss.TerminalColor {
		if col != 4 {
			return nil
		}
		switch engine.Action(row[4]) {
		case engine.ActionStart:
			return recordColor
		case engine.ActionNone:
			return skipColor
		}
		return warningColor
	})

	fmt.Println("Recorders after replay")
	if len(result.Recorders) == 0 {
		fmt.Println("  none")
		return
	}
	for _, info := range result.Recorders {
		fmt.Printf("  %s/%s: %s\n", info.Application, info.Stream, info.State)
	}
}
