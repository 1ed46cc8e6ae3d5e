package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/MEKXH/autorecord/internal/config"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize AutoRecord configuration",
		RunE:  runInit,
	}
}

func runInit(cmd *cobra.Command, args []string) error {
	configPath := activeConfigPath()

	if _, err := os.Stat(configPath); err == nil {
		fmt.Printf("Config already exists: %s\n", configPath)
		return nil
	}

	cfg := config.DefaultConfig()

	dirs := []string{
		filepath.Dir(configPath),
		cfg.State.Dir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := config.SaveTo(configPath, cfg); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Printf("AutoRecord initialized!\n")
	fmt.Printf("Config: %s\n", configPath)
	fmt.Printf("State: %s\n", cfg.State.Dir)
	fmt.Printf("\nNext steps:\n")
	fmt.Printf("1. Edit %s to set record_type and stream_names per application\n", configPath)
	fmt.Printf("2. Run 'autorecord check <application> <stream>' to try the policy\n")
	fmt.Printf("3. Run 'autorecord run' and point the streaming host at http://%s:%d/events\n", cfg.Gateway.Host, cfg.Gateway.Port)

	return nil
}
