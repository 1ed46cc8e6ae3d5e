package commands

import (
	"strings"

	"github.com/MEKXH/autorecord/internal/config"
	"github.com/spf13/cobra"
)

var (
	logLevelOverride   string
	configPathOverride string
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autorecord",
		Short: "AutoRecord - stream recording policy engine",
		Long: `AutoRecord decides which live streams get recorded. It receives publish and
unpublish events from the streaming host and starts or stops recorders
according to each application's recording policy.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "init" || cmd.Name() == "version" {
				return configureLogger(config.DefaultConfig(), logLevelOverride)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return configureLogger(cfg, logLevelOverride)
		},
	}

	cmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override log level (debug|info|warn|error)")
	cmd.PersistentFlags().StringVar(&configPathOverride, "config", "", "Config file path (default ~/.autorecord/config.json)")

	cmd.AddCommand(
		NewInitCmd(),
		NewRunCmd(),
		NewStatusCmd(),
		NewCheckCmd(),
		NewReplayCmd(),
		NewVersionCmd(),
	)

	return cmd
}

func activeConfigPath() string {
	if p := strings.TrimSpace(configPathOverride); p != "" {
		return p
	}
	return config.ConfigPath()
}

func loadConfig() (*config.Config, error) {
	return config.LoadFrom(activeConfigPath())
}
