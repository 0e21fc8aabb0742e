// Command gazelog records eye-tracking sessions to tab-separated logs,
// replays them, and manages the local session catalog.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teslashibe/gazelog/internal/config"
	"github.com/teslashibe/gazelog/internal/log"
)

var version = "dev"

// globals holds the flags shared by every command.
type globals struct {
	configPath string
	logLevel   string
	cfg        config.Config
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "gazelog",
		Short:         "Record, replay and catalog eye-tracking sessions",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return g.load(cmd)
		},
	}
	rootCmd.PersistentFlags().StringVar(&g.configPath, "config", config.Path(), "config file")
	rootCmd.PersistentFlags().StringVar(&g.logLevel, "log-level", "", "debug, info, warn or error (overrides config)")

	rootCmd.AddCommand(recordCmd(g))
	rootCmd.AddCommand(replayCmd(g))
	rootCmd.AddCommand(sessionsCmd(g))
	rootCmd.AddCommand(uploadCmd(g))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// load reads the config file, applies GAZELOG_* overrides and sets up logging.
func (g *globals) load(cmd *cobra.Command) error {
	cfg, err := config.LoadFile(g.configPath)
	if err != nil {
		return err
	}
	if err := config.ApplyEnv(&cfg); err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		cfg.LogLevel = g.logLevel
	}
	g.cfg = cfg
	log.Init(cfg.LogLevel)
	return nil
}
