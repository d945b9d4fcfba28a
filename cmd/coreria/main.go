// Package main is the entry point for the coreria simulation server.
// It only handles command parsing and dependency injection.
// NO simulation logic belongs here.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/MRamiBalles/coreria/internal/platform/config"
	"github.com/MRamiBalles/coreria/internal/platform/logger"
)

var (
	cfgPath string
	cfg     *config.Config
	appLog  *logger.Logger
	logFile io.Closer
)

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "coreria",
		Short:         "Fixed-tick simulation loop with a live event feed",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load(cfgPath)
			if err != nil {
				return err
			}
			appLog, logFile, err = newLogger(cfg)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logFile != nil {
				logFile.Close()
			}
		},
	}
	cmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "coreria.yaml", "path to the YAML config file")

	cmd.AddCommand(demoCmd())
	cmd.AddCommand(serveCmd())
	cmd.AddCommand(runsCmd())
	cmd.AddCommand(configCmd())
	cmd.AddCommand(agitateCmd())
	return cmd
}

// newLogger builds the process logger. A configured log file receives JSON
// lines in addition to the text output on stdout.
func newLogger(c *config.Config) (*logger.Logger, io.Closer, error) {
	opts := logger.Options{Level: c.LogLevel}
	if c.LogFile == "" {
		return logger.New(opts), nil, nil
	}
	f, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}
	opts.JSON = f
	return logger.New(opts), f, nil
}

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
