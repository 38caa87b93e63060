// Command pendantd watches for the pendant recorder and turns its recordings
// into Obsidian notes until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"pendant/internal/config"
	"pendant/internal/daemonrun"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string
	var logLevel string
	var development bool

	cmd := &cobra.Command{
		Use:           "pendantd",
		Short:         "Pendant recorder daemon",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, _, err := config.Load(strings.TrimSpace(configPath))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			return daemonrun.Run(cmd.Context(), cfg, daemonrun.Options{
				LogLevel:    strings.TrimSpace(logLevel),
				Development: development,
			})
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Configuration file path")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&development, "development", false, "Include source locations in log output")
	return cmd
}
