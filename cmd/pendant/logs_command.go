package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pendant/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print the daemon's current log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := filepath.Join(cfg.Paths.LogDir, "pendant.log")
			tail, offset, err := logs.Last(path, lines)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if tail == nil && offset == 0 && !follow {
				fmt.Fprintf(out, "No daemon log at %s\n", path)
				return nil
			}
			for _, line := range tail {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			err = logs.Follow(runCtx, path, offset, 250*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
			if runCtx.Err() != nil {
				return nil
			}
			return err
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to print")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	return cmd
}
