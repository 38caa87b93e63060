package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"pendant/internal/config"
	"pendant/internal/daemon"
	"pendant/internal/ledger"
	"pendant/internal/logging"
	"pendant/internal/preflight"
	"pendant/internal/scanner"
	"pendant/internal/watcher"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, dependency, recorder, and ledger status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			stdout := cmd.OutOrStdout()
			colorize := shouldColorize(stdout)

			writeSection(stdout, "Daemon", colorize)
			fmt.Fprintln(stdout, daemonStatusLine(cfg, colorize))
			fmt.Fprintln(stdout, renderStatusLine("Transcription", statusInfo, cfg.Transcription.Provider, colorize))
			fmt.Fprintln(stdout)

			writeSection(stdout, "System Checks", colorize)
			for _, result := range preflight.RunAll(cmd.Context(), cfg) {
				fmt.Fprintln(stdout, preflightLine(result, colorize))
			}
			for _, status := range preflight.CheckSystemDeps(cfg) {
				fmt.Fprintln(stdout, dependencyLine(status, colorize))
			}
			fmt.Fprintln(stdout)

			writeSection(stdout, "Recorders", colorize)
			finder := scanner.NewFromConfig(cfg, logging.NewNop())
			probes, err := preflight.ProbeRecorders(cmd.Context(), watcher.ListerFromConfig(cfg, logging.NewNop()), finder)
			switch {
			case err != nil:
				fmt.Fprintln(stdout, renderStatusLine("Volumes", statusWarn, "list failed: "+err.Error(), colorize))
			case len(probes) == 0:
				fmt.Fprintln(stdout, renderStatusLine("Volumes", statusInfo, "no removable volumes attached", colorize))
			default:
				for _, probe := range probes {
					kind := statusInfo
					if probe.HasFolder {
						kind = statusOK
					}
					fmt.Fprintln(stdout, renderStatusLine(probe.Volume.DisplayName(), kind, probe.Detail(), colorize))
				}
			}
			fmt.Fprintln(stdout)

			writeSection(stdout, "Ledger", colorize)
			return ctx.withLedger(func(store *ledger.Store, _ bool) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				for _, status := range ledger.AllStatuses() {
					fmt.Fprintln(stdout, renderStatusLine(string(status), ledgerStatusKind(status, stats[status]), fmt.Sprint(stats[status]), colorize))
				}
				return nil
			})
		},
	}
}

func writeSection(w io.Writer, title string, colorize bool) {
	for _, line := range renderSectionHeader(title, colorize) {
		fmt.Fprintln(w, line)
	}
}

func daemonStatusLine(cfg *config.Config, colorize bool) string {
	held, err := daemon.LockHeld(cfg.LockPath())
	if err != nil {
		return renderStatusLine("pendantd", statusWarn, "lock check failed: "+err.Error(), colorize)
	}
	if !held {
		return renderStatusLine("pendantd", statusWarn, "not running", colorize)
	}
	if pid, err := daemon.ReadPID(cfg.PIDPath()); err == nil {
		return renderStatusLine("pendantd", statusOK, fmt.Sprintf("running (pid %d)", pid), colorize)
	}
	return renderStatusLine("pendantd", statusOK, "running", colorize)
}

func ledgerStatusKind(status ledger.Status, count int) statusKind {
	if status == ledger.StatusFailedPermanent && count > 0 {
		return statusWarn
	}
	return statusInfo
}
