package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"pendant/internal/config"
	"pendant/internal/daemon"
	"pendant/internal/daemonrun"
	"pendant/internal/ledger"
	"pendant/internal/logging"
	"pendant/internal/notifications"
	"pendant/internal/pipeline"
	"pendant/internal/scanner"
	"pendant/internal/watcher"
	"pendant/internal/workflow"
)

func newScanCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var verbose bool

	cmd := &cobra.Command{
		Use:   "scan <dir>",
		Short: "Process the recordings on a recorder once",
		Long: "Scan a mounted recorder and process every recording the ledger has not seen.\n" +
			"<dir> may be the recorder's mount point or its recordings folder.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			volume, err := recorderVolume(cfg, args[0])
			if err != nil {
				return err
			}

			runCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if dryRun {
				return runScanPreview(runCtx, cmd, ctx, cfg, volume)
			}
			return runScanOnce(runCtx, cmd, cfg, volume, verbose)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "List what would be processed without converting anything")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Log pipeline progress to stderr")
	return cmd
}

// recorderVolume accepts either a mount point or the recordings folder itself.
func recorderVolume(cfg *config.Config, dir string) (watcher.Volume, error) {
	mount := filepath.Clean(strings.TrimSpace(dir))
	if strings.EqualFold(filepath.Base(mount), cfg.Scanner.TargetFolder) {
		mount = filepath.Dir(mount)
	}
	return watcher.ManualVolume(mount)
}

func runScanPreview(runCtx context.Context, cmd *cobra.Command, ctx *commandContext, cfg *config.Config, volume watcher.Volume) error {
	result, err := scanner.NewFromConfig(cfg, logging.NewNop()).Scan(runCtx, volume)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if result.Folder == "" {
		fmt.Fprintf(out, "No %s folder under %s\n", cfg.Scanner.TargetFolder, volume.MountPoint)
		return nil
	}

	return ctx.withLedger(func(store *ledger.Store, _ bool) error {
		rows := make([][]string, 0, len(result.Candidates)+len(result.Unstable)+len(result.Skipped))
		pending := 0
		for _, c := range result.Candidates {
			action := "process"
			status, found, err := store.Lookup(runCtx, c.Identity)
			if err != nil {
				return err
			}
			if found {
				action = "skip (" + strings.ToLower(string(status)) + ")"
			} else {
				pending++
			}
			rows = append(rows, []string{
				c.Name,
				humanize.Bytes(uint64(c.Size)),
				humanize.Time(c.ModTime),
				shortID(c.Identity),
				action,
			})
		}
		for _, name := range result.Unstable {
			rows = append(rows, []string{name, "", "", "", "wait (still being written)"})
		}
		for _, name := range result.Skipped {
			rows = append(rows, []string{name, "", "", "", "skip (unreadable)"})
		}
		if len(rows) == 0 {
			fmt.Fprintf(out, "No recordings in %s\n", result.Folder)
			return nil
		}
		fmt.Fprintln(out, renderTable(
			[]string{"File", "Size", "Modified", "ID", "Action"},
			rows,
			[]columnAlignment{alignLeft, alignRight, alignLeft, alignLeft, alignLeft},
			fmt.Sprintf("%d to process in %s", pending, result.Folder),
		))
		return nil
	})
}

func runScanOnce(runCtx context.Context, cmd *cobra.Command, cfg *config.Config, volume watcher.Volume, verbose bool) error {
	lock, err := daemon.AcquireLock(cfg.LockPath())
	if errors.Is(err, daemon.ErrLocked) {
		return errors.New("pendantd is running and processes attached recorders itself; stop it to scan manually")
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	store, err := ledger.Open(cfg)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer store.Close()

	level := "warn"
	if verbose {
		level = cfg.Logging.Level
	}
	logger, err := logging.New(logging.Options{
		Level:       level,
		Format:      cfg.Logging.Format,
		OutputPaths: []string{"stderr"},
	})
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	pipe, err := daemonrun.NewPipeline(cfg, logger)
	if err != nil {
		return err
	}
	orchestrator := workflow.New(workflow.Deps{
		Scanner:  scanner.NewFromConfig(cfg, logger),
		Pipeline: pipe,
		Ledger:   store,
		Notifier: notifications.NewService(cfg),
		Logger:   logger,
	}, workflow.OptionsFromConfig(cfg))

	errOut := cmd.ErrOrStderr()
	showBar := !verbose && shouldColorize(errOut)
	var bar *progressbar.ProgressBar
	hooks := workflow.OnceHooks{
		Claimed: func(total int) {
			if !showBar || total == 0 {
				return
			}
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetWriter(errOut),
				progressbar.OptionSetDescription("Processing"),
				progressbar.OptionSetWidth(40),
				progressbar.OptionShowCount(),
				progressbar.OptionShowIts(),
				progressbar.OptionSetItsString("files"),
				progressbar.OptionThrottle(200*time.Millisecond),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetRenderBlankState(true),
			)
		},
		Finished: func(out pipeline.Outcome) {
			if bar != nil {
				_ = bar.Add(1)
				return
			}
			if !verbose {
				fmt.Fprintf(errOut, "%s: %s\n", out.Job.Candidate.Name, outcomeLabel(out))
			}
		},
	}

	report, err := orchestrator.ScanOnce(runCtx, volume, hooks)
	if bar != nil {
		_ = bar.Finish()
	}
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if report.Scan.Folder == "" {
		fmt.Fprintf(out, "No %s folder under %s\n", cfg.Scanner.TargetFolder, volume.MountPoint)
		return nil
	}
	if len(report.Outcomes) > 0 {
		fmt.Fprintln(out, renderOutcomes(report.Outcomes))
	}
	fmt.Fprintln(out, summarizeReport(report))
	return nil
}

func renderOutcomes(outcomes []pipeline.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		detail := o.Reason
		if o.Kind == pipeline.OutcomeDone {
			detail = filepath.Base(o.Job.NotePath)
			if !o.Job.TranscriptAvailable {
				detail += " (placeholder)"
			}
		}
		rows = append(rows, []string{o.Job.Candidate.Name, outcomeLabel(o), o.Stage, detail})
	}
	return renderTable([]string{"File", "Outcome", "Stage", "Detail"}, rows, nil, "")
}

func outcomeLabel(o pipeline.Outcome) string {
	switch o.Kind {
	case pipeline.OutcomeDone:
		return "done"
	case pipeline.OutcomeFailedPermanent:
		return "failed"
	case pipeline.OutcomeTransient:
		return "retry later"
	case pipeline.OutcomeAbandoned:
		return "changed during processing"
	default:
		return string(o.Kind)
	}
}

func summarizeReport(report workflow.OnceReport) string {
	counts := map[pipeline.OutcomeKind]int{}
	for _, o := range report.Outcomes {
		counts[o.Kind]++
	}
	parts := []string{
		fmt.Sprintf("%d done", counts[pipeline.OutcomeDone]),
		fmt.Sprintf("%d failed", counts[pipeline.OutcomeFailedPermanent]),
	}
	if n := counts[pipeline.OutcomeTransient] + counts[pipeline.OutcomeAbandoned]; n > 0 {
		parts = append(parts, fmt.Sprintf("%d left for the next scan", n))
	}
	if report.Handled > 0 {
		parts = append(parts, fmt.Sprintf("%d already handled", report.Handled))
	}
	if n := len(report.Scan.Unstable); n > 0 {
		parts = append(parts, fmt.Sprintf("%d still being written", n))
	}
	return "Scan finished: " + strings.Join(parts, ", ")
}
