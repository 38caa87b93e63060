package workflow

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"pendant/internal/logging"
	"pendant/internal/pipeline"
	"pendant/internal/scanner"
	"pendant/internal/watcher"
)

// OnceHooks reports progress of ScanOnce.
type OnceHooks struct {
	// Claimed is called once, after every candidate was offered to the ledger.
	Claimed func(total int)
	// Finished is called after each claimed recording reaches an outcome.
	Finished func(pipeline.Outcome)
}

// OnceReport summarizes a one-shot scan.
type OnceReport struct {
	Scan     scanner.Result
	Claimed  int
	Handled  int
	Outcomes []pipeline.Outcome
}

// ScanOnce scans volume a single time and processes every recording the
// ledger lets it claim, using the configured worker count. It returns when
// each claimed recording has an outcome recorded in the ledger. It must not
// be called while Run is active on the same Orchestrator.
func (o *Orchestrator) ScanOnce(ctx context.Context, volume watcher.Volume, hooks OnceHooks) (OnceReport, error) {
	if o.deps.Scanner == nil || o.deps.Pipeline == nil || o.deps.Ledger == nil {
		return OnceReport{}, errors.New("orchestrator dependencies incomplete")
	}
	logger := o.logger.With(logging.String(logging.FieldDevice, volume.DeviceID))

	result, err := o.deps.Scanner.Scan(ctx, volume)
	if err != nil {
		return OnceReport{Scan: result}, err
	}
	report := OnceReport{Scan: result}

	var claimed []scanner.Candidate
	for _, candidate := range result.Candidates {
		ok, err := o.deps.Ledger.TryClaim(ctx, candidate.Identity, candidate.Path)
		if err != nil {
			return report, err
		}
		if !ok {
			report.Handled++
			continue
		}
		claimed = append(claimed, candidate)
	}
	report.Claimed = len(claimed)
	o.counters.claimed.Add(int64(len(claimed)))
	if hooks.Claimed != nil {
		hooks.Claimed(len(claimed))
	}

	outcomes := make(chan pipeline.Outcome, len(claimed))
	jobs := pool.New().WithMaxGoroutines(o.opts.Workers)
	for _, candidate := range claimed {
		job := pipeline.Job{
			Candidate: candidate,
			Volume:    volume,
			RequestID: uuid.NewString(),
		}
		o.inFlight.Add(1)
		jobs.Go(func() {
			defer o.inFlight.Add(-1)
			outcomes <- o.runJob(ctx, job)
		})
	}

	done := make(chan struct{})
	go func() {
		jobs.Wait()
		close(done)
	}()
	for range claimed {
		out := <-outcomes
		report.Outcomes = append(report.Outcomes, out)
		if hooks.Finished != nil {
			hooks.Finished(out)
		}
	}
	<-done

	logger.Info("one-shot scan finished",
		logging.String(logging.FieldEventType, "scan_once_finished"),
		logging.Int("candidates", len(result.Candidates)),
		logging.Int("claimed", report.Claimed),
		logging.Int("already_handled", report.Handled),
	)
	return report, nil
}
