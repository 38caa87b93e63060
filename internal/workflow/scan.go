package workflow

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"pendant/internal/logging"
	"pendant/internal/notifications"
	"pendant/internal/pipeline"
	"pendant/internal/scanner"
	"pendant/internal/services"
)

// startScan launches a scan of st unless one is already running. A trigger
// arriving mid-scan is ignored, except a folder change (followUp), which
// queues one more scan so files written during the scan are seen.
func (o *Orchestrator) startScan(ctx context.Context, st *volumeState, jobs *pool.Pool, scans *sync.WaitGroup, followUp bool) {
	if st.ctx.Err() != nil || ctx.Err() != nil {
		return
	}
	o.mu.Lock()
	if st.scanning {
		if followUp {
			st.pending = true
		}
		o.mu.Unlock()
		o.logger.Debug("scan already running",
			logging.String(logging.FieldDevice, st.volume.DeviceID),
			logging.Bool("follow_up_queued", followUp),
		)
		return
	}
	st.scanning = true
	st.pending = false
	st.scans++
	first := st.scans == 1
	o.mu.Unlock()

	scans.Add(1)
	go func() {
		defer scans.Done()
		o.runScan(ctx, st, jobs, first)
		select {
		case o.scanDone <- st:
		case <-ctx.Done():
		}
	}()
}

// finishScan clears the scanning mark and runs a queued follow-up scan.
func (o *Orchestrator) finishScan(ctx context.Context, st *volumeState, jobs *pool.Pool, scans *sync.WaitGroup) {
	o.mu.Lock()
	st.scanning = false
	again := st.pending
	st.pending = false
	o.mu.Unlock()
	if again {
		o.startScan(ctx, st, jobs, scans, false)
	}
}

func (o *Orchestrator) runScan(ctx context.Context, st *volumeState, jobs *pool.Pool, first bool) {
	volume := st.volume
	logger := o.logger.With(logging.String(logging.FieldDevice, volume.DeviceID))

	result, err := o.deps.Scanner.Scan(st.ctx, volume)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug("scan interrupted by detach")
			return
		}
		o.setLastError(err)
		logging.WarnWithContext(logger, "volume scan failed", "scan_failed",
			logging.Error(err),
			logging.String("mount_point", volume.MountPoint),
			logging.String(logging.FieldErrorHint, "check the recorder is mounted readable"),
			logging.String(logging.FieldImpact, "recordings on this volume wait for the next rescan"),
		)
		return
	}

	claimed := 0
	for _, candidate := range result.Candidates {
		if st.ctx.Err() != nil {
			return
		}
		ok, err := o.deps.Ledger.TryClaim(ctx, candidate.Identity, candidate.Path)
		if err != nil {
			o.setLastError(err)
			logging.ErrorWithContext(logger, "ledger claim failed", "ledger_claim_failed",
				logging.String(logging.FieldIdentity, candidate.Identity),
				logging.String("file", candidate.Name),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check the ledger database is writable"),
			)
			continue
		}
		if !ok {
			logger.Debug("recording already handled",
				logging.String(logging.FieldIdentity, candidate.Identity),
				logging.String("file", candidate.Name),
			)
			continue
		}
		claimed++
		o.counters.claimed.Add(1)
		o.submit(st, jobs, candidate)
	}

	logger.Info("volume scanned",
		logging.String(logging.FieldEventType, "volume_scanned"),
		logging.Int("candidates", len(result.Candidates)),
		logging.Int("claimed", claimed),
		logging.Int("unstable", len(result.Unstable)),
		logging.Int("skipped", len(result.Skipped)),
	)
	if first && claimed > 0 {
		o.publish(ctx, notifications.EventVolumeAttached, notifications.Payload{
			"label": volume.DisplayName(),
			"count": claimed,
		})
	}
}

func (o *Orchestrator) submit(st *volumeState, jobs *pool.Pool, candidate scanner.Candidate) {
	job := pipeline.Job{
		Candidate: candidate,
		Volume:    st.volume,
		RequestID: uuid.NewString(),
	}
	o.inFlight.Add(1)
	jobs.Go(func() {
		defer o.inFlight.Add(-1)
		o.runJob(st.ctx, job)
	})
}

// runJob processes one claimed recording and records its outcome. The claim
// is always settled, even when the pipeline panics.
func (o *Orchestrator) runJob(vctx context.Context, job pipeline.Job) pipeline.Outcome {
	ledgerCtx := context.WithoutCancel(vctx)
	identity := job.Candidate.Identity

	var out pipeline.Outcome
	func() {
		defer func() {
			if r := recover(); r != nil {
				err := fmt.Errorf("pipeline panic: %v", r)
				out = pipeline.Outcome{Kind: pipeline.OutcomeTransient, Reason: err.Error(), Err: err, Job: job}
			}
		}()
		out = o.deps.Pipeline.Process(vctx, job)
	}()

	var err error
	switch out.Kind {
	case pipeline.OutcomeDone:
		o.counters.done.Add(1)
		err = o.deps.Ledger.MarkDone(ledgerCtx, identity)
		o.publish(ledgerCtx, notifications.EventNoteCreated, notifications.Payload{
			"title":       notePathTitle(out.Job.NotePath),
			"note":        out.Job.NotePath,
			"placeholder": !out.Job.TranscriptAvailable,
		})
	case pipeline.OutcomeFailedPermanent:
		o.counters.failed.Add(1)
		err = o.deps.Ledger.MarkFailedPermanent(ledgerCtx, identity, out.Reason)
		o.publish(ledgerCtx, notifications.EventRecordingFailed, notifications.Payload{
			"file":   job.Candidate.Name,
			"reason": out.Reason,
		})
	case pipeline.OutcomeAbandoned:
		o.counters.abandoned.Add(1)
		err = o.deps.Ledger.Release(ledgerCtx, identity, out.Reason)
	default:
		o.counters.transient.Add(1)
		if out.Err != nil {
			o.setLastError(out.Err)
		}
		err = o.deps.Ledger.Release(ledgerCtx, identity, out.Reason)
	}
	if err != nil {
		o.setLastError(err)
		logging.ErrorWithContext(o.logger, "ledger update failed", "ledger_update_failed",
			logging.String(logging.FieldIdentity, identity),
			logging.String("outcome", string(out.Kind)),
			logging.Error(err),
			logging.String(logging.FieldErrorHint, services.Hint(err)),
		)
	}
	return out
}

func (o *Orchestrator) publish(ctx context.Context, event notifications.Event, payload notifications.Payload) {
	if err := o.deps.Notifier.Publish(context.WithoutCancel(ctx), event, payload); err != nil {
		o.logger.Debug("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}
