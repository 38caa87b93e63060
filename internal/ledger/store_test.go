package ledger_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"pendant/internal/ledger"
	"pendant/internal/testsupport"
)

func TestTryClaimLifecycle(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if _, ok, err := store.Lookup(ctx, "id-1"); err != nil || ok {
		t.Fatalf("expected no entry, ok=%v err=%v", ok, err)
	}

	claimed, err := store.TryClaim(ctx, "id-1", "/media/usb/RECORD/REC1.WAV")
	if err != nil || !claimed {
		t.Fatalf("expected first claim to succeed, claimed=%v err=%v", claimed, err)
	}
	claimed, err = store.TryClaim(ctx, "id-1", "/media/usb/RECORD/REC1.WAV")
	if err != nil || claimed {
		t.Fatalf("expected held entry to refuse claim, claimed=%v err=%v", claimed, err)
	}

	if err := store.Release(ctx, "id-1", "transcription service unavailable"); err != nil {
		t.Fatalf("Release: %v", err)
	}
	status, ok, err := store.Lookup(ctx, "id-1")
	if err != nil || !ok || status != ledger.StatusPending {
		t.Fatalf("expected PENDING after release, got %s ok=%v err=%v", status, ok, err)
	}
	claimed, err = store.TryClaim(ctx, "id-1", "/run/media/other/RECORD/REC1.WAV")
	if err != nil || !claimed {
		t.Fatalf("expected released entry to be claimable, claimed=%v err=%v", claimed, err)
	}

	if err := store.MarkDone(ctx, "id-1"); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
	claimed, err = store.TryClaim(ctx, "id-1", "")
	if err != nil || claimed {
		t.Fatalf("expected DONE entry to refuse claim, claimed=%v err=%v", claimed, err)
	}

	entry, err := store.Get(ctx, "id-1")
	if err != nil || entry == nil {
		t.Fatalf("Get: entry=%v err=%v", entry, err)
	}
	if entry.Status != ledger.StatusDone || entry.Held || entry.Attempts != 2 {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.SourcePath != "/run/media/other/RECORD/REC1.WAV" {
		t.Fatalf("expected latest source path, got %q", entry.SourcePath)
	}
	if entry.CompletedAt == nil {
		t.Fatal("expected completed_at to be set")
	}
}

func TestTerminalStatesNeverMove(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if _, err := store.TryClaim(ctx, "bad", "/x/REC.WAV"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailedPermanent(ctx, "bad", "corrupt input"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkDone(ctx, "bad"); err != nil {
		t.Fatal(err)
	}
	if err := store.Release(ctx, "bad", "late"); err != nil {
		t.Fatal(err)
	}
	entry, err := store.Get(ctx, "bad")
	if err != nil {
		t.Fatal(err)
	}
	if entry.Status != ledger.StatusFailedPermanent || entry.FailureReason != "corrupt input" {
		t.Fatalf("terminal entry changed: %+v", entry)
	}

	if _, err := store.TryClaim(ctx, "good", "/x/REC2.WAV"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkDone(ctx, "good"); err != nil {
		t.Fatal(err)
	}
	if err := store.MarkFailedPermanent(ctx, "good", "should not apply"); err != nil {
		t.Fatal(err)
	}
	if status, _, _ := store.Lookup(ctx, "good"); status != ledger.StatusDone {
		t.Fatalf("expected DONE to stick, got %s", status)
	}
}

func TestConcurrentTryClaimSingleWinner(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	const workers = 16
	var (
		wg    sync.WaitGroup
		wins  atomic.Int32
		start = make(chan struct{})
	)
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			ok, err := store.TryClaim(ctx, "shared", fmt.Sprintf("/mnt/%d/REC.WAV", i))
			if err != nil {
				errs <- err
				return
			}
			if ok {
				wins.Add(1)
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("TryClaim error: %v", err)
	}
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner, got %d", got)
	}
}

func TestConcurrentTryClaimAcrossStores(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	first, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatalf("open first: %v", err)
	}
	defer first.Close()
	second, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatalf("open second: %v", err)
	}
	defer second.Close()

	ctx := context.Background()
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		store := first
		if i%2 == 1 {
			store = second
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := store.TryClaim(ctx, "cross", "/x")
			if err != nil {
				t.Errorf("TryClaim: %v", err)
				return
			}
			if ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if got := wins.Load(); got != 1 {
		t.Fatalf("expected exactly one winner across stores, got %d", got)
	}
}

func TestOpenRecoversInterruptedEntriesOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	ctx := context.Background()

	store, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if ok, err := store.TryClaim(ctx, "crashy", "/x/REC.WAV"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if ok, err := store.TryClaim(ctx, "finished", "/x/REC2.WAV"); err != nil || !ok {
		t.Fatalf("claim: ok=%v err=%v", ok, err)
	}
	if err := store.MarkDone(ctx, "finished"); err != nil {
		t.Fatal(err)
	}
	store.Close()

	store, err = ledger.OpenPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if rec := store.Recovered(); rec.Released != 1 || rec.Failed != 0 {
		t.Fatalf("unexpected first recovery: %+v", rec)
	}
	entry, _ := store.Get(ctx, "crashy")
	if entry.Held || entry.Status != ledger.StatusPending || entry.CrashRetries != 1 {
		t.Fatalf("expected released pending entry, got %+v", entry)
	}
	if ok, err := store.TryClaim(ctx, "crashy", "/x/REC.WAV"); err != nil || !ok {
		t.Fatalf("expected re-claim after recovery: ok=%v err=%v", ok, err)
	}
	store.Close()

	store, err = ledger.OpenPath(path)
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	if rec := store.Recovered(); rec.Released != 0 || rec.Failed != 1 {
		t.Fatalf("unexpected second recovery: %+v", rec)
	}
	entry, _ = store.Get(ctx, "crashy")
	if entry.Status != ledger.StatusFailedPermanent || entry.FailureReason != ledger.InterruptedReason {
		t.Fatalf("expected repeated interruption to fail permanently, got %+v", entry)
	}
	if status, _, _ := store.Lookup(ctx, "finished"); status != ledger.StatusDone {
		t.Fatalf("DONE entry must survive restarts, got %s", status)
	}
}

func TestOpenSharedLeavesHeldEntriesAlone(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	owner := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	if claimed, err := owner.TryClaim(ctx, "held-1", "/media/usb/RECORD/a.wav"); err != nil || !claimed {
		t.Fatalf("claim: claimed=%v err=%v", claimed, err)
	}

	shared, err := ledger.OpenShared(cfg)
	if err != nil {
		t.Fatalf("OpenShared: %v", err)
	}
	defer shared.Close()

	if rec := shared.Recovered(); rec.Released != 0 || rec.Failed != 0 {
		t.Fatalf("expected no recovery, got %+v", rec)
	}
	entry, err := shared.Get(ctx, "held-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !entry.Held {
		t.Fatal("expected entry to stay held for the owning process")
	}
}

func TestManagementOperations(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)
	ctx := context.Background()

	for _, id := range []string{"aaa111", "aaa222", "bbb333", "ccc444"} {
		if _, err := store.TryClaim(ctx, id, "/x/"+id); err != nil {
			t.Fatal(err)
		}
	}
	_ = store.MarkFailedPermanent(ctx, "aaa111", "corrupt")
	_ = store.MarkFailedPermanent(ctx, "aaa222", "codec")
	_ = store.MarkDone(ctx, "bbb333")

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if stats[ledger.StatusFailedPermanent] != 2 || stats[ledger.StatusDone] != 1 || stats[ledger.StatusPending] != 1 {
		t.Fatalf("unexpected stats: %v", stats)
	}

	failed, err := store.List(ctx, ledger.StatusFailedPermanent)
	if err != nil || len(failed) != 2 {
		t.Fatalf("expected 2 failed entries, got %d err=%v", len(failed), err)
	}
	all, err := store.List(ctx)
	if err != nil || len(all) != 4 {
		t.Fatalf("expected 4 entries, got %d err=%v", len(all), err)
	}

	if _, err := store.Resolve(ctx, "aaa"); !errors.Is(err, ledger.ErrAmbiguous) {
		t.Fatalf("expected ambiguous prefix, got %v", err)
	}
	if id, err := store.Resolve(ctx, "AAA1"); err != nil || id != "aaa111" {
		t.Fatalf("expected aaa111, got %q err=%v", id, err)
	}
	if _, err := store.Resolve(ctx, "zzz"); !errors.Is(err, ledger.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	n, err := store.Retry(ctx, "aaa111", "bbb333")
	if err != nil || n != 1 {
		t.Fatalf("expected one retried entry, got %d err=%v", n, err)
	}
	if _, ok, _ := store.Lookup(ctx, "aaa111"); ok {
		t.Fatal("retried entry should be forgotten")
	}
	if status, _, _ := store.Lookup(ctx, "bbb333"); status != ledger.StatusDone {
		t.Fatal("retry must not touch DONE entries")
	}

	if removed, err := store.Remove(ctx, "ccc444"); err != nil || removed {
		t.Fatalf("held entry must not be removed, removed=%v err=%v", removed, err)
	}
	if removed, err := store.Remove(ctx, "bbb333"); err != nil || !removed {
		t.Fatalf("expected removal, removed=%v err=%v", removed, err)
	}

	n, err = store.Retry(ctx)
	if err != nil || n != 1 {
		t.Fatalf("expected remaining failed entry retried, got %d err=%v", n, err)
	}
}

func TestParseStatus(t *testing.T) {
	tests := map[string]ledger.Status{
		"pending": ledger.StatusPending,
		"DONE":    ledger.StatusDone,
		"failed":  ledger.StatusFailedPermanent,
	}
	for in, want := range tests {
		got, err := ledger.ParseStatus(in)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ledger.ParseStatus("stuck"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}
