package journal

import (
	"context"
	"testing"
	"time"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRunLifecycle(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.BeginRun(ctx, "run-1", "1234@worker-a"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	if err := j.RecordItem(ctx, "run-1", "doc1", "processed", 3, 1500*time.Millisecond); err != nil {
		t.Fatalf("RecordItem() error = %v", err)
	}
	if err := j.RecordItem(ctx, "run-1", "doc2", "failed", 0, 200*time.Millisecond); err != nil {
		t.Fatalf("RecordItem() error = %v", err)
	}
	if err := j.FinishRun(ctx, "run-1", 1, 1); err != nil {
		t.Fatalf("FinishRun() error = %v", err)
	}

	runs, err := j.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("RecentRuns() len = %d, want 1", len(runs))
	}
	run := runs[0]
	if run.ID != "run-1" || run.WorkerID != "1234@worker-a" {
		t.Errorf("run = %+v", run)
	}
	if run.Processed != 1 || run.Failed != 1 {
		t.Errorf("run totals = %d/%d, want 1/1", run.Processed, run.Failed)
	}
	if run.FinishedAt.IsZero() {
		t.Error("FinishedAt not recorded")
	}

	items, err := j.RunItems(ctx, "run-1")
	if err != nil {
		t.Fatalf("RunItems() error = %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("RunItems() len = %d, want 2", len(items))
	}
	if items[0].ContentID != "doc1" || items[0].Outcome != "processed" || items[0].Pages != 3 {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[0].Elapsed != 1500*time.Millisecond {
		t.Errorf("items[0].Elapsed = %v, want 1.5s", items[0].Elapsed)
	}
}

func TestUnfinishedRun(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	if err := j.BeginRun(ctx, "run-2", "1@host"); err != nil {
		t.Fatalf("BeginRun() error = %v", err)
	}
	runs, err := j.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns() error = %v", err)
	}
	if len(runs) != 1 || !runs[0].FinishedAt.IsZero() {
		t.Errorf("runs = %+v, want one unfinished run", runs)
	}
}

func TestItemHistory(t *testing.T) {
	j := openTestJournal(t)
	ctx := context.Background()

	for i, outcome := range []string{"failed", "processed"} {
		runID := []string{"run-a", "run-b"}[i]
		if err := j.BeginRun(ctx, runID, "1@host"); err != nil {
			t.Fatal(err)
		}
		if err := j.RecordItem(ctx, runID, "doc1", outcome, i, time.Second); err != nil {
			t.Fatal(err)
		}
	}

	history, err := j.ItemHistory(ctx, "doc1", 10)
	if err != nil {
		t.Fatalf("ItemHistory() error = %v", err)
	}
	if len(history) != 2 {
		t.Fatalf("ItemHistory() len = %d, want 2", len(history))
	}
	// Newest first.
	if history[0].Outcome != "processed" || history[1].Outcome != "failed" {
		t.Errorf("history order = [%s %s], want [processed failed]", history[0].Outcome, history[1].Outcome)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	j := openTestJournal(t)
	if err := j.migrate(); err != nil {
		t.Fatalf("second migrate() error = %v", err)
	}
}
