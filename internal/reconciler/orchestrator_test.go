package reconciler

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"feed-reconciliation-service/internal/storage"
	"feed-reconciliation-service/pkg/errors"
)

const testBankFeed = `transaction_id,amount,status,date,description
TX001,100.50,completed,2024-01-15,card payment
TX002,250.00,completed,2024-01-15,transfer
TX003,75.25,pending,2024-01-16,refund
TX004,12.40,completed,2024-01-17,fee
`

const testProcessorFeed = `[
	{"id": "TX001", "amount": 100.50, "status": "completed", "date": "2024-01-15"},
	{"id": "TX002", "amount": 250.00, "status": "completed", "date": "2024-01-15"},
	{"id": "TX003", "amount": 75.50, "status": "pending", "date": "2024-01-16"},
	{"id": "TX005", "amount": 60.00, "status": "completed", "date": "2024-01-17"}
]`

type fixture struct {
	store        *storage.Store
	orchestrator *Orchestrator
	feedsDir     string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Expected store to open, got %v", err)
	}
	t.Cleanup(func() { store.Close() })

	feedsDir := t.TempDir()
	files, err := storage.NewLocalFileStore(feedsDir)
	if err != nil {
		t.Fatalf("Expected file store to be created, got %v", err)
	}

	orchestrator, err := NewOrchestrator(store, files, nil)
	if err != nil {
		t.Fatalf("Expected orchestrator to be created, got %v", err)
	}

	return &fixture{store: store, orchestrator: orchestrator, feedsDir: feedsDir}
}

func (f *fixture) writeFeed(t *testing.T, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(f.feedsDir, name), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) createRecord(t *testing.T, id, bankRef, processorRef string) {
	t.Helper()
	err := f.store.Create(&storage.Reconciliation{
		ID:               id,
		BankFileRef:      bankRef,
		ProcessorFileRef: processorRef,
	})
	if err != nil {
		t.Fatalf("Expected create to succeed, got %v", err)
	}
}

func TestInvoke_Completes(t *testing.T) {
	f := newFixture(t)
	f.writeFeed(t, "bank.csv", testBankFeed)
	f.writeFeed(t, "proc.json", testProcessorFeed)
	f.createRecord(t, "run-1", "bank.csv", "proc.json")

	if err := f.orchestrator.Invoke(context.Background(), "run-1"); err != nil {
		t.Fatalf("Expected invoke to succeed, got %v", err)
	}

	rec, err := f.store.Get("run-1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Status != storage.StatusCompleted {
		t.Fatalf("Expected status completed, got %s", rec.Status)
	}
	if rec.MatchedCount != 2 || rec.BankOnlyCount != 1 || rec.ProcessorOnlyCount != 1 || rec.DiscrepancyCount != 1 {
		t.Errorf("Expected counts 2/1/1/1, got %d/%d/%d/%d",
			rec.MatchedCount, rec.BankOnlyCount, rec.ProcessorOnlyCount, rec.DiscrepancyCount)
	}
	if rec.ProcessedAt == nil {
		t.Error("Expected processed_at to be set")
	}
	if rec.ErrorMessage != nil {
		t.Error("Expected no error message on a completed record")
	}

	if rec.Report == nil {
		t.Fatal("Expected a persisted report artifact")
	}
	var report map[string]interface{}
	if err := json.Unmarshal([]byte(*rec.Report), &report); err != nil {
		t.Fatalf("Expected the report to be valid JSON, got %v", err)
	}
	if _, ok := report["summary"]; !ok {
		t.Error("Expected the report to carry a summary")
	}
}

func TestInvoke_ParseFailure(t *testing.T) {
	f := newFixture(t)
	f.writeFeed(t, "bank.csv", "this is not,a valid\nfeed")
	f.writeFeed(t, "proc.json", testProcessorFeed)
	f.createRecord(t, "run-1", "bank.csv", "proc.json")

	err := f.orchestrator.Invoke(context.Background(), "run-1")
	if err == nil {
		t.Fatal("Expected invoke to fail on an unparseable feed")
	}
	if errors.IsRetryable(err) {
		t.Error("Expected a parse failure to be permanent")
	}

	rec, _ := f.store.Get("run-1")
	if rec.Status != storage.StatusFailed {
		t.Fatalf("Expected status failed, got %s", rec.Status)
	}
	if rec.ErrorMessage == nil || *rec.ErrorMessage == "" {
		t.Error("Expected the failure message to be persisted")
	}
	if rec.Report != nil || rec.MatchedCount != 0 {
		t.Error("Expected no result fields on a failed record")
	}
}

func TestInvoke_MissingFeedFileLeavesPending(t *testing.T) {
	f := newFixture(t)
	f.writeFeed(t, "bank.csv", testBankFeed)
	f.createRecord(t, "run-1", "bank.csv", "proc.json")

	err := f.orchestrator.Invoke(context.Background(), "run-1")
	if err == nil {
		t.Fatal("Expected invoke to fail when a feed file is missing")
	}
	if !errors.IsRetryable(err) {
		t.Error("Expected a missing feed file to be retryable")
	}

	rec, _ := f.store.Get("run-1")
	if rec.Status != storage.StatusPending {
		t.Errorf("Expected record left pending for retry, got %s", rec.Status)
	}
}

func TestInvoke_NoFileRefsIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.createRecord(t, "run-1", "bank.csv", "")

	if err := f.orchestrator.Invoke(context.Background(), "run-1"); err != nil {
		t.Fatalf("Expected a record without file refs to be skipped, got %v", err)
	}

	rec, _ := f.store.Get("run-1")
	if rec.Status != storage.StatusPending {
		t.Errorf("Expected record untouched, got %s", rec.Status)
	}
}

func TestInvoke_CompletedRecordIsNoOp(t *testing.T) {
	f := newFixture(t)
	f.writeFeed(t, "bank.csv", testBankFeed)
	f.writeFeed(t, "proc.json", testProcessorFeed)
	f.createRecord(t, "run-1", "bank.csv", "proc.json")

	if err := f.orchestrator.Invoke(context.Background(), "run-1"); err != nil {
		t.Fatal(err)
	}
	first, _ := f.store.Get("run-1")

	// Re-invocation of a terminal record must change nothing.
	if err := f.orchestrator.Invoke(context.Background(), "run-1"); err != nil {
		t.Fatalf("Expected re-invocation to be a no-op, got %v", err)
	}
	second, _ := f.store.Get("run-1")

	if second.Status != storage.StatusCompleted {
		t.Errorf("Expected status to stay completed, got %s", second.Status)
	}
	if first.Report == nil || second.Report == nil || *first.Report != *second.Report {
		t.Error("Expected the persisted report to be unchanged")
	}
}

func TestInvoke_MissingRecord(t *testing.T) {
	f := newFixture(t)

	err := f.orchestrator.Invoke(context.Background(), "nope")
	if err == nil {
		t.Fatal("Expected invoke of an unknown id to fail")
	}
	if !errors.IsRetryable(err) {
		t.Error("Expected an unknown record to be retryable")
	}
}

func TestInvoke_FailureMessageNamesTheFeed(t *testing.T) {
	f := newFixture(t)
	f.writeFeed(t, "bank.csv", testBankFeed)
	f.writeFeed(t, "proc.json", `{"not": "an array"}`)
	f.createRecord(t, "run-1", "bank.csv", "proc.json")

	err := f.orchestrator.Invoke(context.Background(), "run-1")
	if err == nil {
		t.Fatal("Expected invoke to fail")
	}

	rec, _ := f.store.Get("run-1")
	if rec.ErrorMessage == nil || !strings.Contains(*rec.ErrorMessage, "processor") {
		t.Errorf("Expected the failure message to name the processor feed, got %v", rec.ErrorMessage)
	}
}

func TestNewOrchestrator_Validation(t *testing.T) {
	f := newFixture(t)

	if _, err := NewOrchestrator(nil, nil, nil); err == nil {
		t.Error("Expected a nil store to be rejected")
	}
	if _, err := NewOrchestrator(f.store, nil, nil); err == nil {
		t.Error("Expected a nil file store to be rejected")
	}
}
