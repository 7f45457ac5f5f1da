package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"feed-reconciliation-service/pkg/errors"
)

func newTestFileStore(t *testing.T) (*LocalFileStore, string) {
	t.Helper()
	dir := t.TempDir()
	fs, err := NewLocalFileStore(dir)
	if err != nil {
		t.Fatalf("Expected file store to be created, got %v", err)
	}
	return fs, dir
}

func TestLocalFileStore_Fetch(t *testing.T) {
	fs, dir := newTestFileStore(t)

	content := []byte("transaction_id,amount,status,date,description\n")
	if err := os.WriteFile(filepath.Join(dir, "bank.csv"), content, 0644); err != nil {
		t.Fatal(err)
	}

	data, err := fs.FetchBankFile(context.Background(), "bank.csv")
	if err != nil {
		t.Fatalf("Expected fetch to succeed, got %v", err)
	}
	if string(data) != string(content) {
		t.Error("Expected the file bytes back")
	}
}

func TestLocalFileStore_FetchSubdirectory(t *testing.T) {
	fs, dir := newTestFileStore(t)

	sub := filepath.Join(dir, "feeds")
	os.MkdirAll(sub, 0755)
	os.WriteFile(filepath.Join(sub, "proc.json"), []byte("[]"), 0644)

	data, err := fs.FetchProcessorFile(context.Background(), "feeds/proc.json")
	if err != nil {
		t.Fatalf("Expected fetch from a subdirectory to succeed, got %v", err)
	}
	if string(data) != "[]" {
		t.Error("Expected the file bytes back")
	}
}

func TestLocalFileStore_MissingFileIsRetryable(t *testing.T) {
	fs, _ := newTestFileStore(t)

	_, err := fs.FetchBankFile(context.Background(), "not-there.csv")
	if err == nil {
		t.Fatal("Expected fetch of a missing file to fail")
	}
	if !errors.IsRetryable(err) {
		t.Error("Expected a missing feed file to be a retryable error")
	}

	recErr, _ := errors.AsReconcilerError(err)
	if recErr == nil || recErr.Code != errors.CodeFileNotFound {
		t.Errorf("Expected file-not-found code, got %v", err)
	}
}

func TestLocalFileStore_RejectsEscapingRefs(t *testing.T) {
	fs, _ := newTestFileStore(t)

	for _, ref := range []string{"", "   ", "../outside.csv", "../../etc/passwd"} {
		if _, err := fs.FetchBankFile(context.Background(), ref); err == nil {
			t.Errorf("Expected ref %q to be rejected", ref)
		}
	}
}

func TestLocalFileStore_CancelledContext(t *testing.T) {
	fs, dir := newTestFileStore(t)
	os.WriteFile(filepath.Join(dir, "bank.csv"), []byte("x"), 0644)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := fs.FetchBankFile(ctx, "bank.csv"); err == nil {
		t.Error("Expected fetch with a cancelled context to fail")
	}
}

func TestNewLocalFileStore_MissingDir(t *testing.T) {
	if _, err := NewLocalFileStore("/definitely/not/a/dir"); err == nil {
		t.Error("Expected a missing root directory to be rejected")
	}
}

func TestBothFilesPresent(t *testing.T) {
	fs, _ := newTestFileStore(t)

	rec := &Reconciliation{BankFileRef: "a.csv", ProcessorFileRef: "b.json"}
	if !fs.BothFilesPresent(rec) {
		t.Error("Expected both refs to be reported present")
	}

	rec.ProcessorFileRef = ""
	if fs.BothFilesPresent(rec) {
		t.Error("Expected a missing ref to be reported absent")
	}
}
