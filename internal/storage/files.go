package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"feed-reconciliation-service/pkg/errors"
	"feed-reconciliation-service/pkg/logger"
)

// FileStore resolves the opaque file references on a reconciliation record
// into feed bytes. Fetch failures are File-category (retryable) errors,
// distinct from parse failures: a blob that is not retrievable yet may
// arrive later.
type FileStore interface {
	FetchBankFile(ctx context.Context, ref string) ([]byte, error)
	FetchProcessorFile(ctx context.Context, ref string) ([]byte, error)
	BothFilesPresent(rec *Reconciliation) bool
}

// LocalFileStore serves feed files from a directory, with refs interpreted
// as paths relative to the root.
type LocalFileStore struct {
	root   string
	logger logger.Logger
}

// NewLocalFileStore creates a file store rooted at dir.
func NewLocalFileStore(dir string) (*LocalFileStore, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.FileError(errors.CodeFileNotFound, dir, err).
			WithSuggestion("create the feed directory before starting the service")
	}
	if !info.IsDir() {
		return nil, errors.FileError(errors.CodeFileUnreadable, dir, fmt.Errorf("not a directory"))
	}

	return &LocalFileStore{
		root:   dir,
		logger: logger.GetGlobalLogger().WithComponent("file_store"),
	}, nil
}

// FetchBankFile reads the bank feed bytes for ref.
func (fs *LocalFileStore) FetchBankFile(ctx context.Context, ref string) ([]byte, error) {
	return fs.fetch(ctx, ref)
}

// FetchProcessorFile reads the processor feed bytes for ref.
func (fs *LocalFileStore) FetchProcessorFile(ctx context.Context, ref string) ([]byte, error) {
	return fs.fetch(ctx, ref)
}

// BothFilesPresent reports whether the record carries both file references.
// Presence of the reference is the eligibility signal; whether the bytes
// are retrievable yet is the fetch path's concern.
func (fs *LocalFileStore) BothFilesPresent(rec *Reconciliation) bool {
	return rec.FileRefsPresent()
}

func (fs *LocalFileStore) fetch(ctx context.Context, ref string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.FileError(errors.CodeFileUnreadable, ref, err)
	}

	path, err := fs.resolve(ref)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.FileError(errors.CodeFileNotFound, ref, err).
				WithSuggestion("the feed file may not have been uploaded yet")
		}
		return nil, errors.FileError(errors.CodeFileUnreadable, ref, err)
	}

	fs.logger.WithFields(logger.Fields{"ref": ref, "bytes": len(data)}).Debug("Fetched feed file")
	return data, nil
}

// resolve joins ref under the root and rejects refs escaping it.
func (fs *LocalFileStore) resolve(ref string) (string, error) {
	if strings.TrimSpace(ref) == "" {
		return "", errors.FileError(errors.CodeFileNotFound, ref, fmt.Errorf("empty file reference"))
	}

	path := filepath.Join(fs.root, filepath.Clean("/"+ref))
	if !strings.HasPrefix(path, filepath.Clean(fs.root)+string(os.PathSeparator)) {
		return "", errors.FileError(errors.CodeFileUnreadable, ref, fmt.Errorf("reference escapes the feed directory"))
	}
	return path, nil
}
