// Package artifacts stores uploaded document files behind an opaque
// storage handle. MedicalDocument.FilePath holds whatever reference Put
// returns; nothing else in the system interprets it.
package artifacts

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// Store is the file-storage contract the upload path and the ingestion
// pipeline share.
type Store interface {
	// Put persists the file and returns its opaque storage handle.
	Put(ctx context.Context, id, filename string, data io.Reader) (string, error)
	// Open reads a previously stored file by its handle.
	Open(ctx context.Context, handle string) (io.ReadCloser, error)
	// Remove deletes a stored file. Removing a missing file is not an error.
	Remove(ctx context.Context, handle string) error
}

// LocalStore keeps files on the local filesystem under a base directory,
// sharded by upload date so a long-lived deployment never accumulates one
// giant flat directory.
type LocalStore struct {
	basePath string
	now      func() time.Time
}

// NewLocalStore creates the base directory and returns a store rooted there.
func NewLocalStore(basePath string) (*LocalStore, error) {
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("artifacts: create base directory: %w", err)
	}
	return &LocalStore{basePath: basePath, now: time.Now}, nil
}

// Put writes the file under base/YYYY/MM/DD/<id><ext>, going through a
// temp file and an atomic rename so a crash mid-write never leaves a
// half-written file at the final path.
func (s *LocalStore) Put(ctx context.Context, id, filename string, data io.Reader) (string, error) {
	now := s.now().UTC()
	dir := filepath.Join(s.basePath,
		fmt.Sprintf("%04d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("artifacts: create shard directory: %w", err)
	}

	finalPath := filepath.Join(dir, id+filepath.Ext(filename))
	tmpPath := finalPath + ".tmp"

	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("artifacts: create temp file: %w", err)
	}
	if _, err := io.Copy(f, data); err != nil {
		f.Close()
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifacts: write file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifacts: close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return "", fmt.Errorf("artifacts: rename into place: %w", err)
	}

	return finalPath, nil
}

// Open reads a stored file by the handle Put returned.
func (s *LocalStore) Open(ctx context.Context, handle string) (io.ReadCloser, error) {
	f, err := os.Open(handle)
	if err != nil {
		return nil, fmt.Errorf("artifacts: open file: %w", err)
	}
	return f, nil
}

// Remove deletes a stored file. A missing file is treated as already
// removed.
func (s *LocalStore) Remove(ctx context.Context, handle string) error {
	if err := os.Remove(handle); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("artifacts: remove file: %w", err)
	}
	return nil
}
