package credstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// FileSlot provides atomic file-based storage with secure permissions.
// Writes use temp file + rename for crash safety.
type FileSlot struct {
	filePath string
}

// Compile-time check to ensure FileSlot implements Slot
var _ Slot = (*FileSlot)(nil)

// NewFileSlot creates a FileSlot for the given path, creating parent directories
// with 0700 permissions if they don't exist.
func NewFileSlot(filePath string) (*FileSlot, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileSlot{
		filePath: filePath,
	}, nil
}

// Get returns the file contents. Refuses files with insecure permissions.
func (f *FileSlot) Get(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	return data, err
}

// Set atomically saves the value using temp file + rename for crash safety.
// Sets file permissions to 0600 (owner read/write only). Expiry is enforced
// by Store on load, not by the file.
func (f *FileSlot) Set(ctx context.Context, data []byte, _ time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(data); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tempName, f.filePath); err != nil {
		return err
	}

	// 0600 = rw-------
	return os.Chmod(f.filePath, 0600)
}

// Delete removes the file if present.
func (f *FileSlot) Delete(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := os.Remove(f.filePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
