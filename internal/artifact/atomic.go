package artifact

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

// WriteFileAtomic writes data to path so that readers see either the old
// content or the new content, never a partial file. The data is written to
// a temp file in the same directory, synced, then renamed over path.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmpPath, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// writeTemp writes data to a synced temp file next to path and returns its name.
func writeTemp(path string, data []byte, perm os.FileMode) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		return "", fmt.Errorf("failed to set permissions: %w", err)
	}

	success = true
	return tmpPath, nil
}

// Batch publishes several files together. Every file is fully written to a
// temp file by Stage before Commit renames any of them into place.
type Batch struct {
	staged []stagedFile
	done   bool
}

type stagedFile struct {
	tmp, final string
	// backup is a hard link to the file final replaced, "" if there was none.
	backup string
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{}
}

// Stage writes data to a temp file destined for path.
func (b *Batch) Stage(path string, data []byte, perm os.FileMode) error {
	if b.done {
		return errors.New("batch already committed or aborted")
	}
	tmp, err := writeTemp(path, data, perm)
	if err != nil {
		return err
	}
	b.staged = append(b.staged, stagedFile{tmp: tmp, final: path})
	return nil
}

// Commit renames every staged file into place in Stage order. If any rename
// fails, the files already renamed are restored to their previous content
// (or removed when they did not exist) and every temp file is removed.
func (b *Batch) Commit() error {
	if b.done {
		return errors.New("batch already committed or aborted")
	}
	b.done = true

	for i := range b.staged {
		f := &b.staged[i]
		if err := f.publish(); err != nil {
			b.rollback(i)
			return fmt.Errorf("failed to publish %s: %w", filepath.Base(f.final), err)
		}
	}
	for _, f := range b.staged {
		if f.backup != "" {
			_ = os.Remove(f.backup)
		}
	}
	return nil
}

// publish links the current file at final to a backup, then renames the
// temp file over it.
func (f *stagedFile) publish() error {
	backup := filepath.Join(filepath.Dir(f.final), "."+filepath.Base(f.final)+".bak")
	_ = os.Remove(backup)
	if err := os.Link(f.final, backup); err == nil {
		f.backup = backup
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to back up previous file: %w", err)
	}
	return os.Rename(f.tmp, f.final)
}

// rollback undoes the renames before staged[failed] and discards the rest.
func (b *Batch) rollback(failed int) {
	for _, f := range b.staged[:failed] {
		if f.backup != "" {
			_ = os.Rename(f.backup, f.final)
		} else {
			_ = os.Remove(f.final)
		}
	}
	for _, f := range b.staged[failed:] {
		_ = os.Remove(f.tmp)
		if f.backup != "" {
			_ = os.Remove(f.backup)
		}
	}
}

// Abort removes every staged temp file. It is safe to call after Commit.
func (b *Batch) Abort() {
	if b.done {
		return
	}
	b.done = true
	for _, f := range b.staged {
		_ = os.Remove(f.tmp)
	}
}

// Paths returns the final paths of the staged files.
func (b *Batch) Paths() []string {
	out := make([]string, len(b.staged))
	for i, f := range b.staged {
		out[i] = f.final
	}
	return out
}
