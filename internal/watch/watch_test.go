package watch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func startWatcher(t *testing.T, path string) (chan struct{}, context.CancelFunc, chan error) {
	t.Helper()

	w, err := New(20*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { _ = w.Close() })
	if err := w.Add(path); err != nil {
		t.Fatalf("Add() error = %v", err)
	}

	triggered := make(chan struct{}, 8)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- w.Run(ctx, func(context.Context) error {
			triggered <- struct{}{}
			return nil
		})
	}()
	return triggered, cancel, done
}

func TestWatcher_TriggersOnTrackedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attendance.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	triggered, cancel, done := startWatcher(t, path)

	// Untracked files in the same directory are ignored
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-triggered:
		t.Fatal("write to an untracked file triggered a run")
	case <-time.After(300 * time.Millisecond):
	}

	if err := os.WriteFile(path, []byte(`{"users":[]}`), 0644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("write to the tracked file did not trigger a run")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}

func TestWatcher_TriggersOnAtomicReplace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "attendance.json")
	if err := os.WriteFile(path, []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	triggered, cancel, _ := startWatcher(t, path)
	defer cancel()

	tmp := filepath.Join(dir, ".attendance.json.tmp")
	if err := os.WriteFile(tmp, []byte(`{"users":[]}`), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		t.Fatal(err)
	}

	select {
	case <-triggered:
	case <-time.After(5 * time.Second):
		t.Fatal("rename over the tracked file did not trigger a run")
	}
}

func TestWatcher_AddMissingDirectory(t *testing.T) {
	w, err := New(0, nil)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer func() { _ = w.Close() }()

	if err := w.Add(filepath.Join(t.TempDir(), "missing", "attendance.json")); err == nil {
		t.Error("Add() should fail when the directory does not exist")
	}
	if w.debounce != DefaultDebounce {
		t.Errorf("debounce = %v, want %v", w.debounce, DefaultDebounce)
	}
}
