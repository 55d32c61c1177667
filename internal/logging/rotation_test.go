package logging

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// newSmallWriter returns a writer whose rotation limit is limit bytes.
func newSmallWriter(t *testing.T, limit int64, backups int, compress bool) (*RotatingWriter, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), LogFileName)
	rw, err := NewRotatingWriter(path, RotationConfig{MaxSizeMB: 1, MaxBackups: backups, Compress: compress})
	if err != nil {
		t.Fatalf("NewRotatingWriter failed: %v", err)
	}
	rw.limit = limit
	t.Cleanup(func() { _ = rw.Close() })
	return rw, path
}

func TestNewRotatingWriter(t *testing.T) {
	t.Run("creates parent directories", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "logs", LogFileName)
		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if _, err := os.Stat(path); err != nil {
			t.Errorf("log file not created: %v", err)
		}
	})

	t.Run("picks up existing size", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), LogFileName)
		if err := os.WriteFile(path, []byte("previous run\n"), 0644); err != nil {
			t.Fatal(err)
		}

		rw, err := NewRotatingWriter(path, DefaultRotationConfig())
		if err != nil {
			t.Fatalf("NewRotatingWriter failed: %v", err)
		}
		defer func() { _ = rw.Close() }()

		if rw.CurrentSize() != int64(len("previous run\n")) {
			t.Errorf("CurrentSize() = %d, want %d", rw.CurrentSize(), len("previous run\n"))
		}
	})
}

func TestRotatingWriter_Rotation(t *testing.T) {
	rw, path := newSmallWriter(t, 20, 2, false)

	line := []byte("0123456789abcde\n") // 16 bytes
	for range 4 {
		if _, err := rw.Write(line); err != nil {
			t.Fatalf("Write failed: %v", err)
		}
	}

	for _, p := range []string{path, path + ".1", path + ".2"} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected %s to exist: %v", filepath.Base(p), err)
		}
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Error("backups beyond MaxBackups should be removed")
	}
	if rw.CurrentSize() != int64(len(line)) {
		t.Errorf("CurrentSize() = %d, want %d", rw.CurrentSize(), len(line))
	}
}

func TestRotatingWriter_OversizedRecordOnEmptyFile(t *testing.T) {
	rw, path := newSmallWriter(t, 4, 1, false)

	if _, err := rw.Write([]byte("a record larger than the limit\n")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("an empty file should not be rotated")
	}
}

func TestRotatingWriter_NoBackups(t *testing.T) {
	rw, path := newSmallWriter(t, 10, 0, false)

	_, _ = rw.Write([]byte("first line\n"))
	_, _ = rw.Write([]byte("second line\n"))

	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("no backup should be kept when MaxBackups is 0")
	}
	content, _ := os.ReadFile(path)
	if string(content) != "second line\n" {
		t.Errorf("content = %q, want only the second line", content)
	}
}

func TestRotatingWriter_Compression(t *testing.T) {
	rw, path := newSmallWriter(t, 10, 2, true)

	_, _ = rw.Write([]byte("first line\n"))
	_, _ = rw.Write([]byte("second line\n"))

	gzPath := path + ".1.gz"
	f, err := os.Open(gzPath)
	if err != nil {
		t.Fatalf("compressed backup missing: %v", err)
	}
	defer func() { _ = f.Close() }()

	zr, err := gzip.NewReader(f)
	if err != nil {
		t.Fatalf("gzip.NewReader failed: %v", err)
	}
	data, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != "first line\n" {
		t.Errorf("decompressed = %q, want %q", data, "first line\n")
	}
	if _, err := os.Stat(path + ".1"); !os.IsNotExist(err) {
		t.Error("uncompressed backup should be removed after compression")
	}
}

func TestRotatingWriter_Concurrency(t *testing.T) {
	rw, path := newSmallWriter(t, 1<<20, 1, false)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				_, _ = rw.Write([]byte("line\n"))
			}
		}()
	}
	wg.Wait()
	_ = rw.Sync()

	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(content), "line\n"); got != 400 {
		t.Errorf("line count = %d, want 400", got)
	}
}

func TestRotatingWriter_Close(t *testing.T) {
	rw, _ := newSmallWriter(t, 1<<20, 1, false)

	if err := rw.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if err := rw.Close(); err != nil {
		t.Errorf("second Close should be a no-op, got %v", err)
	}
	if _, err := rw.Write([]byte("late")); err == nil {
		t.Error("Write after Close should fail")
	}
}

func TestDefaultRotationConfig(t *testing.T) {
	cfg := DefaultRotationConfig()
	if cfg.MaxSizeMB != 10 {
		t.Errorf("MaxSizeMB = %d, want 10", cfg.MaxSizeMB)
	}
	if cfg.MaxBackups != 3 {
		t.Errorf("MaxBackups = %d, want 3", cfg.MaxBackups)
	}
	if cfg.Compress {
		t.Error("Compress should default to false")
	}
}
