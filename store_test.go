package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func newTestStore(t *testing.T, retention time.Duration) *outputStore {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)
	s, err := newOutputStore(filepath.Join(t.TempDir(), "out"), retention, log)
	if err != nil {
		t.Fatalf("newOutputStore: %v", err)
	}
	return s
}

func TestStoreSaveUniqueNames(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Hour)

	a, err := s.Save("merged_20240101_120000", []byte("one"))
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Save("merged_20240101_120000", []byte("two"))
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatalf("same name %q for two saves", a)
	}
	for _, n := range []string{a, b} {
		if !strings.HasPrefix(n, "merged_20240101_120000_") || !strings.HasSuffix(n, ".pdf") {
			t.Fatalf("name = %q", n)
		}
	}
	got, err := s.Read(a)
	if err != nil || string(got) != "one" {
		t.Fatalf("Read(%q) = %q, %v", a, got, err)
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("dir holds %d entries, want 2 (temp file left behind?)", len(entries))
	}
}

func TestStoreSaveSanitizesPrefix(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)
	name, err := s.Save("../../etc/passwd", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}
	if !safeName(name) || !strings.HasPrefix(name, "etcpasswd_") {
		t.Fatalf("name = %q", name)
	}
}

func TestStorePathRejects(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)
	if err := os.Mkdir(filepath.Join(s.dir, "sub.pdf"), 0o755); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"", ".", "..", "../x.pdf", `..\x.pdf`, "a/b.pdf", "notes.txt"} {
		if _, err := s.Path(name); !errors.Is(err, errBadName) {
			t.Errorf("Path(%q) err = %v, want errBadName", name, err)
		}
	}
	if _, err := s.Path("missing.pdf"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing: err = %v", err)
	}
	if _, err := s.Path("sub.pdf"); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("directory: err = %v", err)
	}
}

func TestStoreListNewestFirst(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)
	old, _ := s.Save("old", []byte("a"))
	fresh, _ := s.Save("fresh", []byte("b"))
	if err := os.WriteFile(filepath.Join(s.dir, "readme.txt"), []byte("skip"), 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(filepath.Join(s.dir, old), past, past); err != nil {
		t.Fatal(err)
	}

	files, err := s.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Name != fresh || files[1].Name != old {
		t.Fatalf("List = %+v", files)
	}
}

func TestStoreSweep(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Hour)
	expired, _ := s.Save("expired", []byte("a"))
	kept, _ := s.Save("kept", []byte("b"))
	past := time.Now().Add(-3 * time.Hour)
	if err := os.Chtimes(filepath.Join(s.dir, expired), past, past); err != nil {
		t.Fatal(err)
	}

	n, err := s.Sweep()
	if err != nil || n != 1 {
		t.Fatalf("Sweep = %d, %v; want 1", n, err)
	}
	if _, err := s.Path(expired); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expired file still there: %v", err)
	}
	if _, err := s.Path(kept); err != nil {
		t.Fatalf("kept file: %v", err)
	}
}

func TestStoreZeroRetentionKeepsAll(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, 0)
	name, _ := s.Save("x", []byte("a"))
	past := time.Now().Add(-24 * time.Hour)
	_ = os.Chtimes(filepath.Join(s.dir, name), past, past)

	if n, err := s.Sweep(); err != nil || n != 0 {
		t.Fatalf("Sweep = %d, %v", n, err)
	}
}

func TestJanitorStopsWithContext(t *testing.T) {
	t.Parallel()
	s := newTestStore(t, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.runJanitor(ctx, time.Millisecond) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("runJanitor: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("janitor did not stop")
	}
}
