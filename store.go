package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var errBadName = errors.New("invalid file name")

// outputStore keeps generated PDFs in one directory until they expire.
// Every saved file gets a unique name, so concurrent requests never share
// a path.
type outputStore struct {
	dir       string
	retention time.Duration
	now       func() time.Time
	log       logrus.FieldLogger
}

func newOutputStore(dir string, retention time.Duration, log logrus.FieldLogger) (*outputStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	return &outputStore{dir: dir, retention: retention, now: time.Now, log: log}, nil
}

// uniqueName builds prefix_<suffix>.pdf, e.g. merged_20240101_120000_1a2b3c4d.pdf.
func (s *outputStore) uniqueName(prefix string) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return prefix + "_" + id + ".pdf"
}

// Save writes data atomically under a fresh name derived from prefix and
// returns that name.
func (s *outputStore) Save(prefix string, data []byte) (string, error) {
	name := s.uniqueName(sanitizeNoExt(prefix))
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return "", err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", err
	}
	s.log.WithFields(logrus.Fields{"file": name, "bytes": len(data)}).Debug("[store] saved")
	return name, nil
}

// Path resolves a stored name, refusing anything outside the directory.
func (s *outputStore) Path(name string) (string, error) {
	if !safeName(name) || !strings.HasSuffix(strings.ToLower(name), ".pdf") {
		return "", errBadName
	}
	p := filepath.Join(s.dir, name)
	if !strings.HasPrefix(abs(p), abs(s.dir)+string(os.PathSeparator)) {
		return "", errBadName
	}
	st, err := os.Stat(p)
	if err != nil {
		return "", err
	}
	if !st.Mode().IsRegular() {
		return "", os.ErrNotExist
	}
	return p, nil
}

// Read returns the bytes of a stored file.
func (s *outputStore) Read(name string) ([]byte, error) {
	p, err := s.Path(name)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(p)
}

// List returns stored PDFs, newest first.
func (s *outputStore) List() ([]FileItem, error) {
	var files []FileItem
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	for _, d := range entries {
		if d.IsDir() || !strings.HasSuffix(strings.ToLower(d.Name()), ".pdf") {
			continue
		}
		info, err := d.Info()
		if err != nil {
			continue
		}
		files = append(files, FileItem{Name: d.Name(), Size: info.Size(), Mod: info.ModTime()})
		if len(files) >= maxFileScan {
			break
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Mod.After(files[j].Mod) })
	return files, nil
}

// Sweep removes files older than the retention period and returns how
// many were deleted. A zero retention keeps everything.
func (s *outputStore) Sweep() (int, error) {
	if s.retention <= 0 {
		return 0, nil
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	cutoff := s.now().Add(-s.retention)
	removed := 0
	for _, d := range entries {
		if d.IsDir() {
			continue
		}
		info, err := d.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, d.Name())); err != nil && !os.IsNotExist(err) {
			s.log.WithError(err).WithField("file", d.Name()).Warn("[store] cannot remove expired file")
			continue
		}
		removed++
	}
	return removed, nil
}

// runJanitor sweeps every interval until ctx is done.
func (s *outputStore) runJanitor(ctx context.Context, interval time.Duration) error {
	if s.retention <= 0 {
		<-ctx.Done()
		return nil
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n, err := s.Sweep()
			if err != nil {
				s.log.WithError(err).Warn("[store] sweep failed")
				continue
			}
			if n > 0 {
				s.log.WithField("removed", n).Info("[store] expired outputs removed")
			}
		}
	}
}

func abs(p string) string {
	a, _ := filepath.Abs(p)
	return a
}
