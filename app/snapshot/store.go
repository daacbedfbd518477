package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/mattanmr/job-posting-aggregator/app/errs"
	"github.com/mattanmr/job-posting-aggregator/app/jobs"
)

const (
	DirName         = "csv_files"
	filenamePrefix  = "jobs_collection_"
	timestampLayout = "20060102_150405"
	tempPattern     = "." + filenamePrefix + "*.tmp"
)

var filenamePattern = regexp.MustCompile(`^jobs_collection_\d{8}_\d{6}\.csv$`)

// Snapshot is the metadata of one collection file.
type Snapshot struct {
	Filename  string    `json:"filename"`
	Timestamp time.Time `json:"timestamp"`
	SizeBytes int64     `json:"size_bytes"`
	JobCount  int       `json:"job_count"`
}

type Option func(*Store)

// WithClock replaces time.Now for filename generation and age checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// Store owns the snapshot directory. Only files whose names match the
// canonical pattern are listed, served or deleted.
type Store struct {
	root    string
	now     func() time.Time
	writeMu sync.Mutex
	mu      sync.RWMutex
	index   map[string]Snapshot
}

func NewStore(dir string, opts ...Option) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory: %w", err)
	}
	root, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve snapshot directory: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(root); err == nil {
		root = resolved
	}

	s := &Store{
		root:  root,
		now:   time.Now,
		index: make(map[string]Snapshot),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.removeStaleTemps()
	if _, err := s.List(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Store) Root() string {
	return s.root
}

// FilenameFor returns the canonical snapshot name for t in local time.
func FilenameFor(t time.Time) string {
	return filenamePrefix + t.In(time.Local).Format(timestampLayout) + ".csv"
}

// ParseFilename validates name and returns its embedded timestamp.
func ParseFilename(name string) (time.Time, error) {
	if !filenamePattern.MatchString(name) {
		return time.Time{}, errs.New(errs.ErrInvalidFilename, "invalid snapshot filename")
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, filenamePrefix), ".csv")
	ts, err := time.ParseInLocation(timestampLayout, stamp, time.Local)
	if err != nil {
		return time.Time{}, errs.New(errs.ErrInvalidFilename, "invalid snapshot timestamp")
	}
	return ts, nil
}

// Write publishes records as one new snapshot. The file is written under
// a temporary name and renamed into place, so readers never see it partial.
func (s *Store) Write(records []jobs.Record) (Snapshot, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	ts := s.now().Truncate(time.Second)
	name := FilenameFor(ts)
	for s.exists(name) {
		ts = ts.Add(time.Second)
		name = FilenameFor(ts)
	}

	tmp, err := os.CreateTemp(s.root, tempPattern)
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.ErrStorage, err, "failed to create snapshot")
	}
	tmpName := tmp.Name()

	count, werr := writeRecords(tmp, records)
	if werr == nil {
		werr = tmp.Sync()
	}
	if cerr := tmp.Close(); werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmpName, filepath.Join(s.root, name))
	}
	if werr != nil {
		os.Remove(tmpName)
		return Snapshot{}, errs.Wrap(errs.ErrStorage, werr, "failed to write snapshot %s", name)
	}

	info, err := os.Stat(filepath.Join(s.root, name))
	if err != nil {
		return Snapshot{}, errs.Wrap(errs.ErrStorage, err, "failed to stat snapshot %s", name)
	}

	snap := Snapshot{
		Filename:  name,
		Timestamp: ts,
		SizeBytes: info.Size(),
		JobCount:  count,
	}

	s.mu.Lock()
	s.index[name] = snap
	s.mu.Unlock()

	slog.Info("Snapshot written", "filename", name, "jobs", count, "bytes", snap.SizeBytes)
	return snap, nil
}

// List returns metadata for every canonical snapshot, newest first.
// The index is reconciled with the directory on each call.
func (s *Store) List() ([]Snapshot, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, errs.Wrap(errs.ErrStorage, err, "failed to read snapshot directory")
	}

	present := make(map[string]Snapshot, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		ts, err := ParseFilename(name)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		present[name] = Snapshot{Filename: name, Timestamp: ts, SizeBytes: info.Size(), JobCount: -1}
	}

	s.mu.RLock()
	for name, snap := range present {
		if known, ok := s.index[name]; ok && known.SizeBytes == snap.SizeBytes {
			snap.JobCount = known.JobCount
			present[name] = snap
		}
	}
	s.mu.RUnlock()

	for name, snap := range present {
		if snap.JobCount >= 0 {
			continue
		}
		count, err := countRows(filepath.Join(s.root, name))
		if err != nil {
			slog.Warn("Failed to count snapshot rows", "filename", name, "error", err)
			count = 0
		}
		snap.JobCount = count
		present[name] = snap
	}

	s.mu.Lock()
	s.index = present
	s.mu.Unlock()

	out := make([]Snapshot, 0, len(present))
	for _, snap := range present {
		out = append(out, snap)
	}
	slices.SortFunc(out, func(a, b Snapshot) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return out, nil
}

// Count is the number of indexed snapshots as of the last List or Write.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

// Resolve maps a client supplied name to a path inside the store. Names
// are checked against the canonical pattern before the filesystem is
// touched; the resolved path must stay under the root.
func (s *Store) Resolve(filename string) (string, error) {
	if _, err := ParseFilename(filename); err != nil {
		slog.Warn("Rejected snapshot filename", "filename", filename)
		return "", err
	}

	path := filepath.Join(s.root, filename)
	if !s.within(path) {
		slog.Warn("Snapshot path escapes storage root", "filename", filename)
		return "", errs.New(errs.ErrForbidden, "access denied")
	}

	info, err := os.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", errs.New(errs.ErrNotFound, "snapshot %s not found", filename)
	}
	if err != nil {
		return "", errs.Wrap(errs.ErrStorage, err, "failed to stat snapshot")
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		target, err := filepath.EvalSymlinks(path)
		if err != nil || !s.within(target) {
			slog.Warn("Snapshot symlink escapes storage root", "filename", filename)
			return "", errs.New(errs.ErrForbidden, "access denied")
		}
	} else if !info.Mode().IsRegular() {
		return "", errs.New(errs.ErrNotFound, "snapshot %s not found", filename)
	}

	return path, nil
}

// Delete removes one snapshot by name.
func (s *Store) Delete(filename string) error {
	path, err := s.Resolve(filename)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return errs.New(errs.ErrNotFound, "snapshot %s not found", filename)
		}
		return errs.Wrap(errs.ErrStorage, err, "failed to delete snapshot %s", filename)
	}

	s.mu.Lock()
	delete(s.index, filename)
	s.mu.Unlock()

	slog.Info("Snapshot deleted", "filename", filename)
	return nil
}

// ApplyRetention deletes every snapshot that is beyond the newest maxFiles
// or older than maxAgeDays. Order follows the embedded timestamp. A zero
// limit disables that condition.
func (s *Store) ApplyRetention(maxFiles, maxAgeDays int) ([]string, error) {
	snapshots, err := s.List()
	if err != nil {
		return nil, err
	}

	cutoff := s.now().AddDate(0, 0, -maxAgeDays)

	var deleted []string
	var failures []error
	for i, snap := range snapshots {
		overCount := maxFiles > 0 && i >= maxFiles
		overAge := maxAgeDays > 0 && snap.Timestamp.Before(cutoff)
		if !overCount && !overAge {
			continue
		}

		path := filepath.Join(s.root, snap.Filename)
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			slog.Error("Retention failed to delete snapshot", "filename", snap.Filename, "error", err)
			failures = append(failures, fmt.Errorf("%s: %w", snap.Filename, err))
			continue
		}

		s.mu.Lock()
		delete(s.index, snap.Filename)
		s.mu.Unlock()

		slog.Info("Snapshot removed by retention", "filename", snap.Filename, "over_count", overCount, "over_age", overAge)
		deleted = append(deleted, snap.Filename)
	}

	if len(failures) > 0 {
		return deleted, errs.Wrap(errs.ErrStorage, errors.Join(failures...), "retention incomplete")
	}
	return deleted, nil
}

func (s *Store) exists(name string) bool {
	s.mu.RLock()
	_, ok := s.index[name]
	s.mu.RUnlock()
	if ok {
		return true
	}
	_, err := os.Lstat(filepath.Join(s.root, name))
	return err == nil
}

func (s *Store) within(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

func (s *Store) removeStaleTemps() {
	matches, err := filepath.Glob(filepath.Join(s.root, tempPattern))
	if err != nil {
		return
	}
	for _, path := range matches {
		if err := os.Remove(path); err == nil {
			slog.Info("Removed stale snapshot temp file", "path", path)
		}
	}
}
