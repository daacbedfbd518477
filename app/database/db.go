package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"
)

const lockFile = ".lock"

// DB is the data directory. Every record lives in its own file and is
// replaced atomically, so a restart reconstructs state without replay.
type DB struct {
	Dir  string
	lock *flock.Flock
}

// NewConnection opens dataDir, creating it when missing, and takes an
// exclusive lock so only one process collects into it.
func NewConnection(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	lock := flock.New(filepath.Join(dataDir, lockFile))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("failed to lock data directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("data directory %s is in use by another process", dataDir)
	}

	return &DB{Dir: dataDir, lock: lock}, nil
}

func (db *DB) Close() error {
	if db.lock == nil {
		return nil
	}
	return db.lock.Unlock()
}

func (db *DB) Path(name string) string {
	return filepath.Join(db.Dir, name)
}

// readJSON decodes name into v. A missing file leaves v untouched and
// reports found=false.
func (db *DB) readJSON(name string, v any) (bool, error) {
	data, err := os.ReadFile(db.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return true, nil
}

func (db *DB) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return WriteFileAtomic(db.Path(name), data)
}

func (db *DB) readYAML(name string, v any) (bool, error) {
	data, err := os.ReadFile(db.Path(name))
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to decode %s: %w", name, err)
	}
	return true, nil
}

func (db *DB) writeYAML(name string, v any) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", name, err)
	}
	return WriteFileAtomic(db.Path(name), data)
}

// WriteFileAtomic writes data to a temporary file next to path, syncs it
// and renames it into place. Readers see the old or the new content only.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", filepath.Base(path), err)
	}
	return nil
}
