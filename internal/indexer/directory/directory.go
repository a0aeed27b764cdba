// Package directory owns the on-disk index directory and its single-writer
// lock. A Directory is opened once per process, handed to the engine, and
// closed exactly once; the lock is never released behind an active owner's
// back.
package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/flight-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/flight-search/pkg/resilience"
	"golang.org/x/sys/unix"
)

// LockFileName is the write-lock marker inside the index directory.
const LockFileName = "write.lock"

// Options controls lock acquisition.
type Options struct {
	LockRetries      int
	LockRetryDelay   time.Duration
	ForceUnlockStale bool
}

// lockMarker is written into the lock file while a writer owns it. A marker
// found in a file nobody holds a flock on was left by a writer that crashed.
type lockMarker struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host"`
	AcquiredAt time.Time `json:"acquired_at"`
}

type Directory struct {
	path     string
	lockFile *os.File
	readOnly bool
	mu       sync.Mutex
	logger   *slog.Logger
}

// Open creates the directory if needed and takes the write lock. It returns
// ErrLockHeld when another writer is active, and ErrStorageUnavailable when
// the directory cannot be created or written.
func Open(ctx context.Context, path string, opts Options) (*Directory, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("creating index directory %s: %w", path, apperrors.New(apperrors.ErrStorageUnavailable, err.Error()))
	}
	d := &Directory{
		path:   path,
		logger: slog.Default().With("component", "index-directory", "path", path),
	}
	retryCfg := resilience.RetryConfig{
		MaxAttempts:  opts.LockRetries,
		InitialDelay: opts.LockRetryDelay,
		Retryable: func(err error) bool {
			return errors.Is(err, apperrors.ErrLockHeld)
		},
	}
	if err := resilience.Retry(ctx, "acquire index write lock", retryCfg, func() error {
		return d.acquire(opts.ForceUnlockStale)
	}); err != nil {
		return nil, err
	}
	d.logger.Info("index write lock acquired")
	return d, nil
}

// OpenReadOnly opens the directory for reading without taking the write lock,
// so it works while a writer is active. A missing directory reads as empty
// and is not created.
func OpenReadOnly(path string) (*Directory, error) {
	if info, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return nil, apperrors.Newf(apperrors.ErrStorageUnavailable, "opening index directory %s: %v", path, err)
		}
	} else if !info.IsDir() {
		return nil, apperrors.Newf(apperrors.ErrStorageUnavailable, "%s is not a directory", path)
	}
	return &Directory{
		path:     path,
		readOnly: true,
		logger:   slog.Default().With("component", "index-directory", "path", path, "read_only", true),
	}, nil
}

// ReadOnly reports whether the directory was opened without the write lock.
func (d *Directory) ReadOnly() bool {
	return d.readOnly
}

func (d *Directory) acquire(forceUnlockStale bool) error {
	lockPath := filepath.Join(d.path, LockFileName)
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return apperrors.Newf(apperrors.ErrStorageUnavailable, "opening lock file: %v", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		if errors.Is(err, unix.EWOULDBLOCK) {
			return apperrors.Newf(apperrors.ErrLockHeld, "another writer holds %s", lockPath)
		}
		return apperrors.Newf(apperrors.ErrStorageUnavailable, "locking %s: %v", lockPath, err)
	}

	data, err := io.ReadAll(f)
	if err != nil {
		d.unlockAndClose(f)
		return apperrors.Newf(apperrors.ErrStorageUnavailable, "reading lock file: %v", err)
	}
	if len(strings.TrimSpace(string(data))) > 0 {
		var stale lockMarker
		_ = json.Unmarshal(data, &stale)
		if !forceUnlockStale {
			d.unlockAndClose(f)
			return apperrors.Newf(apperrors.ErrLockHeld, "stale lock left by pid %d on %s", stale.PID, stale.Host)
		}
		d.logger.Warn("forcing release of stale write lock",
			"stale_pid", stale.PID,
			"stale_host", stale.Host,
			"stale_since", stale.AcquiredAt,
		)
	}

	host, _ := os.Hostname()
	marker, err := json.Marshal(lockMarker{PID: os.Getpid(), Host: host, AcquiredAt: time.Now().UTC()})
	if err != nil {
		d.unlockAndClose(f)
		return fmt.Errorf("marshaling lock marker: %w", err)
	}
	if err := writeMarker(f, marker); err != nil {
		d.unlockAndClose(f)
		return apperrors.Newf(apperrors.ErrStorageUnavailable, "writing lock marker: %v", err)
	}
	d.lockFile = f
	return nil
}

// Path returns the directory path.
func (d *Directory) Path() string {
	return d.path
}

// File returns the path of a file inside the directory.
func (d *Directory) File(name string) string {
	return filepath.Join(d.path, name)
}

// List returns the names of regular files with the given suffix, sorted.
func (d *Directory) List(suffix string) ([]string, error) {
	entries, err := os.ReadDir(d.path)
	if err != nil {
		if d.readOnly && os.IsNotExist(err) {
			return nil, nil
		}
		return nil, apperrors.Newf(apperrors.ErrStorageUnavailable, "reading index directory: %v", err)
	}
	names := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), suffix) {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Remove deletes a file inside the directory. A missing file is not an error.
func (d *Directory) Remove(name string) error {
	if d.readOnly {
		return fmt.Errorf("removing %s: directory is read-only", name)
	}
	if err := os.Remove(d.File(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing %s: %w", name, err)
	}
	return nil
}

// Close clears the lock marker and releases the lock. It is safe to call
// more than once.
func (d *Directory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.lockFile == nil {
		return nil
	}
	f := d.lockFile
	d.lockFile = nil
	var firstErr error
	if err := f.Truncate(0); err != nil {
		firstErr = fmt.Errorf("clearing lock marker: %w", err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("releasing write lock: %w", err)
	}
	if err := f.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing lock file: %w", err)
	}
	d.logger.Info("index write lock released")
	return firstErr
}

// IsLocked reports whether a live writer currently holds the lock on path.
func IsLocked(path string) (bool, error) {
	f, err := os.OpenFile(filepath.Join(path, LockFileName), os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperrors.Newf(apperrors.ErrStorageUnavailable, "opening lock file: %v", err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return true, nil
		}
		return false, apperrors.Newf(apperrors.ErrStorageUnavailable, "testing lock: %v", err)
	}
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return false, nil
}

// ForceUnlock clears a stale lock marker. It refuses, with ErrLockHeld, while
// a live writer holds the lock.
func ForceUnlock(path string) error {
	f, err := os.OpenFile(filepath.Join(path, LockFileName), os.O_RDWR, 0644)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return apperrors.Newf(apperrors.ErrStorageUnavailable, "opening lock file: %v", err)
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return apperrors.New(apperrors.ErrLockHeld, "refusing to unlock an active writer")
		}
		return apperrors.Newf(apperrors.ErrStorageUnavailable, "locking: %v", err)
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("clearing lock marker: %w", err)
	}
	return nil
}

func writeMarker(f *os.File, marker []byte) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt(marker, 0); err != nil {
		return err
	}
	return f.Sync()
}

func (d *Directory) unlockAndClose(f *os.File) {
	_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
	f.Close()
}
