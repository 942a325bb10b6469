package flock

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	gofrsflock "github.com/gofrs/flock"
	"github.com/pkg/errors"
)

type acquireTimeoutError string
type acquireFailedError string

// ErrTimeout indicates that the lock attempt timed out.
var ErrTimeout error = acquireTimeoutError("acquire timeout exceeded")

func (t acquireTimeoutError) Error() string {
	return string(t)
}

// ErrLocked indicates TryAcquire failed because the lock was already locked.
var ErrLocked error = acquireFailedError("already locked")

func (t acquireFailedError) Error() string {
	return string(t)
}

const retryDelay = 50 * time.Millisecond

// Lock implements flock based cross-process locking.
type Lock interface {
	Acquire(context.Context) error
	AcquireWithTimeout(context.Context, time.Duration) error
	TryAcquire() error
	Release() error
	Path() string
}

type defaultLock struct {
	flock *gofrsflock.Flock
}

// New returns a new lock around the given file.
// The file is created on first acquire.
func New(filename string) Lock {
	return &defaultLock{flock: gofrsflock.New(filename)}
}

// Acquire attempts acquiring the lock. Will block until the lock becomes available
// or the context is done.
func (l *defaultLock) Acquire(ctx context.Context) error {
	locked, err := l.flock.TryLockContext(ctx, retryDelay)
	if err != nil {
		if ctx.Err() != nil {
			return ErrTimeout
		}
		return errors.Wrapf(err, "failed locking '%s'", l.flock.Path())
	}
	if !locked {
		return ErrTimeout
	}
	return nil
}

// AcquireWithTimeout attempts to acquire the lock until the timeout expires. Blocking.
func (l *defaultLock) AcquireWithTimeout(ctx context.Context, timeout time.Duration) error {
	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return l.Acquire(timeoutCtx)
}

// TryAcquire attempts to lock the lock. This method will return ErrLocked
// immediately if the lock cannot be acquired.
func (l *defaultLock) TryAcquire() error {
	locked, err := l.flock.TryLock()
	if err != nil {
		return errors.Wrapf(err, "failed locking '%s'", l.flock.Path())
	}
	if !locked {
		return ErrLocked
	}
	return nil
}

// Release releases the flock.
func (l *defaultLock) Release() error {
	return l.flock.Unlock()
}

func (l *defaultLock) Path() string {
	return l.flock.Path()
}

// Provider hands out per repository locks stored in a single directory.
type Provider interface {
	ForRepository(repoPath string) Lock
}

type defaultProvider struct {
	directory string
}

// NewProvider returns a lock provider storing lock files in the directory.
// The directory is created, if it does not exist.
func NewProvider(directory string) (Provider, error) {
	if err := os.MkdirAll(directory, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed creating lock directory '%s'", directory)
	}
	return &defaultProvider{directory: directory}, nil
}

// ForRepository returns the lock for a repository path.
// The same path always maps to the same lock file.
func (p *defaultProvider) ForRepository(repoPath string) Lock {
	return New(filepath.Join(p.directory, LockFileName(repoPath)))
}

var unsafeLockNameChars = regexp.MustCompile(`[^\w\-.]`)

// LockFileName converts a repository path to a safe lock file name.
func LockFileName(repoPath string) string {
	sanitized := filepath.ToSlash(filepath.Clean(repoPath))
	sanitized = strings.ReplaceAll(sanitized, "/", "--")
	sanitized = strings.ReplaceAll(sanitized, "\\", "--")
	sanitized = unsafeLockNameChars.ReplaceAllString(sanitized, "-")
	sanitized = strings.Trim(sanitized, ".-")
	if sanitized == "" {
		sanitized = "default"
	}
	return sanitized + ".lock"
}
