package tempfile

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gofrs/flock"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/xerrors"
)

const (
	partInfix = ".part-"
	lockExt   = ".lock"
)

// Entry is one claimed partial file. The claim holds both the
// in-process registration and the OS advisory lock until Release.
type Entry struct {
	// Final is the destination the partial will be renamed to.
	Final string
	// Path is the partial file being written.
	Path string
	// Size is the partial's length at claim time; non-zero only for
	// resumed downloads.
	Size int64
	// Resumed reports whether the entry picked up an abandoned partial.
	Resumed bool

	lock  *flock.Flock
	owner string
}

type Option struct {
	// DisableResume turns off scanning for abandoned partials; every
	// claim mints a fresh file.
	DisableResume bool
	Logger        *slog.Logger
}

// Registry is the per-process table of in-flight partial files. It
// serializes claims under one mutex and backs each claim with an
// advisory lock on a companion ".lock" file, so concurrent downloads of
// the same destination never share a partial, in-process or across
// processes.
type Registry struct {
	mu            sync.Mutex
	active        map[string]string // partial path -> owner
	disableResume bool
	log           *slog.Logger
}

func NewRegistry(opt Option) *Registry {
	log := opt.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Registry{
		active:        make(map[string]string),
		disableResume: opt.DisableResume,
		log:           log,
	}
}

// Claim hands out a partial file for dst. With resume allowed it first
// scans dst's directory for abandoned partials and adopts the first one
// whose lock file it can acquire; otherwise it mints a fresh partial.
func (r *Registry) Claim(dst, owner string, resumeAllowed bool) (*Entry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.disableResume && resumeAllowed {
		if e := r.adoptAbandoned(dst, owner); e != nil {
			return e, nil
		}
	}
	return r.mint(dst, owner)
}

// adoptAbandoned returns a locked entry for an existing partial of dst,
// or nil when no candidate can be locked.
func (r *Registry) adoptAbandoned(dst, owner string) *Entry {
	entries, err := os.ReadDir(filepath.Dir(dst))
	if err != nil {
		return nil
	}

	prefix := filepath.Base(dst) + partInfix
	candidates := lo.Filter(entries, func(de os.DirEntry, _ int) bool {
		return !de.IsDir() && strings.HasPrefix(de.Name(), prefix) && !strings.HasSuffix(de.Name(), lockExt)
	})

	for _, de := range candidates {
		path := filepath.Join(filepath.Dir(dst), de.Name())
		info, err := de.Info()
		if err != nil || info.Size() == 0 {
			continue
		}
		// Another worker in this process already owns it.
		if _, ok := r.active[path]; ok {
			continue
		}
		lock, err := tryLock(path)
		if err != nil || lock == nil {
			continue
		}
		r.active[path] = owner
		r.log.Debug("Found an incomplete download",
			slog.String("destination", dst), slog.String("partial", path))
		return &Entry{
			Final:   dst,
			Path:    path,
			Size:    info.Size(),
			Resumed: true,
			lock:    lock,
			owner:   owner,
		}
	}
	return nil
}

// mint creates a claim on a fresh, uniquely named partial.
func (r *Registry) mint(dst, owner string) (*Entry, error) {
	var path string
	for {
		path = dst + partInfix + randomSuffix()
		if _, err := os.Lstat(path); os.IsNotExist(err) {
			break
		}
	}
	if _, ok := r.active[path]; ok {
		return nil, xerrors.Errorf("partial file already claimed: %s", path)
	}

	lock, err := tryLock(path)
	if err != nil {
		return nil, xerrors.Errorf("unable to lock partial file %s: %w", path, err)
	}
	if lock == nil {
		return nil, xerrors.Errorf("partial file locked by another process: %s", path)
	}

	r.active[path] = owner
	return &Entry{
		Final: dst,
		Path:  path,
		lock:  lock,
		owner: owner,
	}, nil
}

// Release drops the claim: the advisory lock is released, the lock file
// removed, and the partial deleted when requested (failure cleanup) or
// kept (after a successful rename, or for a later resume).
func (r *Registry) Release(e *Entry, deletePartial bool) {
	if e == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if deletePartial {
		if err := os.Remove(e.Path); err != nil && !os.IsNotExist(err) {
			r.log.Warn("Failed to delete partial file",
				slog.String("path", e.Path), slog.String("error", err.Error()))
		}
	}
	if e.lock != nil {
		if err := e.lock.Unlock(); err != nil {
			r.log.Warn("Failed to release partial file lock",
				slog.String("path", e.lock.Path()), slog.String("error", err.Error()))
		}
		if err := os.Remove(e.lock.Path()); err != nil && !os.IsNotExist(err) {
			r.log.Debug("Failed to remove lock file", slog.String("path", e.lock.Path()))
		}
		e.lock = nil
	}
	delete(r.active, e.Path)
}

// Active returns the number of claims currently held.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}

// tryLock takes the advisory lock guarding a partial. A nil lock with a
// nil error means another process holds it.
func tryLock(partial string) (*flock.Flock, error) {
	lock := flock.New(partial + lockExt)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, err
	}
	if !locked {
		return nil, nil
	}
	return lock, nil
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:16]
}
