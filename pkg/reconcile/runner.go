package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/harrisonrobin/twreminders/pkg/state"
)

// LockFileName is the run lock inside the data directory.
const LockFileName = ".sync.lock"

// ErrAlreadyRunning is returned when another run holds the lock. It is not
// a failure: the caller should exit cleanly.
var ErrAlreadyRunning = errors.New("sync already running")

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseLocked
	PhaseRunning
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseLocked:
		return "locked"
	case PhaseRunning:
		return "running"
	case PhaseDone:
		return "done"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Runner performs one full sync under an exclusive, non-blocking file
// lock: fetch, reconcile, record last_sync.
type Runner struct {
	lockPath   string
	fetcher    *Fetcher
	reconciler *Reconciler
	state      state.Store
	log        *slog.Logger
	now        func() time.Time

	mu    sync.Mutex
	phase Phase
}

type RunnerOption func(*Runner)

func WithRunnerLogger(l *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

func WithRunnerClock(now func() time.Time) RunnerOption {
	return func(r *Runner) { r.now = now }
}

func NewRunner(lockPath string, f *Fetcher, rec *Reconciler, st state.Store, opts ...RunnerOption) *Runner {
	r := &Runner{
		lockPath:   lockPath,
		fetcher:    f,
		reconciler: rec,
		state:      st,
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Phase reports where the current or last run is.
func (r *Runner) Phase() Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.phase
}

func (r *Runner) setPhase(p Phase) {
	r.mu.Lock()
	r.phase = p
	r.mu.Unlock()
}

// Run executes one sync. It returns ErrAlreadyRunning without touching any
// state when the lock is held elsewhere. last_sync is only advanced when
// the remote fetch succeeded.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	defer r.setPhase(PhaseDone)

	if err := os.MkdirAll(filepath.Dir(r.lockPath), 0700); err != nil {
		return Report{}, fmt.Errorf("create data directory: %w", err)
	}
	lock := flock.New(r.lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return Report{}, fmt.Errorf("acquire run lock %s: %w", r.lockPath, err)
	}
	if !locked {
		r.log.Info("another sync in progress, skipping")
		return Report{}, ErrAlreadyRunning
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			r.log.Warn("release run lock", "error", err)
		}
	}()
	r.setPhase(PhaseLocked)

	snap, fetchErr := r.fetcher.Fetch(ctx)
	if fetchErr != nil {
		r.log.Error("remote fetch failed", "error", fetchErr)
	} else {
		r.log.Info("fetched reminders", "count", len(snap.Reminders))
	}

	r.setPhase(PhaseRunning)
	report, err := r.reconciler.Reconcile(ctx, snap)
	if err != nil {
		return report, err
	}

	if snap.Complete {
		if err := r.state.TouchLastSync(r.now()); err != nil {
			return report, err
		}
	}
	r.log.Info("sync finished",
		"fetched", report.Fetched,
		"created", report.Created,
		"updated", report.Updated,
		"deleted", report.Deleted,
		"unlinked", report.Unlinked,
		"skipped", report.Skipped,
		"failed", report.Failed,
		"fetch_failed", report.FetchFailed)
	return report, nil
}
