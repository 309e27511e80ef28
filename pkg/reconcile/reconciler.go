package reconcile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/harrisonrobin/twreminders/pkg/reminders"
	"github.com/harrisonrobin/twreminders/pkg/state"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
	"github.com/harrisonrobin/twreminders/pkg/util"
)

// Report counts what one reconciliation did.
type Report struct {
	Fetched     int
	Created     int
	Updated     int
	Deleted     int
	Unlinked    int
	Skipped     int
	Failed      int
	FetchFailed bool
}

func (r Report) String() string {
	s := fmt.Sprintf("fetched=%d created=%d updated=%d deleted=%d unlinked=%d skipped=%d failed=%d",
		r.Fetched, r.Created, r.Updated, r.Deleted, r.Unlinked, r.Skipped, r.Failed)
	if r.FetchFailed {
		s += " fetch_failed=true"
	}
	return s
}

// storeError marks a mapping store failure. Those abort the run; local
// task failures only fail the record at hand.
type storeError struct{ err error }

func (e *storeError) Error() string { return e.err.Error() }
func (e *storeError) Unwrap() error { return e.err }

// Reconciler applies a remote snapshot to the local store. The remote side
// wins a record only when its modification date is newer than the one
// recorded at the last sync of that record.
type Reconciler struct {
	tasks       taskwarrior.Store
	state       state.Store
	defaultList string
	log         *slog.Logger
	now         func() time.Time
}

type Option func(*Reconciler)

func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) { r.now = now }
}

// WithDefaultList sets the remote list that maps to "no project".
func WithDefaultList(name string) Option {
	return func(r *Reconciler) {
		if name != "" {
			r.defaultList = name
		}
	}
}

func NewReconciler(tasks taskwarrior.Store, st state.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		tasks:       tasks,
		state:       st,
		defaultList: util.DefaultList,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Reconcile applies snap record by record, then removes local tasks whose
// reminder disappeared. The deletion sweep only runs for a complete
// snapshot. A mapping store error stops the run; everything else is
// logged and counted.
func (r *Reconciler) Reconcile(ctx context.Context, snap Snapshot) (Report, error) {
	report := Report{Fetched: len(snap.Reminders), FetchFailed: !snap.Complete}

	for _, rem := range snap.Reminders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := r.apply(ctx, rem, &report); err != nil {
			var se *storeError
			if errors.As(err, &se) {
				return report, se.err
			}
			report.Failed++
			r.log.Error("reminder not applied", "reminder", rem.Identifier, "title", rem.Title, "error", err)
		}
	}

	if !snap.Complete {
		r.log.Warn("remote fetch failed, skipping deletion sweep")
		return report, nil
	}
	if err := r.sweep(ctx, snap.IDs(), &report); err != nil {
		return report, err
	}
	return report, nil
}

func (r *Reconciler) apply(ctx context.Context, rem reminders.Reminder, report *Report) error {
	m, ok, err := r.state.GetByRemote(rem.Identifier)
	if err != nil {
		return &storeError{err}
	}
	if !ok {
		if rem.IsCompleted {
			report.Skipped++
			return nil
		}
		linked, err := r.relink(ctx, rem)
		if err != nil {
			return err
		}
		if linked == nil {
			return r.create(ctx, rem, report)
		}
		m = *linked
	}

	task, err := r.tasks.Get(ctx, m.LocalID)
	if err != nil {
		return fmt.Errorf("load task %s: %w", m.LocalID, err)
	}
	if task == nil || task.Status == taskwarrior.DELETED {
		if err := r.state.Remove(m.LocalID); err != nil {
			return &storeError{err}
		}
		report.Unlinked++
		r.log.Info("local task gone, mapping removed", "uuid", m.LocalID, "reminder", rem.Identifier)
		return nil
	}

	if rem.ModificationDate <= m.RemoteFingerprint {
		report.Skipped++
		return nil
	}

	util.ApplyReminder(task, rem, r.defaultList, r.now())
	saved, err := r.tasks.Save(ctx, task)
	if err != nil {
		return fmt.Errorf("save task %s: %w", task.UUID, err)
	}
	m.LocalFingerprint = saved.Fingerprint()
	m.RemoteFingerprint = rem.ModificationDate
	if err := r.state.Upsert(m); err != nil {
		return &storeError{err}
	}
	report.Updated++
	r.log.Info("updated task", "uuid", saved.UUID, "description", saved.Description)
	return nil
}

// relink finds a live local task already carrying the reminder's
// identifier, for instance after the state file was lost, and records the
// mapping again instead of creating a duplicate. The returned mapping has
// no remote fingerprint so the reminder's fields are applied.
func (r *Reconciler) relink(ctx context.Context, rem reminders.Reminder) (*state.Mapping, error) {
	found, err := r.tasks.Query(ctx, "reminder_id:"+rem.Identifier)
	if err != nil {
		return nil, fmt.Errorf("look up reminder %s locally: %w", rem.Identifier, err)
	}
	for _, t := range found {
		if t.Status == taskwarrior.DELETED {
			continue
		}
		m := state.Mapping{LocalID: t.UUID, RemoteID: rem.Identifier, LocalFingerprint: t.Fingerprint()}
		if err := r.state.Upsert(m); err != nil {
			return nil, &storeError{err}
		}
		r.log.Info("relinked existing task", "uuid", t.UUID, "reminder", rem.Identifier)
		return &m, nil
	}
	return nil, nil
}

func (r *Reconciler) create(ctx context.Context, rem reminders.Reminder, report *Report) error {
	created, err := r.tasks.Create(ctx, util.TaskFromReminder(rem, r.defaultList))
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	err = r.state.Upsert(state.Mapping{
		LocalID:           created.UUID,
		RemoteID:          rem.Identifier,
		LocalFingerprint:  created.Fingerprint(),
		RemoteFingerprint: rem.ModificationDate,
	})
	if err != nil {
		return &storeError{err}
	}
	report.Created++
	r.log.Info("created task", "uuid", created.UUID, "description", created.Description)
	return nil
}

// sweep deletes local tasks whose reminder is no longer in the snapshot.
// The mapping is dropped whether or not the local delete worked.
func (r *Reconciler) sweep(ctx context.Context, present map[string]struct{}, report *Report) error {
	all, err := r.state.All()
	if err != nil {
		return err
	}
	for _, m := range all {
		if _, ok := present[m.RemoteID]; ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		deleted, err := r.deleteLocal(ctx, m.LocalID)
		switch {
		case err != nil:
			report.Failed++
			r.log.Error("local delete failed", "uuid", m.LocalID, "reminder", m.RemoteID, "error", err)
		case deleted:
			report.Deleted++
			r.log.Info("reminder deleted, task deleted", "uuid", m.LocalID, "reminder", m.RemoteID)
		default:
			report.Unlinked++
		}
		if err := r.state.Remove(m.LocalID); err != nil {
			return err
		}
	}
	return nil
}

func (r *Reconciler) deleteLocal(ctx context.Context, id string) (bool, error) {
	task, err := r.tasks.Get(ctx, id)
	if err != nil {
		return false, err
	}
	if task == nil || task.Status == taskwarrior.DELETED {
		return false, nil
	}
	if err := r.tasks.Delete(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}
