// Package propagate pushes single local task changes to the remote side.
// It backs the Taskwarrior on-add and on-modify hooks.
package propagate

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/harrisonrobin/twreminders/pkg/locations"
	"github.com/harrisonrobin/twreminders/pkg/reminders"
	"github.com/harrisonrobin/twreminders/pkg/state"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
	"github.com/harrisonrobin/twreminders/pkg/util"
)

type Propagator struct {
	agent       reminders.Agent
	state       state.Store
	dir         *locations.Directory
	defaultList string
	log         *slog.Logger
	now         func() time.Time
}

type Option func(*Propagator)

// WithLocations sets the directory used to resolve the loc UDA.
func WithLocations(dir *locations.Directory) Option {
	return func(p *Propagator) { p.dir = dir }
}

func WithDefaultList(name string) Option {
	return func(p *Propagator) {
		if name != "" {
			p.defaultList = name
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Propagator) {
		if l != nil {
			p.log = l
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Propagator) { p.now = now }
}

func New(agent reminders.Agent, st state.Store, opts ...Option) *Propagator {
	p := &Propagator{
		agent:       agent,
		state:       st,
		defaultList: util.DefaultList,
		log:         slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// OnAdd creates the reminder for a new task and returns the task to hand
// back to Taskwarrior, carrying the new reminder_id. Tasks that already
// have a reminder_id were created by a sync run and are returned as-is.
// On error the task is returned unchanged.
func (p *Propagator) OnAdd(ctx context.Context, task *taskwarrior.Task) (*taskwarrior.Task, error) {
	if task.ReminderID != "" {
		return task, nil
	}

	resp, err := p.agent.Create(ctx, util.CreateRequestFromTask(task, p.defaultList, p.dir))
	if err != nil {
		return task, fmt.Errorf("create reminder for %s: %w", task.UUID, err)
	}

	out := task.Clone()
	out.ReminderID = resp.Identifier
	remoteFP := resp.ModificationDate
	if remoteFP == "" {
		remoteFP = util.FormatRemoteTime(p.now())
	}
	err = p.state.Upsert(state.Mapping{
		LocalID:           task.UUID,
		RemoteID:          resp.Identifier,
		LocalFingerprint:  task.Fingerprint(),
		RemoteFingerprint: remoteFP,
	})
	if err != nil {
		return out, fmt.Errorf("record mapping for %s: %w", task.UUID, err)
	}
	p.log.Info("created reminder", "uuid", task.UUID, "reminder", resp.Identifier, "title", task.Description)
	return out, nil
}

// OnModify sends the fields that changed between old and updated. A task
// moving to deleted is handled by OnDelete. Tasks without a mapping were
// never synced and are ignored.
func (p *Propagator) OnModify(ctx context.Context, old, updated *taskwarrior.Task) error {
	if updated.Status == taskwarrior.DELETED {
		return p.OnDelete(ctx, updated)
	}

	m, ok, err := p.resolve(updated)
	if err != nil || !ok {
		return err
	}

	req := util.UpdateRequestFor(m.RemoteID, old, updated)
	if req.Empty() {
		return nil
	}
	resp, err := p.agent.Update(ctx, req)
	if err != nil {
		return fmt.Errorf("update reminder %s: %w", m.RemoteID, err)
	}

	m.LocalFingerprint = updated.Fingerprint()
	if resp.ModificationDate != "" {
		m.RemoteFingerprint = resp.ModificationDate
	}
	if err := p.state.Upsert(m); err != nil {
		return fmt.Errorf("record mapping for %s: %w", updated.UUID, err)
	}
	p.log.Info("updated reminder", "uuid", updated.UUID, "reminder", m.RemoteID)
	return nil
}

// OnDelete deletes the task's reminder. The mapping is removed even when
// the remote delete fails, so a stale mapping cannot block the task from
// being synced again later.
func (p *Propagator) OnDelete(ctx context.Context, task *taskwarrior.Task) error {
	m, ok, err := p.resolve(task)
	if err != nil || !ok {
		return err
	}

	delErr := p.agent.Delete(ctx, m.RemoteID)
	if err := p.state.Remove(m.LocalID); err != nil {
		return fmt.Errorf("remove mapping for %s: %w", m.LocalID, err)
	}
	if delErr != nil {
		return fmt.Errorf("delete reminder %s: %w", m.RemoteID, delErr)
	}
	p.log.Info("deleted reminder", "uuid", task.UUID, "reminder", m.RemoteID)
	return nil
}

// resolve finds the mapping for task, by its reminder_id first and by its
// uuid otherwise.
func (p *Propagator) resolve(task *taskwarrior.Task) (state.Mapping, bool, error) {
	if task.ReminderID != "" {
		m, ok, err := p.state.GetByRemote(task.ReminderID)
		if err != nil || ok {
			return m, ok, err
		}
	}
	return p.state.GetByLocal(task.UUID)
}
