package reconcile

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/twreminders/pkg/reminders"
	"github.com/harrisonrobin/twreminders/pkg/reminders/reminderstest"
	"github.com/harrisonrobin/twreminders/pkg/state"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior/taskwarriortest"
)

type runnerFixture struct {
	dir    string
	agent  *reminderstest.Agent
	tasks  *taskwarriortest.Store
	state  state.Store
	runner *Runner
}

func newRunnerFixture(t *testing.T, pendingOnly bool) *runnerFixture {
	t.Helper()
	dir := t.TempDir()
	st, err := state.Open(state.BackendJSON, dir)
	require.NoError(t, err)
	agent := &reminderstest.Agent{}
	tasks := taskwarriortest.NewStore()
	runner := NewRunner(
		filepath.Join(dir, LockFileName),
		NewFetcher(agent, pendingOnly),
		NewReconciler(tasks, st),
		st,
		WithRunnerClock(func() time.Time { return fixedNow }),
	)
	return &runnerFixture{dir: dir, agent: agent, tasks: tasks, state: st, runner: runner}
}

func TestRunner_Run(t *testing.T) {
	f := newRunnerFixture(t, false)
	f.agent.Reminders = []reminders.Reminder{
		{Identifier: "R1", Title: "Buy milk", ModificationDate: "2024-01-01T10:00:00Z"},
	}

	assert.Equal(t, PhaseIdle, f.runner.Phase())
	report, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fetched)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, PhaseDone, f.runner.Phase())
	assert.Equal(t, []bool{false}, f.agent.Exports)

	last, err := f.state.LastSync()
	require.NoError(t, err)
	assert.True(t, fixedNow.Equal(last))
}

func TestRunner_PendingOnlyExport(t *testing.T) {
	f := newRunnerFixture(t, true)
	f.agent.Reminders = []reminders.Reminder{
		{Identifier: "R1", Title: "open"},
		{Identifier: "R2", Title: "done", IsCompleted: true},
	}

	report, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []bool{true}, f.agent.Exports)
	assert.Equal(t, 1, report.Fetched)
}

func TestRunner_LockHeld(t *testing.T) {
	f := newRunnerFixture(t, false)
	f.agent.Reminders = []reminders.Reminder{{Identifier: "R1", Title: "Buy milk"}}

	other := flock.New(filepath.Join(f.dir, LockFileName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	require.True(t, locked)
	defer other.Unlock()

	_, err = f.runner.Run(context.Background())
	assert.True(t, errors.Is(err, ErrAlreadyRunning))
	assert.Empty(t, f.agent.Exports, "no fetch while another run holds the lock")
	assert.Empty(t, f.tasks.All())

	last, err := f.state.LastSync()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestRunner_ReleasesLock(t *testing.T) {
	f := newRunnerFixture(t, false)

	_, err := f.runner.Run(context.Background())
	require.NoError(t, err)
	_, err = f.runner.Run(context.Background())
	require.NoError(t, err, "a finished run must release the lock")

	other := flock.New(filepath.Join(f.dir, LockFileName))
	locked, err := other.TryLock()
	require.NoError(t, err)
	assert.True(t, locked)
	other.Unlock()
}

func TestRunner_FetchFailureNeverDeletes(t *testing.T) {
	f := newRunnerFixture(t, false)
	f.tasks.Put(&taskwarrior.Task{UUID: "L1", Description: "keep me", Status: taskwarrior.PENDING})
	require.NoError(t, f.state.Upsert(state.Mapping{LocalID: "L1", RemoteID: "R1"}))
	f.agent.ExportErr = &reminders.AgentError{Op: "export", ExitCode: 1, Stderr: "access denied"}

	report, err := f.runner.Run(context.Background())
	require.NoError(t, err, "a failed fetch is not a configuration error")
	assert.True(t, report.FetchFailed)
	assert.Equal(t, taskwarrior.PENDING, f.tasks.Task("L1").Status)
	assert.Equal(t, 0, f.tasks.Mutations())

	_, ok, err := f.state.GetByLocal("L1")
	require.NoError(t, err)
	assert.True(t, ok)

	last, err := f.state.LastSync()
	require.NoError(t, err)
	assert.True(t, last.IsZero(), "last_sync only advances after a successful fetch")
}

func TestRunner_MalformedStateAborts(t *testing.T) {
	f := newRunnerFixture(t, false)
	f.agent.Reminders = []reminders.Reminder{{Identifier: "R1", Title: "x"}}
	rec := NewReconciler(f.tasks, brokenState{f.state})
	runner := NewRunner(filepath.Join(f.dir, LockFileName), NewFetcher(f.agent, false), rec, f.state)

	_, err := runner.Run(context.Background())
	require.Error(t, err)

	last, err := f.state.LastSync()
	require.NoError(t, err)
	assert.True(t, last.IsZero())
}

func TestReport_String(t *testing.T) {
	assert.Equal(t, "fetched=1 created=1 updated=0 deleted=0 unlinked=0 skipped=0 failed=0", Report{Fetched: 1, Created: 1}.String())
	assert.Equal(t, "fetched=0 created=0 updated=0 deleted=0 unlinked=0 skipped=0 failed=0 fetch_failed=true", Report{FetchFailed: true}.String())
}

func TestPhase_String(t *testing.T) {
	assert.Equal(t, "idle", PhaseIdle.String())
	assert.Equal(t, "locked", PhaseLocked.String())
	assert.Equal(t, "running", PhaseRunning.String())
	assert.Equal(t, "done", PhaseDone.String())
	assert.Equal(t, "phase(9)", Phase(9).String())
}

func TestFetcher_DropsRecordsWithoutIdentifier(t *testing.T) {
	agent := &reminderstest.Agent{Reminders: []reminders.Reminder{{Identifier: "R1"}, {Title: "no id"}}}
	snap, err := NewFetcher(agent, false).Fetch(context.Background())
	require.NoError(t, err)
	assert.True(t, snap.Complete)
	assert.Len(t, snap.Reminders, 1)
	assert.Equal(t, map[string]struct{}{"R1": {}}, snap.IDs())
}

func TestFetcher_Failure(t *testing.T) {
	agent := &reminderstest.Agent{ExportErr: errors.New("boom")}
	snap, err := NewFetcher(agent, false).Fetch(context.Background())
	require.Error(t, err)
	assert.False(t, snap.Complete)
	assert.Empty(t, snap.Reminders)
}
