package cli

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/twreminders/pkg/locations"
	"github.com/harrisonrobin/twreminders/pkg/propagate"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
)

func (a *app) newHookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hook",
		Short: "Taskwarrior hook entry points",
		Long: `Entry points for Taskwarrior's on-add and on-modify hooks. Install them as

  ~/.task/hooks/on-add.tw-reminders:    tw-reminders hook on-add
  ~/.task/hooks/on-modify.tw-reminders: tw-reminders hook on-modify

The hooks never reject an edit: the task is always written back and
failures are only logged to stderr.`,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:         "on-add",
			Short:       "Create the reminder for a newly added task",
			Args:        cobra.NoArgs,
			Annotations: map[string]string{hookAnnotation: "on-add"},
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runHook(cmd, 1, a.onAdd)
			},
		},
		&cobra.Command{
			Use:         "on-modify",
			Short:       "Push a task edit to its reminder",
			Args:        cobra.NoArgs,
			Annotations: map[string]string{hookAnnotation: "on-modify"},
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.runHook(cmd, 2, a.onModify)
			},
		},
	)
	return cmd
}

// hookFunc receives the parsed input tasks and returns the task to hand
// back. The returned task must be non-nil even when err is set.
type hookFunc func(ctx context.Context, p *propagate.Propagator, tasks []taskwarrior.Task) (*taskwarrior.Task, error)

// runHook reads want JSON lines from stdin and always writes exactly one
// line back: the task from fn, or the last input line when the input or
// the configuration is unusable.
func (a *app) runHook(cmd *cobra.Command, want int, fn hookFunc) error {
	lines, err := readLines(cmd.InOrStdin())
	if err != nil {
		a.log.Error("could not read hook input", "error", err)
	}
	if len(lines) == 0 {
		return fmt.Errorf("%s: no task on stdin", cmd.Name())
	}
	out := lines[len(lines)-1]
	defer func() {
		fmt.Fprintln(cmd.OutOrStdout(), out)
	}()

	tasks, err := parseLines(lines)
	if err != nil {
		a.log.Error("could not parse hook input", "hook", cmd.Name(), "error", err)
		return nil
	}
	if len(tasks) < want {
		a.log.Error("hook input is incomplete", "hook", cmd.Name(), "want", want, "got", len(tasks))
		return nil
	}
	if a.cfgErr != nil {
		a.log.Error("configuration unusable, task left unsynced", "hook", cmd.Name(), "error", a.cfgErr)
		return nil
	}

	dir, err := locations.Load(a.cfg.LocationsPath())
	if err != nil {
		a.log.Error("could not load location directory, task left unsynced", "hook", cmd.Name(), "error", err)
		return nil
	}

	st, err := a.openState()
	if err != nil {
		a.log.Error("could not open sync state", "hook", cmd.Name(), "error", err)
		return nil
	}
	defer st.Close()

	ctx := cmd.Context()
	agent, err := a.newAgent(ctx, a.cfg, a.log)
	if err != nil {
		a.log.Error("could not reach the reminder service", "hook", cmd.Name(), "error", err)
		return nil
	}

	p := propagate.New(agent, st,
		propagate.WithLocations(dir),
		propagate.WithDefaultList(a.cfg.DefaultList),
		propagate.WithLogger(a.log),
	)
	task, err := fn(ctx, p, tasks[:want])
	if err != nil {
		a.log.Error("hook failed, task left unsynced", "hook", cmd.Name(), "uuid", task.UUID, "error", err)
	}
	b, err := json.Marshal(task)
	if err != nil {
		a.log.Error("could not encode task", "uuid", task.UUID, "error", err)
		return nil
	}
	out = string(b)
	return nil
}

func (a *app) onAdd(ctx context.Context, p *propagate.Propagator, tasks []taskwarrior.Task) (*taskwarrior.Task, error) {
	return p.OnAdd(ctx, &tasks[0])
}

func (a *app) onModify(ctx context.Context, p *propagate.Propagator, tasks []taskwarrior.Task) (*taskwarrior.Task, error) {
	updated := &tasks[1]
	return updated, p.OnModify(ctx, &tasks[0], updated)
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}

func parseLines(lines []string) ([]taskwarrior.Task, error) {
	tasks := make([]taskwarrior.Task, 0, len(lines))
	for i, line := range lines {
		task, err := taskwarrior.ParseTask(bytes.NewReader([]byte(line)))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
