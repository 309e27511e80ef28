package taskwarrior

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"time"

	"github.com/google/uuid"
)

// Store is the data-access layer for local tasks.
//
// Get returns (nil, nil) when no task has the given uuid.
type Store interface {
	Get(ctx context.Context, uuid string) (*Task, error)
	Query(ctx context.Context, filter ...string) ([]Task, error)
	Create(ctx context.Context, task *Task) (*Task, error)
	Save(ctx context.Context, task *Task) (*Task, error)
	Delete(ctx context.Context, uuid string) error
}

// Client talks to Taskwarrior through the task binary. Every call runs
// with hooks disabled so writes made on behalf of the sync are not fed
// back into the sync hooks.
type Client struct {
	binary  string
	dataDir string
	timeNow func() time.Time
	newUUID func() string
}

type ClientOption func(*Client)

// WithBinary overrides the task executable (default "task").
func WithBinary(path string) ClientOption {
	return func(c *Client) {
		if path != "" {
			c.binary = path
		}
	}
}

// WithDataDir points Taskwarrior at a non-default data location.
func WithDataDir(dir string) ClientOption {
	return func(c *Client) {
		c.dataDir = dir
	}
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		binary:  "task",
		timeNow: time.Now,
		newUUID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ Store = (*Client)(nil)

func (c *Client) baseArgs() []string {
	args := []string{"rc.hooks=0", "rc.confirmation=off", "rc.verbose=nothing"}
	if c.dataDir != "" {
		args = append(args, "rc.data.location="+c.dataDir)
	}
	return args
}

func (c *Client) run(ctx context.Context, stdin io.Reader, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.binary, append(c.baseArgs(), args...)...)
	cmd.Stdin = stdin
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("taskwarrior command failed: exit code %d, %s, stderr: %s",
				exitErr.ExitCode(), err, stderr.String())
		}
		return nil, fmt.Errorf("taskwarrior command failed: %w", err)
	}
	return output, nil
}

// Query exports the tasks matching filter.
func (c *Client) Query(ctx context.Context, filter ...string) ([]Task, error) {
	args := append(append([]string{}, filter...), "export")
	output, err := c.run(ctx, nil, args...)
	if err != nil {
		return nil, err
	}

	var tasks []Task
	if err := json.Unmarshal(bytes.TrimSpace(output), &tasks); err != nil {
		return nil, fmt.Errorf("failed to unmarshal taskwarrior output: %w", err)
	}
	return tasks, nil
}

// Get looks a task up by uuid. Deleted tasks are still returned; callers
// check Status.
func (c *Client) Get(ctx context.Context, id string) (*Task, error) {
	if id == "" {
		return nil, nil
	}
	tasks, err := c.Query(ctx, "uuid:"+id)
	if err != nil {
		return nil, err
	}
	for i := range tasks {
		if tasks[i].UUID == id {
			return &tasks[i], nil
		}
	}
	return nil, nil
}

// Create imports a new task and returns it as Taskwarrior stored it.
func (c *Client) Create(ctx context.Context, task *Task) (*Task, error) {
	t := task.Clone()
	if t.UUID == "" {
		t.UUID = c.newUUID()
	}
	if t.Status == "" {
		t.Status = PENDING
	}
	if !t.Entry.IsSet() {
		t.Entry = NewTime(c.timeNow())
	}
	return c.importTask(ctx, t)
}

// Save writes the whole task back, stamping a fresh modified time.
func (c *Client) Save(ctx context.Context, task *Task) (*Task, error) {
	if task.UUID == "" {
		return nil, fmt.Errorf("cannot save task without uuid")
	}
	t := task.Clone()
	t.Modified = NewTime(c.timeNow())
	return c.importTask(ctx, t)
}

// Delete marks the task deleted.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.run(ctx, nil, id, "delete")
	return err
}

func (c *Client) importTask(ctx context.Context, t *Task) (*Task, error) {
	payload, err := json.Marshal([]*Task{t})
	if err != nil {
		return nil, fmt.Errorf("failed to encode task %s: %w", t.UUID, err)
	}
	if _, err := c.run(ctx, bytes.NewReader(payload), "import"); err != nil {
		return nil, err
	}
	stored, err := c.Get(ctx, t.UUID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("task %s missing after import", t.UUID)
	}
	return stored, nil
}

// ParseTask parses a single task JSON from an io.Reader
func ParseTask(r io.Reader) (Task, error) {
	var task Task
	if err := json.NewDecoder(r).Decode(&task); err != nil {
		return Task{}, fmt.Errorf("failed to decode task json: %w", err)
	}
	return task, nil
}

// ParseTasks parses multiple JSON objects from an io.Reader (e.g. for hooks that send multiple lines)
func ParseTasks(r io.Reader) ([]Task, error) {
	var tasks []Task
	decoder := json.NewDecoder(r)
	for {
		var task Task
		if err := decoder.Decode(&task); err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to decode task json: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, nil
}
