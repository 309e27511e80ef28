package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/tasks/v1"

	"github.com/harrisonrobin/twreminders/pkg/reminders"
)

const (
	statusCompleted   = "completed"
	statusNeedsAction = "needsAction"

	// fingerprintLayout has a fixed width so timestamps compare lexically.
	fingerprintLayout = "2006-01-02T15:04:05.000Z07:00"
)

// TasksClient is a reminders.Agent backed by the Google Tasks API. Task
// lists play the part of reminder lists and identifiers have the form
// "<tasklist-id>/<task-id>". Google Tasks has no priority or location, so
// those fields are dropped on write and read back empty. Every operation
// is bounded by the client's timeout.
type TasksClient struct {
	srv     *tasks.Service
	timeout time.Duration
	log     *slog.Logger

	mu    sync.Mutex
	lists map[string]string // title -> id
}

var _ reminders.Agent = (*TasksClient)(nil)

// NewTasksClient wraps an authenticated service. A non-positive timeout
// means reminders.DefaultTimeout.
func NewTasksClient(srv *tasks.Service, timeout time.Duration, log *slog.Logger) *TasksClient {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = reminders.DefaultTimeout
	}
	return &TasksClient{srv: srv, timeout: timeout, log: log}
}

func (c *TasksClient) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, c.timeout)
}

func agentErr(op string, err error) error {
	return &reminders.AgentError{Op: op, Err: err}
}

// SplitID splits a composite identifier into tasklist and task ids.
func SplitID(id string) (listID, taskID string, err error) {
	listID, taskID, ok := strings.Cut(id, "/")
	if !ok || listID == "" || taskID == "" {
		return "", "", fmt.Errorf("malformed Google Tasks identifier %q", id)
	}
	return listID, taskID, nil
}

func joinID(listID, taskID string) string {
	return listID + "/" + taskID
}

// normalizeTime renders an RFC 3339 timestamp in UTC with millisecond
// precision. Unparseable values are returned unchanged.
func normalizeTime(s string) string {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(fingerprintLayout)
}

// listIDs returns every task list, keyed by title.
func (c *TasksClient) listIDs(ctx context.Context) (map[string]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lists != nil {
		return c.lists, nil
	}
	lists := make(map[string]string)
	err := c.srv.Tasklists.List().MaxResults(100).Pages(ctx, func(page *tasks.TaskLists) error {
		for _, tl := range page.Items {
			if _, dup := lists[tl.Title]; !dup {
				lists[tl.Title] = tl.Id
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("unable to retrieve task lists: %w", err)
	}
	c.lists = lists
	return lists, nil
}

// ensureList returns the id of the list with the given title, creating it
// when missing.
func (c *TasksClient) ensureList(ctx context.Context, title string) (string, error) {
	lists, err := c.listIDs(ctx)
	if err != nil {
		return "", err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if id, ok := lists[title]; ok {
		return id, nil
	}
	created, err := c.srv.Tasklists.Insert(&tasks.TaskList{Title: title}).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("unable to create task list %q: %w", title, err)
	}
	lists[title] = created.Id
	c.log.Info("created task list", "title", title, "id", created.Id)
	return created.Id, nil
}

func (c *TasksClient) Create(ctx context.Context, req reminders.CreateRequest) (reminders.Response, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	listID, err := c.ensureList(ctx, req.List)
	if err != nil {
		return reminders.Response{}, agentErr("create", err)
	}
	if req.LocationName != "" {
		c.log.Debug("Google Tasks has no locations, dropping", "location", req.LocationName)
	}

	t := &tasks.Task{Title: req.Title, Notes: req.Notes, Due: req.DueDate}
	created, err := c.srv.Tasks.Insert(listID, t).Context(ctx).Do()
	if err != nil {
		return reminders.Response{}, agentErr("create", err)
	}
	return reminders.Response{
		Identifier:       joinID(listID, created.Id),
		ModificationDate: normalizeTime(created.Updated),
	}, nil
}

// Update patches the changed fields. A change of priority alone makes no
// API call.
func (c *TasksClient) Update(ctx context.Context, req reminders.UpdateRequest) (reminders.Response, error) {
	listID, taskID, err := SplitID(req.Identifier)
	if err != nil {
		return reminders.Response{}, agentErr("update", err)
	}

	patch := &tasks.Task{}
	changed := false
	if req.Title != nil {
		patch.Title = *req.Title
		patch.ForceSendFields = append(patch.ForceSendFields, "Title")
		changed = true
	}
	if req.DueDate != nil {
		if *req.DueDate == "" {
			patch.NullFields = append(patch.NullFields, "Due")
		} else {
			patch.Due = *req.DueDate
		}
		changed = true
	}
	if req.IsCompleted != nil {
		if *req.IsCompleted {
			patch.Status = statusCompleted
		} else {
			patch.Status = statusNeedsAction
			patch.NullFields = append(patch.NullFields, "Completed")
		}
		changed = true
	}
	if !changed {
		return reminders.Response{Identifier: req.Identifier}, nil
	}

	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	updated, err := c.srv.Tasks.Patch(listID, taskID, patch).Context(ctx).Do()
	if err != nil {
		return reminders.Response{}, agentErr("update", err)
	}
	return reminders.Response{
		Identifier:       req.Identifier,
		ModificationDate: normalizeTime(updated.Updated),
	}, nil
}

// Delete removes the task. A task that is already gone counts as deleted.
func (c *TasksClient) Delete(ctx context.Context, identifier string) error {
	listID, taskID, err := SplitID(identifier)
	if err != nil {
		return agentErr("delete", err)
	}
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()
	err = c.srv.Tasks.Delete(listID, taskID).Context(ctx).Do()
	var gerr *googleapi.Error
	if errors.As(err, &gerr) && (gerr.Code == http.StatusNotFound || gerr.Code == http.StatusGone) {
		return nil
	}
	if err != nil {
		return agentErr("delete", err)
	}
	return nil
}

// Export lists the tasks of every task list.
func (c *TasksClient) Export(ctx context.Context, pendingOnly bool) ([]reminders.Reminder, error) {
	ctx, cancel := c.withTimeout(ctx)
	defer cancel()

	lists, err := c.listIDs(ctx)
	if err != nil {
		return nil, agentErr("export", err)
	}

	var out []reminders.Reminder
	for title, listID := range lists {
		call := c.srv.Tasks.List(listID).
			ShowCompleted(!pendingOnly).
			ShowHidden(!pendingOnly).
			MaxResults(100)
		err := call.Pages(ctx, func(page *tasks.Tasks) error {
			for _, t := range page.Items {
				if t.Deleted {
					continue
				}
				out = append(out, toReminder(listID, title, t))
			}
			return nil
		})
		if err != nil {
			return nil, agentErr("export", fmt.Errorf("list tasks of %q: %w", title, err))
		}
	}
	return out, nil
}

func toReminder(listID, listTitle string, t *tasks.Task) reminders.Reminder {
	return reminders.Reminder{
		Identifier:       joinID(listID, t.Id),
		Title:            t.Title,
		List:             listTitle,
		DueDate:          t.Due,
		IsCompleted:      t.Status == statusCompleted,
		ModificationDate: normalizeTime(t.Updated),
		Notes:            t.Notes,
	}
}
