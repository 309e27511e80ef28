// Package taskwarriortest provides an in-memory taskwarrior.Store for tests.
package taskwarriortest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
)

// Store keeps tasks in memory and stamps entry/modified from a
// controllable clock.
type Store struct {
	mu    sync.Mutex
	tasks map[string]*taskwarrior.Task
	seq   int
	now   time.Time

	// Failing makes every call return the error when non-nil.
	Failing error

	Creates int
	Saves   int
	Deletes int
}

func NewStore() *Store {
	return &Store{
		tasks: make(map[string]*taskwarrior.Task),
		now:   time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

var _ taskwarrior.Store = (*Store)(nil)

// Advance moves the store clock forward.
func (s *Store) Advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

// Put inserts a task as-is, without touching its timestamps.
func (s *Store) Put(t *taskwarrior.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.UUID] = t.Clone()
}

// Task returns a copy of the stored task, or nil.
func (s *Store) Task(id string) *taskwarrior.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tasks[id]; ok {
		return t.Clone()
	}
	return nil
}

// All returns copies of every stored task ordered by uuid.
func (s *Store) All() []*taskwarrior.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*taskwarrior.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out
}

// Mutations is the total number of creates, saves and deletes.
func (s *Store) Mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Creates + s.Saves + s.Deletes
}

func (s *Store) Get(_ context.Context, id string) (*taskwarrior.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Failing != nil {
		return nil, s.Failing
	}
	if t, ok := s.tasks[id]; ok {
		return t.Clone(), nil
	}
	return nil, nil
}

// Query supports "field:value" equality filters on uuid, reminder_id,
// status and project.
func (s *Store) Query(_ context.Context, filter ...string) ([]taskwarrior.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Failing != nil {
		return nil, s.Failing
	}
	var out []taskwarrior.Task
	for _, t := range s.tasks {
		if matches(t, filter) {
			out = append(out, *t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UUID < out[j].UUID })
	return out, nil
}

func matches(t *taskwarrior.Task, filter []string) bool {
	for _, f := range filter {
		field, value, ok := strings.Cut(f, ":")
		if !ok {
			return false
		}
		var got string
		switch field {
		case "uuid":
			got = t.UUID
		case "reminder_id":
			got = t.ReminderID
		case "status":
			got = t.Status
		case "project":
			got = t.Project
		default:
			return false
		}
		if got != value {
			return false
		}
	}
	return true
}

func (s *Store) Create(_ context.Context, task *taskwarrior.Task) (*taskwarrior.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Failing != nil {
		return nil, s.Failing
	}
	t := task.Clone()
	if t.UUID == "" {
		s.seq++
		t.UUID = fmt.Sprintf("00000000-0000-0000-0000-%012d", s.seq)
	}
	if t.Status == "" {
		t.Status = taskwarrior.PENDING
	}
	if !t.Entry.IsSet() {
		t.Entry = taskwarrior.NewTime(s.now)
	}
	t.Modified = taskwarrior.NewTime(s.now)
	s.tasks[t.UUID] = t
	s.Creates++
	return t.Clone(), nil
}

func (s *Store) Save(_ context.Context, task *taskwarrior.Task) (*taskwarrior.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Failing != nil {
		return nil, s.Failing
	}
	if _, ok := s.tasks[task.UUID]; !ok {
		return nil, fmt.Errorf("task %s not found", task.UUID)
	}
	t := task.Clone()
	t.Modified = taskwarrior.NewTime(s.now)
	s.tasks[t.UUID] = t
	s.Saves++
	return t.Clone(), nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Failing != nil {
		return s.Failing
	}
	t, ok := s.tasks[id]
	if !ok {
		return fmt.Errorf("task %s not found", id)
	}
	t.Status = taskwarrior.DELETED
	t.End = taskwarrior.NewTime(s.now)
	t.Modified = taskwarrior.NewTime(s.now)
	s.Deletes++
	return nil
}
