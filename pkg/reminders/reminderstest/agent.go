// Package reminderstest provides a scripted reminders.Agent for tests.
package reminderstest

import (
	"context"
	"fmt"
	"sync"

	"github.com/harrisonrobin/twreminders/pkg/reminders"
)

// Agent records every request and answers from scripted values.
type Agent struct {
	mu sync.Mutex

	// Reminders is returned by Export.
	Reminders []reminders.Reminder

	// Per-operation failures; nil means success.
	CreateErr error
	UpdateErr error
	DeleteErr error
	ExportErr error

	// ModificationDate is echoed in create and update responses.
	ModificationDate string

	Creates []reminders.CreateRequest
	Updates []reminders.UpdateRequest
	Deletes []string
	Exports []bool

	seq int
}

var _ reminders.Agent = (*Agent)(nil)

func (a *Agent) Create(_ context.Context, req reminders.CreateRequest) (reminders.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Creates = append(a.Creates, req)
	if a.CreateErr != nil {
		return reminders.Response{}, a.CreateErr
	}
	a.seq++
	return reminders.Response{
		Identifier:       fmt.Sprintf("remote-%d", a.seq),
		ModificationDate: a.ModificationDate,
	}, nil
}

func (a *Agent) Update(_ context.Context, req reminders.UpdateRequest) (reminders.Response, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Updates = append(a.Updates, req)
	if a.UpdateErr != nil {
		return reminders.Response{}, a.UpdateErr
	}
	return reminders.Response{Identifier: req.Identifier, ModificationDate: a.ModificationDate}, nil
}

func (a *Agent) Delete(_ context.Context, identifier string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Deletes = append(a.Deletes, identifier)
	return a.DeleteErr
}

func (a *Agent) Export(_ context.Context, pendingOnly bool) ([]reminders.Reminder, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.Exports = append(a.Exports, pendingOnly)
	if a.ExportErr != nil {
		return nil, a.ExportErr
	}
	out := make([]reminders.Reminder, 0, len(a.Reminders))
	for _, r := range a.Reminders {
		if pendingOnly && r.IsCompleted {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

// Calls is the number of create, update and delete requests seen.
func (a *Agent) Calls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.Creates) + len(a.Updates) + len(a.Deletes)
}
