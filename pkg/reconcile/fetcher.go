// Package reconcile pulls the remote reminder list and applies it to the
// local task store.
package reconcile

import (
	"context"
	"fmt"

	"github.com/harrisonrobin/twreminders/pkg/reminders"
)

// Snapshot is one export of the remote side. Complete is false when the
// export failed, in which case Reminders is empty and must not be read as
// "the remote has nothing".
type Snapshot struct {
	Reminders []reminders.Reminder
	Complete  bool
}

// IDs returns the identifiers present in the snapshot.
func (s Snapshot) IDs() map[string]struct{} {
	ids := make(map[string]struct{}, len(s.Reminders))
	for _, r := range s.Reminders {
		ids[r.Identifier] = struct{}{}
	}
	return ids
}

type Fetcher struct {
	agent       reminders.Agent
	pendingOnly bool
}

func NewFetcher(agent reminders.Agent, pendingOnly bool) *Fetcher {
	return &Fetcher{agent: agent, pendingOnly: pendingOnly}
}

// Fetch exports the remote records. On failure it returns an incomplete,
// empty snapshot together with the error.
func (f *Fetcher) Fetch(ctx context.Context) (Snapshot, error) {
	rs, err := f.agent.Export(ctx, f.pendingOnly)
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch reminders: %w", err)
	}
	out := make([]reminders.Reminder, 0, len(rs))
	for _, r := range rs {
		if r.Identifier == "" {
			continue
		}
		out = append(out, r)
	}
	return Snapshot{Reminders: out, Complete: true}, nil
}
