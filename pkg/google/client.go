// Package google implements the remote reminder agent on top of Google
// Tasks.
package google

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/harrisonrobin/twreminders/pkg/auth"
)

// NewClient creates a Google Tasks agent using the stored OAuth token.
// timeout bounds each operation.
func NewClient(ctx context.Context, files auth.Files, timeout time.Duration, log *slog.Logger) (*TasksClient, error) {
	srv, err := auth.GetTasksService(ctx, files)
	if err != nil {
		return nil, fmt.Errorf("unable to create Google Tasks client: %w", err)
	}
	return NewTasksClient(srv, timeout, log), nil
}
