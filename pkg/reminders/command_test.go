package reminders

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAgent creates an executable shell script standing in for the agent.
// Arguments are appended to args.log in the same directory.
func writeAgent(t *testing.T, body string) (path, dir string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	dir = t.TempDir()
	path = filepath.Join(dir, "agent")
	script := fmt.Sprintf("#!/bin/sh\nprintf '%%s\\n' \"$@\" >> %s/args.log\n%s\n", dir, body)
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path, dir
}

func loggedArgs(t *testing.T, dir string) []string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(dir, "args.log"))
	require.NoError(t, err)
	return strings.Split(strings.TrimRight(string(b), "\n"), "\n")
}

func TestCommandAgent_Create(t *testing.T) {
	path, dir := writeAgent(t, `echo '{"identifier":"R-1","modificationDate":"2024-01-01T00:00:00Z"}'`)
	a := NewCommandAgent(path, time.Second)

	resp, err := a.Create(context.Background(), CreateRequest{Title: "Buy milk", List: "Reminders", Priority: PriorityHigh})
	require.NoError(t, err)
	assert.Equal(t, "R-1", resp.Identifier)
	assert.Equal(t, "2024-01-01T00:00:00Z", resp.ModificationDate)

	args := loggedArgs(t, dir)
	require.Len(t, args, 2)
	assert.Equal(t, "create", args[0])
	assert.JSONEq(t, `{"title":"Buy milk","list":"Reminders","priority":1}`, args[1])
}

func TestCommandAgent_UpdateSendsOnlyChangedFields(t *testing.T) {
	path, dir := writeAgent(t, `echo '{"identifier":"R-1"}'`)
	a := NewCommandAgent(path, time.Second)

	due := "2024-02-01T09:00:00Z"
	_, err := a.Update(context.Background(), UpdateRequest{Identifier: "R-1", DueDate: &due})
	require.NoError(t, err)

	args := loggedArgs(t, dir)
	require.Len(t, args, 2)
	assert.Equal(t, "update", args[0])
	assert.JSONEq(t, `{"identifier":"R-1","due_date":"2024-02-01T09:00:00Z"}`, args[1])
}

func TestCommandAgent_Export(t *testing.T) {
	path, dir := writeAgent(t, `echo '[{"identifier":"R-1","title":"Buy milk","priority":5,"isCompleted":false,"modificationDate":"2024-01-01T00:00:00Z"}]'`)
	a := NewCommandAgent(path, time.Second)

	got, err := a.Export(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "R-1", got[0].Identifier)
	assert.Equal(t, PriorityMedium, got[0].Priority)
	assert.Equal(t, []string{"export", "--pending-only"}, loggedArgs(t, dir))
}

func TestCommandAgent_NonZeroExit(t *testing.T) {
	path, _ := writeAgent(t, `echo "reminder not found" >&2; exit 3`)
	a := NewCommandAgent(path, time.Second)

	err := a.Delete(context.Background(), "R-9")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgent))

	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.Equal(t, "delete", agentErr.Op)
	assert.Equal(t, 3, agentErr.ExitCode)
	assert.Equal(t, "reminder not found", agentErr.Stderr)
	assert.False(t, agentErr.Timeout())
}

func TestCommandAgent_MalformedResponse(t *testing.T) {
	path, _ := writeAgent(t, `echo 'not json'`)
	_, err := NewCommandAgent(path, time.Second).Export(context.Background(), false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgent))
	assert.Contains(t, err.Error(), "malformed response")
}

func TestCommandAgent_CreateWithoutIdentifier(t *testing.T) {
	path, _ := writeAgent(t, `echo '{}'`)
	_, err := NewCommandAgent(path, time.Second).Create(context.Background(), CreateRequest{Title: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAgent))
}

func TestCommandAgent_Timeout(t *testing.T) {
	path, _ := writeAgent(t, `exec sleep 5`)
	a := NewCommandAgent(path, 100*time.Millisecond)

	start := time.Now()
	_, err := a.Export(context.Background(), false)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 4*time.Second)

	var agentErr *AgentError
	require.True(t, errors.As(err, &agentErr))
	assert.True(t, agentErr.Timeout())
}

func TestPriorityMapping(t *testing.T) {
	tests := []struct {
		task   string
		remote int
	}{
		{"H", PriorityHigh},
		{"M", PriorityMedium},
		{"L", PriorityLow},
		{"", PriorityNone},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%q<->%d", tt.task, tt.remote), func(t *testing.T) {
			assert.Equal(t, tt.remote, PriorityFromTask(tt.task))
			assert.Equal(t, tt.task, PriorityToTask(tt.remote))
		})
	}

	assert.Equal(t, "", PriorityToTask(3), "out-of-scale values map to none")
	assert.Equal(t, PriorityNone, PriorityFromTask("X"))
}
