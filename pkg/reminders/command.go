package reminders

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout bounds a single agent invocation.
const DefaultTimeout = 10 * time.Second

// ErrAgent is matched by every failure reported by an agent call.
var ErrAgent = errors.New("remote agent call failed")

// AgentError describes one failed agent invocation.
type AgentError struct {
	Op       string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *AgentError) Error() string {
	msg := fmt.Sprintf("agent %s failed", e.Op)
	if e.ExitCode > 0 {
		msg += fmt.Sprintf(" (exit %d)", e.ExitCode)
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *AgentError) Unwrap() error { return e.Err }

func (e *AgentError) Is(target error) bool { return target == ErrAgent }

// Timeout reports whether the call was cut off by its deadline.
func (e *AgentError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// CommandAgent drives the remote service through an external executable:
//
//	<path> create <json>
//	<path> update <json>
//	<path> delete <identifier>
//	<path> export [--pending-only]
type CommandAgent struct {
	path    string
	timeout time.Duration
}

func NewCommandAgent(path string, timeout time.Duration) *CommandAgent {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &CommandAgent{path: path, timeout: timeout}
}

var _ Agent = (*CommandAgent)(nil)

func (a *CommandAgent) Create(ctx context.Context, req CreateRequest) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode create request: %w", err)
	}
	var resp Response
	if err := a.call(ctx, "create", &resp, string(payload)); err != nil {
		return Response{}, err
	}
	if resp.Identifier == "" {
		return Response{}, &AgentError{Op: "create", Err: errors.New("response has no identifier")}
	}
	return resp, nil
}

func (a *CommandAgent) Update(ctx context.Context, req UpdateRequest) (Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("encode update request: %w", err)
	}
	var resp Response
	if err := a.call(ctx, "update", &resp, string(payload)); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func (a *CommandAgent) Delete(ctx context.Context, identifier string) error {
	return a.call(ctx, "delete", nil, identifier)
}

func (a *CommandAgent) Export(ctx context.Context, pendingOnly bool) ([]Reminder, error) {
	var args []string
	if pendingOnly {
		args = append(args, "--pending-only")
	}
	var out []Reminder
	if err := a.call(ctx, "export", &out, args...); err != nil {
		return nil, err
	}
	return out, nil
}

// call runs one operation under the per-call timeout and decodes stdout
// into out when out is non-nil.
func (a *CommandAgent) call(ctx context.Context, op string, out any, args ...string) error {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, a.path, append([]string{op}, args...)...)
	cmd.WaitDelay = time.Second
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		agentErr := &AgentError{Op: op, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		if ctx.Err() != nil {
			agentErr.Err = ctx.Err()
			return agentErr
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			agentErr.ExitCode = exitErr.ExitCode()
		}
		return agentErr
	}

	if out == nil {
		return nil
	}
	body := bytes.TrimSpace(stdout.Bytes())
	if len(body) == 0 {
		return &AgentError{Op: op, Err: errors.New("empty response")}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &AgentError{Op: op, Err: fmt.Errorf("malformed response: %w", err)}
	}
	return nil
}
