package taskwarrior

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	PENDING   = "pending"
	COMPLETED = "completed"
	WAITING   = "waiting"
	DELETED   = "deleted"
	RECURRING = "recurring"
)

// Priorities as Taskwarrior stores them.
const (
	PriorityHigh   = "H"
	PriorityMedium = "M"
	PriorityLow    = "L"
)

type CustomTime struct {
	time.Time
}

const taskwarriorTimeLayout = "20060102T150405Z" // YYYYMMDDTHHMMSSZ, 'Z' indicates UTC

// NewTime wraps t, normalized to UTC and truncated to the second Taskwarrior stores.
func NewTime(t time.Time) *CustomTime {
	return &CustomTime{Time: t.UTC().Truncate(time.Second)}
}

// UnmarshalJSON implements the json.Unmarshaler interface for CustomTime.
func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`) // Remove surrounding quotes
	if s == "" || s == "0" {          // Handle empty string or "0" if Taskwarrior ever outputs it
		ct.Time = time.Time{} // Set to zero value
		return nil
	}

	t, err := time.Parse(taskwarriorTimeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse Taskwarrior time string '%s': %w", s, err)
	}
	ct.Time = t
	return nil
}

// MarshalJSON implements the json.Marshaler interface for CustomTime.
func (ct CustomTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte(`""`), nil // Export zero time as empty string
	}
	return []byte(`"` + ct.Time.Format(taskwarriorTimeLayout) + `"`), nil
}

// ISO renders the time as RFC 3339 in UTC, or "" when unset.
func (ct *CustomTime) ISO() string {
	if ct == nil || ct.Time.IsZero() {
		return ""
	}
	return ct.Time.UTC().Format(time.RFC3339)
}

// IsSet reports whether ct holds a non-zero time.
func (ct *CustomTime) IsSet() bool {
	return ct != nil && !ct.Time.IsZero()
}

type Annotation struct {
	Description string      `json:"description"`
	Entry       *CustomTime `json:"entry,omitempty"`
}

// Task is a Taskwarrior task as exported by `task export`.
//
// Only the fields the sync understands are typed. Everything else
// (tags, urgency, user UDAs, ...) is kept in extra and written back
// unchanged on import.
type Task struct {
	UUID        string       `json:"uuid"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	Project     string       `json:"project,omitempty"`
	Priority    string       `json:"priority,omitempty"`
	Due         *CustomTime  `json:"due,omitempty"`
	Entry       *CustomTime  `json:"entry,omitempty"`
	Modified    *CustomTime  `json:"modified,omitempty"`
	End         *CustomTime  `json:"end,omitempty"`
	Annotations []Annotation `json:"annotations,omitempty"`

	// UDAs
	ReminderID      string   `json:"reminder_id,omitempty"`
	Loc             string   `json:"loc,omitempty"`
	LocationLat     *float64 `json:"location_lat,omitempty"`
	LocationLon     *float64 `json:"location_lon,omitempty"`
	LocationRadius  *float64 `json:"location_radius,omitempty"`
	LocationTrigger string   `json:"location_trigger,omitempty"`

	extra map[string]json.RawMessage
}

// knownFields lists the JSON keys owned by the typed fields of Task.
var knownFields = []string{
	"uuid", "description", "status", "project", "priority", "due", "entry",
	"modified", "end", "annotations", "reminder_id", "loc", "location_lat",
	"location_lon", "location_radius", "location_trigger",
}

type taskFields Task

func (t *Task) UnmarshalJSON(b []byte) error {
	var fields taskFields
	if err := json.Unmarshal(b, &fields); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	for _, k := range knownFields {
		delete(raw, k)
	}
	*t = Task(fields)
	if len(raw) > 0 {
		t.extra = raw
	}
	return nil
}

func (t Task) MarshalJSON() ([]byte, error) {
	typed, err := json.Marshal(taskFields(t))
	if err != nil {
		return nil, err
	}
	if len(t.extra) == 0 {
		return typed, nil
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(typed, &out); err != nil {
		return nil, err
	}
	for k, v := range t.extra {
		if _, owned := out[k]; !owned {
			out[k] = v
		}
	}
	return json.Marshal(out)
}

// Extra returns the raw value of a field the Task does not model.
func (t *Task) Extra(key string) (json.RawMessage, bool) {
	v, ok := t.extra[key]
	return v, ok
}

// Notes joins the annotation descriptions with newlines.
func (t *Task) Notes() string {
	parts := make([]string, 0, len(t.Annotations))
	for _, a := range t.Annotations {
		parts = append(parts, a.Description)
	}
	return strings.Join(parts, "\n")
}

// Fingerprint is the last-modified marker used for sync bookkeeping:
// modified if Taskwarrior set it, otherwise entry.
func (t *Task) Fingerprint() string {
	if t.Modified.IsSet() {
		return t.Modified.ISO()
	}
	return t.Entry.ISO()
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	c := *t
	c.Annotations = append([]Annotation(nil), t.Annotations...)
	c.Due = cloneTime(t.Due)
	c.Entry = cloneTime(t.Entry)
	c.Modified = cloneTime(t.Modified)
	c.End = cloneTime(t.End)
	c.LocationLat = cloneFloat(t.LocationLat)
	c.LocationLon = cloneFloat(t.LocationLon)
	c.LocationRadius = cloneFloat(t.LocationRadius)
	if t.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(t.extra))
		for k, v := range t.extra {
			c.extra[k] = v
		}
	}
	return &c
}

func cloneTime(ct *CustomTime) *CustomTime {
	if ct == nil {
		return nil
	}
	c := *ct
	return &c
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	c := *f
	return &c
}
