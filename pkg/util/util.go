// Package util converts between Taskwarrior tasks and remote reminders.
package util

import (
	"strings"
	"time"

	"github.com/harrisonrobin/twreminders/pkg/locations"
	"github.com/harrisonrobin/twreminders/pkg/reminders"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
)

// DefaultList is the remote list that stands for "no project".
const DefaultList = "Reminders"

var remoteTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseRemoteTime parses the ISO 8601 timestamps the agent emits. Times
// without a zone are read as local time.
func ParseRemoteTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range remoteTimeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatRemoteTime renders t the way the agent expects it: RFC 3339 in UTC.
func FormatRemoteTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

// ListForProject returns the remote list for a Taskwarrior project.
func ListForProject(project, defaultList string) string {
	if project == "" {
		return listOrDefault(defaultList)
	}
	return project
}

// ProjectForList returns the Taskwarrior project for a remote list.
func ProjectForList(list, defaultList string) string {
	if list == listOrDefault(defaultList) {
		return ""
	}
	return list
}

func listOrDefault(l string) string {
	if l == "" {
		return DefaultList
	}
	return l
}

// CreateRequestFromTask builds the create payload for a new local task.
//
// A task naming a location (the loc UDA) is resolved against dir. On a hit
// the directory's coordinates and radius are attached. On a miss the name
// is sent literally, together with coordinates only if the task carries
// them. Task-level radius and trigger win in both cases.
func CreateRequestFromTask(task *taskwarrior.Task, defaultList string, dir *locations.Directory) reminders.CreateRequest {
	req := reminders.CreateRequest{
		Title:    task.Description,
		List:     ListForProject(task.Project, defaultList),
		Priority: reminders.PriorityFromTask(task.Priority),
		DueDate:  task.Due.ISO(),
		Notes:    task.Notes(),
	}

	if task.Loc != "" {
		if loc, ok := dir.Lookup(task.Loc); ok {
			lat, lon, radius := loc.Lat, loc.Lon, loc.RadiusOrDefault()
			req.LocationName = loc.Name
			req.LocationLat = &lat
			req.LocationLon = &lon
			req.LocationRadius = &radius
		} else {
			req.LocationName = task.Loc
			req.LocationLat = copyFloat(task.LocationLat)
			req.LocationLon = copyFloat(task.LocationLon)
		}
	}
	if task.LocationRadius != nil && *task.LocationRadius > 0 {
		req.LocationRadius = copyFloat(task.LocationRadius)
	}
	if task.LocationTrigger != "" {
		req.LocationTrigger = task.LocationTrigger
	}
	return req
}

func copyFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

// UpdateRequestFor diffs two snapshots of the same task and returns an
// update carrying only what changed: title, priority, due date and the
// completion edge. Completion is only sent when the task crosses between
// completed and not completed.
func UpdateRequestFor(remoteID string, old, updated *taskwarrior.Task) reminders.UpdateRequest {
	req := reminders.UpdateRequest{Identifier: remoteID}

	if updated.Description != old.Description {
		title := updated.Description
		req.Title = &title
	}
	if updated.Priority != old.Priority {
		p := reminders.PriorityFromTask(updated.Priority)
		req.Priority = &p
	}
	if updated.Due.ISO() != old.Due.ISO() {
		due := updated.Due.ISO()
		req.DueDate = &due
	}

	wasDone := old.Status == taskwarrior.COMPLETED
	isDone := updated.Status == taskwarrior.COMPLETED
	if wasDone != isDone {
		req.IsCompleted = &isDone
	}
	return req
}

// TaskFromReminder builds the local task for a reminder seen for the first
// time. The task carries the reminder identifier in its reminder_id UDA.
func TaskFromReminder(r reminders.Reminder, defaultList string) *taskwarrior.Task {
	t := &taskwarrior.Task{
		Description: r.Title,
		Status:      taskwarrior.PENDING,
		Project:     ProjectForList(r.List, defaultList),
		Priority:    reminders.PriorityToTask(r.Priority),
		ReminderID:  r.Identifier,
	}
	if due, ok := ParseRemoteTime(r.DueDate); ok {
		t.Due = taskwarrior.NewTime(due)
	}
	if r.Notes != "" {
		t.Annotations = []taskwarrior.Annotation{{Description: r.Notes}}
	}
	if r.HasLocation {
		t.Loc = r.LocationName
		if r.LocationLatitude != 0 {
			lat := r.LocationLatitude
			t.LocationLat = &lat
		}
		if r.LocationLongitude != 0 {
			lon := r.LocationLongitude
			t.LocationLon = &lon
		}
	}
	return t
}

// ApplyReminder overwrites the synced fields of task with the reminder's
// values. The remote side wins wholesale: an absent due date or priority
// clears the local one. now stamps the end time when the reminder was
// completed remotely.
func ApplyReminder(task *taskwarrior.Task, r reminders.Reminder, defaultList string, now time.Time) {
	task.Description = r.Title
	task.Project = ProjectForList(r.List, defaultList)
	task.Priority = reminders.PriorityToTask(r.Priority)

	task.Due = nil
	if due, ok := ParseRemoteTime(r.DueDate); ok {
		task.Due = taskwarrior.NewTime(due)
	}

	switch {
	case r.IsCompleted && task.Status != taskwarrior.COMPLETED:
		task.Status = taskwarrior.COMPLETED
		task.End = taskwarrior.NewTime(now)
	case !r.IsCompleted && task.Status == taskwarrior.COMPLETED:
		task.Status = taskwarrior.PENDING
		task.End = nil
	}
}
