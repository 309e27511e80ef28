package util

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/twreminders/pkg/locations"
	"github.com/harrisonrobin/twreminders/pkg/reminders"
	"github.com/harrisonrobin/twreminders/pkg/taskwarrior"
)

func float(v float64) *float64 { return &v }

func TestCreateRequestFromTask(t *testing.T) {
	deadline := time.Date(2023, 1, 1, 12, 0, 0, 0, time.UTC)
	task := &taskwarrior.Task{
		UUID:        "12345678-1234-1234-1234-123456789012",
		Description: "Test Task",
		Status:      taskwarrior.PENDING,
		Due:         &taskwarrior.CustomTime{Time: deadline},
		Project:     "Work",
		Priority:    taskwarrior.PriorityMedium,
		Annotations: []taskwarrior.Annotation{{Description: "Note 1"}, {Description: "Note 2"}},
	}

	req := CreateRequestFromTask(task, DefaultList, nil)

	assert.Equal(t, reminders.CreateRequest{
		Title:    "Test Task",
		List:     "Work",
		Priority: reminders.PriorityMedium,
		DueDate:  "2023-01-01T12:00:00Z",
		Notes:    "Note 1\nNote 2",
	}, req)
}

func TestCreateRequestFromTask_DefaultList(t *testing.T) {
	req := CreateRequestFromTask(&taskwarrior.Task{Description: "x"}, "", nil)
	assert.Equal(t, DefaultList, req.List)
	assert.Equal(t, reminders.PriorityNone, req.Priority)
	assert.Empty(t, req.DueDate)

	req = CreateRequestFromTask(&taskwarrior.Task{Description: "x"}, "Inbox", nil)
	assert.Equal(t, "Inbox", req.List)
}

func TestCreateRequestFromTask_Geofence(t *testing.T) {
	dir := &locations.Directory{Locations: map[string]locations.Location{
		"gym":    {Name: "Climbing gym", Lat: 52.5, Lon: 13.4},
		"office": {Name: "Office", Lat: 48.1, Lon: 11.6, Radius: float(250)},
	}}

	t.Run("directory hit uses default radius", func(t *testing.T) {
		req := CreateRequestFromTask(&taskwarrior.Task{Description: "Chalk", Loc: "gym"}, DefaultList, dir)
		assert.Equal(t, "Climbing gym", req.LocationName)
		require.NotNil(t, req.LocationLat)
		assert.Equal(t, 52.5, *req.LocationLat)
		assert.Equal(t, 13.4, *req.LocationLon)
		assert.Equal(t, locations.DefaultRadius, *req.LocationRadius)
		assert.Empty(t, req.LocationTrigger)
	})

	t.Run("directory radius", func(t *testing.T) {
		req := CreateRequestFromTask(&taskwarrior.Task{Description: "Report", Loc: "off"}, DefaultList, dir)
		assert.Equal(t, "Office", req.LocationName)
		assert.Equal(t, 250.0, *req.LocationRadius)
	})

	t.Run("task radius and trigger win", func(t *testing.T) {
		req := CreateRequestFromTask(&taskwarrior.Task{
			Description:     "Report",
			Loc:             "office",
			LocationRadius:  float(40),
			LocationTrigger: "leaving",
		}, DefaultList, dir)
		assert.Equal(t, 40.0, *req.LocationRadius)
		assert.Equal(t, "leaving", req.LocationTrigger)
	})

	t.Run("miss sends literal name without coordinates", func(t *testing.T) {
		req := CreateRequestFromTask(&taskwarrior.Task{Description: "Fly", Loc: "Airport"}, DefaultList, dir)
		assert.Equal(t, "Airport", req.LocationName)
		assert.Nil(t, req.LocationLat)
		assert.Nil(t, req.LocationLon)
		assert.Nil(t, req.LocationRadius)
	})

	t.Run("miss keeps explicit coordinates", func(t *testing.T) {
		req := CreateRequestFromTask(&taskwarrior.Task{
			Description: "Fly",
			Loc:         "Airport",
			LocationLat: float(50.03),
			LocationLon: float(8.57),
		}, DefaultList, dir)
		assert.Equal(t, "Airport", req.LocationName)
		assert.Equal(t, 50.03, *req.LocationLat)
		assert.Equal(t, 8.57, *req.LocationLon)
	})

	t.Run("no loc ignores coordinates", func(t *testing.T) {
		req := CreateRequestFromTask(&taskwarrior.Task{Description: "x", LocationLat: float(1), LocationLon: float(2)}, DefaultList, dir)
		assert.Empty(t, req.LocationName)
		assert.Nil(t, req.LocationLat)
	})
}

func TestUpdateRequestFor(t *testing.T) {
	due := taskwarrior.NewTime(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC))
	base := &taskwarrior.Task{
		UUID:        "u1",
		Description: "Buy milk",
		Status:      taskwarrior.PENDING,
		Priority:    taskwarrior.PriorityLow,
	}

	t.Run("due only", func(t *testing.T) {
		updated := base.Clone()
		updated.Due = due
		req := UpdateRequestFor("R1", base, updated)

		assert.Equal(t, "R1", req.Identifier)
		require.NotNil(t, req.DueDate)
		assert.Equal(t, "2024-06-01T09:00:00Z", *req.DueDate)
		assert.Nil(t, req.Title)
		assert.Nil(t, req.Priority)
		assert.Nil(t, req.IsCompleted)
	})

	t.Run("cleared due", func(t *testing.T) {
		old := base.Clone()
		old.Due = due
		req := UpdateRequestFor("R1", old, base)
		require.NotNil(t, req.DueDate)
		assert.Equal(t, "", *req.DueDate)
	})

	t.Run("title and priority", func(t *testing.T) {
		updated := base.Clone()
		updated.Description = "Buy oat milk"
		updated.Priority = ""
		req := UpdateRequestFor("R1", base, updated)
		assert.Equal(t, "Buy oat milk", *req.Title)
		assert.Equal(t, reminders.PriorityNone, *req.Priority)
		assert.Nil(t, req.DueDate)
	})

	t.Run("completion edge", func(t *testing.T) {
		done := base.Clone()
		done.Status = taskwarrior.COMPLETED
		req := UpdateRequestFor("R1", base, done)
		require.NotNil(t, req.IsCompleted)
		assert.True(t, *req.IsCompleted)

		req = UpdateRequestFor("R1", done, base)
		require.NotNil(t, req.IsCompleted)
		assert.False(t, *req.IsCompleted)
	})

	t.Run("no edge between pending and waiting", func(t *testing.T) {
		waiting := base.Clone()
		waiting.Status = taskwarrior.WAITING
		assert.True(t, UpdateRequestFor("R1", base, waiting).Empty())
	})

	t.Run("untracked field changes are empty", func(t *testing.T) {
		updated := base.Clone()
		updated.Project = "Errands"
		updated.Annotations = []taskwarrior.Annotation{{Description: "two litres"}}
		updated.Modified = taskwarrior.NewTime(time.Now())
		assert.True(t, UpdateRequestFor("R1", base, updated).Empty())
	})
}

func TestTaskFromReminder(t *testing.T) {
	r := reminders.Reminder{
		Identifier:        "R-7",
		Title:             "Buy milk",
		List:              "Groceries",
		Priority:          reminders.PriorityHigh,
		DueDate:           "2024-06-01T09:00:00Z",
		Notes:             "two litres",
		HasLocation:       true,
		LocationName:      "Market",
		LocationLatitude:  52.1,
		LocationLongitude: 13.2,
	}

	task := TaskFromReminder(r, DefaultList)

	assert.Equal(t, "Buy milk", task.Description)
	assert.Equal(t, taskwarrior.PENDING, task.Status)
	assert.Equal(t, "Groceries", task.Project)
	assert.Equal(t, taskwarrior.PriorityHigh, task.Priority)
	assert.Equal(t, "R-7", task.ReminderID)
	assert.Equal(t, "2024-06-01T09:00:00Z", task.Due.ISO())
	assert.Equal(t, "two litres", task.Notes())
	assert.Equal(t, "Market", task.Loc)
	assert.Equal(t, 52.1, *task.LocationLat)
	assert.Equal(t, 13.2, *task.LocationLon)
}

func TestTaskFromReminder_DefaultListAndBadDate(t *testing.T) {
	task := TaskFromReminder(reminders.Reminder{Identifier: "R", Title: "x", List: DefaultList, DueDate: "someday"}, DefaultList)
	assert.Empty(t, task.Project)
	assert.Nil(t, task.Due)
	assert.Empty(t, task.Priority)
	assert.Empty(t, task.Annotations)
	assert.Empty(t, task.Loc)
}

func TestApplyReminder(t *testing.T) {
	now := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
	task := &taskwarrior.Task{
		UUID:        "u1",
		Description: "old",
		Status:      taskwarrior.PENDING,
		Project:     "Errands",
		Priority:    taskwarrior.PriorityLow,
		Due:         taskwarrior.NewTime(now),
		Annotations: []taskwarrior.Annotation{{Description: "kept"}},
	}

	ApplyReminder(task, reminders.Reminder{Title: "new", List: DefaultList, IsCompleted: true}, DefaultList, now)

	assert.Equal(t, "new", task.Description)
	assert.Empty(t, task.Project)
	assert.Empty(t, task.Priority)
	assert.Nil(t, task.Due)
	assert.Equal(t, taskwarrior.COMPLETED, task.Status)
	assert.Equal(t, now, task.End.Time)
	assert.Equal(t, "kept", task.Notes(), "annotations are not synced on update")

	ApplyReminder(task, reminders.Reminder{Title: "new", List: "Work", Priority: reminders.PriorityMedium}, DefaultList, now)
	assert.Equal(t, taskwarrior.PENDING, task.Status)
	assert.Nil(t, task.End)
	assert.Equal(t, "Work", task.Project)
	assert.Equal(t, taskwarrior.PriorityMedium, task.Priority)
}

func TestParseRemoteTime(t *testing.T) {
	tests := []struct {
		in   string
		ok   bool
		want string
	}{
		{"2024-06-01T09:00:00Z", true, "2024-06-01T09:00:00Z"},
		{"2024-06-01T09:00:00.123Z", true, "2024-06-01T09:00:00Z"},
		{"2024-06-01T11:00:00+02:00", true, "2024-06-01T09:00:00Z"},
		{"", false, ""},
		{"tomorrow", false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRemoteTime(tt.in)
			require.Equal(t, tt.ok, ok)
			if ok {
				assert.Equal(t, tt.want, FormatRemoteTime(got.Truncate(time.Second)))
			}
		})
	}

	local, ok := ParseRemoteTime("2024-06-01")
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(local.Format(time.RFC3339), "2024-06-01T00:00:00"))
}
