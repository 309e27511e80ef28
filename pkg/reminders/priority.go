package reminders

import "github.com/harrisonrobin/twreminders/pkg/taskwarrior"

// Remote priorities. Lower is more urgent; 0 means none.
const (
	PriorityNone   = 0
	PriorityHigh   = 1
	PriorityMedium = 5
	PriorityLow    = 9
)

// PriorityFromTask maps H/M/L to 1/5/9. Anything else is none.
func PriorityFromTask(p string) int {
	switch p {
	case taskwarrior.PriorityHigh:
		return PriorityHigh
	case taskwarrior.PriorityMedium:
		return PriorityMedium
	case taskwarrior.PriorityLow:
		return PriorityLow
	}
	return PriorityNone
}

// PriorityToTask maps 1/5/9 to H/M/L. Other values map to no priority.
func PriorityToTask(p int) string {
	switch p {
	case PriorityHigh:
		return taskwarrior.PriorityHigh
	case PriorityMedium:
		return taskwarrior.PriorityMedium
	case PriorityLow:
		return taskwarrior.PriorityLow
	}
	return ""
}
