// Package reminders defines the remote reminder records and the agent
// contract used to read and write them.
package reminders

import "context"

// Reminder is one record as returned by the agent's export operation.
type Reminder struct {
	Identifier        string  `json:"identifier"`
	Title             string  `json:"title"`
	List              string  `json:"list,omitempty"`
	Priority          int     `json:"priority"`
	DueDate           string  `json:"dueDate,omitempty"`
	IsCompleted       bool    `json:"isCompleted"`
	ModificationDate  string  `json:"modificationDate,omitempty"`
	Notes             string  `json:"notes,omitempty"`
	HasLocation       bool    `json:"hasLocation,omitempty"`
	LocationName      string  `json:"locationName,omitempty"`
	LocationLatitude  float64 `json:"locationLatitude,omitempty"`
	LocationLongitude float64 `json:"locationLongitude,omitempty"`
}

// CreateRequest is the payload of the agent's create operation.
type CreateRequest struct {
	Title           string   `json:"title"`
	List            string   `json:"list"`
	Priority        int      `json:"priority"`
	DueDate         string   `json:"due_date,omitempty"`
	Notes           string   `json:"notes,omitempty"`
	LocationName    string   `json:"location_name,omitempty"`
	LocationLat     *float64 `json:"location_lat,omitempty"`
	LocationLon     *float64 `json:"location_lon,omitempty"`
	LocationRadius  *float64 `json:"location_radius,omitempty"`
	LocationTrigger string   `json:"location_trigger,omitempty"`
}

// UpdateRequest carries only the fields that changed. A nil field is left
// alone by the agent; an empty DueDate clears the due date.
type UpdateRequest struct {
	Identifier  string  `json:"identifier"`
	Title       *string `json:"title,omitempty"`
	Priority    *int    `json:"priority,omitempty"`
	DueDate     *string `json:"due_date,omitempty"`
	IsCompleted *bool   `json:"is_completed,omitempty"`
}

// Empty reports whether the request changes nothing.
func (u UpdateRequest) Empty() bool {
	return u.Title == nil && u.Priority == nil && u.DueDate == nil && u.IsCompleted == nil
}

// Response is what create and update return.
type Response struct {
	Identifier       string `json:"identifier"`
	ModificationDate string `json:"modificationDate,omitempty"`
}

// Agent performs operations against the remote reminder service.
type Agent interface {
	Create(ctx context.Context, req CreateRequest) (Response, error)
	Update(ctx context.Context, req UpdateRequest) (Response, error)
	Delete(ctx context.Context, identifier string) error
	Export(ctx context.Context, pendingOnly bool) ([]Reminder, error)
}
