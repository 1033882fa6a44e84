package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Event is a server-side event resource. Recurrence semantics live
// entirely server-side; the client treats the rule as opaque.
type Event struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Timezone    string    `json:"timezone,omitempty"`
	CalendarID  string    `json:"calendar_id,omitempty"`
	IsActive    bool      `json:"is_active"`
	Recurrence  string    `json:"recurrence,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// EventInstance is one concrete occurrence of an event.
type EventInstance struct {
	EventID string    `json:"event_id"`
	Start   time.Time `json:"start"`
	End     time.Time `json:"end,omitzero"`
}

// EventListFilter narrows ListEvents.
type EventListFilter struct {
	CalendarID string
	ListFilter
	// Minimal asks the server for a reduced payload per event.
	Minimal bool
}

// ListEvents returns the authenticated user's events.
func (c *Client) ListEvents(ctx context.Context, filter EventListFilter) ([]Event, error) {
	q := filter.ListFilter.query()
	if filter.CalendarID != "" {
		q.Set("calendar_id", filter.CalendarID)
	}
	if filter.Minimal {
		q.Set("minimal", "true")
	}

	var events []Event
	if err := c.do(ctx, http.MethodGet, "/events", q, nil, &events); err != nil {
		return nil, err
	}
	return events, nil
}

// GetEvent returns a single event by ID.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	path := "/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// CreateEventRequest creates an event from a natural-language
// recurrence description, parsed server-side.
type CreateEventRequest struct {
	RecurrenceText string `json:"recurrence_text"`
	Name           string `json:"name,omitempty"`
	Description    string `json:"description,omitempty"`
	Timezone       string `json:"timezone,omitempty"`
	CalendarID     string `json:"calendar_id,omitempty"`
	// Model selects the server-side parsing tier; defaults to "high".
	Model string `json:"model,omitempty"`
}

// CreateEventFromText creates an event from natural-language text.
func (c *Client) CreateEventFromText(ctx context.Context, req CreateEventRequest) (*Event, error) {
	if req.Model == "" {
		req.Model = "high"
	}
	if req.Timezone == "" {
		req.Timezone = "UTC"
	}

	var event Event
	if err := c.do(ctx, http.MethodPost, "/events/from-text", nil, req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// UpdateEventRequest carries partial updates; nil fields are unchanged.
type UpdateEventRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// UpdateEvent applies a partial update to an event.
func (c *Client) UpdateEvent(ctx context.Context, eventID string, req UpdateEventRequest) (*Event, error) {
	var event Event
	path := "/events/" + url.PathEscape(eventID)
	if err := c.do(ctx, http.MethodPut, path, nil, req, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// DeleteEvent deletes an event.
func (c *Client) DeleteEvent(ctx context.Context, eventID string) error {
	path := "/events/" + url.PathEscape(eventID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ToggleEvent flips an event's active status and returns the new state.
func (c *Client) ToggleEvent(ctx context.Context, eventID string) (*Event, error) {
	var event Event
	path := fmt.Sprintf("/events/%s/toggle", url.PathEscape(eventID))
	if err := c.do(ctx, http.MethodPatch, path, nil, nil, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// InstanceRange bounds EventInstances; zero times are omitted.
type InstanceRange struct {
	From      time.Time
	To        time.Time
	Optimized bool
}

// EventInstances returns the concrete occurrences of an event within
// the given range.
func (c *Client) EventInstances(ctx context.Context, eventID string, r InstanceRange) ([]EventInstance, error) {
	q := make(url.Values)
	if !r.From.IsZero() {
		q.Set("from", r.From.UTC().Format(time.RFC3339))
	}
	if !r.To.IsZero() {
		q.Set("to", r.To.UTC().Format(time.RFC3339))
	}
	if r.Optimized {
		q.Set("optimized", "true")
	}

	var instances []EventInstance
	path := fmt.Sprintf("/events/%s/instances", url.PathEscape(eventID))
	if err := c.do(ctx, http.MethodGet, path, q, nil, &instances); err != nil {
		return nil, err
	}
	return instances, nil
}

// NextEventInstance returns the next upcoming occurrence of an event.
func (c *Client) NextEventInstance(ctx context.Context, eventID string) (*EventInstance, error) {
	var instance EventInstance
	path := fmt.Sprintf("/events/%s/next-instance", url.PathEscape(eventID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}
