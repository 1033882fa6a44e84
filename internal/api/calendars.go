package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Calendar is a server-side calendar resource.
type Calendar struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	Timezone    string    `json:"timezone"`
	Color       string    `json:"color,omitempty"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
	UpdatedAt   time.Time `json:"updated_at,omitzero"`
}

// ListFilter narrows list calls. Zero values are omitted from the query.
type ListFilter struct {
	IsActive *bool
	Limit    int
	Offset   int
}

func (f ListFilter) query() url.Values {
	q := make(url.Values)
	if f.IsActive != nil {
		q.Set("is_active", strconv.FormatBool(*f.IsActive))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if f.Offset > 0 {
		q.Set("offset", strconv.Itoa(f.Offset))
	}
	return q
}

// ListCalendars returns the authenticated user's calendars.
func (c *Client) ListCalendars(ctx context.Context, filter ListFilter) ([]Calendar, error) {
	var calendars []Calendar
	if err := c.do(ctx, http.MethodGet, "/calendars", filter.query(), nil, &calendars); err != nil {
		return nil, err
	}
	return calendars, nil
}

// GetCalendar returns a single calendar by ID.
func (c *Client) GetCalendar(ctx context.Context, calendarID string) (*Calendar, error) {
	var calendar Calendar
	path := "/calendars/" + url.PathEscape(calendarID)
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &calendar); err != nil {
		return nil, err
	}
	return &calendar, nil
}

// CreateCalendarRequest is the payload for CreateCalendar. Timezone
// defaults to UTC server-side when empty.
type CreateCalendarRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Timezone    string `json:"timezone,omitempty"`
	Color       string `json:"color,omitempty"`
}

// CreateCalendar creates a new calendar.
func (c *Client) CreateCalendar(ctx context.Context, req CreateCalendarRequest) (*Calendar, error) {
	var calendar Calendar
	if err := c.do(ctx, http.MethodPost, "/calendars", nil, req, &calendar); err != nil {
		return nil, err
	}
	return &calendar, nil
}

// UpdateCalendarRequest carries partial updates; nil fields are left
// unchanged server-side.
type UpdateCalendarRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
	Timezone    *string `json:"timezone,omitempty"`
	Color       *string `json:"color,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// UpdateCalendar applies a partial update to a calendar.
func (c *Client) UpdateCalendar(ctx context.Context, calendarID string, req UpdateCalendarRequest) (*Calendar, error) {
	var calendar Calendar
	path := "/calendars/" + url.PathEscape(calendarID)
	if err := c.do(ctx, http.MethodPut, path, nil, req, &calendar); err != nil {
		return nil, err
	}
	return &calendar, nil
}

// DeleteCalendar deletes a calendar.
func (c *Client) DeleteCalendar(ctx context.Context, calendarID string) error {
	path := "/calendars/" + url.PathEscape(calendarID)
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}

// ShareCalendar grants another user access to a calendar. Role is
// "viewer" when empty.
func (c *Client) ShareCalendar(ctx context.Context, calendarID, userID, role string) error {
	if role == "" {
		role = "viewer"
	}
	body := map[string]string{
		"user_id": userID,
		"role":    role,
	}
	path := fmt.Sprintf("/calendars/%s/share", url.PathEscape(calendarID))
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// CalendarWebhookURL returns the webhook ingestion URL for a calendar.
func (c *Client) CalendarWebhookURL(ctx context.Context, calendarID string) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	path := fmt.Sprintf("/calendars/%s/webhook-url", url.PathEscape(calendarID))
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return "", err
	}
	return out.URL, nil
}

// LinkEvent attaches an event to a calendar with optional display
// overrides.
func (c *Client) LinkEvent(ctx context.Context, calendarID, eventID string, displayOrder *int, colorOverride string) error {
	body := make(map[string]any)
	if displayOrder != nil {
		body["display_order"] = *displayOrder
	}
	if colorOverride != "" {
		body["color_override"] = colorOverride
	}
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	return c.do(ctx, http.MethodPost, path, nil, body, nil)
}

// UnlinkEvent detaches an event from a calendar.
func (c *Client) UnlinkEvent(ctx context.Context, calendarID, eventID string) error {
	path := fmt.Sprintf("/calendars/%s/events/%s", url.PathEscape(calendarID), url.PathEscape(eventID))
	return c.do(ctx, http.MethodDelete, path, nil, nil, nil)
}
