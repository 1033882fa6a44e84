package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// AgendaItem pairs an event with its occurrences inside the requested
// window.
type AgendaItem struct {
	Event     Event           `json:"event"`
	Instances []EventInstance `json:"instances"`
}

// AgendaOptions tunes an Agenda call.
type AgendaOptions struct {
	CalendarIDs     []string
	UseCache        bool
	IncludeWebhooks bool
}

// Agenda returns events and their instances within [start, end).
func (c *Client) Agenda(ctx context.Context, start, end time.Time, opts AgendaOptions) ([]AgendaItem, error) {
	q := make(url.Values)
	q.Set("start", start.UTC().Format(time.RFC3339))
	q.Set("end", end.UTC().Format(time.RFC3339))
	q.Set("use_cache", strconv.FormatBool(opts.UseCache))
	q.Set("include_webhooks", strconv.FormatBool(opts.IncludeWebhooks))
	for _, id := range opts.CalendarIDs {
		q.Add("calendar_ids", id)
	}

	var items []AgendaItem
	if err := c.do(ctx, http.MethodGet, "/agenda", q, nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SearchResult is one fuzzy-search hit, optionally with a relevance
// score and the matching instances.
type SearchResult struct {
	Event     Event           `json:"event"`
	Score     float64         `json:"score,omitempty"`
	Instances []EventInstance `json:"instances,omitempty"`
}

// SearchOptions tunes SearchEvents. Zero times and nil filters are
// omitted from the query.
type SearchOptions struct {
	Start            time.Time
	End              time.Time
	CalendarIDs      []string
	IsActive         *bool
	Limit            int
	Offset           int
	IncludeInstances bool
}

// SearchEvents performs a fuzzy search over event names.
func (c *Client) SearchEvents(ctx context.Context, query string, opts SearchOptions) ([]SearchResult, error) {
	q := make(url.Values)
	q.Set("q", query)
	if !opts.Start.IsZero() {
		q.Set("start", opts.Start.UTC().Format(time.RFC3339))
	}
	if !opts.End.IsZero() {
		q.Set("end", opts.End.UTC().Format(time.RFC3339))
	}
	for _, id := range opts.CalendarIDs {
		q.Add("calendar_ids", id)
	}
	if opts.IsActive != nil {
		q.Set("is_active", strconv.FormatBool(*opts.IsActive))
	}
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(opts.Offset))
	q.Set("include_instances", strconv.FormatBool(opts.IncludeInstances))

	var results []SearchResult
	if err := c.do(ctx, http.MethodGet, "/agenda/search", q, nil, &results); err != nil {
		return nil, err
	}
	return results, nil
}
