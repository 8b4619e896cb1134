package server

import (
	"time"

	"worktrack/internal/event"
	"worktrack/internal/item"
)

// Request payloads

type SearchRequest struct {
	State    string `json:"state,omitempty"`
	Assignee string `json:"assignee,omitempty"`
	Label    string `json:"label,omitempty"`
}

type CreateItemRequest struct {
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	State       string         `json:"state,omitempty"`
	Assignee    string         `json:"assignee,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	Fields      map[string]any `json:"fields,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type SetOperationRequest struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

type SetFieldsRequest struct {
	Operations []SetOperationRequest `json:"operations"`
}

type AppendEventRequest struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// Response payloads

type ItemResponse struct {
	UID         string         `json:"uid"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	State       string         `json:"state"`
	Assignee    string         `json:"assignee,omitempty"`
	Labels      []string       `json:"labels,omitempty"`
	CreatedAt   string         `json:"created_at" format:"date-time"`
	UpdatedAt   string         `json:"updated_at" format:"date-time"`
	Fields      map[string]any `json:"fields,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

type EventResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp string `json:"timestamp" format:"date-time"`
	Actor     string `json:"actor,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

func itemResponse(it *item.WorkItem) ItemResponse {
	return ItemResponse{
		UID:         it.UID,
		Title:       it.Title,
		Description: it.Description,
		State:       it.State,
		Assignee:    it.Assignee,
		Labels:      it.Labels,
		CreatedAt:   it.CreatedAt.UTC().Format(time.RFC3339Nano),
		UpdatedAt:   it.UpdatedAt.UTC().Format(time.RFC3339Nano),
		Fields:      it.Fields,
	}
}

func mapItems(items []*item.WorkItem) []ItemResponse {
	out := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemResponse(it))
	}
	return out
}

func eventResponse(ev event.Event) EventResponse {
	return EventResponse{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Timestamp: ev.Timestamp.UTC().Format(time.RFC3339Nano),
		Actor:     ev.Actor,
		Payload:   ev.Payload,
	}
}

func mapEvents(events []event.Event) []EventResponse {
	out := make([]EventResponse, 0, len(events))
	for _, ev := range events {
		out = append(out, eventResponse(ev))
	}
	return out
}
