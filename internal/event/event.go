// Package event models the append-only change history of a work item.
// Events are immutable once written: the log for an item is a strictly
// append-ordered sequence whose concatenation is the item's full history.
package event

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Type discriminates the payload carried by an event.
type Type string

const (
	TypeCreated      Type = "CREATED"
	TypeStateChanged Type = "STATE_CHANGED"
	TypeFieldChanged Type = "FIELD_CHANGED"
	TypeCommentAdded Type = "COMMENT_ADDED"
	TypeLabelAdded   Type = "LABEL_ADDED"
	TypeLabelRemoved Type = "LABEL_REMOVED"
	TypeAssigned     Type = "ASSIGNED"
	TypeAiAction     Type = "AI_ACTION"
)

// StateChange is the payload of a STATE_CHANGED event.
type StateChange struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// FieldChange is the payload of a FIELD_CHANGED event. OldValue is null
// when the field was previously absent.
type FieldChange struct {
	Path     string `json:"path"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// AssigneeChange is the payload of an ASSIGNED event; nil ends mean
// unassigned.
type AssigneeChange struct {
	From *string `json:"from"`
	To   *string `json:"to"`
}

// Label is the payload of LABEL_ADDED and LABEL_REMOVED events.
type Label struct {
	Label string `json:"label"`
}

// Comment is the payload of COMMENT_ADDED (and CREATED) events.
type Comment struct {
	Message string `json:"message"`
}

// AiAction records an operation performed by an automated tool.
type AiAction struct {
	Tool    string `json:"tool"`
	Action  string `json:"action"`
	Details any    `json:"details"`
}

// Event is one immutable fact in a work item's history.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor,omitempty"`
	Payload   any       `json:"payload"`
}

// New returns an event of the given type with a fresh id and UTC
// timestamp.
func New(t Type, payload any) Event {
	return Event{
		ID:        "evt_" + strings.ReplaceAll(uuid.NewString(), "-", ""),
		Type:      t,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// WithActor returns a copy of the event attributed to actor.
func (e Event) WithActor(actor string) Event {
	e.Actor = actor
	return e
}

// Created builds the event recorded when an item is first persisted.
func Created(title string) Event {
	return New(TypeCreated, Comment{Message: "Created: " + title})
}

// StateChanged builds a STATE_CHANGED event.
func StateChanged(from, to string) Event {
	return New(TypeStateChanged, StateChange{From: from, To: to})
}

// FieldChanged builds a FIELD_CHANGED event; oldValue nil means the field
// was absent before.
func FieldChanged(path string, oldValue, newValue any) Event {
	return New(TypeFieldChanged, FieldChange{Path: path, OldValue: oldValue, NewValue: newValue})
}

// Assigned builds an ASSIGNED event; nil for either side means
// unassigned.
func Assigned(from, to *string) Event {
	return New(TypeAssigned, AssigneeChange{From: from, To: to})
}

// LabelAdded builds a LABEL_ADDED event.
func LabelAdded(label string) Event {
	return New(TypeLabelAdded, Label{Label: label})
}

// LabelRemoved builds a LABEL_REMOVED event.
func LabelRemoved(label string) Event {
	return New(TypeLabelRemoved, Label{Label: label})
}

// CommentAdded builds a COMMENT_ADDED event.
func CommentAdded(message string) Event {
	return New(TypeCommentAdded, Comment{Message: message})
}

// ToolAction builds an AI_ACTION event for the named tool operation.
func ToolAction(tool, action string) Event {
	return New(TypeAiAction, AiAction{Tool: tool, Action: action})
}

type eventEnvelope struct {
	ID        string          `json:"id"`
	Type      Type            `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Actor     string          `json:"actor,omitempty"`
	Payload   json.RawMessage `json:"payload"`
}

// UnmarshalJSON decodes an event with the type field as the explicit
// payload discriminant. Payloads are decoded strictly (unknown fields
// rejected) against the shape their type demands; anything that does not
// fit falls back to the legacy shape-trial decoder and finally to a
// generic value.
func (e *Event) UnmarshalJSON(data []byte) error {
	var env eventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	e.ID = env.ID
	e.Type = env.Type
	e.Timestamp = env.Timestamp
	e.Actor = env.Actor
	e.Payload = decodePayload(env.Type, env.Payload)
	return nil
}

func decodePayload(t Type, raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	if payload, err := decodeTyped(t, raw); err == nil {
		return payload
	}
	return DecodeLegacyPayload(raw)
}

func decodeTyped(t Type, raw json.RawMessage) (any, error) {
	switch t {
	case TypeStateChanged:
		var p StateChange
		return p, decodeStrict(raw, &p)
	case TypeFieldChanged:
		var p FieldChange
		return p, decodeStrict(raw, &p)
	case TypeAssigned:
		var p AssigneeChange
		return p, decodeStrict(raw, &p)
	case TypeLabelAdded, TypeLabelRemoved:
		var p Label
		return p, decodeStrict(raw, &p)
	case TypeCreated, TypeCommentAdded:
		var p Comment
		return p, decodeStrict(raw, &p)
	case TypeAiAction:
		var p AiAction
		return p, decodeStrict(raw, &p)
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
}

func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
