package event

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestNewStampsIDAndTimestamp(t *testing.T) {
	before := time.Now().UTC().Add(-time.Second)
	ev := New(TypeCommentAdded, Comment{Message: "hi"})
	if !strings.HasPrefix(ev.ID, "evt_") {
		t.Errorf("id = %q, want evt_ prefix", ev.ID)
	}
	if strings.Contains(ev.ID, "-") {
		t.Errorf("id %q contains dashes", ev.ID)
	}
	if ev.Timestamp.Before(before) || ev.Timestamp.After(time.Now().UTC().Add(time.Second)) {
		t.Errorf("timestamp %v not near now", ev.Timestamp)
	}
	if ev.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp not UTC")
	}
}

func TestNewIDsAreUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		ev := New(TypeCommentAdded, nil)
		if seen[ev.ID] {
			t.Fatalf("duplicate id %q", ev.ID)
		}
		seen[ev.ID] = true
	}
}

func TestConstructors(t *testing.T) {
	ev := Created("Fix login")
	if ev.Type != TypeCreated {
		t.Errorf("Created type = %q", ev.Type)
	}
	if c := ev.Payload.(Comment); c.Message != "Created: Fix login" {
		t.Errorf("Created message = %q", c.Message)
	}

	ev = StateChanged("TODO", "IN_PROGRESS")
	if sc := ev.Payload.(StateChange); sc.From != "TODO" || sc.To != "IN_PROGRESS" {
		t.Errorf("StateChanged payload = %#v", sc)
	}

	ev = FieldChanged("fields.priority", nil, float64(2))
	fc := ev.Payload.(FieldChange)
	if fc.Path != "fields.priority" || fc.OldValue != nil || fc.NewValue != float64(2) {
		t.Errorf("FieldChanged payload = %#v", fc)
	}

	from := "alice"
	ev = Assigned(&from, nil)
	ac := ev.Payload.(AssigneeChange)
	if ac.From == nil || *ac.From != "alice" || ac.To != nil {
		t.Errorf("Assigned payload = %#v", ac)
	}

	if l := LabelAdded("backend").Payload.(Label); l.Label != "backend" {
		t.Errorf("LabelAdded payload = %#v", l)
	}
	if a := ToolAction("worktrack-mcp", "wt_set").Payload.(AiAction); a.Tool != "worktrack-mcp" || a.Action != "wt_set" {
		t.Errorf("ToolAction payload = %#v", a)
	}
}

func TestWithActor(t *testing.T) {
	ev := CommentAdded("note")
	tagged := ev.WithActor("sam")
	if tagged.Actor != "sam" {
		t.Errorf("tagged actor = %q", tagged.Actor)
	}
	if ev.Actor != "" {
		t.Errorf("original mutated: actor = %q", ev.Actor)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	ev := StateChanged("TODO", "DONE").WithActor("ci")
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Event
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.ID != ev.ID || back.Type != ev.Type || back.Actor != "ci" {
		t.Errorf("round trip header = %#v", back)
	}
	sc, ok := back.Payload.(StateChange)
	if !ok {
		t.Fatalf("payload type = %T", back.Payload)
	}
	if sc.From != "TODO" || sc.To != "DONE" {
		t.Errorf("payload = %#v", sc)
	}
}

func TestUnmarshalUsesTypeDiscriminant(t *testing.T) {
	// A message-shaped payload under FIELD_CHANGED must not decode as a
	// comment: the type field decides, and the strict decode rejects the
	// unknown key before the legacy trial picks it up as generic.
	raw := `{"id":"evt_1","type":"FIELD_CHANGED","timestamp":"2026-01-02T03:04:05Z","payload":{"path":"state","old_value":"TODO","new_value":"DONE"}}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fc, ok := ev.Payload.(FieldChange)
	if !ok {
		t.Fatalf("payload type = %T, want FieldChange", ev.Payload)
	}
	if fc.Path != "state" || fc.OldValue != "TODO" || fc.NewValue != "DONE" {
		t.Errorf("payload = %#v", fc)
	}
}

func TestUnmarshalUnknownTypeFallsBackToLegacy(t *testing.T) {
	raw := `{"id":"evt_2","type":"SOMETHING_ELSE","timestamp":"2026-01-02T03:04:05Z","payload":{"message":"hand-written"}}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	c, ok := ev.Payload.(Comment)
	if !ok {
		t.Fatalf("payload type = %T, want Comment via legacy trial", ev.Payload)
	}
	if c.Message != "hand-written" {
		t.Errorf("message = %q", c.Message)
	}
}

func TestUnmarshalGenericPayload(t *testing.T) {
	raw := `{"id":"evt_3","type":"AI_ACTION","timestamp":"2026-01-02T03:04:05Z","payload":{"whatever":[1,2,3]}}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	m, ok := ev.Payload.(map[string]any)
	if !ok {
		t.Fatalf("payload type = %T, want generic map", ev.Payload)
	}
	if _, ok := m["whatever"]; !ok {
		t.Errorf("payload = %#v", m)
	}
}

func TestUnmarshalNullPayload(t *testing.T) {
	raw := `{"id":"evt_4","type":"COMMENT_ADDED","timestamp":"2026-01-02T03:04:05Z","payload":null}`
	var ev Event
	if err := json.Unmarshal([]byte(raw), &ev); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := ev.Payload.(Comment); ok {
		// null decodes as an empty comment through the strict decoder,
		// which is acceptable; a nil payload is too.
		return
	}
	if ev.Payload != nil {
		t.Errorf("payload = %#v", ev.Payload)
	}
}

func TestDecodeLegacyPayloadTrialOrder(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want any
	}{
		{"state change", `{"from":"TODO","to":"DONE"}`, StateChange{From: "TODO", To: "DONE"}},
		{"field change", `{"path":"x","old_value":1,"new_value":2}`, FieldChange{Path: "x", OldValue: float64(1), NewValue: float64(2)}},
		{"label", `{"label":"infra"}`, Label{Label: "infra"}},
		{"comment", `{"message":"m"}`, Comment{Message: "m"}},
		{"ai action", `{"tool":"t","action":"a","details":null}`, AiAction{Tool: "t", Action: "a"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DecodeLegacyPayload(json.RawMessage(tc.raw))
			if got != tc.want {
				t.Errorf("DecodeLegacyPayload = %#v, want %#v", got, tc.want)
			}
		})
	}
}

func TestDecodeLegacyPayloadGenericFallback(t *testing.T) {
	got := DecodeLegacyPayload(json.RawMessage(`{"free":"form","n":1}`))
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("got %T, want map", got)
	}
	if m["free"] != "form" {
		t.Errorf("m = %#v", m)
	}
}
