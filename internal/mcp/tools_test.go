package mcp

import (
	"encoding/json"
	"strings"
	"testing"

	"worktrack/internal/event"
	"worktrack/internal/workspace"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ws, err := workspace.Init(t.TempDir(), "test")
	if err != nil {
		t.Fatalf("init workspace: %v", err)
	}
	return NewServer(ws)
}

func call(t *testing.T, s *Server, name, args string) toolResult {
	t.Helper()
	return s.callTool(name, json.RawMessage(args))
}

func text(t *testing.T, res toolResult) string {
	t.Helper()
	if len(res.Content) != 1 || res.Content[0].Type != "text" {
		t.Fatalf("content = %#v", res.Content)
	}
	return res.Content[0].Text
}

func TestToolDefinitionsAreComplete(t *testing.T) {
	defs := toolDefinitions()
	want := []string{"wt_list", "wt_get", "wt_create", "wt_set", "wt_log", "wt_events", "wt_advance", "wt_revert"}
	if len(defs) != len(want) {
		t.Fatalf("defs = %d, want %d", len(defs), len(want))
	}
	for i, name := range want {
		if defs[i].Name != name {
			t.Errorf("def %d = %q, want %q", i, defs[i].Name, name)
		}
		if defs[i].Description == "" || defs[i].InputSchema == nil {
			t.Errorf("def %q incomplete", name)
		}
	}
}

func TestToolCreateAndGet(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, "wt_create", `{"title":"Fix Login","labels":["auth"]}`)
	if res.IsError {
		t.Fatalf("create: %s", text(t, res))
	}
	if !strings.Contains(text(t, res), "fs:fix-login") {
		t.Errorf("create output = %s", text(t, res))
	}

	res = call(t, s, "wt_get", `{"uid":"fs:fix-login"}`)
	if res.IsError {
		t.Fatalf("get: %s", text(t, res))
	}
	var got struct {
		UID   string `json:"uid"`
		State string `json:"state"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &got); err != nil {
		t.Fatalf("parse get output: %v", err)
	}
	if got.UID != "fs:fix-login" || got.State != "TODO" {
		t.Errorf("got = %#v", got)
	}
}

func TestToolCreateRecordsToolAction(t *testing.T) {
	s := newTestServer(t)
	call(t, s, "wt_create", `{"title":"Audited"}`)

	events, err := s.ws.ReadEvents("fs:audited", nil)
	if err != nil {
		t.Fatalf("read events: %v", err)
	}
	var sawAction bool
	for _, ev := range events {
		if ev.Type == event.TypeAiAction {
			a := ev.Payload.(event.AiAction)
			if a.Action == "wt_create" {
				sawAction = true
			}
		}
	}
	if !sawAction {
		t.Errorf("no AI_ACTION event: %#v", events)
	}
}

func TestToolList(t *testing.T) {
	s := newTestServer(t)
	call(t, s, "wt_create", `{"title":"A","state":"IN_PROGRESS"}`)
	call(t, s, "wt_create", `{"title":"B"}`)

	res := call(t, s, "wt_list", `{"state":"IN_PROGRESS"}`)
	if res.IsError {
		t.Fatalf("list: %s", text(t, res))
	}
	var items []struct {
		UID string `json:"uid"`
	}
	if err := json.Unmarshal([]byte(text(t, res)), &items); err != nil {
		t.Fatalf("parse list output: %v", err)
	}
	if len(items) != 1 || items[0].UID != "fs:a" {
		t.Errorf("items = %#v", items)
	}
}

func TestToolSetAndEvents(t *testing.T) {
	s := newTestServer(t)
	call(t, s, "wt_create", `{"title":"Set Me"}`)

	res := call(t, s, "wt_set", `{"uid":"fs:set-me","operations":[{"path":"fields.priority","value":3}]}`)
	if res.IsError {
		t.Fatalf("set: %s", text(t, res))
	}

	res = call(t, s, "wt_events", `{"uid":"fs:set-me"}`)
	if res.IsError {
		t.Fatalf("events: %s", text(t, res))
	}
	out := text(t, res)
	if !strings.Contains(out, "FIELD_CHANGED") || !strings.Contains(out, "fields.priority") {
		t.Errorf("events output = %s", out)
	}
}

func TestToolLog(t *testing.T) {
	s := newTestServer(t)
	call(t, s, "wt_create", `{"title":"Chatty"}`)

	res := call(t, s, "wt_log", `{"uid":"fs:chatty","message":"investigating"}`)
	if res.IsError {
		t.Fatalf("log: %s", text(t, res))
	}

	res = call(t, s, "wt_log", `{"uid":"fs:chatty"}`)
	if !res.IsError {
		t.Errorf("empty message accepted")
	}
}

func TestToolAdvance(t *testing.T) {
	s := newTestServer(t)
	call(t, s, "wt_create", `{"title":"Mover"}`)

	res := call(t, s, "wt_advance", `{"uid":"fs:mover"}`)
	if res.IsError {
		t.Fatalf("advance: %s", text(t, res))
	}
	if !strings.Contains(text(t, res), "TODO -> IN_PROGRESS") {
		t.Errorf("advance output = %s", text(t, res))
	}

	res = call(t, s, "wt_revert", `{"uid":"fs:mover"}`)
	if !strings.Contains(text(t, res), "IN_PROGRESS -> TODO") {
		t.Errorf("revert output = %s", text(t, res))
	}

	res = call(t, s, "wt_revert", `{"uid":"fs:mover"}`)
	if !strings.Contains(text(t, res), "already in TODO") {
		t.Errorf("terminal revert output = %s", text(t, res))
	}
}

func TestToolErrors(t *testing.T) {
	s := newTestServer(t)

	res := call(t, s, "wt_get", `{"uid":"fs:missing"}`)
	if !res.IsError {
		t.Errorf("missing item not an error")
	}

	res = call(t, s, "nope", `{}`)
	if !res.IsError || !strings.Contains(text(t, res), "unknown tool") {
		t.Errorf("unknown tool result = %#v", res)
	}
}
