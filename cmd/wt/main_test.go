package main

import (
	"strings"
	"testing"

	"worktrack/internal/event"
	"worktrack/internal/workspace"
)

func TestEventDetail(t *testing.T) {
	sam := "sam"
	cases := []struct {
		name string
		ev   event.Event
		want string
	}{
		{"state", event.StateChanged("TODO", "IN_PROGRESS"), "TODO -> IN_PROGRESS"},
		{"field", event.FieldChanged("fields.priority", "low", "high"), "fields.priority: low -> high"},
		{"assigned", event.Assigned(nil, &sam), "- -> sam"},
		{"label", event.LabelAdded("api"), "api"},
		{"comment", event.CommentAdded("looked into it"), "looked into it"},
		{"tool", event.ToolAction("worktrack-mcp", "wt_set"), "worktrack-mcp wt_set"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := eventDetail(tc.ev); got != tc.want {
				t.Errorf("eventDetail = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestEventDetailNilPayload(t *testing.T) {
	if got := eventDetail(event.Event{Type: event.TypeCreated}); got != "" {
		t.Errorf("eventDetail = %q, want empty", got)
	}
}

func TestPromptItem(t *testing.T) {
	in := strings.NewReader("Fix login timeout\nSessions expire early\nIN_PROGRESS\nsam\napi, auth\n")
	title, opts, err := promptItem(in, "", workspace.CreateOptions{})
	if err != nil {
		t.Fatalf("promptItem: %v", err)
	}
	if title != "Fix login timeout" {
		t.Errorf("title = %q", title)
	}
	if opts.Description != "Sessions expire early" || opts.State != "IN_PROGRESS" || opts.Assignee != "sam" {
		t.Errorf("opts = %+v", opts)
	}
	if len(opts.Labels) != 2 || opts.Labels[0] != "api" || opts.Labels[1] != "auth" {
		t.Errorf("labels = %v", opts.Labels)
	}
}

func TestPromptItemKeepsDefaults(t *testing.T) {
	in := strings.NewReader("\n\n\n\n\n")
	seed := workspace.CreateOptions{State: "TODO", Assignee: "kim", Labels: []string{"ops"}}
	title, opts, err := promptItem(in, "Rotate keys", seed)
	if err != nil {
		t.Fatalf("promptItem: %v", err)
	}
	if title != "Rotate keys" {
		t.Errorf("title = %q", title)
	}
	if opts.State != "TODO" || opts.Assignee != "kim" {
		t.Errorf("opts = %+v", opts)
	}
	if len(opts.Labels) != 1 || opts.Labels[0] != "ops" {
		t.Errorf("labels = %v", opts.Labels)
	}
}
