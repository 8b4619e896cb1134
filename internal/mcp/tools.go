package mcp

import (
	"encoding/json"
	"fmt"
	"time"

	"worktrack/internal/event"
	"worktrack/internal/patch"
	"worktrack/internal/workspace"
)

// mcpActor is recorded on events produced through tool calls.
const mcpActor = "mcp"

type toolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

func schema(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func toolDefinitions() []toolDef {
	return []toolDef{
		{
			Name:        "wt_list",
			Description: "List work items, optionally filtered by state, assignee or label.",
			InputSchema: schema(nil, map[string]any{
				"state":    str("Filter by workflow state"),
				"assignee": str("Filter by assignee"),
				"label":    str("Filter by label"),
			}),
		},
		{
			Name:        "wt_get",
			Description: "Get one work item by uid.",
			InputSchema: schema([]string{"uid"}, map[string]any{
				"uid": str("Item uid, e.g. fs:fix-login"),
			}),
		},
		{
			Name:        "wt_create",
			Description: "Create a new work item from a title.",
			InputSchema: schema([]string{"title"}, map[string]any{
				"title":       str("Item title; the uid is derived from it"),
				"description": str("Longer description"),
				"state":       str("Initial workflow state"),
				"assignee":    str("Initial assignee"),
				"labels": map[string]any{
					"type":        "array",
					"items":       map[string]any{"type": "string"},
					"description": "Initial labels",
				},
			}),
		},
		{
			Name:        "wt_set",
			Description: "Set item fields by dot path. Values are parsed as JSON when possible, else taken literally.",
			InputSchema: schema([]string{"uid", "operations"}, map[string]any{
				"uid": str("Item uid"),
				"operations": map[string]any{
					"type": "array",
					"items": map[string]any{
						"type":     "object",
						"required": []string{"path", "value"},
						"properties": map[string]any{
							"path":  str("Dot path into the item document"),
							"value": map[string]any{"description": "New value"},
						},
					},
				},
			}),
		},
		{
			Name:        "wt_log",
			Description: "Add a comment to an item's event log.",
			InputSchema: schema([]string{"uid", "message"}, map[string]any{
				"uid":     str("Item uid"),
				"message": str("Comment text"),
			}),
		},
		{
			Name:        "wt_events",
			Description: "Read an item's event log, optionally limited to recent days.",
			InputSchema: schema([]string{"uid"}, map[string]any{
				"uid": str("Item uid"),
				"since_days": map[string]any{
					"type":        "integer",
					"minimum":     0,
					"description": "Only events from the last N days",
				},
			}),
		},
		{
			Name:        "wt_advance",
			Description: "Move an item to the next workflow state.",
			InputSchema: schema([]string{"uid"}, map[string]any{
				"uid": str("Item uid"),
			}),
		},
		{
			Name:        "wt_revert",
			Description: "Move an item back to the previous workflow state.",
			InputSchema: schema([]string{"uid"}, map[string]any{
				"uid": str("Item uid"),
			}),
		},
	}
}

func (s *Server) callTool(name string, args json.RawMessage) toolResult {
	switch name {
	case "wt_list":
		return s.toolList(args)
	case "wt_get":
		return s.toolGet(args)
	case "wt_create":
		return s.toolCreate(args)
	case "wt_set":
		return s.toolSet(args)
	case "wt_log":
		return s.toolLog(args)
	case "wt_events":
		return s.toolEvents(args)
	case "wt_advance":
		return s.toolShift(args, "wt_advance")
	case "wt_revert":
		return s.toolShift(args, "wt_revert")
	default:
		return errorResult(fmt.Errorf("unknown tool %q", name))
	}
}

func decodeArgs(args json.RawMessage, v any) error {
	if len(args) == 0 {
		return nil
	}
	return json.Unmarshal(args, v)
}

func jsonResult(v any) toolResult {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(err)
	}
	return textResult(string(data))
}

func (s *Server) toolList(args json.RawMessage) toolResult {
	var in struct {
		State    string `json:"state"`
		Assignee string `json:"assignee"`
		Label    string `json:"label"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return errorResult(err)
	}
	items, err := s.ws.ListItems(workspace.Filter{
		State:    in.State,
		Assignee: in.Assignee,
		Label:    in.Label,
	})
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(items)
}

func (s *Server) toolGet(args json.RawMessage) toolResult {
	var in struct {
		UID string `json:"uid"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return errorResult(err)
	}
	it, err := s.ws.GetItem(in.UID)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(it)
}

func (s *Server) toolCreate(args json.RawMessage) toolResult {
	var in struct {
		Title       string   `json:"title"`
		Description string   `json:"description"`
		State       string   `json:"state"`
		Assignee    string   `json:"assignee"`
		Labels      []string `json:"labels"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return errorResult(err)
	}
	it, err := s.ws.CreateItem(in.Title, workspace.CreateOptions{
		Description: in.Description,
		State:       in.State,
		Assignee:    in.Assignee,
		Labels:      in.Labels,
		Actor:       mcpActor,
	})
	if err != nil {
		return errorResult(err)
	}
	s.recordToolAction(it.UID, "wt_create")
	return jsonResult(it)
}

func (s *Server) toolSet(args json.RawMessage) toolResult {
	var in struct {
		UID        string `json:"uid"`
		Operations []struct {
			Path  string `json:"path"`
			Value any    `json:"value"`
		} `json:"operations"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return errorResult(err)
	}
	if len(in.Operations) == 0 {
		return errorResult(fmt.Errorf("operations is required"))
	}
	ops := make([]patch.SetOperation, 0, len(in.Operations))
	for _, op := range in.Operations {
		ops = append(ops, patch.SetOperation{Path: op.Path, Value: op.Value})
	}
	it, err := s.ws.SetFields(in.UID, ops, mcpActor)
	if err != nil {
		return errorResult(err)
	}
	s.recordToolAction(in.UID, "wt_set")
	return jsonResult(it)
}

func (s *Server) toolLog(args json.RawMessage) toolResult {
	var in struct {
		UID     string `json:"uid"`
		Message string `json:"message"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return errorResult(err)
	}
	if in.Message == "" {
		return errorResult(fmt.Errorf("message is required"))
	}
	if err := s.ws.AddComment(in.UID, in.Message, mcpActor); err != nil {
		return errorResult(err)
	}
	return textResult("comment added to " + in.UID)
}

func (s *Server) toolEvents(args json.RawMessage) toolResult {
	var in struct {
		UID       string `json:"uid"`
		SinceDays int    `json:"since_days"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return errorResult(err)
	}
	var since *time.Time
	if in.SinceDays > 0 {
		cutoff := time.Now().UTC().AddDate(0, 0, -in.SinceDays)
		since = &cutoff
	}
	events, err := s.ws.ReadEvents(in.UID, since)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(events)
}

func (s *Server) toolShift(args json.RawMessage, name string) toolResult {
	var in struct {
		UID string `json:"uid"`
	}
	if err := decodeArgs(args, &in); err != nil {
		return errorResult(err)
	}
	shift := s.ws.AdvanceItem
	if name == "wt_revert" {
		shift = s.ws.RevertItem
	}
	from, to, it, moved, err := shift(in.UID, mcpActor)
	if err != nil {
		return errorResult(err)
	}
	if !moved {
		return textResult(fmt.Sprintf("%s already in %s", in.UID, from))
	}
	s.recordToolAction(in.UID, name)
	return textResult(fmt.Sprintf("%s: %s -> %s (updated %s)", in.UID, from, to, it.UpdatedAt.UTC().Format(time.RFC3339)))
}

// recordToolAction leaves an audit mark; a failure to record never
// fails the tool call itself.
func (s *Server) recordToolAction(uid, action string) {
	ev := event.ToolAction(serverName+"-mcp", action).WithActor(mcpActor)
	_ = s.ws.AppendEvent(uid, ev)
}
