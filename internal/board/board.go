// Package board serves a read-only kanban view of the workspace.
package board

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"worktrack/internal/event"
	"worktrack/internal/item"
	"worktrack/internal/workspace"
)

const timeLayout = "2006-01-02 15:04"

type boardItem struct {
	UID       string         `json:"uid"`
	Title     string         `json:"title"`
	State     string         `json:"state"`
	Assignee  string         `json:"assignee,omitempty"`
	Labels    []string       `json:"labels,omitempty"`
	UpdatedAt string         `json:"updated_at"`
	Fields    map[string]any `json:"fields,omitempty"`
	Comments  []boardComment `json:"comments,omitempty"`
}

type boardComment struct {
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"`
	Message   string `json:"message"`
}

type boardPayload struct {
	States []string    `json:"states"`
	Items  []boardItem `json:"items"`
}

// New returns the board HTTP handler.
func New(ws *workspace.Workspace) http.Handler {
	router := chi.NewRouter()
	router.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(boardHTML))
	})
	router.Get("/styles.css", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/css; charset=utf-8")
		w.Write([]byte(boardCSS))
	})
	router.Get("/api/items", func(w http.ResponseWriter, r *http.Request) {
		payload, err := buildPayload(ws)
		if err != nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(payload)
	})
	return router
}

func buildPayload(ws *workspace.Workspace) (boardPayload, error) {
	items, err := ws.ListItems(workspace.Filter{})
	if err != nil {
		return boardPayload{}, err
	}
	out := boardPayload{States: item.StateFlow, Items: make([]boardItem, 0, len(items))}
	for _, it := range items {
		bi := boardItem{
			UID:       it.UID,
			Title:     it.Title,
			State:     it.State,
			Assignee:  it.Assignee,
			Labels:    it.Labels,
			UpdatedAt: it.UpdatedAt.Local().Format(timeLayout),
			Fields:    it.Fields,
		}
		bi.Comments = itemComments(ws, it.UID)
		out.Items = append(out.Items, bi)
	}
	return out, nil
}

// itemComments tolerates a missing or unreadable log; the board still
// renders the snapshot.
func itemComments(ws *workspace.Workspace, uid string) []boardComment {
	events, err := ws.ReadEvents(uid, nil)
	if err != nil {
		return nil
	}
	var comments []boardComment
	for _, ev := range events {
		if ev.Type != event.TypeCommentAdded {
			continue
		}
		c, ok := ev.Payload.(event.Comment)
		if !ok {
			continue
		}
		comments = append(comments, boardComment{
			Timestamp: ev.Timestamp.Local().Format(timeLayout),
			Actor:     ev.Actor,
			Message:   c.Message,
		})
	}
	return comments
}
