// Package item defines the work item snapshot model.
package item

import (
	"strings"
	"time"
)

// WorkItem is the current-state snapshot of one tracked unit of work.
// Assignee, labels and fields are omitted from serialized form when empty
// so the differ sees absence rather than zero values.
type WorkItem struct {
	UID         string         `json:"uid" yaml:"uid"`
	Title       string         `json:"title" yaml:"title"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	State       string         `json:"state" yaml:"state"`
	Assignee    string         `json:"assignee,omitempty" yaml:"assignee,omitempty"`
	Labels      []string       `json:"labels,omitempty" yaml:"labels,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"updated_at"`
	Fields      map[string]any `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// DefaultState is the state given to new items unless configured
// otherwise.
const DefaultState = "TODO"

// New returns a work item in the default state with both timestamps set
// to now.
func New(uid, title string) WorkItem {
	now := time.Now().UTC()
	return WorkItem{
		UID:       uid,
		Title:     title,
		State:     DefaultState,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy, so mutations on the copy never leak back
// into the original's labels or fields.
func (w *WorkItem) Clone() *WorkItem {
	out := *w
	if w.Labels != nil {
		out.Labels = append([]string(nil), w.Labels...)
	}
	if w.Fields != nil {
		out.Fields = cloneMap(w.Fields)
	}
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch t := v.(type) {
		case map[string]any:
			out[k] = cloneMap(t)
		case []any:
			s := make([]any, len(t))
			copy(s, t)
			out[k] = s
		default:
			out[k] = v
		}
	}
	return out
}

// HasLabel reports label membership, case-insensitively.
func (w *WorkItem) HasLabel(label string) bool {
	for _, l := range w.Labels {
		if strings.EqualFold(l, label) {
			return true
		}
	}
	return false
}

// AddLabel appends a label unless an equivalent one is already present.
// Insertion order is preserved for display.
func (w *WorkItem) AddLabel(label string) {
	if !w.HasLabel(label) {
		w.Labels = append(w.Labels, label)
	}
}

// RemoveLabel deletes a label, case-insensitively, reporting whether
// anything was removed.
func (w *WorkItem) RemoveLabel(label string) bool {
	kept := w.Labels[:0]
	for _, l := range w.Labels {
		if !strings.EqualFold(l, label) {
			kept = append(kept, l)
		}
	}
	removed := len(kept) != len(w.Labels)
	if len(kept) == 0 {
		w.Labels = nil
	} else {
		w.Labels = kept
	}
	return removed
}
