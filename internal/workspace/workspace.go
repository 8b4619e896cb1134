package workspace

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"worktrack/internal/event"
	"worktrack/internal/item"
	"worktrack/internal/patch"
)

const (
	configDir    = ".worktrack"
	configFile   = "config.yml"
	itemsDir     = "work/items"
	metaFile     = "meta.yml"
	eventsFile   = "events.ndjson"
	notesFile    = "notes.md"
	artifactsDir = "artifacts"

	uidPrefix = "fs:"
)

// Workspace is a plain-file store for work items. Every item lives
// under work/items/<slug>/ with a YAML snapshot and an append-only
// NDJSON event log.
type Workspace struct {
	root string
	cfg  Config

	// Now is overridable in tests.
	Now func() time.Time
}

// Filter narrows ListItems results. Empty fields match everything,
// non-empty fields match case-insensitively.
type Filter struct {
	State    string
	Assignee string
	Label    string
}

// CreateOptions customizes a new item beyond its title.
type CreateOptions struct {
	Description string
	State       string
	Assignee    string
	Labels      []string
	Fields      map[string]any
	Actor       string
}

// Init creates a new workspace at root. It fails with
// ErrWorkspaceExists when root already holds one.
func Init(root, name string) (*Workspace, error) {
	cfgDir := filepath.Join(root, configDir)
	if _, err := os.Stat(cfgDir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrWorkspaceExists, root)
	}
	if err := os.MkdirAll(cfgDir, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	cfg := DefaultConfig()
	cfg.Workspace.Name = name
	data, err := encodeConfig(cfg)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(filepath.Join(cfgDir, configFile), data, 0o644); err != nil {
		return nil, fmt.Errorf("write config: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, itemsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create items dir: %w", err)
	}
	return &Workspace{root: root, cfg: cfg, Now: time.Now}, nil
}

// Open loads the workspace rooted at root.
func Open(root string) (*Workspace, error) {
	data, err := os.ReadFile(filepath.Join(root, configDir, configFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrWorkspaceNotFound, root)
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := parseConfig(data)
	if err != nil {
		return nil, err
	}
	return &Workspace{root: root, cfg: cfg, Now: time.Now}, nil
}

// Discover walks up from start looking for a workspace root.
func Discover(start string) (*Workspace, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return nil, err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, configDir, configFile)); err == nil {
			return Open(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, fmt.Errorf("%w: no workspace above %s", ErrWorkspaceNotFound, start)
		}
		dir = parent
	}
}

// Root returns the workspace root directory.
func (w *Workspace) Root() string { return w.root }

// Config returns the loaded workspace configuration.
func (w *Workspace) Config() Config { return w.cfg }

func (w *Workspace) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}

// Slugify derives a filesystem slug from a title: lowercase, with
// non-alphanumeric runs collapsed to single hyphens.
func Slugify(title string) string {
	var b strings.Builder
	lastHyphen := true
	for _, r := range strings.ToLower(title) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// SlugFromUID extracts the slug from a "fs:<slug>" uid.
func SlugFromUID(uid string) (string, error) {
	slug, ok := strings.CutPrefix(uid, uidPrefix)
	if !ok || slug == "" {
		return "", fmt.Errorf("%w: %q", ErrInvalidUID, uid)
	}
	return slug, nil
}

// UIDFromSlug builds the canonical uid for a slug.
func UIDFromSlug(slug string) string { return uidPrefix + slug }

func (w *Workspace) itemDir(slug string) string {
	return filepath.Join(w.root, itemsDir, slug)
}

// CreateItem creates a new item from title. The slug, and therefore
// the uid, is derived from the title; a colliding slug fails with
// ErrItemExists rather than being deduplicated.
func (w *Workspace) CreateItem(title string, opts CreateOptions) (*item.WorkItem, error) {
	slug := Slugify(title)
	if slug == "" {
		return nil, fmt.Errorf("%w: title %q", ErrInvalidSlug, title)
	}
	dir := w.itemDir(slug)
	if _, err := os.Stat(dir); err == nil {
		return nil, fmt.Errorf("%w: %s", ErrItemExists, UIDFromSlug(slug))
	}

	it := item.New(UIDFromSlug(slug), title)
	it.Description = opts.Description
	it.State = w.cfg.Defaults.State
	if opts.State != "" {
		it.State = opts.State
	}
	it.Assignee = opts.Assignee
	for _, l := range w.cfg.Defaults.Labels {
		it.AddLabel(l)
	}
	for _, l := range opts.Labels {
		it.AddLabel(l)
	}
	if len(opts.Fields) > 0 {
		it.Fields = opts.Fields
	}
	now := w.now()
	it.CreatedAt = now
	it.UpdatedAt = now

	if err := os.MkdirAll(filepath.Join(dir, artifactsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create item dir: %w", err)
	}
	if err := w.writeSnapshot(&it); err != nil {
		return nil, err
	}
	notes := fmt.Sprintf("# %s\n", title)
	if err := os.WriteFile(filepath.Join(dir, notesFile), []byte(notes), 0o644); err != nil {
		return nil, fmt.Errorf("write notes: %w", err)
	}
	if err := w.appendEvents(slug, withActor(opts.Actor, event.Created(title))); err != nil {
		return nil, err
	}
	return &it, nil
}

// GetItem loads the snapshot for uid.
func (w *Workspace) GetItem(uid string) (*item.WorkItem, error) {
	slug, err := SlugFromUID(uid)
	if err != nil {
		return nil, err
	}
	return w.readSnapshot(slug)
}

// ListItems returns every item matching filter, newest update first.
// Items that fail to load are skipped rather than failing the listing.
func (w *Workspace) ListItems(filter Filter) ([]*item.WorkItem, error) {
	entries, err := os.ReadDir(filepath.Join(w.root, itemsDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read items dir: %w", err)
	}
	items := make([]*item.WorkItem, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		it, err := w.readSnapshot(entry.Name())
		if err != nil {
			slog.Warn("skipping unreadable item", "slug", entry.Name(), "error", err)
			continue
		}
		if !matches(it, filter) {
			continue
		}
		items = append(items, it)
	}
	sort.Slice(items, func(i, j int) bool {
		if !items[i].UpdatedAt.Equal(items[j].UpdatedAt) {
			return items[i].UpdatedAt.After(items[j].UpdatedAt)
		}
		return items[i].UID < items[j].UID
	})
	return items, nil
}

func matches(it *item.WorkItem, f Filter) bool {
	if f.State != "" && !strings.EqualFold(it.State, f.State) {
		return false
	}
	if f.Assignee != "" && !strings.EqualFold(it.Assignee, f.Assignee) {
		return false
	}
	if f.Label != "" && !it.HasLabel(f.Label) {
		return false
	}
	return true
}

// UpdateItem loads uid, applies mutate to the item, and persists the
// result. Changes between the old and new snapshots are recorded as
// events before the snapshot is rewritten; if mutate fails nothing is
// written.
func (w *Workspace) UpdateItem(uid string, actor string, mutate func(*item.WorkItem) error) (*item.WorkItem, error) {
	slug, err := SlugFromUID(uid)
	if err != nil {
		return nil, err
	}
	before, err := w.readSnapshot(slug)
	if err != nil {
		return nil, err
	}
	oldDoc, err := itemToDoc(before)
	if err != nil {
		return nil, err
	}

	after := before.Clone()
	if err := mutate(after); err != nil {
		return nil, err
	}
	after.UpdatedAt = w.now()
	newDoc, err := itemToDoc(after)
	if err != nil {
		return nil, err
	}
	return w.commit(slug, before, after, patch.Diff(oldDoc, newDoc), actor)
}

// PatchItem applies an RFC 7396 merge patch to the item document and
// persists the result through the same diff-to-events pipeline as
// UpdateItem. The uid cannot be changed by a patch.
func (w *Workspace) PatchItem(uid string, mergePatch any, actor string) (*item.WorkItem, error) {
	slug, err := SlugFromUID(uid)
	if err != nil {
		return nil, err
	}
	before, err := w.readSnapshot(slug)
	if err != nil {
		return nil, err
	}
	oldDoc, err := itemToDoc(before)
	if err != nil {
		return nil, err
	}

	patched := patch.ApplyMergePatch(deepCopyDoc(oldDoc), mergePatch)
	doc, ok := patched.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: merge patch replaced item with non-object", ErrSerialization)
	}
	doc["uid"] = before.UID
	doc["updated_at"] = w.now().Format(time.RFC3339Nano)
	after, err := docToItem(doc)
	if err != nil {
		return nil, err
	}
	return w.commit(slug, before, after, patch.Diff(oldDoc, doc), actor)
}

// SetFields applies discrete path=value set operations to the item
// document and persists the result.
func (w *Workspace) SetFields(uid string, ops []patch.SetOperation, actor string) (*item.WorkItem, error) {
	slug, err := SlugFromUID(uid)
	if err != nil {
		return nil, err
	}
	before, err := w.readSnapshot(slug)
	if err != nil {
		return nil, err
	}
	oldDoc, err := itemToDoc(before)
	if err != nil {
		return nil, err
	}

	var doc any = deepCopyDoc(oldDoc)
	for _, op := range ops {
		if _, err := patch.Apply(&doc, op); err != nil {
			return nil, err
		}
	}
	obj, ok := doc.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: set replaced item with non-object", ErrSerialization)
	}
	obj["uid"] = before.UID
	obj["updated_at"] = w.now().Format(time.RFC3339Nano)
	after, err := docToItem(obj)
	if err != nil {
		return nil, err
	}
	return w.commit(slug, before, after, patch.Diff(oldDoc, obj), actor)
}

// AdvanceItem moves the item to the next workflow state. It returns
// the previous state, the new state, and the updated item; ok is
// false when the item is already in the final state.
func (w *Workspace) AdvanceItem(uid, actor string) (from, to string, it *item.WorkItem, ok bool, err error) {
	return w.shift(uid, actor, item.NextState)
}

// RevertItem moves the item to the previous workflow state.
func (w *Workspace) RevertItem(uid, actor string) (from, to string, it *item.WorkItem, ok bool, err error) {
	return w.shift(uid, actor, item.PrevState)
}

func (w *Workspace) shift(uid, actor string, step func(string) (string, bool)) (string, string, *item.WorkItem, bool, error) {
	current, err := w.GetItem(uid)
	if err != nil {
		return "", "", nil, false, err
	}
	next, moved := step(current.State)
	if !moved {
		return current.State, current.State, current, false, nil
	}
	updated, err := w.UpdateItem(uid, actor, func(it *item.WorkItem) error {
		it.State = next
		return nil
	})
	if err != nil {
		return "", "", nil, false, err
	}
	return current.State, next, updated, true, nil
}

// AddComment appends a COMMENT_ADDED event to the item's log. The
// snapshot is left untouched; comments live in the log only.
func (w *Workspace) AddComment(uid, message, actor string) error {
	slug, err := SlugFromUID(uid)
	if err != nil {
		return err
	}
	if _, err := w.readSnapshot(slug); err != nil {
		return err
	}
	return w.appendEvents(slug, withActor(actor, event.CommentAdded(message)))
}

// AppendEvent appends an already-built event to the item's log.
func (w *Workspace) AppendEvent(uid string, ev event.Event) error {
	slug, err := SlugFromUID(uid)
	if err != nil {
		return err
	}
	if _, err := w.readSnapshot(slug); err != nil {
		return err
	}
	return w.appendEvents(slug, ev)
}

// ReadEvents returns the item's event log in append order. When since
// is non-nil only events at or after it are returned.
func (w *Workspace) ReadEvents(uid string, since *time.Time) ([]event.Event, error) {
	slug, err := SlugFromUID(uid)
	if err != nil {
		return nil, err
	}
	if _, err := w.readSnapshot(slug); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(w.itemDir(slug), eventsFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events: %w", err)
	}
	defer f.Close()

	var out []event.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var ev event.Event
		if err := json.Unmarshal([]byte(line), &ev); err != nil {
			return nil, fmt.Errorf("%w: decode event: %v", ErrSerialization, err)
		}
		if since != nil && ev.Timestamp.Before(*since) {
			continue
		}
		out = append(out, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events: %w", err)
	}
	return out, nil
}

// commit records the diff between snapshots as events, then rewrites
// the snapshot. Events land first so the log stays complete even if
// the snapshot write fails.
func (w *Workspace) commit(slug string, before, after *item.WorkItem, changes []patch.Change, actor string) (*item.WorkItem, error) {
	events := synthesizeEvents(changes, before, after)
	for i := range events {
		events[i] = withActor(actor, events[i])
	}
	if len(events) > 0 {
		if err := w.appendEvents(slug, events...); err != nil {
			return nil, err
		}
	}
	if err := w.writeSnapshot(after); err != nil {
		return nil, err
	}
	return after, nil
}

func synthesizeEvents(changes []patch.Change, before, after *item.WorkItem) []event.Event {
	var events []event.Event
	for _, ch := range changes {
		switch ch.Path {
		case "updated_at":
			continue
		case "state":
			events = append(events, event.StateChanged(before.State, after.State))
		case "assignee":
			events = append(events, event.Assigned(optional(before.Assignee), optional(after.Assignee)))
		default:
			events = append(events, event.FieldChanged(ch.Path, ch.Old, ch.New))
		}
	}
	return events
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func withActor(actor string, ev event.Event) event.Event {
	if actor == "" {
		return ev
	}
	return ev.WithActor(actor)
}

func (w *Workspace) readSnapshot(slug string) (*item.WorkItem, error) {
	data, err := os.ReadFile(filepath.Join(w.itemDir(slug), metaFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, UIDFromSlug(slug))
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	var it item.WorkItem
	if err := yaml.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("%w: parse snapshot %s: %v", ErrSerialization, slug, err)
	}
	if it.UID == "" {
		return nil, fmt.Errorf("%w: snapshot %s has no uid", ErrSerialization, slug)
	}
	return &it, nil
}

func (w *Workspace) writeSnapshot(it *item.WorkItem) error {
	slug, err := SlugFromUID(it.UID)
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(it)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %v", ErrSerialization, err)
	}
	if err := os.WriteFile(filepath.Join(w.itemDir(slug), metaFile), data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return nil
}

func (w *Workspace) appendEvents(slug string, events ...event.Event) error {
	f, err := os.OpenFile(filepath.Join(w.itemDir(slug), eventsFile), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open events: %w", err)
	}
	defer f.Close()
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("%w: encode event: %v", ErrSerialization, err)
		}
		if _, err := f.Write(append(line, '\n')); err != nil {
			return fmt.Errorf("append event: %w", err)
		}
	}
	return nil
}

func itemToDoc(it *item.WorkItem) (map[string]any, error) {
	data, err := json.Marshal(it)
	if err != nil {
		return nil, fmt.Errorf("%w: encode item: %v", ErrSerialization, err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: decode item doc: %v", ErrSerialization, err)
	}
	return doc, nil
}

func docToItem(doc map[string]any) (*item.WorkItem, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("%w: encode item doc: %v", ErrSerialization, err)
	}
	var it item.WorkItem
	if err := json.Unmarshal(data, &it); err != nil {
		return nil, fmt.Errorf("%w: decode item: %v", ErrSerialization, err)
	}
	return &it, nil
}

func deepCopyDoc(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return deepCopyDoc(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = deepCopyValue(e)
		}
		return out
	default:
		return v
	}
}
