// Package patch mutates work item documents: dot-path set operations and
// RFC 7396 JSON Merge Patch, plus the structural differ that turns two
// document snapshots into a change list.
//
// Documents are plain encoding/json values: map[string]any for objects,
// []any for arrays, float64/string/bool for scalars and nil for null.
package patch

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPath reports a malformed dot-path or an attempt to traverse
// through a non-object value.
var ErrInvalidPath = errors.New("invalid path")

// SetOperation assigns Value at the dot-separated Path
// (e.g. "state" or "fields.System.IterationPath").
type SetOperation struct {
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// ParseSetOperation parses the textual "path=value" form. The value is
// decoded as JSON when it parses, otherwise taken as a literal string, so
// count=42 is a number, active=true a boolean and label=backend a string.
func ParseSetOperation(input string) (SetOperation, error) {
	path, rawValue, ok := strings.Cut(input, "=")
	if !ok {
		return SetOperation{}, fmt.Errorf("%w: expected 'key=value', got %q", ErrInvalidPath, input)
	}
	path = strings.TrimSpace(path)
	rawValue = strings.TrimSpace(rawValue)

	var value any
	if err := json.Unmarshal([]byte(rawValue), &value); err != nil {
		value = rawValue
	}
	return SetOperation{Path: path, Value: value}, nil
}

// PointerFor translates a dot-path into JSON Pointer notation for display
// and logging: "a.b" becomes "/a/b", the empty path stays empty.
func PointerFor(path string) string {
	if path == "" {
		return ""
	}
	return "/" + strings.ReplaceAll(path, ".", "/")
}

// Location is a mutable position inside a document: either the document
// root or a key inside an object.
type Location struct {
	root   *any
	parent map[string]any
	key    string
}

// Value returns the current value at the location, nil when absent or null.
func (l Location) Value() any {
	if l.root != nil {
		return *l.root
	}
	return l.parent[l.key]
}

// Assign overwrites the value at the location.
func (l Location) Assign(v any) {
	if l.root != nil {
		*l.root = v
		return
	}
	l.parent[l.key] = v
}

// Resolve walks doc along the dot-separated path, creating intermediate
// objects on demand, and returns the terminal location. A missing terminal
// key is materialized with a null value, so resolving is observable even
// without a subsequent Assign; read-only callers must not use Resolve.
// The empty path resolves to the document root.
func Resolve(doc *any, path string) (Location, error) {
	if path == "" {
		return Location{root: doc}, nil
	}

	obj, ok := (*doc).(map[string]any)
	if !ok {
		return Location{}, fmt.Errorf("%w: cannot traverse into non-object at %q", ErrInvalidPath, "")
	}

	parts := strings.Split(path, ".")
	for i, part := range parts {
		if i == len(parts)-1 {
			if _, exists := obj[part]; !exists {
				obj[part] = nil
			}
			return Location{parent: obj, key: part}, nil
		}

		child, exists := obj[part]
		if !exists {
			next := map[string]any{}
			obj[part] = next
			obj = next
			continue
		}
		next, ok := child.(map[string]any)
		if !ok {
			return Location{}, fmt.Errorf("%w: cannot traverse into non-object at %q", ErrInvalidPath, strings.Join(parts[:i+1], "."))
		}
		obj = next
	}
	// Unreachable: the terminal segment always returns above.
	return Location{}, fmt.Errorf("%w: %q", ErrInvalidPath, path)
}

// Apply resolves op.Path in doc (creating intermediates), overwrites it
// with op.Value and returns the previous value, nil when it was absent or
// null.
func Apply(doc *any, op SetOperation) (any, error) {
	loc, err := Resolve(doc, op.Path)
	if err != nil {
		return nil, err
	}
	old := loc.Value()
	loc.Assign(op.Value)
	return old, nil
}

// ApplyMergePatch applies an RFC 7396 JSON Merge Patch to target and
// returns the result. Object patches merge key-wise: null values delete,
// nested objects recurse (coercing non-object targets to objects), other
// values replace. A non-object patch replaces the target wholesale,
// including a null patch which nulls the target out entirely. Keys absent
// from the patch are left untouched.
func ApplyMergePatch(target, mergePatch any) any {
	patchObj, ok := mergePatch.(map[string]any)
	if !ok {
		return mergePatch
	}

	targetObj, ok := target.(map[string]any)
	if !ok {
		targetObj = map[string]any{}
	}

	for key, value := range patchObj {
		switch v := value.(type) {
		case nil:
			delete(targetObj, key)
		case map[string]any:
			targetObj[key] = ApplyMergePatch(targetObj[key], v)
		default:
			targetObj[key] = value
		}
	}
	return targetObj
}
