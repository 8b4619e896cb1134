package patch

import (
	"reflect"
	"sort"
)

// Change records one leaf-level difference between two documents. Old is
// nil when the value was absent or null before; New is nil when the key
// was removed.
type Change struct {
	Path string
	Old  any
	New  any
}

// Diff walks old and new and returns every leaf-level difference. Equal
// subtrees are skipped entirely. Object keys are visited in sorted order
// so the output is deterministic; arrays are treated as opaque leaves and
// never diffed element-wise. Paths use the same dot grammar the set
// operations consume, so a diff can be replayed as set operations.
func Diff(oldDoc, newDoc any) []Change {
	var changes []Change
	diffValue(oldDoc, newDoc, "", &changes)
	return changes
}

func diffValue(oldVal, newVal any, path string, changes *[]Change) {
	if reflect.DeepEqual(oldVal, newVal) {
		return
	}

	oldObj, oldIsObj := oldVal.(map[string]any)
	newObj, newIsObj := newVal.(map[string]any)
	if !oldIsObj || !newIsObj {
		*changes = append(*changes, Change{Path: path, Old: oldVal, New: newVal})
		return
	}

	for _, key := range sortedKeys(newObj) {
		childPath := joinPath(path, key)
		if oldChild, ok := oldObj[key]; ok {
			diffValue(oldChild, newObj[key], childPath, changes)
		} else {
			*changes = append(*changes, Change{Path: childPath, Old: nil, New: newObj[key]})
		}
	}
	for _, key := range sortedKeys(oldObj) {
		if _, ok := newObj[key]; !ok {
			*changes = append(*changes, Change{Path: joinPath(path, key), Old: oldObj[key], New: nil})
		}
	}
}

func joinPath(path, key string) string {
	if path == "" {
		return key
	}
	return path + "." + key
}

func sortedKeys(obj map[string]any) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
