package item

import "strings"

// StateFlow is the conventional state ordering used by the CLI and tool
// front ends. The store itself treats state as an open tag and never
// enforces this ordering.
var StateFlow = []string{"TODO", "IN_PROGRESS", "IN_REVIEW", "DONE"}

// NextState returns the state after current in StateFlow. States outside
// the flow (e.g. BLOCKED) move to IN_PROGRESS. ok is false when current
// is already final.
func NextState(current string) (next string, ok bool) {
	idx := flowIndex(current)
	switch {
	case idx < 0:
		return "IN_PROGRESS", true
	case idx < len(StateFlow)-1:
		return StateFlow[idx+1], true
	default:
		return current, false
	}
}

// PrevState returns the state before current in StateFlow. States outside
// the flow move back to TODO. ok is false when current is already first.
func PrevState(current string) (prev string, ok bool) {
	idx := flowIndex(current)
	switch {
	case idx < 0:
		return "TODO", true
	case idx > 0:
		return StateFlow[idx-1], true
	default:
		return current, false
	}
}

func flowIndex(state string) int {
	for i, s := range StateFlow {
		if strings.EqualFold(s, state) {
			return i
		}
	}
	return -1
}
