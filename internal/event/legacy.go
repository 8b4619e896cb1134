package event

import "encoding/json"

// DecodeLegacyPayload recovers a payload from logs written before the type
// field drove decoding. It trials the known payload shapes in a fixed
// order, accepting the first that decodes strictly with its required
// fields populated, and falls back to a generic value. Shape trial is
// ambiguity-prone by construction; it exists only for this legacy import
// path and must not be used for new data.
func DecodeLegacyPayload(raw json.RawMessage) any {
	var sc StateChange
	if decodeStrict(raw, &sc) == nil && sc.From != "" && sc.To != "" {
		return sc
	}
	var fc FieldChange
	if decodeStrict(raw, &fc) == nil && fc.Path != "" {
		return fc
	}
	var lb Label
	if decodeStrict(raw, &lb) == nil && lb.Label != "" {
		return lb
	}
	var cm Comment
	if decodeStrict(raw, &cm) == nil && cm.Message != "" {
		return cm
	}
	var aa AiAction
	if decodeStrict(raw, &aa) == nil && aa.Tool != "" && aa.Action != "" {
		return aa
	}
	// AssigneeChange is all-optional and would shadow the shapes above, so
	// it comes last.
	var ac AssigneeChange
	if decodeStrict(raw, &ac) == nil {
		return ac
	}

	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return nil
	}
	return generic
}
