// Package snapshot converts structured document snapshots into a
// deterministic, line-oriented text representation so the line diff engine
// can be reused on non-text documents.
package snapshot

import (
	"encoding/json"
	"sort"
	"strings"
)

// Serialize renders a snapshot as "key: value" lines with sorted top-level
// keys. Strings are emitted verbatim, nil as "null", everything else
// through StableStringify so numbers render the same at any depth. Two snapshots with identical logical
// content always serialize to byte-identical text.
func Serialize(snap map[string]any) string {
	keys := make([]string, 0, len(snap))
	for key := range snap {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		value := snap[key]
		switch typed := value.(type) {
		case nil:
			lines = append(lines, key+": null")
		case string:
			lines = append(lines, key+": "+typed)
		default:
			lines = append(lines, key+": "+StableStringify(typed))
		}
	}
	return strings.Join(lines, "\n")
}

// StableStringify JSON-encodes a value with recursively sorted object keys.
// Array order is preserved.
func StableStringify(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case []any:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, StableStringify(item))
		}
		return "[" + strings.Join(items, ",") + "]"
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for key := range typed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		pairs := make([]string, 0, len(keys))
		for _, key := range keys {
			encodedKey, _ := json.Marshal(key)
			pairs = append(pairs, string(encodedKey)+":"+StableStringify(typed[key]))
		}
		return "{" + strings.Join(pairs, ",") + "}"
	default:
		encoded, err := json.Marshal(typed)
		if err != nil {
			return "null"
		}
		return string(encoded)
	}
}

// ChangedSections reports which top-level keys differ between two snapshots,
// comparing the stable-stringified value of each key. Independent of
// line-level diffing.
func ChangedSections(oldSnap, newSnap map[string]any) []string {
	keys := make(map[string]struct{}, len(oldSnap)+len(newSnap))
	for key := range oldSnap {
		keys[key] = struct{}{}
	}
	for key := range newSnap {
		keys[key] = struct{}{}
	}

	changed := make([]string, 0)
	for key := range keys {
		if StableStringify(oldSnap[key]) != StableStringify(newSnap[key]) {
			changed = append(changed, key)
		}
	}
	sort.Strings(changed)
	return changed
}
