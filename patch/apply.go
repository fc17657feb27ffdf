// ABOUTME: Server-side application of a content patch onto a decoded JSON document.
// ABOUTME: Applies added, then updated, then deleted; arrays are addressed by index.

package patch

import (
	"sort"
	"strconv"
)

// Apply mutates content with p and returns it. A nil content starts from an empty
// object. Deleted leaves are expected as nil (see Build); Absent is accepted too.
func Apply(content map[string]any, p Patch) map[string]any {
	if content == nil {
		content = map[string]any{}
	}
	merge(content, p.Added)
	merge(content, p.Updated)
	remove(content, p.Deleted)
	return content
}

// merge writes every leaf of changes into content, descending into objects and
// array elements that already exist.
func merge(content map[string]any, changes map[string]any) {
	for _, k := range sortedKeys(changes) {
		v := changes[k]
		sub, isMap := v.(map[string]any)
		if !isMap {
			content[k] = v
			continue
		}
		switch cur := content[k].(type) {
		case map[string]any:
			merge(cur, sub)
		case []any:
			content[k] = mergeArray(cur, sub)
		default:
			fresh := map[string]any{}
			merge(fresh, sub)
			content[k] = fresh
		}
	}
}

func mergeArray(cur []any, changes map[string]any) []any {
	out := append([]any(nil), cur...)
	for _, idx := range sortedIndices(changes) {
		v := changes[strconv.Itoa(idx)]
		if idx < len(out) {
			elem, elemIsMap := out[idx].(map[string]any)
			sub, subIsMap := v.(map[string]any)
			if elemIsMap && subIsMap {
				merge(elem, sub)
				continue
			}
			out[idx] = v
			continue
		}
		out = append(out, v)
	}
	return out
}

// remove deletes every nil leaf of changes from content.
func remove(content map[string]any, changes map[string]any) {
	for _, k := range sortedKeys(changes) {
		v := changes[k]
		sub, isMap := v.(map[string]any)
		switch cur := content[k].(type) {
		case []any:
			if isMap {
				content[k] = removeFromArray(cur, sub)
			} else if isDeletion(v) {
				delete(content, k)
			}
		case map[string]any:
			if isMap {
				remove(cur, sub)
			} else if isDeletion(v) {
				delete(content, k)
			}
		default:
			if isDeletion(v) {
				delete(content, k)
			}
		}
	}
}

func removeFromArray(cur []any, changes map[string]any) []any {
	var drop []int
	for _, idx := range sortedIndices(changes) {
		if idx >= len(cur) {
			continue
		}
		v := changes[strconv.Itoa(idx)]
		if isDeletion(v) {
			drop = append(drop, idx)
			continue
		}
		if elem, ok := cur[idx].(map[string]any); ok {
			if sub, ok := v.(map[string]any); ok {
				remove(elem, sub)
			}
		}
	}
	out := append([]any(nil), cur...)
	for i := len(drop) - 1; i >= 0; i-- {
		out = append(out[:drop[i]], out[drop[i]+1:]...)
	}
	return out
}

func isDeletion(v any) bool {
	if v == nil {
		return true
	}
	_, ok := v.(absentValue)
	return ok
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedIndices(m map[string]any) []int {
	idx := make([]int, 0, len(m))
	for k := range m {
		if n, err := strconv.Atoi(k); err == nil && n >= 0 {
			idx = append(idx, n)
		}
	}
	sort.Ints(idx)
	return idx
}
