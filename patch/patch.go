// ABOUTME: Structural diff of JSON-shaped documents into added/updated/deleted trees.
// ABOUTME: Build marks removed leaves as explicit nulls so deletions survive JSON encoding.

package patch

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strconv"
)

// Patch is a structural difference between two documents. Arrays are addressed by
// their decimal index, exactly like object keys.
type Patch struct {
	Added   map[string]any `json:"added"`
	Updated map[string]any `json:"updated"`
	Deleted map[string]any `json:"deleted"`
}

type absentValue struct{}

// Absent marks a leaf in Deleted that no longer exists in the new document. It has
// no JSON form of its own; run Build before encoding.
var Absent any = absentValue{}

// Empty reports whether the patch carries no change at all.
func (p Patch) Empty() bool {
	return len(p.Added) == 0 && len(p.Updated) == 0 && len(p.Deleted) == 0
}

// ToTree converts a typed value into the map/slice/scalar tree its JSON encodes to.
func ToTree(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var tree any
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return tree, nil
}

// Diff computes the structural difference from old to next. A document that is not
// an object or array is treated as empty.
func Diff(old, next any) Patch {
	oc, ok := container(old)
	if !ok {
		oc = map[string]any{}
	}
	nc, ok := container(next)
	if !ok {
		nc = map[string]any{}
	}
	return Patch{Added: added(oc, nc), Updated: updated(oc, nc), Deleted: deleted(oc, nc)}
}

// Build returns a copy of p whose Deleted tree has every Absent leaf replaced by nil.
func Build(p Patch) Patch {
	return Patch{Added: p.Added, Updated: p.Updated, Deleted: nullify(p.Deleted)}
}

func nullify(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		switch t := v.(type) {
		case absentValue:
			out[k] = nil
		case map[string]any:
			out[k] = nullify(t)
		default:
			out[k] = v
		}
	}
	return out
}

// container exposes objects and arrays uniformly as key -> value maps.
func container(v any) (map[string]any, bool) {
	switch t := v.(type) {
	case map[string]any:
		return t, true
	case []any:
		m := make(map[string]any, len(t))
		for i, e := range t {
			m[strconv.Itoa(i)] = e
		}
		return m, true
	}
	return nil, false
}

func added(l, r map[string]any) map[string]any {
	out := map[string]any{}
	for k, rv := range r {
		lv, ok := l[k]
		if !ok {
			out[k] = rv
			continue
		}
		lc, ok1 := container(lv)
		rc, ok2 := container(rv)
		if ok1 && ok2 {
			if sub := added(lc, rc); len(sub) > 0 {
				out[k] = sub
			}
		}
	}
	return out
}

func updated(l, r map[string]any) map[string]any {
	out := map[string]any{}
	for k, rv := range r {
		lv, ok := l[k]
		if !ok {
			continue
		}
		lc, ok1 := container(lv)
		rc, ok2 := container(rv)
		switch {
		case ok1 && ok2:
			if sub := updated(lc, rc); len(sub) > 0 {
				out[k] = sub
			}
		case ok1 != ok2 || !reflect.DeepEqual(lv, rv):
			out[k] = rv
		}
	}
	return out
}

func deleted(l, r map[string]any) map[string]any {
	out := map[string]any{}
	for k, lv := range l {
		rv, ok := r[k]
		if !ok {
			out[k] = Absent
			continue
		}
		lc, ok1 := container(lv)
		rc, ok2 := container(rv)
		if ok1 && ok2 {
			if sub := deleted(lc, rc); len(sub) > 0 {
				out[k] = sub
			}
		}
	}
	return out
}
