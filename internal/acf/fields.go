package acf

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/michaelrayburke/cniga-wigc/internal/textutil"
)

// Relation is one item of an ACF relationship or post-object field.
type Relation struct {
	ID   int
	Type string
}

// Text returns a scalar field as trimmed text. Numbers are formatted as-is;
// every other shape yields "".
func Text(v Value) string {
	switch t := v.decode().(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	}
	return ""
}

// Track renders a track field as a single decoded string.
//
//	"Compliance"                         -> "Compliance"
//	["Compliance", {"label": "Finance"}] -> "Compliance, Finance"
//	{"label": "L", "value": "v"}         -> "L"
//
// Numbers, booleans and null yield "".
func Track(v Value) string {
	return displayText(v.decode())
}

func displayText(x any) string {
	switch t := x.(type) {
	case string:
		return textutil.DecodeEntities(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, displayText(item))
		}
		return textutil.JoinNonEmpty(parts, ", ")
	case map[string]any:
		for _, key := range []string{"label", "value", "name"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return textutil.DecodeEntities(s)
			}
		}
	}
	return ""
}

// IDs normalizes a relationship field to a list of positive post ids. Bare
// numbers, numeric strings, objects exposing ID or id, and lists of those are
// accepted. Duplicates are dropped, first occurrence wins.
func IDs(v Value) []int {
	items := toList(v.decode())
	ids := make([]int, 0, len(items))
	seen := make(map[int]struct{}, len(items))
	for _, item := range items {
		id, ok := idOf(item)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// ID normalizes a single-valued relationship field. When a list is supplied
// the first usable element is taken.
func ID(v Value) *int {
	for _, item := range toList(v.decode()) {
		if id, ok := idOf(item); ok {
			return &id
		}
	}
	return nil
}

// Relations normalizes a relationship field that carries post types, as the
// sponsorship groups do. Bare ids keep an empty Type.
func Relations(v Value) []Relation {
	items := toList(v.decode())
	out := make([]Relation, 0, len(items))
	for _, item := range items {
		id, ok := idOf(item)
		if !ok {
			continue
		}
		rel := Relation{ID: id}
		if m, isObj := item.(map[string]any); isObj {
			if pt, isStr := m["post_type"].(string); isStr {
				rel.Type = pt
			}
		}
		out = append(out, rel)
	}
	return out
}

// ImageURL extracts a URL from an image field: a plain URL, a JSON-encoded
// {"url": ...} string left over from profile imports, or an object with url
// or source_url. Attachment ids cannot be resolved without another request
// and yield "".
func ImageURL(v Value) string {
	return imageURL(v.decode())
}

func imageURL(x any) string {
	switch t := x.(type) {
	case string:
		s := strings.TrimSpace(t)
		if strings.HasPrefix(s, "{") {
			var obj map[string]any
			if err := json.Unmarshal([]byte(s), &obj); err == nil {
				return imageURL(obj)
			}
			return ""
		}
		if _, err := strconv.Atoi(s); err == nil {
			return ""
		}
		return s
	case map[string]any:
		for _, key := range []string{"url", "source_url"} {
			if s, ok := t[key].(string); ok && strings.TrimSpace(s) != "" {
				return strings.TrimSpace(s)
			}
		}
	}
	return ""
}

// toList flattens the list-like shapes ACF produces: arrays, {"data": [...]},
// and array-like objects keyed "0", "1", ... Anything else becomes a
// one-element list.
func toList(x any) []any {
	switch t := x.(type) {
	case nil:
		return nil
	case []any:
		return t
	case map[string]any:
		if data, ok := t["data"].([]any); ok {
			return data
		}
		if items := numericKeyed(t); len(items) > 0 {
			return items
		}
	}
	return []any{x}
}

func numericKeyed(m map[string]any) []any {
	keys := make([]int, 0, len(m))
	for k := range m {
		n, err := strconv.Atoi(k)
		if err != nil || strconv.Itoa(n) != k {
			continue
		}
		keys = append(keys, n)
	}
	sort.Ints(keys)
	out := make([]any, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[strconv.Itoa(k)])
	}
	return out
}

func idOf(x any) (int, bool) {
	switch t := x.(type) {
	case json.Number:
		f, err := t.Float64()
		if err != nil || f != math.Trunc(f) || f <= 0 || f > math.MaxInt32 {
			return 0, false
		}
		return int(f), true
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil || n <= 0 {
			return 0, false
		}
		return n, true
	case map[string]any:
		for _, key := range []string{"ID", "id"} {
			if raw, ok := t[key]; ok {
				if _, nested := raw.(map[string]any); nested {
					continue
				}
				if id, ok := idOf(raw); ok {
					return id, true
				}
			}
		}
	}
	return 0, false
}
