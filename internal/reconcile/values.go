package reconcile

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"planforge/internal/domain"
)

// object is a decoded JSON object whose keys have been folded.
type object map[string]any

func foldKey(k string) string {
	var b strings.Builder
	b.Grow(len(k))
	for _, r := range strings.ToLower(k) {
		switch r {
		case '_', '-', ' ', '.':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// fold indexes m by folded key. When two keys fold to the same value the
// lexically first original key wins, so the result is deterministic.
func fold(m map[string]any) object {
	if m == nil {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(object, len(m))
	for _, k := range keys {
		fk := foldKey(k)
		if _, exists := out[fk]; exists {
			continue
		}
		out[fk] = m[k]
	}
	return out
}

func asObject(v any) (object, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	return fold(m), true
}

// str returns the first alias that yields a non-empty scalar or string list.
func (o object) str(aliases []string) string {
	for _, a := range aliases {
		if s := scalarString(o[a]); s != "" {
			return s
		}
	}
	return ""
}

func (o object) list(aliases []string) ([]any, bool) {
	for _, a := range aliases {
		if l, ok := o[a].([]any); ok {
			return l, true
		}
	}
	return nil, false
}

func (o object) obj(aliases []string) (object, bool) {
	for _, a := range aliases {
		if m, ok := asObject(o[a]); ok {
			return m, true
		}
	}
	return nil, false
}

func (o object) raw(aliases []string) (any, bool) {
	for _, a := range aliases {
		if v, ok := o[a]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

func (o object) hasAny(aliases []string) bool {
	for _, a := range aliases {
		if _, ok := o[a]; ok {
			return true
		}
	}
	return false
}

// scalarString renders strings, numbers and booleans. Lists of scalars are
// joined with ", ". Objects yield "".
func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		return joinScalars(t)
	case []string:
		items := make([]any, len(t))
		for i, s := range t {
			items[i] = s
		}
		return joinScalars(items)
	default:
		return ""
	}
}

func joinScalars(items []any) string {
	parts := make([]string, 0, len(items))
	for _, it := range items {
		if _, nested := it.([]any); nested {
			continue
		}
		if s := scalarString(it); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, ", ")
}

var (
	dayPrefixed = regexp.MustCompile(`(?i)\bd(?:ay)?\s*[-_#:]?\s*0*(\d+)`)
	firstNumber = regexp.MustCompile(`0*(\d+)`)
)

// dayLabel coerces a day reference to the canonical "D<n>" label.
// Numbers map directly, strings like "Day 9", "day-09" or "D9" are parsed.
// Anything without a positive day number yields "".
func dayLabel(v any) string {
	var n int
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			n = int(i)
		} else if f, err := t.Float64(); err == nil {
			n = int(f)
		}
	case float64:
		n = int(t)
	case int:
		n = t
	case int64:
		n = int(t)
	case string:
		n = parseDay(t)
	}
	if n <= 0 {
		return ""
	}
	return fmt.Sprintf("D%d", n)
}

func parseDay(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	if m := dayPrefixed.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	if m := firstNumber.FindStringSubmatch(s); m != nil {
		n, _ := strconv.Atoi(m[1])
		return n
	}
	return 0
}

// channelOf maps a free-form channel name onto long_form or thread. Unknown
// names fall back on the shape of the draft.
func channelOf(name string, hasSegments bool) string {
	key := foldKey(name)
	if _, ok := threadChannels[key]; ok {
		return domain.ChannelThread
	}
	if _, ok := longFormChannels[key]; ok {
		return domain.ChannelLongForm
	}
	if hasSegments {
		return domain.ChannelThread
	}
	return domain.ChannelLongForm
}
