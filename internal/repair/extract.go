package repair

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

// FieldKind selects the extraction pattern for a field.
type FieldKind int

const (
	KindString FieldKind = iota
	KindNumber
	KindStringList
)

// FieldSpec describes one expected field for aggressive extraction. A
// Required field with no match fails the whole extraction; an optional
// field with a nil Default is simply omitted. Defaults are for structural
// fields only; enumerated domain values must never be defaulted, so specs
// for those fields set Required with Default nil.
type FieldSpec struct {
	Name     string
	Kind     FieldKind
	Required bool
	Default  any
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

func fieldPattern(key string) *regexp.Regexp {
	patternMu.Lock()
	defer patternMu.Unlock()
	if re, ok := patternCache[key]; ok {
		return re
	}
	re := regexp.MustCompile(key)
	patternCache[key] = re
	return re
}

// extractFields recovers the expected fields from otherwise unparseable
// text by per-field pattern matching. It recovers what is present and
// reports an error when any required field cannot be found, rather than
// inventing a value for it.
func extractFields(raw string, fields []FieldSpec) (Result, error) {
	text := normalizeQuotes(raw)
	result := Result{}
	var missing []string

	for _, f := range fields {
		value, ok := extractField(text, f)
		if ok {
			result[f.Name] = value
			continue
		}
		if f.Default != nil {
			result[f.Name] = f.Default
			continue
		}
		if f.Required {
			missing = append(missing, f.Name)
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required fields not recoverable: %s", strings.Join(missing, ", "))
	}
	if len(result) == 0 {
		return nil, fmt.Errorf("no expected fields recoverable")
	}
	return result, nil
}

func extractField(text string, f FieldSpec) (any, bool) {
	name := regexp.QuoteMeta(f.Name)
	switch f.Kind {
	case KindNumber:
		// JSON form first, then loose "name: 0.8" prose form.
		for _, key := range []string{
			`(?i)"` + name + `"\s*:\s*(-?\d+(?:\.\d+)?)`,
			`(?im)\b` + name + `\b\s*[:=]\s*(-?\d+(?:\.\d+)?)`,
		} {
			if m := fieldPattern(key).FindStringSubmatch(text); m != nil {
				v, err := strconv.ParseFloat(m[1], 64)
				if err == nil {
					return v, true
				}
			}
		}
	case KindStringList:
		key := `(?is)"` + name + `"\s*:\s*\[(.*?)\]`
		if m := fieldPattern(key).FindStringSubmatch(text); m != nil {
			items := fieldPattern(`"((?:[^"\\]|\\.)*)"`).FindAllStringSubmatch(m[1], -1)
			list := make([]any, 0, len(items))
			for _, item := range items {
				list = append(list, unescape(item[1]))
			}
			return list, true
		}
	default:
		for _, key := range []string{
			`(?i)"` + name + `"\s*:\s*"((?:[^"\\]|\\.)*)"`,
			`(?im)\b` + name + `\b\s*[:=]\s*"((?:[^"\\]|\\.)*)"`,
			`(?im)\b` + name + `\b\s*[:=]\s*([^\n{}\[\],"]+)`,
		} {
			if m := fieldPattern(key).FindStringSubmatch(text); m != nil {
				v := strings.TrimSpace(unescape(m[1]))
				if v != "" {
					return v, true
				}
			}
		}
	}
	return nil, false
}

func unescape(s string) string {
	if !strings.ContainsRune(s, '\\') {
		return s
	}
	if out, err := strconv.Unquote(`"` + s + `"`); err == nil {
		return out
	}
	return s
}
