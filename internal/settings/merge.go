package settings

import (
	"fmt"
	"reflect"
	"strings"
)

// Mismatch describes a loaded value that was replaced by its default.
type Mismatch struct {
	Path     string
	Expected string
	Actual   string
}

// Merge repairs loaded against defaults. The result has exactly the keys of
// defaults at every depth, and each leaf has the dynamic type of its
// default. Keys unknown to defaults are dropped, missing keys are filled in
// and mistyped leaves are replaced; every replacement is reported.
//
// Neither argument is modified and the result shares no maps with them.
func Merge(loaded, defaults map[string]any) (map[string]any, []Mismatch) {
	var mismatches []Mismatch
	out := merge(loaded, defaults, nil, &mismatches)
	return out, mismatches
}

func merge(loaded, defaults map[string]any, prefix []string, mismatches *[]Mismatch) map[string]any {
	out := make(map[string]any, len(defaults))
	for key, def := range defaults {
		got, ok := loaded[key]
		if !ok {
			out[key] = deepCopy(def)
			continue
		}

		defMap, defIsMap := def.(map[string]any)
		gotMap, gotIsMap := got.(map[string]any)
		path := append(prefix[:len(prefix):len(prefix)], key)

		switch {
		case defIsMap && gotIsMap:
			out[key] = merge(gotMap, defMap, path, mismatches)
		case reflect.TypeOf(got) == reflect.TypeOf(def):
			out[key] = deepCopy(got)
		default:
			*mismatches = append(*mismatches, Mismatch{
				Path:     strings.Join(path, "/"),
				Expected: typeName(def),
				Actual:   typeName(got),
			})
			out[key] = deepCopy(def)
		}
	}
	return out
}

func deepCopy(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, e := range t {
			m[k] = deepCopy(e)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, e := range t {
			s[i] = deepCopy(e)
		}
		return s
	default:
		return v
	}
}

func copyDocument(m map[string]any) map[string]any {
	return deepCopy(m).(map[string]any)
}

// typeName names a decoded JSON value the way a user editing the file
// would describe it.
func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case string:
		return "string"
	case float64:
		return "number"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
