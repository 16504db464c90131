package connectors

import (
	"embed"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed mockdata/*.yaml
var mockFS embed.FS

// dataset is one embedded YAML file: named tables of records.
type dataset map[string][]map[string]interface{}

func loadDataset(name string) (dataset, error) {
	raw, err := mockFS.ReadFile("mockdata/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("read mock dataset %s: %w", name, err)
	}
	var ds dataset
	if err := yaml.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("parse mock dataset %s: %w", name, err)
	}
	return ds, nil
}

func (d dataset) table(name string) []map[string]interface{} {
	return d[name]
}

// listResponse is the uniform payload shape for search-style actions.
func listResponse(items []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"count": len(items),
		"items": items,
	}
}

func strParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	if v, ok := params[key]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func floatParam(params map[string]interface{}, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	switch v := params[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

func fieldStr(item map[string]interface{}, field string) string {
	if v, ok := item[field]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

func fieldFloat(item map[string]interface{}, field string) float64 {
	switch v := item[field].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	}
	return 0
}

type predicate func(map[string]interface{}) bool

func filterItems(items []map[string]interface{}, preds ...predicate) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(items))
	for _, it := range items {
		keep := true
		for _, p := range preds {
			if !p(it) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, it)
		}
	}
	return out
}

// eq matches when the filter value is empty or equals the field,
// case-insensitively.
func eq(field, want string) predicate {
	return func(it map[string]interface{}) bool {
		if want == "" {
			return true
		}
		return strings.EqualFold(fieldStr(it, field), want)
	}
}

// contains matches when the filter value is empty or is a case-insensitive
// substring of the field.
func contains(field, want string) predicate {
	return func(it map[string]interface{}) bool {
		if want == "" {
			return true
		}
		return strings.Contains(strings.ToLower(fieldStr(it, field)), strings.ToLower(want))
	}
}

// gte matches ISO date strings lexicographically.
func gte(field, min string) predicate {
	return func(it map[string]interface{}) bool {
		if min == "" {
			return true
		}
		return fieldStr(it, field) >= min
	}
}

func minFloat(field string, min float64, enabled bool) predicate {
	return func(it map[string]interface{}) bool {
		if !enabled {
			return true
		}
		return fieldFloat(it, field) >= min
	}
}

func findByField(items []map[string]interface{}, field, value string) (map[string]interface{}, bool) {
	for _, it := range items {
		if strings.EqualFold(fieldStr(it, field), value) {
			return it, true
		}
	}
	return nil, false
}
