package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/madcore/madcore/pkg/engine"
)

// Override merges base into override by name. Every parameter of base whose
// name override does not declare is prepended, as one block in base order.
// Parameters override declares keep their own metadata and value. Neither
// input is modified.
//
// The result always contains every name of base, and Override(base, result)
// equals result.
func Override(base, override []engine.JobParameter) []engine.JobParameter {
	declared := make(map[string]bool, len(override))
	for _, p := range override {
		declared[p.Name] = true
	}

	result := make([]engine.JobParameter, 0, len(base)+len(override))
	added := make(map[string]bool)
	for _, p := range base {
		if declared[p.Name] || added[p.Name] {
			continue
		}
		added[p.Name] = true
		result = append(result, p.Clone())
	}

	seen := make(map[string]bool, len(override))
	for _, p := range override {
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		result = append(result, p.Clone())
	}
	return result
}

// OverrideFromMap overwrites the value of every parameter whose name is a key
// of values. Unknown keys are ignored.
func OverrideFromMap(list []engine.JobParameter, values map[string]string) []engine.JobParameter {
	result := make([]engine.JobParameter, len(list))
	for i, p := range list {
		c := p.Clone()
		if v, ok := values[p.Name]; ok {
			c.Value = v
		}
		result[i] = c
	}
	return result
}

// Names returns the parameter names in order.
func Names(list []engine.JobParameter) []string {
	names := make([]string, len(list))
	for i, p := range list {
		names[i] = p.Name
	}
	return names
}

// ToJenkinsFormat converts resolved parameters to build parameters with
// upper-cased names, in list order.
func ToJenkinsFormat(list []engine.JobParameter) []engine.BuildParameter {
	out := make([]engine.BuildParameter, 0, len(list))
	for _, p := range list {
		out = append(out, engine.BuildParameter{
			Name:  strings.ToUpper(p.Name),
			Value: FormatValue(p.Value),
		})
	}
	return out
}

// ToMap converts parameters to the string map persisted in the parameter store.
func ToMap(list []engine.JobParameter) map[string]string {
	out := make(map[string]string, len(list))
	for _, p := range list {
		out[p.Name] = FormatValue(p.Value)
	}
	return out
}

// FormatValue renders a parameter value as a string. Booleans are lower-cased
// and nil is empty.
func FormatValue(v interface{}) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return fmt.Sprint(val)
	}
}

// IsSet reports whether v counts as a provided value: non-empty strings,
// non-zero numbers and true.
func IsSet(v interface{}) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return val != ""
	case bool:
		return val
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	default:
		return true
	}
}
