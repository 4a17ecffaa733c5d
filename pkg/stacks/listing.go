package stacks

import (
	"sort"
	"time"

	"github.com/madcore/madcore/pkg/engine"
)

// ListingHeaders are the columns of the stack listing.
var ListingHeaders = []string{"Name", "Status", "Created", "Last Updated"}

// ListingRows returns one row per stack, sorted by name.
func ListingRows(list []engine.Stack) [][]string {
	sorted := append([]engine.Stack(nil), list...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	rows := make([][]string, 0, len(sorted))
	for _, s := range sorted {
		created := s.CreationTime
		rows = append(rows, []string{
			s.Name,
			string(s.Status),
			FormatTime(&created),
			FormatTime(s.LastUpdatedTime),
		})
	}
	return rows
}

// FormatTime renders t in UTC. A nil or zero time is "-".
func FormatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

// DetailHeaders are the columns of a single stack's parameters and outputs.
var DetailHeaders = []string{"Kind", "Key", "Value"}

// DetailRows lists the parameters and then the outputs of stack, each
// sorted by key.
func DetailRows(stack *engine.Stack) [][]string {
	var rows [][]string
	for _, group := range []struct {
		kind   string
		values map[string]string
	}{
		{"parameter", ParametersToMap(stack)},
		{"output", OutputsToMap(stack)},
	} {
		keys := make([]string, 0, len(group.values))
		for k := range group.values {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			rows = append(rows, []string{group.kind, k, group.values[k]})
		}
	}
	return rows
}
