package stacks

import (
	"reflect"
	"testing"
	"time"

	"github.com/madcore/madcore/pkg/engine"
)

func TestListingRows(t *testing.T) {
	created := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	updated := created.Add(90 * time.Minute)

	rows := ListingRows([]engine.Stack{
		{Name: "network", Status: engine.StackStatusCreateComplete, CreationTime: created, LastUpdatedTime: &updated},
		{Name: "core", Status: "CREATE_IN_PROGRESS", CreationTime: created},
	})

	want := [][]string{
		{"core", "CREATE_IN_PROGRESS", "2024-03-01 10:00:00", "-"},
		{"network", "CREATE_COMPLETE", "2024-03-01 10:00:00", "2024-03-01 11:30:00"},
	}
	if !reflect.DeepEqual(rows, want) {
		t.Errorf("ListingRows() = %v, want %v", rows, want)
	}
}

func TestFormatTimeZero(t *testing.T) {
	var zero time.Time
	if got := FormatTime(&zero); got != "-" {
		t.Errorf("FormatTime(zero) = %q", got)
	}
	if got := FormatTime(nil); got != "-" {
		t.Errorf("FormatTime(nil) = %q", got)
	}
}

func TestDetailRows(t *testing.T) {
	stack := &engine.Stack{
		Name:       StackCore,
		Parameters: []engine.KeyValue{{Key: "KeyName", Value: "ops"}, {Key: "InstanceType", Value: "m5.large"}},
		Outputs:    []engine.KeyValue{{Key: "MadCorePublicIp", Value: "1.2.3.4"}},
	}

	want := [][]string{
		{"parameter", "InstanceType", "m5.large"},
		{"parameter", "KeyName", "ops"},
		{"output", "MadCorePublicIp", "1.2.3.4"},
	}
	if got := DetailRows(stack); !reflect.DeepEqual(got, want) {
		t.Errorf("DetailRows() = %v, want %v", got, want)
	}
	if got := DetailRows(nil); len(got) != 0 {
		t.Errorf("DetailRows(nil) = %v", got)
	}
}
