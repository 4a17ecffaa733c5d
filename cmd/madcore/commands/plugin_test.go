package commands

import (
	"reflect"
	"testing"
)

func TestParseParamFlags(t *testing.T) {
	tests := []struct {
		name    string
		flags   []string
		want    map[string]string
		wantErr bool
	}{
		{"empty", nil, map[string]string{}, false},
		{"pairs", []string{"Workers=4", "Region=eu-west-1"}, map[string]string{"Workers": "4", "Region": "eu-west-1"}, false},
		{"value with equals", []string{"Query=a=b"}, map[string]string{"Query": "a=b"}, false},
		{"empty value", []string{"Token="}, map[string]string{"Token": ""}, false},
		{"missing equals", []string{"Workers"}, nil, true},
		{"missing name", []string{"=4"}, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseParamFlags(tt.flags)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseParamFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("parseParamFlags() = %v, want %v", got, tt.want)
			}
		})
	}
}
