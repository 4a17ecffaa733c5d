package params

import (
	"errors"
	"testing"

	"github.com/madcore/madcore/pkg/engine"
)

func TestValidatorFor(t *testing.T) {
	tests := []struct {
		typ     engine.ParameterType
		raw     string
		want    interface{}
		wantErr bool
	}{
		{typ: engine.ParameterTypeString, raw: "anything", want: "anything"},
		{typ: "", raw: "x", want: "x"},
		{typ: engine.ParameterTypePassword, raw: "", want: ""},
		{typ: engine.ParameterTypeInt, raw: " 42 ", want: 42},
		{typ: engine.ParameterTypeInt, raw: "4.2", wantErr: true},
		{typ: engine.ParameterTypeFloat, raw: "4.5", want: 4.5},
		{typ: engine.ParameterTypeBool, raw: "yes", want: true},
		{typ: engine.ParameterTypeBool, raw: "False", want: false},
		{typ: engine.ParameterTypeBool, raw: "maybe", wantErr: true},
		{typ: engine.ParameterTypeEmail, raw: "ops@example.com", want: "ops@example.com"},
		{typ: engine.ParameterTypeEmail, raw: "not-an-email", wantErr: true},
		{typ: engine.ParameterTypeURL, raw: "https://example.com/x", want: "https://example.com/x"},
		{typ: engine.ParameterTypeDomain, raw: "madcore.example.com", want: "madcore.example.com"},
		{typ: engine.ParameterTypeDomain, raw: "no spaces.com", wantErr: true},
		{typ: engine.ParameterTypeIP, raw: "10.0.0.1", want: "10.0.0.1"},
		{typ: engine.ParameterTypeIP, raw: "10.0.0.300", wantErr: true},
		{typ: engine.ParameterTypeCIDR, raw: "10.0.0.0/16", want: "10.0.0.0/16"},
		{typ: "INT", raw: "7", want: 7},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ)+"/"+tt.raw, func(t *testing.T) {
			v, err := ValidatorFor(tt.typ)
			if err != nil {
				t.Fatalf("ValidatorFor(%q): %v", tt.typ, err)
			}
			got, err := v(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("validate(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("validate(%q) = %#v, want %#v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestValidatorForUnknownType(t *testing.T) {
	_, err := ValidatorFor("colour")
	if !errors.Is(err, engine.ErrUnknownParameterType) {
		t.Fatalf("error = %v, want ErrUnknownParameterType", err)
	}
	if engine.CodeOf(err) != engine.ErrCodeUnknownType {
		t.Errorf("code = %q, want %q", engine.CodeOf(err), engine.ErrCodeUnknownType)
	}
}

func TestAllowedValidator(t *testing.T) {
	v := AllowedValidator(acceptString, []string{"small", "large"})
	if got, err := v("small"); err != nil || got != "small" {
		t.Errorf("v(small) = %v, %v", got, err)
	}
	if _, err := v("medium"); err == nil {
		t.Error("v(medium) accepted a value outside the allowed set")
	}
}

func TestAttachValidatorsDegradesOnUnknownType(t *testing.T) {
	list := []engine.JobParameter{
		{Name: "Size", Type: "shoe"},
		{Name: "Tier", Type: engine.ParameterTypeString, Allowed: []string{"a"}},
	}
	list = AttachValidators(list, nil)

	for _, p := range list {
		if p.Validator == nil {
			t.Fatalf("parameter %s has no validator", p.Name)
		}
	}
	if got, err := list[0].Validator("42"); err != nil || got != "42" {
		t.Errorf("permissive validator rejected input: %v, %v", got, err)
	}
	if _, err := list[1].Validator("b"); err == nil {
		t.Error("allowed set not enforced")
	}
}
