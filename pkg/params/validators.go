package params

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/madcore/madcore/pkg/engine"
)

// validate is shared by all tag-based validators; it is safe for concurrent use.
var validate = validator.New()

// validators maps each parameter type to its parser.
var validators = map[engine.ParameterType]engine.Validator{
	engine.ParameterTypeString:   acceptString,
	engine.ParameterTypeText:     acceptString,
	engine.ParameterTypePassword: acceptString,
	engine.ParameterTypeInt:      parseInt,
	engine.ParameterTypeFloat:    parseFloat,
	engine.ParameterTypeBool:     parseBool,
	engine.ParameterTypeEmail:    tagValidator("email"),
	engine.ParameterTypeURL:      tagValidator("url"),
	engine.ParameterTypeDomain:   tagValidator("fqdn"),
	engine.ParameterTypeIP:       tagValidator("ip"),
	engine.ParameterTypeCIDR:     tagValidator("cidr"),
}

// ValidatorFor returns the validator registered for t, or an error wrapping
// ErrUnknownParameterType. An empty type is treated as string.
func ValidatorFor(t engine.ParameterType) (engine.Validator, error) {
	if t == "" {
		return acceptString, nil
	}
	v, ok := validators[engine.ParameterType(strings.ToLower(string(t)))]
	if !ok {
		return nil, engine.NewPermanentError(fmt.Sprintf("no validator for parameter type %q", t), engine.ErrUnknownParameterType).
			WithCode(engine.ErrCodeUnknownType)
	}
	return v, nil
}

// AllowedValidator wraps v so that only values in allowed pass.
func AllowedValidator(v engine.Validator, allowed []string) engine.Validator {
	return func(raw string) (interface{}, error) {
		for _, a := range allowed {
			if raw == a {
				return v(raw)
			}
		}
		return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(allowed, ", "))
	}
}

func acceptString(raw string) (interface{}, error) {
	return raw, nil
}

func parseInt(raw string) (interface{}, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%q is not an integer", raw)
	}
	return n, nil
}

func parseFloat(raw string) (interface{}, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", raw)
	}
	return f, nil
}

func parseBool(raw string) (interface{}, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "y", "yes", "on":
		return true, nil
	case "n", "no", "off":
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%q is not a boolean", raw)
	}
	return b, nil
}

func tagValidator(tag string) engine.Validator {
	return func(raw string) (interface{}, error) {
		raw = strings.TrimSpace(raw)
		if err := validate.Var(raw, "required,"+tag); err != nil {
			return nil, fmt.Errorf("%q is not a valid %s", raw, tag)
		}
		return raw, nil
	}
}
