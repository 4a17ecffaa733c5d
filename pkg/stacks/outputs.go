package stacks

import (
	"github.com/madcore/madcore/pkg/engine"
)

// OutputsToMap returns the stack outputs by key. A nil stack has none.
func OutputsToMap(stack *engine.Stack) map[string]string {
	if stack == nil {
		return map[string]string{}
	}
	return toMap(stack.Outputs)
}

// ParametersToMap returns the stack parameters by key. A nil stack has none.
func ParametersToMap(stack *engine.Stack) map[string]string {
	if stack == nil {
		return map[string]string{}
	}
	return toMap(stack.Parameters)
}

// Output returns one stack output or an error wrapping ErrOutputNotFound.
func Output(stack *engine.Stack, key string) (string, error) {
	if stack != nil {
		if v, ok := lookup(stack.Outputs, key); ok {
			return v, nil
		}
	}
	return "", lookupFault(stack, key, engine.ErrOutputNotFound)
}

// Parameter returns one stack parameter or an error wrapping ErrParameterNotFound.
func Parameter(stack *engine.Stack, key string) (string, error) {
	if stack != nil {
		if v, ok := lookup(stack.Parameters, key); ok {
			return v, nil
		}
	}
	return "", lookupFault(stack, key, engine.ErrParameterNotFound)
}

func lookupFault(stack *engine.Stack, key string, sentinel error) error {
	name := ""
	if stack != nil {
		name = stack.Name
	}
	return engine.NewPermanentError(key, sentinel).
		WithCode(engine.ErrCodeNotFound).
		WithService("cloudformation").
		WithTarget(name)
}

func lookup(kvs []engine.KeyValue, key string) (string, bool) {
	for _, kv := range kvs {
		if kv.Key == key {
			return kv.Value, true
		}
	}
	return "", false
}

func toMap(kvs []engine.KeyValue) map[string]string {
	out := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		out[kv.Key] = kv.Value
	}
	return out
}
