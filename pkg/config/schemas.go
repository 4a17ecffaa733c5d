package config

import (
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// SchemaRegistry manages CUE schemas for validating documents the
// controller reads but does not own, such as the plugin index.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a registry with the built-in schemas.
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}

	if err := sr.RegisterSchema("index", builtinIndexSchema); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema, cue.Filename(name+".cue"))
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateJSON checks a JSON document against definition (e.g. "#Index")
// of the named schema.
func (sr *SchemaRegistry) ValidateJSON(schemaName, definition string, data []byte) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.Lock()
	defer sr.mu.Unlock()

	def := schema.LookupPath(cue.ParsePath(definition))
	if !def.Exists() {
		return fmt.Errorf("schema %s has no definition %s", schemaName, definition)
	}

	doc := sr.ctx.CompileBytes(data, cue.Filename(schemaName+".json"))
	if err := doc.Err(); err != nil {
		return fmt.Errorf("failed to parse document: %w", err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

// ValidatePluginIndex checks a raw plugin index document.
func (sr *SchemaRegistry) ValidatePluginIndex(data []byte) error {
	return sr.ValidateJSON("index", "#Index", data)
}

// Parameter types are left open: unknown types degrade to a permissive
// validator at resolution time.
const builtinIndexSchema = `
#Parameter: {
	name:         string & !=""
	type?:        string
	description?: string
	value?:       null | bool | number | string
	allowed?: [...string]
	...
}

#Job: {
	name: string & !=""
	parameters?: [...#Parameter]
	private?: bool
	...
}

#Product: {
	id:   string & !=""
	type: string
	parameters?: [...#Parameter]
	jobs?: [...#Job]
	...
}

#Index: {
	products: [...#Product]
	...
}
`
