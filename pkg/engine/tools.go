package engine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Tool is a named function with a JSON-Schema parameter spec and a
// synchronous body returning any JSON-serialisable value.
type Tool interface {
	Name() string
	Description() string
	ParameterSchema() json.RawMessage
	Execute(ctx context.Context, arguments map[string]any) (any, error)
}

// ToolDeclaration is the wire form of a tool's signature, sent to the LLM
// alongside the conversation context.
type ToolDeclaration struct {
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	ParameterSchema json.RawMessage `json:"parameter_schema"`
}

// Registry is the startup-built, read-only-after-init set of tools
// available to a session. It is safe for concurrent use by distinct
// sessions since it is never mutated after NewRegistry returns it.
type Registry struct {
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewRegistry compiles each tool's parameter schema once and returns a
// Registry ready for concurrent lookups. A tool whose schema fails to
// compile is a startup error, not a per-call one.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools:   make(map[string]Tool, len(tools)),
		schemas: make(map[string]*jsonschema.Schema, len(tools)),
	}
	for _, t := range tools {
		name := t.Name()
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.tools[name] = t

		if schema := t.ParameterSchema(); len(schema) > 0 {
			compiled, err := jsonschema.CompileString(name+".schema.json", string(schema))
			if err != nil {
				return nil, fmt.Errorf("compile schema for tool %q: %w", name, err)
			}
			r.schemas[name] = compiled
		}
	}
	return r, nil
}

// Lookup returns the tool registered under name, or false if none is.
func (r *Registry) Lookup(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Declarations returns every tool's declaration, for handing to the LLM.
func (r *Registry) Declarations() []ToolDeclaration {
	out := make([]ToolDeclaration, 0, len(r.tools))
	for name, t := range r.tools {
		out = append(out, ToolDeclaration{
			Name:            name,
			Description:     t.Description(),
			ParameterSchema: t.ParameterSchema(),
		})
	}
	return out
}

// Validate checks arguments against name's compiled parameter schema, if
// one was supplied. A tool with no schema accepts any arguments.
func (r *Registry) Validate(name string, arguments map[string]any) error {
	schema, ok := r.schemas[name]
	if !ok {
		return nil
	}
	return schema.Validate(arguments)
}
