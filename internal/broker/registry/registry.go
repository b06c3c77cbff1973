// Package registry holds the static description of the tools the broker
// exposes over MCP. Each tool's input schema is compiled once at construction
// so the server can run it as the structural first pass of validation.
package registry

import (
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ToolName is the single tool the broker exposes.
const ToolName = "auth.graph.operation.execute.v1"

// Definition describes one callable tool.
type Definition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`

	compiled *jsonschema.Schema
}

// Validate checks a decoded request body against the tool's compiled schema.
func (d *Definition) Validate(v any) error {
	return d.compiled.Validate(v)
}

// Registry is the static tool catalogue.
type Registry struct {
	tools  []*Definition
	byName map[string]*Definition
}

// New builds the registry and compiles every input schema. A schema that does
// not compile is a programming error surfaced at construction.
func New() (*Registry, error) {
	defs := []*Definition{
		{
			Name:        ToolName,
			Description: "Evaluate policy and execute approved Microsoft Graph operation.",
			InputSchema: executeInputSchema(),
		},
	}

	reg := &Registry{byName: make(map[string]*Definition, len(defs))}
	for _, def := range defs {
		raw, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("registry: encode schema for %s: %w", def.Name, err)
		}
		compiled, err := jsonschema.CompileString(def.Name+".schema.json", string(raw))
		if err != nil {
			return nil, fmt.Errorf("registry: compile schema for %s: %w", def.Name, err)
		}
		def.compiled = compiled
		reg.tools = append(reg.tools, def)
		reg.byName[def.Name] = def
	}
	return reg, nil
}

// Lookup returns the named tool definition.
func (r *Registry) Lookup(name string) (*Definition, bool) {
	def, ok := r.byName[name]
	return def, ok
}

// List returns all tool definitions in declaration order.
func (r *Registry) List() []*Definition {
	return r.tools
}

// executeInputSchema declares the closed request shape for the execute tool.
// Top-level unknown-field and timeout checks run before this schema so their
// error codes stay distinct; the schema covers the nested object shapes.
func executeInputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"required": []any{
			"contract_version",
			"request_id",
			"requester",
			"graph",
			"operation",
		},
		"properties": map[string]any{
			"contract_version": map[string]any{"type": "string"},
			"request_id":       map[string]any{"type": "string"},
			"requester": map[string]any{
				"type":     "object",
				"required": []any{"requester_id"},
				"properties": map[string]any{
					"requester_id":       map[string]any{"type": "string"},
					"identity_assurance": map[string]any{"type": "string"},
				},
			},
			"graph": map[string]any{
				"type":     "object",
				"required": []any{"tenant_id", "resource"},
				"properties": map[string]any{
					"tenant_id": map[string]any{"type": "string"},
					"resource":  map[string]any{"type": "string"},
					"scopes": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
				},
			},
			"operation": map[string]any{
				"type":     "object",
				"required": []any{"action", "method", "path"},
				"properties": map[string]any{
					"action": map[string]any{"type": "string"},
					"method": map[string]any{"type": "string"},
					"path":   map[string]any{"type": "string"},
				},
			},
			"timeout_ms": map[string]any{"type": "integer", "minimum": 1},
		},
	}
}
