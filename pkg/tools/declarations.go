package tools

import (
	"fmt"
	"strings"
)

// Declaration is a provider-format function declaration derived from a
// catalog entry, consumable by a tool-calling AI model.
type Declaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Declarations converts every registered tool into a provider declaration.
// Server tools carry an [MCP:<server>] description prefix so the model can
// tell remote tools from built-ins.
func (r *Registry) Declarations() []Declaration {
	names := r.Names()
	decls := make([]Declaration, 0, len(names))
	for _, name := range names {
		tool, ok := r.Get(name)
		if !ok {
			continue
		}

		desc := tool.Description()
		if st, ok := tool.(*ServerTool); ok {
			if desc == "" {
				desc = st.Tool
			}
			desc = fmt.Sprintf("[MCP:%s] %s", st.Server, desc)
		}

		decls = append(decls, Declaration{
			Name:        name,
			Description: desc,
			Parameters:  convertSchema(tool.InputSchema()),
		})
	}
	return decls
}

// convertSchema flattens a JSON Schema document into the provider parameter
// format: OBJECT type, per-property upper-cased types, required list
// carried through. Nested structure beyond one level is not preserved; the
// provider schema language does not express it.
func convertSchema(schema map[string]any) map[string]any {
	result := map[string]any{
		"type":       "OBJECT",
		"properties": map[string]any{},
	}
	if schema == nil {
		return result
	}

	props, _ := schema["properties"].(map[string]any)
	converted := result["properties"].(map[string]any)
	for prop, raw := range props {
		details, _ := raw.(map[string]any)

		propType := "string"
		if t, ok := details["type"].(string); ok && t != "" {
			propType = t
		}
		desc := prop
		if d, ok := details["description"].(string); ok && d != "" {
			desc = d
		}

		converted[prop] = map[string]any{
			"type":        strings.ToUpper(propType),
			"description": desc,
		}
	}

	if required, ok := schema["required"]; ok {
		result["required"] = required
	}
	return result
}
