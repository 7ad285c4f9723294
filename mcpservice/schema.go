package mcpservice

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/vyvu99/mcp-server/mcp"
)

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

// SchemaFor reflects a JSON schema from the Go type A. Structs are expanded
// inline at the root and unknown properties are rejected unless
// allowAdditional is set.
func SchemaFor[A any](allowAdditional bool) *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference:            true,
		ExpandedStruct:            true,
		AllowAdditionalProperties: allowAdditional,
	}
	return r.Reflect(new(A))
}

// ToMCPTool projects a registered tool into its tools/list shape.
func ToMCPTool(t RegisteredTool) mcp.Tool {
	out := mcp.Tool{
		Name:        t.Name,
		Description: t.Description,
		InputSchema: emptyObjectSchema,
		Annotations: t.Annotations,
	}
	if t.Parameters != nil {
		if b, err := json.Marshal(t.Parameters); err == nil {
			out.InputSchema = b
		}
	}
	if t.OutputSchema != nil {
		s := *t.OutputSchema
		s.Type = "object"
		if b, err := json.Marshal(&s); err == nil {
			out.OutputSchema = b
		}
	}
	return out
}

// ToMCPResource projects a registered resource into its resources/list shape.
func ToMCPResource(r RegisteredResource) mcp.Resource {
	return mcp.Resource{
		URI:         r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

// ToMCPResourceTemplate projects a templated resource into its
// resources/templates/list shape.
func ToMCPResourceTemplate(r RegisteredResource) mcp.ResourceTemplate {
	return mcp.ResourceTemplate{
		URITemplate: r.URI,
		Name:        r.Name,
		Description: r.Description,
		MimeType:    r.MimeType,
	}
}

// ToMCPPrompt projects a registered prompt into its prompts/list shape.
// Arguments come from the string-valued properties of the parameter schema;
// a property is required unless it is optional in the schema.
func ToMCPPrompt(p RegisteredPrompt) mcp.Prompt {
	return mcp.Prompt{
		Name:        p.Name,
		Description: p.Description,
		Arguments:   promptArguments(p.Parameters),
	}
}

func promptArguments(s *jsonschema.Schema) []mcp.PromptArgument {
	if s == nil || s.Properties == nil {
		return nil
	}
	required := make(map[string]bool, len(s.Required))
	for _, name := range s.Required {
		required[name] = true
	}
	var args []mcp.PromptArgument
	for el := s.Properties.Oldest(); el != nil; el = el.Next() {
		prop := el.Value
		if prop != nil && prop.Type != "" && prop.Type != "string" {
			continue
		}
		arg := mcp.PromptArgument{Name: el.Key, Required: required[el.Key]}
		if prop != nil {
			arg.Description = prop.Description
		}
		args = append(args, arg)
	}
	return args
}
