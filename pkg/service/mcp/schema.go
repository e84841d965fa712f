package mcp

import (
	"fmt"
	"slices"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/m-mizutani/goerr/v2"
	"google.golang.org/genai"
)

var schemaTypes = map[string]genai.Type{
	"object":  genai.TypeObject,
	"string":  genai.TypeString,
	"number":  genai.TypeNumber,
	"integer": genai.TypeInteger,
	"boolean": genai.TypeBoolean,
	"array":   genai.TypeArray,
}

// toGenaiSchema converts an MCP input schema into a function parameter
// schema. A type list with "null" becomes a nullable single type.
func toGenaiSchema(schema *jsonschema.Schema) (*genai.Schema, error) {
	if schema == nil {
		return nil, nil
	}

	out := &genai.Schema{
		Description: schema.Description,
		Format:      schema.Format,
		Minimum:     schema.Minimum,
		Maximum:     schema.Maximum,
	}

	types := schema.Types
	if schema.Type != "" {
		types = []string{schema.Type}
	}
	if slices.Contains(types, "null") {
		nullable := true
		out.Nullable = &nullable
		types = slices.DeleteFunc(slices.Clone(types), func(t string) bool { return t == "null" })
	}
	switch len(types) {
	case 0:
	case 1:
		t, ok := schemaTypes[types[0]]
		if !ok {
			return nil, goerr.New("unsupported schema type", goerr.V("type", types[0]))
		}
		out.Type = t
	default:
		return nil, goerr.New("multiple schema types are not supported", goerr.V("types", types))
	}

	for _, v := range schema.Enum {
		out.Enum = append(out.Enum, fmt.Sprint(v))
	}

	if len(schema.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(schema.Properties))
		for name, prop := range schema.Properties {
			converted, err := toGenaiSchema(prop)
			if err != nil {
				return nil, goerr.Wrap(err, "failed to convert property", goerr.V("property", name))
			}
			out.Properties[name] = converted
		}
		out.Required = schema.Required
	}

	if schema.Items != nil {
		items, err := toGenaiSchema(schema.Items)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to convert array items")
		}
		out.Items = items
	}

	return out, nil
}
