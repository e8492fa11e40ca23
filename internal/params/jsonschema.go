package params

import (
	"encoding/json"
	"fmt"

	"github.com/autobrr/litebase/internal/apierr"
	"github.com/autobrr/litebase/internal/schema"
)

// ValidateAgainstSchema checks value against a named or inline JSON-schema
// annotation. This is a deliberately small subset of JSON Schema (type,
// required, enum, and nested object/array shapes) rather than a full
// implementation: no JSON-schema library appears anywhere in the example
// corpus (see DESIGN.md), so the alternative to this hand-rolled validator
// would be skipping validation altogether, which spec.md §4.2 requires.
func ValidateAgainstSchema(ann *schema.JSONAnnotation, value any) error {
	if ann == nil || ann.Kind != schema.JSONSchema {
		return nil
	}

	def, err := resolveSchema(ann)
	if err != nil {
		return err
	}
	if def == nil {
		return nil // schema name registered but no body on file yet: permissive
	}

	return validateNode(def, value, "$")
}

// schemaNode is the subset of a JSON-schema document this validator
// understands: {type, required, properties, items, enum}.
type schemaNode struct {
	Type       string                 `json:"type"`
	Required   []string               `json:"required"`
	Properties map[string]*schemaNode `json:"properties"`
	Items      *schemaNode            `json:"items"`
	Enum       []any                  `json:"enum"`
}

func resolveSchema(ann *schema.JSONAnnotation) (*schemaNode, error) {
	if ann.Pattern == "" {
		return nil, nil
	}
	var node schemaNode
	if err := json.Unmarshal([]byte(ann.Pattern), &node); err != nil {
		return nil, apierr.Internal(fmt.Errorf("params: parse json schema %q: %w", ann.SchemaName, err))
	}
	return &node, nil
}

func validateNode(n *schemaNode, value any, path string) error {
	if len(n.Enum) > 0 && !containsAny(n.Enum, value) {
		return apierr.BadRequest("params: %s is not one of the allowed values", path)
	}

	switch n.Type {
	case "", "any":
		// no type constraint
	case "object":
		obj, ok := value.(map[string]any)
		if !ok {
			return apierr.BadRequest("params: %s must be an object", path)
		}
		for _, req := range n.Required {
			if _, ok := obj[req]; !ok {
				return apierr.BadRequest("params: %s.%s is required", path, req)
			}
		}
		for key, child := range n.Properties {
			v, ok := obj[key]
			if !ok {
				continue
			}
			if err := validateNode(child, v, path+"."+key); err != nil {
				return err
			}
		}
	case "array":
		arr, ok := value.([]any)
		if !ok {
			return apierr.BadRequest("params: %s must be an array", path)
		}
		if n.Items != nil {
			for i, item := range arr {
				if err := validateNode(n.Items, item, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case "string":
		if _, ok := value.(string); !ok {
			return apierr.BadRequest("params: %s must be a string", path)
		}
	case "number", "integer":
		if _, ok := value.(float64); !ok {
			return apierr.BadRequest("params: %s must be a number", path)
		}
	case "boolean":
		if _, ok := value.(bool); !ok {
			return apierr.BadRequest("params: %s must be a boolean", path)
		}
	default:
		return apierr.Internal(fmt.Errorf("params: unsupported schema type %q at %s", n.Type, path))
	}
	return nil
}

func containsAny(haystack []any, needle any) bool {
	for _, v := range haystack {
		if v == needle {
			return true
		}
	}
	return false
}
