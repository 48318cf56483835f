package invoker

import (
	"fmt"

	"github.com/opendata-gateway/go/internal/constants"
	"github.com/opendata-gateway/go/internal/models"
)

// Payload is the caller-supplied material for one backend call, bucketed the
// way the API version declares its parameters.
type Payload struct {
	Headers    map[string]string `json:"headers,omitempty"`
	Query      map[string]string `json:"query,omitempty"`
	PathParams map[string]string `json:"pathParams,omitempty"`
	Body       any               `json:"body,omitempty"`
}

// ValidateRequest checks the payload against the version's declared
// parameters and body shape. It has no side effects and runs before any
// ledger movement.
func ValidateRequest(version *models.ApiVersion, payload *Payload) *constants.APIError {
	if err := requireParams("header", version.HeaderParams, payload.Headers); err != nil {
		return err
	}
	if err := requireParams("query", version.QueryParams, payload.Query); err != nil {
		return err
	}
	if err := requireParams("path", version.PathParams, payload.PathParams); err != nil {
		return err
	}

	if version.HasBody && version.BodySchema != nil {
		if err := validateNode(version.BodySchema, payload.Body, "body"); err != nil {
			return err
		}
	}

	return nil
}

func requireParams(bucket string, declared []string, supplied map[string]string) *constants.APIError {
	for _, key := range declared {
		if supplied[key] == "" {
			return invalid(fmt.Sprintf("%s parameter %q is required", bucket, key))
		}
	}
	return nil
}

// validateNode validates a decoded JSON value against a stored schema node.
// Decoded JSON carries bool, float64, string, []any and map[string]any.
func validateNode(node *models.SchemaNode, value any, path string) *constants.APIError {
	switch node.Type {
	case models.SchemaBoolean:
		if _, ok := value.(bool); !ok {
			return typeMismatch(path, "boolean", value)
		}
	case models.SchemaNumber:
		if _, ok := value.(float64); !ok {
			return typeMismatch(path, "number", value)
		}
	case models.SchemaString:
		if _, ok := value.(string); !ok {
			return typeMismatch(path, "string", value)
		}
	case models.SchemaArray:
		arr, ok := value.([]any)
		if !ok {
			return typeMismatch(path, "array", value)
		}
		if node.Items != nil {
			for i, elem := range arr {
				if err := validateNode(node.Items, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
					return err
				}
			}
		}
	case models.SchemaObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return typeMismatch(path, "object", value)
		}
		for i := range node.Children {
			child := &node.Children[i]
			childValue, present := obj[child.Key]
			if !present {
				return invalid(fmt.Sprintf("%s is missing required field %q", path, child.Key))
			}
			if err := validateNode(child, childValue, path+"."+child.Key); err != nil {
				return err
			}
		}
	default:
		return invalid(fmt.Sprintf("%s has unsupported schema type %q", path, node.Type))
	}
	return nil
}

func typeMismatch(path, expected string, value any) *constants.APIError {
	return invalid(fmt.Sprintf("%s: expected %s, got %v (%T)", path, expected, value, value))
}

func invalid(message string) *constants.APIError {
	err := constants.ErrInvalidRequestBody.WithMessage(message)
	return &err
}
