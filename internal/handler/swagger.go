package handler

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dafibh/cooplend/cooplend-backend/docs"
	"github.com/labstack/echo/v4"
	"github.com/swaggo/swag"
)

// OpenAPI3Spec represents an OpenAPI 3.0 document
type OpenAPI3Spec struct {
	OpenAPI    string                 `json:"openapi"`
	Info       map[string]interface{} `json:"info"`
	Servers    []Server               `json:"servers"`
	Paths      map[string]interface{} `json:"paths"`
	Components map[string]interface{} `json:"components,omitempty"`
}

// Server represents an OpenAPI 3.0 server
type Server struct {
	URL         string `json:"url"`
	Description string `json:"description"`
}

// DefaultServers are advertised when no servers are configured
var DefaultServers = []Server{
	{URL: "http://localhost:8080/api/v1", Description: "Local Development"},
	{URL: "https://api.cooplend.app/api/v1", Description: "Production"},
}

// NewOpenAPI3Handler serves the swag-generated swagger 2.0 document converted
// to OpenAPI 3.0 with the given servers
func NewOpenAPI3Handler(servers []Server) echo.HandlerFunc {
	if len(servers) == 0 {
		servers = DefaultServers
	}

	return func(c echo.Context) error {
		spec, err := convertSwagger2(servers)
		if err != nil {
			return NewInternalError(c, "Failed to build OpenAPI document")
		}
		return c.JSON(http.StatusOK, spec)
	}
}

func convertSwagger2(servers []Server) (*OpenAPI3Spec, error) {
	doc, err := swag.ReadDoc(docs.SwaggerInfo.InstanceName())
	if err != nil {
		return nil, err
	}

	var swagger2 map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &swagger2); err != nil {
		return nil, err
	}

	info, _ := swagger2["info"].(map[string]interface{})
	paths, _ := swagger2["paths"].(map[string]interface{})

	convertedPaths := make(map[string]interface{}, len(paths))
	for path, item := range paths {
		operations, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		converted := make(map[string]interface{}, len(operations))
		for method, op := range operations {
			if operation, ok := op.(map[string]interface{}); ok {
				converted[method] = convertOperation(operation)
			}
		}
		convertedPaths[path] = converted
	}

	components := make(map[string]interface{})
	if secDefs, ok := swagger2["securityDefinitions"].(map[string]interface{}); ok {
		components["securitySchemes"] = secDefs
	}
	if definitions, ok := swagger2["definitions"].(map[string]interface{}); ok {
		components["schemas"] = rewriteRefs(definitions)
	}

	return &OpenAPI3Spec{
		OpenAPI:    "3.0.3",
		Info:       info,
		Servers:    servers,
		Paths:      convertedPaths,
		Components: components,
	}, nil
}

// convertOperation moves body and formData parameters into a requestBody and
// wraps the remaining parameter types in a schema object
func convertOperation(op map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(op))
	for key, value := range op {
		switch key {
		case "parameters", "consumes", "produces", "responses":
		default:
			result[key] = rewriteRefs(value)
		}
	}

	params, _ := op["parameters"].([]interface{})
	var (
		converted  []interface{}
		formFields = map[string]interface{}{}
	)
	for _, p := range params {
		param, ok := p.(map[string]interface{})
		if !ok {
			continue
		}
		switch param["in"] {
		case "body":
			result["requestBody"] = map[string]interface{}{
				"required": param["required"],
				"content": map[string]interface{}{
					"application/json": map[string]interface{}{"schema": rewriteRefs(param["schema"])},
				},
			}
		case "formData":
			name, _ := param["name"].(string)
			formFields[name] = parameterSchema(param)
		default:
			converted = append(converted, convertParameter(param))
		}
	}
	if len(converted) > 0 {
		result["parameters"] = converted
	}
	if len(formFields) > 0 {
		result["requestBody"] = map[string]interface{}{
			"content": map[string]interface{}{
				"multipart/form-data": map[string]interface{}{
					"schema": map[string]interface{}{"type": "object", "properties": formFields},
				},
			},
		}
	}

	if responses, ok := op["responses"].(map[string]interface{}); ok {
		result["responses"] = convertResponses(responses)
	}
	return result
}

func convertParameter(param map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{})
	for _, field := range []string{"name", "in", "description", "required"} {
		if val, ok := param[field]; ok {
			result[field] = val
		}
	}
	if schema := parameterSchema(param); len(schema) > 0 {
		result["schema"] = schema
	}
	return result
}

func parameterSchema(param map[string]interface{}) map[string]interface{} {
	schema := make(map[string]interface{})
	for _, field := range []string{"type", "format", "enum", "default", "minimum", "maximum", "items"} {
		if val, ok := param[field]; ok {
			schema[field] = rewriteRefs(val)
		}
	}
	if schema["type"] == "file" {
		schema["type"] = "string"
		schema["format"] = "binary"
	}
	return schema
}

func convertResponses(responses map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(responses))
	for code, r := range responses {
		response, ok := r.(map[string]interface{})
		if !ok {
			continue
		}
		converted := map[string]interface{}{"description": response["description"]}
		if schema, ok := response["schema"]; ok {
			converted["content"] = map[string]interface{}{
				"application/json": map[string]interface{}{"schema": rewriteRefs(schema)},
			}
		}
		result[code] = converted
	}
	return result
}

// rewriteRefs points swagger 2.0 definition refs at components/schemas
func rewriteRefs(data interface{}) interface{} {
	switch v := data.(type) {
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, value := range v {
			if ref, ok := value.(string); ok && key == "$ref" {
				result[key] = strings.Replace(ref, "#/definitions/", "#/components/schemas/", 1)
				continue
			}
			result[key] = rewriteRefs(value)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, item := range v {
			result[i] = rewriteRefs(item)
		}
		return result
	default:
		return data
	}
}
