package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// maxExampleDepth bounds example generation for recursive schemas
const maxExampleDepth = 5

// isOpenAPI reports whether data holds an OpenAPI 3 document
func isOpenAPI(data []byte) bool {
	var probe struct {
		OpenAPI string `yaml:"openapi"`
	}
	if err := yaml.Unmarshal(data, &probe); err != nil {
		return false
	}
	return strings.HasPrefix(probe.OpenAPI, "3.")
}

// LoadOpenAPI registers one route per operation of an OpenAPI 3 document.
// Each route answers with the first success response of its operation, using
// the media example when there is one and a body generated from the schema
// otherwise.
func (s *Server) LoadOpenAPI(path string) error {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = true
	doc, err := loader.LoadFromFile(path)
	if err != nil {
		return fmt.Errorf("failed to load OpenAPI document %s: %w", filepath.Base(path), err)
	}
	return s.loadOpenAPIDoc(doc)
}

func (s *Server) loadOpenAPIDoc(doc *openapi3.T) error {
	if err := doc.Validate(context.Background()); err != nil {
		// not fatal, routes are built from whatever parsed
		s.logger.Warn("OpenAPI validation", zap.Error(err))
	}
	if doc.Paths == nil {
		return nil
	}

	paths := make([]string, 0, doc.Paths.Len())
	for p := range doc.Paths.Map() {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, p := range paths {
		item := doc.Paths.Value(p)
		if item == nil {
			continue
		}
		ops := item.Operations()
		methods := make([]string, 0, len(ops))
		for m := range ops {
			methods = append(methods, m)
		}
		sort.Strings(methods)

		for _, method := range methods {
			op := ops[method]
			route := s.Handle(method, routePattern(p), operationResponse(op))
			route.Name = op.OperationID
		}
	}
	return nil
}

// routePattern turns /users/{id} into /users/{{id}}
func routePattern(path string) string {
	var sb strings.Builder
	for i := 0; i < len(path); i++ {
		switch path[i] {
		case '{':
			sb.WriteString("{{")
		case '}':
			sb.WriteString("}}")
		default:
			sb.WriteByte(path[i])
		}
	}
	return sb.String()
}

func operationResponse(op *openapi3.Operation) Response {
	resp := Response{StatusCode: 200}
	if op.Responses == nil {
		return resp
	}

	codes := make([]string, 0, op.Responses.Len())
	for code := range op.Responses.Map() {
		if strings.HasPrefix(code, "2") {
			codes = append(codes, code)
		}
	}
	if len(codes) == 0 {
		return resp
	}
	sort.Strings(codes)

	code := codes[0]
	if status, err := strconv.Atoi(code); err == nil {
		resp.StatusCode = status
	}
	ref := op.Responses.Value(code)
	if ref == nil || ref.Value == nil {
		return resp
	}

	types := make([]string, 0, len(ref.Value.Content))
	for contentType := range ref.Value.Content {
		if strings.Contains(contentType, "json") {
			types = append(types, contentType)
		}
	}
	if len(types) == 0 {
		return resp
	}
	sort.Strings(types)

	resp.ContentType = types[0]
	if media := ref.Value.Content[types[0]]; media != nil {
		if body, ok := mediaExample(media); ok {
			resp.Body = body
		}
	}
	return resp
}

func mediaExample(media *openapi3.MediaType) (string, bool) {
	var value any
	switch {
	case media.Example != nil:
		value = media.Example
	case len(media.Examples) > 0:
		names := make([]string, 0, len(media.Examples))
		for name := range media.Examples {
			names = append(names, name)
		}
		sort.Strings(names)
		ex := media.Examples[names[0]]
		if ex == nil || ex.Value == nil {
			return "", false
		}
		value = ex.Value.Value
	case media.Schema != nil && media.Schema.Value != nil:
		value = exampleValue(media.Schema.Value, 0)
	default:
		return "", false
	}

	data, err := json.Marshal(value)
	if err != nil {
		return "", false
	}
	return string(data), true
}

// exampleValue builds a value that satisfies schema
func exampleValue(schema *openapi3.Schema, depth int) any {
	if schema == nil || depth > maxExampleDepth {
		return nil
	}
	if schema.Example != nil {
		return schema.Example
	}
	if len(schema.Enum) > 0 {
		return schema.Enum[0]
	}

	switch {
	case schema.Type.Is("object"), schema.Type == nil && len(schema.Properties) > 0:
		obj := make(map[string]any, len(schema.Properties))
		for name, prop := range schema.Properties {
			if prop != nil {
				obj[name] = exampleValue(prop.Value, depth+1)
			}
		}
		return obj
	case schema.Type.Is("array"):
		if schema.Items == nil {
			return []any{}
		}
		return []any{exampleValue(schema.Items.Value, depth+1)}
	case schema.Type.Is("string"):
		switch schema.Format {
		case "date":
			return "2024-01-01"
		case "date-time":
			return "2024-01-01T00:00:00Z"
		case "email":
			return "user@example.com"
		case "uuid":
			return "00000000-0000-0000-0000-000000000000"
		}
		return "example"
	case schema.Type.Is("integer"):
		if schema.Min != nil {
			return int64(*schema.Min)
		}
		return 1
	case schema.Type.Is("number"):
		if schema.Min != nil {
			return *schema.Min
		}
		return 1.0
	case schema.Type.Is("boolean"):
		return true
	}
	return nil
}
