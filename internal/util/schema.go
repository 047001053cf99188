package util

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// ValidationError reports arguments that do not satisfy a tool's schema.
type ValidationError struct {
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface for ValidationError.
func (e *ValidationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("validation error: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap returns the underlying validator error.
func (e *ValidationError) Unwrap() error { return e.Err }

// CreateSchema creates a JSON schema from a Go struct using reflection.
// Exported fields become properties named after their json tag. Fields that
// are neither pointers nor tagged omitempty are required.
func CreateSchema(structType any) map[string]any {
	t := reflect.TypeOf(structType)
	if t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	if t == nil || t.Kind() != reflect.Struct {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}

	properties := make(map[string]any)
	required := make([]string, 0)

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		jsonTag := field.Tag.Get("json")
		if jsonTag == "-" {
			continue
		}

		fieldName := field.Name
		if name, _, _ := strings.Cut(jsonTag, ","); name != "" {
			fieldName = name
		}

		fieldSchema := map[string]any{
			"type": jsonType(field.Type),
		}

		if description := field.Tag.Get("description"); description != "" {
			fieldSchema["description"] = description
		}

		if enum := field.Tag.Get("enum"); enum != "" {
			values := strings.Split(enum, ",")
			vals := make([]any, len(values))
			for j, v := range values {
				vals[j] = strings.TrimSpace(v)
			}
			fieldSchema["enum"] = vals
		}

		properties[fieldName] = fieldSchema

		if !hasOmitEmpty(jsonTag) && field.Type.Kind() != reflect.Ptr {
			required = append(required, fieldName)
		}
	}

	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}

	if len(required) > 0 {
		schema["required"] = required
	}

	return schema
}

// Validator checks decoded JSON arguments against a compiled schema.
type Validator struct {
	schema *jsonschema.Schema
}

// CompileSchema compiles a JSON schema given as a Go map. A nil or empty
// schema yields a nil Validator that accepts everything.
func CompileSchema(name string, schema map[string]any) (*Validator, error) {
	if len(schema) == 0 {
		return nil, nil
	}

	doc, err := normalize(schema)
	if err != nil {
		return nil, fmt.Errorf("normalize schema: %w", err)
	}

	url := name + ".schema.json"

	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, doc); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}

	compiled, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	return &Validator{schema: compiled}, nil
}

// Validate checks args. A nil Validator accepts everything.
func (v *Validator) Validate(args map[string]any) error {
	if v == nil {
		return nil
	}

	if args == nil {
		args = map[string]any{}
	}

	doc, err := normalize(args)
	if err != nil {
		return &ValidationError{Message: "arguments are not valid JSON", Err: err}
	}

	if err := v.schema.Validate(doc); err != nil {
		return &ValidationError{Message: "arguments do not match schema", Err: err}
	}

	return nil
}

// normalize round-trips v through JSON so that Go typed values (ints, typed
// slices, structs) take the shape the validator expects.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return jsonschema.UnmarshalJSON(bytes.NewReader(b))
}

func jsonType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.String:
		return "string"
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer"
	case reflect.Float32, reflect.Float64:
		return "number"
	case reflect.Bool:
		return "boolean"
	case reflect.Slice, reflect.Array:
		return "array"
	case reflect.Map, reflect.Struct:
		return "object"
	case reflect.Ptr:
		return jsonType(t.Elem())
	default:
		return "string"
	}
}

func hasOmitEmpty(tag string) bool {
	parts := strings.Split(tag, ",")
	for _, part := range parts[1:] {
		if strings.TrimSpace(part) == "omitempty" {
			return true
		}
	}
	return false
}
