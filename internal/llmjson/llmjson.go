// Package llmjson pulls JSON objects out of model replies and validates them
// against a JSON Schema before they are decoded into Go types.
package llmjson

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoObject is returned when a reply contains no JSON object.
var ErrNoObject = errors.New("no JSON object in response")

// Object extracts the JSON object from a model reply. Models frequently wrap
// JSON in markdown code fences or prepend conversational filler, so fences
// are stripped and the text between the first '{' and the last '}' is kept.
func Object(resp string) (string, error) {
	s := strings.TrimSpace(resp)

	if idx := strings.Index(s, "```"); idx != -1 {
		s = s[idx+3:]
		if strings.HasPrefix(s, "json") {
			s = s[4:]
		}
		if end := strings.Index(s, "```"); end != -1 {
			s = s[:end]
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return "", ErrNoObject
	}
	return s[start : end+1], nil
}

// Schema is a compiled JSON Schema together with its source document, which
// is also sent to backends that support constrained output.
type Schema struct {
	raw      json.RawMessage
	compiled *jsonschema.Schema
}

// Compile compiles a JSON Schema document.
func Compile(name string, doc []byte) (*Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, bytes.NewReader(doc)); err != nil {
		return nil, fmt.Errorf("add schema: %w", err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return &Schema{raw: json.RawMessage(doc), compiled: compiled}, nil
}

// MustCompile is like Compile but panics on error. It is meant for schemas
// embedded in the binary.
func MustCompile(name string, doc []byte) *Schema {
	s, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return s
}

// Raw returns the schema document.
func (s *Schema) Raw() json.RawMessage { return s.raw }

// Decode extracts the JSON object from resp, validates it against the
// schema and unmarshals it into v.
func (s *Schema) Decode(resp string, v any) error {
	obj, err := Object(resp)
	if err != nil {
		return err
	}
	var doc any
	if err := json.Unmarshal([]byte(obj), &doc); err != nil {
		return fmt.Errorf("unmarshal data: %w", err)
	}
	if err := s.compiled.Validate(doc); err != nil {
		return fmt.Errorf("json does not match schema: %w", err)
	}
	if err := json.Unmarshal([]byte(obj), v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
