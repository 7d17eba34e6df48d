// Package validation checks request bodies against embedded JSON schemas
// before they are decoded into handler types.
package validation

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema/*.json
var schemaFS embed.FS

type Schema string

const (
	CounterAction Schema = "counter-action.json"
	Login         Schema = "login.json"
	Signup        Schema = "signup.json"
	Refresh       Schema = "refresh.json"
)

var allSchemas = []Schema{CounterAction, Login, Signup, Refresh}

// ErrInvalidBody wraps every malformed or non-conforming body.
var ErrInvalidBody = errors.New("invalid request body")

type Validator struct {
	schemas map[Schema]*jsonschema.Schema
}

func New() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	for _, name := range allSchemas {
		data, err := schemaFS.ReadFile("schema/" + string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to read schema %s: %w", name, err)
		}
		if err := compiler.AddResource(string(name), bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("failed to add schema resource %s: %w", name, err)
		}
	}

	v := &Validator{schemas: make(map[Schema]*jsonschema.Schema, len(allSchemas))}
	for _, name := range allSchemas {
		schema, err := compiler.Compile(string(name))
		if err != nil {
			return nil, fmt.Errorf("failed to compile schema %s: %w", name, err)
		}
		v.schemas[name] = schema
	}
	return v, nil
}

// Validate checks data against the named schema.
func (v *Validator) Validate(name Schema, data []byte) error {
	schema, ok := v.schemas[name]
	if !ok {
		return fmt.Errorf("unknown schema %q", name)
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("%w: invalid JSON: %v", ErrInvalidBody, err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}

// Decode validates data and unmarshals it into dst.
func (v *Validator) Decode(name Schema, data []byte, dst any) error {
	if err := v.Validate(name, data); err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidBody, err)
	}
	return nil
}
