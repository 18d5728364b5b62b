package outbox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

var (
	// ErrUnknownEventType is returned for event types missing from the catalog.
	ErrUnknownEventType = errors.New("unknown event type")
	// ErrSchemaViolation wraps payloads that do not match their schema.
	ErrSchemaViolation = errors.New("payload violates schema")
)

// SchemaValidator checks outbox payloads against the compiled catalog schemas.
type SchemaValidator struct {
	schemas map[string]*jsonschema.Schema
}

// NewSchemaValidator compiles every catalog schema.
func NewSchemaValidator() (*SchemaValidator, error) {
	compiler := jsonschema.NewCompiler()
	compiler.AssertFormat = true

	for eventType, route := range catalog {
		if err := compiler.AddResource(schemaURL(route.SchemaSubject), strings.NewReader(route.Schema)); err != nil {
			return nil, fmt.Errorf("add schema %s: %w", eventType, err)
		}
	}

	schemas := make(map[string]*jsonschema.Schema, len(catalog))
	for eventType, route := range catalog {
		schema, err := compiler.Compile(schemaURL(route.SchemaSubject))
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", eventType, err)
		}
		schemas[eventType] = schema
	}
	return &SchemaValidator{schemas: schemas}, nil
}

// Validate checks payload against the schema registered for eventType.
func (v *SchemaValidator) Validate(eventType string, payload []byte) error {
	schema, ok := v.schemas[eventType]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}

	var instance any
	decoder := json.NewDecoder(bytes.NewReader(payload))
	decoder.UseNumber()
	if err := decoder.Decode(&instance); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	if err := schema.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrSchemaViolation, err)
	}
	return nil
}

func schemaURL(subject string) string {
	return "mem://schemas/" + subject + ".json"
}
