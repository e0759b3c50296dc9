package xpldevice

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// itemValidator validates a configurable item's JSON-encoded value
// against an optional caller-supplied schema, caching compiled schemas
// keyed by their raw bytes (spec.md §4.5 enrichment: structured config
// item values, beyond the protocol's plain strings).
type itemValidator struct {
	mu    sync.RWMutex
	cache map[string]*jsonschema.Schema
}

func newItemValidator() *itemValidator {
	return &itemValidator{cache: make(map[string]*jsonschema.Schema)}
}

// validate checks value (a JSON document) against schemaDoc. An empty
// or "{}"/"null" schemaDoc always passes.
func (v *itemValidator) validate(schemaDoc json.RawMessage, value string) error {
	if len(schemaDoc) == 0 || string(schemaDoc) == "{}" || string(schemaDoc) == "null" {
		return nil
	}

	compiled, err := v.compile(schemaDoc)
	if err != nil {
		return fmt.Errorf("xpldevice: compile item schema: %w", err)
	}

	var payload any
	if err := json.Unmarshal([]byte(value), &payload); err != nil {
		return fmt.Errorf("xpldevice: item value is not valid JSON: %w", err)
	}
	return compiled.Validate(payload)
}

func (v *itemValidator) compile(schemaDoc json.RawMessage) (*jsonschema.Schema, error) {
	key := string(schemaDoc)

	v.mu.RLock()
	if s, ok := v.cache[key]; ok {
		v.mu.RUnlock()
		return s, nil
	}
	v.mu.RUnlock()

	v.mu.Lock()
	defer v.mu.Unlock()
	if s, ok := v.cache[key]; ok {
		return s, nil
	}

	var schemaMap any
	if err := json.Unmarshal(schemaDoc, &schemaMap); err != nil {
		return nil, fmt.Errorf("unmarshal schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource("item-schema.json", schemaMap); err != nil {
		return nil, fmt.Errorf("add resource: %w", err)
	}
	compiled, err := c.Compile("item-schema.json")
	if err != nil {
		return nil, fmt.Errorf("compile: %w", err)
	}

	v.cache[key] = compiled
	return compiled, nil
}

// WithSchema attaches a JSON Schema document that every value applied to
// this item via config.response must satisfy (spec.md §4.5 enrichment).
// Values that fail validation are rejected and logged, never applied.
func (item *ConfigItem) WithSchema(schemaDoc json.RawMessage) *ConfigItem {
	item.schema = schemaDoc
	return item
}
