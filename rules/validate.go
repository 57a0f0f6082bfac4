package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidTable is returned when a rule table does not satisfy its schema.
var ErrInvalidTable = errors.New("rule table does not match schema")

// ValidateYAML checks YAML table data against the named table schema.
func ValidateYAML(name string, data []byte) error {
	var doc interface{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parsing %s table: %w", name, err)
	}
	jsonDoc, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("converting %s table to JSON: %w", name, err)
	}
	return ValidateJSON(name, jsonDoc)
}

// ValidateJSON checks JSON data against the named schema. Validation errors
// are joined into a single ErrInvalidTable-wrapped error.
func ValidateJSON(name string, data []byte) error {
	schema, err := Schema(name)
	if err != nil {
		return fmt.Errorf("loading %s schema: %w", name, err)
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewBytesLoader(schema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("validating %s: %w", name, err)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return fmt.Errorf("%w: %s: %s", ErrInvalidTable, name, strings.Join(msgs, "; "))
}

// Load returns the table data for name, read from overridePath when set and
// from the embedded copy otherwise. Override files are schema-validated.
func Load(name, overridePath string) ([]byte, error) {
	if overridePath == "" {
		return YAML(name)
	}
	data, err := os.ReadFile(overridePath)
	if err != nil {
		return nil, fmt.Errorf("reading %s table %s: %w", name, overridePath, err)
	}
	if err := ValidateYAML(name, data); err != nil {
		return nil, err
	}
	return data, nil
}
