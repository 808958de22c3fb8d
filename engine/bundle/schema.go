package bundle

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/mortality-lab/telemetry/event"
)

// =============================================================================
// Structural Validation
// =============================================================================

//go:embed schemas/bundle.schema.json
var schemaFS embed.FS

const bundleSchemaURL = "telemetry://schemas/bundle.schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	compileErr     error
)

func bundleSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := schemaFS.ReadFile("schemas/bundle.schema.json")
		if err != nil {
			compileErr = fmt.Errorf("read embedded schema: %w", err)
			return
		}
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(bundleSchemaURL, bytes.NewReader(doc)); err != nil {
			compileErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		compiledSchema, compileErr = compiler.Compile(bundleSchemaURL)
	})
	return compiledSchema, compileErr
}

// validateShape checks a decoded JSON document against the bundle schema.
// Failures surface as SchemaViolationError carrying the JSON pointer of the
// deepest offending location, so "/events/3/event" rather than just "/events".
func validateShape(doc any) error {
	schema, err := bundleSchema()
	if err != nil {
		return err
	}
	if err := schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			leaf := deepestCause(ve)
			return &event.SchemaViolationError{
				Path:   leaf.InstanceLocation,
				Detail: leaf.Message,
			}
		}
		return &event.SchemaViolationError{Detail: err.Error()}
	}
	return nil
}

// deepestCause walks the validation tree to the leaf with the most specific
// instance location. Ties go to the first leaf encountered.
func deepestCause(ve *jsonschema.ValidationError) *jsonschema.ValidationError {
	best := ve
	for _, cause := range ve.Causes {
		leaf := deepestCause(cause)
		if best == ve || len(leaf.InstanceLocation) > len(best.InstanceLocation) {
			best = leaf
		}
	}
	return best
}
