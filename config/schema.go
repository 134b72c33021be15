package config

import (
	_ "embed"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

//go:embed routes.schema.json
var routesSchema []byte

var routesSchemaLoader = gojsonschema.NewBytesLoader(routesSchema)

// ValidationError lists every schema violation found in the route list.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return "invalid routes: " + strings.Join(e.Errors, "; ")
}

// ValidateRoutes checks the raw route list against the embedded JSON schema
// before it is decoded, so typos in field names are reported instead of
// silently ignored.
func ValidateRoutes(routes any) error {
	result, err := gojsonschema.Validate(routesSchemaLoader, gojsonschema.NewGoLoader(routes))
	if err != nil {
		return fmt.Errorf("route schema validation failed: %w", err)
	}
	if result.Valid() {
		return nil
	}

	var errs []string
	for _, desc := range result.Errors() {
		errs = append(errs, fmt.Sprintf("%s: %s", desc.Context().String(), desc.Description()))
	}
	return &ValidationError{Errors: errs}
}
