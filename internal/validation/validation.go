// Package validation checks a workflow execution's input object against
// its declared InputParameter schema (§7: "Validation failure (input)").
package validation

import (
	"fmt"
	"sort"

	validatorpkg "github.com/go-playground/validator/v10"

	"github.com/daz23456/workflow-sub005/pkg/registry"
)

// FieldError is one schema violation.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Result is the structured validation outcome surfaced to the caller
// instead of a thrown exception (§7).
type Result struct {
	IsValid bool         `json:"isValid"`
	Errors  []FieldError `json:"errors"`
}

// formatTypes are InputParameter.Type values that delegate to the
// underlying struct-tag validator for format checking, rather than a
// plain Go-kind check.
var formatTypes = map[string]string{
	"email": "email",
	"url":   "url",
	"uuid":  "uuid4",
}

// Validator validates an input object against a workflow's declared
// input schema.
type Validator struct {
	v *validatorpkg.Validate
}

// New builds a Validator.
func New() *Validator {
	return &Validator{v: validatorpkg.New()}
}

// Validate checks input against schema. Per §8's round-trip property, an
// empty schema with empty input returns IsValid=true without invoking
// the underlying format validator at all.
func (val *Validator) Validate(schema map[string]registry.InputParameter, input map[string]any) Result {
	if len(schema) == 0 {
		return Result{IsValid: true, Errors: []FieldError{}}
	}

	var errs []FieldError
	for name, param := range schema {
		value, present := input[name]
		if !present || value == nil {
			if param.Required && param.Default == nil {
				errs = append(errs, FieldError{Field: name, Message: "required field is missing"})
			}
			continue
		}
		if err := val.checkOne(name, param, value); err != nil {
			errs = append(errs, *err)
		}
	}

	sort.Slice(errs, func(i, j int) bool { return errs[i].Field < errs[j].Field })
	if errs == nil {
		errs = []FieldError{}
	}
	return Result{IsValid: len(errs) == 0, Errors: errs}
}

func (val *Validator) checkOne(name string, param registry.InputParameter, value any) *FieldError {
	if tag, ok := formatTypes[param.Type]; ok {
		s, ok := value.(string)
		if !ok {
			return &FieldError{Field: name, Message: fmt.Sprintf("expected a string for type %q", param.Type)}
		}
		if err := val.v.Var(s, tag); err != nil {
			return &FieldError{Field: name, Message: fmt.Sprintf("value does not satisfy format %q", param.Type)}
		}
		return nil
	}

	if !kindMatches(param.Type, value) {
		return &FieldError{Field: name, Message: fmt.Sprintf("expected type %q", param.Type)}
	}
	return nil
}

func kindMatches(paramType string, value any) bool {
	switch paramType {
	case "", "string":
		_, ok := value.(string)
		return paramType == "" || ok
	case "number":
		switch value.(type) {
		case float64, float32, int, int64:
			return true
		}
		return false
	case "integer":
		switch v := value.(type) {
		case int, int64:
			return true
		case float64:
			return v == float64(int64(v))
		}
		return false
	case "boolean":
		_, ok := value.(bool)
		return ok
	case "array":
		_, ok := value.([]any)
		return ok
	case "object":
		_, ok := value.(map[string]any)
		return ok
	default:
		return true
	}
}
