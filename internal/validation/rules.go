// Package validation provides custom validation rules for the application.
package validation

import (
	"encoding/json"
	"strings"

	validation "github.com/jellydator/validation"

	apperrors "github.com/allisson/outbox/internal/errors"
)

// WrapValidationError wraps validation errors as domain ErrInvalidInput
func WrapValidationError(err error) error {
	if err == nil {
		return nil
	}
	return apperrors.Wrap(apperrors.ErrInvalidInput, err.Error())
}

// NoWhitespace validates that string doesn't contain leading/trailing whitespace
var NoWhitespace = validation.NewStringRuleWithError(
	func(s string) bool {
		return s == strings.TrimSpace(s)
	},
	validation.NewError("validation_no_whitespace", "must not contain leading or trailing whitespace"),
)

// NotBlank validates that a string is not empty after trimming whitespace
var NotBlank = validation.NewStringRuleWithError(
	func(s string) bool {
		return strings.TrimSpace(s) != ""
	},
	validation.NewError("validation_not_blank", "must not be blank"),
)

// JSON validates that a json.RawMessage, []byte or string holds a single well-formed JSON value.
var JSON = validation.By(func(value any) error {
	var raw []byte
	switch v := value.(type) {
	case json.RawMessage:
		raw = v
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return validation.NewError("validation_json_type", "must be a JSON document")
	}
	if len(raw) == 0 {
		return nil // Let Required handle empty values
	}
	if !json.Valid(raw) {
		return validation.NewError("validation_json", "must be valid JSON")
	}
	return nil
})
