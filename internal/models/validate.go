package models

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks a model against its `validate` struct tags. Rows coming
// from a remote backend pass through here before they reach callers.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid %T: %w", v, err)
	}
	return nil
}

// ValidateAll validates every element of a slice, stopping at the first
// invalid one.
func ValidateAll[T any](items []T) error {
	for i := range items {
		if err := Validate(&items[i]); err != nil {
			return fmt.Errorf("row %d: %w", i, err)
		}
	}
	return nil
}
