package utils

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
)

var inputValidator = newInputValidator()

func newInputValidator() *validator.Validate {
	v := validator.New()
	// Input structs declare their rules under the binding tag.
	v.SetTagName("binding")
	return v
}

// ValidateInput runs struct validation and flattens failures into a single
// error listing each offending field and the rule it broke.
func ValidateInput(input interface{}) error {
	err := inputValidator.Struct(input)
	if err == nil {
		return nil
	}
	fields := ProcessValidationErrors(err)
	if len(fields) == 0 {
		return err
	}
	parts := make([]string, 0, len(fields))
	for field, tag := range fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, tag))
	}
	sort.Strings(parts)
	return errors.New("invalid input: " + strings.Join(parts, ", "))
}
