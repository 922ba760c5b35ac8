// utils/validate.go
package utils

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

const CodeLength = 6

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		_ = validate.RegisterValidation("joincode", func(fl validator.FieldLevel) bool {
			return IsJoinCode(fl.Field().String())
		})
	})
	return validate
}

// ValidateStruct checks the `validate` tags on a request or command struct.
func ValidateStruct(v any) error {
	return validatorInstance().Struct(v)
}

// ValidationMessage turns a validator error into a short client-facing message.
func ValidationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "invalid request"
	}
	verr := verrs[0]
	field := strings.ToLower(verr.Field())
	switch verr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min", "gte":
		return fmt.Sprintf("%s must be at least %s", field, verr.Param())
	case "gt":
		return fmt.Sprintf("%s must be greater than %s", field, verr.Param())
	case "max", "lte":
		return fmt.Sprintf("%s must be at most %s", field, verr.Param())
	case "joincode":
		return fmt.Sprintf("%s must be a %d character code", field, CodeLength)
	case "gtfield":
		return fmt.Sprintf("%s must be after %s", field, strings.ToLower(verr.Param()))
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// IsJoinCode reports whether s looks like a lobby or tournament joining code.
func IsJoinCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for _, r := range s {
		if (r < 'A' || r > 'Z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
