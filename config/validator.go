package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is the package-wide validator instance.
var validate = validator.New()

// ConfigError represents a validation error for a specific field.
type ConfigError struct {
	Field   string
	Message string
	Value   interface{}
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("%s: %s (got %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of config errors.
type ValidationErrors []ConfigError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var sb strings.Builder
	sb.WriteString("configuration validation failed:\n")
	for _, err := range e {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// ValidateWithDetails performs validation and returns detailed errors.
func ValidateWithDetails(cfg *Config) error {
	err := validate.Struct(cfg)
	if err == nil {
		return checkRates(cfg)
	}

	if fieldErrors, ok := err.(validator.ValidationErrors); ok {
		var details ValidationErrors
		for _, fe := range fieldErrors {
			details = append(details, ConfigError{
				Field:   fe.Namespace(),
				Message: formatValidationError(fe),
				Value:   fe.Value(),
			})
		}
		return details
	}
	return err
}

// checkRates validates the map-valued failure rates the struct tags
// cannot express.
func checkRates(cfg *Config) error {
	var details ValidationErrors
	for resource, rate := range cfg.Saga.BookingFailureRates {
		if rate < 0 || rate > 1 {
			details = append(details, ConfigError{
				Field:   "Saga.BookingFailureRates." + resource,
				Message: "must be a probability in [0,1]",
				Value:   rate,
			})
		}
	}
	if len(details) > 0 {
		return details
	}
	return nil
}

// formatValidationError converts a validator.FieldError to a readable message.
func formatValidationError(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", fe.Param())
	default:
		return fmt.Sprintf("failed validation: %s", fe.Tag())
	}
}
