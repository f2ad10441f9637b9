package core

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"rainwatch/internal/types"
)

// Validator wraps go-playground/validator and translates its field errors
// into the structured error codes clients see.
type Validator struct {
	validate *validator.Validate
	logger   *slog.Logger
}

// NewValidator creates a Validator whose field names in error details match
// the JSON tags of the request structs rather than the Go field names.
func NewValidator(logger *slog.Logger) *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	return &Validator{validate: v, logger: logger}
}

// ValidateStruct validates a request struct against its validate tags.
// On failure it returns a *types.AppError whose code reflects the first
// failing field and whose details map every failing field to a
// human-readable message.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		// InvalidValidationError: the caller passed a non-struct.
		v.logger.Error("validator invoked on non-struct value", "error", err)
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	details := make(map[string]any, len(fieldErrs))
	for _, fe := range fieldErrs {
		details[fe.Field()] = fieldErrorMessage(fe)
	}

	return types.NewAppError(
		fieldErrorCode(fieldErrs[0]),
		"request validation failed",
		err,
	).WithDetails(details)
}

// fieldErrorCode maps a failing field to the domain error code clients
// match on.
func fieldErrorCode(fe validator.FieldError) types.ErrorCode {
	if fe.Tag() == "required" {
		return types.ErrCodeValidationMissingField
	}

	switch fe.Field() {
	case "lat":
		return types.ErrCodeValidationInvalidLat
	case "lon":
		return types.ErrCodeValidationInvalidLon
	case "startDate", "endDate":
		return types.ErrCodeValidationTimeWindow
	case "triggerRainfall":
		return types.ErrCodeValidationThresholdRange
	default:
		return types.ErrCodeValidationMalformedBody
	}
}

// fieldErrorMessage renders a human-readable message for a field error.
func fieldErrorMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "this field is required"
	case "min":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s", fe.Param())
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be %s or greater", fe.Param())
	case "lte":
		return fmt.Sprintf("must be %s or less", fe.Param())
	case "gtfield":
		return fmt.Sprintf("must be after %s", fe.Param())
	case "oneof":
		return fmt.Sprintf("must be one of: %s", fe.Param())
	default:
		return fmt.Sprintf("failed validation rule %q", fe.Tag())
	}
}
