package booking

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrInvalidTransition is returned when an action is not allowed from the
	// appointment's current status. It is always wrapped in a ValidationError.
	ErrInvalidTransition = errors.New("booking: invalid status transition")
	// ErrForbidden is returned when the actor lacks the capability for an
	// operation.
	ErrForbidden = errors.New("booking: forbidden")
)

// ValidationError reports a malformed request or a disallowed transition.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "booking: " + e.Message
	}
	return fmt.Sprintf("booking: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validateStruct runs the struct tags and converts the first failure into a
// ValidationError keyed by the snake_case field name.
func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ValidationError{Message: err.Error(), Err: err}
	}
	fe := fieldErrs[0]
	field := snakeCase(fe.Field())
	switch fe.Tag() {
	case "required":
		return invalid(field, "is required")
	case "email":
		return invalid(field, "must be a valid email address")
	case "oneof":
		return invalid(field, "must be one of [%s]", fe.Param())
	case "max":
		return invalid(field, "must be at most %s characters", fe.Param())
	}
	return invalid(field, "failed %q validation", fe.Tag())
}

func snakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
