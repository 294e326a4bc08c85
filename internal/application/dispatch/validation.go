package dispatch

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Validator checks a request before its handler runs.
// It returns every problem found as a human-readable message; none means valid.
type Validator[R Request] interface {
	Validate(ctx context.Context, req R) []string
}

// ValidatorFunc adapts a function to Validator
type ValidatorFunc[R Request] func(ctx context.Context, req R) []string

// Validate implements Validator
func (f ValidatorFunc[R]) Validate(ctx context.Context, req R) []string {
	return f(ctx, req)
}

var (
	structValidatorOnce sync.Once
	structValidate      *validator.Validate
)

// sharedValidate returns the process-wide validator. It caches struct metadata,
// so one instance is reused.
func sharedValidate() *validator.Validate {
	structValidatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		// Use JSON tag names for field names in messages
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			if name == "" {
				return fld.Name
			}
			return name
		})
		structValidate = v
	})
	return structValidate
}

// StructValidator validates a request's `validate` struct tags
type StructValidator[R Request] struct {
	validate *validator.Validate
}

// NewStructValidator creates a tag-driven validator for R
func NewStructValidator[R Request]() StructValidator[R] {
	return StructValidator[R]{validate: sharedValidate()}
}

// Validate implements Validator
func (v StructValidator[R]) Validate(ctx context.Context, req R) []string {
	err := v.validate.StructCtx(ctx, req)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return []string{err.Error()}
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, fe.Field()+": "+validationMessage(fe))
	}
	return messages
}

// validationMessage returns a human-readable validation message
func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "This field is required"
	case "email":
		return "Invalid email format"
	case "min":
		if e.Type().Kind() == reflect.String {
			return "Must be at least " + e.Param() + " characters"
		}
		return "Must be at least " + e.Param()
	case "max":
		if e.Type().Kind() == reflect.String {
			return "Must be at most " + e.Param() + " characters"
		}
		return "Must be at most " + e.Param()
	case "len":
		return "Must be exactly " + e.Param() + " characters"
	case "uuid":
		return "Invalid UUID format"
	case "oneof":
		return "Must be one of: " + e.Param()
	case "gte":
		return "Must be greater than or equal to " + e.Param()
	case "lte":
		return "Must be less than or equal to " + e.Param()
	case "gt":
		return "Must be greater than " + e.Param()
	case "lt":
		return "Must be less than " + e.Param()
	case "numeric":
		return "Must be numeric"
	case "alphanum":
		return "Must be alphanumeric"
	default:
		return "Invalid value"
	}
}
