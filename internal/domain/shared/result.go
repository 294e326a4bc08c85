package shared

import (
	"encoding/json"
	"errors"
	"fmt"
)

// unspecifiedFailure is used when a failure is constructed without any message
const unspecifiedFailure = "operation failed"

// Result is the outcome of every business operation.
// Exactly one state holds: a Success carries a value and no errors,
// a Failure carries at least one error message and no value.
type Result[T any] struct {
	value   T
	errors  []string
	success bool
}

// Success creates a successful result holding value
func Success[T any](value T) Result[T] {
	return Result[T]{value: value, success: true}
}

// Failure creates a failed result with the given messages.
// Empty messages are dropped; a failure with no messages left gets a generic one.
func Failure[T any](messages ...string) Result[T] {
	errs := make([]string, 0, len(messages))
	for _, m := range messages {
		if m != "" {
			errs = append(errs, m)
		}
	}
	if len(errs) == 0 {
		errs = append(errs, unspecifiedFailure)
	}
	return Result[T]{errors: errs}
}

// FailureMessage creates a failed result with a single message
func FailureMessage[T any](message string) Result[T] {
	return Failure[T](message)
}

// FailureFromError converts an error into a failed result.
// DomainErrors contribute their message; anything else its Error() text.
func FailureFromError[T any](err error) Result[T] {
	if err == nil {
		return Failure[T]()
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return Failure[T](domainErr.Message)
	}
	return Failure[T](err.Error())
}

// IsSuccess reports whether the result is a Success
func (r Result[T]) IsSuccess() bool {
	return r.success
}

// IsFailure reports whether the result is a Failure
func (r Result[T]) IsFailure() bool {
	return !r.success
}

// Value returns the success value. ok is false for a Failure.
func (r Result[T]) Value() (value T, ok bool) {
	if !r.success {
		var zero T
		return zero, false
	}
	return r.value, true
}

// MustValue returns the success value or panics on a Failure
func (r Result[T]) MustValue() T {
	if !r.success {
		panic(fmt.Sprintf("MustValue called on failed result: %v", r.Errors()))
	}
	return r.value
}

// IsZero reports whether r was never built through Success or Failure
func (r Result[T]) IsZero() bool {
	return !r.success && len(r.errors) == 0
}

// Errors returns a copy of the failure messages, nil for a Success.
// A zero Result reads as a Failure with the unspecified-failure message.
func (r Result[T]) Errors() []string {
	if r.success {
		return nil
	}
	if len(r.errors) == 0 {
		return []string{unspecifiedFailure}
	}
	out := make([]string, len(r.errors))
	copy(out, r.errors)
	return out
}

// resultJSON is the wire shape of a Result at the transport boundary
type resultJSON[T any] struct {
	Success bool     `json:"success"`
	Data    *T       `json:"data"`
	Errors  []string `json:"errors"`
}

// MarshalJSON encodes the result as {success, data, errors}
func (r Result[T]) MarshalJSON() ([]byte, error) {
	out := resultJSON[T]{Success: r.success}
	if r.success {
		v := r.value
		out.Data = &v
	} else {
		out.Errors = r.Errors()
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the {success, data, errors} shape back into a Result
func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var in resultJSON[T]
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	if in.Success {
		var v T
		if in.Data != nil {
			v = *in.Data
		}
		*r = Success(v)
		return nil
	}
	*r = Failure[T](in.Errors...)
	return nil
}
