// Package errors holds the typed errors returned by the name service
// packages. Each carries a code from codes.go; sentinels allow errors.Is
// checks without importing the concrete types.
package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a peer, interface or name is not known.
	ErrNotFound = errors.New("not found")

	ErrInvalidInput = errors.New("invalid input")

	// ErrMalformed is returned when wire data cannot be decoded.
	ErrMalformed = errors.New("malformed message")

	// ErrTooLarge is returned when an encoding would exceed the maximum
	// message size or the destination buffer.
	ErrTooLarge = errors.New("message too large")
)

// Error is implemented by every typed error in this package.
type Error interface {
	error
	Code() string
	Message() string
	Unwrap() error
}

// BaseError is embedded by the typed errors.
type BaseError struct {
	code    string
	message string
	cause   error
}

func (e *BaseError) Error() string {
	if e.cause != nil {
		return e.message + ": " + e.cause.Error()
	}
	return e.message
}

func (e *BaseError) Code() string    { return e.code }
func (e *BaseError) Message() string { return e.message }
func (e *BaseError) Unwrap() error   { return e.cause }

// ValidationError rejects a configuration value or string argument.
type ValidationError struct {
	*BaseError
	Field string
	Value any
}

func NewValidationError(field, message string, value any) *ValidationError {
	return &ValidationError{
		BaseError: &BaseError{code: CodeValidation, message: message},
		Field:     field,
		Value:     value,
	}
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.message
	}
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.message)
}

// InvalidArgumentError reports a numeric argument outside [Min, Max].
type InvalidArgumentError struct {
	*BaseError
	Param    string
	Value    int64
	Min, Max int64
}

func NewInvalidArgumentError(param string, value, min, max int64) *InvalidArgumentError {
	return &InvalidArgumentError{
		BaseError: &BaseError{
			code:    CodeInvalidArgument,
			message: fmt.Sprintf("%s=%d outside [%d, %d]", param, value, min, max),
			cause:   ErrInvalidInput,
		},
		Param: param,
		Value: value,
		Min:   min,
		Max:   max,
	}
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.message
}

// NotFoundError names the kind of thing that was missing and its key.
type NotFoundError struct {
	*BaseError
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		BaseError: &BaseError{code: CodeNotFound, message: resource + " not found", cause: ErrNotFound},
		Resource:  resource,
		ID:        id,
	}
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return e.message
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

// MalformedError reports where decoding stopped.
type MalformedError struct {
	*BaseError
	Offset int
}

func NewMalformedError(offset int, reason string) *MalformedError {
	return &MalformedError{
		BaseError: &BaseError{code: CodeDataLoss, message: reason, cause: ErrMalformed},
		Offset:    offset,
	}
}

func (e *MalformedError) Error() string {
	return fmt.Sprintf("malformed message at offset %d: %s", e.Offset, e.message)
}

// ResourceError is a socket or interface operation that failed.
type ResourceError struct {
	*BaseError
	Interface string
	Operation string
}

func NewResourceError(iface, operation string, cause error) *ResourceError {
	return &ResourceError{
		BaseError: &BaseError{
			code:    CodeNetworkError,
			message: fmt.Sprintf("%s failed on %s", operation, iface),
			cause:   cause,
		},
		Interface: iface,
		Operation: operation,
	}
}

// Wrap adds context to err. Typed errors keep their code; anything else
// becomes CodeInternal unless it wraps one of the sentinels.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return &BaseError{code: GetErrorCode(err), message: message, cause: err}
}
