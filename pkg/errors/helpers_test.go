package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicates(t *testing.T) {
	notFound := NewNotFoundError("peer", "abc")
	invalid := NewInvalidArgumentError("count", 0, 1, 10)
	malformed := NewMalformedError(3, "truncated")
	validation := NewValidationError("name", "empty", "")
	resource := NewResourceError("lo", "join", errors.New("x"))

	tests := []struct {
		name  string
		check func(error) bool
		yes   []error
		no    []error
	}{
		{"IsNotFound", IsNotFound, []error{notFound, ErrNotFound, fmt.Errorf("w: %w", notFound)}, []error{nil, invalid, malformed}},
		{"IsInvalidArgument", IsInvalidArgument, []error{invalid, ErrInvalidInput}, []error{nil, validation, notFound}},
		{"IsMalformed", IsMalformed, []error{malformed, Wrap(ErrMalformed, "decode")}, []error{nil, resource}},
		{"IsValidation", IsValidation, []error{validation, fmt.Errorf("w: %w", validation)}, []error{nil, invalid}},
		{"IsResource", IsResource, []error{resource, Wrap(resource, "open")}, []error{nil, notFound}},
		{"IsTooLarge", IsTooLarge, []error{ErrTooLarge, fmt.Errorf("pack: %w", ErrTooLarge)}, []error{nil, malformed}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, err := range tt.yes {
				assert.True(t, tt.check(err), "%v", err)
			}
			for _, err := range tt.no {
				assert.False(t, tt.check(err), "%v", err)
			}
		})
	}
}

func TestGetErrorCodeFromSentinels(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, CodeOK},
		{ErrNotFound, CodeNotFound},
		{fmt.Errorf("arg: %w", ErrInvalidInput), CodeInvalidArgument},
		{ErrMalformed, CodeDataLoss},
		{ErrTooLarge, CodeOutOfRange},
		{errors.New("x"), CodeInternal},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, GetErrorCode(tt.err), "%v", tt.err)
	}
}
