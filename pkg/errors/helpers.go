package errors

import "errors"

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target) || errors.Is(err, ErrNotFound)
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsInvalidArgument(err error) bool {
	var target *InvalidArgumentError
	return errors.As(err, &target) || errors.Is(err, ErrInvalidInput)
}

func IsMalformed(err error) bool {
	var target *MalformedError
	return errors.As(err, &target) || errors.Is(err, ErrMalformed)
}

func IsResource(err error) bool {
	var target *ResourceError
	return errors.As(err, &target)
}

func IsTooLarge(err error) bool {
	return errors.Is(err, ErrTooLarge)
}

// GetErrorCode returns the code of the outermost typed error in err's chain,
// falling back to the code implied by a wrapped sentinel.
func GetErrorCode(err error) string {
	if err == nil {
		return CodeOK
	}
	var typed Error
	if errors.As(err, &typed) {
		return typed.Code()
	}
	switch {
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidArgument
	case errors.Is(err, ErrMalformed):
		return CodeDataLoss
	case errors.Is(err, ErrTooLarge):
		return CodeOutOfRange
	default:
		return CodeInternal
	}
}
