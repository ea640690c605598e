package errors

// Error codes attached to typed errors and used as log fields.
const (
	CodeOK              = "OK"
	CodeInvalidArgument = "INVALID_ARGUMENT"
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"

	// CodeOutOfRange marks an encoding that would not fit a wire limit.
	CodeOutOfRange = "OUT_OF_RANGE"

	// CodeDataLoss marks wire data a peer sent that cannot be decoded.
	CodeDataLoss = "DATA_LOSS"

	// CodeNetworkError marks a socket or interface failure. The engine keeps
	// running without the affected interface.
	CodeNetworkError = "NETWORK_ERROR"

	CodeInternal = "INTERNAL"
)
