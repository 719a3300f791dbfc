package calq

import (
	"errors"
	"fmt"
)

// ErrNotInitialized is returned synchronously by every guarded operation invoked before
// Init has completed successfully. It is never delivered through a Call.
var ErrNotInitialized = errors.New("calq has not been initialised: call Init first")

// ArgumentError reports a parameter that failed validation. It is always delivered through
// the operation's Call, which is already resolved when the operation returns.
type ArgumentError struct {
	Param string
	Value any
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid argument '%s', with value '%s'", e.Param, describe(e.Value))
}

func newArgumentError(param string, value any) *ArgumentError {
	return &ArgumentError{Param: param, Value: value}
}

func describe(value any) string {
	if value == nil {
		return "null"
	}
	return fmt.Sprintf("%v", value)
}

// BridgeError is a failure reported by the native collaborator or the bridge transport.
// The facade never builds one; it passes transport errors through unchanged.
type BridgeError struct {
	Module    string
	Operation Operation
	Code      int
	Message   string
}

func (e *BridgeError) Error() string {
	return fmt.Sprintf("%s.%s failed (code %d): %s", e.Module, e.Operation, e.Code, e.Message)
}

// IsArgumentError reports whether err is, or wraps, an ArgumentError naming param.
// An empty param matches any ArgumentError.
func IsArgumentError(err error, param string) bool {
	var argErr *ArgumentError
	if !errors.As(err, &argErr) {
		return false
	}
	return param == "" || argErr.Param == param
}
