package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrorKind classifies pipeline failures for HTTP status mapping.
type ErrorKind string

const (
	ErrKindConfiguration      ErrorKind = "configuration"
	ErrKindServiceUnavailable ErrorKind = "service_unavailable"
	ErrKindExecution          ErrorKind = "execution"
	ErrKindTimeout            ErrorKind = "timeout"
	ErrKindNotFound           ErrorKind = "not_found"
	ErrKindInternal           ErrorKind = "internal"
)

// BridgeError is the classified error carried through the generation
// pipeline. Details holds an upstream payload verbatim when one exists
// (execution errors keep the raw event data).
type BridgeError struct {
	Kind    ErrorKind
	Message string
	Details json.RawMessage
	Err     error
}

func (e *BridgeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BridgeError) Unwrap() error {
	return e.Err
}

func NewConfigurationError(message string, err error) *BridgeError {
	return &BridgeError{Kind: ErrKindConfiguration, Message: message, Err: err}
}

func NewServiceUnavailableError(message string, err error) *BridgeError {
	return &BridgeError{Kind: ErrKindServiceUnavailable, Message: message, Err: err}
}

func NewExecutionError(message string, details json.RawMessage) *BridgeError {
	return &BridgeError{Kind: ErrKindExecution, Message: message, Details: details}
}

func NewTimeoutError(message string) *BridgeError {
	return &BridgeError{Kind: ErrKindTimeout, Message: message}
}

func NewNotFoundError(message string) *BridgeError {
	return &BridgeError{Kind: ErrKindNotFound, Message: message}
}

func NewInternalError(message string, err error) *BridgeError {
	return &BridgeError{Kind: ErrKindInternal, Message: message, Err: err}
}

// AsBridgeError unwraps err into a *BridgeError when the chain contains one.
func AsBridgeError(err error) (*BridgeError, bool) {
	var be *BridgeError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
