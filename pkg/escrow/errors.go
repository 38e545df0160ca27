package escrow

import (
	"errors"
	"fmt"
)

// Code identifies why an escrow operation was rejected.
type Code int

const (
	CodeUnknown Code = iota
	CodeInvalidSignature
	CodeInvalidParams
	CodeDuplicateOrder
	CodeOrderNotFound
	CodeAlreadyFulfilled
	CodeSecretMismatch
	CodeUnauthorized
	CodeTooEarly
	CodeInsufficientFunds
)

func (c Code) String() string {
	switch c {
	case CodeInvalidSignature:
		return "InvalidSignature"
	case CodeInvalidParams:
		return "InvalidParams"
	case CodeDuplicateOrder:
		return "DuplicateOrder"
	case CodeOrderNotFound:
		return "OrderNotFound"
	case CodeAlreadyFulfilled:
		return "AlreadyFulfilled"
	case CodeSecretMismatch:
		return "SecretMismatch"
	case CodeUnauthorized:
		return "Unauthorized"
	case CodeTooEarly:
		return "TooEarly"
	case CodeInsufficientFunds:
		return "InsufficientFunds"
	default:
		return "Unknown"
	}
}

// Class groups codes by how a caller should react to them.
type Class int

const (
	ClassUnknown Class = iota
	// ClassValidation is rejected synchronously and never partially applied.
	ClassValidation
	// ClassConflict signals the work was already done by someone.
	ClassConflict
	// ClassTiming is retryable once the chain advances.
	ClassTiming
	// ClassAuthorization is fatal for the caller that received it.
	ClassAuthorization
	// ClassFunds depends on the caller topping up its balance.
	ClassFunds
)

// Class returns the handling class of the code.
func (c Code) Class() Class {
	switch c {
	case CodeInvalidSignature, CodeInvalidParams, CodeSecretMismatch, CodeOrderNotFound:
		return ClassValidation
	case CodeDuplicateOrder, CodeAlreadyFulfilled:
		return ClassConflict
	case CodeTooEarly:
		return ClassTiming
	case CodeUnauthorized:
		return ClassAuthorization
	case CodeInsufficientFunds:
		return ClassFunds
	default:
		return ClassUnknown
	}
}

// Error is returned by every rejected engine operation.
type Error struct {
	Code Code
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return "escrow: " + e.Code.String()
	}
	return fmt.Sprintf("escrow: %s: %s", e.Code, e.Msg)
}

// Is matches any *Error with the same code, so wrapped engine errors
// compare equal to the package sentinels.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

var (
	ErrInvalidSignature  = &Error{Code: CodeInvalidSignature}
	ErrInvalidParams     = &Error{Code: CodeInvalidParams}
	ErrDuplicateOrder    = &Error{Code: CodeDuplicateOrder}
	ErrOrderNotFound     = &Error{Code: CodeOrderNotFound}
	ErrAlreadyFulfilled  = &Error{Code: CodeAlreadyFulfilled}
	ErrSecretMismatch    = &Error{Code: CodeSecretMismatch}
	ErrUnauthorized      = &Error{Code: CodeUnauthorized}
	ErrTooEarly          = &Error{Code: CodeTooEarly}
	ErrInsufficientFunds = &Error{Code: CodeInsufficientFunds}
)

func newError(code Code, format string, args ...any) error {
	return &Error{Code: code, Msg: fmt.Sprintf(format, args...)}
}

// CodeOf extracts the escrow code from err, or CodeUnknown.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// CodeFromName maps a code name (as used in contract custom errors) back to a Code.
func CodeFromName(name string) Code {
	for c := CodeInvalidSignature; c <= CodeInsufficientFunds; c++ {
		if c.String() == name {
			return c
		}
	}
	return CodeUnknown
}

// IsIdempotentSuccess reports whether err means the requested effect already exists.
func IsIdempotentSuccess(err error) bool {
	return CodeOf(err).Class() == ClassConflict
}
