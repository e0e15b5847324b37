package db

import "fmt"

// --------------------------------------------------------------------------
// Error Codes
// --------------------------------------------------------------------------

type ErrCode uint64

const (
	ErrCSuccess              ErrCode = iota // 0: Operation executed successfully.
	ErrCInvalidKey                          // 1: Key is empty or exceeds the configured maximum length.
	ErrCCorruptRecord                       // 2: Stored bytes cannot be decoded back into a value.
	ErrCTransientStorage                    // 3: Backing store failed temporarily; safe to retry.
	ErrCDecryption                          // 4: Ciphertext was tampered with or key material does not match.
	ErrCUnsupportedOperation                // 5: Operation is not supported by the underlying database.
	ErrCInternal                            // 6: Operation failed due to an internal error.
)

func (c ErrCode) String() string {
	switch c {
	case ErrCSuccess:
		return "Success"
	case ErrCInvalidKey:
		return "InvalidKey"
	case ErrCCorruptRecord:
		return "CorruptRecord"
	case ErrCTransientStorage:
		return "TransientStorage"
	case ErrCDecryption:
		return "Decryption"
	case ErrCUnsupportedOperation:
		return "UnsupportedOperation"
	case ErrCInternal:
		return "Internal"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type ErrCode),
// an error message and an optional cause.
type Error struct {
	Code ErrCode // The return code
	Msg  string  // The error message
	Err  error   // The wrapped cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("RecordError (code %s): %s: %v", e.Code, e.Msg, e.Err)
	}
	return fmt.Sprintf("RecordError (code %s): %s", e.Code, e.Msg)
}

// Unwrap returns the wrapped cause so errors.Is/As can traverse the chain.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code. This lets
// callers match on sentinel errors like db.ErrCorruptRecord regardless of
// the message attached at the failure site.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewErrorf creates a new Error with the given code and a formatted message.
func NewErrorf(code ErrCode, format string, args ...interface{}) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// WrapError creates a new Error with the given code and message that wraps
// an underlying cause.
func WrapError(code ErrCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Sentinels and Helpers
// --------------------------------------------------------------------------

// Sentinel values for use with errors.Is.
var (
	ErrInvalidKey           = &Error{Code: ErrCInvalidKey, Msg: "invalid key"}
	ErrCorruptRecord        = &Error{Code: ErrCCorruptRecord, Msg: "corrupt record"}
	ErrTransientStorage     = &Error{Code: ErrCTransientStorage, Msg: "transient storage failure"}
	ErrDecryption           = &Error{Code: ErrCDecryption, Msg: "decryption failed"}
	ErrUnsupportedOperation = &Error{Code: ErrCUnsupportedOperation, Msg: "unsupported operation"}
)

// CodeOf extracts the ErrCode from err. It returns ErrCSuccess for nil and
// ErrCInternal for errors that do not carry a code anywhere in their chain.
func CodeOf(err error) ErrCode {
	if err == nil {
		return ErrCSuccess
	}
	for {
		if e, ok := err.(*Error); ok {
			return e.Code
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return ErrCInternal
		}
		if err = u.Unwrap(); err == nil {
			return ErrCInternal
		}
	}
}

// IsTransient reports whether err represents a temporary storage failure
// that a retry may resolve.
func IsTransient(err error) bool {
	return CodeOf(err) == ErrCTransientStorage
}
