package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Error codes carried by AppError.
const (
	CodeConfig          = "CONFIG_ERROR"
	CodeUnsupportedType = "UNSUPPORTED_TYPE"
	CodeDecodeFailed    = "DECODE_FAILED"
	CodeEngineFailed    = "ENGINE_FAILED"
)

// Common application errors
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrBusy            = errors.New("a recognition job is already running")
	ErrDecode          = errors.New("decode failed")
	ErrEngine          = errors.New("ocr engine failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// DecodeError tags a PDF/image decoding failure.
func DecodeError(message string, err error) *AppError {
	return NewAppError(CodeDecodeFailed, message, errors.Join(ErrDecode, err))
}

// EngineError tags an OCR engine failure.
func EngineError(message string, err error) *AppError {
	return NewAppError(CodeEngineFailed, message, errors.Join(ErrEngine, err))
}

// UnsupportedTypeError tags a file whose type is not on the allow-list.
func UnsupportedTypeError(mimeType, name string) *AppError {
	return NewAppError(CodeUnsupportedType, fmt.Sprintf("%q (%s)", name, mimeType), ErrUnsupportedType)
}

// ErrorCode returns the AppError code in err's chain, or "".
func ErrorCode(err error) string {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
