package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string `json:"error_code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"` // Wrapped internal error (not exposed to client)
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

const (
	CodeValidation       = "VAL_001"
	CodeNotFound         = "TGT_001"
	CodeRateLimited      = "RATE_001"
	CodeTransport        = "DLV_001"
	CodeRetryExhausted   = "DLV_002"
	CodeQueueFull        = "DLV_003"
	CodeDispatcherClosed = "DLV_004"
)

// ---- Validation (VAL) ----

// Validation reports malformed input; nothing was applied.
func Validation(message string) *AppError {
	return New(CodeValidation, message, http.StatusBadRequest)
}

// ---- Targets (TGT) ----

func ErrPayloadTooLarge(limit int64) *AppError {
	return New("VAL_002", fmt.Sprintf("Request body exceeds %d bytes", limit), http.StatusRequestEntityTooLarge)
}

func ErrNotFound(entity string) *AppError {
	return New(CodeNotFound, fmt.Sprintf("%s not found", entity), http.StatusNotFound)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New(CodeRateLimited, "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- Delivery (DLV) ----

// ErrTransport describes a failed delivery attempt. statusCode is 0 when no
// response was received.
func ErrTransport(statusCode int, err error) *AppError {
	msg := "Delivery failed"
	if statusCode > 0 {
		msg = fmt.Sprintf("Delivery failed with status %d", statusCode)
	}
	return Wrap(CodeTransport, msg, http.StatusBadGateway, err)
}

func ErrRetryExhausted(attempts int) *AppError {
	return New(CodeRetryExhausted, fmt.Sprintf("Retries exhausted after %d attempts", attempts), http.StatusBadGateway)
}

func ErrQueueFull() *AppError {
	return New(CodeQueueFull, "Dispatch queue is full", http.StatusServiceUnavailable)
}

func ErrDispatcherClosed() *AppError {
	return New(CodeDispatcherClosed, "Dispatcher is shutting down", http.StatusServiceUnavailable)
}

// ---- Signatures (SIG) ----

func ErrInvalidSignature() *AppError {
	return New("SIG_001", "Invalid signature", http.StatusUnauthorized)
}

func ErrSignatureExpired() *AppError {
	return New("SIG_002", "Signature timestamp outside tolerance", http.StatusUnauthorized)
}

// ---- Authentication (AUTH) ----

func ErrInvalidCredentials() *AppError {
	return New("AUTH_001", "Invalid credentials", http.StatusUnauthorized)
}

func ErrInvalidToken() *AppError {
	return New("AUTH_002", "Invalid or expired token", http.StatusUnauthorized)
}

// ---- System & Infrastructure (SYS) ----

func ErrDatabaseError(err error) *AppError {
	return Wrap("SYS_001", "Internal database error", http.StatusInternalServerError, err)
}

func ErrCacheError(err error) *AppError {
	return Wrap("SYS_002", "Cache unavailable", http.StatusServiceUnavailable, err)
}

func ErrEncryptionFailure(err error) *AppError {
	return Wrap("SYS_003", "Encryption service failure", http.StatusInternalServerError, err)
}

// InternalError wraps an internal error as a SYS_000 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_000", "Internal server error", http.StatusInternalServerError, err)
}

// HasCode reports whether err carries an AppError with the given code.
func HasCode(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

func IsValidation(err error) bool { return HasCode(err, CodeValidation) }

func IsNotFound(err error) bool { return HasCode(err, CodeNotFound) }
