package domain

import (
	"errors"
	"fmt"
)

// ErrorCode represents a machine-readable error code
type ErrorCode string

const (
	// Validation Errors (VALIDATION_*)
	ErrorCodeValidationFailed        ErrorCode = "VALIDATION_FAILED"
	ErrorCodeValidationAmountInvalid ErrorCode = "VALIDATION_AMOUNT_INVALID"
	ErrorCodeValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"

	// Purchase state errors (PURCHASE_*)
	ErrorCodePurchaseNotFound         ErrorCode = "PURCHASE_NOT_FOUND"
	ErrorCodePurchaseAlreadyProcessed ErrorCode = "PURCHASE_ALREADY_PROCESSED"
	ErrorCodePurchaseInvalidState     ErrorCode = "PURCHASE_INVALID_STATE"
	ErrorCodePurchaseDuplicateRequest ErrorCode = "PURCHASE_DUPLICATE_REQUEST"
	ErrorCodePurchaseBlacklistLimit   ErrorCode = "PURCHASE_BLACKLIST_LIMIT"

	// Payment Errors
	ErrorCodePaymentNotSupported ErrorCode = "PAYMENT_NOT_SUPPORTED"

	// Biller / cascade errors
	ErrorCodeBillerMappingFailed ErrorCode = "BILLER_MAPPING_FAILED"
	ErrorCodeBillerUnavailable   ErrorCode = "BILLER_UNAVAILABLE"
	ErrorCodeCascadeExhausted    ErrorCode = "CASCADE_EXHAUSTED"

	// Transaction backend errors
	ErrorCodeTransactionBackend ErrorCode = "TRANSACTION_BACKEND_ERROR"

	// Internal Errors (INTERNAL_*)
	ErrorCodeInternalError ErrorCode = "INTERNAL_ERROR"
	ErrorCodeDatabaseError ErrorCode = "INTERNAL_DATABASE_ERROR"
)

// DomainError represents a structured domain error with error code and context
type DomainError struct {
	Err     error
	Details map[string]interface{}
	Code    ErrorCode
	Message string
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError carrying the same code, so sentinel values
// work with errors.Is even after WithDetail copies.
func (e *DomainError) Is(target error) bool {
	var other *DomainError
	if errors.As(target, &other) {
		return other.Code == e.Code
	}
	return false
}

// WithDetail returns a copy of the error with an extra detail field.
// Sentinels are shared, so they are never mutated in place.
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	details := make(map[string]interface{}, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Err: e.Err, Details: details, Code: e.Code, Message: e.Message}
}

// NewDomainError creates a new domain error
func NewDomainError(code ErrorCode, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
	}
}

// WrapError wraps an existing error with a domain error code
func WrapError(code ErrorCode, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Err:     err,
	}
}

// IsDomainError checks if an error is a DomainError with the given code
func IsDomainError(err error, code ErrorCode) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error, returns empty string if not a DomainError
func GetErrorCode(err error) ErrorCode {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ""
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodeValidationFailed ||
		code == ErrorCodeValidationAmountInvalid ||
		code == ErrorCodeValidationMissingField
}

// IsStateError reports errors that require the caller to restart the purchase flow
func IsStateError(err error) bool {
	code := GetErrorCode(err)
	return code == ErrorCodePurchaseNotFound ||
		code == ErrorCodePurchaseAlreadyProcessed ||
		code == ErrorCodePurchaseInvalidState
}

// IsDuplicateRequest checks if an error signals an in-flight attempt for the same session
func IsDuplicateRequest(err error) bool {
	return GetErrorCode(err) == ErrorCodePurchaseDuplicateRequest
}

var (
	ErrValidationFailed        = NewDomainError(ErrorCodeValidationFailed, "validation failed")
	ErrValidationAmountInvalid = NewDomainError(ErrorCodeValidationAmountInvalid, "invalid amount")
	ErrValidationMissingField  = NewDomainError(ErrorCodeValidationMissingField, "required field missing")

	ErrPurchaseNotFound         = NewDomainError(ErrorCodePurchaseNotFound, "purchase session not found or expired")
	ErrPurchaseAlreadyProcessed = NewDomainError(ErrorCodePurchaseAlreadyProcessed, "purchase session already processed")
	ErrPurchaseInvalidState     = NewDomainError(ErrorCodePurchaseInvalidState, "purchase is in invalid state for this operation")
	ErrDuplicateRequest         = NewDomainError(ErrorCodePurchaseDuplicateRequest, "a purchase attempt is already in progress for this session")
	ErrBlacklistLimitReached    = NewDomainError(ErrorCodePurchaseBlacklistLimit, "card blacklisted and maximum blacklist check attempts reached")

	ErrPaymentNotSupported = NewDomainError(ErrorCodePaymentNotSupported, "payment method not supported for this site")

	ErrBillerMapping     = NewDomainError(ErrorCodeBillerMappingFailed, "unable to resolve biller mapping")
	ErrBillerUnavailable = NewDomainError(ErrorCodeBillerUnavailable, "no biller available for the requested flow")
	ErrCascadeExhausted  = NewDomainError(ErrorCodeCascadeExhausted, "no remaining biller attempts for this purchase")

	ErrTransactionBackend = NewDomainError(ErrorCodeTransactionBackend, "transaction service failure")

	ErrInternalError = NewDomainError(ErrorCodeInternalError, "internal server error")
	ErrDatabaseError = NewDomainError(ErrorCodeDatabaseError, "database error")
)
