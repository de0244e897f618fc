// Package apperror provides structured error handling for the costing engine.
// All business errors must use AppError for consistent API responses.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"time"
)

// Error codes grouped by concern.
const (
	// Infrastructure errors (5xx)
	CodeInternal = "INTERNAL_ERROR"
	CodeDatabase = "DATABASE_ERROR"

	// Validation errors (400)
	CodeValidation = "VALIDATION_ERROR"

	// Business rule violations (422)
	CodeBusinessRule            = "BUSINESS_RULE_VIOLATION"
	CodeInsufficientLotStock    = "INSUFFICIENT_LOT_STOCK"
	CodeClosedPeriodViolation   = "CLOSED_PERIOD_VIOLATION"
	CodeReconciliationTolerance = "RECONCILIATION_TOLERANCE_EXCEEDED"
	CodeUnbalancedJournal       = "UNBALANCED_JOURNAL_ENTRY"

	// Concurrency (409)
	CodeConcurrentClose = "CONCURRENT_CLOSE"
	CodeConflict        = "CONFLICT"

	// Not found (404)
	CodeNotFound = "NOT_FOUND"
)

// AppError is the standard error type for the engine.
// It implements the error interface and provides structured details for API responses.
type AppError struct {
	// Code is a machine-readable error identifier
	Code string `json:"code"`

	// Message is a human-readable error description
	Message string `json:"message"`

	// Details contains additional context (field errors, quantities, etc.)
	Details map[string]any `json:"details,omitempty"`

	// HTTPStatus is the suggested HTTP status code
	HTTPStatus int `json:"-"`

	// Err is the underlying error (not exposed in JSON)
	Err error `json:"-"`
}

// Error implements error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *AppError) Unwrap() error {
	return e.Err
}

// WithDetail adds a key-value pair to error details
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// WithCause sets the underlying error
func (e *AppError) WithCause(err error) *AppError {
	e.Err = err
	return e
}

// --- Factory functions for common errors ---

// NewValidation creates a validation error (400)
func NewValidation(message string) *AppError {
	return &AppError{
		Code:       CodeValidation,
		Message:    message,
		HTTPStatus: http.StatusBadRequest,
	}
}

// NewNotFound creates a not found error (404)
func NewNotFound(entity string, id any) *AppError {
	return &AppError{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found", entity),
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"entity": entity, "id": id},
	}
}

// NewBusinessRule creates a business rule violation error (422)
func NewBusinessRule(code, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: http.StatusUnprocessableEntity,
	}
}

// NewInsufficientLotStock is returned when an outbound movement exceeds
// the remaining quantity across all lots and no fallback policy applies.
func NewInsufficientLotStock(itemID string, requested, available float64) *AppError {
	return &AppError{
		Code:       CodeInsufficientLotStock,
		Message:    "Insufficient lot stock",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"item_id":   itemID,
			"requested": requested,
			"available": available,
		},
	}
}

// NewClosedPeriodViolation is returned when a movement's effective time falls
// inside a closed period and no override was supplied.
func NewClosedPeriodViolation(periodID string, effectiveAt time.Time) *AppError {
	return &AppError{
		Code:       CodeClosedPeriodViolation,
		Message:    "Movement falls within a closed accounting period",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"period_id":    periodID,
			"effective_at": effectiveAt,
		},
	}
}

// NewConcurrentClose is returned when another close/reopen is already in
// flight for the branch. Callers should retry after backoff.
func NewConcurrentClose(branchID string) *AppError {
	return &AppError{
		Code:       CodeConcurrentClose,
		Message:    "Another close or reopen is in progress for this branch",
		HTTPStatus: http.StatusConflict,
		Details:    map[string]any{"branch_id": branchID},
	}
}

// NewReconciliationTolerance is returned when a close is gated on clean
// reconciliation and flagged variances remain.
func NewReconciliationTolerance(periodID string, flagged int) *AppError {
	return &AppError{
		Code:       CodeReconciliationTolerance,
		Message:    "Reconciliation variances exceed tolerance",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details: map[string]any{
			"period_id":     periodID,
			"flagged_items": flagged,
		},
	}
}

// NewUnbalancedJournal is returned when generated journal lines do not balance.
func NewUnbalancedJournal(debits, credits string) *AppError {
	return &AppError{
		Code:       CodeUnbalancedJournal,
		Message:    "Journal entry debits do not equal credits",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"debits": debits, "credits": credits},
	}
}

// NewInternal creates an internal server error (hides details from client)
func NewInternal(err error) *AppError {
	return &AppError{
		Code:       CodeInternal,
		Message:    "Internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewConflict creates a conflict error (409)
func NewConflict(message string) *AppError {
	return &AppError{
		Code:       CodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

// --- Helper functions ---

// IsAppError checks if error is AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr)
}

// AsAppError extracts AppError from error chain
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// GetHTTPStatus returns appropriate HTTP status for any error
func GetHTTPStatus(err error) int {
	if appErr, ok := AsAppError(err); ok {
		return appErr.HTTPStatus
	}
	return http.StatusInternalServerError
}

// IsCode reports whether the error chain contains an AppError with the code.
func IsCode(err error, code string) bool {
	if appErr, ok := AsAppError(err); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if error is CodeNotFound
func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}
