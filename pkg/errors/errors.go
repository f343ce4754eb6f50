package errors

import (
	stderrors "errors"
	"fmt"
)

// Error codes
const (
	CodeAppError          = "APP_ERROR"
	CodeAPIError          = "API_ERROR"
	CodeRateLimit         = "RATE_LIMIT_ERROR"
	CodeValidation        = "VALIDATION_ERROR"
	CodeNotFound          = "NOT_FOUND"
	CodeInsufficientPanel = "INSUFFICIENT_PANEL"
	CodeCache             = "CACHE_ERROR"
	CodeService           = "SERVICE_ERROR"
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// APIError wraps a failure returned by an external text-generation provider.
type APIError struct {
	*AppError
	Provider string
}

func NewAPIError(message, provider string, statusCode int, cause error) *APIError {
	code := CodeAPIError
	if statusCode == 429 {
		code = CodeRateLimit
	}
	return &APIError{
		AppError: &AppError{
			Message:    message,
			Code:       code,
			StatusCode: statusCode,
			Context: map[string]any{
				"provider": provider,
			},
			Cause: cause,
		},
		Provider: provider,
	}
}

// Retryable reports whether the provider signalled a rate limit.
func (e *APIError) Retryable() bool {
	return e.Code == CodeRateLimit || e.StatusCode == 429
}

type ValidationError struct {
	*AppError
	Field string
	Value interface{}
}

func NewValidationError(message, field string, value interface{}) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 422,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type NotFoundError struct {
	*AppError
	Resource string
	ID       string
}

func NewNotFoundError(resource, id string) *NotFoundError {
	return &NotFoundError{
		AppError: &AppError{
			Message:    fmt.Sprintf("%s not found: %s", resource, id),
			Code:       CodeNotFound,
			StatusCode: 404,
			Context: map[string]any{
				"resource": resource,
				"id":       id,
			},
		},
		Resource: resource,
		ID:       id,
	}
}

// InsufficientPanelError is fatal for a whole test run.
type InsufficientPanelError struct {
	*AppError
	Successful int
	Required   int
}

func NewInsufficientPanelError(successful, required int) *InsufficientPanelError {
	return &InsufficientPanelError{
		AppError: &AppError{
			Message:    fmt.Sprintf("insufficient responses: got %d, need at least %d", successful, required),
			Code:       CodeInsufficientPanel,
			StatusCode: 500,
			Context: map[string]any{
				"successful": successful,
				"required":   required,
			},
		},
		Successful: successful,
		Required:   required,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

type ServiceError struct {
	*AppError
	Service   string
	Operation string
}

func NewServiceError(message, service, operation string, cause error) *ServiceError {
	return &ServiceError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeService,
			StatusCode: 500,
			Context: map[string]any{
				"service":   service,
				"operation": operation,
			},
			Cause: cause,
		},
		Service:   service,
		Operation: operation,
	}
}

// IsRetryable reports whether err (or anything it wraps) is a rate-limit style
// provider failure. Validation failures are never retryable on their own.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if stderrors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return false
}

func IsValidation(err error) bool {
	var vErr *ValidationError
	return stderrors.As(err, &vErr)
}

func IsNotFound(err error) bool {
	var nfErr *NotFoundError
	return stderrors.As(err, &nfErr)
}

func IsInsufficientPanel(err error) bool {
	var ipErr *InsufficientPanelError
	return stderrors.As(err, &ipErr)
}
