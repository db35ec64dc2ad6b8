package errors

import (
	"fmt"
	"net/http"
)

// NewValidationError creates a validation error whose message is safe to return to the caller
func NewValidationError(field, message string) *AppError {
	return New(ErrCodeValidationFailed, message).
		WithContext("field", field).
		WithUserMessage(message)
}

// NewConfigError creates a configuration error
func NewConfigError(key, message string) *AppError {
	return New(ErrCodeInvalidConfig, message).
		WithContext("config_key", key).
		WithUserMessage("Configuration error")
}

// NewStorageError creates a persistence error with operation context
func NewStorageError(operation string, err error) *AppError {
	code := ErrCodeStorageWrite
	if operation == "load" || operation == "read" {
		code = ErrCodeStorageRead
	}
	return Wrap(err, code, fmt.Sprintf("storage %s failed", operation)).
		WithContext("operation", operation).
		WithUserMessage("Storage operation failed")
}

// NewAPIError creates an error for an external service call.
// 5xx, 429 and 408 responses and transport failures (status 0) are retryable.
func NewAPIError(service, endpoint string, statusCode int, err error) *AppError {
	var code ErrorCode
	switch service {
	case "discord":
		code = ErrCodeDiscordAPI
	case "openai", "gemini", "ai":
		code = ErrCodeAIProvider
	default:
		code = ErrCodeInternalError
	}

	appErr := Wrap(err, code, fmt.Sprintf("%s API call failed", service)).
		WithContext("service", service).
		WithContext("endpoint", endpoint).
		WithContext("status_code", statusCode)

	if statusCode == 0 || statusCode >= 500 || statusCode == http.StatusTooManyRequests || statusCode == http.StatusRequestTimeout {
		appErr.Retryable = true
	}
	return appErr
}

// NewTimeoutError creates a timeout error with context
func NewTimeoutError(operation string, duration string) *AppError {
	return New(ErrCodeTimeout, fmt.Sprintf("%s timed out after %s", operation, duration)).
		WithContext("operation", operation).
		WithContext("timeout", duration).
		WithUserMessage("Operation timed out, please try again")
}

// NewAuthError creates an authentication error
func NewAuthError(reason string) *AppError {
	return New(ErrCodeAuthentication, "authentication failed").
		WithContext("reason", reason).
		WithUserMessage("Authentication failed")
}

// NewNotFoundError creates a not found error with resource context
func NewNotFoundError(resource, identifier string) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf("%s not found", resource)).
		WithContext("resource", resource).
		WithContext("identifier", identifier).
		WithUserMessage(fmt.Sprintf("%s not found", resource))
}

// HTTPStatusCode maps error codes to HTTP status codes
func HTTPStatusCode(err error) int {
	switch GetCode(err) {
	case ErrCodeValidationFailed, ErrCodeInvalidInput:
		return http.StatusBadRequest
	case ErrCodeAuthentication:
		return http.StatusUnauthorized
	case ErrCodeAuthorization:
		return http.StatusForbidden
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeTimeout:
		return http.StatusGatewayTimeout
	case ErrCodeDiscordAPI, ErrCodeAIProvider:
		if IsRetryable(err) {
			return http.StatusBadGateway
		}
		return http.StatusInternalServerError
	case ErrCodeStorageRead, ErrCodeStorageWrite, ErrCodeNotReady:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ResponseMessage returns the message to put in an HTTP error body.
// Validation errors carry their own text; everything else uses the user message or the raw error.
func ResponseMessage(err error) string {
	if appErr, ok := As(err); ok {
		if appErr.UserMessage != "" {
			return appErr.UserMessage
		}
		return appErr.Message
	}
	return err.Error()
}
