package utils

import (
	"fmt"
	"net/http"
)

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
	Status  int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// HTTPStatus falls back to 500 when no status was attached.
func (e *APIError) HTTPStatus() int {
	if e.Status == 0 {
		return http.StatusInternalServerError
	}
	return e.Status
}

func NewSSHError(err error) *APIError {
	return &APIError{
		Code:    1001,
		Message: "SSH failed",
		Details: err.Error(),
		Status:  http.StatusBadRequest,
	}
}

func NewInstallError(step string, err error) *APIError {
	return &APIError{
		Code:    2001,
		Message: fmt.Sprintf("install step %s failed", step),
		Details: err.Error(),
		Status:  http.StatusBadRequest,
	}
}

func NewValidationError(field string, value interface{}) *APIError {
	return &APIError{
		Code:    3001,
		Message: fmt.Sprintf("invalid parameter: %s", field),
		Details: fmt.Sprintf("invalid value: %v", value),
		Status:  http.StatusBadRequest,
	}
}

func NewWireGuardError(operation string, err error) *APIError {
	return &APIError{
		Code:    4001,
		Message: fmt.Sprintf("wireguard %s failed", operation),
		Details: err.Error(),
		Status:  http.StatusInternalServerError,
	}
}

func NewSystemError(err error) *APIError {
	return &APIError{
		Code:    5001,
		Message: "system error",
		Details: err.Error(),
		Status:  http.StatusInternalServerError,
	}
}

func NewAuthError(message string) *APIError {
	return &APIError{
		Code:    6001,
		Message: message,
		Status:  http.StatusUnauthorized,
	}
}

func NewProvisionError(err error) *APIError {
	return &APIError{
		Code:    4002,
		Message: "Provisioning error",
		Details: err.Error(),
		Status:  http.StatusInternalServerError,
	}
}

func NewBadRequestError(message string) *APIError {
	return &APIError{
		Code:    3002,
		Message: message,
		Status:  http.StatusBadRequest,
	}
}
