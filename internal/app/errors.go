package app

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

// The four failure categories surfaced across the collaboration boundary.
// Everything else is a server error.

func authError(message string) *DomainError {
	return domainError(http.StatusUnauthorized, "AUTH", message, nil)
}

func forbiddenError(message string) *DomainError {
	return domainError(http.StatusForbidden, "AUTH", message, nil)
}

func notFoundError(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func persistenceError(message string) *DomainError {
	return domainError(http.StatusBadGateway, "PERSISTENCE", message, nil)
}

func validationError(message string, details any) *DomainError {
	return domainError(http.StatusBadRequest, "VALIDATION", message, details)
}
