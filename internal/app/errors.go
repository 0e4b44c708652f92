package app

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"tackboard/api/internal/auth"
	"tackboard/api/internal/ordering"
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

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, sql.ErrNoRows) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, ErrSessionNotFound) {
		return http.StatusNotFound, "SESSION_NOT_FOUND", "Board session not found or expired", nil
	}
	if errors.Is(err, ordering.ErrStaleMove) {
		return http.StatusConflict, "STALE_MOVE", "Board changed since the move was made", nil
	}
	if errors.Is(err, ordering.ErrUnknownContainer) || errors.Is(err, ordering.ErrIndexOutOfRange) {
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
