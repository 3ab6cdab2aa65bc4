package shell

import (
	"errors"
	"fmt"
	"net/http"

	"chronicle/editor/internal/auth"
	"chronicle/editor/internal/docstore"
	"chronicle/editor/internal/history"
	"chronicle/editor/internal/move"
	"chronicle/editor/internal/reconcile"
	"chronicle/editor/internal/workspace"
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
	var rejection *move.Rejection
	if errors.As(err, &rejection) {
		return http.StatusConflict, "MOVE_REJECTED", "Move not allowed", map[string]any{
			"reason":   rejection.Reason,
			"dragId":   rejection.DragID,
			"parentId": rejection.ParentID,
		}
	}
	switch {
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	case errors.Is(err, docstore.ErrSessionExpired), errors.Is(err, docstore.ErrUnauthorized):
		return http.StatusUnauthorized, "SESSION_EXPIRED", "Session expired, changes are not being saved", nil
	case errors.Is(err, workspace.ErrReadOnly):
		return http.StatusForbidden, "READ_ONLY", "This scope is read-only", nil
	case errors.Is(err, move.ErrNoDrop):
		return http.StatusConflict, "NO_DROP", "No drop target proposed", nil
	case errors.Is(err, workspace.ErrRootLocked):
		return http.StatusConflict, "ROOT_LOCKED", "The root page cannot be deleted", nil
	case errors.Is(err, reconcile.ErrBlankTitle):
		return http.StatusBadRequest, "BLANK_TITLE", "Title is required", nil
	case errors.Is(err, reconcile.ErrParentTooDeep):
		return http.StatusUnprocessableEntity, "PARENT_TOO_DEEP", "This page cannot have sub-pages", nil
	case errors.Is(err, history.ErrInvalidID):
		return http.StatusBadRequest, "INVALID_ID", "Invalid page id", nil
	case errors.Is(err, reconcile.ErrUnknownParent),
		errors.Is(err, workspace.ErrUnknownPage),
		errors.Is(err, history.ErrNotFound),
		errors.Is(err, docstore.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	var apiErr *docstore.APIError
	if errors.As(err, &apiErr) {
		return http.StatusBadGateway, "STORE_ERROR", "Document store error", map[string]any{"status": apiErr.Status}
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
