// Package docstore is the boundary to the external document API. Every
// backend returns raw payloads; callers normalize them.
package docstore

import (
	"context"
	"errors"
	"fmt"

	"chronicle/editor/internal/doc"
)

var (
	// ErrNotFound is a benign 404 on get or delete.
	ErrNotFound = errors.New("document not found")
	// ErrUnauthorized is a 401 from the store; the session has expired.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrSessionExpired is returned for writes attempted after a 401.
	ErrSessionExpired = errors.New("session expired")
)

// APIError is any other non-2xx response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error: status=%d, body=%s", e.Status, e.Body)
}

// Store is the document storage API consumed by the editing session.
type Store interface {
	Get(ctx context.Context, id string) (doc.Raw, error)
	Put(ctx context.Context, id string, patch doc.Patch) (doc.Raw, error)
	// Delete removes id and its direct children, returning the removed ids.
	Delete(ctx context.Context, id string) ([]string, error)
	ListByScope(ctx context.Context, scopeID string) ([]doc.Raw, error)
}
