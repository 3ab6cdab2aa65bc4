package docstore

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"chronicle/editor/internal/doc"
)

// Guard wraps a Store and turns the first 401 into a session-expired state.
// While expired, writes fail fast with ErrSessionExpired and reads still go
// through.
type Guard struct {
	next    Store
	expired atomic.Bool
}

func NewGuard(next Store) *Guard {
	return &Guard{next: next}
}

// Expired reports whether a 401 has been observed since the last clear.
func (g *Guard) Expired() bool {
	return g.expired.Load()
}

// ClearExpired re-enables writes after re-authentication.
func (g *Guard) ClearExpired() {
	g.expired.Store(false)
}

func (g *Guard) Get(ctx context.Context, id string) (doc.Raw, error) {
	raw, err := g.next.Get(ctx, id)
	return raw, g.observe(err)
}

func (g *Guard) ListByScope(ctx context.Context, scopeID string) ([]doc.Raw, error) {
	raws, err := g.next.ListByScope(ctx, scopeID)
	return raws, g.observe(err)
}

func (g *Guard) Put(ctx context.Context, id string, patch doc.Patch) (doc.Raw, error) {
	if g.Expired() {
		return nil, ErrSessionExpired
	}
	raw, err := g.next.Put(ctx, id, patch)
	return raw, g.observe(err)
}

func (g *Guard) Delete(ctx context.Context, id string) ([]string, error) {
	if g.Expired() {
		return nil, ErrSessionExpired
	}
	ids, err := g.next.Delete(ctx, id)
	return ids, g.observe(err)
}

func (g *Guard) observe(err error) error {
	if err != nil && errors.Is(err, ErrUnauthorized) {
		if g.expired.CompareAndSwap(false, true) {
			log.Printf("docstore: session expired, writes disabled")
		}
	}
	return err
}
