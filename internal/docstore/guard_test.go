package docstore

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"chronicle/editor/internal/doc"
)

type fakeStore struct {
	getFn    func(ctx context.Context, id string) (doc.Raw, error)
	putFn    func(ctx context.Context, id string, patch doc.Patch) (doc.Raw, error)
	deleteFn func(ctx context.Context, id string) ([]string, error)
	listFn   func(ctx context.Context, scopeID string) ([]doc.Raw, error)
}

func (f *fakeStore) Get(ctx context.Context, id string) (doc.Raw, error) {
	return f.getFn(ctx, id)
}

func (f *fakeStore) Put(ctx context.Context, id string, patch doc.Patch) (doc.Raw, error) {
	return f.putFn(ctx, id, patch)
}

func (f *fakeStore) Delete(ctx context.Context, id string) ([]string, error) {
	return f.deleteFn(ctx, id)
}

func (f *fakeStore) ListByScope(ctx context.Context, scopeID string) ([]doc.Raw, error) {
	return f.listFn(ctx, scopeID)
}

func TestGuardExpiresOnUnauthorized(t *testing.T) {
	puts := 0
	inner := &fakeStore{
		putFn: func(context.Context, string, doc.Patch) (doc.Raw, error) {
			puts++
			return nil, fmt.Errorf("put: %w", ErrUnauthorized)
		},
		getFn: func(_ context.Context, id string) (doc.Raw, error) {
			return doc.Raw{"id": id}, nil
		},
		deleteFn: func(context.Context, string) ([]string, error) {
			t.Fatal("delete must not reach the store while expired")
			return nil, nil
		},
	}
	guard := NewGuard(inner)
	ctx := context.Background()

	if _, err := guard.Put(ctx, "a", doc.Patch{}.WithTitle("x")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if !guard.Expired() {
		t.Fatal("expected guard to be expired")
	}
	if _, err := guard.Put(ctx, "a", doc.Patch{}.WithTitle("y")); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if _, err := guard.Delete(ctx, "a"); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
	if puts != 1 {
		t.Fatalf("expected 1 put to reach the store, got %d", puts)
	}
	if _, err := guard.Get(ctx, "a"); err != nil {
		t.Fatalf("reads must keep working, got %v", err)
	}

	guard.ClearExpired()
	_, _ = guard.Put(ctx, "a", doc.Patch{}.WithTitle("z"))
	if puts != 2 {
		t.Fatalf("expected writes after clearing, got %d puts", puts)
	}
}

func TestGuardIgnoresOtherErrors(t *testing.T) {
	guard := NewGuard(&fakeStore{
		listFn: func(context.Context, string) ([]doc.Raw, error) {
			return nil, &APIError{Status: 500}
		},
	})
	if _, err := guard.ListByScope(context.Background(), "s"); err == nil {
		t.Fatal("expected error")
	}
	if guard.Expired() {
		t.Fatal("a 500 must not expire the session")
	}
}
