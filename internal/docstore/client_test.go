package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"chronicle/editor/internal/doc"
)

func TestClientRoutesAndAuth(t *testing.T) {
	var gotAuth, gotBody, gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.Method + " " + r.URL.RequestURI()
		if r.Body != nil {
			payload, _ := io.ReadAll(r.Body)
			gotBody = string(payload)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/docs":
			_, _ = w.Write([]byte(`[{"id":"a","title":"A","folderId":null,"position":100}]`))
		case r.Method == http.MethodGet:
			_, _ = w.Write([]byte(`{"id":"a","title":"A","position":100,"version":3}`))
		case r.Method == http.MethodPut:
			_, _ = w.Write([]byte(`{"id":"a","title":"Renamed","version":4}`))
		case r.Method == http.MethodDelete:
			_, _ = w.Write([]byte(`{"deletedIds":["a","a1"]}`))
		}
	}))
	defer server.Close()

	client := NewClient(server.URL+"/", "tok-1")
	ctx := context.Background()

	raws, err := client.ListByScope(ctx, "folder-9")
	if err != nil {
		t.Fatalf("ListByScope() error = %v", err)
	}
	if len(raws) != 1 || gotPath != "GET /docs?jobId=folder-9" || gotAuth != "Bearer tok-1" {
		t.Fatalf("unexpected list call %q auth=%q raws=%v", gotPath, gotAuth, raws)
	}

	raw, err := client.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if raw["version"] != json.Number("3") {
		t.Fatalf("expected json.Number version, got %#v", raw["version"])
	}

	if _, err := client.Put(ctx, "a", doc.Patch{}.WithTitle("Renamed")); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if gotPath != "PUT /docs/a" || gotBody != `{"title":"Renamed"}` {
		t.Fatalf("unexpected put %q body=%s", gotPath, gotBody)
	}

	deleted, err := client.Delete(ctx, "a")
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if len(deleted) != 2 || deleted[1] != "a1" {
		t.Fatalf("unexpected deleted ids %v", deleted)
	}
}

func TestClientMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		check  func(error) bool
	}{
		{status: http.StatusNotFound, check: func(err error) bool { return errors.Is(err, ErrNotFound) }},
		{status: http.StatusUnauthorized, check: func(err error) bool { return errors.Is(err, ErrUnauthorized) }},
		{status: http.StatusBadGateway, check: func(err error) bool {
			var apiErr *APIError
			return errors.As(err, &apiErr) && apiErr.Status == http.StatusBadGateway && apiErr.Body == "upstream down"
		}},
	}
	for _, tc := range cases {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
			_, _ = w.Write([]byte("upstream down\n"))
		}))
		_, err := NewClient(server.URL, "").Get(context.Background(), "x")
		server.Close()
		if !tc.check(err) {
			t.Fatalf("status %d: unexpected error %v", tc.status, err)
		}
	}
}
