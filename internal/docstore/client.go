package docstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"chronicle/editor/internal/doc"
)

// Client talks to the document service over HTTP with a bearer token.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// WithHTTPClient replaces the transport, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

func (c *Client) Get(ctx context.Context, id string) (doc.Raw, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/docs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("get doc %s: %w", id, err)
	}
	var raw doc.Raw
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("get doc %s: %w", id, err)
	}
	return raw, nil
}

func (c *Client) Put(ctx context.Context, id string, patch doc.Patch) (doc.Raw, error) {
	resp, err := c.doRequest(ctx, http.MethodPut, "/docs/"+url.PathEscape(id), patch)
	if err != nil {
		return nil, fmt.Errorf("put doc %s: %w", id, err)
	}
	var raw doc.Raw
	if err := decodeResponse(resp, &raw); err != nil {
		return nil, fmt.Errorf("put doc %s: %w", id, err)
	}
	return raw, nil
}

func (c *Client) Delete(ctx context.Context, id string) ([]string, error) {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/docs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("delete doc %s: %w", id, err)
	}
	var body struct {
		DeletedIDs []string `json:"deletedIds"`
	}
	if err := decodeResponse(resp, &body); err != nil {
		return nil, fmt.Errorf("delete doc %s: %w", id, err)
	}
	if len(body.DeletedIDs) == 0 {
		body.DeletedIDs = []string{id}
	}
	return body.DeletedIDs, nil
}

func (c *Client) ListByScope(ctx context.Context, scopeID string) ([]doc.Raw, error) {
	resp, err := c.doRequest(ctx, http.MethodGet, "/docs?jobId="+url.QueryEscape(scopeID), nil)
	if err != nil {
		return nil, fmt.Errorf("list scope %s: %w", scopeID, err)
	}
	var raws []doc.Raw
	if err := decodeResponse(resp, &raws); err != nil {
		return nil, fmt.Errorf("list scope %s: %w", scopeID, err)
	}
	return raws, nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	return resp, nil
}

func decodeResponse(resp *http.Response, target any) error {
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return ErrNotFound
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrUnauthorized
	case resp.StatusCode >= 400:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if target == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()
	if err := decoder.Decode(target); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
