// Package api is the client for the recordings persistence collaborator: a
// thin JSON/HTTP CRUD surface with bearer-token auth. The client performs
// no retries; failures surface as error conditions for the caller.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/harmonialab/harmonia/internal/model"
)

// Client talks to the recordings API. Token is read per request, so a
// sign-in after construction takes effect immediately.
type Client struct {
	baseURL string
	http    *http.Client
	token   func() string
}

func NewClient(baseURL string, timeout time.Duration, token func() string) *Client {
	if token == nil {
		token = func() string { return "" }
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		token:   token,
	}
}

// CreateRecordingRequest is the POST /api/recordings body. Audio carries
// the payload reference: a base64 data URI for inline audio or a URL when
// the payload was uploaded to object storage first.
type CreateRecordingRequest struct {
	Name     string            `json:"name"`
	Notes    []model.NoteEvent `json:"notes"`
	Duration float64           `json:"duration"`
	Audio    model.AudioRef    `json:"audio"`
}

type renameRequest struct {
	Name string `json:"name"`
}

func (c *Client) Create(ctx context.Context, req CreateRecordingRequest) (*model.Recording, error) {
	var rec model.Recording
	if err := c.do(ctx, http.MethodPost, "/api/recordings", req, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) List(ctx context.Context) ([]model.Recording, error) {
	var recs []model.Recording
	if err := c.do(ctx, http.MethodGet, "/api/recordings", nil, &recs); err != nil {
		return nil, err
	}
	return recs, nil
}

func (c *Client) Rename(ctx context.Context, id, name string) (*model.Recording, error) {
	var rec model.Recording
	if err := c.do(ctx, http.MethodPatch, "/api/recordings/"+id, renameRequest{Name: name}, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/recordings/"+id, nil, nil)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrPersistenceFailure, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrUnauthenticated)
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%s %s: %w", method, path, model.ErrNotFoundOrForbidden)
	case resp.StatusCode >= 400:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: %w: status %d: %s", method, path, model.ErrPersistenceFailure, resp.StatusCode, bytes.TrimSpace(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decode response: %v", model.ErrPersistenceFailure, err)
		}
	}
	return nil
}
