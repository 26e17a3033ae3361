// FOSDEM Companion - Local-First Schedule Sync Core
// Copyright 2026 Nicholas Griffin
// SPDX-License-Identifier: MIT
// https://github.com/nicholasgriffintn/fosdem-pwa-sub001

// Package remote implements the HTTP client for the companion API: the
// create/update/delete RPCs for bookmarks and notes, the authoritative
// bookmark listing used by reconciliation, and the conference dataset fetch.
//
// The server's response shapes are heterogeneous (some endpoints return a
// success envelope, some return bare objects, auth failures may return an
// empty body). Every mutation response is normalized into models.RPCResult at
// this boundary so no core logic ever inspects transport details.
package remote

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/nicholasgriffintn/fosdem-pwa-sub001/internal/models"
)

// maxErrorBodySize bounds how much of an error response body is read for
// diagnostics.
const maxErrorBodySize = 4096

// Client talks to the companion API over HTTP.
type Client struct {
	baseURL    string
	authToken  string
	httpClient *http.Client
}

// NewClient creates a companion API client. The auth token is issued by the
// session layer, which is outside this core; an empty token produces
// unauthorized results once the server rejects the calls.
func NewClient(baseURL, authToken string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:   baseURL,
		authToken: authToken,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// envelope is the success envelope some endpoints wrap their responses in.
type envelope struct {
	Success *bool   `json:"success,omitempty"`
	ID      string  `json:"id,omitempty"`
	Error   *string `json:"error,omitempty"`
}

// doJSON performs a request with a JSON body and normalizes the outcome.
// The returned envelope is only meaningful when the result is OK.
func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}) (envelope, models.RPCResult) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return envelope{}, models.RPCResult{OK: false, Kind: models.FailureUnknown, Message: fmt.Sprintf("marshal request: %v", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return envelope{}, models.RPCResult{OK: false, Kind: models.FailureUnknown, Message: fmt.Sprintf("create request: %v", err)}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors carry no status code; they classify as unknown,
		// which the engine treats as transient and retries.
		return envelope{}, models.RPCResult{OK: false, Kind: models.FailureUnknown, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := readErrorBody(resp.Body)
		return envelope{}, models.RPCFailure(resp.StatusCode, msg)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && err != io.EOF {
		return envelope{}, models.RPCFailure(resp.StatusCode, fmt.Sprintf("decode response: %v", err))
	}

	// Some endpoints report application-level failure inside a 200.
	if env.Success != nil && !*env.Success {
		msg := "request rejected"
		if env.Error != nil {
			msg = *env.Error
		}
		return env, models.RPCFailure(resp.StatusCode, msg)
	}

	return env, models.RPCSuccess(resp.StatusCode)
}

func readErrorBody(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBodySize))
	if err != nil || len(data) == 0 {
		return "no response body"
	}
	var env envelope
	if json.Unmarshal(data, &env) == nil && env.Error != nil {
		return *env.Error
	}
	return string(data)
}

// CreateBookmark creates (or idempotently upserts) a bookmark. The server
// derives the same deterministic id from (user, year, slug), so a retried
// create cannot produce a duplicate record.
func (c *Client) CreateBookmark(ctx context.Context, b *models.Bookmark) models.RPCResult {
	payload := map[string]interface{}{
		"year":   b.Year,
		"slug":   b.Slug,
		"type":   b.Type,
		"status": b.Status,
	}
	_, res := c.doJSON(ctx, http.MethodPost, "/api/v1/bookmarks", payload)
	return res
}

// UpdateBookmark applies the allow-listed mutable fields to a confirmed
// bookmark identified by its server id.
func (c *Client) UpdateBookmark(ctx context.Context, serverID string, upd models.BookmarkUpdate) models.RPCResult {
	_, res := c.doJSON(ctx, http.MethodPatch, "/api/v1/bookmarks/"+serverID, upd)
	return res
}

// DeleteBookmark removes a confirmed bookmark by its server id.
func (c *Client) DeleteBookmark(ctx context.Context, serverID string) models.RPCResult {
	_, res := c.doJSON(ctx, http.MethodDelete, "/api/v1/bookmarks/"+serverID, nil)
	return res
}

// CreateNote creates a note and returns the server-assigned id.
func (c *Client) CreateNote(ctx context.Context, n *models.Note) (string, models.RPCResult) {
	payload := map[string]interface{}{
		"year":    n.Year,
		"slug":    n.Slug,
		"content": n.Content,
		"time":    n.Time,
	}
	env, res := c.doJSON(ctx, http.MethodPost, "/api/v1/notes", payload)
	return env.ID, res
}

// UpdateNote updates the content of a confirmed note by its server id.
func (c *Client) UpdateNote(ctx context.Context, serverID string, n *models.Note) models.RPCResult {
	payload := map[string]interface{}{
		"content": n.Content,
		"time":    n.Time,
	}
	_, res := c.doJSON(ctx, http.MethodPatch, "/api/v1/notes/"+serverID, payload)
	return res
}

// DeleteNote removes a confirmed note by its server id.
func (c *Client) DeleteNote(ctx context.Context, serverID string) models.RPCResult {
	_, res := c.doJSON(ctx, http.MethodDelete, "/api/v1/notes/"+serverID, nil)
	return res
}

// FetchBookmarks returns the server's authoritative bookmark set for a year.
// Used by the reconciliation engine after authentication state changes.
func (c *Client) FetchBookmarks(ctx context.Context, year int) ([]models.RemoteBookmark, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/bookmarks?year=%d", c.baseURL, year), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bookmarks: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bookmarks failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var body struct {
		Bookmarks []models.RemoteBookmark `json:"bookmarks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode bookmarks: %w", err)
	}
	return body.Bookmarks, nil
}

// FetchConferenceDataset retrieves the full conference dataset for a year.
// The response must carry the top-level conference marker block; anything
// else is rejected rather than cached.
func (c *Client) FetchConferenceDataset(ctx context.Context, year int) (*models.ConferenceDataset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		fmt.Sprintf("%s/api/v1/data/%d", c.baseURL, year), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch conference dataset: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch conference dataset failed with status %d: %s", resp.StatusCode, readErrorBody(resp.Body))
	}

	var dataset models.ConferenceDataset
	if err := json.NewDecoder(resp.Body).Decode(&dataset); err != nil {
		return nil, fmt.Errorf("decode conference dataset: %w", err)
	}
	if dataset.Conference.Acronym == "" && dataset.Conference.Title == "" {
		return nil, fmt.Errorf("response is not a conference dataset: missing conference marker")
	}
	return &dataset, nil
}
