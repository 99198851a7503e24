// Package gateway implements internal/sync.Gateway against the HTTP+JSON
// Remote Gateway contract, grounded on the teacher's recall.Syncer: same
// client-with-timeout shape, same exponential backoff on transient
// failures, same "retry with context, give up after N attempts" loop.
package gateway

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fitsync/fitsync/internal/sync"
	"github.com/fitsync/fitsync/internal/sync/gatewayerr"
)

const (
	defaultTimeout = 30 * time.Second
	maxAttempts    = 5
)

// Client is the HTTP Remote Gateway client.
type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

// New constructs a Client against baseURL, authenticating with apiKey as a
// bearer token.
func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type upsertBody struct {
	Rows       []map[string]any `json:"rows"`
	OnConflict string           `json:"onConflict,omitempty"`
}

// Upsert implements sync.Gateway.
func (c *Client) Upsert(ctx context.Context, table string, rows []map[string]any, onConflict string) error {
	body, err := json.Marshal(upsertBody{Rows: rows, OnConflict: onConflict})
	if err != nil {
		return fmt.Errorf("gateway: marshal upsert body: %w", err)
	}
	_, err = c.doWithRetry(ctx, http.MethodPost, c.rowsPath(table), body)
	return err
}

// Delete implements sync.Gateway.
func (c *Client) Delete(ctx context.Context, table, id string) error {
	_, err := c.doWithRetry(ctx, http.MethodDelete, c.rowPath(table, id), nil)
	return err
}

type updatedAtResponse struct {
	UpdatedAt string `json:"updated_at"`
}

// GetUpdatedAt implements sync.Gateway. A distinguished not_found Problem
// Details response is translated to (_, false, nil); every other failure
// is returned as an error.
func (c *Client) GetUpdatedAt(ctx context.Context, table, id string) (string, bool, error) {
	path := c.rowPath(table, id) + "?select=updated_at"
	respBody, err := c.doWithRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		if gatewayerr.Is(err, gatewayerr.KindNotFound) {
			return "", false, nil
		}
		return "", false, err
	}
	var decoded updatedAtResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return "", false, gatewayerr.Other(fmt.Errorf("gateway: decode updated_at: %w", err))
	}
	return decoded.UpdatedAt, true, nil
}

// ListAll implements sync.Gateway.
func (c *Client) ListAll(ctx context.Context, table, userID string, userScoped bool) ([]map[string]any, error) {
	path := c.rowsPath(table) + "?order=created_at.desc"
	if userScoped {
		path += "&user_id=" + url.QueryEscape(userID)
	}
	respBody, err := c.doWithRetry(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var rows []map[string]any
	if err := json.Unmarshal(respBody, &rows); err != nil {
		return nil, gatewayerr.Other(fmt.Errorf("gateway: decode row list: %w", err))
	}
	return rows, nil
}

// changeEvent is the wire shape of one change-feed line (spec §6):
// `{event_type, new, old}`.
type changeEvent struct {
	EventType string         `json:"event_type"`
	New       map[string]any `json:"new,omitempty"`
	Old       map[string]any `json:"old,omitempty"`
}

// Changes implements sync.Gateway. It performs a single long-poll HTTP
// round trip against the table's change-feed endpoint and streams the
// chunked NDJSON response, one decoded Delta per line, onto the returned
// channel. The channel closes when the round trip ends, whether because
// the server closed the connection, ctx was cancelled, or the body ended
// with an error; reconnecting for the next round trip is the caller's
// responsibility (internal/sync's subscription loop does this).
func (c *Client) Changes(ctx context.Context, table, userID string, userScoped bool) (<-chan sync.Delta, error) {
	path := fmt.Sprintf("%s/v1/tables/%s/changes", c.baseURL, url.PathEscape(table))
	if userScoped {
		path += "?user_id=" + url.QueryEscape(userID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, gatewayerr.Other(fmt.Errorf("gateway: build changes request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, gatewayerr.Transport(fmt.Errorf("gateway: changes request failed: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, classifyProblem(body, resp.StatusCode)
	}

	out := make(chan sync.Delta)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var ev changeEvent
			if err := json.Unmarshal(line, &ev); err != nil {
				continue
			}
			delta, ok := decodeChangeEvent(table, ev)
			if !ok {
				continue
			}
			select {
			case out <- delta:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// decodeChangeEvent translates one wire changeEvent into a sync.Delta,
// reporting ok=false for an event this client does not recognize.
func decodeChangeEvent(table string, ev changeEvent) (sync.Delta, bool) {
	switch ev.EventType {
	case "delete":
		id, _ := ev.Old["id"].(string)
		if id == "" {
			return sync.Delta{}, false
		}
		return sync.Delta{Table: table, Kind: sync.DeltaDelete, OldID: id}, true
	case "insert", "update":
		if ev.New == nil {
			return sync.Delta{}, false
		}
		return sync.Delta{Table: table, Kind: sync.DeltaInsertOrUpdate, New: ev.New}, true
	default:
		return sync.Delta{}, false
	}
}

func (c *Client) rowsPath(table string) string {
	return fmt.Sprintf("%s/v1/tables/%s/rows", c.baseURL, url.PathEscape(table))
}

func (c *Client) rowPath(table, id string) string {
	return fmt.Sprintf("%s/v1/tables/%s/rows/%s", c.baseURL, url.PathEscape(table), url.PathEscape(id))
}

// doWithRetry sends one request, retrying transient failures with the
// teacher's exponential backoff. Authorization, not-found, and malformed
// identifier responses are classified and returned immediately — they are
// not transient and retrying them would not help.
func (c *Client) doWithRetry(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, gatewayerr.Transport(ctx.Err())
			case <-time.After(backoffDelay(attempt)):
			}
		}

		respBody, status, err := c.doOnce(ctx, method, path, body)
		if err != nil {
			lastErr = err
			continue
		}

		switch {
		case status >= 200 && status < 300:
			return respBody, nil
		case status == http.StatusNotFound:
			return nil, classifyProblem(respBody, status)
		case status == http.StatusForbidden || status == http.StatusUnauthorized:
			return nil, classifyProblem(respBody, status)
		case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
			return nil, classifyProblem(respBody, status)
		default:
			lastErr = gatewayerr.Transport(fmt.Errorf("gateway: unexpected status %d", status))
		}
	}
	return nil, lastErr
}

func (c *Client) doOnce(ctx context.Context, method, path string, body []byte) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, path, reader)
	if err != nil {
		return nil, 0, gatewayerr.Other(fmt.Errorf("gateway: build request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, gatewayerr.Transport(fmt.Errorf("gateway: request failed: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, gatewayerr.Transport(fmt.Errorf("gateway: read response: %w", err))
	}
	return respBody, resp.StatusCode, nil
}

// classifyProblem maps an RFC 7807 body into the gatewayerr taxonomy.
// Unknown problem types (or undecodable bodies) fall back to KindOther
// rather than being misclassified as retryable transport failures.
func classifyProblem(body []byte, status int) error {
	problem, ok := parseProblem(body)
	if !ok {
		return gatewayerr.Other(fmt.Errorf("gateway: HTTP %d with undecodable body", status))
	}
	switch problem.Type {
	case problemNotFound:
		return gatewayerr.NotFound(fmt.Errorf("gateway: %s", problem.Detail))
	case problemPermissionDenied:
		return gatewayerr.Auth(fmt.Errorf("gateway: %s", problem.Detail))
	case problemMalformedID:
		return gatewayerr.Malformed(fmt.Errorf("gateway: %s", problem.Detail))
	default:
		return gatewayerr.Other(fmt.Errorf("gateway: %s: %s", problem.Title, problem.Detail))
	}
}
