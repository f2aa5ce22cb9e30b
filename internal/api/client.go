// Package api implements the sync engine's executor over the warehouse
// CRUD HTTP API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/stockroom-app/stockroom/internal/engine"
	"github.com/stockroom-app/stockroom/internal/entity"
)

// Client talks to the backend. It implements engine.Executor and maps
// HTTP status classes onto the executor's failure taxonomy: 4xx is a
// validation rejection (terminal), 5xx and transport-level errors are
// retryable.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the given base URL, e.g.
// "https://stockroom.example.com". The trailing slash is optional.
func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// serverResponse is the backend's envelope for a single entity.
type serverResponse struct {
	ID   string         `json:"id"`
	Data entity.Payload `json:"data"`
}

// errorResponse is the backend's envelope for a rejection.
type errorResponse struct {
	Message string `json:"message"`
}

// Execute implements engine.Executor.
func (c *Client) Execute(ctx context.Context, op entity.Op, kind entity.Kind, id entity.ID, payload entity.Payload) (entity.ServerEntity, error) {
	method, url, err := c.route(op, kind, id)
	if err != nil {
		return entity.ServerEntity{}, err
	}

	var body io.Reader
	if op != entity.OpDelete {
		buf, err := json.Marshal(payload)
		if err != nil {
			return entity.ServerEntity{}, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return entity.ServerEntity{}, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return entity.ServerEntity{}, &engine.ExecutorError{
			Retryable: true,
			Reason:    "backend unreachable",
			Err:       err,
		}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return entity.ServerEntity{}, &engine.ExecutorError{
			Retryable: true,
			Reason:    "reading response failed",
			Err:       err,
		}
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return decodeEntity(kind, raw, op)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return entity.ServerEntity{}, &engine.ExecutorError{
			Retryable: false,
			Reason:    rejectionReason(raw, resp.StatusCode),
		}
	default:
		slog.Warn("backend server error",
			"status", resp.StatusCode,
			"method", method,
			"url", url,
		)
		return entity.ServerEntity{}, &engine.ExecutorError{
			Retryable: true,
			Reason:    fmt.Sprintf("server error (status %d)", resp.StatusCode),
		}
	}
}

// route maps an operation onto the backend's method and path.
func (c *Client) route(op entity.Op, kind entity.Kind, id entity.ID) (method, url string, err error) {
	base := fmt.Sprintf("%s/api/v1/%s", c.baseURL, kind)
	switch op {
	case entity.OpCreate:
		return http.MethodPost, base, nil
	case entity.OpUpdate:
		return http.MethodPut, base + "/" + string(id), nil
	case entity.OpDelete:
		return http.MethodDelete, base + "/" + string(id), nil
	}
	return "", "", fmt.Errorf("unknown op %q", op)
}

// decodeEntity parses a success response. Deletes return no body.
func decodeEntity(kind entity.Kind, raw []byte, op entity.Op) (entity.ServerEntity, error) {
	if op == entity.OpDelete {
		return entity.ServerEntity{Kind: kind}, nil
	}

	var sr serverResponse
	if err := json.Unmarshal(raw, &sr); err != nil {
		return entity.ServerEntity{}, &engine.ExecutorError{
			Retryable: true,
			Reason:    "malformed response body",
			Err:       err,
		}
	}
	if sr.ID == "" {
		return entity.ServerEntity{}, &engine.ExecutorError{
			Retryable: false,
			Reason:    "response missing entity id",
		}
	}
	return entity.ServerEntity{Kind: kind, ID: entity.ID(sr.ID), Data: sr.Data}, nil
}

// rejectionReason extracts the backend's message from a 4xx body, falling
// back to the status code when the body is not the expected envelope.
func rejectionReason(raw []byte, status int) string {
	var er errorResponse
	if err := json.Unmarshal(raw, &er); err == nil && er.Message != "" {
		return er.Message
	}
	return fmt.Sprintf("rejected (status %d)", status)
}
