package recordstore

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

	"maestro/internal/applications"
	"maestro/internal/identity"
)

// StatusError is a non-2xx answer from the record store API
type StatusError struct {
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("record store HTTP %d", e.Code)
	}
	return fmt.Sprintf("record store HTTP %d: %s", e.Code, e.Detail)
}

// Is makes a 401 match identity.ErrSessionExpired, since the API only
// rejects a token that has lapsed or been revoked.
func (e *StatusError) Is(target error) bool {
	return target == identity.ErrSessionExpired && e.Code == http.StatusUnauthorized
}

// APIClient reads and writes applications through the remote REST API.
// Calls carry the signed-in user's access token from the context.
type APIClient struct {
	baseURL string
	http    *http.Client
	log     *slog.Logger
}

func NewAPIClient(baseURL string, timeout time.Duration, log *slog.Logger) *APIClient {
	return &APIClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// List fetches every application of the current user. A body that is not a
// JSON array is treated as an empty list.
func (c *APIClient) List(ctx context.Context) ([]applications.Record, error) {
	var raw json.RawMessage
	if err := c.call(ctx, http.MethodGet, "/api/jobs", nil, &raw); err != nil {
		return nil, err
	}

	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		c.log.Warn("record store returned a non-list body", "bytes", len(raw))
		return []applications.Record{}, nil
	}

	var records []applications.Record
	if err := json.Unmarshal(trimmed, &records); err != nil {
		return nil, fmt.Errorf("decode applications: %w", err)
	}
	return records, nil
}

// createRequest sends absent optional fields as null
type createRequest struct {
	Company     string  `json:"company"`
	Position    string  `json:"position"`
	Status      string  `json:"status"`
	AppliedDate string  `json:"applied_date"`
	Location    *string `json:"location"`
	Salary      *string `json:"salary"`
	JobURL      *string `json:"job_url"`
	Notes       *string `json:"notes"`
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Create posts a new application
func (c *APIClient) Create(ctx context.Context, in applications.CreateInput) (*applications.Record, error) {
	body := createRequest{
		Company:     in.Company,
		Position:    in.Position,
		Status:      in.Status,
		AppliedDate: in.AppliedDate,
		Location:    optional(in.Location),
		Salary:      optional(in.Salary),
		JobURL:      optional(in.JobURL),
		Notes:       optional(in.Notes),
	}

	var rec applications.Record
	if err := c.call(ctx, http.MethodPost, "/api/jobs", body, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// SyncEmails triggers a mailbox scan. New records show up on the next List.
func (c *APIClient) SyncEmails(ctx context.Context) (*applications.SyncResult, error) {
	var res applications.SyncResult
	if err := c.call(ctx, http.MethodPost, "/api/sync-emails", nil, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// AuthorizationURL asks the record store where to send the user to grant
// mailbox access.
func (c *APIClient) AuthorizationURL(ctx context.Context) (string, error) {
	var out struct {
		AuthorizationURL string `json:"authorization_url"`
		State            string `json:"state"`
	}
	if err := c.call(ctx, http.MethodGet, "/auth/google-login", nil, &out); err != nil {
		return "", err
	}
	if out.AuthorizationURL == "" {
		return "", fmt.Errorf("record store returned no authorization_url")
	}
	return out.AuthorizationURL, nil
}

// Ping checks that the API answers at all
func (c *APIClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ping record store: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

func (c *APIClient) call(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p, ok := identity.PrincipalFrom(ctx); ok && p.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.AccessToken)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	c.log.Debug("record store call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))

	if resp.StatusCode >= 400 {
		return statusError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func statusError(resp *http.Response) error {
	var payload struct {
		Detail any `json:"detail"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)

	se := &StatusError{Code: resp.StatusCode}
	switch d := payload.Detail.(type) {
	case string:
		se.Detail = d
	case nil:
	default:
		b, _ := json.Marshal(d)
		se.Detail = string(b)
	}
	return se
}
