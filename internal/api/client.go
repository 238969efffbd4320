// Package api is the sole channel to the remote incident service. Every call
// attaches the current session token, and every response is classified into
// the error taxonomy before it reaches the caller: a session-invalid signal
// clears the stored token, a permission denial names the capability, and
// everything else surfaces as a retryable remote fault.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"opsboard/internal/domain"
	"opsboard/internal/session"
)

const authHeader = "X-Auth-Token"

// Client is the incident board HTTP API client.
type Client struct {
	BaseURL      string
	Session      session.Store
	HTTPClient   *http.Client
	Timeout      time.Duration
	FetchRetries uint64
}

// New creates a client with sane defaults. baseURL includes the API prefix,
// e.g. http://host:8080/api/v1.
func New(baseURL string, store session.Store) *Client {
	return &Client{
		BaseURL:      baseURL,
		Session:      store,
		Timeout:      10 * time.Second,
		FetchRetries: 2,
	}
}

// Login authenticates and stores the returned opaque token. Rejected
// credentials surface as AuthenticationError; no token is stored.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	resp, data, err := c.send(ctx, http.MethodPost, "login", body)
	if err != nil {
		return &RemoteError{Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthenticationError{Message: "invalid username or password"}
	case resp.StatusCode >= 300:
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	token := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if token == "" {
		return &AuthenticationError{Message: "no token received"}
	}
	return c.Session.Set(ctx, token)
}

// Logout drops the stored token. The remote keeps no client-visible session
// state beyond the token itself.
func (c *Client) Logout(ctx context.Context) error {
	return c.Session.Clear(ctx)
}

// ListAdministrators fetches all administrator accounts.
func (c *Client) ListAdministrators(ctx context.Context) ([]domain.Administrator, error) {
	var out []domain.Administrator
	err := c.fetch(ctx, "admin/get/all/system_admins", "list administrators", &out)
	return out, err
}

// ListIncidents fetches the full incident collection.
func (c *Client) ListIncidents(ctx context.Context) ([]domain.Incident, error) {
	var out []domain.Incident
	err := c.fetch(ctx, "admin/get/all/incidents", "list incidents", &out)
	return out, err
}

// AlertLog fetches the external monitoring feed. Read-only; fetched fresh on
// every view.
func (c *Client) AlertLog(ctx context.Context) ([]domain.AlertEntry, error) {
	var out []domain.AlertEntry
	err := c.fetch(ctx, "admin/get/all/incidents/zabbix", "view alert log", &out)
	return out, err
}

// CreateIncident sends a validated creation payload and returns the
// authoritative incident, including the server-assigned id.
func (c *Client) CreateIncident(ctx context.Context, payload domain.Incident) (domain.Incident, error) {
	var out domain.Incident
	err := c.do(ctx, http.MethodPost, "admin/create/incident", "create incident", payload, &out)
	return out, err
}

// UpdateIncident sends a validated transition payload.
func (c *Client) UpdateIncident(ctx context.Context, payload domain.Incident) (domain.Incident, error) {
	var out domain.Incident
	err := c.do(ctx, http.MethodPatch, "admin/update/incident", "update incident", payload, &out)
	return out, err
}

// ArchiveIncident archives by id. Success or failure only; the caller
// applies the status change locally on success.
func (c *Client) ArchiveIncident(ctx context.Context, id string) error {
	endpoint := "admin/archive/incident?id=" + url.QueryEscape(id)
	return c.do(ctx, http.MethodPost, endpoint, "archive incident", nil, nil)
}

// adminUpdate is the update wire shape: the username is immutable after
// creation and is never transmitted.
type adminUpdate struct {
	ID        string      `json:"id"`
	FirstName string      `json:"first_name"`
	LastName  string      `json:"last_name"`
	IsActive  bool        `json:"is_active"`
	Role      domain.Role `json:"role"`
}

// CreateAdministrator sends a validated administrator draft.
func (c *Client) CreateAdministrator(ctx context.Context, payload domain.Administrator) (domain.Administrator, error) {
	var out domain.Administrator
	err := c.do(ctx, http.MethodPost, "admin/create/system_admin", "create administrator", payload, &out)
	return out, err
}

// UpdateAdministrator sends everything but the username.
func (c *Client) UpdateAdministrator(ctx context.Context, payload domain.Administrator) (domain.Administrator, error) {
	body := adminUpdate{
		ID:        payload.ID,
		FirstName: payload.FirstName,
		LastName:  payload.LastName,
		IsActive:  payload.IsActive,
		Role:      payload.Role,
	}
	var out domain.Administrator
	err := c.do(ctx, http.MethodPatch, "admin/update/system_admin", "update administrator", body, &out)
	return out, err
}

// fetch is do for idempotent GETs, with a capped retry on transient remote
// faults. Deterministic 4xx responses and classified auth failures surface
// immediately. Mutations never go through here: they are sent at most once.
func (c *Client) fetch(ctx context.Context, endpoint, capability string, out any) error {
	op := func() error {
		err := c.do(ctx, http.MethodGet, endpoint, capability, nil, out)
		if err == nil {
			return nil
		}
		var remote *RemoteError
		if !errors.As(err, &remote) {
			return backoff.Permanent(err)
		}
		if remote.StatusCode >= 400 && remote.StatusCode < 500 {
			return backoff.Permanent(err)
		}
		return err
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.FetchRetries), ctx)
	return backoff.Retry(op, bo)
}

func (c *Client) do(ctx context.Context, method, endpoint, capability string, body, out any) error {
	resp, data, err := c.send(ctx, method, endpoint, body)
	if err != nil {
		return &RemoteError{Err: err}
	}
	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		// Session invalid: the one place the token is cleared on a failure.
		if err := c.Session.Clear(ctx); err != nil {
			return fmt.Errorf("clear session after 401: %w", err)
		}
		return &SessionExpiredError{}
	case resp.StatusCode == http.StatusForbidden:
		return &AuthorizationError{Capability: capability}
	case resp.StatusCode >= 300:
		return &RemoteError{StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return &RemoteError{StatusCode: resp.StatusCode, Body: string(data), Err: err}
		}
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, endpoint string, body any) (*http.Response, []byte, error) {
	// Concurrent fetches share the client; never write fields here.
	httpClient := c.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: c.Timeout}
	}
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, nil, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, u, &buf)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-Id", uuid.New().String())
	if token, err := c.Session.Token(ctx); err == nil && token != "" {
		req.Header.Set(authHeader, token)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, err
	}
	return resp, data, nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
