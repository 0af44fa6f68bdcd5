// Package client is a Go SDK for the ambulance-admin JSON API.
//
// The service keys every dataset on a browser profile cookie, so a Client
// carries a cookie jar: all calls made through one Client act on the same
// profile and share its admin session.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

type Client struct {
	baseURL string
	http    *http.Client

	maxRetries     uint64
	initialBackoff time.Duration
}

// New constructs a Client for the service at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("baseURL cannot be empty")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("baseURL: %w", err)
	}
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		http:           &http.Client{Timeout: 30 * time.Second, Jar: jar},
		maxRetries:     3,
		initialBackoff: 100 * time.Millisecond,
	}

	if debugLoggingRequested() {
		opts = append(opts, WithDebugLogging(true))
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Login opens an admin session for the client's profile.
func (c *Client) Login(ctx context.Context, email, password string) (*Session, error) {
	var s Session
	body := map[string]string{"email": email, "password": password}
	if err := c.call(ctx, http.MethodPost, "/api/session", body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Session returns the current session of the profile.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var s Session
	if err := c.call(ctx, http.MethodGet, "/api/session", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// Logout ends the admin session.
func (c *Client) Logout(ctx context.Context) error {
	return c.call(ctx, http.MethodDelete, "/api/session", nil, nil)
}

// Snapshot returns every collection of the profile.
func (c *Client) Snapshot(ctx context.Context) (*Snapshot, error) {
	var s Snapshot
	if err := c.call(ctx, http.MethodGet, "/api/snapshot", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// List returns the records of collection whose fields equal every filter value.
func (c *Client) List(ctx context.Context, collection string, filter map[string]string) ([]Record, error) {
	p := "/api/collections/" + url.PathEscape(collection)
	if len(filter) > 0 {
		q := url.Values{}
		for k, v := range filter {
			q.Set(k, v)
		}
		p += "?" + q.Encode()
	}
	var resp listResponse
	if err := c.call(ctx, http.MethodGet, p, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Records, nil
}

// Get returns one record.
func (c *Client) Get(ctx context.Context, collection string, id int) (*Record, error) {
	var r Record
	if err := c.call(ctx, http.MethodGet, recordPath(collection, id), nil, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Create adds a record; the service assigns its id.
func (c *Client) Create(ctx context.Context, collection string, fields map[string]any) (*Record, error) {
	var r Record
	if err := c.call(ctx, http.MethodPost, "/api/collections/"+url.PathEscape(collection), fields, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Update merges fields into a record.
func (c *Client) Update(ctx context.Context, collection string, id int, fields map[string]any) (*Record, error) {
	var r Record
	if err := c.call(ctx, http.MethodPatch, recordPath(collection, id), fields, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// Delete removes a record.
func (c *Client) Delete(ctx context.Context, collection string, id int) error {
	return c.call(ctx, http.MethodDelete, recordPath(collection, id), nil, nil)
}

func recordPath(collection string, id int) string {
	return "/api/collections/" + url.PathEscape(collection) + "/" + strconv.Itoa(id)
}

// call sends one request. Idempotent methods are retried with exponential
// backoff on network errors and recoverable statuses. A DELETE that finds
// nothing on a retry counts as done, since an earlier attempt may have
// gone through before its response was lost.
func (c *Client) call(ctx context.Context, method, path string, in, out any) error {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		payload = b
	}

	attempt := 0
	op := func() error {
		attempt++
		err := c.once(ctx, method, path, payload, out)
		if attempt > 1 && method == http.MethodDelete && errors.Is(err, ErrNotFound) {
			return nil
		}
		if err != nil && (!idempotent(method) || !recoverable(err)) {
			return backoff.Permanent(err)
		}
		return err
	}

	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.initialBackoff
	exp.MaxElapsedTime = 0
	var b backoff.BackOff = backoff.WithMaxRetries(exp, c.maxRetries)
	b = backoff.WithContext(b, ctx)

	err := backoff.RetryNotify(op, b, func(err error, wait time.Duration) {
		requestRetriesTotal.WithLabelValues(method).Inc()
	})
	requestsTotal.WithLabelValues(method, outcome(err)).Inc()
	return err
}

func (c *Client) once(ctx context.Context, method, path string, payload []byte, out any) error {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &NetworkError{Op: method + " " + path, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 300 {
		return decodeAPIError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodDelete, http.MethodPut:
		return true
	}
	return false
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return "error"
}
