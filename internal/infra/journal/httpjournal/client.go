// Package httpjournal carries the archive journal over HTTP. The client
// talks to a Handler, which serves any other journal:
//
//	POST /log    appends the request body as a fragment
//	GET  /log    returns every fragment assembled into one current dump
//	POST /users  replaces the user list document
//	GET  /users  returns the user list document, 404 when none exists
package httpjournal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const jsonContentType = "application/json"

// StatusError reports a non-success response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, strings.TrimSpace(e.Body))
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) ClientOption { return func(cl *Client) { cl.http = c } }

// WithTimeout sets the per-request timeout of the default http.Client.
func WithTimeout(d time.Duration) ClientOption {
	return func(cl *Client) { cl.http = &http.Client{Timeout: d} }
}

// Client is a journal whose storage is a remote Handler.
type Client struct {
	base string
	http *http.Client
}

// NewClient targets the server at baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{base: strings.TrimRight(baseURL, "/"), http: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fragments implements archive.Journal. The server returns the whole log as
// one document, so the result has at most one element.
func (c *Client) Fragments(ctx context.Context) ([][]byte, error) {
	body, err := c.do(ctx, http.MethodGet, logPath, nil)
	if err != nil {
		return nil, err
	}
	return [][]byte{body}, nil
}

// Append implements archive.Journal.
func (c *Client) Append(ctx context.Context, fragment []byte) error {
	_, err := c.do(ctx, http.MethodPost, logPath, fragment)
	return err
}

// Users implements archive.Journal.
func (c *Client) Users(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, usersPath, nil)
	var se *StatusError
	if errors.As(err, &se) && se.Code == http.StatusNotFound {
		return nil, nil
	}
	return body, err
}

// ReplaceUsers implements archive.Journal.
func (c *Client) ReplaceUsers(ctx context.Context, doc []byte) error {
	_, err := c.do(ctx, http.MethodPost, usersPath, doc)
	return err
}

// Close implements archive.Journal.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", jsonContentType)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer func() { _ = resp.Body.Close() }()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, &StatusError{Method: method, Path: path, Code: resp.StatusCode, Body: string(out)}
	}
	return out, nil
}
