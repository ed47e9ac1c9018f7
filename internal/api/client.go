// Package api is the JSON client for the productivity backend.
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

	"github.com/google/uuid"

	appLog "companion/internal/log"
	"companion/internal/model"
	"companion/internal/session"
)

var (
	// ErrSessionExpired means a 401 could not be recovered by a refresh. The
	// local session has been cleared by the time it is returned.
	ErrSessionExpired = errors.New("api: session expired")
	// ErrValidation wraps client-side checks made before any request.
	ErrValidation = errors.New("api: validation failed")
)

const maxErrorBody = 64 << 10

// Error is a non-2xx backend answer.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

func invalid(field string) error {
	return fmt.Errorf("%w: %s is required", ErrValidation, field)
}

type Client struct {
	baseURL string
	http    *http.Client
	session *session.Session
}

// New builds a client for baseURL and installs its refresh call on sess.
func New(baseURL string, sess *session.Session, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		session: sess,
	}
	sess.SetRefresher(c.refreshTokens)
	return c
}

func (c *Client) Session() *session.Session { return c.session }

// do sends an authenticated request. A 401 triggers one refresh and one
// retry; requests that raced a completed refresh only retry.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	body, err := encodeBody(in)
	if err != nil {
		return err
	}

	token := c.session.AccessToken()
	if token == "" {
		return ErrSessionExpired
	}
	resp, err := c.send(ctx, method, path, query, body, token)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusUnauthorized {
		return decode(resp, out)
	}
	drain(resp)

	if err := c.session.RefreshAfter(ctx, token); err != nil {
		appLog.Warn("request unauthorized and refresh failed", "method", method, "path", path)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	}

	resp, err = c.send(ctx, method, path, query, body, c.session.AccessToken())
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.session.Expire()
		return ErrSessionExpired
	}
	return decode(resp, out)
}

// doPublic sends a request without a bearer token and without the 401 flow.
func (c *Client) doPublic(ctx context.Context, method, path string, in, out any) error {
	body, err := encodeBody(in)
	if err != nil {
		return err
	}
	resp, err := c.send(ctx, method, path, nil, body, "")
	if err != nil {
		return err
	}
	return decode(resp, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body []byte, token string) (*http.Response, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return nil, fmt.Errorf("api: build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api: %s %s: %w", method, path, err)
	}
	appLog.Debug("api request", "method", method, "path", path, "status", resp.StatusCode,
		"elapsed_ms", time.Since(start).Milliseconds(), "request_id", req.Header.Get("X-Request-ID"))
	return resp, nil
}

func encodeBody(in any) ([]byte, error) {
	if in == nil {
		return nil, nil
	}
	b, err := json.Marshal(in)
	if err != nil {
		return nil, fmt.Errorf("api: encode body: %w", err)
	}
	return b, nil
}

func decode(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseError(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("api: read body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("api: decode %s: %w", resp.Request.URL.Path, err)
	}
	return nil
}

func parseError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Message json.RawMessage `json:"message"`
		Error   json.RawMessage `json:"error"`
	}
	msg := ""
	if json.Unmarshal(data, &body) == nil {
		if msg = flattenMessage(body.Message); msg == "" {
			msg = flattenMessage(body.Error)
		}
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}

// flattenMessage accepts a string or a list of strings.
func flattenMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return strings.TrimSpace(s)
	}
	var list []string
	if json.Unmarshal(raw, &list) == nil {
		return strings.Join(list, "; ")
	}
	return ""
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()
}

func (c *Client) refreshTokens(ctx context.Context, refreshToken string) (model.AuthTokens, error) {
	var out model.AuthTokens
	err := c.doPublic(ctx, http.MethodPost, "/auth/refresh", map[string]string{"refreshToken": refreshToken}, &out)
	return out, err
}
