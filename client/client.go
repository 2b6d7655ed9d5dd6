package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"
)

const codeTokenExpired = "token_expired"

// Client talks to the account service. The access token lives only in memory;
// the refresh credential rides in the cookie jar and is never exposed.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	jar            *sessionJar
	renewTimeout   time.Duration
	onForcedLogout func()

	refresher refreshCoordinator

	mu          sync.RWMutex
	accessToken string
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithRenewTimeout bounds the renewal exchange. A renewal that exceeds it
// fails like any other renewal failure: all waiters are rejected and the
// session is torn down, rather than stalling every caller indefinitely.
func WithRenewTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.renewTimeout = timeout
		}
	}
}

// WithForcedLogoutHook registers a callback invoked when the session is torn
// down because renewal failed, e.g. to redirect to a login screen.
func WithForcedLogoutHook(hook func()) Option {
	return func(c *Client) {
		c.onForcedLogout = hook
	}
}

func New(baseURL string, options ...Option) *Client {
	c := &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		renewTimeout: 15 * time.Second,
	}

	for _, option := range options {
		option(c)
	}

	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	c.jar = newSessionJar(c.httpClient.Jar)
	c.httpClient.Jar = c.jar

	return c
}

// AccessToken returns the current in-memory access token, if any.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

func (c *Client) setAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// clearSession drops all local session state: the in-memory access token and
// the refresh cookie. The jar is reset in place rather than reassigned, so
// requests already inside the HTTP client never observe a torn field.
func (c *Client) clearSession() {
	c.setAccessToken("")
	c.jar.reset()
}

func (c *Client) forceLogout() {
	c.clearSession()
	if c.onForcedLogout != nil {
		c.onForcedLogout()
	}
}

type apiEnvelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do performs an authenticated request. If the access token has expired, the
// renewal is single-flighted across concurrent callers and the request is
// replayed exactly once with the fresh token; a replay that expires again
// surfaces as a session failure instead of looping.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
	}

	envelope, apiErr, err := c.send(ctx, method, path, payload, c.AccessToken())
	if err != nil {
		return err
	}
	if apiErr == nil {
		return decodeData(envelope.Data, out)
	}
	if apiErr.Code != codeTokenExpired {
		return apiErr
	}

	token, err := c.refresher.renew(ctx, c.exchangeRefreshToken)
	if err != nil {
		return ErrSessionExpired
	}

	envelope, apiErr, err = c.send(ctx, method, path, payload, token)
	if err != nil {
		return err
	}
	if apiErr != nil {
		if apiErr.Code == codeTokenExpired {
			c.forceLogout()
			return ErrSessionExpired
		}
		return apiErr
	}

	return decodeData(envelope.Data, out)
}

// exchangeRefreshToken is the single renewal exchange run by the coordinator
// leader. Failure of any kind tears the session down before the error fans
// out to the waiters.
func (c *Client) exchangeRefreshToken() (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), c.renewTimeout)
	defer cancel()

	envelope, apiErr, err := c.send(ctx, http.MethodPost, "/auth/refresh-token", nil, "")
	if err == nil && apiErr != nil {
		err = apiErr
	}
	if err != nil {
		c.forceLogout()
		return "", fmt.Errorf("renew access token: %w", err)
	}

	var data struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.Unmarshal(envelope.Data, &data); err != nil || data.AccessToken == "" {
		c.forceLogout()
		return "", fmt.Errorf("malformed refresh response")
	}

	c.setAccessToken(data.AccessToken)
	return data.AccessToken, nil
}

func (c *Client) send(ctx context.Context, method, path string, payload []byte, token string) (apiEnvelope, *APIError, error) {
	var body *bytes.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	var envelope apiEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return apiEnvelope{}, nil, fmt.Errorf("decode response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return envelope, &APIError{Status: resp.StatusCode, Code: envelope.Code, Message: envelope.Message}, nil
	}

	return envelope, nil, nil
}

// sessionJar serializes access to the cookie jar so a session teardown can
// drop every cookie while other requests are still in flight. The http.Client
// reads its Jar field on every request, so the field itself is set once at
// construction and never reassigned.
type sessionJar struct {
	mu    sync.Mutex
	inner http.CookieJar
}

func newSessionJar(inner http.CookieJar) *sessionJar {
	if inner == nil {
		inner, _ = cookiejar.New(nil)
	}
	return &sessionJar{inner: inner}
}

func (j *sessionJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.inner != nil {
		j.inner.SetCookies(u, cookies)
	}
}

func (j *sessionJar) Cookies(u *url.URL) []*http.Cookie {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.inner == nil {
		return nil
	}
	return j.inner.Cookies(u)
}

// reset swaps in a fresh empty jar under the lock.
func (j *sessionJar) reset() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if inner, err := cookiejar.New(nil); err == nil {
		j.inner = inner
	}
}

func decodeData(data json.RawMessage, out any) error {
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}
