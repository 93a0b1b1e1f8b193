package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/netx"
	"github.com/dmitrijs2005/notesync/internal/retryx"
	"golang.org/x/sync/singleflight"
)

// TokenStore is the part of the session the client needs.
type TokenStore interface {
	Token() string
	RefreshToken() string
	SetTokens(ctx context.Context, access, refresh string) error
	HasSyncAccess() bool
	Logout(ctx context.Context) error
}

type HTTPClient struct {
	baseURL string
	hc      *http.Client
	tokens  TokenStore
	policy  retryx.Policy
	log     logging.Logger

	refreshGroup singleflight.Group
}

type Option func(*HTTPClient)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) { c.hc = hc }
}

func WithPolicy(p retryx.Policy) Option {
	return func(c *HTTPClient) { c.policy = p }
}

func WithLogger(l logging.Logger) Option {
	return func(c *HTTPClient) { c.log = l }
}

func New(baseURL string, tokens TokenStore, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		hc:      &http.Client{Timeout: 60 * time.Second},
		tokens:  tokens,
		policy:  retryx.DefaultPolicy(),
		log:     logging.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	if c.policy.Attempts < 1 {
		c.policy.Attempts = 1
	}
	return c
}

// BaseURL returns the server root without a trailing slash.
func (c *HTTPClient) BaseURL() string {
	return c.baseURL
}

type request struct {
	method string
	path   string
	query  url.Values
	body   any
	out    any
	// anonymous requests carry no token and never trigger a refresh.
	anonymous bool
}

func (c *HTTPClient) newRequest(ctx context.Context, r request, payload []byte) (*http.Request, string, error) {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return nil, "", err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	token := ""
	if !r.anonymous {
		token = c.tokens.Token()
		if token != "" {
			req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
		}
	}
	return req, token, nil
}

// do is the fetch-with-retry loop.
func (c *HTTPClient) do(ctx context.Context, r request) error {
	var payload []byte
	if r.body != nil {
		b, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("encode %s body: %w", r.path, err)
		}
		payload = b
	}

	var (
		lastErr   error
		refreshed bool
	)
	for attempt := 0; attempt < c.policy.Attempts; {
		req, usedToken, err := c.newRequest(ctx, r, payload)
		if err != nil {
			return err
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			attempt++
			if err := c.backoff(ctx, r, attempt, err); err != nil {
				return err
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized && !r.anonymous:
			drain(resp)
			if refreshed {
				return c.expire(ctx)
			}
			refreshed = true
			// Another caller may already have rotated the token.
			if c.tokens.Token() != usedToken && c.tokens.Token() != "" {
				continue
			}
			if err := c.Refresh(ctx); err != nil {
				return err
			}
			continue

		case retryx.IsRetryableStatus(resp.StatusCode):
			lastErr = netx.NewStatusError(resp)
			drain(resp)
			attempt++
			if err := c.backoff(ctx, r, attempt, lastErr); err != nil {
				return err
			}
			continue

		case resp.StatusCode < 200 || resp.StatusCode > 299:
			serr := netx.NewStatusError(resp)
			drain(resp)
			return fmt.Errorf("%s %s: %w", r.method, r.path, serr)
		}

		err = decode(resp, r.out)
		drain(resp)
		if err != nil {
			return fmt.Errorf("decode %s response: %w", r.path, err)
		}
		return nil
	}

	return fmt.Errorf("%s %s failed after %d attempts: %w", r.method, r.path, c.policy.Attempts, lastErr)
}

// backoff sleeps before the next attempt unless attempts are exhausted.
func (c *HTTPClient) backoff(ctx context.Context, r request, attempt int, cause error) error {
	if attempt >= c.policy.Attempts {
		return nil
	}
	d := c.policy.Delay(attempt - 1)
	c.log.Warn(ctx, "request failed, retrying", "method", r.method, "path", r.path, "attempt", attempt, "delay", d, "error", cause)
	return retryx.Sleep(ctx, d)
}

func (c *HTTPClient) expire(ctx context.Context) error {
	if err := c.tokens.Logout(ctx); err != nil {
		c.log.Error(ctx, "logout after failed refresh", "error", err)
	}
	return common.ErrSessionExpired
}

// Refresh exchanges the refresh token for a new pair. Concurrent callers
// share one request. Any failed refresh logs the session out and returns
// common.ErrSessionExpired.
func (c *HTTPClient) Refresh(ctx context.Context) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		return nil, c.refresh(ctx)
	})
	return err
}

func (c *HTTPClient) refresh(ctx context.Context) error {
	rt := c.tokens.RefreshToken()
	if rt == "" {
		return c.expire(ctx)
	}

	var pair api.TokenPair
	err := c.do(ctx, request{
		method:    http.MethodPost,
		path:      api.PathRefresh,
		body:      api.RefreshRequest{RefreshToken: rt},
		out:       &pair,
		anonymous: true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.log.Warn(ctx, "session refresh failed, logging out", "error", err)
		return c.expire(ctx)
	}

	if err := c.tokens.SetTokens(ctx, pair.Token, pair.RefreshToken); err != nil {
		return err
	}
	c.log.Debug(ctx, "session refreshed")
	return nil
}

func decode(resp *http.Response, out any) error {
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	_ = resp.Body.Close()
}
