package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/netx"
	"github.com/dmitrijs2005/notesync/internal/retryx"
)

func (c *HTTPClient) Register(ctx context.Context, email, password string) (api.TokenPair, error) {
	var pair api.TokenPair
	err := c.do(ctx, request{
		method: http.MethodPost, path: api.PathRegister,
		body: api.Credentials{Email: email, Password: password}, out: &pair, anonymous: true,
	})
	return pair, err
}

func (c *HTTPClient) Login(ctx context.Context, email, password string) (api.TokenPair, error) {
	var pair api.TokenPair
	err := c.do(ctx, request{
		method: http.MethodPost, path: api.PathLogin,
		body: api.Credentials{Email: email, Password: password}, out: &pair, anonymous: true,
	})
	return pair, err
}

func (c *HTTPClient) Profile(ctx context.Context) (api.Profile, error) {
	var p api.Profile
	err := c.do(ctx, request{method: http.MethodGet, path: api.PathProfile, out: &p})
	return p, err
}

// Push sends encrypted dirty records.
func (c *HTTPClient) Push(ctx context.Context, payload *api.SyncPayload) error {
	return c.do(ctx, request{method: http.MethodPost, path: api.PathPush, body: payload})
}

// Pull fetches records changed on the server after since. A limit of zero
// leaves the page size to the server.
func (c *HTTPClient) Pull(ctx context.Context, since string, limit int) (*api.SyncPayload, error) {
	q := url.Values{}
	q.Set("since", since)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var p api.SyncPayload
	if err := c.do(ctx, request{method: http.MethodGet, path: api.PathPull, query: q, out: &p}); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *HTTPClient) PresignUpload(ctx context.Context, req api.PresignUploadRequest) (api.PresignUploadResponse, error) {
	var out api.PresignUploadResponse
	err := c.do(ctx, request{method: http.MethodPost, path: api.PathPresignUpload, body: req, out: &out})
	return out, err
}

// UploadObject PUTs a payload to a presigned URL with its own retry loop.
func (c *HTTPClient) UploadObject(ctx context.Context, presignedURL, contentType string, data []byte) error {
	return retryx.Do(ctx, c.policy, func(ctx context.Context) error {
		return netx.UploadToPresignedURL(ctx, c.hc, presignedURL, contentType, data)
	})
}

func (c *HTTPClient) CommitUpload(ctx context.Context, req api.CommitUploadRequest) (api.CommitUploadResponse, error) {
	var out api.CommitUploadResponse
	err := c.do(ctx, request{method: http.MethodPost, path: api.PathCommitUpload, body: req, out: &out})
	return out, err
}

// ViewURL returns a temporary download URL for an object. Accounts without
// sync access get common.ErrNoSyncAccess without a request being made.
func (c *HTTPClient) ViewURL(ctx context.Context, key string) (string, error) {
	if !c.tokens.HasSyncAccess() {
		return "", common.ErrNoSyncAccess
	}
	q := url.Values{}
	q.Set("key", key)
	var out api.ViewURLResponse
	if err := c.do(ctx, request{method: http.MethodGet, path: api.PathViewURL, query: q, out: &out}); err != nil {
		return "", err
	}
	return out.URL, nil
}

// Download fetches an object from a presigned GET URL.
func (c *HTTPClient) Download(ctx context.Context, presignedURL string) ([]byte, error) {
	var data []byte
	err := retryx.Do(ctx, c.policy, func(ctx context.Context) error {
		b, err := netx.DownloadFromPresignedURL(ctx, c.hc, presignedURL)
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	return data, err
}

func (c *HTTPClient) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: api.PathNotes + "/" + url.PathEscape(id)})
}

// Ping probes the health endpoint once, without retries or credentials.
func (c *HTTPClient) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+api.PathHealth, nil)
	if err != nil {
		return err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrUnavailable, err)
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: health status %d", common.ErrUnavailable, resp.StatusCode)
	}
	return nil
}

// EventsURL is the live-update stream URL. The token travels in the query
// because event streams cannot carry custom headers.
func (c *HTTPClient) EventsURL(token string) string {
	q := url.Values{}
	q.Set("token", token)
	return c.baseURL + api.PathEvents + "?" + q.Encode()
}
