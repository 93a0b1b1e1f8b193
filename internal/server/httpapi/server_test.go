package httpapi

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/notesync/internal/api"
	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/server/events"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- fakes ---

type fakeAuth struct {
	registerErr error
	loginErr    error
	refreshErr  error
	profile     *api.Profile
	tokens      map[string]string
	lastEmail   string
}

func (f *fakeAuth) Register(_ context.Context, email, _ string) (*api.TokenPair, error) {
	f.lastEmail = email
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return &api.TokenPair{Token: "at", RefreshToken: "rt"}, nil
}

func (f *fakeAuth) Login(_ context.Context, email, _ string) (*api.TokenPair, error) {
	f.lastEmail = email
	if f.loginErr != nil {
		return nil, f.loginErr
	}
	return &api.TokenPair{Token: "at", RefreshToken: "rt"}, nil
}

func (f *fakeAuth) RefreshToken(_ context.Context, rt string) (*api.TokenPair, error) {
	if f.refreshErr != nil {
		return nil, f.refreshErr
	}
	return &api.TokenPair{Token: "at2", RefreshToken: rt + "2"}, nil
}

func (f *fakeAuth) Profile(_ context.Context, userID string) (*api.Profile, error) {
	if f.profile == nil {
		return nil, common.ErrorUnauthorized
	}
	return f.profile, nil
}

func (f *fakeAuth) Authenticate(token string) (string, error) {
	if token == "expired" {
		return "", common.ErrTokenExpired
	}
	id, ok := f.tokens[token]
	if !ok {
		return "", common.ErrInvalidToken
	}
	return id, nil
}

type fakeSync struct {
	pushed    *api.SyncPayload
	pushUser  string
	pushErr   error
	pullSince string
	pullLimit int
	pullOut   *api.SyncPayload
}

func (f *fakeSync) Push(_ context.Context, userID string, p *api.SyncPayload) error {
	f.pushUser, f.pushed = userID, p
	return f.pushErr
}

func (f *fakeSync) Pull(_ context.Context, _ string, since string, limit int) (*api.SyncPayload, error) {
	f.pullSince, f.pullLimit = since, limit
	if f.pullOut == nil {
		return &api.SyncPayload{Notes: []api.Note{}, Folders: []api.Folder{}, Tags: []api.Tag{}, Files: []api.File{}}, nil
	}
	return f.pullOut, nil
}

type fakeFiles struct {
	err         error
	deletedNote string
	viewKey     string
}

func (f *fakeFiles) PresignUpload(_ context.Context, userID string, req *api.PresignUploadRequest) (*api.PresignUploadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.PresignUploadResponse{URL: "https://s3/put", S3Key: userID + "/" + req.ID}, nil
}

func (f *fakeFiles) CommitUpload(context.Context, string, *api.CommitUploadRequest) (*api.CommitUploadResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &api.CommitUploadResponse{StorageUsed: 77}, nil
}

func (f *fakeFiles) ViewURL(_ context.Context, _ string, key string) (*api.ViewURLResponse, error) {
	f.viewKey = key
	if f.err != nil {
		return nil, f.err
	}
	return &api.ViewURLResponse{URL: "https://s3/get/" + key}, nil
}

func (f *fakeFiles) DeleteNote(_ context.Context, _ string, noteID string) error {
	f.deletedNote = noteID
	return f.err
}

// --- helpers ---

type testEnv struct {
	auth   *fakeAuth
	sync   *fakeSync
	files  *fakeFiles
	broker *events.Broker
	srv    *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		auth:   &fakeAuth{tokens: map[string]string{"good": "u1"}},
		sync:   &fakeSync{},
		files:  &fakeFiles{},
		broker: events.NewBroker(2),
	}
	s := NewServer(":0", logging.Nop(), env.auth, env.sync, env.files, env.broker, 50*time.Millisecond)
	env.srv = httptest.NewServer(s.Router())
	t.Cleanup(env.srv.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if token != "" {
		req.Header.Set(common.AuthorizationHeaderName, common.BearerPrefix+token)
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// --- tests ---

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, api.PathHealth, "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegister(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, api.PathRegister, "", `{"email":"a@example.com","password":"password1"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pair := decodeBody[api.TokenPair](t, resp)
	assert.Equal(t, api.TokenPair{Token: "at", RefreshToken: "rt"}, pair)
	assert.Equal(t, "a@example.com", env.auth.lastEmail)

	env.auth.registerErr = common.ErrorAlreadyExists
	resp = env.do(t, http.MethodPost, api.PathRegister, "", `{"email":"a@example.com","password":"password1"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "already exists", decodeBody[api.ErrorResponse](t, resp).Error)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	for _, body := range []string{
		`{"email":"not-an-email","password":"password1"}`,
		`{"email":"a@example.com","password":"short"}`,
		`{"email":"a@example.com"}`,
		`{not json`,
	} {
		resp := env.do(t, http.MethodPost, api.PathRegister, "", body)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, body)
	}
}

func TestLogin(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, api.PathLogin, "", `{"email":"a@example.com","password":"password1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	env.auth.loginErr = common.ErrorUnauthorized
	resp = env.do(t, http.MethodPost, api.PathLogin, "", `{"email":"a@example.com","password":"password1"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRefresh(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, api.PathRefresh, "", `{"refreshToken":"rt"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "rt2", decodeBody[api.TokenPair](t, resp).RefreshToken)

	resp = env.do(t, http.MethodPost, api.PathRefresh, "", `{}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.auth.refreshErr = common.ErrRefreshTokenExpired
	resp = env.do(t, http.MethodPost, api.PathRefresh, "", `{"refreshToken":"rt"}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBearerAuth(t *testing.T) {
	env := newTestEnv(t)
	env.auth.profile = &api.Profile{Email: "a@example.com", HasSyncAccess: true, StorageLimit: 10}

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"bad token", "Bearer nope", http.StatusUnauthorized},
		{"expired token", "Bearer expired", http.StatusUnauthorized},
		{"good token", "Bearer good", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(http.MethodGet, env.srv.URL+api.PathProfile, nil)
			require.NoError(t, err)
			if tt.header != "" {
				req.Header.Set(common.AuthorizationHeaderName, tt.header)
			}
			resp, err := env.srv.Client().Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	env.auth.profile = &api.Profile{Email: "a@example.com", HasSyncAccess: true, StorageUsed: 3, StorageLimit: 10}

	resp := env.do(t, http.MethodGet, api.PathProfile, "good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, *env.auth.profile, decodeBody[api.Profile](t, resp))
}

func TestPush(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, api.PathPush, "good", `{"notes":[{"id":"n1","title":"x"}],"tags":[{"id":"t1"}]}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", env.sync.pushUser)
	require.NotNil(t, env.sync.pushed)
	assert.Equal(t, 2, env.sync.pushed.Len())

	resp = env.do(t, http.MethodPost, api.PathPush, "good", `{"notes":[{"title":"no id"}]}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	env.sync.pushErr = common.ErrNoSyncAccess
	resp = env.do(t, http.MethodPost, api.PathPush, "good", `{"tags":[{"id":"t1"}]}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	env.sync.pushErr = errors.New("db down")
	resp = env.do(t, http.MethodPost, api.PathPush, "good", `{"tags":[{"id":"t1"}]}`)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "internal error", decodeBody[api.ErrorResponse](t, resp).Error)
}

func TestPush_BodyLimit(t *testing.T) {
	env := newTestEnv(t)

	big := `{"notes":[{"id":"n1","content":"` + strings.Repeat("x", api.MaxPushBody) + `"}]}`
	resp := env.do(t, http.MethodPost, api.PathPush, "good", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestPull(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, api.PathPull+"?since=2024-01-01T00:00:00.000Z&limit=20", "good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2024-01-01T00:00:00.000Z", env.sync.pullSince)
	assert.Equal(t, 20, env.sync.pullLimit)

	p := decodeBody[api.SyncPayload](t, resp)
	assert.NotNil(t, p.Notes)

	resp = env.do(t, http.MethodGet, api.PathPull, "good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "", env.sync.pullSince)
	assert.Equal(t, 0, env.sync.pullLimit)

	resp = env.do(t, http.MethodGet, api.PathPull+"?limit=abc", "good", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFiles(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, api.PathPresignUpload, "good", `{"id":"f1","size":3}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1/f1", decodeBody[api.PresignUploadResponse](t, resp).S3Key)

	resp = env.do(t, http.MethodPost, api.PathCommitUpload, "good", `{"id":"f1","s3Key":"u1/f1"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 77, decodeBody[api.CommitUploadResponse](t, resp).StorageUsed)

	resp = env.do(t, http.MethodPost, api.PathCommitUpload, "good", `{"id":"f1"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodGet, api.PathViewURL+"?key=u1%2Ff1", "good", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1/f1", env.files.viewKey)

	resp = env.do(t, http.MethodGet, api.PathViewURL, "good", "")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestFiles_ErrorStatuses(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{common.ErrQuotaExceeded, http.StatusRequestEntityTooLarge},
		{common.ErrorForbidden, http.StatusForbidden},
		{common.ErrorNotFound, http.StatusNotFound},
		{common.ErrNoSyncAccess, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			env := newTestEnv(t)
			env.files.err = tt.err
			resp := env.do(t, http.MethodPost, api.PathCommitUpload, "good", `{"id":"f1","s3Key":"u1/f1"}`)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestDeleteNote(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodDelete, api.PathNotes+"/n1", "good", "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "n1", env.files.deletedNote)

	resp = env.do(t, http.MethodDelete, api.PathNotes+"/n1", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEvents_Unauthorized(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, api.PathEvents, "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = env.do(t, http.MethodGet, api.PathEvents+"?token=nope", "", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestEvents_Stream(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.srv.URL+api.PathEvents+"?token=good", nil)
	require.NoError(t, err)
	resp, err := env.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))
	assert.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))

	lines := bufio.NewScanner(resp.Body)
	next := func() string {
		for lines.Scan() {
			if l := lines.Text(); l != "" {
				return l
			}
		}
		return ""
	}

	assert.Equal(t, ": connected", next())

	require.Eventually(t, func() bool { return env.broker.Count("u1") == 1 }, time.Second, 5*time.Millisecond)
	env.broker.Notify("u1")

	// Keep-alives may interleave with the notification.
	seen := map[string]bool{}
	for i := 0; i < 20 && !(seen["data: sync_needed"] && seen[": keep-alive"]); i++ {
		seen[next()] = true
	}
	assert.True(t, seen["data: sync_needed"])
	assert.True(t, seen[": keep-alive"])
}

func TestEvents_EvictedConnectionEnds(t *testing.T) {
	env := newTestEnv(t)

	open := func() *http.Response {
		req, err := http.NewRequest(http.MethodGet, env.srv.URL+api.PathEvents+"?token=good", nil)
		require.NoError(t, err)
		resp, err := env.srv.Client().Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	first := open()
	require.Eventually(t, func() bool { return env.broker.Count("u1") == 1 }, time.Second, 5*time.Millisecond)
	open()
	open()

	done := make(chan struct{})
	go func() {
		sc := bufio.NewScanner(first.Body)
		for sc.Scan() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("evicted stream was not closed")
	}
	assert.Equal(t, 2, env.broker.Count("u1"))
}
