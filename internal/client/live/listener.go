// Package live keeps a server-sent events connection open so that changes made
// on other devices trigger a sync here without waiting for a local edit.
package live

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/notesync/internal/common"
	"github.com/dmitrijs2005/notesync/internal/logging"
	"github.com/dmitrijs2005/notesync/internal/netx"
	"github.com/dmitrijs2005/notesync/internal/retryx"
	"github.com/golang-jwt/jwt/v5"
)

// SyncNeeded is the event payload announcing new server data.
const SyncNeeded = "sync_needed"

const (
	// RefreshLead is how long before token expiry the connection is renewed.
	RefreshLead    = time.Minute
	reconnectDelay = 100 * time.Millisecond
)

// DefaultReconnectPolicy backs off from 2s to a 60s cap and gives up after 10
// failed connects.
func DefaultReconnectPolicy() retryx.Policy {
	return retryx.Policy{Attempts: 10, Base: 2 * time.Second, Max: time.Minute, Jitter: time.Second}
}

// API is the part of the HTTP client the listener needs.
type API interface {
	EventsURL(token string) string
	Refresh(ctx context.Context) error
}

type Tokens interface {
	Token() string
}

// Syncer is told about remote changes.
type Syncer interface {
	ForceSync()
}

type Listener struct {
	api     API
	tokens  Tokens
	syncer  Syncer
	running func() bool
	hc      *http.Client
	log     logging.Logger
	policy  retryx.Policy
	lead    time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	connected atomic.Bool
}

type Option func(*Listener)

func WithHTTPClient(hc *http.Client) Option {
	return func(l *Listener) { l.hc = hc }
}

func WithReconnectPolicy(p retryx.Policy) Option {
	return func(l *Listener) { l.policy = p }
}

// WithRefreshLead changes how early the token is renewed before expiry.
func WithRefreshLead(d time.Duration) Option {
	return func(l *Listener) { l.lead = d }
}

// WithRunning skips sync_needed events while running reports true.
func WithRunning(running func() bool) Option {
	return func(l *Listener) { l.running = running }
}

func WithLogger(log logging.Logger) Option {
	return func(l *Listener) { l.log = log }
}

func New(api API, tokens Tokens, syncer Syncer, opts ...Option) *Listener {
	l := &Listener{
		api:     api,
		tokens:  tokens,
		syncer:  syncer,
		running: func() bool { return false },
		hc:      &http.Client{},
		log:     logging.Nop(),
		policy:  DefaultReconnectPolicy(),
		lead:    RefreshLead,
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Connected reports whether the event stream is currently open.
func (l *Listener) Connected() bool {
	return l.connected.Load()
}

// Start (re)starts listening in the background. A previous loop is stopped
// first, so Start also resets the reconnect budget.
func (l *Listener) Start(ctx context.Context) {
	l.Stop()

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	l.mu.Lock()
	l.cancel = cancel
	l.done = done
	l.mu.Unlock()

	go func() {
		defer close(done)
		l.loop(ctx)
	}()
}

// Stop closes the connection, cancels pending timers and waits for the loop
// to exit.
func (l *Listener) Stop() {
	l.mu.Lock()
	cancel, done := l.cancel, l.done
	l.cancel, l.done = nil, nil
	l.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

var errRenew = errors.New("token renewal")

func (l *Listener) loop(ctx context.Context) {
	failures := 0
	for ctx.Err() == nil {
		token := l.tokens.Token()
		if token == "" {
			l.log.Debug(ctx, "no token, live updates off")
			return
		}

		var err error
		exp, hasExp := expiry(token)
		if hasExp && time.Until(exp) < l.lead {
			l.log.Debug(ctx, "token about to expire, refreshing before connect")
			if err = l.renew(ctx); err == nil {
				continue
			}
		} else {
			err = l.connect(ctx, token, exp, hasExp, func() { failures = 0 })
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, errRenew) {
				l.log.Debug(ctx, "renewing token for live updates")
				if err = l.renew(ctx); err == nil {
					continue
				}
			} else {
				l.log.Warn(ctx, "live updates disconnected", "error", err)
				if unauthorized(err) {
					if rerr := l.api.Refresh(ctx); rerr != nil {
						l.log.Warn(ctx, "token refresh for live updates failed", "error", rerr)
						err = rerr
					}
				}
			}
		}
		if ctx.Err() != nil {
			return
		}
		if errors.Is(err, common.ErrSessionExpired) {
			l.log.Warn(ctx, "session expired, live updates off")
			return
		}

		if failures >= l.policy.Attempts {
			l.log.Error(ctx, "live updates gave up reconnecting", "attempts", failures)
			return
		}
		delay := l.policy.Delay(failures)
		failures++
		l.log.Info(ctx, "reconnecting live updates", "in", delay, "attempt", failures, "of", l.policy.Attempts)
		if retryx.Sleep(ctx, delay) != nil {
			return
		}
	}
}

// unauthorized reports whether the stream was refused for its token. Only
// then is a refresh worth it: a failed refresh ends the session, so
// refreshing on transport errors would log users out during outages.
func unauthorized(err error) bool {
	var se *netx.StatusError
	return errors.As(err, &se) && se.Code == http.StatusUnauthorized
}

// renew refreshes the token and pauses briefly before reconnecting. A failed
// refresh is returned so that it counts against the reconnect budget.
func (l *Listener) renew(ctx context.Context) error {
	if err := l.api.Refresh(ctx); err != nil {
		l.log.Warn(ctx, "token refresh for live updates failed", "error", err)
		return err
	}
	return retryx.Sleep(ctx, reconnectDelay)
}

// connect holds one event stream open until it fails, ctx ends, or the token
// needs renewal, in which case errRenew is returned.
func (l *Listener) connect(ctx context.Context, token string, exp time.Time, hasExp bool, onOpen func()) error {
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	if hasExp {
		t := time.AfterFunc(time.Until(exp)-l.lead, func() { cancel(errRenew) })
		defer t.Stop()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.api.EventsURL(token), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := l.hc.Do(req)
	if err != nil {
		return causeOr(ctx, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return netx.NewStatusError(resp)
	}

	l.connected.Store(true)
	defer l.connected.Store(false)
	l.log.Info(ctx, "live updates connected")
	onOpen()

	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		l.handle(ctx, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return causeOr(ctx, err)
	}
	return causeOr(ctx, fmt.Errorf("event stream closed"))
}

func causeOr(ctx context.Context, err error) error {
	if cause := context.Cause(ctx); errors.Is(cause, errRenew) {
		return errRenew
	}
	return err
}

func (l *Listener) handle(ctx context.Context, line string) {
	data, ok := strings.CutPrefix(line, "data:")
	if !ok {
		return
	}
	if strings.TrimSpace(data) != SyncNeeded {
		return
	}
	if l.running() {
		l.log.Debug(ctx, "sync_needed ignored, sync already running")
		return
	}
	l.log.Debug(ctx, "sync_needed received")
	l.syncer.ForceSync()
}

// expiry reads the exp claim without verifying the signature.
func expiry(token string) (time.Time, bool) {
	claims := &jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, false
	}
	return claims.ExpiresAt.Time, true
}
