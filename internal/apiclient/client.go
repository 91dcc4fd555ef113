// Package apiclient is the authenticated HTTP client for the committee API.
//
// Every request carries the stored access token as a bearer credential. When
// the backend answers 401, the client exchanges the refresh token for a new
// access token and re-sends the original request once. If the exchange is
// impossible or fails, the stored tokens are cleared and the Navigator is
// sent to the login screen.
package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/go-authgate/committee-cli/internal/logging"
	"github.com/go-authgate/committee-cli/internal/session"
)

// Timeout configuration for different operations
const (
	defaultRequestTimeout = 15 * time.Second
	refreshTokenTimeout   = 10 * time.Second
)

// RequestIDHeader is set on every outgoing request that does not carry one.
const RequestIDHeader = "X-Request-ID"

// Doer sends a single HTTP request. *retry.Client satisfies it.
type Doer interface {
	DoWithContext(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Navigator is the login-screen contract used when a session cannot be
// recovered.
type Navigator interface {
	// OnLoginPage reports whether the user is already looking at the login
	// screen; no redirect happens in that case.
	OnLoginPage() bool
	// ToLogin sends the user to the login screen.
	ToLogin()
}

// Observer is notified about token lifecycle events.
type Observer interface {
	AccessTokenRejected()
	TokenRefreshed()
	RefreshFailed(err error)
}

type noopObserver struct{}

func (noopObserver) AccessTokenRejected()  {}
func (noopObserver) TokenRefreshed()       {}
func (noopObserver) RefreshFailed(_ error) {}

// Client talks to one API base URL on behalf of the session held in its Store.
type Client struct {
	base    *url.URL
	store   session.Store
	doer    Doer // idempotent methods
	once    Doer // everything else, refresh included
	nav     Navigator
	obs     Observer
	log     *logrus.Logger
	timeout time.Duration

	refreshGroup singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithDoer replaces both default transports with d.
func WithDoer(d Doer) Option {
	return func(c *Client) {
		c.doer = d
		c.once = d
	}
}

// WithNavigator sets the login redirect target.
func WithNavigator(n Navigator) Option { return func(c *Client) { c.nav = n } }

// WithObserver registers lifecycle callbacks.
func WithObserver(o Observer) Option { return func(c *Client) { c.obs = o } }

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option { return func(c *Client) { c.log = l } }

// WithTimeout bounds each JSON helper call, refresh included.
func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }

// New builds a client for baseURL, e.g. "https://committee.example.com/api/".
// The base path is the API-base marker used to translate absolute pagination
// links back into relative references.
func New(baseURL string, store session.Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("token store is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base URL must be absolute, got %q", baseURL)
	}
	if !strings.HasSuffix(base.Path, "/") {
		base.Path += "/"
	}

	c := &Client{
		base:    base,
		store:   store,
		obs:     noopObserver{},
		log:     logging.Discard(),
		timeout: defaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.doer == nil {
		c.doer, c.once, err = newTransports(c.log)
		if err != nil {
			return nil, err
		}
	}
	if c.once == nil {
		c.once = c.doer
	}
	return c, nil
}

// Marker is the API-base path, always ending in "/".
func (c *Client) Marker() string { return c.base.Path }

// ResolveRef turns a reference relative to the API base ("tasks/?page=2" or
// "/tasks/") into an absolute URL.
func (c *Client) ResolveRef(ref string) (*url.URL, error) {
	rel, err := url.Parse(strings.TrimLeft(ref, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	return c.base.ResolveReference(rel), nil
}

// Do sends req through the token lifecycle. On success the caller owns the
// response body. Any non-2xx/3xx outcome is returned as an error: *APIError for
// backend answers, the refresh failure when a silent refresh was attempted and
// failed.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}
	c.authorize(req)
	return c.send(req, false)
}

// send issues req once. retried is true only for the single re-send that
// follows a refresh; a failure on that attempt is final.
func (c *Client) send(req *http.Request, retried bool) (*http.Response, error) {
	entry := c.log.WithFields(logrus.Fields{
		"method":     req.Method,
		"path":       req.URL.Path,
		"request_id": req.Header.Get(RequestIDHeader),
		"retried":    retried,
	})

	resp, err := c.transport(req).DoWithContext(req.Context(), req)
	if err != nil {
		entry.WithError(err).Debug("request failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	if resp.StatusCode < http.StatusBadRequest {
		entry.WithField("status", resp.StatusCode).Debug("request ok")
		return resp, nil
	}

	apiErr := newAPIError(req, resp)
	entry.WithField("status", apiErr.StatusCode).Debug("request rejected")

	if apiErr.StatusCode != http.StatusUnauthorized || retried || c.excluded(req) {
		return nil, apiErr
	}
	return c.recoverUnauthorized(req, apiErr)
}

// recoverUnauthorized runs the refresh-and-retry path for a 401.
func (c *Client) recoverUnauthorized(req *http.Request, apiErr *APIError) (*http.Response, error) {
	c.obs.AccessTokenRejected()

	tokens, _ := c.store.Tokens()
	if tokens.Refresh == "" {
		c.log.WithField("path", req.URL.Path).Warn("access token rejected and no refresh token stored")
		c.forceLogout()
		return nil, apiErr
	}

	access, err := c.refresh(req.Context(), tokens.Refresh, bearerToken(req))
	if err != nil {
		c.log.WithError(err).Warn("token refresh failed, clearing session")
		c.obs.RefreshFailed(err)
		c.forceLogout()
		return nil, err
	}
	c.obs.TokenRefreshed()

	if err := rewindBody(req); err != nil {
		return nil, fmt.Errorf("%w (retry impossible: %v)", apiErr, err)
	}
	setBearer(req, access)
	return c.send(req, true)
}

// forceLogout drops both tokens and leaves for the login screen unless the user
// is already there.
func (c *Client) forceLogout() {
	if err := c.store.Clear(); err != nil {
		c.log.WithError(err).Error("failed to clear stored tokens")
	}
	if c.nav != nil && !c.nav.OnLoginPage() {
		c.nav.ToLogin()
	}
}

// authorize attaches the stored access token, if any.
func (c *Client) authorize(req *http.Request) {
	tok, err := c.TokenSource().Token()
	if err != nil {
		return
	}
	tok.SetAuthHeader(req)
}

func setBearer(req *http.Request, access string) {
	req.Header.Set("Authorization", "Bearer "+access)
}

func bearerToken(req *http.Request) string {
	const prefix = "Bearer "
	h := req.Header.Get("Authorization")
	if !strings.HasPrefix(h, prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

// rewindBody restores req.Body for a second send.
func rewindBody(req *http.Request) error {
	if req.Body == nil || req.Body == http.NoBody {
		return nil
	}
	if req.GetBody == nil {
		return errors.New("request body cannot be replayed")
	}
	body, err := req.GetBody()
	if err != nil {
		return err
	}
	req.Body = body
	return nil
}
