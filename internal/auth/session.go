// Package auth is the single source of truth for who is logged in.
//
// A Session is derived from two inputs: whether the token store holds an
// access token, and the outcome of the "who am I" fetch. Holding a token is
// enough to count as authenticated once that fetch has settled, even if it
// failed; only an explicit logout (or the client clearing the store after an
// unrecoverable 401) makes the session anonymous again.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/go-authgate/committee-cli/internal/cache"
	"github.com/go-authgate/committee-cli/internal/dashboard"
	"github.com/go-authgate/committee-cli/internal/logging"
	"github.com/go-authgate/committee-cli/internal/session"
)

var (
	// ErrNotLoggedIn is returned by operations that need a stored token.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrLoginInProgress is returned when Login is called concurrently.
	ErrLoginInProgress = errors.New("login already in progress")
)

// State is the session's position in the login state machine.
type State int

const (
	Anonymous State = iota
	PendingUser
	LoggingIn
	Authenticated
)

func (s State) String() string {
	switch s {
	case Anonymous:
		return "anonymous"
	case PendingUser:
		return "pending-user"
	case LoggingIn:
		return "logging-in"
	case Authenticated:
		return "authenticated"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// API is the part of *apiclient.Client the session uses.
type API interface {
	Login(ctx context.Context, email, password string) (session.Tokens, error)
	Me(ctx context.Context, out any) error
}

// Session tracks the login state. It is safe for concurrent use.
type Session struct {
	api   API
	store session.Store
	cache *cache.Cache
	log   *logrus.Logger

	onChange func(State)

	mu        sync.Mutex
	loggingIn bool
	fetching  int
	// settled is set once a profile fetch finished for the current tokens,
	// successfully or not.
	settled bool
	user    *dashboard.User
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *logrus.Logger) Option { return func(s *Session) { s.log = l } }

// WithStateListener registers fn to be called after every transition.
func WithStateListener(fn func(State)) Option { return func(s *Session) { s.onChange = fn } }

// New returns a session over store. Its initial state follows the store:
// PendingUser when an access token is present, Anonymous otherwise.
func New(api API, store session.Store, c *cache.Cache, opts ...Option) *Session {
	s := &Session{
		api:   api,
		store: store,
		cache: c,
		log:   logging.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// hasToken reconciles the session with the store; the client may have
// cleared it behind our back after a failed refresh. Callers hold s.mu.
func (s *Session) hasToken() bool {
	_, ok := s.store.Tokens()
	if !ok && (s.user != nil || s.settled) {
		s.user = nil
		s.settled = false
		s.cache.Delete(dashboard.MeCacheKey)
	}
	return ok
}

func (s *Session) state() State {
	hasToken := s.hasToken()
	switch {
	case s.loggingIn:
		return LoggingIn
	case !hasToken:
		return Anonymous
	case s.user != nil:
		return Authenticated
	}
	return PendingUser
}

func (s *Session) loading() bool {
	return s.loggingIn || s.fetching > 0 || (s.hasToken() && s.user == nil && !s.settled)
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state()
}

// IsLoading is true while a login is in flight, or while a token exists but
// the profile fetch has not completed.
func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading()
}

// IsAuthenticated is true once a profile was fetched, or when a token exists
// and nothing is loading.
func (s *Session) IsAuthenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hasToken() && s.user != nil {
		return true
	}
	return s.hasToken() && !s.loading()
}

// User returns the last fetched profile, nil when none was fetched.
func (s *Session) User() *dashboard.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hasToken()
	return s.user
}

func (s *Session) notify() {
	if s.onChange == nil {
		return
	}
	s.onChange(s.State())
}

// Login exchanges credentials for tokens and stores them. It returns once the
// tokens are stored; the profile is then fetched, but a failed profile fetch
// does not fail the login. On error nothing is stored.
func (s *Session) Login(ctx context.Context, email, password string) error {
	s.mu.Lock()
	if s.loggingIn {
		s.mu.Unlock()
		return ErrLoginInProgress
	}
	s.loggingIn = true
	s.mu.Unlock()
	s.notify()

	entry := s.log.WithField("email", logging.Email(email))
	tokens, err := s.api.Login(ctx, email, password)
	if err == nil {
		err = s.store.SetTokens(tokens)
	}

	s.mu.Lock()
	s.loggingIn = false
	if err == nil {
		// another account's data must not leak into this one
		s.user = nil
		s.settled = false
		s.cache.Clear()
	}
	s.mu.Unlock()

	if err != nil {
		entry.WithError(err).Warn("login failed")
		s.notify()
		return fmt.Errorf("login: %w", err)
	}
	entry.Info("logged in")
	s.notify()

	if _, err := s.CurrentUser(ctx); err != nil {
		entry.WithError(err).Warn("profile fetch after login failed")
	}
	return nil
}

// Logout clears the tokens, the cached profile and every other cached
// response. It makes no network call.
func (s *Session) Logout() {
	if err := s.store.Clear(); err != nil {
		s.log.WithError(err).Error("failed to clear stored tokens")
	}

	s.mu.Lock()
	s.user = nil
	s.settled = false
	s.cache.Clear()
	s.mu.Unlock()

	s.log.Info("logged out")
	s.notify()
}

// CurrentUser returns the profile of the logged-in user, fetching it when it
// is not cached.
func (s *Session) CurrentUser(ctx context.Context) (*dashboard.User, error) {
	s.mu.Lock()
	if !s.hasToken() {
		s.mu.Unlock()
		return nil, ErrNotLoggedIn
	}
	s.fetching++
	s.mu.Unlock()

	u, err := cache.Fetch(ctx, s.cache, dashboard.MeCacheKey, func(ctx context.Context) (*dashboard.User, error) {
		var u dashboard.User
		if err := s.api.Me(ctx, &u); err != nil {
			return nil, err
		}
		return &u, nil
	})

	s.mu.Lock()
	s.fetching--
	if s.hasToken() {
		s.settled = true
		if err == nil {
			s.user = u
		}
	}
	s.mu.Unlock()
	s.notify()

	if err != nil {
		return nil, fmt.Errorf("fetch current user: %w", err)
	}
	return u, nil
}

// RefreshUser drops the cached profile and fetches it again.
func (s *Session) RefreshUser(ctx context.Context) (*dashboard.User, error) {
	s.cache.Delete(dashboard.MeCacheKey)
	return s.CurrentUser(ctx)
}
