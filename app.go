package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/sirupsen/logrus"

	"github.com/go-authgate/committee-cli/internal/apiclient"
	"github.com/go-authgate/committee-cli/internal/auth"
	"github.com/go-authgate/committee-cli/internal/cache"
	"github.com/go-authgate/committee-cli/internal/config"
	"github.com/go-authgate/committee-cli/internal/dashboard"
	"github.com/go-authgate/committee-cli/internal/logging"
	"github.com/go-authgate/committee-cli/internal/pagination"
	"github.com/go-authgate/committee-cli/internal/session"
	"github.com/go-authgate/committee-cli/tui"
)

const (
	cmdLogin      = "login"
	cmdLogout     = "logout"
	cmdWhoAmI     = "whoami"
	cmdResources  = "resources"
	cmdList       = "list"
	cmdSubmit     = "submit"
	cmdFeedback   = "feedback"
	cmdAttend     = "attend"
	cmdJoin       = "join"
	cmdCreateUser = "create-user"
)

var (
	errUsage       = errors.New("invalid usage")
	errNotLoggedIn = errors.New("not logged in, run 'login' first")
)

// cliNavigator stands in for the login page: a command that loses its session
// cannot navigate anywhere, so it tells the user and remembers it happened.
type cliNavigator struct {
	d       tui.Displayer
	onLogin atomic.Bool
	expired atomic.Bool
}

func (n *cliNavigator) OnLoginPage() bool { return n.onLogin.Load() }

func (n *cliNavigator) ToLogin() {
	if n.expired.Swap(true) {
		return
	}
	n.d.SessionExpired()
}

// app wires the client packages together for one command.
type app struct {
	cfg    *config.Config
	d      tui.Displayer
	log    *logrus.Logger
	nav    *cliNavigator
	store  *session.FileStore
	client *apiclient.Client
	sess   *auth.Session
	dash   *dashboard.Dashboard

	out    io.Writer
	styled bool
}

func newApp(cfg *config.Config, d tui.Displayer, log *logrus.Logger, clientOpts ...apiclient.Option) (*app, error) {
	if log == nil {
		log = logging.Discard()
	}

	// tokens are kept per API base, so one file can serve several servers
	store, err := session.OpenFileStore(cfg.TokenFile, cfg.ServerURL)
	if err != nil {
		return nil, err
	}

	nav := &cliNavigator{d: d}
	opts := append([]apiclient.Option{
		apiclient.WithNavigator(nav),
		apiclient.WithObserver(d),
		apiclient.WithLogger(log),
		apiclient.WithTimeout(cfg.RequestTimeout),
	}, clientOpts...)
	client, err := apiclient.New(cfg.ServerURL, store, opts...)
	if err != nil {
		return nil, err
	}

	c := cache.New(cfg.CacheTTL)
	walker := pagination.NewWalker(client, client.Marker(), log)
	walker.Observer = d
	sess := auth.New(client, store, c, auth.WithLogger(log), auth.WithStateListener(func(s auth.State) {
		log.WithField("state", s).Debug("session state changed")
	}))

	return &app{
		cfg:    cfg,
		d:      d,
		log:    log,
		nav:    nav,
		store:  store,
		client: client,
		sess:   sess,
		dash:   dashboard.New(client, walker, c, dashboard.Options{PageSize: cfg.PageSize, Log: log}),
		out:    io.Discard,
	}, nil
}

func (a *app) exec(ctx context.Context, args []string, creds credentials) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: missing command", errUsage)
	}
	cmd, rest := args[0], args[1:]

	switch cmd {
	case cmdLogin:
		return a.login(ctx, creds)
	case cmdLogout:
		return a.logout()
	case cmdWhoAmI:
		return a.whoami(ctx)
	case cmdResources:
		return a.resources(ctx)
	case cmdList:
		if len(rest) != 1 {
			return fmt.Errorf("%w: list takes one resource name", errUsage)
		}
		return a.list(ctx, dashboard.Name(rest[0]))
	case cmdSubmit:
		return a.submit(ctx, rest)
	case cmdFeedback:
		return a.feedback(ctx, rest)
	case cmdAttend:
		return a.attend(ctx, rest)
	case cmdJoin:
		return a.join(ctx, rest)
	case cmdCreateUser:
		return a.createUser(ctx, rest, creds)
	}
	return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
}

func (a *app) login(ctx context.Context, creds credentials) error {
	// a 401 here is a bad password, not an expired session
	a.nav.onLogin.Store(true)

	a.d.LoggingIn(creds.email)
	if err := a.sess.Login(ctx, creds.email, creds.password); err != nil {
		a.d.LoginFailed(err)
		return err
	}
	a.d.LoginOK()

	if u := a.sess.User(); u != nil {
		a.d.ProfileReady(u.DisplayName(), roleOf(u))
	} else {
		a.d.ProfileUnavailable(dashboard.ErrNoProfile)
	}
	a.d.Done("Tokens saved to " + a.store.Path())
	return nil
}

func (a *app) logout() error {
	a.nav.onLogin.Store(true)
	a.sess.Logout()
	a.d.LoggedOut()
	a.d.Done("")
	return nil
}

// requireSession fails fast when no token is stored.
func (a *app) requireSession() error {
	if a.sess.State() == auth.Anonymous {
		a.d.NoSession()
		return errNotLoggedIn
	}
	a.d.SessionRestored(a.store.Path())
	return nil
}

// currentUser fetches the profile softly: a failure other than a lost
// session still lets the command continue with the member view.
func (a *app) currentUser(ctx context.Context) (*dashboard.User, error) {
	u, err := a.sess.CurrentUser(ctx)
	if err == nil {
		a.d.ProfileReady(u.DisplayName(), roleOf(u))
		return u, nil
	}
	if !a.sess.IsAuthenticated() {
		return nil, err
	}
	a.d.ProfileUnavailable(err)
	return nil, nil
}

func (a *app) whoami(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	u, err := a.sess.CurrentUser(ctx)
	if err != nil {
		return err
	}
	a.d.ProfileReady(u.DisplayName(), roleOf(u))
	if err := tui.RenderTable(a.out, []string{"ID", "EMAIL", "NAME", "ROLE"}, [][]string{u.Row()}, a.styled); err != nil {
		return err
	}
	a.d.Done("")
	return nil
}

func (a *app) resources(ctx context.Context) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	u, err := a.currentUser(ctx)
	if err != nil {
		return err
	}
	for _, name := range a.dash.ViewFor(u).Resources() {
		fmt.Fprintln(a.out, name)
	}
	a.d.Done("")
	return nil
}

func (a *app) list(ctx context.Context, name dashboard.Name) error {
	if err := a.requireSession(); err != nil {
		return err
	}
	u, err := a.currentUser(ctx)
	if err != nil {
		return err
	}

	a.d.Loading(string(name))
	tbl, err := a.dash.ViewFor(u).Table(ctx, name)
	if err != nil {
		return err
	}
	a.d.ListReady(string(name), len(tbl.Rows))

	if err := tui.RenderTable(a.out, tbl.Columns, tbl.Rows, a.styled); err != nil {
		return err
	}
	a.d.Done("")
	return nil
}

func (a *app) submit(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: submit <task-id> <link> [notes]", errUsage)
	}
	taskID, err := parseID("task id", args[0])
	if err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	sub, err := a.dash.SubmitTask(ctx, taskID, args[1], strings.Join(args[2:], " "))
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Submission %d created for task %d", sub.ID, sub.TaskID))
	return nil
}

func (a *app) feedback(ctx context.Context, args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("%w: feedback <submission-id> <comment> [score]", errUsage)
	}
	submissionID, err := parseID("submission id", args[0])
	if err != nil {
		return err
	}
	var score *int
	if len(args) > 2 {
		n, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("%w: score must be a number, got %q", errUsage, args[2])
		}
		score = &n
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	fb, err := a.dash.GiveFeedback(ctx, submissionID, args[1], score)
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Feedback %d added to submission %d", fb.ID, fb.SubmissionID))
	return nil
}

func (a *app) attend(ctx context.Context, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("%w: attend <session-id> <user-id> <status>", errUsage)
	}
	sessionID, err := parseID("session id", args[0])
	if err != nil {
		return err
	}
	userID, err := parseID("user id", args[1])
	if err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	u, err := a.currentUser(ctx)
	if err != nil {
		return err
	}
	if !u.IsAdmin() {
		return fmt.Errorf("attend: %w", dashboard.ErrForbidden)
	}
	rec, err := a.dash.MarkAttendance(ctx, sessionID, userID, args[2])
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("User %d marked %s for session %d", rec.UserID, rec.Status, rec.SessionID))
	return nil
}

func (a *app) join(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("%w: join <committee-id>", errUsage)
	}
	committeeID, err := parseID("committee id", args[0])
	if err != nil {
		return err
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	m, err := a.dash.JoinCommittee(ctx, committeeID)
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Joined committee %d", m.CommitteeID))
	return nil
}

// createUser registers an account from the admin's terminal. The new user's
// password arrives in creds, read the same way as a login password.
func (a *app) createUser(ctx context.Context, args []string, creds credentials) error {
	if len(args) < 1 || len(args) > 4 {
		return fmt.Errorf("%w: create-user <email> [first-name] [last-name] [admin|member]", errUsage)
	}
	in := dashboard.NewUser{Email: args[0], Password: creds.password}
	if len(args) > 1 {
		in.FirstName = args[1]
	}
	if len(args) > 2 {
		in.LastName = args[2]
	}
	if len(args) > 3 {
		in.Role = dashboard.Role(strings.ToLower(args[3]))
	}
	if err := a.requireSession(); err != nil {
		return err
	}
	u, err := a.currentUser(ctx)
	if err != nil {
		return err
	}
	if !u.IsAdmin() {
		return fmt.Errorf("create-user: %w", dashboard.ErrForbidden)
	}
	created, err := a.dash.CreateUser(ctx, in)
	if err != nil {
		return err
	}
	a.d.Done(fmt.Sprintf("Created user %d (%s)", created.ID, created.Email))
	return nil
}

func parseID(what, s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number, got %q", errUsage, what, s)
	}
	return n, nil
}

func roleOf(u *dashboard.User) string {
	if u.IsAdmin() {
		return string(dashboard.RoleAdmin)
	}
	return string(dashboard.RoleMember)
}
