package tui

import (
	"fmt"
	"io"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all status output of a command. Data output (tables)
// goes to stdout separately.
//
// Every implementation also satisfies apiclient.Observer and
// pagination.Observer, so the token lifecycle and page walks show up live.
type Displayer interface {
	Banner(server string)
	SessionRestored(path string)
	NoSession()
	LoggingIn(email string)
	LoginOK()
	LoginFailed(err error)
	ProfileReady(name, role string)
	ProfileUnavailable(err error)
	AccessTokenRejected()
	TokenRefreshed()
	RefreshFailed(err error)
	SessionExpired()
	Loading(what string)
	PageFetched(ref string, page, items int)
	ListReady(name string, rows int)
	LoggedOut()
	Done(summary string)
	Fatal(err error)
}

// PlainDisplayer writes plain text output to w.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer that writes to w.
func NewPlainDisplayer(w io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w}
}

func (p *PlainDisplayer) Banner(server string) {
	fmt.Fprintf(p.w, "=== Committee Dashboard CLI (%s) ===\n", server)
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) SessionRestored(path string) {
	fmt.Fprintf(p.w, "Using stored session from %s\n", path)
}

func (p *PlainDisplayer) NoSession() {
	fmt.Fprintln(p.w, "Not logged in.")
}

func (p *PlainDisplayer) LoggingIn(email string) {
	fmt.Fprintf(p.w, "Logging in as %s...\n", email)
}

func (p *PlainDisplayer) LoginOK() {
	fmt.Fprintln(p.w, "Login successful!")
}

func (p *PlainDisplayer) LoginFailed(err error) {
	fmt.Fprintf(p.w, "Login failed: %v\n", err)
}

func (p *PlainDisplayer) ProfileReady(name, role string) {
	fmt.Fprintf(p.w, "Signed in as %s (%s)\n", name, role)
}

func (p *PlainDisplayer) ProfileUnavailable(err error) {
	fmt.Fprintf(p.w, "Warning: could not load profile: %v\n", err)
}

func (p *PlainDisplayer) AccessTokenRejected() {
	fmt.Fprintln(p.w, "Access token rejected (401), refreshing...")
}

func (p *PlainDisplayer) TokenRefreshed() {
	fmt.Fprintln(p.w, "Token refreshed, retrying request...")
}

func (p *PlainDisplayer) RefreshFailed(err error) {
	fmt.Fprintf(p.w, "Refresh failed: %v\n", err)
}

func (p *PlainDisplayer) SessionExpired() {
	fmt.Fprintln(p.w, "Session expired. Run 'login' to sign in again.")
}

func (p *PlainDisplayer) Loading(what string) {
	fmt.Fprintf(p.w, "Fetching %s...\n", what)
}

func (p *PlainDisplayer) PageFetched(_ string, page, items int) {
	if page > 1 {
		fmt.Fprintf(p.w, "  page %d: %d items\n", page, items)
	}
}

func (p *PlainDisplayer) ListReady(name string, rows int) {
	fmt.Fprintf(p.w, "%d %s\n", rows, name)
}

func (p *PlainDisplayer) LoggedOut() {
	fmt.Fprintln(p.w, "Logged out.")
}

func (p *PlainDisplayer) Done(summary string) {
	if summary != "" {
		fmt.Fprintln(p.w, summary)
	}
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner(_ string)                {}
func (NoopDisplayer) SessionRestored(_ string)       {}
func (NoopDisplayer) NoSession()                     {}
func (NoopDisplayer) LoggingIn(_ string)             {}
func (NoopDisplayer) LoginOK()                       {}
func (NoopDisplayer) LoginFailed(_ error)            {}
func (NoopDisplayer) ProfileReady(_, _ string)       {}
func (NoopDisplayer) ProfileUnavailable(_ error)     {}
func (NoopDisplayer) AccessTokenRejected()           {}
func (NoopDisplayer) TokenRefreshed()                {}
func (NoopDisplayer) RefreshFailed(_ error)          {}
func (NoopDisplayer) SessionExpired()                {}
func (NoopDisplayer) Loading(_ string)               {}
func (NoopDisplayer) PageFetched(_ string, _, _ int) {}
func (NoopDisplayer) ListReady(_ string, _ int)      {}
func (NoopDisplayer) LoggedOut()                     {}
func (NoopDisplayer) Done(_ string)                  {}
func (NoopDisplayer) Fatal(_ error)                  {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(server string) {
	t.p.Send(MsgBanner{Server: server})
}

func (t *ProgramDisplayer) SessionRestored(path string) {
	t.p.Send(MsgSessionRestored{Path: path})
}

func (t *ProgramDisplayer) NoSession() {
	t.p.Send(MsgNoSession{})
}

func (t *ProgramDisplayer) LoggingIn(email string) {
	t.p.Send(MsgLoggingIn{Email: email})
}

func (t *ProgramDisplayer) LoginOK() {
	t.p.Send(MsgLoginOK{})
}

func (t *ProgramDisplayer) LoginFailed(err error) {
	t.p.Send(MsgLoginFailed{Err: err})
}

func (t *ProgramDisplayer) ProfileReady(name, role string) {
	t.p.Send(MsgProfileReady{Name: name, Role: role})
}

func (t *ProgramDisplayer) ProfileUnavailable(err error) {
	t.p.Send(MsgProfileUnavailable{Err: err})
}

func (t *ProgramDisplayer) AccessTokenRejected() {
	t.p.Send(MsgAccessTokenRejected{})
}

func (t *ProgramDisplayer) TokenRefreshed() {
	t.p.Send(MsgTokenRefreshed{})
}

func (t *ProgramDisplayer) RefreshFailed(err error) {
	t.p.Send(MsgRefreshFailed{Err: err})
}

func (t *ProgramDisplayer) SessionExpired() {
	t.p.Send(MsgSessionExpired{})
}

func (t *ProgramDisplayer) Loading(what string) {
	t.p.Send(MsgLoading{What: what})
}

func (t *ProgramDisplayer) PageFetched(ref string, page, items int) {
	t.p.Send(MsgPageFetched{Ref: ref, Page: page, Items: items})
}

func (t *ProgramDisplayer) ListReady(name string, rows int) {
	t.p.Send(MsgListReady{Name: name, Rows: rows})
}

func (t *ProgramDisplayer) LoggedOut() {
	t.p.Send(MsgLoggedOut{})
}

func (t *ProgramDisplayer) Done(summary string) {
	t.p.Send(MsgDone{Summary: summary})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
