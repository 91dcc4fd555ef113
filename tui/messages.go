package tui

// MsgBanner signals that the banner/title should be displayed.
type MsgBanner struct{ Server string }

// MsgSessionRestored signals that stored tokens were found.
type MsgSessionRestored struct{ Path string }

// MsgNoSession signals that no tokens are stored for the server.
type MsgNoSession struct{}

// MsgLoggingIn signals that a login request is in flight.
type MsgLoggingIn struct{ Email string }

// MsgLoginOK signals that tokens were obtained and stored.
type MsgLoginOK struct{}

// MsgLoginFailed signals that the backend refused the credentials.
type MsgLoginFailed struct{ Err error }

// MsgProfileReady signals that the current user profile was fetched.
type MsgProfileReady struct {
	Name string
	Role string
}

// MsgProfileUnavailable signals that the profile fetch failed softly.
type MsgProfileUnavailable struct{ Err error }

// MsgAccessTokenRejected signals that the access token was rejected (401).
type MsgAccessTokenRejected struct{}

// MsgTokenRefreshed signals that a silent refresh succeeded and the request is retried.
type MsgTokenRefreshed struct{}

// MsgRefreshFailed signals that token refresh failed.
type MsgRefreshFailed struct{ Err error }

// MsgSessionExpired signals that the session was cleared and a new login is needed.
type MsgSessionExpired struct{}

// MsgLoading signals that a resource is being fetched.
type MsgLoading struct{ What string }

// MsgPageFetched signals that one page of a collection was consumed.
type MsgPageFetched struct {
	Ref   string
	Page  int
	Items int
}

// MsgListReady signals that a whole collection was fetched.
type MsgListReady struct {
	Name string
	Rows int
}

// MsgLoggedOut signals that the local session was cleared.
type MsgLoggedOut struct{}

// MsgDone signals successful completion of the command.
type MsgDone struct{ Summary string }

// MsgFatal signals a fatal error that should terminate the command.
type MsgFatal struct{ Err error }
