package apiclient

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/go-authgate/committee-cli/internal/session"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Login exchanges credentials for a token pair. It does not store the pair.
func (c *Client) Login(ctx context.Context, email, password string) (session.Tokens, error) {
	var lr loginResponse
	if err := c.PostJSON(ctx, LoginPath, loginRequest{Email: email, Password: password}, &lr); err != nil {
		return session.Tokens{}, err
	}
	if lr.Access == "" || lr.Refresh == "" {
		return session.Tokens{}, errors.New("login response is missing tokens")
	}
	return session.Tokens{Access: lr.Access, Refresh: lr.Refresh}, nil
}

// Register creates a user account. It is an anonymous call: a 401 here never
// triggers a refresh.
func (c *Client) Register(ctx context.Context, in, out any) error {
	if err := c.PostJSON(ctx, RegisterPath, in, out); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

// Me fetches the profile of the logged-in user into out.
func (c *Client) Me(ctx context.Context, out any) error {
	return c.GetJSON(ctx, MePath, out)
}

// TokenSource exposes the stored access token, for code that wants to build
// its own oauth2-aware transport.
func (c *Client) TokenSource() oauth2.TokenSource {
	return storeTokenSource{store: c.store}
}

type storeTokenSource struct {
	store session.Store
}

func (s storeTokenSource) Token() (*oauth2.Token, error) {
	t, ok := s.store.Tokens()
	if !ok {
		return nil, ErrNoAccessToken
	}
	return &oauth2.Token{
		AccessToken:  t.Access,
		RefreshToken: t.Refresh,
		TokenType:    "Bearer",
	}, nil
}
