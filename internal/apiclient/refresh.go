package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/go-authgate/committee-cli/internal/logging"
	"github.com/go-authgate/committee-cli/internal/session"
)

// Auth endpoints, relative to the API base.
const (
	LoginPath    = "auth/login/"
	RefreshPath  = "auth/token/refresh/"
	RegisterPath = "auth/users/"
	MePath       = "auth/users/me/"
)

// excluded reports whether a 401 on req must be returned as is. Login and
// refresh failures are the very failures a refresh cannot fix, and creating a
// user is an anonymous call.
func (c *Client) excluded(req *http.Request) bool {
	rel, ok := c.relativePath(req.URL.Path)
	if !ok {
		return false
	}
	switch rel {
	case LoginPath, RefreshPath:
		return true
	case RegisterPath:
		return req.Method == http.MethodPost
	}
	return false
}

// relativePath strips the API base path. Trailing slashes are normalized so
// "auth/login" and "auth/login/" match the same route.
func (c *Client) relativePath(p string) (string, bool) {
	if !strings.HasPrefix(p, c.base.Path) {
		return "", false
	}
	rel := strings.TrimPrefix(p, c.base.Path)
	if rel != "" && !strings.HasSuffix(rel, "/") {
		rel += "/"
	}
	return rel, true
}

// refresh exchanges refreshToken for a new access token and stores it.
// Concurrent callers holding the same refresh token share one exchange, and a
// caller arriving after another exchange already replaced sentWith reuses the
// stored token instead of starting a new one.
func (c *Client) refresh(ctx context.Context, refreshToken, sentWith string) (string, error) {
	v, err, shared := c.refreshGroup.Do(refreshToken, func() (any, error) {
		if t, ok := c.store.Tokens(); ok && t.Access != sentWith {
			return t.Access, nil
		}
		return c.exchangeRefreshToken(ctx, refreshToken)
	})
	if err != nil {
		return "", err
	}
	access := v.(string)
	c.log.WithFields(logrus.Fields{
		"shared": shared,
		"token":  logging.Token(access),
	}).Info("access token refreshed")
	return access, nil
}

type refreshResponse struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// exchangeRefreshToken posts to the refresh endpoint directly through the
// single-send transport, bypassing the 401 handling in send. The exchange is
// shared by every caller waiting on it, so it is detached from the caller's
// cancellation and bounded by its own timeout.
func (c *Client) exchangeRefreshToken(ctx context.Context, refreshToken string) (string, error) {
	reqCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), min(c.timeout, refreshTokenTimeout))
	defer cancel()

	endpoint, err := c.ResolveRef(RefreshPath)
	if err != nil {
		return "", err
	}
	payload, err := json.Marshal(map[string]string{"refresh": refreshToken})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(
		reqCtx,
		http.MethodPost,
		endpoint.String(),
		bytes.NewReader(payload),
	)
	if err != nil {
		return "", fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.once.DoWithContext(reqCtx, req)
	if err != nil {
		return "", fmt.Errorf("%w: refresh request failed: %w", ErrRefreshTokenExpired, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read refresh response: %w", ErrRefreshTokenExpired, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: %w", ErrRefreshTokenExpired, &oauth2.RetrieveError{
			Response: resp,
			Body:     body,
		})
	}

	var tr refreshResponse
	if err := json.Unmarshal(body, &tr); err != nil {
		return "", fmt.Errorf("%w: failed to parse refresh response: %w", ErrRefreshTokenExpired, err)
	}
	if tr.Access == "" {
		return "", fmt.Errorf("%w: refresh response carries no access token", ErrRefreshTokenExpired)
	}

	// Rotation mode returns a new refresh token; fixed mode keeps the old one.
	if tr.Refresh != "" && tr.Refresh != refreshToken {
		err = c.store.SetTokens(session.Tokens{Access: tr.Access, Refresh: tr.Refresh})
	} else {
		err = c.store.SetAccess(tr.Access)
	}
	if err != nil {
		// the new token still authorizes the retry; it just won't survive a restart
		c.log.WithError(err).Error("failed to store refreshed access token")
		if errors.Is(err, session.ErrNoTokens) {
			return "", fmt.Errorf("%w: session cleared during refresh", ErrRefreshTokenExpired)
		}
	}
	return tr.Access, nil
}
