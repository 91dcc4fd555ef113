package apiclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
)

var (
	// ErrUnauthorized matches any *APIError with status 401.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden matches any *APIError with status 403.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound matches any *APIError with status 404.
	ErrNotFound = errors.New("not found")
	// ErrRefreshTokenExpired wraps every failed refresh exchange, whether the
	// backend rejected the token or the call never reached it.
	ErrRefreshTokenExpired = errors.New("refresh token expired or invalid")
	// ErrNoAccessToken is returned by the token source when nobody is logged in.
	ErrNoAccessToken = errors.New("no access token stored")
)

// maxErrorBody caps how much of a failed response is kept on an APIError.
const maxErrorBody = 64 << 10

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Method     string
	Path       string
	Body       []byte
}

// newAPIError drains and closes resp.Body.
func newAPIError(req *http.Request, resp *http.Response) *APIError {
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return &APIError{
		StatusCode: resp.StatusCode,
		Method:     req.Method,
		Path:       req.URL.Path,
		Body:       body,
	}
}

func (e *APIError) Error() string {
	if d := e.Detail(); d != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.Path, e.StatusCode, d)
	}
	return fmt.Sprintf("%s %s: status %d", e.Method, e.Path, e.StatusCode)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	}
	return false
}

// Detail extracts the backend's human readable message: the "detail" field
// when present, otherwise field errors joined as "field: message", otherwise
// the raw body when it is short plain text.
func (e *APIError) Detail() string {
	if len(e.Body) == 0 {
		return ""
	}

	var generic map[string]any
	if err := json.Unmarshal(e.Body, &generic); err != nil {
		s := strings.TrimSpace(string(e.Body))
		if len(s) > 200 || strings.HasPrefix(s, "<") {
			return ""
		}
		return s
	}

	if d, ok := generic["detail"].(string); ok {
		return d
	}

	var parts []string
	for field, v := range generic {
		switch msg := v.(type) {
		case string:
			parts = append(parts, field+": "+msg)
		case []any:
			for _, m := range msg {
				if s, ok := m.(string); ok {
					parts = append(parts, field+": "+s)
				}
			}
		}
	}
	if len(parts) == 0 {
		return ""
	}
	slices.Sort(parts)
	return strings.Join(parts, "; ")
}
