package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// NewRequest builds a request for ref (relative to the API base) with in
// encoded as JSON. The body is replayable so the request survives a retry.
func (c *Client) NewRequest(ctx context.Context, method, ref string, in any) (*http.Request, error) {
	u, err := c.ResolveRef(ref)
	if err != nil {
		return nil, err
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request body: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// DoJSON sends req and decodes a JSON response into out (skipped when out is
// nil or the response has no content).
func (c *Client) DoJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil || resp.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("failed to decode %s %s response: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, ref string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.NewRequest(ctx, method, ref, in)
	if err != nil {
		return err
	}
	return c.DoJSON(req, out)
}

// GetJSON fetches ref and decodes the body into out.
func (c *Client) GetJSON(ctx context.Context, ref string, out any) error {
	return c.call(ctx, http.MethodGet, ref, nil, out)
}

// PostJSON posts in to ref and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, ref string, in, out any) error {
	return c.call(ctx, http.MethodPost, ref, in, out)
}

// PatchJSON sends a partial update.
func (c *Client) PatchJSON(ctx context.Context, ref string, in, out any) error {
	return c.call(ctx, http.MethodPatch, ref, in, out)
}

// Delete removes the resource at ref.
func (c *Client) Delete(ctx context.Context, ref string) error {
	return c.call(ctx, http.MethodDelete, ref, nil, nil)
}
