package github

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/agentstation/policysync/pkg/errors"
)

// getJSON performs an authenticated GET and decodes the JSON response.
func (c *Client) getJSON(ctx context.Context, url string, target any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errors.WrapResource("create", "request", url, err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	c.addHeaders(req)

	resp, err := c.http.Do(req)
	if err != nil {
		return transportError(url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return c.statusError(resp, url)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.WrapIO("read", url, err)
	}
	if err := json.Unmarshal(body, target); err != nil {
		return errors.WrapParse("json", url, err)
	}
	return nil
}

// transportError wraps a failed round trip. Deadline and cancellation
// failures map to their sentinels so callers can tell a timed-out source
// apart from one that rejected the request.
func transportError(url string, err error) error {
	apiErr := &errors.APIError{
		Source:   sourceName,
		Endpoint: url,
		Message:  "request failed",
		Err:      err,
	}
	switch {
	case stderrors.Is(err, context.DeadlineExceeded):
		apiErr.Err = errors.ErrTimeout
	case stderrors.Is(err, context.Canceled):
		apiErr.Err = errors.ErrCanceled
	}
	return apiErr
}

// addHeaders sets the common GitHub API headers.
func (c *Client) addHeaders(req *http.Request) {
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
}

// statusError maps a non-200 response to the error taxonomy: not-found,
// rate-limited and transient upstream failures stay distinguishable.
func (c *Client) statusError(resp *http.Response, url string) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	apiErr := &errors.APIError{
		Source:     sourceName,
		StatusCode: resp.StatusCode,
		Endpoint:   url,
		Message:    string(body),
	}

	// GitHub signals primary rate limiting with 403 and an exhausted quota
	// header rather than 429.
	if resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0" {
		apiErr.Err = errors.ErrRateLimited
	}

	return apiErr
}
