// Package store talks to the remote contents API that hosts pictures and
// mirrored JSON state: reads and writes with per-path SHA optimistic
// concurrency, a one-hertz mirror poller, and a scheduled state backup.
package store

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"golang.org/x/oauth2"

	"github.com/tinyland-inc/cardsmith/pkg/faults"
	"github.com/tinyland-inc/cardsmith/pkg/logger"
)

// ErrNotFound reports a path absent from the repository.
var ErrNotFound = errors.New("store: path not found")

// ErrRateLimited reports a 403 from the API. The mirror poller backs off
// on it.
var ErrRateLimited = errors.New("store: rate limited")

const (
	defaultBaseURL = "https://api.github.com"
	acceptHeader   = "application/vnd.github.v3+json"

	// Network and 5xx failures retry this many times in total.
	maxAttempts = 3
	// Conflicted puts re-read the SHA and retry this many times.
	maxConflictRetries = 3
)

// Client reads and writes one repository branch through the contents API.
// Safe for concurrent use.
type Client struct {
	http   *resty.Client
	owner  string
	repo   string
	branch string
}

// NewClient builds a client for owner/repo on branch. The token is carried
// as `Authorization: token <tok>` on every request.
func NewClient(token, owner, repo, branch string) *Client {
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "token"})
	rc := resty.NewWithClient(oauth2.NewClient(context.Background(), src)).
		SetBaseURL(defaultBaseURL).
		SetHeader("Accept", acceptHeader).
		SetTimeout(30 * time.Second)
	return &Client{http: rc, owner: owner, repo: repo, branch: branch}
}

// SetBaseURL points the client at a different API endpoint. Tests use this
// against a local server.
func (c *Client) SetBaseURL(url string) { c.http.SetBaseURL(url) }

type contentsResponse struct {
	SHA     string `json:"sha"`
	Content string `json:"content"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

func (c *Client) contentsPath(path string) string {
	return fmt.Sprintf("/repos/%s/%s/contents/%s", c.owner, c.repo, path)
}

// Get fetches a file and its SHA token. Base64 never reaches the caller.
func (c *Client) Get(ctx context.Context, path string) ([]byte, string, error) {
	var out contentsResponse
	err := c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetQueryParam("ref", c.branch).
			SetResult(&out).
			Get(c.contentsPath(path))
		if err != nil {
			return err
		}
		return c.checkStatus(resp)
	})
	if err != nil {
		return nil, "", err
	}

	raw, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(out.Content, "\n", ""))
	if err != nil {
		return nil, "", faults.New(faults.StoreError, err)
	}
	return raw, out.SHA, nil
}

// StatSHA returns only the SHA token for a path.
func (c *Client) StatSHA(ctx context.Context, path string) (string, error) {
	_, sha, err := c.Get(ctx, path)
	return sha, err
}

// Put writes data at path with the commit message. When the path already
// exists its current SHA is sent; a stale SHA answers 409, on which the
// write re-reads and retries a bounded number of times.
func (c *Client) Put(ctx context.Context, path string, data []byte, message string) error {
	sha, err := c.StatSHA(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return err
	}

	body := putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(data),
		Branch:  c.branch,
	}

	for attempt := 0; ; attempt++ {
		body.SHA = sha
		var conflict bool
		err := c.withRetry(ctx, func() error {
			resp, err := c.http.R().
				SetContext(ctx).
				SetBody(body).
				Put(c.contentsPath(path))
			if err != nil {
				return err
			}
			if resp.StatusCode() == http.StatusConflict {
				conflict = true
				return nil
			}
			return c.checkStatus(resp)
		})
		if err != nil {
			return err
		}
		if !conflict {
			return nil
		}
		if attempt+1 >= maxConflictRetries {
			return faults.Newf(faults.StoreConflict, "put %s: sha conflict after %d retries", path, maxConflictRetries)
		}
		logger.WarnCF("store", "sha conflict, re-reading", map[string]any{"path": path, "attempt": attempt + 1})
		sha, err = c.StatSHA(ctx, path)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
	}
}

// Delete removes path from the repository. Missing paths are not an error.
func (c *Client) Delete(ctx context.Context, path, message string) error {
	sha, err := c.StatSHA(ctx, path)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return c.withRetry(ctx, func() error {
		resp, err := c.http.R().
			SetContext(ctx).
			SetBody(map[string]string{"message": message, "sha": sha, "branch": c.branch}).
			Delete(c.contentsPath(path))
		if err != nil {
			return err
		}
		return c.checkStatus(resp)
	})
}

// checkStatus maps response codes: 2xx ok, 404 not-found, 5xx retryable,
// remaining 4xx fatal.
func (c *Client) checkStatus(resp *resty.Response) error {
	code := resp.StatusCode()
	switch {
	case code >= 200 && code < 300:
		return nil
	case code == http.StatusNotFound:
		return backoff.Permanent(ErrNotFound)
	case code == http.StatusForbidden:
		return backoff.Permanent(ErrRateLimited)
	case code >= 500:
		return faults.Newf(faults.StoreError, "%s %s: status %d", resp.Request.Method, resp.Request.URL, code)
	default:
		return backoff.Permanent(faults.Newf(faults.StoreError, "%s %s: status %d", resp.Request.Method, resp.Request.URL, code))
	}
}

// withRetry runs op with exponential backoff for network and 5xx errors,
// three attempts in total.
func (c *Client) withRetry(ctx context.Context, op func() error) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxAttempts-1), ctx)
	return backoff.Retry(op, policy)
}

// RawURL is the canonical public URL for a file on this client's branch.
func (c *Client) RawURL(path string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", c.owner, c.repo, c.branch, path)
}
