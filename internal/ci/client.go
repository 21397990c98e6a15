// Package ci is a small GitHub REST client covering the Actions and Releases
// calls needed to build remotely and fetch the result.
package ci

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/pkgbuilder/internal/foundation/errors"
)

// ProgressFunc receives download progress. total is -1 when unknown.
type ProgressFunc func(written, total int64)

// API is the set of calls the remote coordinator depends on.
type API interface {
	GetBranch(ctx context.Context, owner, repo, branch string) (*Branch, error)
	DispatchWorkflow(ctx context.Context, owner, repo, workflow, ref string) error
	ListRuns(ctx context.Context, owner, repo, branch string, perPage int) ([]WorkflowRun, error)
	GetRun(ctx context.Context, owner, repo string, runID int64) (*WorkflowRun, error)
	GetRunLogsURL(ctx context.Context, owner, repo string, runID int64) (string, error)
	ListReleases(ctx context.Context, owner, repo string) ([]Release, error)
	Download(ctx context.Context, rawURL string, w io.Writer, progress ProgressFunc) (int64, error)
}

// Client talks to the GitHub REST API. Authentication and retries are the
// concern of the supplied http.Client.
type Client struct {
	httpClient *http.Client
	apiURL     string
}

var _ API = (*Client)(nil)

// NewClient returns a client rooted at apiURL.
func NewClient(httpClient *http.Client, apiURL string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{httpClient: httpClient, apiURL: apiURL}
}

func (c *Client) GetBranch(ctx context.Context, owner, repo, branch string) (*Branch, error) {
	req, err := c.newRequest(ctx, http.MethodGet, repoPath(owner, repo, "branches", branch), nil)
	if err != nil {
		return nil, err
	}
	var b Branch
	if err := c.doRequest(req, &b); err != nil {
		return nil, err
	}
	if b.Commit.SHA == "" {
		return nil, errors.RemoteError("branch response has no commit sha").
			WithContext("branch", branch).Build()
	}
	return &b, nil
}

func (c *Client) DispatchWorkflow(ctx context.Context, owner, repo, workflow, ref string) error {
	req, err := c.newRequest(ctx, http.MethodPost,
		repoPath(owner, repo, "actions", "workflows", workflow, "dispatches"), dispatchRequest{Ref: ref})
	if err != nil {
		return err
	}
	return c.doRequest(req, nil)
}

func (c *Client) ListRuns(ctx context.Context, owner, repo, branch string, perPage int) ([]WorkflowRun, error) {
	q := url.Values{}
	if branch != "" {
		q.Set("branch", branch)
	}
	if perPage > 0 {
		q.Set("per_page", strconv.Itoa(perPage))
	}
	endpoint := repoPath(owner, repo, "actions", "runs")
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	var runs workflowRuns
	if err := c.doRequest(req, &runs); err != nil {
		return nil, err
	}
	return runs.WorkflowRuns, nil
}

func (c *Client) GetRun(ctx context.Context, owner, repo string, runID int64) (*WorkflowRun, error) {
	req, err := c.newRequest(ctx, http.MethodGet, repoPath(owner, repo, "actions", "runs", strconv.FormatInt(runID, 10)), nil)
	if err != nil {
		return nil, err
	}
	var run WorkflowRun
	if err := c.doRequest(req, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// GetRunLogsURL resolves the short-lived archive location of a run's logs
// without downloading it.
func (c *Client) GetRunLogsURL(ctx context.Context, owner, repo string, runID int64) (string, error) {
	req, err := c.newRequest(ctx, http.MethodGet, repoPath(owner, repo, "actions", "runs", strconv.FormatInt(runID, 10), "logs"), nil)
	if err != nil {
		return "", err
	}
	noFollow := *c.httpClient
	noFollow.CheckRedirect = func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse }

	resp, err := noFollow.Do(req)
	if err != nil {
		return "", requestFailed(req, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if loc := resp.Header.Get("Location"); resp.StatusCode >= 300 && resp.StatusCode < 400 && loc != "" {
		return loc, nil
	}
	if resp.StatusCode >= 400 {
		return "", statusError(req, resp)
	}
	return req.URL.String(), nil
}

func (c *Client) ListReleases(ctx context.Context, owner, repo string) ([]Release, error) {
	req, err := c.newRequest(ctx, http.MethodGet, repoPath(owner, repo, "releases"), nil)
	if err != nil {
		return nil, err
	}
	var releases []Release
	if err := c.doRequest(req, &releases); err != nil {
		return nil, err
	}
	return releases, nil
}

// ListArtifacts lists the archives uploaded by a run. Remote builds take
// their package from a release, so the coordinator does not call this; it is
// here for projects that publish through workflow artifacts instead.
func (c *Client) ListArtifacts(ctx context.Context, owner, repo string, runID int64) ([]Artifact, error) {
	req, err := c.newRequest(ctx, http.MethodGet, repoPath(owner, repo, "actions", "runs", strconv.FormatInt(runID, 10), "artifacts"), nil)
	if err != nil {
		return nil, err
	}
	var list artifactList
	if err := c.doRequest(req, &list); err != nil {
		return nil, err
	}
	return list.Artifacts, nil
}

// Download streams rawURL into w. Relative URLs resolve against the API root.
// For release assets pass Asset.URL so the request goes to the API host and
// carries credentials; GitHub redirects it to the storage backend.
func (c *Client) Download(ctx context.Context, rawURL string, w io.Writer, progress ProgressFunc) (int64, error) {
	target := rawURL
	if !strings.Contains(rawURL, "://") {
		target = c.resolve(rawURL)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return 0, errors.RemoteError("failed to create download request").
			WithCause(err).WithContext("url", target).Build()
	}
	req.Header.Set("Accept", "application/octet-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, requestFailed(req, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 400 {
		return 0, statusError(req, resp)
	}

	var dst io.Writer = w
	if progress != nil {
		dst = &progressWriter{w: w, total: resp.ContentLength, fn: progress}
	}
	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, errors.CanceledError("download canceled").WithCause(ctx.Err()).Build()
		}
		return n, errors.NetworkError("download interrupted").
			WithCause(err).WithContext("url", target).WithContext("written", n).Build()
	}
	return n, nil
}

type progressWriter struct {
	w       io.Writer
	written int64
	total   int64
	fn      ProgressFunc
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	p.written += int64(n)
	p.fn(p.written, p.total)
	return n, err
}

func repoPath(owner, repo string, parts ...string) string {
	return strings.Join(append([]string{"repos", owner, repo}, parts...), "/")
}

func (c *Client) resolve(endpoint string) string {
	clean := strings.TrimPrefix(endpoint, "/")
	var rawQuery string
	if idx := strings.Index(clean, "?"); idx != -1 {
		rawQuery = clean[idx+1:]
		clean = clean[:idx]
	}
	u, err := url.Parse(c.apiURL)
	if err != nil {
		return endpoint
	}
	u.RawPath = ""
	u.Path = path.Join(strings.TrimSuffix(u.Path, "/"), "/", clean)
	u.RawQuery = rawQuery
	return u.String()
}

// newRequest builds a JSON request against the API root.
func (c *Client) newRequest(ctx context.Context, method, endpoint string, body any) (*http.Request, error) {
	if _, err := url.Parse(c.apiURL); err != nil {
		return nil, errors.ConfigError("failed to parse API URL").
			WithCause(err).WithContext("api_url", c.apiURL).Build()
	}
	target := c.resolve(endpoint)

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, errors.InternalError("failed to marshal request body").WithCause(err).Build()
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return nil, errors.RemoteError("failed to create request").
			WithCause(err).
			WithContext("method", method).
			WithContext("url", target).
			Build()
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	return req, nil
}

// doRequest executes req and decodes a JSON body into result when non-nil.
func (c *Client) doRequest(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return requestFailed(req, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		return statusError(req, resp)
	}
	if result == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return errors.RemoteError("failed to decode response").
			WithCause(err).
			WithContext("url", req.URL.String()).
			Build()
	}
	return nil
}

func requestFailed(req *http.Request, err error) error {
	if errors.IsClassified(err) {
		return err
	}
	if ctxErr := req.Context().Err(); ctxErr != nil {
		return errors.CanceledError("request canceled").WithCause(ctxErr).Build()
	}
	return errors.NetworkError(fmt.Sprintf("%s %s failed", req.Method, req.URL.Path)).
		WithCause(err).
		WithContext("method", req.Method).
		WithContext("url", req.URL.String()).
		Build()
}

// statusError maps an error response onto a classified error.
func statusError(req *http.Request, resp *http.Response) error {
	limited, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	bodyStr := strings.TrimSpace(strings.ReplaceAll(string(limited), "\n", " "))

	msg := fmt.Sprintf("GitHub API error: %s", resp.Status)
	var b *errors.ErrorBuilder
	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		b = errors.AuthError(msg)
	case resp.StatusCode == http.StatusNotFound:
		b = errors.NotFoundError(msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		b = errors.NetworkError(msg).RateLimit()
	case resp.StatusCode >= 500:
		b = errors.NetworkError(msg)
	default:
		b = errors.RemoteError(msg)
	}

	return b.WithContext("status", resp.Status).
		WithContext("code", resp.StatusCode).
		WithContext("url", req.URL.String()).
		WithContext("response", bodyStr).
		Build()
}

// StatusCode extracts the HTTP status recorded by statusError, or 0.
func StatusCode(err error) int {
	ce, ok := errors.AsClassified(err)
	if !ok {
		return 0
	}
	code, _ := ce.Context()["code"].(int)
	return code
}
