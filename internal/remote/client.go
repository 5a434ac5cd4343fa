// Package remote reads and writes JSON documents stored in a GitHub
// repository.
//
// Reads go through the raw-content host with a cache-busting query
// parameter. Writes go through the Contents API as a read-modify-write
// cycle: look up the document's current blob SHA, then PUT the new content
// with that SHA so GitHub rejects the write if someone else committed in
// between.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/minelux/internal/apperror"
	"github.com/sakif/minelux/internal/metrics"
)

const (
	DefaultAPIBaseURL = "https://api.github.com"
	DefaultRawBaseURL = "https://raw.githubusercontent.com"

	defaultCommitMessage = "Auto commit"
)

// Config identifies the repository and branch that hold the documents.
type Config struct {
	Owner  string
	Repo   string
	Branch string

	// Token is sent as a bearer credential. Empty means anonymous, which is
	// enough to read a public repository but not to commit.
	Token string

	APIBaseURL string
	RawBaseURL string
	Timeout    time.Duration
}

// Client talks to GitHub on behalf of the store.
type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option customises a Client.
type Option func(*Client)

// WithTransport replaces the base HTTP transport. The bearer token, if any,
// is still applied on top of it.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.Transport = rt }
}

// WithClock overrides the clock used for the cache-busting parameter.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a Client.
//
// The bearer credential is attached by an oauth2.Transport wrapping a static
// token source, so no request in this package sets Authorization by hand.
func New(cfg Config, logger *slog.Logger, opts ...Option) *Client {
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	if cfg.RawBaseURL == "" {
		cfg.RawBaseURL = DefaultRawBaseURL
	}
	if cfg.Branch == "" {
		cfg.Branch = "main"
	}

	c := &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if cfg.Token != "" {
		c.http.Transport = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{
				AccessToken: cfg.Token,
				TokenType:   "Bearer",
			}),
			Base: c.http.Transport,
		}
	}

	return c
}

// CommitResult is the part of the Contents API PUT response we decode.
type CommitResult struct {
	Content struct {
		Path string `json:"path"`
		SHA  string `json:"sha"`
	} `json:"content"`
	Commit struct {
		SHA     string `json:"sha"`
		Message string `json:"message"`
	} `json:"commit"`
}

// Fetch downloads the document at path and decodes it into dst.
//
// Errors:
//   - apperror.ErrFetch  → transport failure or non-2xx status (Status set)
//   - apperror.ErrParse  → body is not JSON of the shape dst expects
func (c *Client) Fetch(ctx context.Context, path string, dst any) error {
	u, err := c.rawURL(path)
	if err != nil {
		return apperror.Remote(apperror.ErrFetch, path, 0, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return apperror.Remote(apperror.ErrFetch, path, 0, err.Error())
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.do(req, "fetch")
	if err != nil {
		return apperror.Remote(apperror.ErrFetch, path, 0, err.Error())
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return apperror.Remote(apperror.ErrFetch, path, resp.StatusCode,
			fmt.Sprintf("failed to fetch: %d", resp.StatusCode))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperror.Remote(apperror.ErrFetch, path, resp.StatusCode, err.Error())
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperror.Remote(apperror.ErrParse, path, resp.StatusCode, err.Error())
	}

	return nil
}

// Commit writes content to path as a new commit on the configured branch.
//
// STEPS:
//  1. Look up the current blob SHA. A 404 means the file does not exist yet
//     and the commit creates it.
//  2. Encode content as indented JSON, then base64.
//  3. PUT it with the SHA from step 1. If the file changed since step 1,
//     GitHub refuses the write and nothing is committed.
//
// A rejected write is not retried.
func (c *Client) Commit(ctx context.Context, path string, content any, message string) (*CommitResult, error) {
	if message == "" {
		message = defaultCommitMessage
	}

	sha, err := c.revision(ctx, path)
	if err != nil {
		return nil, err
	}

	encoded, err := encodeContent(content)
	if err != nil {
		return nil, apperror.Remote(apperror.ErrCommit, path, 0, err.Error())
	}

	payload, err := json.Marshal(putRequest{
		Message: message,
		Content: encoded,
		Branch:  c.cfg.Branch,
		SHA:     sha,
	})
	if err != nil {
		return nil, apperror.Remote(apperror.ErrCommit, path, 0, err.Error())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(path), bytes.NewReader(payload))
	if err != nil {
		return nil, apperror.Remote(apperror.ErrCommit, path, 0, err.Error())
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.do(req, "commit")
	if err != nil {
		return nil, apperror.Remote(apperror.ErrCommit, path, 0, err.Error())
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, apperror.Remote(apperror.ErrCommit, path, resp.StatusCode,
			remoteMessage(resp, fmt.Sprintf("commit failed: %d", resp.StatusCode)))
	}

	var result CommitResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		// The commit landed; only the response is unreadable.
		c.logger.Warn("remote: decoding commit response",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	c.logger.Debug("remote: committed document",
		slog.String("path", path),
		slog.String("sha", result.Content.SHA),
		slog.Bool("created", sha == ""),
	)

	return &result, nil
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// revision returns the blob SHA of path, or "" if the file does not exist.
func (c *Client) revision(ctx context.Context, path string) (string, error) {
	u := c.contentsURL(path) + "?" + url.Values{"ref": {c.cfg.Branch}}.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", apperror.Remote(apperror.ErrRevisionLookup, path, 0, err.Error())
	}
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := c.do(req, "revision")
	if err != nil {
		return "", apperror.Remote(apperror.ErrRevisionLookup, path, 0, err.Error())
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if !isSuccess(resp.StatusCode) {
		return "", apperror.Remote(apperror.ErrRevisionLookup, path, resp.StatusCode,
			fmt.Sprintf("failed to get file SHA: %d", resp.StatusCode))
	}

	var body struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", apperror.Remote(apperror.ErrRevisionLookup, path, resp.StatusCode, err.Error())
	}
	return body.SHA, nil
}

// do sends req and records the outcome.
func (c *Client) do(req *http.Request, op string) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RemoteRequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.RemoteRequestsTotal.WithLabelValues(op, "error").Inc()
		return nil, err
	}
	metrics.RemoteRequestsTotal.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Inc()
	return resp, nil
}

func (c *Client) rawURL(path string) (string, error) {
	u, err := url.Parse(c.cfg.RawBaseURL)
	if err != nil {
		return "", fmt.Errorf("remote: parsing raw base URL: %w", err)
	}
	u = u.JoinPath(c.cfg.Owner, c.cfg.Repo, c.cfg.Branch, strings.TrimPrefix(path, "/"))
	u.RawQuery = url.Values{"t": {strconv.FormatInt(c.now().UnixMilli(), 10)}}.Encode()
	return u.String(), nil
}

func (c *Client) contentsURL(path string) string {
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		strings.TrimSuffix(c.cfg.APIBaseURL, "/"),
		c.cfg.Owner, c.cfg.Repo,
		strings.TrimPrefix(path, "/"))
}

// encodeContent renders v the way a person would write the file by hand:
// two-space indent, no HTML escaping, no trailing newline.
func encodeContent(v any) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return "", fmt.Errorf("encoding content: %w", err)
	}
	return base64.StdEncoding.EncodeToString(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// remoteMessage extracts GitHub's {"message": "..."} error text.
func remoteMessage(resp *http.Response, fallback string) string {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&body); err != nil || body.Message == "" {
		return fallback
	}
	return body.Message
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
