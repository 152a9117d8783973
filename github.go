package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

// Branch is the branch every approval is committed to.
const Branch = "main"

// Lookup outcomes, used as log and metric labels.
const (
	lookupFound    = "found"
	lookupNotFound = "not_found"
	lookupFailed   = "failed"
	lookupError    = "error"
)

// ContentsClient writes files through the GitHub repository contents API.
type ContentsClient struct {
	baseURL    string
	owner      string
	repo       string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewContentsClient creates a ContentsClient for the configured repository.
// A nil httpClient gets an instrumented client without a timeout.
func NewContentsClient(cfg *Config, httpClient *http.Client, logger *zap.Logger) *ContentsClient {
	if httpClient == nil {
		httpClient = &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}
	}
	return &ContentsClient{
		baseURL:    strings.TrimRight(cfg.GitHubAPIURL, "/"),
		owner:      cfg.GitHubUser,
		repo:       cfg.GitHubRepo,
		token:      cfg.GitHubToken,
		httpClient: httpClient,
		logger:     logger,
	}
}

// contentsFile is the part of a contents API file response we read.
type contentsFile struct {
	SHA string `json:"sha"`
}

// putFileRequest is the create-or-update request body.
type putFileRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	Branch  string `json:"branch"`
	SHA     string `json:"sha,omitempty"`
}

// WriteFile creates or updates path with content. It first looks up the path
// for its current revision, which the API requires to overwrite a file;
// any lookup failure is treated as the file not existing. The decoded
// response of the write is returned as is.
func (c *ContentsClient) WriteFile(ctx context.Context, path, content, message string) (json.RawMessage, error) {
	fileURL := c.contentsURL(path)

	sha, outcome := c.lookup(ctx, fileURL)
	recordGitHubRequest("lookup", outcome)
	c.logger.Debug("looked up contents path",
		zap.String("path", path),
		zap.String("outcome", outcome),
		zap.Bool("has_sha", sha != ""),
	)

	body, err := json.Marshal(putFileRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString([]byte(content)),
		Branch:  Branch,
		SHA:     sha,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal contents request: %w", err)
	}

	req, err := c.newRequest(ctx, http.MethodPut, fileURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordGitHubRequest("write", "error")
		return nil, fmt.Errorf("GitHub push failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		recordGitHubRequest("write", "error")
		return nil, fmt.Errorf("GitHub push failed: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		recordGitHubRequest("write", "failed")
		return nil, &RemoteWriteError{
			StatusCode: resp.StatusCode,
			Status:     statusText(resp),
			Body:       string(respBody),
		}
	}
	if !json.Valid(respBody) {
		recordGitHubRequest("write", "error")
		return nil, fmt.Errorf("GitHub push failed: response is not valid JSON")
	}
	recordGitHubRequest("write", "ok")
	return json.RawMessage(respBody), nil
}

// lookup reads the file at fileURL on Branch and returns its revision
// marker, or "" when the file is absent or the read did not succeed.
func (c *ContentsClient) lookup(ctx context.Context, fileURL string) (string, string) {
	req, err := c.newRequest(ctx, http.MethodGet, fileURL+"?ref="+url.QueryEscape(Branch), nil)
	if err != nil {
		return "", lookupError
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", lookupError
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", lookupNotFound
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return "", lookupFailed
	}

	var file contentsFile
	if err := json.NewDecoder(resp.Body).Decode(&file); err != nil {
		return "", lookupError
	}
	return file.SHA, lookupFound
}

func (c *ContentsClient) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", "review-relay")
	return req, nil
}

func (c *ContentsClient) contentsURL(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s",
		c.baseURL, url.PathEscape(c.owner), url.PathEscape(c.repo), strings.Join(segments, "/"))
}

// statusText returns the reason phrase of resp without the status code.
func statusText(resp *http.Response) string {
	text := strings.TrimPrefix(resp.Status, strconv.Itoa(resp.StatusCode))
	text = strings.TrimSpace(text)
	if text == "" {
		text = http.StatusText(resp.StatusCode)
	}
	return text
}
