package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// errNotLinkCollection mirrors the server's 422 fallback signal.
var errNotLinkCollection = errors.New("target is not a link collection")

type crawlForm struct {
	URL           string   `json:"url"`
	Patterns      string   `json:"patterns"`
	Tags          []string `json:"tags"`
	MaxDepth      int      `json:"max_depth"`
	PatternEdited bool     `json:"pattern_edited"`
	DepthEdited   bool     `json:"depth_edited"`
}

type validatedURL struct {
	URL       string `json:"url"`
	CrawlType string `json:"crawl_type"`
	Warning   string `json:"warning"`
}

type reviewLink struct {
	URL      string `json:"url"`
	Text     string `json:"text"`
	Selected bool   `json:"selected"`
	Visible  bool   `json:"visible"`
}

type reviewState struct {
	SessionID     string       `json:"session_id"`
	State         string       `json:"state"`
	Links         []reviewLink `json:"links"`
	SelectedCount int          `json:"selected_count"`
	TotalLinks    int          `json:"total_links"`
}

type submitResult struct {
	ProgressID string `json:"progress_id"`
	Message    string `json:"message"`
}

type operationView struct {
	ProgressID string `json:"progress_id"`
	SourceKey  string `json:"source_key"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	Percent    int    `json:"progress_percent"`
	Message    string `json:"message"`
}

type apiClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func newAPIClient(baseURL, apiKey string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *apiClient) validateURL(ctx context.Context, url string) (validatedURL, error) {
	var out validatedURL
	err := c.postJSON(ctx, "/v1/validate-url", map[string]string{"url": url}, &out)
	return out, err
}

func (c *apiClient) createReview(ctx context.Context, form crawlForm) (reviewState, error) {
	var out reviewState
	err := c.postJSON(ctx, "/v1/review", form, &out)
	if err != nil {
		var se *serverError
		if errors.As(err, &se) && se.status == http.StatusUnprocessableEntity {
			return reviewState{}, errNotLinkCollection
		}
	}
	return out, err
}

func (c *apiClient) reviewAction(ctx context.Context, sessionID, action, url, term string) (reviewState, error) {
	var out reviewState
	payload := map[string]string{"action": action}
	if url != "" {
		payload["url"] = url
	}
	if term != "" {
		payload["term"] = term
	}
	err := c.postJSON(ctx, "/v1/review/"+sessionID+"/actions", payload, &out)
	return out, err
}

func (c *apiClient) proceed(ctx context.Context, sessionID string) (submitResult, error) {
	var out submitResult
	err := c.postJSON(ctx, "/v1/review/"+sessionID+"/proceed", nil, &out)
	return out, err
}

func (c *apiClient) submitCrawl(ctx context.Context, form crawlForm) (submitResult, error) {
	var out submitResult
	err := c.postJSON(ctx, "/v1/crawl", form, &out)
	return out, err
}

func (c *apiClient) uploadFiles(ctx context.Context, mode string, tags, paths []string) (submitResult, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("mode", mode); err != nil {
		return submitResult{}, fmt.Errorf("write mode field: %w", err)
	}
	for _, tag := range tags {
		if err := mw.WriteField("tags", tag); err != nil {
			return submitResult{}, fmt.Errorf("write tag field: %w", err)
		}
	}
	for _, path := range paths {
		name := filepath.Base(path)
		if mode == "folder" {
			name = filepath.ToSlash(path)
		}
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			return submitResult{}, fmt.Errorf("create part for %s: %w", path, err)
		}
		f, err := os.Open(path)
		if err != nil {
			return submitResult{}, fmt.Errorf("open %s: %w", path, err)
		}
		_, copyErr := io.Copy(part, f)
		closeErr := f.Close()
		if copyErr != nil {
			return submitResult{}, fmt.Errorf("read %s: %w", path, copyErr)
		}
		if closeErr != nil {
			return submitResult{}, fmt.Errorf("close %s: %w", path, closeErr)
		}
	}
	if err := mw.Close(); err != nil {
		return submitResult{}, fmt.Errorf("finalize upload body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/documents", &body)
	if err != nil {
		return submitResult{}, fmt.Errorf("build upload request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out submitResult
	err = c.do(req, &out)
	return out, err
}

func (c *apiClient) getOperation(ctx context.Context, progressID string) (operationView, error) {
	var out operationView
	err := c.getJSON(ctx, "/v1/operations/"+progressID, &out)
	return out, err
}

func (c *apiClient) listOperations(ctx context.Context) ([]operationView, error) {
	var out struct {
		Operations []operationView `json:"operations"`
	}
	err := c.getJSON(ctx, "/v1/operations", &out)
	return out.Operations, err
}

// serverError carries the HTTP status so callers can branch on it.
type serverError struct {
	status  int
	message string
}

func (e *serverError) Error() string {
	return fmt.Sprintf("server error (%d): %s", e.status, e.message)
}

func (c *apiClient) postJSON(ctx context.Context, path string, payload, result any) error {
	var buf bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&buf).Encode(payload); err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

func (c *apiClient) getJSON(ctx context.Context, path string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, result)
}

func (c *apiClient) do(req *http.Request, result any) error {
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only body

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er struct {
			Error string `json:"error"`
		}
		msg := http.StatusText(resp.StatusCode)
		if jsonErr := json.Unmarshal(body, &er); jsonErr == nil && er.Error != "" {
			msg = er.Error
		}
		return &serverError{status: resp.StatusCode, message: msg}
	}
	if result != nil && len(body) > 0 {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
