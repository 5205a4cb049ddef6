// Package client implements the HTTP client for the backend ingestion
// collaborators: link-collection preview, crawl submission, document upload,
// and operation progress. This core never fetches or crawls pages itself; it
// only consumes these contracts.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/pattern"
	"github.com/kbforge/ingest/internal/request"
	"github.com/kbforge/ingest/internal/review"
	"github.com/kbforge/ingest/internal/tracker"
	"github.com/kbforge/ingest/internal/upload"
)

const defaultTimeout = 30 * time.Second

// SubmitResult is the outcome of a crawl or upload submission. A non-empty
// ProgressID means the backend accepted the work for asynchronous execution;
// Message carries a synchronous outcome when the backend finished inline.
type SubmitResult struct {
	ProgressID string
	Message    string
}

// Client talks to the backend ingestion service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// New constructs a Client for baseURL. timeout <= 0 falls back to 30s.
func New(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// PreviewLinks implements review.PreviewClient against
// POST /crawl/preview-links.
func (c *Client) PreviewLinks(ctx context.Context, url string, patterns pattern.Set) (review.Preview, error) {
	payload := previewRequest{
		URL:             url,
		IncludePatterns: emptyIfNil(patterns.Include),
		ExcludePatterns: emptyIfNil(patterns.Exclude),
	}
	var resp previewResponse
	if err := c.postJSON(ctx, "/crawl/preview-links", payload, &resp); err != nil {
		return review.Preview{}, fmt.Errorf("preview links: %w", err)
	}
	preview := review.Preview{
		SourceURL:        resp.SourceURL,
		CollectionType:   review.CollectionType(resp.CollectionType),
		IsLinkCollection: resp.IsLinkCollection,
		Links:            make([]review.Link, 0, len(resp.Links)),
	}
	for _, l := range resp.Links {
		preview.Links = append(preview.Links, review.Link{
			URL:           l.URL,
			Text:          l.Text,
			Path:          l.Path,
			MatchesFilter: l.MatchesFilter,
		})
	}
	return preview, nil
}

// SubmitCrawl posts a crawl request to POST /crawl.
func (c *Client) SubmitCrawl(ctx context.Context, req request.CrawlRequest) (SubmitResult, error) {
	var resp submitResponse
	if err := c.postJSON(ctx, "/crawl", req, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("submit crawl: %w", err)
	}
	return SubmitResult{ProgressID: resp.ProgressID, Message: resp.Message}, nil
}

// SubmitUpload sends an upload batch as multipart form data.
func (c *Client) SubmitUpload(ctx context.Context, req upload.Request) (SubmitResult, error) {
	if err := req.Validate(); err != nil {
		return SubmitResult{}, fmt.Errorf("submit upload: %w", err)
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if err := mw.WriteField("mode", string(req.Mode)); err != nil {
		return SubmitResult{}, fmt.Errorf("write upload mode: %w", err)
	}
	if err := mw.WriteField("knowledge_type", req.KnowledgeType); err != nil {
		return SubmitResult{}, fmt.Errorf("write knowledge type: %w", err)
	}
	for _, tag := range req.Tags {
		if err := mw.WriteField("tags", tag); err != nil {
			return SubmitResult{}, fmt.Errorf("write upload tag: %w", err)
		}
	}
	for _, f := range req.Files {
		name := f.Name
		if req.Mode == upload.ModeFolder && f.RelPath != "" {
			name = f.RelPath
		}
		part, err := mw.CreateFormFile("files", name)
		if err != nil {
			return SubmitResult{}, fmt.Errorf("create upload part: %w", err)
		}
		if _, err := part.Write(f.Content); err != nil {
			return SubmitResult{}, fmt.Errorf("write upload part: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return SubmitResult{}, fmt.Errorf("finalize upload body: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/documents", &body)
	if err != nil {
		return SubmitResult{}, fmt.Errorf("build upload request: %w", err)
	}
	httpReq.Header.Set("Content-Type", mw.FormDataContentType())

	var resp uploadResponse
	if err := c.do(httpReq, &resp); err != nil {
		return SubmitResult{}, fmt.Errorf("submit upload: %w", err)
	}
	if !resp.Success {
		msg := resp.Message
		if msg == "" {
			msg = "upload rejected"
		}
		return SubmitResult{}, fmt.Errorf("submit upload: %s", msg)
	}
	return SubmitResult{ProgressID: resp.ProgressID, Message: resp.Message}, nil
}

// Progress implements tracker.ProgressSource against GET /progress/{id}.
func (c *Client) Progress(ctx context.Context, progressID string) (tracker.Update, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/progress/"+progressID, nil)
	if err != nil {
		return tracker.Update{}, fmt.Errorf("build progress request: %w", err)
	}
	var resp progressResponse
	if err := c.do(req, &resp); err != nil {
		return tracker.Update{}, fmt.Errorf("poll progress: %w", err)
	}
	return tracker.Update{
		ProgressID: progressID,
		Status:     tracker.Status(resp.Status),
		Percent:    resp.Percent,
		Message:    resp.Message,
	}, nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload, result any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, result)
}

// do executes the request and decodes the JSON response. On non-2xx it
// surfaces the backend's error message when present, else a generic
// fallback.
func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close response body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		if jsonErr := json.Unmarshal(body, &er); jsonErr == nil && er.Error != "" {
			return fmt.Errorf("backend error (%d): %s", resp.StatusCode, er.Error)
		}
		var sr submitResponse
		if jsonErr := json.Unmarshal(body, &sr); jsonErr == nil && sr.Message != "" {
			return fmt.Errorf("backend error (%d): %s", resp.StatusCode, sr.Message)
		}
		return fmt.Errorf("backend error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}
	if result != nil {
		if err := json.Unmarshal(body, result); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
