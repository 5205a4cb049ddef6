package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbforge/ingest/internal/client"
	"github.com/kbforge/ingest/internal/clock/system"
	"github.com/kbforge/ingest/internal/config"
	idgen "github.com/kbforge/ingest/internal/id/uuid"
	"github.com/kbforge/ingest/internal/pattern"
	"github.com/kbforge/ingest/internal/request"
	"github.com/kbforge/ingest/internal/review"
	"github.com/kbforge/ingest/internal/tracker"
	"github.com/kbforge/ingest/internal/upload"
)

var errBackendDown = errors.New("backend unavailable")

type stubBackend struct {
	mu          sync.Mutex
	preview     review.Preview
	previewErr  error
	submitRes   client.SubmitResult
	submitErr   error
	failSubmits int
	lastCrawl   request.CrawlRequest
	lastUpload  upload.Request
}

func (b *stubBackend) PreviewLinks(_ context.Context, url string, _ pattern.Set) (review.Preview, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.previewErr != nil {
		return review.Preview{}, b.previewErr
	}
	p := b.preview
	p.SourceURL = url
	return p, nil
}

func (b *stubBackend) SubmitCrawl(_ context.Context, req request.CrawlRequest) (client.SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastCrawl = req
	if b.failSubmits > 0 {
		b.failSubmits--
		return client.SubmitResult{}, errBackendDown
	}
	return b.submitRes, b.submitErr
}

func (b *stubBackend) SubmitUpload(_ context.Context, req upload.Request) (client.SubmitResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastUpload = req
	return b.submitRes, b.submitErr
}

func (b *stubBackend) Progress(_ context.Context, progressID string) (tracker.Update, error) {
	return tracker.Update{
		ProgressID: progressID,
		Status:     tracker.StatusCompleted,
		Percent:    100,
	}, nil
}

func collectionPreview() review.Preview {
	return review.Preview{
		CollectionType:   review.CollectionLLMsTxt,
		IsLinkCollection: true,
		Links: []review.Link{
			{URL: "https://docs.example.com/a", Text: "Alpha", Path: "/a", MatchesFilter: true},
			{URL: "https://docs.example.com/b", Text: "Beta", Path: "/b", MatchesFilter: true},
			{URL: "https://docs.example.com/c", Text: "Gamma", Path: "/c"},
		},
	}
}

func newTestServer(t *testing.T, backend *stubBackend, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	if mutate != nil {
		mutate(&cfg)
	}
	builder := request.NewBuilder(nil, cfg.Ingest.MaxDepthDefault, nil)
	trk := tracker.New(system.Clock{}, nil)
	srv := NewServer(backend, builder, trk, idgen.New(), cfg, nil, http.NotFoundHandler())
	t.Cleanup(srv.Shutdown)
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeView(t *testing.T, rec *httptest.ResponseRecorder) reviewView {
	t.Helper()
	var view reviewView
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	return view
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubBackend{}, nil)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, srv, http.MethodGet, path, nil)
		require.Equal(t, http.StatusOK, rec.Code, path)
	}
}

func TestValidateURLEndpoint(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubBackend{}, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/validate-url", validateURLRequest{URL: "example.com/llms.txt"})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp validateURLResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Equal(t, "https://example.com/llms.txt", resp.URL)
	require.Equal(t, "llms-txt", resp.CrawlType)

	rec = doJSON(t, srv, http.MethodPost, "/v1/validate-url", validateURLRequest{URL: "no-dot-host"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestReviewLifecycle(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{
		preview:   collectionPreview(),
		submitRes: client.SubmitResult{ProgressID: "pid-lifecycle"},
	}
	srv := newTestServer(t, backend, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/review", crawlFormRequest{URL: "https://docs.example.com/llms.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decodeView(t, rec)
	require.Equal(t, string(review.StatePreviewReady), view.State)
	require.Equal(t, 2, view.SelectedCount)
	require.Equal(t, 3, view.TotalLinks)

	sessionPath := "/v1/review/" + view.SessionID

	rec = doJSON(t, srv, http.MethodPost, sessionPath+"/actions", reviewActionRequest{Action: "select_all"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, decodeView(t, rec).SelectedCount)

	rec = doJSON(t, srv, http.MethodPost, sessionPath+"/proceed", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted submitAccepted
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accepted))
	require.Equal(t, "pid-lifecycle", accepted.ProgressID)

	backend.mu.Lock()
	submitted := backend.lastCrawl
	backend.mu.Unlock()
	require.Equal(t, []string{
		"https://docs.example.com/a",
		"https://docs.example.com/b",
		"https://docs.example.com/c",
	}, submitted.SelectedURLs)
	require.False(t, submitted.SkipLinkReview)

	// The session is gone once committed.
	rec = doJSON(t, srv, http.MethodGet, sessionPath, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, srv, http.MethodGet, "/v1/operations/pid-lifecycle", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestProceedRetriesAfterFailedSubmit(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{
		preview:     collectionPreview(),
		submitRes:   client.SubmitResult{ProgressID: "pid-retry"},
		failSubmits: 1,
	}
	srv := newTestServer(t, backend, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/review", crawlFormRequest{URL: "https://docs.example.com/llms.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decodeView(t, rec)
	sessionPath := "/v1/review/" + view.SessionID

	rec = doJSON(t, srv, http.MethodPost, sessionPath+"/proceed", nil)
	require.Equal(t, http.StatusBadGateway, rec.Code)

	// The session survives the failed submission with its selection intact.
	rec = doJSON(t, srv, http.MethodGet, sessionPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	require.Equal(t, string(review.StatePreviewReady), view.State)
	require.Equal(t, 2, view.SelectedCount)

	rec = doJSON(t, srv, http.MethodPost, sessionPath+"/proceed", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	var accepted submitAccepted
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&accepted))
	require.Equal(t, "pid-retry", accepted.ProgressID)

	rec = doJSON(t, srv, http.MethodGet, sessionPath, nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateReviewNotLinkCollection(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{preview: review.Preview{IsLinkCollection: false}}
	srv := newTestServer(t, backend, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/review", crawlFormRequest{URL: "https://example.com"})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	require.Equal(t, 0, srv.sessions.len())
}

func TestReviewSearchIsViewOnly(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{preview: collectionPreview()}
	srv := newTestServer(t, backend, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/review", crawlFormRequest{URL: "https://docs.example.com/llms.txt"})
	require.Equal(t, http.StatusCreated, rec.Code)
	view := decodeView(t, rec)
	sessionPath := "/v1/review/" + view.SessionID

	rec = doJSON(t, srv, http.MethodPost, sessionPath+"/actions", reviewActionRequest{Action: "search", Term: "alpha"})
	require.Equal(t, http.StatusOK, rec.Code)
	view = decodeView(t, rec)
	require.Equal(t, 2, view.SelectedCount)

	var visible int
	for _, l := range view.Links {
		if l.Visible {
			visible++
		}
	}
	require.Equal(t, 1, visible)
	require.Equal(t, 3, view.TotalLinks)
}

func TestProceedEmptySelection(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{preview: collectionPreview()}
	srv := newTestServer(t, backend, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/review", crawlFormRequest{URL: "https://docs.example.com/llms.txt"})
	view := decodeView(t, rec)
	sessionPath := "/v1/review/" + view.SessionID

	rec = doJSON(t, srv, http.MethodPost, sessionPath+"/actions", reviewActionRequest{Action: "deselect_all"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, srv, http.MethodPost, sessionPath+"/proceed", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	// The session stays open for correction.
	rec = doJSON(t, srv, http.MethodGet, sessionPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestDirectCrawlAppliesGitHubPreset(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{submitRes: client.SubmitResult{ProgressID: "pid-direct"}}
	srv := newTestServer(t, backend, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/crawl", crawlFormRequest{URL: "https://github.com/kbforge/ingest"})
	require.Equal(t, http.StatusAccepted, rec.Code)

	backend.mu.Lock()
	submitted := backend.lastCrawl
	backend.mu.Unlock()
	require.True(t, submitted.SkipLinkReview)
	require.Contains(t, submitted.Tags, request.GitHubTag)
	require.Equal(t, request.GitHubMaxDepth, submitted.MaxDepth)
	require.Contains(t, submitted.IncludePatterns, "**/tree/**")
}

func TestDeleteReview(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{preview: collectionPreview()}
	srv := newTestServer(t, backend, nil)

	rec := doJSON(t, srv, http.MethodPost, "/v1/review", crawlFormRequest{URL: "https://docs.example.com/llms.txt"})
	view := decodeView(t, rec)

	rec = doJSON(t, srv, http.MethodDelete, "/v1/review/"+view.SessionID, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, 0, srv.sessions.len())
}

func TestSubmitDocuments(t *testing.T) {
	t.Parallel()

	backend := &stubBackend{submitRes: client.SubmitResult{ProgressID: "pid-upload"}}
	srv := newTestServer(t, backend, nil)

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("mode", "single"))
	part, err := mw.CreateFormFile("files", "notes.md")
	require.NoError(t, err)
	_, err = part.Write([]byte("# Notes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusAccepted, rec.Code)

	backend.mu.Lock()
	got := backend.lastUpload
	backend.mu.Unlock()
	require.Equal(t, upload.ModeSingle, got.Mode)
	require.Len(t, got.Files, 1)
	require.Equal(t, "notes.md", got.Files[0].Name)
}

func TestAPIKeyMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, &stubBackend{}, func(c *config.Config) {
		c.Auth.Enabled = true
		c.Auth.APIKey = "secret"
	})

	req := httptest.NewRequest(http.MethodGet, "/healthz", strings.NewReader(""))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/healthz", strings.NewReader(""))
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}
