package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/pattern"
	"github.com/kbforge/ingest/internal/request"
	"github.com/kbforge/ingest/internal/review"
	"github.com/kbforge/ingest/internal/tracker"
	"github.com/kbforge/ingest/internal/upload"
)

const maxUploadBytes = 64 << 20

type validateURLRequest struct {
	URL string `json:"url"`
}

type validateURLResponse struct {
	URL       string `json:"url"`
	CrawlType string `json:"crawl_type"`
	Warning   string `json:"warning,omitempty"`
}

// crawlFormRequest is the shared request body for starting a review and for
// submitting a crawl directly. Patterns is the unified authoring string;
// entries prefixed with "!" are excludes.
type crawlFormRequest struct {
	URL           string   `json:"url"`
	Patterns      string   `json:"patterns"`
	Tags          []string `json:"tags"`
	MaxDepth      int      `json:"max_depth"`
	PatternEdited bool     `json:"pattern_edited"`
	DepthEdited   bool     `json:"depth_edited"`
}

type reviewActionRequest struct {
	Action string `json:"action"`
	URL    string `json:"url,omitempty"`
	Term   string `json:"term,omitempty"`
}

type reviewFiltersRequest struct {
	Patterns string `json:"patterns"`
}

type submitAccepted struct {
	ProgressID string `json:"progress_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

type linkView struct {
	URL           string `json:"url"`
	Text          string `json:"text"`
	Path          string `json:"path"`
	MatchesFilter bool   `json:"matches_filter"`
	Selected      bool   `json:"selected"`
	Visible       bool   `json:"visible"`
}

type reviewView struct {
	SessionID     string     `json:"session_id"`
	State         string     `json:"state"`
	SourceURL     string     `json:"source_url"`
	Include       []string   `json:"url_include_patterns"`
	Exclude       []string   `json:"url_exclude_patterns"`
	SearchTerm    string     `json:"search_term,omitempty"`
	Links         []linkView `json:"links"`
	SelectedCount int        `json:"selected_count"`
	TotalLinks    int        `json:"total_links"`
}

func (s *Server) validateURL(w http.ResponseWriter, r *http.Request) {
	var req validateURLRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	normalized, err := s.builder.ValidateURL(r.Context(), req.URL)
	if err != nil && !errors.Is(err, request.ErrDomainNotResolved) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp := validateURLResponse{
		URL:       normalized,
		CrawlType: string(request.ClassifyCrawlType(normalized)),
	}
	if err != nil {
		resp.Warning = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createReview(w http.ResponseWriter, r *http.Request) {
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}

	id, err := s.idGen.NewID()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "generate session id")
		return
	}
	coord := review.NewCoordinator(s.backend, s.logger)
	if err := coord.Start(r.Context(), form.URL, pattern.Parse(form.Patterns)); err != nil {
		switch {
		case errors.Is(err, review.ErrNotLinkCollection):
			// Normal fallback path: the caller should submit a plain crawl.
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}

	sess := &session{id: id, coordinator: coord, form: form, createdAt: time.Now()}
	if err := s.sessions.add(sess); err != nil {
		coord.Cancel()
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, s.viewOf(sess))
}

func (s *Server) getReview(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(sess))
}

func (s *Server) reviewAction(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req reviewActionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch req.Action {
	case "toggle":
		err = sess.coordinator.Toggle(req.URL)
	case "select_all":
		err = sess.coordinator.SelectAll()
	case "deselect_all":
		err = sess.coordinator.DeselectAll()
	case "invert":
		err = sess.coordinator.Invert()
	case "search":
		err = sess.coordinator.Search(req.Term)
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown action %q", req.Action))
		return
	}
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.viewOf(sess))
}

func (s *Server) reviewFilters(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.get(chi.URLParam(r, "session_id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	var req reviewFiltersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := sess.coordinator.ApplyFilters(r.Context(), pattern.Parse(req.Patterns)); err != nil {
		switch {
		case errors.Is(err, review.ErrInvalidState):
			writeError(w, http.StatusConflict, err.Error())
		default:
			// The previous preview and selection survive a failed re-filter.
			writeError(w, http.StatusBadGateway, err.Error())
		}
		return
	}
	s.sessions.setPatterns(sess.id, req.Patterns)
	writeJSON(w, http.StatusOK, s.viewOf(sess))
}

func (s *Server) reviewProceed(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	sess, form, err := s.sessions.beginSubmit(id)
	if err != nil {
		status := http.StatusNotFound
		if errors.Is(err, errSessionBusy) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	selected, err := sess.coordinator.Proceed()
	if err != nil {
		s.sessions.endSubmit(id)
		switch {
		case errors.Is(err, review.ErrEmptySelection):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}

	req := s.builder.BuildReviewed(form, selected)
	res, err := s.backend.SubmitCrawl(r.Context(), req)
	if err != nil {
		// A failed submission leaves the session open with its selection
		// intact so the user can retry.
		s.sessions.endSubmit(id)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	if err := sess.coordinator.Commit(); err != nil {
		s.logger.Warn("commit after accepted submission failed",
			zap.String("session_id", id), zap.Error(err))
	}
	s.sessions.remove(id)
	s.acceptSubmission(w, res.ProgressID, res.Message, form.URL, tracker.KindCrawl)
}

func (s *Server) deleteReview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	sess, err := s.sessions.get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	sess.coordinator.Cancel()
	s.sessions.remove(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) submitCrawl(w http.ResponseWriter, r *http.Request) {
	form, ok := s.decodeForm(w, r)
	if !ok {
		return
	}
	req := s.builder.BuildUnreviewed(form)
	res, err := s.backend.SubmitCrawl(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	s.acceptSubmission(w, res.ProgressID, res.Message, form.URL, tracker.KindCrawl)
}

func (s *Server) submitDocuments(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	mode := upload.Mode(r.FormValue("mode"))
	tags := r.MultipartForm.Value["tags"]

	var files []upload.File
	for _, fh := range r.MultipartForm.File["files"] {
		f, err := fh.Open()
		if err != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload part")
			return
		}
		content, err := io.ReadAll(f)
		closeErr := f.Close()
		if err != nil || closeErr != nil {
			writeError(w, http.StatusBadRequest, "unreadable upload part")
			return
		}
		file := upload.File{
			Name:        fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Content:     content,
		}
		if mode == upload.ModeFolder {
			// Folder uploads carry the relative path in the part filename.
			file.RelPath = fh.Filename
		}
		files = append(files, file)
	}

	batch := upload.NewRequest(mode, tags, files)
	if err := batch.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res, err := s.backend.SubmitUpload(r.Context(), batch)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	sourceKey := fmt.Sprintf("upload:%d files", len(files))
	if len(files) == 1 {
		sourceKey = "upload:" + files[0].Name
	}
	s.acceptSubmission(w, res.ProgressID, res.Message, sourceKey, tracker.KindUpload)
}

func (s *Server) listOperations(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"operations": s.tracker.List()})
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "progress_id")
	op, ok := s.tracker.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "operation not found")
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// decodeForm parses the shared crawl form body, validates the URL, and
// applies the GitHub preset for repository URLs. A failed domain resolution
// is soft and logged, not rejected.
func (s *Server) decodeForm(w http.ResponseWriter, r *http.Request) (request.Form, bool) {
	var req crawlFormRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return request.Form{}, false
	}
	normalized, err := s.builder.ValidateURL(r.Context(), req.URL)
	if err != nil && !errors.Is(err, request.ErrDomainNotResolved) {
		writeError(w, http.StatusBadRequest, err.Error())
		return request.Form{}, false
	}
	if err != nil {
		s.logger.Warn("domain did not resolve, continuing",
			zap.String("url", normalized), zap.Error(err))
	}

	form := request.Form{
		URL:           normalized,
		Patterns:      req.Patterns,
		Tags:          req.Tags,
		MaxDepth:      req.MaxDepth,
		PatternEdited: req.PatternEdited,
		DepthEdited:   req.DepthEdited,
	}
	if request.IsGitHubRepoURL(normalized) {
		if request.ApplyGitHubPreset(&form, s.builder.DefaultMaxDepth()) {
			s.logger.Debug("github preset applied", zap.String("url", normalized))
		}
	}
	return form, true
}

// acceptSubmission registers the accepted operation with the tracker, starts
// a progress watch, and writes the response. A backend that finished the work
// inline returns a message and no progress ID.
func (s *Server) acceptSubmission(w http.ResponseWriter, progressID, message, sourceKey string, kind tracker.Kind) {
	if progressID == "" {
		writeJSON(w, http.StatusOK, submitAccepted{Message: message})
		return
	}
	if _, err := s.tracker.Register(s.watchCtx, progressID, sourceKey, kind); err != nil {
		s.logger.Warn("register operation failed",
			zap.String("progress_id", progressID), zap.Error(err))
	} else {
		s.watchProgress(progressID)
	}
	writeJSON(w, http.StatusAccepted, submitAccepted{ProgressID: progressID, Message: message})
}

func (s *Server) viewOf(sess *session) reviewView {
	coord := sess.coordinator
	links := coord.Links()
	visible := make(map[string]struct{})
	for _, l := range coord.Visible() {
		visible[l.URL] = struct{}{}
	}
	patterns := coord.Patterns()

	view := reviewView{
		SessionID:     sess.id,
		State:         string(coord.State()),
		SourceURL:     coord.SourceURL(),
		Include:       patterns.Include,
		Exclude:       patterns.Exclude,
		SearchTerm:    coord.Term(),
		Links:         make([]linkView, 0, len(links)),
		SelectedCount: coord.SelectionSize(),
		TotalLinks:    len(links),
	}
	for _, l := range links {
		_, vis := visible[l.URL]
		view.Links = append(view.Links, linkView{
			URL:           l.URL,
			Text:          l.Text,
			Path:          l.Path,
			MatchesFilter: l.MatchesFilter,
			Selected:      coord.Selected(l.URL),
			Visible:       vis,
		})
	}
	return view
}
