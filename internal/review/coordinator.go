package review

import (
	"context"
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/pattern"
)

// State is the lifecycle phase of one review session.
type State string

// Coordinator states. The only legal transitions are
// Idle -> PreviewLoading -> PreviewReady <-> FilterReapplying and from
// PreviewReady to Committed or Cancelled.
const (
	StateIdle             State = "idle"
	StatePreviewLoading   State = "preview_loading"
	StatePreviewReady     State = "preview_ready"
	StateFilterReapplying State = "filter_reapplying"
	StateCommitted        State = "committed"
	StateCancelled        State = "cancelled"
)

// Coordinator errors.
var (
	// ErrNotLinkCollection reports that the URL is not a recognized link
	// collection. It is a normal signal, not a failure: the caller falls back
	// to an unreviewed crawl.
	ErrNotLinkCollection = errors.New("url is not a recognized link collection")
	// ErrEmptySelection rejects Proceed with zero links selected.
	ErrEmptySelection = errors.New("no links selected")
	// ErrInvalidState reports an operation called outside its legal states.
	ErrInvalidState = errors.New("operation not valid in current state")
)

// Coordinator drives one review session from preview fetch to commit. It is
// safe for concurrent use; within one Coordinator only the response matching
// the most recently issued preview request is allowed to mutate state, so a
// re-filter issued while another is in flight simply supersedes it.
type Coordinator struct {
	client PreviewClient
	logger *zap.Logger

	mu        sync.Mutex
	state     State
	sourceURL string
	patterns  pattern.Set
	links     []Link
	term      string
	selection Selection
	seq       uint64
}

// NewCoordinator constructs an idle Coordinator backed by the given preview
// client.
func NewCoordinator(client PreviewClient, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		client:    client,
		logger:    logger,
		state:     StateIdle,
		selection: NewSelection(),
	}
}

// Start fetches the initial preview for url under patterns. On success the
// selection is initialized to the links the server flagged as matching the
// filter. Returns ErrNotLinkCollection when the backend does not recognize
// the URL as a collection; the session is unusable afterwards and the caller
// should submit a plain crawl instead.
func (c *Coordinator) Start(ctx context.Context, url string, patterns pattern.Set) error {
	c.mu.Lock()
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = StatePreviewLoading
	c.sourceURL = url
	c.patterns = patterns
	seq := c.nextSeq()
	c.mu.Unlock()

	preview, err := c.client.PreviewLinks(ctx, url, patterns)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq || c.state != StatePreviewLoading {
		return nil // superseded or cancelled while loading
	}
	if err != nil {
		c.state = StateIdle
		return err
	}
	if !preview.IsLinkCollection {
		c.state = StateCancelled
		return ErrNotLinkCollection
	}
	c.applyPreview(preview)
	c.state = StatePreviewReady
	c.logger.Debug("preview loaded",
		zap.String("source_url", url),
		zap.Int("links", len(c.links)),
		zap.Int("auto_selected", c.selection.Len()))
	return nil
}

// ApplyFilters re-fetches the preview for the same source URL under a new
// pattern set. On success the link list is replaced and the selection resets
// to the fresh auto-match set; manual edits made before the re-filter are
// discarded. A response belonging to a superseded request is ignored.
func (c *Coordinator) ApplyFilters(ctx context.Context, patterns pattern.Set) error {
	c.mu.Lock()
	if c.state != StatePreviewReady && c.state != StateFilterReapplying {
		c.mu.Unlock()
		return ErrInvalidState
	}
	c.state = StateFilterReapplying
	url := c.sourceURL
	seq := c.nextSeq()
	c.mu.Unlock()

	preview, err := c.client.PreviewLinks(ctx, url, patterns)

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq != c.seq || c.state != StateFilterReapplying {
		c.logger.Debug("stale preview response discarded", zap.String("source_url", url))
		return nil
	}
	if err != nil {
		c.state = StatePreviewReady
		return err
	}
	if !preview.IsLinkCollection {
		c.state = StatePreviewReady
		return ErrNotLinkCollection
	}
	c.patterns = patterns
	c.applyPreview(preview)
	c.state = StatePreviewReady
	return nil
}

// applyPreview replaces the link set and resets selection to the links whose
// MatchesFilter flag is set. Callers hold c.mu.
func (c *Coordinator) applyPreview(preview Preview) {
	c.links = preview.Links
	auto := make([]string, 0, len(preview.Links))
	for _, link := range preview.Links {
		if link.MatchesFilter {
			auto = append(auto, link.URL)
		}
	}
	c.selection = NewSelection(auto...)
}

// Toggle flips selection membership of url. The link may be hidden by the
// active search term; selection is independent of the visible subset. URLs
// outside the current preview are ignored.
func (c *Coordinator) Toggle(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePreviewReady {
		return ErrInvalidState
	}
	if !c.hasLink(url) {
		return nil
	}
	c.selection = Reduce(c.selection, Action{Type: ActionToggle, URL: url})
	return nil
}

// SelectAll replaces the selection with every currently visible link.
func (c *Coordinator) SelectAll() error {
	return c.reduceVisible(ActionSelectAll)
}

// DeselectAll clears the selection.
func (c *Coordinator) DeselectAll() error {
	return c.reduceVisible(ActionDeselectAll)
}

// Invert flips selection membership for every currently visible link and
// leaves hidden links untouched.
func (c *Coordinator) Invert() error {
	return c.reduceVisible(ActionInvert)
}

func (c *Coordinator) reduceVisible(t ActionType) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePreviewReady {
		return ErrInvalidState
	}
	c.selection = Reduce(c.selection, Action{Type: t, Visible: c.visibleURLs()})
	return nil
}

// Search narrows the visible link list to entries whose URL, text, or path
// contains term, case-insensitively. It is view-only and never mutates the
// selection; an empty term restores the full list.
func (c *Coordinator) Search(term string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePreviewReady {
		return ErrInvalidState
	}
	c.term = term
	return nil
}

// Proceed returns the selected URLs in the preview's original link order. It
// fails with ErrEmptySelection when nothing is selected. The session stays in
// PreviewReady: a submission built from the returned URLs may still fail, and
// the user must be able to retry with the selection intact. Call Commit once
// the submission has been accepted.
func (c *Coordinator) Proceed() ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePreviewReady {
		return nil, ErrInvalidState
	}
	if c.selection.Len() == 0 {
		return nil, ErrEmptySelection
	}
	order := make([]string, 0, len(c.links))
	for _, link := range c.links {
		order = append(order, link.URL)
	}
	return c.selection.Ordered(order), nil
}

// Commit finalizes the session after its submission was accepted.
func (c *Coordinator) Commit() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StatePreviewReady {
		return ErrInvalidState
	}
	c.state = StateCommitted
	return nil
}

// Cancel discards the session. Safe to call in any state; a preview response
// still in flight is discarded when it lands.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = StateCancelled
	c.links = nil
	c.selection = NewSelection()
	c.term = ""
}

// State returns the current lifecycle phase.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SourceURL returns the URL under review.
func (c *Coordinator) SourceURL() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sourceURL
}

// Patterns returns the pattern set the current preview was filtered with.
func (c *Coordinator) Patterns() pattern.Set {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.patterns
}

// Links returns the full preview link list in original order.
func (c *Coordinator) Links() []Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Link, len(c.links))
	copy(out, c.links)
	return out
}

// Visible returns the search-filtered subset of the preview in original
// order.
func (c *Coordinator) Visible() []Link {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.visibleLinks()
}

// Term returns the active search term, empty when no search is applied.
func (c *Coordinator) Term() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.term
}

// Selected reports whether url is currently selected.
func (c *Coordinator) Selected(url string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Has(url)
}

// SelectionSize returns the number of selected links.
func (c *Coordinator) SelectionSize() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.Len()
}

func (c *Coordinator) hasLink(url string) bool {
	for _, link := range c.links {
		if link.URL == url {
			return true
		}
	}
	return false
}

func (c *Coordinator) visibleLinks() []Link {
	if c.term == "" {
		out := make([]Link, len(c.links))
		copy(out, c.links)
		return out
	}
	needle := strings.ToLower(c.term)
	var out []Link
	for _, link := range c.links {
		if strings.Contains(strings.ToLower(link.URL), needle) ||
			strings.Contains(strings.ToLower(link.Text), needle) ||
			strings.Contains(strings.ToLower(link.Path), needle) {
			out = append(out, link)
		}
	}
	return out
}

func (c *Coordinator) visibleURLs() []string {
	visible := c.visibleLinks()
	urls := make([]string, 0, len(visible))
	for _, link := range visible {
		urls = append(urls, link.URL)
	}
	return urls
}

func (c *Coordinator) nextSeq() uint64 {
	c.seq++
	return c.seq
}
