package review

import (
	"context"

	"github.com/kbforge/ingest/internal/pattern"
)

// CollectionType labels the kind of link collection the backend recognized.
type CollectionType string

// Collection types reported by the preview endpoint.
const (
	CollectionLLMsTxt CollectionType = "llms-txt"
	CollectionSitemap CollectionType = "sitemap"
)

// Link is one candidate page discovered inside a link collection.
// MatchesFilter is computed server-side against the pattern set sent with
// the preview request; the client never recomputes it locally.
type Link struct {
	URL           string
	Text          string
	Path          string
	MatchesFilter bool
}

// Preview is the server-computed, read-only list of links discovered from a
// link collection.
type Preview struct {
	SourceURL        string
	CollectionType   CollectionType
	IsLinkCollection bool
	Links            []Link
}

// PreviewClient retrieves link-collection previews from the backend.
type PreviewClient interface {
	PreviewLinks(ctx context.Context, url string, patterns pattern.Set) (Preview, error)
}
