// Package request validates and normalizes user input for knowledge
// ingestion and assembles the crawl payload submitted to the backend.
package request

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/kbforge/ingest/internal/pattern"
)

// Validation errors. ErrDomainNotResolved is a soft warning: the normalized
// URL is still returned alongside it and submission stays allowed.
var (
	ErrInvalidURLFormat  = errors.New("invalid url format")
	ErrInvalidDomain     = errors.New("invalid domain")
	ErrDomainNotResolved = errors.New("domain did not resolve")
)

// CrawlType labels how the target URL will be interpreted. It is informative
// only and does not change execution semantics.
type CrawlType string

// Crawl type labels.
const (
	CrawlTypeNormal  CrawlType = "normal"
	CrawlTypeSitemap CrawlType = "sitemap"
	CrawlTypeLLMsTxt CrawlType = "llms-txt"
)

// Knowledge source kinds transmitted in knowledge_type.
const (
	KnowledgeTypeURL  = "url"
	KnowledgeTypeFile = "file"
)

// Resolver checks whether a hostname has a DNS answer. Implementations are
// best-effort side checks; transport failures must not block the caller.
type Resolver interface {
	Resolve(ctx context.Context, host string) (bool, error)
}

// CrawlRequest is the final payload for the crawl submission endpoint.
type CrawlRequest struct {
	URL             string   `json:"url"`
	KnowledgeType   string   `json:"knowledge_type"`
	MaxDepth        int      `json:"max_depth"`
	Tags            []string `json:"tags"`
	IncludePatterns []string `json:"url_include_patterns,omitempty"`
	ExcludePatterns []string `json:"url_exclude_patterns,omitempty"`
	SelectedURLs    []string `json:"selected_urls,omitempty"`
	SkipLinkReview  bool     `json:"skip_link_review"`
}

// Form carries the user-authored crawl input before validation. Patterns is
// the unified comma-separated string; it is parsed into arrays before
// transmission and never sent as-is. The Edited flags mark fields the user
// has customized so the GitHub heuristic will not overwrite them.
type Form struct {
	URL           string
	Patterns      string
	Tags          []string
	MaxDepth      int
	PatternEdited bool
	DepthEdited   bool
}

// Builder validates URLs and assembles crawl requests.
type Builder struct {
	resolver        Resolver
	logger          *zap.Logger
	defaultMaxDepth int
}

// NewBuilder constructs a Builder. resolver may be nil to skip the DNS
// existence check entirely.
func NewBuilder(resolver Resolver, defaultMaxDepth int, logger *zap.Logger) *Builder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultMaxDepth <= 0 {
		defaultMaxDepth = 1
	}
	return &Builder{
		resolver:        resolver,
		logger:          logger,
		defaultMaxDepth: defaultMaxDepth,
	}
}

// DefaultMaxDepth returns the depth applied to forms that leave it unset.
func (b *Builder) DefaultMaxDepth() int {
	return b.defaultMaxDepth
}

// ValidateURL normalizes and validates raw. A missing scheme gets https://
// prepended. Hostnames that are empty, "localhost", or a bare IPv4 address
// are accepted immediately; everything else must contain a dot and end in a
// TLD of at least two characters. The DNS existence check is fail-open: any
// resolver failure accepts the URL, and only an explicit no-answer response
// returns the normalized URL together with ErrDomainNotResolved.
func (b *Builder) ValidateURL(ctx context.Context, raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrInvalidURLFormat
	}
	if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
		s = "https://" + s
	}
	u, err := url.Parse(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidURLFormat, err)
	}
	host := u.Hostname()
	if host == "" || host == "localhost" || net.ParseIP(host) != nil {
		return u.String(), nil
	}
	if !strings.Contains(host, ".") {
		return "", fmt.Errorf("%w: %q has no dot", ErrInvalidDomain, host)
	}
	labels := strings.Split(host, ".")
	if tld := labels[len(labels)-1]; len(tld) < 2 {
		return "", fmt.Errorf("%w: top-level domain %q too short", ErrInvalidDomain, tld)
	}
	if b.resolver != nil {
		resolved, err := b.resolver.Resolve(ctx, host)
		if err != nil {
			// Never block the user on an auxiliary check.
			b.logger.Debug("dns existence check failed open",
				zap.String("host", host), zap.Error(err))
			return u.String(), nil
		}
		if !resolved {
			return u.String(), fmt.Errorf("%w: %s", ErrDomainNotResolved, host)
		}
	}
	return u.String(), nil
}

// ClassifyCrawlType labels a target URL. URLs containing "sitemap.xml" are
// sitemaps; URLs containing "llms" and ending in ".txt" are llms.txt
// collections; everything else is a normal crawl.
func ClassifyCrawlType(target string) CrawlType {
	lower := strings.ToLower(target)
	switch {
	case strings.Contains(lower, "sitemap.xml"):
		return CrawlTypeSitemap
	case strings.Contains(lower, "llms") && strings.HasSuffix(lower, ".txt"):
		return CrawlTypeLLMsTxt
	default:
		return CrawlTypeNormal
	}
}

// BuildReviewed assembles the payload for a crawl whose link review produced
// a selection.
func (b *Builder) BuildReviewed(form Form, selectedURLs []string) CrawlRequest {
	req := b.base(form)
	req.SelectedURLs = selectedURLs
	req.SkipLinkReview = false
	return req
}

// BuildUnreviewed assembles the payload for a crawl submitted without link
// review.
func (b *Builder) BuildUnreviewed(form Form) CrawlRequest {
	req := b.base(form)
	req.SkipLinkReview = true
	return req
}

func (b *Builder) base(form Form) CrawlRequest {
	depth := form.MaxDepth
	if depth <= 0 {
		depth = b.defaultMaxDepth
	}
	req := CrawlRequest{
		URL:           form.URL,
		KnowledgeType: KnowledgeTypeURL,
		MaxDepth:      depth,
		Tags:          form.Tags,
	}
	if req.Tags == nil {
		req.Tags = []string{}
	}
	set := pattern.Parse(form.Patterns)
	if !set.IsEmpty() {
		req.IncludePatterns = set.Include
		req.ExcludePatterns = set.Exclude
	}
	return req
}
