package client

// Wire DTOs for the backend ingestion endpoints. Patterns travel as parsed
// arrays; the unified comma-separated authoring string never crosses the
// wire.

type previewRequest struct {
	URL             string   `json:"url"`
	IncludePatterns []string `json:"url_include_patterns"`
	ExcludePatterns []string `json:"url_exclude_patterns"`
}

type previewLink struct {
	URL           string `json:"url"`
	Text          string `json:"text"`
	Path          string `json:"path"`
	MatchesFilter bool   `json:"matches_filter"`
}

type previewResponse struct {
	SourceURL        string        `json:"source_url"`
	CollectionType   string        `json:"collection_type"`
	IsLinkCollection bool          `json:"is_link_collection"`
	Links            []previewLink `json:"links"`
}

type submitResponse struct {
	ProgressID string `json:"progressId"`
	Message    string `json:"message"`
}

type uploadResponse struct {
	Success    bool   `json:"success"`
	ProgressID string `json:"progressId"`
	Message    string `json:"message"`
}

type progressResponse struct {
	Status  string `json:"status"`
	Percent int    `json:"progress_percent"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
}
