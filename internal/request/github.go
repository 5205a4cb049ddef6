package request

import (
	"regexp"
	"slices"
)

// GitHub repository URLs get a preset restricting the crawl to directory and
// file views; issues, pull requests, actions, and wikis match neither
// pattern and are implicitly excluded.
const (
	GitHubPatternPreset = "**/tree/**, **/blob/**"
	GitHubTag           = "GitHub Repo"
	GitHubMaxDepth      = 3
)

var githubRepoRe = regexp.MustCompile(`(?i)^(https?://)?(www\.)?github\.com/[^/\s]+/[^/\s]+`)

// IsGitHubRepoURL reports whether raw points at a GitHub repository
// (owner/repo), with or without scheme and www prefix.
func IsGitHubRepoURL(raw string) bool {
	return githubRepoRe.MatchString(raw)
}

// ApplyGitHubPreset mutates form with the GitHub auto-configuration when the
// URL is a GitHub repository. It is evaluated on every URL change and never
// overwrites a field the user customized: the pattern preset only fills an
// untouched empty field, the tag is appended only when absent, and the depth
// is raised only while still at defaultDepth. Returns true when anything
// changed.
func ApplyGitHubPreset(form *Form, defaultDepth int) bool {
	if form == nil || !IsGitHubRepoURL(form.URL) {
		return false
	}
	changed := false
	if form.Patterns == "" && !form.PatternEdited {
		form.Patterns = GitHubPatternPreset
		changed = true
	}
	if !slices.Contains(form.Tags, GitHubTag) {
		form.Tags = append(form.Tags, GitHubTag)
		changed = true
	}
	if (form.MaxDepth == defaultDepth || form.MaxDepth == 0) && !form.DepthEdited {
		form.MaxDepth = GitHubMaxDepth
		changed = true
	}
	return changed
}
