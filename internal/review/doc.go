// Package review implements the link-review workflow that runs between
// discovering a link collection (llms.txt, sitemap.xml) and committing a
// crawl request. A Coordinator owns one review session: it fetches a preview
// from the backend, auto-selects the links that matched the active filter,
// applies user edits through an explicit selection reducer, and finally
// yields the committed URL subset in original preview order.
package review
