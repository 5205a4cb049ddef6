// Package main hosts the ingestion service entrypoint.
//
// Architecture overview:
//   - HTTP API: internal/api.Server exposes health, metrics, URL validation,
//     link review sessions, crawl/upload submission, and operation endpoints.
//     Crawl inputs are validated and normalized into request.CrawlRequest
//     payloads before being handed to the backend.
//   - Review sessions: each POST /v1/review opens a review.Coordinator that
//     fetches a link preview from the backend and holds the selection state
//     server-side. Selection actions, search, and filter re-application run
//     against the session until proceed submits the selected URLs.
//   - Request building: internal/request normalizes URLs (with a fail-open
//     DNS-over-HTTPS existence check), classifies crawl targets, applies the
//     GitHub repository preset, and assembles the final crawl payloads.
//   - Operation tracking: accepted submissions are registered with the
//     tracker, which polls the backend's progress endpoint until the
//     operation reaches a terminal status and fans snapshots out to the log,
//     Prometheus, and store sinks. History is kept in memory or in Postgres
//     when db.dsn is configured.
//   - Configuration & plumbing: Viper populates config from env/files; zap
//     provides structured logging; Prometheus metrics are exported via
//     /metrics. The service holds review sessions in memory, so a single
//     replica owns a session for its lifetime.
//
// Quick checklist:
//   - Configure env vars: INGEST_SERVER_PORT, INGEST_BACKEND_BASE_URL,
//     INGEST_RESOLVER_ENABLED, INGEST_INGEST_MAX_DEPTH_DEFAULT, and
//     INGEST_DB_DSN when persistence beyond memory is required.
//   - Run locally: go run ./cmd/ingestd -config config.yaml (or rely solely
//     on env overrides).
package main
