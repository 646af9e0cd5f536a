// Package session runs a single crawl attempt.
//
// A session opens an isolated browser context, loads the site, lets the
// consent engine act on the banner, dwells and scrolls so that delayed
// trackers fire, then classifies every request, cookie and storage entry it
// observed. Failures are folded into the result status; the orchestrator
// decides whether to retry and when to persist.
package session
