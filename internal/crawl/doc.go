// Package crawl schedules crawl tasks over a bounded pool of session workers.
//
// The Orchestrator expands the site catalog into (site, mode) tasks, skips
// the ones that already have a success checkpoint, and runs the rest with
// retries, a per-site dispatch gap and a graceful shutdown. Only terminal
// results are persisted; a task interrupted by shutdown leaves no trace and
// is crawled again on the next resumed run.
package crawl
