// Package report renders the end-of-run summary of a crawl.
//
// This package contains writers for different output formats:
//   - SimpleWriter: plain text for the terminal
//   - MarkdownWriter: a Markdown document with tables and a status chart
//   - JSONWriter: structured JSON for further processing
//
// Every writer renders the same RunReport, which combines the orchestrator's
// task counters with the per-mode aggregates read back from the store.
package report
