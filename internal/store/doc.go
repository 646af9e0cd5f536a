// Package store persists crawl results and checkpoints in SQLite.
//
// One database file holds every run. A terminal session result and its
// checkpoint are written in a single transaction, result rows first, so that a
// success checkpoint never exists without the result it points to. Checkpoints
// are keyed by (domain, mode) and are consulted when a crawl is resumed.
//
// The store serializes writers with a single connection; it is safe for
// concurrent use by all crawl workers.
package store
