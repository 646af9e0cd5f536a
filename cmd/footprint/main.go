// Package main provides the entry point for the footprint CLI.
//
// footprint visits a catalog of websites in a real Chrome browser once per
// consent mode (ignore, accept, reject), records the trackers each visit
// contacts and stores the classified observations in SQLite.
//
// Usage:
//
//	footprint crawl --sites sites.csv
//	footprint crawl --resume
//	footprint detect page.html --mode reject
//
// See --help for all available options.
package main

func main() {
	Execute()
}
