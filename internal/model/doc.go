// Package model defines the data types shared by the footprint crawler.
//
// The central types are:
//   - Site and ConsentMode: the two axes of the crawl matrix
//   - CrawlTask: one (site, mode) unit of work, with its attempt counter
//   - BannerMatch: the outcome of consent handling
//   - ClassifiedRequest, ClassifiedCookie, StorageEntry: enriched observations
//   - SessionResult: everything a task produced
//   - CheckpointRecord: durable completion state used for resume
//
// Models live in their own package so that the consent engine, the session
// runner, the orchestrator and the store can share them without import cycles.
package model
