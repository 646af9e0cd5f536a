// Package catalog loads the list of sites to crawl.
//
// A catalog is a CSV file with a header row (url, domain, category, rank)
// or a YAML document with a top-level "sites" list. Only url is required;
// a missing domain is derived from the URL's registrable domain.
package catalog
