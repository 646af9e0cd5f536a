// Package classify enriches raw browser observations.
//
// A request or cookie is first-party when its registrable domain (eTLD+1,
// from the public suffix list) equals the site's registrable domain. Only
// third-party items are attributed to a tracker entity by host; cookies whose
// name matches a known tracking pattern are flagged as tracking regardless of
// where they were set. Cookie values are reduced to a SHA3-256 digest.
package classify
