// Package fixture implements the browser collaborator over static HTML.
//
// It parses documents with goquery and understands a few conventions that
// stand in for script behaviour (hidden layers revealed by a click,
// declarative shadow roots, iframe srcdoc). Scripted network requests and
// cookies are replayed on load and after the first click, which lets the
// session runner and the orchestrator be exercised without Chrome.
//
// The detect command uses Page directly to run the consent engine against a
// saved copy of a site.
package fixture
