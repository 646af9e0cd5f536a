// Package consent detects cookie consent banners and applies a consent mode
// (ignore, accept, reject) to them.
//
// The Engine runs a cascade of strategies, ordered from most to least
// specific:
//
//  1. known-cmp: selector definitions of known consent platforms, main document
//  2. iframe-cmp: the same definitions inside iframes
//  3. css-heuristic: containers whose id or class looks like a banner
//  4. text-match: any visible control whose label contains a mode phrase
//  5. iframe-text: the same inside iframes
//  6. shadow-dom: controls inside shadow roots of known consent hosts
//  7. nested-iframe: iframes inside iframes
//
// Phrases are matched on Unicode-folded labels, and a label is attributed to
// the intent of its longest matching phrase, so "Nesouhlasím" is a reject
// control even though it contains the accept phrase "souhlasím".
//
// Two-step banners that only show "Settings" are handled by a single reveal
// click followed by a second pass of strategies 3 to 6.
package consent
