// Package browser defines the browser-automation collaborator used by the
// session runner and the consent engine.
//
// A Context records network activity and exposes cookies, storage and
// screenshots. A Page exposes the DOM access consent strategies need
// (visibility checks, selector clicks, control listing) across the main
// document, iframes and shadow roots.
//
// Two implementations exist: package cdp drives Chrome through the DevTools
// protocol, and package fixture serves static HTML documents for tests and
// offline debugging.
package browser
