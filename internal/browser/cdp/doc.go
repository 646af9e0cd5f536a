// Package cdp drives Chrome through the DevTools protocol with chromedp.
//
// One Chrome process serves a whole run. Every NewContext call opens a tab
// in a fresh browser context, so cookies, storage and cache never leak
// between sessions. Site isolation is disabled so that cross-origin iframes
// stay in the page's process and can be searched for consent dialogs, and
// every shadow root is forced open before page scripts run.
package cdp
