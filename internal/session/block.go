package session

import (
	"fmt"
	"strings"

	"github.com/nao1215/footprint/internal/browser"
)

// blockStatusCodes are document status codes served by anti-bot layers.
var blockStatusCodes = map[int]bool{
	401: true,
	403: true,
	429: true,
	503: true,
}

// blockSignatures appear in the title or text of challenge and denial pages.
var blockSignatures = []string{
	"cf-chl",
	"just a moment",
	"attention required",
	"checking your browser",
	"captcha",
	"access denied",
	"request blocked",
	"are you a robot",
	"are you human",
	"ddos-guard",
	"px-captcha",
	"přístup odepřen",
	"ověření, že nejste robot",
}

// detectBlock returns the reason nav looks like a blocked visit, or "" when
// it does not. A signature only counts when no subresource loaded
// successfully; a real page that mentions "captcha" still loads its assets.
func detectBlock(nav *browser.Navigation, reqs []browser.RawRequest) string {
	if blockStatusCodes[nav.StatusCode] {
		return fmt.Sprintf("document status %d", nav.StatusCode)
	}
	if loadedSubresources(nav, reqs) > 0 {
		return ""
	}
	text := strings.ToLower(nav.Title + " " + nav.Text)
	for _, sig := range blockSignatures {
		if strings.Contains(text, sig) {
			return fmt.Sprintf("block signature %q", sig)
		}
	}
	return ""
}

func loadedSubresources(nav *browser.Navigation, reqs []browser.RawRequest) int {
	n := 0
	for _, r := range reqs {
		if r.Failed || r.URL == nav.URL || strings.EqualFold(r.ResourceType, "document") {
			continue
		}
		if r.StatusCode == 0 || (r.StatusCode >= 200 && r.StatusCode < 400) {
			n++
		}
	}
	return n
}
