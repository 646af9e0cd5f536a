package classify

import (
	"strings"

	"github.com/nao1215/footprint/internal/model"
)

// cdnHosts serve shared libraries and fonts for the site itself.
var cdnHosts = map[string]bool{
	"cdnjs.cloudflare.com":       true,
	"fonts.googleapis.com":       true,
	"fonts.gstatic.com":          true,
	"cdn.jsdelivr.net":           true,
	"unpkg.com":                  true,
	"ajax.googleapis.com":        true,
	"maxcdn.bootstrapcdn.com":    true,
	"stackpath.bootstrapcdn.com": true,
	"code.jquery.com":            true,
}

var cdnFragments = []string{
	"cloudfront.net", "akamaized.net", "akamai.net", "fastly.net", "azureedge.net", "cloudflare.com",
}

// functionalDomains are third parties that provide a feature, not tracking.
var functionalDomains = map[string]bool{
	"recaptcha.net":         true,
	"hcaptcha.com":          true,
	"stripe.com":            true,
	"paypal.com":            true,
	"braintreegateway.com":  true,
	"gstatic.com":           true,
	"twimg.com":             true,
	"mapy.cz":               true,
	"gopay.cz":              true,
	"comgate.cz":            true,
	"zasilkovna.cz":         true,
	"packeta.com":           true,
	"platebnibrana.csob.cz": true,
}

var functionalFragments = []string{"maps.google", "maps.googleapis", "recaptcha", "hcaptcha"}

// adFragments catch ad servers missing from the taxonomy.
var adFragments = []string{
	"doubleclick.net", "googlesyndication.com", "googleadservices.com",
	"amazon-adsystem.com", "adnxs.com", "adsrvr.org", "sklik.cz", "sssp.cz", "r2b2.cz", "imedia.cz",
}

// ResourceClass decides what a classified request is loaded for. Tracker
// categories of the taxonomy win over the host lists; the lists win over
// the remaining entity categories.
func ResourceClass(r model.ClassifiedRequest) model.ResourceClass {
	if !r.ThirdParty {
		return model.ResourceFirstParty
	}
	if r.Entity != nil {
		switch r.Entity.Category {
		case model.CategoryAdvertising:
			return model.ResourceAd
		case model.CategoryAnalytics, model.CategorySocial, model.CategoryMarketing:
			return model.ResourceTracker
		}
	}

	host := r.Host
	switch {
	case cdnHosts[host] || containsAny(host, cdnFragments):
		return model.ResourceCDN
	case functionalDomains[r.Domain] || functionalDomains[host] || containsAny(host, functionalFragments):
		return model.ResourceFunctional
	case containsAny(host, adFragments):
		return model.ResourceAd
	}

	if r.Entity == nil {
		return model.ResourceUnknown
	}
	switch r.Entity.Category {
	case model.CategoryCDN:
		return model.ResourceCDN
	case model.CategoryConsent:
		return model.ResourceFunctional
	default:
		return model.ResourceTracker
	}
}

func containsAny(s string, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(s, f) {
			return true
		}
	}
	return false
}
