package taxonomy

import "github.com/nao1215/footprint/internal/model"

// builtinEntry binds an entity to the domains it operates.
// Domains may override the entity's category with a per-domain one.
type builtinEntry struct {
	entity  model.TrackerEntity
	domains map[string]model.TrackerCategory
}

const (
	adv  = model.CategoryAdvertising
	ana  = model.CategoryAnalytics
	soc  = model.CategorySocial
	cdn  = model.CategoryCDN
	mon  = model.CategoryMonitoring
	mkt  = model.CategoryMarketing
	cmpc = model.CategoryConsent
)

var builtinEntities = []builtinEntry{
	{model.TrackerEntity{Name: "Google", Parent: "Alphabet", Country: "US", Category: adv}, map[string]model.TrackerCategory{
		"google-analytics.com":  ana,
		"googletagmanager.com":  ana,
		"googleadservices.com":  adv,
		"googlesyndication.com": adv,
		"doubleclick.net":       adv,
		"googletagservices.com": adv,
		"google.com":            ana,
		"googleapis.com":        cdn,
		"gstatic.com":           cdn,
		"youtube.com":           soc,
		"ytimg.com":             cdn,
		"ggpht.com":             cdn,
		"googlevideo.com":       cdn,
		"googleusercontent.com": cdn,
	}},
	{model.TrackerEntity{Name: "Meta", Parent: "Meta Platforms", Country: "US", Category: soc}, map[string]model.TrackerCategory{
		"facebook.com":         soc,
		"facebook.net":         adv,
		"fbcdn.net":            cdn,
		"instagram.com":        soc,
		"connect.facebook.net": soc,
		"fbsbx.com":            soc,
	}},
	{model.TrackerEntity{Name: "Microsoft", Country: "US", Category: adv}, map[string]model.TrackerCategory{
		"bing.com":      adv,
		"msn.com":       adv,
		"microsoft.com": ana,
		"clarity.ms":    ana,
		"msecnd.net":    cdn,
	}},
	{model.TrackerEntity{Name: "Amazon", Country: "US", Category: adv}, map[string]model.TrackerCategory{
		"amazon-adsystem.com": adv,
		"amazonaws.com":       cdn,
		"cloudfront.net":      cdn,
	}},
	{model.TrackerEntity{Name: "Twitter/X", Parent: "X Corp", Country: "US", Category: soc}, map[string]model.TrackerCategory{
		"twitter.com": soc,
		"x.com":       soc,
		"t.co":        soc,
		"twimg.com":   cdn,
	}},
	{model.TrackerEntity{Name: "Adobe", Country: "US", Category: ana}, map[string]model.TrackerCategory{
		"demdex.net":  adv,
		"omtrdc.net":  ana,
		"2o7.net":     ana,
		"adobe.com":   ana,
		"typekit.net": cdn,
	}},
	{model.TrackerEntity{Name: "Criteo", Country: "FR", Category: adv}, map[string]model.TrackerCategory{
		"criteo.com": adv,
		"criteo.net": adv,
	}},
	{model.TrackerEntity{Name: "Taboola", Country: "US", Category: adv}, map[string]model.TrackerCategory{"taboola.com": adv}},
	{model.TrackerEntity{Name: "Outbrain", Country: "US", Category: adv}, map[string]model.TrackerCategory{"outbrain.com": adv}},
	{model.TrackerEntity{Name: "Xandr", Parent: "Microsoft", Country: "US", Category: adv}, map[string]model.TrackerCategory{"adnxs.com": adv}},
	{model.TrackerEntity{Name: "The Trade Desk", Country: "US", Category: adv}, map[string]model.TrackerCategory{"adsrvr.org": adv}},
	{model.TrackerEntity{Name: "Hotjar", Country: "MT", Category: ana}, map[string]model.TrackerCategory{"hotjar.com": ana, "hotjar.io": ana}},
	{model.TrackerEntity{Name: "HubSpot", Country: "US", Category: mkt}, map[string]model.TrackerCategory{
		"hubspot.com":      mkt,
		"hsforms.com":      mkt,
		"hs-analytics.net": ana,
		"hs-scripts.com":   mkt,
	}},
	{model.TrackerEntity{Name: "Quantcast", Country: "US", Category: adv}, map[string]model.TrackerCategory{
		"quantserve.com": adv,
		"quantcount.com": ana,
	}},
	{model.TrackerEntity{Name: "Oracle", Country: "US", Category: adv}, map[string]model.TrackerCategory{
		"bluekai.com": adv,
		"addthis.com": soc,
	}},
	{model.TrackerEntity{Name: "Cloudflare", Country: "US", Category: cdn}, map[string]model.TrackerCategory{
		"cloudflare.com":         cdn,
		"cloudflareinsights.com": ana,
	}},
	{model.TrackerEntity{Name: "New Relic", Country: "US", Category: mon}, map[string]model.TrackerCategory{
		"newrelic.com": mon,
		"nr-data.net":  mon,
	}},
	{model.TrackerEntity{Name: "Sentry", Country: "US", Category: mon}, map[string]model.TrackerCategory{"sentry.io": mon}},
	{model.TrackerEntity{Name: "Pinterest", Country: "US", Category: soc}, map[string]model.TrackerCategory{
		"pinimg.com":    soc,
		"pinterest.com": soc,
	}},
	{model.TrackerEntity{Name: "LinkedIn", Parent: "Microsoft", Country: "US", Category: soc}, map[string]model.TrackerCategory{
		"linkedin.com": soc,
		"licdn.com":    cdn,
	}},
	{model.TrackerEntity{Name: "Snap", Country: "US", Category: soc}, map[string]model.TrackerCategory{
		"snapchat.com":  soc,
		"sc-static.net": cdn,
	}},
	{model.TrackerEntity{Name: "TikTok", Parent: "ByteDance", Country: "CN", Category: soc}, map[string]model.TrackerCategory{
		"tiktok.com":      soc,
		"byteoversea.com": ana,
	}},
	{model.TrackerEntity{Name: "Yandex", Country: "RU", Category: ana}, map[string]model.TrackerCategory{
		"yandex.ru":    ana,
		"mc.yandex.ru": ana,
	}},
	{model.TrackerEntity{Name: "OneTrust", Country: "US", Category: cmpc}, map[string]model.TrackerCategory{
		"cookielaw.org": cmpc,
		"onetrust.com":  cmpc,
	}},
	{model.TrackerEntity{Name: "Didomi", Country: "FR", Category: cmpc}, map[string]model.TrackerCategory{"privacy-center.org": cmpc}},
	{model.TrackerEntity{Name: "Cookiebot", Parent: "Usercentrics", Country: "DK", Category: cmpc}, map[string]model.TrackerCategory{"cookiebot.com": cmpc}},

	// Czech market
	{model.TrackerEntity{Name: "Seznam.cz", Country: "CZ", Category: adv}, map[string]model.TrackerCategory{
		"sklik.cz":   adv,
		"imedia.cz":  adv,
		"im.cz":      adv,
		"sssp.cz":    adv,
		"seznam.cz":  ana,
		"toplist.cz": ana,
		"zbozi.cz":   ana,
		"szn.cz":     cdn,
	}},
	{model.TrackerEntity{Name: "Heureka Group", Country: "CZ", Category: ana}, map[string]model.TrackerCategory{
		"heureka.cz": ana,
		"glami.cz":   ana,
		"glami.eco":  ana,
	}},
	{model.TrackerEntity{Name: "Gemius", Country: "PL", Category: ana}, map[string]model.TrackerCategory{
		"gemius.com":    ana,
		"gemius.pl":     ana,
		"gemiuscdn.com": ana,
	}},
	{model.TrackerEntity{Name: "Adform", Country: "DK", Category: adv}, map[string]model.TrackerCategory{
		"adform.net":    adv,
		"adform.com":    adv,
		"adformdsp.net": adv,
	}},
	{model.TrackerEntity{Name: "R2B2", Country: "CZ", Category: adv}, map[string]model.TrackerCategory{
		"r2b2.cz": adv,
		"r2b2.io": adv,
	}},
	{model.TrackerEntity{Name: "Impression Media", Country: "CZ", Category: adv}, map[string]model.TrackerCategory{"impressionmedia.cz": adv}},
	{model.TrackerEntity{Name: "Mediaresearch", Country: "CZ", Category: ana}, map[string]model.TrackerCategory{
		"netmonitor.cz":    ana,
		"mediaresearch.cz": ana,
	}},
	{model.TrackerEntity{Name: "Smartsupp", Country: "CZ", Category: mkt}, map[string]model.TrackerCategory{"smartsupp.com": mkt}},
	{model.TrackerEntity{Name: "Bloomreach", Country: "US", Category: mkt}, map[string]model.TrackerCategory{
		"exponea.com":    mkt,
		"bloomreach.com": mkt,
	}},
}

// builtinPathPatterns attribute requests whose host is unknown but whose
// URL carries the fingerprint of a known ad network or analytics endpoint,
// e.g. a first-party proxied Google Tag Manager.
var builtinPathPatterns = []struct {
	pattern string
	entity  string
}{
	{"/gtm.js", "Google"},
	{"/gtag/js", "Google"},
	{"/g/collect", "Google"},
	{"/pagead/", "Google"},
	{"/gampad/", "Google"},
	{"/fbevents.js", "Meta"},
	{"/tr?id=", "Meta"},
	{"/hotjar-", "Hotjar"},
	{"/retargeting.js", "Seznam.cz"},
	{"/gemius.js", "Gemius"},
	{"/xgemius.js", "Gemius"},
}

// builtinCookiePatterns are cookie names that identify tracking regardless of
// the cookie's domain. A trailing "*" makes the pattern a prefix match.
var builtinCookiePatterns = []CookiePattern{
	{Name: "_ga", Entity: "Google"},
	{Name: "_ga_*", Entity: "Google"},
	{Name: "_gid", Entity: "Google"},
	{Name: "_gat*", Entity: "Google"},
	{Name: "_gcl_*", Entity: "Google"},
	{Name: "_gac_*", Entity: "Google"},
	{Name: "IDE", Entity: "Google"},
	{Name: "NID", Entity: "Google"},
	{Name: "DSID", Entity: "Google"},
	{Name: "1P_JAR", Entity: "Google"},
	{Name: "ANID", Entity: "Google"},
	{Name: "CONSENT", Entity: "Google"},
	{Name: "_fbp", Entity: "Meta"},
	{Name: "_fbc", Entity: "Meta"},
	{Name: "fr", Entity: "Meta"},
	{Name: "datr", Entity: "Meta"},
	{Name: "sb", Entity: "Meta"},
	{Name: "_uetsid", Entity: "Microsoft"},
	{Name: "_uetvid", Entity: "Microsoft"},
	{Name: "MUID", Entity: "Microsoft"},
	{Name: "_clck", Entity: "Microsoft"},
	{Name: "_clsk", Entity: "Microsoft"},
	{Name: "_hj*", Entity: "Hotjar"},
	{Name: "hubspotutk", Entity: "HubSpot"},
	{Name: "__hs*", Entity: "HubSpot"},
	{Name: "__utm*", Entity: "Google"},
	{Name: "cto_bundle", Entity: "Criteo"},
	{Name: "cto_bidid", Entity: "Criteo"},
	{Name: "s_cc", Entity: "Adobe"},
	{Name: "s_sq", Entity: "Adobe"},
	{Name: "s_vi", Entity: "Adobe"},
	{Name: "sid", Entity: "Seznam.cz"},
	{Name: "lps", Entity: "Seznam.cz"},
	{Name: "_pk_id*"},
	{Name: "_pk_ses*"},
	{Name: "__gfp_64b", Entity: "Gemius"},
	{Name: "Gdyn", Entity: "Gemius"},
}
