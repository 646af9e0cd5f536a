package consent

import "github.com/nao1215/footprint/internal/model"

// CMP describes a known consent-management platform by selectors.
type CMP struct {
	// Name identifies the platform in results ("onetrust", "didomi", ...).
	Name string `yaml:"name"`

	// Detect matches the banner container when the platform is present.
	Detect string `yaml:"detect"`

	// Accept and Reject are tried in order; the first visible one is clicked.
	Accept []string `yaml:"accept"`
	Reject []string `yaml:"reject"`

	// Reveal opens a second layer (preferences) that holds the missing action.
	Reveal []string `yaml:"reveal,omitempty"`
}

// Selectors returns the action selectors for mode.
func (c CMP) Selectors(mode model.ConsentMode) []string {
	switch mode {
	case model.ConsentAccept:
		return c.Accept
	case model.ConsentReject:
		return c.Reject
	default:
		return nil
	}
}

// ConsentAPI describes the JavaScript API a CMP exposes on window.
// Accept and Reject name functions of Object that apply the choice without
// any visible control.
type ConsentAPI struct {
	Name   string `yaml:"name"`
	Object string `yaml:"object"`
	Accept string `yaml:"accept"`
	Reject string `yaml:"reject"`
}

// Method returns the function applying mode, or "" in ignore mode.
func (a ConsentAPI) Method(mode model.ConsentMode) string {
	switch mode {
	case model.ConsentAccept:
		return a.Accept
	case model.ConsentReject:
		return a.Reject
	default:
		return ""
	}
}

// Rules is the configurable knowledge the consent engine works with.
type Rules struct {
	// CMPs are tried in order; the first whose Detect selector is visible wins.
	CMPs []CMP

	// APIs are called in order when no control could be clicked.
	APIs []ConsentAPI

	// AcceptPhrases and RejectPhrases are matched as case-insensitive
	// substrings of control labels, in priority order.
	AcceptPhrases []string
	RejectPhrases []string

	// RevealPhrases label controls that open a settings layer.
	RevealPhrases []string

	// BannerSelectors find generic banner containers by id or class fragments.
	BannerSelectors []string

	// ShadowHosts select elements whose shadow root hosts a consent banner.
	ShadowHosts []string

	// ConsentFrameKeywords mark iframe URLs that serve consent dialogs.
	// Controls inside such iframes count as being in consent context.
	ConsentFrameKeywords []string

	// MaxLabelLength rejects controls with longer labels (paragraph links).
	MaxLabelLength int

	// MinFreeLabelLength is the minimum label length of a control matched
	// outside any consent container.
	MinFreeLabelLength int
}

// Phrases returns the action phrases for mode. Ignore mode uses the accept
// phrases to detect banners without clicking them.
func (r Rules) Phrases(mode model.ConsentMode) []string {
	if mode == model.ConsentReject {
		return r.RejectPhrases
	}
	return r.AcceptPhrases
}

// CMPByName returns the definition named name.
func (r Rules) CMPByName(name string) (CMP, bool) {
	for _, c := range r.CMPs {
		if c.Name == name {
			return c, true
		}
	}
	return CMP{}, false
}

// DefaultRules returns the built-in rules for Czech and international sites.
func DefaultRules() Rules {
	return Rules{
		CMPs:                 defaultCMPs(),
		APIs:                 []ConsentAPI{{Name: "didomi", Object: "Didomi", Accept: "setUserAgreeToAll", Reject: "setUserDisagreeToAll"}},
		AcceptPhrases:        []string{"přijmout vše", "souhlasím se vším", "povolit vše", "přijmout a zavřít", "přijmout cookies", "accept all", "allow all", "souhlasím", "přijmout", "rozumím", "accept", "agree"},
		RejectPhrases:        []string{"odmítnout vše", "pouze nezbytné", "jen nezbytné", "pouze technické", "reject all", "decline all", "nesouhlasím", "odmítnout", "reject", "decline", "disagree", "only necessary"},
		RevealPhrases:        []string{"nastavení", "nastavit", "upravit", "spravovat", "volby", "více možností", "manage", "customize", "customise", "settings", "options", "preferences"},
		BannerSelectors:      defaultBannerSelectors(),
		ShadowHosts:          []string{"szn-cwl", "#didomi-host", "cookie-consent-widget", "[data-consent-shadow]", "consent-manager", "cookie-banner"},
		ConsentFrameKeywords: []string{"consent", "cookie", "gdpr", "privacy", "cmp", "sp_message", "sourcepoint", "quantcast"},
		MaxLabelLength:       80,
		MinFreeLabelLength:   4,
	}
}

func defaultBannerSelectors() []string {
	var sels []string
	for _, frag := range []string{
		"cookie-bar", "cookie-banner", "cookie-consent", "cookie-notice", "cookie-popup",
		"cookie-modal", "cookie-dialog", "cookie-layer", "cookie-wall", "cookiebar",
		"cookiebanner", "cookieconsent", "cookienotice", "consent-banner", "consent-bar",
		"consent-popup", "consent-modal", "consent-dialog", "gdpr-banner", "gdpr-consent",
		"gdpr-popup", "privacy-bar", "privacy-banner",
	} {
		sels = append(sels, "[id*='"+frag+"']")
	}
	for _, frag := range []string{
		"cookie-bar", "cookie-banner", "cookie-consent", "cookie-notice", "cookie-popup",
		"cookie-modal", "cookie-wall", "cookiebar", "cookiebanner", "cookieconsent",
		"consent-banner", "consent-bar", "consent-popup", "consent-modal", "gdpr-banner",
		"gdpr-consent", "gdpr-popup", "privacy-bar", "privacy-banner", "cc-window", "cc-banner",
	} {
		sels = append(sels, "[class*='"+frag+"']")
	}
	return sels
}

func defaultCMPs() []CMP {
	return []CMP{
		{
			Name:   "onetrust",
			Detect: "#onetrust-banner-sdk",
			Accept: []string{"#onetrust-accept-btn-handler", ".onetrust-close-btn-handler", "#accept-recommended-btn-handler"},
			Reject: []string{"#onetrust-reject-all-handler", ".ot-pc-refuse-all-handler"},
			Reveal: []string{"#onetrust-pc-btn-handler"},
		},
		{
			Name:   "cookiebot",
			Detect: "#CybotCookiebotDialog",
			Accept: []string{"#CybotCookiebotDialogBodyLevelButtonLevelOptinAllowAll", "#CybotCookiebotDialogBodyButtonAccept", "#CybotCookiebotDialogBodyLevelButtonAccept", "a[data-cb-accept]"},
			Reject: []string{"#CybotCookiebotDialogBodyButtonDecline", "#CybotCookiebotDialogBodyLevelButtonLevelOptinDeclineAll", "a[data-cb-decline]"},
			Reveal: []string{"#CybotCookiebotDialogBodyLevelButtonCustomize"},
		},
		{
			Name:   "cookieyes",
			Detect: ".cky-consent-container",
			Accept: []string{".cky-btn-accept"},
			Reject: []string{".cky-btn-reject"},
			Reveal: []string{".cky-btn-customize"},
		},
		{
			Name:   "didomi",
			Detect: "#didomi-popup, #didomi-notice",
			Accept: []string{"#didomi-notice-agree-button", "[data-testid='notice-accept-btn']", ".didomi-components-button--color.didomi-button-highlight"},
			Reject: []string{"#didomi-notice-disagree-button", "[data-testid='notice-disagree-btn']", ".didomi-continue-without-agreeing"},
			Reveal: []string{"#didomi-notice-learn-more-button"},
		},
		{
			Name:   "quantcast",
			Detect: ".qc-cmp2-container, .qc-cmp-ui-container",
			Accept: []string{"[data-testid='GDPR-CTA-accept']", ".qc-cmp2-summary-buttons button:first-child", ".qc-cmp-button[mode='primary']"},
			Reject: []string{"[data-testid='GDPR-CTA-refuse']", ".qc-cmp2-summary-buttons button:last-child", ".qc-cmp-button[mode='secondary']"},
		},
		{
			Name:   "termly",
			Detect: "#termly-code-snippet-support",
			Accept: []string{"[data-tid='banner-accept']"},
			Reject: []string{"[data-tid='banner-decline']"},
		},
		{
			Name:   "osano",
			Detect: ".osano-cm-window",
			Accept: []string{".osano-cm-accept-all", ".osano-cm-accept"},
			Reject: []string{".osano-cm-deny", ".osano-cm-denyAll"},
		},
		{
			Name:   "trustarc",
			Detect: "#truste-consent-track, .truste_box_overlay, #consent_blackbar",
			Accept: []string{"#truste-consent-button", ".truste-consent-button", ".call[data-accept]"},
			Reject: []string{"#truste-consent-required", ".truste-consent-required"},
		},
		{
			Name:   "iubenda",
			Detect: ".iubenda-cs-container, #iubenda-cs-banner",
			Accept: []string{".iubenda-cs-accept-btn", "#iubenda-cs-accept-btn"},
			Reject: []string{".iubenda-cs-reject-btn", "#iubenda-cs-reject-btn"},
			Reveal: []string{".iubenda-cs-customize-btn"},
		},
		{
			Name:   "klaro",
			Detect: ".klaro .cookie-notice, .klaro .cookie-modal",
			Accept: []string{".klaro .cm-btn-accept-all", ".klaro .cm-btn-accept"},
			Reject: []string{".klaro .cm-btn-decline", ".klaro .cm-btn-deny"},
		},
		{
			Name:   "complianz",
			Detect: ".cmplz-cookiebanner, #cmplz-cookiebanner-container",
			Accept: []string{".cmplz-btn.cmplz-accept", ".cmplz-accept-all"},
			Reject: []string{".cmplz-btn.cmplz-deny", ".cmplz-deny"},
		},
		{
			Name:   "cookie_notice",
			Detect: "#cookie-notice, .cookie-notice-container",
			Accept: []string{"#cn-accept-cookie", ".cn-set-cookie", "#cookie-notice .cn-button"},
			Reject: []string{"#cn-refuse-cookie", ".cn-decline-cookie"},
		},
		{
			Name:   "civic_uk",
			Detect: "#ccc, .ccc-notify",
			Accept: []string{"#ccc-recommended-settings", ".ccc-accept-button"},
			Reject: []string{"#ccc-reject-settings", ".ccc-reject-button"},
		},
		{
			Name:   "sourcepoint",
			Detect: "[id^='sp_message_container']",
			Accept: []string{"button[title='Accept']", "button[title='Accept All']", "button[title='OK']"},
			Reject: []string{"button[title='Reject']", "button[title='Reject All']"},
		},
		{
			Name:   "alza",
			Detect: "div.js-cookies-info, .cookies-info",
			Accept: []string{"a.js-cookies-info-accept", ".js-cookies-info-accept"},
			Reject: []string{"a.js-cookies-info-reject", ".js-cookies-info-reject"},
		},
		{
			Name:   "idnes_content_wall",
			Detect: "#content-wall, .content-wall, .cookie-info",
			Accept: []string{".btn-cons.contentwall_ok", ".contentwall_ok", "button.accept-cookies"},
			Reject: []string{".btn-cons.contentwall_reject", "button.reject-cookies"},
		},
		{
			Name:   "allegro_group",
			Detect: "[data-testid='cookie-consent-dialog'], [data-testid='consent-popup']",
			Accept: []string{"button[data-testid='accept_home_view_action']", "button[data-testid='consent-accept-all']"},
			Reject: []string{"button[data-testid='reject_home_view_action']", "button[data-testid='consent-reject-all']"},
		},
		{
			Name:   "cpex",
			Detect: "#cpexSubs, [id^='cpexSubs']",
			Accept: []string{"#cpexSubs_consentButton", "button[id*='consent']"},
			Reject: []string{"#cpexSubs_rejectButton", "button[id*='reject']"},
		},
	}
}
