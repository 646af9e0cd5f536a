package classify

import (
	"encoding/hex"
	"math"
	"net"
	"net/url"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
	"golang.org/x/net/publicsuffix"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/taxonomy"
)

// Classifier turns raw browser observations into classified records.
// It holds no mutable state and is safe for concurrent use.
type Classifier struct {
	tax *taxonomy.Taxonomy
}

// New returns a classifier backed by tax. A nil taxonomy attributes nothing.
func New(tax *taxonomy.Taxonomy) *Classifier {
	if tax == nil {
		tax = taxonomy.New()
	}
	return &Classifier{tax: tax}
}

// RegistrableDomain returns the eTLD+1 of host ("www.bbc.co.uk" -> "bbc.co.uk").
// IP addresses, single-label hosts and public suffixes themselves are returned
// unchanged (lower-cased, without port or surrounding dots).
func RegistrableDomain(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, ".[]")
	if host == "" || net.ParseIP(host) != nil {
		return host
	}
	d, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return d
}

// IsThirdParty reports whether host belongs to a different registrable domain
// than siteDomain.
func IsThirdParty(siteDomain, host string) bool {
	return RegistrableDomain(host) != RegistrableDomain(siteDomain)
}

// Request classifies one network request of a session for site siteDomain.
// start is the task start; consentAt is the consent click time, zero if none.
func (c *Classifier) Request(siteDomain string, r browser.RawRequest, start, consentAt time.Time) model.ClassifiedRequest {
	host := hostOf(r.URL)
	out := model.ClassifiedRequest{
		URL:          r.URL,
		Host:         host,
		Domain:       RegistrableDomain(host),
		Method:       r.Method,
		ResourceType: strings.ToLower(r.ResourceType),
		ThirdParty:   IsThirdParty(siteDomain, host),
		StatusCode:   r.StatusCode,
		SizeBytes:    r.SizeBytes,
		Failed:       r.Failed,
		SinceStart:   r.StartedAt.Sub(start),
	}
	if !r.FinishedAt.IsZero() && r.FinishedAt.After(r.StartedAt) {
		out.Duration = r.FinishedAt.Sub(r.StartedAt)
	}
	if !consentAt.IsZero() {
		d := r.StartedAt.Sub(consentAt)
		out.SinceConsent = &d
	}
	if out.ThirdParty {
		out.Entity = c.tax.LookupURL(host, r.URL)
	}
	out.Class = ResourceClass(out)
	return out
}

// Cookie classifies one cookie observed at observedAt.
func (c *Classifier) Cookie(siteDomain string, rc browser.RawCookie, observedAt time.Time) model.ClassifiedCookie {
	domain := strings.TrimPrefix(strings.ToLower(rc.Domain), ".")
	out := model.ClassifiedCookie{
		Name:       rc.Name,
		Domain:     domain,
		Path:       rc.Path,
		ValueHash:  HashValue(rc.Value),
		Secure:     rc.Secure,
		HTTPOnly:   rc.HTTPOnly,
		SameSite:   rc.SameSite,
		ThirdParty: IsThirdParty(siteDomain, domain),
	}

	out.IsSession = rc.Session || rc.Expires.IsZero()
	if out.IsSession {
		out.LifetimeDays = model.SessionLifetimeDays
	} else {
		out.Expires = rc.Expires
		out.LifetimeDays = LifetimeDays(rc.Expires, observedAt)
	}

	if out.ThirdParty {
		out.Entity = c.tax.LookupHost(domain)
	}
	out.Tracking = out.Entity != nil

	// A known tracking name marks the cookie as tracking even when it is
	// served first-party (e.g. _ga on the site's own domain).
	if p, ok := c.tax.MatchCookie(rc.Name); ok {
		out.Tracking = true
		if out.Entity == nil && p.Entity != "" {
			out.Entity = c.tax.Entity(p.Entity)
		}
	}
	return out
}

// Storage classifies one localStorage entry. Keys are matched against the
// tracking-cookie patterns since the same identifiers are stored there.
func (c *Classifier) Storage(item browser.StorageItem) model.StorageEntry {
	_, tracking := c.tax.MatchCookie(item.Key)
	return model.StorageEntry{
		Origin:    item.Origin,
		Key:       item.Key,
		ValueSize: len(item.Value),
		Tracking:  tracking,
	}
}

// LifetimeDays returns the number of days between observedAt and expires,
// rounded to two decimals. Already expired cookies yield SessionLifetimeDays.
func LifetimeDays(expires, observedAt time.Time) float64 {
	d := expires.Sub(observedAt)
	if d <= 0 {
		return model.SessionLifetimeDays
	}
	days := d.Hours() / 24
	return math.Round(days*100) / 100
}

// HashValue returns the hex SHA3-256 digest of a cookie value.
func HashValue(v string) string {
	sum := sha3.Sum256([]byte(v))
	return hex.EncodeToString(sum[:])
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
