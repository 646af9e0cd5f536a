package taxonomy

import (
	"strings"

	"github.com/nao1215/footprint/internal/model"
)

// CookiePattern matches tracking cookies by name.
// A trailing "*" in Name turns the pattern into a case-insensitive prefix match;
// otherwise the match is exact and case-insensitive.
type CookiePattern struct {
	Name string `json:"name" yaml:"name"`

	// Entity optionally attributes matching cookies to a tracker entity.
	Entity string `json:"entity,omitempty" yaml:"entity,omitempty"`
}

// Match reports whether the cookie name matches the pattern.
func (p CookiePattern) Match(name string) bool {
	if prefix, ok := strings.CutSuffix(p.Name, "*"); ok {
		return len(name) >= len(prefix) && strings.EqualFold(name[:len(prefix)], prefix)
	}
	return strings.EqualFold(name, p.Name)
}

type pathRule struct {
	pattern string
	entity  *model.TrackerEntity
}

// Taxonomy maps hosts, URL fingerprints and cookie names to tracker entities.
// A Taxonomy is built once at startup and is read-only afterwards, so it is
// safe for concurrent use by all session workers.
type Taxonomy struct {
	// domains maps a lower-case domain to its (per-domain categorised) entity.
	domains map[string]*model.TrackerEntity

	// entities maps an entity name to its canonical record.
	entities map[string]*model.TrackerEntity

	paths   []pathRule
	cookies []CookiePattern
}

// New returns an empty taxonomy.
func New() *Taxonomy {
	return &Taxonomy{
		domains:  make(map[string]*model.TrackerEntity),
		entities: make(map[string]*model.TrackerEntity),
	}
}

// Builtin returns a taxonomy preloaded with the built-in entity table,
// URL fingerprints and tracking-cookie patterns.
func Builtin() *Taxonomy {
	t := New()
	for _, b := range builtinEntities {
		entity := b.entity
		t.AddEntity(entity)
		for domain, category := range b.domains {
			e := entity
			e.Category = category
			t.AddDomain(domain, e)
		}
	}
	for _, p := range builtinPathPatterns {
		t.AddPathPattern(p.pattern, p.entity)
	}
	t.cookies = append(t.cookies, builtinCookiePatterns...)
	return t
}

// AddEntity registers or replaces an entity record by name.
func (t *Taxonomy) AddEntity(e model.TrackerEntity) {
	t.entities[e.Name] = &e
}

// AddDomain attributes domain (and all of its subdomains) to e.
// Later additions override earlier ones, which lets custom tables
// refine the built-in data.
func (t *Taxonomy) AddDomain(domain string, e model.TrackerEntity) {
	domain = normalizeHost(domain)
	if domain == "" {
		return
	}
	if _, ok := t.entities[e.Name]; !ok {
		t.AddEntity(e)
	}
	t.domains[domain] = &e
}

// AddPathPattern attributes URLs containing pattern to the named entity.
// Unknown entity names are registered with the "other" category.
func (t *Taxonomy) AddPathPattern(pattern, entity string) {
	e, ok := t.entities[entity]
	if !ok {
		t.AddEntity(model.TrackerEntity{Name: entity, Category: model.CategoryOther})
		e = t.entities[entity]
	}
	t.paths = append(t.paths, pathRule{pattern: strings.ToLower(pattern), entity: e})
}

// AddCookiePattern registers a tracking-cookie name pattern.
func (t *Taxonomy) AddCookiePattern(p CookiePattern) {
	t.cookies = append(t.cookies, p)
}

// Entity returns the entity registered under name, or nil.
func (t *Taxonomy) Entity(name string) *model.TrackerEntity {
	return t.entities[name]
}

// Len returns the number of attributed domains.
func (t *Taxonomy) Len() int {
	return len(t.domains)
}

// LookupHost attributes a host name. It tries an exact match first and then
// walks up the label hierarchy (ads.doubleclick.net -> doubleclick.net).
// It returns nil for unknown hosts.
func (t *Taxonomy) LookupHost(host string) *model.TrackerEntity {
	host = normalizeHost(host)
	for host != "" {
		if e, ok := t.domains[host]; ok {
			return e
		}
		i := strings.IndexByte(host, '.')
		if i < 0 {
			break
		}
		host = host[i+1:]
		// Never attribute by a bare TLD.
		if !strings.Contains(host, ".") {
			break
		}
	}
	return nil
}

// LookupURL attributes a request by host and, failing that, by the URL
// fingerprints of known ad networks. rawURL is matched as a lower-case substring.
func (t *Taxonomy) LookupURL(host, rawURL string) *model.TrackerEntity {
	if e := t.LookupHost(host); e != nil {
		return e
	}
	lower := strings.ToLower(rawURL)
	for _, rule := range t.paths {
		if strings.Contains(lower, rule.pattern) {
			return rule.entity
		}
	}
	return nil
}

// MatchCookie returns the first tracking pattern matching name.
func (t *Taxonomy) MatchCookie(name string) (CookiePattern, bool) {
	for _, p := range t.cookies {
		if p.Match(name) {
			return p, true
		}
	}
	return CookiePattern{}, false
}

func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(host))
	host = strings.TrimPrefix(host, ".")
	return strings.TrimSuffix(host, ".")
}
