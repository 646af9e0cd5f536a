package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/footprint/internal/classify"
	"github.com/nao1215/footprint/internal/model"
)

// yamlCatalog is the YAML document layout.
type yamlCatalog struct {
	Sites []model.Site `yaml:"sites"`
}

// Load reads the catalog at path. Files ending in .yaml or .yml are decoded
// as YAML, everything else as CSV.
func Load(path string) ([]model.Site, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the user's config
	if err != nil {
		return nil, fmt.Errorf("failed to open site catalog: %w", err)
	}
	defer f.Close()

	var sites []model.Site
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		sites, err = ReadYAML(f)
	default:
		sites, err = ReadCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sites, nil
}

// ReadCSV parses a CSV catalog. Header names are matched case-insensitively;
// "rank_cz" is accepted as an alias of "rank". Blank rows are skipped.
func ReadCSV(r io.Reader) ([]model.Site, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyCatalog
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	cols := map[string]int{}
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "rank_cz" {
			name = "rank"
		}
		if _, dup := cols[name]; !dup {
			cols[name] = i
		}
	}
	if _, ok := cols["url"]; !ok {
		return nil, ErrMissingURLColumn
	}
	field := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var sites []model.Site
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv: %w", err)
		}
		if field(row, "url") == "" {
			continue
		}
		site := model.Site{
			URL:      field(row, "url"),
			Domain:   field(row, "domain"),
			Category: field(row, "category"),
		}
		if rank := field(row, "rank"); rank != "" {
			n, err := strconv.Atoi(rank)
			if err != nil || n < 0 {
				return nil, fmt.Errorf("%w: line %d: rank %q", ErrInvalidSite, line, rank)
			}
			site.Rank = n
		}
		if site, err = Normalize(site); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		sites = append(sites, site)
	}
	if len(sites) == 0 {
		return nil, ErrEmptyCatalog
	}
	return sites, nil
}

// ReadYAML parses a YAML catalog.
func ReadYAML(r io.Reader) ([]model.Site, error) {
	var doc yamlCatalog
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyCatalog
		}
		return nil, fmt.Errorf("failed to decode yaml catalog: %w", err)
	}
	sites := make([]model.Site, 0, len(doc.Sites))
	for i, s := range doc.Sites {
		if strings.TrimSpace(s.URL) == "" {
			continue
		}
		if s.Rank < 0 {
			return nil, fmt.Errorf("%w: entry %d: negative rank", ErrInvalidSite, i+1)
		}
		site, err := Normalize(s)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i+1, err)
		}
		sites = append(sites, site)
	}
	if len(sites) == 0 {
		return nil, ErrEmptyCatalog
	}
	return sites, nil
}

// Normalize completes a site entry: the URL gets an https scheme when it has
// none and its trailing slash removed, and the domain defaults to the
// registrable domain of the URL host.
func Normalize(site model.Site) (model.Site, error) {
	raw := strings.TrimSpace(site.URL)
	if !strings.HasPrefix(raw, "http://") && !strings.HasPrefix(raw, "https://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return site, fmt.Errorf("%w: url %q", ErrInvalidSite, site.URL)
	}
	site.URL = strings.TrimRight(raw, "/")

	site.Domain = strings.ToLower(strings.TrimSpace(site.Domain))
	if site.Domain == "" {
		site.Domain = classify.RegistrableDomain(u.Hostname())
	}
	site.Category = strings.TrimSpace(site.Category)
	return site, nil
}

// Limit returns the first n sites, or all of them when n is not positive.
func Limit(sites []model.Site, n int) []model.Site {
	if n <= 0 || n >= len(sites) {
		return sites
	}
	return sites[:n]
}
