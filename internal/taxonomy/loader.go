package taxonomy

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/nao1215/footprint/internal/model"
)

// ErrInvalidTable is returned when a tracker table cannot be parsed.
var ErrInvalidTable = errors.New("invalid tracker table")

// File is the YAML format for custom tracker tables.
//
//	entities:
//	  - name: Acme
//	    category: advertising
//	    domains: [acme-ads.example]
//	    url_patterns: ["/acme-pixel"]
//	cookie_patterns:
//	  - name: acme_*
//	    entity: Acme
type File struct {
	Entities       []FileEntity    `yaml:"entities"`
	CookiePatterns []CookiePattern `yaml:"cookie_patterns"`
}

// FileEntity is one entity of a custom table.
type FileEntity struct {
	model.TrackerEntity `yaml:",inline"`

	Domains     []string `yaml:"domains"`
	URLPatterns []string `yaml:"url_patterns"`
}

// LoadFile merges a YAML tracker table into t.
func (t *Taxonomy) LoadFile(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return fmt.Errorf("failed to read tracker table %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTable, path, err)
	}
	return t.Merge(f)
}

// Merge adds the entities and cookie patterns of f to t.
func (t *Taxonomy) Merge(f File) error {
	for _, fe := range f.Entities {
		if fe.Name == "" {
			return fmt.Errorf("%w: entity without name", ErrInvalidTable)
		}
		if fe.Category == "" {
			fe.Category = model.CategoryOther
		}
		t.AddEntity(fe.TrackerEntity)
		for _, d := range fe.Domains {
			t.AddDomain(d, fe.TrackerEntity)
		}
		for _, p := range fe.URLPatterns {
			t.AddPathPattern(p, fe.Name)
		}
	}
	for _, p := range f.CookiePatterns {
		if p.Name == "" {
			return fmt.Errorf("%w: cookie pattern without name", ErrInvalidTable)
		}
		t.AddCookiePattern(p)
	}
	return nil
}

// LoadDisconnect merges a Disconnect.me services.json document into t.
//
// The document maps category names to lists of {entity: {homepage: [domains]}}
// objects. Malformed entries are skipped; only a structurally invalid document
// is an error. It returns the number of domains added.
func (t *Taxonomy) LoadDisconnect(r io.Reader) (int, error) {
	var doc map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidTable, err)
	}

	categories := doc
	if raw, ok := doc["categories"]; ok {
		categories = nil
		if err := json.Unmarshal(raw, &categories); err != nil {
			return 0, fmt.Errorf("%w: categories: %w", ErrInvalidTable, err)
		}
	}

	count := 0
	for categoryName, raw := range categories {
		var entries []map[string]map[string]json.RawMessage
		if err := json.Unmarshal(raw, &entries); err != nil {
			continue
		}
		category := disconnectCategory(categoryName)
		for _, entry := range entries {
			for entityName, props := range entry {
				entity := model.TrackerEntity{Name: entityName, Category: category}
				for _, v := range props {
					var domains []string
					if err := json.Unmarshal(v, &domains); err != nil {
						continue
					}
					for _, d := range domains {
						if !strings.Contains(d, ".") {
							continue
						}
						t.AddDomain(d, entity)
						count++
					}
				}
			}
		}
	}
	return count, nil
}

// LoadDisconnectFile is LoadDisconnect for a file path.
func (t *Taxonomy) LoadDisconnectFile(path string) (int, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from configuration
	if err != nil {
		return 0, fmt.Errorf("failed to open disconnect list %s: %w", path, err)
	}
	defer f.Close()
	return t.LoadDisconnect(f)
}

func disconnectCategory(name string) model.TrackerCategory {
	switch strings.ToLower(name) {
	case "advertising":
		return model.CategoryAdvertising
	case "analytics":
		return model.CategoryAnalytics
	case "social", "facebook", "twitter":
		return model.CategorySocial
	case "content", "cryptomining", "fingerprinting":
		return model.CategoryOther
	case "email", "emailaggressive":
		return model.CategoryMarketing
	default:
		return model.CategoryOther
	}
}
