package report

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/footprint/internal/crawl"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/store"
)

// createTestReport creates a report with sample data for testing.
func createTestReport() *RunReport {
	sum := &crawl.Summary{
		RunID:   "5b7c1f7e-run",
		Elapsed: 95 * time.Minute,
		Stats: crawl.Stats{
			Total:     6,
			Skipped:   3,
			Completed: 6,
			Retries:   2,
			ByStatus:  map[model.Status]int{model.StatusSuccess: 5, model.StatusBlocked: 1},
		},
	}
	stats := &store.RunStats{
		RunID:    sum.RunID,
		Sessions: 6,
		ByStatus: map[model.Status]int{model.StatusSuccess: 5, model.StatusBlocked: 1},
		ByMode: map[model.ConsentMode]store.ModeStats{
			model.ConsentAccept: {
				Sessions: 2, BannersDetected: 2, ConsentActions: 2, Requests: 400, ThirdPartyRequests: 300, TrackerRequests: 120,
				Bytes: 4_200_000, ThirdPartyBytes: 2_100_000, TrackerBytes: 900_000,
				Weight:  model.ResourceWeight{FirstParty: 2_100_000, Tracker: 700_000, Ad: 1_300_000, CDN: 100_000},
				Cookies: 60, TrackingCookies: 40, CookiesBeforeConsent: 12, Fingerprinting: 1,
			},
			model.ConsentIgnore: {Sessions: 3, BannersDetected: 3, Requests: 200, ThirdPartyRequests: 50, TrackerRequests: 10, Cookies: 9, TrackingCookies: 2, CookiesBeforeConsent: 9},
		},
		TopEntities: []store.EntityStats{{Name: "Google", Sites: 2, Requests: 90}, {Name: "Seznam.cz", Sites: 1, Requests: 20}},
	}
	return NewRunReport(sum, stats, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
}

// TestSimpleWriter tests the plain-text summary.
func TestSimpleWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes header tasks and modes", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewSimpleWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{
			"FOOTPRINT CRAWL SUMMARY",
			"5b7c1f7e-run",
			"1h35m0s",
			"Scheduled:  6 (3 already complete)",
			"blocked",
			"75.0%",
			"1. Google",
			"PAGE WEIGHT",
			"4.2 MB",
			"50.0%",
			"1.3 MB",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output does not contain %q\n%s", want, out)
			}
		}
		if strings.Index(out, "ignore") > strings.Index(out, "accept") {
			t.Error("modes are not in canonical order")
		}
		if strings.Contains(out, "Abandoned") {
			t.Error("empty abandoned count should be hidden")
		}
	})

	t.Run("show empty prints every section", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		empty := NewRunReport(&crawl.Summary{RunID: "empty"}, nil, time.Now())
		if _, err := NewSimpleWriter(&buf, WithShowEmpty(true)).Write(empty); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "No successful sessions") || !strings.Contains(out, "No tracker requests recorded") {
			t.Errorf("missing empty sections:\n%s", out)
		}
	})
}

// TestMarkdownWriter tests the Markdown summary.
func TestMarkdownWriter(t *testing.T) {
	t.Parallel()

	t.Run("writes tables chart and warning", func(t *testing.T) {
		t.Parallel()

		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(createTestReport()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		out := buf.String()
		for _, want := range []string{
			"# Footprint Crawl Summary",
			"## Consent Modes",
			"## Top Tracker Entities",
			"## Page Weight",
			"900 kB",
			"pie",
			"[!WARNING]",
			"Seznam.cz",
		} {
			if !strings.Contains(out, want) {
				t.Errorf("output does not contain %q", want)
			}
		}
	})

	t.Run("unfinished runs suggest resuming", func(t *testing.T) {
		t.Parallel()

		r := createTestReport()
		r.Tasks.Remaining = 2
		r.Tasks.Abandoned = 1
		var buf bytes.Buffer
		if _, err := NewMarkdownWriter(&buf).Write(r); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !strings.Contains(buf.String(), "--resume") {
			t.Error("expected resume hint")
		}
	})
}

// TestJSONWriter tests the JSON summary.
func TestJSONWriter(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	if _, err := NewJSONWriter(&buf, WithVersion("v0.1.0")).Write(createTestReport()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var decoded struct {
		Version string     `json:"version"`
		RunID   string     `json:"run_id"`
		Tasks   TaskCounts `json:"tasks"`
		Stats   struct {
			ByMode map[string]store.ModeStats `json:"by_mode"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded.Version != "v0.1.0" || decoded.RunID != "5b7c1f7e-run" || decoded.Tasks.Retries != 2 {
		t.Errorf("unexpected decoded report %+v", decoded)
	}
	accept := decoded.Stats.ByMode["accept"]
	if accept.TrackingCookies != 40 || accept.Bytes != 4_200_000 || accept.Weight.Ad != 1_300_000 {
		t.Errorf("mode stats not encoded: %+v", decoded.Stats.ByMode)
	}
}

// TestWriteFile tests format selection by file extension.
func TestWriteFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := []struct {
		name string
		file string
		want string
	}{
		{"markdown by default", "summary.md", "# Footprint Crawl Summary"},
		{"json extension", "out/summary.json", `"run_id"`},
		{"text extension", "summary.txt", "FOOTPRINT CRAWL SUMMARY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path := filepath.Join(dir, tt.file)
			if err := WriteFile(path, createTestReport()); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			data, err := os.ReadFile(path)
			if err != nil {
				t.Fatal(err)
			}
			if !strings.Contains(string(data), tt.want) {
				t.Errorf("%s does not contain %q", tt.file, tt.want)
			}
		})
	}
}
