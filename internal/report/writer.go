package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/nao1215/footprint/internal/crawl"
	"github.com/nao1215/footprint/internal/model"
	"github.com/nao1215/footprint/internal/store"
)

// Writer renders a RunReport.
type Writer interface {
	// Write outputs the report and returns the number of bytes written.
	Write(report *RunReport) (int, error)
}

// TaskCounts describes how the scheduled tasks ended.
type TaskCounts struct {
	Total     int `json:"total"`
	Skipped   int `json:"skipped"`
	Completed int `json:"completed"`
	Remaining int `json:"remaining"`
	Retries   int `json:"retries"`
	Abandoned int `json:"abandoned"`
}

// RunReport is the data shown in a run summary.
type RunReport struct {
	RunID       string          `json:"run_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Elapsed     time.Duration   `json:"elapsed_ns"`
	Tasks       TaskCounts      `json:"tasks"`
	Stats       *store.RunStats `json:"stats"`
}

// NewRunReport combines the orchestrator summary with store aggregates.
// stats may be nil when the store could not be read.
func NewRunReport(sum *crawl.Summary, stats *store.RunStats, generatedAt time.Time) *RunReport {
	r := &RunReport{
		RunID:       sum.RunID,
		GeneratedAt: generatedAt,
		Elapsed:     sum.Elapsed,
		Tasks: TaskCounts{
			Total:     sum.Total,
			Skipped:   sum.Skipped,
			Completed: sum.Completed,
			Remaining: sum.Remaining(),
			Retries:   sum.Retries,
			Abandoned: sum.Abandoned,
		},
		Stats: stats,
	}
	if r.Stats == nil {
		r.Stats = &store.RunStats{
			RunID:    sum.RunID,
			ByStatus: make(map[model.Status]int),
			ByMode:   make(map[model.ConsentMode]store.ModeStats),
		}
	}
	return r
}

// Failures returns the number of sessions that ended in a non-success status.
func (r *RunReport) Failures() int {
	n := 0
	for status, count := range r.Stats.ByStatus {
		if status != model.StatusSuccess {
			n += count
		}
	}
	return n
}

// statusOrder is the display order of session statuses.
var statusOrder = []model.Status{
	model.StatusSuccess,
	model.StatusTimeout,
	model.StatusError,
	model.StatusBlocked,
}

// modes returns the consent modes present in the report in canonical order.
func (r *RunReport) modes() []model.ConsentMode {
	var out []model.ConsentMode
	for _, m := range model.AllConsentModes() {
		if _, ok := r.Stats.ByMode[m]; ok {
			out = append(out, m)
		}
	}
	return out
}

// WriteFile writes the report to path, choosing the format by extension:
// .json for JSON, .txt for plain text, Markdown otherwise.
func WriteFile(path string, report *RunReport) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create summary directory: %w", err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path comes from the command line
	if err != nil {
		return fmt.Errorf("failed to create summary file: %w", err)
	}

	var w Writer
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		w = NewJSONWriter(f, WithPrettyPrint())
	case ".txt":
		w = NewSimpleWriter(f)
	default:
		w = NewMarkdownWriter(f)
	}
	if _, err := w.Write(report); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write summary: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close summary file: %w", err)
	}
	return nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// percent formats part/whole as a percentage with one decimal.
func percent[T int | int64](part, whole T) string {
	if whole == 0 {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", float64(part)*100/float64(whole))
}

// byteSize formats n bytes in SI units ("1.2 MB").
func byteSize(n int64) string {
	if n <= 0 {
		return "0 B"
	}
	return humanize.Bytes(uint64(n))
}

// truncateString truncates a string to maxLen runes with ellipsis.
func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return string(r[:maxLen])
	}
	return string(r[:maxLen-3]) + "..."
}
