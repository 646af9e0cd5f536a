package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// SimpleWriter outputs a plain-text summary for terminal display.
type SimpleWriter struct {
	baseWriter

	// showEmpty controls whether sections without data are shown.
	showEmpty bool
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithShowEmpty configures the writer to show empty sections.
func WithShowEmpty(show bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.showEmpty = show
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{baseWriter: newBaseWriter(output)}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write outputs the summary in human-readable format.
func (w *SimpleWriter) Write(report *RunReport) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, report)
	w.writeTasks(&sb, report)
	w.writeModes(&sb, report)
	w.writeWeight(&sb, report)
	w.writeEntities(&sb, report)

	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, report *RunReport) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                      FOOTPRINT CRAWL SUMMARY\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Run ID:     %s\n", report.RunID)
	fmt.Fprintf(sb, "Generated:  %s\n", report.GeneratedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(sb, "Elapsed:    %s\n", report.Elapsed.Round(time.Second))
	sb.WriteString("\n")
}

func (w *SimpleWriter) section(sb *strings.Builder, title string) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	sb.WriteString(title)
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")
}

func (w *SimpleWriter) writeTasks(sb *strings.Builder, report *RunReport) {
	w.section(sb, "TASKS")

	t := report.Tasks
	fmt.Fprintf(sb, "  Scheduled:  %d (%d already complete)\n", t.Total, t.Skipped)
	fmt.Fprintf(sb, "  Completed:  %d\n", t.Completed)
	fmt.Fprintf(sb, "  Remaining:  %d\n", t.Remaining)
	fmt.Fprintf(sb, "  Retries:    %d\n", t.Retries)
	if t.Abandoned > 0 || w.showEmpty {
		fmt.Fprintf(sb, "  Abandoned:  %d\n", t.Abandoned)
	}
	sb.WriteString("\n")

	for _, status := range statusOrder {
		n := report.Stats.ByStatus[status]
		if n == 0 && !w.showEmpty {
			continue
		}
		fmt.Fprintf(sb, "  %-9s %5d  %6s\n", status, n, percent(n, report.Stats.Sessions))
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeModes(sb *strings.Builder, report *RunReport) {
	modes := report.modes()
	if len(modes) == 0 && !w.showEmpty {
		return
	}
	w.section(sb, "CONSENT MODES (successful sessions)")

	if len(modes) == 0 {
		sb.WriteString("  No successful sessions\n\n")
		return
	}
	fmt.Fprintf(sb, "  %-7s %8s %8s %8s %9s %7s %8s %8s %8s %8s\n",
		"MODE", "SESSIONS", "BANNERS", "CLICKED", "REQUESTS", "3RD-PTY", "TRACKERS", "COOKIES", "TRACKING", "PRE-CONS")
	for _, m := range modes {
		s := report.Stats.ByMode[m]
		fmt.Fprintf(sb, "  %-7s %8d %8d %8d %9d %7s %8d %8d %8d %8d\n",
			m, s.Sessions, s.BannersDetected, s.ConsentActions, s.Requests,
			percent(s.ThirdPartyRequests, s.Requests), s.TrackerRequests,
			s.Cookies, s.TrackingCookies, s.CookiesBeforeConsent)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeWeight(sb *strings.Builder, report *RunReport) {
	modes := report.modes()
	if len(modes) == 0 {
		return
	}
	w.section(sb, "PAGE WEIGHT (successful sessions)")

	fmt.Fprintf(sb, "  %-7s %10s %7s %10s %10s %10s %10s %10s %8s\n",
		"MODE", "TRANSFER", "3RD-PTY", "TRACKERS", "ADS", "CDN", "FUNCTION", "UNKNOWN", "FINGERPR")
	for _, m := range modes {
		s := report.Stats.ByMode[m]
		fmt.Fprintf(sb, "  %-7s %10s %7s %10s %10s %10s %10s %10s %8d\n",
			m, byteSize(s.Bytes), percent(s.ThirdPartyBytes, s.Bytes), byteSize(s.Weight.Tracker),
			byteSize(s.Weight.Ad), byteSize(s.Weight.CDN), byteSize(s.Weight.Functional),
			byteSize(s.Weight.Unknown), s.Fingerprinting)
	}
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeEntities(sb *strings.Builder, report *RunReport) {
	if len(report.Stats.TopEntities) == 0 && !w.showEmpty {
		return
	}
	w.section(sb, "TOP TRACKER ENTITIES")

	if len(report.Stats.TopEntities) == 0 {
		sb.WriteString("  No tracker requests recorded\n\n")
		return
	}
	for i, e := range report.Stats.TopEntities {
		fmt.Fprintf(sb, "  %2d. %-30s %5d sites %7d requests\n", i+1, truncateString(e.Name, 30), e.Sites, e.Requests)
	}
	sb.WriteString("\n")
}
