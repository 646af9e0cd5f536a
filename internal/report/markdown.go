package report

import (
	"io"
	"strconv"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"
)

// MarkdownWriter outputs the summary as a Markdown document.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{baseWriter: newBaseWriter(output)}
}

// Write outputs the summary in Markdown format.
func (w *MarkdownWriter) Write(report *RunReport) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, report)
	w.writeTasks(md, report)
	w.writeModes(md, report)
	w.writeWeight(md, report)
	w.writeEntities(md, report)

	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Generated by footprint on %s*", report.GeneratedAt.Format("2006-01-02 15:04 MST"))

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, report *RunReport) {
	md.H1("Footprint Crawl Summary")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Run ID", "`" + report.RunID + "`"},
			{"Generated", report.GeneratedAt.Format("2006-01-02 15:04:05 MST")},
			{"Elapsed", report.Elapsed.Round(time.Second).String()},
			{"Sessions", strconv.Itoa(report.Stats.Sessions)},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeTasks(md *markdown.Markdown, report *RunReport) {
	md.H2("Tasks")
	md.PlainText("")

	t := report.Tasks
	md.Table(markdown.TableSet{
		Header: []string{"Scheduled", "Already complete", "Completed", "Remaining", "Retries", "Abandoned"},
		Rows: [][]string{{
			strconv.Itoa(t.Total), strconv.Itoa(t.Skipped), strconv.Itoa(t.Completed),
			strconv.Itoa(t.Remaining), strconv.Itoa(t.Retries), strconv.Itoa(t.Abandoned),
		}},
	})
	md.PlainText("")

	rows := make([][]string, 0, len(statusOrder))
	chart := piechart.NewPieChart(io.Discard,
		piechart.WithTitle("Session status"),
		piechart.WithShowData(true),
	)
	for _, status := range statusOrder {
		n := report.Stats.ByStatus[status]
		rows = append(rows, []string{string(status), strconv.Itoa(n), percent(n, report.Stats.Sessions)})
		if n > 0 {
			chart.LabelAndIntValue(string(status), uint64(n))
		}
	}
	md.Table(markdown.TableSet{Header: []string{"Status", "Sessions", "Share"}, Rows: rows})
	md.PlainText("")
	if report.Stats.Sessions > 0 {
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case t.Abandoned > 0 || t.Remaining > 0:
		md.Importantf("The run ended with %d unfinished task(s). Run the crawl again with --resume to complete them.", t.Remaining)
	case report.Failures() > 0:
		md.Warningf("%d session(s) ended without a usable result (timeout, error or blocked).", report.Failures())
	default:
		md.Tip("Every scheduled task completed successfully.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeModes(md *markdown.Markdown, report *RunReport) {
	md.H2("Consent Modes")
	md.PlainText("")

	modes := report.modes()
	if len(modes) == 0 {
		md.PlainText("No successful sessions.")
		md.PlainText("")
		return
	}

	rows := make([][]string, 0, len(modes))
	for _, m := range modes {
		s := report.Stats.ByMode[m]
		rows = append(rows, []string{
			string(m),
			strconv.Itoa(s.Sessions),
			strconv.Itoa(s.BannersDetected),
			strconv.Itoa(s.ConsentActions),
			strconv.Itoa(s.Requests),
			percent(s.ThirdPartyRequests, s.Requests),
			strconv.Itoa(s.TrackerRequests),
			strconv.Itoa(s.Cookies),
			strconv.Itoa(s.TrackingCookies),
			strconv.Itoa(s.CookiesBeforeConsent),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Mode", "Sessions", "Banners", "Clicked", "Requests", "Third-party", "Tracker requests", "Cookies", "Tracking cookies", "Set before consent"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeWeight(md *markdown.Markdown, report *RunReport) {
	modes := report.modes()
	if len(modes) == 0 {
		return
	}
	md.H2("Page Weight")
	md.PlainText("")

	rows := make([][]string, 0, len(modes))
	for _, m := range modes {
		s := report.Stats.ByMode[m]
		rows = append(rows, []string{
			string(m),
			byteSize(s.Bytes),
			percent(s.ThirdPartyBytes, s.Bytes),
			byteSize(s.TrackerBytes),
			byteSize(s.Weight.FirstParty),
			byteSize(s.Weight.Tracker),
			byteSize(s.Weight.Ad),
			byteSize(s.Weight.CDN),
			byteSize(s.Weight.Functional),
			byteSize(s.Weight.Unknown),
			strconv.Itoa(s.Fingerprinting),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Mode", "Transferred", "Third-party", "Tracker entities", "First-party", "Tracking", "Ads", "CDN", "Functional", "Unknown", "Fingerprinting sites"},
		Rows:   rows,
	})
	md.PlainText("")
}

func (w *MarkdownWriter) writeEntities(md *markdown.Markdown, report *RunReport) {
	if len(report.Stats.TopEntities) == 0 {
		return
	}
	md.H2("Top Tracker Entities")
	md.PlainText("")

	rows := make([][]string, 0, len(report.Stats.TopEntities))
	for i, e := range report.Stats.TopEntities {
		rows = append(rows, []string{strconv.Itoa(i + 1), truncateString(e.Name, 40), strconv.Itoa(e.Sites), strconv.Itoa(e.Requests)})
	}
	md.Table(markdown.TableSet{Header: []string{"#", "Entity", "Sites", "Requests"}, Rows: rows})
	md.PlainText("")
}
