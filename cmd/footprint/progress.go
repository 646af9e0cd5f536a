package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/nao1215/footprint/internal/crawl"
	"github.com/nao1215/footprint/internal/model"
)

// progressPrinter prints one line per finished attempt:
//
//	[  3/30] success  example.cz     accept  #1  known-cmp onetrust  req=112 tracker=41 cookies=23 size=2.1 MB
type progressPrinter struct {
	mu  sync.Mutex
	out io.Writer

	ok    *color.Color
	warn  *color.Color
	fail  *color.Color
	muted *color.Color
}

var _ crawl.Observer = (*progressPrinter)(nil)

func newProgressPrinter(out io.Writer, noColor bool) *progressPrinter {
	p := &progressPrinter{
		out:   out,
		ok:    color.New(color.FgGreen),
		warn:  color.New(color.FgYellow),
		fail:  color.New(color.FgRed, color.Bold),
		muted: color.New(color.FgHiBlack),
	}
	for _, c := range []*color.Color{p.ok, p.warn, p.fail, p.muted} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return p
}

// TaskStarted is silent; dispatches show up in the debug log.
func (p *progressPrinter) TaskStarted(*model.CrawlTask, crawl.Stats) {}

func (p *progressPrinter) TaskFinished(task *model.CrawlTask, result *model.SessionResult, willRetry bool, stats crawl.Stats) {
	p.mu.Lock()
	defer p.mu.Unlock()

	width := len(fmt.Sprint(stats.Total))
	fmt.Fprintf(p.out, "[%*d/%d] ", width, stats.Completed, stats.Total)

	label, c := p.statusLabel(result, willRetry)
	_, _ = c.Fprintf(p.out, "%-9s", label)
	fmt.Fprintf(p.out, "%-24s %-6s #%d", task.Site.Domain, task.Mode, task.Attempt)

	if result != nil {
		fmt.Fprintf(p.out, "  %s", describe(result))
	}
	fmt.Fprintln(p.out)
}

func (p *progressPrinter) statusLabel(result *model.SessionResult, willRetry bool) (string, *color.Color) {
	switch {
	case result == nil:
		return "abandoned", p.muted
	case willRetry:
		return "retry", p.warn
	case result.Status == model.StatusSuccess:
		return string(result.Status), p.ok
	case result.Status == model.StatusBlocked:
		return string(result.Status), p.warn
	default:
		return string(result.Status), p.fail
	}
}

// describe summarizes the banner handling and observations of r.
func describe(r *model.SessionResult) string {
	if r.Status != model.StatusSuccess {
		return r.ErrorMessage
	}
	var parts []string
	banner := string(r.Banner.Strategy)
	if r.Banner.CMP != "" {
		banner += " " + r.Banner.CMP
	}
	if r.Mode != model.ConsentIgnore && r.Banner.Detected && !r.Banner.ActionTaken {
		banner += " (no action)"
	}
	parts = append(parts, banner)

	t := r.Totals()
	parts = append(parts, fmt.Sprintf("req=%d tracker=%d cookies=%d size=%s",
		t.Requests, t.TrackerRequests, t.Cookies, humanize.Bytes(uint64(max(t.Bytes, 0)))))
	if sev := r.FingerprintSeverity(); sev != model.SeverityNone {
		parts = append(parts, "fingerprint="+string(sev))
	}
	return strings.Join(parts, "  ")
}
