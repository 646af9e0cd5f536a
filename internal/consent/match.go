package consent

import (
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/model"
)

// intent is what clicking a control would do.
type intent int

const (
	intentNone intent = iota
	intentAccept
	intentReject
	intentReveal
)

// fold normalises a label or phrase for comparison: NFC, Unicode case
// folding and collapsed whitespace, so "PŘIJMOUT  VŠE" equals "přijmout vše".
func fold(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	return cases.Fold().String(norm.NFC.String(s))
}

type phrase struct {
	text   string
	intent intent
}

// matcher classifies control labels by the phrase lists of a Rules value.
type matcher struct {
	// ordered holds the phrases of each intent in priority order.
	ordered map[intent][]string

	// all is used to find the longest matching phrase of any intent.
	all []phrase

	maxLabel int
	minFree  int
}

func newMatcher(r Rules) *matcher {
	m := &matcher{
		ordered:  make(map[intent][]string),
		maxLabel: r.MaxLabelLength,
		minFree:  r.MinFreeLabelLength,
	}
	add := func(in intent, list []string) {
		for _, p := range list {
			f := fold(p)
			if f == "" {
				continue
			}
			m.ordered[in] = append(m.ordered[in], f)
			m.all = append(m.all, phrase{text: f, intent: in})
		}
	}
	add(intentAccept, r.AcceptPhrases)
	add(intentReject, r.RejectPhrases)
	add(intentReveal, r.RevealPhrases)
	return m
}

// classify returns the intent owning the longest phrase contained in label.
// "Nesouhlasím" therefore reads as reject even though it contains "souhlasím".
func (m *matcher) classify(label string) intent {
	best, bestLen := intentNone, 0
	for _, p := range m.all {
		if len(p.text) > bestLen && strings.Contains(label, p.text) {
			best, bestLen = p.intent, len(p.text)
		}
	}
	return best
}

// eligible filters out labels that are too long to be buttons, and very short
// labels outside of any consent container.
func (m *matcher) eligible(c browser.Control, trusted bool) bool {
	n := utf8.RuneCountInString(c.Text)
	if n == 0 || (m.maxLabel > 0 && n > m.maxLabel) {
		return false
	}
	if !trusted && !c.InConsentContext && n < m.minFree {
		return false
	}
	return true
}

// pick returns the first control, in phrase priority order, whose label has
// the wanted intent. trusted marks scopes that are consent UI as a whole
// (consent iframes, shadow hosts, banner containers).
func (m *matcher) pick(controls []browser.Control, want intent, trusted bool) []browser.Control {
	folded := make([]string, len(controls))
	intents := make([]intent, len(controls))
	for i, c := range controls {
		if !m.eligible(c, trusted) {
			continue
		}
		folded[i] = fold(c.Text)
		intents[i] = m.classify(folded[i])
	}

	var out []browser.Control
	used := make([]bool, len(controls))
	for _, p := range m.ordered[want] {
		for i, c := range controls {
			if used[i] || intents[i] != want || !strings.Contains(folded[i], p) {
				continue
			}
			used[i] = true
			out = append(out, c)
		}
	}
	return out
}

func modeIntent(mode model.ConsentMode) intent {
	switch mode {
	case model.ConsentReject:
		return intentReject
	default:
		return intentAccept
	}
}
