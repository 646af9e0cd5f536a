package classify

import (
	"regexp"
	"strings"

	"github.com/nao1215/footprint/internal/browser"
	"github.com/nao1215/footprint/internal/model"
)

var stackURL = regexp.MustCompile(`https?://([^/\s:()]+)`)

// Fingerprint classifies one monitored API call. The calling script is the
// first URL in the call stack; its operator is looked up in the taxonomy.
func (c *Classifier) Fingerprint(call browser.FingerprintCall) model.FingerprintEvent {
	ev := model.FingerprintEvent{
		API:    model.FingerprintAPI(strings.ToLower(call.API)),
		Method: call.Method,
		Detail: call.Detail,
		At:     call.At,
	}
	for _, m := range stackURL.FindAllStringSubmatch(call.Stack, -1) {
		if d := RegistrableDomain(m[1]); d != "" {
			ev.ScriptDomain = d
			ev.Entity = c.tax.LookupHost(m[1])
			break
		}
	}
	return ev
}
