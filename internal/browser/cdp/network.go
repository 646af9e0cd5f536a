package cdp

import (
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"

	"github.com/nao1215/footprint/internal/browser"
)

// recorder collects network events of one tab into RawRequests.
type recorder struct {
	now func() time.Time

	mu    sync.Mutex
	order []*browser.RawRequest
	live  map[network.RequestID]*browser.RawRequest
	hops  int
}

func newRecorder(now func() time.Time) *recorder {
	return &recorder{now: now, live: make(map[network.RequestID]*browser.RawRequest)}
}

func (r *recorder) handle(ev any) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		// A redirect reuses the request id; the previous hop is finished
		// with the redirect status and kept under a derived id.
		if prev, ok := r.live[e.RequestID]; ok && e.RedirectResponse != nil {
			r.hops++
			prev.ID = fmt.Sprintf("%s.redirect%d", e.RequestID, r.hops)
			prev.StatusCode = int(e.RedirectResponse.Status)
			prev.FinishedAt = r.now()
		}
		req := &browser.RawRequest{
			ID:           string(e.RequestID),
			URL:          e.Request.URL,
			Method:       e.Request.Method,
			ResourceType: string(e.Type),
			StartedAt:    r.now(),
		}
		r.live[e.RequestID] = req
		r.order = append(r.order, req)

	case *network.EventResponseReceived:
		if req, ok := r.live[e.RequestID]; ok && e.Response != nil {
			req.StatusCode = int(e.Response.Status)
			if req.ResourceType == "" {
				req.ResourceType = string(e.Type)
			}
		}

	case *network.EventLoadingFinished:
		if req, ok := r.live[e.RequestID]; ok {
			req.SizeBytes = int64(e.EncodedDataLength)
			req.FinishedAt = r.now()
		}

	case *network.EventLoadingFailed:
		if req, ok := r.live[e.RequestID]; ok {
			req.Failed = true
			req.ErrorText = e.ErrorText
			req.FinishedAt = r.now()
		}
	}
}

// snapshot returns copies of the recorded requests in start order.
func (r *recorder) snapshot() []browser.RawRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]browser.RawRequest, 0, len(r.order))
	for _, req := range r.order {
		out = append(out, *req)
	}
	return out
}

// origins returns the distinct HTTP origins contacted so far.
func (r *recorder) origins() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, req := range r.order {
		o := originOf(req.URL)
		if o == "" || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	return out
}
