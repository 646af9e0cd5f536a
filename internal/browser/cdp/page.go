package cdp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"

	"github.com/nao1215/footprint/internal/browser"
)

// scope evaluates queries inside one frame, optionally below a shadow host.
type scope struct {
	c       *Context
	frameID cdp.FrameID // empty for the top-level frame
	host    string
	label   string
}

// scopeResult is what scopeScript returns.
type scopeResult struct {
	Missing  bool   `json:"missing"`
	Stale    bool   `json:"stale"`
	OK       bool   `json:"ok"`
	Label    string `json:"label"`
	Controls []struct {
		Ref     string `json:"ref"`
		Text    string `json:"text"`
		Consent bool   `json:"consent"`
	} `json:"controls"`
}

func (s *scope) Label() string { return s.label }

func (s *scope) Visible(ctx context.Context, selector string) (bool, error) {
	res, err := s.call(ctx, "visible", selector)
	if err != nil {
		return false, err
	}
	return res.OK, nil
}

func (s *scope) Click(ctx context.Context, selector string) (string, error) {
	res, err := s.call(ctx, "click", selector)
	if err != nil {
		return "", err
	}
	if res.Missing {
		return "", fmt.Errorf("%w: %s in %s", browser.ErrNoElement, selector, s.label)
	}
	return res.Label, nil
}

func (s *scope) Controls(ctx context.Context, within string) ([]browser.Control, error) {
	res, err := s.call(ctx, "controls", within)
	if err != nil {
		return nil, err
	}
	if res.Missing {
		return nil, fmt.Errorf("%w: %s in %s", browser.ErrNoElement, within, s.label)
	}
	out := make([]browser.Control, 0, len(res.Controls))
	for _, ctl := range res.Controls {
		out = append(out, browser.Control{Ref: ctl.Ref, Text: ctl.Text, InConsentContext: ctl.Consent})
	}
	return out, nil
}

func (s *scope) Press(ctx context.Context, ctl browser.Control) error {
	res, err := s.call(ctx, "press", ctl.Ref)
	if err != nil {
		return err
	}
	if res.Stale || res.Missing {
		return fmt.Errorf("%w: %q", browser.ErrStaleControl, ctl.Text)
	}
	return nil
}

func (s *scope) call(ctx context.Context, op, arg string) (*scopeResult, error) {
	expr, err := scopeExpression(op, s.host, arg)
	if err != nil {
		return nil, err
	}
	var res scopeResult
	if err := s.c.evaluate(ctx, s.frameID, expr, &res); err != nil {
		return nil, fmt.Errorf("%s in %s: %w", op, s.label, err)
	}
	return &res, nil
}

// frame is a document: the top-level page or an iframe.
type frame struct {
	scope
	url string
}

func (f *frame) URL() string {
	if f.frameID == "" {
		f.c.mu.Lock()
		defer f.c.mu.Unlock()
		return f.c.lastURL
	}
	return f.url
}

// Frames returns the iframes directly embedded in this document.
func (f *frame) Frames(ctx context.Context) ([]browser.Frame, error) {
	tree, err := f.c.frameTree(ctx)
	if err != nil {
		return nil, err
	}
	node := tree
	if f.frameID != "" {
		node = findFrame(tree, f.frameID)
	}
	if node == nil {
		return nil, nil
	}
	out := make([]browser.Frame, 0, len(node.ChildFrames))
	for _, child := range node.ChildFrames {
		if child.Frame == nil {
			continue
		}
		u := child.Frame.URL + child.Frame.URLFragment
		out = append(out, &frame{
			scope: scope{c: f.c, frameID: child.Frame.ID, label: "iframe " + u},
			url:   u,
		})
	}
	return out, nil
}

// pageScope is the top-level document.
type pageScope struct {
	frame
}

var _ browser.APICaller = (*pageScope)(nil)

// Shadow returns the shadow root of the first element matching host. Roots
// created as closed are reachable because attachShadow is patched to open
// them.
func (p *pageScope) Shadow(ctx context.Context, host string) (browser.Scope, error) {
	s := &scope{c: p.c, host: host, label: "shadow " + host}
	res, err := s.call(ctx, "root", "")
	if err != nil {
		return nil, err
	}
	if res.Missing {
		return nil, fmt.Errorf("%w: no shadow root at %s", browser.ErrNoElement, host)
	}
	return s, nil
}

// CallAPI calls window[object][method]() in the page's own JavaScript world,
// where the scripts of consent platforms live.
func (p *pageScope) CallAPI(ctx context.Context, object, method string) (bool, error) {
	expr, err := callAPIExpression(object, method)
	if err != nil {
		return false, err
	}
	var called bool
	if err := p.c.run(ctx, chromedp.Evaluate(expr, &called)); err != nil {
		return false, fmt.Errorf("failed to call %s.%s: %w", object, method, err)
	}
	return called, nil
}

// callAPIExpression fills callAPIScript with object and method as JSON strings.
func callAPIExpression(object, method string) (string, error) {
	obj, err := json.Marshal(object)
	if err != nil {
		return "", err
	}
	fn, err := json.Marshal(method)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(callAPIScript, obj, fn, fn), nil
}

func findFrame(tree *page.FrameTree, id cdp.FrameID) *page.FrameTree {
	if tree == nil {
		return nil
	}
	if tree.Frame != nil && tree.Frame.ID == id {
		return tree
	}
	for _, child := range tree.ChildFrames {
		if found := findFrame(child, id); found != nil {
			return found
		}
	}
	return nil
}

func (c *Context) frameTree(ctx context.Context) (*page.FrameTree, error) {
	var tree *page.FrameTree
	err := c.run(ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
		var err error
		tree, err = page.GetFrameTree().Do(runCtx)
		return err
	}))
	if err != nil {
		return nil, fmt.Errorf("failed to read frame tree: %w", err)
	}
	return tree, nil
}

// evaluate runs expr in an isolated world of frameID and decodes the result
// into out. A world destroyed by a navigation is recreated once.
func (c *Context) evaluate(ctx context.Context, frameID cdp.FrameID, expr string, out any) error {
	if frameID == "" {
		tree, err := c.frameTree(ctx)
		if err != nil {
			return err
		}
		if tree.Frame == nil {
			return fmt.Errorf("%w: page has no main frame", browser.ErrInfrastructure)
		}
		frameID = tree.Frame.ID
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		world, err := c.world(ctx, frameID, attempt > 0)
		if err != nil {
			return err
		}
		var obj *runtime.RemoteObject
		var exc *runtime.ExceptionDetails
		err = c.run(ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
			var err error
			obj, exc, err = runtime.Evaluate(expr).
				WithContextID(world).
				WithReturnByValue(true).
				Do(runCtx)
			return err
		}))
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				return err
			}
			continue
		}
		if exc != nil {
			return fmt.Errorf("script exception: %s", exc.Text)
		}
		if obj == nil || len(obj.Value) == 0 {
			return nil
		}
		return json.Unmarshal([]byte(obj.Value), out)
	}
	return lastErr
}

// world returns the isolated execution context of frameID, creating it when
// missing or when fresh is set.
func (c *Context) world(ctx context.Context, frameID cdp.FrameID, fresh bool) (runtime.ExecutionContextID, error) {
	c.mu.Lock()
	id, ok := c.worlds[frameID]
	c.mu.Unlock()
	if ok && !fresh {
		return id, nil
	}
	err := c.run(ctx, chromedp.ActionFunc(func(runCtx context.Context) error {
		var err error
		id, err = page.CreateIsolatedWorld(frameID).WithWorldName("footprint").Do(runCtx)
		return err
	}))
	if err != nil {
		return 0, fmt.Errorf("failed to create isolated world: %w", err)
	}
	c.mu.Lock()
	c.worlds[frameID] = id
	c.mu.Unlock()
	return id, nil
}

// scopeConfig is passed to scopeScript with every call.
type scopeConfig struct {
	Interactive string   `json:"interactive"`
	Keywords    []string `json:"keywords"`
	Depth       int      `json:"depth"`
}

// scopeExpression renders a call of scopeScript.
func scopeExpression(op, host, arg string) (string, error) {
	args, err := json.Marshal([]any{op, host, arg, scopeConfig{
		Interactive: browser.InteractiveSelector,
		Keywords:    browser.ConsentContextKeywords,
		Depth:       browser.ConsentContextDepth,
	}})
	if err != nil {
		return "", fmt.Errorf("failed to encode script arguments: %w", err)
	}
	return "(" + scopeScript + ").apply(null, " + strings.TrimSpace(string(args)) + ")", nil
}
