package fixture

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"github.com/nao1215/footprint/internal/browser"
)

// Page is a static HTML document that behaves enough like a live page for
// consent handling:
//
//   - elements with the hidden attribute, display:none or visibility:hidden
//     (on themselves or an ancestor) are invisible
//   - <iframe srcdoc="..."> documents are reachable through Frames
//   - <template shadowrootmode="open|closed"> is the shadow root of its parent
//   - clicking an element with data-reveals="selector" unhides the matches
//   - clicking an element with data-hides="selector" hides the matches
//   - clicking an element with data-fail fails like a detached element
//   - <script data-api="Didomi.setUserAgreeToAll ..."> declares functions
//     that CallAPI can call
type Page struct {
	*frame

	mu     sync.Mutex
	refs   []*html.Node
	clicks []string

	// onClick is invoked after every successful click.
	onClick func(label string)
}

// NewPage parses document as the page at url.
func NewPage(document, url string) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(document))
	if err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", url, err)
	}
	p := &Page{}
	p.frame = &frame{
		scope:  scope{page: p, label: "main", root: doc.Selection},
		url:    url,
		frames: make(map[*html.Node]*frame),
	}
	return p, nil
}

var _ browser.APICaller = (*Page)(nil)

// Title returns the document title.
func (p *Page) Title() string {
	return strings.TrimSpace(p.root.Find("title").First().Text())
}

// Text returns the collapsed text of the body.
func (p *Page) Text() string {
	return collapse(p.root.Find("body").Text())
}

// Clicks returns the labels of all clicked elements in click order.
func (p *Page) Clicks() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.clicks...)
}

// Shadow returns the declarative shadow root of the first host matching sel.
func (p *Page) Shadow(ctx context.Context, sel string) (browser.Scope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var root *goquery.Selection
	p.root.Find(sel).EachWithBreak(func(_ int, host *goquery.Selection) bool {
		if inTemplate(host.Nodes[0], nil) {
			return true
		}
		if t := host.ChildrenFiltered("template[shadowrootmode]"); t.Length() > 0 {
			root = t.First()
			return false
		}
		return true
	})
	if root == nil {
		return nil, browser.ErrNoElement
	}
	return &scope{page: p, label: "shadow " + sel, root: root, shadow: true}, nil
}

// CallAPI implements browser.APICaller for the functions declared by
// data-api scripts. A successful call counts as a click labelled
// "object.method()".
func (p *Page) CallAPI(ctx context.Context, object, method string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	want := object + "." + method
	found := false
	p.root.Find("script[data-api]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		for _, fn := range strings.Fields(s.AttrOr("data-api", "")) {
			if fn == want {
				found = true
				return false
			}
		}
		return true
	})
	if !found {
		return false, nil
	}
	p.clicked(want + "()")
	return true, nil
}

func (p *Page) register(n *html.Node) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refs = append(p.refs, n)
	return "fx-" + strconv.Itoa(len(p.refs)-1)
}

func (p *Page) lookup(ref string) (*html.Node, bool) {
	i, err := strconv.Atoi(strings.TrimPrefix(ref, "fx-"))
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil || i < 0 || i >= len(p.refs) {
		return nil, false
	}
	return p.refs[i], true
}

func (p *Page) clicked(label string) {
	p.mu.Lock()
	p.clicks = append(p.clicks, label)
	cb := p.onClick
	p.mu.Unlock()
	if cb != nil {
		cb(label)
	}
}

// frame is a document: the page itself or an iframe srcdoc.
type frame struct {
	scope

	url string

	mu     sync.Mutex
	frames map[*html.Node]*frame
}

func (f *frame) URL() string { return f.url }

func (f *frame) Frames(ctx context.Context) ([]browser.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []browser.Frame
	var parseErr error
	f.root.Find("iframe[srcdoc]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		n := s.Nodes[0]
		if !f.visibleNode(n) {
			return true
		}
		child, err := f.child(n, s)
		if err != nil {
			parseErr = err
			return false
		}
		out = append(out, child)
		return true
	})
	return out, parseErr
}

func (f *frame) child(n *html.Node, s *goquery.Selection) (*frame, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.frames[n]; ok {
		return c, nil
	}
	srcdoc, _ := s.Attr("srcdoc")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(srcdoc))
	if err != nil {
		return nil, fmt.Errorf("failed to parse iframe srcdoc: %w", err)
	}
	src := s.AttrOr("src", "about:srcdoc")
	c := &frame{
		scope:  scope{page: f.page, label: "iframe " + src, root: doc.Selection},
		url:    src,
		frames: make(map[*html.Node]*frame),
	}
	f.frames[n] = c
	return c, nil
}

// scope is a searchable tree: a document or a shadow root template.
type scope struct {
	page   *Page
	label  string
	root   *goquery.Selection
	shadow bool
}

func (s *scope) Label() string { return s.label }

// find returns the matches of sel that belong to this scope: nested shadow
// templates are excluded.
func (s *scope) find(sel string) []*html.Node {
	var out []*html.Node
	var boundary *html.Node
	if s.shadow {
		boundary = s.root.Nodes[0]
	}
	s.root.Find(sel).Each(func(_ int, m *goquery.Selection) {
		if !inTemplate(m.Nodes[0], boundary) {
			out = append(out, m.Nodes[0])
		}
	})
	return out
}

func (s *scope) firstVisible(sel string) *html.Node {
	for _, n := range s.find(sel) {
		if s.visibleNode(n) {
			return n
		}
	}
	return nil
}

func (s *scope) Visible(ctx context.Context, sel string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return s.firstVisible(sel) != nil, nil
}

func (s *scope) Click(ctx context.Context, sel string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	n := s.firstVisible(sel)
	if n == nil {
		return "", browser.ErrNoElement
	}
	label := labelOf(n)
	if err := s.activate(n, label); err != nil {
		return "", err
	}
	return label, nil
}

func (s *scope) Controls(ctx context.Context, within string) ([]browser.Control, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candidates := s.find(browser.InteractiveSelector)
	if within != "" {
		container := s.firstVisible(within)
		if container == nil {
			return nil, browser.ErrNoElement
		}
		var inside []*html.Node
		for _, n := range candidates {
			if isDescendant(n, container) {
				inside = append(inside, n)
			}
		}
		candidates = inside
	}

	var out []browser.Control
	for _, n := range candidates {
		if !s.visibleNode(n) {
			continue
		}
		out = append(out, browser.Control{
			Ref:              s.page.register(n),
			Text:             labelOf(n),
			InConsentContext: inConsentContext(n),
		})
	}
	return out, nil
}

func (s *scope) Press(ctx context.Context, c browser.Control) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n, ok := s.page.lookup(c.Ref)
	if !ok || !s.visibleNode(n) {
		return browser.ErrStaleControl
	}
	return s.activate(n, c.Text)
}

// activate applies the click effects declared on n.
func (s *scope) activate(n *html.Node, label string) error {
	if _, fail := attr(n, "data-fail"); fail {
		return fmt.Errorf("%w: %q is covered by another element", browser.ErrStaleControl, label)
	}
	if sel, ok := attr(n, "data-reveals"); ok {
		s.root.Find(sel).Each(func(_ int, m *goquery.Selection) {
			m.RemoveAttr("hidden")
			if style, ok := m.Attr("style"); ok && hidesByStyle(style) {
				m.RemoveAttr("style")
			}
		})
	}
	if sel, ok := attr(n, "data-hides"); ok {
		s.root.Find(sel).SetAttr("hidden", "")
	}
	s.page.clicked(label)
	return nil
}

// visibleNode walks up from n; a shadow scope continues into its host.
func (s *scope) visibleNode(n *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		if _, hidden := attr(cur, "hidden"); hidden {
			return false
		}
		if style, ok := attr(cur, "style"); ok && hidesByStyle(style) {
			return false
		}
	}
	return true
}

func hidesByStyle(style string) bool {
	s := strings.ReplaceAll(strings.ToLower(style), " ", "")
	return strings.Contains(s, "display:none") || strings.Contains(s, "visibility:hidden")
}

func inConsentContext(n *html.Node) bool {
	depth := 0
	for cur := n; cur != nil && depth <= browser.ConsentContextDepth; cur = cur.Parent {
		if cur.Type != html.ElementNode {
			continue
		}
		depth++
		if role, _ := attr(cur, "role"); role == "dialog" || role == "alertdialog" {
			return true
		}
		id, _ := attr(cur, "id")
		class, _ := attr(cur, "class")
		haystack := strings.ToLower(cur.Data + " " + id + " " + class)
		for _, kw := range browser.ConsentContextKeywords {
			if strings.Contains(haystack, kw) {
				return true
			}
		}
	}
	return false
}

// inTemplate reports whether n sits inside a template element below boundary.
func inTemplate(n, boundary *html.Node) bool {
	for cur := n.Parent; cur != nil && cur != boundary; cur = cur.Parent {
		if cur.Type == html.ElementNode && cur.Data == "template" {
			return true
		}
	}
	return false
}

func isDescendant(n, ancestor *html.Node) bool {
	for cur := n; cur != nil; cur = cur.Parent {
		if cur == ancestor {
			return true
		}
	}
	return false
}

func labelOf(n *html.Node) string {
	if n.Data == "input" {
		if v, ok := attr(n, "value"); ok {
			return collapse(v)
		}
	}
	if t := collapse(goquery.NewDocumentFromNode(n).Text()); t != "" {
		return t
	}
	for _, a := range []string{"aria-label", "title"} {
		if v, ok := attr(n, a); ok {
			return collapse(v)
		}
	}
	return ""
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
