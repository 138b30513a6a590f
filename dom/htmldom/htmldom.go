// Package htmldom implements dom.Document over a parsed HTML tree.
//
// Selectors are evaluated with cascadia. Actions mutate the tree the way a
// browser would for the cases the engines rely on (radio checking, value
// writes, content replacement) and are recorded in a journal so callers can
// see exactly which events were dispatched, in which order.
package htmldom

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"

	"github.com/hazyhaar/chamdiem/dom"
)

// Event is one journal entry.
type Event struct {
	Type  string // click, focus, input, change, keyup
	Key   string
	Tag   string
	Value string // text written, for input events
}

type journal struct {
	mu     sync.Mutex
	events []Event
}

func (j *journal) add(e Event) {
	j.mu.Lock()
	j.events = append(j.events, e)
	j.mu.Unlock()
}

// ClickHook runs after a click on an element matching its selector.
type ClickHook func(n dom.Node)

type hook struct {
	sel cascadia.Selector
	fn  ClickHook
}

// Document is an in-memory dom.Document.
type Document struct {
	node    *html.Node
	origin  string
	frames  map[*html.Node]*Document
	journal *journal
	hooks   []hook
	logger  *slog.Logger
}

var _ dom.Document = (*Document)(nil)

// Parse reads an HTML document. origin is the document's scheme://host.
func Parse(r io.Reader, origin string) (*Document, error) {
	n, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("htmldom: parse: %w", err)
	}
	return &Document{
		node:    n,
		origin:  origin,
		frames:  make(map[*html.Node]*Document),
		journal: &journal{},
		logger:  slog.Default(),
	}, nil
}

// ParseString is Parse over a string.
func ParseString(s, origin string) (*Document, error) {
	return Parse(strings.NewReader(s), origin)
}

// SetLogger replaces the debug logger used for rejected selectors.
func (d *Document) SetLogger(l *slog.Logger) {
	if l != nil {
		d.logger = l
	}
}

// AttachFrame makes child the document embedded by the iframe element.
// The child shares this document's journal.
func (d *Document) AttachFrame(iframe dom.Node, child *Document) error {
	n, ok := iframe.(*Node)
	if !ok || (n.n.Data != "iframe" && n.n.Data != "frame") {
		return dom.ErrNotFrame
	}
	child.journal = d.journal
	d.frames[n.n] = child
	return nil
}

// OnClick registers a hook run after clicks on elements matching selector.
func (d *Document) OnClick(selector string, fn ClickHook) error {
	sel, err := cascadia.Compile(selector)
	if err != nil {
		return fmt.Errorf("htmldom: compile %q: %w", selector, err)
	}
	d.hooks = append(d.hooks, hook{sel: sel, fn: fn})
	return nil
}

// Journal returns a copy of the recorded events.
func (d *Document) Journal() []Event {
	d.journal.mu.Lock()
	defer d.journal.mu.Unlock()
	out := make([]Event, len(d.journal.events))
	copy(out, d.journal.events)
	return out
}

// Clicks returns the keys of clicked elements in order.
func (d *Document) Clicks() []string {
	var keys []string
	for _, e := range d.Journal() {
		if e.Type == "click" {
			keys = append(keys, e.Key)
		}
	}
	return keys
}

// First returns the first element matching selector, or nil.
func (d *Document) First(selector string) dom.Node {
	nodes := d.QueryAll(selector)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func (d *Document) Root() dom.Node {
	for c := d.node.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			return d.wrap(c)
		}
	}
	return nil
}

func (d *Document) Body() dom.Node {
	if b := d.First("body"); b != nil {
		return b
	}
	return d.Root()
}

func (d *Document) QueryAll(selector string) []dom.Node {
	return d.query(d.node, selector)
}

func (d *Document) Origin() string { return d.origin }

// Render serialises the whole document.
func (d *Document) Render() string {
	var buf bytes.Buffer
	_ = html.Render(&buf, d.node)
	return buf.String()
}

func (d *Document) wrap(n *html.Node) *Node {
	return &Node{doc: d, n: n}
}

func (d *Document) compile(selector string) (cascadia.Selector, bool) {
	if v, ok := selectorCache.Load(selector); ok {
		s, _ := v.(cascadia.Selector)
		return s, s != nil
	}
	s, err := cascadia.Compile(selector)
	if err != nil {
		d.logger.Debug("htmldom: selector rejected", "selector", selector, "error", err)
		selectorCache.Store(selector, cascadia.Selector(nil))
		return nil, false
	}
	selectorCache.Store(selector, s)
	return s, true
}

func (d *Document) query(from *html.Node, selector string) []dom.Node {
	sel, ok := d.compile(selector)
	if !ok {
		return nil
	}
	matches := cascadia.QueryAll(from, sel)
	out := make([]dom.Node, 0, len(matches))
	for _, m := range matches {
		out = append(out, d.wrap(m))
	}
	return out
}

func (d *Document) runHooks(n *Node) {
	for _, h := range d.hooks {
		if h.sel.Match(n.n) {
			h.fn(n)
		}
	}
}

var selectorCache sync.Map // string -> cascadia.Selector (nil when invalid)
