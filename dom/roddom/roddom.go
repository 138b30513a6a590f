// Package roddom implements dom.Document over a live Chrome tab driven by
// go-rod. Every call is a CDP round trip; the engines query sparingly.
package roddom

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/chamdiem/dom"
)

// Document wraps a rod page or frame.
type Document struct {
	page   *rod.Page
	logger *slog.Logger

	originOnce sync.Once
	origin     string
}

var _ dom.Document = (*Document)(nil)

// New wraps page. The page's context bounds every call made through the
// returned document.
func New(page *rod.Page, logger *slog.Logger) *Document {
	if logger == nil {
		logger = slog.Default()
	}
	return &Document{page: page, logger: logger}
}

// Page returns the wrapped rod page.
func (d *Document) Page() *rod.Page { return d.page }

func (d *Document) Root() dom.Node {
	return d.first("html")
}

func (d *Document) Body() dom.Node {
	if b := d.first("body"); b != nil {
		return b
	}
	return d.Root()
}

func (d *Document) QueryAll(selector string) []dom.Node {
	els, err := d.page.Elements(selector)
	if err != nil {
		d.logger.Debug("roddom: query failed", "selector", selector, "error", err)
		return nil
	}
	return d.wrapAll(els)
}

func (d *Document) Origin() string {
	d.originOnce.Do(func() {
		res, err := d.page.Eval(`() => location.origin`)
		if err != nil {
			d.logger.Debug("roddom: origin lookup failed", "error", err)
			return
		}
		d.origin = res.Value.Str()
	})
	return d.origin
}

// Wrap exposes an element obtained elsewhere (e.g. from a binding payload).
func (d *Document) Wrap(el *rod.Element) dom.Node {
	return &Node{el: el, doc: d}
}

// ElementByKey resolves a node previously tagged with the given marker
// attribute value.
func (d *Document) ElementByKey(attr, value string) dom.Node {
	sel := "[" + attr + `="` + strings.ReplaceAll(value, `"`, `\"`) + `"]`
	return d.first(sel)
}

func (d *Document) first(selector string) dom.Node {
	nodes := d.QueryAll(selector)
	if len(nodes) == 0 {
		return nil
	}
	return nodes[0]
}

func (d *Document) wrapAll(els rod.Elements) []dom.Node {
	out := make([]dom.Node, 0, len(els))
	for _, el := range els {
		out = append(out, &Node{el: el, doc: d})
	}
	return out
}

func isNotFound(err error) bool {
	var nf *rod.ElementNotFoundError
	return errors.As(err, &nf)
}
