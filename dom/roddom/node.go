package roddom

import (
	"fmt"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/chamdiem/dom"
)

// Node wraps a rod element.
type Node struct {
	el  *rod.Element
	doc *Document
	key string
}

var _ dom.Node = (*Node)(nil)

// Element returns the wrapped rod element.
func (n *Node) Element() *rod.Element { return n.el }

// Key is the CDP backend node id, stable for the element's lifetime.
func (n *Node) Key() string {
	if n.key != "" {
		return n.key
	}
	desc, err := n.el.Describe(0, false)
	if err != nil {
		n.doc.logger.Debug("roddom: describe failed", "error", err)
		n.key = "obj:" + string(n.el.Object.ObjectID)
		return n.key
	}
	n.key = fmt.Sprintf("node:%d", desc.BackendNodeID)
	return n.key
}

func (n *Node) Tag() string {
	return n.evalStr(`() => this.tagName.toLowerCase()`)
}

func (n *Node) Attr(name string) string {
	v, err := n.el.Attribute(name)
	if err != nil {
		n.doc.logger.Debug("roddom: attribute failed", "name", name, "error", err)
		return ""
	}
	if v == nil {
		return ""
	}
	return *v
}

func (n *Node) HasAttr(name string) bool {
	return n.evalBool(`(name) => this.hasAttribute(name)`, name)
}

func (n *Node) Text() string {
	return n.evalStr(`() => this.textContent || ''`)
}

func (n *Node) Value() string {
	return n.evalStr(`() => (typeof this.value === 'string' ? this.value : '')`)
}

func (n *Node) Disabled() bool {
	return n.evalBool(`() => !!this.disabled`)
}

func (n *Node) ContentEditable() bool {
	return n.evalBool(`() => !!this.isContentEditable`)
}

func (n *Node) HTML() string {
	h, err := n.el.HTML()
	if err != nil {
		n.doc.logger.Debug("roddom: html failed", "error", err)
		return ""
	}
	return h
}

func (n *Node) Parent() dom.Node {
	p, err := n.el.Parent()
	if err != nil {
		if !isNotFound(err) {
			n.doc.logger.Debug("roddom: parent failed", "error", err)
		}
		return nil
	}
	return &Node{el: p, doc: n.doc}
}

func (n *Node) Contains(other dom.Node) bool {
	o, ok := other.(*Node)
	if !ok || o == nil {
		return false
	}
	return n.evalBool(`(o) => this.contains(o)`, o.el.Object)
}

func (n *Node) Matches(selector string) bool {
	ok, err := n.el.Matches(selector)
	if err != nil {
		n.doc.logger.Debug("roddom: matches failed", "selector", selector, "error", err)
		return false
	}
	return ok
}

func (n *Node) QueryAll(selector string) []dom.Node {
	els, err := n.el.Elements(selector)
	if err != nil {
		n.doc.logger.Debug("roddom: query failed", "selector", selector, "error", err)
		return nil
	}
	return n.doc.wrapAll(els)
}

func (n *Node) Closest(selector string) dom.Node {
	el, err := n.el.ElementByJS(rod.Eval(`(s) => { try { return this.closest(s) } catch (e) { return null } }`, selector))
	if err != nil {
		if !isNotFound(err) {
			n.doc.logger.Debug("roddom: closest failed", "selector", selector, "error", err)
		}
		return nil
	}
	return &Node{el: el, doc: n.doc}
}

// FrameDocument resolves the frame's document and refuses it when its
// origin differs from the host document's.
func (n *Node) FrameDocument() (dom.Document, error) {
	if t := n.Tag(); t != "iframe" && t != "frame" {
		return nil, dom.ErrNotFrame
	}
	fr, err := n.el.Frame()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dom.ErrCrossOrigin, err)
	}
	child := New(fr, n.doc.logger)
	if o := child.Origin(); o == "" || o != n.doc.Origin() {
		return nil, dom.ErrCrossOrigin
	}
	return child, nil
}

func (n *Node) Click() error {
	if _, err := n.el.Eval(clickJS); err != nil {
		return fmt.Errorf("roddom: click: %w", err)
	}
	return nil
}

func (n *Node) SetAttr(name, value string) error {
	if _, err := n.el.Eval(`(k, v) => this.setAttribute(k, v)`, name, value); err != nil {
		return fmt.Errorf("roddom: set attribute %s: %w", name, err)
	}
	return nil
}

func (n *Node) SetValue(text string) error {
	if _, err := n.el.Eval(setValueJS, text); err != nil {
		return fmt.Errorf("roddom: set value: %w", err)
	}
	return nil
}

func (n *Node) SetEditableContent(text string) error {
	if _, err := n.el.Eval(setEditableJS, text); err != nil {
		return fmt.Errorf("roddom: set content: %w", err)
	}
	return nil
}

func (n *Node) evalStr(js string, args ...interface{}) string {
	res, err := n.el.Eval(js, args...)
	if err != nil {
		n.doc.logger.Debug("roddom: eval failed", "js", js, "error", err)
		return ""
	}
	return res.Value.Str()
}

func (n *Node) evalBool(js string, args ...interface{}) bool {
	res, err := n.el.Eval(js, args...)
	if err != nil {
		n.doc.logger.Debug("roddom: eval failed", "js", js, "error", err)
		return false
	}
	return res.Value.Bool()
}
