package htmldom

import (
	"bytes"
	"fmt"
	"strings"

	"golang.org/x/net/html"

	"github.com/hazyhaar/chamdiem/dom"
)

// Node wraps an element of a Document.
type Node struct {
	doc *Document
	n   *html.Node
}

var _ dom.Node = (*Node)(nil)

func (e *Node) Key() string { return fmt.Sprintf("%p", e.n) }

func (e *Node) Tag() string { return strings.ToLower(e.n.Data) }

func (e *Node) Attr(name string) string {
	for _, a := range e.n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func (e *Node) HasAttr(name string) bool {
	for _, a := range e.n.Attr {
		if a.Key == name {
			return true
		}
	}
	return false
}

func (e *Node) Text() string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(e.n)
	return sb.String()
}

func (e *Node) Value() string {
	switch e.Tag() {
	case "textarea":
		return e.Text()
	case "select":
		for _, o := range e.doc.query(e.n, "option") {
			if o.HasAttr("selected") {
				return optionValue(o)
			}
		}
		if opts := e.doc.query(e.n, "option"); len(opts) > 0 {
			return optionValue(opts[0])
		}
		return ""
	default:
		return e.Attr("value")
	}
}

func optionValue(o dom.Node) string {
	if o.HasAttr("value") {
		return o.Attr("value")
	}
	return o.Text()
}

func (e *Node) Disabled() bool { return e.HasAttr("disabled") }

// ContentEditable follows the inherited contenteditable state.
func (e *Node) ContentEditable() bool {
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		for _, a := range n.Attr {
			if a.Key != "contenteditable" {
				continue
			}
			switch strings.ToLower(strings.TrimSpace(a.Val)) {
			case "", "true", "plaintext-only":
				return true
			case "false":
				return false
			}
		}
	}
	return false
}

func (e *Node) HTML() string {
	var buf bytes.Buffer
	_ = html.Render(&buf, e.n)
	return buf.String()
}

func (e *Node) Parent() dom.Node {
	p := e.n.Parent
	if p == nil || p.Type != html.ElementNode {
		return nil
	}
	return e.doc.wrap(p)
}

func (e *Node) Contains(other dom.Node) bool {
	o, ok := other.(*Node)
	if !ok || o == nil {
		return false
	}
	for n := o.n; n != nil; n = n.Parent {
		if n == e.n {
			return true
		}
	}
	return false
}

func (e *Node) Matches(selector string) bool {
	sel, ok := e.doc.compile(selector)
	return ok && sel.Match(e.n)
}

func (e *Node) QueryAll(selector string) []dom.Node {
	return e.doc.query(e.n, selector)
}

func (e *Node) Closest(selector string) dom.Node {
	sel, ok := e.doc.compile(selector)
	if !ok {
		return nil
	}
	for n := e.n; n != nil && n.Type == html.ElementNode; n = n.Parent {
		if sel.Match(n) {
			return e.doc.wrap(n)
		}
	}
	return nil
}

func (e *Node) FrameDocument() (dom.Document, error) {
	if t := e.Tag(); t != "iframe" && t != "frame" {
		return nil, dom.ErrNotFrame
	}
	child, ok := e.doc.frames[e.n]
	if !ok || child.origin != e.doc.origin {
		return nil, dom.ErrCrossOrigin
	}
	return child, nil
}

// Click records a click. Disabled elements ignore it like a browser does.
func (e *Node) Click() error {
	if e.Disabled() {
		return nil
	}
	if e.Tag() == "input" {
		switch strings.ToLower(e.Attr("type")) {
		case "radio":
			e.checkRadio()
		case "checkbox":
			if e.HasAttr("checked") {
				e.removeAttr("checked")
			} else {
				e.setAttr("checked", "")
			}
		}
	}
	e.record("click", "")
	e.doc.runHooks(e)
	return nil
}

func (e *Node) checkRadio() {
	name := e.Attr("name")
	if name != "" {
		for _, r := range e.doc.QueryAll(`input[type="radio"]`) {
			if r.Attr("name") == name {
				r.(*Node).removeAttr("checked")
			}
		}
	}
	e.setAttr("checked", "")
}

func (e *Node) SetAttr(name, value string) error {
	e.setAttr(name, value)
	return nil
}

func (e *Node) SetValue(text string) error {
	if e.Tag() == "textarea" {
		e.replaceChildren(text)
	} else {
		e.setAttr("value", text)
	}
	e.record("input", text)
	e.record("change", "")
	e.record("keyup", "")
	return nil
}

func (e *Node) SetEditableContent(text string) error {
	e.record("focus", "")
	e.replaceChildren(text)
	e.record("input", text)
	e.record("change", "")
	e.record("keyup", "")
	return nil
}

func (e *Node) record(typ, value string) {
	e.doc.journal.add(Event{Type: typ, Key: e.Key(), Tag: e.Tag(), Value: value})
}

func (e *Node) setAttr(name, value string) {
	for i, a := range e.n.Attr {
		if a.Key == name {
			e.n.Attr[i].Val = value
			return
		}
	}
	e.n.Attr = append(e.n.Attr, html.Attribute{Key: name, Val: value})
}

func (e *Node) removeAttr(name string) {
	attrs := e.n.Attr[:0]
	for _, a := range e.n.Attr {
		if a.Key != name {
			attrs = append(attrs, a)
		}
	}
	e.n.Attr = attrs
}

func (e *Node) replaceChildren(text string) {
	for c := e.n.FirstChild; c != nil; {
		next := c.NextSibling
		e.n.RemoveChild(c)
		c = next
	}
	if text != "" {
		e.n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
}
