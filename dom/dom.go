// Package dom defines the document abstraction the detection engines work on.
//
// Two backends implement it: dom/roddom drives a live Chrome tab over CDP,
// dom/htmldom evaluates a parsed HTML document in memory (inspect mode and
// tests). The engines never know which one they are talking to.
//
// Lookups never fail: a backend that cannot answer a read (detached node,
// closed tab, invalid selector) reports absence and logs at debug level.
// Actions return errors.
package dom

import "errors"

// ErrCrossOrigin is returned by FrameDocument when the embedded document
// cannot be reached from the host document.
var ErrCrossOrigin = errors.New("dom: cross-origin frame")

// ErrNotFrame is returned by FrameDocument on elements that do not embed a
// document.
var ErrNotFrame = errors.New("dom: element is not a frame")

// Node is one element of a document.
type Node interface {
	// Key identifies the element within its document. Two Node values
	// referring to the same element return the same key.
	Key() string
	// Tag is the lowercase tag name.
	Tag() string

	Attr(name string) string
	HasAttr(name string) bool

	// Text is the element's text content.
	Text() string
	// Value is the form value of input, textarea and select elements.
	Value() string
	Disabled() bool
	// ContentEditable reports whether the element is an editing host.
	ContentEditable() bool
	// HTML is the serialised outer HTML.
	HTML() string

	// Parent returns nil for the document element.
	Parent() Node
	// Contains reports whether other is this node or one of its descendants.
	Contains(other Node) bool
	Matches(selector string) bool
	// QueryAll returns matching descendants in document order.
	QueryAll(selector string) []Node
	// Closest returns the nearest inclusive ancestor matching selector.
	Closest(selector string) Node

	// FrameDocument returns the document embedded by an iframe or frame
	// element. It returns ErrCrossOrigin for inaccessible documents.
	FrameDocument() (Document, error)

	// Click dispatches a user-equivalent click.
	Click() error
	SetAttr(name, value string) error
	// SetValue writes through the native value setter and dispatches
	// bubbling input and change events.
	SetValue(text string) error
	// SetEditableContent focuses the element, replaces its content with
	// text and dispatches input, change and keyup.
	SetEditableContent(text string) error
}

// Document is a parsed or live page.
type Document interface {
	// Root is the document element.
	Root() Node
	// Body falls back to Root when the document has no body.
	Body() Node
	QueryAll(selector string) []Node
	// Origin is scheme://host[:port], empty when unknown.
	Origin() string
}

// Notifier shows a transient notice to the user. Implementations must not
// block the caller for long.
type Notifier interface {
	Notify(level Level, message string)
}

// Level classifies a notice.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(level Level, message string)

func (f NotifierFunc) Notify(level Level, message string) { f(level, message) }

// Discard is a Notifier that drops every notice.
var Discard Notifier = NotifierFunc(func(Level, string) {})

// Unique drops later occurrences of nodes with an already seen key,
// preserving order.
func Unique(nodes []Node) []Node {
	seen := make(map[string]bool, len(nodes))
	out := nodes[:0:0]
	for _, n := range nodes {
		if n == nil {
			continue
		}
		k := n.Key()
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, n)
	}
	return out
}

// Same reports whether a and b refer to the same element.
func Same(a, b Node) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Key() == b.Key()
}
