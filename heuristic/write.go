package heuristic

import (
	"fmt"
	"strings"

	"github.com/hazyhaar/chamdiem/dom"
)

// Kind is how a field takes text.
type Kind int

const (
	KindUnknown Kind = iota
	// KindValue fields hold a form value (input, textarea, select).
	KindValue
	// KindEditable fields are editing hosts or textbox widgets.
	KindEditable
)

func (k Kind) String() string {
	switch k {
	case KindValue:
		return "value"
	case KindEditable:
		return "editable"
	default:
		return "unknown"
	}
}

// FieldKind classifies n.
func FieldKind(n dom.Node) Kind {
	switch n.Tag() {
	case "input", "textarea", "select":
		return KindValue
	}
	if n.ContentEditable() || n.Attr("role") == "textbox" {
		return KindEditable
	}
	return KindUnknown
}

// CurrentText is the field's trimmed content.
func CurrentText(n dom.Node) string {
	if FieldKind(n) == KindValue {
		return strings.TrimSpace(n.Value())
	}
	return strings.TrimSpace(n.Text())
}

// WriteText writes text into n through the pathway its kind requires.
func WriteText(n dom.Node, text string) error {
	switch FieldKind(n) {
	case KindValue:
		return n.SetValue(text)
	case KindEditable:
		return n.SetEditableContent(text)
	default:
		return fmt.Errorf("heuristic: <%s> does not take text", n.Tag())
	}
}
