// Package heuristic holds the primitive predicates the detection engines are
// built from: locale-insensitive hint matching, ordered selector evaluation,
// ancestor search and kind-aware text writes.
//
// Everything here is read-only on the document except WriteText, which
// mutates exactly one element.
package heuristic

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hazyhaar/chamdiem/dom"
)

// NormalizeText lowercases s, strips diacritics and collapses whitespace.
// "Chấm điểm" and "cham diem" normalise to the same string.
func NormalizeText(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	// đ has no decomposition.
	out = strings.Map(func(r rune) rune {
		switch r {
		case 'đ', 'Đ':
			return 'd'
		}
		return unicode.ToLower(r)
	}, out)
	return strings.Join(strings.Fields(out), " ")
}

// ContainsHint reports whether the normalised text contains any normalised
// hint. Empty hints never match.
func ContainsHint(text string, hints []string) bool {
	t := NormalizeText(text)
	if t == "" {
		return false
	}
	for _, h := range hints {
		h = NormalizeText(h)
		if h != "" && strings.Contains(t, h) {
			return true
		}
	}
	return false
}

// hintAttrs are the attributes that describe what an input is for.
var hintAttrs = []string{"name", "id", "placeholder", "aria-label", "class"}

// HintSource concatenates the descriptive attributes of n.
func HintSource(n dom.Node) string {
	parts := make([]string, 0, len(hintAttrs))
	for _, a := range hintAttrs {
		if v := n.Attr(a); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// HasHint reports whether n's descriptive attributes mention any hint.
func HasHint(n dom.Node, hints []string) bool {
	if n == nil {
		return false
	}
	return ContainsHint(HintSource(n), hints)
}

// Label is the text a user would read on a control: its text content,
// aria-label, title and, for input buttons, its value.
func Label(n dom.Node) string {
	parts := []string{n.Text(), n.Attr("aria-label"), n.Attr("title")}
	if n.Tag() == "input" {
		parts = append(parts, n.Attr("value"))
	}
	return strings.Join(parts, " ")
}

// LabelHasHint reports whether the control's label mentions any hint.
func LabelHasHint(n dom.Node, hints []string) bool {
	if n == nil {
		return false
	}
	return ContainsHint(Label(n), hints)
}
