package heuristic

import (
	"strings"

	"github.com/hazyhaar/chamdiem/dom"
)

// Scope is anything selectors can be evaluated against: a document or an
// element.
type Scope interface {
	QueryAll(selector string) []dom.Node
}

// QueryUnion evaluates every selector in order and returns the union of the
// matches, deduplicated by identity, in first-seen order.
func QueryUnion(scope Scope, selectors []string) []dom.Node {
	var all []dom.Node
	for _, sel := range selectors {
		all = append(all, scope.QueryAll(sel)...)
	}
	return dom.Unique(all)
}

// FirstMatch returns the matches of the first selector that matches at
// least one element, and that selector.
func FirstMatch(scope Scope, selectors []string) ([]dom.Node, string) {
	for _, sel := range selectors {
		if nodes := scope.QueryAll(sel); len(nodes) > 0 {
			return nodes, sel
		}
	}
	return nil, ""
}

// MatchesAny reports whether n matches one of the selectors.
func MatchesAny(n dom.Node, selectors []string) bool {
	for _, sel := range selectors {
		if n.Matches(sel) {
			return true
		}
	}
	return false
}

// ClosestAny returns the nearest inclusive ancestor of n matching one of the
// selectors, trying selectors in order.
func ClosestAny(n dom.Node, selectors []string) dom.Node {
	for _, sel := range selectors {
		if c := n.Closest(sel); c != nil {
			return c
		}
	}
	return nil
}

// NearestAncestor walks up from n's parent and returns the first ancestor
// satisfying pred. The walk stops after boundary; nil means no ancestor up
// to and including boundary qualified.
func NearestAncestor(n dom.Node, pred func(dom.Node) bool, boundary dom.Node) dom.Node {
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if pred(cur) {
			return cur
		}
		if boundary != nil && dom.Same(cur, boundary) {
			return nil
		}
	}
	return nil
}

const radioSelector = `input[type="radio"]`

// Radios returns the radio inputs below n.
func Radios(n dom.Node) []dom.Node {
	return n.QueryAll(radioSelector)
}

// IsRadio reports whether n is a radio input.
func IsRadio(n dom.Node) bool {
	return n.Tag() == "input" && strings.EqualFold(n.Attr("type"), "radio")
}

// MinRadios returns a predicate true for elements holding at least min
// radio inputs.
func MinRadios(min int) func(dom.Node) bool {
	return func(n dom.Node) bool {
		return len(Radios(n)) >= min
	}
}
