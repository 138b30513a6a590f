package grading

import (
	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/heuristic"
)

// Root source labels, in fallback order.
const (
	SourceSelector = "selector"
	SourceModal    = "modal"
	SourceTable    = "table"
	SourceDocument = "document"
	SourceDegraded = "degraded"
)

// Root is the container a pass grades inside.
type Root struct {
	Node dom.Node
	// Source tells which fallback stage produced the root.
	Source string
	// Selector is the vocabulary entry that matched, when any.
	Selector string
}

// Degraded roots hold no rating group; they exist so callers get a non-nil
// container to report on.
func (r *Root) Degraded() bool { return r != nil && r.Source == SourceDegraded }

// LocateRoot runs the root search:
//
//  1. grading-root selectors in order, first match holding a group wins; a
//     match that is itself a rating group is not a container and is skipped;
//  2. modal/dialog containers holding a group;
//  3. the table-like container with the most groups (first one wins ties);
//  4. the document body, if it holds a group anywhere;
//  5. the first grading-root selector match, even without groups.
//
// It returns nil when nothing qualifies at all.
func (e *Engine) LocateRoot(doc dom.Document) *Root {
	var firstMatch dom.Node
	var firstSel string

	for _, sel := range e.vocab.GradingRoots {
		for _, cand := range doc.QueryAll(sel) {
			if heuristic.MatchesAny(cand, e.vocab.RatingGroups) {
				continue
			}
			if firstMatch == nil {
				firstMatch, firstSel = cand, sel
			}
			if len(e.Groups(cand)) > 0 {
				return &Root{Node: cand, Source: SourceSelector, Selector: sel}
			}
		}
	}

	for _, sel := range e.vocab.ModalRoots {
		for _, cand := range doc.QueryAll(sel) {
			if len(e.Groups(cand)) > 0 {
				return &Root{Node: cand, Source: SourceModal, Selector: sel}
			}
		}
	}

	var best dom.Node
	bestCount := 0
	for _, cand := range heuristic.QueryUnion(doc, e.vocab.TableRoots) {
		// Strictly greater: the first container seen keeps a tie.
		if n := len(e.Groups(cand)); n > bestCount {
			best, bestCount = cand, n
		}
	}
	if best != nil {
		return &Root{Node: best, Source: SourceTable}
	}

	if body := doc.Body(); body != nil && len(e.Groups(body)) > 0 {
		return &Root{Node: body, Source: SourceDocument}
	}

	if firstMatch != nil {
		return &Root{Node: firstMatch, Source: SourceDegraded, Selector: firstSel}
	}
	return nil
}

// Groups enumerates the rating groups inside root:
//
//   - root itself and its descendants matching a rating-group selector;
//   - fieldsets holding at least two radio inputs;
//   - for each radio outside every group found so far, its nearest ancestor
//     holding at least two radios, root included. A lone radio forms no
//     group.
//
// Groups are deduplicated by identity and returned in discovery order.
func (e *Engine) Groups(root dom.Node) []dom.Node {
	var groups []dom.Node
	if heuristic.MatchesAny(root, e.vocab.RatingGroups) {
		groups = append(groups, root)
	}
	groups = append(groups, heuristic.QueryUnion(root, e.vocab.RatingGroups)...)

	for _, fs := range root.QueryAll("fieldset") {
		if len(heuristic.Radios(fs)) >= 2 {
			groups = append(groups, fs)
		}
	}
	groups = dom.Unique(groups)

	for _, radio := range heuristic.Radios(root) {
		if inAny(groups, radio) {
			continue
		}
		g := heuristic.NearestAncestor(radio, heuristic.MinRadios(2), root)
		if g == nil {
			// Not even root holds a second radio.
			continue
		}
		groups = dom.Unique(append(groups, g))
	}
	return groups
}

func inAny(groups []dom.Node, n dom.Node) bool {
	for _, g := range groups {
		if g.Contains(n) {
			return true
		}
	}
	return false
}
