package commenting

import (
	"errors"

	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/heuristic"
)

// Root source labels, in fallback order.
const (
	SourceSelector = "selector"
	SourceOrigin   = "origin"
	SourceGrading  = "grading"
	SourceDocument = "document"
)

// Root is the container a fill pass works inside.
type Root struct {
	Node   dom.Node
	Source string
}

// Field is one fillable surface.
type Field struct {
	Node dom.Node
	Kind heuristic.Kind
	// Frame is set for surfaces found inside an embedded document.
	Frame bool
}

// LocateRoot picks the comment root:
//
//  1. an explicit comment-root match, preferring the one enclosing origin;
//  2. the nearest ancestor of origin holding a comment field;
//  3. the grading root;
//  4. the document body.
//
// origin and gradingRoot may be nil.
func (e *Engine) LocateRoot(doc dom.Document, origin, gradingRoot dom.Node) *Root {
	if origin != nil {
		if c := heuristic.ClosestAny(origin, e.vocab.CommentRoots); c != nil {
			return &Root{Node: c, Source: SourceSelector}
		}
	}
	if nodes, _ := heuristic.FirstMatch(doc, e.vocab.CommentRoots); len(nodes) > 0 {
		return &Root{Node: nodes[0], Source: SourceSelector}
	}

	if origin != nil {
		holds := func(n dom.Node) bool { return len(e.Fields(doc, n)) > 0 }
		if a := heuristic.NearestAncestor(origin, holds, nil); a != nil {
			return &Root{Node: a, Source: SourceOrigin}
		}
	}

	if gradingRoot != nil {
		return &Root{Node: gradingRoot, Source: SourceGrading}
	}
	if body := doc.Body(); body != nil {
		return &Root{Node: body, Source: SourceDocument}
	}
	return nil
}

// Fields collects the fillable surfaces under root, in discovery order:
// explicit comment editors, editing hosts, hinted ambiguous inputs (only
// when no explicit editor matched) and editable surfaces of same-origin
// frames. Cross-origin frames are skipped.
func (e *Engine) Fields(doc dom.Document, root dom.Node) []Field {
	if root == nil {
		return nil
	}
	explicit := heuristic.QueryUnion(root, e.vocab.CommentFields)
	cands := append([]dom.Node{}, explicit...)
	cands = append(cands, heuristic.QueryUnion(root, e.vocab.EditableFields)...)

	if len(explicit) == 0 {
		for _, n := range heuristic.QueryUnion(root, e.vocab.AmbiguousFields) {
			if heuristic.HasHint(n, e.vocab.CommentHints) {
				cands = append(cands, n)
			}
		}
	}

	var fields []Field
	seen := make(map[string]bool)
	add := func(n dom.Node, frame bool) {
		if seen[n.Key()] || n.Disabled() || n.HasAttr("readonly") {
			return
		}
		kind := heuristic.FieldKind(n)
		if kind == heuristic.KindUnknown {
			return
		}
		// An editing host already collected owns its inner editables.
		for _, f := range fields {
			if f.Node.Contains(n) {
				return
			}
		}
		seen[n.Key()] = true
		fields = append(fields, Field{Node: n, Kind: kind, Frame: frame})
	}

	for _, n := range dom.Unique(cands) {
		if isFrame(n) {
			for _, fn := range e.frameFields(n) {
				add(fn, true)
			}
			continue
		}
		add(n, false)
	}
	for _, f := range heuristic.QueryUnion(root, e.vocab.Frames) {
		for _, fn := range e.frameFields(f) {
			add(fn, true)
		}
	}
	return fields
}

// frameFields resolves an embedded document to its editable surfaces: the
// body when it is an editing host, else the editors inside it.
func (e *Engine) frameFields(frame dom.Node) []dom.Node {
	fd, err := frame.FrameDocument()
	if err != nil {
		if errors.Is(err, dom.ErrCrossOrigin) {
			e.logger.Debug("commenting: frame skipped", "error", err)
		}
		return nil
	}
	body := fd.Body()
	if body == nil {
		return nil
	}
	if body.ContentEditable() {
		return []dom.Node{body}
	}
	sels := append(append([]string{}, e.vocab.CommentFields...), e.vocab.EditableFields...)
	return heuristic.QueryUnion(fd, sels)
}

func isFrame(n dom.Node) bool {
	t := n.Tag()
	return t == "iframe" || t == "frame"
}
