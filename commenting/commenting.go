// Package commenting finds the feedback authoring surface of the current
// item, writes text into it and optionally presses its send control.
//
// Fields are marked once filled. A later pass leaves marked fields and
// fields that already hold text alone unless it is forced.
package commenting

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/heuristic"
	"github.com/hazyhaar/chamdiem/vocab"
)

// MarkerAttr is set on a field once text was written into it.
const MarkerAttr = "data-chamdiem-filled"

// Outcome is how a fill pass ended.
type Outcome string

const (
	OutcomeEmptyText      Outcome = "empty_text"
	OutcomeNoRoot         Outcome = "not_found_root"
	OutcomeNoFields       Outcome = "not_found_fields"
	OutcomeAlreadyHandled Outcome = "already_handled"
	OutcomeFilled         Outcome = "filled"
)

// Skip reasons.
const (
	SkipMarked   = "marked"
	SkipNonEmpty = "non_empty"
	SkipFailed   = "write_failed"
)

// FillOptions parameterise a fill pass.
type FillOptions struct {
	// Origin is the element that triggered the pass, if any.
	Origin dom.Node
	// GradingRoot is the fallback root when no comment container exists.
	GradingRoot dom.Node
	// Force overwrites marked and non-empty fields.
	Force bool
	// Send presses the send control after at least one field was filled.
	Send bool
}

// FieldResult describes one field of a pass.
type FieldResult struct {
	Kind   string `json:"kind"`
	Frame  bool   `json:"frame,omitempty"`
	Filled bool   `json:"filled"`
	Skip   string `json:"skip,omitempty"`
}

// Report is the result of one fill pass.
type Report struct {
	PassID     string        `json:"pass_id"`
	Outcome    Outcome       `json:"outcome"`
	RootSource string        `json:"root_source,omitempty"`
	Fields     []FieldResult `json:"fields,omitempty"`
	Filled     int           `json:"filled"`
	Sent       bool          `json:"sent"`

	Root *Root `json:"-"`
}

// Engine runs fill passes.
type Engine struct {
	vocab  *vocab.Vocabulary
	logger *slog.Logger
}

// New creates an Engine. A nil vocabulary selects vocab.Default.
func New(v *vocab.Vocabulary, logger *slog.Logger) *Engine {
	if v == nil {
		v = vocab.Default()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{vocab: v, logger: logger}
}

// Fill writes text into the comment fields of the current item. The text is
// written as given, trimmed of surrounding space; both writers set plain
// text, so markup-like characters reach the field unchanged.
func (e *Engine) Fill(ctx context.Context, doc dom.Document, text string, opts FillOptions) *Report {
	rep := &Report{PassID: uuid.Must(uuid.NewV7()).String()}
	log := e.logger.With("pass", rep.PassID, "force", opts.Force)

	text = strings.TrimSpace(text)
	if text == "" {
		rep.Outcome = OutcomeEmptyText
		log.Info("commenting: nothing to write")
		return rep
	}

	root := e.LocateRoot(doc, opts.Origin, opts.GradingRoot)
	if root == nil {
		rep.Outcome = OutcomeNoRoot
		log.Info("commenting: no comment root")
		return rep
	}
	rep.Root = root
	rep.RootSource = root.Source

	fields := e.Fields(doc, root.Node)
	if len(fields) == 0 {
		rep.Outcome = OutcomeNoFields
		log.Info("commenting: no comment field", "root", root.Source)
		return rep
	}

	for _, f := range fields {
		if ctx.Err() != nil {
			break
		}
		res := e.fillField(f, text, opts.Force, log)
		if res.Filled {
			rep.Filled++
		}
		rep.Fields = append(rep.Fields, res)
	}

	if rep.Filled == 0 {
		rep.Outcome = OutcomeAlreadyHandled
		log.Info("commenting: nothing new to fill", "fields", len(fields))
		return rep
	}
	rep.Outcome = OutcomeFilled

	if opts.Send {
		if btn := e.FindSend(doc, root.Node); btn != nil {
			if err := btn.Click(); err != nil {
				log.Warn("commenting: send click failed", "error", err)
			} else {
				rep.Sent = true
			}
		} else {
			log.Info("commenting: no send control")
		}
	}

	log.Info("commenting: pass done",
		"root", root.Source, "fields", len(fields), "filled", rep.Filled, "sent", rep.Sent)
	return rep
}

func (e *Engine) fillField(f Field, text string, force bool, log *slog.Logger) FieldResult {
	res := FieldResult{Kind: f.Kind.String(), Frame: f.Frame}
	if !force {
		if f.Node.HasAttr(MarkerAttr) {
			res.Skip = SkipMarked
			return res
		}
		if heuristic.CurrentText(f.Node) != "" {
			res.Skip = SkipNonEmpty
			return res
		}
	}
	if err := heuristic.WriteText(f.Node, text); err != nil {
		log.Warn("commenting: write failed", "kind", res.Kind, "error", err)
		res.Skip = SkipFailed
		return res
	}
	if err := f.Node.SetAttr(MarkerAttr, "true"); err != nil {
		log.Warn("commenting: mark field failed", "error", err)
	}
	res.Filled = true
	return res
}

// FindSend locates the send control: explicit send selectors first, then
// any clickable labelled with a send hint. root is searched before the
// whole document.
func (e *Engine) FindSend(doc dom.Document, root dom.Node) dom.Node {
	for _, scope := range []heuristic.Scope{root, doc} {
		if scope == nil {
			continue
		}
		for _, sel := range e.vocab.SendButtons {
			for _, m := range scope.QueryAll(sel) {
				if b := pressable(m); b != nil {
					return b
				}
			}
		}
		for _, c := range heuristic.QueryUnion(scope, e.vocab.Clickables) {
			if !c.Disabled() && heuristic.LabelHasHint(c, e.vocab.SendHints) {
				return c
			}
		}
	}
	return nil
}

// pressable prefers a literal button, then a button nested in m, then m.
func pressable(m dom.Node) dom.Node {
	b := m
	if m.Tag() != "button" {
		if nested := m.QueryAll("button"); len(nested) > 0 {
			b = nested[0]
		}
	}
	if b.Disabled() {
		return nil
	}
	return b
}

// WaitForField polls until a comment field exists or timeout elapses. A nil
// root is located again on every attempt, since the container itself may be
// what the page has not rendered yet.
func (e *Engine) WaitForField(ctx context.Context, doc dom.Document, root dom.Node, interval, timeout time.Duration) bool {
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		r := root
		if r == nil {
			if loc := e.LocateRoot(doc, nil, nil); loc != nil {
				r = loc.Node
			}
		}
		if len(e.Fields(doc, r)) > 0 {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}
