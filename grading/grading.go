// Package grading finds the rating widgets of the current item and selects
// a star value in each of them, the way a user clicking through the page
// would.
//
// A pass locates the grading root, enumerates its rating groups, clicks the
// choice matching the requested rating in every group not yet graded, then
// presses the grade/submit button. Groups are marked with an attribute once
// graded, so repeated passes over an unchanged page do nothing.
package grading

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/google/uuid"

	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/heuristic"
	"github.com/hazyhaar/chamdiem/vocab"
)

// MarkerAttr records, on the group element, the rating it was graded with.
const MarkerAttr = "data-chamdiem-graded"

// Outcome is how a pass ended.
type Outcome string

const (
	OutcomeInvalidRating  Outcome = "invalid_rating"
	OutcomeNoRoot         Outcome = "not_found_root"
	OutcomeNoGroups       Outcome = "not_found_groups"
	OutcomeAlreadyHandled Outcome = "already_handled"
	OutcomeGraded         Outcome = "graded"
)

// Options parameterise a pass.
type Options struct {
	// Rating is the 1-based star value. Values above a group's size select
	// its last choice; values <= 0 select nothing.
	Rating int
	// Force presses the submit button even when no group was newly graded.
	Force bool
}

// GroupResult describes one rating group of a pass.
type GroupResult struct {
	Kind    string `json:"kind"` // radio | stars | empty
	Choices int    `json:"choices"`
	Index   int    `json:"index"` // -1 when nothing was clicked
	Graded  bool   `json:"graded"`
	Skipped bool   `json:"skipped"` // already graded with this rating
}

// Report is the result of one pass.
type Report struct {
	PassID     string        `json:"pass_id"`
	Outcome    Outcome       `json:"outcome"`
	RootSource string        `json:"root_source,omitempty"`
	Groups     []GroupResult `json:"groups,omitempty"`
	Graded     int           `json:"graded"`
	Submitted  bool          `json:"submitted"`
}

// Engine runs grading passes. It keeps no state between passes.
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

// ChoiceIndex is the 0-based choice for rating among n choices.
func ChoiceIndex(rating, n int) (int, bool) {
	if rating <= 0 || n <= 0 {
		return -1, false
	}
	return min(rating, n) - 1, true
}

// Run executes one grading pass. Discovery failures are reported through
// the Outcome, never as errors.
func (e *Engine) Run(ctx context.Context, doc dom.Document, opts Options) *Report {
	rep := &Report{PassID: uuid.Must(uuid.NewV7()).String()}
	log := e.logger.With("pass", rep.PassID, "rating", opts.Rating)

	if opts.Rating <= 0 {
		rep.Outcome = OutcomeInvalidRating
		log.Info("grading: rating out of range, nothing to select")
		return rep
	}

	root := e.LocateRoot(doc)
	if root == nil {
		rep.Outcome = OutcomeNoRoot
		log.Info("grading: no grading root")
		return rep
	}
	rep.RootSource = root.Source

	groups := e.Groups(root.Node)
	if len(groups) == 0 {
		rep.Outcome = OutcomeNoGroups
		log.Info("grading: no rating group", "root", root.Source)
		return rep
	}

	for _, g := range groups {
		if ctx.Err() != nil {
			break
		}
		res := e.gradeGroup(g, opts.Rating, log)
		if res.Graded {
			rep.Graded++
		}
		rep.Groups = append(rep.Groups, res)
	}

	if rep.Graded == 0 && !opts.Force {
		rep.Outcome = OutcomeAlreadyHandled
		log.Info("grading: nothing new to grade", "groups", len(groups))
		return rep
	}
	rep.Outcome = OutcomeGraded

	if btn := e.FindSubmit(doc, root.Node); btn != nil {
		if err := btn.Click(); err != nil {
			log.Warn("grading: submit click failed", "error", err)
		} else {
			rep.Submitted = true
		}
	} else {
		log.Info("grading: no submit button")
	}

	log.Info("grading: pass done",
		"root", root.Source, "groups", len(groups), "graded", rep.Graded, "submitted", rep.Submitted)
	return rep
}

func (e *Engine) gradeGroup(g dom.Node, rating int, log *slog.Logger) GroupResult {
	want := strconv.Itoa(rating)
	choices, kind := e.Choices(g)
	res := GroupResult{Kind: kind, Choices: len(choices), Index: -1}

	if g.Attr(MarkerAttr) == want {
		res.Skipped = true
		return res
	}
	idx, ok := ChoiceIndex(rating, len(choices))
	if !ok {
		return res
	}
	target := choices[idx]
	if target.Disabled() {
		log.Debug("grading: choice disabled", "index", idx)
		return res
	}
	if err := target.Click(); err != nil {
		log.Warn("grading: choice click failed", "index", idx, "error", err)
		return res
	}
	res.Index = idx
	if err := g.SetAttr(MarkerAttr, want); err != nil {
		log.Warn("grading: mark group failed", "error", err)
	}
	res.Graded = true
	return res
}

// Choices returns the ordered choice elements of a group: its radio inputs
// when it has any, else the items of the first star selector matching
// inside it.
func (e *Engine) Choices(g dom.Node) ([]dom.Node, string) {
	if radios := heuristic.Radios(g); len(radios) > 0 {
		return radios, "radio"
	}
	if stars, _ := heuristic.FirstMatch(g, e.vocab.StarItems); len(stars) > 0 {
		return stars, "stars"
	}
	return nil, "empty"
}

// FindSubmit looks for an enabled control labelled with a grade hint inside
// root, then anywhere in the document.
func (e *Engine) FindSubmit(doc dom.Document, root dom.Node) dom.Node {
	for _, scope := range []heuristic.Scope{root, doc} {
		if scope == nil {
			continue
		}
		for _, c := range heuristic.QueryUnion(scope, e.vocab.Clickables) {
			if !c.Disabled() && heuristic.LabelHasHint(c, e.vocab.GradeHints) {
				return c
			}
		}
	}
	return nil
}
