// Package trigger classifies user clicks relative to the comment UI.
package trigger

import (
	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/heuristic"
	"github.com/hazyhaar/chamdiem/vocab"
)

// Intent is what a click on an element means for the comment flow.
type Intent string

const (
	IntentNone  Intent = "none"
	IntentReply Intent = "reply"
	IntentSend  Intent = "send"
)

// IntentAttr tags controls whose intent was resolved ahead of the click, so
// the in-page interceptor can decide synchronously.
const IntentAttr = "data-chamdiem-intent"

// Classifier maps clicked elements to intents.
type Classifier struct {
	vocab *vocab.Vocabulary
}

// New creates a Classifier. A nil vocabulary selects vocab.Default.
func New(v *vocab.Vocabulary) *Classifier {
	if v == nil {
		v = vocab.Default()
	}
	return &Classifier{vocab: v}
}

// Classify resolves the intent of a click on n, which may be the control or
// any element inside it. In order: anything inside a send control is a
// send, explicit reply controls are replies, then the control's label is
// matched against the send and reply hints.
func (c *Classifier) Classify(n dom.Node) Intent {
	if n == nil {
		return IntentNone
	}
	if heuristic.ClosestAny(n, c.vocab.SendButtons) != nil {
		return IntentSend
	}
	if heuristic.ClosestAny(n, c.vocab.ReplyButtons) != nil {
		return IntentReply
	}

	ctl := heuristic.ClosestAny(n, c.vocab.Clickables)
	if ctl == nil {
		return IntentNone
	}
	// "Gửi bình luận" carries both vocabularies and is a send.
	switch {
	case heuristic.LabelHasHint(ctl, c.vocab.SendHints):
		return IntentSend
	case heuristic.LabelHasHint(ctl, c.vocab.ReplyHints):
		return IntentReply
	}
	return IntentNone
}

// Arm tags every send control of doc with IntentAttr and returns how many
// it tagged. Controls already tagged are left alone.
func (c *Classifier) Arm(doc dom.Document) int {
	cands := heuristic.QueryUnion(doc, c.vocab.SendButtons)
	for _, ctl := range heuristic.QueryUnion(doc, c.vocab.Clickables) {
		if heuristic.LabelHasHint(ctl, c.vocab.SendHints) {
			cands = append(cands, ctl)
		}
	}

	n := 0
	for _, ctl := range dom.Unique(cands) {
		if ctl.Attr(IntentAttr) == string(IntentSend) {
			continue
		}
		if c.Classify(ctl) != IntentSend {
			continue
		}
		if err := ctl.SetAttr(IntentAttr, string(IntentSend)); err == nil {
			n++
		}
	}
	return n
}
