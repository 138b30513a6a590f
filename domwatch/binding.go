package domwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/chamdiem/controller"
	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/grading"
	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/settings"
)

// bindingName is the Runtime binding intercept.js reports through.
const bindingName = "__chamdiem_trigger"

// clickAttr carries the id intercept.js gives a clicked control.
const clickAttr = "data-chamdiem-click"

// Trigger kinds and key actions.
const (
	kindClick = "click"
	kindKey   = "key"

	actionGrade   = "grade"
	actionComment = "comment"
)

type triggerMsg struct {
	Kind   string `json:"kind"`
	ID     string `json:"id,omitempty"`
	Action string `json:"action,omitempty"`
}

func parseTrigger(payload string) (triggerMsg, error) {
	var t triggerMsg
	if err := json.Unmarshal([]byte(payload), &t); err != nil {
		return t, fmt.Errorf("domwatch: trigger payload: %w", err)
	}
	switch t.Kind {
	case kindClick:
		if t.ID == "" {
			return t, fmt.Errorf("domwatch: click trigger without id")
		}
	case kindKey:
		if t.Action != actionGrade && t.Action != actionComment {
			return t, fmt.Errorf("domwatch: unknown key action %q", t.Action)
		}
	default:
		return t, fmt.Errorf("domwatch: unknown trigger kind %q", t.Kind)
	}
	return t, nil
}

// elementFinder resolves a control tagged by intercept.js.
type elementFinder interface {
	ElementByKey(attr, value string) dom.Node
}

// Defaults supplies the stored rating the grade shortcut falls back to.
type Defaults interface {
	Get(ctx context.Context) (settings.Record, error)
}

// dispatcher routes triggers to the controller.
type dispatcher struct {
	ctl      *controller.Controller
	defaults Defaults
	logger   *slog.Logger
}

func (d *dispatcher) dispatch(ctx context.Context, doc elementFinder, t triggerMsg) {
	switch t.Kind {
	case kindClick:
		n := doc.ElementByKey(clickAttr, t.ID)
		if n == nil {
			d.logger.Debug("domwatch: clicked control vanished", "id", t.ID)
			return
		}
		dec := d.ctl.HandleClick(ctx, n)
		d.logger.Debug("domwatch: click handled", "intent", dec.Intent, "preempt", dec.Preempt)

	case kindKey:
		switch t.Action {
		case actionGrade:
			rating := d.ctl.AutoRating()
			if rating <= 0 && d.defaults != nil {
				if rec, err := d.defaults.Get(ctx); err == nil {
					rating = rec.DefaultRating
				}
			}
			if _, err := d.ctl.Grade(ctx, grading.Options{Rating: rating}); err != nil {
				d.logger.Warn("domwatch: shortcut grade failed", "error", err)
			}
		case actionComment:
			if _, err := d.ctl.AIComment(ctx, nil, messaging.ModeComment, false); err != nil {
				d.logger.Debug("domwatch: shortcut comment", "error", err)
			}
		}
	}
}
