package controller

import (
	"context"
	"errors"
	"strings"

	"github.com/hazyhaar/chamdiem/grading"
	"github.com/hazyhaar/chamdiem/messaging"
)

// Register installs the page commands on r.
func (c *Controller) Register(r *messaging.Router) {
	r.RegisterLocal(messaging.CmdAutoGrade, messaging.Typed(c.handleAutoGrade))
	r.RegisterLocal(messaging.CmdAutoComment, messaging.Typed(c.handleAutoComment))
	r.RegisterLocal(messaging.CmdAIComment, messaging.Typed(c.handleAIComment))
}

func (c *Controller) handleAutoGrade(ctx context.Context, req messaging.AutoGrade) (messaging.Response, error) {
	rep, err := c.Grade(ctx, grading.Options{Rating: req.Rating, Force: req.Force})
	if err != nil {
		return messaging.Fail("no_document", err), nil
	}
	if rep.Outcome == grading.OutcomeInvalidRating {
		return messaging.Fail(string(rep.Outcome), errors.New("rating must be positive")), nil
	}
	return messaging.OK(rep), nil
}

func (c *Controller) handleAutoComment(ctx context.Context, req messaging.AutoComment) (messaging.Response, error) {
	if strings.TrimSpace(req.Comment) == "" {
		return messaging.Fail("empty_comment", errors.New("comment is empty")), nil
	}
	rep, err := c.Comment(ctx, req.Comment, req.Force, req.AutoSend)
	if err != nil {
		return messaging.Fail("no_document", err), nil
	}
	return messaging.OK(rep), nil
}

func (c *Controller) handleAIComment(ctx context.Context, req messaging.AIComment) (messaging.Response, error) {
	rep, err := c.AIComment(ctx, nil, messaging.ModeComment, req.AutoSend)
	var ge *GenerationError
	switch {
	case err == nil:
		return messaging.OK(rep), nil
	case errors.Is(err, ErrBusy):
		return messaging.Fail("busy", err), nil
	case errors.Is(err, ErrNoDocument):
		return messaging.Fail("no_document", err), nil
	case errors.Is(err, ErrNoQuestion):
		return messaging.Fail("no_question", err), nil
	case errors.As(err, &ge):
		return messaging.Fail(ge.Code, err), nil
	}
	return messaging.Fail("internal", err), nil
}
