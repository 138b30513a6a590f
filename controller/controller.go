// Package controller owns the page-level state of a session: it serialises
// detection passes, guards the AI flow against re-entry and turns commands
// and intercepted clicks into engine runs.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hazyhaar/chamdiem/commenting"
	"github.com/hazyhaar/chamdiem/compose"
	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/grading"
	"github.com/hazyhaar/chamdiem/heuristic"
	"github.com/hazyhaar/chamdiem/messaging"
	"github.com/hazyhaar/chamdiem/trigger"
	"github.com/hazyhaar/chamdiem/vocab"
)

// ErrBusy is returned when an AI flow is already running. The trigger is
// dropped.
var ErrBusy = errors.New("controller: generation already in flight")

// ErrNoDocument is returned when no page is attached.
var ErrNoDocument = errors.New("controller: no document")

// ErrNoQuestion is returned when the page offers nothing to generate from.
var ErrNoQuestion = errors.New("controller: no question text")

// BypassAttr lets one programmatic click through the in-page interceptor.
const BypassAttr = "data-chamdiem-bypass"

// GenerationError is an AI_GENERATE failure reported by the background.
type GenerationError struct {
	Code    string
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("controller: generation failed (%s): %s", e.Code, e.Message)
}

// DocumentFunc returns the current page document, nil when none.
type DocumentFunc func() dom.Document

// Config tunes the AI flow.
type Config struct {
	// PollInterval and WaitTimeout bound the wait for a comment field.
	PollInterval time.Duration
	WaitTimeout  time.Duration
	// MaxOutputTokens and Temperature are forwarded to AI_GENERATE.
	MaxOutputTokens int
	Temperature     float64
	// AutoRating, when > 0, is graded on every quiet-page pass before the
	// first AUTO_GRADE command sets it.
	AutoRating int
}

func (c *Config) defaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 250 * time.Millisecond
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 5 * time.Second
	}
}

// Decision is the outcome of an intercepted click.
type Decision struct {
	Intent trigger.Intent `json:"intent"`
	// Preempt is true when the page's own handling of the click was
	// replaced by the generate-fill-send flow.
	Preempt bool `json:"preempt"`
}

// Controller drives the engines against one page.
type Controller struct {
	cfg        Config
	doc        DocumentFunc
	router     *messaging.Router
	grading    *grading.Engine
	commenting *commenting.Engine
	classifier *trigger.Classifier
	composer   *compose.Composer
	vocab      *vocab.Vocabulary
	notifier   dom.Notifier
	logger     *slog.Logger

	// mu serialises passes over the page.
	mu         sync.Mutex
	aiInFlight atomic.Bool
	autoRating atomic.Int64
}

// Options assemble a Controller.
type Options struct {
	Config     Config
	Vocabulary *vocab.Vocabulary
	Document   DocumentFunc
	// Router carries AI_GENERATE to the background.
	Router   *messaging.Router
	Composer *compose.Composer
	Notifier dom.Notifier
	Logger   *slog.Logger
}

// New creates a Controller.
func New(o Options) *Controller {
	o.Config.defaults()
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Notifier == nil {
		o.Notifier = dom.Discard
	}
	if o.Composer == nil {
		o.Composer = compose.New(0)
	}
	if o.Router == nil {
		o.Router = messaging.New(messaging.WithLogger(o.Logger))
	}
	if o.Vocabulary == nil {
		o.Vocabulary = vocab.Default()
	}
	c := &Controller{
		cfg:        o.Config,
		doc:        o.Document,
		router:     o.Router,
		grading:    grading.New(o.Vocabulary, o.Logger),
		commenting: commenting.New(o.Vocabulary, o.Logger),
		classifier: trigger.New(o.Vocabulary),
		composer:   o.Composer,
		vocab:      o.Vocabulary,
		notifier:   o.Notifier,
		logger:     o.Logger,
	}
	c.autoRating.Store(int64(o.Config.AutoRating))
	return c
}

func (c *Controller) document() (dom.Document, error) {
	if c.doc == nil {
		return nil, ErrNoDocument
	}
	d := c.doc()
	if d == nil {
		return nil, ErrNoDocument
	}
	return d, nil
}

// SetAutoRating changes the rating of quiet-page passes. 0 disables them.
func (c *Controller) SetAutoRating(r int) { c.autoRating.Store(int64(r)) }

// AutoRating returns the rating of quiet-page passes.
func (c *Controller) AutoRating() int { return int(c.autoRating.Load()) }

// Grade runs a grading pass. A valid rating also becomes the rating of
// later quiet-page passes.
func (c *Controller) Grade(ctx context.Context, opts grading.Options) (*grading.Report, error) {
	doc, err := c.document()
	if err != nil {
		return nil, err
	}
	if opts.Rating > 0 {
		c.autoRating.Store(int64(opts.Rating))
	}

	c.mu.Lock()
	rep := c.grading.Run(ctx, doc, opts)
	c.mu.Unlock()

	switch rep.Outcome {
	case grading.OutcomeGraded:
		c.notifier.Notify(dom.LevelInfo, fmt.Sprintf("Đã chấm %d tiêu chí (%d sao)", rep.Graded, opts.Rating))
	case grading.OutcomeNoRoot, grading.OutcomeNoGroups:
		c.notifier.Notify(dom.LevelInfo, "Không tìm thấy ô chấm điểm")
	}
	return rep, nil
}

// Comment fills the comment fields with text and optionally sends.
func (c *Controller) Comment(ctx context.Context, text string, force, send bool) (*commenting.Report, error) {
	doc, err := c.document()
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fill(ctx, doc, text, nil, force, send), nil
}

// fill runs a fill pass and the send step. Callers hold mu.
func (c *Controller) fill(ctx context.Context, doc dom.Document, text string, origin dom.Node, force, send bool) *commenting.Report {
	var groot dom.Node
	if r := c.grading.LocateRoot(doc); r != nil {
		groot = r.Node
	}
	rep := c.commenting.Fill(ctx, doc, text, commenting.FillOptions{
		Origin:      origin,
		GradingRoot: groot,
		Force:       force,
	})
	switch rep.Outcome {
	case commenting.OutcomeFilled:
		c.notifier.Notify(dom.LevelInfo, "Đã điền nhận xét")
	case commenting.OutcomeNoRoot, commenting.OutcomeNoFields:
		c.notifier.Notify(dom.LevelInfo, "Không tìm thấy ô nhận xét")
	}
	if !send || rep.Filled == 0 {
		return rep
	}

	var btn dom.Node
	if origin != nil && c.classifier.Classify(origin) == trigger.IntentSend {
		btn = origin
	} else if rep.Root != nil {
		btn = c.commenting.FindSend(doc, rep.Root.Node)
	}
	if btn == nil {
		c.logger.Info("controller: no send control", "pass", rep.PassID)
		return rep
	}
	if err := c.clickThrough(btn); err != nil {
		c.logger.Warn("controller: send failed", "pass", rep.PassID, "error", err)
		return rep
	}
	rep.Sent = true
	return rep
}

// clickThrough clicks n past the in-page interceptor.
func (c *Controller) clickThrough(n dom.Node) error {
	if err := n.SetAttr(BypassAttr, "1"); err != nil {
		return err
	}
	return n.Click()
}

// AIComment generates a comment for the item around origin (nil for the
// current item), fills it in and optionally sends it. A call made while
// another one runs returns ErrBusy at once.
func (c *Controller) AIComment(ctx context.Context, origin dom.Node, mode string, send bool) (*commenting.Report, error) {
	if !c.aiInFlight.CompareAndSwap(false, true) {
		c.logger.Debug("controller: ai flow already running, trigger dropped")
		return nil, ErrBusy
	}
	defer c.aiInFlight.Store(false)

	doc, err := c.document()
	if err != nil {
		return nil, err
	}
	if mode == "" {
		mode = messaging.ModeComment
	}

	c.mu.Lock()
	var groot, croot dom.Node
	if r := c.grading.LocateRoot(doc); r != nil {
		groot = r.Node
	}
	if r := c.commenting.LocateRoot(doc, origin, groot); r != nil {
		croot = r.Node
	}
	content := c.content(doc, croot, mode)
	c.mu.Unlock()
	if content == "" {
		c.logger.Info("controller: no question text, generation skipped", "mode", mode)
		c.notifier.Notify(dom.LevelInfo, "Không tìm thấy nội dung câu hỏi")
		return nil, ErrNoQuestion
	}
	input := c.composer.Input(mode, content)

	res, err := messaging.Invoke[messaging.AIGenerate, messaging.GenerateResult](ctx, c.router, messaging.CmdAIGenerate,
		messaging.AIGenerate{
			Input:           input,
			Mode:            mode,
			MaxOutputTokens: c.cfg.MaxOutputTokens,
			Temperature:     c.cfg.Temperature,
		})
	if err == nil && res.Status != messaging.StatusOK {
		err = &GenerationError{Code: res.Code, Message: res.Error}
	}
	text := strings.TrimSpace(res.Text)
	if err == nil && text == "" {
		err = &GenerationError{Code: "empty", Message: "empty text"}
	}
	if err != nil {
		c.logger.Warn("controller: generation failed", "mode", mode, "error", err)
		c.notifier.Notify(dom.LevelError, "Không tạo được nhận xét: "+noticeReason(err))
		return nil, err
	}

	if !c.commenting.WaitForField(ctx, doc, croot, c.cfg.PollInterval, c.cfg.WaitTimeout) {
		c.notifier.Notify(dom.LevelError, "Không tìm thấy ô nhận xét")
		return &commenting.Report{Outcome: commenting.OutcomeNoFields}, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fill(ctx, doc, text, origin, false, send), nil
}

// content picks what a generation answers. A comment answers the lesson
// question, a reply the thread around the comment root; each falls back to
// the other.
func (c *Controller) content(doc dom.Document, root dom.Node, mode string) string {
	question := func() string { return c.composer.Question(doc, c.vocab.QuestionRoots) }
	around := func() string { return c.composer.Context(root) }
	first, second := question, around
	if mode == messaging.ModeReply {
		first, second = around, question
	}
	if s := strings.TrimSpace(first()); s != "" {
		return s
	}
	return strings.TrimSpace(second())
}

func noticeReason(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) {
		switch ge.Code {
		case "no_api_key":
			return "chưa cấu hình API key"
		case "auth":
			return "API key không hợp lệ"
		case "quota":
			return "đã hết hạn mức"
		case "timeout":
			return "hết thời gian chờ"
		case "empty":
			return "phản hồi rỗng"
		}
		return ge.Message
	}
	return err.Error()
}

// HandleClick classifies an intercepted click and runs the matching flow.
// It blocks until the flow ends; live sessions call it off the event loop.
//
// A send while every comment field is still empty is preempted: the text is
// generated, filled in, then the same control is clicked for real. A send
// over existing text is replayed unchanged. A reply only generates and
// fills.
func (c *Controller) HandleClick(ctx context.Context, n dom.Node) Decision {
	c.mu.Lock()
	intent := c.classifier.Classify(n)
	hasText := false
	if intent == trigger.IntentSend {
		hasText = c.fieldsHaveText(n)
	}
	c.mu.Unlock()

	d := Decision{Intent: intent}
	switch intent {
	case trigger.IntentSend:
		if hasText {
			if err := c.clickThrough(n); err != nil {
				c.logger.Warn("controller: replay click failed", "error", err)
			}
			return d
		}
		d.Preempt = true
		if _, err := c.AIComment(ctx, n, messaging.ModeComment, true); errors.Is(err, ErrBusy) {
			c.logger.Debug("controller: send dropped while generating")
		}
	case trigger.IntentReply:
		c.AIComment(ctx, n, messaging.ModeReply, false)
	}
	return d
}

func (c *Controller) fieldsHaveText(origin dom.Node) bool {
	doc, err := c.document()
	if err != nil {
		return false
	}
	root := c.commenting.LocateRoot(doc, origin, nil)
	if root == nil {
		return false
	}
	for _, f := range c.commenting.Fields(doc, root.Node) {
		if heuristic.CurrentText(f.Node) != "" {
			return true
		}
	}
	return false
}

// OnQuiet is the debounced mutation pass: it arms newly rendered send
// controls and grades with the current auto rating. It never fills
// comments.
func (c *Controller) OnQuiet(ctx context.Context, coalesced int) {
	doc, err := c.document()
	if err != nil {
		return
	}
	c.mu.Lock()
	armed := c.classifier.Arm(doc)
	c.mu.Unlock()

	r := c.AutoRating()
	c.logger.Debug("controller: quiet pass", "mutations", coalesced, "armed", armed, "rating", r)
	if r <= 0 {
		return
	}
	c.mu.Lock()
	rep := c.grading.Run(ctx, doc, grading.Options{Rating: r})
	c.mu.Unlock()
	if rep.Outcome == grading.OutcomeGraded {
		c.notifier.Notify(dom.LevelInfo, fmt.Sprintf("Đã chấm %d tiêu chí (%d sao)", rep.Graded, r))
	}
}
