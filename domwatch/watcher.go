// Package domwatch runs the live session: it opens the configured page in
// Chrome, watches it for DOM insertions, intercepts the user's clicks and
// shortcut keys, and drives the controller from those events.
//
// The detection passes themselves live in the controller. domwatch only
// turns CDP events into calls: node insertions feed the debounce
// scheduler, the injected interceptor reports clicks through a Runtime
// binding, and main-frame navigations reset the scheduler.
package domwatch

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"

	"github.com/hazyhaar/chamdiem/controller"
	"github.com/hazyhaar/chamdiem/dom"
	"github.com/hazyhaar/chamdiem/dom/roddom"
	"github.com/hazyhaar/chamdiem/internal/browser"
	"github.com/hazyhaar/chamdiem/internal/config"
	"github.com/hazyhaar/chamdiem/notice"
	"github.com/hazyhaar/chamdiem/scheduler"
)

//go:embed intercept.js
var interceptJS string

// Watcher owns the browser, the page and the scheduler of one session.
type Watcher struct {
	cfg      *config.Config
	mgr      *browser.Manager
	defaults Defaults
	logger   *slog.Logger

	mu     sync.Mutex
	tab    *browser.Tab
	cancel context.CancelFunc
	sched  *scheduler.Scheduler
	disp   *dispatcher

	restartMu sync.Mutex
	doc       atomic.Pointer[roddom.Document]
	page      atomic.Pointer[rod.Page]
}

// New creates a Watcher. Notices sent to hub are also shown in the page.
func New(cfg *config.Config, hub *notice.Hub, defaults Defaults, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := browser.ParseMode(cfg.Browser.Mode)
	if err != nil {
		return nil, err
	}
	block, err := browser.ParseBlocklist(cfg.Browser.Block)
	if err != nil {
		return nil, err
	}
	w := &Watcher{
		cfg: cfg,
		mgr: browser.NewManager(browser.Config{
			RemoteURL:   cfg.Browser.Remote,
			Bin:         cfg.Browser.Bin,
			UserDataDir: cfg.Browser.UserDataDir,
			Mode:        mode,
			Display:     cfg.Browser.Display,
			Lifetime:    cfg.Browser.Lifetime,
			Block:       block,
			Logger:      logger,
		}),
		defaults: defaults,
		logger:   logger,
	}
	if hub != nil {
		hub.Attach(dom.NotifierFunc(w.showToast))
	}
	return w, nil
}

// Document is the current page document, nil before Start. It is the
// controller's document source.
func (w *Watcher) Document() dom.Document {
	d := w.doc.Load()
	if d == nil {
		return nil
	}
	return d
}

// Start launches the browser, opens the page and begins watching it.
func (w *Watcher) Start(ctx context.Context, ctl *controller.Controller) error {
	w.sched = scheduler.New(scheduler.Config{Window: w.cfg.Debounce.Window}, ctl.OnQuiet, w.logger)
	w.disp = &dispatcher{ctl: ctl, defaults: w.defaults, logger: w.logger}

	if _, err := w.mgr.Start(ctx); err != nil {
		return fmt.Errorf("domwatch: start browser: %w", err)
	}
	w.mgr.SetHooks(browser.Hooks{
		Detach: w.detach,
		Attach: func(*rod.Browser) {
			if err := w.attach(ctx); err != nil {
				w.logger.Error("domwatch: reattach after restart failed", "error", err)
			}
		},
	})
	return w.attach(ctx)
}

// Stop tears the session down.
func (w *Watcher) Stop() {
	w.detach()
	w.mgr.Close()
}

func (w *Watcher) attach(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	tab, err := w.mgr.OpenTab(browser.TabOptions{ID: w.cfg.Page.ID, Stealth: w.cfg.Page.Stealth})
	if err != nil {
		return fmt.Errorf("domwatch: open tab: %w", err)
	}
	page := tab.Page

	if err := (proto.RuntimeAddBinding{Name: bindingName}).Call(page); err != nil {
		tab.Close()
		return fmt.Errorf("domwatch: add binding: %w", err)
	}
	if _, err := page.EvalOnNewDocument(interceptJS); err != nil {
		tab.Close()
		return fmt.Errorf("domwatch: install interceptor: %w", err)
	}
	if err := (proto.PageEnable{}).Call(page); err != nil {
		w.logger.Warn("domwatch: page domain", "error", err)
	}
	if err := (proto.DOMEnable{}).Call(page); err != nil {
		w.logger.Warn("domwatch: dom domain", "error", err)
	}

	lctx, cancel := context.WithCancel(ctx)
	w.tab, w.cancel = tab, cancel
	w.page.Store(page)
	w.doc.Store(roddom.New(page, w.logger))
	go w.listen(lctx, page)

	if w.cfg.Page.URL != "" {
		navCtx, done := context.WithTimeout(ctx, 30*time.Second)
		defer done()
		if err := page.Context(navCtx).Navigate(w.cfg.Page.URL); err != nil {
			return fmt.Errorf("domwatch: navigate %s: %w", w.cfg.Page.URL, err)
		}
		if err := page.Context(navCtx).WaitLoad(); err != nil {
			w.logger.Warn("domwatch: wait load", "url", w.cfg.Page.URL, "error", err)
		}
	}

	w.restart(lctx, page)
	w.logger.Info("domwatch: watching page", "url", w.cfg.Page.URL, "id", w.cfg.Page.ID)
	return nil
}

func (w *Watcher) detach() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.sched != nil {
		w.sched.Stop()
	}
	if w.tab != nil {
		if err := w.tab.Close(); err != nil {
			w.logger.Debug("domwatch: close tab", "error", err)
		}
		w.tab = nil
	}
	w.page.Store(nil)
	w.doc.Store(nil)
}

// listen consumes the page's CDP events until ctx ends.
func (w *Watcher) listen(ctx context.Context, page *rod.Page) {
	wait := page.Context(ctx).EachEvent(
		func(e *proto.DOMChildNodeInserted) {
			w.sched.Notify()
		},
		func(e *proto.DOMDocumentUpdated) {
			go w.track(ctx, page)
		},
		func(e *proto.PageFrameNavigated) {
			if e.Frame != nil && e.Frame.ParentID == "" {
				w.logger.Info("domwatch: main frame navigated", "url", e.Frame.URL)
				go w.restart(ctx, page)
			}
		},
		func(e *proto.RuntimeBindingCalled) {
			if e.Name == bindingName {
				go w.onTrigger(ctx, e.Payload)
			}
		},
	)
	wait()
}

// restart drops the state of the previous document and re-arms the
// scheduler for the current one.
func (w *Watcher) restart(ctx context.Context, page *rod.Page) {
	w.restartMu.Lock()
	defer w.restartMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	w.sched.Reset()
	w.doc.Store(roddom.New(page, w.logger))
	w.track(ctx, page)
	if err := w.sched.Start(ctx); err != nil {
		w.logger.Warn("domwatch: scheduler start", "error", err)
	}
	// The first pass runs without waiting for a mutation.
	w.sched.Notify()
}

// track requests the whole tree so CDP reports insertions at any depth.
func (w *Watcher) track(ctx context.Context, page *rod.Page) {
	depth := -1
	if _, err := (proto.DOMGetDocument{Depth: &depth, Pierce: true}).Call(page.Context(ctx)); err != nil {
		w.logger.Debug("domwatch: DOM.getDocument", "error", err)
	}
}

func (w *Watcher) onTrigger(ctx context.Context, payload string) {
	t, err := parseTrigger(payload)
	if err != nil {
		w.logger.Warn("domwatch: bad trigger", "error", err)
		return
	}
	doc := w.doc.Load()
	if doc == nil {
		return
	}
	w.disp.dispatch(ctx, doc, t)
}

func (w *Watcher) showToast(level dom.Level, message string) {
	page := w.page.Load()
	if page == nil {
		return
	}
	(&toast{page: page, logger: w.logger}).Notify(level, message)
}
