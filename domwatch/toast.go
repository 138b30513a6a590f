package domwatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/go-rod/rod"

	"github.com/hazyhaar/chamdiem/dom"
)

const toastJS = `(level, message) => {
	let box = document.getElementById('chamdiem-toasts');
	if (!box) {
		box = document.createElement('div');
		box.id = 'chamdiem-toasts';
		box.style.cssText = 'position:fixed;right:16px;bottom:16px;z-index:2147483647;display:flex;flex-direction:column;gap:8px;font:14px sans-serif';
		(document.body || document.documentElement).appendChild(box);
	}
	const t = document.createElement('div');
	t.setAttribute('data-level', level);
	t.textContent = message;
	t.style.cssText = 'padding:8px 12px;border-radius:4px;color:#fff;background:' + (level === 'error' ? '#c0392b' : '#2d7d46');
	box.appendChild(t);
	setTimeout(() => t.remove(), 4000);
}`

// toast shows notices inside the page.
type toast struct {
	page   *rod.Page
	logger *slog.Logger
}

var _ dom.Notifier = (*toast)(nil)

// Notify renders asynchronously so a busy page never stalls the caller.
func (t *toast) Notify(level dom.Level, message string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := t.page.Context(ctx).Eval(toastJS, string(level), message); err != nil {
			t.logger.Debug("domwatch: toast failed", "error", err)
		}
	}()
}
