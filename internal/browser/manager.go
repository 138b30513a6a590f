// Package browser owns the Chrome instance of a session: it launches or
// connects to it, provides a virtual display for headful runs, and
// restarts it after a configured lifetime.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
)

// ErrClosed is returned once the manager has been closed.
var ErrClosed = errors.New("browser: manager is closed")

// Mode selects how Chrome is shown.
type Mode int

const (
	// Headless runs without a window.
	Headless Mode = iota
	// Headful opens a window the user works in.
	Headful
)

// ParseMode maps the configuration value to a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "headless":
		return Headless, nil
	case "headful":
		return Headful, nil
	}
	return Headless, fmt.Errorf("browser: unknown mode %q", s)
}

func (m Mode) String() string {
	if m == Headful {
		return "headful"
	}
	return "headless"
}

// Config configures a Manager.
type Config struct {
	// RemoteURL is the DevTools WebSocket URL of a running Chrome. Empty
	// launches one.
	RemoteURL string
	Bin       string
	// UserDataDir keeps the profile, and with it the platform login,
	// across runs.
	UserDataDir string
	Mode        Mode
	// Display starts Xvfb on this display (":99") for headful runs.
	Display string

	// Lifetime restarts Chrome after it has run this long. 0 keeps it.
	Lifetime time.Duration
	Block    Blocklist

	Logger *slog.Logger
}

// Hooks run around a restart. Detach runs before the old browser closes,
// Attach after the new one is connected.
type Hooks struct {
	Detach func()
	Attach func(*rod.Browser)
}

// Manager owns one Chrome process.
type Manager struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	browser *rod.Browser
	lnch    *launcher.Launcher
	display *display
	timer   *time.Timer
	hooks   Hooks
	closed  bool
}

// NewManager creates a Manager. Chrome starts with Start.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: cfg.Logger}
}

// SetHooks replaces the restart hooks.
func (m *Manager) SetHooks(h Hooks) {
	m.mu.Lock()
	m.hooks = h
	m.mu.Unlock()
}

// Start connects to Chrome, launching it when no remote URL is set.
func (m *Manager) Start(ctx context.Context) (*rod.Browser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if m.browser != nil {
		return m.browser, nil
	}
	if err := m.connect(ctx); err != nil {
		return nil, err
	}
	return m.browser, nil
}

// Browser is the connected browser, nil before Start and after Close.
func (m *Manager) Browser() *rod.Browser {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.browser
}

// Restart closes Chrome and starts a new one, running the hooks around it.
func (m *Manager) Restart(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	hooks := m.hooks
	m.mu.Unlock()

	// Hooks run unlocked: Detach closes the session's tab through Browser.
	if hooks.Detach != nil {
		hooks.Detach()
	}

	m.mu.Lock()
	m.logger.Info("browser: restarting")
	m.teardown()
	err := m.connect(ctx)
	b := m.browser
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("browser: restart: %w", err)
	}

	if hooks.Attach != nil {
		hooks.Attach(b)
	}
	return nil
}

// Close stops Chrome and the display. The manager cannot be restarted.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.teardown()
	return nil
}

// connect must be called with mu held.
func (m *Manager) connect(ctx context.Context) error {
	if m.cfg.Mode == Headful && m.cfg.Display != "" && m.display == nil {
		d, err := startDisplay(ctx, m.cfg.Display, m.logger)
		if err != nil {
			return err
		}
		m.display = d
	}

	url := m.cfg.RemoteURL
	if url == "" {
		l := m.launcher(ctx)
		u, err := l.Launch()
		if err != nil {
			return fmt.Errorf("browser: launch chrome: %w", err)
		}
		url, m.lnch = u, l
	}

	b := rod.New().ControlURL(url)
	if err := b.Connect(); err != nil {
		return fmt.Errorf("browser: connect %s: %w", url, err)
	}
	m.browser = b
	m.logger.Info("browser: connected", "mode", m.cfg.Mode, "remote", m.cfg.RemoteURL != "")

	if m.cfg.Lifetime > 0 {
		m.timer = time.AfterFunc(m.cfg.Lifetime, func() {
			if err := m.Restart(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, ErrClosed) {
				m.logger.Error("browser: scheduled restart failed", "error", err)
			}
		})
	}
	return nil
}

func (m *Manager) launcher(ctx context.Context) *launcher.Launcher {
	l := launcher.New().Context(ctx).Headless(m.cfg.Mode == Headless)
	if m.display != nil {
		l = l.Env("DISPLAY=" + m.display.name)
	}
	if m.cfg.Bin != "" {
		l = l.Bin(m.cfg.Bin)
	}
	if m.cfg.UserDataDir != "" {
		l = l.UserDataDir(m.cfg.UserDataDir)
	}
	return l.Set("disable-blink-features", "AutomationControlled")
}

// teardown must be called with mu held. The display survives restarts.
func (m *Manager) teardown() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
	if m.browser != nil {
		if err := m.browser.Close(); err != nil {
			m.logger.Debug("browser: close", "error", err)
		}
		m.browser = nil
	}
	if m.lnch != nil {
		m.lnch.Cleanup()
		m.lnch = nil
	}
	if m.closed {
		m.display.stop()
		m.display = nil
	}
}
