package browser

import (
	"fmt"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Tab is the page a session works on.
type Tab struct {
	Page *rod.Page
	ID   string

	hijack *rod.HijackRouter
}

// TabOptions control how a tab is opened.
type TabOptions struct {
	ID string
	// Stealth hides the automation markers from page scripts.
	Stealth bool
}

// OpenTab opens a blank tab with the manager's blocklist applied. The
// caller installs its bindings and then navigates.
func (m *Manager) OpenTab(opts TabOptions) (*Tab, error) {
	b := m.Browser()
	if b == nil {
		return nil, fmt.Errorf("browser: not started")
	}

	var page *rod.Page
	var err error
	if opts.Stealth {
		page, err = stealth.Page(b)
	} else {
		page, err = b.Page(proto.TargetCreateTarget{})
	}
	if err != nil {
		return nil, fmt.Errorf("browser: open tab: %w", err)
	}

	tab := &Tab{Page: page, ID: opts.ID}
	if len(m.cfg.Block) > 0 {
		r, err := m.cfg.Block.install(page)
		if err != nil {
			m.logger.Warn("browser: blocklist not installed", "tab", opts.ID, "error", err)
		} else {
			tab.hijack = r
			m.logger.Debug("browser: blocking", "tab", opts.ID, "types", m.cfg.Block.String())
		}
	}
	return tab, nil
}

// Close stops request hijacking and closes the page.
func (t *Tab) Close() error {
	if t.hijack != nil {
		if err := t.hijack.Stop(); err != nil {
			return err
		}
		t.hijack = nil
	}
	if t.Page == nil {
		return nil
	}
	return t.Page.Close()
}
