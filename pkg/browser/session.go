package browser

import (
	"fmt"
	"math"
	"time"

	"github.com/playwright-community/playwright-go"
)

// UpdateLastUsed updates the last-used timestamp to the current time.
func (s *Session) UpdateLastUsed() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastUsedAt = time.Now()
}

// LastUsedAt returns when the session was last used.
func (s *Session) LastUsedAt() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUsedAt
}

// CurrentURL returns the URL of the tab's page.
func (s *Session) CurrentURL() string {
	if s.Page != nil {
		return s.Page.URL()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentURL
}

// Navigate navigates the session's page to the specified URL.
func (s *Session) Navigate(url string, opts NavigateOptions) error {
	s.UpdateLastUsed()

	playwrightOpts := playwright.PageGotoOptions{}

	if opts.WaitUntil != "" {
		waitUntil := playwright.WaitUntilState(opts.WaitUntil)
		playwrightOpts.WaitUntil = &waitUntil
	}

	if opts.Timeout > 0 {
		playwrightOpts.Timeout = &opts.Timeout
	}

	if _, err := s.Page.Goto(url, playwrightOpts); err != nil {
		return fmt.Errorf("navigation failed: %w", err)
	}

	s.mu.Lock()
	s.currentURL = s.Page.URL()
	s.mu.Unlock()
	return nil
}

// DevicePixelRatio reads window.devicePixelRatio from the page. It is read
// on every call because zoom and monitor changes alter it.
func (s *Session) DevicePixelRatio() (float64, error) {
	s.UpdateLastUsed()

	v, err := s.Page.Evaluate("() => window.devicePixelRatio")
	if err != nil {
		return 0, fmt.Errorf("failed to read devicePixelRatio: %w", err)
	}

	dpr, ok := toFloat(v)
	if !ok || dpr <= 0 || math.IsNaN(dpr) || math.IsInf(dpr, 0) {
		return 0, fmt.Errorf("unexpected devicePixelRatio %v", v)
	}
	return dpr, nil
}

// Screenshot takes a lossless PNG of the visible viewport at device scale.
func (s *Session) Screenshot() ([]byte, error) {
	s.UpdateLastUsed()

	data, err := s.Page.Screenshot(playwright.PageScreenshotOptions{
		Type:     playwright.ScreenshotTypePng,
		Scale:    playwright.ScreenshotScaleDevice,
		FullPage: playwright.Bool(false),
	})
	if err != nil {
		return nil, fmt.Errorf("screenshot failed: %w", err)
	}
	return data, nil
}

// SelectedText returns the text currently selected on the page, if any.
func (s *Session) SelectedText() (string, error) {
	s.UpdateLastUsed()

	v, err := s.Page.Evaluate("() => { const sel = window.getSelection(); return sel ? sel.toString() : ''; }")
	if err != nil {
		return "", fmt.Errorf("failed to read selection: %w", err)
	}
	text, _ := v.(string)
	return text, nil
}

// Drag presses the primary mouse button at from, moves to to and releases,
// producing the same pointer events a user drag would.
func (s *Session) Drag(from, to Point) error {
	s.UpdateLastUsed()

	mouse := s.Page.Mouse()
	if err := mouse.Move(from.X, from.Y); err != nil {
		return fmt.Errorf("drag move to start failed: %w", err)
	}
	if err := mouse.Down(); err != nil {
		return fmt.Errorf("drag press failed: %w", err)
	}
	if err := mouse.Move(to.X, to.Y, playwright.MouseMoveOptions{Steps: playwright.Int(dragSteps)}); err != nil {
		_ = mouse.Up()
		return fmt.Errorf("drag move failed: %w", err)
	}
	if err := mouse.Up(); err != nil {
		return fmt.Errorf("drag release failed: %w", err)
	}
	return nil
}

// PressKey sends a key press to the page, e.g. "Escape".
func (s *Session) PressKey(key string) error {
	s.UpdateLastUsed()

	if err := s.Page.Keyboard().Press(key); err != nil {
		return fmt.Errorf("key press failed: %w", err)
	}
	return nil
}

// close releases the tab's Playwright resources, returning every error.
func (s *Session) close() []error {
	var errs []error
	if s.Page != nil {
		if err := s.Page.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Context != nil {
		if err := s.Context.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if s.Browser != nil {
		if err := s.Browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
