package browser

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/snapsolve/pkg/capture"
	"github.com/entrhq/snapsolve/pkg/logging"
)

// SessionManager owns the browser tabs snapsolve captures from. Exactly one
// tab is active at a time: the most recently started or activated one.
type SessionManager struct {
	mu          sync.RWMutex
	sessions    map[string]*Session
	active      string
	playwright  *playwright.Playwright
	policy      *URLPolicy
	log         *logging.Logger
	maxSessions int
	idleTimeout time.Duration
	initialized bool
}

// ManagerOption configures a SessionManager.
type ManagerOption func(*SessionManager)

// WithPolicy sets the URL policy checked before every capture.
func WithPolicy(p *URLPolicy) ManagerOption {
	return func(m *SessionManager) {
		if p != nil {
			m.policy = p
		}
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(l *logging.Logger) ManagerOption {
	return func(m *SessionManager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewSessionManager creates a new session manager.
func NewSessionManager(opts ...ManagerOption) *SessionManager {
	m := &SessionManager{
		sessions:    make(map[string]*Session),
		maxSessions: DefaultMaxSessions,
		idleTimeout: time.Duration(DefaultIdleTimeout) * time.Second,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.policy == nil {
		// Default patterns are known to compile.
		m.policy, _ = NewURLPolicy(nil, nil)
	}
	if m.log == nil {
		m.log = logging.MustLogger("browser")
	}
	return m
}

// Initialize installs (if needed) and starts Playwright.
// This must be called before creating any sessions.
func (m *SessionManager) Initialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.initialized {
		return nil
	}

	opts := &playwright.RunOptions{
		Browsers: []string{"chromium"},
		Verbose:  false,
		Stdout:   io.Discard,
		Stderr:   io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return fmt.Errorf("failed to start playwright: %w", err)
	}

	m.playwright = pw
	m.initialized = true
	m.log.Infof("Playwright started")
	return nil
}

// StartSession opens a new tab and makes it the active one.
func (m *SessionManager) StartSession(name string, opts SessionOptions) (*Session, error) {
	if name == "" {
		return nil, fmt.Errorf("session name is required")
	}
	if opts.DeviceScaleFactor < 0 {
		return nil, fmt.Errorf("device scale factor must not be negative, got %v", opts.DeviceScaleFactor)
	}
	if opts.Viewport != nil && (opts.Viewport.Width <= 0 || opts.Viewport.Height <= 0) {
		return nil, fmt.Errorf("viewport must be positive, got %dx%d", opts.Viewport.Width, opts.Viewport.Height)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sessions[name]; exists {
		return nil, fmt.Errorf("session %q already exists", name)
	}

	if len(m.sessions) >= m.maxSessions {
		return nil, fmt.Errorf("maximum number of sessions (%d) reached", m.maxSessions)
	}

	if !m.initialized {
		return nil, fmt.Errorf("session manager not initialized")
	}

	if opts.Viewport == nil {
		opts.Viewport = &Viewport{
			Width:  DefaultViewportWidth,
			Height: DefaultViewportHeight,
		}
	}
	if opts.DeviceScaleFactor == 0 {
		opts.DeviceScaleFactor = DefaultDeviceScaleFactor
	}
	if opts.Timeout == 0 {
		opts.Timeout = DefaultTimeout
	}

	browser, err := m.playwright.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &opts.Headless,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browserCtx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{
			Width:  opts.Viewport.Width,
			Height: opts.Viewport.Height,
		},
		DeviceScaleFactor: &opts.DeviceScaleFactor,
	})
	if err != nil {
		browser.Close()
		return nil, fmt.Errorf("failed to create context: %w", err)
	}

	page, err := browserCtx.NewPage()
	if err != nil {
		browserCtx.Close()
		browser.Close()
		return nil, fmt.Errorf("failed to create page: %w", err)
	}

	page.SetDefaultTimeout(opts.Timeout)

	now := time.Now()
	session := &Session{
		Name:              name,
		Browser:           browser,
		Context:           browserCtx,
		Page:              page,
		Headless:          opts.Headless,
		DeviceScaleFactor: opts.DeviceScaleFactor,
		CreatedAt:         now,
		lastUsedAt:        now,
		currentURL:        "about:blank",
	}

	m.sessions[name] = session
	m.active = name
	m.log.Infof("Started session %q (%dx%d @%gx, headless=%t)", name, opts.Viewport.Width, opts.Viewport.Height, opts.DeviceScaleFactor, opts.Headless)
	return session, nil
}

// Activate makes the named session the active tab.
func (m *SessionManager) Activate(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[name]
	if !exists {
		return fmt.Errorf("session %q not found", name)
	}
	if session.Page != nil {
		if err := session.Page.BringToFront(); err != nil {
			return fmt.Errorf("failed to bring %q to front: %w", name, err)
		}
	}
	m.active = name
	return nil
}

// ActiveSession returns the active tab.
func (m *SessionManager) ActiveSession() (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[m.active]
	if !exists {
		return nil, capture.ErrNoActiveTab
	}
	return session, nil
}

// CaptureActiveTab snapshots the active tab's viewport at device resolution.
// The device pixel ratio is read from the page at capture time.
func (m *SessionManager) CaptureActiveTab(ctx context.Context) (*capture.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	session, err := m.ActiveSession()
	if err != nil {
		return nil, err
	}

	url := session.CurrentURL()
	if !m.policy.Allows(url) {
		m.log.Warnf("Refusing to capture %s", url)
		return nil, fmt.Errorf("%w: %s", capture.ErrCaptureDenied, url)
	}

	dpr, err := session.DevicePixelRatio()
	if err != nil {
		return nil, err
	}

	data, err := session.Screenshot()
	if err != nil {
		return nil, err
	}

	snap, err := capture.NewSnapshot(data, dpr)
	if err != nil {
		return nil, err
	}
	snap.TabID = session.Name
	snap.URL = url

	m.log.Debugf("Captured %s: %dx%d at dpr %g (%d bytes)", session.Name, snap.Width, snap.Height, dpr, len(data))
	return snap, nil
}

// CloseSession closes and removes a browser session.
func (m *SessionManager) CloseSession(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, exists := m.sessions[name]
	if !exists {
		return fmt.Errorf("session %q not found", name)
	}

	// Errors are ignored so cleanup always completes.
	_ = session.close()

	m.removeLocked(name)
	return nil
}

// GetSession retrieves an open session by name.
func (m *SessionManager) GetSession(name string) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	session, exists := m.sessions[name]
	if !exists {
		return nil, fmt.Errorf("session %q not found", name)
	}

	return session, nil
}

// ListSessions returns information about all open sessions.
func (m *SessionManager) ListSessions() []SessionInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()

	infos := make([]SessionInfo, 0, len(m.sessions))
	for _, session := range m.sessions {
		infos = append(infos, SessionInfo{
			Name:              session.Name,
			CurrentURL:        session.CurrentURL(),
			Headless:          session.Headless,
			DeviceScaleFactor: session.DeviceScaleFactor,
			Active:            session.Name == m.active,
			CreatedAt:         session.CreatedAt,
			LastUsedAt:        session.LastUsedAt(),
		})
	}

	return infos
}

// HasSessions returns true if there are any open sessions.
func (m *SessionManager) HasSessions() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions) > 0
}

// CloseAll closes all open sessions.
func (m *SessionManager) CloseAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for name, session := range m.sessions {
		errs = append(errs, session.close()...)
		delete(m.sessions, name)
	}
	m.active = ""

	if len(errs) > 0 {
		return fmt.Errorf("errors closing sessions: %w", errors.Join(errs...))
	}
	return nil
}

// Shutdown closes all sessions and stops Playwright.
func (m *SessionManager) Shutdown() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for name, session := range m.sessions {
		_ = session.close()
		delete(m.sessions, name)
	}
	m.active = ""

	if m.initialized && m.playwright != nil {
		if err := m.playwright.Stop(); err != nil {
			return fmt.Errorf("failed to stop playwright: %w", err)
		}
		m.initialized = false
		m.log.Infof("Playwright stopped")
	}

	return nil
}

// CleanupIdleSessions closes sessions that have been idle for longer than the timeout.
func (m *SessionManager) CleanupIdleSessions() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var errs []error
	for name, session := range m.sessions {
		if now.Sub(session.LastUsedAt()) <= m.idleTimeout {
			continue
		}
		errs = append(errs, session.close()...)
		m.removeLocked(name)
		m.log.Infof("Closed idle session %q", name)
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors during cleanup: %w", errors.Join(errs...))
	}
	return nil
}

// SetMaxSessions sets the maximum number of concurrent sessions.
func (m *SessionManager) SetMaxSessions(max int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.maxSessions = max
}

// SetIdleTimeout sets the idle timeout duration.
func (m *SessionManager) SetIdleTimeout(timeout time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.idleTimeout = timeout
}

// removeLocked forgets a session. If it was active, the most recently used
// remaining session becomes active.
func (m *SessionManager) removeLocked(name string) {
	delete(m.sessions, name)
	if m.active != name {
		return
	}

	m.active = ""
	var latest time.Time
	for other, session := range m.sessions {
		if used := session.LastUsedAt(); m.active == "" || used.After(latest) {
			m.active = other
			latest = used
		}
	}
}
