package browser

import (
	"sync"
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session represents an open browser tab with its associated resources.
type Session struct {
	// Name is the unique identifier for this session
	Name string

	// Browser is the Playwright browser instance
	Browser playwright.Browser

	// Context is the browser context (isolated session)
	Context playwright.BrowserContext

	// Page is the tab's page
	Page playwright.Page

	// Headless indicates if the browser is running in headless mode
	Headless bool

	// DeviceScaleFactor is the ratio the context was created with. The
	// page's live devicePixelRatio is read again at capture time.
	DeviceScaleFactor float64

	CreatedAt time.Time

	mu         sync.Mutex
	lastUsedAt time.Time
	currentURL string
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// Viewport sets the initial viewport size in CSS pixels
	Viewport *Viewport

	// DeviceScaleFactor emulates a high-density display (2 for retina)
	DeviceScaleFactor float64

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// Point is a position in CSS pixels relative to the viewport.
type Point struct {
	X float64
	Y float64
}

// SessionInfo contains metadata about a browser session.
type SessionInfo struct {
	Name              string
	CurrentURL        string
	Headless          bool
	DeviceScaleFactor float64
	Active            bool
	CreatedAt         time.Time
	LastUsedAt        time.Time
}

// Default values for various operations
const (
	DefaultTimeout           = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth     = 1280
	DefaultViewportHeight    = 800
	DefaultDeviceScaleFactor = 1.0
	DefaultMaxSessions       = 5
	DefaultIdleTimeout       = 300 // 5 minutes in seconds

	// dragSteps is how many pointermove events a replayed drag emits.
	dragSteps = 10
)
