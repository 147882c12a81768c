package config

import (
	"fmt"
	"sync"
)

const (
	// SectionIDBrowser is the identifier for the browser settings section
	SectionIDBrowser = "browser"

	defaultViewportWidth     = 1280
	defaultViewportHeight    = 800
	defaultDeviceScaleFactor = 1.0
)

// BrowserSection configures the browser the captures are taken from.
type BrowserSection struct {
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64
	AllowPatterns     []string
	DenyPatterns      []string
	mu                sync.RWMutex
}

// NewBrowserSection creates a browser section with default settings.
func NewBrowserSection() *BrowserSection {
	return &BrowserSection{
		Headless:          true,
		ViewportWidth:     defaultViewportWidth,
		ViewportHeight:    defaultViewportHeight,
		DeviceScaleFactor: defaultDeviceScaleFactor,
	}
}

// ID returns the section identifier.
func (s *BrowserSection) ID() string {
	return SectionIDBrowser
}

// Title returns the section title.
func (s *BrowserSection) Title() string {
	return "Browser Settings"
}

// Description returns the section description.
func (s *BrowserSection) Description() string {
	return "Browser window used for captures. allow_patterns and deny_patterns are glob patterns matched against the tab URL; deny wins."
}

// Data returns the current configuration data.
func (s *BrowserSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"headless":            s.Headless,
		"viewport_width":      s.ViewportWidth,
		"viewport_height":     s.ViewportHeight,
		"device_scale_factor": s.DeviceScaleFactor,
		"allow_patterns":      append([]string(nil), s.AllowPatterns...),
		"deny_patterns":       append([]string(nil), s.DenyPatterns...),
	}
}

// SetData updates the configuration from the provided data.
func (s *BrowserSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["headless"].(bool); ok {
		s.Headless = v
	}
	if v, ok := intValue(data["viewport_width"]); ok {
		s.ViewportWidth = v
	}
	if v, ok := intValue(data["viewport_height"]); ok {
		s.ViewportHeight = v
	}
	if v, ok := floatValue(data["device_scale_factor"]); ok {
		s.DeviceScaleFactor = v
	}
	if v, ok := stringSlice(data["allow_patterns"]); ok {
		s.AllowPatterns = v
	}
	if v, ok := stringSlice(data["deny_patterns"]); ok {
		s.DenyPatterns = v
	}
	return nil
}

// Validate validates the current configuration.
func (s *BrowserSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.ViewportWidth <= 0 || s.ViewportHeight <= 0 {
		return fmt.Errorf("viewport must be positive, got %dx%d", s.ViewportWidth, s.ViewportHeight)
	}
	if s.DeviceScaleFactor <= 0 {
		return fmt.Errorf("device_scale_factor must be positive, got %v", s.DeviceScaleFactor)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *BrowserSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Headless = true
	s.ViewportWidth = defaultViewportWidth
	s.ViewportHeight = defaultViewportHeight
	s.DeviceScaleFactor = defaultDeviceScaleFactor
	s.AllowPatterns = nil
	s.DenyPatterns = nil
}

// Snapshot returns a copy of the current values without the lock.
func (s *BrowserSection) Snapshot() BrowserSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return BrowserSettings{
		Headless:          s.Headless,
		ViewportWidth:     s.ViewportWidth,
		ViewportHeight:    s.ViewportHeight,
		DeviceScaleFactor: s.DeviceScaleFactor,
		AllowPatterns:     append([]string(nil), s.AllowPatterns...),
		DenyPatterns:      append([]string(nil), s.DenyPatterns...),
	}
}

// BrowserSettings is a plain copy of BrowserSection's values.
type BrowserSettings struct {
	Headless          bool
	ViewportWidth     int
	ViewportHeight    int
	DeviceScaleFactor float64
	AllowPatterns     []string
	DenyPatterns      []string
}
