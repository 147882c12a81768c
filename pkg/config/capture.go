package config

import (
	"fmt"
	"sync"

	"github.com/entrhq/snapsolve/pkg/compress"
)

const (
	// SectionIDCapture is the identifier for the capture settings section
	SectionIDCapture = "capture"
)

// CaptureSection holds the compression budgets for full-screen and region
// captures.
type CaptureSection struct {
	FullScreen compress.Settings
	Region     compress.Settings
	mu         sync.RWMutex
}

// NewCaptureSection creates a capture section with default budgets.
func NewCaptureSection() *CaptureSection {
	return &CaptureSection{
		FullScreen: compress.FullScreenSettings(),
		Region:     compress.RegionSettings(),
	}
}

// ID returns the section identifier.
func (s *CaptureSection) ID() string {
	return SectionIDCapture
}

// Title returns the section title.
func (s *CaptureSection) Title() string {
	return "Capture Settings"
}

// Description returns the section description.
func (s *CaptureSection) Description() string {
	return "Size budgets for captured images. full_screen applies to whole-viewport captures, region to selected areas."
}

// Data returns the current configuration data.
func (s *CaptureSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"full_screen": settingsData(s.FullScreen),
		"region":      settingsData(s.Region),
	}
}

// SetData updates the configuration from the provided data.
func (s *CaptureSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if raw, ok := data["full_screen"].(map[string]interface{}); ok {
		applySettings(&s.FullScreen, raw)
	}
	if raw, ok := data["region"].(map[string]interface{}); ok {
		applySettings(&s.Region, raw)
	}
	return nil
}

// Validate validates the current configuration.
func (s *CaptureSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err := s.FullScreen.Validate(); err != nil {
		return fmt.Errorf("full_screen: %w", err)
	}
	if err := s.Region.Validate(); err != nil {
		return fmt.Errorf("region: %w", err)
	}
	return nil
}

// Reset resets the section to default configuration.
func (s *CaptureSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FullScreen = compress.FullScreenSettings()
	s.Region = compress.RegionSettings()
}

// GetFullScreen returns the full-screen budget.
func (s *CaptureSection) GetFullScreen() compress.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.FullScreen
}

// GetRegion returns the region budget.
func (s *CaptureSection) GetRegion() compress.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Region
}

func settingsData(c compress.Settings) map[string]interface{} {
	return map[string]interface{}{
		"max_size_kb":      c.MaxSizeKB,
		"max_dimension_px": c.MaxDimensionPx,
		"quality":          c.Quality,
		"skip_if_small":    c.SkipIfSmall,
	}
}

func applySettings(c *compress.Settings, data map[string]interface{}) {
	if v, ok := intValue(data["max_size_kb"]); ok {
		c.MaxSizeKB = v
	}
	if v, ok := intValue(data["max_dimension_px"]); ok {
		c.MaxDimensionPx = v
	}
	if v, ok := floatValue(data["quality"]); ok {
		c.Quality = v
	}
	if v, ok := data["skip_if_small"].(bool); ok {
		c.SkipIfSmall = v
	}
}
