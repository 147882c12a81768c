package config

import (
	"fmt"
	"sync"

	"github.com/entrhq/snapsolve/pkg/solver"
)

const (
	// SectionIDSolver is the identifier for the solver settings section
	SectionIDSolver = "solver"
)

// SolverSection manages the solving backend settings.
type SolverSection struct {
	Model       string
	BaseURL     string
	APIKey      string
	Mode        string
	ImageDetail string
	mu          sync.RWMutex
}

// NewSolverSection creates a new solver section with default settings.
func NewSolverSection() *SolverSection {
	return &SolverSection{}
}

// ID returns the section identifier.
func (s *SolverSection) ID() string {
	return SectionIDSolver
}

// Title returns the section title.
func (s *SolverSection) Title() string {
	return "Solver Settings"
}

// Description returns the section description.
func (s *SolverSection) Description() string {
	return "OpenAI-compatible backend that answers captured problems. mode is one of solve, explain or hint; image_detail is auto, low or high."
}

// Data returns the current configuration data.
func (s *SolverSection) Data() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]interface{}{
		"model":        s.Model,
		"base_url":     s.BaseURL,
		"api_key":      s.APIKey,
		"mode":         s.Mode,
		"image_detail": s.ImageDetail,
	}
}

// SetData updates the configuration from the provided data.
func (s *SolverSection) SetData(data map[string]interface{}) error {
	if data == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if v, ok := data["model"].(string); ok {
		s.Model = v
	}
	if v, ok := data["base_url"].(string); ok {
		s.BaseURL = v
	}
	if v, ok := data["api_key"].(string); ok {
		s.APIKey = v
	}
	if v, ok := data["mode"].(string); ok {
		s.Mode = v
	}
	if v, ok := data["image_detail"].(string); ok {
		s.ImageDetail = v
	}
	return nil
}

// Validate validates the current configuration. Credentials are checked
// when the client is built, not here.
func (s *SolverSection) Validate() error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, err := solver.ParseMode(s.Mode); err != nil {
		return err
	}
	switch s.ImageDetail {
	case "", "auto", "low", "high":
		return nil
	default:
		return fmt.Errorf("image_detail must be auto, low or high, got %q", s.ImageDetail)
	}
}

// Reset resets the section to default configuration.
func (s *SolverSection) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Model = ""
	s.BaseURL = ""
	s.APIKey = ""
	s.Mode = ""
	s.ImageDetail = ""
}

// GetModel returns the configured model name.
func (s *SolverSection) GetModel() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Model
}

// GetBaseURL returns the configured base URL.
func (s *SolverSection) GetBaseURL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.BaseURL
}

// GetAPIKey returns the configured API key.
func (s *SolverSection) GetAPIKey() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.APIKey
}

// GetMode returns the configured default mode.
func (s *SolverSection) GetMode() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Mode
}

// GetImageDetail returns the configured image detail hint.
func (s *SolverSection) GetImageDetail() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ImageDetail
}
