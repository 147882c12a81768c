package config

import (
	"sync"
)

var (
	// globalManager is the singleton configuration manager instance
	globalManager *Manager
	globalMu      sync.Mutex
)

// Initialize creates and initializes the global configuration manager.
// This should be called once at application startup.
func Initialize(configPath string) error {
	globalMu.Lock()
	defer globalMu.Unlock()

	store, err := NewFileStore(configPath)
	if err != nil {
		return err
	}

	manager := NewManager(store)

	for _, section := range []Section{
		NewCaptureSection(),
		NewBrowserSection(),
		NewSolverSection(),
	} {
		if err := manager.RegisterSection(section); err != nil {
			return err
		}
	}

	if err := manager.LoadAll(); err != nil {
		return err
	}

	globalManager = manager
	return nil
}

// Global returns the global configuration manager.
// Panics if Initialize has not been called.
func Global() *Manager {
	globalMu.Lock()
	defer globalMu.Unlock()

	if globalManager == nil {
		panic("config not initialized: call config.Initialize first")
	}

	return globalManager
}

// IsInitialized returns true if the global configuration has been initialized.
func IsInitialized() bool {
	globalMu.Lock()
	defer globalMu.Unlock()
	return globalManager != nil
}

// globalSection looks up a section of type T, or returns nil when config is
// not initialized.
func globalSection[T Section](id string) T {
	var zero T
	if !IsInitialized() {
		return zero
	}

	section, ok := Global().GetSection(id)
	if !ok {
		return zero
	}

	typed, ok := section.(T)
	if !ok {
		return zero
	}
	return typed
}

// GetCapture returns the capture section from global config.
// Returns nil if config is not initialized.
func GetCapture() *CaptureSection {
	return globalSection[*CaptureSection](SectionIDCapture)
}

// GetBrowser returns the browser section from global config.
// Returns nil if config is not initialized.
func GetBrowser() *BrowserSection {
	return globalSection[*BrowserSection](SectionIDBrowser)
}

// GetSolver returns the solver section from global config.
// Returns nil if config is not initialized.
func GetSolver() *SolverSection {
	return globalSection[*SolverSection](SectionIDSolver)
}
