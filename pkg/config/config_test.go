package config

import (
	"os"
	"path/filepath"
	"testing"
)

func resetGlobal() {
	globalMu.Lock()
	globalManager = nil
	globalMu.Unlock()
}

func TestInitialize(t *testing.T) {
	t.Run("initializes global manager successfully", func(t *testing.T) {
		resetGlobal()
		t.Cleanup(resetGlobal)

		if err := Initialize(filepath.Join(t.TempDir(), "config.json")); err != nil {
			t.Fatalf("Initialize failed: %v", err)
		}
		if !IsInitialized() {
			t.Error("Global manager should be initialized")
		}

		for _, id := range []string{SectionIDCapture, SectionIDBrowser, SectionIDSolver} {
			if _, ok := Global().GetSection(id); !ok {
				t.Errorf("%s section not registered", id)
			}
		}

		sections := Global().GetSections()
		if len(sections) != 3 || sections[0].ID() != SectionIDCapture {
			t.Errorf("Unexpected section order: %v", sections)
		}
	})

	t.Run("rejects corrupt config file", func(t *testing.T) {
		resetGlobal()
		t.Cleanup(resetGlobal)

		configPath := filepath.Join(t.TempDir(), "config.json")
		if err := os.WriteFile(configPath, []byte("{not json"), 0600); err != nil {
			t.Fatal(err)
		}

		if err := Initialize(configPath); err == nil {
			t.Error("Expected error for corrupt config")
		}
		if IsInitialized() {
			t.Error("Manager should not be installed after a failed Initialize")
		}
	})

	t.Run("loads existing configuration", func(t *testing.T) {
		resetGlobal()
		t.Cleanup(resetGlobal)

		configPath := filepath.Join(t.TempDir(), "config.json")
		if err := Initialize(configPath); err != nil {
			t.Fatalf("First initialize failed: %v", err)
		}

		if err := GetCapture().SetData(map[string]interface{}{
			"region": map[string]interface{}{"max_size_kb": 150},
		}); err != nil {
			t.Fatal(err)
		}
		if err := Global().SaveAll(); err != nil {
			t.Fatalf("SaveAll failed: %v", err)
		}

		resetGlobal()
		if err := Initialize(configPath); err != nil {
			t.Fatalf("Re-initialize failed: %v", err)
		}

		if got := GetCapture().GetRegion().MaxSizeKB; got != 150 {
			t.Errorf("Expected region budget 150, got %d", got)
		}
		if got := GetCapture().GetFullScreen().MaxSizeKB; got != 500 {
			t.Errorf("Expected untouched full-screen budget 500, got %d", got)
		}
	})
}

func TestGlobal(t *testing.T) {
	t.Run("panics if not initialized", func(t *testing.T) {
		resetGlobal()

		defer func() {
			if r := recover(); r == nil {
				t.Error("Expected panic for uninitialized config")
			}
		}()

		Global()
	})
}

func TestAccessorsBeforeInitialize(t *testing.T) {
	resetGlobal()

	if GetCapture() != nil {
		t.Error("GetCapture should return nil when not initialized")
	}
	if GetBrowser() != nil {
		t.Error("GetBrowser should return nil when not initialized")
	}
	if GetSolver() != nil {
		t.Error("GetSolver should return nil when not initialized")
	}
}

func TestGlobalConfig_ThreadSafety(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	if err := Initialize(filepath.Join(t.TempDir(), "config.json")); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	done := make(chan bool)
	for i := 0; i < 10; i++ {
		go func() {
			IsInitialized()
			GetCapture().GetRegion()
			GetBrowser().Snapshot()
			GetSolver().GetModel()
			done <- true
		}()
	}
	for i := 0; i < 10; i++ {
		<-done
	}
}

func TestGlobalConfig_Persistence(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := Initialize(configPath); err != nil {
		t.Fatalf("First initialize failed: %v", err)
	}

	if err := GetBrowser().SetData(map[string]interface{}{
		"headless":      false,
		"deny_patterns": []string{"*://*.bank.example/*"},
	}); err != nil {
		t.Fatal(err)
	}
	if err := GetSolver().SetData(map[string]interface{}{"model": "gpt-4.1-mini", "mode": "hint"}); err != nil {
		t.Fatal(err)
	}
	if err := Global().SaveAll(); err != nil {
		t.Fatalf("SaveAll failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("Config file was not created")
	}

	resetGlobal()
	if err := Initialize(configPath); err != nil {
		t.Fatalf("Re-initialize failed: %v", err)
	}

	browser := GetBrowser().Snapshot()
	if browser.Headless {
		t.Error("headless not persisted")
	}
	if len(browser.DenyPatterns) != 1 || browser.DenyPatterns[0] != "*://*.bank.example/*" {
		t.Errorf("deny patterns not persisted: %v", browser.DenyPatterns)
	}
	if browser.ViewportWidth != defaultViewportWidth {
		t.Errorf("viewport width changed: %d", browser.ViewportWidth)
	}
	if GetSolver().GetModel() != "gpt-4.1-mini" || GetSolver().GetMode() != "hint" {
		t.Error("solver settings not persisted")
	}
}

func TestSaveAll_RejectsInvalidSection(t *testing.T) {
	resetGlobal()
	t.Cleanup(resetGlobal)

	configPath := filepath.Join(t.TempDir(), "config.json")
	if err := Initialize(configPath); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}

	GetSolver().SetData(map[string]interface{}{"mode": "cheat"})
	if err := Global().SaveAll(); err == nil {
		t.Error("Expected validation error")
	}
	if _, err := os.Stat(configPath); !os.IsNotExist(err) {
		t.Error("Invalid config should not be written")
	}
}
