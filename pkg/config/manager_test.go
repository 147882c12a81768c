package config

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory Store with injectable failures.
type memStore struct {
	mu       sync.Mutex
	sections map[string]map[string]interface{}
	loadErr  error
	saveErr  error
	loads    int
	saves    int
}

func newMemStore() *memStore {
	return &memStore{sections: make(map[string]map[string]interface{})}
}

func (m *memStore) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loads++
	return m.loadErr
}

func (m *memStore) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saves++
	return m.saveErr
}

func (m *memStore) GetSection(id string) (map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySection(m.sections[id]), nil
}

func (m *memStore) SetSection(id string, data map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections[id] = copySection(data)
	return nil
}

func (m *memStore) GetAll() (map[string]map[string]interface{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return copySections(m.sections), nil
}

func (m *memStore) SetAll(data map[string]map[string]interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sections = copySections(data)
	return nil
}

func newTestManager(t *testing.T, store Store) (*Manager, *CaptureSection, *BrowserSection, *SolverSection) {
	t.Helper()
	m := NewManager(store)
	capture, browser, solver := NewCaptureSection(), NewBrowserSection(), NewSolverSection()
	for _, s := range []Section{capture, browser, solver} {
		require.NoError(t, m.RegisterSection(s))
	}
	return m, capture, browser, solver
}

func TestManager_RegisterSection(t *testing.T) {
	m, capture, _, _ := newTestManager(t, newMemStore())

	err := m.RegisterSection(NewCaptureSection())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	got, ok := m.GetSection(SectionIDCapture)
	require.True(t, ok)
	assert.Same(t, capture, got)

	_, ok = m.GetSection("missing")
	assert.False(t, ok)
}

func TestManager_GetSections_KeepsRegistrationOrder(t *testing.T) {
	m, _, _, _ := newTestManager(t, newMemStore())

	var ids []string
	for _, s := range m.GetSections() {
		ids = append(ids, s.ID())
		assert.NotEmpty(t, s.Title())
		assert.NotEmpty(t, s.Description())
	}
	assert.Equal(t, []string{SectionIDCapture, SectionIDBrowser, SectionIDSolver}, ids)
}

func TestManager_LoadAll(t *testing.T) {
	store := newMemStore()
	store.sections[SectionIDBrowser] = map[string]interface{}{
		"headless":            false,
		"device_scale_factor": 2.0,
	}
	store.sections[SectionIDSolver] = map[string]interface{}{"model": "gpt-4o-mini"}

	m, capture, browser, solver := newTestManager(t, store)
	require.NoError(t, m.LoadAll())

	assert.Equal(t, 1, store.loads)
	assert.False(t, browser.Snapshot().Headless)
	assert.Equal(t, 2.0, browser.Snapshot().DeviceScaleFactor)
	assert.Equal(t, "gpt-4o-mini", solver.GetModel())
	assert.Equal(t, NewCaptureSection().GetRegion(), capture.GetRegion(), "absent sections keep defaults")
}

func TestManager_LoadAll_StoreError(t *testing.T) {
	store := newMemStore()
	store.loadErr = errors.New("disk on fire")
	m, _, _, _ := newTestManager(t, store)

	err := m.LoadAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk on fire")
}

func TestManager_SaveAll(t *testing.T) {
	store := newMemStore()
	m, _, browser, _ := newTestManager(t, store)

	browser.ViewportWidth = 1920
	require.NoError(t, m.SaveAll())
	assert.Equal(t, 1, store.saves)

	saved, err := store.GetSection(SectionIDBrowser)
	require.NoError(t, err)
	width, ok := intValue(saved["viewport_width"])
	require.True(t, ok)
	assert.Equal(t, 1920, width)
	assert.Contains(t, store.sections, SectionIDCapture)
	assert.Contains(t, store.sections, SectionIDSolver)
}

func TestManager_SaveAll_ValidatesBeforeWriting(t *testing.T) {
	store := newMemStore()
	m, _, browser, _ := newTestManager(t, store)

	browser.ViewportHeight = 0
	err := m.SaveAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), SectionIDBrowser)
	assert.Empty(t, store.sections, "nothing is written when any section is invalid")
	assert.Equal(t, 0, store.saves)
}

func TestManager_SaveAll_StoreError(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("read-only filesystem")
	m, _, _, _ := newTestManager(t, store)

	err := m.SaveAll()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "read-only filesystem")
}

func TestManager_ResetAll(t *testing.T) {
	store := newMemStore()
	m, _, browser, solver := newTestManager(t, store)

	browser.Headless = false
	solver.Model = "custom"
	m.ResetAll()

	assert.True(t, browser.Snapshot().Headless)
	assert.Empty(t, solver.GetModel())
	assert.Same(t, store, m.Store())
}

func TestManager_ConcurrentAccess(t *testing.T) {
	m, _, _, _ := newTestManager(t, newMemStore())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = m.GetSections()
			_, _ = m.GetSection(SectionIDSolver)
		}()
		go func() {
			defer wg.Done()
			_ = m.LoadAll()
		}()
	}
	wg.Wait()
}
