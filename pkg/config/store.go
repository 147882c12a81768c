package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

const (
	// ConfigPathEnv overrides the default config file location.
	ConfigPathEnv = "SNAPSOLVE_CONFIG"

	// schemaVersion is written to every saved file.
	schemaVersion = 1
)

// Store provides persistence for configuration data.
type Store interface {
	Load() error
	Save() error
	GetSection(sectionID string) (map[string]interface{}, error)
	SetSection(sectionID string, data map[string]interface{}) error
	GetAll() (map[string]map[string]interface{}, error)
	SetAll(data map[string]map[string]interface{}) error
}

// fileFormat is the on-disk layout shared by the JSON and YAML encodings.
type fileFormat struct {
	Version  int                               `json:"version" yaml:"version"`
	Sections map[string]map[string]interface{} `json:"sections" yaml:"sections"`
}

type codec struct {
	unmarshal func([]byte, interface{}) error
	marshal   func(interface{}) ([]byte, error)
}

var (
	jsonCodec = codec{
		unmarshal: json.Unmarshal,
		marshal: func(v interface{}) ([]byte, error) {
			return json.MarshalIndent(v, "", "  ")
		},
	}
	yamlCodec = codec{
		unmarshal: yaml.Unmarshal,
		marshal:   yaml.Marshal,
	}
)

// codecFor picks the encoding from the file extension. Anything that is not
// .yaml or .yml is JSON.
func codecFor(path string) codec {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yamlCodec
	default:
		return jsonCodec
	}
}

// FileStore keeps all sections in a single JSON or YAML file. Saves are
// atomic and the file is private to the user because it may hold API keys.
type FileStore struct {
	path     string
	codec    codec
	mu       sync.RWMutex
	data     map[string]map[string]interface{}
	modified bool
}

// DefaultPath returns $SNAPSOLVE_CONFIG or ~/.snapsolve/config.json.
func DefaultPath() (string, error) {
	if p := os.Getenv(ConfigPathEnv); p != "" {
		return p, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, ".snapsolve", "config.json"), nil
}

// NewFileStore opens the store at path, or DefaultPath when path is empty.
// A missing file is an empty configuration.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	store := &FileStore{
		path:  path,
		codec: codecFor(path),
		data:  make(map[string]map[string]interface{}),
	}
	if err := store.Load(); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return store, nil
}

// Load replaces the in-memory data with the file's contents.
func (s *FileStore) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.data = make(map[string]map[string]interface{})
		s.modified = false
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileFormat
	if len(strings.TrimSpace(string(raw))) > 0 {
		if err := s.codec.unmarshal(raw, &file); err != nil {
			return fmt.Errorf("failed to decode config file: %w", err)
		}
	}
	if file.Version > schemaVersion {
		return fmt.Errorf("config file version %d is newer than supported version %d", file.Version, schemaVersion)
	}

	s.data = copySections(file.Sections)
	s.modified = false
	return nil
}

// Save writes every section to disk through a temporary file and a rename.
func (s *FileStore) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.codec.marshal(fileFormat{Version: schemaVersion, Sections: s.data})
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp config file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to set config permissions: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.modified = false
	return nil
}

// GetSection returns a copy of one section, empty when it is absent.
func (s *FileStore) GetSection(sectionID string) (map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySection(s.data[sectionID]), nil
}

// SetSection replaces one section with a copy of data.
func (s *FileStore) SetSection(sectionID string, data map[string]interface{}) error {
	if sectionID == "" {
		return fmt.Errorf("section id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[sectionID] = copySection(data)
	s.modified = true
	return nil
}

// GetAll returns a copy of every section.
func (s *FileStore) GetAll() (map[string]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySections(s.data), nil
}

// SetAll replaces every section.
func (s *FileStore) SetAll(data map[string]map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = copySections(data)
	s.modified = true
	return nil
}

// IsModified reports unsaved changes.
func (s *FileStore) IsModified() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.modified
}

// Path returns the file path of the store.
func (s *FileStore) Path() string {
	return s.path
}

// copySection copies the top level of a section. Nested values are shared;
// sections replace them wholesale rather than mutating them.
func copySection(in map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySections(in map[string]map[string]interface{}) map[string]map[string]interface{} {
	out := make(map[string]map[string]interface{}, len(in))
	for id, section := range in {
		out[id] = copySection(section)
	}
	return out
}
