package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Settings holds engine-level configuration for the CLI and embedding
// applications. All fields have sensible zero-value fallbacks applied by
// Normalize.
type Settings struct {
	// OllamaHost is the base URL of the chat completion service.
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`

	// DefaultModel is the globally selected model used when a node does not
	// pin one of its own.
	DefaultModel string `yaml:"default_model" json:"default_model"`

	// WorkflowDir is the directory holding persisted workflow documents.
	WorkflowDir string `yaml:"workflow_dir" json:"workflow_dir"`

	// StorePath, when set, selects the SQLite workflow store instead of the
	// filesystem store.
	StorePath string `yaml:"store_path" json:"store_path"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Normalize fills unset fields with defaults.
func (s *Settings) Normalize() {
	if s.OllamaHost == "" {
		s.OllamaHost = "http://localhost:11434"
	}
	if s.WorkflowDir == "" {
		s.WorkflowDir = "workflows"
	}
	if s.LogLevel == "" {
		s.LogLevel = "info"
	}
}

// FromFile loads settings from a file, auto-detecting format by extension.
// Supported extensions: .yaml, .yml, .json
func FromFile(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		return FromYAML(data)
	case ".json":
		return FromJSON(data)
	default:
		return Settings{}, fmt.Errorf("unsupported config file extension: %s", ext)
	}
}

// FromYAML parses YAML data into Settings.
func FromYAML(data []byte) (Settings, error) {
	var s Settings
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse yaml: %w", err)
	}
	s.Normalize()
	return s, nil
}

// FromJSON parses JSON data into Settings.
func FromJSON(data []byte) (Settings, error) {
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse json: %w", err)
	}
	s.Normalize()
	return s, nil
}
