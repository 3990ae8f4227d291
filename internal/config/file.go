package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// OverridesFile is the on-disk shape the settings layer writes: named base
// presets plus optional field-level overrides. Fields omitted from the JSON
// file inherit the built-in preset values, so partial files are safe.
type OverridesFile struct {
	MetricPreset      string    `json:"metric_preset"`
	PerformancePreset string    `json:"performance_preset"`
	Overrides         Overrides `json:"overrides"`
}

// LoadOverridesFile loads an OverridesFile from a JSON file. The path must
// have a .json extension and the file must be under the max file size.
func LoadOverridesFile(path string) (*OverridesFile, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var f OverridesFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if f.MetricPreset == "" {
		f.MetricPreset = MetricPresetDefault
	}
	if f.PerformancePreset == "" {
		f.PerformancePreset = PerformancePresetMedium
	}
	return &f, nil
}

// ResolveFile resolves the presets and overrides named by an OverridesFile.
func ResolveFile(f *OverridesFile) (*EffectiveConfig, error) {
	return Resolve(f.MetricPreset, f.PerformancePreset, f.Overrides)
}
