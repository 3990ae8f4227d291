package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestResolveDefaults(t *testing.T) {
	cfg, err := Resolve(MetricPresetDefault, PerformancePresetMedium, Overrides{})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	// Every metric fully populated.
	for _, id := range AllMetrics() {
		s, ok := cfg.Metrics[id]
		if !ok {
			t.Fatalf("metric %s missing from resolved config", id)
		}
		if !s.Enabled {
			t.Errorf("metric %s should default to enabled", id)
		}
		if s.Threshold <= 0 {
			t.Errorf("metric %s has no threshold", id)
		}
		if s.Direction == "" {
			t.Errorf("metric %s has no direction", id)
		}
	}

	if cfg.Metric(MetricHeadTilt).Direction != AbsAbove {
		t.Errorf("head tilt should violate on absolute deviation")
	}
	if cfg.Performance.TargetFPS != 15 {
		t.Errorf("Medium TargetFPS = %v, want 15", cfg.Performance.TargetFPS)
	}
	if cfg.Performance.TargetInterval() != time.Second/15 {
		t.Errorf("TargetInterval = %v, want %v", cfg.Performance.TargetInterval(), time.Second/15)
	}
	if cfg.Alerts.MinDuration != 5*time.Second {
		t.Errorf("default MinDuration = %v, want 5s", cfg.Alerts.MinDuration)
	}
}

func TestResolveOverrides(t *testing.T) {
	disabled := false
	threshold := 0.42
	fps := 7.5

	cfg, err := Resolve(MetricPresetSensitive, PerformancePresetLow, Overrides{
		Metrics: map[MetricID]MetricOverride{
			MetricHeadTilt:  {Enabled: &disabled},
			MetricSlouching: {Threshold: &threshold},
		},
		Performance: PerformanceOverride{TargetFPS: &fps},
	})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if cfg.Metric(MetricHeadTilt).Enabled {
		t.Error("head tilt override should disable the metric")
	}
	if got := cfg.Metric(MetricSlouching).Threshold; got != 0.42 {
		t.Errorf("slouching threshold = %v, want 0.42", got)
	}
	// Untouched fields inherit the base preset.
	if got := cfg.Metric(MetricUnevenShoulders).Threshold; got != 0.20 {
		t.Errorf("uneven shoulders threshold = %v, want Sensitive base 0.20", got)
	}
	if cfg.Performance.TargetFPS != 7.5 {
		t.Errorf("TargetFPS = %v, want override 7.5", cfg.Performance.TargetFPS)
	}
	if cfg.Performance.ModelComplexity != 0 {
		t.Errorf("ModelComplexity = %d, want Low base 0", cfg.Performance.ModelComplexity)
	}
}

func TestResolveUnknownPreset(t *testing.T) {
	var presetErr *InvalidPresetError

	_, err := Resolve("Turbo", PerformancePresetHigh, Overrides{})
	if !errors.As(err, &presetErr) {
		t.Fatalf("expected InvalidPresetError, got %v", err)
	}
	if presetErr.Name != "Turbo" {
		t.Errorf("error names %q, want Turbo", presetErr.Name)
	}

	_, err = Resolve(MetricPresetDefault, "Ultra", Overrides{})
	if !errors.As(err, &presetErr) {
		t.Fatalf("expected InvalidPresetError for performance preset, got %v", err)
	}
}

func TestResolveUnknownMetricOverride(t *testing.T) {
	enabled := true
	_, err := Resolve(MetricPresetDefault, PerformancePresetMedium, Overrides{
		Metrics: map[MetricID]MetricOverride{
			"knee_angle": {Enabled: &enabled},
		},
	})
	var presetErr *InvalidPresetError
	if !errors.As(err, &presetErr) {
		t.Fatalf("expected InvalidPresetError for unknown metric, got %v", err)
	}
	if presetErr.Name != "knee_angle" {
		t.Errorf("error names %q, want knee_angle", presetErr.Name)
	}
}

// Resolving the same preset twice with no overrides must yield identical
// snapshots.
func TestResolveIdempotent(t *testing.T) {
	first, err := Resolve(MetricPresetDefault, PerformancePresetHigh, Overrides{})
	if err != nil {
		t.Fatalf("first Resolve failed: %v", err)
	}
	second, err := Resolve(MetricPresetDefault, PerformancePresetHigh, Overrides{})
	if err != nil {
		t.Fatalf("second Resolve failed: %v", err)
	}
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("resolved configs differ (-first +second):\n%s", diff)
	}
}

func TestLoadOverridesFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "presets.json")

	testJSON := `{
  "metric_preset": "Relaxed",
  "overrides": {
    "metrics": {
      "head_tilt": {"enabled": false}
    },
    "performance": {"target_fps": 10}
  }
}`
	if err := os.WriteFile(configPath, []byte(testJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	f, err := LoadOverridesFile(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if f.MetricPreset != "Relaxed" {
		t.Errorf("MetricPreset = %q, want Relaxed", f.MetricPreset)
	}
	// Omitted performance preset falls back to Medium.
	if f.PerformancePreset != PerformancePresetMedium {
		t.Errorf("PerformancePreset = %q, want Medium default", f.PerformancePreset)
	}

	cfg, err := ResolveFile(f)
	if err != nil {
		t.Fatalf("ResolveFile failed: %v", err)
	}
	if cfg.Metric(MetricHeadTilt).Enabled {
		t.Error("head tilt should be disabled by file override")
	}
	if cfg.Performance.TargetFPS != 10 {
		t.Errorf("TargetFPS = %v, want 10", cfg.Performance.TargetFPS)
	}
}

func TestLoadOverridesFileRejectsBadPath(t *testing.T) {
	if _, err := LoadOverridesFile("presets.yaml"); err == nil {
		t.Error("expected error for non-json extension")
	}
	if _, err := LoadOverridesFile(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
}
