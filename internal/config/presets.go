// Package config defines the metric and performance presets and the resolver
// that merges a named base preset with field-level overrides into one
// effective configuration.
//
// Overrides use pointer fields: nil means "inherit from the base preset", so
// partial override structs are safe. Resolution is a pure function; callers
// are responsible for atomically publishing the resulting EffectiveConfig to
// the processing loop.
package config

import (
	"fmt"
	"time"
)

// MetricID names a posture metric.
type MetricID string

// The metric set tracked by the engine. Each metric reports a normalized
// deviation from the calibrated baseline; the scale factors live with the
// metric geometry in internal/posture.
const (
	MetricSlouching        MetricID = "slouching"
	MetricUnevenShoulders  MetricID = "uneven_shoulders"
	MetricHeadTilt         MetricID = "head_tilt"
	MetricNeckForward      MetricID = "neck_forward"
	MetricShouldersForward MetricID = "shoulders_forward"
)

// AllMetrics lists every known metric in stable order.
func AllMetrics() []MetricID {
	return []MetricID{
		MetricSlouching,
		MetricUnevenShoulders,
		MetricHeadTilt,
		MetricNeckForward,
		MetricShouldersForward,
	}
}

// Direction selects how a metric's deviation violates its threshold.
type Direction string

const (
	// Above violates when deviation > threshold.
	Above Direction = "above"
	// Below violates when deviation < -threshold.
	Below Direction = "below"
	// AbsAbove violates when |deviation| > threshold.
	AbsAbove Direction = "abs_above"
)

// MetricSetting is the fully-resolved configuration for one metric.
type MetricSetting struct {
	Enabled   bool      `json:"enabled"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction"`
}

// MetricOverride is a partial override for one metric. Nil fields inherit the
// base preset value.
type MetricOverride struct {
	Enabled   *bool      `json:"enabled,omitempty"`
	Threshold *float64   `json:"threshold,omitempty"`
	Direction *Direction `json:"direction,omitempty"`
}

// PerformanceSettings is the fully-resolved performance configuration.
type PerformanceSettings struct {
	// TargetFPS is the processing rate the frame scheduler aims for.
	TargetFPS float64 `json:"target_fps"`
	// ModelComplexity is forwarded to the external detector (0, 1 or 2).
	ModelComplexity int `json:"model_complexity"`
	// LandmarkBudget caps auxiliary landmarks reported per frame.
	LandmarkBudget int `json:"landmark_budget"`
	// HistorySize is the rolling window used for outlier rejection.
	HistorySize int `json:"history_size"`
	// OutlierStdDevs is the σ bound beyond which a sample is treated as an
	// outlier and replaced by the previous value.
	OutlierStdDevs float64 `json:"outlier_std_devs"`
}

// TargetInterval returns the inter-frame interval implied by TargetFPS.
func (p PerformanceSettings) TargetInterval() time.Duration {
	if p.TargetFPS <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / p.TargetFPS)
}

// PerformanceOverride is a partial override for the performance settings.
type PerformanceOverride struct {
	TargetFPS       *float64 `json:"target_fps,omitempty"`
	ModelComplexity *int     `json:"model_complexity,omitempty"`
	LandmarkBudget  *int     `json:"landmark_budget,omitempty"`
	HistorySize     *int     `json:"history_size,omitempty"`
	OutlierStdDevs  *float64 `json:"outlier_std_devs,omitempty"`
}

// AlertSettings holds the hysteresis timers for the alert state machines.
// These are not preset-controlled; they come from process flags or defaults.
type AlertSettings struct {
	// MinDuration a violation must persist before the first alert fires.
	MinDuration time.Duration `json:"min_duration"`
	// Cooldown suppresses re-fires after an alert for the same metric.
	Cooldown time.Duration `json:"cooldown"`
	// RecoveryConfirmation is how long recovery must persist before a
	// back-to-normal event is emitted.
	RecoveryConfirmation time.Duration `json:"recovery_confirmation"`
}

// DefaultAlertSettings mirrors the product defaults: five seconds of bad
// posture before the first alert, a thirty-second cooldown, and two seconds of
// confirmed recovery.
func DefaultAlertSettings() AlertSettings {
	return AlertSettings{
		MinDuration:          5 * time.Second,
		Cooldown:             30 * time.Second,
		RecoveryConfirmation: 2 * time.Second,
	}
}

// EffectiveConfig is an immutable snapshot of the fully-resolved
// configuration. "Updating" means resolving a new snapshot and swapping the
// published pointer; the processing loop always observes either the old or
// the new value in full.
type EffectiveConfig struct {
	MetricPreset      string                     `json:"metric_preset"`
	PerformancePreset string                     `json:"performance_preset"`
	Metrics           map[MetricID]MetricSetting `json:"metrics"`
	Performance       PerformanceSettings        `json:"performance"`
	Alerts            AlertSettings              `json:"alerts"`
}

// Metric returns the setting for the given metric. Unknown metrics resolve to
// a disabled setting so callers need no existence check.
func (c *EffectiveConfig) Metric(id MetricID) MetricSetting {
	if s, ok := c.Metrics[id]; ok {
		return s
	}
	return MetricSetting{}
}

// InvalidPresetError reports an unknown preset name or an override that
// references a nonexistent metric. Resolution fails eagerly; nothing is
// partially applied.
type InvalidPresetError struct {
	Kind string // "metric preset", "performance preset" or "metric override"
	Name string
}

func (e *InvalidPresetError) Error() string {
	return fmt.Sprintf("invalid %s %q", e.Kind, e.Name)
}

// Built-in preset names.
const (
	MetricPresetDefault   = "Default"
	MetricPresetSensitive = "Sensitive"
	MetricPresetRelaxed   = "Relaxed"

	PerformancePresetLow    = "Low"
	PerformancePresetMedium = "Medium"
	PerformancePresetHigh   = "High"
)

// metricDirections fixes each metric's violation direction. Presets and
// overrides may change it, but in practice only thresholds vary.
var metricDirections = map[MetricID]Direction{
	MetricSlouching:        Above,
	MetricUnevenShoulders:  Above,
	MetricHeadTilt:         AbsAbove,
	MetricNeckForward:      Above,
	MetricShouldersForward: Above,
}

// metricPresets holds the built-in threshold sets. Thresholds are in
// normalized deviation units (the original product's 0–500 display scale
// divided by 500).
var metricPresets = map[string]map[MetricID]float64{
	MetricPresetDefault: {
		MetricSlouching:        0.80,
		MetricUnevenShoulders:  0.30,
		MetricHeadTilt:         0.111,
		MetricNeckForward:      0.060,
		MetricShouldersForward: 0.80,
	},
	MetricPresetSensitive: {
		MetricSlouching:        0.60,
		MetricUnevenShoulders:  0.20,
		MetricHeadTilt:         0.056,
		MetricNeckForward:      0.040,
		MetricShouldersForward: 0.60,
	},
	MetricPresetRelaxed: {
		MetricSlouching:        1.00,
		MetricUnevenShoulders:  0.40,
		MetricHeadTilt:         0.167,
		MetricNeckForward:      0.080,
		MetricShouldersForward: 1.00,
	},
}

// performancePresets holds the built-in performance profiles.
var performancePresets = map[string]PerformanceSettings{
	PerformancePresetLow: {
		TargetFPS:       5,
		ModelComplexity: 0,
		LandmarkBudget:  5,
		HistorySize:     10,
		OutlierStdDevs:  2.5,
	},
	PerformancePresetMedium: {
		TargetFPS:       15,
		ModelComplexity: 1,
		LandmarkBudget:  20,
		HistorySize:     20,
		OutlierStdDevs:  3.0,
	},
	PerformancePresetHigh: {
		TargetFPS:       30,
		ModelComplexity: 2,
		LandmarkBudget:  40,
		HistorySize:     30,
		OutlierStdDevs:  3.0,
	},
}

// MetricPresetNames returns the built-in metric preset names.
func MetricPresetNames() []string {
	return []string{MetricPresetDefault, MetricPresetSensitive, MetricPresetRelaxed}
}

// PerformancePresetNames returns the built-in performance preset names.
func PerformancePresetNames() []string {
	return []string{PerformancePresetLow, PerformancePresetMedium, PerformancePresetHigh}
}

// Overrides bundles the optional field-level overrides applied on top of the
// named base presets.
type Overrides struct {
	Metrics     map[MetricID]MetricOverride `json:"metrics,omitempty"`
	Performance PerformanceOverride         `json:"performance,omitempty"`
	Alerts      *AlertSettings              `json:"alerts,omitempty"`
}

// Resolve merges the named base presets with the given overrides into a
// complete EffectiveConfig. Every metric ends up with an enabled flag,
// threshold and direction; every performance field has a value. Unknown
// preset names or override metrics fail with InvalidPresetError before
// anything is built.
func Resolve(metricPreset, perfPreset string, ov Overrides) (*EffectiveConfig, error) {
	thresholds, ok := metricPresets[metricPreset]
	if !ok {
		return nil, &InvalidPresetError{Kind: "metric preset", Name: metricPreset}
	}
	perf, ok := performancePresets[perfPreset]
	if !ok {
		return nil, &InvalidPresetError{Kind: "performance preset", Name: perfPreset}
	}
	for id := range ov.Metrics {
		if _, known := metricDirections[id]; !known {
			return nil, &InvalidPresetError{Kind: "metric override", Name: string(id)}
		}
	}

	metrics := make(map[MetricID]MetricSetting, len(thresholds))
	for _, id := range AllMetrics() {
		setting := MetricSetting{
			Enabled:   true,
			Threshold: thresholds[id],
			Direction: metricDirections[id],
		}
		if o, has := ov.Metrics[id]; has {
			if o.Enabled != nil {
				setting.Enabled = *o.Enabled
			}
			if o.Threshold != nil {
				setting.Threshold = *o.Threshold
			}
			if o.Direction != nil {
				setting.Direction = *o.Direction
			}
		}
		metrics[id] = setting
	}

	if ov.Performance.TargetFPS != nil {
		perf.TargetFPS = *ov.Performance.TargetFPS
	}
	if ov.Performance.ModelComplexity != nil {
		perf.ModelComplexity = *ov.Performance.ModelComplexity
	}
	if ov.Performance.LandmarkBudget != nil {
		perf.LandmarkBudget = *ov.Performance.LandmarkBudget
	}
	if ov.Performance.HistorySize != nil {
		perf.HistorySize = *ov.Performance.HistorySize
	}
	if ov.Performance.OutlierStdDevs != nil {
		perf.OutlierStdDevs = *ov.Performance.OutlierStdDevs
	}

	alerts := DefaultAlertSettings()
	if ov.Alerts != nil {
		alerts = *ov.Alerts
	}

	return &EffectiveConfig{
		MetricPreset:      metricPreset,
		PerformancePreset: perfPreset,
		Metrics:           metrics,
		Performance:       perf,
		Alerts:            alerts,
	}, nil
}
