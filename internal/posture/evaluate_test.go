package posture

import (
	"testing"

	"github.com/banshee-data/posture.report/internal/config"
)

func TestEvaluateReading(t *testing.T) {
	cases := []struct {
		name    string
		reading Reading
		setting config.MetricSetting
		want    Verdict
	}{
		{
			name:    "within threshold",
			reading: Reading{Severity: 0.1, Available: true},
			setting: config.MetricSetting{Enabled: true, Threshold: 0.2, Direction: config.Above},
			want:    VerdictOk,
		},
		{
			name:    "above threshold",
			reading: Reading{Severity: 0.3, Available: true},
			setting: config.MetricSetting{Enabled: true, Threshold: 0.2, Direction: config.Above},
			want:    VerdictViolation,
		},
		{
			name:    "at threshold is not a violation",
			reading: Reading{Severity: 0.2, Available: true},
			setting: config.MetricSetting{Enabled: true, Threshold: 0.2, Direction: config.Above},
			want:    VerdictOk,
		},
		{
			name:    "negative deviation ignored by Above",
			reading: Reading{Severity: -0.9, Available: true},
			setting: config.MetricSetting{Enabled: true, Threshold: 0.2, Direction: config.Above},
			want:    VerdictOk,
		},
		{
			name:    "below direction",
			reading: Reading{Severity: -0.3, Available: true},
			setting: config.MetricSetting{Enabled: true, Threshold: 0.2, Direction: config.Below},
			want:    VerdictViolation,
		},
		{
			name:    "abs direction catches both signs",
			reading: Reading{Severity: -0.3, Available: true},
			setting: config.MetricSetting{Enabled: true, Threshold: 0.2, Direction: config.AbsAbove},
			want:    VerdictViolation,
		},
		{
			name:    "unavailable reading",
			reading: Reading{Available: false},
			setting: config.MetricSetting{Enabled: true, Threshold: 0.2, Direction: config.Above},
			want:    VerdictUnavailable,
		},
		{
			name:    "disabled metric is ok even when violating",
			reading: Reading{Severity: 5.0, Available: true},
			setting: config.MetricSetting{Enabled: false, Threshold: 0.2, Direction: config.Above},
			want:    VerdictOk,
		},
		{
			name:    "disabled metric is ok even without evidence",
			reading: Reading{Available: false},
			setting: config.MetricSetting{Enabled: false, Threshold: 0.2, Direction: config.Above},
			want:    VerdictOk,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := EvaluateReading(tc.reading, tc.setting); got != tc.want {
				t.Errorf("EvaluateReading() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestEvaluateAllMetrics(t *testing.T) {
	cfg, err := config.Resolve(config.MetricPresetDefault, config.PerformancePresetMedium, config.Overrides{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	readings := map[config.MetricID]Reading{
		config.MetricSlouching: {Metric: config.MetricSlouching, Severity: 0.9, Available: true},
		config.MetricHeadTilt:  {Metric: config.MetricHeadTilt, Severity: -0.15, Available: true},
	}
	verdicts := Evaluate(readings, cfg)

	if verdicts[config.MetricSlouching] != VerdictViolation {
		t.Errorf("slouching at 0.9 against default 0.80 should violate")
	}
	if verdicts[config.MetricHeadTilt] != VerdictViolation {
		t.Errorf("head tilt at -0.15 against abs 0.111 should violate")
	}
	// Metrics with no reading at all come back unavailable, not ok.
	if verdicts[config.MetricNeckForward] != VerdictUnavailable {
		t.Errorf("absent reading should be unavailable, got %v", verdicts[config.MetricNeckForward])
	}
}
