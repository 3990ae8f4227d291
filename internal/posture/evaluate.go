package posture

import "github.com/banshee-data/posture.report/internal/config"

// Verdict classifies one metric on one frame.
type Verdict int

const (
	// VerdictUnavailable means the frame held no usable evidence for the
	// metric. It is distinct from Ok: absence of evidence never counts as
	// recovery or as violation.
	VerdictUnavailable Verdict = iota
	// VerdictOk means the metric is within its threshold (or disabled).
	VerdictOk
	// VerdictViolation means the deviation crossed the configured threshold.
	VerdictViolation
)

func (v Verdict) String() string {
	switch v {
	case VerdictOk:
		return "ok"
	case VerdictViolation:
		return "violation"
	default:
		return "unavailable"
	}
}

// EvaluateReading classifies a single reading against its metric setting.
// Disabled metrics are always Ok, even without evidence.
func EvaluateReading(r Reading, setting config.MetricSetting) Verdict {
	if !setting.Enabled {
		return VerdictOk
	}
	if !r.Available {
		return VerdictUnavailable
	}
	switch setting.Direction {
	case config.Below:
		if r.Severity < -setting.Threshold {
			return VerdictViolation
		}
	case config.AbsAbove:
		if r.Severity > setting.Threshold || r.Severity < -setting.Threshold {
			return VerdictViolation
		}
	default: // config.Above
		if r.Severity > setting.Threshold {
			return VerdictViolation
		}
	}
	return VerdictOk
}

// Evaluate classifies every metric's reading against the effective config.
// Pure: no state, no clock, no side effects.
func Evaluate(readings map[config.MetricID]Reading, cfg *config.EffectiveConfig) map[config.MetricID]Verdict {
	verdicts := make(map[config.MetricID]Verdict, len(readings))
	for _, id := range config.AllMetrics() {
		verdicts[id] = EvaluateReading(readings[id], cfg.Metric(id))
	}
	return verdicts
}
