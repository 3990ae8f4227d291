package posture

import (
	"time"

	"github.com/banshee-data/posture.report/internal/config"
)

// State names one metric's position in the alert lifecycle.
type State string

const (
	// StateNormal: no active violation.
	StateNormal State = "normal"
	// StatePendingBad: violating, waiting out the minimum duration.
	StatePendingBad State = "pending_bad"
	// StateAlerting: an alert has fired and the violation persists.
	StateAlerting State = "alerting"
	// StateCooldown: still violating but inside the re-fire cooldown.
	StateCooldown State = "cooldown"
	// StatePendingNormal: recovered, waiting out the confirmation window.
	StatePendingNormal State = "pending_normal"
)

// EventKind labels an alert event.
type EventKind string

const (
	// EventBadPosture fires when a violation has persisted past MinDuration
	// (and again after each cooldown while it persists).
	EventBadPosture EventKind = "bad_posture"
	// EventBackToNormal fires once recovery has held for the confirmation
	// window after an alert.
	EventBackToNormal EventKind = "back_to_normal"
)

// Event is an emitted alert.
type Event struct {
	Metric    config.MetricID `json:"metric"`
	Kind      EventKind       `json:"kind"`
	Timestamp time.Time       `json:"timestamp"`
	Severity  float64         `json:"severity"`
}

// metricAlert is the per-metric hysteresis state. Pending timers advance by
// observed inter-sample gaps, so gaps where the metric was unavailable simply
// do not count: the timers freeze instead of silently accruing or resetting.
type metricAlert struct {
	state       State
	progress    time.Duration // toward MinDuration or RecoveryConfirmation
	lastAlertAt time.Time
	lastTick    time.Time
	badTotal    time.Duration
}

// AlertTracker runs one debounce state machine per metric. It is driven only
// by Observe calls with explicit timestamps; it owns no goroutine and no
// clock, which keeps it trivially testable.
type AlertTracker struct {
	settings config.AlertSettings
	metrics  map[config.MetricID]*metricAlert
}

// NewAlertTracker creates a tracker with all metrics in Normal.
func NewAlertTracker(settings config.AlertSettings) *AlertTracker {
	t := &AlertTracker{settings: settings}
	t.ResetAll()
	return t
}

// SetSettings swaps the hysteresis timers. In-flight pending windows keep
// their accumulated progress and are judged against the new durations.
func (t *AlertTracker) SetSettings(settings config.AlertSettings) {
	t.settings = settings
}

// ResetAll returns every metric to Normal without emitting events. Used when
// a new baseline is committed: old deviations are meaningless against it.
func (t *AlertTracker) ResetAll() {
	t.metrics = make(map[config.MetricID]*metricAlert, len(config.AllMetrics()))
	for _, id := range config.AllMetrics() {
		t.metrics[id] = &metricAlert{state: StateNormal}
	}
}

// Reset returns one metric to Normal without emitting events. Used when a
// metric is disabled mid-alert: silence, not a back-to-normal notification.
func (t *AlertTracker) Reset(id config.MetricID) {
	if m, ok := t.metrics[id]; ok {
		*m = metricAlert{state: StateNormal}
	}
}

// States returns a copy of the per-metric states.
func (t *AlertTracker) States() map[config.MetricID]State {
	out := make(map[config.MetricID]State, len(t.metrics))
	for id, m := range t.metrics {
		out[id] = m.state
	}
	return out
}

// BadPostureTotals returns cumulative time each metric has spent violating,
// counted from the first pending sample onward.
func (t *AlertTracker) BadPostureTotals() map[config.MetricID]time.Duration {
	out := make(map[config.MetricID]time.Duration, len(t.metrics))
	for id, m := range t.metrics {
		out[id] = m.badTotal
	}
	return out
}

// Observe advances one metric's state machine with a fresh verdict. It
// returns at most one event. Timestamps must be monotonically non-decreasing
// per metric; the caller supplies frame time, not wall time, so replayed
// fixtures behave identically to live capture.
func (t *AlertTracker) Observe(id config.MetricID, verdict Verdict, severity float64, now time.Time) *Event {
	m, ok := t.metrics[id]
	if !ok {
		return nil
	}

	var gap time.Duration
	if !m.lastTick.IsZero() {
		gap = now.Sub(m.lastTick)
		if gap < 0 {
			gap = 0
		}
	}
	m.lastTick = now

	switch verdict {
	case VerdictUnavailable:
		// No evidence: freeze. Pending progress holds, nothing fires.
		return nil

	case VerdictViolation:
		m.badTotal += gap
		switch m.state {
		case StateNormal:
			m.state = StatePendingBad
			m.progress = gap
		case StatePendingBad:
			m.progress += gap
		case StateAlerting:
			if now.Sub(m.lastAlertAt) >= t.settings.Cooldown {
				m.lastAlertAt = now
				return &Event{Metric: id, Kind: EventBadPosture, Timestamp: now, Severity: severity}
			}
			m.state = StateCooldown
			return nil
		case StateCooldown:
			if now.Sub(m.lastAlertAt) >= t.settings.Cooldown {
				m.state = StateAlerting
				m.lastAlertAt = now
				return &Event{Metric: id, Kind: EventBadPosture, Timestamp: now, Severity: severity}
			}
			return nil
		case StatePendingNormal:
			// Recovery broke before confirmation; the earlier alert stands.
			m.state = StateCooldown
			m.progress = 0
			return nil
		}
		if m.state == StatePendingBad && m.progress >= t.settings.MinDuration {
			m.state = StateAlerting
			m.lastAlertAt = now
			return &Event{Metric: id, Kind: EventBadPosture, Timestamp: now, Severity: severity}
		}
		return nil

	case VerdictOk:
		switch m.state {
		case StateNormal:
			return nil
		case StatePendingBad:
			// Violation never matured: no alert fired, so no recovery event.
			m.state = StateNormal
			m.progress = 0
			return nil
		case StateAlerting, StateCooldown:
			m.state = StatePendingNormal
			m.progress = gap
		case StatePendingNormal:
			m.progress += gap
		}
		if m.progress >= t.settings.RecoveryConfirmation {
			m.state = StateNormal
			m.progress = 0
			return &Event{Metric: id, Kind: EventBackToNormal, Timestamp: now, Severity: severity}
		}
		return nil
	}
	return nil
}

// ObserveAll advances every metric in stable order, collecting events.
func (t *AlertTracker) ObserveAll(verdicts map[config.MetricID]Verdict, readings map[config.MetricID]Reading, now time.Time) []Event {
	var events []Event
	for _, id := range config.AllMetrics() {
		if ev := t.Observe(id, verdicts[id], readings[id].Severity, now); ev != nil {
			events = append(events, *ev)
		}
	}
	return events
}
