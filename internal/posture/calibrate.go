package posture

import (
	"fmt"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/landmark"
	"github.com/banshee-data/posture.report/internal/monitoring"
)

// CalibratorState tracks where the calibrator is in its lifecycle.
type CalibratorState string

const (
	// CalibratorIdle means no capture is in progress.
	CalibratorIdle CalibratorState = "idle"
	// CalibratorCollecting means frames are being accumulated into the window.
	CalibratorCollecting CalibratorState = "collecting"
)

// Baseline is the committed per-user reference posture. References hold the
// raw per-metric values captured while the user sat well; deviations are
// measured against them. An invalid baseline means monitoring has nothing to
// compare against and must not produce verdicts.
type Baseline struct {
	References map[config.MetricID]float64 `json:"references"`
	Quality    float64                     `json:"quality"`
	CapturedAt time.Time                   `json:"captured_at"`
	Valid      bool                        `json:"valid"`
}

// CalibrationResult is the outcome of a finished capture window.
type CalibrationResult struct {
	Accepted bool      `json:"accepted"`
	Quality  float64   `json:"quality"`
	Reason   string    `json:"reason,omitempty"`
	Baseline *Baseline `json:"baseline,omitempty"`
}

// CalibrationNotReadyError reports a Finish call before the capture window
// holds enough evidence. The calibrator stays in Collecting so the caller can
// retry once more frames have arrived.
type CalibrationNotReadyError struct {
	Samples    int
	MinSamples int
	Elapsed    time.Duration
	MinElapsed time.Duration
}

func (e *CalibrationNotReadyError) Error() string {
	return fmt.Sprintf("calibration not ready: %d/%d complete samples after %s (need %s)",
		e.Samples, e.MinSamples, e.Elapsed.Round(time.Millisecond), e.MinElapsed)
}

// CalibratorOptions tunes the capture window. Zero values take defaults.
type CalibratorOptions struct {
	MinSamples    int           // complete samples required (default 30)
	MinElapsed    time.Duration // wall-clock window minimum (default 2s)
	AcceptQuality float64       // quality floor for committing (default 0.7)
	MinVisibility float64       // landmark visibility floor (default 0.7)
}

// Calibrator accumulates raw metric samples over a capture window and, on
// Finish, distills them into a Baseline with a quality score. Low-quality
// windows (fidgeting, bad lighting, occlusion) are rejected rather than
// committed as a misleading reference.
type Calibrator struct {
	opts CalibratorOptions

	state     CalibratorState
	startedAt time.Time
	attempted int
	complete  int
	window    map[config.MetricID][]float64
}

// NewCalibrator creates an idle calibrator.
func NewCalibrator(opts CalibratorOptions) *Calibrator {
	if opts.MinSamples <= 0 {
		opts.MinSamples = 30
	}
	if opts.MinElapsed <= 0 {
		opts.MinElapsed = 2 * time.Second
	}
	if opts.AcceptQuality <= 0 {
		opts.AcceptQuality = 0.7
	}
	if opts.MinVisibility <= 0 {
		opts.MinVisibility = DefaultMinVisibility
	}
	return &Calibrator{opts: opts, state: CalibratorIdle}
}

// State returns the calibrator's current lifecycle state.
func (c *Calibrator) State() CalibratorState { return c.state }

// Progress reports complete samples gathered versus required.
func (c *Calibrator) Progress() (got, want int) {
	return c.complete, c.opts.MinSamples
}

// Start opens a fresh capture window, discarding any previous one.
func (c *Calibrator) Start(now time.Time) {
	c.state = CalibratorCollecting
	c.startedAt = now
	c.attempted = 0
	c.complete = 0
	c.window = make(map[config.MetricID][]float64)
}

// Ingest feeds one frame into the open capture window. Frames that do not
// yield a complete sample (a missing or low-visibility landmark anywhere)
// count against confidence but contribute no values.
func (c *Calibrator) Ingest(f *landmark.Frame) error {
	if c.state != CalibratorCollecting {
		return fmt.Errorf("calibrator is %s, not collecting", c.state)
	}
	c.attempted++

	sample := ExtractSample(f, c.opts.MinVisibility)
	if !sample.Complete() {
		monitoring.Tracef("calibration: incomplete sample %d dropped", c.attempted)
		return nil
	}

	c.complete++
	for id, v := range sample.Values {
		c.window[id] = append(c.window[id], v)
	}
	return nil
}

// Finish closes the capture window and produces a result. If the window is
// too short it returns CalibrationNotReadyError and stays in Collecting.
// Otherwise the calibrator returns to Idle whether the window was accepted or
// rejected; a rejected window leaves any previously committed baseline alone.
func (c *Calibrator) Finish(now time.Time) (*CalibrationResult, error) {
	if c.state != CalibratorCollecting {
		return nil, fmt.Errorf("calibrator is %s, not collecting", c.state)
	}

	elapsed := now.Sub(c.startedAt)
	if c.complete < c.opts.MinSamples || elapsed < c.opts.MinElapsed {
		return nil, &CalibrationNotReadyError{
			Samples:    c.complete,
			MinSamples: c.opts.MinSamples,
			Elapsed:    elapsed,
			MinElapsed: c.opts.MinElapsed,
		}
	}
	c.state = CalibratorIdle

	refs := make(map[config.MetricID]float64, len(c.window))
	var dispersionSum float64
	for _, id := range config.AllMetrics() {
		values := append([]float64(nil), c.window[id]...)
		sort.Float64s(values)
		refs[id] = stat.Quantile(0.5, stat.Empirical, values, nil)
		dispersionSum += stat.StdDev(values, nil) / Scale(id)
	}
	meanDispersion := dispersionSum / float64(len(config.AllMetrics()))

	quality := windowQuality(c.complete, c.attempted, meanDispersion)
	if quality < c.opts.AcceptQuality {
		reason := fmt.Sprintf("window quality %.2f below %.2f (complete %d/%d, dispersion %.3f)",
			quality, c.opts.AcceptQuality, c.complete, c.attempted, meanDispersion)
		monitoring.Logf("calibration rejected: %s", reason)
		return &CalibrationResult{Quality: quality, Reason: reason}, nil
	}

	monitoring.Logf("calibration accepted: quality %.2f over %d samples", quality, c.complete)
	return &CalibrationResult{
		Accepted: true,
		Quality:  quality,
		Baseline: &Baseline{
			References: refs,
			Quality:    quality,
			CapturedAt: now,
			Valid:      true,
		},
	}, nil
}

// windowQuality blends detection confidence (fraction of frames yielding a
// complete sample) with posture steadiness (normalized dispersion across the
// window). A perfectly steady, fully-detected window scores 1.0; a window
// where the user fidgets across the full threshold range scores near 0.5.
func windowQuality(complete, attempted int, meanDispersion float64) float64 {
	confidence := 0.0
	if attempted > 0 {
		confidence = float64(complete) / float64(attempted)
	}
	steadiness := 1 - meanDispersion/0.25
	if steadiness < 0 {
		steadiness = 0
	}
	if steadiness > 1 {
		steadiness = 1
	}
	return 0.5*confidence + 0.5*steadiness
}
