// Package posture implements the monitoring core: metric derivation from
// landmark frames, baseline calibration, threshold evaluation, debounced
// alerting and adaptive frame scheduling.
package posture

import (
	"math"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/landmark"
)

// Geometry and smoothing constants carried over from the tuned product.
const (
	// DefaultMinVisibility is the landmark visibility floor below which a
	// keypoint is treated as absent.
	DefaultMinVisibility = 0.7

	// headYWeight damps the vertical component of the neck angle so that
	// looking up or down does not register as forward lean.
	headYWeight = 0.8

	// deadZoneZ filters sub-noise depth deltas before smoothing.
	deadZoneZ = 0.0006

	// alphaGeneral and alphaDepth are the EMA smoothing factors. Depth-axis
	// metrics smooth harder because the detector's Z estimate is noisier.
	alphaGeneral = 0.25
	alphaDepth   = 0.2

	// minOutlierHistory is the number of samples required before the outlier
	// filter starts rejecting.
	minOutlierHistory = 5

	angleEpsilon = 0.001
)

// metricScales normalizes each metric's raw deviation so thresholds are
// comparable across metrics and users. Vertical metrics are already in
// normalized image units; angles divide by 90°; depth metrics divide by the
// detector's useful Z range.
var metricScales = map[config.MetricID]float64{
	config.MetricSlouching:        1.0,
	config.MetricUnevenShoulders:  0.1,
	config.MetricHeadTilt:         90.0,
	config.MetricNeckForward:      90.0,
	config.MetricShouldersForward: 0.0599,
}

// Scale returns the normalization scale for a metric (1.0 for unknown ids).
func Scale(id config.MetricID) float64 {
	if s, ok := metricScales[id]; ok {
		return s
	}
	return 1.0
}

// Reading is one metric's output for one frame. Severity is the smoothed,
// baseline-relative, normalized deviation. Available is false when the frame
// lacked the landmarks the metric needs; downstream consumers must treat that
// as "no evidence either way".
type Reading struct {
	Metric    config.MetricID `json:"metric"`
	Raw       float64         `json:"raw"`
	Severity  float64         `json:"severity"`
	Available bool            `json:"available"`
}

// Sample holds the per-metric raw values extracted from a single frame,
// before any baseline subtraction or smoothing.
type Sample struct {
	Values map[config.MetricID]float64
}

// Has reports whether the sample carries a value for the given metric.
func (s Sample) Has(id config.MetricID) bool {
	_, ok := s.Values[id]
	return ok
}

// Complete reports whether every known metric has a value.
func (s Sample) Complete() bool {
	for _, id := range config.AllMetrics() {
		if !s.Has(id) {
			return false
		}
	}
	return true
}

// ExtractSample derives the raw per-metric values from a frame. Metrics whose
// landmarks are missing or below the visibility floor are simply absent from
// the result; no spurious zero is invented for them.
func ExtractSample(f *landmark.Frame, minVisibility float64) Sample {
	values := make(map[config.MetricID]float64, 5)

	shoulder, shoulderOK := stableShoulderPosition(f, minVisibility)
	head, headOK := headPosition(f, minVisibility)

	if shoulderOK {
		values[config.MetricSlouching] = shoulder.Y
	}

	if ls, rs, ok := bothVisible(f, landmark.LeftShoulder, landmark.RightShoulder, minVisibility); ok {
		values[config.MetricUnevenShoulders] = math.Abs(ls.Y - rs.Y)
	}

	if tilt, ok := headTiltDegrees(f, minVisibility); ok {
		values[config.MetricHeadTilt] = tilt
	}

	if shoulderOK && headOK {
		dy := (head.Y - shoulder.Y) * headYWeight
		dz := math.Abs(head.Z-shoulder.Z) + angleEpsilon
		values[config.MetricNeckForward] = math.Atan2(dy, dz) * (180 / math.Pi)
	}

	if shoulderOK {
		if lh, rh, ok := bothVisible(f, landmark.LeftHip, landmark.RightHip, minVisibility); ok {
			hipMidZ := (lh.Z + rh.Z) / 2
			chestZ := (shoulder.Z + hipMidZ) / 2
			// Shoulders ahead of the chest plane (protraction) push Z more
			// negative than the chest, so chest minus shoulder grows positive.
			values[config.MetricShouldersForward] = chestZ - shoulder.Z
		}
	}

	return Sample{Values: values}
}

func bothVisible(f *landmark.Frame, a, b landmark.ID, minVis float64) (landmark.Landmark, landmark.Landmark, bool) {
	la, okA := f.At(a)
	lb, okB := f.At(b)
	if !okA || !okB || la.Visibility < minVis || lb.Visibility < minVis {
		return landmark.Landmark{}, landmark.Landmark{}, false
	}
	return la, lb, true
}

// stableShoulderPosition estimates the shoulder midpoint from every usable
// cue: the shoulder landmarks themselves plus ear-to-elbow midpoints, each
// weighted by visibility. Using several estimates keeps the midpoint steady
// when one shoulder drops below the visibility floor.
func stableShoulderPosition(f *landmark.Frame, minVis float64) (landmark.Point, bool) {
	var points []landmark.Point
	var weights []float64

	for _, id := range []landmark.ID{landmark.LeftShoulder, landmark.RightShoulder} {
		if lm, ok := f.At(id); ok && lm.Visibility >= minVis {
			points = append(points, lm.Point)
			weights = append(weights, lm.Visibility)
		}
	}
	for _, pair := range [][2]landmark.ID{
		{landmark.LeftEar, landmark.LeftElbow},
		{landmark.RightEar, landmark.RightElbow},
	} {
		ear, earOK := f.At(pair[0])
		elbow, elbowOK := f.At(pair[1])
		if earOK && elbowOK && ear.Visibility >= minVis && elbow.Visibility >= minVis {
			points = append(points, landmark.Point{
				X: (ear.X + elbow.X) / 2,
				Y: (ear.Y + elbow.Y) / 2,
				Z: (ear.Z + elbow.Z) / 2,
			})
			weights = append(weights, (ear.Visibility+elbow.Visibility)/2)
		}
	}

	if len(points) == 0 {
		return landmark.Point{}, false
	}

	var total float64
	var avg landmark.Point
	for i, p := range points {
		w := weights[i]
		avg.X += p.X * w
		avg.Y += p.Y * w
		avg.Z += p.Z * w
		total += w
	}
	if total == 0 {
		return landmark.Point{}, false
	}
	avg.X /= total
	avg.Y /= total
	avg.Z /= total
	return avg, true
}

// headPosition averages the visible face keypoints (nose, eyes, ears).
func headPosition(f *landmark.Frame, minVis float64) (landmark.Point, bool) {
	ids := []landmark.ID{
		landmark.Nose, landmark.LeftEye, landmark.RightEye,
		landmark.LeftEar, landmark.RightEar,
	}
	var avg landmark.Point
	var n int
	for _, id := range ids {
		if lm, ok := f.At(id); ok && lm.Visibility >= minVis {
			avg.X += lm.X
			avg.Y += lm.Y
			avg.Z += lm.Z
			n++
		}
	}
	if n == 0 {
		return landmark.Point{}, false
	}
	avg.X /= float64(n)
	avg.Y /= float64(n)
	avg.Z /= float64(n)
	return avg, true
}

// headTiltDegrees measures the ear-line tilt (left low = negative, right low
// = positive), falling back to the eye line when an ear is hidden.
func headTiltDegrees(f *landmark.Frame, minVis float64) (float64, bool) {
	for _, pair := range [][2]landmark.ID{
		{landmark.LeftEar, landmark.RightEar},
		{landmark.LeftEye, landmark.RightEye},
	} {
		left, right, ok := bothVisible(f, pair[0], pair[1], minVis)
		if !ok {
			continue
		}
		dy := left.Y - right.Y
		dx := math.Abs(left.X-right.X) + angleEpsilon
		deg := math.Atan2(dy, dx) * (180 / math.Pi)
		return math.Max(-90, math.Min(90, deg)), true
	}
	return 0, false
}

// Engine converts frames into baseline-relative metric readings, applying
// outlier rejection and EMA smoothing per metric.
type Engine struct {
	minVisibility  float64
	historySize    int
	outlierStdDevs float64

	smoothed map[config.MetricID]float64
	history  map[config.MetricID][]float64
}

// NewEngine creates an engine tuned by the performance settings (history
// size and outlier bound track the active preset).
func NewEngine(perf config.PerformanceSettings) *Engine {
	e := &Engine{minVisibility: DefaultMinVisibility}
	e.ApplyPerformance(perf)
	e.Reset()
	return e
}

// ApplyPerformance adopts the outlier-filter tunables from a new performance
// snapshot. Histories longer than the new size are trimmed from the front.
func (e *Engine) ApplyPerformance(perf config.PerformanceSettings) {
	e.historySize = perf.HistorySize
	if e.historySize <= 0 {
		e.historySize = 20
	}
	e.outlierStdDevs = perf.OutlierStdDevs
	if e.outlierStdDevs <= 0 {
		e.outlierStdDevs = 3.0
	}
	for id, h := range e.history {
		if len(h) > e.historySize {
			e.history[id] = append([]float64(nil), h[len(h)-e.historySize:]...)
		}
	}
}

// Reset clears all smoothing and outlier state. Called when a new baseline is
// committed: deviations restart from zero against the fresh reference.
func (e *Engine) Reset() {
	e.smoothed = make(map[config.MetricID]float64)
	e.history = make(map[config.MetricID][]float64)
}

// Compute derives one Reading per metric from the frame. A nil or invalid
// baseline yields all-unavailable readings (monitoring without calibration
// produces no evidence). Unavailable metrics leave smoothing state untouched.
func (e *Engine) Compute(f *landmark.Frame, baseline *Baseline) map[config.MetricID]Reading {
	readings := make(map[config.MetricID]Reading, 5)
	if baseline == nil || !baseline.Valid {
		for _, id := range config.AllMetrics() {
			readings[id] = Reading{Metric: id}
		}
		return readings
	}

	sample := ExtractSample(f, e.minVisibility)
	for _, id := range config.AllMetrics() {
		raw, ok := sample.Values[id]
		if !ok {
			readings[id] = Reading{Metric: id}
			continue
		}

		dev := raw - baseline.References[id]
		if id == config.MetricShouldersForward && math.Abs(dev) < deadZoneZ {
			dev = 0
		}
		dev = e.filterOutlier(id, dev)

		severity := dev / Scale(id)
		alpha := alphaGeneral
		if id == config.MetricShouldersForward {
			alpha = alphaDepth
		}
		e.smoothed[id] = alpha*severity + (1-alpha)*e.smoothed[id]

		readings[id] = Reading{
			Metric:    id,
			Raw:       raw,
			Severity:  e.smoothed[id],
			Available: true,
		}
	}
	return readings
}

// filterOutlier replaces values further than outlierStdDevs σ from the recent
// mean with the previous sample, then records the observed value. With fewer
// than minOutlierHistory samples everything passes through.
func (e *Engine) filterOutlier(id config.MetricID, v float64) float64 {
	h := e.history[id]
	result := v

	if len(h) >= minOutlierHistory {
		var mean float64
		for _, x := range h {
			mean += x
		}
		mean /= float64(len(h))
		var variance float64
		for _, x := range h {
			variance += (x - mean) * (x - mean)
		}
		variance /= float64(len(h))
		stdDev := math.Sqrt(variance)
		if stdDev <= 0 {
			stdDev = 0.001
		}
		if math.Abs(v-mean) > e.outlierStdDevs*stdDev {
			result = h[len(h)-1]
		}
	}

	h = append(h, v)
	if len(h) > e.historySize {
		h = h[1:]
	}
	e.history[id] = h
	return result
}
