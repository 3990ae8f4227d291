package posture

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/landmark"
	"github.com/banshee-data/posture.report/internal/monitoring"
)

// Journal persists alert events and calibration outcomes. A nil journal is
// valid; the pipeline then keeps nothing beyond its in-memory state.
type Journal interface {
	RecordEvent(ev Event) error
	RecordCalibration(rec CalibrationRecord) error
}

// CalibrationRecord is the persisted outcome of one calibration attempt.
type CalibrationRecord struct {
	Accepted   bool                        `json:"accepted"`
	Quality    float64                     `json:"quality"`
	Reason     string                      `json:"reason,omitempty"`
	References map[config.MetricID]float64 `json:"references,omitempty"`
	CapturedAt time.Time                   `json:"captured_at"`
}

// StatusSnapshot is a point-in-time view of the pipeline for the API layer.
type StatusSnapshot struct {
	SessionID       string                             `json:"session_id"`
	Calibrated      bool                               `json:"calibrated"`
	BaselineQuality float64                            `json:"baseline_quality"`
	CalibratorState CalibratorState                    `json:"calibrator_state"`
	MetricPreset    string                             `json:"metric_preset"`
	PerfPreset      string                             `json:"performance_preset"`
	AlertStates     map[config.MetricID]State          `json:"alert_states"`
	BadPostureTime  map[config.MetricID]time.Duration  `json:"bad_posture_time"`
	FramesProcessed uint64                             `json:"frames_processed"`
	FramesSkipped   uint64                             `json:"frames_skipped"`
	FramesRejected  uint64                             `json:"frames_rejected"`
	EventsDropped   uint64                             `json:"events_dropped"`
}

// PipelineOptions configures optional pipeline collaborators.
type PipelineOptions struct {
	Journal     Journal
	Calibrator  *Calibrator
	FrameBuffer int // frame channel depth (default 4)
	EventBuffer int // event channel depth (default 64)
}

// Pipeline is the single processing loop: it consumes landmark frames,
// schedules or drops them, routes them to either the calibrator or the
// metric/evaluate/alert path, and publishes events. All mutable state is
// confined to the Run goroutine; control methods hand closures to it over
// the command channel and wait for the reply.
type Pipeline struct {
	sessionID string

	frames   chan landmark.Frame
	commands chan func()
	events   chan Event

	cfg      *config.EffectiveConfig
	baseline *Baseline
	engine   *Engine
	sched    *Scheduler
	alerts   *AlertTracker
	calib    *Calibrator
	journal  Journal

	calibrating bool

	framesProcessed uint64
	framesSkipped   uint64
	eventsDropped   uint64

	// framesRejected is bumped by producer goroutines in Submit.
	framesRejected atomic.Uint64
}

// NewPipeline builds a pipeline around a resolved configuration.
func NewPipeline(cfg *config.EffectiveConfig, opts PipelineOptions) *Pipeline {
	if opts.FrameBuffer <= 0 {
		opts.FrameBuffer = 4
	}
	if opts.EventBuffer <= 0 {
		opts.EventBuffer = 64
	}
	calib := opts.Calibrator
	if calib == nil {
		calib = NewCalibrator(CalibratorOptions{})
	}
	return &Pipeline{
		sessionID: uuid.NewString(),
		frames:    make(chan landmark.Frame, opts.FrameBuffer),
		commands:  make(chan func(), 8),
		events:    make(chan Event, opts.EventBuffer),
		cfg:       cfg,
		engine:    NewEngine(cfg.Performance),
		sched:     NewScheduler(cfg.Performance),
		alerts:    NewAlertTracker(cfg.Alerts),
		calib:     calib,
		journal:   opts.Journal,
	}
}

// Events is the pipeline's output stream. Consumers that fall behind lose
// events (counted in the status snapshot) rather than stalling processing.
func (p *Pipeline) Events() <-chan Event { return p.events }

// Submit offers a frame to the pipeline without blocking. Frames arriving
// while the buffer is full are rejected outright: by the time the loop got
// to them they would be stale anyway.
func (p *Pipeline) Submit(f landmark.Frame) bool {
	select {
	case p.frames <- f:
		return true
	default:
		p.framesRejected.Add(1)
		return false
	}
}

// Sink adapts Submit to the landmark.Source contract: it drains the given
// channel into the pipeline until the channel closes or the context ends.
func (p *Pipeline) Sink(ctx context.Context, in <-chan landmark.Frame) {
	for {
		select {
		case <-ctx.Done():
			return
		case f, ok := <-in:
			if !ok {
				return
			}
			p.Submit(f)
		}
	}
}

// Run is the processing loop. It owns all pipeline state and returns when
// the context is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	monitoring.Logf("pipeline: starting (metric preset %s, performance preset %s)",
		p.cfg.MetricPreset, p.cfg.PerformancePreset)
	for {
		select {
		case <-ctx.Done():
			monitoring.Logf("pipeline: stopping: %v", ctx.Err())
			return ctx.Err()
		case cmd := <-p.commands:
			cmd()
		case f := <-p.frames:
			p.processFrame(&f)
		}
	}
}

func (p *Pipeline) processFrame(f *landmark.Frame) {
	now := f.Time()
	if !p.sched.ShouldProcess(now) {
		p.framesSkipped++
		return
	}
	start := time.Now()

	if p.calibrating {
		if err := p.calib.Ingest(f); err != nil {
			monitoring.Logf("pipeline: calibration ingest: %v", err)
		}
	} else {
		readings := p.engine.Compute(f, p.baseline)
		verdicts := Evaluate(readings, p.cfg)
		for _, ev := range p.alerts.ObserveAll(verdicts, readings, now) {
			p.publish(ev)
		}
	}

	p.sched.RecordCost(time.Since(start))
	p.framesProcessed++
}

func (p *Pipeline) publish(ev Event) {
	if p.journal != nil {
		if err := p.journal.RecordEvent(ev); err != nil {
			monitoring.Logf("pipeline: journal event: %v", err)
		}
	}
	select {
	case p.events <- ev:
	default:
		p.eventsDropped++
		monitoring.Tracef("pipeline: event buffer full, dropped %s for %s", ev.Kind, ev.Metric)
	}
}

// do runs fn on the processing goroutine and waits for it to complete.
func (p *Pipeline) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	select {
	case p.commands <- func() { fn(); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ApplyConfig swaps in a new effective configuration. The swap is atomic
// with respect to frame processing: every frame sees either the old or the
// new snapshot in full. Metrics that the new config disables are silently
// reset to Normal; mid-flight pending windows for enabled metrics survive.
func (p *Pipeline) ApplyConfig(ctx context.Context, cfg *config.EffectiveConfig) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	return p.do(ctx, func() {
		perfChanged := cfg.Performance != p.cfg.Performance
		p.cfg = cfg
		p.alerts.SetSettings(cfg.Alerts)
		if perfChanged {
			p.engine.ApplyPerformance(cfg.Performance)
			p.sched.SetPerformance(cfg.Performance)
		}
		for _, id := range config.AllMetrics() {
			if !cfg.Metric(id).Enabled {
				p.alerts.Reset(id)
			}
		}
		monitoring.Logf("pipeline: config applied (metric preset %s, performance preset %s)",
			cfg.MetricPreset, cfg.PerformancePreset)
	})
}

// Config returns the currently active configuration snapshot.
func (p *Pipeline) Config(ctx context.Context) (*config.EffectiveConfig, error) {
	var cfg *config.EffectiveConfig
	err := p.do(ctx, func() { cfg = p.cfg })
	return cfg, err
}

// RestoreBaseline installs a previously committed baseline, typically read
// back from the journal on startup. Invalid baselines are refused.
func (p *Pipeline) RestoreBaseline(ctx context.Context, b *Baseline) error {
	if b == nil || !b.Valid || len(b.References) == 0 {
		return fmt.Errorf("cannot restore an invalid baseline")
	}
	return p.do(ctx, func() {
		p.baseline = b
		p.engine.Reset()
		p.alerts.ResetAll()
		monitoring.Logf("pipeline: baseline restored (quality %.2f, captured %s)",
			b.Quality, b.CapturedAt.Format(time.RFC3339))
	})
}

// StartCalibration opens a capture window. Monitoring is suspended until the
// window is finished or abandoned; frames feed the calibrator instead.
func (p *Pipeline) StartCalibration(ctx context.Context) error {
	return p.do(ctx, func() {
		p.calib.Start(time.Now())
		p.calibrating = true
		monitoring.Logf("pipeline: calibration started")
	})
}

// FinishCalibration closes the capture window. On CalibrationNotReadyError
// the window stays open and the caller may retry. An accepted window commits
// the new baseline and resets all smoothing and alert state; a rejected one
// leaves the previous baseline (if any) in force.
func (p *Pipeline) FinishCalibration(ctx context.Context) (*CalibrationResult, error) {
	var (
		res    *CalibrationResult
		calErr error
	)
	err := p.do(ctx, func() {
		res, calErr = p.calib.Finish(time.Now())
		if calErr != nil {
			return
		}
		p.calibrating = false
		if p.journal != nil {
			rec := CalibrationRecord{
				Accepted:   res.Accepted,
				Quality:    res.Quality,
				Reason:     res.Reason,
				CapturedAt: time.Now(),
			}
			if res.Baseline != nil {
				rec.References = res.Baseline.References
				rec.CapturedAt = res.Baseline.CapturedAt
			}
			if err := p.journal.RecordCalibration(rec); err != nil {
				monitoring.Logf("pipeline: journal calibration: %v", err)
			}
		}
		if res.Accepted {
			p.baseline = res.Baseline
			p.engine.Reset()
			p.alerts.ResetAll()
		}
	})
	if err != nil {
		return nil, err
	}
	return res, calErr
}

// CancelCalibration abandons an open capture window without committing.
func (p *Pipeline) CancelCalibration(ctx context.Context) error {
	return p.do(ctx, func() {
		if p.calibrating {
			p.calibrating = false
			p.calib = NewCalibrator(p.calib.opts)
			monitoring.Logf("pipeline: calibration cancelled")
		}
	})
}

// Status returns a point-in-time snapshot of the pipeline.
func (p *Pipeline) Status(ctx context.Context) (*StatusSnapshot, error) {
	var snap StatusSnapshot
	err := p.do(ctx, func() {
		snap = StatusSnapshot{
			SessionID:       p.sessionID,
			Calibrated:      p.baseline != nil && p.baseline.Valid,
			CalibratorState: p.calib.State(),
			MetricPreset:    p.cfg.MetricPreset,
			PerfPreset:      p.cfg.PerformancePreset,
			AlertStates:     p.alerts.States(),
			BadPostureTime:  p.alerts.BadPostureTotals(),
			FramesProcessed: p.framesProcessed,
			FramesSkipped:   p.framesSkipped,
			FramesRejected:  p.framesRejected.Load(),
			EventsDropped:   p.eventsDropped,
		}
		if snap.Calibrated {
			snap.BaselineQuality = p.baseline.Quality
		}
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}
