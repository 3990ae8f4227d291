package posture

import (
	"time"

	"github.com/banshee-data/posture.report/internal/config"
	"github.com/banshee-data/posture.report/internal/monitoring"
)

const (
	// costAlpha is the EWMA factor for per-frame processing cost.
	costAlpha = 0.3
	// degradeAfter is how many consecutive over-budget frames are tolerated
	// before the effective interval widens.
	degradeAfter = 3
	// degradeHeadroom pads the widened interval above the observed cost so
	// the loop is not immediately over budget again.
	degradeHeadroom = 1.2
)

// Scheduler decides, frame by frame, whether to process or drop. It never
// queues: a frame that arrives before the effective interval has elapsed is
// discarded, so the loop always works on fresh landmarks. Under sustained
// processing cost above the target interval the effective interval widens
// (fewer frames, each still fresh) and narrows back once cost recovers.
type Scheduler struct {
	target    time.Duration
	effective time.Duration

	lastProcessed time.Time
	costEWMA      time.Duration
	overBudget    int
}

// NewScheduler creates a scheduler aiming at the preset's target frame rate.
func NewScheduler(perf config.PerformanceSettings) *Scheduler {
	s := &Scheduler{}
	s.SetPerformance(perf)
	return s
}

// SetPerformance adopts a new target rate. It takes effect on the next
// decision; a frame admitted under the old rate is not retracted.
func (s *Scheduler) SetPerformance(perf config.PerformanceSettings) {
	s.target = perf.TargetInterval()
	s.effective = s.target
	s.overBudget = 0
}

// EffectiveInterval reports the current inter-frame admission interval.
func (s *Scheduler) EffectiveInterval() time.Duration { return s.effective }

// RecordCost feeds the processing cost of the last admitted frame. Sustained
// cost above the target interval widens the effective interval; a single
// outlier does not.
func (s *Scheduler) RecordCost(cost time.Duration) {
	if cost <= 0 {
		return
	}
	if s.costEWMA == 0 {
		s.costEWMA = cost
	} else {
		s.costEWMA = time.Duration(costAlpha*float64(cost) + (1-costAlpha)*float64(s.costEWMA))
	}

	if s.target > 0 && s.costEWMA > s.target {
		s.overBudget++
		if s.overBudget >= degradeAfter {
			widened := time.Duration(float64(s.costEWMA) * degradeHeadroom)
			if widened > s.effective {
				monitoring.Tracef("scheduler: widening interval %v -> %v (cost %v)",
					s.effective, widened, s.costEWMA)
				s.effective = widened
			}
		}
		return
	}

	if s.overBudget > 0 || s.effective != s.target {
		monitoring.Tracef("scheduler: cost recovered (%v), restoring interval %v",
			s.costEWMA, s.target)
	}
	s.overBudget = 0
	s.effective = s.target
}

// ShouldProcess reports whether a frame stamped now should be processed.
// Admitted frames advance the admission clock; rejected frames leave no
// trace, which is what makes this a drop policy rather than a queue.
func (s *Scheduler) ShouldProcess(now time.Time) bool {
	if s.lastProcessed.IsZero() || now.Sub(s.lastProcessed) >= s.effective {
		s.lastProcessed = now
		return true
	}
	return false
}
