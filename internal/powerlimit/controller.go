package powerlimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/exergy/luxos-mcp/internal/luxos"
	"go.uber.org/zap"
)

// Status describes where the control loop currently stands.
type Status string

const (
	// StatusIdle means no loop is running; either no target was ever set
	// or the last run was aborted by a command failure.
	StatusIdle Status = "idle"
	// StatusAdjusting means the loop is actively stepping profiles.
	StatusAdjusting Status = "adjusting"
	// StatusWithinTolerance means measured draw landed inside the band.
	StatusWithinTolerance Status = "within_tolerance"
	// StatusAtLimit means the loop stopped at a catalog boundary or after
	// exhausting its step budget.
	StatusAtLimit Status = "at_limit"
)

// Loop tuning. The stabilization delay covers the hardware's settling time
// after a profile change; no power reading is trusted before it elapses.
const (
	DefaultTolerance          = 0.05
	DefaultStabilizationDelay = 120 * time.Second
	DefaultMaxAdjustments     = 5

	// stepUpSlack is the margin allowed on a step-up estimate: a higher
	// profile is only applied when its estimated real draw stays within
	// 110% of the target, absorbing scale-factor estimation error.
	stepUpSlack = 1.10

	evalTimeout = 30 * time.Second
)

// ProfileSetter issues the device's profile-change command.
type ProfileSetter interface {
	SetProfile(ctx context.Context, name string) error
}

// Refresher forces an immediate telemetry pass so the loop reads fresh
// power figures instead of interval-aged ones.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// timerHandle abstracts *time.Timer so tests can drive the loop without
// real delays.
type timerHandle interface {
	Stop() bool
}

// scheduleFunc schedules fn to run once after d.
type scheduleFunc func(d time.Duration, fn func()) timerHandle

func realSchedule(d time.Duration, fn func()) timerHandle {
	return time.AfterFunc(d, fn)
}

// Options tunes a Controller. Zero values select the defaults above.
type Options struct {
	Tolerance          float64
	StabilizationDelay time.Duration
	MaxAdjustments     int
}

// Controller runs the adaptive power-limit loop. All state mutation is
// serialized through one mutex; the evaluation callback and SetTarget
// cooperate through a generation counter so a fresh target atomically
// supersedes any in-flight evaluation. At most one scheduled evaluation
// exists per controller at any time.
type Controller struct {
	catalog   *Catalog
	src       DataSource
	setter    ProfileSetter
	refresher Refresher
	log       *zap.Logger

	tolerance      float64
	delay          time.Duration
	maxAdjustments int
	schedule       scheduleFunc

	mu          sync.Mutex
	gen         uint64
	target      float64
	hasTarget   bool
	active      bool
	adjustments int
	status      Status
	pending     timerHandle
}

// NewController wires a Controller from its collaborators.
func NewController(catalog *Catalog, src DataSource, setter ProfileSetter, refresher Refresher, opts Options, log *zap.Logger) *Controller {
	if catalog == nil || src == nil || setter == nil || refresher == nil {
		panic("powerlimit: nil collaborator")
	}
	if log == nil {
		panic("logger must not be nil")
	}

	tolerance := opts.Tolerance
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = DefaultTolerance
	}
	delay := opts.StabilizationDelay
	if delay <= 0 {
		delay = DefaultStabilizationDelay
	}
	maxAdj := opts.MaxAdjustments
	if maxAdj <= 0 {
		maxAdj = DefaultMaxAdjustments
	}

	return &Controller{
		catalog:        catalog,
		src:            src,
		setter:         setter,
		refresher:      refresher,
		log:            log,
		tolerance:      tolerance,
		delay:          delay,
		maxAdjustments: maxAdj,
		schedule:       realSchedule,
		status:         StatusIdle,
	}
}

// SetTarget starts (or restarts) the control loop toward targetWatts, a
// real-world figure for the installed hardware. Any loop already running is
// superseded: its pending evaluation is cancelled before state changes.
// Exactly one profile-set command is issued synchronously; further steps run
// from scheduled evaluations.
func (c *Controller) SetTarget(ctx context.Context, targetWatts float64) error {
	if targetWatts <= 0 {
		return fmt.Errorf("powerlimit: target must be positive, got %v", targetWatts)
	}

	c.mu.Lock()
	c.gen++
	c.cancelPendingLocked()
	c.target = targetWatts
	c.hasTarget = true
	c.active = true
	c.adjustments = 0
	c.status = StatusAdjusting
	gen := c.gen
	c.mu.Unlock()

	profile, ok := c.catalog.BestFitForCeiling(targetWatts)
	if !ok {
		c.mu.Lock()
		if gen == c.gen {
			c.active = false
			c.status = StatusIdle
		}
		c.mu.Unlock()
		c.log.Error("no profiles available to set power limit")
		return fmt.Errorf("powerlimit: no profiles available")
	}

	c.log.Info("power limit set, selecting initial profile",
		zap.Float64("target_watts", targetWatts),
		zap.String("profile", profile.Name),
		zap.Float64("profile_device_watts", profile.Watts),
		zap.Float64("profile_estimated_watts", c.catalog.DeviceToReal(profile.Watts)))

	if err := c.setter.SetProfile(ctx, profile.Name); err != nil {
		c.mu.Lock()
		if gen == c.gen {
			c.abortLocked()
		}
		c.mu.Unlock()
		c.log.Error("initial profile change failed", zap.String("profile", profile.Name), zap.Error(err))
		return fmt.Errorf("powerlimit: set profile %q: %w", profile.Name, err)
	}

	if err := c.refresher.Refresh(ctx); err != nil {
		c.log.Warn("refresh after profile change failed", zap.Error(err))
	}

	c.mu.Lock()
	if gen == c.gen {
		c.scheduleLocked(gen)
	}
	c.mu.Unlock()
	return nil
}

// Target returns the current target in watts; ok is false when unset.
func (c *Controller) Target() (watts float64, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target, c.hasTarget
}

// Status returns the loop's current status.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Adjustments returns how many profile changes the current cycle applied.
func (c *Controller) Adjustments() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.adjustments
}

// Stop cancels any pending evaluation. Used at shutdown; it does not clear
// the target or change the reported status.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.cancelPendingLocked()
}

// abortLocked is the command-failure path: the loop forgets its target and
// returns to idle. Caller holds c.mu.
func (c *Controller) abortLocked() {
	c.cancelPendingLocked()
	c.target = 0
	c.hasTarget = false
	c.active = false
	c.status = StatusIdle
}

// cancelPendingLocked stops the outstanding evaluation timer, if any.
// Caller holds c.mu.
func (c *Controller) cancelPendingLocked() {
	if c.pending != nil {
		c.pending.Stop()
		c.pending = nil
	}
}

// scheduleLocked arms the single evaluation timer. Caller holds c.mu.
func (c *Controller) scheduleLocked(gen uint64) {
	c.cancelPendingLocked()
	c.pending = c.schedule(c.delay, func() { c.evaluate(gen) })
	c.log.Debug("evaluation scheduled", zap.Duration("delay", c.delay))
}

// evaluate runs one iteration of the loop. It is invoked only from the
// scheduled timer; gen guards against a timer that fired concurrently with
// a superseding SetTarget.
func (c *Controller) evaluate(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.pending = nil

	if !c.active || !c.hasTarget {
		c.status = StatusIdle
		c.mu.Unlock()
		return
	}
	if c.adjustments >= c.maxAdjustments {
		c.active = false
		c.status = StatusAtLimit
		c.mu.Unlock()
		c.log.Warn("step budget exhausted, stopping", zap.Int("max_adjustments", c.maxAdjustments))
		return
	}
	target := c.target
	c.mu.Unlock()

	if err := c.refresher.Refresh(ctx); err != nil {
		c.log.Warn("refresh before evaluation failed", zap.Error(err))
	}
	actual := c.src.ActualPower()
	current := c.src.CurrentProfileName()

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}

	if actual <= 0 {
		// Not an error: the reading simply is not ready yet. Try again
		// after another settling period without spending the budget.
		c.log.Debug("no power reading available, rescheduling")
		c.scheduleLocked(gen)
		c.mu.Unlock()
		return
	}

	upper := target
	lower := target * (1 - c.tolerance)

	c.log.Debug("evaluating power draw",
		zap.Float64("actual_watts", actual),
		zap.Float64("lower_bound", lower),
		zap.Float64("upper_bound", upper),
		zap.String("profile", current))

	switch {
	case actual > upper:
		next, ok := c.catalog.Neighbor(current, StepLower)
		if !ok {
			c.active = false
			c.status = StatusAtLimit
			c.mu.Unlock()
			c.log.Warn("draw exceeds limit at lowest profile, cannot reduce further",
				zap.Float64("actual_watts", actual),
				zap.Float64("limit_watts", upper))
			return
		}
		c.mu.Unlock()
		c.log.Warn("draw exceeds limit, stepping down",
			zap.Float64("actual_watts", actual),
			zap.Float64("limit_watts", upper),
			zap.String("next_profile", next.Name))
		c.applyAdjustment(ctx, gen, next, "down")

	case actual < lower:
		next, ok := c.catalog.Neighbor(current, StepHigher)
		if !ok {
			c.active = false
			c.status = StatusAtLimit
			c.mu.Unlock()
			c.log.Info("draw below band at highest profile")
			return
		}
		estimated := c.catalog.DeviceToReal(next.Watts)
		if estimated > upper*stepUpSlack {
			// Stepping up would likely blow the limit; settle for the
			// current under-target draw.
			c.active = false
			c.status = StatusWithinTolerance
			c.mu.Unlock()
			c.log.Info("next profile estimated over limit, stopping",
				zap.String("next_profile", next.Name),
				zap.Float64("estimated_watts", estimated))
			return
		}
		c.mu.Unlock()
		c.log.Info("draw below band, stepping up",
			zap.Float64("actual_watts", actual),
			zap.Float64("lower_bound", lower),
			zap.String("next_profile", next.Name))
		c.applyAdjustment(ctx, gen, next, "up")

	default:
		c.active = false
		c.status = StatusWithinTolerance
		c.mu.Unlock()
		c.log.Info("draw within tolerance band, done",
			zap.Float64("actual_watts", actual),
			zap.Float64("lower_bound", lower),
			zap.Float64("upper_bound", upper))
	}
}

// applyAdjustment issues the profile change for one step and, on success,
// arms the next evaluation. Command failure aborts the loop.
func (c *Controller) applyAdjustment(ctx context.Context, gen uint64, next luxos.Profile, direction string) {
	err := c.setter.SetProfile(ctx, next.Name)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if err != nil {
		c.abortLocked()
		c.mu.Unlock()
		c.log.Error("profile adjustment failed", zap.String("profile", next.Name), zap.Error(err))
		return
	}
	c.adjustments++
	adjustments := c.adjustments
	c.mu.Unlock()

	c.log.Info("profile adjusted",
		zap.String("direction", direction),
		zap.String("profile", next.Name),
		zap.Int("adjustment", adjustments),
		zap.Int("max_adjustments", c.maxAdjustments))

	if err := c.refresher.Refresh(ctx); err != nil {
		c.log.Warn("refresh after adjustment failed", zap.Error(err))
	}

	c.mu.Lock()
	if gen == c.gen {
		c.scheduleLocked(gen)
	}
	c.mu.Unlock()
}

// Diagnostics returns the read-only attribute bag exposed alongside the
// power-limit tools: scaling inputs, the tolerance band, and where the last
// reading fell relative to it.
func (c *Controller) Diagnostics() map[string]any {
	boards := c.src.BoardCount()
	actual := c.src.ActualPower()
	current := c.src.CurrentProfileName()

	c.mu.Lock()
	target := c.target
	hasTarget := c.hasTarget
	active := c.active
	status := c.status
	adjustments := c.adjustments
	c.mu.Unlock()

	attrs := map[string]any{
		"board_count":         boards,
		"scale_factor":        c.catalog.ScaleFactor(),
		"control_loop_active": active,
		"control_loop_status": string(status),
		"adjustments_made":    adjustments,
		"max_adjustments":     c.maxAdjustments,
	}

	if actual > 0 {
		attrs["actual_power_watts"] = actual
	}
	if current != "" {
		attrs["current_profile"] = current
		if p, ok := c.findProfile(current); ok {
			attrs["profile_frequency_mhz"] = p.Frequency
			attrs["profile_device_watts"] = p.Watts
			attrs["profile_estimated_watts"] = c.catalog.DeviceToReal(p.Watts)
		}
	}
	if hasTarget {
		lower := target * (1 - c.tolerance)
		attrs["target_limit_watts"] = target
		attrs["tolerance_band_lower"] = lower
		attrs["tolerance_band_upper"] = target
		if actual > 0 {
			switch {
			case actual > target:
				attrs["power_status"] = "over_limit"
			case actual >= lower:
				attrs["power_status"] = "within_tolerance"
			default:
				attrs["power_status"] = "under_target"
			}
		}
	}

	return attrs
}

func (c *Controller) findProfile(name string) (luxos.Profile, bool) {
	for _, p := range c.catalog.Sorted() {
		if p.Name == name {
			return p, true
		}
	}
	return luxos.Profile{}, false
}
