// Package override manages the temporary carb-ratio override window.
package override

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrAlreadyActive is returned when an override is activated while another
// one is still running. At most one override is active at a time; the
// running one must be cancelled or allowed to expire first.
var ErrAlreadyActive = errors.New("override already active")

// ErrInvalidFactor is returned for a zero or negative override factor.
var ErrInvalidFactor = errors.New("override factor must be positive")

// Session is a snapshot of the override state for display.
type Session struct {
	Active    bool      `json:"active"`
	Factor    float64   `json:"factor"`
	StartedAt time.Time `json:"startedAt"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Controller owns the single override session. Activating divides the
// effective carb ratio by the factor, cancelling (manually or on expiry)
// restores it. Because the division is applied on read in Apply, activation
// and cancellation are paired exactly and a repeated read never applies the
// factor twice.
type Controller struct {
	log           *zap.Logger
	presetPercent float64
	duration      time.Duration

	mu        sync.Mutex
	active    bool
	factor    float64
	startedAt time.Time
	wake      chan struct{}
}

// NewController creates an inactive controller. presetPercent is the factor
// used by ActivatePreset, expressed as a percentage (130 means 1.3).
func NewController(presetPercent float64, duration time.Duration, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	if duration <= 0 {
		duration = 90 * time.Minute
	}
	return &Controller{
		log:           log,
		presetPercent: presetPercent,
		duration:      duration,
		wake:          make(chan struct{}, 1),
	}
}

// ActivateTemporary starts an override with the given percentage factor.
func (c *Controller) ActivateTemporary(factorPercent float64) error {
	return c.activate(factorPercent / 100.0)
}

// ActivatePreset starts an override with the configured preset factor.
func (c *Controller) ActivatePreset() error {
	return c.activate(c.presetPercent / 100.0)
}

func (c *Controller) activate(factor float64) error {
	if factor <= 0 {
		return ErrInvalidFactor
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active {
		return ErrAlreadyActive
	}
	c.active = true
	c.factor = factor
	c.startedAt = time.Now()
	select {
	case c.wake <- struct{}{}:
	default:
	}
	c.log.Info("override activated",
		zap.Float64("factor", factor),
		zap.Duration("duration", c.duration))
	return nil
}

// Cancel stops the active override. It reports whether one was running.
func (c *Controller) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancelLocked("manual")
}

// Tick auto-cancels the override once its window has elapsed. It reports
// whether an expiry happened at this tick.
func (c *Controller) Tick(now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active || now.Sub(c.startedAt) < c.duration {
		return false
	}
	return c.cancelLocked("expired")
}

func (c *Controller) cancelLocked(reason string) bool {
	if !c.active {
		return false
	}
	c.active = false
	c.log.Info("override cancelled",
		zap.String("reason", reason),
		zap.Float64("factor", c.factor))
	c.factor = 0
	return true
}

// Apply returns the effective carb ratio for a scheduled ratio: divided by
// the factor while an override is active, unchanged otherwise.
func (c *Controller) Apply(scheduled float64) float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return scheduled
	}
	return scheduled / c.factor
}

// Session returns a snapshot of the current override state.
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Session{
		Active:    c.active,
		Factor:    c.factor,
		StartedAt: c.startedAt,
	}
	if c.active {
		s.ExpiresAt = c.startedAt.Add(c.duration)
	}
	return s
}

// Watch expires the override on time until the context is cancelled. It
// sleeps until the next activation, then until that session's deadline,
// instead of polling.
func (c *Controller) Watch(ctx context.Context) error {
	for {
		c.mu.Lock()
		active := c.active
		deadline := c.startedAt.Add(c.duration)
		c.mu.Unlock()

		if !active {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-c.wake:
				continue
			}
		}

		timer := time.NewTimer(time.Until(deadline))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case now := <-timer.C:
			c.Tick(now)
		}
	}
}
