// Package schedule resolves the hourly carb-ratio and start-dose tables.
package schedule

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mrcode/mealdose/internal/models"
)

// Source provides the configured schedule table. Implemented by the
// sqlite-backed schedule store.
type Source interface {
	Schedule() (*models.ScheduleTable, error)
}

// Resolver tracks the carb ratio and start dose currently in effect. The
// schedule is consulted once per wall-clock hour transition; an hour with no
// configured slot (or a zero value, which would otherwise divide by zero)
// keeps the value already loaded.
type Resolver struct {
	src Source
	log *zap.Logger

	mu        sync.Mutex
	carbRatio float64
	startDose float64
	lastHour  int
}

// NewResolver creates a resolver seeded with the configured defaults. The
// defaults stay in effect until a schedule slot replaces them.
func NewResolver(src Source, defaultCarbRatio, defaultStartDose float64, log *zap.Logger) *Resolver {
	if log == nil {
		log = zap.NewNop()
	}
	if defaultCarbRatio <= 0 {
		defaultCarbRatio = 10.0
	}
	return &Resolver{
		src:       src,
		log:       log,
		carbRatio: defaultCarbRatio,
		startDose: defaultStartDose,
		lastHour:  -1,
	}
}

// CarbRatio returns the scheduled carb ratio currently in effect. Always > 0.
func (r *Resolver) CarbRatio() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.carbRatio
}

// StartDose returns the scheduled start-dose cap currently in effect.
func (r *Resolver) StartDose() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.startDose
}

// CarbRatioForHour resolves the given hour if it has not been resolved yet
// and returns the carb ratio in effect.
func (r *Resolver) CarbRatioForHour(hour int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked(hour)
	return r.carbRatio
}

// StartDoseForHour resolves the given hour if it has not been resolved yet
// and returns the start-dose cap in effect.
func (r *Resolver) StartDoseForHour(hour int) float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked(hour)
	return r.startDose
}

// Advance re-resolves the schedule when now has crossed into a new hour.
func (r *Resolver) Advance(now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.resolveLocked(now.Hour())
}

// resolveLocked reads the schedule table for an hour transition. Callers
// must hold r.mu.
func (r *Resolver) resolveLocked(hour int) {
	if hour == r.lastHour {
		return
	}
	r.lastHour = hour

	if r.src == nil {
		return
	}
	table, err := r.src.Schedule()
	if err != nil {
		r.log.Warn("schedule read failed, keeping current values",
			zap.Int("hour", hour), zap.Error(err))
		return
	}

	slot, ok := table.Slot(hour)
	if !ok {
		r.log.Debug("no schedule slot for hour, keeping current values",
			zap.Int("hour", hour))
		return
	}
	if slot.CarbRatio > 0 {
		r.carbRatio = slot.CarbRatio
	}
	if slot.StartDose > 0 {
		r.startDose = slot.StartDose
	}
	r.log.Debug("schedule resolved",
		zap.Int("hour", hour),
		zap.Float64("carbRatio", r.carbRatio),
		zap.Float64("startDose", r.startDose))
}

// Watch re-resolves the schedule at every wall-clock hour boundary until the
// context is cancelled. The timer fires once per boundary rather than
// polling.
func (r *Resolver) Watch(ctx context.Context) error {
	r.Advance(time.Now())
	for {
		now := time.Now()
		next := now.Truncate(time.Hour).Add(time.Hour)
		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case fired := <-timer.C:
			r.Advance(fired)
		}
	}
}
