// Package engine wires the dosing components into the single service the
// CLI talks to. All registration-state mutation is funneled through one
// mutex here; background timers only ever call these serialized entry
// points.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrcode/mealdose/internal/channel"
	"github.com/mrcode/mealdose/internal/config"
	"github.com/mrcode/mealdose/internal/dose"
	"github.com/mrcode/mealdose/internal/models"
	"github.com/mrcode/mealdose/internal/override"
	"github.com/mrcode/mealdose/internal/reconcile"
	"github.com/mrcode/mealdose/internal/schedule"
)

// FoodStore provides the selected meal rows and clears them when the meal
// ends. Implemented by the sqlite store.
type FoodStore interface {
	MealRows() ([]models.MealRow, error)
	ClearMealRows() error
}

// registrarFunc adapts the engine's serialized register entry point to the
// reconciler's Registrar interface.
type registrarFunc func(models.DoseKind, models.DoseAmounts) error

func (f registrarFunc) RegisterDose(kind models.DoseKind, amounts models.DoseAmounts) error {
	return f(kind, amounts)
}

// Service is the meal-dose orchestration engine.
type Service struct {
	cfg *config.Config
	log *zap.Logger

	resolver   *schedule.Resolver
	override   *override.Controller
	reconciler *reconcile.Reconciler
	foods      FoodStore

	mu       sync.Mutex
	accum    *dose.Accumulator
	channels map[string]channel.DeliveryChannel
}

// New builds a service from its collaborators. Rehydrate must be called
// before the service handles any interaction.
func New(cfg *config.Config, foods FoodStore, stateStore dose.Store, scheduleSrc schedule.Source, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Service{
		cfg:      cfg,
		log:      log,
		foods:    foods,
		resolver: schedule.NewResolver(scheduleSrc, cfg.DefaultCarbRatio, cfg.DefaultStartDose, log),
		override: override.NewController(cfg.OverridePresetPercent,
			time.Duration(cfg.OverrideDurationSeconds)*time.Second, log),
		accum:    dose.NewAccumulator(stateStore, log),
		channels: make(map[string]channel.DeliveryChannel),
	}
	s.reconciler = reconcile.NewReconciler(registrarFunc(s.registerDose), log)
	return s
}

// RegisterChannel makes a delivery channel available under its name.
func (s *Service) RegisterChannel(ch channel.DeliveryChannel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.Name()] = ch
}

// Rehydrate restores the persisted registration state and resolves the
// schedule for the current hour.
func (s *Service) Rehydrate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.accum.Rehydrate(); err != nil {
		return fmt.Errorf("restoring registration state: %w", err)
	}
	s.resolver.Advance(time.Now())
	return nil
}

// registerDose is the single serialized mutation entry point for confirmed
// doses.
func (s *Service) registerDose(kind models.DoseKind, amounts models.DoseAmounts) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accum.RegisterDose(kind, amounts)
}

// PlannedTotals recomputes the planned meal from the selected rows.
func (s *Service) PlannedTotals() (models.PlannedMeal, error) {
	rows, err := s.foods.MealRows()
	if err != nil {
		return models.PlannedMeal{}, fmt.Errorf("loading meal rows: %w", err)
	}
	return models.PlannedMealFromRows(rows), nil
}

// EffectiveCarbRatio returns the scheduled carb ratio with any active
// override applied.
func (s *Service) EffectiveCarbRatio() float64 {
	return s.override.Apply(s.resolver.CarbRatio())
}

// State returns a copy of the registration state.
func (s *Service) State() models.RegistrationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accum.State()
}

// Remaining returns what is still owed for the active meal.
func (s *Service) Remaining() (dose.Remaining, error) {
	planned, err := s.PlannedTotals()
	if err != nil {
		return dose.Remaining{}, err
	}
	return dose.ComputeRemaining(planned, s.State(), s.EffectiveCarbRatio()), nil
}

// Status classifies the current treatment state.
func (s *Service) Status() (models.TreatmentStatus, error) {
	planned, err := s.PlannedTotals()
	if err != nil {
		return "", err
	}
	return dose.Classify(planned, s.State(), s.EffectiveCarbRatio()), nil
}

// Snapshot is the full engine view rendered by the CLI.
type Snapshot struct {
	Planned    models.PlannedMeal       `json:"planned"`
	State      models.RegistrationState `json:"state"`
	Remaining  dose.Remaining           `json:"remaining"`
	Status     models.TreatmentStatus   `json:"status"`
	CarbRatio  float64                  `json:"effectiveCarbRatio"`
	StartDose  float64                  `json:"scheduledStartDose"`
	Override   override.Session         `json:"override"`
	ExportedAt time.Time                `json:"exportedAt"`
}

// Snapshot assembles the current engine view.
func (s *Service) Snapshot() (Snapshot, error) {
	planned, err := s.PlannedTotals()
	if err != nil {
		return Snapshot{}, err
	}
	state := s.State()
	ratio := s.EffectiveCarbRatio()
	return Snapshot{
		Planned:    planned,
		State:      state,
		Remaining:  dose.ComputeRemaining(planned, state, ratio),
		Status:     dose.Classify(planned, state, ratio),
		CarbRatio:  ratio,
		StartDose:  s.resolver.StartDose(),
		Override:   s.override.Session(),
		ExportedAt: time.Now(),
	}, nil
}

// amountsFor computes the payload for a dose kind. preBolusUnits is only
// read for the pre-bolus kind, whose size the user chooses.
func (s *Service) amountsFor(kind models.DoseKind, preBolusUnits float64) (models.DoseAmounts, error) {
	switch kind {
	case models.DosePreBolus:
		return models.DoseAmounts{Bolus: dose.FloorToStep(preBolusUnits, dose.PumpStep)}, nil
	case models.DoseStart:
		planned, err := s.PlannedTotals()
		if err != nil {
			return models.DoseAmounts{}, err
		}
		return dose.StartAmounts(planned.TotalCarbs, s.resolver.StartDose(),
			s.cfg.StartDoseFactor, s.EffectiveCarbRatio()), nil
	case models.DoseRemaining:
		rem, err := s.Remaining()
		if err != nil {
			return models.DoseAmounts{}, err
		}
		return dose.RemainingAmounts(rem), nil
	default:
		return models.DoseAmounts{}, fmt.Errorf("%w: %q", reconcile.ErrUnknownKind, kind)
	}
}

// SubmitDose computes the payload for a dose kind and sends it through the
// named channel, blocking until the outcome is known. The returned result
// reports cap clamping and whether the dose was registered.
func (s *Service) SubmitDose(ctx context.Context, kind models.DoseKind, channelName string, preBolusUnits float64) (reconcile.Result, error) {
	ch, err := s.channel(channelName)
	if err != nil {
		return reconcile.Result{}, err
	}
	amounts, err := s.amountsFor(kind, preBolusUnits)
	if err != nil {
		return reconcile.Result{}, err
	}
	return s.reconciler.Submit(ctx, kind, amounts, ch, s.cfg.Caps, s.EffectiveCarbRatio())
}

// Resend re-submits the last non-zero bolus, for when a confirmed delivery
// did not reach the pump.
func (s *Service) Resend(ctx context.Context, kind models.DoseKind, channelName string) (reconcile.Result, error) {
	ch, err := s.channel(channelName)
	if err != nil {
		return reconcile.Result{}, err
	}
	last := s.State().LatestBolusSent
	if last == 0 {
		return reconcile.Result{}, fmt.Errorf("no bolus sent yet")
	}
	return s.reconciler.Submit(ctx, kind, models.DoseAmounts{Bolus: last},
		ch, s.cfg.Caps, s.EffectiveCarbRatio())
}

// ResolveOutcome settles an outstanding request by id, for callers that
// receive the confirmation out of band. Unknown or already-settled ids are
// dropped. Reports whether the outcome registered a dose.
func (s *Service) ResolveOutcome(id uuid.UUID, outcome channel.Outcome) bool {
	return s.reconciler.Resolve(id, outcome)
}

// DosePending reports whether a request of the given kind is outstanding.
func (s *Service) DosePending(kind models.DoseKind) bool {
	return s.reconciler.Pending(kind)
}

// EndMeal cancels every outstanding dose request, resets the registration
// state and clears the meal rows. Late confirmations for the cancelled
// requests are dropped by the reconciler.
func (s *Service) EndMeal() error {
	s.reconciler.CancelAll()

	s.mu.Lock()
	err := s.accum.Reset()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	if err := s.foods.ClearMealRows(); err != nil {
		return fmt.Errorf("clearing meal rows: %w", err)
	}
	s.log.Info("meal ended")
	return nil
}

// ActivateOverride starts a temporary carb-ratio override.
func (s *Service) ActivateOverride(factorPercent float64) error {
	return s.override.ActivateTemporary(factorPercent)
}

// ActivatePresetOverride starts the configured preset override.
func (s *Service) ActivatePresetOverride() error {
	return s.override.ActivatePreset()
}

// CancelOverride stops the active override, if any.
func (s *Service) CancelOverride() bool {
	return s.override.Cancel()
}

// OverrideSession returns the current override state.
func (s *Service) OverrideSession() override.Session {
	return s.override.Session()
}

// Run drives the background timers: hour-boundary schedule resolution,
// override expiry, and the periodic state export. It blocks until the
// context is cancelled. Each loop is cancel-safe on its own.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.resolver.Watch(ctx) })
	g.Go(func() error { return s.override.Watch(ctx) })
	if s.cfg.ExportIntervalSeconds > 0 {
		g.Go(func() error { return s.exportLoop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// exportLoop periodically snapshots the engine state to the export path.
func (s *Service) exportLoop(ctx context.Context) error {
	interval := time.Duration(s.cfg.ExportIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.Export(); err != nil {
				s.log.Warn("state export failed", zap.Error(err))
			}
		}
	}
}

// Export writes the current snapshot to the configured export path.
func (s *Service) Export() error {
	snap, err := s.Snapshot()
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.cfg.ExportPath, data, 0600)
}

func (s *Service) channel(name string) (channel.DeliveryChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		name = s.cfg.DefaultChannel
	}
	ch, ok := s.channels[name]
	if !ok {
		return nil, fmt.Errorf("unknown delivery channel %q", name)
	}
	return ch, nil
}
