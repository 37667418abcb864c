// Package reconcile turns asynchronous delivery-channel outcomes into
// exactly one accumulator update per requested dose.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/mrcode/mealdose/internal/channel"
	"github.com/mrcode/mealdose/internal/dose"
	"github.com/mrcode/mealdose/internal/models"
)

// ErrAlreadyPending is returned when a dose kind already has an outstanding
// request. The first request must resolve before the kind can be submitted
// again.
var ErrAlreadyPending = errors.New("dose request already pending")

// ErrUnknownKind is returned for a dose kind outside the known set.
var ErrUnknownKind = errors.New("unknown dose kind")

// ErrChannelFailure wraps transport errors from a delivery channel. The
// dose was not registered and may be resubmitted.
var ErrChannelFailure = errors.New("delivery channel failure")

// Registrar receives the confirmed dose. Implemented by the accumulator
// through the engine's serialized entry point.
type Registrar interface {
	RegisterDose(kind models.DoseKind, amounts models.DoseAmounts) error
}

// Result reports what happened to a submitted dose.
type Result struct {
	RequestID uuid.UUID          `json:"requestId"`
	Outcome   channel.Outcome    `json:"outcome"`
	Amounts   models.DoseAmounts `json:"amounts"`

	// Capped is set when the safety caps reduced the requested amounts;
	// the caller should warn the user.
	Capped bool `json:"capped"`

	// Registered is set when the accumulator was updated.
	Registered bool `json:"registered"`
}

// ApplyCaps clamps a dose payload to the configured safety caps. The carbs
// cap is evaluated first: clamping carbs recomputes the bolus for the
// clamped carbs (floored to the pump step) but never raises it above the
// requested bolus. The bolus cap then applies on top. Both caps can clamp
// the same request.
func ApplyCaps(amounts models.DoseAmounts, caps models.SafetyCaps, carbRatio float64) (models.DoseAmounts, bool) {
	capped := false

	if caps.MaxCarbs != nil && amounts.Carbs > *caps.MaxCarbs {
		amounts.Carbs = *caps.MaxCarbs
		if carbRatio > 0 {
			recomputed := dose.FloorToStep(amounts.Carbs/carbRatio, dose.PumpStep)
			if recomputed < amounts.Bolus {
				amounts.Bolus = recomputed
			}
		}
		capped = true
	}

	if caps.MaxBolus != nil && amounts.Bolus > *caps.MaxBolus {
		amounts.Bolus = *caps.MaxBolus
		capped = true
	}

	return amounts, capped
}

// pendingRequest is one outstanding dose request.
type pendingRequest struct {
	id      uuid.UUID
	kind    models.DoseKind
	amounts models.DoseAmounts
	cancel  context.CancelFunc
}

// Reconciler serializes dose requests: one outstanding request per dose
// kind, at most one accumulator mutation per submit. Late or duplicate
// outcome callbacks find their request gone and are dropped.
type Reconciler struct {
	registrar Registrar
	log       *zap.Logger

	mu      sync.Mutex
	pending map[models.DoseKind]*pendingRequest
}

// NewReconciler creates a reconciler feeding confirmed doses into registrar.
func NewReconciler(registrar Registrar, log *zap.Logger) *Reconciler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Reconciler{
		registrar: registrar,
		log:       log,
		pending:   make(map[models.DoseKind]*pendingRequest),
	}
}

// Submit sends a dose request through the given channel and blocks until
// its outcome is known. While the request is outstanding no second request
// of the same kind is accepted. The safety caps are applied before the
// request leaves the engine.
func (r *Reconciler) Submit(ctx context.Context, kind models.DoseKind, amounts models.DoseAmounts,
	ch channel.DeliveryChannel, caps models.SafetyCaps, carbRatio float64) (Result, error) {

	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	clamped, capped := ApplyCaps(amounts, caps, carbRatio)

	sendCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	req := &pendingRequest{
		id:      uuid.New(),
		kind:    kind,
		amounts: clamped,
		cancel:  cancel,
	}

	r.mu.Lock()
	if _, busy := r.pending[kind]; busy {
		r.mu.Unlock()
		return Result{}, fmt.Errorf("%s: %w", kind, ErrAlreadyPending)
	}
	r.pending[kind] = req
	r.mu.Unlock()

	r.log.Info("dose submitted",
		zap.String("requestId", req.id.String()),
		zap.String("kind", string(kind)),
		zap.String("channel", ch.Name()),
		zap.Float64("carbs", clamped.Carbs),
		zap.Float64("bolus", clamped.Bolus),
		zap.Bool("capped", capped))

	outcome, err := ch.Send(sendCtx, channel.Request{
		ID:          req.id,
		Kind:        kind,
		Amounts:     clamped,
		RequestedAt: time.Now(),
	})
	if err != nil {
		r.Resolve(req.id, channel.Outcome{Kind: channel.OutcomeFailed, Reason: err.Error()})
		return Result{RequestID: req.id, Amounts: clamped, Capped: capped,
				Outcome: channel.Outcome{Kind: channel.OutcomeFailed, Reason: err.Error()}},
			fmt.Errorf("%w: %v", ErrChannelFailure, err)
	}

	registered := r.Resolve(req.id, outcome)
	return Result{
		RequestID:  req.id,
		Outcome:    outcome,
		Amounts:    clamped,
		Capped:     capped,
		Registered: registered,
	}, nil
}

// Resolve applies an outcome to an outstanding request. The accumulator is
// mutated only for a confirmed outcome, and only on the first resolution of
// a request id; anything later is a duplicate and is dropped. It reports
// whether the accumulator was updated.
func (r *Reconciler) Resolve(id uuid.UUID, outcome channel.Outcome) bool {
	r.mu.Lock()
	req, ok := r.pending[r.kindOf(id)]
	if !ok || req.id != id {
		r.mu.Unlock()
		r.log.Debug("duplicate or stale confirmation dropped",
			zap.String("requestId", id.String()),
			zap.String("outcome", string(outcome.Kind)))
		return false
	}
	delete(r.pending, req.kind)
	r.mu.Unlock()

	switch outcome.Kind {
	case channel.OutcomeConfirmed:
		if err := r.registrar.RegisterDose(req.kind, req.amounts); err != nil {
			// The dose is registered in memory; only persistence failed.
			r.log.Warn("confirmed dose registered without persistence",
				zap.String("requestId", id.String()), zap.Error(err))
		}
		return true
	case channel.OutcomeCancelled:
		r.log.Info("dose request cancelled",
			zap.String("requestId", id.String()),
			zap.String("reason", outcome.Reason))
	default:
		r.log.Warn("dose request failed",
			zap.String("requestId", id.String()),
			zap.String("reason", outcome.Reason))
	}
	return false
}

// kindOf finds the dose kind holding a request id. Callers must hold r.mu.
func (r *Reconciler) kindOf(id uuid.UUID) models.DoseKind {
	for kind, req := range r.pending {
		if req.id == id {
			return kind
		}
	}
	return ""
}

// Pending reports whether the given kind has an outstanding request.
func (r *Reconciler) Pending(kind models.DoseKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.pending[kind]
	return ok
}

// CancelAll aborts every outstanding request. In-flight sends are
// cancelled; outcomes arriving afterwards find no request and are dropped.
// Used when the meal ends.
func (r *Reconciler) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, req := range r.pending {
		req.cancel()
		delete(r.pending, kind)
		r.log.Info("pending dose request cancelled",
			zap.String("requestId", req.id.String()),
			zap.String("kind", string(kind)))
	}
}
