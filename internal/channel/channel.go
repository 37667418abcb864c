// Package channel defines the dose delivery channels. A channel carries a
// dose request to whatever confirms it (the user, an automation endpoint,
// an SMS gateway) and reports exactly one outcome back.
package channel

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mrcode/mealdose/internal/models"
)

// OutcomeKind is the terminal result of a dose request.
type OutcomeKind string

// Outcome kinds. Every channel collapses its transport-specific results
// onto these three.
const (
	OutcomeConfirmed OutcomeKind = "confirmed"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeCancelled OutcomeKind = "cancelled"
)

// Outcome is the channel's verdict on a request. Reason carries the
// transport detail for failed and cancelled outcomes.
type Outcome struct {
	Kind   OutcomeKind `json:"kind"`
	Reason string      `json:"reason,omitempty"`
}

// Request is the dose payload handed to a delivery channel.
type Request struct {
	ID          uuid.UUID          `json:"id"`
	Kind        models.DoseKind    `json:"kind"`
	Amounts     models.DoseAmounts `json:"amounts"`
	RequestedAt time.Time          `json:"requestedAt"`
}

// DeliveryChannel sends a dose request and blocks until its outcome is
// known or the context is cancelled. A transport error (as opposed to a
// delivered-but-rejected outcome) is returned as err.
type DeliveryChannel interface {
	Name() string
	Send(ctx context.Context, req Request) (Outcome, error)
}
