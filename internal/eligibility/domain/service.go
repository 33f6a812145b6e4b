package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/pricing"
	ratedomain "github.com/opencasehq/casebill/internal/rate/domain"
)

// Evaluator runs the eligibility gate sequence for a work item. Every gate
// failure is a distinct sentinel error, never a bare boolean.
type Evaluator interface {
	Evaluate(ctx context.Context, workItemID snowflake.ID) (Result, error)
}

// Service is the package alias for Evaluator.
type Service = Evaluator

var (
	ErrInvalidWorkItem   = errors.New("invalid_work_item")
	ErrWorkItemNotFound  = errors.New("work_item_not_found")
	ErrNotLinked         = errors.New("not_linked")
	ErrNarrativeRequired = errors.New("narrative_required")
	ErrWrongActivityKind = errors.New("wrong_activity_kind")
	ErrNotBillable       = errors.New("not_billable")
	ErrAlreadyBilled     = errors.New("already_billed")
	ErrLocked            = errors.New("locked")
	ErrAlreadyFlatBilled = errors.New("already_flat_billed")

	// Rate and quantity gates surface the producing package's sentinels.
	ErrNoRateConfigured     = ratedomain.ErrNoRateConfigured
	ErrInsufficientQuantity = pricing.ErrInsufficientQuantity
)

// Reason maps a gate failure onto the stable reason string shown to callers.
// Unknown errors yield an empty reason.
func Reason(err error) string {
	for _, gate := range []error{
		ErrNotLinked,
		ErrNarrativeRequired,
		ErrWrongActivityKind,
		ErrNotBillable,
		ErrAlreadyBilled,
		ErrLocked,
		ErrNoRateConfigured,
		ErrAlreadyFlatBilled,
		ErrInsufficientQuantity,
	} {
		if errors.Is(err, gate) {
			return gate.Error()
		}
	}
	return ""
}
