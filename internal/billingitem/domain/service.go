package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	budgetdomain "github.com/opencasehq/casebill/internal/budget/domain"
	eligibilitydomain "github.com/opencasehq/casebill/internal/eligibility/domain"
)

// Lifecycle governs a billing item from creation through approval or
// rejection. Invoicing transitions belong to the invoice generator.
type Lifecycle interface {
	// Create persists a pending billing item from an eligibility result.
	// The flat-fee uniqueness guard is re-validated at creation time and
	// backed by a storage constraint.
	Create(ctx context.Context, eligibility eligibilitydomain.Result) (BillingItem, error)

	// Approve re-checks the budget cap with the item's consumption as the
	// delta and transitions pending -> approved atomically. A hard-capped
	// exceed fails with a BudgetBlockedError.
	Approve(ctx context.Context, id snowflake.ID) (BillingItem, error)

	// Reject transitions pending -> rejected, recording the reason. The
	// item is retained for audit and stops counting toward forecast.
	Reject(ctx context.Context, id snowflake.ID, reason string) (BillingItem, error)

	// Get loads one billing item.
	Get(ctx context.Context, id snowflake.ID) (BillingItem, error)
}

// Service is the package alias for Lifecycle.
type Service = Lifecycle

var (
	ErrInvalidBillingItem = errors.New("invalid_billing_item")
	ErrItemNotFound       = errors.New("billing_item_not_found")
	ErrAlreadyResolved    = errors.New("already_resolved")
	ErrAlreadyFlatBilled  = errors.New("already_flat_billed")
	ErrMissingReason      = errors.New("missing_reason")
	ErrBudgetBlocked      = errors.New("budget_blocked")
)

// BudgetBlockedError carries the cap details alongside the budget_blocked
// sentinel so callers can render a distinct affordance.
type BudgetBlockedError struct {
	Cap budgetdomain.CapResult
}

func (e *BudgetBlockedError) Error() string { return ErrBudgetBlocked.Error() }

// Is makes errors.Is(err, ErrBudgetBlocked) hold for wrapped cap failures.
func (e *BudgetBlockedError) Is(target error) bool { return target == ErrBudgetBlocked }
