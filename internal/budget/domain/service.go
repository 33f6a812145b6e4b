package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Ledger tracks authorized versus consumed hours and amount.
type Ledger interface {
	// CheckCap evaluates a proposed consumption delta against the case
	// budget and, when serviceInstanceID is non-zero, the per-service
	// budget as well. Both must pass. Absent configuration is unlimited.
	CheckCap(ctx context.Context, caseID, serviceInstanceID snowflake.ID, deltaHours float64, deltaAmountCents int64) (CapResult, error)

	// CheckCapTx is CheckCap running inside an existing transaction, for
	// callers that must pair the check with a state transition atomically.
	// It locks the case's budget rows first, so concurrent checks for the
	// same case serialize and cannot jointly exceed a hard cap.
	CheckCapTx(ctx context.Context, tx *gorm.DB, caseID, serviceInstanceID snowflake.ID, deltaHours float64, deltaAmountCents int64) (CapResult, error)

	// Forecast computes actual + pending consumption and the warning and
	// exceeded flags for the case-level budget.
	Forecast(ctx context.Context, caseID snowflake.ID) (ForecastResult, error)

	// UpsertConfig writes the case or per-service budget configuration.
	UpsertConfig(ctx context.Context, config BudgetConfig) (BudgetConfig, error)
}

// Service is the package alias for Ledger.
type Service = Ledger

var (
	ErrInvalidCase          = errors.New("invalid_case")
	ErrInvalidAuthorization = errors.New("invalid_authorization")
)
