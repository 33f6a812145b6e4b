// Package domain contains budget configuration models and the consumption
// accounting contracts.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// DefaultWarningThresholdPct is applied when a budget does not set its own.
const DefaultWarningThresholdPct = 80.0

// BudgetConfig authorizes consumption for a case, optionally narrowed to a
// single service instance. A hard cap blocks approval once forecast
// consumption would exceed authorized; a soft cap only warns.
type BudgetConfig struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID  `gorm:"not null;index" json:"org_id"`
	CaseID            snowflake.ID  `gorm:"not null;index" json:"case_id"`
	ServiceInstanceID *snowflake.ID `gorm:"index" json:"service_instance_id,omitempty"`

	AuthorizedHours       *float64 `gorm:"" json:"authorized_hours,omitempty"`
	AuthorizedAmountCents *int64   `gorm:"" json:"authorized_amount_cents,omitempty"`
	HardCap               bool     `gorm:"not null;default:false" json:"hard_cap"`
	WarningThresholdPct   *float64 `gorm:"" json:"warning_threshold_pct,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (BudgetConfig) TableName() string { return "budget_configs" }

// WarningThreshold resolves the configured threshold or the default.
func (b BudgetConfig) WarningThreshold() float64 {
	if b.WarningThresholdPct != nil && *b.WarningThresholdPct > 0 {
		return *b.WarningThresholdPct
	}
	return DefaultWarningThresholdPct
}

// CapResult is the outcome of checking a proposed consumption delta against
// the configured budgets.
type CapResult struct {
	Allowed bool `json:"allowed"`
	HardCap bool `json:"hard_cap"`

	WouldExceedHours  bool `json:"would_exceed_hours"`
	WouldExceedAmount bool `json:"would_exceed_amount"`

	// Remaining capacity before the delta; nil means unlimited.
	RemainingHours       *float64 `json:"remaining_hours,omitempty"`
	RemainingAmountCents *int64   `json:"remaining_amount_cents,omitempty"`

	// BlockedScope names the budget that refused the delta: "case" or
	// "service_instance". Empty when allowed.
	BlockedScope string `json:"blocked_scope,omitempty"`
}

// ForecastResult reports actual plus pending consumption against the
// case-level budget. Forecast flags are informational only; they never block
// creation of a pending item.
type ForecastResult struct {
	CaseID snowflake.ID `json:"case_id"`

	HoursConsumed       float64 `json:"hours_consumed"`
	AmountConsumedCents int64   `json:"amount_consumed_cents"`
	PendingHours        float64 `json:"pending_hours"`
	PendingAmountCents  int64   `json:"pending_amount_cents"`
	HoursForecast       float64 `json:"hours_forecast"`
	AmountForecastCents int64   `json:"amount_forecast_cents"`

	AuthorizedHours       *float64 `json:"authorized_hours,omitempty"`
	AuthorizedAmountCents *int64   `json:"authorized_amount_cents,omitempty"`

	HoursUtilizationPct          float64 `json:"hours_utilization_pct"`
	AmountUtilizationPct         float64 `json:"amount_utilization_pct"`
	HoursForecastUtilizationPct  float64 `json:"hours_forecast_utilization_pct"`
	AmountForecastUtilizationPct float64 `json:"amount_forecast_utilization_pct"`

	IsWarning          bool `json:"is_warning"`
	IsExceeded         bool `json:"is_exceeded"`
	IsForecastWarning  bool `json:"is_forecast_warning"`
	IsForecastExceeded bool `json:"is_forecast_exceeded"`

	HardCap             bool    `json:"hard_cap"`
	WarningThresholdPct float64 `json:"warning_threshold_pct"`
	HasBudget           bool    `json:"has_budget"`
}
