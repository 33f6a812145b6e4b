// Package domain defines the billing eligibility contract: the gate sequence
// deciding whether a completed work item may become a billing item.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/pricing"
	ratedomain "github.com/opencasehq/casebill/internal/rate/domain"
)

// Result is a fully populated eligibility outcome. Evaluation is read-only
// and idempotent; turning a Result into a billing item is a separate step.
type Result struct {
	WorkItemID        snowflake.ID `json:"work_item_id"`
	OrgID             snowflake.ID `json:"org_id"`
	CaseID            snowflake.ID `json:"case_id"`
	AccountID         snowflake.ID `json:"account_id"`
	ServiceInstanceID snowflake.ID `json:"service_instance_id"`
	CatalogServiceID  snowflake.ID `json:"catalog_service_id"`

	ServiceName  string                `json:"service_name"`
	PricingModel pricing.Model         `json:"pricing_model"`
	RateSource   ratedomain.RateSource `json:"rate_source"`

	Quantity      float64 `json:"quantity"`
	Hours         float64 `json:"hours"`
	UnitRateCents int64   `json:"unit_rate_cents"`
	AmountCents   int64   `json:"amount_cents"`

	EvaluatedAt time.Time `json:"evaluated_at"`
}
