// Package domain contains rate override models and the resolver contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// OverrideScope identifies who a rate override applies to.
type OverrideScope string

const (
	OverrideScopeAccount  OverrideScope = "account"
	OverrideScopeEmployee OverrideScope = "employee"
)

// RateOverride is a scoped rate record for a catalog service. Multiple
// overrides may exist per service; at most one should be active for a given
// date per scope. Written by pricing administration, read-only to the core.
type RateOverride struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID  `gorm:"not null;index" json:"org_id"`
	CatalogServiceID snowflake.ID  `gorm:"not null;index" json:"catalog_service_id"`
	Scope            OverrideScope `gorm:"type:text;not null" json:"scope"`
	AccountID        *snowflake.ID `gorm:"index" json:"account_id,omitempty"`
	RateCents        int64         `gorm:"not null" json:"rate_cents"`
	EffectiveDate    *time.Time    `gorm:"" json:"effective_date,omitempty"`
	EndDate          *time.Time    `gorm:"" json:"end_date,omitempty"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (RateOverride) TableName() string { return "rate_overrides" }

// RateSource records where a resolved rate came from.
type RateSource string

const (
	RateSourceAccountOverride RateSource = "account_override"
	RateSourceCatalogDefault  RateSource = "catalog_default"
)

// ResolvedRate is the outcome of rate resolution for a
// (service, account, date) tuple.
type ResolvedRate struct {
	RateCents    int64         `json:"rate_cents"`
	Source       RateSource    `json:"source"`
	OverrideID   *snowflake.ID `json:"override_id,omitempty"`
	ServiceName  string        `json:"service_name"`
	PricingModel string        `json:"pricing_model"`
}
