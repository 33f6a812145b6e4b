// Package domain contains the service catalog models.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/pricing"
)

// CatalogService is a billable service definition shared across cases.
type CatalogService struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID  `gorm:"not null;index" json:"org_id"`
	Name             string        `gorm:"type:text;not null" json:"name"`
	PricingModel     pricing.Model `gorm:"type:text;not null" json:"pricing_model"`
	DefaultRateCents *int64        `gorm:"" json:"default_rate_cents,omitempty"`
	Billable         bool          `gorm:"not null;default:true" json:"billable"`
	CreatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt        time.Time     `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (CatalogService) TableName() string { return "catalog_services" }
