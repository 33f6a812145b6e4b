// Package domain contains the billing item model and its lifecycle contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/pricing"
)

// Status is the billing item lifecycle state.
//
// pending -> approved -> invoiced, and pending -> rejected (terminal).
// No transition skips a state; invoiced is reached only through invoice
// generation, never directly.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusInvoiced Status = "invoiced"
)

// BillingItem is a candidate charge derived from a work item. Rejected items
// are retained for audit, never deleted.
type BillingItem struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID `gorm:"not null;index" json:"org_id"`
	CaseID            snowflake.ID `gorm:"not null;index" json:"case_id"`
	AccountID         snowflake.ID `gorm:"not null;index" json:"account_id"`
	WorkItemID        snowflake.ID `gorm:"not null;index" json:"work_item_id"`
	ServiceInstanceID snowflake.ID `gorm:"not null;index" json:"service_instance_id"`
	CatalogServiceID  snowflake.ID `gorm:"not null" json:"catalog_service_id"`

	PricingModel  pricing.Model `gorm:"type:text;not null" json:"pricing_model"`
	Description   string        `gorm:"type:text;not null" json:"description"`
	Quantity      float64       `gorm:"not null" json:"quantity"`
	Hours         float64       `gorm:"not null;default:0" json:"hours"`
	UnitRateCents int64         `gorm:"not null" json:"unit_rate_cents"`
	AmountCents   int64         `gorm:"not null" json:"amount_cents"`

	Status    Status        `gorm:"type:text;not null;default:pending" json:"status"`
	InvoiceID *snowflake.ID `gorm:"index" json:"invoice_id,omitempty"`

	CreatedBy      *string    `gorm:"type:text" json:"created_by,omitempty"`
	ApprovedBy     *string    `gorm:"type:text" json:"approved_by,omitempty"`
	ApprovedAt     *time.Time `gorm:"" json:"approved_at,omitempty"`
	RejectedAt     *time.Time `gorm:"" json:"rejected_at,omitempty"`
	RejectedReason *string    `gorm:"type:text" json:"rejected_reason,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (BillingItem) TableName() string { return "billing_items" }

// Resolved reports whether the item has left the pending state.
func (b BillingItem) Resolved() bool {
	return b.Status != StatusPending
}
