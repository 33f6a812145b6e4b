// Package domain contains the invoice models and generation contract.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/pricing"
)

// Status is the invoice lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusFinalized Status = "finalized"
	StatusVoided    Status = "voided"
)

// Invoice aggregates line items snapshotted from approved billing items.
// Voiding releases every referenced billing item and service instance back
// to invoiceable state; the invoice record itself is retained.
type Invoice struct {
	ID    snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID snowflake.ID `gorm:"not null;index" json:"org_id"`
	// CaseID is taken from the first included billing item.
	CaseID snowflake.ID `gorm:"index" json:"case_id"`

	Status           Status `gorm:"type:text;not null;default:draft" json:"status"`
	TotalAmountCents int64  `gorm:"not null;default:0" json:"total_amount_cents"`
	LineCount        int    `gorm:"not null;default:0" json:"line_count"`

	VoidReason *string    `gorm:"type:text" json:"void_reason,omitempty"`
	VoidedAt   *time.Time `gorm:"" json:"voided_at,omitempty"`

	GeneratedAt *time.Time `gorm:"" json:"generated_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`

	Lines []InvoiceLineItem `gorm:"-" json:"lines,omitempty"`
}

// TableName sets the database table name.
func (Invoice) TableName() string { return "invoices" }

// InvoiceLineItem is a point-in-time snapshot of one approved billing item.
// The snapshot is copied, never recomputed, so a later rate or quantity
// change cannot alter an issued invoice.
type InvoiceLineItem struct {
	ID                snowflake.ID `gorm:"primaryKey" json:"id"`
	InvoiceID         snowflake.ID `gorm:"not null;index" json:"invoice_id"`
	BillingItemID     snowflake.ID `gorm:"not null;index" json:"billing_item_id"`
	ServiceInstanceID snowflake.ID `gorm:"not null" json:"service_instance_id"`

	Description   string        `gorm:"type:text;not null" json:"description"`
	PricingModel  pricing.Model `gorm:"type:text;not null" json:"pricing_model"`
	Quantity      float64       `gorm:"not null" json:"quantity"`
	UnitRateCents int64         `gorm:"not null" json:"unit_rate_cents"`
	AmountCents   int64         `gorm:"not null" json:"amount_cents"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName sets the database table name.
func (InvoiceLineItem) TableName() string { return "invoice_line_items" }

// GenerationResult reports a partial-success generation batch. The two skip
// lists are kept distinct so callers can tell a bad request apart from a
// double submission.
type GenerationResult struct {
	InvoiceID              snowflake.ID   `json:"invoice_id"`
	LineItemsCreated       int            `json:"line_items_created"`
	TotalAmountCents       int64          `json:"total_amount_cents"`
	SkippedNotApproved     []snowflake.ID `json:"skipped_not_approved"`
	SkippedAlreadyInvoiced []snowflake.ID `json:"skipped_already_invoiced"`
}
