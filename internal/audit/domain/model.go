package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/datatypes"
)

// ActorType represents who triggered an action.
type ActorType string

const (
	ActorTypeUser   ActorType = "user"
	ActorTypeSystem ActorType = "system"
)

// Billing actions recorded for compliance review.
const (
	ActionBillingItemCreated  = "billing_item.created"
	ActionBillingItemApproved = "billing_item.approved"
	ActionBillingItemRejected = "billing_item.rejected"
	ActionInvoiceGenerated    = "invoice.generated"
	ActionInvoiceVoided       = "invoice.voided"
	ActionBudgetConfigured    = "budget.configured"
	ActionRateOverrideCreated = "rate_override.created"
)

// AuditLog captures an immutable record of a billing action.
type AuditLog struct {
	ID         snowflake.ID      `gorm:"primaryKey"`
	OrgID      *snowflake.ID     `gorm:"index"`
	ActorType  string            `gorm:"type:text;not null"`
	ActorID    *string           `gorm:"type:text"`
	Action     string            `gorm:"type:text;not null;index"`
	TargetType string            `gorm:"type:text;not null"`
	TargetID   *string           `gorm:"type:text"`
	Metadata   datatypes.JSONMap `gorm:"type:jsonb;not null;default:'{}'"`
	CreatedAt  time.Time         `gorm:"not null;default:CURRENT_TIMESTAMP"`
}

// TableName sets the database table name.
func (AuditLog) TableName() string { return "audit_logs" }
