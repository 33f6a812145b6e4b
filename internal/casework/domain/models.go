// Package domain contains the case work models the billing core evaluates:
// work items and the service instances they bill against.
package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// WorkItemKind identifies the origin of a unit of performed work.
type WorkItemKind string

const (
	WorkItemKindTask   WorkItemKind = "task"
	WorkItemKindEvent  WorkItemKind = "event"
	WorkItemKindUpdate WorkItemKind = "update"
)

// WorkItem is a completed unit of work owned by a case. Immutable once a
// billing item references it, except for completion flags.
type WorkItem struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	OrgID             snowflake.ID  `gorm:"not null;index" json:"org_id"`
	CaseID            snowflake.ID  `gorm:"not null;index" json:"case_id"`
	Kind              WorkItemKind  `gorm:"type:text;not null" json:"kind"`
	ServiceInstanceID *snowflake.ID `gorm:"index" json:"service_instance_id,omitempty"`

	// ActivityKind is set on update-origin items: the kind of the activity
	// the update annotates. Updates may only bill against events.
	ActivityKind *WorkItemKind `gorm:"type:text" json:"activity_kind,omitempty"`

	Narrative        *string    `gorm:"type:text" json:"narrative,omitempty"`
	RecordedQuantity *float64   `gorm:"" json:"recorded_quantity,omitempty"`
	CompletedAt      *time.Time `gorm:"" json:"completed_at,omitempty"`
	CreatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt        time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (WorkItem) TableName() string { return "work_items" }

// ServiceInstance is one instantiation of a catalog service on a case, the
// unit billing and budget consumption are tracked against.
type ServiceInstance struct {
	ID               snowflake.ID `gorm:"primaryKey" json:"id"`
	OrgID            snowflake.ID `gorm:"not null;index" json:"org_id"`
	CaseID           snowflake.ID `gorm:"not null;index" json:"case_id"`
	AccountID        snowflake.ID `gorm:"not null;index" json:"account_id"`
	CatalogServiceID snowflake.ID `gorm:"not null;index" json:"catalog_service_id"`

	// Billable overrides the catalog default when set.
	Billable *bool `gorm:"" json:"billable,omitempty"`

	ConsumedQuantity float64 `gorm:"not null;default:0" json:"consumed_quantity"`

	ScheduledStart *time.Time `gorm:"" json:"scheduled_start,omitempty"`
	ScheduledEnd   *time.Time `gorm:"" json:"scheduled_end,omitempty"`

	BilledAt *time.Time    `gorm:"" json:"billed_at,omitempty"`
	LockedAt *time.Time    `gorm:"" json:"locked_at,omitempty"`
	LockedBy *snowflake.ID `gorm:"column:locked_by_invoice_id" json:"locked_by_invoice_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
	UpdatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"-"`
}

// TableName sets the database table name.
func (ServiceInstance) TableName() string { return "service_instances" }

// EffectiveBillable resolves the instance override against the catalog default.
func (s ServiceInstance) EffectiveBillable(catalogDefault bool) bool {
	if s.Billable != nil {
		return *s.Billable
	}
	return catalogDefault
}

// Locked reports whether an invoice currently holds this instance.
func (s ServiceInstance) Locked() bool {
	return s.LockedAt != nil
}
