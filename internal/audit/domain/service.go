package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
)

// Service records billing actions. The sink is fire-and-forget: recording
// failures are logged by the implementation and never abort the business
// transaction that triggered them.
type Service interface {
	AuditLog(ctx context.Context, orgID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error
}
