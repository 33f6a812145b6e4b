package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/actorcontext"
	auditdomain "github.com/opencasehq/casebill/internal/audit/domain"
	"github.com/opencasehq/casebill/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Service struct {
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node
}

type ServiceParam struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node
}

func NewService(p ServiceParam) auditdomain.Service {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("audit.service"),
		genID: p.GenID,
	}
}

// AuditLog writes one audit record. The actor is taken from the request
// context; absent an actor the entry is attributed to the system.
func (s *Service) AuditLog(ctx context.Context, orgID *snowflake.ID, action string, targetType string, targetID *string, metadata map[string]any) error {
	actorType, actorID := actorcontext.ActorFromContext(ctx)
	if actorType == "" {
		actorType = string(auditdomain.ActorTypeSystem)
	}
	var actorIDValue *string
	if actorID != "" {
		actorIDValue = &actorID
	}

	payload := datatypes.JSONMap{}
	for key, value := range logger.MaskJSON(metadata) {
		if key == "" {
			continue
		}
		payload[key] = value
	}

	entry := auditdomain.AuditLog{
		ID:         s.genID.Generate(),
		OrgID:      orgID,
		ActorType:  actorType,
		ActorID:    actorIDValue,
		Action:     action,
		TargetType: targetType,
		TargetID:   targetID,
		Metadata:   payload,
		CreatedAt:  time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		s.log.Warn("audit write failed",
			zap.String("action", action),
			zap.String("target_type", targetType),
			zap.Error(err),
		)
		return err
	}
	return nil
}
