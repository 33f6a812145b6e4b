package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/actorcontext"
	auditdomain "github.com/opencasehq/casebill/internal/audit/domain"
	billingitemdomain "github.com/opencasehq/casebill/internal/billingitem/domain"
	budgetdomain "github.com/opencasehq/casebill/internal/budget/domain"
	eligibilitydomain "github.com/opencasehq/casebill/internal/eligibility/domain"
	"github.com/opencasehq/casebill/internal/events"
	"github.com/opencasehq/casebill/internal/pricing"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	ledger budgetdomain.Ledger
	audit  auditdomain.Service
	outbox *events.Outbox
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Ledger budgetdomain.Ledger
	Audit  auditdomain.Service `optional:"true"`
	Outbox *events.Outbox      `optional:"true"`
}

func NewService(p ServiceParam) billingitemdomain.Lifecycle {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("billingitem.lifecycle"),
		genID:  p.GenID,
		ledger: p.Ledger,
		audit:  p.Audit,
		outbox: p.Outbox,
	}
}

func (s *Service) Create(ctx context.Context, eligibility eligibilitydomain.Result) (billingitemdomain.BillingItem, error) {
	if eligibility.WorkItemID == 0 || eligibility.ServiceInstanceID == 0 || eligibility.CaseID == 0 {
		return billingitemdomain.BillingItem{}, billingitemdomain.ErrInvalidBillingItem
	}

	now := time.Now().UTC()
	_, actorID := actorcontext.ActorFromContext(ctx)
	var createdBy *string
	if actorID != "" {
		createdBy = &actorID
	}

	item := billingitemdomain.BillingItem{
		ID:                s.genID.Generate(),
		OrgID:             eligibility.OrgID,
		CaseID:            eligibility.CaseID,
		AccountID:         eligibility.AccountID,
		WorkItemID:        eligibility.WorkItemID,
		ServiceInstanceID: eligibility.ServiceInstanceID,
		CatalogServiceID:  eligibility.CatalogServiceID,
		PricingModel:      eligibility.PricingModel,
		Description:       formatDescription(eligibility),
		Quantity:          eligibility.Quantity,
		Hours:             eligibility.Hours,
		UnitRateCents:     eligibility.UnitRateCents,
		AmountCents:       eligibility.AmountCents,
		Status:            billingitemdomain.StatusPending,
		CreatedBy:         createdBy,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if item.PricingModel == pricing.ModelFlat {
			// Application-level re-check; the partial unique index on
			// billing_items is the authoritative guard underneath.
			var count int64
			if err := tx.WithContext(ctx).Raw(
				`SELECT COUNT(1)
				 FROM billing_items
				 WHERE service_instance_id = ? AND pricing_model = ? AND status <> 'rejected'`,
				item.ServiceInstanceID,
				pricing.ModelFlat,
			).Scan(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				return billingitemdomain.ErrAlreadyFlatBilled
			}
		}

		insert := tx.WithContext(ctx).Exec(
			`INSERT INTO billing_items (
				id, org_id, case_id, account_id, work_item_id, service_instance_id, catalog_service_id,
				pricing_model, description, quantity, hours, unit_rate_cents, amount_cents,
				status, created_by, created_at, updated_at
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING`,
			item.ID,
			item.OrgID,
			item.CaseID,
			item.AccountID,
			item.WorkItemID,
			item.ServiceInstanceID,
			item.CatalogServiceID,
			item.PricingModel,
			item.Description,
			item.Quantity,
			item.Hours,
			item.UnitRateCents,
			item.AmountCents,
			item.Status,
			item.CreatedBy,
			item.CreatedAt,
			item.UpdatedAt,
		)
		if insert.Error != nil {
			return insert.Error
		}
		if insert.RowsAffected == 0 {
			// A concurrent creation won the flat-fee uniqueness race.
			return billingitemdomain.ErrAlreadyFlatBilled
		}

		// Display/forecast accumulator, not budget consumption.
		if err := tx.WithContext(ctx).Exec(
			`UPDATE service_instances
			 SET consumed_quantity = consumed_quantity + ?, updated_at = ?
			 WHERE id = ?`,
			item.Quantity,
			now,
			item.ServiceInstanceID,
		).Error; err != nil {
			return err
		}

		return s.publishTx(ctx, tx, item, events.EventBillingItemCreated)
	})
	if err != nil {
		return billingitemdomain.BillingItem{}, err
	}

	s.writeAudit(ctx, item, auditdomain.ActionBillingItemCreated, nil)
	return item, nil
}

func (s *Service) Approve(ctx context.Context, id snowflake.ID) (billingitemdomain.BillingItem, error) {
	if id == 0 {
		return billingitemdomain.BillingItem{}, billingitemdomain.ErrInvalidBillingItem
	}

	var item billingitemdomain.BillingItem
	now := time.Now().UTC()
	_, actorID := actorcontext.ActorFromContext(ctx)

	// The cap re-check and the transition commit together. CheckCapTx
	// locks the case's budget rows, so two concurrent approvals of
	// different items cannot both read the pre-approval sum and jointly
	// exceed a hard cap.
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if loaded == nil {
			return billingitemdomain.ErrItemNotFound
		}
		item = *loaded
		if item.Resolved() {
			return billingitemdomain.ErrAlreadyResolved
		}

		capResult, err := s.ledger.CheckCapTx(ctx, tx, item.CaseID, item.ServiceInstanceID, item.Hours, item.AmountCents)
		if err != nil {
			return err
		}
		if !capResult.Allowed {
			return &billingitemdomain.BudgetBlockedError{Cap: capResult}
		}

		update := tx.WithContext(ctx).Exec(
			`UPDATE billing_items
			 SET status = 'approved', approved_by = ?, approved_at = ?, updated_at = ?
			 WHERE id = ? AND status = 'pending'`,
			nullableString(actorID),
			now,
			now,
			id,
		)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return billingitemdomain.ErrAlreadyResolved
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE service_instances
			 SET billed_at = ?, updated_at = ?
			 WHERE id = ? AND billed_at IS NULL`,
			now,
			now,
			item.ServiceInstanceID,
		).Error; err != nil {
			return err
		}

		item.Status = billingitemdomain.StatusApproved
		item.ApprovedAt = &now
		item.ApprovedBy = nullableString(actorID)
		return s.publishTx(ctx, tx, item, events.EventBillingItemApproved)
	})
	if err != nil {
		return billingitemdomain.BillingItem{}, err
	}

	s.writeAudit(ctx, item, auditdomain.ActionBillingItemApproved, nil)
	return item, nil
}

func (s *Service) Reject(ctx context.Context, id snowflake.ID, reason string) (billingitemdomain.BillingItem, error) {
	if id == 0 {
		return billingitemdomain.BillingItem{}, billingitemdomain.ErrInvalidBillingItem
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return billingitemdomain.BillingItem{}, billingitemdomain.ErrMissingReason
	}

	var item billingitemdomain.BillingItem
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadItem(ctx, tx, id)
		if err != nil {
			return err
		}
		if loaded == nil {
			return billingitemdomain.ErrItemNotFound
		}
		item = *loaded
		if item.Resolved() {
			return billingitemdomain.ErrAlreadyResolved
		}

		update := tx.WithContext(ctx).Exec(
			`UPDATE billing_items
			 SET status = 'rejected', rejected_at = ?, rejected_reason = ?, updated_at = ?
			 WHERE id = ? AND status = 'pending'`,
			now,
			reason,
			now,
			id,
		)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return billingitemdomain.ErrAlreadyResolved
		}

		item.Status = billingitemdomain.StatusRejected
		item.RejectedAt = &now
		item.RejectedReason = &reason
		return s.publishTx(ctx, tx, item, events.EventBillingItemRejected)
	})
	if err != nil {
		return billingitemdomain.BillingItem{}, err
	}

	s.writeAudit(ctx, item, auditdomain.ActionBillingItemRejected, map[string]any{"reason": reason})
	return item, nil
}

func (s *Service) Get(ctx context.Context, id snowflake.ID) (billingitemdomain.BillingItem, error) {
	if id == 0 {
		return billingitemdomain.BillingItem{}, billingitemdomain.ErrInvalidBillingItem
	}
	item, err := s.loadItem(ctx, s.db, id)
	if err != nil {
		return billingitemdomain.BillingItem{}, err
	}
	if item == nil {
		return billingitemdomain.BillingItem{}, billingitemdomain.ErrItemNotFound
	}
	return *item, nil
}

func (s *Service) loadItem(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*billingitemdomain.BillingItem, error) {
	var row billingitemdomain.BillingItem
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, case_id, account_id, work_item_id, service_instance_id, catalog_service_id,
		        pricing_model, description, quantity, hours, unit_rate_cents, amount_cents,
		        status, invoice_id, created_by, approved_by, approved_at, rejected_at, rejected_reason,
		        created_at, updated_at
		 FROM billing_items
		 WHERE id = ?`,
		id,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) publishTx(ctx context.Context, tx *gorm.DB, item billingitemdomain.BillingItem, eventType string) error {
	if s.outbox == nil {
		return nil
	}
	payload := events.BillingItemPayload{
		BillingItemID:     item.ID.String(),
		CaseID:            item.CaseID.String(),
		ServiceInstanceID: item.ServiceInstanceID.String(),
		Status:            string(item.Status),
		AmountCents:       item.AmountCents,
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		OrgID:     item.OrgID,
		Type:      eventType,
		Payload:   payload.ToMap(),
		DedupeKey: fmt.Sprintf("%s:%s", eventType, item.ID.String()),
	})
}

func (s *Service) writeAudit(ctx context.Context, item billingitemdomain.BillingItem, action string, extra map[string]any) {
	if s.audit == nil {
		return
	}
	metadata := map[string]any{
		"billing_item_id":     item.ID.String(),
		"case_id":             item.CaseID.String(),
		"service_instance_id": item.ServiceInstanceID.String(),
		"work_item_id":        item.WorkItemID.String(),
		"pricing_model":       string(item.PricingModel),
		"quantity":            item.Quantity,
		"amount_cents":        item.AmountCents,
		"status":              string(item.Status),
	}
	for key, value := range extra {
		metadata[key] = value
	}
	targetID := item.ID.String()
	orgID := item.OrgID
	// Fire and forget: an audit failure never aborts the transition.
	if err := s.audit.AuditLog(ctx, &orgID, action, "billing_item", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}

func formatDescription(eligibility eligibilitydomain.Result) string {
	name := eligibility.ServiceName
	switch eligibility.PricingModel {
	case pricing.ModelHourly:
		return fmt.Sprintf("%s: %.2f hours @ %s/hr", name, eligibility.Quantity, formatCents(eligibility.UnitRateCents))
	case pricing.ModelDaily:
		return fmt.Sprintf("%s: %.0f days @ %s/day", name, eligibility.Quantity, formatCents(eligibility.UnitRateCents))
	case pricing.ModelPerActivity:
		return fmt.Sprintf("%s: activity completed @ %s", name, formatCents(eligibility.UnitRateCents))
	case pricing.ModelFlat:
		return fmt.Sprintf("%s: flat fee %s", name, formatCents(eligibility.UnitRateCents))
	default:
		return fmt.Sprintf("%s: %.2f units @ %s/unit", name, eligibility.Quantity, formatCents(eligibility.UnitRateCents))
	}
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s$%d.%02d", sign, cents/100, cents%100)
}

func nullableString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
