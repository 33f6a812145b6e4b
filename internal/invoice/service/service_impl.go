package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/opencasehq/casebill/internal/audit/domain"
	billingitemdomain "github.com/opencasehq/casebill/internal/billingitem/domain"
	"github.com/opencasehq/casebill/internal/events"
	invoicedomain "github.com/opencasehq/casebill/internal/invoice/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db     *gorm.DB
	log    *zap.Logger
	genID  *snowflake.Node
	audit  auditdomain.Service
	outbox *events.Outbox
}

type ServiceParam struct {
	fx.In

	DB     *gorm.DB
	Log    *zap.Logger
	GenID  *snowflake.Node
	Audit  auditdomain.Service `optional:"true"`
	Outbox *events.Outbox      `optional:"true"`
}

func NewService(p ServiceParam) invoicedomain.Generator {
	return &Service{
		db:     p.DB,
		log:    p.Log.Named("invoice.generator"),
		genID:  p.GenID,
		audit:  p.Audit,
		outbox: p.Outbox,
	}
}

func (s *Service) Generate(ctx context.Context, invoiceID snowflake.ID, billingItemIDs []snowflake.ID) (invoicedomain.GenerationResult, error) {
	if len(billingItemIDs) == 0 {
		return invoicedomain.GenerationResult{}, invoicedomain.ErrNoLineItems
	}
	if invoiceID == 0 {
		invoiceID = s.genID.Generate()
	}

	now := time.Now().UTC()
	result := invoicedomain.GenerationResult{
		InvoiceID:              invoiceID,
		SkippedNotApproved:     []snowflake.ID{},
		SkippedAlreadyInvoiced: []snowflake.ID{},
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if existing != nil {
			if existing.Status == invoicedomain.StatusVoided {
				return invoicedomain.ErrInvoiceVoided
			}
			return invoicedomain.ErrInvalidInvoice
		}

		var (
			orgID  snowflake.ID
			caseID snowflake.ID
		)
		for _, itemID := range billingItemIDs {
			item, err := s.loadBillingItem(ctx, tx, itemID)
			if err != nil {
				return err
			}
			if item == nil {
				result.SkippedNotApproved = append(result.SkippedNotApproved, itemID)
				continue
			}
			if item.Status == billingitemdomain.StatusInvoiced {
				result.SkippedAlreadyInvoiced = append(result.SkippedAlreadyInvoiced, itemID)
				continue
			}
			if item.Status != billingitemdomain.StatusApproved {
				result.SkippedNotApproved = append(result.SkippedNotApproved, itemID)
				continue
			}

			claim := tx.WithContext(ctx).Exec(
				`UPDATE billing_items
				 SET status = 'invoiced', invoice_id = ?, updated_at = ?
				 WHERE id = ? AND status = 'approved'`,
				invoiceID,
				now,
				itemID,
			)
			if claim.Error != nil {
				return claim.Error
			}
			if claim.RowsAffected == 0 {
				// A concurrent generation claimed the item first.
				result.SkippedAlreadyInvoiced = append(result.SkippedAlreadyInvoiced, itemID)
				continue
			}

			line := invoicedomain.InvoiceLineItem{
				ID:                s.genID.Generate(),
				InvoiceID:         invoiceID,
				BillingItemID:     item.ID,
				ServiceInstanceID: item.ServiceInstanceID,
				Description:       item.Description,
				PricingModel:      item.PricingModel,
				Quantity:          item.Quantity,
				UnitRateCents:     item.UnitRateCents,
				AmountCents:       item.AmountCents,
				CreatedAt:         now,
			}
			if err := tx.WithContext(ctx).Exec(
				`INSERT INTO invoice_line_items (
					id, invoice_id, billing_item_id, service_instance_id,
					description, pricing_model, quantity, unit_rate_cents, amount_cents, created_at
				) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				line.ID,
				line.InvoiceID,
				line.BillingItemID,
				line.ServiceInstanceID,
				line.Description,
				line.PricingModel,
				line.Quantity,
				line.UnitRateCents,
				line.AmountCents,
				line.CreatedAt,
			).Error; err != nil {
				return err
			}

			if err := tx.WithContext(ctx).Exec(
				`UPDATE service_instances
				 SET locked_at = ?, locked_by_invoice_id = ?, updated_at = ?
				 WHERE id = ?`,
				now,
				invoiceID,
				now,
				item.ServiceInstanceID,
			).Error; err != nil {
				return err
			}

			result.LineItemsCreated++
			result.TotalAmountCents += line.AmountCents
			if orgID == 0 {
				orgID = item.OrgID
				caseID = item.CaseID
			}
		}

		if result.LineItemsCreated == 0 {
			return invoicedomain.ErrNoLineItems
		}

		if err := tx.WithContext(ctx).Exec(
			`INSERT INTO invoices (id, org_id, case_id, status, total_amount_cents, line_count, generated_at, created_at, updated_at)
			 VALUES (?, ?, ?, 'finalized', ?, ?, ?, ?, ?)`,
			invoiceID,
			orgID,
			caseID,
			result.TotalAmountCents,
			result.LineItemsCreated,
			now,
			now,
			now,
		).Error; err != nil {
			return err
		}

		return s.publishTx(ctx, tx, orgID, invoiceID, caseID, result.LineItemsCreated, events.EventInvoiceGenerated)
	})
	if err != nil {
		// Skip lists stay populated so the caller can see why nothing
		// made it onto the invoice.
		return result, err
	}

	s.writeAudit(ctx, invoiceID, auditdomain.ActionInvoiceGenerated, map[string]any{
		"line_items_created":       result.LineItemsCreated,
		"total_amount_cents":       result.TotalAmountCents,
		"skipped_not_approved":     len(result.SkippedNotApproved),
		"skipped_already_invoiced": len(result.SkippedAlreadyInvoiced),
	})
	return result, nil
}

func (s *Service) Void(ctx context.Context, invoiceID snowflake.ID, reason string) (invoicedomain.Invoice, error) {
	if invoiceID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoice
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return invoicedomain.Invoice{}, invoicedomain.ErrMissingReason
	}

	var invoice invoicedomain.Invoice
	now := time.Now().UTC()

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		loaded, err := s.loadInvoice(ctx, tx, invoiceID)
		if err != nil {
			return err
		}
		if loaded == nil {
			return invoicedomain.ErrInvoiceNotFound
		}
		invoice = *loaded
		if invoice.Status == invoicedomain.StatusVoided {
			return invoicedomain.ErrAlreadyVoided
		}

		update := tx.WithContext(ctx).Exec(
			`UPDATE invoices
			 SET status = 'voided', void_reason = ?, voided_at = ?, updated_at = ?
			 WHERE id = ? AND status <> 'voided'`,
			reason,
			now,
			now,
			invoiceID,
		)
		if update.Error != nil {
			return update.Error
		}
		if update.RowsAffected == 0 {
			return invoicedomain.ErrAlreadyVoided
		}

		// Items go back to approved and stay billable for a future
		// invoice; their rejected/approved history is untouched.
		if err := tx.WithContext(ctx).Exec(
			`UPDATE billing_items
			 SET status = 'approved', invoice_id = NULL, updated_at = ?
			 WHERE invoice_id = ? AND status = 'invoiced'`,
			now,
			invoiceID,
		).Error; err != nil {
			return err
		}

		if err := tx.WithContext(ctx).Exec(
			`UPDATE service_instances
			 SET locked_at = NULL, locked_by_invoice_id = NULL, updated_at = ?
			 WHERE locked_by_invoice_id = ?`,
			now,
			invoiceID,
		).Error; err != nil {
			return err
		}

		invoice.Status = invoicedomain.StatusVoided
		invoice.VoidReason = &reason
		invoice.VoidedAt = &now
		return s.publishTx(ctx, tx, invoice.OrgID, invoiceID, invoice.CaseID, 0, events.EventInvoiceVoided)
	})
	if err != nil {
		return invoicedomain.Invoice{}, err
	}

	s.writeAudit(ctx, invoiceID, auditdomain.ActionInvoiceVoided, map[string]any{"reason": reason})
	return invoice, nil
}

func (s *Service) Get(ctx context.Context, invoiceID snowflake.ID) (invoicedomain.Invoice, error) {
	if invoiceID == 0 {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvalidInvoice
	}
	invoice, err := s.loadInvoice(ctx, s.db, invoiceID)
	if err != nil {
		return invoicedomain.Invoice{}, err
	}
	if invoice == nil {
		return invoicedomain.Invoice{}, invoicedomain.ErrInvoiceNotFound
	}

	var lines []invoicedomain.InvoiceLineItem
	if err := s.db.WithContext(ctx).Raw(
		`SELECT id, invoice_id, billing_item_id, service_instance_id,
		        description, pricing_model, quantity, unit_rate_cents, amount_cents, created_at
		 FROM invoice_line_items
		 WHERE invoice_id = ?
		 ORDER BY id ASC`,
		invoiceID,
	).Scan(&lines).Error; err != nil {
		return invoicedomain.Invoice{}, err
	}
	invoice.Lines = lines
	return *invoice, nil
}

func (s *Service) loadInvoice(ctx context.Context, tx *gorm.DB, invoiceID snowflake.ID) (*invoicedomain.Invoice, error) {
	var row invoicedomain.Invoice
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, case_id, status, total_amount_cents, line_count,
		        void_reason, voided_at, generated_at, created_at, updated_at
		 FROM invoices
		 WHERE id = ?`,
		invoiceID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) loadBillingItem(ctx context.Context, tx *gorm.DB, id snowflake.ID) (*billingitemdomain.BillingItem, error) {
	var row billingitemdomain.BillingItem
	err := tx.WithContext(ctx).Raw(
		`SELECT id, org_id, case_id, service_instance_id, pricing_model, description,
		        quantity, unit_rate_cents, amount_cents, status, invoice_id
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

func (s *Service) publishTx(ctx context.Context, tx *gorm.DB, orgID, invoiceID, caseID snowflake.ID, lineCount int, eventType string) error {
	if s.outbox == nil {
		return nil
	}
	payload := events.InvoicePayload{
		InvoiceID: invoiceID.String(),
		CaseID:    caseID.String(),
		LineCount: lineCount,
	}
	return s.outbox.PublishTx(ctx, tx, events.Event{
		OrgID:     orgID,
		Type:      eventType,
		Payload:   payload.ToMap(),
		DedupeKey: fmt.Sprintf("%s:%s", eventType, invoiceID.String()),
	})
}

func (s *Service) writeAudit(ctx context.Context, invoiceID snowflake.ID, action string, metadata map[string]any) {
	if s.audit == nil {
		return
	}
	targetID := invoiceID.String()
	if err := s.audit.AuditLog(ctx, nil, action, "invoice", &targetID, metadata); err != nil {
		s.log.Warn("audit log failed", zap.String("action", action), zap.Error(err))
	}
}
