package service

import (
	"context"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	caseworkdomain "github.com/opencasehq/casebill/internal/casework/domain"
	"github.com/opencasehq/casebill/internal/clock"
	eligibilitydomain "github.com/opencasehq/casebill/internal/eligibility/domain"
	"github.com/opencasehq/casebill/internal/pricing"
	ratedomain "github.com/opencasehq/casebill/internal/rate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Service struct {
	db       *gorm.DB
	log      *zap.Logger
	resolver ratedomain.Resolver
	clock    clock.Clock
}

type ServiceParam struct {
	fx.In

	DB       *gorm.DB
	Log      *zap.Logger
	Resolver ratedomain.Resolver
	Clock    clock.Clock `optional:"true"`
}

func NewService(p ServiceParam) eligibilitydomain.Evaluator {
	return &Service{
		db:       p.DB,
		log:      p.Log.Named("eligibility.evaluator"),
		resolver: p.Resolver,
		clock:    p.Clock,
	}
}

func (s *Service) now() time.Time {
	if s.clock == nil {
		return clock.SystemClock{}.Now()
	}
	return s.clock.Now()
}

// Evaluate runs the gate sequence in a fixed order. Each gate is a hard stop
// with its own sentinel; on success the result carries everything needed to
// create a billing item, but nothing is written.
func (s *Service) Evaluate(ctx context.Context, workItemID snowflake.ID) (eligibilitydomain.Result, error) {
	if workItemID == 0 {
		return eligibilitydomain.Result{}, eligibilitydomain.ErrInvalidWorkItem
	}

	item, err := s.loadWorkItem(ctx, workItemID)
	if err != nil {
		return eligibilitydomain.Result{}, err
	}
	if item == nil {
		return eligibilitydomain.Result{}, eligibilitydomain.ErrWorkItemNotFound
	}

	// Gate 1: the work item must reference a service instance.
	if item.ServiceInstanceID == nil || *item.ServiceInstanceID == 0 {
		return eligibilitydomain.Result{}, eligibilitydomain.ErrNotLinked
	}

	// Gate 2: update-origin items need a narrative and must annotate an
	// event, not a task.
	if item.Kind == caseworkdomain.WorkItemKindUpdate {
		if item.Narrative == nil || strings.TrimSpace(*item.Narrative) == "" {
			return eligibilitydomain.Result{}, eligibilitydomain.ErrNarrativeRequired
		}
		if item.ActivityKind == nil || *item.ActivityKind != caseworkdomain.WorkItemKindEvent {
			return eligibilitydomain.Result{}, eligibilitydomain.ErrWrongActivityKind
		}
	}

	instance, catalog, err := s.loadInstanceWithCatalog(ctx, *item.ServiceInstanceID)
	if err != nil {
		return eligibilitydomain.Result{}, err
	}
	if instance == nil {
		return eligibilitydomain.Result{}, eligibilitydomain.ErrNotLinked
	}

	// Gate 3: the instance (or its catalog service) must be billable.
	if !instance.EffectiveBillable(catalog.Billable) {
		return eligibilitydomain.Result{}, eligibilitydomain.ErrNotBillable
	}

	// Gate 4: the instance must not already be billed or invoice-locked.
	if instance.BilledAt != nil {
		return eligibilitydomain.Result{}, eligibilitydomain.ErrAlreadyBilled
	}
	if instance.Locked() {
		return eligibilitydomain.Result{}, eligibilitydomain.ErrLocked
	}

	// Gate 5: rate resolution must succeed; a silent zero would under-bill.
	asOf := item.CreatedAt
	if item.CompletedAt != nil {
		asOf = *item.CompletedAt
	}
	rate, err := s.resolver.Resolve(ctx, instance.CatalogServiceID, instance.AccountID, asOf)
	if err != nil {
		return eligibilitydomain.Result{}, err
	}

	model, err := pricing.ParseModel(string(catalog.PricingModel))
	if err != nil {
		// Legacy rows with an unrecognized model still need a recorded
		// quantity; Quantity enforces that below.
		model = catalog.PricingModel
	}

	// Gate 6: flat services bill once per instance, ever. Checked before
	// quantity computation to short-circuit cheaply.
	if model == pricing.ModelFlat {
		exists, err := s.flatItemExists(ctx, instance.ID)
		if err != nil {
			return eligibilitydomain.Result{}, err
		}
		if exists {
			return eligibilitydomain.Result{}, eligibilitydomain.ErrAlreadyFlatBilled
		}
	}

	// Gate 7: a billable quantity must be derivable.
	quantity, err := pricing.Quantity(model, item.RecordedQuantity, instance.ScheduledStart, instance.ScheduledEnd)
	if err != nil {
		return eligibilitydomain.Result{}, err
	}

	return eligibilitydomain.Result{
		WorkItemID:        item.ID,
		OrgID:             item.OrgID,
		CaseID:            item.CaseID,
		AccountID:         instance.AccountID,
		ServiceInstanceID: instance.ID,
		CatalogServiceID:  instance.CatalogServiceID,
		ServiceName:       rate.ServiceName,
		PricingModel:      model,
		RateSource:        rate.Source,
		Quantity:          quantity,
		Hours:             pricing.Hours(model, quantity),
		UnitRateCents:     rate.RateCents,
		AmountCents:       pricing.Amount(quantity, rate.RateCents),
		EvaluatedAt:       s.now(),
	}, nil
}

func (s *Service) loadWorkItem(ctx context.Context, id snowflake.ID) (*caseworkdomain.WorkItem, error) {
	var row caseworkdomain.WorkItem
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id, case_id, kind, service_instance_id, activity_kind, narrative, recorded_quantity, completed_at, created_at, updated_at
		 FROM work_items
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

func (s *Service) loadInstanceWithCatalog(ctx context.Context, id snowflake.ID) (*caseworkdomain.ServiceInstance, *catalogRow, error) {
	var instance caseworkdomain.ServiceInstance
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id, case_id, account_id, catalog_service_id, billable, consumed_quantity,
		        scheduled_start, scheduled_end, billed_at, locked_at, locked_by_invoice_id, created_at, updated_at
		 FROM service_instances
		 WHERE id = ?`,
		id,
	).Scan(&instance).Error
	if err != nil {
		return nil, nil, err
	}
	if instance.ID == 0 {
		return nil, nil, nil
	}

	var catalog catalogRow
	err = s.db.WithContext(ctx).Raw(
		`SELECT id, name, pricing_model, billable
		 FROM catalog_services
		 WHERE id = ?`,
		instance.CatalogServiceID,
	).Scan(&catalog).Error
	if err != nil {
		return nil, nil, err
	}
	if catalog.ID == 0 {
		return nil, nil, eligibilitydomain.ErrNotLinked
	}
	return &instance, &catalog, nil
}

type catalogRow struct {
	ID           snowflake.ID
	Name         string
	PricingModel pricing.Model
	Billable     bool
}

func (s *Service) flatItemExists(ctx context.Context, serviceInstanceID snowflake.ID) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM billing_items
		 WHERE service_instance_id = ? AND pricing_model = ? AND status <> 'rejected'`,
		serviceInstanceID,
		pricing.ModelFlat,
	).Scan(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
