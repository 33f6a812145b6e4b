package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/clock"
	eligibilitydomain "github.com/opencasehq/casebill/internal/eligibility/domain"
	ratedomain "github.com/opencasehq/casebill/internal/rate/domain"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func TestEvaluateHourlySuccess(t *testing.T) {
	db := setupEligibilityTestDB(t)
	resolver := &stubResolver{rate: hourlyRate()}
	svc := &Service{db: db, log: zap.NewNop(), resolver: resolver}

	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300})
	insertWorkItem(t, db, workItemRow{id: 1, kind: "task", serviceInstanceID: 10, recordedQuantity: ptrFloat(1.5)})

	result, err := svc.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if result.Quantity != 1.5 || result.Hours != 1.5 {
		t.Fatalf("expected 1.5 quantity and hours, got %v / %v", result.Quantity, result.Hours)
	}
	if result.AmountCents != 18750 {
		t.Fatalf("expected amount 18750, got %d", result.AmountCents)
	}
	if result.RateSource != ratedomain.RateSourceCatalogDefault {
		t.Fatalf("unexpected rate source %s", result.RateSource)
	}
	if result.ServiceInstanceID != 10 || result.CatalogServiceID != 300 {
		t.Fatalf("unexpected refs: %+v", result)
	}
	if resolver.calls != 1 {
		t.Fatalf("expected one rate lookup, got %d", resolver.calls)
	}
}

func TestEvaluateStampsClockTime(t *testing.T) {
	db := setupEligibilityTestDB(t)
	at := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	svc := &Service{
		db:       db,
		log:      zap.NewNop(),
		resolver: &stubResolver{rate: hourlyRate()},
		clock:    clock.FixedClock{At: at},
	}

	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300})
	insertWorkItem(t, db, workItemRow{id: 1, kind: "task", serviceInstanceID: 10, recordedQuantity: ptrFloat(1.5)})

	result, err := svc.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !result.EvaluatedAt.Equal(at) {
		t.Fatalf("expected evaluated_at %v, got %v", at, result.EvaluatedAt)
	}
}

func TestEvaluateIsSideEffectFree(t *testing.T) {
	db := setupEligibilityTestDB(t)
	svc := &Service{db: db, log: zap.NewNop(), resolver: &stubResolver{rate: hourlyRate()}}

	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300})
	insertWorkItem(t, db, workItemRow{id: 1, kind: "task", serviceInstanceID: 10, recordedQuantity: ptrFloat(2)})

	first, err := svc.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("first evaluate: %v", err)
	}
	second, err := svc.Evaluate(context.Background(), 1)
	if err != nil {
		t.Fatalf("second evaluate: %v", err)
	}
	if first.AmountCents != second.AmountCents || first.Quantity != second.Quantity {
		t.Fatalf("evaluation not idempotent: %+v vs %+v", first, second)
	}

	var itemCount int64
	if err := db.Raw(`SELECT COUNT(1) FROM billing_items`).Scan(&itemCount).Error; err != nil {
		t.Fatalf("count billing items: %v", err)
	}
	if itemCount != 0 {
		t.Fatal("evaluation must not create billing items")
	}
}

func TestGateNotLinkedStopsBeforeRateLookup(t *testing.T) {
	db := setupEligibilityTestDB(t)
	resolver := &stubResolver{rate: hourlyRate()}
	svc := &Service{db: db, log: zap.NewNop(), resolver: resolver}

	insertWorkItem(t, db, workItemRow{id: 2, kind: "task"})

	_, err := svc.Evaluate(context.Background(), 2)
	if !errors.Is(err, eligibilitydomain.ErrNotLinked) {
		t.Fatalf("expected not_linked, got %v", err)
	}
	if resolver.calls != 0 {
		t.Fatalf("rate resolver must not run for unlinked items, got %d calls", resolver.calls)
	}
}

func TestUpdateOriginGates(t *testing.T) {
	db := setupEligibilityTestDB(t)
	svc := &Service{db: db, log: zap.NewNop(), resolver: &stubResolver{rate: hourlyRate()}}

	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300})

	// No narrative.
	insertWorkItem(t, db, workItemRow{id: 3, kind: "update", serviceInstanceID: 10, activityKind: ptrString("event")})
	if _, err := svc.Evaluate(context.Background(), 3); !errors.Is(err, eligibilitydomain.ErrNarrativeRequired) {
		t.Fatalf("expected narrative_required, got %v", err)
	}

	// Narrative present but the update annotates a task.
	insertWorkItem(t, db, workItemRow{id: 4, kind: "update", serviceInstanceID: 10, narrative: ptrString("2h on-site"), activityKind: ptrString("task")})
	if _, err := svc.Evaluate(context.Background(), 4); !errors.Is(err, eligibilitydomain.ErrWrongActivityKind) {
		t.Fatalf("expected wrong_activity_kind, got %v", err)
	}

	// Narrative + event-kind activity passes through.
	insertWorkItem(t, db, workItemRow{id: 5, kind: "update", serviceInstanceID: 10, narrative: ptrString("2h on-site"), activityKind: ptrString("event"), recordedQuantity: ptrFloat(2)})
	if _, err := svc.Evaluate(context.Background(), 5); err != nil {
		t.Fatalf("expected update eligibility, got %v", err)
	}
}

func TestGateNotBillable(t *testing.T) {
	db := setupEligibilityTestDB(t)
	svc := &Service{db: db, log: zap.NewNop(), resolver: &stubResolver{rate: hourlyRate()}}

	// Catalog default billable, instance override false.
	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300, billable: ptrBool(false)})
	insertWorkItem(t, db, workItemRow{id: 6, kind: "task", serviceInstanceID: 10, recordedQuantity: ptrFloat(1)})
	if _, err := svc.Evaluate(context.Background(), 6); !errors.Is(err, eligibilitydomain.ErrNotBillable) {
		t.Fatalf("expected not_billable from override, got %v", err)
	}

	// Non-billable catalog default, no override.
	insertCatalog(t, db, 301, "Internal Review", "hourly", false)
	insertInstance(t, db, instanceRow{id: 11, catalogServiceID: 301})
	insertWorkItem(t, db, workItemRow{id: 7, kind: "task", serviceInstanceID: 11, recordedQuantity: ptrFloat(1)})
	if _, err := svc.Evaluate(context.Background(), 7); !errors.Is(err, eligibilitydomain.ErrNotBillable) {
		t.Fatalf("expected not_billable from catalog default, got %v", err)
	}

	// Instance override true beats a non-billable default.
	insertInstance(t, db, instanceRow{id: 12, catalogServiceID: 301, billable: ptrBool(true)})
	insertWorkItem(t, db, workItemRow{id: 8, kind: "task", serviceInstanceID: 12, recordedQuantity: ptrFloat(1)})
	if _, err := svc.Evaluate(context.Background(), 8); err != nil {
		t.Fatalf("expected billable via override, got %v", err)
	}
}

func TestGateAlreadyBilledAndLocked(t *testing.T) {
	db := setupEligibilityTestDB(t)
	resolver := &stubResolver{rate: hourlyRate()}
	svc := &Service{db: db, log: zap.NewNop(), resolver: resolver}

	insertCatalog(t, db, 300, "Surveillance", "hourly", true)

	billed := time.Now().UTC()
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300, billedAt: &billed})
	insertWorkItem(t, db, workItemRow{id: 9, kind: "task", serviceInstanceID: 10, recordedQuantity: ptrFloat(1)})
	if _, err := svc.Evaluate(context.Background(), 9); !errors.Is(err, eligibilitydomain.ErrAlreadyBilled) {
		t.Fatalf("expected already_billed, got %v", err)
	}

	locked := time.Now().UTC()
	insertInstance(t, db, instanceRow{id: 11, catalogServiceID: 300, lockedAt: &locked})
	insertWorkItem(t, db, workItemRow{id: 10, kind: "task", serviceInstanceID: 11, recordedQuantity: ptrFloat(1)})
	if _, err := svc.Evaluate(context.Background(), 10); !errors.Is(err, eligibilitydomain.ErrLocked) {
		t.Fatalf("expected locked, got %v", err)
	}

	// Both gates precede rate resolution.
	if resolver.calls != 0 {
		t.Fatalf("rate resolver must not run for billed or locked instances, got %d calls", resolver.calls)
	}
}

func TestGateNoRateConfigured(t *testing.T) {
	db := setupEligibilityTestDB(t)
	svc := &Service{db: db, log: zap.NewNop(), resolver: &stubResolver{err: ratedomain.ErrNoRateConfigured}}

	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300})
	insertWorkItem(t, db, workItemRow{id: 11, kind: "task", serviceInstanceID: 10, recordedQuantity: ptrFloat(1)})

	if _, err := svc.Evaluate(context.Background(), 11); !errors.Is(err, eligibilitydomain.ErrNoRateConfigured) {
		t.Fatalf("expected no_rate_configured, got %v", err)
	}
}

func TestGateFlatAlreadyBilled(t *testing.T) {
	db := setupEligibilityTestDB(t)
	svc := &Service{db: db, log: zap.NewNop(), resolver: &stubResolver{rate: flatRate()}}

	insertCatalog(t, db, 302, "Background Check", "flat", true)
	insertInstance(t, db, instanceRow{id: 20, catalogServiceID: 302})
	insertWorkItem(t, db, workItemRow{id: 12, kind: "task", serviceInstanceID: 20})

	if err := db.Exec(
		`INSERT INTO billing_items (id, service_instance_id, pricing_model, status) VALUES (1, 20, 'flat', 'pending')`,
	).Error; err != nil {
		t.Fatalf("insert existing flat item: %v", err)
	}
	if _, err := svc.Evaluate(context.Background(), 12); !errors.Is(err, eligibilitydomain.ErrAlreadyFlatBilled) {
		t.Fatalf("expected already_flat_billed, got %v", err)
	}

	// A rejected flat item does not block.
	if err := db.Exec(`UPDATE billing_items SET status = 'rejected' WHERE id = 1`).Error; err != nil {
		t.Fatalf("reject existing item: %v", err)
	}
	if _, err := svc.Evaluate(context.Background(), 12); err != nil {
		t.Fatalf("expected eligibility after rejection, got %v", err)
	}
}

func TestGateInsufficientQuantity(t *testing.T) {
	db := setupEligibilityTestDB(t)
	svc := &Service{db: db, log: zap.NewNop(), resolver: &stubResolver{rate: hourlyRate()}}

	// No recorded quantity and no schedule window.
	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300})
	insertWorkItem(t, db, workItemRow{id: 13, kind: "task", serviceInstanceID: 10})

	if _, err := svc.Evaluate(context.Background(), 13); !errors.Is(err, eligibilitydomain.ErrInsufficientQuantity) {
		t.Fatalf("expected insufficient_quantity, got %v", err)
	}
}

func TestGateOrderBillableBeforeBilled(t *testing.T) {
	db := setupEligibilityTestDB(t)
	svc := &Service{db: db, log: zap.NewNop(), resolver: &stubResolver{rate: hourlyRate()}}

	// Both gates would fail; the billable gate runs first.
	billed := time.Now().UTC()
	insertCatalog(t, db, 300, "Surveillance", "hourly", true)
	insertInstance(t, db, instanceRow{id: 10, catalogServiceID: 300, billable: ptrBool(false), billedAt: &billed})
	insertWorkItem(t, db, workItemRow{id: 14, kind: "task", serviceInstanceID: 10, recordedQuantity: ptrFloat(1)})

	if _, err := svc.Evaluate(context.Background(), 14); !errors.Is(err, eligibilitydomain.ErrNotBillable) {
		t.Fatalf("expected not_billable to win, got %v", err)
	}
}

func TestReasonMapping(t *testing.T) {
	if got := eligibilitydomain.Reason(eligibilitydomain.ErrNotLinked); got != "not_linked" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := eligibilitydomain.Reason(eligibilitydomain.ErrInsufficientQuantity); got != "insufficient_quantity" {
		t.Fatalf("unexpected reason %q", got)
	}
	if got := eligibilitydomain.Reason(errors.New("boom")); got != "" {
		t.Fatalf("expected empty reason for unknown error, got %q", got)
	}
}

type stubResolver struct {
	rate  ratedomain.ResolvedRate
	err   error
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, serviceID, accountID snowflake.ID, asOf time.Time) (ratedomain.ResolvedRate, error) {
	s.calls++
	if s.err != nil {
		return ratedomain.ResolvedRate{}, s.err
	}
	return s.rate, nil
}

func hourlyRate() ratedomain.ResolvedRate {
	return ratedomain.ResolvedRate{
		RateCents:    12500,
		Source:       ratedomain.RateSourceCatalogDefault,
		ServiceName:  "Surveillance",
		PricingModel: "hourly",
	}
}

func flatRate() ratedomain.ResolvedRate {
	return ratedomain.ResolvedRate{
		RateCents:    50000,
		Source:       ratedomain.RateSourceCatalogDefault,
		ServiceName:  "Background Check",
		PricingModel: "flat",
	}
}

func setupEligibilityTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	statements := []string{
		`CREATE TABLE IF NOT EXISTS work_items (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL DEFAULT 1,
			case_id BIGINT NOT NULL DEFAULT 7001,
			kind TEXT NOT NULL,
			service_instance_id BIGINT,
			activity_kind TEXT,
			narrative TEXT,
			recorded_quantity REAL,
			completed_at TIMESTAMP,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS service_instances (
			id BIGINT PRIMARY KEY,
			org_id BIGINT NOT NULL DEFAULT 1,
			case_id BIGINT NOT NULL DEFAULT 7001,
			account_id BIGINT NOT NULL DEFAULT 2001,
			catalog_service_id BIGINT NOT NULL,
			billable BOOLEAN,
			consumed_quantity REAL NOT NULL DEFAULT 0,
			scheduled_start TIMESTAMP,
			scheduled_end TIMESTAMP,
			billed_at TIMESTAMP,
			locked_at TIMESTAMP,
			locked_by_invoice_id BIGINT,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS catalog_services (
			id BIGINT PRIMARY KEY,
			name TEXT NOT NULL,
			pricing_model TEXT NOT NULL,
			billable BOOLEAN NOT NULL DEFAULT TRUE
		)`,
		`CREATE TABLE IF NOT EXISTS billing_items (
			id BIGINT PRIMARY KEY,
			service_instance_id BIGINT NOT NULL,
			pricing_model TEXT NOT NULL,
			status TEXT NOT NULL
		)`,
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("schema: %v", err)
		}
	}
	return db
}

type workItemRow struct {
	id                int64
	kind              string
	serviceInstanceID int64
	activityKind      *string
	narrative         *string
	recordedQuantity  *float64
}

func insertWorkItem(t *testing.T, db *gorm.DB, row workItemRow) {
	t.Helper()
	var instanceID *int64
	if row.serviceInstanceID != 0 {
		instanceID = &row.serviceInstanceID
	}
	if err := db.Exec(
		`INSERT INTO work_items (id, kind, service_instance_id, activity_kind, narrative, recorded_quantity)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		row.id,
		row.kind,
		instanceID,
		row.activityKind,
		row.narrative,
		row.recordedQuantity,
	).Error; err != nil {
		t.Fatalf("insert work item: %v", err)
	}
}

type instanceRow struct {
	id               int64
	catalogServiceID int64
	billable         *bool
	billedAt         *time.Time
	lockedAt         *time.Time
}

func insertInstance(t *testing.T, db *gorm.DB, row instanceRow) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO service_instances (id, catalog_service_id, billable, billed_at, locked_at)
		 VALUES (?, ?, ?, ?, ?)`,
		row.id,
		row.catalogServiceID,
		row.billable,
		row.billedAt,
		row.lockedAt,
	).Error; err != nil {
		t.Fatalf("insert service instance: %v", err)
	}
}

func insertCatalog(t *testing.T, db *gorm.DB, id int64, name, pricingModel string, billable bool) {
	t.Helper()
	if err := db.Exec(
		`INSERT INTO catalog_services (id, name, pricing_model, billable) VALUES (?, ?, ?, ?)`,
		id,
		name,
		pricingModel,
		billable,
	).Error; err != nil {
		t.Fatalf("insert catalog service: %v", err)
	}
}

func ptrFloat(value float64) *float64 { return &value }

func ptrBool(value bool) *bool { return &value }

func ptrString(value string) *string { return &value }
