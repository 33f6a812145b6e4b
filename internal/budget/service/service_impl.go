package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	budgetdomain "github.com/opencasehq/casebill/internal/budget/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
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

func NewService(p ServiceParam) budgetdomain.Ledger {
	return &Service{
		db:    p.DB,
		log:   p.Log.Named("budget.ledger"),
		genID: p.GenID,
	}
}

type consumptionRow struct {
	Hours       float64
	AmountCents int64
}

func (s *Service) CheckCap(ctx context.Context, caseID, serviceInstanceID snowflake.ID, deltaHours float64, deltaAmountCents int64) (budgetdomain.CapResult, error) {
	return s.checkCap(ctx, s.db, caseID, serviceInstanceID, deltaHours, deltaAmountCents, false)
}

func (s *Service) CheckCapTx(ctx context.Context, tx *gorm.DB, caseID, serviceInstanceID snowflake.ID, deltaHours float64, deltaAmountCents int64) (budgetdomain.CapResult, error) {
	if tx == nil {
		tx = s.db
	}
	return s.checkCap(ctx, tx, caseID, serviceInstanceID, deltaHours, deltaAmountCents, true)
}

func (s *Service) checkCap(ctx context.Context, tx *gorm.DB, caseID, serviceInstanceID snowflake.ID, deltaHours float64, deltaAmountCents int64, lock bool) (budgetdomain.CapResult, error) {
	if caseID == 0 {
		return budgetdomain.CapResult{}, budgetdomain.ErrInvalidCase
	}

	if lock {
		// Two transactions approving different items for the same case
		// must not both read the pre-approval sum and jointly exceed a
		// hard cap. The touch write takes row locks on the case's budget
		// rows, so the second transaction sums consumption only after the
		// first has committed.
		if err := s.lockBudgetRows(ctx, tx, caseID); err != nil {
			return budgetdomain.CapResult{}, err
		}
	}

	result := budgetdomain.CapResult{Allowed: true}

	caseConfig, err := s.loadConfig(ctx, tx, caseID, 0)
	if err != nil {
		return budgetdomain.CapResult{}, err
	}
	if caseConfig != nil {
		actual, err := s.actualConsumption(ctx, tx, caseID, 0)
		if err != nil {
			return budgetdomain.CapResult{}, err
		}
		applyCapScope(&result, "case", *caseConfig, actual, deltaHours, deltaAmountCents)
	}

	if serviceInstanceID != 0 {
		// A per-service limit is checked in addition to the case limit.
		serviceConfig, err := s.loadConfig(ctx, tx, caseID, serviceInstanceID)
		if err != nil {
			return budgetdomain.CapResult{}, err
		}
		if serviceConfig != nil {
			actual, err := s.actualConsumption(ctx, tx, caseID, serviceInstanceID)
			if err != nil {
				return budgetdomain.CapResult{}, err
			}
			applyCapScope(&result, "service_instance", *serviceConfig, actual, deltaHours, deltaAmountCents)
		}
	}

	return result, nil
}

func (s *Service) lockBudgetRows(ctx context.Context, tx *gorm.DB, caseID snowflake.ID) error {
	return tx.WithContext(ctx).Exec(
		`UPDATE budget_configs SET updated_at = updated_at WHERE case_id = ?`,
		caseID,
	).Error
}

func applyCapScope(result *budgetdomain.CapResult, scope string, config budgetdomain.BudgetConfig, actual consumptionRow, deltaHours float64, deltaAmountCents int64) {
	exceedHours := false
	if config.AuthorizedHours != nil && *config.AuthorizedHours > 0 {
		remaining := *config.AuthorizedHours - actual.Hours
		if result.RemainingHours == nil || remaining < *result.RemainingHours {
			result.RemainingHours = &remaining
		}
		exceedHours = actual.Hours+deltaHours > *config.AuthorizedHours
	}

	exceedAmount := false
	if config.AuthorizedAmountCents != nil && *config.AuthorizedAmountCents > 0 {
		remaining := *config.AuthorizedAmountCents - actual.AmountCents
		if result.RemainingAmountCents == nil || remaining < *result.RemainingAmountCents {
			result.RemainingAmountCents = &remaining
		}
		exceedAmount = actual.AmountCents+deltaAmountCents > *config.AuthorizedAmountCents
	}

	result.WouldExceedHours = result.WouldExceedHours || exceedHours
	result.WouldExceedAmount = result.WouldExceedAmount || exceedAmount
	result.HardCap = result.HardCap || config.HardCap

	if config.HardCap && (exceedHours || exceedAmount) {
		result.Allowed = false
		if result.BlockedScope == "" {
			result.BlockedScope = scope
		}
	}
}

func (s *Service) Forecast(ctx context.Context, caseID snowflake.ID) (budgetdomain.ForecastResult, error) {
	if caseID == 0 {
		return budgetdomain.ForecastResult{}, budgetdomain.ErrInvalidCase
	}

	result := budgetdomain.ForecastResult{
		CaseID:              caseID,
		WarningThresholdPct: budgetdomain.DefaultWarningThresholdPct,
	}

	actual, err := s.actualConsumption(ctx, s.db, caseID, 0)
	if err != nil {
		return budgetdomain.ForecastResult{}, err
	}
	pending, err := s.pendingConsumption(ctx, s.db, caseID)
	if err != nil {
		return budgetdomain.ForecastResult{}, err
	}

	result.HoursConsumed = actual.Hours
	result.AmountConsumedCents = actual.AmountCents
	result.PendingHours = pending.Hours
	result.PendingAmountCents = pending.AmountCents
	result.HoursForecast = actual.Hours + pending.Hours
	result.AmountForecastCents = actual.AmountCents + pending.AmountCents

	config, err := s.loadConfig(ctx, s.db, caseID, 0)
	if err != nil {
		return budgetdomain.ForecastResult{}, err
	}
	if config == nil {
		// No budget means unlimited: utilization stays at zero.
		return result, nil
	}

	result.HasBudget = true
	result.HardCap = config.HardCap
	result.WarningThresholdPct = config.WarningThreshold()
	result.AuthorizedHours = config.AuthorizedHours
	result.AuthorizedAmountCents = config.AuthorizedAmountCents

	result.HoursUtilizationPct = utilization(actual.Hours, config.AuthorizedHours)
	result.HoursForecastUtilizationPct = utilization(result.HoursForecast, config.AuthorizedHours)
	result.AmountUtilizationPct = utilizationCents(actual.AmountCents, config.AuthorizedAmountCents)
	result.AmountForecastUtilizationPct = utilizationCents(result.AmountForecastCents, config.AuthorizedAmountCents)

	threshold := result.WarningThresholdPct
	result.IsWarning = result.HoursUtilizationPct >= threshold || result.AmountUtilizationPct >= threshold
	result.IsExceeded = result.HoursUtilizationPct >= 100 || result.AmountUtilizationPct >= 100
	result.IsForecastWarning = result.HoursForecastUtilizationPct >= threshold || result.AmountForecastUtilizationPct >= threshold
	result.IsForecastExceeded = result.HoursForecastUtilizationPct >= 100 || result.AmountForecastUtilizationPct >= 100

	return result, nil
}

func (s *Service) UpsertConfig(ctx context.Context, config budgetdomain.BudgetConfig) (budgetdomain.BudgetConfig, error) {
	if config.CaseID == 0 {
		return budgetdomain.BudgetConfig{}, budgetdomain.ErrInvalidCase
	}
	if config.AuthorizedHours != nil && *config.AuthorizedHours < 0 {
		return budgetdomain.BudgetConfig{}, budgetdomain.ErrInvalidAuthorization
	}
	if config.AuthorizedAmountCents != nil && *config.AuthorizedAmountCents < 0 {
		return budgetdomain.BudgetConfig{}, budgetdomain.ErrInvalidAuthorization
	}

	existing, err := s.loadConfig(ctx, s.db, config.CaseID, derefID(config.ServiceInstanceID))
	if err != nil {
		return budgetdomain.BudgetConfig{}, err
	}

	now := time.Now().UTC()
	if existing != nil {
		config.ID = existing.ID
		config.CreatedAt = existing.CreatedAt
		config.UpdatedAt = now
		err = s.db.WithContext(ctx).Exec(
			`UPDATE budget_configs
			 SET authorized_hours = ?, authorized_amount_cents = ?, hard_cap = ?, warning_threshold_pct = ?, updated_at = ?
			 WHERE id = ?`,
			config.AuthorizedHours,
			config.AuthorizedAmountCents,
			config.HardCap,
			config.WarningThresholdPct,
			now,
			existing.ID,
		).Error
		return config, err
	}

	config.ID = s.genID.Generate()
	config.CreatedAt = now
	config.UpdatedAt = now
	err = s.db.WithContext(ctx).Exec(
		`INSERT INTO budget_configs (id, org_id, case_id, service_instance_id, authorized_hours, authorized_amount_cents, hard_cap, warning_threshold_pct, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		config.ID,
		config.OrgID,
		config.CaseID,
		config.ServiceInstanceID,
		config.AuthorizedHours,
		config.AuthorizedAmountCents,
		config.HardCap,
		config.WarningThresholdPct,
		now,
		now,
	).Error
	return config, err
}

func (s *Service) loadConfig(ctx context.Context, tx *gorm.DB, caseID, serviceInstanceID snowflake.ID) (*budgetdomain.BudgetConfig, error) {
	query := `SELECT id, org_id, case_id, service_instance_id, authorized_hours, authorized_amount_cents, hard_cap, warning_threshold_pct, created_at, updated_at
		 FROM budget_configs
		 WHERE case_id = ? AND service_instance_id IS NULL`
	args := []any{caseID}
	if serviceInstanceID != 0 {
		query = `SELECT id, org_id, case_id, service_instance_id, authorized_hours, authorized_amount_cents, hard_cap, warning_threshold_pct, created_at, updated_at
		 FROM budget_configs
		 WHERE case_id = ? AND service_instance_id = ?`
		args = append(args, serviceInstanceID)
	}

	var row budgetdomain.BudgetConfig
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}
	return &row, nil
}

func (s *Service) actualConsumption(ctx context.Context, tx *gorm.DB, caseID, serviceInstanceID snowflake.ID) (consumptionRow, error) {
	query := `SELECT COALESCE(SUM(hours), 0) AS hours, COALESCE(SUM(amount_cents), 0) AS amount_cents
		 FROM billing_items
		 WHERE case_id = ? AND status IN ('approved', 'invoiced')`
	args := []any{caseID}
	if serviceInstanceID != 0 {
		query += ` AND service_instance_id = ?`
		args = append(args, serviceInstanceID)
	}

	var row consumptionRow
	if err := tx.WithContext(ctx).Raw(query, args...).Scan(&row).Error; err != nil {
		return consumptionRow{}, err
	}
	return row, nil
}

func (s *Service) pendingConsumption(ctx context.Context, tx *gorm.DB, caseID snowflake.ID) (consumptionRow, error) {
	var row consumptionRow
	err := tx.WithContext(ctx).Raw(
		`SELECT COALESCE(SUM(hours), 0) AS hours, COALESCE(SUM(amount_cents), 0) AS amount_cents
		 FROM billing_items
		 WHERE case_id = ? AND status = 'pending'`,
		caseID,
	).Scan(&row).Error
	if err != nil {
		return consumptionRow{}, err
	}
	return row, nil
}

func utilization(consumed float64, authorized *float64) float64 {
	if authorized == nil || *authorized <= 0 {
		return 0
	}
	return consumed / *authorized * 100
}

func utilizationCents(consumed int64, authorized *int64) float64 {
	if authorized == nil || *authorized <= 0 {
		return 0
	}
	return float64(consumed) / float64(*authorized) * 100
}

func derefID(id *snowflake.ID) snowflake.ID {
	if id == nil {
		return 0
	}
	return *id
}
