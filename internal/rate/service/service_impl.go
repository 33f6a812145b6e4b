package service

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/cache"
	catalogdomain "github.com/opencasehq/casebill/internal/catalog/domain"
	ratedomain "github.com/opencasehq/casebill/internal/rate/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const catalogCacheTTL = 30 * time.Second

type Service struct {
	db  *gorm.DB
	log *zap.Logger

	catalogCache cache.Cache[snowflake.ID, catalogdomain.CatalogService]
}

type ServiceParam struct {
	fx.In

	DB  *gorm.DB
	Log *zap.Logger
}

func NewService(p ServiceParam) ratedomain.Resolver {
	return &Service{
		db:  p.DB,
		log: p.Log.Named("rate.resolver"),

		catalogCache: cache.NewTTLCache[snowflake.ID, catalogdomain.CatalogService](),
	}
}

func (s *Service) Resolve(ctx context.Context, serviceID, accountID snowflake.ID, asOf time.Time) (ratedomain.ResolvedRate, error) {
	if serviceID == 0 {
		return ratedomain.ResolvedRate{}, ratedomain.ErrInvalidService
	}
	if accountID == 0 {
		return ratedomain.ResolvedRate{}, ratedomain.ErrInvalidAccount
	}
	if asOf.IsZero() {
		asOf = time.Now().UTC()
	}

	catalog, err := s.loadCatalogService(ctx, serviceID)
	if err != nil {
		return ratedomain.ResolvedRate{}, err
	}
	if catalog == nil {
		return ratedomain.ResolvedRate{}, ratedomain.ErrServiceNotFound
	}

	override, matches, err := s.activeAccountOverride(ctx, serviceID, accountID, asOf)
	if err != nil {
		return ratedomain.ResolvedRate{}, err
	}
	if matches > 1 {
		// Overlapping windows are a configuration error; the latest
		// effective_date wins deterministically.
		s.log.Warn("overlapping rate overrides",
			zap.String("service_id", serviceID.String()),
			zap.String("account_id", accountID.String()),
			zap.Time("as_of", asOf),
			zap.Int64("matches", matches),
		)
	}
	if override != nil {
		overrideID := override.ID
		return ratedomain.ResolvedRate{
			RateCents:    override.RateCents,
			Source:       ratedomain.RateSourceAccountOverride,
			OverrideID:   &overrideID,
			ServiceName:  catalog.Name,
			PricingModel: string(catalog.PricingModel),
		}, nil
	}

	if catalog.DefaultRateCents == nil {
		return ratedomain.ResolvedRate{}, ratedomain.ErrNoRateConfigured
	}
	return ratedomain.ResolvedRate{
		RateCents:    *catalog.DefaultRateCents,
		Source:       ratedomain.RateSourceCatalogDefault,
		ServiceName:  catalog.Name,
		PricingModel: string(catalog.PricingModel),
	}, nil
}

func (s *Service) loadCatalogService(ctx context.Context, serviceID snowflake.ID) (*catalogdomain.CatalogService, error) {
	if cached, ok := s.catalogCache.Get(serviceID); ok {
		return &cached, nil
	}

	var row catalogdomain.CatalogService
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id, name, pricing_model, default_rate_cents, billable, created_at, updated_at
		 FROM catalog_services
		 WHERE id = ?`,
		serviceID,
	).Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.ID == 0 {
		return nil, nil
	}

	s.catalogCache.Set(serviceID, row, catalogCacheTTL)
	return &row, nil
}

func (s *Service) activeAccountOverride(ctx context.Context, serviceID, accountID snowflake.ID, asOf time.Time) (*ratedomain.RateOverride, int64, error) {
	var matches int64
	if err := s.db.WithContext(ctx).Raw(
		`SELECT COUNT(1)
		 FROM rate_overrides
		 WHERE catalog_service_id = ? AND scope = ? AND account_id = ?
		   AND (effective_date IS NULL OR effective_date <= ?)
		   AND (end_date IS NULL OR end_date >= ?)`,
		serviceID,
		ratedomain.OverrideScopeAccount,
		accountID,
		asOf,
		asOf,
	).Scan(&matches).Error; err != nil {
		return nil, 0, err
	}
	if matches == 0 {
		return nil, 0, nil
	}

	var row ratedomain.RateOverride
	err := s.db.WithContext(ctx).Raw(
		`SELECT id, org_id, catalog_service_id, scope, account_id, rate_cents, effective_date, end_date, created_at, updated_at
		 FROM rate_overrides
		 WHERE catalog_service_id = ? AND scope = ? AND account_id = ?
		   AND (effective_date IS NULL OR effective_date <= ?)
		   AND (end_date IS NULL OR end_date >= ?)
		 ORDER BY (effective_date IS NULL) ASC, effective_date DESC, id DESC
		 LIMIT 1`,
		serviceID,
		ratedomain.OverrideScopeAccount,
		accountID,
		asOf,
		asOf,
	).Scan(&row).Error
	if err != nil {
		return nil, 0, err
	}
	if row.ID == 0 {
		return nil, 0, nil
	}
	return &row, matches, nil
}
