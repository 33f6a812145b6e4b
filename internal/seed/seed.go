// Package seed bootstraps the default organization and service catalog on
// first startup.
package seed

import (
	"context"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	catalogdomain "github.com/opencasehq/casebill/internal/catalog/domain"
	"github.com/opencasehq/casebill/internal/pricing"
	"gorm.io/gorm"
)

const (
	defaultOrgName = "Main"
	defaultOrgSlug = "main"
)

type catalogSeed struct {
	name             string
	pricingModel     pricing.Model
	defaultRateCents int64
	billable         bool
}

var defaultCatalog = []catalogSeed{
	{name: "Case Management", pricingModel: pricing.ModelHourly, defaultRateCents: 12500, billable: true},
	{name: "Residential Monitoring", pricingModel: pricing.ModelDaily, defaultRateCents: 45000, billable: true},
	{name: "Court Appearance", pricingModel: pricing.ModelPerActivity, defaultRateCents: 25000, billable: true},
	{name: "Intake Assessment", pricingModel: pricing.ModelFlat, defaultRateCents: 50000, billable: true},
	{name: "Internal Review", pricingModel: pricing.ModelHourly, defaultRateCents: 0, billable: false},
}

// EnsureMainOrg seeds the default organization for startup bootstrap.
func EnsureMainOrg(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := ensureMainOrgTx(ctx, tx, node)
		return err
	})
}

// EnsureDefaultCatalog seeds the default org and its billable service
// catalog. Existing services are left untouched so operator edits survive
// restarts.
func EnsureDefaultCatalog(db *gorm.DB) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orgID, err := ensureMainOrgTx(ctx, tx, node)
		if err != nil {
			return err
		}

		for _, entry := range defaultCatalog {
			var count int64
			if err := tx.WithContext(ctx).Raw(
				`SELECT COUNT(1) FROM catalog_services WHERE org_id = ? AND name = ?`,
				orgID,
				entry.name,
			).Scan(&count).Error; err != nil {
				return err
			}
			if count > 0 {
				continue
			}

			var rate *int64
			if entry.defaultRateCents > 0 {
				value := entry.defaultRateCents
				rate = &value
			}
			now := time.Now().UTC()
			service := catalogdomain.CatalogService{
				ID:               node.Generate(),
				OrgID:            orgID,
				Name:             entry.name,
				PricingModel:     entry.pricingModel,
				DefaultRateCents: rate,
				Billable:         entry.billable,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			if err := tx.WithContext(ctx).Create(&service).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func ensureMainOrgTx(ctx context.Context, tx *gorm.DB, node *snowflake.Node) (snowflake.ID, error) {
	var existing struct{ ID snowflake.ID }
	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM organizations WHERE slug = ?`,
		defaultOrgSlug,
	).Scan(&existing).Error; err != nil {
		return 0, err
	}
	if existing.ID != 0 {
		return existing.ID, nil
	}

	id := node.Generate()
	now := time.Now().UTC()
	if err := tx.WithContext(ctx).Exec(
		`INSERT INTO organizations (id, name, slug, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (slug) DO NOTHING`,
		id,
		defaultOrgName,
		defaultOrgSlug,
		now,
		now,
	).Error; err != nil {
		return 0, err
	}

	if err := tx.WithContext(ctx).Raw(
		`SELECT id FROM organizations WHERE slug = ?`,
		defaultOrgSlug,
	).Scan(&existing).Error; err != nil {
		return 0, err
	}
	return existing.ID, nil
}
