package main

import (
	"fmt"
	"os"

	"github.com/bwmarrin/snowflake"
	"github.com/opencasehq/casebill/internal/audit"
	"github.com/opencasehq/casebill/internal/billingitem"
	"github.com/opencasehq/casebill/internal/budget"
	"github.com/opencasehq/casebill/internal/clock"
	"github.com/opencasehq/casebill/internal/config"
	"github.com/opencasehq/casebill/internal/eligibility"
	"github.com/opencasehq/casebill/internal/events"
	"github.com/opencasehq/casebill/internal/invoice"
	"github.com/opencasehq/casebill/internal/migration"
	"github.com/opencasehq/casebill/internal/observability/logger"
	"github.com/opencasehq/casebill/internal/rate"
	"github.com/opencasehq/casebill/internal/seed"
	"github.com/opencasehq/casebill/internal/server"
	"github.com/opencasehq/casebill/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:     "casebill",
		Short:   "Billing eligibility and budget forecasting service",
		Version: version,
	}
	root.AddCommand(serveCmd(), migrateCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run migrations and start the HTTP server",
		Run: func(cmd *cobra.Command, args []string) {
			newApp().Run()
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(os.Getenv("CASEBILL_CONFIG"))
			if err != nil {
				return err
			}
			conn, err := db.Open(cfg)
			if err != nil {
				return err
			}
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()
			return migration.RunMigrations(sqlDB)
		},
	}
}

func newApp() *fx.App {
	return fx.New(
		config.Module,
		logger.Module,
		fx.Provide(func() *snowflake.Node {
			node, err := snowflake.NewNode(1)
			if err != nil {
				panic(err)
			}
			return node
		}),
		db.Module,
		fx.Invoke(func(conn *gorm.DB, cfg config.Config) error {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := migration.RunMigrations(sqlDB); err != nil {
				return err
			}
			if err := seed.EnsureMainOrg(conn); err != nil {
				return err
			}
			if cfg.Bootstrap.SeedDefaultCatalog {
				return seed.EnsureDefaultCatalog(conn)
			}
			return nil
		}),
		clock.Module,
		events.Module,
		audit.Module,
		rate.Module,
		budget.Module,
		eligibility.Module,
		billingitem.Module,
		invoice.Module,
		server.Module,
	)
}
