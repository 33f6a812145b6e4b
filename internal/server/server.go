// Package server exposes the billing core over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/opencasehq/casebill/internal/audit/domain"
	billingitemdomain "github.com/opencasehq/casebill/internal/billingitem/domain"
	budgetdomain "github.com/opencasehq/casebill/internal/budget/domain"
	"github.com/opencasehq/casebill/internal/config"
	eligibilitydomain "github.com/opencasehq/casebill/internal/eligibility/domain"
	invoicedomain "github.com/opencasehq/casebill/internal/invoice/domain"
	"github.com/opencasehq/casebill/internal/observability/logger"
	"github.com/opencasehq/casebill/internal/observability/metrics"
	"github.com/opencasehq/casebill/internal/observability/tracing"
)

// Server carries the handler dependencies.
type Server struct {
	cfg   config.Config
	db    *gorm.DB
	log   *zap.Logger
	genID *snowflake.Node

	evaluator eligibilitydomain.Evaluator
	lifecycle billingitemdomain.Lifecycle
	ledger    budgetdomain.Ledger
	generator invoicedomain.Generator
	audit     auditdomain.Service

	metrics *metrics.BillingMetrics
}

type ServerParam struct {
	fx.In

	Cfg   config.Config
	DB    *gorm.DB
	Log   *zap.Logger
	GenID *snowflake.Node

	Evaluator eligibilitydomain.Evaluator
	Lifecycle billingitemdomain.Lifecycle
	Ledger    budgetdomain.Ledger
	Generator invoicedomain.Generator
	Audit     auditdomain.Service
}

func NewServer(p ServerParam) *Server {
	return &Server{
		cfg:       p.Cfg,
		db:        p.DB,
		log:       p.Log.Named("server"),
		genID:     p.GenID,
		evaluator: p.Evaluator,
		lifecycle: p.Lifecycle,
		ledger:    p.Ledger,
		generator: p.Generator,
		audit:     p.Audit,
		metrics: metrics.BillingWithConfig(metrics.Config{
			ServiceName: "casebill",
			Environment: p.Cfg.Environment,
		}),
	}
}

// NewEngine builds the gin engine with the logging and metrics middleware
// and all routes registered.
func NewEngine(s *Server, httpMetrics *metrics.HTTPMetrics) *gin.Engine {
	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(logger.GinMiddleware(logger.MiddlewareConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	engine.Use(metrics.GinMiddleware(httpMetrics))

	s.RegisterRoutes(engine)
	return engine
}

// RegisterRoutes attaches every route to the engine.
func (s *Server) RegisterRoutes(engine *gin.Engine) {
	engine.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")
	{
		billing := api.Group("/billing")
		billing.POST("/evaluate", s.EvaluateWorkItem)
		billing.POST("/items", s.CreateBillingItem)
		billing.POST("/items/:id/approve", s.ApproveBillingItem)
		billing.POST("/items/:id/reject", s.RejectBillingItem)
		billing.GET("/items/:id", s.GetBillingItem)

		cases := api.Group("/cases")
		cases.GET("/:id/forecast", s.GetCaseForecast)
		cases.PUT("/:id/budget", s.PutCaseBudget)

		invoices := api.Group("/invoices")
		invoices.POST("/generate", s.GenerateInvoice)
		invoices.POST("/:id/generate", s.GenerateInvoiceWithID)
		invoices.POST("/:id/void", s.VoidInvoice)
		invoices.GET("/:id", s.GetInvoice)

		rates := api.Group("/rate-overrides")
		rates.POST("", s.CreateRateOverride)
		rates.GET("", s.ListRateOverrides)
		rates.DELETE("/:id", s.DeleteRateOverride)
	}

	if s.cfg.HTTP.EnableTestEndpoints && !s.cfg.IsProduction() {
		engine.POST("/test/cleanup", s.TestCleanup)
	}
}

// RunHTTP starts the HTTP listener tied to the fx lifecycle.
func RunHTTP(lc fx.Lifecycle, engine *gin.Engine, cfg config.Config, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			log.Info("http server starting", zap.String("addr", cfg.HTTP.Addr))
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return srv.Shutdown(ctx)
		},
	})
}

func newTracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.Tracing.Enabled,
		ServiceName:      "casebill",
		ServiceVersion:   "dev",
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.Tracing.ExporterEndpoint,
		ExporterProtocol: cfg.Tracing.ExporterProtocol,
		SamplingRatio:    cfg.Tracing.SamplingRatio,
	}
}

func newHTTPMetrics(cfg config.Config) (*metrics.HTTPMetrics, error) {
	return metrics.NewHTTPMetrics(metrics.Config{
		ServiceName: "casebill",
		Environment: cfg.Environment,
	})
}

// Module wires the HTTP surface and its observability providers.
var Module = fx.Module("server",
	fx.Provide(
		newTracingConfig,
		newHTTPMetrics,
		NewServer,
		NewEngine,
	),
	fx.Invoke(tracing.NewProvider),
	fx.Invoke(RunHTTP),
)
