package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/invoscore/backend/internal/api/handlers"
	redisCache "github.com/invoscore/backend/internal/cache/redis"
	"github.com/invoscore/backend/internal/events"
	"github.com/invoscore/backend/internal/industry"
	"github.com/invoscore/backend/internal/limits"
	"github.com/invoscore/backend/internal/metrics"
	"github.com/invoscore/backend/internal/middleware/ratelimit"
	"github.com/invoscore/backend/internal/monitor"
	"github.com/invoscore/backend/internal/scoring"
	"github.com/invoscore/backend/internal/storage/sqlite"
	"github.com/invoscore/backend/internal/terms"
	"github.com/invoscore/backend/pkg/config"
	appLogger "github.com/invoscore/backend/pkg/logger"
	"github.com/invoscore/backend/pkg/retry"
)

func main() {
	configPath := flag.String("config", "./config/config.yaml", "path to config file")
	tenantID := flag.String("tenant", "default", "tenant served by the background sweeper")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting credit risk engine API server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	var cacheClient *redisCache.Client
	err = retry.Do(context.Background(), retry.DefaultConfig(), func() error {
		var connErr error
		cacheClient, connErr = redisCache.NewClient(cfg.Redis)
		return connErr
	})
	if err != nil {
		appLogger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer cacheClient.Close()

	publisher := events.NewPublisher(cacheClient.Raw())

	assessmentRepo := sqlite.NewAssessmentRepo(sqliteClient)
	modelRepo := sqlite.NewScoringModelRepo(sqliteClient)
	profileRepo := sqlite.NewBuyerProfileRepo(sqliteClient)
	paymentRepo := sqlite.NewPaymentRepo(sqliteClient)
	industryRepo := sqlite.NewIndustryRepo(sqliteClient)
	limitRepo := sqlite.NewCreditLimitRepo(sqliteClient)
	indicatorRepo := sqlite.NewRiskIndicatorRepo(sqliteClient)
	termsRepo := sqlite.NewPaymentTermsRepo(sqliteClient)

	collector := scoring.NewCollector(paymentRepo, profileRepo, cfg.Scoring.LookbackMonths)
	factorCalc := scoring.NewFactorCalculator(paymentRepo, profileRepo, cfg.Scoring.LookbackMonths)
	adjuster := industry.NewAdjuster(industryRepo)
	engine := scoring.NewEngine(collector, factorCalc, adjuster,
		assessmentRepo, modelRepo, profileRepo, publisher, cacheClient)

	calculator := limits.NewCalculator(assessmentRepo, profileRepo, paymentRepo, industryRepo,
		cfg.Scoring.BaseLimitFloor, cfg.Scoring.BaseLimitCeiling)
	limitService := limits.NewService(limitRepo, assessmentRepo, paymentRepo, calculator, publisher)

	riskMonitor := monitor.New(assessmentRepo, paymentRepo, limitRepo, indicatorRepo, publisher, limitService)

	termsRules, err := terms.LoadRules(cfg.Terms.RulesPath)
	if err != nil {
		appLogger.Fatal("Failed to load payment terms rules", zap.Error(err))
	}
	termsResolver := terms.NewResolver(termsRepo, engine, termsRules, cfg.Terms.FreshnessAge, publisher)

	sweeper := monitor.NewSweeper(riskMonitor, limitRepo, *tenantID,
		cfg.Monitor.SweepInterval, cfg.Monitor.SweepBatchSize)
	sweepCtx, stopSweep := context.WithCancel(context.Background())
	go sweeper.Run(sweepCtx)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Tenant-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))

	limiter := ratelimit.New(cfg.Server.RateLimit, cfg.Server.RateWindow)
	defer limiter.Stop()
	app.Use(limiter.Middleware())

	assessmentHandler := handlers.NewAssessmentHandler(engine)
	limitHandler := handlers.NewLimitHandler(calculator, limitService)
	monitorHandler := handlers.NewMonitorHandler(riskMonitor)
	termsHandler := handlers.NewTermsHandler(termsResolver)

	api := app.Group("/api/v1")

	api.Post("/assessments", assessmentHandler.RunAssessment)
	api.Get("/assessments/:buyer", assessmentHandler.GetLatest)
	api.Post("/assessments/:buyer/override", assessmentHandler.Override)

	api.Post("/limits/recommend", limitHandler.Recommend)
	api.Post("/limits", limitHandler.Create)
	api.Get("/limits/review-due", limitHandler.ListDueForReview)
	api.Get("/limits/high-utilization", limitHandler.ListHighUtilization)
	api.Post("/limits/:id/utilization", limitHandler.UpdateUtilization)
	api.Post("/limits/:id/temporary-increase", limitHandler.TemporaryIncrease)
	api.Delete("/limits/:id/temporary-increase", limitHandler.RemoveTemporaryIncrease)
	api.Get("/limits/:id/history", limitHandler.History)
	api.Post("/approvals/:id/decide", limitHandler.DecideApproval)
	api.Get("/credit/:buyer/check", limitHandler.CheckCredit)

	api.Post("/monitor/:buyer", monitorHandler.RunMonitoring)
	api.Get("/indicators/:buyer", monitorHandler.ActiveIndicators)
	api.Post("/indicators/:id/ack", monitorHandler.Acknowledge)
	api.Post("/indicators/:id/resolve", monitorHandler.Resolve)
	api.Post("/indicators/:id/false-positive", monitorHandler.FalsePositive)

	api.Get("/terms/:buyer", termsHandler.Resolve)
	api.Put("/terms/:buyer/override", termsHandler.Override)

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := cfg.Server.Addr()
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	stopSweep()
	app.Shutdown()
	appLogger.Info("Server stopped")
}
