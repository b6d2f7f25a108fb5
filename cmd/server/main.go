package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"insaat-backend/internal/amqp"
	"insaat-backend/internal/apierr"
	"insaat-backend/internal/audit"
	"insaat-backend/internal/auth"
	"insaat-backend/internal/cache"
	"insaat-backend/internal/config"
	"insaat-backend/internal/dashboard"
	"insaat-backend/internal/database"
	"insaat-backend/internal/finance"
	"insaat-backend/internal/ledger"
	"insaat-backend/internal/logging"
	"insaat-backend/internal/projects"
	"insaat-backend/internal/storage"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()

	logger := logging.New(logging.Config{
		Level:     logging.ParseLevel(cfg.LogLevel),
		Component: logging.ComponentApp,
		Output:    os.Stdout,
	})
	logging.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("geçersiz konfigürasyon", logging.FieldError, err)
		os.Exit(1)
	}

	db := database.Init(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files := storage.NewLocalStore(cfg.InvoiceUploadPath, cfg.InvoicePublicPrefix)
	opts := []finance.Option{
		finance.WithLogger(logger.WithComponent(logging.ComponentFinance)),
		finance.WithFileStore(files),
		finance.WithRepairWorkers(cfg.RepairWorkers),
	}

	// Redis yoksa özet her istekte DB'den hesaplanır
	if rdb := cache.Connect(ctx, cfg.RedisAddr); rdb != nil {
		defer rdb.Close()
		opts = append(opts, finance.WithSummaryCache(cache.NewSummaryCache(rdb, cfg.SummaryCacheTTL)))
		logger.Info("özet cache aktif", "redis", cfg.RedisAddr)
	} else if cfg.RedisAddr != "" {
		logger.Warn("Redis'e bağlanılamadı, özet cache kapalı", "redis", cfg.RedisAddr)
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, logger)
		if err != nil {
			logger.Warn("AMQP bağlantısı kurulamadı, uyarılar yayınlanmayacak", logging.FieldError, err)
		} else {
			defer client.Close()
			opts = append(opts, finance.WithAlertNotifier(client))
		}
	}

	svc := finance.NewService(db, opts...)

	app := fiber.New(fiber.Config{
		ErrorHandler: apierr.ErrorHandler(logger.WithComponent(logging.ComponentHTTP)),
		BodyLimit:    int(finance.MaxInvoiceSize) + 1<<20,
	})

	app.Use(logging.Middleware(logger.WithComponent(logging.ComponentHTTP)))
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.CORSOriginList(), ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	}))

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})
	app.Static(cfg.InvoicePublicPrefix, cfg.InvoiceUploadPath)

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(db))
	api.Post("/auth/login", auth.LoginHandler(db, cfg.JWTSecret))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg.JWTSecret))

	protected.Get("/auth/me", auth.MeHandler(db))

	read := auth.RequireCapability(auth.CapFinanceRead)
	txWrite := auth.RequireCapability(auth.CapTransactionsWrite)
	budgetWrite := auth.RequireCapability(auth.CapBudgetWrite)

	// Harcama defteri
	protected.Post("/transactions", txWrite, ledger.CreateTransactionHandler(svc))
	protected.Get("/transactions", read, ledger.ListTransactionsHandler(svc))
	protected.Put("/transactions/:id", txWrite, ledger.UpdateTransactionHandler(svc))
	protected.Patch("/transactions/:id", txWrite, ledger.UpdateTransactionHandler(svc))
	protected.Delete("/transactions/:id", txWrite, ledger.DeleteTransactionHandler(svc))

	// Proje bütçesi ve kategoriler
	protected.Put("/projects/:id/budget", budgetWrite, projects.UpdateBudgetHandler(svc))
	protected.Post("/projects/:id/categories", budgetWrite, projects.CreateCategoryHandler(svc))
	protected.Post("/projects/:id/categories/import", budgetWrite, projects.ImportCategoriesHandler(svc))
	protected.Post("/projects/:id/savings", auth.RequireCapability(auth.CapSavingsWrite), projects.RecordSavingsHandler(svc))

	// Uyarılar
	protected.Get("/projects/:id/alerts", read, projects.ListAlertsHandler(svc))
	protected.Post("/alerts/:id/resolve", auth.RequireCapability(auth.CapAlertsResolve), projects.ResolveAlertHandler(svc))

	// Raporlama
	protected.Get("/projects/:id/snapshot", read, projects.SnapshotHandler(svc))
	protected.Get("/projects/:id/financial-summary", read, projects.FinancialSummaryHandler(svc))
	protected.Get("/projects/:id/spending-chart", read, dashboard.SpendingChartHandler(svc, time.Now))

	// Bakım
	protected.Post("/recalculate-all", auth.RequireCapability(auth.CapRepairRun), projects.RecalculateAllHandler(svc))

	// Audit logs
	protected.Get("/audit-logs", auth.RequireCapability(auth.CapAuditRead), audit.ListAuditLogsHandler(db))

	go func() {
		<-ctx.Done()
		logger.Info("sunucu kapatılıyor", logging.FieldOperation, logging.OpShutdown)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := app.ShutdownWithContext(shutdownCtx); err != nil {
			logger.Error("kapatma hatası", logging.FieldError, err)
		}
	}()

	logger.Info("server çalışıyor", logging.FieldOperation, logging.OpStartup, "port", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		logger.Error("server durdu", logging.FieldError, err)
		os.Exit(1)
	}
}
