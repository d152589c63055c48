package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"kasa-backend/internal/audit"
	"kasa-backend/internal/auth"
	"kasa-backend/internal/cashflow"
	"kasa-backend/internal/cashsession"
	"kasa-backend/internal/config"
	"kasa-backend/internal/database"
	"kasa-backend/internal/events"
	"kasa-backend/internal/events/kafka"
	"kasa-backend/internal/metrics"
	"kasa-backend/internal/models"
	"kasa-backend/internal/reconcile"
	"kasa-backend/internal/storage/postgres"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func main() {
	cfg := config.Load()
	database.Init(cfg)

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := postgres.New(database.DB)

	// Kurulu olmayan komutlar için yönetici yedek yolu kullanır
	caps, err := store.ProbeCapabilities(ctx)
	if err != nil {
		log.Printf("[WARN] Kasa komutları tespit edilemedi, yedek yol kullanılacak: %v", err)
	}
	log.Printf("Kasa komutları: atomic_open=%v atomic_close=%v validate_close=%v force_close=%v",
		caps.AtomicOpen, caps.AtomicClose, caps.ValidateClose, caps.ForceClose)

	// Olaylar: Kafka tanımlıysa node'lar arası, değilse sadece bu süreç içinde
	var relay events.Relay
	var publisher *kafka.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		relay = publisher
	}
	hub := events.NewHub(relay, logger)

	if len(cfg.KafkaBrokers) > 0 {
		consumer := kafka.NewConsumer(cfg.KafkaBrokers, cfg.KafkaTopic, cfg.KafkaGroupID, hub, logger)
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("[WARN] Kafka consumer durdu: %v", err)
			}
		}()
		defer consumer.Close()
		defer publisher.Close()
	}

	auditSvc := audit.NewService(database.DB)
	agg := metrics.NewAggregator(store, cfg.Location, logger)
	registry := cashsession.NewRegistry(store, agg, hub, cashsession.Options{
		Capabilities: caps,
		Thresholds: reconcile.Thresholds{
			Warning:  cfg.DiscrepancyWarning,
			Critical: cfg.DiscrepancyCritical,
			Max:      cfg.DiscrepancyMax,
		},
		MaxAmount:             cfg.CashMaxAmount,
		Location:              cfg.Location,
		StrictCloseValidation: cfg.StrictCloseValidation,
		Logger:                logger,
		Auditor:               auditSvc,
	})
	defer registry.Shutdown()

	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			if e, ok := err.(*fiber.Error); ok {
				return c.Status(e.Code).JSON(fiber.Map{
					"error": e.Message,
				})
			}
			log.Println("Unexpected error:", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "Beklenmeyen sunucu hatası",
			})
		},
	})

	// CORS origins'i virgülle ayrılmış string'den array'e çevir
	corsOrigins := strings.Split(cfg.CORSOrigins, ",")
	for i := range corsOrigins {
		corsOrigins[i] = strings.TrimSpace(corsOrigins[i])
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(corsOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + cashflow.TerminalHeader,
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/register-admin", auth.RegisterAdminHandler(database.DB))
	api.Post("/auth/login", auth.LoginHandler(cfg, database.DB))

	// Protected
	protected := api.Group("")
	protected.Use(auth.JWTMiddleware(cfg))

	protected.Get("/auth/me", auth.MeHandler(database.DB))

	// Restoran yöneticisi
	adminRoutes := protected.Group("/admin")
	adminRoutes.Use(auth.RequireRole(models.RoleAdmin))
	adminRoutes.Post("/cashiers", auth.CreateCashierHandler(database.DB))

	// Kasa
	cashflow.NewHandler(registry, store, store, hub).Register(protected)

	// Audit logs
	protected.Get("/audit-logs", auth.RequireRole(models.RoleAdmin), audit.ListAuditLogsHandler(auditSvc))

	go func() {
		<-ctx.Done()
		log.Println("Kapanış sinyali alındı, server durduruluyor")
		if err := app.Shutdown(); err != nil {
			log.Printf("[WARN] Server kapatılırken hata: %v", err)
		}
	}()

	log.Println("Server çalışıyor port:", cfg.HTTPPort)
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
