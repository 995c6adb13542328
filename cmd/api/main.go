package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/swagger"
	"github.com/robfig/cron/v3"

	"github.com/feliperodres/crm-wipsy-sub001/internal/core/jobs"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/tenant"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/upload"
	"github.com/feliperodres/crm-wipsy-sub001/internal/core/whatsapp"
	"github.com/feliperodres/crm-wipsy-sub001/internal/handlers"
	"github.com/feliperodres/crm-wipsy-sub001/internal/repositories"
	"github.com/feliperodres/crm-wipsy-sub001/internal/services"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/config"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/database"
	"github.com/feliperodres/crm-wipsy-sub001/internal/shared/utils"

	_ "github.com/feliperodres/crm-wipsy-sub001/docs"
)

// @title WhatsApp Sales Ingest API
// @version 1.0
// @description Multi-tenant WhatsApp message ingestion and AI sales agent pipeline
// @contact.name API Support
// @license.name MIT
// @host localhost:8080
// @BasePath /
func main() {
	utils.InitLogger()
	cfg := config.LoadConfig()
	log.Printf("🚀 Starting ingest-api on port %s", cfg.Port)

	db, err := database.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}
	defer db.Close()

	// Repositories
	tenantRepo := repositories.NewTenantRepo(db.GORM)
	channelRepo := repositories.NewChannelRepo(db.GORM)
	customerRepo := repositories.NewCustomerRepo(db.GORM)
	chatRepo := repositories.NewChatRepo(db.GORM)
	messageRepo := repositories.NewMessageRepo(db.GORM)
	groupRepo := repositories.NewGroupRepo(db.GORM)
	productRepo := repositories.NewProductRepo(db.GORM)
	orderRepo := repositories.NewOrderRepo(db.GORM)
	usageRepo := repositories.NewUsageRepo(db.GORM)

	resolver := tenant.NewResolver(tenantRepo, channelRepo)
	queue := jobs.NewQueue(db.GORM)

	uploadService, err := upload.NewServiceFromConfig(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize upload service: %v", err)
	}
	log.Printf("📦 Using upload provider: %s", uploadService.GetProviderName())

	providers := whatsapp.NewFactory(cfg.WhatsAppStoreURL)
	defer providers.Close()

	// Services
	agentService := services.NewAgentService(
		tenantRepo, messageRepo, chatRepo, usageRepo,
		providers.ForChannel,
		cfg.OpenAIKey, cfg.AgentCallTimeout,
	)
	bufferService := services.NewBufferService(
		groupRepo, tenantRepo, customerRepo, chatRepo, channelRepo,
		queue, agentService, cfg.DefaultBufferSecs,
	)
	mediaService := services.NewMediaService(
		messageRepo, groupRepo, tenantRepo, customerRepo, chatRepo, channelRepo,
		uploadService, agentService, providers.ForChannel,
	)
	ingestService := services.NewIngestService(
		customerRepo, chatRepo, messageRepo, groupRepo,
		bufferService, queue, cfg.ManualReplyGrace,
	)
	orderService := services.NewOrderService(
		tenantRepo, customerRepo, chatRepo, productRepo, orderRepo,
		agentService, nil,
	)

	// Background workers: scheduled group flushes and media fetches
	worker := jobs.NewWorker(queue, jobs.DefaultWorkerConfig())
	worker.RegisterHandler(services.NewGroupFlushHandler(bufferService, groupRepo))
	worker.RegisterHandler(mediaService)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	if err := worker.Start(workerCtx); err != nil {
		log.Fatalf("Failed to start job workers: %v", err)
	}
	defer worker.Stop()

	// Cron: overdue-group recovery sweep and job table cleanup
	scheduler := cron.New()
	if _, err := scheduler.AddFunc("@every 30s", func() {
		bufferService.SweepOverdue(context.Background())
	}); err != nil {
		log.Fatalf("Failed to schedule group sweep: %v", err)
	}
	if _, err := scheduler.AddFunc("@hourly", func() {
		deleted, err := queue.DeleteOldJobs(context.Background(), 7*24*time.Hour)
		if err != nil {
			log.Printf("⚠️ Job cleanup failed: %v", err)
		} else if deleted > 0 {
			log.Printf("🧹 Cleaned up %d old jobs", deleted)
		}
	}); err != nil {
		log.Fatalf("Failed to schedule job cleanup: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Handlers
	healthHandler := handlers.NewHealthHandler(db)
	webhookHandler := handlers.NewWebhookHandler(resolver, ingestService)
	metaHandler := handlers.NewMetaWebhookHandler(resolver, ingestService)
	agentHandler := handlers.NewAgentHandler(resolver, agentService, orderService, customerRepo, chatRepo)
	channelHandler := handlers.NewChannelHandler(resolver, cfg.WhatsAppStoreURL)

	app := fiber.New(fiber.Config{
		AppName: "WhatsApp Sales Ingest API",
	})
	app.Use(cors.New())

	app.Get("/swagger/*", swagger.HandlerDefault)
	app.Get("/health", healthHandler.GetHealth)

	// Webhook routes
	app.Post("/webhooks/bsp/:token", webhookHandler.HandleBSP)
	app.Get("/webhooks/meta/:token", metaHandler.Verify)
	app.Post("/webhooks/meta/:token", metaHandler.HandleEvents)

	// Agent reply route
	app.Post("/agent/:token/events", agentHandler.HandleEvent)

	// Channel routes
	app.Get("/channels/:token/qr", channelHandler.GetQRCode)

	// Graceful shutdown
	go func() {
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		log.Println("🛑 Shutting down...")
		_ = app.Shutdown()
	}()

	log.Printf("✅ ingest-api running at :%s", cfg.Port)
	log.Printf("📄 Swagger UI: http://localhost:%s/swagger/", cfg.Port)
	if err := app.Listen(":" + cfg.Port); err != nil {
		log.Fatalf("Server stopped: %v", err)
	}
}
