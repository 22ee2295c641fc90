package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ad-reward-system/handlers"
	"ad-reward-system/middleware"
	"ad-reward-system/models"
	"ad-reward-system/services"
	"ad-reward-system/utils"
	"ad-reward-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{})

	// 🔐 GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: http://localhost:3000")
		allowedOriginsEnv = "http://localhost:3000"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(allowedOriginsList, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-User-ID, X-User-Roles",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	archiveEnabled := os.Getenv("LEDGER_ARCHIVE_ENABLED") == "true"
	if archiveEnabled {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(&models.UserProgress{}); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	providerURL := os.Getenv("PAYMENT_PROVIDER_URL")
	if providerURL == "" {
		log.Fatal("PAYMENT_PROVIDER_URL environment variable not set")
	}
	providerToken := os.Getenv("PAYMENT_PROVIDER_TOKEN")
	if providerToken == "" {
		log.Fatal("PAYMENT_PROVIDER_TOKEN environment variable not set")
	}

	provider := services.NewPaymentProviderClient(providerURL, providerToken)
	progressService := services.NewProgressService(db, services.DefaultEconomy, provider)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	verificationWorker := workers.NewVerificationSyncWorker(
		progressService, providerURL, "/api/v1/public/verifications", providerToken)
	verificationWorker.Start(ctx)

	progressService.StartMaintenanceScheduler(archiveEnabled)

	// ✅ Setup routes — enforced Gateway auth + user context per route group
	handlers.SetupProgressRoutes(app, progressService, provider)

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ Verification Sync Worker running")
	log.Println("✅ Maintenance scheduler running (streak sweep hourly)")
	log.Printf("✅ CORS configured for origins: %s", strings.Join(allowedOriginsList, ","))

	<-ctx.Done()
	log.Println("Shutting down server...")
}
