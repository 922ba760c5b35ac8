package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"game-wager-system/config"
	"game-wager-system/handlers"
	"game-wager-system/middleware"
	"game-wager-system/models"
	"game-wager-system/services"
	"game-wager-system/utils"
	"game-wager-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := config.LoadDotEnv(".env"); err != nil {
		log.Println("⚠️  Could not read .env file, reading environment variables directly:", err)
	}
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration: ", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{TranslateError: true})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}
	if err := models.Migrate(db); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	ledger := services.NewLedger(cfg.HouseUserID)
	if err := ledger.EnsureHouseAccount(db); err != nil {
		log.Fatal(err)
	}

	var notifier services.Notifier = services.LogNotifier{}
	if cfg.NotifyServiceURL != "" {
		notifier = services.NewHTTPNotifier(cfg.NotifyServiceURL, cfg.ServiceToken)
	} else {
		log.Println("⚠️  NOTIFY_SERVICE_URL not set, notifications go to the log")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var archiver services.ReceiptArchiver
	if cfg.ArchiveEnabled() {
		r2, err := utils.NewR2Archive(ctx, cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2AccessKeySecret, cfg.R2Bucket)
		if err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
		archiver = r2
	} else {
		log.Println("⚠️  R2 settings incomplete, settlement receipts will not be archived")
	}

	escrowService := services.NewEscrowService(db, ledger, notifier)
	lobbyService := services.NewLobbyService(db, escrowService)
	lobbyService.MinWager = cfg.MinWager
	lobbyService.IdleTimeout = cfg.IdleLobbyTimeout
	lobbyService.CodeAttempts = cfg.LobbyCodeAttempts
	lobbyService.CodeBackoff = cfg.LobbyCodeBackoff

	tournamentService := services.NewTournamentService(db, ledger, notifier)
	tournamentService.CodeAttempts = cfg.LobbyCodeAttempts
	tournamentService.CodeBackoff = cfg.LobbyCodeBackoff

	idleReconciler := services.NewIdleReconciler(db, escrowService)
	settlementService := services.NewSettlementService(db, ledger, notifier, archiver)
	gameService := services.NewGameService(db)
	walletService := services.NewWalletService(db)

	runner := workers.NewJobRunner(db, cfg.JobPollInterval)
	runner.Handle(models.JobLobbyIdleCheck, func(ctx context.Context, lobbyID string) error {
		_, err := idleReconciler.CheckLobby(ctx, lobbyID)
		return err
	})
	runner.Handle(models.JobTournamentSettlement, func(ctx context.Context, tournamentID string) error {
		_, err := settlementService.Settle(ctx, tournamentID)
		return err
	})
	if err := runner.Start(ctx); err != nil {
		log.Fatal("failed to start job runner:", err)
	}

	if cfg.ProfileSyncURL != "" {
		syncWorker := workers.NewUserSyncWorker(db, cfg.ProfileSyncURL, cfg.ProfileSyncPath, cfg.ServiceToken, cfg.ProfileSyncInterval)
		syncWorker.Start(ctx)
	} else {
		log.Println("⚠️  SYNC_SERVICE_URL not set, user sync disabled")
	}

	app := fiber.New()

	// 🔐❗ GLOBAL: Only Gateway and game-service requests allowed
	app.Use(middleware.GatewayAuthMiddleware(cfg.ServiceToken))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-Service-Token, X-User-ID, X-User-Roles",
		AllowCredentials: true,
		MaxAge:           86400,
	}))
	app.Use(middleware.UserContextMiddleware())
	// The gateway must not forward /internal; those routes also need the internal token.
	app.Use("/internal", middleware.InternalAuthMiddleware(cfg.InternalToken))

	handlers.SetupGameRoutes(app, gameService)
	handlers.SetupWalletRoutes(app, walletService)
	handlers.SetupLobbyRoutes(app, lobbyService, escrowService)
	handlers.SetupTournamentRoutes(app, tournamentService)

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Printf("✅ Server running on http://localhost:%s", cfg.Port)
	log.Printf("✅ Job runner polling every %s (idle timeout %s)", cfg.JobPollInterval, cfg.IdleLobbyTimeout)
	log.Printf("✅ CORS configured for origins: %v", cfg.AllowedOrigins)

	<-ctx.Done()
	log.Println("Shutting down server...")
	runner.Stop()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
