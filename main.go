package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"camly-reward-system/chain"
	"camly-reward-system/config"
	"camly-reward-system/handlers"
	"camly-reward-system/middleware"
	"camly-reward-system/models"
	"camly-reward-system/services"
	"camly-reward-system/utils"
	"camly-reward-system/workers"

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

	cfg := config.Get()

	if err := utils.InitLogger(cfg); err != nil {
		log.Fatal("failed to initialize logger:", err)
	}
	defer utils.Logger.Sync()

	app := fiber.New(fiber.Config{
		BodyLimit: 1 * 1024 * 1024, // 1MB — JSON API only
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.AllowedOrigins, ","),
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Session-Token, X-Service-Token, X-Device-ID",
		ExposeHeaders:    "Content-Length, Content-Type, Authorization, X-Request-ID",
		AllowCredentials: true,
		MaxAge:           86400, // 24 hours
	}))

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.RewardLedgerEntry{},
		&models.RewardBalance{},
		&models.DailyCounter{},
		&models.ClaimRequest{},
		&models.DailyClaimRecord{},
		&models.OnchainTransfer{},
		&models.SyncCursor{},
		&models.WalletLink{},
		&models.ProfileMirror{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	if cfg.AuditExportEnabled {
		if err := utils.InitR2(); err != nil {
			log.Fatal("failed to initialize R2 client:", err)
		}
	}

	redisGate := &utils.RedisGate{Client: utils.GetRedis()}

	treasury, err := chain.NewERC20Treasury(
		cfg.ChainRPCURL,
		cfg.TokenContract,
		cfg.TreasuryPrivateKey,
		cfg.ChainID,
		cfg.Confirmations,
		time.Duration(cfg.ConfirmPollSec)*time.Second,
	)
	if err != nil {
		log.Fatal("failed to initialize treasury wallet:", err)
	}

	indexer := chain.NewHTTPIndexerClient(cfg.IndexerBaseURL, cfg.IndexerAPIKey, cfg.IndexerPagesPerSec)

	notifier := workers.NewNotifier(cfg)

	fraudGate := services.NewFraudGate(db, cfg)
	accrualService := services.NewAccrualService(db, cfg, fraudGate, redisGate)
	claimService := services.NewClaimService(db, cfg, treasury, redisGate, notifier)
	walletService := services.NewWalletService(db, cfg)
	syncService := services.NewSyncService(db, cfg, indexer)

	var accountClient *services.AccountServiceClient
	if cfg.AccountServiceURL != "" {
		accountClient = services.NewAccountServiceClient(cfg.AccountServiceURL, cfg.ServiceToken)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	notifier.Start(ctx)

	if cfg.AccountServiceURL != "" {
		profileSync := workers.NewProfileSyncWorker(db, cfg.AccountServiceURL, "/api/v1/internal/profile-changes", cfg.ServiceToken)
		profileSync.Start(ctx)
	} else {
		utils.Sugar.Warn("⚠️  ACCOUNT_SERVICE_URL not set — profile mirror will not sync; fraud gate runs on stale data")
	}

	sched, err := services.StartSchedulers(ctx, cfg, claimService, syncService)
	if err != nil {
		log.Fatal("failed to start schedulers:", err)
	}

	// ✅ Setup routes — enforced Gateway auth + consistent /s/ prefix
	handlers.SetupRewardRoutes(app, accrualService, claimService, walletService, syncService, accountClient)

	go func() {
		if err := app.Listen(":" + cfg.AppPort); err != nil {
			utils.Sugar.Errorf("Server error: %v", err)
		}
	}()

	utils.Sugar.Infof("✅ Server running on http://localhost:%s", cfg.AppPort)
	utils.Sugar.Info("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	utils.Sugar.Infof("✅ CORS configured for origins: %s", strings.Join(cfg.AllowedOrigins, ","))

	<-ctx.Done()
	utils.Sugar.Info("Shutting down server...")
	_ = sched.Shutdown()
	_ = app.ShutdownWithTimeout(10 * time.Second)
}
