package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anassewp/telegram-backend/internal/config"
	"github.com/anassewp/telegram-backend/internal/db"
	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/events"
	apphttp "github.com/anassewp/telegram-backend/internal/http"
	"github.com/anassewp/telegram-backend/internal/http/handlers"
	"github.com/anassewp/telegram-backend/internal/quota"
	"github.com/anassewp/telegram-backend/internal/repositories"
	"github.com/anassewp/telegram-backend/internal/services"
	"github.com/anassewp/telegram-backend/migrations"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Database
	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, pool, migrations.FS, log); err != nil {
		log.Fatal("failed to run migrations", zap.Error(err))
	}

	// Redis
	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repositories
	campaignRepo := repositories.NewCampaignRepo(pool)
	sessionRepo := repositories.NewSessionRepo(pool)
	recordRepo := repositories.NewRecordRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool, log)

	// Services
	publisher := events.NewRedisPublisher(rdb, log)
	dailyQuota := quota.NewRedisQuota(rdb, log)
	backend := services.NewBackendClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendTimeout, log)
	registry := services.NewSessionRegistry(sessionRepo, log)
	ledger := services.NewLedger(recordRepo, log)
	rollback := services.NewRollbackController(auditRepo, log)
	planner := distribution.NewPlanner(time.Now().UnixNano())
	pacing := services.Pacing{
		DelayMin:            cfg.SendDelayMin,
		DelayMax:            cfg.SendDelayMax,
		MaxPerDayPerSession: cfg.MaxPerDayPerSession,
	}

	campaignService := services.NewCampaignService(campaignRepo, registry, ledger, backend, rollback, planner, dailyQuota, auditRepo, publisher, pacing, log)
	transferService := services.NewTransferService(registry, ledger, backend, planner, dailyQuota, auditRepo, publisher, pacing, log)
	groupService := services.NewGroupService(registry, backend, log)

	// Fiber app. Sends and transfers pace their items, so writes may run long.
	app := fiber.New(fiber.Config{
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	apphttp.SetupRouter(app, cfg, log, rdb, apphttp.Handlers{
		Campaign: handlers.NewCampaignHandler(campaignService, log),
		Transfer: handlers.NewTransferHandler(transferService, log),
		Session:  handlers.NewSessionHandler(registry, log),
		Group:    handlers.NewGroupHandler(groupService, log),
	})

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info("shutting down...")
		cancel()
		_ = app.ShutdownWithTimeout(30 * time.Second)
	}()

	addr := fmt.Sprintf(":%s", cfg.APIPort)
	log.Info("starting API server", zap.String("addr", addr))
	if err := app.Listen(addr); err != nil {
		log.Fatal("server error", zap.Error(err))
	}
}
