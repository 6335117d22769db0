package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/anassewp/telegram-backend/internal/config"
	"github.com/anassewp/telegram-backend/internal/db"
	"github.com/anassewp/telegram-backend/internal/distribution"
	"github.com/anassewp/telegram-backend/internal/events"
	"github.com/anassewp/telegram-backend/internal/quota"
	"github.com/anassewp/telegram-backend/internal/repositories"
	"github.com/anassewp/telegram-backend/internal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// dueBatchSize bounds how many scheduled campaigns one tick picks up.
const dueBatchSize = 100

func main() {
	log, _ := zap.NewProduction()
	defer log.Sync()

	cfg := config.Load()
	if err := cfg.Validate(log); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPostgresPool(ctx, cfg.PostgresDSN, db.PoolOptions{
		MaxConns: int32(cfg.DBMaxConns),
		MinConns: int32(cfg.DBMinConns),
	}, log)
	if err != nil {
		log.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	rdb, err := db.NewRedisClient(ctx, cfg.RedisURL, log)
	if err != nil {
		log.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer rdb.Close()

	// Repos
	campaignRepo := repositories.NewCampaignRepo(pool)
	sessionRepo := repositories.NewSessionRepo(pool)
	recordRepo := repositories.NewRecordRepo(pool)
	auditRepo := repositories.NewAuditRepo(pool, log)

	// Services
	backend := services.NewBackendClient(cfg.BackendURL, cfg.BackendAPIKey, cfg.BackendTimeout, log)
	campaignService := services.NewCampaignService(
		campaignRepo,
		services.NewSessionRegistry(sessionRepo, log),
		services.NewLedger(recordRepo, log),
		backend,
		services.NewRollbackController(auditRepo, log),
		distribution.NewPlanner(time.Now().UnixNano()),
		quota.NewRedisQuota(rdb, log),
		auditRepo,
		events.NewRedisPublisher(rdb, log),
		services.Pacing{
			DelayMin:            cfg.SendDelayMin,
			DelayMax:            cfg.SendDelayMax,
			MaxPerDayPerSession: cfg.MaxPerDayPerSession,
		},
		log,
	)

	log.Info("worker started",
		zap.Duration("interval", cfg.SchedulerInterval),
		zap.Int("concurrency", cfg.SchedulerConcurrency),
	)

	ticker := time.NewTicker(cfg.SchedulerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			startDueCampaigns(ctx, campaignService, cfg.SchedulerConcurrency, log)
		case <-ctx.Done():
			log.Info("shutting down worker")
			return
		}
	}
}

// startDueCampaigns starts every scheduled campaign whose time has come. A
// campaign that cannot start stays scheduled and is retried on the next tick.
func startDueCampaigns(ctx context.Context, svc *services.CampaignService, concurrency int, log *zap.Logger) {
	due, err := svc.DueScheduled(ctx, dueBatchSize)
	if err != nil {
		log.Error("failed to list due campaigns", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(concurrency, 1))
	for _, c := range due {
		g.Go(func() error {
			res, err := svc.Start(gctx, c.ID, c.UserID)
			switch {
			case err == nil:
				log.Info("scheduled campaign started",
					zap.String("campaign_id", c.ID.String()),
					zap.Int("sessions", res.TotalSessions),
				)
			case errors.Is(err, services.ErrSessionAvailability), errors.Is(err, services.ErrInvalidStateTransition):
				log.Warn("scheduled campaign not started", zap.String("campaign_id", c.ID.String()), zap.Error(err))
			default:
				log.Error("failed to start scheduled campaign", zap.String("campaign_id", c.ID.String()), zap.Error(err))
			}
			// One campaign's failure must not cancel the others.
			return nil
		})
	}
	_ = g.Wait()
}
