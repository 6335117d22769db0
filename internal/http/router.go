package http

import (
	"time"

	"github.com/anassewp/telegram-backend/internal/config"
	"github.com/anassewp/telegram-backend/internal/http/handlers"
	"github.com/anassewp/telegram-backend/internal/middleware"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Handlers struct {
	Campaign *handlers.CampaignHandler
	Transfer *handlers.TransferHandler
	Session  *handlers.SessionHandler
	Group    *handlers.GroupHandler
}

func SetupRouter(app *fiber.App, cfg *config.Config, log *zap.Logger, rdb *redis.Client, h Handlers) {
	// Global middleware
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
	}))
	app.Use(middleware.RequestIDMiddleware())
	app.Use(middleware.LoggerMiddleware(log))

	// Health check
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api/v1",
		middleware.AuthMiddleware(cfg.JWTSecret, log),
		middleware.RateLimitMiddleware(rdb, cfg.RateLimitPerMin, time.Minute, log),
	)

	// Sessions
	api.Get("/sessions", h.Session.ListSessions)

	// Campaigns
	api.Post("/campaigns", h.Campaign.CreateCampaign)
	api.Get("/campaigns", h.Campaign.ListCampaigns)
	api.Get("/campaigns/:id", h.Campaign.GetCampaign)
	api.Get("/campaigns/:id/records", h.Campaign.ListRecords)
	api.Get("/campaigns/:id/history", h.Campaign.ListHistory)
	api.Post("/campaigns/:id/schedule", h.Campaign.ScheduleCampaign)
	api.Post("/campaigns/:id/start", h.Campaign.StartCampaign)
	api.Post("/campaigns/:id/pause", h.Campaign.PauseCampaign)
	api.Post("/campaigns/:id/resume", h.Campaign.ResumeCampaign)
	api.Post("/campaigns/:id/cancel", h.Campaign.CancelCampaign)
	api.Post("/campaigns/:id/finish", h.Campaign.FinishCampaign)
	api.Post("/campaigns/:id/send", h.Campaign.SendBatch)

	// Member transfers
	api.Post("/transfers", h.Transfer.TransferMembers)
	api.Post("/transfers/batch", h.Transfer.TransferMembersBatch)

	// Groups
	api.Post("/groups/join", h.Group.JoinGroup)
	api.Get("/groups/search", h.Group.SearchGroups)
}
