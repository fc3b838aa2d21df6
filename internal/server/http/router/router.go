package router

import (
	"log/slog"
	"net/http"
	"slices"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/fx"

	"github.com/polkiloo/dispatchdesk/internal/config"
	"github.com/polkiloo/dispatchdesk/internal/server/http/handlers"
	"github.com/polkiloo/dispatchdesk/internal/server/http/middleware"
)

const maxBodyBytes = 1 << 20

// Params lists the router dependencies.
type Params struct {
	fx.In

	Facade handlers.DispatchFacade
	Feed   handlers.LiveFeed
	Config *config.Config
	Logger *slog.Logger
}

// Setup configures gin router with handlers and middleware.
func Setup(p Params) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(middleware.RequestLogger(p.Logger))
	engine.Use(cors.New(corsConfig(p.Config.CORSOrigins)))
	engine.Use(middleware.DecompressRequest(maxBodyBytes))
	engine.Use(gzip.Gzip(gzip.DefaultCompression))

	orders := handlers.NewOrderHandler(p.Facade)
	queue := handlers.NewQueueHandler(p.Facade)
	ledgers := handlers.NewLedgerHandler(p.Facade)
	payouts := handlers.NewPayoutHandler(p.Facade)
	reference := handlers.NewReferenceHandler(p.Facade, p.Facade)
	live := handlers.NewLiveHandler(p.Feed)

	engine.GET("/health", reference.Health)

	api := engine.Group("/api")
	api.Use(middleware.AuthRequired(p.Facade))

	api.POST("/orders", orders.Create)
	api.GET("/orders", queue.List)
	api.GET("/orders/:id", orders.Get)
	api.GET("/orders/:id/audit", orders.Audit)
	api.GET("/orders/:id/eligibility", orders.Eligibility)
	api.POST("/orders/:id/claim", orders.Claim)
	api.POST("/orders/:id/start", orders.Start)
	api.POST("/orders/:id/complete", orders.Complete)
	api.POST("/orders/:id/refuse", orders.Refuse)
	api.POST("/orders/:id/confirm", orders.Confirm)
	api.POST("/orders/:id/cancel", orders.Cancel)
	api.POST("/orders/:id/reopen", orders.Reopen)
	api.POST("/orders/:id/transfer", orders.Transfer)
	api.POST("/orders/:id/assign", orders.Assign)
	api.POST("/orders/:id/unassign", orders.Unassign)
	api.POST("/orders/:id/dispute", orders.Dispute)
	api.GET("/stats", queue.Stats)
	api.POST("/expiry/run", orders.Expire)

	api.POST("/ledgers", ledgers.Open)
	api.GET("/ledgers/:workerID", ledgers.Summary)
	api.GET("/ledgers/:workerID/transactions", ledgers.History)
	api.POST("/ledgers/:workerID/payments", ledgers.Payment)
	api.POST("/ledgers/:workerID/adjustments", ledgers.Adjust)
	api.POST("/ledgers/:workerID/unblock", ledgers.Unblock)

	api.POST("/payouts", payouts.Request)
	api.GET("/payouts", payouts.List)
	api.POST("/payouts/:id/decision", payouts.Decide)
	api.POST("/payouts/:id/paid", payouts.Paid)

	api.GET("/reference/service-types", reference.ServiceTypes)
	api.GET("/reference/districts", reference.Districts)
	api.GET("/reference/dispatchers", reference.Dispatchers)

	api.GET("/ws", live.Serve)

	return engine
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.DefaultConfig()
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Content-Encoding", "Authorization"}
	return cfg
}
