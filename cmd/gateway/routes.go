package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"

	"affiliate-system/config"
	"affiliate-system/internal/attribution"
	"affiliate-system/internal/gateway/handlers"
	"affiliate-system/internal/gateway/middleware"
	affiliates "affiliate-system/internal/services/affiliates/handler"
	"affiliate-system/internal/services/affiliates/store"
)

type dependencies struct {
	store store.Store
	db    *gorm.DB
	redis *redis.Client
}

func main() {
	cfg := config.LoadConfig()
	if cfg.Server.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	st, db, err := store.Open(cfg.DB)
	if err != nil {
		log.Fatalf("Failed to open affiliate store: %v", err)
	}

	deps := dependencies{store: st, db: db}
	if db != nil {
		deps.redis = config.NewRedisClient(cfg.Redis)
		defer deps.redis.Close()
	}

	r := setupRouter(cfg, deps)

	port := ":" + cfg.Server.HTTPPort
	log.Printf("Starting server on port %s", port)
	if err := r.Run(port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

func setupRouter(cfg config.Config, deps dependencies) *gin.Engine {
	svc := affiliates.NewAffiliateHandler(deps.store, affiliates.NewRedisCache(deps.redis), cfg.Program, cfg.Server.AppURL)
	cookies := attribution.NewManager(cfg.Server.IsProduction(), cfg.Program.AttributionWindow, cfg.Program.SessionTTL)
	affiliateHandler := handlers.NewAffiliateHTTPHandler(svc, cookies, cfg.Server.AllowedRedirectHosts)

	r := gin.New()

	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(middleware.CORS([]string{cfg.Server.AppURL}))
	r.Use(middleware.ReferralCapture(svc, cookies))

	// --- Public API Group ---
	public := r.Group("/api/v1/affiliates")
	{
		public.GET("/track/:code", affiliateHandler.TrackClick)
		public.POST("/track/:code", middleware.WebhookSecret(cfg.Server.WebhookSecret), affiliateHandler.TrackConversion)
		public.POST("/conversions", middleware.RateLimit("30-M", middleware.IPKey("conversions")), affiliateHandler.TrackAttributedConversion)
		public.POST("/recurring", middleware.WebhookSecret(cfg.Server.WebhookSecret), affiliateHandler.TrackRecurring)
	}

	// --- Protected API Group ---
	protected := r.Group("/api/v1/affiliates")
	protected.Use(middleware.JWTAuth([]byte(cfg.Auth.JWTSecret)))
	{
		protected.POST("/apply", middleware.RateLimit("5-H", middleware.UserKey("apply")), affiliateHandler.Apply)
		protected.GET("/apply", affiliateHandler.GetStatus)
		protected.GET("/dashboard", middleware.RateLimit("60-M", middleware.UserKey("dashboard")), affiliateHandler.Dashboard)
		protected.GET("/payouts", affiliateHandler.Payouts)
	}

	r.GET("/health", healthCheckHandler(deps))

	return r
}

func healthCheckHandler(deps dependencies) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		unavailableServices := []string{}
		if deps.db != nil {
			sqlDB, err := deps.db.DB()
			if err != nil || sqlDB.PingContext(ctx) != nil {
				unavailableServices = append(unavailableServices, "database")
			}
		}
		if deps.redis != nil {
			if err := deps.redis.Ping(ctx).Err(); err != nil {
				unavailableServices = append(unavailableServices, "redis")
			}
		}

		status := "healthy"
		httpStatus := http.StatusOK
		if len(unavailableServices) > 0 {
			status = "degraded"
			httpStatus = http.StatusServiceUnavailable
		}

		c.JSON(httpStatus, gin.H{
			"status":               status,
			"message":              "Server is running",
			"unavailable_services": unavailableServices,
			"timestamp":            time.Now(),
		})
	}
}
