package main

import (
	"log"
	"net/http"

	"petgroom-gateway/internal/api"
	"petgroom-gateway/internal/autoreply"
	appcache "petgroom-gateway/internal/cache"
	"petgroom-gateway/internal/config"
	"petgroom-gateway/internal/database"
	"petgroom-gateway/internal/line"
	"petgroom-gateway/internal/notify"
	"petgroom-gateway/internal/resolver"
	"petgroom-gateway/internal/stats"
	"petgroom-gateway/internal/webhook"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func main() {
	cfg := config.LoadConfig()
	db := database.InitGorm(cfg)

	var quotaCache appcache.QuotaCache = appcache.Noop{}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		quotaCache = appcache.NewRedisCache(rdb)
		log.Printf("Quota cache enabled (redis %s)", cfg.RedisAddr)
	}

	lineClient := line.NewClient(cfg.LineAPIBase)
	tracker := stats.NewTracker(db)
	shopResolver := resolver.New(db)
	matcher := autoreply.NewMatcher(db)
	dispatcher := notify.NewDispatcher(db, lineClient, tracker)

	webhookHandler := webhook.NewHandler(db, lineClient, shopResolver, matcher, tracker)
	notificationHandler := api.NewNotificationHandler(db, dispatcher)
	quotaHandler := api.NewQuotaHandler(db, lineClient, tracker, quotaCache, cfg.QuotaCacheTTL)

	r := newRouter(webhookHandler, notificationHandler, quotaHandler)

	log.Printf("Server starting on port %s", cfg.Port)
	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatalf("Failed to run server: %v", err)
	}
}

func newRouter(webhookHandler *webhook.Handler, notificationHandler *api.NotificationHandler, quotaHandler *api.QuotaHandler) *gin.Engine {
	r := gin.Default()
	r.Use(cors.Default())

	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	// Webhook Route
	r.POST("/webhook", webhookHandler.HandleWebhook)

	// Admin API Routes
	apiGroup := r.Group("/api")
	{
		apiGroup.GET("/quota", quotaHandler.GetUsage)
		apiGroup.POST("/quota", quotaHandler.GetUsage)
		apiGroup.GET("/quota/official", quotaHandler.GetOfficialQuota)
		apiGroup.POST("/quota/official", quotaHandler.GetOfficialQuota)

		apiGroup.POST("/notifications/complete", notificationHandler.SendCompletion)
		apiGroup.POST("/notifications/complete/share", notificationHandler.SendCompletionShare)
		apiGroup.POST("/notifications/progress", notificationHandler.SendProgressReport)

		apiGroup.POST("/appointments/decline", notificationHandler.Decline)
		apiGroup.POST("/appointments/status", notificationHandler.UpdateStatus)
	}

	return r
}
