package app

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/imc400/shopify-market-place/internal/api/handlers"
	"github.com/imc400/shopify-market-place/internal/api/middleware"
	"github.com/imc400/shopify-market-place/internal/config"
	"github.com/imc400/shopify-market-place/internal/pkg/logger"
)

// defaultAllowedOrigins applies when server.allowed_origins is empty.
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:8081",
}

type routerDeps struct {
	metrics prometheus.Gatherer
	users   middleware.UserChecker
}

func newRouter(cfg *config.Config, server *handlers.Server, deps routerDeps) *gin.Engine {
	router := gin.New()
	router.Use(
		gin.Recovery(),
		cors.New(buildCORSConfig(cfg)),
		middleware.RequestID(),
		middleware.AccessLog(),
		middleware.ErrorHandler(),
	)

	router.GET("/health/live", server.GetLiveness)
	router.GET("/health/ready", server.GetReadiness)
	if deps.metrics != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.metrics, promhttp.HandlerOpts{})))
	}

	v1 := router.Group("/api/v1")
	v1.POST("/webhooks/shopify", server.ReceiveShopifyWebhook)

	authed := v1.Group("", middleware.JWTAuth([]byte(cfg.Security.JWTSecret), deps.users))
	{
		authed.GET("/webhooks/logs/:storeId", server.ListWebhookLogs)
		authed.POST("/webhooks/retry/:eventId", server.RetryWebhook)
		authed.POST("/webhooks/replay-failed", server.ReplayFailedWebhooks)

		authed.POST("/notifications/send", server.SendNotification)
		authed.POST("/notifications/topics/:topic/send", server.SendTopicNotification)
		authed.GET("/notifications/history", server.GetNotificationHistory)
		authed.PUT("/notifications/:notificationId/clicked", server.MarkNotificationClicked)
		authed.POST("/notifications/promotions", server.CreatePromotion)
		authed.GET("/notifications/promotions", server.ListPromotions)

		authed.POST("/stores/:storeId/subscription", server.SubscribeToStore)
		authed.DELETE("/stores/:storeId/subscription", server.UnsubscribeFromStore)

		authed.GET("/me/subscriptions", server.ListSubscriptions)
		authed.PUT("/me/device-token", server.SetDeviceToken)
		authed.POST("/me/topics/:topic", server.SubscribeToTopic)
		authed.DELETE("/me/topics/:topic", server.UnsubscribeFromTopic)

		levelHandler := gin.WrapH(logger.LevelHandler())
		authed.GET("/admin/log/level", levelHandler)
		authed.PUT("/admin/log/level", levelHandler)
	}
	return router
}

// buildCORSConfig turns server settings into a cors.Config. A "*" entry
// allows every origin and disables credentials.
func buildCORSConfig(cfg *config.Config) cors.Config {
	c := cors.Config{
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", middleware.RequestIDHeader},
		ExposeHeaders: []string{middleware.RequestIDHeader},
		MaxAge:        12 * time.Hour,
	}

	origins := make([]string, 0, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		if o == "*" {
			c.AllowAllOrigins = true
			return c
		}
		origins = append(origins, o)
	}
	if len(origins) == 0 {
		origins = append(origins, defaultAllowedOrigins...)
	}
	c.AllowOrigins = origins
	c.AllowCredentials = cfg.Server.AllowCredentials
	return c
}
