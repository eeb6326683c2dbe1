package httpapi

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/triage-ai/backend/internal/config"
	"github.com/triage-ai/backend/internal/http/handlers"
	"github.com/triage-ai/backend/internal/http/middleware"
	"github.com/triage-ai/backend/internal/service"

	_ "github.com/triage-ai/backend/docs"
)

func Router(cfg config.Config, svc *service.TriageService, pinger handlers.Pinger, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Admin-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.Server.CORSAllowedOrigins == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.Server.CORSAllowedOrigins}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Service:   svc,
		Pinger:    pinger,
		Validator: validator.New(),
		Logger:    logger,
		AdminKey:  cfg.Server.AdminKey,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	{
		api.GET("/tickets", h.TicketsList)
		api.GET("/engineers", h.EngineersList)
		api.GET("/workload", h.Workload)
		api.GET("/analytics/summary", h.AnalyticsSummary)
		api.GET("/actions", h.ActionsList)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.Server.AdminKey))
	{
		admin.POST("/process", h.Process)
		admin.POST("/reassign", h.Reassign)
		admin.GET("/diagnostics", h.Diagnostics)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
