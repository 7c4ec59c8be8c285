package webserver

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func attachRoutes(r *gin.Engine, cfg Config, svc Service, limiter *RateLimiter) {
	corsCfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "X-Operator"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 0 || (len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*") {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
		corsCfg.AllowCredentials = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	h := Investigations{svc: svc}
	v1 := r.Group("/v1")
	{
		v1.GET("/agents", h.Agents)
		v1.POST("/investigations", RateLimitMiddleware(limiter), h.Create)
		v1.GET("/investigations", h.List)
		v1.GET("/investigations/:id", h.Status)
		v1.GET("/investigations/:id/report", h.Report)
		v1.GET("/investigations/:id/traces", h.Traces)
		v1.DELETE("/investigations/:id", h.Cancel)
		v1.DELETE("/investigations/:id/data", h.Purge)
	}
}
