package main

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/httpmw"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
)

const serverName = "mybudget-api"

// corsMiddleware allows the configured browser origins; "*" allows any.
func corsMiddleware(cfg config.ServerConfig) gin.HandlerFunc {
	corsCfg := cors.Config{
		AllowMethods:    []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:    []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowWebSockets: true,
		MaxAge:          12 * time.Hour,
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			corsCfg.AllowAllOrigins = true
			return cors.New(corsCfg)
		}
	}
	corsCfg.AllowOrigins = cfg.AllowedOrigins
	corsCfg.AllowCredentials = true
	return cors.New(corsCfg)
}

// requestMiddleware tags, traces and logs every request, in that order.
func requestMiddleware(log *logger.Logger) []gin.HandlerFunc {
	return []gin.HandlerFunc{
		httpmw.RequestID(),
		httpmw.OtelTracing(serverName),
		httpmw.RequestLogger(log, serverName),
	}
}
