package websocket

import (
	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
)

// Provide creates the websocket gateway.
func Provide(cfg *config.Config, log *logger.Logger) *Gateway {
	return NewGateway(cfg.Server.AllowedOrigins, log)
}
