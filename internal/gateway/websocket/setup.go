package websocket

import (
	"github.com/gin-gonic/gin"

	"github.com/mybudgetplus/mybudget/internal/common/logger"
	ws "github.com/mybudgetplus/mybudget/pkg/websocket"
)

// Gateway bundles the hub, the action dispatcher and the upgrade handler.
type Gateway struct {
	Hub        *Hub
	Dispatcher *ws.Dispatcher
	Handler    *Handler
}

func NewGateway(allowedOrigins []string, log *logger.Logger) *Gateway {
	dispatcher := ws.NewDispatcher()
	hub := NewHub(dispatcher, log)
	RegisterHealthHandler(dispatcher)
	return &Gateway{
		Hub:        hub,
		Dispatcher: dispatcher,
		Handler:    NewHandler(hub, allowedOrigins, log),
	}
}

// SetupRoutes mounts /ws behind the given middleware (normally auth.RequireAuth).
func (g *Gateway) SetupRoutes(router gin.IRouter, middleware ...gin.HandlerFunc) {
	handlers := append(append([]gin.HandlerFunc{}, middleware...), g.Handler.HandleConnection)
	router.GET("/ws", handlers...)
}
