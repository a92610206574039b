package websocket

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	gorillaws "github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/auth"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	ws "github.com/mybudgetplus/mybudget/pkg/websocket"
)

// Handler upgrades authenticated requests to websocket connections.
type Handler struct {
	hub      *Hub
	upgrader gorillaws.Upgrader
	logger   *logger.Logger
}

func NewHandler(hub *Hub, allowedOrigins []string, log *logger.Logger) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
		logger: log.WithFields(zap.String("component", "ws_handler")),
	}
}

// HandleConnection must sit behind auth.RequireAuth.
func (h *Handler) HandleConnection(c *gin.Context) {
	user, ok := auth.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Warn("Failed to upgrade connection", zap.Error(err))
		return
	}

	client := NewClient(uuid.New().String(), user.ID, conn, h.hub, h.logger)
	h.logger.Debug("WebSocket connection established",
		zap.String("client_id", client.ID),
		zap.String("user_id", user.ID),
		zap.String("remote_addr", c.Request.RemoteAddr))

	h.hub.Register(client)
	go client.WritePump()
	client.ReadPump(c.Request.Context())
}

// originChecker accepts any origin when the list contains "*"; requests
// without an Origin header (non-browser clients) are always accepted.
func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		set[o] = true
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || set["*"] || set[origin]
	}
}

func RegisterHealthHandler(d *ws.Dispatcher) {
	d.RegisterFunc(ws.ActionHealthCheck, func(_ context.Context, msg *ws.Message) (*ws.Message, error) {
		return ws.NewResponse(msg.ID, msg.Action, map[string]interface{}{
			"status":  "ok",
			"service": "mybudget",
		})
	})
}
