package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/admin/controller"
	"github.com/mybudgetplus/mybudget/internal/admin/dto"
	"github.com/mybudgetplus/mybudget/internal/auth"
	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/httpmw"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/user/models"
)

type Handlers struct {
	controller *controller.Controller
	logger     *logger.Logger
}

// RegisterRoutes mounts /api/v1/admin behind requireAuth and the admin role.
func RegisterRoutes(router gin.IRouter, ctrl *controller.Controller, requireAuth gin.HandlerFunc, log *logger.Logger) {
	h := &Handlers{
		controller: ctrl,
		logger:     log.WithFields(zap.String("component", "admin-handlers")),
	}
	api := router.Group("/api/v1/admin", requireAuth, auth.RequireRole(models.RoleAdmin))
	api.GET("/users", h.httpListUsers)
	api.PATCH("/users/:id/blocked", h.httpSetBlocked)
	api.GET("/stats", h.httpStats)
}

func (h *Handlers) httpListUsers(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		httpmw.RespondError(c, h.logger, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		httpmw.RespondError(c, h.logger, err)
		return
	}
	resp, err := h.controller.ListUsers(c.Request.Context(), c.Query("search"), limit, offset)
	if err != nil {
		httpmw.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpSetBlocked(c *gin.Context) {
	var body dto.SetBlockedRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		httpmw.RespondError(c, h.logger, apperrors.BadRequest("invalid payload"))
		return
	}
	actor, _ := auth.CurrentUser(c)
	resp, err := h.controller.SetBlocked(c.Request.Context(), actor.ID, c.Param("id"), body)
	if err != nil {
		httpmw.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpStats(c *gin.Context) {
	resp, err := h.controller.Stats(c.Request.Context())
	if err != nil {
		httpmw.RespondError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationError(key, "must be an integer")
	}
	return n, nil
}
