// Package handlers exposes the settings controller over HTTP and the
// websocket gateway.
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/auth"
	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/httpmw"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/settings/controller"
	"github.com/mybudgetplus/mybudget/internal/settings/dto"
)

// multipartOverhead is allowed on top of the picture size for form boundaries and headers.
const multipartOverhead = 64 * 1024

type Handlers struct {
	controller  *controller.Controller
	uploadLimit int64
	logger      *logger.Logger
}

// RegisterRoutes mounts the settings API under /api/v1. requireAuth must
// store the caller for auth.CurrentUser.
func RegisterRoutes(router gin.IRouter, ctrl *controller.Controller, requireAuth gin.HandlerFunc, uploadLimit int64, log *logger.Logger) {
	h := &Handlers{
		controller:  ctrl,
		uploadLimit: uploadLimit,
		logger:      log.WithFields(zap.String("component", "settings-handlers")),
	}
	api := router.Group("/api/v1", requireAuth)
	api.GET("/user", h.httpGetUser)

	settings := api.Group("/settings")
	settings.GET("/preferences", h.httpGetPreferences)
	settings.PATCH("/preferences", h.httpUpdatePreferences)
	settings.PUT("/preferences", h.httpUpdatePreferences)
	settings.POST("/change-password", h.httpChangePassword)
	settings.PATCH("/profile", h.httpUpdateProfile)
	settings.DELETE("/account", h.httpDeleteAccount)
	settings.GET("/export", h.httpExport)
	settings.POST("/profile-picture", h.httpUploadProfilePicture)
}

func (h *Handlers) httpGetUser(c *gin.Context) {
	userID := callerID(c)
	resp, err := h.controller.GetUser(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpGetPreferences(c *gin.Context) {
	resp, err := h.controller.GetPreferences(c.Request.Context(), callerID(c))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpUpdatePreferences(c *gin.Context) {
	var body map[string]json.RawMessage
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperrors.BadRequest("request body must be a JSON object"))
		return
	}
	resp, err := h.controller.UpdatePreferences(c.Request.Context(), callerID(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpChangePassword(c *gin.Context) {
	var body dto.ChangePasswordRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperrors.BadRequest("invalid payload"))
		return
	}
	resp, err := h.controller.ChangePassword(c.Request.Context(), callerID(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpUpdateProfile(c *gin.Context) {
	var body dto.UpdateProfileRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperrors.BadRequest("invalid payload"))
		return
	}
	resp, err := h.controller.UpdateProfile(c.Request.Context(), callerID(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpDeleteAccount(c *gin.Context) {
	var body dto.DeleteAccountRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, apperrors.BadRequest("invalid payload"))
		return
	}
	resp, err := h.controller.DeleteAccount(c.Request.Context(), callerID(c), body)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) httpExport(c *gin.Context) {
	userID := callerID(c)
	resp, err := h.controller.Export(c.Request.Context(), userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	filename := fmt.Sprintf("mybudget-export-%s.json", time.Now().UTC().Format("2006-01-02"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.IndentedJSON(http.StatusOK, resp)
}

func (h *Handlers) httpUploadProfilePicture(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.uploadLimit+multipartOverhead)

	file, err := c.FormFile("profilePicture")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(c, apperrors.ValidationError("profilePicture", fmt.Sprintf("file must not exceed %d bytes", h.uploadLimit)))
			return
		}
		h.fail(c, apperrors.BadRequest("no file provided"))
		return
	}
	resp, err := h.controller.UploadProfilePicture(c.Request.Context(), callerID(c), file)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handlers) fail(c *gin.Context, err error) {
	httpmw.RespondError(c, h.logger, err)
}

// callerID is only called behind requireAuth, which guarantees a user.
func callerID(c *gin.Context) string {
	user, _ := auth.CurrentUser(c)
	if user == nil {
		return ""
	}
	return user.ID
}
