package handlers

import (
	"context"
	"encoding/json"

	"go.uber.org/zap"

	apperrors "github.com/mybudgetplus/mybudget/internal/common/errors"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/settings/controller"
	ws "github.com/mybudgetplus/mybudget/pkg/websocket"
)

type WSHandlers struct {
	controller *controller.Controller
	logger     *logger.Logger
}

// RegisterWSHandlers adds the settings actions to the gateway dispatcher.
func RegisterWSHandlers(d *ws.Dispatcher, ctrl *controller.Controller, log *logger.Logger) {
	h := &WSHandlers{
		controller: ctrl,
		logger:     log.WithFields(zap.String("component", "settings-ws-handlers")),
	}
	d.RegisterFunc(ws.ActionUserGet, h.wsGetUser)
	d.RegisterFunc(ws.ActionPreferencesGet, h.wsGetPreferences)
	d.RegisterFunc(ws.ActionPreferencesUpdate, h.wsUpdatePreferences)
}

func (h *WSHandlers) wsGetUser(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	userID, ok := ws.UserIDFrom(ctx)
	if !ok {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeUnauthorized, "authentication required", nil)
	}
	resp, err := h.controller.GetUser(ctx, userID)
	if err != nil {
		return h.wsError(ctx, msg, err)
	}
	return ws.NewResponse(msg.ID, msg.Action, resp)
}

func (h *WSHandlers) wsGetPreferences(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	userID, ok := ws.UserIDFrom(ctx)
	if !ok {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeUnauthorized, "authentication required", nil)
	}
	resp, err := h.controller.GetPreferences(ctx, userID)
	if err != nil {
		return h.wsError(ctx, msg, err)
	}
	return ws.NewResponse(msg.ID, msg.Action, resp)
}

// wsUpdatePreferences takes the same {category: {...}} object as the HTTP route.
func (h *WSHandlers) wsUpdatePreferences(ctx context.Context, msg *ws.Message) (*ws.Message, error) {
	userID, ok := ws.UserIDFrom(ctx)
	if !ok {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeUnauthorized, "authentication required", nil)
	}
	var body map[string]json.RawMessage
	if err := msg.ParsePayload(&body); err != nil || body == nil {
		return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeBadRequest, "payload must be a JSON object", nil)
	}
	resp, err := h.controller.UpdatePreferences(ctx, userID, body)
	if err != nil {
		return h.wsError(ctx, msg, err)
	}
	return ws.NewResponse(msg.ID, msg.Action, resp)
}

// wsError turns err into an error frame. Internal failures are logged and
// reported with a generic message.
func (h *WSHandlers) wsError(ctx context.Context, msg *ws.Message, err error) (*ws.Message, error) {
	if appErr, ok := apperrors.As(err); ok && appErr.Code != apperrors.ErrCodeInternalError {
		return ws.NewError(msg.ID, msg.Action, appErr.Code, appErr.Message, nil)
	}
	h.logger.WithContext(ctx).Error("websocket request failed",
		zap.String("action", msg.Action),
		zap.Error(err))
	return ws.NewError(msg.ID, msg.Action, ws.ErrorCodeInternalError, "internal server error", nil)
}
