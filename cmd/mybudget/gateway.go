package main

import (
	"context"

	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	gateways "github.com/mybudgetplus/mybudget/internal/gateway/websocket"
	"github.com/mybudgetplus/mybudget/internal/settings/controller"
	settingshandlers "github.com/mybudgetplus/mybudget/internal/settings/handlers"
)

// provideGateway builds the websocket gateway, registers the settings actions
// and forwards user events to connected sockets. The hub is not started.
func provideGateway(
	ctx context.Context,
	cfg *config.Config,
	log *logger.Logger,
	eventBus bus.EventBus,
	settingsCtrl *controller.Controller,
) (*gateways.Gateway, *gateways.UserEventBroadcaster, error) {
	gateway := gateways.Provide(cfg, log)
	settingshandlers.RegisterWSHandlers(gateway.Dispatcher, settingsCtrl, log)

	broadcaster, err := gateways.RegisterUserNotifications(ctx, eventBus, gateway.Hub, log)
	if err != nil {
		return nil, nil, err
	}
	return gateway, broadcaster, nil
}
