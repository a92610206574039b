package websocket

import (
	"context"

	"go.uber.org/zap"

	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
	ws "github.com/mybudgetplus/mybudget/pkg/websocket"
)

// UserEventBroadcaster forwards user-scoped bus events to that user's sockets.
// The notification action is the event type, the payload the event data.
type UserEventBroadcaster struct {
	hub    *Hub
	sub    bus.Subscription
	logger *logger.Logger
}

func RegisterUserNotifications(ctx context.Context, eventBus bus.EventBus, hub *Hub, log *logger.Logger) (*UserEventBroadcaster, error) {
	b := &UserEventBroadcaster{
		hub:    hub,
		logger: log.WithFields(zap.String("component", "ws-user-broadcaster")),
	}
	sub, err := eventBus.Subscribe(events.UserSubjects, b.handle)
	if err != nil {
		return nil, err
	}
	b.sub = sub

	go func() {
		<-ctx.Done()
		b.Close()
	}()
	return b, nil
}

func (b *UserEventBroadcaster) handle(_ context.Context, event *bus.Event) error {
	userID := event.String("user_id")
	if userID == "" {
		return nil
	}
	msg, err := ws.NewNotification(event.Type, event.Data)
	if err != nil {
		b.logger.Error("failed to build websocket notification", zap.String("event_type", event.Type), zap.Error(err))
		return nil
	}
	sent := b.hub.BroadcastToUser(userID, msg)
	b.logger.Debug("forwarded user event",
		zap.String("event_type", event.Type),
		zap.String("user_id", userID),
		zap.Int("clients", sent))

	if event.Type == events.AccountDeleted {
		b.hub.DisconnectUser(userID)
	}
	return nil
}

func (b *UserEventBroadcaster) Close() {
	if b.sub != nil && b.sub.IsValid() {
		_ = b.sub.Unsubscribe()
	}
}
