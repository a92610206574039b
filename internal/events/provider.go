package events

import (
	"fmt"
	"strings"

	"github.com/mybudgetplus/mybudget/internal/common/config"
	"github.com/mybudgetplus/mybudget/internal/common/logger"
	"github.com/mybudgetplus/mybudget/internal/events/bus"
)

// Provide returns the NATS bus when nats.url is set and the in-memory bus otherwise.
func Provide(cfg *config.Config, log *logger.Logger) (bus.EventBus, func() error, error) {
	if strings.TrimSpace(cfg.NATS.URL) != "" {
		natsBus, err := bus.NewNATSEventBus(cfg.NATS, log)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize NATS event bus: %w", err)
		}
		return natsBus, func() error { natsBus.Close(); return nil }, nil
	}

	memBus := bus.NewMemoryEventBus(log)
	return memBus, func() error { memBus.Close(); return nil }, nil
}
