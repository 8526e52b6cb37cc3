package bus

import (
	"fmt"

	"github.com/openprocure/harrier/internal/domain"
)

// New builds the event bus named by the configuration. Single-node
// deployments run on the in-process channel bus; multi-node deployments
// need NATS so wake notifications cross process boundaries.
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel":
		return NewChannelBus(cfg.ChannelBufferSize), nil
	case "nats":
		return NewNATSBus(cfg)
	}
	return nil, fmt.Errorf("unsupported event bus type: %q", cfg.Type)
}
