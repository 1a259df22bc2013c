package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Backend names accepted by Open
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendNATS   = "nats"
)

// Open returns the Bus for backend. url is ignored for the memory backend.
func Open(ctx context.Context, backend, url string, logger *zap.Logger) (Bus, error) {
	switch backend {
	case "", BackendMemory:
		return NewHub(), nil
	case BackendRedis:
		return NewRedisBus(ctx, url, logger)
	case BackendNATS:
		return NewNATSBus(url, logger)
	default:
		return nil, fmt.Errorf("unknown notify backend %q", backend)
	}
}
