package ports

import (
	"context"

	"github.com/layer-3/anchor/core"
)

// EventPublisher publishes transaction lifecycle events to other services
type EventPublisher interface {
	PublishStatusChange(ctx context.Context, change core.StatusChange) error
}
