package engine

import (
	"context"

	"github.com/crowsnest-systems/crowsnest/internal/models"
)

// EventSource supplies normalized events to the scan cycle. The core
// never scrapes logs or parses transport itself; adapters do.
type EventSource interface {
	NextBatch(ctx context.Context) ([]models.SecurityEvent, error)
}

// ChannelSource adapts a push-style producer to the pull model: events
// written to In are drained on each scan cycle.
type ChannelSource struct {
	In chan models.SecurityEvent
}

// NewChannelSource creates a channel-backed source with the given
// buffer capacity.
func NewChannelSource(capacity int) *ChannelSource {
	return &ChannelSource{In: make(chan models.SecurityEvent, capacity)}
}

// Push offers an event, dropping it if the buffer is full so a burst
// never blocks the producer.
func (s *ChannelSource) Push(ev models.SecurityEvent) bool {
	select {
	case s.In <- ev:
		return true
	default:
		return false
	}
}

// NextBatch drains everything currently buffered without blocking.
func (s *ChannelSource) NextBatch(ctx context.Context) ([]models.SecurityEvent, error) {
	var batch []models.SecurityEvent
	for {
		select {
		case ev := <-s.In:
			batch = append(batch, ev)
		case <-ctx.Done():
			return batch, ctx.Err()
		default:
			return batch, nil
		}
	}
}
