package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-health/platform/internal/shared/events"
	"github.com/meridian-health/platform/internal/shared/types"
)

// Subscriber turns domain events into audit entries
type Subscriber struct {
	repo *Repository
	bus  *events.Bus
}

// NewSubscriber creates a new audit subscriber
func NewSubscriber(repo *Repository, bus *events.Bus) *Subscriber {
	return &Subscriber{repo: repo, bus: bus}
}

// Start subscribes to every event family that must be audited
func (s *Subscriber) Start(ctx context.Context) error {
	patterns := []string{
		"appointment.*",
		"referral.*",
		"availability.*",
	}

	for _, pattern := range patterns {
		if err := s.bus.Subscribe(ctx, pattern, s.handleEvent); err != nil {
			return fmt.Errorf("failed to subscribe to %s: %w", pattern, err)
		}
	}

	return nil
}

func (s *Subscriber) handleEvent(ctx context.Context, event events.Event) error {
	entry := eventToEntry(event)
	if entry == nil {
		return nil
	}

	if err := s.repo.Append(ctx, entry); err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// eventToEntry maps a domain event onto an audit entry. The resource
// type is the event type's first segment; the resource ID is looked up
// in the payload under "<resource>_id", then "id".
func eventToEntry(event events.Event) *Entry {
	parts := strings.SplitN(event.Type, ".", 2)
	if len(parts) < 2 {
		return nil
	}
	resourceType := parts[0]

	var resourceID *types.ID
	for _, field := range []string{resourceType + "_id", "id"} {
		val, ok := event.Data[field]
		if !ok {
			continue
		}
		if str, ok := val.(string); ok && str != "" {
			id := types.ID(str)
			resourceID = &id
			break
		}
	}

	details := make(map[string]any, len(event.Data)+1)
	for k, v := range event.Data {
		details[k] = v
	}
	details["event_id"] = event.ID

	// Sequence, prev_hash and hash are assigned by the repository at
	// append time.
	return &Entry{
		ID:           types.NewID(),
		Timestamp:    event.Timestamp.UTC().Truncate(time.Microsecond),
		ActorID:      event.ActorID,
		ActorRole:    event.ActorRole,
		Action:       event.Type,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
}
