package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"
	"github.com/google/uuid"
	"github.com/meridian-health/platform/internal/shared/errors"
	"github.com/meridian-health/platform/internal/shared/metrics"
	"github.com/meridian-health/platform/internal/shared/types"
)

const (
	// StreamName is the single stream holding the whole audit trail
	StreamName = "$audit"
	// EventType marks audit entries in the stream
	EventType = "AuditEntry"
)

// VerifyResult reports the outcome of a chain integrity check
type VerifyResult struct {
	Valid    bool   `json:"valid"`
	Checked  int    `json:"checked"`
	BrokenAt *int64 `json:"broken_at,omitempty"`
}

// Repository stores audit entries in KurrentDB. The store is inherently
// append-only, entries can never be modified or deleted after the fact.
type Repository struct {
	client *esdb.Client

	mu       sync.Mutex
	lastHash string
	sequence int64
}

// NewRepository creates an audit repository on top of an esdb client
func NewRepository(client *esdb.Client) *Repository {
	return &Repository{client: client}
}

// Initialize loads the chain head (last hash and sequence) from the stream
func (r *Repository) Initialize(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stream, err := r.client.ReadStream(ctx, StreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, 1)
	if err != nil {
		// A missing stream just means no entries yet
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			return nil
		}
		return errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	event, err := stream.Recv()
	if err != nil {
		return nil
	}

	if event.Event != nil && event.Event.EventType == EventType {
		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err == nil {
			r.lastHash = entry.Hash
			r.sequence = entry.Sequence
		}
	}

	return nil
}

// Append links the entry into the chain and writes it to the stream.
// Sequence, PrevHash and Hash are assigned here under the lock.
func (r *Repository) Append(ctx context.Context, entry *Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sequence++
	entry.Sequence = r.sequence
	entry.PrevHash = r.lastHash
	entry.Hash = entry.ComputeHash()

	data, err := json.Marshal(entry)
	if err != nil {
		return errors.Wrap(err, "failed to marshal audit entry")
	}

	eventData := esdb.EventData{
		EventID:     uuid.New(),
		EventType:   EventType,
		ContentType: esdb.ContentTypeJson,
		Data:        data,
		Metadata:    []byte(fmt.Sprintf(`{"sequence":%d,"hash":"%s"}`, entry.Sequence, entry.Hash)),
	}

	_, err = r.client.AppendToStream(ctx, StreamName, esdb.AppendToStreamOptions{}, eventData)
	if err != nil {
		// Roll back the in-memory head so the chain stays consistent
		r.sequence--
		entry.Sequence = 0
		entry.PrevHash = ""
		entry.Hash = ""
		return errors.Wrap(err, "failed to append audit entry")
	}

	r.lastHash = entry.Hash
	metrics.RecordAuditEntry()
	return nil
}

// List reads entries newest-first and applies the filter in memory.
// The trail for a single deployment is small enough that a projection
// is not worth the operational cost yet.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]*Entry, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	// Read extra events to account for filtering
	stream, err := r.client.ReadStream(ctx, StreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, uint64(limit)*10)
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			return []*Entry{}, nil
		}
		return nil, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	entries := make([]*Entry, 0, limit)
	for len(entries) < limit {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		if event.Event == nil || event.Event.EventType != EventType {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err != nil {
			continue
		}
		if !matches(&entry, filter) {
			continue
		}
		entries = append(entries, &entry)
	}

	return entries, nil
}

// GetByResource returns the trail for one resource, newest first
func (r *Repository) GetByResource(ctx context.Context, resourceType string, resourceID types.ID, limit int) ([]*Entry, error) {
	return r.List(ctx, ListFilter{
		ResourceType: resourceType,
		ResourceID:   &resourceID,
		Limit:        limit,
	})
}

// VerifyChain checks hash linkage over the most recent entries. It reads
// backwards, so each entry's PrevHash must equal the next-older hash.
func (r *Repository) VerifyChain(ctx context.Context, limit int) (*VerifyResult, error) {
	if limit <= 0 {
		limit = 1000
	}

	stream, err := r.client.ReadStream(ctx, StreamName, esdb.ReadStreamOptions{
		Direction: esdb.Backwards,
		From:      esdb.End{},
	}, uint64(limit))
	if err != nil {
		if esdbErr, ok := esdb.FromError(err); ok && esdbErr.Code() == esdb.ErrorCodeResourceNotFound {
			return &VerifyResult{Valid: true}, nil
		}
		return nil, errors.Wrap(err, "failed to read audit stream")
	}
	defer stream.Close()

	result := &VerifyResult{Valid: true}
	var newer *Entry

	for {
		event, err := stream.Recv()
		if err != nil {
			break
		}
		if event.Event == nil || event.Event.EventType != EventType {
			continue
		}

		var entry Entry
		if err := json.Unmarshal(event.Event.Data, &entry); err != nil {
			continue
		}

		result.Checked++

		if !entry.Verify() {
			seq := entry.Sequence
			result.Valid = false
			result.BrokenAt = &seq
			break
		}
		if newer != nil && newer.PrevHash != entry.Hash {
			seq := newer.Sequence
			result.Valid = false
			result.BrokenAt = &seq
			break
		}
		newer = &entry
	}

	return result, nil
}

func matches(entry *Entry, filter ListFilter) bool {
	if filter.ActorID != nil && entry.ActorID != *filter.ActorID {
		return false
	}
	if filter.Action != "" && entry.Action != filter.Action {
		return false
	}
	if filter.ResourceType != "" && entry.ResourceType != filter.ResourceType {
		return false
	}
	if filter.ResourceID != nil && (entry.ResourceID == nil || *entry.ResourceID != *filter.ResourceID) {
		return false
	}
	if filter.From != nil && entry.Timestamp.Before(*filter.From) {
		return false
	}
	if filter.To != nil && entry.Timestamp.After(*filter.To) {
		return false
	}
	return true
}
