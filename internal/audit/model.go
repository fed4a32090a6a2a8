// Package audit keeps a hash-chained, append-only trail of clinical
// actions: who touched which appointment, referral or report, and when.
package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"

	"github.com/meridian-health/platform/internal/shared/types"
)

// Entry is one immutable audit record. Hash covers the entry's own
// fields plus PrevHash, chaining each entry to its predecessor.
type Entry struct {
	ID        types.ID  `json:"id"`
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Hash      string    `json:"hash"`
	PrevHash  string    `json:"prev_hash,omitempty"`

	ActorID   types.ID `json:"actor_id"`
	ActorRole string   `json:"actor_role,omitempty"`

	Action       string         `json:"action"`
	ResourceType string         `json:"resource_type"`
	ResourceID   *types.ID      `json:"resource_id,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// NewEntry creates an entry and seals it with its hash
func NewEntry(actorID types.ID, actorRole, action, resourceType string, resourceID *types.ID, details map[string]any, prevHash string) *Entry {
	entry := &Entry{
		ID: types.NewID(),
		// Microsecond precision keeps the hash stable across storage
		// round-trips.
		Timestamp:    time.Now().UTC().Truncate(time.Microsecond),
		PrevHash:     prevHash,
		ActorID:      actorID,
		ActorRole:    actorRole,
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	entry.Hash = entry.ComputeHash()
	return entry
}

// ComputeHash returns the SHA-256 over the entry's canonical form
func (e *Entry) ComputeHash() string {
	data := map[string]any{
		"id":            e.ID,
		"timestamp":     e.Timestamp.UTC().Format(time.RFC3339Nano),
		"prev_hash":     e.PrevHash,
		"actor_id":      e.ActorID,
		"actor_role":    e.ActorRole,
		"action":        e.Action,
		"resource_type": e.ResourceType,
	}
	if e.ResourceID != nil {
		data["resource_id"] = e.ResourceID
	}
	if len(e.Details) > 0 {
		data["details"] = e.Details
	}

	canonical, _ := canonicalJSON(data)
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// Verify reports whether the stored hash matches the entry's content
func (e *Entry) Verify() bool {
	return e.Hash == e.ComputeHash()
}

// VerifyChain walks entries in sequence order and reports the first
// broken link, or -1 when the chain is intact.
func VerifyChain(entries []Entry) int {
	prevHash := ""
	for i, entry := range entries {
		if !entry.Verify() || entry.PrevHash != prevHash {
			return i
		}
		prevHash = entry.Hash
	}
	return -1
}

// ListFilter narrows an audit listing
type ListFilter struct {
	ActorID      *types.ID
	Action       string
	ResourceType string
	ResourceID   *types.ID
	From         *time.Time
	To           *time.Time
	Limit        int
}

// canonicalJSON renders v with sorted map keys so the hash is stable
// regardless of map iteration order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	var parsed any
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, err
	}

	return canonicalMarshal(parsed)
}

func canonicalMarshal(v any) ([]byte, error) {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		var buf bytes.Buffer
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			keyBytes, _ := json.Marshal(k)
			buf.Write(keyBytes)
			buf.WriteByte(':')
			valBytes, err := canonicalMarshal(val[k])
			if err != nil {
				return nil, err
			}
			buf.Write(valBytes)
		}
		buf.WriteByte('}')
		return buf.Bytes(), nil

	case []any:
		var buf bytes.Buffer
		buf.WriteByte('[')
		for i, item := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			itemBytes, err := canonicalMarshal(item)
			if err != nil {
				return nil, err
			}
			buf.Write(itemBytes)
		}
		buf.WriteByte(']')
		return buf.Bytes(), nil

	default:
		return json.Marshal(val)
	}
}
