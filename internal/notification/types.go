// Package notification delivers best-effort messages to patients and
// doctors. Send failures are logged and never propagate to the caller.
package notification

import (
	"time"

	"github.com/meridian-health/platform/internal/shared/types"
)

// Channel is the delivery channel
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

// Status is the delivery state of a message
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Message is one notification to deliver
type Message struct {
	ID          types.ID `json:"id"`
	Channel     Channel  `json:"channel"`
	RecipientID types.ID `json:"recipient_id"`
	Email       string   `json:"email,omitempty"`
	Phone       string   `json:"phone,omitempty"`
	Subject     string   `json:"subject"`
	Body        string   `json:"body"`
	Status      Status   `json:"status"`

	CreatedAt time.Time  `json:"created_at"`
	SentAt    *time.Time `json:"sent_at,omitempty"`
	LastError string     `json:"last_error,omitempty"`
}
