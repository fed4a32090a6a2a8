package notification

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/meridian-health/platform/internal/appointment"
	"github.com/meridian-health/platform/internal/directory"
	"github.com/meridian-health/platform/internal/shared/config"
	"github.com/meridian-health/platform/internal/shared/metrics"
	"github.com/meridian-health/platform/internal/shared/types"
)

// UserDirectory resolves message recipients
type UserDirectory interface {
	GetUser(ctx context.Context, id types.ID) (*directory.User, error)
}

// Service queues messages and delivers them through a worker pool.
// Delivery is best-effort throughout.
type Service struct {
	providers map[Channel]Provider
	users     UserDirectory

	queue   chan *Message
	workers int

	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// NewService creates a new notification service. Channels without a
// provider fall back to console logging.
func NewService(cfg config.NotificationConfig, users UserDirectory, providers map[Channel]Provider) *Service {
	if providers == nil {
		providers = make(map[Channel]Provider)
	}
	for _, ch := range []Channel{ChannelEmail, ChannelSMS, ChannelInApp} {
		if _, ok := providers[ch]; !ok {
			providers[ch] = NewConsoleProvider(ch)
		}
	}

	return &Service{
		providers: providers,
		users:     users,
		queue:     make(chan *Message, cfg.BufferSize),
		workers:   cfg.Workers,
	}
}

// Start launches the delivery workers
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("notification service already started")
	}
	s.started = true

	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go s.worker(ctx)
	}

	return nil
}

// Stop drains the queue and waits for the workers
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	s.mu.Unlock()

	close(s.queue)
	s.wg.Wait()
}

// Enqueue queues a message. A full queue drops the message with a log
// line rather than blocking the caller.
func (s *Service) Enqueue(msg *Message) {
	if msg.ID.IsZero() {
		msg.ID = types.NewID()
	}
	msg.Status = StatusPending
	msg.CreatedAt = time.Now().UTC()

	select {
	case s.queue <- msg:
	default:
		log.Printf("notification queue full, dropping message %s", msg.ID)
		metrics.RecordNotification(string(msg.Channel), "dropped")
	}
}

func (s *Service) worker(ctx context.Context) {
	defer s.wg.Done()

	for msg := range s.queue {
		s.deliver(ctx, msg)
	}
}

func (s *Service) deliver(ctx context.Context, msg *Message) {
	provider, ok := s.providers[msg.Channel]
	if !ok {
		log.Printf("no provider for channel %s, dropping message %s", msg.Channel, msg.ID)
		metrics.RecordNotification(string(msg.Channel), "dropped")
		return
	}

	if err := provider.Send(ctx, msg); err != nil {
		msg.Status = StatusFailed
		msg.LastError = err.Error()
		log.Printf("failed to deliver %s message %s: %v", msg.Channel, msg.ID, err)
		metrics.RecordNotification(string(msg.Channel), "failed")
		return
	}

	now := time.Now().UTC()
	msg.Status = StatusSent
	msg.SentAt = &now
	metrics.RecordNotification(string(msg.Channel), "sent")
}

// AppointmentBooked sends the booking confirmation to the patient.
// Implements the booking service's Notifier.
func (s *Service) AppointmentBooked(ctx context.Context, appt *appointment.Appointment) error {
	patient, err := s.users.GetUser(ctx, appt.PatientID)
	if err != nil {
		return err
	}

	subject := "Appointment confirmation"
	if appt.Status == appointment.StatusPending {
		subject = "Appointment request received"
	}

	body := fmt.Sprintf(
		"Dear %s,\n\nYour appointment is scheduled for %s until %s. Current status: %s.\n",
		patient.FullName(),
		appt.StartTime.Format("Monday, 2 January 2006 15:04"),
		appt.EndTime.Format("15:04"),
		appt.Status,
	)

	s.Enqueue(&Message{
		Channel:     ChannelEmail,
		RecipientID: patient.ID,
		Email:       patient.Email,
		Subject:     subject,
		Body:        body,
	})
	s.Enqueue(&Message{
		Channel:     ChannelInApp,
		RecipientID: patient.ID,
		Subject:     subject,
		Body:        body,
	})

	return nil
}
