package service

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/pkg/config"
	"github.com/famcare-id/famcare-api/pkg/jobs"
)

// Notification job types.
const (
	NotifyBookingConfirmed = "booking_confirmed"
	NotifySessionStatus    = "session_status"
	NotifyReviewReceived   = "review_received"
)

// SessionNotification is the payload enqueued for session events.
type SessionNotification struct {
	SessionID    string               `json:"session_id"`
	ConsultantID string               `json:"consultant_id"`
	ClientID     string               `json:"client_id"`
	Status       models.SessionStatus `json:"status"`
	Reason       string               `json:"reason,omitempty"`
}

// NotificationService dispatches booking events to the (external)
// delivery channel through an in-process worker queue. Delivery itself
// is a collaborator; this service owns queueing, retry and logging.
type NotificationService struct {
	queue  *jobs.Queue[SessionNotification]
	logger *zap.Logger
}

// NewNotificationService builds the notification dispatcher.
func NewNotificationService(cfg config.NotifyConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{logger: logger}
	s.queue = jobs.New[SessionNotification]("notifications", s.deliver, jobs.Options{
		Workers:     cfg.Workers,
		MaxAttempts: cfg.MaxRetries,
		RetryDelay:  cfg.RetryDelay,
		Logger:      logger,
	})
	return s
}

// Start boots the worker pool.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Enqueue schedules a session event for delivery. Failures are logged,
// never propagated: notifications must not fail the booking call.
func (s *NotificationService) Enqueue(jobType string, payload SessionNotification) {
	if s == nil || s.queue == nil {
		return
	}
	err := s.queue.Enqueue(jobs.Envelope[SessionNotification]{
		ID:      uuid.NewString(),
		Kind:    jobType,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("type", jobType),
			zap.String("session_id", payload.SessionID),
			zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, e jobs.Envelope[SessionNotification]) error {
	// Delivery channel integration point. The message is logged so the
	// event stream is observable without a provider configured.
	s.logger.Info("notification dispatched",
		zap.String("type", e.Kind),
		zap.String("session_id", e.Payload.SessionID),
		zap.String("consultant_id", e.Payload.ConsultantID),
		zap.String("client_id", e.Payload.ClientID),
		zap.String("status", string(e.Payload.Status)))
	return nil
}
