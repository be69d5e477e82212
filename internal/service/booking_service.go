package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/pkg/config"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
	"github.com/famcare-id/famcare-api/pkg/holdtoken"
)

type bookingSlotRepository interface {
	FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	Reserve(ctx context.Context, id string, version int64, clientID string, holdExpiresAt time.Time) (bool, error)
	ConfirmAndCreateSession(ctx context.Context, slotID string, version int64, now time.Time, session *models.Session) (bool, error)
	Release(ctx context.Context, id string) (bool, error)
}

type bookingAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type bookingNotifier interface {
	Enqueue(jobType string, payload SessionNotification)
}

type cacheInvalidator interface {
	InvalidateListing(ctx context.Context, consultantID string)
}

// ReserveRequest is the payload for placing a hold on a slot. Version is
// the value the client read when listing availability; a stale version
// loses the race by design.
type ReserveRequest struct {
	Version int64 `json:"version"`
}

// Hold is the result of a successful reservation. The token must be
// presented to confirm before ExpiresAt.
type Hold struct {
	SlotID    string    `json:"slot_id"`
	Token     string    `json:"hold_token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ConfirmRequest turns a hold into a pending session.
type ConfirmRequest struct {
	HoldToken      string `json:"hold_token" validate:"required"`
	Notes          string `json:"notes" validate:"max=2000"`
	ContactChannel string `json:"contact_channel" validate:"max=100"`
}

// BookingService implements the reservation flow: place a hold on a free
// slot, then confirm the hold into a pending session. Both steps are
// compare-and-set against the slot version, so concurrent callers never
// double-book.
type BookingService struct {
	slots      bookingSlotRepository
	audit      bookingAuditWriter
	tokens     *holdtoken.Signer
	validator  *validator.Validate
	logger     *zap.Logger
	metrics    *MetricsService
	notifier   bookingNotifier
	availCache cacheInvalidator
	cfg        config.BookingConfig
	now        func() time.Time
}

// NewBookingService creates a new booking service instance.
func NewBookingService(slots bookingSlotRepository, audit bookingAuditWriter, tokens *holdtoken.Signer, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, notifier bookingNotifier, availCache cacheInvalidator, cfg config.BookingConfig) *BookingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BookingService{
		slots:      slots,
		audit:      audit,
		tokens:     tokens,
		validator:  validate,
		logger:     logger,
		metrics:    metrics,
		notifier:   notifier,
		availCache: availCache,
		cfg:        cfg,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Reserve places a hold on a free slot for the acting client. The CAS on
// (id, version) guarantees at most one of N concurrent callers wins; the
// losers get a conflict without any retry loop.
func (s *BookingService) Reserve(ctx context.Context, slotID string, req ReserveRequest, actor *models.JWTClaims) (*Hold, error) {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	if slot.Status != models.SlotStatusFree {
		s.metrics.RecordReservation("unavailable")
		return nil, appErrors.Clone(appErrors.ErrSlotNotFree, "")
	}
	if !slot.StartTime.After(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrSlotUnavailable, "slot has already started")
	}

	expiresAt := s.now().Add(s.cfg.HoldTTL)
	reserved, err := s.slots.Reserve(ctx, slotID, req.Version, actor.UserID, expiresAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reserve slot")
	}
	if !reserved {
		s.metrics.RecordReservation("conflict")
		return nil, appErrors.Clone(appErrors.ErrVersionConflict, "")
	}

	// The winning CAS advanced the version by one; the token is bound
	// to the post-reserve version so only this hold can confirm.
	token, err := s.tokens.Generate(slotID, actor.UserID, req.Version+1, expiresAt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign hold token")
	}

	s.metrics.RecordReservation("success")
	s.writeAudit(ctx, actor.UserID, models.AuditActionSlotReserve, "availability_slot", slotID)
	if s.availCache != nil {
		s.availCache.InvalidateListing(ctx, slot.ConsultantID)
	}

	s.logger.Info("slot reserved",
		zap.String("slot_id", slotID),
		zap.String("client_id", actor.UserID),
		zap.Time("expires_at", expiresAt))

	return &Hold{SlotID: slotID, Token: token, ExpiresAt: expiresAt}, nil
}

// Confirm validates a hold token and atomically books the slot while
// creating the pending session. A tampered token, a foreign token, an
// expired hold and a stale version each fail with a distinct error.
func (s *BookingService) Confirm(ctx context.Context, req ConfirmRequest, actor *models.JWTClaims) (*models.Session, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid confirm payload")
	}

	claims, err := s.tokens.Parse(req.HoldToken)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidHoldToken, "")
	}
	if claims.ClientID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrInvalidHoldToken, "hold token belongs to a different client")
	}

	now := s.now()
	if !claims.ExpiresAt.After(now) {
		return nil, appErrors.Clone(appErrors.ErrHoldExpired, "")
	}

	slot, err := s.slots.FindByID(ctx, claims.SlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	session := &models.Session{
		SlotID:         slot.ID,
		ConsultantID:   slot.ConsultantID,
		ClientID:       actor.UserID,
		Status:         models.SessionStatusPending,
		Notes:          req.Notes,
		ContactChannel: req.ContactChannel,
		SlotStart:      slot.StartTime,
		SlotEnd:        slot.EndTime,
	}

	booked, err := s.slots.ConfirmAndCreateSession(ctx, claims.SlotID, claims.Version, now, session)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to confirm booking")
	}
	if !booked {
		// The CAS distinguishes nothing further; report the slot state
		// the caller can act on.
		if slot.Status == models.SlotStatusHeld && slot.HoldExpiresAt != nil && !slot.HoldExpiresAt.After(now) {
			return nil, appErrors.Clone(appErrors.ErrHoldExpired, "")
		}
		return nil, appErrors.Clone(appErrors.ErrVersionConflict, "hold is no longer valid for this slot")
	}

	s.metrics.RecordBookingConfirmed()
	s.writeAudit(ctx, actor.UserID, models.AuditActionBookingConfirm, "session", session.ID)
	if s.availCache != nil {
		s.availCache.InvalidateListing(ctx, slot.ConsultantID)
	}
	if s.notifier != nil {
		s.notifier.Enqueue(NotifyBookingConfirmed, SessionNotification{
			SessionID:    session.ID,
			ConsultantID: session.ConsultantID,
			ClientID:     session.ClientID,
			Status:       session.Status,
		})
	}

	s.logger.Info("booking confirmed",
		zap.String("session_id", session.ID),
		zap.String("slot_id", slot.ID),
		zap.String("client_id", actor.UserID))

	return session, nil
}

// ReleaseHold gives up a hold before it expires, returning the slot to
// free. Only the holder (or an admin) may release.
func (s *BookingService) ReleaseHold(ctx context.Context, token string, actor *models.JWTClaims) error {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return appErrors.Clone(appErrors.ErrInvalidHoldToken, "")
	}
	if claims.ClientID != actor.UserID && actor.Role != models.RoleAdmin {
		return appErrors.Clone(appErrors.ErrInvalidHoldToken, "hold token belongs to a different client")
	}
	if !claims.ExpiresAt.After(s.now()) {
		return appErrors.Clone(appErrors.ErrHoldExpired, "")
	}

	slot, err := s.slots.FindByID(ctx, claims.SlotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}
	if slot.Status != models.SlotStatusHeld {
		return appErrors.Clone(appErrors.ErrSlotUnavailable, "slot is not held")
	}
	// The token only frees the exact hold it was issued for. A slot that
	// was released and re-held since carries a different version and
	// holder, so a replayed token can never evict the new hold.
	if slot.Version != claims.Version || slot.HeldBy == nil || *slot.HeldBy != claims.ClientID {
		return appErrors.Clone(appErrors.ErrInvalidHoldToken, "hold token does not match the current hold")
	}

	released, err := s.slots.Release(ctx, claims.SlotID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release hold")
	}
	if !released {
		return appErrors.Clone(appErrors.ErrSlotUnavailable, "slot changed while releasing")
	}

	if s.availCache != nil {
		s.availCache.InvalidateListing(ctx, slot.ConsultantID)
	}
	return nil
}

func (s *BookingService) writeAudit(ctx context.Context, userID, action, resource, resourceID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   resource,
		ResourceID: &resourceID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}
