package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/pkg/config"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
	"github.com/famcare-id/famcare-api/pkg/export"
)

type sessionRepository interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
	List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error)
	UpdateStatus(ctx context.Context, session *models.Session) error
	CancelAndReleaseSlot(ctx context.Context, session *models.Session) error
}

type sessionAuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

type sessionUserReader interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type receiptRenderer interface {
	Render(r export.Receipt) ([]byte, error)
}

// TransitionRequest is the payload for a session status change.
type TransitionRequest struct {
	Status models.SessionStatus `json:"status" validate:"required"`
	Reason string               `json:"reason" validate:"max=500"`
}

// TransitionResult reports the session after a transition together with
// the cancellation outcome when the transition was a cancellation.
type TransitionResult struct {
	Session      *models.Session      `json:"session"`
	Cancellation *CancellationOutcome `json:"cancellation,omitempty"`
}

// transitions maps each non-terminal status to the set of statuses it
// may move to. Terminal statuses have no outgoing edges; only an admin
// override steps outside this table.
var transitions = map[models.SessionStatus]map[models.SessionStatus]bool{
	models.SessionStatusPending: {
		models.SessionStatusConfirmed: true,
		models.SessionStatusCancelled: true,
	},
	models.SessionStatusConfirmed: {
		models.SessionStatusCompleted: true,
		models.SessionStatusCancelled: true,
	},
}

// transitionRoles maps each target status to the roles allowed to drive
// a session there.
var transitionRoles = map[models.SessionStatus]map[models.UserRole]bool{
	models.SessionStatusConfirmed: {
		models.RoleConsultant: true,
		models.RoleAdmin:      true,
	},
	models.SessionStatusCompleted: {
		models.RoleConsultant: true,
		models.RoleAdmin:      true,
	},
	models.SessionStatusCancelled: {
		models.RoleClient:     true,
		models.RoleConsultant: true,
		models.RoleAdmin:      true,
	},
}

// SessionService drives the session state machine. Every transition is
// checked against the allowed edges and the actor's role before
// anything is persisted; repeating a terminal status is an idempotent
// no-op.
type SessionService struct {
	sessions    sessionRepository
	consultants consultantReader
	users       sessionUserReader
	audit       sessionAuditWriter
	receipts    receiptRenderer
	validator   *validator.Validate
	logger      *zap.Logger
	metrics     *MetricsService
	notifier    bookingNotifier
	policy      config.CancellationConfig
	now         func() time.Time
}

// NewSessionService creates a new session service instance.
func NewSessionService(sessions sessionRepository, consultants consultantReader, users sessionUserReader, audit sessionAuditWriter, receipts receiptRenderer, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, notifier bookingNotifier, policy config.CancellationConfig) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:    sessions,
		consultants: consultants,
		users:       users,
		audit:       audit,
		receipts:    receipts,
		validator:   validate,
		logger:      logger,
		metrics:     metrics,
		notifier:    notifier,
		policy:      policy,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Get returns a session the actor is allowed to see.
func (s *SessionService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Session, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, session, actor); err != nil {
		return nil, err
	}
	return session, nil
}

// List returns the actor's sessions. Clients and consultants are pinned
// to their own sessions regardless of the requested filter; admins see
// everything.
func (s *SessionService) List(ctx context.Context, filter models.SessionFilter, actor *models.JWTClaims) ([]models.Session, *models.Pagination, error) {
	switch actor.Role {
	case models.RoleClient:
		filter.ClientID = actor.UserID
		filter.ConsultantID = ""
	case models.RoleConsultant:
		consultant, err := s.consultantForUser(ctx, actor.UserID)
		if err != nil {
			return nil, nil, err
		}
		filter.ConsultantID = consultant.ID
		filter.ClientID = ""
	}

	sessions, total, err := s.sessions.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sessions, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Transition moves a session along the state machine. Cancellations run
// the fee policy and free the slot atomically with the status change.
func (s *SessionService) Transition(ctx context.Context, sessionID string, req TransitionRequest, actor *models.JWTClaims) (*TransitionResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid transition payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown session status")
	}

	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, session, actor); err != nil {
		return nil, err
	}

	// Re-applying the terminal state a session is already in succeeds
	// without touching anything, so retried requests stay safe.
	if session.Status.IsTerminal() && req.Status == session.Status {
		return &TransitionResult{Session: session}, nil
	}

	if actor.Role == models.RoleAdmin {
		// Admins may override any state for dispute resolution, but a
		// session never returns to pending.
		if req.Status == models.SessionStatusPending {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "session cannot return to pending")
		}
	} else {
		if session.Status.IsTerminal() {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "session is in a terminal state")
		}
		if !transitions[session.Status][req.Status] {
			return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "")
		}
		if !transitionRoles[req.Status][actor.Role] {
			return nil, appErrors.Clone(appErrors.ErrUnauthorizedRole, "")
		}
	}

	result := &TransitionResult{Session: session}
	previous := session.Status
	session.Status = req.Status

	switch req.Status {
	case models.SessionStatusCancelled:
		outcome := EvaluateCancellation(session.SlotStart, s.now(), s.policy)
		result.Cancellation = &outcome

		role := actor.Role
		session.CancelledBy = &role
		if req.Reason != "" {
			reason := req.Reason
			session.CancellationReason = &reason
		}
		if outcome.FeeApplies {
			fee := outcome.FeePercent
			session.CancellationFee = &fee
		}

		if err := s.sessions.CancelAndReleaseSlot(ctx, session); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to cancel session")
		}
		s.metrics.RecordSessionCancelled(string(actor.Role))

	case models.SessionStatusCompleted:
		if err := s.sessions.UpdateStatus(ctx, session); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to complete session")
		}
		s.metrics.RecordSessionCompleted()

	default:
		if err := s.sessions.UpdateStatus(ctx, session); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session status")
		}
	}

	s.writeAudit(ctx, actor.UserID, session.ID, previous, session.Status)
	if s.notifier != nil {
		s.notifier.Enqueue(NotifySessionStatus, SessionNotification{
			SessionID:    session.ID,
			ConsultantID: session.ConsultantID,
			ClientID:     session.ClientID,
			Status:       session.Status,
			Reason:       req.Reason,
		})
	}

	s.logger.Info("session transitioned",
		zap.String("session_id", session.ID),
		zap.String("from", string(previous)),
		zap.String("to", string(session.Status)),
		zap.String("actor_role", string(actor.Role)))

	return result, nil
}

// PreviewCancellation evaluates the fee policy for a session without
// changing anything, so clients can see the cost before cancelling.
func (s *SessionService) PreviewCancellation(ctx context.Context, sessionID string, actor *models.JWTClaims) (*CancellationOutcome, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, session, actor); err != nil {
		return nil, err
	}
	if session.Status.IsTerminal() {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "session is in a terminal state")
	}
	outcome := EvaluateCancellation(session.SlotStart, s.now(), s.policy)
	return &outcome, nil
}

// Receipt renders a PDF receipt for a completed session.
func (s *SessionService) Receipt(ctx context.Context, sessionID string, actor *models.JWTClaims) ([]byte, error) {
	session, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeParticipant(ctx, session, actor); err != nil {
		return nil, err
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrNotCompleted, "receipt is only available for completed sessions")
	}

	receipt := export.Receipt{
		SessionID:      session.ID,
		StartTime:      session.SlotStart.Format(time.RFC3339),
		EndTime:        session.SlotEnd.Format(time.RFC3339),
		Status:         string(session.Status),
		ContactChannel: session.ContactChannel,
		Notes:          session.Notes,
	}
	if consultant, err := s.consultants.FindByID(ctx, session.ConsultantID); err == nil {
		receipt.ConsultantName = consultant.FullName
	}
	if client, err := s.users.FindByID(ctx, session.ClientID); err == nil {
		receipt.ClientName = client.FullName
	}

	data, err := s.receipts.Render(receipt)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render receipt")
	}
	return data, nil
}

func (s *SessionService) load(ctx context.Context, id string) (*models.Session, error) {
	session, err := s.sessions.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	return session, nil
}

// authorizeParticipant lets admins through and otherwise requires the
// actor to be the session's client or its consultant.
func (s *SessionService) authorizeParticipant(ctx context.Context, session *models.Session, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleClient:
		if session.ClientID == actor.UserID {
			return nil
		}
	case models.RoleConsultant:
		consultant, err := s.consultantForUser(ctx, actor.UserID)
		if err != nil {
			return err
		}
		if session.ConsultantID == consultant.ID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "not a participant of this session")
}

func (s *SessionService) consultantForUser(ctx context.Context, userID string) (*models.Consultant, error) {
	consultant, err := s.consultants.FindByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "no consultant profile for user")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consultant profile")
	}
	return consultant, nil
}

func (s *SessionService) writeAudit(ctx context.Context, userID, sessionID string, from, to models.SessionStatus) {
	if s.audit == nil {
		return
	}
	oldValues, _ := json.Marshal(map[string]models.SessionStatus{"status": from})
	newValues, _ := json.Marshal(map[string]models.SessionStatus{"status": to})
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionSessionStatus,
		Resource:   "session",
		ResourceID: &sessionID,
		OldValues:  oldValues,
		NewValues:  newValues,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("session_id", sessionID), zap.Error(err))
	}
}
