package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/pkg/config"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
)

type reviewRepository interface {
	Create(ctx context.Context, review *models.Review) (bool, error)
	FindBySessionID(ctx context.Context, sessionID string) (*models.Review, error)
	ListByConsultant(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error)
	RecalculateRating(ctx context.Context, consultantID string) error
}

type reviewSessionReader interface {
	FindByID(ctx context.Context, id string) (*models.Session, error)
}

// SubmitReviewRequest is the payload for reviewing a completed session.
type SubmitReviewRequest struct {
	Rating         int    `json:"rating" validate:"required"`
	Comment        string `json:"comment" validate:"max=2000"`
	IsAnonymous    bool   `json:"is_anonymous"`
	PrivateComment string `json:"private_comment" validate:"max=2000"`
}

// ReviewService gates review submission: only the client of a completed
// session may review it, exactly once.
type ReviewService struct {
	reviews   reviewRepository
	sessions  reviewSessionReader
	audit     sessionAuditWriter
	validator *validator.Validate
	logger    *zap.Logger
	metrics   *MetricsService
	notifier  bookingNotifier
	cfg       config.ReviewsConfig
}

// NewReviewService creates a new review service instance.
func NewReviewService(reviews reviewRepository, sessions reviewSessionReader, audit sessionAuditWriter, validate *validator.Validate, logger *zap.Logger, metrics *MetricsService, notifier bookingNotifier, cfg config.ReviewsConfig) *ReviewService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinRating == 0 && cfg.MaxRating == 0 {
		cfg = config.ReviewsConfig{MinRating: 1, MaxRating: 5}
	}
	return &ReviewService{
		reviews:   reviews,
		sessions:  sessions,
		audit:     audit,
		validator: validate,
		logger:    logger,
		metrics:   metrics,
		notifier:  notifier,
		cfg:       cfg,
	}
}

// Submit records a review for a completed session. The unique index on
// session_id makes the duplicate check race-free: of two concurrent
// submissions only the first insert lands.
func (s *ReviewService) Submit(ctx context.Context, sessionID string, req SubmitReviewRequest, actor *models.JWTClaims) (*models.Review, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid review payload")
	}
	if req.Rating < s.cfg.MinRating || req.Rating > s.cfg.MaxRating {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("rating must be between %d and %d", s.cfg.MinRating, s.cfg.MaxRating))
	}

	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "session not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}

	if actor.Role != models.RoleAdmin && session.ClientID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "only the session's client may review it")
	}
	if session.Status != models.SessionStatusCompleted {
		return nil, appErrors.Clone(appErrors.ErrNotCompleted, "")
	}

	review := &models.Review{
		SessionID:      sessionID,
		ConsultantID:   session.ConsultantID,
		ClientID:       session.ClientID,
		Rating:         req.Rating,
		Comment:        req.Comment,
		IsAnonymous:    req.IsAnonymous,
	}
	if req.PrivateComment != "" {
		pc := req.PrivateComment
		review.PrivateComment = &pc
	}

	inserted, err := s.reviews.Create(ctx, review)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create review")
	}
	if !inserted {
		return nil, appErrors.Clone(appErrors.ErrDuplicateReview, "")
	}

	if err := s.reviews.RecalculateRating(ctx, session.ConsultantID); err != nil {
		// The review itself is committed; a stale aggregate heals on
		// the next submission.
		s.logger.Warn("failed to recalculate consultant rating",
			zap.String("consultant_id", session.ConsultantID), zap.Error(err))
	}

	s.metrics.RecordReviewSubmitted()
	s.writeAudit(ctx, actor.UserID, review.ID)
	if s.notifier != nil {
		s.notifier.Enqueue(NotifyReviewReceived, SessionNotification{
			SessionID:    session.ID,
			ConsultantID: session.ConsultantID,
			ClientID:     session.ClientID,
			Status:       session.Status,
		})
	}

	s.logger.Info("review submitted",
		zap.String("review_id", review.ID),
		zap.String("session_id", sessionID),
		zap.Int("rating", review.Rating))

	return review, nil
}

// GetBySession returns the review of a session, if any.
func (s *ReviewService) GetBySession(ctx context.Context, sessionID string, actor *models.JWTClaims) (*models.Review, error) {
	review, err := s.reviews.FindBySessionID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "review not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load review")
	}
	if actor.Role != models.RoleAdmin {
		public := review.PublicView()
		return &public, nil
	}
	return review, nil
}

// ListByConsultant returns a consultant's reviews. Non-admin callers get
// the public view with private comments and anonymous authors stripped.
func (s *ReviewService) ListByConsultant(ctx context.Context, filter models.ReviewFilter, actor *models.JWTClaims) ([]models.Review, *models.Pagination, error) {
	reviews, total, err := s.reviews.ListByConsultant(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list reviews")
	}

	if actor == nil || actor.Role != models.RoleAdmin {
		for i := range reviews {
			reviews[i] = reviews[i].PublicView()
		}
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return reviews, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *ReviewService) writeAudit(ctx context.Context, userID, reviewID string) {
	if s.audit == nil {
		return
	}
	log := &models.AuditLog{
		UserID:     &userID,
		Action:     models.AuditActionReviewSubmit,
		Resource:   "review",
		ResourceID: &reviewID,
	}
	if err := s.audit.CreateAuditLog(ctx, log); err != nil {
		s.logger.Warn("failed to write audit log", zap.String("review_id", reviewID), zap.Error(err))
	}
}
