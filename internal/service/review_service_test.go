package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/pkg/config"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
)

type mockReviewRepo struct {
	reviews        map[string]models.Review
	recalculated   []string
	listConsultant string
}

func (m *mockReviewRepo) Create(ctx context.Context, review *models.Review) (bool, error) {
	if m.reviews == nil {
		m.reviews = make(map[string]models.Review)
	}
	if _, exists := m.reviews[review.SessionID]; exists {
		return false, nil
	}
	if review.ID == "" {
		review.ID = "review-1"
	}
	m.reviews[review.SessionID] = *review
	return true, nil
}

func (m *mockReviewRepo) FindBySessionID(ctx context.Context, sessionID string) (*models.Review, error) {
	if r, ok := m.reviews[sessionID]; ok {
		return &r, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReviewRepo) ListByConsultant(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error) {
	m.listConsultant = filter.ConsultantID
	var out []models.Review
	for _, r := range m.reviews {
		if r.ConsultantID == filter.ConsultantID {
			out = append(out, r)
		}
	}
	return out, len(out), nil
}

func (m *mockReviewRepo) RecalculateRating(ctx context.Context, consultantID string) error {
	m.recalculated = append(m.recalculated, consultantID)
	return nil
}

func newReviewService(reviews *mockReviewRepo, sessions *mockSessionRepo) *ReviewService {
	return NewReviewService(reviews, sessions, &mockAuditWriter{}, validator.New(), zap.NewNop(), nil, nil,
		config.ReviewsConfig{MinRating: 1, MaxRating: 5})
}

func completedSession(id string) models.Session {
	start := time.Date(2026, 2, 20, 10, 0, 0, 0, time.UTC)
	s := pendingSession(id, start)
	s.Status = models.SessionStatusCompleted
	return s
}

func TestReviewServiceSubmit(t *testing.T) {
	reviews := &mockReviewRepo{}
	sessions := &mockSessionRepo{sessions: map[string]models.Session{"sess-1": completedSession("sess-1")}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	review, err := svc.Submit(context.Background(), "sess-1", SubmitReviewRequest{Rating: 5, Comment: "very helpful"}, actor)
	require.NoError(t, err)
	assert.Equal(t, 5, review.Rating)
	assert.Equal(t, "consultant-1", review.ConsultantID)
	assert.Contains(t, reviews.recalculated, "consultant-1")
}

func TestReviewServiceSubmitNotCompleted(t *testing.T) {
	reviews := &mockReviewRepo{}
	session := completedSession("sess-1")
	session.Status = models.SessionStatusConfirmed
	sessions := &mockSessionRepo{sessions: map[string]models.Session{"sess-1": session}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	_, err := svc.Submit(context.Background(), "sess-1", SubmitReviewRequest{Rating: 4}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotCompleted.Code, appErrors.FromError(err).Code)
	assert.Empty(t, reviews.reviews)
}

func TestReviewServiceSubmitForeignClient(t *testing.T) {
	reviews := &mockReviewRepo{}
	sessions := &mockSessionRepo{sessions: map[string]models.Session{"sess-1": completedSession("sess-1")}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "client-other", Role: models.RoleClient}
	_, err := svc.Submit(context.Background(), "sess-1", SubmitReviewRequest{Rating: 4}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestReviewServiceSubmitDuplicate(t *testing.T) {
	reviews := &mockReviewRepo{}
	sessions := &mockSessionRepo{sessions: map[string]models.Session{"sess-1": completedSession("sess-1")}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	_, err := svc.Submit(context.Background(), "sess-1", SubmitReviewRequest{Rating: 5}, actor)
	require.NoError(t, err)

	_, err = svc.Submit(context.Background(), "sess-1", SubmitReviewRequest{Rating: 1}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrDuplicateReview.Code, appErrors.FromError(err).Code)
	assert.Equal(t, 5, reviews.reviews["sess-1"].Rating)
}

func TestReviewServiceSubmitRatingBounds(t *testing.T) {
	reviews := &mockReviewRepo{}
	sessions := &mockSessionRepo{sessions: map[string]models.Session{"sess-1": completedSession("sess-1")}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	_, err := svc.Submit(context.Background(), "sess-1", SubmitReviewRequest{Rating: 6}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Submit(context.Background(), "sess-1", SubmitReviewRequest{Rating: 0}, actor)
	require.Error(t, err)
}

func TestReviewServiceSubmitUnknownSession(t *testing.T) {
	reviews := &mockReviewRepo{}
	sessions := &mockSessionRepo{sessions: map[string]models.Session{}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	_, err := svc.Submit(context.Background(), "missing", SubmitReviewRequest{Rating: 3}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestReviewServiceListPublicView(t *testing.T) {
	private := "came in very distressed"
	reviews := &mockReviewRepo{reviews: map[string]models.Review{
		"sess-1": {ID: "review-1", SessionID: "sess-1", ConsultantID: "consultant-1", ClientID: "client-1", Rating: 5, IsAnonymous: true, PrivateComment: &private},
	}}
	sessions := &mockSessionRepo{sessions: map[string]models.Session{}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "client-2", Role: models.RoleClient}
	listed, _, err := svc.ListByConsultant(context.Background(), models.ReviewFilter{ConsultantID: "consultant-1"}, actor)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Nil(t, listed[0].PrivateComment)
	assert.Empty(t, listed[0].ClientID)
}

func TestReviewServiceListAdminView(t *testing.T) {
	private := "came in very distressed"
	reviews := &mockReviewRepo{reviews: map[string]models.Review{
		"sess-1": {ID: "review-1", SessionID: "sess-1", ConsultantID: "consultant-1", ClientID: "client-1", Rating: 5, PrivateComment: &private},
	}}
	sessions := &mockSessionRepo{sessions: map[string]models.Session{}}
	svc := newReviewService(reviews, sessions)

	actor := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	listed, _, err := svc.ListByConsultant(context.Background(), models.ReviewFilter{ConsultantID: "consultant-1"}, actor)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.NotNil(t, listed[0].PrivateComment)
	assert.Equal(t, "client-1", listed[0].ClientID)
}
