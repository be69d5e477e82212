package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/middleware"
	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/internal/service"
	"github.com/famcare-id/famcare-api/pkg/config"
	"github.com/famcare-id/famcare-api/pkg/export"
	"github.com/famcare-id/famcare-api/pkg/response"
)

type sessionRepoStub struct {
	sessions map[string]models.Session
}

func (m *sessionRepoStub) FindByID(ctx context.Context, id string) (*models.Session, error) {
	if s, ok := m.sessions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *sessionRepoStub) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	var out []models.Session
	for _, s := range m.sessions {
		if filter.ClientID != "" && s.ClientID != filter.ClientID {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *sessionRepoStub) UpdateStatus(ctx context.Context, session *models.Session) error {
	m.sessions[session.ID] = *session
	return nil
}

func (m *sessionRepoStub) CancelAndReleaseSlot(ctx context.Context, session *models.Session) error {
	m.sessions[session.ID] = *session
	return nil
}

type consultantRepoStub struct{}

func (consultantRepoStub) FindByID(ctx context.Context, id string) (*models.Consultant, error) {
	return &models.Consultant{ID: id, UserID: "user-" + id, FullName: "Dr. Ayu"}, nil
}

func (consultantRepoStub) FindByUserID(ctx context.Context, userID string) (*models.Consultant, error) {
	return nil, sql.ErrNoRows
}

type userRepoStub struct{}

func (userRepoStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	return &models.User{ID: id, FullName: "Budi"}, nil
}

func newSessionHandler(repo *sessionRepoStub) *SessionHandler {
	policy := config.CancellationConfig{FreeThreshold: 24 * time.Hour, FeePercent: 50}
	svc := service.NewSessionService(repo, consultantRepoStub{}, userRepoStub{}, nil, export.NewReceiptExporter(), nil, zap.NewNop(), nil, nil, policy)
	return NewSessionHandler(svc)
}

func bookedSession(id string, status models.SessionStatus, start time.Time) models.Session {
	return models.Session{
		ID:           id,
		SlotID:       "slot-1",
		ConsultantID: "consultant-1",
		ClientID:     "client-1",
		Status:       status,
		SlotStart:    start,
		SlotEnd:      start.Add(time.Hour),
	}
}

func TestSessionHandlerCancelWithFee(t *testing.T) {
	gin.SetMode(gin.TestMode)
	start := time.Now().UTC().Add(2 * time.Hour)
	repo := &sessionRepoStub{sessions: map[string]models.Session{
		"sess-1": bookedSession("sess-1", models.SessionStatusConfirmed, start),
	}}
	handler := newSessionHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(map[string]string{"status": "CANCELLED", "reason": "family emergency"})
	req, _ := http.NewRequest(http.MethodPatch, "/sessions/sess-1/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "client-1", Role: models.RoleClient})

	handler.Transition(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	data := envelope.Data.(map[string]interface{})
	cancellation := data["cancellation"].(map[string]interface{})
	assert.Equal(t, true, cancellation["fee_applies"])
	assert.Equal(t, float64(50), cancellation["fee_percent"])
	assert.Equal(t, models.SessionStatusCancelled, repo.sessions["sess-1"].Status)
}

func TestSessionHandlerIllegalTransition(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &sessionRepoStub{sessions: map[string]models.Session{
		"sess-1": bookedSession("sess-1", models.SessionStatusPending, time.Now().UTC().Add(48*time.Hour)),
	}}
	handler := newSessionHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(map[string]string{"status": "COMPLETED"})
	req, _ := http.NewRequest(http.MethodPatch, "/sessions/sess-1/status", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Transition(c)
	require.Equal(t, http.StatusConflict, w.Code)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	assert.Equal(t, "INVALID_TRANSITION", envelope.Error.Code)
}

func TestSessionHandlerReceipt(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &sessionRepoStub{sessions: map[string]models.Session{
		"sess-1": bookedSession("sess-1", models.SessionStatusCompleted, time.Now().UTC().Add(-48*time.Hour)),
	}}
	handler := newSessionHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/sessions/sess-1/receipt", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "client-1", Role: models.RoleClient})

	handler.Receipt(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.NotZero(t, w.Body.Len())
}

func TestSessionHandlerGetForbidden(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &sessionRepoStub{sessions: map[string]models.Session{
		"sess-1": bookedSession("sess-1", models.SessionStatusPending, time.Now().UTC().Add(48*time.Hour)),
	}}
	handler := newSessionHandler(repo)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/sessions/sess-1", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "client-other", Role: models.RoleClient})

	handler.Get(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}
