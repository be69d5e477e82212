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
	"github.com/famcare-id/famcare-api/pkg/holdtoken"
)

type mockSlotRepo struct {
	slots    map[string]models.AvailabilitySlot
	released []string
	err      error
}

func (m *mockSlotRepo) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	if m.err != nil {
		return nil, m.err
	}
	if slot, ok := m.slots[id]; ok {
		return &slot, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSlotRepo) Reserve(ctx context.Context, id string, version int64, clientID string, holdExpiresAt time.Time) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	slot, ok := m.slots[id]
	if !ok || slot.Version != version || slot.Status != models.SlotStatusFree {
		return false, nil
	}
	slot.Status = models.SlotStatusHeld
	slot.Version++
	slot.HeldBy = &clientID
	slot.HoldExpiresAt = &holdExpiresAt
	m.slots[id] = slot
	return true, nil
}

func (m *mockSlotRepo) ConfirmAndCreateSession(ctx context.Context, slotID string, version int64, now time.Time, session *models.Session) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	slot, ok := m.slots[slotID]
	if !ok || slot.Version != version || slot.Status != models.SlotStatusHeld {
		return false, nil
	}
	if slot.HoldExpiresAt == nil || !slot.HoldExpiresAt.After(now) {
		return false, nil
	}
	slot.Status = models.SlotStatusBooked
	slot.Version++
	m.slots[slotID] = slot
	if session.ID == "" {
		session.ID = "session-1"
	}
	return true, nil
}

func (m *mockSlotRepo) Release(ctx context.Context, id string) (bool, error) {
	slot, ok := m.slots[id]
	if !ok || slot.Status == models.SlotStatusFree {
		return false, nil
	}
	slot.Status = models.SlotStatusFree
	slot.Version++
	slot.HeldBy = nil
	slot.HoldExpiresAt = nil
	m.slots[id] = slot
	m.released = append(m.released, id)
	return true, nil
}

type mockAuditWriter struct {
	logs []models.AuditLog
}

func (m *mockAuditWriter) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	m.logs = append(m.logs, *log)
	return nil
}

func newBookingService(repo *mockSlotRepo) (*BookingService, *mockAuditWriter) {
	audit := &mockAuditWriter{}
	svc := NewBookingService(repo, audit, holdtoken.NewSigner("test-secret"), validator.New(), zap.NewNop(), nil, nil, nil,
		config.BookingConfig{HoldTTL: 10 * time.Minute})
	return svc, audit
}

func freeSlot(id string, start time.Time) models.AvailabilitySlot {
	return models.AvailabilitySlot{
		ID:           id,
		ConsultantID: "consultant-1",
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		Status:       models.SlotStatusFree,
		Version:      3,
	}
}

func TestBookingServiceReserve(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, audit := newBookingService(repo)
	svc.now = func() time.Time { return now }

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, actor)
	require.NoError(t, err)
	assert.Equal(t, "slot-1", hold.SlotID)
	assert.Equal(t, now.Add(10*time.Minute), hold.ExpiresAt)
	assert.NotEmpty(t, hold.Token)

	slot := repo.slots["slot-1"]
	assert.Equal(t, models.SlotStatusHeld, slot.Status)
	assert.Equal(t, int64(4), slot.Version)
	require.NotNil(t, slot.HeldBy)
	assert.Equal(t, "client-1", *slot.HeldBy)
	assert.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionSlotReserve, audit.logs[0].Action)
}

func TestBookingServiceReserveStaleVersion(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	_, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 2}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrVersionConflict.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.SlotStatusFree, repo.slots["slot-1"].Status)
}

func TestBookingServiceReserveConcurrentOneWinner(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	wins := 0
	for i := 0; i < 5; i++ {
		actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
		if _, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, actor); err == nil {
			wins++
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, models.SlotStatusHeld, repo.slots["slot-1"].Status)
}

func TestBookingServiceReserveHeldSlot(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	slot := freeSlot("slot-1", now.Add(48*time.Hour))
	slot.Status = models.SlotStatusHeld
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{"slot-1": slot}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	actor := &models.JWTClaims{UserID: "client-2", Role: models.RoleClient}
	_, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrSlotNotFree.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceReserveUnknownSlot(t *testing.T) {
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{}}
	svc, _ := newBookingService(repo)

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	_, err := svc.Reserve(context.Background(), "missing", ReserveRequest{Version: 1}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceConfirm(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, audit := newBookingService(repo)
	svc.now = func() time.Time { return now }

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, actor)
	require.NoError(t, err)

	session, err := svc.Confirm(context.Background(), ConfirmRequest{HoldToken: hold.Token, Notes: "first session"}, actor)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPending, session.Status)
	assert.Equal(t, "slot-1", session.SlotID)
	assert.Equal(t, "client-1", session.ClientID)
	assert.Equal(t, "consultant-1", session.ConsultantID)

	slot := repo.slots["slot-1"]
	assert.Equal(t, models.SlotStatusBooked, slot.Status)
	assert.Equal(t, int64(5), slot.Version)
	assert.Len(t, audit.logs, 2)
}

func TestBookingServiceConfirmTamperedToken(t *testing.T) {
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{}}
	svc, _ := newBookingService(repo)

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	_, err := svc.Confirm(context.Background(), ConfirmRequest{HoldToken: "slot-1.client-1.4.9999999999.bogus"}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidHoldToken.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceConfirmForeignToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	holder := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, holder)
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "client-2", Role: models.RoleClient}
	_, err = svc.Confirm(context.Background(), ConfirmRequest{HoldToken: hold.Token}, other)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidHoldToken.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceConfirmExpiredHold(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, actor)
	require.NoError(t, err)

	svc.now = func() time.Time { return now.Add(11 * time.Minute) }
	_, err = svc.Confirm(context.Background(), ConfirmRequest{HoldToken: hold.Token}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrHoldExpired.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.SlotStatusHeld, repo.slots["slot-1"].Status)
}

func TestBookingServiceConfirmStaleToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, actor)
	require.NoError(t, err)

	// The slot was released and re-reserved; the old token's version no
	// longer matches.
	err = svc.ReleaseHold(context.Background(), hold.Token, actor)
	require.NoError(t, err)
	_, err = svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: repo.slots["slot-1"].Version}, actor)
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), ConfirmRequest{HoldToken: hold.Token}, actor)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrVersionConflict.Code, appErrors.FromError(err).Code)
}

func TestBookingServiceReleaseHold(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	actor := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, actor)
	require.NoError(t, err)

	err = svc.ReleaseHold(context.Background(), hold.Token, actor)
	require.NoError(t, err)
	assert.Equal(t, models.SlotStatusFree, repo.slots["slot-1"].Status)
	assert.Contains(t, repo.released, "slot-1")
}

func TestBookingServiceReleaseHoldForeignToken(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	holder := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, holder)
	require.NoError(t, err)

	other := &models.JWTClaims{UserID: "client-2", Role: models.RoleClient}
	err = svc.ReleaseHold(context.Background(), hold.Token, other)
	require.Error(t, err)
	assert.Equal(t, models.SlotStatusHeld, repo.slots["slot-1"].Status)
}

func TestBookingServiceReleaseHoldExpiredTokenAfterResale(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	first := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, first)
	require.NoError(t, err)

	// The hold lapses, the sweeper frees the slot, another client takes it.
	svc.now = func() time.Time { return now.Add(11 * time.Minute) }
	_, err = repo.Release(context.Background(), "slot-1")
	require.NoError(t, err)
	second := &models.JWTClaims{UserID: "client-2", Role: models.RoleClient}
	_, err = svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: repo.slots["slot-1"].Version}, second)
	require.NoError(t, err)

	err = svc.ReleaseHold(context.Background(), hold.Token, first)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrHoldExpired.Code, appErrors.FromError(err).Code)

	slot := repo.slots["slot-1"]
	assert.Equal(t, models.SlotStatusHeld, slot.Status)
	require.NotNil(t, slot.HeldBy)
	assert.Equal(t, "client-2", *slot.HeldBy)
}

func TestBookingServiceReleaseHoldStaleTokenDifferentHold(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockSlotRepo{slots: map[string]models.AvailabilitySlot{
		"slot-1": freeSlot("slot-1", now.Add(48*time.Hour)),
	}}
	svc, _ := newBookingService(repo)
	svc.now = func() time.Time { return now }

	first := &models.JWTClaims{UserID: "client-1", Role: models.RoleClient}
	hold, err := svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: 3}, first)
	require.NoError(t, err)

	// The first client releases and another client takes the slot while
	// the original token is still inside its TTL.
	err = svc.ReleaseHold(context.Background(), hold.Token, first)
	require.NoError(t, err)
	second := &models.JWTClaims{UserID: "client-2", Role: models.RoleClient}
	_, err = svc.Reserve(context.Background(), "slot-1", ReserveRequest{Version: repo.slots["slot-1"].Version}, second)
	require.NoError(t, err)

	err = svc.ReleaseHold(context.Background(), hold.Token, first)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidHoldToken.Code, appErrors.FromError(err).Code)

	slot := repo.slots["slot-1"]
	assert.Equal(t, models.SlotStatusHeld, slot.Status)
	require.NotNil(t, slot.HeldBy)
	assert.Equal(t, "client-2", *slot.HeldBy)
}
