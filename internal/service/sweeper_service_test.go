package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/pkg/config"
)

type mockHoldReleaser struct {
	released   int64
	lastCutoff time.Time
	lastLimit  int
	err        error
}

func (m *mockHoldReleaser) ReleaseExpiredHolds(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	m.lastCutoff = cutoff
	m.lastLimit = limit
	return m.released, m.err
}

func TestSweeperServiceSweepOnce(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	repo := &mockHoldReleaser{released: 3}
	svc := NewSweeperService(repo, zap.NewNop(), nil, config.BookingConfig{SweepBatchSize: 50})
	svc.now = func() time.Time { return now }

	released := svc.SweepOnce(context.Background())
	assert.Equal(t, int64(3), released)
	assert.Equal(t, now, repo.lastCutoff)
	assert.Equal(t, 50, repo.lastLimit)
}

func TestSweeperServiceSweepOnceNothingExpired(t *testing.T) {
	repo := &mockHoldReleaser{released: 0}
	svc := NewSweeperService(repo, zap.NewNop(), nil, config.BookingConfig{})

	released := svc.SweepOnce(context.Background())
	assert.Equal(t, int64(0), released)
}

func TestSweeperServiceSweepOnceError(t *testing.T) {
	repo := &mockHoldReleaser{err: errors.New("db down")}
	svc := NewSweeperService(repo, zap.NewNop(), nil, config.BookingConfig{})

	released := svc.SweepOnce(context.Background())
	assert.Equal(t, int64(0), released)
}

func TestSweeperServiceStartStopsOnCancel(t *testing.T) {
	repo := &mockHoldReleaser{}
	svc := NewSweeperService(repo, zap.NewNop(), nil, config.BookingConfig{SweepInterval: time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	svc.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(5 * time.Millisecond)
	assert.NotZero(t, repo.lastCutoff)
}
