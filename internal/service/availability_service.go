package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/models"
	"github.com/famcare-id/famcare-api/pkg/config"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
)

type availabilitySlotRepository interface {
	Create(ctx context.Context, slot *models.AvailabilitySlot) error
	FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error)
	HasOverlap(ctx context.Context, consultantID string, start, end time.Time) (bool, error)
	DeleteFree(ctx context.Context, id string) (bool, error)
	ListAvailable(ctx context.Context, filter models.SlotFilter, now time.Time) ([]models.AvailabilitySlot, int, error)
}

type consultantReader interface {
	FindByID(ctx context.Context, id string) (*models.Consultant, error)
	FindByUserID(ctx context.Context, userID string) (*models.Consultant, error)
}

type availabilityCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

// PublishSlotRequest describes payload for publishing an availability slot.
type PublishSlotRequest struct {
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

type cachedSlotPage struct {
	Slots []models.AvailabilitySlot `json:"slots"`
	Total int                       `json:"total"`
}

// AvailabilityService owns the published slot inventory: publication
// with overlap rejection, withdrawal of free slots, and the cached
// availability listing.
type AvailabilityService struct {
	slots       availabilitySlotRepository
	consultants consultantReader
	cache       availabilityCache
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         config.AvailabilityConfig
	now         func() time.Time
}

// NewAvailabilityService creates a new availability service instance.
func NewAvailabilityService(slots availabilitySlotRepository, consultants consultantReader, cache availabilityCache, validate *validator.Validate, logger *zap.Logger, cfg config.AvailabilityConfig) *AvailabilityService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AvailabilityService{
		slots:       slots,
		consultants: consultants,
		cache:       cache,
		validator:   validate,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Publish creates a new free slot for a consultant, rejecting any range
// that overlaps an existing slot of the same consultant (half-open
// interval comparison). Consultants may only publish their own slots;
// admins may publish for anyone.
func (s *AvailabilityService) Publish(ctx context.Context, consultantID string, req PublishSlotRequest, actor *models.JWTClaims) (*models.AvailabilitySlot, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid slot payload")
	}
	if !req.StartTime.Before(req.EndTime) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_time must be before end_time")
	}
	if req.StartTime.Before(s.now()) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "slot must start in the future")
	}

	consultant, err := s.loadConsultant(ctx, consultantID)
	if err != nil {
		return nil, err
	}
	if actor.Role == models.RoleConsultant && consultant.UserID != actor.UserID {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "consultants may only publish their own slots")
	}

	overlaps, err := s.slots.HasOverlap(ctx, consultantID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check slot overlap")
	}
	if overlaps {
		return nil, appErrors.Clone(appErrors.ErrSlotOverlap, "")
	}

	slot := &models.AvailabilitySlot{
		ConsultantID: consultantID,
		StartTime:    req.StartTime.UTC(),
		EndTime:      req.EndTime.UTC(),
		Status:       models.SlotStatusFree,
	}
	if err := s.slots.Create(ctx, slot); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create slot")
	}

	s.invalidateListing(ctx, consultantID)
	return slot, nil
}

// Withdraw removes a slot while it is still free. Held or booked slots
// refuse withdrawal to protect in-flight reservations.
func (s *AvailabilityService) Withdraw(ctx context.Context, slotID string, actor *models.JWTClaims) error {
	slot, err := s.slots.FindByID(ctx, slotID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "slot not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load slot")
	}

	if actor.Role == models.RoleConsultant {
		consultant, err := s.loadConsultant(ctx, slot.ConsultantID)
		if err != nil {
			return err
		}
		if consultant.UserID != actor.UserID {
			return appErrors.Clone(appErrors.ErrForbidden, "consultants may only withdraw their own slots")
		}
	}

	removed, err := s.slots.DeleteFree(ctx, slotID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to withdraw slot")
	}
	if !removed {
		return appErrors.Clone(appErrors.ErrSlotNotFree, "")
	}

	s.invalidateListing(ctx, slot.ConsultantID)
	return nil
}

// ListAvailable returns free, future slots for a consultant ordered by
// start time ascending. Pages are served from cache when possible.
func (s *AvailabilityService) ListAvailable(ctx context.Context, filter models.SlotFilter) ([]models.AvailabilitySlot, *models.Pagination, bool, error) {
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}

	key := s.listingKey(filter, page, size)
	if s.cache != nil {
		var cached cachedSlotPage
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached.Slots, &models.Pagination{Page: page, PageSize: size, TotalCount: cached.Total}, true, nil
		}
	}

	slots, total, err := s.slots.ListAvailable(ctx, filter, s.now())
	if err != nil {
		return nil, nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list availability")
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, cachedSlotPage{Slots: slots, Total: total}, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache availability listing", zap.Error(err))
		}
	}

	return slots, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, false, nil
}

// InvalidateListing drops cached availability pages for a consultant.
// Exposed so the booking side can call it after slot mutations.
func (s *AvailabilityService) InvalidateListing(ctx context.Context, consultantID string) {
	s.invalidateListing(ctx, consultantID)
}

func (s *AvailabilityService) invalidateListing(ctx context.Context, consultantID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, fmt.Sprintf("availability:%s:*", consultantID)); err != nil {
		s.logger.Warn("failed to invalidate availability cache", zap.String("consultant_id", consultantID), zap.Error(err))
	}
}

func (s *AvailabilityService) listingKey(filter models.SlotFilter, page, size int) string {
	from, to := "", ""
	if !filter.From.IsZero() {
		from = filter.From.UTC().Format(time.RFC3339)
	}
	if !filter.To.IsZero() {
		to = filter.To.UTC().Format(time.RFC3339)
	}
	return fmt.Sprintf("availability:%s:%s:%s:%d:%d", filter.ConsultantID, from, to, page, size)
}

func (s *AvailabilityService) loadConsultant(ctx context.Context, id string) (*models.Consultant, error) {
	consultant, err := s.consultants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consultant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consultant")
	}
	return consultant, nil
}
