package service

import (
	"context"
	"database/sql"
	"errors"

	"go.uber.org/zap"

	"github.com/famcare-id/famcare-api/internal/models"
	appErrors "github.com/famcare-id/famcare-api/pkg/errors"
)

type consultantRepository interface {
	List(ctx context.Context, filter models.ConsultantFilter) ([]models.Consultant, int, error)
	FindByID(ctx context.Context, id string) (*models.Consultant, error)
	FindByUserID(ctx context.Context, userID string) (*models.Consultant, error)
}

// ConsultantService serves the consultant directory.
type ConsultantService struct {
	consultants consultantRepository
	logger      *zap.Logger
}

// NewConsultantService creates a new consultant service instance.
func NewConsultantService(consultants consultantRepository, logger *zap.Logger) *ConsultantService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsultantService{consultants: consultants, logger: logger}
}

// List returns consultants matching the filter.
func (s *ConsultantService) List(ctx context.Context, filter models.ConsultantFilter) ([]models.Consultant, *models.Pagination, error) {
	consultants, total, err := s.consultants.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list consultants")
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return consultants, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns one consultant profile.
func (s *ConsultantService) Get(ctx context.Context, id string) (*models.Consultant, error) {
	consultant, err := s.consultants.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "consultant not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load consultant")
	}
	return consultant, nil
}
