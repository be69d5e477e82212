package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"github.com/famcare-id/famcare-api/internal/models"
)

const consultantColumns = "id, user_id, full_name, specialization, bio, hourly_rate, rating_average, rating_count, active, created_at, updated_at"

// ConsultantRepository provides read access to the consultant directory.
type ConsultantRepository struct {
	db *sqlx.DB
}

// NewConsultantRepository instantiates a consultant repository.
func NewConsultantRepository(db *sqlx.DB) *ConsultantRepository {
	return &ConsultantRepository{db: db}
}

// List returns consultants matching provided filters.
func (r *ConsultantRepository) List(ctx context.Context, filter models.ConsultantFilter) ([]models.Consultant, int, error) {
	base := "FROM consultants WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Specialization != "" {
		conditions = append(conditions, fmt.Sprintf("specialization = $%d", len(args)+1))
		args = append(args, filter.Specialization)
	}
	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		conditions = append(conditions, fmt.Sprintf("full_name ILIKE $%d", len(args)+1))
		args = append(args, "%"+filter.Search+"%")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]bool{
		"full_name":      true,
		"rating_average": true,
		"hourly_rate":    true,
		"created_at":     true,
	}
	if !allowedSorts[sortBy] {
		sortBy = "rating_average"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", consultantColumns, base, sortBy, order, size, offset)

	var consultants []models.Consultant
	if err := r.db.SelectContext(ctx, &consultants, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list consultants: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count consultants: %w", err)
	}

	return consultants, total, nil
}

// FindByID loads a consultant by identifier.
func (r *ConsultantRepository) FindByID(ctx context.Context, id string) (*models.Consultant, error) {
	query := fmt.Sprintf("SELECT %s FROM consultants WHERE id = $1", consultantColumns)
	var consultant models.Consultant
	if err := r.db.GetContext(ctx, &consultant, query, id); err != nil {
		return nil, err
	}
	return &consultant, nil
}

// FindByUserID resolves the consultant profile owned by a user account.
func (r *ConsultantRepository) FindByUserID(ctx context.Context, userID string) (*models.Consultant, error) {
	query := fmt.Sprintf("SELECT %s FROM consultants WHERE user_id = $1", consultantColumns)
	var consultant models.Consultant
	if err := r.db.GetContext(ctx, &consultant, query, userID); err != nil {
		return nil, err
	}
	return &consultant, nil
}
