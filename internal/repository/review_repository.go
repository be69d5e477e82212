package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/famcare-id/famcare-api/internal/models"
)

const reviewColumns = "id, session_id, consultant_id, client_id, rating, comment, is_anonymous, private_comment, created_at"

// ReviewRepository handles persistence for session reviews.
type ReviewRepository struct {
	db *sqlx.DB
}

// NewReviewRepository instantiates a review repository.
func NewReviewRepository(db *sqlx.DB) *ReviewRepository {
	return &ReviewRepository{db: db}
}

// Create inserts a review. The unique index on session_id makes the
// check-then-insert race safe: the second concurrent insert hits
// ON CONFLICT DO NOTHING and reports inserted=false.
func (r *ReviewRepository) Create(ctx context.Context, review *models.Review) (inserted bool, err error) {
	if review.ID == "" {
		review.ID = uuid.NewString()
	}
	if review.CreatedAt.IsZero() {
		review.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO reviews (id, session_id, consultant_id, client_id, rating, comment, is_anonymous, private_comment, created_at) VALUES (:id, :session_id, :consultant_id, :client_id, :rating, :comment, :is_anonymous, :private_comment, :created_at) ON CONFLICT (session_id) DO NOTHING`
	res, err := r.db.NamedExecContext(ctx, query, review)
	if err != nil {
		return false, fmt.Errorf("create review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("create review rows: %w", err)
	}
	return affected == 1, nil
}

// FindBySessionID loads a review by the session it belongs to.
func (r *ReviewRepository) FindBySessionID(ctx context.Context, sessionID string) (*models.Review, error) {
	query := fmt.Sprintf("SELECT %s FROM reviews WHERE session_id = $1", reviewColumns)
	var review models.Review
	if err := r.db.GetContext(ctx, &review, query, sessionID); err != nil {
		return nil, err
	}
	return &review, nil
}

// ListByConsultant returns reviews for a consultant, newest first.
func (r *ReviewRepository) ListByConsultant(ctx context.Context, filter models.ReviewFilter) ([]models.Review, int, error) {
	base := "FROM reviews WHERE consultant_id = $1"
	args := []interface{}{filter.ConsultantID}

	if filter.MinRating > 0 {
		base += fmt.Sprintf(" AND rating >= $%d", len(args)+1)
		args = append(args, filter.MinRating)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY created_at DESC LIMIT %d OFFSET %d", reviewColumns, base, size, offset)

	var reviews []models.Review
	if err := r.db.SelectContext(ctx, &reviews, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list reviews: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count reviews: %w", err)
	}

	return reviews, total, nil
}

// RecalculateRating refreshes the consultant's denormalised rating from
// its reviews.
func (r *ReviewRepository) RecalculateRating(ctx context.Context, consultantID string) error {
	const query = `UPDATE consultants SET rating_average = COALESCE(agg.avg_rating, 0), rating_count = COALESCE(agg.cnt, 0), updated_at = $2 FROM (SELECT AVG(rating)::float AS avg_rating, COUNT(*) AS cnt FROM reviews WHERE consultant_id = $1) agg WHERE consultants.id = $1`
	if _, err := r.db.ExecContext(ctx, query, consultantID, time.Now().UTC()); err != nil {
		return fmt.Errorf("recalculate consultant rating: %w", err)
	}
	return nil
}
