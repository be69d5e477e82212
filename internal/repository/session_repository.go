package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/famcare-id/famcare-api/internal/models"
)

const sessionColumns = `s.id, s.slot_id, s.consultant_id, s.client_id, s.status, s.notes, s.contact_channel, s.cancelled_by, s.cancellation_reason, s.cancellation_fee_percent, s.created_at, s.updated_at, sl.start_time AS slot_start, sl.end_time AS slot_end`

// SessionRepository handles persistence for booked sessions.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository instantiates a session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// insertSession writes a session row inside the caller's transaction. It
// is shared with SlotRepository.ConfirmAndCreateSession so that booking a
// slot and creating its session stay one atomic step.
func insertSession(ctx context.Context, tx *sqlx.Tx, session *models.Session) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	if session.Status == "" {
		session.Status = models.SessionStatusPending
	}

	const query = `INSERT INTO sessions (id, slot_id, consultant_id, client_id, status, notes, contact_channel, created_at, updated_at) VALUES (:id, :slot_id, :consultant_id, :client_id, :status, :notes, :contact_channel, :created_at, :updated_at)`
	if _, err := tx.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID loads a session joined with its slot times.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.Session, error) {
	query := fmt.Sprintf("SELECT %s FROM sessions s JOIN availability_slots sl ON sl.id = s.slot_id WHERE s.id = $1", sessionColumns)
	var session models.Session
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// List returns sessions matching the provided filters.
func (r *SessionRepository) List(ctx context.Context, filter models.SessionFilter) ([]models.Session, int, error) {
	base := "FROM sessions s JOIN availability_slots sl ON sl.id = s.slot_id WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.ConsultantID != "" {
		conditions = append(conditions, fmt.Sprintf("s.consultant_id = $%d", len(args)+1))
		args = append(args, filter.ConsultantID)
	}
	if filter.ClientID != "" {
		conditions = append(conditions, fmt.Sprintf("s.client_id = $%d", len(args)+1))
		args = append(args, filter.ClientID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if !filter.From.IsZero() {
		conditions = append(conditions, fmt.Sprintf("sl.start_time >= $%d", len(args)+1))
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		conditions = append(conditions, fmt.Sprintf("sl.start_time < $%d", len(args)+1))
		args = append(args, filter.To)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	allowedSorts := map[string]string{
		"start_time": "sl.start_time",
		"created_at": "s.created_at",
		"status":     "s.status",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "sl.start_time"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", sessionColumns, base, column, order, size, offset)

	var sessions []models.Session
	if err := r.db.SelectContext(ctx, &sessions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list sessions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	return sessions, total, nil
}

// UpdateStatus persists a status transition on a session.
func (r *SessionRepository) UpdateStatus(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()
	const query = `UPDATE sessions SET status = :status, cancelled_by = :cancelled_by, cancellation_reason = :cancellation_reason, cancellation_fee_percent = :cancellation_fee_percent, updated_at = :updated_at WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("update session status: %w", err)
	}
	return nil
}

// CancelAndReleaseSlot marks the session cancelled and frees its slot in
// one transaction, so the slot can never stay booked for a dead session.
func (r *SessionRepository) CancelAndReleaseSlot(ctx context.Context, session *models.Session) (err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin cancel tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	session.UpdatedAt = time.Now().UTC()
	const updateQuery = `UPDATE sessions SET status = :status, cancelled_by = :cancelled_by, cancellation_reason = :cancellation_reason, cancellation_fee_percent = :cancellation_fee_percent, updated_at = :updated_at WHERE id = :id`
	if _, err = tx.NamedExecContext(ctx, updateQuery, session); err != nil {
		return fmt.Errorf("cancel session: %w", err)
	}

	const releaseQuery = `UPDATE availability_slots SET status = $1, version = version + 1, held_by = NULL, hold_expires_at = NULL, updated_at = $2 WHERE id = $3 AND status = $4`
	if _, err = tx.ExecContext(ctx, releaseQuery,
		models.SlotStatusFree, time.Now().UTC(), session.SlotID, models.SlotStatusBooked); err != nil {
		return fmt.Errorf("release cancelled slot: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit cancel tx: %w", err)
	}
	return nil
}
