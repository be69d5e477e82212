package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/famcare-id/famcare-api/internal/models"
)

const slotColumns = "id, consultant_id, start_time, end_time, status, version, held_by, hold_expires_at, created_at, updated_at"

// SlotRepository handles persistence for availability slots. Every status
// change is a compare-and-set on (id, version): the UPDATE carries the
// expected version in its WHERE clause, so of two racing writers exactly
// one sees a row affected.
type SlotRepository struct {
	db *sqlx.DB
}

// NewSlotRepository instantiates a slot repository.
func NewSlotRepository(db *sqlx.DB) *SlotRepository {
	return &SlotRepository{db: db}
}

// Create inserts a new slot record.
func (r *SlotRepository) Create(ctx context.Context, slot *models.AvailabilitySlot) error {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = now
	}
	slot.UpdatedAt = now
	if slot.Status == "" {
		slot.Status = models.SlotStatusFree
	}

	const query = `INSERT INTO availability_slots (id, consultant_id, start_time, end_time, status, version, held_by, hold_expires_at, created_at, updated_at) VALUES (:id, :consultant_id, :start_time, :end_time, :status, :version, :held_by, :hold_expires_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, slot); err != nil {
		return fmt.Errorf("create slot: %w", err)
	}
	return nil
}

// FindByID loads a slot by identifier.
func (r *SlotRepository) FindByID(ctx context.Context, id string) (*models.AvailabilitySlot, error) {
	query := fmt.Sprintf("SELECT %s FROM availability_slots WHERE id = $1", slotColumns)
	var slot models.AvailabilitySlot
	if err := r.db.GetContext(ctx, &slot, query, id); err != nil {
		return nil, err
	}
	return &slot, nil
}

// HasOverlap checks whether any existing slot of the consultant intersects
// the half-open interval [start, end).
func (r *SlotRepository) HasOverlap(ctx context.Context, consultantID string, start, end time.Time) (bool, error) {
	const query = `SELECT 1 FROM availability_slots WHERE consultant_id = $1 AND start_time < $3 AND $2 < end_time LIMIT 1`
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, consultantID, start, end); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check slot overlap: %w", err)
	}
	return true, nil
}

// DeleteFree removes a slot only while it is still free. Returns false
// when the slot is held or booked (or gone), protecting in-flight
// reservations.
func (r *SlotRepository) DeleteFree(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM availability_slots WHERE id = $1 AND status = $2`, id, models.SlotStatusFree)
	if err != nil {
		return false, fmt.Errorf("delete slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete slot rows: %w", err)
	}
	return affected == 1, nil
}

// ListAvailable returns free, future slots ordered by start time
// ascending. The offset pagination makes the sequence restartable from
// any page.
func (r *SlotRepository) ListAvailable(ctx context.Context, filter models.SlotFilter, now time.Time) ([]models.AvailabilitySlot, int, error) {
	base := "FROM availability_slots WHERE consultant_id = $1 AND status = $2 AND start_time > $3"
	args := []interface{}{filter.ConsultantID, models.SlotStatusFree, now}

	if !filter.From.IsZero() {
		base += fmt.Sprintf(" AND start_time >= $%d", len(args)+1)
		args = append(args, filter.From)
	}
	if !filter.To.IsZero() {
		base += fmt.Sprintf(" AND start_time < $%d", len(args)+1)
		args = append(args, filter.To)
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY start_time ASC LIMIT %d OFFSET %d", slotColumns, base, size, offset)

	var slots []models.AvailabilitySlot
	if err := r.db.SelectContext(ctx, &slots, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list available slots: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count available slots: %w", err)
	}

	return slots, total, nil
}

// Reserve transitions a slot free -> held iff the caller-supplied version
// still matches. Returns false without error when the CAS found no row,
// meaning the slot changed under the caller.
func (r *SlotRepository) Reserve(ctx context.Context, id string, version int64, clientID string, holdExpiresAt time.Time) (bool, error) {
	const query = `UPDATE availability_slots SET status = $1, version = version + 1, held_by = $2, hold_expires_at = $3, updated_at = $4 WHERE id = $5 AND version = $6 AND status = $7`
	res, err := r.db.ExecContext(ctx, query,
		models.SlotStatusHeld, clientID, holdExpiresAt, time.Now().UTC(), id, version, models.SlotStatusFree)
	if err != nil {
		return false, fmt.Errorf("reserve slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reserve slot rows: %w", err)
	}
	return affected == 1, nil
}

// ConfirmAndCreateSession transitions held -> booked and inserts the
// pending session in one transaction. The version check pins the booking
// to the exact hold the token was issued for; the expiry check refuses
// holds the sweeper is about to reclaim.
func (r *SlotRepository) ConfirmAndCreateSession(ctx context.Context, slotID string, version int64, now time.Time, session *models.Session) (booked bool, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin confirm tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const casQuery = `UPDATE availability_slots SET status = $1, version = version + 1, updated_at = $2 WHERE id = $3 AND version = $4 AND status = $5 AND hold_expires_at > $6`
	res, err := tx.ExecContext(ctx, casQuery,
		models.SlotStatusBooked, now, slotID, version, models.SlotStatusHeld, now)
	if err != nil {
		return false, fmt.Errorf("confirm slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("confirm slot rows: %w", err)
	}
	if affected == 0 {
		_ = tx.Rollback()
		return false, nil
	}

	if err = insertSession(ctx, tx, session); err != nil {
		return false, err
	}

	if err = tx.Commit(); err != nil {
		return false, fmt.Errorf("commit confirm tx: %w", err)
	}
	return true, nil
}

// Release returns a held or booked slot to free, advancing the version
// and discarding hold metadata.
func (r *SlotRepository) Release(ctx context.Context, id string) (bool, error) {
	const query = `UPDATE availability_slots SET status = $1, version = version + 1, held_by = NULL, hold_expires_at = NULL, updated_at = $2 WHERE id = $3 AND status IN ($4, $5)`
	res, err := r.db.ExecContext(ctx, query,
		models.SlotStatusFree, time.Now().UTC(), id, models.SlotStatusHeld, models.SlotStatusBooked)
	if err != nil {
		return false, fmt.Errorf("release slot: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("release slot rows: %w", err)
	}
	return affected == 1, nil
}

// ReleaseExpiredHolds frees held slots whose hold expired before the
// cutoff, up to limit rows. Used only by the sweeper.
func (r *SlotRepository) ReleaseExpiredHolds(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 100
	}
	const query = `UPDATE availability_slots SET status = $1, version = version + 1, held_by = NULL, hold_expires_at = NULL, updated_at = $2 WHERE id IN (SELECT id FROM availability_slots WHERE status = $3 AND hold_expires_at < $4 LIMIT $5)`
	res, err := r.db.ExecContext(ctx, query,
		models.SlotStatusFree, time.Now().UTC(), models.SlotStatusHeld, cutoff, limit)
	if err != nil {
		return 0, fmt.Errorf("release expired holds: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("release expired holds rows: %w", err)
	}
	return affected, nil
}
