package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/salymed/salymed-backend/pkg/db/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Insert(tx *gorm.DB, event models.OutboxEvent) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	return tx.Create(&event).Error
}

// FetchUnpublishedForPublish claims a batch of pending rows. On Postgres the
// rows are locked with SKIP LOCKED so parallel publishers never share work.
func (r *Repository) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	if tx == nil {
		return nil, errors.New("transaction required")
	}
	query := tx.Where("published_at IS NULL").
		Where("attempt_count < ?", maxAttempts).
		Order("created_at ASC").
		Order("id ASC").
		Limit(limit)
	if tx.Dialector != nil && tx.Dialector.Name() == "postgres" {
		query = query.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
	}
	var rows []models.OutboxEvent
	err := query.Find(&rows).Error
	return rows, err
}

func (r *Repository) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"published_at": time.Now().UTC(),
			"last_error":   nil,
		}).Error
}

func (r *Repository) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": gorm.Expr("attempt_count + 1"),
		}).Error
}

// MarkTerminalTx records err and pushes the attempt count to terminalAttempts so
// the row is never fetched again.
func (r *Repository) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return tx.Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_error":    err.Error(),
			"attempt_count": terminalAttempts,
		}).Error
}

// DeletePublishedBefore removes up to limit rows published before cutoff.
func (r *Repository) DeletePublishedBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, limit int) (int64, error) {
	return r.deleteChunk(ctx, tx, limit, func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NOT NULL AND published_at < ?", cutoff)
	})
}

// DeleteTerminalBefore removes up to limit rows that exhausted their publish
// attempts and were created before cutoff.
func (r *Repository) DeleteTerminalBefore(ctx context.Context, tx *gorm.DB, cutoff time.Time, maxAttempts, limit int) (int64, error) {
	return r.deleteChunk(ctx, tx, limit, func(q *gorm.DB) *gorm.DB {
		return q.Where("published_at IS NULL AND attempt_count >= ? AND created_at < ?", maxAttempts, cutoff)
	})
}

func (r *Repository) deleteChunk(ctx context.Context, tx *gorm.DB, limit int, scope func(*gorm.DB) *gorm.DB) (int64, error) {
	if tx == nil {
		tx = r.db
	}
	tx = tx.WithContext(ctx)
	ids := scope(tx.Model(&models.OutboxEvent{})).Select("id").Order("created_at ASC").Limit(limit)
	res := tx.Where("id IN (?)", ids).Delete(&models.OutboxEvent{})
	return res.RowsAffected, res.Error
}
