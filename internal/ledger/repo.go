package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
)

const maxLastErrorLen = 1024

// Repository manages persistence for ledger transfer instructions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, transfer *models.LedgerTransfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerTransfer, error)
	ListByGig(ctx context.Context, gigID uint64) ([]models.LedgerTransfer, error)
	MarkCompleted(ctx context.Context, id uuid.UUID, receiptID string, attempts int, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, reason string) error
	MarkDead(ctx context.Context, id uuid.UUID, attempts int, reason string) error
	ClaimRetryable(ctx context.Context, limit int, staleBefore time.Time, maxAttempts int) ([]models.LedgerTransfer, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, transfer *models.LedgerTransfer) error {
	if transfer.ID == uuid.Nil {
		transfer.ID = uuid.New()
	}
	if transfer.Status == "" {
		transfer.Status = enums.TransferStatusDispatching
	}
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.LedgerTransfer, error) {
	var transfer models.LedgerTransfer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *repository) ListByGig(ctx context.Context, gigID uint64) ([]models.LedgerTransfer, error) {
	var transfers []models.LedgerTransfer
	if err := r.db.WithContext(ctx).
		Where("gig_id = ?", gigID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&transfers).Error; err != nil {
		return nil, err
	}
	return transfers, nil
}

// MarkCompleted only touches rows still in flight so a late success cannot
// resurrect a dead transfer.
func (r *repository) MarkCompleted(ctx context.Context, id uuid.UUID, receiptID string, attempts int, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerTransfer{}).
		Where("id = ? AND status IN ?", id, pendingStatuses()).
		Updates(map[string]any{
			"status":        enums.TransferStatusCompleted,
			"receipt_id":    receiptID,
			"attempt_count": attempts,
			"completed_at":  at,
			"last_error":    nil,
		}).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, reason string) error {
	return r.markPending(ctx, id, enums.TransferStatusFailed, attempts, reason)
}

func (r *repository) MarkDead(ctx context.Context, id uuid.UUID, attempts int, reason string) error {
	return r.markPending(ctx, id, enums.TransferStatusDead, attempts, reason)
}

func (r *repository) markPending(ctx context.Context, id uuid.UUID, status enums.LedgerTransferStatus, attempts int, reason string) error {
	return r.db.WithContext(ctx).
		Model(&models.LedgerTransfer{}).
		Where("id = ? AND status IN ?", id, pendingStatuses()).
		Updates(map[string]any{
			"status":        status,
			"attempt_count": attempts,
			"last_error":    truncateReason(reason),
		}).Error
}

// ClaimRetryable leases up to limit transfers that failed, or that have sat
// in dispatching since before staleBefore, by flipping them to dispatching
// with a fresh updated_at. On Postgres the select skips rows another worker
// holds.
func (r *repository) ClaimRetryable(ctx context.Context, limit int, staleBefore time.Time, maxAttempts int) ([]models.LedgerTransfer, error) {
	if limit <= 0 {
		limit = 50
	}
	var claimed []models.LedgerTransfer
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Where("(status = ?) OR (status = ? AND updated_at < ?)",
			enums.TransferStatusFailed, enums.TransferStatusDispatching, staleBefore).
			Order("updated_at ASC").
			Limit(limit)
		if maxAttempts > 0 {
			q = q.Where("attempt_count < ?", maxAttempts)
		}
		if tx.Dialector.Name() == "postgres" {
			q = q.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"})
		}
		if err := q.Find(&claimed).Error; err != nil {
			return err
		}
		if len(claimed) == 0 {
			return nil
		}
		ids := make([]uuid.UUID, 0, len(claimed))
		for _, t := range claimed {
			ids = append(ids, t.ID)
		}
		now := time.Now().UTC()
		for i := range claimed {
			claimed[i].Status = enums.TransferStatusDispatching
			claimed[i].UpdatedAt = now
		}
		return tx.Model(&models.LedgerTransfer{}).
			Where("id IN ?", ids).
			Updates(map[string]any{
				"status":     enums.TransferStatusDispatching,
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func pendingStatuses() []enums.LedgerTransferStatus {
	return []enums.LedgerTransferStatus{enums.TransferStatusDispatching, enums.TransferStatusFailed}
}

// truncateReason caps reason at maxLastErrorLen bytes without leaving a
// split rune behind; Postgres rejects invalid UTF-8 in text columns.
func truncateReason(reason string) string {
	if len(reason) > maxLastErrorLen {
		reason = reason[:maxLastErrorLen]
	}
	return strings.ToValidUTF8(reason, "")
}
