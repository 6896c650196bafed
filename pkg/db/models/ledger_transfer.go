package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pullstream-backend/pkg/enums"
)

// LedgerTransfer is a durable instruction to move funds out of a gig escrow.
// ID doubles as the idempotency key sent to the custody service.
type LedgerTransfer struct {
	ID           uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	GigID        uint64                     `gorm:"column:gig_id;not null;index"`
	Kind         enums.LedgerTransferKind   `gorm:"column:kind;not null"`
	Recipient    string                     `gorm:"column:recipient;not null"`
	Amount       decimal.Decimal            `gorm:"column:amount;type:numeric(38,8);not null"`
	Status       enums.LedgerTransferStatus `gorm:"column:status;not null"`
	AttemptCount int                        `gorm:"column:attempt_count;not null;default:0"`
	LastError    *string                    `gorm:"column:last_error"`
	ReceiptID    *string                    `gorm:"column:receipt_id"`
	CreatedAt    time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
	CompletedAt  *time.Time                 `gorm:"column:completed_at"`
}

func (LedgerTransfer) TableName() string { return "ledger_transfers" }
