package payloads

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pullstream-backend/pkg/enums"
)

// GigCreatedEvent announces a newly funded stream.
type GigCreatedEvent struct {
	GigID           uint64          `json:"gig_id"`
	Client          string          `json:"client"`
	Freelancer      string          `json:"freelancer"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	StartTime       time.Time       `json:"start_time"`
	DurationSeconds int64           `json:"duration_seconds"`
}

// GigPausedEvent is emitted when the client freezes vesting.
type GigPausedEvent struct {
	GigID          uint64          `json:"gig_id"`
	PausedAt       time.Time       `json:"paused_at"`
	VestedAtPause  decimal.Decimal `json:"vested_at_pause"`
	ElapsedSeconds int64           `json:"elapsed_seconds"`
}

// GigResumedEvent is emitted when vesting restarts after a pause.
type GigResumedEvent struct {
	GigID        uint64    `json:"gig_id"`
	ResumedAt    time.Time `json:"resumed_at"`
	PauseSpanMS  int64     `json:"pause_span_ms"`
	TotalPauseMS int64     `json:"total_pause_ms"`
}

// GigPayoutRecordedEvent is emitted when vested funds are committed to a
// transfer instruction.
type GigPayoutRecordedEvent struct {
	GigID      uint64                   `json:"gig_id"`
	TransferID string                   `json:"transfer_id"`
	Kind       enums.LedgerTransferKind `json:"kind"`
	Recipient  string                   `json:"recipient"`
	Amount     decimal.Decimal          `json:"amount"`
	AmountPaid decimal.Decimal          `json:"amount_paid"`
	Remaining  decimal.Decimal          `json:"remaining"`
}

// GigSettledEvent closes the stream record.
type GigSettledEvent struct {
	GigID            uint64          `json:"gig_id"`
	SettledAt        time.Time       `json:"settled_at"`
	FreelancerPayout decimal.Decimal `json:"freelancer_payout"`
	ClientRefund     decimal.Decimal `json:"client_refund"`
}

// LedgerTransferDeadEvent asks operators to reconcile a transfer by hand.
type LedgerTransferDeadEvent struct {
	TransferID string          `json:"transfer_id"`
	GigID      uint64          `json:"gig_id"`
	Recipient  string          `json:"recipient"`
	Amount     decimal.Decimal `json:"amount"`
	Attempts   int             `json:"attempts"`
	LastError  string          `json:"last_error"`
}
