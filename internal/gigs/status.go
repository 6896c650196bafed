package gigs

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pullstream-backend/internal/accrual"
	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
)

// GigStatus is the read model returned by every engine operation. Durations
// are reported in milliseconds, the storage unit.
type GigStatus struct {
	ID              uint64          `json:"id"`
	Client          string          `json:"client"`
	Freelancer      string          `json:"freelancer"`
	State           enums.GigState  `json:"state"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	AmountPaid      decimal.Decimal `json:"amount_paid"`
	StartTime       time.Time       `json:"start_time"`
	DurationMS      int64           `json:"duration_ms"`
	Paused          bool            `json:"paused"`
	PauseTime       *time.Time      `json:"pause_time,omitempty"`
	TotalPauseMS    int64           `json:"total_pause_ms"`
	SettledAt       *time.Time      `json:"settled_at,omitempty"`
	ElapsedMS       int64           `json:"elapsed_ms"`
	TimePercentage  decimal.Decimal `json:"time_percentage"`
	ExpectedAmount  decimal.Decimal `json:"expected_amount"`
	RemainingAmount decimal.Decimal `json:"remaining_amount"`
	Payable         decimal.Decimal `json:"payable"`
	VestingComplete bool            `json:"vesting_complete"`
	IsCompleted     bool            `json:"is_completed"`
	EvaluatedAt     time.Time       `json:"evaluated_at"`
}

// Elapsed returns the effective vesting time as a duration.
func (s GigStatus) Elapsed() time.Duration {
	return time.Duration(s.ElapsedMS) * time.Millisecond
}

// TransferView is the public shape of a ledger transfer instruction.
type TransferView struct {
	ID          string                     `json:"id"`
	GigID       uint64                     `json:"gig_id"`
	Kind        enums.LedgerTransferKind   `json:"kind"`
	Recipient   string                     `json:"recipient"`
	Amount      decimal.Decimal            `json:"amount"`
	Status      enums.LedgerTransferStatus `json:"status"`
	Attempts    int                        `json:"attempts"`
	LastError   *string                    `json:"last_error,omitempty"`
	ReceiptID   *string                    `json:"receipt_id,omitempty"`
	CreatedAt   time.Time                  `json:"created_at"`
	CompletedAt *time.Time                 `json:"completed_at,omitempty"`
}

// PayoutResult is returned by PayNow.
type PayoutResult struct {
	GigID      uint64          `json:"gig_id"`
	Amount     decimal.Decimal `json:"amount"`
	AmountPaid decimal.Decimal `json:"amount_paid"`
	Remaining  decimal.Decimal `json:"remaining"`
	Transfer   TransferView    `json:"transfer"`
}

// SettlementResult is returned by WithdrawRemaining.
type SettlementResult struct {
	GigID            uint64          `json:"gig_id"`
	FreelancerPayout decimal.Decimal `json:"freelancer_payout"`
	ClientRefund     decimal.Decimal `json:"client_refund"`
	SettledAt        time.Time       `json:"settled_at"`
	Transfers        []TransferView  `json:"transfers"`
}

// GigList is one page of ListGigs.
type GigList struct {
	Gigs       []GigStatus `json:"gigs"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func streamOf(gig *models.Gig) accrual.Stream {
	s := accrual.Stream{
		TotalAmount:        gig.TotalAmount,
		AmountPaid:         gig.AmountPaid,
		StartTime:          gig.StartTime,
		Duration:           gig.Duration(),
		Paused:             gig.Paused,
		TotalPauseDuration: gig.TotalPauseDuration(),
	}
	if gig.PauseTime != nil {
		s.PauseTime = *gig.PauseTime
	}
	return s
}

func stateOf(gig *models.Gig, snap accrual.Snapshot) enums.GigState {
	switch {
	case gig.Settled():
		return enums.GigStateSettled
	case snap.VestingComplete:
		return enums.GigStateCompleted
	case gig.Paused:
		return enums.GigStatePaused
	default:
		return enums.GigStateActive
	}
}

func buildStatus(calc accrual.Calculator, gig *models.Gig, now time.Time) GigStatus {
	snap := calc.Snapshot(streamOf(gig), now)
	return GigStatus{
		ID:              gig.ID,
		Client:          gig.Client,
		Freelancer:      gig.Freelancer,
		State:           stateOf(gig, snap),
		TotalAmount:     gig.TotalAmount,
		AmountPaid:      gig.AmountPaid,
		StartTime:       gig.StartTime.UTC(),
		DurationMS:      gig.DurationMS,
		Paused:          gig.Paused,
		PauseTime:       utcPtr(gig.PauseTime),
		TotalPauseMS:    gig.TotalPauseMS,
		SettledAt:       utcPtr(gig.SettledAt),
		ElapsedMS:       snap.ElapsedTime.Milliseconds(),
		TimePercentage:  snap.TimePercentage,
		ExpectedAmount:  snap.ExpectedAmount,
		RemainingAmount: snap.RemainingAmount,
		Payable:         snap.Payable,
		VestingComplete: snap.VestingComplete,
		IsCompleted:     snap.IsCompleted,
		EvaluatedAt:     now.UTC(),
	}
}

func transferView(t models.LedgerTransfer) TransferView {
	return TransferView{
		ID:          t.ID.String(),
		GigID:       t.GigID,
		Kind:        t.Kind,
		Recipient:   t.Recipient,
		Amount:      t.Amount,
		Status:      t.Status,
		Attempts:    t.AttemptCount,
		LastError:   t.LastError,
		ReceiptID:   t.ReceiptID,
		CreatedAt:   t.CreatedAt.UTC(),
		CompletedAt: utcPtr(t.CompletedAt),
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
