package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pullstream-backend/pkg/enums"
)

const defaultEscrowNamespace = "escrow:gig"

// TransferRequest moves Amount from a gig escrow to a recipient. TransferID
// is the idempotency key: repeating a request with the same id must not move
// funds twice.
type TransferRequest struct {
	TransferID uuid.UUID
	GigID      uint64
	Kind       enums.LedgerTransferKind
	Escrow     string
	To         string
	Amount     decimal.Decimal
}

func (r TransferRequest) validate() error {
	if r.TransferID == uuid.Nil {
		return errors.New("transfer id is required")
	}
	if strings.TrimSpace(r.Escrow) == "" {
		return errors.New("escrow account is required")
	}
	if strings.TrimSpace(r.To) == "" {
		return errors.New("recipient is required")
	}
	if !r.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive, got %s", r.Amount)
	}
	return nil
}

// Receipt is the custody service acknowledgement of a transfer.
type Receipt struct {
	ID          string
	TransferID  uuid.UUID
	CompletedAt time.Time
}

// Transferer is the custody service contract.
type Transferer interface {
	Transfer(ctx context.Context, req TransferRequest) (Receipt, error)
}

// RejectedError marks a transfer the custody service refused outright.
// Retrying the same request will not change the answer.
type RejectedError struct {
	Status int
	Reason string
}

func (e *RejectedError) Error() string {
	if e.Status == 0 {
		return "ledger rejected transfer: " + e.Reason
	}
	return fmt.Sprintf("ledger rejected transfer (status %d): %s", e.Status, e.Reason)
}

// IsRejected reports whether err carries a RejectedError.
func IsRejected(err error) bool {
	var rejected *RejectedError
	return errors.As(err, &rejected)
}

// EscrowAccount names the custody account holding a gig's funds.
func EscrowAccount(namespace string, gigID uint64) string {
	ns := strings.TrimRight(strings.TrimSpace(namespace), ":")
	if ns == "" {
		ns = defaultEscrowNamespace
	}
	return fmt.Sprintf("%s:%d", ns, gigID)
}
