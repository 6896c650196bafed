package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pullstream-backend/pkg/clock"
)

// ErrSandboxUnavailable is returned for injected failures.
var ErrSandboxUnavailable = errors.New("sandbox ledger unavailable")

// Sandbox is an in-memory custody service. It deduplicates by transfer id
// and tracks balances per account so local runs and tests can observe
// fund movement.
type Sandbox struct {
	mu        sync.Mutex
	clock     clock.Clock
	receipts  map[uuid.UUID]Receipt
	balances  map[string]decimal.Decimal
	failNext  int
	rejectAll bool
	calls     int
}

func NewSandbox(clk clock.Clock) *Sandbox {
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Sandbox{
		clock:    clk,
		receipts: make(map[uuid.UUID]Receipt),
		balances: make(map[string]decimal.Decimal),
	}
}

// FailNext makes the next n transfers fail with ErrSandboxUnavailable.
func (s *Sandbox) FailNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNext = n
}

// RejectAll makes every new transfer fail permanently.
func (s *Sandbox) RejectAll(reject bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rejectAll = reject
}

func (s *Sandbox) Transfer(ctx context.Context, req TransferRequest) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	if err := req.validate(); err != nil {
		return Receipt{}, &RejectedError{Reason: err.Error()}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++

	if receipt, ok := s.receipts[req.TransferID]; ok {
		return receipt, nil
	}
	if s.failNext > 0 {
		s.failNext--
		return Receipt{}, ErrSandboxUnavailable
	}
	if s.rejectAll {
		return Receipt{}, &RejectedError{Reason: "sandbox rejecting transfers"}
	}

	s.balances[req.Escrow] = s.balances[req.Escrow].Sub(req.Amount)
	s.balances[req.To] = s.balances[req.To].Add(req.Amount)
	receipt := Receipt{
		ID:          "sbx_" + req.TransferID.String(),
		TransferID:  req.TransferID,
		CompletedAt: s.clock.Now().UTC().Truncate(time.Millisecond),
	}
	s.receipts[req.TransferID] = receipt
	return receipt, nil
}

// Balance returns the net amount received by account. Escrow accounts go
// negative as funds leave them.
func (s *Sandbox) Balance(account string) decimal.Decimal {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[account]
}

// Calls counts Transfer invocations including retries and failures.
func (s *Sandbox) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}
