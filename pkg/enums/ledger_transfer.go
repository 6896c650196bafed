package enums

import "fmt"

// LedgerTransferKind maps to ledger_transfers.kind.
type LedgerTransferKind string

const (
	TransferKindPayout           LedgerTransferKind = "payout"
	TransferKindSettlementPayout LedgerTransferKind = "settlement_payout"
	TransferKindClientRefund     LedgerTransferKind = "client_refund"
)

var validTransferKinds = []LedgerTransferKind{
	TransferKindPayout,
	TransferKindSettlementPayout,
	TransferKindClientRefund,
}

func (k LedgerTransferKind) IsValid() bool {
	for _, candidate := range validTransferKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// LedgerTransferStatus maps to ledger_transfers.status.
type LedgerTransferStatus string

const (
	TransferStatusDispatching LedgerTransferStatus = "dispatching"
	TransferStatusCompleted   LedgerTransferStatus = "completed"
	TransferStatusFailed      LedgerTransferStatus = "failed"
	TransferStatusDead        LedgerTransferStatus = "dead"
)

var validTransferStatuses = []LedgerTransferStatus{
	TransferStatusDispatching,
	TransferStatusCompleted,
	TransferStatusFailed,
	TransferStatusDead,
}

func (s LedgerTransferStatus) IsValid() bool {
	for _, candidate := range validTransferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// Terminal reports whether the reconciler should stop looking at the row.
func (s LedgerTransferStatus) Terminal() bool {
	return s == TransferStatusCompleted || s == TransferStatusDead
}

func ParseLedgerTransferStatus(value string) (LedgerTransferStatus, error) {
	for _, candidate := range validTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid ledger transfer status %q", value)
}
