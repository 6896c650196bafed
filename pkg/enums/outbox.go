package enums

import "fmt"

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateGig            OutboxAggregateType = "gig"
	AggregateLedgerTransfer OutboxAggregateType = "ledger_transfer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateGig,
	AggregateLedgerTransfer,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventGigCreated         OutboxEventType = "gig_created"
	EventGigPaused          OutboxEventType = "gig_paused"
	EventGigResumed         OutboxEventType = "gig_resumed"
	EventGigPayoutRecorded  OutboxEventType = "gig_payout_recorded"
	EventGigSettled         OutboxEventType = "gig_settled"
	EventTransferDeadLetter OutboxEventType = "ledger_transfer_dead"
)

var validOutboxEventTypes = []OutboxEventType{
	EventGigCreated,
	EventGigPaused,
	EventGigResumed,
	EventGigPayoutRecorded,
	EventGigSettled,
	EventTransferDeadLetter,
}

func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}

// OutboxDLQErrorReason records why an event was dead-lettered.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
