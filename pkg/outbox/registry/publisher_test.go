package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/pullstream-backend/pkg/config"
	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	payloadBytes := mustMarshal(t, payloads.GigPayoutRecordedEvent{
		GigID:      9,
		TransferID: uuid.NewString(),
		Kind:       enums.TransferKindPayout,
		Recipient:  "0xfreelancer",
		Amount:     decimal.RequireFromString("50"),
	})

	event := models.OutboxEvent{
		EventType:     enums.EventGigPayoutRecorded,
		AggregateType: enums.AggregateGig,
		AggregateID:   "9",
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "gig-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.GigPayoutRecordedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.GigID != 9 || !payload.Amount.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" {
		t.Fatalf("envelope missing event id")
	}
}

func TestEventRegistryResolveRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)
	validPayload := mustEnvelope(t, mustMarshal(t, payloads.GigPausedEvent{GigID: 1}))

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     "gig_exploded",
			AggregateType: enums.AggregateGig,
			AggregateID:   "1",
			Payload:       validPayload,
		},
		"aggregate mismatch": {
			EventType:     enums.EventGigPaused,
			AggregateType: enums.AggregateLedgerTransfer,
			AggregateID:   "1",
			Payload:       validPayload,
		},
		"missing aggregate id": {
			EventType:     enums.EventGigPaused,
			AggregateType: enums.AggregateGig,
			Payload:       validPayload,
		},
		"null payload": {
			EventType:     enums.EventGigPaused,
			AggregateType: enums.AggregateGig,
			AggregateID:   "1",
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"garbage envelope": {
			EventType:     enums.EventGigPaused,
			AggregateType: enums.AggregateGig,
			AggregateID:   "1",
			Payload:       json.RawMessage(`{"version":`),
		},
	}

	for name, event := range cases {
		_, err := reg.Resolve(event)
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
		var nonRetry NonRetryableError
		if !errors.As(err, &nonRetry) {
			t.Fatalf("%s: expected non-retryable error, got %T", name, err)
		}
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic error")
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{GigTopic: "gig-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return b
}

func mustEnvelope(t *testing.T, data []byte) json.RawMessage {
	t.Helper()
	return mustMarshal(t, outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       data,
	})
}
