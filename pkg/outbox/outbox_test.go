package outbox_test

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/pullstream-backend/pkg/db/dbtest"
	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := client.WithTx(t.Context(), func(tx *gorm.DB) error {
		return svc.Emit(t.Context(), tx, outbox.DomainEvent{
			EventType:     enums.EventGigPaused,
			AggregateType: enums.AggregateGig,
			AggregateID:   "7",
			Actor:         &outbox.ActorRef{Identity: "alice", Role: "client"},
			OccurredAt:    at,
			Data: payloads.GigPausedEvent{
				GigID:         7,
				PausedAt:      at,
				VestedAtPause: decimal.RequireFromString("12.5"),
			},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(t.Context(), string(enums.AggregateGig), "7")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, enums.EventGigPaused, rows[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.True(t, envelope.OccurredAt.Equal(at))
	require.Equal(t, "alice", envelope.Actor.Identity)
	_, err = uuid.Parse(envelope.EventID)
	require.NoError(t, err)

	var data payloads.GigPausedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &data))
	require.Equal(t, uint64(7), data.GigID)
	require.True(t, data.VestedAtPause.Equal(decimal.RequireFromString("12.5")))
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	svc := outbox.NewService(repo, nil)
	boom := errors.New("state change failed")

	err := client.WithTx(t.Context(), func(tx *gorm.DB) error {
		if err := svc.Emit(t.Context(), tx, outbox.DomainEvent{
			EventType:     enums.EventGigCreated,
			AggregateType: enums.AggregateGig,
			AggregateID:   "1",
			Data:          payloads.GigCreatedEvent{GigID: 1},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(t.Context(), string(enums.AggregateGig), "1")
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRejectsBadEvents(t *testing.T) {
	client := dbtest.Open(t)
	svc := outbox.NewService(outbox.NewRepository(client.DB()), nil)

	cases := map[string]outbox.DomainEvent{
		"unknown type":  {EventType: "gig_exploded", AggregateType: enums.AggregateGig, AggregateID: "1"},
		"missing id":    {EventType: enums.EventGigCreated, AggregateType: enums.AggregateGig},
		"unmarshalable": {EventType: enums.EventGigCreated, AggregateType: enums.AggregateGig, AggregateID: "1", Data: make(chan int)},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			err := client.WithTx(t.Context(), func(tx *gorm.DB) error {
				return svc.Emit(t.Context(), tx, event)
			})
			require.Error(t, err)
		})
	}
	require.Error(t, svc.Emit(t.Context(), nil, cases["missing id"]))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())

	first, second := seedEvent(t, client.DB(), "1"), seedEvent(t, client.DB(), "2")

	err := client.WithTx(t.Context(), func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		require.Len(t, rows, 2)
		if err := repo.MarkPublishedTx(tx, first); err != nil {
			return err
		}
		return repo.MarkFailedTx(tx, second, errors.New("topic unavailable"))
	})
	require.NoError(t, err)

	err = client.WithTx(t.Context(), func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		require.Len(t, rows, 1)
		require.Equal(t, second, rows[0].ID)
		require.Equal(t, 1, rows[0].AttemptCount)
		require.Equal(t, "topic unavailable", *rows[0].LastError)
		return repo.MarkTerminalTx(tx, second, errors.New("gave up"), 3)
	})
	require.NoError(t, err)

	err = client.WithTx(t.Context(), func(tx *gorm.DB) error {
		rows, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.Empty(t, rows)
		return err
	})
	require.NoError(t, err)
}

func TestDeletePublishedBefore(t *testing.T) {
	client := dbtest.Open(t)
	repo := outbox.NewRepository(client.DB())
	old := time.Now().UTC().Add(-48 * time.Hour)

	for _, aggregate := range []string{"1", "2", "3"} {
		id := seedEvent(t, client.DB(), aggregate)
		require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Where("id = ?", id).Update("published_at", old).Error)
	}
	seedEvent(t, client.DB(), "4")

	deleted, err := repo.DeletePublishedBefore(t.Context(), time.Now().UTC().Add(-24*time.Hour), 2)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	deleted, err = repo.DeletePublishedBefore(t.Context(), time.Now().UTC().Add(-24*time.Hour), 2)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, client.DB().Model(&models.OutboxEvent{}).Count(&remaining).Error)
	require.EqualValues(t, 1, remaining)
}

func TestDLQInsertTruncatesMessage(t *testing.T) {
	client := dbtest.Open(t)
	dlq := outbox.NewDLQRepository(client.DB())
	msg := "x" + strings.Repeat("é", 2048)

	entry := models.OutboxDLQ{
		EventID:       uuid.New(),
		EventType:     enums.EventGigSettled,
		AggregateType: enums.AggregateGig,
		AggregateID:   "9",
		Payload:       json.RawMessage(`{"version":1}`),
		ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
		ErrorMessage:  &msg,
		AttemptCount:  5,
	}
	require.NoError(t, client.WithTx(t.Context(), func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, entry)
	}))

	var stored models.OutboxDLQ
	require.NoError(t, client.DB().First(&stored, "event_id = ?", entry.EventID).Error)
	require.Equal(t, enums.OutboxDLQReasonMaxAttempts, stored.ErrorReason)
	require.NotNil(t, stored.ErrorMessage)
	require.LessOrEqual(t, len(*stored.ErrorMessage), 1024)
	require.True(t, utf8.ValidString(*stored.ErrorMessage))
}

func seedEvent(t *testing.T, conn *gorm.DB, aggregateID string) uuid.UUID {
	t.Helper()
	id := uuid.New()
	require.NoError(t, outbox.NewRepository(conn).Insert(conn, models.OutboxEvent{
		ID:            id,
		EventType:     enums.EventGigCreated,
		AggregateType: enums.AggregateGig,
		AggregateID:   aggregateID,
		Payload:       json.RawMessage(`{"version":1}`),
	}))
	return id
}
