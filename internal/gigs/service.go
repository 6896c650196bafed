package gigs

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/pullstream-backend/internal/accrual"
	"github.com/angelmondragon/pullstream-backend/internal/ledger"
	"github.com/angelmondragon/pullstream-backend/pkg/clock"
	"github.com/angelmondragon/pullstream-backend/pkg/db"
	"github.com/angelmondragon/pullstream-backend/pkg/db/models"
	"github.com/angelmondragon/pullstream-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/pullstream-backend/pkg/errors"
	"github.com/angelmondragon/pullstream-backend/pkg/logger"
	"github.com/angelmondragon/pullstream-backend/pkg/metrics"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox"
	"github.com/angelmondragon/pullstream-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/pullstream-backend/pkg/pagination"
)

const (
	opCreate   = "create_gig"
	opPause    = "pause"
	opResume   = "resume"
	opPayNow   = "pay_now"
	opWithdraw = "withdraw_remaining"
)

// numeric(38,8) leaves 30 integer digits
var maxTotalAmount = decimal.New(1, 30)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transferDispatcher interface {
	Dispatch(ctx context.Context, transfer models.LedgerTransfer) (*models.LedgerTransfer, error)
}

// Service is the gig engine: the only writer of gig records.
type Service interface {
	CreateGig(ctx context.Context, input CreateGigInput) (*GigStatus, error)
	Pause(ctx context.Context, caller string, gigID uint64) (*GigStatus, error)
	Resume(ctx context.Context, caller string, gigID uint64) (*GigStatus, error)
	PayNow(ctx context.Context, caller string, gigID uint64) (*PayoutResult, error)
	WithdrawRemaining(ctx context.Context, caller string, gigID uint64) (*SettlementResult, error)
	GetGigStatus(ctx context.Context, gigID uint64) (*GigStatus, error)
	ListGigs(ctx context.Context, caller string, input ListGigsInput) (*GigList, error)
	ListTransfers(ctx context.Context, caller string, gigID uint64) ([]TransferView, error)
}

// CreateGigInput carries the immutable terms of a new gig. Client is the
// caller funding the escrow.
type CreateGigInput struct {
	Client      string
	Freelancer  string
	TotalAmount decimal.Decimal
	Duration    time.Duration
}

// ListGigsInput filters ListGigs by the side the caller is on.
type ListGigsInput struct {
	Role   enums.GigRole
	Params pagination.Params
}

// Config holds engine policy.
type Config struct {
	PayoutPolicy enums.PayoutPolicy
	// AmountScale is the number of fractional digits amounts keep.
	AmountScale int32
}

// ServiceParams groups the collaborators of the engine.
type ServiceParams struct {
	Repo       Repository
	Transfers  ledger.Repository
	Dispatcher transferDispatcher
	Locker     Locker
	Tx         txRunner
	Outbox     outboxPublisher
	Clock      clock.Clock
	Metrics    *metrics.GigMetrics
	Logger     *logger.Logger
	Config     Config
}

type service struct {
	repo       Repository
	transfers  ledger.Repository
	dispatcher transferDispatcher
	locker     Locker
	tx         txRunner
	outbox     outboxPublisher
	clock      clock.Clock
	calc       accrual.Calculator
	metrics    *metrics.GigMetrics
	logg       *logger.Logger
	policy     enums.PayoutPolicy
}

// NewService builds the gig engine with the required dependencies.
func NewService(p ServiceParams) (Service, error) {
	if p.Repo == nil {
		return nil, fmt.Errorf("gig repository required")
	}
	if p.Transfers == nil {
		return nil, fmt.Errorf("ledger transfer repository required")
	}
	if p.Dispatcher == nil {
		return nil, fmt.Errorf("ledger dispatcher required")
	}
	if p.Locker == nil {
		return nil, fmt.Errorf("gig locker required")
	}
	if p.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if p.Clock == nil {
		return nil, fmt.Errorf("clock required")
	}
	if p.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if p.Config.AmountScale < 0 || p.Config.AmountScale > models.AmountColumnScale {
		return nil, fmt.Errorf("amount scale %d exceeds stored precision %d", p.Config.AmountScale, models.AmountColumnScale)
	}
	policy := p.Config.PayoutPolicy
	if policy == "" {
		policy = enums.PayoutPolicyFreelancer
	}
	return &service{
		repo:       p.Repo,
		transfers:  p.Transfers,
		dispatcher: p.Dispatcher,
		locker:     p.Locker,
		tx:         p.Tx,
		outbox:     p.Outbox,
		clock:      p.Clock,
		calc:       accrual.NewCalculator(p.Config.AmountScale),
		metrics:    p.Metrics,
		logg:       p.Logger,
		policy:     policy,
	}, nil
}

func (s *service) CreateGig(ctx context.Context, input CreateGigInput) (*GigStatus, error) {
	status, err := s.createGig(ctx, input)
	s.observe(opCreate, err)
	return status, err
}

func (s *service) createGig(ctx context.Context, input CreateGigInput) (*GigStatus, error) {
	client := strings.TrimSpace(input.Client)
	freelancer := strings.TrimSpace(input.Freelancer)
	if client == "" || freelancer == "" {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidParty, "client and freelancer are required")
	}
	if sameIdentity(client, freelancer) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidParty, "client and freelancer must differ")
	}
	if !input.TotalAmount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount, "total amount must be positive")
	}
	if !s.calc.Representable(input.TotalAmount) || input.TotalAmount.GreaterThanOrEqual(maxTotalAmount) {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidAmount,
			fmt.Sprintf("total amount %s is not representable with %d fractional digits", input.TotalAmount, s.calc.Scale()))
	}
	durationMS := input.Duration.Milliseconds()
	if input.Duration <= 0 || durationMS <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidDuration, "duration must be at least one millisecond")
	}

	ctx = s.logg.WithOperation(s.logg.WithIdentity(ctx, client), opCreate)
	now := s.clock.Now()
	gig := &models.Gig{
		Client:      client,
		Freelancer:  freelancer,
		TotalAmount: input.TotalAmount,
		AmountPaid:  decimal.Zero,
		StartTime:   now,
		DurationMS:  durationMS,
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, gig); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create gig")
		}
		return s.emit(ctx, tx, gig, client, enums.GigRoleClient, enums.EventGigCreated, payloads.GigCreatedEvent{
			GigID:           gig.ID,
			Client:          gig.Client,
			Freelancer:      gig.Freelancer,
			TotalAmount:     gig.TotalAmount,
			StartTime:       gig.StartTime,
			DurationSeconds: durationMS / 1000,
		}, now)
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithGigID(ctx, gig.ID), "gig created")
	status := buildStatus(s.calc, gig, now)
	return &status, nil
}

func (s *service) Pause(ctx context.Context, caller string, gigID uint64) (*GigStatus, error) {
	ctx = s.opContext(ctx, opPause, caller, gigID)
	var status GigStatus
	err := s.mutate(ctx, opPause, gigID, func(tx *gorm.DB, gig *models.Gig, now time.Time) error {
		if !sameIdentity(caller, gig.Client) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the client can pause a gig")
		}
		if gig.Settled() {
			return pkgerrors.New(pkgerrors.CodeAlreadySettled, "gig is already settled")
		}
		snap := s.calc.Snapshot(streamOf(gig), now)
		if snap.VestingComplete {
			return pkgerrors.New(pkgerrors.CodeGigCompleted, "gig has fully vested")
		}
		if gig.Paused {
			return pkgerrors.New(pkgerrors.CodeAlreadyPaused, "gig is already paused")
		}

		pausedAt := now
		gig.Paused = true
		gig.PauseTime = &pausedAt
		if err := s.repo.WithTx(tx).SaveProgress(ctx, gig); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save gig")
		}
		if err := s.emit(ctx, tx, gig, caller, enums.GigRoleClient, enums.EventGigPaused, payloads.GigPausedEvent{
			GigID:          gig.ID,
			PausedAt:       pausedAt,
			VestedAtPause:  snap.ExpectedAmount,
			ElapsedSeconds: int64(snap.ElapsedTime / time.Second),
		}, now); err != nil {
			return err
		}
		status = buildStatus(s.calc, gig, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "gig paused")
	return &status, nil
}

func (s *service) Resume(ctx context.Context, caller string, gigID uint64) (*GigStatus, error) {
	ctx = s.opContext(ctx, opResume, caller, gigID)
	var status GigStatus
	err := s.mutate(ctx, opResume, gigID, func(tx *gorm.DB, gig *models.Gig, now time.Time) error {
		if !sameIdentity(caller, gig.Client) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the client can resume a gig")
		}
		if !gig.Paused || gig.PauseTime == nil {
			return pkgerrors.New(pkgerrors.CodeNotPaused, "gig is not paused")
		}
		span := now.Sub(*gig.PauseTime)
		if span < 0 {
			return pkgerrors.New(pkgerrors.CodeInternal, "clock is behind the recorded pause time")
		}

		gig.TotalPauseMS += span.Milliseconds()
		gig.Paused = false
		gig.PauseTime = nil
		if err := s.calc.Validate(streamOf(gig)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "resume would corrupt gig")
		}
		if err := s.repo.WithTx(tx).SaveProgress(ctx, gig); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save gig")
		}
		if err := s.emit(ctx, tx, gig, caller, enums.GigRoleClient, enums.EventGigResumed, payloads.GigResumedEvent{
			GigID:        gig.ID,
			ResumedAt:    now,
			PauseSpanMS:  span.Milliseconds(),
			TotalPauseMS: gig.TotalPauseMS,
		}, now); err != nil {
			return err
		}
		status = buildStatus(s.calc, gig, now)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(ctx, "gig resumed")
	return &status, nil
}

func (s *service) PayNow(ctx context.Context, caller string, gigID uint64) (*PayoutResult, error) {
	ctx = s.opContext(ctx, opPayNow, caller, gigID)
	var (
		result   PayoutResult
		transfer models.LedgerTransfer
	)
	err := s.mutate(ctx, opPayNow, gigID, func(tx *gorm.DB, gig *models.Gig, now time.Time) error {
		role, allowed := s.payoutAllowed(caller, gig)
		if !allowed {
			return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("payout policy %q does not allow this caller", s.policy))
		}
		if gig.Settled() {
			return pkgerrors.New(pkgerrors.CodeAlreadySettled, "gig is already settled")
		}
		payout := s.calc.Payable(streamOf(gig), now)
		if !payout.IsPositive() {
			return pkgerrors.New(pkgerrors.CodeNothingToPay, "no vested funds are unpaid")
		}
		paid := gig.AmountPaid.Add(payout)
		if paid.GreaterThan(gig.TotalAmount) {
			return pkgerrors.New(pkgerrors.CodeInternal, "payout would exceed total amount")
		}

		gig.AmountPaid = paid
		if err := s.repo.WithTx(tx).SaveProgress(ctx, gig); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save gig")
		}
		transfer = models.LedgerTransfer{
			ID:        uuid.New(),
			GigID:     gig.ID,
			Kind:      enums.TransferKindPayout,
			Recipient: gig.Freelancer,
			Amount:    payout,
			Status:    enums.TransferStatusDispatching,
		}
		if err := s.transfers.WithTx(tx).Create(ctx, &transfer); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transfer instruction")
		}
		remaining := gig.TotalAmount.Sub(gig.AmountPaid)
		if err := s.emit(ctx, tx, gig, caller, role, enums.EventGigPayoutRecorded, payloads.GigPayoutRecordedEvent{
			GigID:      gig.ID,
			TransferID: transfer.ID.String(),
			Kind:       transfer.Kind,
			Recipient:  transfer.Recipient,
			Amount:     payout,
			AmountPaid: gig.AmountPaid,
			Remaining:  remaining,
		}, now); err != nil {
			return err
		}
		result = PayoutResult{
			GigID:      gig.ID,
			Amount:     payout,
			AmountPaid: gig.AmountPaid,
			Remaining:  remaining,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.metrics.AddReleased(string(transfer.Kind), transfer.Amount.InexactFloat64())
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"amount":      transfer.Amount.String(),
		"transfer_id": transfer.ID.String(),
	}), "payout recorded")

	dispatched, dispatchErr := s.dispatcher.Dispatch(ctx, transfer)
	if dispatched != nil {
		transfer = *dispatched
	}
	result.Transfer = transferView(transfer)
	if dispatchErr != nil {
		s.observe(opPayNow+"_dispatch", dispatchErr)
		return &result, dispatchErr
	}
	return &result, nil
}

func (s *service) WithdrawRemaining(ctx context.Context, caller string, gigID uint64) (*SettlementResult, error) {
	ctx = s.opContext(ctx, opWithdraw, caller, gigID)
	var (
		result  SettlementResult
		pending []models.LedgerTransfer
	)
	err := s.mutate(ctx, opWithdraw, gigID, func(tx *gorm.DB, gig *models.Gig, now time.Time) error {
		if !sameIdentity(caller, gig.Client) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "only the client can withdraw from a gig")
		}
		if gig.Settled() {
			return pkgerrors.New(pkgerrors.CodeAlreadySettled, "gig is already settled")
		}
		snap := s.calc.Snapshot(streamOf(gig), now)
		if !snap.VestingComplete {
			return pkgerrors.New(pkgerrors.CodeNotYetVested, "gig has not fully vested")
		}

		vested := snap.ExpectedAmount
		freelancerPayout := vested.Sub(gig.AmountPaid)
		clientRefund := gig.TotalAmount.Sub(vested)
		if freelancerPayout.IsNegative() || clientRefund.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeInternal, "settlement amounts are negative")
		}

		settledAt := now
		gig.AmountPaid = vested
		gig.SettledAt = &settledAt
		if err := s.repo.WithTx(tx).SaveProgress(ctx, gig); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save gig")
		}

		transfers := s.transfers.WithTx(tx)
		for _, t := range []struct {
			kind      enums.LedgerTransferKind
			recipient string
			amount    decimal.Decimal
		}{
			{enums.TransferKindSettlementPayout, gig.Freelancer, freelancerPayout},
			{enums.TransferKindClientRefund, gig.Client, clientRefund},
		} {
			if !t.amount.IsPositive() {
				continue
			}
			row := models.LedgerTransfer{
				ID:        uuid.New(),
				GigID:     gig.ID,
				Kind:      t.kind,
				Recipient: t.recipient,
				Amount:    t.amount,
				Status:    enums.TransferStatusDispatching,
			}
			if err := transfers.Create(ctx, &row); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transfer instruction")
			}
			pending = append(pending, row)
		}

		if err := s.emit(ctx, tx, gig, caller, enums.GigRoleClient, enums.EventGigSettled, payloads.GigSettledEvent{
			GigID:            gig.ID,
			SettledAt:        settledAt,
			FreelancerPayout: freelancerPayout,
			ClientRefund:     clientRefund,
		}, now); err != nil {
			return err
		}
		result = SettlementResult{
			GigID:            gig.ID,
			FreelancerPayout: freelancerPayout,
			ClientRefund:     clientRefund,
			SettledAt:        settledAt,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"freelancer_payout": result.FreelancerPayout.String(),
		"client_refund":     result.ClientRefund.String(),
	}), "gig settled")

	var dispatchErr error
	result.Transfers = make([]TransferView, 0, len(pending))
	for _, t := range pending {
		s.metrics.AddReleased(string(t.Kind), t.Amount.InexactFloat64())
		dispatched, err := s.dispatcher.Dispatch(ctx, t)
		if dispatched != nil {
			t = *dispatched
		}
		result.Transfers = append(result.Transfers, transferView(t))
		dispatchErr = multierr.Append(dispatchErr, err)
	}
	if dispatchErr != nil {
		s.observe(opWithdraw+"_dispatch", dispatchErr)
		return &result, dispatchErr
	}
	return &result, nil
}

func (s *service) GetGigStatus(ctx context.Context, gigID uint64) (*GigStatus, error) {
	gig, err := s.repo.FindByID(ctx, gigID)
	if err != nil {
		return nil, loadError(err)
	}
	status := buildStatus(s.calc, gig, s.clock.Now())
	return &status, nil
}

func (s *service) ListGigs(ctx context.Context, caller string, input ListGigsInput) (*GigList, error) {
	if strings.TrimSpace(caller) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "caller identity missing")
	}
	cursor, err := pagination.ParseCursor(input.Params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(input.Params.Limit)

	rows, err := s.repo.ListByParty(ctx, strings.TrimSpace(caller), input.Role, cursor, pagination.LimitWithBuffer(limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list gigs")
	}

	list := &GigList{Gigs: make([]GigStatus, 0, min(len(rows), limit))}
	if len(rows) > limit {
		rows = rows[:limit]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{AfterID: rows[limit-1].ID})
	}
	now := s.clock.Now()
	for i := range rows {
		list.Gigs = append(list.Gigs, buildStatus(s.calc, &rows[i], now))
	}
	return list, nil
}

func (s *service) ListTransfers(ctx context.Context, caller string, gigID uint64) ([]TransferView, error) {
	gig, err := s.repo.FindByID(ctx, gigID)
	if err != nil {
		return nil, loadError(err)
	}
	if !sameIdentity(caller, gig.Client) && !sameIdentity(caller, gig.Freelancer) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only gig parties can view transfers")
	}
	rows, err := s.transfers.ListByGig(ctx, gigID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transfers")
	}
	views := make([]TransferView, 0, len(rows))
	for _, row := range rows {
		views = append(views, transferView(row))
	}
	return views, nil
}

// mutate runs fn against the row-locked gig inside one transaction while
// holding the gig lock. The clock is read under the lock so instants seen by
// successive operations on one gig never go backwards.
func (s *service) mutate(ctx context.Context, op string, gigID uint64, fn func(tx *gorm.DB, gig *models.Gig, now time.Time) error) (err error) {
	defer func() { s.observe(op, err) }()

	waitStart := time.Now()
	release, err := s.locker.Lock(ctx, gigID)
	s.metrics.ObserveLockWait(op, time.Since(waitStart))
	if err != nil {
		if pkgerrors.As(err) != nil {
			return err
		}
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "acquire gig lock")
	}
	defer release()

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		gig, err := s.repo.WithTx(tx).FindByIDForUpdate(ctx, gigID)
		if err != nil {
			return loadError(err)
		}
		if err := s.calc.Validate(streamOf(gig)); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "stored gig violates invariants")
		}
		return fn(tx, gig, s.clock.Now())
	})
	if err != nil && pkgerrors.As(err) == nil {
		if db.IsContention(err) {
			return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "concurrent gig update")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "gig transaction")
	}
	return err
}

func (s *service) emit(ctx context.Context, tx *gorm.DB, gig *models.Gig, caller string, role enums.GigRole, eventType enums.OutboxEventType, data any, now time.Time) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateGig,
		AggregateID:   strconv.FormatUint(gig.ID, 10),
		Actor:         &outbox.ActorRef{Identity: caller, Role: string(role)},
		Data:          data,
		OccurredAt:    now,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit "+string(eventType))
	}
	return nil
}

func (s *service) payoutAllowed(caller string, gig *models.Gig) (enums.GigRole, bool) {
	role := enums.GigRoleAny
	switch {
	case sameIdentity(caller, gig.Freelancer):
		role = enums.GigRoleFreelancer
	case sameIdentity(caller, gig.Client):
		role = enums.GigRoleClient
	}
	switch s.policy {
	case enums.PayoutPolicyAnyone:
		return role, strings.TrimSpace(caller) != ""
	case enums.PayoutPolicyParties:
		return role, role != enums.GigRoleAny
	default:
		return role, role == enums.GigRoleFreelancer
	}
}

func (s *service) opContext(ctx context.Context, op, caller string, gigID uint64) context.Context {
	ctx = s.logg.WithOperation(ctx, op)
	ctx = s.logg.WithIdentity(ctx, caller)
	return s.logg.WithGigID(ctx, gigID)
}

func (s *service) observe(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
		}
	}
	s.metrics.ObserveOperation(op, outcome)
}

func loadError(err error) error {
	if db.IsNotFound(err) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "gig not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load gig")
}

// sameIdentity compares identities the way the custody service does:
// case-insensitively, ignoring surrounding whitespace. Blank never matches.
func sameIdentity(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && strings.EqualFold(a, b)
}
