// Package accrual holds the vesting arithmetic for payment streams. Every
// function is pure: the caller supplies the instant to evaluate at.
package accrual

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultScale matches the 8 fractional digits of the settlement ledger.
const DefaultScale int32 = 8

const percentageScale int32 = 8

// ErrCorruptStream is returned when stored values break the stream invariants.
var ErrCorruptStream = errors.New("accrual: corrupt stream")

// Stream is the vesting-relevant projection of a gig.
type Stream struct {
	TotalAmount        decimal.Decimal
	AmountPaid         decimal.Decimal
	StartTime          time.Time
	Duration           time.Duration
	Paused             bool
	PauseTime          time.Time
	TotalPauseDuration time.Duration
}

// Snapshot is the derived view of a stream at one instant.
type Snapshot struct {
	ElapsedTime     time.Duration
	TimePercentage  decimal.Decimal
	ExpectedAmount  decimal.Decimal
	RemainingAmount decimal.Decimal
	Payable         decimal.Decimal
	VestingComplete bool
	IsCompleted     bool
}

type Calculator struct {
	scale int32
}

func NewCalculator(scale int32) Calculator {
	if scale < 0 {
		scale = DefaultScale
	}
	return Calculator{scale: scale}
}

func (c Calculator) Scale() int32 {
	return c.scale
}

// Representable reports whether amount fits the ledger unit without rounding.
func (c Calculator) Representable(amount decimal.Decimal) bool {
	return amount.Equal(amount.Truncate(c.scale))
}

// Validate checks the invariants every stored stream must hold.
func (c Calculator) Validate(s Stream) error {
	switch {
	case !s.TotalAmount.IsPositive():
		return fmt.Errorf("%w: total amount %s is not positive", ErrCorruptStream, s.TotalAmount)
	case s.AmountPaid.IsNegative():
		return fmt.Errorf("%w: amount paid %s is negative", ErrCorruptStream, s.AmountPaid)
	case s.AmountPaid.GreaterThan(s.TotalAmount):
		return fmt.Errorf("%w: amount paid %s exceeds total %s", ErrCorruptStream, s.AmountPaid, s.TotalAmount)
	case s.Duration <= 0:
		return fmt.Errorf("%w: duration %s is not positive", ErrCorruptStream, s.Duration)
	case s.TotalPauseDuration < 0:
		return fmt.Errorf("%w: total pause %s is negative", ErrCorruptStream, s.TotalPauseDuration)
	case s.Paused && s.PauseTime.Before(s.StartTime):
		return fmt.Errorf("%w: paused before start", ErrCorruptStream)
	}
	return nil
}

// EffectiveElapsed is the vesting time accrued at now, excluding pauses and
// clamped to [0, Duration]. A paused stream is evaluated at its pause instant.
func (c Calculator) EffectiveElapsed(s Stream, now time.Time) time.Duration {
	ref := now
	if s.Paused {
		ref = s.PauseTime
	}
	elapsed := ref.Sub(s.StartTime) - s.TotalPauseDuration
	if elapsed < 0 {
		return 0
	}
	if elapsed > s.Duration {
		return s.Duration
	}
	return elapsed
}

// VestedAmount is TotalAmount scaled by the elapsed fraction, truncated
// toward zero to the ledger unit so it never exceeds TotalAmount.
func (c Calculator) VestedAmount(s Stream, now time.Time) decimal.Decimal {
	elapsed := c.EffectiveElapsed(s, now)
	if elapsed == s.Duration {
		return s.TotalAmount
	}
	if elapsed <= 0 || s.Duration <= 0 {
		return decimal.Zero
	}
	num := s.TotalAmount.Mul(decimal.NewFromInt(int64(elapsed)))
	q, _ := num.QuoRem(decimal.NewFromInt(int64(s.Duration)), c.scale)
	return q
}

// Payable is what a payout at now would transfer; never negative.
func (c Calculator) Payable(s Stream, now time.Time) decimal.Decimal {
	owed := c.VestedAmount(s, now).Sub(s.AmountPaid)
	if owed.IsNegative() {
		return decimal.Zero
	}
	return owed
}

func (c Calculator) Snapshot(s Stream, now time.Time) Snapshot {
	elapsed := c.EffectiveElapsed(s, now)
	pct := decimal.Zero
	if s.Duration > 0 {
		if elapsed == s.Duration {
			pct = decimal.NewFromInt(1)
		} else {
			pct, _ = decimal.NewFromInt(int64(elapsed)).QuoRem(decimal.NewFromInt(int64(s.Duration)), percentageScale)
		}
	}
	vestingComplete := elapsed == s.Duration
	return Snapshot{
		ElapsedTime:     elapsed,
		TimePercentage:  pct,
		ExpectedAmount:  c.VestedAmount(s, now),
		RemainingAmount: s.TotalAmount.Sub(s.AmountPaid),
		Payable:         c.Payable(s, now),
		VestingComplete: vestingComplete,
		IsCompleted:     vestingComplete && s.AmountPaid.Equal(s.TotalAmount),
	}
}
