package accrual

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)

func hourStream(total string) Stream {
	return Stream{
		TotalAmount: decimal.RequireFromString(total),
		AmountPaid:  decimal.Zero,
		StartTime:   t0,
		Duration:    time.Hour,
	}
}

func TestVestedAmountLinear(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	s := hourStream("100")

	cases := []struct {
		at   time.Duration
		want string
	}{
		{at: -time.Minute, want: "0"},
		{at: 0, want: "0"},
		{at: 1800 * time.Second, want: "50"},
		{at: 3600 * time.Second, want: "100"},
		{at: 5000 * time.Second, want: "100"},
	}
	for _, tc := range cases {
		got := calc.VestedAmount(s, t0.Add(tc.at))
		assert.Truef(t, got.Equal(decimal.RequireFromString(tc.want)), "at %s: want %s got %s", tc.at, tc.want, got)
	}
}

func TestVestedAmountTruncatesToScale(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	s := hourStream("1")
	s.Duration = 3 * time.Second

	got := calc.VestedAmount(s, t0.Add(time.Second))
	assert.Equal(t, "0.33333333", got.String())

	got = calc.VestedAmount(s, t0.Add(2*time.Second))
	assert.Equal(t, "0.66666666", got.String())
}

func TestVestedAmountMonotonic(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	s := hourStream("123.45678901")
	s.Duration = 7*time.Minute + 13*time.Second

	prev := decimal.Zero
	for step := time.Duration(0); step <= s.Duration+time.Minute; step += 917 * time.Millisecond {
		v := calc.VestedAmount(s, t0.Add(step))
		require.Falsef(t, v.LessThan(prev), "vested decreased at %s: %s < %s", step, v, prev)
		require.Falsef(t, v.GreaterThan(s.TotalAmount), "vested above total at %s", step)
		prev = v
	}
	assert.True(t, prev.Equal(s.TotalAmount))
}

func TestPauseFreezesAccrual(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	s := hourStream("100")
	s.Paused = true
	s.PauseTime = t0.Add(600 * time.Second)

	frozen := calc.VestedAmount(s, s.PauseTime)
	for _, later := range []time.Duration{time.Second, time.Hour, 48 * time.Hour} {
		got := calc.VestedAmount(s, s.PauseTime.Add(later))
		assert.Truef(t, got.Equal(frozen), "paused stream moved after %s", later)
	}
}

func TestResumePreservesAccruedValue(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	s := hourStream("100")
	s.Paused = true
	s.PauseTime = t0.Add(600 * time.Second)
	before := calc.VestedAmount(s, s.PauseTime)

	resumeAt := s.PauseTime.Add(40 * time.Minute)
	s.TotalPauseDuration += resumeAt.Sub(s.PauseTime)
	s.Paused = false
	s.PauseTime = time.Time{}

	after := calc.VestedAmount(s, resumeAt)
	assert.True(t, before.Equal(after), "resume changed vested amount: %s -> %s", before, after)
}

func TestSnapshotPausedMidway(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	s := hourStream("100")
	s.Duration = 1000 * time.Second
	// paused 200..500, queried at 700
	s.TotalPauseDuration = 300 * time.Second

	snap := calc.Snapshot(s, t0.Add(700*time.Second))
	assert.Equal(t, 400*time.Second, snap.ElapsedTime)
	assert.Equal(t, "0.4", snap.TimePercentage.String())
	assert.Equal(t, "40", snap.ExpectedAmount.String())
	assert.False(t, snap.VestingComplete)
	assert.False(t, snap.IsCompleted)
}

func TestSnapshotCompletion(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	s := hourStream("100")
	end := t0.Add(time.Hour)

	snap := calc.Snapshot(s, end)
	assert.True(t, snap.VestingComplete)
	assert.False(t, snap.IsCompleted, "vested but unpaid funds are still in flight")
	assert.True(t, snap.TimePercentage.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, "100", snap.Payable.String())

	s.AmountPaid = s.TotalAmount
	snap = calc.Snapshot(s, end)
	assert.True(t, snap.IsCompleted)
	assert.True(t, snap.RemainingAmount.IsZero())
	assert.True(t, snap.Payable.IsZero())
}

func TestValidate(t *testing.T) {
	calc := NewCalculator(DefaultScale)

	ok := hourStream("10")
	require.NoError(t, calc.Validate(ok))

	overpaid := hourStream("10")
	overpaid.AmountPaid = decimal.RequireFromString("10.00000001")
	require.ErrorIs(t, calc.Validate(overpaid), ErrCorruptStream)

	negPause := hourStream("10")
	negPause.TotalPauseDuration = -time.Second
	require.ErrorIs(t, calc.Validate(negPause), ErrCorruptStream)
}

func TestRepresentable(t *testing.T) {
	calc := NewCalculator(DefaultScale)
	assert.True(t, calc.Representable(decimal.RequireFromString("0.00000001")))
	assert.False(t, calc.Representable(decimal.RequireFromString("0.000000001")))
	assert.True(t, calc.Representable(decimal.RequireFromString("1500")))
}
