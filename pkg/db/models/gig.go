package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountColumnScale is the fractional precision of every NUMERIC(38,8)
// amount column. Values with more digits would be rounded on write.
const AmountColumnScale int32 = 8

// Gig is the canonical record of a payment stream. Amount and time fields
// other than AmountPaid, Paused, PauseTime, TotalPauseMS and SettledAt are
// immutable after creation.
type Gig struct {
	ID           uint64          `gorm:"column:id;primaryKey;autoIncrement"`
	Client       string          `gorm:"column:client;not null"`
	Freelancer   string          `gorm:"column:freelancer;not null"`
	TotalAmount  decimal.Decimal `gorm:"column:total_amount;type:numeric(38,8);not null"`
	AmountPaid   decimal.Decimal `gorm:"column:amount_paid;type:numeric(38,8);not null"`
	StartTime    time.Time       `gorm:"column:start_time;not null"`
	DurationMS   int64           `gorm:"column:duration_ms;not null"`
	Paused       bool            `gorm:"column:paused;not null;default:false"`
	PauseTime    *time.Time      `gorm:"column:pause_time"`
	TotalPauseMS int64           `gorm:"column:total_pause_ms;not null;default:0"`
	SettledAt    *time.Time      `gorm:"column:settled_at"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

func (Gig) TableName() string { return "gigs" }

func (g Gig) Duration() time.Duration {
	return time.Duration(g.DurationMS) * time.Millisecond
}

func (g Gig) TotalPauseDuration() time.Duration {
	return time.Duration(g.TotalPauseMS) * time.Millisecond
}

func (g Gig) Settled() bool {
	return g.SettledAt != nil
}
