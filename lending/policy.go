package lending

import (
	"time"

	"github.com/shopspring/decimal"
)

const day = 24 * time.Hour

// Policy holds the overdue rules applied to every open borrow.
type Policy struct {
	ThresholdDays int
	FeePerDay     decimal.Decimal
	// MaxFee caps the fee per transaction. Zero disables the cap.
	MaxFee decimal.Decimal
}

func DefaultPolicy() Policy {
	return Policy{
		ThresholdDays: 14,
		FeePerDay:     decimal.NewFromInt(2),
		MaxFee:        decimal.NewFromInt(50),
	}
}

func NewPolicy(thresholdDays, feePerDay, maxFee int) Policy {
	return Policy{
		ThresholdDays: thresholdDays,
		FeePerDay:     decimal.NewFromInt(int64(feePerDay)),
		MaxFee:        decimal.NewFromInt(int64(maxFee)),
	}
}

// Overdue is the derived overdue view of one borrow. It is never stored.
type Overdue struct {
	IsOverdue   bool            `json:"isOverdue"`
	DaysElapsed int             `json:"daysElapsed"`
	DaysOverdue int             `json:"daysOverdue"`
	FeeOwed     decimal.Decimal `json:"feeOwed"`
}

// DaysElapsed counts whole 24h periods between borrowed and now, never negative.
func DaysElapsed(borrowed, now time.Time) int {
	d := now.Sub(borrowed)
	if d <= 0 {
		return 0
	}
	return int(d / day)
}

func (p Policy) Compute(borrowed, now time.Time) Overdue {
	elapsed := DaysElapsed(borrowed, now)
	over := elapsed - p.ThresholdDays
	if over < 0 {
		over = 0
	}
	fee := p.FeePerDay.Mul(decimal.NewFromInt(int64(over)))
	if p.MaxFee.IsPositive() && fee.GreaterThan(p.MaxFee) {
		fee = p.MaxFee
	}
	return Overdue{
		IsOverdue:   elapsed > p.ThresholdDays,
		DaysElapsed: elapsed,
		DaysOverdue: over,
		FeeOwed:     fee,
	}
}

// DaysRemaining is how many whole days are left before the borrow turns overdue.
// It goes negative once the threshold has passed.
func (p Policy) DaysRemaining(borrowed, now time.Time) int {
	return p.ThresholdDays - DaysElapsed(borrowed, now)
}

// DueDate is the last instant before the borrow counts as overdue.
func (p Policy) DueDate(borrowed time.Time) time.Time {
	return borrowed.Add(time.Duration(p.ThresholdDays+1) * day)
}

// Cutoff returns the borrow date at or before which an open borrow is overdue at now.
func (p Policy) Cutoff(now time.Time) time.Time {
	return now.Add(-time.Duration(p.ThresholdDays+1) * day)
}

// ComputeOverdue applies DefaultPolicy with a custom threshold.
func ComputeOverdue(borrowed, now time.Time, thresholdDays int) Overdue {
	p := DefaultPolicy()
	p.ThresholdDays = thresholdDays
	return p.Compute(borrowed, now)
}
