// Package policy tracks rolling realized losses against the account's risk
// limits. One state per account; daily figures reset on date change, monthly
// figures on month change. Only the execution coordinator mutates it.
package policy

import (
	"context"
	"time"
)

const (
	// DefaultDailyLossCapPercent is the maximum realized loss per day as a
	// percent of starting capital.
	DefaultDailyLossCapPercent = 3.0
	// DefaultMonthlyDrawdownPercent suspends all trading when breached.
	DefaultMonthlyDrawdownPercent = 4.0
)

// State is the rolling loss accumulator consumed by the guard chain.
type State struct {
	Day   string `json:"day"`   // "2006-01-02"
	Month string `json:"month"` // "2006-01"

	StartingCapital     float64 `json:"starting_capital"`
	DailyRealizedLoss   float64 `json:"daily_realized_loss"`   // positive number = loss
	MonthlyRealizedLoss float64 `json:"monthly_realized_loss"` // positive number = loss

	Suspended       bool      `json:"suspended"`
	SuspendedReason string    `json:"suspended_reason,omitempty"`
	SuspendedAt     time.Time `json:"suspended_at,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Store is the persistence port for policy state.
type Store interface {
	GetPolicyState(ctx context.Context) (*State, error)
	SavePolicyState(ctx context.Context, s *State) error
}

// NewState initializes a fresh state for the given capital.
func NewState(startingCapital float64, now time.Time) *State {
	return &State{
		Day:             now.UTC().Format("2006-01-02"),
		Month:           now.UTC().Format("2006-01"),
		StartingCapital: startingCapital,
		UpdatedAt:       now,
	}
}

// Rollover resets accumulators that have crossed a calendar boundary.
// A month boundary also lifts a drawdown suspension: each month is a fresh
// start.
func (s *State) Rollover(now time.Time) {
	day := now.UTC().Format("2006-01-02")
	month := now.UTC().Format("2006-01")
	if s.Month != month {
		s.Month = month
		s.MonthlyRealizedLoss = 0
		s.Suspended = false
		s.SuspendedReason = ""
		s.SuspendedAt = time.Time{}
	}
	if s.Day != day {
		s.Day = day
		s.DailyRealizedLoss = 0
	}
	s.UpdatedAt = now
}

// RecordPnL folds a realized trade result into the accumulators. Losses are
// stored as positive magnitudes; profits reduce the accumulated loss but
// never below zero. Suspends trading when the monthly drawdown cap is hit.
func (s *State) RecordPnL(pnl float64, now time.Time) {
	s.Rollover(now)

	loss := -pnl
	s.DailyRealizedLoss += loss
	s.MonthlyRealizedLoss += loss
	if s.DailyRealizedLoss < 0 {
		s.DailyRealizedLoss = 0
	}
	if s.MonthlyRealizedLoss < 0 {
		s.MonthlyRealizedLoss = 0
	}
	s.UpdatedAt = now

	if !s.Suspended && s.MonthlyDrawdownPercent() >= DefaultMonthlyDrawdownPercent {
		s.Suspended = true
		s.SuspendedReason = "monthly drawdown limit exceeded"
		s.SuspendedAt = now
	}
}

// DailyLossPercent is the day's realized loss as a percent of starting capital.
func (s *State) DailyLossPercent() float64 {
	if s.StartingCapital <= 0 {
		return 0
	}
	return s.DailyRealizedLoss / s.StartingCapital * 100
}

// MonthlyDrawdownPercent is the month's realized loss as a percent of
// starting capital.
func (s *State) MonthlyDrawdownPercent() float64 {
	if s.StartingCapital <= 0 {
		return 0
	}
	return s.MonthlyRealizedLoss / s.StartingCapital * 100
}
