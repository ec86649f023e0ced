package policy

import (
	"testing"
	"time"
)

func TestRecordPnL(t *testing.T) {
	now := time.Date(2026, 8, 10, 12, 0, 0, 0, time.UTC)

	t.Run("losses accumulate", func(t *testing.T) {
		s := NewState(10000, now)
		s.RecordPnL(-100, now)
		s.RecordPnL(-50, now)
		if s.DailyRealizedLoss != 150 {
			t.Errorf("Expected daily loss 150, got %v", s.DailyRealizedLoss)
		}
		if s.MonthlyRealizedLoss != 150 {
			t.Errorf("Expected monthly loss 150, got %v", s.MonthlyRealizedLoss)
		}
		if s.DailyLossPercent() != 1.5 {
			t.Errorf("Expected 1.5%%, got %v", s.DailyLossPercent())
		}
	})

	t.Run("profit reduces loss but never below zero", func(t *testing.T) {
		s := NewState(10000, now)
		s.RecordPnL(-100, now)
		s.RecordPnL(300, now)
		if s.DailyRealizedLoss != 0 {
			t.Errorf("Expected loss clamped to 0, got %v", s.DailyRealizedLoss)
		}
	})

	t.Run("monthly drawdown suspends trading", func(t *testing.T) {
		s := NewState(10000, now)
		s.RecordPnL(-400, now) // exactly 4%
		if !s.Suspended {
			t.Fatal("Expected suspension at 4% drawdown")
		}
		if s.SuspendedReason == "" {
			t.Error("Expected a suspension reason")
		}
	})

	t.Run("below the limit stays live", func(t *testing.T) {
		s := NewState(10000, now)
		s.RecordPnL(-399, now)
		if s.Suspended {
			t.Error("Expected no suspension below 4%")
		}
	})
}

func TestRollover(t *testing.T) {
	now := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)

	t.Run("day change resets daily only", func(t *testing.T) {
		day := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
		s := NewState(10000, day)
		s.RecordPnL(-100, day)
		s.Rollover(day.Add(24 * time.Hour)) // still August
		if s.DailyRealizedLoss != 0 {
			t.Errorf("Expected daily loss reset, got %v", s.DailyRealizedLoss)
		}
		if s.MonthlyRealizedLoss != 100 {
			t.Errorf("Expected monthly loss kept, got %v", s.MonthlyRealizedLoss)
		}
	})

	t.Run("month change resets everything and lifts suspension", func(t *testing.T) {
		s := NewState(10000, now)
		s.RecordPnL(-500, now)
		if !s.Suspended {
			t.Fatal("Expected suspension")
		}
		s.Rollover(now.Add(2 * time.Hour)) // crosses into September
		if s.Suspended {
			t.Error("Expected suspension lifted on month boundary")
		}
		if s.MonthlyRealizedLoss != 0 || s.DailyRealizedLoss != 0 {
			t.Errorf("Expected fresh accumulators, got daily=%v monthly=%v", s.DailyRealizedLoss, s.MonthlyRealizedLoss)
		}
	})

	t.Run("same day is a no-op", func(t *testing.T) {
		s := NewState(10000, now)
		s.RecordPnL(-100, now)
		s.Rollover(now.Add(30 * time.Minute))
		if s.DailyRealizedLoss != 100 {
			t.Errorf("Expected daily loss kept within the day, got %v", s.DailyRealizedLoss)
		}
	})
}
