package sizing

import (
	"errors"
	"math"
	"testing"

	"github.com/robsonhq/tradeguard/internal/position"
)

func TestSize(t *testing.T) {
	sizer := New()

	t.Run("quantity derived from stop distance", func(t *testing.T) {
		// 10000 capital, 1% risk, 1500 stop distance -> 100 at risk,
		// 0.06666 quantity after lot rounding.
		res, err := sizer.Size(10000, 95000, 93500, position.Long)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if math.Abs(res.MaxRisk-100) > 1e-9 {
			t.Errorf("Expected max risk 100, got %v", res.MaxRisk)
		}
		if math.Abs(res.Quantity-0.06666) > 1e-9 {
			t.Errorf("Expected quantity 0.06666, got %v", res.Quantity)
		}
		if math.Abs(res.StopDistance-1500) > 1e-9 {
			t.Errorf("Expected stop distance 1500, got %v", res.StopDistance)
		}
	})

	t.Run("wider stop means smaller position", func(t *testing.T) {
		tight, err := sizer.Size(10000, 100, 98, position.Long)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		wide, err := sizer.Size(10000, 100, 90, position.Long)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if wide.Quantity >= tight.Quantity {
			t.Errorf("Expected wider stop to size smaller: tight=%v wide=%v", tight.Quantity, wide.Quantity)
		}
		// Amount at risk stays constant regardless of the stop.
		if math.Abs(tight.MaxRisk-wide.MaxRisk) > 1e-9 {
			t.Errorf("Expected equal risk, got %v and %v", tight.MaxRisk, wide.MaxRisk)
		}
	})

	t.Run("short side sizes identically", func(t *testing.T) {
		long, _ := sizer.Size(10000, 100, 98, position.Long)
		short, err := sizer.Size(10000, 100, 102, position.Short)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if long.Quantity != short.Quantity {
			t.Errorf("Expected symmetric sizing, got long=%v short=%v", long.Quantity, short.Quantity)
		}
	})

	t.Run("zero stop distance rejected", func(t *testing.T) {
		_, err := sizer.Size(10000, 100, 100, position.Long)
		if !errors.Is(err, ErrInvalidStopDistance) {
			t.Errorf("Expected ErrInvalidStopDistance, got %v", err)
		}
	})

	t.Run("non-positive capital rejected", func(t *testing.T) {
		for _, capital := range []float64{0, -5000} {
			_, err := sizer.Size(capital, 100, 98, position.Long)
			if !errors.Is(err, ErrNonPositiveCapital) {
				t.Errorf("capital=%v: expected ErrNonPositiveCapital, got %v", capital, err)
			}
		}
	})

	t.Run("negative prices rejected", func(t *testing.T) {
		if _, err := sizer.Size(10000, -100, 98, position.Long); err == nil {
			t.Error("Expected error for negative entry")
		}
		if _, err := sizer.Size(10000, 100, 0, position.Long); err == nil {
			t.Error("Expected error for zero stop")
		}
	})

	t.Run("over-leverage warning", func(t *testing.T) {
		// Tight stop on big capital pushes position value past capital.
		res, err := sizer.Size(10000, 100, 99.9, position.Long)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if res.PositionValue <= 10000 {
			t.Fatalf("Test setup broken: expected position value above capital, got %v", res.PositionValue)
		}
		if len(res.Warnings) == 0 {
			t.Error("Expected over-leverage warning")
		}
	})

	t.Run("noise stop warning", func(t *testing.T) {
		// 0.1% stop distance is below the 1% noise threshold.
		res, err := sizer.Size(100, 100, 99.9, position.Long)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		found := false
		for _, w := range res.Warnings {
			if w != "" {
				found = true
			}
		}
		if !found {
			t.Error("Expected noise-level stop warning")
		}
	})

	t.Run("lot size rounding floors", func(t *testing.T) {
		s := New(WithLotSize(0.001))
		res, err := s.Size(10000, 95000, 93500, position.Long)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if math.Abs(res.Quantity-0.066) > 1e-9 {
			t.Errorf("Expected quantity floored to 0.066, got %v", res.Quantity)
		}
	})

	t.Run("custom risk percent", func(t *testing.T) {
		s := New(WithRiskPercent(0.02))
		res, err := s.Size(10000, 100, 98, position.Long)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if math.Abs(res.MaxRisk-200) > 1e-9 {
			t.Errorf("Expected max risk 200 at 2%%, got %v", res.MaxRisk)
		}
	})
}
