// Package sizing derives position size from the technical invalidation level.
//
// The quantity is never supplied by the caller. It is always calculated
// backwards from the stop distance:
//
//	quantity = (capital × risk%) / |entry − stop|
//
// A wide stop yields a small position, a tight stop a large one, and the
// amount at risk stays constant.
package sizing

import (
	"errors"
	"fmt"
	"math"

	"github.com/robsonhq/tradeguard/internal/position"
)

var (
	// ErrInvalidStopDistance is returned when entry and stop coincide.
	ErrInvalidStopDistance = errors.New("entry price equals stop price: zero stop distance")
	// ErrNonPositiveCapital is returned when capital is zero or negative.
	ErrNonPositiveCapital = errors.New("capital must be positive")
)

const (
	// DefaultRiskPercent is the fraction of capital at risk per trade.
	DefaultRiskPercent = 0.01
	// DefaultLotSize is the quantity rounding step applied to the result.
	DefaultLotSize = 0.00001
	// DefaultMaxPositionFraction flags positions worth more than this
	// fraction of capital as over-leveraged.
	DefaultMaxPositionFraction = 1.0
	// DefaultMinStopDistancePercent flags stops tighter than this percent
	// of entry as noise-level.
	DefaultMinStopDistancePercent = 1.0
)

// Sizer computes position sizes. The zero value is not usable; construct
// with New.
type Sizer struct {
	riskPercent         float64
	lotSize             float64
	maxPositionFraction float64
	minStopDistancePct  float64
}

// Option adjusts a Sizer.
type Option func(*Sizer)

// WithRiskPercent overrides the default 1% risk per trade.
func WithRiskPercent(pct float64) Option {
	return func(s *Sizer) { s.riskPercent = pct }
}

// WithLotSize overrides the quantity rounding step.
func WithLotSize(lot float64) Option {
	return func(s *Sizer) { s.lotSize = lot }
}

// WithMaxPositionFraction overrides the over-leverage warning threshold.
func WithMaxPositionFraction(f float64) Option {
	return func(s *Sizer) { s.maxPositionFraction = f }
}

// WithMinStopDistancePercent overrides the noise-level stop warning threshold.
func WithMinStopDistancePercent(pct float64) Option {
	return func(s *Sizer) { s.minStopDistancePct = pct }
}

// New builds a Sizer with the default risk parameters.
func New(opts ...Option) *Sizer {
	s := &Sizer{
		riskPercent:         DefaultRiskPercent,
		lotSize:             DefaultLotSize,
		maxPositionFraction: DefaultMaxPositionFraction,
		minStopDistancePct:  DefaultMinStopDistancePercent,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Result carries the derived size and the figures it was derived from.
type Result struct {
	Quantity            float64  `json:"quantity"`
	PositionValue       float64  `json:"position_value"`
	MaxRisk             float64  `json:"max_risk"`
	RiskPercent         float64  `json:"risk_percent"`
	StopDistance        float64  `json:"stop_distance"`
	StopDistancePercent float64  `json:"stop_distance_percent"`
	Warnings            []string `json:"warnings,omitempty"`
}

// Size derives the position quantity for the given capital, entry and stop.
// The side does not change the magnitude, only which direction of stop is
// sane; direction sanity is the guard chain's concern, not the sizer's.
func (s *Sizer) Size(capital, entryPrice, stopPrice float64, side position.Side) (Result, error) {
	if capital <= 0 {
		return Result{}, fmt.Errorf("sizing %v capital: %w", capital, ErrNonPositiveCapital)
	}
	if entryPrice <= 0 || stopPrice <= 0 {
		return Result{}, fmt.Errorf("prices must be positive, got entry=%v stop=%v", entryPrice, stopPrice)
	}
	stopDistance := math.Abs(entryPrice - stopPrice)
	if stopDistance == 0 {
		return Result{}, fmt.Errorf("entry=%v stop=%v: %w", entryPrice, stopPrice, ErrInvalidStopDistance)
	}

	maxRisk := capital * s.riskPercent
	quantity := maxRisk / stopDistance
	if s.lotSize > 0 {
		quantity = math.Floor(quantity/s.lotSize) * s.lotSize
	}

	res := Result{
		Quantity:            quantity,
		PositionValue:       quantity * entryPrice,
		MaxRisk:             maxRisk,
		RiskPercent:         s.riskPercent,
		StopDistance:        stopDistance,
		StopDistancePercent: stopDistance / entryPrice * 100,
	}

	if res.PositionValue > capital*s.maxPositionFraction {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"position value %.2f exceeds %.0f%% of capital %.2f: leverage required",
			res.PositionValue, s.maxPositionFraction*100, capital))
	}
	if res.StopDistancePercent < s.minStopDistancePct {
		res.Warnings = append(res.Warnings, fmt.Sprintf(
			"stop distance %.2f%% of entry is below the %.2f%% noise threshold",
			res.StopDistancePercent, s.minStopDistancePct))
	}

	return res, nil
}
