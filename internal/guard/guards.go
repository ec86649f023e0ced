package guard

import (
	"fmt"

	"github.com/robsonhq/tradeguard/internal/policy"
)

// Limits carries the configurable thresholds for the standard chain.
type Limits struct {
	MaxRiskPercent         float64 // per trade, default 1
	DailyLossCapPercent    float64 // default 3
	MonthlyDrawdownPercent float64 // default 4
	MaxOpenPositions       int     // default 5
	MinStopDistancePercent float64 // hard reject below this, default 0.1
	NoiseStopPercent       float64 // warn below this, default 1.0
	MaxStopDistancePercent float64 // warn above this, default 10
}

// DefaultLimits mirrors the documented risk rules: 1% per trade, 3% per day,
// 4% per month.
func DefaultLimits() Limits {
	return Limits{
		MaxRiskPercent:         1.0,
		DailyLossCapPercent:    policy.DefaultDailyLossCapPercent,
		MonthlyDrawdownPercent: policy.DefaultMonthlyDrawdownPercent,
		MaxOpenPositions:       5,
		MinStopDistancePercent: 0.1,
		NoiseStopPercent:       1.0,
		MaxStopDistancePercent: 10.0,
	}
}

// StandardChain wires the six standard guards in their fixed order.
func StandardChain(limits Limits) *Chain {
	return NewChain(
		&BalanceSufficiency{},
		&RiskPerTrade{MaxRiskPercent: limits.MaxRiskPercent},
		&DailyLossCap{CapPercent: limits.DailyLossCapPercent},
		&MonthlyDrawdown{MaxPercent: limits.MonthlyDrawdownPercent},
		&MaxOpenPositions{Max: limits.MaxOpenPositions},
		&StopDistanceSanity{
			MinPercent:   limits.MinStopDistancePercent,
			NoisePercent: limits.NoiseStopPercent,
			MaxPercent:   limits.MaxStopDistancePercent,
		},
	)
}

// BalanceSufficiency verifies free capital covers the position value.
type BalanceSufficiency struct{}

func (g *BalanceSufficiency) Name() string { return "BalanceSufficiency" }

func (g *BalanceSufficiency) Evaluate(snap Snapshot) Check {
	value := snap.Intent.PositionValue()
	if snap.FreeBalance < value {
		return Check{
			Name:    g.Name(),
			Status:  Fail,
			Message: fmt.Sprintf("free balance %.2f below position value %.2f", snap.FreeBalance, value),
			Details: map[string]any{"free_balance": snap.FreeBalance, "position_value": value},
		}
	}
	return Check{
		Name:    g.Name(),
		Status:  Pass,
		Message: fmt.Sprintf("free balance %.2f covers position value %.2f", snap.FreeBalance, value),
	}
}

// RiskPerTrade enforces the per-trade risk cap.
type RiskPerTrade struct {
	MaxRiskPercent float64
}

func (g *RiskPerTrade) Name() string { return "RiskPerTrade" }

func (g *RiskPerTrade) Evaluate(snap Snapshot) Check {
	it := snap.Intent
	if it.Capital <= 0 {
		return Check{Name: g.Name(), Status: Fail, Message: "capital must be positive"}
	}
	riskPct := it.StopDistance() * it.Quantity / it.Capital * 100
	if riskPct > g.MaxRiskPercent+1e-9 {
		return Check{
			Name:    g.Name(),
			Status:  Fail,
			Message: fmt.Sprintf("risk %.2f%% exceeds %.2f%% cap", riskPct, g.MaxRiskPercent),
			Details: map[string]any{"risk_percent": riskPct, "max_risk_percent": g.MaxRiskPercent},
		}
	}
	return Check{
		Name:    g.Name(),
		Status:  Pass,
		Message: fmt.Sprintf("risk %.2f%% within %.2f%% cap", riskPct, g.MaxRiskPercent),
	}
}

// DailyLossCap blocks a trade whose worst case would push the day's realized
// loss past the daily cap.
type DailyLossCap struct {
	CapPercent float64
}

func (g *DailyLossCap) Name() string { return "DailyLossCap" }

func (g *DailyLossCap) Evaluate(snap Snapshot) Check {
	if snap.Policy == nil {
		return Check{Name: g.Name(), Status: Pass, Message: "no policy state, daily cap not tracked"}
	}
	it := snap.Intent
	tradeRiskPct := 0.0
	if snap.Policy.StartingCapital > 0 {
		tradeRiskPct = it.RiskAmount / snap.Policy.StartingCapital * 100
	}
	projected := snap.Policy.DailyLossPercent() + tradeRiskPct
	if projected > g.CapPercent+1e-9 {
		return Check{
			Name:    g.Name(),
			Status:  Fail,
			Message: fmt.Sprintf("daily drawdown exceeded: %.2f%% realized + %.2f%% at risk > %.2f%% cap", snap.Policy.DailyLossPercent(), tradeRiskPct, g.CapPercent),
			Details: map[string]any{
				"daily_loss_percent": snap.Policy.DailyLossPercent(),
				"trade_risk_percent": tradeRiskPct,
				"cap_percent":        g.CapPercent,
			},
		}
	}
	return Check{
		Name:    g.Name(),
		Status:  Pass,
		Message: fmt.Sprintf("projected daily loss %.2f%% within %.2f%% cap", projected, g.CapPercent),
	}
}

// MonthlyDrawdown suspends all trading once the month's realized loss crosses
// the limit. It fails regardless of this trade's own risk.
type MonthlyDrawdown struct {
	MaxPercent float64
}

func (g *MonthlyDrawdown) Name() string { return "MonthlyDrawdown" }

func (g *MonthlyDrawdown) Evaluate(snap Snapshot) Check {
	if snap.Policy == nil {
		return Check{Name: g.Name(), Status: Pass, Message: "no policy state, drawdown not tracked"}
	}
	if snap.Policy.Suspended {
		return Check{
			Name:    g.Name(),
			Status:  Fail,
			Message: fmt.Sprintf("trading suspended: %s", snap.Policy.SuspendedReason),
			Details: map[string]any{"suspended_at": snap.Policy.SuspendedAt},
		}
	}
	dd := snap.Policy.MonthlyDrawdownPercent()
	if dd >= g.MaxPercent {
		return Check{
			Name:    g.Name(),
			Status:  Fail,
			Message: fmt.Sprintf("monthly drawdown %.2f%% at or above %.2f%% limit, trading suspended", dd, g.MaxPercent),
			Details: map[string]any{"drawdown_percent": dd, "max_percent": g.MaxPercent},
		}
	}
	return Check{
		Name:    g.Name(),
		Status:  Pass,
		Message: fmt.Sprintf("monthly drawdown %.2f%% within %.2f%% limit", dd, g.MaxPercent),
	}
}

// MaxOpenPositions caps concurrent open positions.
type MaxOpenPositions struct {
	Max int
}

func (g *MaxOpenPositions) Name() string { return "MaxOpenPositions" }

func (g *MaxOpenPositions) Evaluate(snap Snapshot) Check {
	if g.Max > 0 && snap.OpenPositions >= g.Max {
		return Check{
			Name:    g.Name(),
			Status:  Fail,
			Message: fmt.Sprintf("%d open positions at the %d limit", snap.OpenPositions, g.Max),
			Details: map[string]any{"open_positions": snap.OpenPositions, "max": g.Max},
		}
	}
	return Check{
		Name:    g.Name(),
		Status:  Pass,
		Message: fmt.Sprintf("%d open positions below the %d limit", snap.OpenPositions, g.Max),
	}
}

// StopDistanceSanity rejects noise-level stops and warns on stops so tight
// or so wide the sizing stops making sense.
type StopDistanceSanity struct {
	MinPercent   float64
	NoisePercent float64
	MaxPercent   float64
}

func (g *StopDistanceSanity) Name() string { return "StopDistanceSanity" }

func (g *StopDistanceSanity) Evaluate(snap Snapshot) Check {
	it := snap.Intent
	if it.EntryPrice <= 0 {
		return Check{Name: g.Name(), Status: Fail, Message: "entry price must be positive"}
	}
	distPct := it.StopDistance() / it.EntryPrice * 100
	switch {
	case distPct < g.MinPercent:
		return Check{
			Name:    g.Name(),
			Status:  Fail,
			Message: fmt.Sprintf("stop distance %.3f%% below %.2f%% minimum, rejected as noise", distPct, g.MinPercent),
			Details: map[string]any{"stop_distance_percent": distPct, "min_percent": g.MinPercent},
		}
	case distPct < g.NoisePercent:
		return Check{
			Name:    g.Name(),
			Status:  Warning,
			Message: fmt.Sprintf("stop distance %.2f%% is tight, likely inside market noise", distPct),
			Details: map[string]any{"stop_distance_percent": distPct, "noise_percent": g.NoisePercent},
		}
	case g.MaxPercent > 0 && distPct > g.MaxPercent:
		return Check{
			Name:    g.Name(),
			Status:  Warning,
			Message: fmt.Sprintf("stop distance %.2f%% is unusually wide", distPct),
			Details: map[string]any{"stop_distance_percent": distPct, "max_percent": g.MaxPercent},
		}
	}
	return Check{
		Name:    g.Name(),
		Status:  Pass,
		Message: fmt.Sprintf("stop distance %.2f%% sane", distPct),
	}
}
