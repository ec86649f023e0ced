// Package guard implements the pre-execution validation chain.
//
// Each guard is a read-only predicate over a snapshot of account and policy
// state. Guards run in a fixed order and are independent of one another; a
// single FAIL blocks execution regardless of what the other guards say.
// New rules are appended to the chain, not wired into existing ones.
package guard

import (
	"fmt"

	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/policy"
)

// Status of a single check or of the aggregate report.
type Status string

const (
	Pass    Status = "PASS"
	Warning Status = "WARNING"
	Fail    Status = "FAIL"
)

// Check is one guard's verdict.
type Check struct {
	Name    string         `json:"name"`
	Status  Status         `json:"status"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Snapshot is the read-only world state a chain evaluates against.
type Snapshot struct {
	Intent        *intent.Intent
	FreeBalance   float64
	OpenPositions int
	Policy        *policy.State
}

// Guard is a single validation rule. Evaluate must not mutate anything and
// must be safe to call with arbitrary concurrency.
type Guard interface {
	Name() string
	Evaluate(snap Snapshot) Check
}

// Report aggregates the chain's checks. Status is Fail if any check failed,
// Warning if any check warned and none failed, Pass otherwise.
type Report struct {
	Status Status  `json:"status"`
	Checks []Check `json:"checks"`
}

// Failed returns the names of all failing checks.
func (r Report) Failed() []string {
	var out []string
	for _, c := range r.Checks {
		if c.Status == Fail {
			out = append(out, c.Name)
		}
	}
	return out
}

// FailureError is returned to callers when a chain blocks execution. It
// carries the full report so the caller sees every failed guard verbatim.
type FailureError struct {
	Report Report
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("blocked by guards: %v", e.Report.Failed())
}

// Chain is an ordered list of guards.
type Chain struct {
	guards []Guard
}

// NewChain builds a chain that evaluates guards in the given order.
func NewChain(guards ...Guard) *Chain {
	return &Chain{guards: guards}
}

// Append adds a guard to the end of the chain.
func (c *Chain) Append(g Guard) {
	c.guards = append(c.guards, g)
}

// Validate runs every guard against the snapshot. All guards run even after
// a failure so the report shows the complete picture.
func (c *Chain) Validate(snap Snapshot) Report {
	report := Report{Status: Pass}
	for _, g := range c.guards {
		check := g.Evaluate(snap)
		report.Checks = append(report.Checks, check)
		switch check.Status {
		case Fail:
			report.Status = Fail
		case Warning:
			if report.Status != Fail {
				report.Status = Warning
			}
		}
	}
	return report
}
