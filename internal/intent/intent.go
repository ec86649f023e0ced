// Package intent defines the trading intent entity.
//
// An intent is a proposed trade: the record of what was decided and why,
// before any money moves. It is distinct from a position, which exists only
// after a fill.
package intent

import (
	"fmt"
	"time"

	"github.com/robsonhq/tradeguard/internal/position"
)

// Status of an intent in the PLAN → VALIDATE → EXECUTE lifecycle.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusValidated Status = "VALIDATED"
	StatusExecuting Status = "EXECUTING"
	StatusExecuted  Status = "EXECUTED"
	StatusFailed    Status = "FAILED"
	StatusCancelled Status = "CANCELLED"
)

// allowed transitions. CANCELLED is reachable only from the two pre-execution
// states and only on user request.
var transitions = map[Status][]Status{
	StatusPending:   {StatusValidated, StatusCancelled},
	StatusValidated: {StatusExecuting, StatusCancelled},
	StatusExecuting: {StatusExecuted, StatusFailed},
}

// CanTransition reports whether moving from s to next is legal.
func (s Status) CanTransition(next Status) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// Terminal reports whether the intent can never change state again.
func (s Status) Terminal() bool {
	return s == StatusExecuted || s == StatusFailed || s == StatusCancelled
}

// Provenance says where an intent came from.
type Provenance string

const (
	ProvenanceManual        Provenance = "manual"
	ProvenancePatternEngine Provenance = "pattern-engine"
)

// Intent is a proposed trade awaiting validation and execution.
type Intent struct {
	ID       string        `json:"id"`
	Symbol   string        `json:"symbol"`
	Side     position.Side `json:"side"`
	Strategy string        `json:"strategy"`

	EntryPrice      float64 `json:"entry_price"`
	StopPrice       float64 `json:"stop_price"`
	TakeProfitPrice float64 `json:"take_profit_price"`
	Quantity        float64 `json:"quantity"`

	Capital     float64 `json:"capital"`
	RiskAmount  float64 `json:"risk_amount"`
	RiskPercent float64 `json:"risk_percent"`

	Status Status `json:"status"`

	Provenance Provenance `json:"provenance"`
	Confidence float64    `json:"confidence"`
	Reason     string     `json:"reason"`

	ValidationResult *ValidationResult `json:"validation_result,omitempty"`
	ExecutionResult  *ExecutionResult  `json:"execution_result,omitempty"`

	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ValidatedAt time.Time `json:"validated_at,omitempty"`
	ExecutedAt  time.Time `json:"executed_at,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
}

// ValidationResult is the guard chain outcome attached to the intent.
type ValidationResult struct {
	Status string            `json:"status"`
	Checks []ValidationCheck `json:"checks"`
	Time   time.Time         `json:"time"`
}

// ValidationCheck is one guard's verdict.
type ValidationCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ExecutionResult records what happened when the intent was executed. Once
// populated it is the cached answer for every later Execute call.
type ExecutionResult struct {
	Mode             string    `json:"mode"`
	EntryOrderID     string    `json:"entry_order_id"`
	StopOrderID      string    `json:"stop_order_id,omitempty"`
	PositionID       string    `json:"position_id,omitempty"`
	FillPrice        float64   `json:"fill_price"`
	FillQuantity     float64   `json:"fill_quantity"`
	StopRetries      int       `json:"stop_retries,omitempty"`
	ExposureDuration string    `json:"exposure_duration,omitempty"`
	ExecutedAt       time.Time `json:"executed_at"`
}

// Transition moves the intent to next or reports why it cannot.
func (it *Intent) Transition(next Status, now time.Time) error {
	if !it.Status.CanTransition(next) {
		return fmt.Errorf("intent %s: illegal transition %s -> %s", it.ID, it.Status, next)
	}
	it.Status = next
	it.UpdatedAt = now
	switch next {
	case StatusValidated:
		it.ValidatedAt = now
	case StatusExecuted:
		it.ExecutedAt = now
	}
	return nil
}

// StopDistance is the absolute distance between entry and stop.
func (it *Intent) StopDistance() float64 {
	d := it.EntryPrice - it.StopPrice
	if d < 0 {
		return -d
	}
	return d
}

// PositionValue is quantity × entry price.
func (it *Intent) PositionValue() float64 {
	return it.Quantity * it.EntryPrice
}
