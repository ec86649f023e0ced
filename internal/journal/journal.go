// Package journal is the append-only audit ledger.
//
// Every state transition and order event is recorded here. Records are
// immutable once written; the port deliberately exposes no update or delete.
// When a mutable status field and the ledger disagree, the ledger wins.
package journal

import (
	"context"
	"time"
)

// Event types recorded by the core.
const (
	TypeIntentPlanned       = "intent_planned"
	TypeIntentValidated     = "intent_validated"
	TypeIntentBlocked       = "intent_blocked"
	TypeIntentCancelled     = "intent_cancelled"
	TypeIntentExecuting     = "intent_executing"
	TypeIntentExecuted      = "intent_executed"
	TypeIntentFailed        = "intent_failed"
	TypeOrderPlaced         = "order_placed"
	TypeOrderFailed         = "order_failed"
	TypeStopTriggered       = "stop_triggered"
	TypeTakeProfitTriggered = "take_profit_triggered"
	TypeStopAdjusted        = "stop_adjusted"
	TypePositionClosed      = "position_closed"
	TypePolicySuspended     = "policy_suspended"
	TypeUnprotectedExposure = "unprotected_exposure"
)

// Event is a single immutable audit record.
type Event struct {
	ID          string         `json:"id"`
	IntentID    string         `json:"intent_id,omitempty"`
	PositionID  string         `json:"position_id,omitempty"`
	Type        string         `json:"type"`
	Description string         `json:"description"`
	Data        map[string]any `json:"data,omitempty"`
	Time        time.Time      `json:"time"`
}

// Journaler is the audit ledger port. Record appends; the queries exist for
// reconciliation, export, and post-hoc dispute resolution.
type Journaler interface {
	Record(ctx context.Context, event Event) error
	ByIntent(ctx context.Context, intentID string) ([]Event, error)
	ByPosition(ctx context.Context, positionID string) ([]Event, error)
	AllEvents(ctx context.Context) ([]Event, error)
}
