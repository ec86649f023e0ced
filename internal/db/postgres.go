package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/robsonhq/tradeguard/internal/db/conf"
	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/policy"
	"github.com/robsonhq/tradeguard/internal/position"
)

// Transaction context key
type txKey struct{}

// WithTransaction adds a transaction to the context
func WithTransaction(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txKey{}, tx)
}

// GetTransaction retrieves a transaction from context, or returns nil if not present
func GetTransaction(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return nil
}

type Default struct {
	db *sql.DB
}

func New(c conf.Config) (*Default, error) {
	return &Default{db: c.DB}, nil
}

func (p *Default) GetDB() *sql.DB {
	return p.db
}

// executeWithTransaction executes a function with proper transaction management.
// If a transaction exists in context, it uses that. Otherwise, it creates a new one.
func (p *Default) executeWithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	if tx := GetTransaction(ctx); tx != nil {
		return fn(tx)
	}

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if fnErr := fn(tx); fnErr != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction rollback failed: %w (original error: %v)", rbErr, fnErr)
		}
		return fnErr
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("transaction commit failed: %w", commitErr)
	}

	return nil
}

// queryWithTransaction executes a query using transaction from context if available
func (p *Default) queryWithTransaction(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryContext(ctx, query, args...)
	}
	return p.db.QueryContext(ctx, query, args...)
}

func (p *Default) queryRowWithTransaction(ctx context.Context, query string, args ...any) *sql.Row {
	if tx := GetTransaction(ctx); tx != nil {
		return tx.QueryRowContext(ctx, query, args...)
	}
	return p.db.QueryRowContext(ctx, query, args...)
}

// -------- intent.Store --------

// SaveIntent upserts an intent. The guard report and execution result travel
// as JSON documents; the queryable lifecycle fields get their own columns.
func (p *Default) SaveIntent(ctx context.Context, it *intent.Intent) error {
	if it.ID == "" {
		return fmt.Errorf("intent has no ID")
	}

	validationJSON, err := nullableJSON(it.ValidationResult)
	if err != nil {
		return fmt.Errorf("failed to marshal validation result for intent %s: %w", it.ID, err)
	}
	executionJSON, err := nullableJSON(it.ExecutionResult)
	if err != nil {
		return fmt.Errorf("failed to marshal execution result for intent %s: %w", it.ID, err)
	}

	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO intents (id, symbol, side, strategy, entry_price, stop_price, take_profit_price,
			quantity, capital, risk_amount, risk_percent, status, provenance, confidence, reason,
			validation_result, execution_result, created_at, updated_at, validated_at, executed_at, error_message)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
		ON CONFLICT (id) DO UPDATE SET
			status=EXCLUDED.status, quantity=EXCLUDED.quantity,
			validation_result=EXCLUDED.validation_result, execution_result=EXCLUDED.execution_result,
			updated_at=EXCLUDED.updated_at, validated_at=EXCLUDED.validated_at,
			executed_at=EXCLUDED.executed_at, error_message=EXCLUDED.error_message`,
			it.ID, it.Symbol, string(it.Side), it.Strategy, it.EntryPrice, it.StopPrice, it.TakeProfitPrice,
			it.Quantity, it.Capital, it.RiskAmount, it.RiskPercent, string(it.Status), string(it.Provenance),
			it.Confidence, it.Reason, validationJSON, executionJSON,
			it.CreatedAt, it.UpdatedAt, nullableTime(it.ValidatedAt), nullableTime(it.ExecutedAt), it.ErrorMessage)
		if err != nil {
			return fmt.Errorf("failed to save intent %s: %w", it.ID, err)
		}
		return nil
	})
}

func (p *Default) GetIntent(ctx context.Context, id string) (*intent.Intent, error) {
	row := p.queryRowWithTransaction(ctx, `
		SELECT id, symbol, side, strategy, entry_price, stop_price, take_profit_price,
			quantity, capital, risk_amount, risk_percent, status, provenance, confidence, reason,
			validation_result, execution_result, created_at, updated_at, validated_at, executed_at, error_message
		FROM intents WHERE id=$1`, id)
	it, err := scanIntent(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get intent %s: %w", id, err)
	}
	return it, nil
}

func (p *Default) ListIntents(ctx context.Context, status intent.Status) ([]*intent.Intent, error) {
	query := `
		SELECT id, symbol, side, strategy, entry_price, stop_price, take_profit_price,
			quantity, capital, risk_amount, risk_percent, status, provenance, confidence, reason,
			validation_result, execution_result, created_at, updated_at, validated_at, executed_at, error_message
		FROM intents`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at ASC`

	rows, err := p.queryWithTransaction(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list intents: %w", err)
	}
	defer rows.Close()

	var out []*intent.Intent
	for rows.Next() {
		it, err := scanIntent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan intent: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIntent(row rowScanner) (*intent.Intent, error) {
	var it intent.Intent
	var side, status, provenance string
	var validationJSON, executionJSON sql.NullString
	var validatedAt, executedAt sql.NullTime
	err := row.Scan(&it.ID, &it.Symbol, &side, &it.Strategy, &it.EntryPrice, &it.StopPrice, &it.TakeProfitPrice,
		&it.Quantity, &it.Capital, &it.RiskAmount, &it.RiskPercent, &status, &provenance, &it.Confidence, &it.Reason,
		&validationJSON, &executionJSON, &it.CreatedAt, &it.UpdatedAt, &validatedAt, &executedAt, &it.ErrorMessage)
	if err != nil {
		return nil, err
	}
	it.Side = position.Side(side)
	it.Status = intent.Status(status)
	it.Provenance = intent.Provenance(provenance)
	if validatedAt.Valid {
		it.ValidatedAt = validatedAt.Time.UTC()
	}
	if executedAt.Valid {
		it.ExecutedAt = executedAt.Time.UTC()
	}
	if validationJSON.Valid && validationJSON.String != "" {
		var vr intent.ValidationResult
		if err := json.Unmarshal([]byte(validationJSON.String), &vr); err != nil {
			return nil, fmt.Errorf("failed to unmarshal validation result: %w", err)
		}
		it.ValidationResult = &vr
	}
	if executionJSON.Valid && executionJSON.String != "" {
		var er intent.ExecutionResult
		if err := json.Unmarshal([]byte(executionJSON.String), &er); err != nil {
			return nil, fmt.Errorf("failed to unmarshal execution result: %w", err)
		}
		it.ExecutionResult = &er
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}

// -------- position.Store --------

func (p *Default) SavePosition(ctx context.Context, pos *position.Position) error {
	if pos.ID == "" {
		return fmt.Errorf("position has no ID")
	}
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO positions (id, intent_id, symbol, side, quantity, entry_price, initial_stop,
			stop_price, take_profit_price, leverage, status, opened_at, closed_at, exit_price, realized_pnl, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
		ON CONFLICT (id) DO UPDATE SET
			stop_price=EXCLUDED.stop_price, status=EXCLUDED.status, closed_at=EXCLUDED.closed_at,
			exit_price=EXCLUDED.exit_price, realized_pnl=EXCLUDED.realized_pnl, updated_at=EXCLUDED.updated_at`,
			pos.ID, pos.IntentID, pos.Symbol, string(pos.Side), pos.Quantity, pos.EntryPrice, pos.InitialStop,
			pos.StopPrice, pos.TakeProfitPrice, pos.Leverage, string(pos.Status),
			pos.OpenedAt, nullableTime(pos.ClosedAt), pos.ExitPrice, pos.RealizedPnL, pos.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save position %s: %w", pos.ID, err)
		}
		return nil
	})
}

func (p *Default) GetPosition(ctx context.Context, id string) (*position.Position, error) {
	row := p.queryRowWithTransaction(ctx, `
		SELECT id, intent_id, symbol, side, quantity, entry_price, initial_stop,
			stop_price, take_profit_price, leverage, status, opened_at, closed_at, exit_price, realized_pnl, updated_at
		FROM positions WHERE id=$1`, id)
	pos, err := scanPosition(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get position %s: %w", id, err)
	}
	return pos, nil
}

func (p *Default) ListActivePositions(ctx context.Context) ([]*position.Position, error) {
	rows, err := p.queryWithTransaction(ctx, `
		SELECT id, intent_id, symbol, side, quantity, entry_price, initial_stop,
			stop_price, take_profit_price, leverage, status, opened_at, closed_at, exit_price, realized_pnl, updated_at
		FROM positions WHERE status IN ('PENDING','OPEN','CLOSING') ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active positions: %w", err)
	}
	defer rows.Close()

	var out []*position.Position
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

func (p *Default) CountOpenPositions(ctx context.Context) (int, error) {
	var n int
	err := p.queryRowWithTransaction(ctx,
		`SELECT COUNT(*) FROM positions WHERE status IN ('PENDING','OPEN','CLOSING')`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count open positions: %w", err)
	}
	return n, nil
}

func scanPosition(row rowScanner) (*position.Position, error) {
	var pos position.Position
	var side, status string
	var closedAt sql.NullTime
	err := row.Scan(&pos.ID, &pos.IntentID, &pos.Symbol, &side, &pos.Quantity, &pos.EntryPrice, &pos.InitialStop,
		&pos.StopPrice, &pos.TakeProfitPrice, &pos.Leverage, &status, &pos.OpenedAt, &closedAt,
		&pos.ExitPrice, &pos.RealizedPnL, &pos.UpdatedAt)
	if err != nil {
		return nil, err
	}
	pos.Side = position.Side(side)
	pos.Status = position.Status(status)
	if closedAt.Valid {
		pos.ClosedAt = closedAt.Time.UTC()
	}
	pos.OpenedAt = pos.OpenedAt.UTC()
	pos.UpdatedAt = pos.UpdatedAt.UTC()
	return &pos, nil
}

// -------- policy.Store --------

// GetPolicyState loads the single policy row, nil when none exists yet.
func (p *Default) GetPolicyState(ctx context.Context) (*policy.State, error) {
	var s policy.State
	var suspendedReason sql.NullString
	var suspendedAt sql.NullTime
	err := p.queryRowWithTransaction(ctx, `
		SELECT day, month, starting_capital, daily_realized_loss, monthly_realized_loss,
			suspended, suspended_reason, suspended_at, updated_at
		FROM policy_state WHERE id=1`).Scan(
		&s.Day, &s.Month, &s.StartingCapital, &s.DailyRealizedLoss, &s.MonthlyRealizedLoss,
		&s.Suspended, &suspendedReason, &suspendedAt, &s.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy state: %w", err)
	}
	if suspendedReason.Valid {
		s.SuspendedReason = suspendedReason.String
	}
	if suspendedAt.Valid {
		s.SuspendedAt = suspendedAt.Time.UTC()
	}
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func (p *Default) SavePolicyState(ctx context.Context, s *policy.State) error {
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO policy_state (id, day, month, starting_capital, daily_realized_loss, monthly_realized_loss,
			suspended, suspended_reason, suspended_at, updated_at)
		VALUES (1,$1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			day=EXCLUDED.day, month=EXCLUDED.month, starting_capital=EXCLUDED.starting_capital,
			daily_realized_loss=EXCLUDED.daily_realized_loss, monthly_realized_loss=EXCLUDED.monthly_realized_loss,
			suspended=EXCLUDED.suspended, suspended_reason=EXCLUDED.suspended_reason,
			suspended_at=EXCLUDED.suspended_at, updated_at=EXCLUDED.updated_at`,
			s.Day, s.Month, s.StartingCapital, s.DailyRealizedLoss, s.MonthlyRealizedLoss,
			s.Suspended, s.SuspendedReason, nullableTime(s.SuspendedAt), s.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to save policy state: %w", err)
		}
		return nil
	})
}

// -------- journal.Journaler --------

// Record appends an audit event. The table has no UPDATE or DELETE path; a
// conflicting ID is an error, never an overwrite.
func (p *Default) Record(ctx context.Context, event journal.Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	dataJSON, err := nullableJSON(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}
	return p.executeWithTransaction(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (id, intent_id, position_id, type, description, data, time)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
			event.ID, event.IntentID, event.PositionID, event.Type, event.Description, dataJSON, event.Time)
		if err != nil {
			return fmt.Errorf("failed to record audit event %s: %w", event.Type, err)
		}
		return nil
	})
}

func (p *Default) ByIntent(ctx context.Context, intentID string) ([]journal.Event, error) {
	return p.queryEvents(ctx, `
		SELECT id, intent_id, position_id, type, description, data, time
		FROM audit_events WHERE intent_id=$1 ORDER BY time ASC, id ASC`, intentID)
}

func (p *Default) ByPosition(ctx context.Context, positionID string) ([]journal.Event, error) {
	return p.queryEvents(ctx, `
		SELECT id, intent_id, position_id, type, description, data, time
		FROM audit_events WHERE position_id=$1 ORDER BY time ASC, id ASC`, positionID)
}

// AllEvents returns the full ledger, oldest first.
func (p *Default) AllEvents(ctx context.Context) ([]journal.Event, error) {
	return p.queryEvents(ctx, `
		SELECT id, intent_id, position_id, type, description, data, time
		FROM audit_events ORDER BY time ASC, id ASC`)
}

func (p *Default) queryEvents(ctx context.Context, query string, args ...any) ([]journal.Event, error) {
	rows, err := p.queryWithTransaction(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit events: %w", err)
	}
	defer rows.Close()

	var out []journal.Event
	for rows.Next() {
		var e journal.Event
		var dataJSON sql.NullString
		if err := rows.Scan(&e.ID, &e.IntentID, &e.PositionID, &e.Type, &e.Description, &dataJSON, &e.Time); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		if dataJSON.Valid && dataJSON.String != "" {
			if err := json.Unmarshal([]byte(dataJSON.String), &e.Data); err != nil {
				return nil, fmt.Errorf("failed to unmarshal event data: %w", err)
			}
		}
		e.Time = e.Time.UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// -------- helpers --------

func nullableJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	// A nil pointer or nil map marshals to "null"; store SQL NULL instead.
	if string(b) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}
