package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/policy"
	"github.com/robsonhq/tradeguard/internal/position"
)

// MemoryStorage keeps everything in process. Used for dry runs and tests.
type MemoryStorage struct {
	mu sync.RWMutex

	// Intents and positions by ID
	intents   map[string]intent.Intent
	positions map[string]position.Position

	// Policy state, one per account
	policyState *policy.State

	// Events (append-only)
	events []journal.Event
}

func NewMemory() *MemoryStorage {
	return &MemoryStorage{
		intents:   make(map[string]intent.Intent),
		positions: make(map[string]position.Position),
		events:    make([]journal.Event, 0, 1024),
	}
}

// GetDB returns nil for in-memory storage (no SQL database)
func (m *MemoryStorage) GetDB() *sql.DB { return nil }

// -------- intent.Store --------

func (m *MemoryStorage) SaveIntent(ctx context.Context, it *intent.Intent) error {
	if it.ID == "" {
		return fmt.Errorf("intent has no ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.intents[it.ID] = *cloneIntent(it)
	return nil
}

func (m *MemoryStorage) GetIntent(ctx context.Context, id string) (*intent.Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if it, ok := m.intents[id]; ok {
		return cloneIntent(&it), nil
	}
	return nil, nil
}

func (m *MemoryStorage) ListIntents(ctx context.Context, status intent.Status) ([]*intent.Intent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*intent.Intent
	for _, it := range m.intents {
		if status != "" && it.Status != status {
			continue
		}
		out = append(out, cloneIntent(&it))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// cloneIntent deep-copies so callers never share the stored record.
func cloneIntent(it *intent.Intent) *intent.Intent {
	cc := *it
	if it.ValidationResult != nil {
		vr := *it.ValidationResult
		vr.Checks = append([]intent.ValidationCheck(nil), it.ValidationResult.Checks...)
		cc.ValidationResult = &vr
	}
	if it.ExecutionResult != nil {
		er := *it.ExecutionResult
		cc.ExecutionResult = &er
	}
	return &cc
}

// -------- position.Store --------

func (m *MemoryStorage) SavePosition(ctx context.Context, p *position.Position) error {
	if p.ID == "" {
		return fmt.Errorf("position has no ID")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.positions[p.ID] = *p
	return nil
}

func (m *MemoryStorage) GetPosition(ctx context.Context, id string) (*position.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.positions[id]; ok {
		pp := p
		return &pp, nil
	}
	return nil, nil
}

func (m *MemoryStorage) ListActivePositions(ctx context.Context) ([]*position.Position, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*position.Position
	for _, p := range m.positions {
		if p.Status.Terminal() {
			continue
		}
		pp := p
		out = append(out, &pp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OpenedAt.Before(out[j].OpenedAt) })
	return out, nil
}

func (m *MemoryStorage) CountOpenPositions(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, p := range m.positions {
		if !p.Status.Terminal() {
			n++
		}
	}
	return n, nil
}

// -------- policy.Store --------

func (m *MemoryStorage) GetPolicyState(ctx context.Context) (*policy.State, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.policyState == nil {
		return nil, nil
	}
	ss := *m.policyState
	return &ss, nil
}

func (m *MemoryStorage) SavePolicyState(ctx context.Context, s *policy.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ss := *s
	m.policyState = &ss
	return nil
}

// -------- journal.Journaler --------

func (m *MemoryStorage) Record(ctx context.Context, event journal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.Time = event.Time.UTC()
	m.events = append(m.events, event)
	return nil
}

func (m *MemoryStorage) ByIntent(ctx context.Context, intentID string) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.Event
	for _, e := range m.events {
		if e.IntentID == intentID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *MemoryStorage) ByPosition(ctx context.Context, positionID string) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []journal.Event
	for _, e := range m.events {
		if e.PositionID == positionID {
			out = append(out, e)
		}
	}
	return out, nil
}

// AllEvents returns the full ledger in insertion order.
func (m *MemoryStorage) AllEvents(ctx context.Context) ([]journal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]journal.Event(nil), m.events...), nil
}
