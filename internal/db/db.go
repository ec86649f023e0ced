// Package db
package db

import (
	"database/sql"

	"github.com/robsonhq/tradeguard/internal/intent"
	"github.com/robsonhq/tradeguard/internal/journal"
	"github.com/robsonhq/tradeguard/internal/policy"
	"github.com/robsonhq/tradeguard/internal/position"
)

// Storage is the interface for all persistent storage.
type Storage interface {
	GetDB() *sql.DB
	intent.Store
	position.Store
	policy.Store
	journal.Journaler
}
