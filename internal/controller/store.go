package controller

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Distributed-IoT-Software-Arch-Course/go-mqtt-playground/internal/descriptor"
)

// storedTimeLayout has a fixed-width fraction so due_at sorts chronologically
// as text.
const storedTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Rearm is a scheduled counter-command.
type Rearm struct {
	ID        string                      `json:"id"`
	DeviceID  string                      `json:"device_id"`
	Topic     string                      `json:"topic"`
	Action    descriptor.ActionDescriptor `json:"action"`
	DueAt     time.Time                   `json:"due_at"`
	CreatedAt time.Time                   `json:"created_at"`
}

// Store persists pending re-arms so a restarted controller can deliver them.
type Store interface {
	Save(ctx context.Context, r Rearm) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]Rearm, error)
}

// SQLiteStore keeps pending re-arms in the pending_rearms table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a store over an open, migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Save inserts or replaces a re-arm.
func (s *SQLiteStore) Save(ctx context.Context, r Rearm) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO pending_rearms (id, device_id, topic, action_type, action_value, due_at, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.DeviceID, r.Topic,
		r.Action.ActionType, r.Action.ActionValue,
		r.DueAt.UTC().Format(storedTimeLayout),
		r.CreatedAt.UTC().Format(storedTimeLayout),
	)
	if err != nil {
		return fmt.Errorf("saving re-arm %s: %w", r.ID, err)
	}
	return nil
}

// Delete removes a re-arm. Deleting an unknown id is not an error.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_rearms WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting re-arm %s: %w", id, err)
	}
	return nil
}

// List returns every stored re-arm ordered by due time.
func (s *SQLiteStore) List(ctx context.Context) ([]Rearm, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, device_id, topic, action_type, action_value, due_at, created_at
		 FROM pending_rearms ORDER BY due_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing re-arms: %w", err)
	}
	defer rows.Close()

	var out []Rearm
	for rows.Next() {
		var (
			r            Rearm
			due, created string
		)
		if err := rows.Scan(&r.ID, &r.DeviceID, &r.Topic, &r.Action.ActionType, &r.Action.ActionValue, &due, &created); err != nil {
			return nil, fmt.Errorf("scanning re-arm: %w", err)
		}
		if r.DueAt, err = time.Parse(time.RFC3339Nano, due); err != nil {
			return nil, fmt.Errorf("parsing due_at of re-arm %s: %w", r.ID, err)
		}
		if r.CreatedAt, err = time.Parse(time.RFC3339Nano, created); err != nil {
			return nil, fmt.Errorf("parsing created_at of re-arm %s: %w", r.ID, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating re-arms: %w", err)
	}
	return out, nil
}
