package lattice

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/cognitivelattice/web-agent/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is an optional secondary index over historical lattice sessions,
// backed by sqlite. It lets an operator query events across sessions
// without re-parsing every lattice JSON file; the JSON file produced by
// Lattice.save remains the authoritative record.
type Store struct {
	db *sql.DB
}

// OpenStore opens (creating if necessary) the sqlite index at path and
// applies pending goose migrations.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("lattice store: open: %w", err)
	}
	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("lattice store: set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("lattice store: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// IndexEvent records one lattice event for cross-session querying.
func (s *Store) IndexEvent(ctx context.Context, sessionID string, ev model.LatticeEvent) error {
	payload, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("lattice store: marshal payload: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO events (session_id, event_type, occurred_at, payload) VALUES (?, ?, ?, ?)`,
		sessionID, string(ev.Type), ev.Timestamp, string(payload),
	)
	return err
}

// EventsForSession returns all indexed events for a session, ordered by
// occurrence time, for operator-facing queries.
func (s *Store) EventsForSession(ctx context.Context, sessionID string) ([]model.LatticeEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT event_type, occurred_at, payload FROM events WHERE session_id = ? ORDER BY occurred_at ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("lattice store: query: %w", err)
	}
	defer rows.Close()

	var out []model.LatticeEvent
	for rows.Next() {
		var ev model.LatticeEvent
		var payload string
		if err := rows.Scan(&ev.Type, &ev.Timestamp, &payload); err != nil {
			return nil, fmt.Errorf("lattice store: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &ev.Payload); err != nil {
			return nil, fmt.Errorf("lattice store: unmarshal payload: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}
