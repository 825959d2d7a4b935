package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/freeeve/parley/internal/model"
)

// Sink persists the game record to Postgres. One Sink serves one game run.
type Sink struct {
	db    *sql.DB
	runID string
}

// NewSink creates a Sink writing under the given run ID.
func NewSink(db *sql.DB, runID string) *Sink {
	return &Sink{db: db, runID: runID}
}

// AddPhase inserts a phase row.
func (s *Sink) AddPhase(ctx context.Context, name string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO phases (run_id, name) VALUES ($1, $2)
		 ON CONFLICT (run_id, name) DO NOTHING`,
		s.runID, name,
	)
	if err != nil {
		return fmt.Errorf("add phase: %w", err)
	}
	return nil
}

// AddMessage inserts one negotiation message.
func (s *Sink) AddMessage(ctx context.Context, phase string, sender, recipient model.Power, content string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (run_id, phase, sender, recipient, content)
		 VALUES ($1, $2, $3, $4, $5)`,
		s.runID, phase, string(sender), string(recipient), content,
	)
	if err != nil {
		return fmt.Errorf("add message: %w", err)
	}
	return nil
}

// AddOrders inserts a power's submitted orders for a phase in one transaction.
func (s *Sink) AddOrders(ctx context.Context, phase string, power model.Power, orders []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO orders (run_id, phase, power, body) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert order: %w", err)
	}
	defer stmt.Close()

	for _, o := range orders {
		if _, err := stmt.ExecContext(ctx, s.runID, phase, string(power), o); err != nil {
			return fmt.Errorf("insert order: %w", err)
		}
	}
	return tx.Commit()
}

// AddResults inserts a power's adjudication results for a phase. Each result
// row is stored as a JSON array.
func (s *Sink) AddResults(ctx context.Context, phase string, power model.Power, results [][]string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO results (run_id, phase, power, body) VALUES ($1, $2, $3, $4)`)
	if err != nil {
		return fmt.Errorf("prepare insert result: %w", err)
	}
	defer stmt.Close()

	for _, r := range results {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, s.runID, phase, string(power), body); err != nil {
			return fmt.Errorf("insert result: %w", err)
		}
	}
	return tx.Commit()
}
