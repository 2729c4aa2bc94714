package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/session"
)

// SaveSession replaces the stored session with snap. Recent reconciliations
// are stored one row each, newest at position 0.
func (s *SQLiteStorage) SaveSession(ctx context.Context, snap session.Snapshot) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	recent := snap.Recent
	snap.Recent = nil
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}

	return s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO session_state (id, payload, updated_at) VALUES (1, ?, CURRENT_TIMESTAMP)
			ON CONFLICT(id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`,
			string(payload))
		if err != nil {
			return fmt.Errorf("failed to save session: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM recent_reconciliations`); err != nil {
			return fmt.Errorf("failed to clear recent reconciliations: %w", err)
		}
		for i, entry := range recent {
			if err := saveRecent(ctx, tx, i, entry); err != nil {
				return err
			}
		}
		return nil
	})
}

func saveRecent(ctx context.Context, tx *sql.Tx, position int, entry model.RecentReconciliation) error {
	payload, err := json.Marshal(entry.Pairs)
	if err != nil {
		return fmt.Errorf("failed to encode reconciliation %s: %w", entry.ID, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO recent_reconciliations (id, position, reconciled_at, source, total, payload)
		VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, position, entry.At.UTC(), string(entry.Source), entry.Total.String(), string(payload))
	if err != nil {
		return fmt.Errorf("failed to save reconciliation %s: %w", entry.ID, err)
	}
	return nil
}

// LoadSession reads the stored session. It returns common.ErrNotFound when
// nothing was saved yet.
func (s *SQLiteStorage) LoadSession(ctx context.Context) (session.Snapshot, error) {
	var snap session.Snapshot
	if err := validateContext(ctx); err != nil {
		return snap, err
	}

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM session_state WHERE id = 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("%w: no saved session", common.ErrNotFound)
	}
	if err != nil {
		return snap, fmt.Errorf("failed to read session: %w", err)
	}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return snap, fmt.Errorf("failed to decode session: %w", err)
	}

	snap.Recent, err = s.RecentReconciliations(ctx, 0)
	return snap, err
}

// RecentReconciliations returns stored reconciliations, newest first. A
// positive limit caps the result.
func (s *SQLiteStorage) RecentReconciliations(ctx context.Context, limit int) ([]model.RecentReconciliation, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	query := `SELECT id, reconciled_at, source, total, payload FROM recent_reconciliations ORDER BY position`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent reconciliations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.RecentReconciliation
	for rows.Next() {
		var (
			entry   model.RecentReconciliation
			source  string
			total   string
			payload string
		)
		if err := rows.Scan(&entry.ID, &entry.At, &source, &total, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan recent reconciliation: %w", err)
		}
		entry.Source = model.ReconciliationSource(source)
		if entry.Total, err = decimalFromString(total); err != nil {
			return nil, fmt.Errorf("reconciliation %s: %w", entry.ID, err)
		}
		if err := json.Unmarshal([]byte(payload), &entry.Pairs); err != nil {
			return nil, fmt.Errorf("failed to decode reconciliation %s: %w", entry.ID, err)
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}
