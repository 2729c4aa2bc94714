package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
)

type identified interface {
	EntityID() int64
}

// SaveSnapshot replaces the stored cache with snap.
func (s *SQLiteStorage) SaveSnapshot(ctx context.Context, snap cache.Snapshot) error {
	if err := validateContext(ctx); err != nil {
		return err
	}

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entities`); err != nil {
			return fmt.Errorf("failed to clear cached entities: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM cache_collections`); err != nil {
			return fmt.Errorf("failed to clear cached collections: %w", err)
		}

		if err := saveCollection(ctx, tx, cache.Invoices, snap.Invoices, snap.TakenAt); err != nil {
			return err
		}
		if err := saveCollection(ctx, tx, cache.Transactions, snap.Transactions, snap.TakenAt); err != nil {
			return err
		}
		return saveCollection(ctx, tx, cache.Anagraphics, snap.Anagraphics, snap.TakenAt)
	})
	if err != nil {
		return err
	}

	common.LogDebug("Saved cache snapshot", common.Fields{
		"invoices":     len(snap.Invoices.Data),
		"transactions": len(snap.Transactions.Data),
		"anagraphics":  len(snap.Anagraphics.Data),
	})
	return nil
}

// LoadSnapshot reads the stored cache. It returns common.ErrNotFound when
// nothing was saved yet.
func (s *SQLiteStorage) LoadSnapshot(ctx context.Context) (cache.Snapshot, error) {
	var snap cache.Snapshot
	if err := validateContext(ctx); err != nil {
		return snap, err
	}

	err := s.db.QueryRowContext(ctx,
		`SELECT saved_at FROM cache_collections ORDER BY saved_at DESC LIMIT 1`).Scan(&snap.TakenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, fmt.Errorf("%w: no cache snapshot", common.ErrNotFound)
	}
	if err != nil {
		return snap, fmt.Errorf("failed to read cached collections: %w", err)
	}

	if snap.Invoices, err = loadCollection[model.Invoice](ctx, s.db, cache.Invoices); err != nil {
		return snap, err
	}
	if snap.Transactions, err = loadCollection[model.BankTransaction](ctx, s.db, cache.Transactions); err != nil {
		return snap, err
	}
	if snap.Anagraphics, err = loadCollection[model.Anagraphics](ctx, s.db, cache.Anagraphics); err != nil {
		return snap, err
	}
	return snap, nil
}

func saveCollection[T identified](ctx context.Context, tx *sql.Tx, typ cache.EntityType, c cache.Collection[T], takenAt time.Time) error {
	var lastFetch any
	if c.LastFetch != nil {
		lastFetch = c.LastFetch.UTC()
	}
	if takenAt.IsZero() {
		takenAt = time.Now()
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO cache_collections (entity_type, total, last_fetch, saved_at) VALUES (?, ?, ?, ?)`,
		string(typ), c.Total, lastFetch, takenAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to save %s collection: %w", typ, err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO cache_entities (entity_type, id, position, payload) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare %s insert: %w", typ, err)
	}
	defer func() { _ = stmt.Close() }()

	for i, item := range c.Data {
		payload, err := json.Marshal(item)
		if err != nil {
			return fmt.Errorf("failed to encode %s %d: %w", typ, item.EntityID(), err)
		}
		if _, err := stmt.ExecContext(ctx, string(typ), item.EntityID(), i, string(payload)); err != nil {
			return fmt.Errorf("failed to save %s %d: %w", typ, item.EntityID(), err)
		}
	}
	return nil
}

func loadCollection[T any](ctx context.Context, db *sql.DB, typ cache.EntityType) (cache.Collection[T], error) {
	var (
		out       cache.Collection[T]
		lastFetch sql.NullTime
	)
	err := db.QueryRowContext(ctx,
		`SELECT total, last_fetch FROM cache_collections WHERE entity_type = ?`, string(typ)).
		Scan(&out.Total, &lastFetch)
	if errors.Is(err, sql.ErrNoRows) {
		return out, nil
	}
	if err != nil {
		return out, fmt.Errorf("failed to read %s collection: %w", typ, err)
	}
	if lastFetch.Valid {
		stamp := lastFetch.Time
		out.LastFetch = &stamp
	}

	rows, err := db.QueryContext(ctx,
		`SELECT payload FROM cache_entities WHERE entity_type = ? ORDER BY position`, string(typ))
	if err != nil {
		return out, fmt.Errorf("failed to query %s: %w", typ, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return out, fmt.Errorf("failed to scan %s: %w", typ, err)
		}
		var item T
		if err := json.Unmarshal([]byte(payload), &item); err != nil {
			return out, fmt.Errorf("failed to decode %s: %w", typ, err)
		}
		out.Data = append(out.Data, item)
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("failed to read %s: %w", typ, err)
	}
	return out, nil
}
