package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/session"
)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "nested", "state.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func TestNewSQLiteStorage_RejectsEmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	require.ErrorIs(t, err, ErrEmptyString)
}

func TestMigrate_IsIdempotent(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	require.NoError(t, store.Migrate(ctx))

	version, err := store.SchemaVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, ExpectedSchemaVersion, version)

	var indexCount int
	err = store.db.QueryRow(`
		SELECT COUNT(*) FROM sqlite_master
		WHERE type='index' AND name='idx_recent_reconciliations_position'
	`).Scan(&indexCount)
	require.NoError(t, err)
	assert.Equal(t, 1, indexCount)
}

func TestMigrate_InMemory(t *testing.T) {
	store, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	require.NoError(t, store.Migrate(context.Background()))
}

func TestLoad_EmptyDatabase(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	_, err := store.LoadSnapshot(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = store.LoadSession(ctx)
	require.ErrorIs(t, err, common.ErrNotFound)
}

func TestSnapshot_RoundTripThroughCache(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	due := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)
	inv := model.Invoice{
		ID:            7,
		DocNumber:     "FT-7",
		DocDate:       time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC),
		DueDate:       &due,
		Type:          model.InvoiceActive,
		TotalAmount:   decimal.RequireFromString("1220.50"),
		PaidAmount:    decimal.RequireFromString("220.50"),
		AnagraphicsID: 3,
	}
	inv.Normalize(now)
	txn := model.BankTransaction{ID: 9, Amount: decimal.RequireFromString("-80.10"), Description: "POS"}
	txn.Normalize()

	src := cache.NewStore(cache.WithClock(func() time.Time { return now }))
	src.SetInvoices([]model.Invoice{inv, {ID: 8, TotalAmount: decimal.NewFromInt(10)}}, 40)
	src.SetTransactions([]model.BankTransaction{txn}, 1)
	src.Invalidate(cache.Transactions)
	src.SetAnagraphics([]model.Anagraphics{{ID: 3, Denomination: "Rossi Srl", Type: model.AnagraphicsClient}}, 1)

	require.NoError(t, store.SaveSnapshot(ctx, src.Snapshot()))

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.True(t, snap.TakenAt.Equal(now))

	dst := cache.NewStore()
	dst.Restore(snap)

	invoices := dst.Invoices()
	require.Len(t, invoices.Data, 2)
	assert.Equal(t, int64(7), invoices.Data[0].ID)
	assert.Equal(t, 40, invoices.Total)
	require.NotNil(t, invoices.LastFetch)
	assert.True(t, invoices.LastFetch.Equal(now))
	assert.True(t, invoices.Data[0].OpenAmount.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, model.PaymentPartiallyPaid, invoices.Data[0].PaymentStatus)

	assert.Nil(t, dst.LastFetch(cache.Transactions))
	got, ok := dst.Transaction(9)
	require.True(t, ok)
	assert.True(t, got.Amount.Equal(txn.Amount))

	a, ok := dst.Counterparty(3)
	require.True(t, ok)
	assert.Equal(t, "Rossi Srl", a.Denomination)
}

func TestSnapshot_SaveReplacesPrevious(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	first := cache.NewStore()
	first.SetInvoices([]model.Invoice{{ID: 1}, {ID: 2}}, 2)
	require.NoError(t, store.SaveSnapshot(ctx, first.Snapshot()))

	second := cache.NewStore()
	second.SetInvoices([]model.Invoice{{ID: 3}}, 1)
	require.NoError(t, store.SaveSnapshot(ctx, second.Snapshot()))

	snap, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, snap.Invoices.Data, 1)
	assert.Equal(t, int64(3), snap.Invoices.Data[0].ID)
}

func TestSession_RoundTrip(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()
	at := time.Date(2024, 3, 2, 15, 4, 5, 0, time.UTC)

	cfg := session.DefaultConfig()
	cfg.ConfidenceThreshold = 0.65
	cfg.AutoApply = true

	src := session.NewStore(cfg)
	require.NoError(t, src.AddSelectedInvoice(model.Invoice{ID: 1, TotalAmount: decimal.NewFromInt(100), OpenAmount: decimal.NewFromInt(100)}))
	require.NoError(t, src.AddSelectedTransaction(model.BankTransaction{ID: 2, Amount: decimal.NewFromInt(100), RemainingAmount: decimal.NewFromInt(100)}))
	src.SetUltraSmartSuggestions([]model.MatchSuggestion{{ConfidenceScore: 0.7, InvoiceIDs: []int64{1}, TransactionIDs: []int64{2}}})
	src.Record(model.RecentReconciliation{
		ID:     "older",
		At:     at.Add(-time.Hour),
		Source: model.SourceManual,
		Pairs:  []model.ReconciliationPair{{InvoiceID: 5, TransactionID: 6, Amount: decimal.RequireFromString("12.34")}},
		Total:  decimal.RequireFromString("12.34"),
	})
	src.Record(model.RecentReconciliation{ID: "newer", At: at, Source: model.SourceAuto, Total: decimal.Zero})

	require.NoError(t, store.SaveSession(ctx, src.Snapshot()))

	snap, err := store.LoadSession(ctx)
	require.NoError(t, err)

	dst := session.NewStore(session.DefaultConfig())
	dst.Restore(snap)

	assert.Equal(t, cfg, dst.Config())
	assert.Equal(t, session.Reviewing, dst.State())
	assert.Len(t, dst.SelectedInvoices(), 1)
	assert.Len(t, dst.SelectedTransactions(), 1)
	assert.Len(t, dst.UltraSmartSuggestions(), 1)

	recent := dst.RecentReconciliations()
	require.Len(t, recent, 2)
	assert.Equal(t, "newer", recent[0].ID)
	assert.True(t, recent[0].At.Equal(at))
	assert.Equal(t, "older", recent[1].ID)
	require.Len(t, recent[1].Pairs, 1)
	assert.True(t, recent[1].Pairs[0].Amount.Equal(decimal.RequireFromString("12.34")))
	assert.True(t, recent[1].Total.Equal(decimal.RequireFromString("12.34")))

	limited, err := store.RecentReconciliations(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "newer", limited[0].ID)
}

func TestSession_SaveOverwrites(t *testing.T) {
	store := createTestStorage(t)
	ctx := context.Background()

	src := session.NewStore(session.DefaultConfig())
	src.Record(model.RecentReconciliation{ID: "a", Source: model.SourceManual})
	require.NoError(t, store.SaveSession(ctx, src.Snapshot()))

	src.ClearReconciliationState()
	src.Record(model.RecentReconciliation{ID: "b", Source: model.SourceManual})
	require.NoError(t, store.SaveSession(ctx, src.Snapshot()))

	recent, err := store.RecentReconciliations(ctx, 0)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "b", recent[0].ID)
	assert.Equal(t, "a", recent[1].ID)
}
