package workflow

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/notify"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

// DefaultPageSize is the page size used when walking backend lists.
const DefaultPageSize = 500

// Loader reads collections through the cache. Fresh data is served as is,
// missing data is fetched before returning, and stale data is served while a
// background refresh runs.
type Loader struct {
	gw       service.Gateway
	cache    *cache.Store
	policy   *cache.Policy
	notes    *notify.Center
	inflight map[cache.EntityType]bool
	pageSize int
	maxItems int
	wg       sync.WaitGroup
	mu       sync.Mutex
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithPageSize sets the page size used to walk backend lists.
func WithPageSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.pageSize = n
		}
	}
}

// WithMaxItems caps how many entities of one type are loaded. Zero means no cap.
func WithMaxItems(n int) LoaderOption {
	return func(l *Loader) {
		l.maxItems = n
	}
}

// NewLoader creates a Loader.
func NewLoader(gw service.Gateway, store *cache.Store, policy *cache.Policy, notes *notify.Center, opts ...LoaderOption) *Loader {
	l := &Loader{
		gw:       gw,
		cache:    store,
		policy:   policy,
		notes:    notes,
		inflight: make(map[cache.EntityType]bool),
		pageSize: DefaultPageSize,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func loadOp(t cache.EntityType) string {
	return "load." + string(t)
}

// Invoices returns the cached invoices, loading them when needed.
func (l *Loader) Invoices(ctx context.Context) (cache.Collection[model.Invoice], error) {
	err := l.load(ctx, cache.Invoices, l.fetchInvoices)
	return l.cache.Invoices(), err
}

// Transactions returns the cached transactions, loading them when needed.
func (l *Loader) Transactions(ctx context.Context) (cache.Collection[model.BankTransaction], error) {
	err := l.load(ctx, cache.Transactions, l.fetchTransactions)
	return l.cache.Transactions(), err
}

// Anagraphics returns the cached counterparties, loading them when needed.
func (l *Loader) Anagraphics(ctx context.Context) (cache.Collection[model.Anagraphics], error) {
	err := l.load(ctx, cache.Anagraphics, l.fetchAnagraphics)
	return l.cache.Anagraphics(), err
}

// Refresh refetches t regardless of freshness.
func (l *Loader) Refresh(ctx context.Context, t cache.EntityType) error {
	fetch, ok := l.fetcher(t)
	if !ok {
		return fmt.Errorf("%w: cannot load %q", common.ErrInvalidConfig, t)
	}
	return l.fetch(ctx, t, fetch)
}

// RefreshAll refetches every entity collection concurrently. Each collection
// is stored as soon as it arrives; the first error is returned.
func (l *Loader) RefreshAll(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, t := range []cache.EntityType{cache.Invoices, cache.Transactions, cache.Anagraphics} {
		g.Go(func() error {
			return l.Refresh(ctx, t)
		})
	}
	return g.Wait()
}

// Wait blocks until every background refresh has finished.
func (l *Loader) Wait() {
	l.wg.Wait()
}

// Invoice returns one invoice. The cached copy is used while invoices are
// fresh; otherwise it is fetched and recorded as recently viewed.
func (l *Loader) Invoice(ctx context.Context, id int64) (model.Invoice, error) {
	if inv, ok := l.cache.Invoice(id); ok && l.fresh(cache.Invoices) {
		return inv, nil
	}
	inv, err := l.gw.GetInvoice(ctx, id)
	if err != nil {
		return model.Invoice{}, err
	}
	l.cache.ViewInvoice(*inv)
	return *inv, nil
}

// Transaction returns one transaction, like Invoice.
func (l *Loader) Transaction(ctx context.Context, id int64) (model.BankTransaction, error) {
	if txn, ok := l.cache.Transaction(id); ok && l.fresh(cache.Transactions) {
		return txn, nil
	}
	txn, err := l.gw.GetTransaction(ctx, id)
	if err != nil {
		return model.BankTransaction{}, err
	}
	l.cache.ViewTransaction(*txn)
	return *txn, nil
}

// Counterparty returns one counterparty, like Invoice.
func (l *Loader) Counterparty(ctx context.Context, id int64) (model.Anagraphics, error) {
	if a, ok := l.cache.Counterparty(id); ok && l.fresh(cache.Anagraphics) {
		return a, nil
	}
	a, err := l.gw.GetAnagraphics(ctx, id)
	if err != nil {
		return model.Anagraphics{}, err
	}
	l.cache.ViewCounterparty(*a)
	return *a, nil
}

func (l *Loader) fresh(t cache.EntityType) bool {
	return l.policy.Freshness(l.cache.LastFetch(t), t) == cache.Fresh
}

func (l *Loader) fetcher(t cache.EntityType) (func(context.Context) error, bool) {
	switch t {
	case cache.Invoices:
		return l.fetchInvoices, true
	case cache.Transactions:
		return l.fetchTransactions, true
	case cache.Anagraphics:
		return l.fetchAnagraphics, true
	}
	return nil, false
}

func (l *Loader) load(ctx context.Context, t cache.EntityType, fetch func(context.Context) error) error {
	switch l.policy.Freshness(l.cache.LastFetch(t), t) {
	case cache.Fresh:
		return nil
	case cache.Stale:
		l.revalidate(ctx, t, fetch)
		return nil
	default:
		return l.fetch(ctx, t, fetch)
	}
}

func (l *Loader) fetch(ctx context.Context, t cache.EntityType, fetch func(context.Context) error) error {
	if err := fetch(ctx); err != nil {
		l.notes.SetError(loadOp(t), err)
		l.notes.Error("Could not load "+string(t), err)
		return err
	}
	l.notes.ClearError(loadOp(t))
	return nil
}

// revalidate starts a background refresh of t unless one is already running.
// The refresh outlives ctx's cancellation but keeps its values.
func (l *Loader) revalidate(ctx context.Context, t cache.EntityType, fetch func(context.Context) error) {
	l.mu.Lock()
	if l.inflight[t] {
		l.mu.Unlock()
		return
	}
	l.inflight[t] = true
	l.wg.Add(1)
	l.mu.Unlock()

	bg := context.WithoutCancel(ctx)
	go func() {
		defer l.wg.Done()
		defer func() {
			l.mu.Lock()
			delete(l.inflight, t)
			l.mu.Unlock()
		}()

		common.LogDebug("Revalidating stale cache", common.Fields{"type": string(t)})
		if err := fetch(bg); err != nil {
			l.notes.SetError(loadOp(t), err)
			l.notes.Warning("Showing cached "+string(t), err.Error())
			return
		}
		l.notes.ClearError(loadOp(t))
	}()
}

func (l *Loader) fetchInvoices(ctx context.Context) error {
	items, total, err := fetchAll(ctx, l.pageSize, l.maxItems, func(ctx context.Context, page, size int) (*service.Page[model.Invoice], error) {
		return l.gw.ListInvoices(ctx, model.InvoiceFilter{Page: page, Size: size})
	})
	if err != nil {
		return fmt.Errorf("failed to load invoices: %w", err)
	}
	l.cache.SetInvoices(items, total)
	return nil
}

func (l *Loader) fetchTransactions(ctx context.Context) error {
	items, total, err := fetchAll(ctx, l.pageSize, l.maxItems, func(ctx context.Context, page, size int) (*service.Page[model.BankTransaction], error) {
		return l.gw.ListTransactions(ctx, model.TransactionFilter{Page: page, Size: size})
	})
	if err != nil {
		return fmt.Errorf("failed to load transactions: %w", err)
	}
	l.cache.SetTransactions(items, total)
	return nil
}

func (l *Loader) fetchAnagraphics(ctx context.Context) error {
	items, total, err := fetchAll(ctx, l.pageSize, l.maxItems, func(ctx context.Context, page, size int) (*service.Page[model.Anagraphics], error) {
		return l.gw.ListAnagraphics(ctx, model.AnagraphicsFilter{Page: page, Size: size})
	})
	if err != nil {
		return fmt.Errorf("failed to load anagraphics: %w", err)
	}
	l.cache.SetAnagraphics(items, total)
	return nil
}

// fetchAll walks a paginated list from page 1. It stops at the last page, on
// an empty page, or once limit items are loaded when limit is positive.
func fetchAll[T any](ctx context.Context, size, limit int, list func(ctx context.Context, page, size int) (*service.Page[T], error)) ([]T, int, error) {
	var (
		items []T
		total int
	)
	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}
		p, err := list(ctx, page, size)
		if err != nil {
			return nil, 0, err
		}
		if page == 1 {
			total = p.Total
		}
		items = append(items, p.Items...)

		if limit > 0 && len(items) >= limit {
			return items[:limit], total, nil
		}
		if len(p.Items) == 0 || page >= p.Pages {
			return items, total, nil
		}
	}
}
