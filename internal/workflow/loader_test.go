package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/notify"
	"github.com/Veraticus/fattura-reconcile/internal/service"
)

type loaderFixture struct {
	gw     *mockGateway
	cache  *cache.Store
	notes  *notify.Center
	clock  *fakeClock
	loader *Loader
}

func newLoaderFixture(t *testing.T, opts ...LoaderOption) *loaderFixture {
	t.Helper()
	f := &loaderFixture{
		gw:    &mockGateway{},
		clock: newClock(),
		notes: notify.NewCenter(notify.WithDuration(0)),
	}
	f.cache = cache.NewStore(cache.WithClock(f.clock.Now))
	policy := cache.NewPolicy(5*time.Minute, nil, cache.WithPolicyClock(f.clock.Now))
	f.loader = NewLoader(f.gw, f.cache, policy, f.notes, opts...)
	t.Cleanup(f.notes.Close)
	return f
}

func invoicePage(page, pages, total int, items ...model.Invoice) *service.Page[model.Invoice] {
	return &service.Page[model.Invoice]{Items: items, Page: page, Pages: pages, Total: total, Size: len(items)}
}

func TestLoader_MissingFetchesEveryPage(t *testing.T) {
	f := newLoaderFixture(t, WithPageSize(2))
	f.gw.On("ListInvoices", mock.Anything, model.InvoiceFilter{Page: 1, Size: 2}).
		Return(invoicePage(1, 2, 3, testInvoice(1, 10, 1), testInvoice(2, 10, 2)), nil).Once()
	f.gw.On("ListInvoices", mock.Anything, model.InvoiceFilter{Page: 2, Size: 2}).
		Return(invoicePage(2, 2, 3, testInvoice(3, 10, 3)), nil).Once()

	got, err := f.loader.Invoices(context.Background())
	require.NoError(t, err)

	assert.Len(t, got.Data, 3)
	assert.Equal(t, 3, got.Total)
	require.NotNil(t, got.LastFetch)
	f.gw.AssertExpectations(t)
}

func TestLoader_MaxItemsStopsEarly(t *testing.T) {
	f := newLoaderFixture(t, WithPageSize(2), WithMaxItems(2))
	f.gw.On("ListInvoices", mock.Anything, model.InvoiceFilter{Page: 1, Size: 2}).
		Return(invoicePage(1, 5, 10, testInvoice(1, 10, 1), testInvoice(2, 10, 2)), nil).Once()

	got, err := f.loader.Invoices(context.Background())
	require.NoError(t, err)

	assert.Len(t, got.Data, 2)
	assert.Equal(t, 10, got.Total)
	f.gw.AssertExpectations(t)
}

func TestLoader_FreshIsServedFromCache(t *testing.T) {
	f := newLoaderFixture(t)
	f.cache.SetInvoices([]model.Invoice{testInvoice(1, 10, 1)}, 1)
	f.clock.Advance(time.Minute)

	got, err := f.loader.Invoices(context.Background())
	require.NoError(t, err)

	assert.Len(t, got.Data, 1)
	f.gw.AssertNotCalled(t, "ListInvoices", mock.Anything, mock.Anything)
}

func TestLoader_StaleServesCachedAndRevalidates(t *testing.T) {
	f := newLoaderFixture(t)
	f.cache.SetInvoices([]model.Invoice{testInvoice(1, 10, 1)}, 1)
	f.clock.Advance(6 * time.Minute)

	release := make(chan time.Time)
	f.gw.On("ListInvoices", mock.Anything, mock.Anything).
		WaitUntil(release).
		Return(invoicePage(1, 1, 2, testInvoice(1, 10, 1), testInvoice(2, 10, 2)), nil).Once()

	first, err := f.loader.Invoices(context.Background())
	require.NoError(t, err)
	second, err := f.loader.Invoices(context.Background())
	require.NoError(t, err)

	assert.Len(t, first.Data, 1)
	assert.Len(t, second.Data, 1)

	close(release)
	f.loader.Wait()

	assert.Len(t, f.cache.Invoices().Data, 2)
	assert.Equal(t, cache.Fresh, cache.NewPolicy(5*time.Minute, nil, cache.WithPolicyClock(f.clock.Now)).Freshness(f.cache.LastFetch(cache.Invoices), cache.Invoices))
	f.gw.AssertNumberOfCalls(t, "ListInvoices", 1)
}

func TestLoader_BackgroundFailureWarns(t *testing.T) {
	f := newLoaderFixture(t)
	f.cache.SetTransactions([]model.BankTransaction{testTransaction(1, 10)}, 1)
	f.clock.Advance(6 * time.Minute)
	f.gw.On("ListTransactions", mock.Anything, mock.Anything).Return(nil, common.ErrBackendUnreachable).Once()

	got, err := f.loader.Transactions(context.Background())
	require.NoError(t, err)
	assert.Len(t, got.Data, 1)

	f.loader.Wait()

	all := f.notes.List()
	require.Len(t, all, 1)
	assert.Equal(t, notify.Warning, all[0].Type)
	assert.ErrorIs(t, f.notes.Err("load.transactions"), common.ErrBackendUnreachable)
}

func TestLoader_MissingFailureIsReturned(t *testing.T) {
	f := newLoaderFixture(t)
	f.gw.On("ListAnagraphics", mock.Anything, mock.Anything).Return(nil, errors.New("boom")).Once()

	_, err := f.loader.Anagraphics(context.Background())

	require.Error(t, err)
	assert.Len(t, f.notes.List(), 1)
	assert.Nil(t, f.cache.LastFetch(cache.Anagraphics))
}

func TestLoader_RefreshAll(t *testing.T) {
	f := newLoaderFixture(t)
	f.gw.On("ListInvoices", mock.Anything, mock.Anything).Return(invoicePage(1, 1, 1, testInvoice(1, 10, 1)), nil).Once()
	f.gw.On("ListTransactions", mock.Anything, mock.Anything).
		Return(&service.Page[model.BankTransaction]{Items: []model.BankTransaction{testTransaction(1, 10)}, Pages: 1, Total: 1}, nil).Once()
	f.gw.On("ListAnagraphics", mock.Anything, mock.Anything).
		Return(&service.Page[model.Anagraphics]{Items: []model.Anagraphics{{ID: 1, Denomination: "Rossi Srl"}}, Pages: 1, Total: 1}, nil).Once()

	require.NoError(t, f.loader.RefreshAll(context.Background()))

	for _, typ := range []cache.EntityType{cache.Invoices, cache.Transactions, cache.Anagraphics} {
		assert.NotNil(t, f.cache.LastFetch(typ), "type %s", typ)
	}
	f.gw.AssertExpectations(t)
}

func TestLoader_RefreshRejectsDerivedType(t *testing.T) {
	f := newLoaderFixture(t)

	err := f.loader.Refresh(context.Background(), cache.Reconciliation)

	require.ErrorIs(t, err, common.ErrInvalidConfig)
}

func TestLoader_SingleEntity(t *testing.T) {
	f := newLoaderFixture(t)
	f.cache.SetInvoices([]model.Invoice{testInvoice(1, 10, 1)}, 1)

	got, err := f.loader.Invoice(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
	f.gw.AssertNotCalled(t, "GetInvoice", mock.Anything, mock.Anything)

	fetched := testInvoice(1, 99, 1)
	f.gw.On("GetInvoice", mock.Anything, int64(1)).Return(&fetched, nil).Once()
	f.clock.Advance(10 * time.Minute)

	got, err = f.loader.Invoice(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, got.TotalAmount.Equal(fetched.TotalAmount))

	cached, _ := f.cache.Invoice(1)
	assert.True(t, cached.TotalAmount.Equal(fetched.TotalAmount))
	assert.Len(t, f.cache.RecentlyViewedInvoices(), 1)

	a := model.Anagraphics{ID: 4, Denomination: "Bianchi SpA"}
	f.gw.On("GetAnagraphics", mock.Anything, int64(4)).Return(&a, nil).Once()
	gotA, err := f.loader.Counterparty(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, "Bianchi SpA", gotA.Denomination)

	f.gw.On("GetTransaction", mock.Anything, int64(8)).Return(nil, common.ErrNotFound).Once()
	_, err = f.loader.Transaction(context.Background(), 8)
	require.ErrorIs(t, err, common.ErrNotFound)
}
