// Package cache mirrors the backend's invoices, transactions and counterparties
// locally, and decides when that mirror is too old to trust.
package cache

import (
	"slices"
	"sync"
	"time"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// EntityType names a cached collection.
type EntityType string

// Cached entity types. Reconciliation covers the derived suggestion caches.
const (
	Invoices       EntityType = "invoices"
	Transactions   EntityType = "transactions"
	Anagraphics    EntityType = "anagraphics"
	Reconciliation EntityType = "reconciliation"
	All            EntityType = "all"
)

// EntityTypes lists the concrete cached types.
var EntityTypes = []EntityType{Invoices, Transactions, Anagraphics, Reconciliation}

// Store holds the last-known server state. Mutations only reflect writes the
// backend has already confirmed. Each method is atomic; none can fail.
type Store struct {
	now             func() time.Time
	suggestions     map[int64][]model.MatchSuggestion
	opportunitiesAt *time.Time
	invoices        collection[model.Invoice]
	transactions    collection[model.BankTransaction]
	anagraphics     collection[model.Anagraphics]
	opportunities   []model.MatchSuggestion
	mu              sync.RWMutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the clock used to stamp fetches.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		now:         time.Now,
		suggestions: make(map[int64][]model.MatchSuggestion),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetInvoices replaces the cached invoice list and stamps the fetch time.
func (s *Store) SetInvoices(items []model.Invoice, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices.set(items, total, s.now())
}

// SetTransactions replaces the cached transaction list and stamps the fetch time.
func (s *Store) SetTransactions(items []model.BankTransaction, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions.set(items, total, s.now())
}

// SetAnagraphics replaces the cached counterparty list and stamps the fetch time.
func (s *Store) SetAnagraphics(items []model.Anagraphics, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anagraphics.set(items, total, s.now())
}

// Invoices returns a copy of the cached invoice collection.
func (s *Store) Invoices() Collection[model.Invoice] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invoices.snapshot()
}

// Transactions returns a copy of the cached transaction collection.
func (s *Store) Transactions() Collection[model.BankTransaction] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transactions.snapshot()
}

// Anagraphics returns a copy of the cached counterparty collection.
func (s *Store) Anagraphics() Collection[model.Anagraphics] {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anagraphics.snapshot()
}

// Invoice looks up a cached invoice, including the recently viewed list.
func (s *Store) Invoice(id int64) (model.Invoice, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.invoices.get(id)
}

// Transaction looks up a cached transaction, including the recently viewed list.
func (s *Store) Transaction(id int64) (model.BankTransaction, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transactions.get(id)
}

// Counterparty looks up a cached counterparty, including the recently viewed list.
func (s *Store) Counterparty(id int64) (model.Anagraphics, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anagraphics.get(id)
}

// ViewInvoice records inv in the recently viewed list.
func (s *Store) ViewInvoice(inv model.Invoice) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices.view(inv)
}

// ViewTransaction records txn in the recently viewed list.
func (s *Store) ViewTransaction(txn model.BankTransaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transactions.view(txn)
}

// ViewCounterparty records a in the recently viewed list.
func (s *Store) ViewCounterparty(a model.Anagraphics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anagraphics.view(a)
}

// RecentlyViewedInvoices returns the invoice shadow list, newest first.
func (s *Store) RecentlyViewedInvoices() []model.Invoice {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.invoices.viewed)
}

// RecentlyViewedTransactions returns the transaction shadow list, newest first.
func (s *Store) RecentlyViewedTransactions() []model.BankTransaction {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.transactions.viewed)
}

// UpdateInvoice applies u to the cached invoice. An absent id is a no-op and
// reports false: a refresh may race with an invoice leaving the cache.
func (s *Store) UpdateInvoice(id int64, u model.InvoiceUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateInvoice(id, u)
}

// UpdateTransaction applies u to the cached transaction. An absent id is a no-op.
func (s *Store) UpdateTransaction(id int64, u model.TransactionUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateTransaction(id, u)
}

// UpdateCounterparty applies u to the cached counterparty. An absent id is a no-op.
func (s *Store) UpdateCounterparty(id int64, u model.AnagraphicsUpdate) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateCounterparty(id, u)
}

func (s *Store) updateInvoice(id int64, u model.InvoiceUpdate) bool {
	now := s.now()
	return s.invoices.update(id, func(inv *model.Invoice) {
		model.ApplyInvoiceUpdate(inv, u, now)
	})
}

func (s *Store) updateTransaction(id int64, u model.TransactionUpdate) bool {
	return s.transactions.update(id, func(txn *model.BankTransaction) {
		model.ApplyTransactionUpdate(txn, u)
	})
}

func (s *Store) updateCounterparty(id int64, u model.AnagraphicsUpdate) bool {
	return s.anagraphics.update(id, func(a *model.Anagraphics) {
		model.ApplyAnagraphicsUpdate(a, u)
	})
}

// Remove deletes id from every list of the given type, along with any derived
// cache that references it, and decrements the type's total (never below zero).
func (s *Store) Remove(t EntityType, id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.remove(t, id)
}

func (s *Store) remove(t EntityType, id int64) {
	switch t {
	case Invoices:
		s.invoices.remove(id)
		for txID, list := range s.suggestions {
			s.suggestions[txID] = dropSuggestions(list, func(m model.MatchSuggestion) bool {
				return slices.Contains(m.InvoiceIDs, id)
			})
		}
		s.opportunities = dropSuggestions(s.opportunities, func(m model.MatchSuggestion) bool {
			return slices.Contains(m.InvoiceIDs, id)
		})
	case Transactions:
		s.transactions.remove(id)
		delete(s.suggestions, id)
		s.opportunities = dropSuggestions(s.opportunities, func(m model.MatchSuggestion) bool {
			return slices.Contains(m.TransactionIDs, id)
		})
	case Anagraphics:
		s.anagraphics.remove(id)
	}
}

// Invalidate clears the fetch stamp of t (or of every type for All) and the
// derived suggestion caches. Cached data is kept for stale-while-revalidate display.
func (s *Store) Invalidate(t EntityType) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch t {
	case Invoices:
		s.invoices.lastFetch = nil
		s.clearDerived()
	case Transactions:
		s.transactions.lastFetch = nil
		s.clearDerived()
	case Anagraphics:
		s.anagraphics.lastFetch = nil
	case Reconciliation:
		s.clearDerived()
	case All:
		s.invoices.lastFetch = nil
		s.transactions.lastFetch = nil
		s.anagraphics.lastFetch = nil
		s.clearDerived()
	}
}

func (s *Store) clearDerived() {
	s.suggestions = make(map[int64][]model.MatchSuggestion)
	s.opportunities = nil
	s.opportunitiesAt = nil
}

// LastFetch returns the fetch stamp for t, or nil when it must be refetched.
func (s *Store) LastFetch(t EntityType) *time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var stamp *time.Time
	switch t {
	case Invoices:
		stamp = s.invoices.lastFetch
	case Transactions:
		stamp = s.transactions.lastFetch
	case Anagraphics:
		stamp = s.anagraphics.lastFetch
	case Reconciliation:
		stamp = s.opportunitiesAt
	}
	if stamp == nil {
		return nil
	}
	out := *stamp
	return &out
}

// SetSuggestions caches the suggestions fetched for one transaction.
func (s *Store) SetSuggestions(transactionID int64, list []model.MatchSuggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions[transactionID] = slices.Clone(list)
}

// Suggestions returns the cached suggestions for one transaction.
func (s *Store) Suggestions(transactionID int64) ([]model.MatchSuggestion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list, ok := s.suggestions[transactionID]
	return slices.Clone(list), ok
}

// SuggestionCacheSize reports how many transactions have cached suggestions.
func (s *Store) SuggestionCacheSize() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.suggestions)
}

// SetOpportunities caches the global matching opportunities.
func (s *Store) SetOpportunities(list []model.MatchSuggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities = slices.Clone(list)
	stamp := s.now()
	s.opportunitiesAt = &stamp
}

// Opportunities returns the cached global matching opportunities.
func (s *Store) Opportunities() []model.MatchSuggestion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.opportunities)
}

func dropSuggestions(list []model.MatchSuggestion, drop func(model.MatchSuggestion) bool) []model.MatchSuggestion {
	if list == nil {
		return nil
	}
	out := make([]model.MatchSuggestion, 0, len(list))
	for _, m := range list {
		if !drop(m) {
			out = append(out, m)
		}
	}
	return out
}
