package cache

import (
	"time"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// Patch is one typed change to a cached entity. Exactly one of the update
// fields is set, or Remove is true.
type Patch struct {
	Invoice     model.InvoiceUpdate
	Transaction model.TransactionUpdate
	Anagraphics model.AnagraphicsUpdate
	Type        EntityType
	ID          int64
	Remove      bool
}

// Apply applies patches in order under a single lock, so readers never observe
// a half-applied batch. It returns how many patches found their entity.
func (s *Store) Apply(patches []Patch) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	applied := 0
	for _, p := range patches {
		if p.Remove {
			s.remove(p.Type, p.ID)
			applied++
			continue
		}

		var ok bool
		switch {
		case p.Invoice != nil:
			ok = s.updateInvoice(p.ID, p.Invoice)
		case p.Transaction != nil:
			ok = s.updateTransaction(p.ID, p.Transaction)
		case p.Anagraphics != nil:
			ok = s.updateCounterparty(p.ID, p.Anagraphics)
		}
		if ok {
			applied++
		}
	}
	return applied
}

// Snapshot is the persistable content of a Store.
type Snapshot struct {
	Invoices     Collection[model.Invoice]         `json:"invoices"`
	Transactions Collection[model.BankTransaction] `json:"transactions"`
	Anagraphics  Collection[model.Anagraphics]     `json:"anagraphics"`
	TakenAt      time.Time                         `json:"taken_at"`
}

// Snapshot copies the cached collections. Derived suggestion caches are not
// included; they are cheap to refetch and expire quickly.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Invoices:     s.invoices.snapshot(),
		Transactions: s.transactions.snapshot(),
		Anagraphics:  s.anagraphics.snapshot(),
		TakenAt:      s.now(),
	}
}

// Restore replaces the cached collections with snap.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invoices.restore(snap.Invoices)
	s.transactions.restore(snap.Transactions)
	s.anagraphics.restore(snap.Anagraphics)
	s.clearDerived()
}
