package session

import (
	"slices"

	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// Snapshot is the persistable part of a session. Drag state and in-flight
// requests are not carried over.
type Snapshot struct {
	SelectedInvoices      []model.Invoice              `json:"selected_invoices"`
	SelectedTransactions  []model.BankTransaction      `json:"selected_transactions"`
	Suggestions           []model.MatchSuggestion      `json:"suggestions"`
	UltraSmartSuggestions []model.MatchSuggestion      `json:"ultra_smart_suggestions"`
	Recent                []model.RecentReconciliation `json:"recent_reconciliations"`
	Config                Config                       `json:"config"`
	State                 State                        `json:"state"`
}

// Snapshot copies the session for persistence.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := s.state
	if state == AwaitingSuggestions || state == Committing {
		state = s.resume
	}
	return Snapshot{
		SelectedInvoices:      slices.Clone(s.selectedInvoices),
		SelectedTransactions:  slices.Clone(s.selectedTransactions),
		Suggestions:           slices.Clone(s.suggestions),
		UltraSmartSuggestions: slices.Clone(s.ultraSmart),
		Recent:                s.recent.Items(),
		Config:                s.config,
		State:                 state,
	}
}

// Restore replaces the session with snap. An invalid config in snap is
// replaced by the store's current one.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedInvoices = slices.Clone(snap.SelectedInvoices)
	s.selectedTransactions = slices.Clone(snap.SelectedTransactions)
	s.suggestions = rank(snap.Suggestions)
	s.ultraSmart = rank(snap.UltraSmartSuggestions)
	if snap.Config.Validate() == nil {
		s.config = snap.Config
	}

	s.recent.Reset()
	for i := len(snap.Recent) - 1; i >= 0; i-- {
		s.recent.PushFront(snap.Recent[i])
	}

	s.dragged = nil
	s.drop = nil
	switch snap.State {
	case Idle, Selecting, Reviewing:
		s.state = snap.State
	default:
		s.state = Idle
	}
	s.resume = s.state
	s.generation++
}
