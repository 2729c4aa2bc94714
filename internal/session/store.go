// Package session tracks the user's in-progress reconciliation: what is
// selected, which suggestions are under review, and what was recently committed.
package session

import (
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/model"
)

// RecentLimit caps the recent reconciliations history.
const RecentLimit = 50

// State is a step of the reconciliation workflow.
type State int

// Workflow states.
const (
	Idle State = iota
	Selecting
	AwaitingSuggestions
	Reviewing
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case AwaitingSuggestions:
		return "awaiting-suggestions"
	case Reviewing:
		return "reviewing"
	case Committing:
		return "committing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ItemKind says whether a dragged or targeted item is an invoice or a transaction.
type ItemKind string

// Item kinds.
const (
	KindInvoice     ItemKind = "invoice"
	KindTransaction ItemKind = "transaction"
)

// DraggedItem is the entity currently being dragged.
type DraggedItem struct {
	Confidence *float64        `json:"confidence,omitempty"`
	Kind       ItemKind        `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	ID         int64           `json:"id"`
}

// DropTarget is the candidate drop location under the pointer.
type DropTarget struct {
	Compatibility *float64 `json:"compatibility,omitempty"`
	Kind          ItemKind `json:"kind"`
	ID            int64    `json:"id"`
}

// Ticket identifies an in-flight request. A ticket issued before
// ClearReconciliationState no longer matches, and its response is dropped.
type Ticket uint64

// Store holds one reconciliation session. It is safe for concurrent use.
type Store struct {
	dragged              *DraggedItem
	drop                 *DropTarget
	recent               *Ring[model.RecentReconciliation]
	selectedInvoices     []model.Invoice
	selectedTransactions []model.BankTransaction
	suggestions          []model.MatchSuggestion
	ultraSmart           []model.MatchSuggestion
	config               Config
	state                State
	resume               State
	generation           Ticket
	mu                   sync.Mutex
}

// NewStore creates an idle session with the given policy.
func NewStore(cfg Config) *Store {
	return &Store{
		config: cfg,
		recent: NewRing[model.RecentReconciliation](RecentLimit),
	}
}

// State returns the current workflow state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// AddSelectedInvoice adds inv to the selection unless an invoice with the same
// id is already selected.
func (s *Store) AddSelectedInvoice(inv model.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Committing {
		return fmt.Errorf("%w: cannot change selection while committing", common.ErrInvalidTransition)
	}
	if !slices.ContainsFunc(s.selectedInvoices, func(x model.Invoice) bool { return x.ID == inv.ID }) {
		s.selectedInvoices = append(s.selectedInvoices, inv)
	}
	if s.state == Idle {
		s.state = Selecting
	}
	return nil
}

// AddSelectedTransaction adds txn to the selection unless a transaction with the
// same id is already selected.
func (s *Store) AddSelectedTransaction(txn model.BankTransaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == Committing {
		return fmt.Errorf("%w: cannot change selection while committing", common.ErrInvalidTransition)
	}
	if !slices.ContainsFunc(s.selectedTransactions, func(x model.BankTransaction) bool { return x.ID == txn.ID }) {
		s.selectedTransactions = append(s.selectedTransactions, txn)
	}
	if s.state == Idle {
		s.state = Selecting
	}
	return nil
}

// RemoveSelectedInvoice drops id from the selection.
func (s *Store) RemoveSelectedInvoice(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedInvoices = slices.DeleteFunc(s.selectedInvoices, func(x model.Invoice) bool { return x.ID == id })
	s.settleSelection()
}

// RemoveSelectedTransaction drops id from the selection.
func (s *Store) RemoveSelectedTransaction(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selectedTransactions = slices.DeleteFunc(s.selectedTransactions, func(x model.BankTransaction) bool { return x.ID == id })
	s.settleSelection()
}

func (s *Store) settleSelection() {
	if s.state == Selecting && len(s.selectedInvoices) == 0 && len(s.selectedTransactions) == 0 {
		s.state = Idle
	}
}

// SelectedInvoices returns the selected invoices in selection order.
func (s *Store) SelectedInvoices() []model.Invoice {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selectedInvoices)
}

// SelectedTransactions returns the selected transactions in selection order.
func (s *Store) SelectedTransactions() []model.BankTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.selectedTransactions)
}

// BeginSuggestionFetch moves to AwaitingSuggestions and returns a ticket for
// resolving the fetch.
func (s *Store) BeginSuggestionFetch() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Committing:
		return 0, fmt.Errorf("%w: cannot fetch suggestions while committing", common.ErrInvalidTransition)
	case AwaitingSuggestions:
	default:
		s.resume = s.state
		s.state = AwaitingSuggestions
	}
	return s.generation, nil
}

// ResolveSuggestionFetch stores the fetched suggestions and moves to Reviewing.
// It reports false, storing nothing, when the session was cleared since the
// ticket was issued.
func (s *Store) ResolveSuggestionFetch(t Ticket, list []model.MatchSuggestion, ultra bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t != s.generation {
		return false
	}
	if ultra {
		s.ultraSmart = rank(list)
	} else {
		s.suggestions = rank(list)
	}
	if s.state == AwaitingSuggestions {
		s.state = Reviewing
	}
	return true
}

// FailSuggestionFetch returns to the state the fetch started from.
func (s *Store) FailSuggestionFetch(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == s.generation && s.state == AwaitingSuggestions {
		s.state = s.resume
	}
}

// SetSuggestions replaces the suggestion list, ranked by confidence.
func (s *Store) SetSuggestions(list []model.MatchSuggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.suggestions = rank(list)
	if len(s.suggestions) > 0 && (s.state == Idle || s.state == Selecting) {
		s.state = Reviewing
	}
}

// SetUltraSmartSuggestions replaces the AI-scored suggestion list, ranked by confidence.
func (s *Store) SetUltraSmartSuggestions(list []model.MatchSuggestion) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ultraSmart = rank(list)
	if len(s.ultraSmart) > 0 && (s.state == Idle || s.state == Selecting) {
		s.state = Reviewing
	}
}

// Suggestions returns the ranked suggestions.
func (s *Store) Suggestions() []model.MatchSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.suggestions)
}

// UltraSmartSuggestions returns the ranked AI-scored suggestions.
func (s *Store) UltraSmartSuggestions() []model.MatchSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ultraSmart)
}

// SuggestionsAbove returns every suggestion, from both lists, whose confidence
// reaches threshold. Duplicates are reported once.
func (s *Store) SuggestionsAbove(threshold float64) []model.MatchSuggestion {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool)
	var out []model.MatchSuggestion
	for _, list := range [][]model.MatchSuggestion{s.ultraSmart, s.suggestions} {
		for _, m := range list {
			if m.ConfidenceScore >= threshold && !seen[m.Key()] {
				seen[m.Key()] = true
				out = append(out, m)
			}
		}
	}
	return rank(out)
}

// RemoveSuggestion drops the suggestion with key from both lists.
func (s *Store) RemoveSuggestion(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.suggestions) + len(s.ultraSmart)
	match := func(m model.MatchSuggestion) bool { return m.Key() == key }
	s.suggestions = slices.DeleteFunc(s.suggestions, match)
	s.ultraSmart = slices.DeleteFunc(s.ultraSmart, match)
	return len(s.suggestions)+len(s.ultraSmart) < before
}

// BeginCommit moves to Committing. Only one commit may be in flight.
func (s *Store) BeginCommit() (Ticket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case Committing:
		return 0, fmt.Errorf("%w: a commit is already in flight", common.ErrInvalidTransition)
	case AwaitingSuggestions:
		return 0, fmt.Errorf("%w: suggestions are still loading", common.ErrInvalidTransition)
	}
	s.resume = s.state
	s.state = Committing
	return s.generation, nil
}

// CommitSucceeded records entry in the history, clears the selection and drag
// state, prunes suggestions touching committed entities, and returns to Idle.
func (s *Store) CommitSucceeded(t Ticket, entry model.RecentReconciliation) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.recent.PushFront(entry)
	if t != s.generation {
		return
	}

	invoices := make(map[int64]bool)
	transactions := make(map[int64]bool)
	for _, p := range entry.Pairs {
		invoices[p.InvoiceID] = true
		transactions[p.TransactionID] = true
	}
	touched := func(m model.MatchSuggestion) bool {
		return slices.ContainsFunc(m.InvoiceIDs, func(id int64) bool { return invoices[id] }) ||
			slices.ContainsFunc(m.TransactionIDs, func(id int64) bool { return transactions[id] })
	}
	s.suggestions = slices.DeleteFunc(s.suggestions, touched)
	s.ultraSmart = slices.DeleteFunc(s.ultraSmart, touched)

	s.selectedInvoices = nil
	s.selectedTransactions = nil
	s.dragged = nil
	s.drop = nil
	s.state = Idle
}

// CommitFailed returns to the state the commit started from. Nothing is cleared.
func (s *Store) CommitFailed(t Ticket) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t == s.generation && s.state == Committing {
		s.state = s.resume
	}
}

// Record adds entry to the history without touching the workflow state.
func (s *Store) Record(entry model.RecentReconciliation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recent.PushFront(entry)
}

// RecentReconciliations returns the history, newest first.
func (s *Store) RecentReconciliations() []model.RecentReconciliation {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recent.Items()
}

// ClearReconciliationState discards selection, suggestions and drag state and
// returns to Idle. Responses to requests issued before the clear are dropped.
func (s *Store) ClearReconciliationState() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selectedInvoices = nil
	s.selectedTransactions = nil
	s.suggestions = nil
	s.ultraSmart = nil
	s.dragged = nil
	s.drop = nil
	s.state = Idle
	s.resume = Idle
	s.generation++
}

// SetDraggedItem records the entity being dragged.
func (s *Store) SetDraggedItem(item DraggedItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragged = &item
}

// ClearDraggedItem forgets the dragged entity.
func (s *Store) ClearDraggedItem() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dragged = nil
}

// DraggedItem returns the dragged entity, if any.
func (s *Store) DraggedItem() *DraggedItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dragged == nil {
		return nil
	}
	item := *s.dragged
	return &item
}

// SetDropTarget records the candidate drop location.
func (s *Store) SetDropTarget(target DropTarget) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = &target
}

// ClearDropTarget forgets the candidate drop location.
func (s *Store) ClearDropTarget() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop = nil
}

// DropTarget returns the candidate drop location, if any.
func (s *Store) DropTarget() *DropTarget {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.drop == nil {
		return nil
	}
	target := *s.drop
	return &target
}

// Config returns the matching policy.
func (s *Store) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.config
}

// SetConfig replaces the matching policy after validating it.
func (s *Store) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.config = cfg
	return nil
}

// rank sorts suggestions by confidence, highest first, keeping the backend's
// order among equal scores.
func rank(list []model.MatchSuggestion) []model.MatchSuggestion {
	out := slices.Clone(list)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ConfidenceScore > out[j].ConfidenceScore
	})
	return out
}

// SyncSelection replaces each selected entity with the copy returned by the
// lookups, so the selection reflects amounts confirmed since it was made.
// Entities the lookups do not know are kept as they are.
func (s *Store) SyncSelection(invoice func(int64) (model.Invoice, bool), transaction func(int64) (model.BankTransaction, bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, inv := range s.selectedInvoices {
		if fresh, ok := invoice(inv.ID); ok {
			s.selectedInvoices[i] = fresh
		}
	}
	for i, txn := range s.selectedTransactions {
		if fresh, ok := transaction(txn.ID); ok {
			s.selectedTransactions[i] = fresh
		}
	}
}
