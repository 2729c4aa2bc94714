package workflow

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/Veraticus/fattura-reconcile/internal/cache"
	"github.com/Veraticus/fattura-reconcile/internal/common"
	"github.com/Veraticus/fattura-reconcile/internal/gateway"
	"github.com/Veraticus/fattura-reconcile/internal/model"
	"github.com/Veraticus/fattura-reconcile/internal/notify"
	"github.com/Veraticus/fattura-reconcile/internal/service"
	"github.com/Veraticus/fattura-reconcile/internal/session"
)

// Operation names used as keys of the inline error map.
const (
	OpSuggestions       = "reconciliation.suggestions"
	OpOpportunities     = "reconciliation.opportunities"
	OpCommit            = "reconciliation.commit"
	OpUndo              = "reconciliation.undo"
	OpFeedback          = "reconciliation.feedback"
	OpInvoiceStatus     = "invoices.status"
	OpTransactionStatus = "transactions.status"
	OpBatchStatus       = "transactions.batch-status"
)

// ErrPartialCommit is returned when the backend refused some pairs of a batch.
var ErrPartialCommit = errors.New("batch partially applied")

// Progress receives increments as a long operation advances.
type Progress interface {
	Add(n int) error
}

// ProgressFunc starts a progress indicator for total units of work.
type ProgressFunc func(total int, label string) Progress

type noProgress struct{}

func (noProgress) Add(int) error { return nil }

// Reconciler runs remote writes and mirrors what the backend confirmed into
// the cache and the session. A failed write leaves both untouched.
type Reconciler struct {
	gw       service.Gateway
	cache    *cache.Store
	session  *session.Store
	notes    *notify.Center
	now      func() time.Time
	progress ProgressFunc
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithClock overrides the clock used to stamp recent reconciliations.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// WithProgress reports batch progress through fn.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Reconciler) {
		r.progress = fn
	}
}

// NewReconciler wires a Reconciler to its collaborators.
func NewReconciler(gw service.Gateway, store *cache.Store, sess *session.Store, notes *notify.Center, opts ...Option) *Reconciler {
	r := &Reconciler{
		gw:      gw,
		cache:   store,
		session: sess,
		notes:   notes,
		now:     time.Now,
		progress: func(int, string) Progress {
			return noProgress{}
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// FetchSuggestions asks the matching service for candidates for one
// transaction and stores them, ranked, in the session and the cache.
// anagraphicsHint may be zero.
func (r *Reconciler) FetchSuggestions(ctx context.Context, transactionID, anagraphicsHint int64) ([]model.MatchSuggestion, error) {
	ticket, err := r.session.BeginSuggestionFetch()
	if err != nil {
		return nil, err
	}

	query := service.SuggestionQuery{
		MatchOptions:    r.session.Config().MatchOptions(),
		AnagraphicsHint: anagraphicsHint,
	}
	list, err := r.gw.SmartSuggestions(ctx, transactionID, query)
	if err != nil {
		r.session.FailSuggestionFetch(ticket)
		return nil, r.fail(OpSuggestions, "Suggestions unavailable", err)
	}

	r.cache.SetSuggestions(transactionID, list)
	if !r.session.ResolveSuggestionFetch(ticket, list, true) {
		common.LogDebug("Dropped suggestions for a cleared session", common.Fields{"transaction_id": transactionID})
	}
	r.notes.ClearError(OpSuggestions)
	return r.session.UltraSmartSuggestions(), nil
}

// FetchOpportunities loads the global matching opportunities at level.
func (r *Reconciler) FetchOpportunities(ctx context.Context, level service.ConfidenceLevel, limit int) ([]model.MatchSuggestion, error) {
	ticket, err := r.session.BeginSuggestionFetch()
	if err != nil {
		return nil, err
	}

	list, err := r.gw.MatchingOpportunities(ctx, service.OpportunityQuery{Level: level, MaxOpportunities: limit})
	if err != nil {
		r.session.FailSuggestionFetch(ticket)
		return nil, r.fail(OpOpportunities, "Matching opportunities unavailable", err)
	}

	r.cache.SetOpportunities(list)
	r.session.ResolveSuggestionFetch(ticket, list, false)
	r.notes.ClearError(OpOpportunities)
	return r.session.Suggestions(), nil
}

// CommitSelection reconciles the selected invoices against the selected
// transactions, oldest invoice first.
func (r *Reconciler) CommitSelection(ctx context.Context) (*model.RecentReconciliation, error) {
	pairs := r.session.Allocate()
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: the selection has nothing left to allocate", common.ErrEmptySelection)
	}
	return r.BatchReconcile(ctx, pairs, model.SourceManual)
}

// BatchReconcile submits pairs in requests of at most gateway.MaxBatchPairs.
// Pairs the backend confirmed are applied to the cache even when a later
// request fails.
func (r *Reconciler) BatchReconcile(ctx context.Context, pairs []model.ReconciliationPair, source model.ReconciliationSource) (*model.RecentReconciliation, error) {
	opts := r.session.Config().MatchOptions()
	submit := func(ctx context.Context, pairs []model.ReconciliationPair) ([]model.ReconciliationPair, error) {
		bar := r.progress(len(pairs), "Reconciling")
		var applied []model.ReconciliationPair
		for chunk := range slices.Chunk(pairs, gateway.MaxBatchPairs) {
			res, err := r.gw.BatchReconcile(ctx, chunk, opts)
			if err != nil {
				return applied, err
			}
			applied = append(applied, confirmed(chunk, res)...)
			_ = bar.Add(len(chunk))
			if len(res.Failed) > 0 {
				return applied, refused(res.Failed)
			}
		}
		return applied, nil
	}
	return r.commit(ctx, source, pairs, submit)
}

// Match links a single invoice and transaction for pair.Amount.
func (r *Reconciler) Match(ctx context.Context, pair model.ReconciliationPair) (*model.RecentReconciliation, error) {
	submit := func(ctx context.Context, pairs []model.ReconciliationPair) ([]model.ReconciliationPair, error) {
		if err := r.gw.ManualMatch(ctx, pairs[0]); err != nil {
			return nil, err
		}
		return pairs, nil
	}
	return r.commit(ctx, model.SourceManual, []model.ReconciliationPair{pair}, submit)
}

type submitFunc func(ctx context.Context, pairs []model.ReconciliationPair) ([]model.ReconciliationPair, error)

func (r *Reconciler) commit(ctx context.Context, source model.ReconciliationSource, pairs []model.ReconciliationPair, submit submitFunc) (*model.RecentReconciliation, error) {
	if len(pairs) == 0 {
		return nil, common.ErrEmptySelection
	}
	for _, p := range pairs {
		if !p.Amount.IsPositive() {
			return nil, fmt.Errorf("%w: pair %d/%d has non-positive amount %s", common.ErrInvalidConfig, p.InvoiceID, p.TransactionID, p.Amount)
		}
	}

	ticket, err := r.session.BeginCommit()
	if err != nil {
		return nil, err
	}

	applied, err := submit(ctx, pairs)
	if len(applied) > 0 {
		r.cache.Apply(Reduce(ReconciliationCommitted{Pairs: applied}))
		r.cache.Invalidate(cache.Reconciliation)
	}

	if err != nil {
		if len(applied) > 0 {
			r.session.Record(r.entry(source, applied))
			r.session.SyncSelection(r.cache.Invoice, r.cache.Transaction)
			err = fmt.Errorf("%w: %d of %d pairs applied: %w", ErrPartialCommit, len(applied), len(pairs), err)
		}
		r.session.CommitFailed(ticket)
		return nil, r.fail(OpCommit, "Reconciliation failed", err)
	}

	entry := r.entry(source, applied)
	r.session.CommitSucceeded(ticket, entry)
	r.notes.ClearError(OpCommit)
	r.notes.Success("Reconciliation complete", fmt.Sprintf("%d %s reconciled for %s", len(applied), plural(len(applied), "pair", "pairs"), entry.Total.StringFixed(2)))

	common.LogInfo("Reconciliation committed", common.Fields{
		"id":     entry.ID,
		"pairs":  len(applied),
		"total":  entry.Total.String(),
		"source": string(source),
	})
	return &entry, nil
}

// AcceptSuggestion commits the suggestion identified by key and reports the
// decision to the matching service. The amount of each pair is the smaller of
// the invoice's open amount and the transaction's remaining amount.
func (r *Reconciler) AcceptSuggestion(ctx context.Context, key string) (*model.RecentReconciliation, error) {
	s, ok := r.findSuggestion(key)
	if !ok {
		return nil, fmt.Errorf("%w: suggestion %s", common.ErrNotFound, key)
	}

	invoices, transactions, err := r.entities(ctx, s)
	if err != nil {
		return nil, r.fail(OpCommit, "Suggestion could not be loaded", err)
	}
	pairs := session.Allocate(invoices, transactions)
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: suggestion %s has nothing left to allocate", common.ErrEmptySelection, key)
	}

	entry, err := r.BatchReconcile(ctx, pairs, model.SourceSuggestion)
	if err != nil {
		return nil, err
	}
	r.session.RemoveSuggestion(key)
	r.feedback(ctx, s, true)
	return entry, nil
}

// RejectSuggestion drops the suggestion from the session and tells the
// matching service it was wrong.
func (r *Reconciler) RejectSuggestion(ctx context.Context, key string) error {
	s, ok := r.findSuggestion(key)
	if !ok {
		return fmt.Errorf("%w: suggestion %s", common.ErrNotFound, key)
	}
	r.session.RemoveSuggestion(key)
	r.feedback(ctx, s, false)
	return nil
}

func (r *Reconciler) feedback(ctx context.Context, s model.MatchSuggestion, accepted bool) {
	if !r.session.Config().PatternLearning {
		return
	}
	if err := r.gw.SuggestionFeedback(ctx, service.SuggestionFeedback{Suggestion: s, Accepted: accepted}); err != nil {
		r.notes.SetError(OpFeedback, err)
		common.LogError(err, "Failed to send suggestion feedback", common.Fields{"suggestion": s.Key()})
		return
	}
	r.notes.ClearError(OpFeedback)
}

// AutoReconcile commits every suggestion scoring at least threshold, best
// first. A suggestion touching an entity already used by a better one is
// skipped. It returns nil and no error when nothing qualifies.
func (r *Reconciler) AutoReconcile(ctx context.Context, threshold float64) (*model.RecentReconciliation, error) {
	if !session.ValidThreshold(threshold) {
		return nil, fmt.Errorf("%w: threshold %.2f outside [0,1]", common.ErrInvalidConfig, threshold)
	}

	usedInvoices := make(map[int64]bool)
	usedTransactions := make(map[int64]bool)
	var pairs []model.ReconciliationPair
	for _, s := range r.session.SuggestionsAbove(threshold) {
		if slices.ContainsFunc(s.InvoiceIDs, func(id int64) bool { return usedInvoices[id] }) ||
			slices.ContainsFunc(s.TransactionIDs, func(id int64) bool { return usedTransactions[id] }) {
			continue
		}
		invoices, transactions, err := r.entities(ctx, s)
		if err != nil {
			common.LogError(err, "Skipping suggestion", common.Fields{"suggestion": s.Key()})
			continue
		}
		allocated := session.Allocate(invoices, transactions)
		if len(allocated) == 0 {
			continue
		}
		for _, id := range s.InvoiceIDs {
			usedInvoices[id] = true
		}
		for _, id := range s.TransactionIDs {
			usedTransactions[id] = true
		}
		pairs = append(pairs, allocated...)
	}

	if len(pairs) == 0 {
		r.notes.Info("Nothing to reconcile", fmt.Sprintf("No suggestion scores at least %.2f", threshold))
		return nil, nil
	}
	return r.BatchReconcile(ctx, pairs, model.SourceAuto)
}

// Undo removes the link between an invoice and a transaction.
func (r *Reconciler) Undo(ctx context.Context, invoiceID, transactionID int64) (*service.UndoResult, error) {
	res, err := r.gw.UndoReconciliation(ctx, invoiceID, transactionID)
	if err != nil {
		return nil, r.fail(OpUndo, "Undo failed", err)
	}

	amount := res.Amount
	if !amount.IsPositive() {
		amount = r.linkedAmount(invoiceID, transactionID)
		res.Amount = amount
	}
	if amount.IsPositive() {
		r.cache.Apply(Reduce(ReconciliationUndone{InvoiceID: invoiceID, TransactionID: transactionID, Amount: amount}))
	} else {
		// Amount unknown: drop the freshness stamps so the next read refetches.
		r.cache.Invalidate(cache.Invoices)
		r.cache.Invalidate(cache.Transactions)
	}
	r.cache.Invalidate(cache.Reconciliation)

	pair := model.ReconciliationPair{InvoiceID: invoiceID, TransactionID: transactionID, Amount: amount}
	r.session.Record(r.entry(model.SourceUndo, []model.ReconciliationPair{pair}))
	r.notes.ClearError(OpUndo)
	r.notes.Success("Reconciliation undone", fmt.Sprintf("Invoice %d unlinked from transaction %d", invoiceID, transactionID))
	return res, nil
}

// UndoLast reverts every pair of the newest non-undo history entry.
func (r *Reconciler) UndoLast(ctx context.Context) ([]service.UndoResult, error) {
	var last *model.RecentReconciliation
	for _, e := range r.session.RecentReconciliations() {
		if e.Source != model.SourceUndo {
			last = &e
			break
		}
	}
	if last == nil {
		return nil, fmt.Errorf("%w: no reconciliation to undo", common.ErrNotFound)
	}

	var out []service.UndoResult
	for _, p := range last.Pairs {
		res, err := r.Undo(ctx, p.InvoiceID, p.TransactionID)
		if err != nil {
			return out, err
		}
		out = append(out, *res)
	}
	return out, nil
}

// linkedAmount looks up the amount of the most recent recorded pair linking
// the two entities.
func (r *Reconciler) linkedAmount(invoiceID, transactionID int64) decimal.Decimal {
	for _, e := range r.session.RecentReconciliations() {
		if e.Source == model.SourceUndo {
			continue
		}
		for _, p := range e.Pairs {
			if p.InvoiceID == invoiceID && p.TransactionID == transactionID {
				return p.Amount
			}
		}
	}
	return decimal.Zero
}

// UpdateInvoiceStatus sets an invoice's payment status. paid may be nil to let
// the backend derive it from the status.
func (r *Reconciler) UpdateInvoiceStatus(ctx context.Context, id int64, status model.PaymentStatus, paid *decimal.Decimal) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown payment status %q", common.ErrInvalidConfig, status)
	}
	res, err := r.gw.UpdateInvoicePaymentStatus(ctx, id, status, paid)
	if err != nil {
		return r.fail(OpInvoiceStatus, "Invoice status not updated", err)
	}

	r.cache.Apply(Reduce(InvoiceStatusUpdated{ID: id, Status: res.Status, PaidAmount: res.PaidAmount}))
	r.session.SyncSelection(r.cache.Invoice, r.cache.Transaction)
	r.notes.ClearError(OpInvoiceStatus)
	r.notes.Success("Invoice updated", fmt.Sprintf("Invoice %d is now %s", id, res.Status))
	return nil
}

// UpdateTransactionStatus sets a transaction's reconciliation status.
func (r *Reconciler) UpdateTransactionStatus(ctx context.Context, id int64, status model.ReconciliationStatus, reconciled *decimal.Decimal) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown reconciliation status %q", common.ErrInvalidConfig, status)
	}
	res, err := r.gw.UpdateTransactionStatus(ctx, id, status, reconciled)
	if err != nil {
		return r.fail(OpTransactionStatus, "Transaction status not updated", err)
	}

	r.cache.Apply(Reduce(TransactionStatusUpdated{ID: id, Status: res.Status, ReconciledAmount: res.ReconciledAmount}))
	r.session.SyncSelection(r.cache.Invoice, r.cache.Transaction)
	r.notes.ClearError(OpTransactionStatus)
	r.notes.Success("Transaction updated", fmt.Sprintf("Transaction %d is now %s", id, res.Status))
	return nil
}

// BatchUpdateTransactionStatus applies status to ids in requests of at most
// gateway.MaxBatchStatusIDs. Only ids the backend reports as successful are
// patched. It returns those ids.
func (r *Reconciler) BatchUpdateTransactionStatus(ctx context.Context, ids []int64, status model.ReconciliationStatus) ([]int64, error) {
	if len(ids) == 0 {
		return nil, common.ErrEmptySelection
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown reconciliation status %q", common.ErrInvalidConfig, status)
	}

	bar := r.progress(len(ids), "Updating")
	var (
		done    []int64
		failed  int
		callErr error
	)
	for chunk := range slices.Chunk(ids, gateway.MaxBatchStatusIDs) {
		res, err := r.gw.BatchUpdateTransactionStatus(ctx, chunk, status)
		if err != nil {
			callErr = err
			break
		}
		done = append(done, res.Successful...)
		failed += res.Failed
		_ = bar.Add(len(chunk))
	}

	if len(done) > 0 {
		r.cache.Apply(Reduce(TransactionsBatchStatusUpdated{IDs: done, Status: status}))
		r.session.SyncSelection(r.cache.Invoice, r.cache.Transaction)
	}

	switch {
	case callErr != nil:
		return done, r.fail(OpBatchStatus, "Batch update failed", fmt.Errorf("%d of %d updated: %w", len(done), len(ids), callErr))
	case failed > 0:
		return done, r.fail(OpBatchStatus, "Batch update incomplete", fmt.Errorf("%w: %d of %d transactions refused", common.ErrBackendRejected, failed, len(ids)))
	}

	r.notes.ClearError(OpBatchStatus)
	r.notes.Success("Transactions updated", fmt.Sprintf("%d %s set to %s", len(done), plural(len(done), "transaction", "transactions"), status))
	return done, nil
}

func (r *Reconciler) fail(op, title string, err error) error {
	r.notes.Error(title, err)
	r.notes.SetError(op, err)
	return err
}

func (r *Reconciler) entry(source model.ReconciliationSource, pairs []model.ReconciliationPair) model.RecentReconciliation {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	total := decimal.Zero
	for _, p := range pairs {
		total = total.Add(p.Amount)
	}
	return model.RecentReconciliation{
		ID:     id.String(),
		At:     r.now(),
		Source: source,
		Pairs:  slices.Clone(pairs),
		Total:  total,
	}
}

func (r *Reconciler) findSuggestion(key string) (model.MatchSuggestion, bool) {
	for _, list := range [][]model.MatchSuggestion{r.session.UltraSmartSuggestions(), r.session.Suggestions()} {
		for _, s := range list {
			if s.Key() == key {
				return s, true
			}
		}
	}
	return model.MatchSuggestion{}, false
}

// entities resolves the invoices and transactions a suggestion pairs, from the
// cache when possible and from the backend otherwise.
func (r *Reconciler) entities(ctx context.Context, s model.MatchSuggestion) ([]model.Invoice, []model.BankTransaction, error) {
	invoices := make([]model.Invoice, 0, len(s.InvoiceIDs))
	for _, id := range s.InvoiceIDs {
		inv, ok := r.cache.Invoice(id)
		if !ok {
			fetched, err := r.gw.GetInvoice(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			r.cache.ViewInvoice(*fetched)
			inv = *fetched
		}
		invoices = append(invoices, inv)
	}

	transactions := make([]model.BankTransaction, 0, len(s.TransactionIDs))
	for _, id := range s.TransactionIDs {
		txn, ok := r.cache.Transaction(id)
		if !ok {
			fetched, err := r.gw.GetTransaction(ctx, id)
			if err != nil {
				return nil, nil, err
			}
			r.cache.ViewTransaction(*fetched)
			txn = *fetched
		}
		transactions = append(transactions, txn)
	}
	return invoices, transactions, nil
}

// confirmed returns the pairs of chunk the backend applied. A response that
// lists neither applied nor failed pairs confirms the whole chunk.
func confirmed(chunk []model.ReconciliationPair, res *service.BatchReconcileResult) []model.ReconciliationPair {
	if len(res.Applied) == 0 && len(res.Failed) == 0 {
		return chunk
	}
	out := make([]model.ReconciliationPair, 0, len(res.Applied))
	for _, a := range res.Applied {
		out = append(out, a.ReconciliationPair)
	}
	return out
}

func refused(failed []service.FailedPair) error {
	reasons := make([]string, 0, len(failed))
	for _, f := range failed {
		reasons = append(reasons, fmt.Sprintf("%d/%d: %s", f.InvoiceID, f.TransactionID, f.Reason))
	}
	return fmt.Errorf("%w: %s", common.ErrBackendRejected, strings.Join(reasons, "; "))
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
