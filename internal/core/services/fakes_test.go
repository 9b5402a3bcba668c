package services_test

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
)

// In-memory repository fakes. They apply effect write-sets the same way the
// pgsql repositories do, so service tests can run whole posting and
// processing scenarios without a database.

// --- accounts ---

type fakeAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	posted   map[string]bool
}

var _ portsrepo.AccountRepositoryFacade = (*fakeAccountRepo)(nil)

func newFakeAccountRepo() *fakeAccountRepo {
	return &fakeAccountRepo{
		accounts: make(map[string]domain.Account),
		posted:   make(map[string]bool),
	}
}

func (r *fakeAccountRepo) SaveAccount(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.AccountID]; ok {
		return fmt.Errorf("%w: account %s", apperrors.ErrDuplicate, account.AccountID)
	}
	r.accounts[account.AccountID] = account
	return nil
}

func (r *fakeAccountRepo) FindAccountByID(_ context.Context, accountID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("%w: account %s", apperrors.ErrNotFound, accountID)
	}
	return &account, nil
}

func (r *fakeAccountRepo) FindAccountsByIDs(_ context.Context, accountIDs []string) (map[string]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make(map[string]domain.Account)
	for _, id := range accountIDs {
		if account, ok := r.accounts[id]; ok {
			found[id] = account
		}
	}
	return found, nil
}

func (r *fakeAccountRepo) ListAccounts(_ context.Context, limit int, offset int) ([]domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		all = append(all, account)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Name < all[j].Name })
	return pageSlice(all, limit, offset), nil
}

func (r *fakeAccountRepo) UpdateAccount(_ context.Context, account domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.accounts[account.AccountID]; !ok {
		return fmt.Errorf("%w: account %s", apperrors.ErrNotFound, account.AccountID)
	}
	r.accounts[account.AccountID] = account
	return nil
}

func (r *fakeAccountRepo) HasPostedLines(_ context.Context, accountID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.posted[accountID], nil
}

// --- instruments and prices ---

type fakeInstrumentRepo struct {
	mu          sync.Mutex
	instruments map[string]domain.Instrument
}

var _ portsrepo.InstrumentRepositoryFacade = (*fakeInstrumentRepo)(nil)

func newFakeInstrumentRepo() *fakeInstrumentRepo {
	return &fakeInstrumentRepo{instruments: make(map[string]domain.Instrument)}
}

func (r *fakeInstrumentRepo) SaveInstrument(_ context.Context, instrument domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instruments[instrument.InstrumentID]; ok {
		return fmt.Errorf("%w: instrument %s", apperrors.ErrDuplicate, instrument.InstrumentID)
	}
	r.instruments[instrument.InstrumentID] = instrument
	return nil
}

func (r *fakeInstrumentRepo) FindInstrumentByID(_ context.Context, instrumentID string) (*domain.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	instrument, ok := r.instruments[instrumentID]
	if !ok {
		return nil, fmt.Errorf("%w: instrument %s", apperrors.ErrNotFound, instrumentID)
	}
	return &instrument, nil
}

func (r *fakeInstrumentRepo) FindInstrumentsByIDs(_ context.Context, instrumentIDs []string) (map[string]domain.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make(map[string]domain.Instrument)
	for _, id := range instrumentIDs {
		if instrument, ok := r.instruments[id]; ok {
			found[id] = instrument
		}
	}
	return found, nil
}

func (r *fakeInstrumentRepo) FindInstrumentBySymbol(_ context.Context, symbol string) (*domain.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, instrument := range r.instruments {
		if instrument.Symbol == symbol && instrument.IsActive {
			found := instrument
			return &found, nil
		}
	}
	return nil, fmt.Errorf("%w: instrument with symbol %s", apperrors.ErrNotFound, symbol)
}

func (r *fakeInstrumentRepo) ListInstruments(_ context.Context, limit int, offset int) ([]domain.Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]domain.Instrument, 0, len(r.instruments))
	for _, instrument := range r.instruments {
		all = append(all, instrument)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Symbol < all[j].Symbol })
	return pageSlice(all, limit, offset), nil
}

func (r *fakeInstrumentRepo) UpdateInstrument(_ context.Context, instrument domain.Instrument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.instruments[instrument.InstrumentID]; !ok {
		return fmt.Errorf("%w: instrument %s", apperrors.ErrNotFound, instrument.InstrumentID)
	}
	r.instruments[instrument.InstrumentID] = instrument
	return nil
}

type fakePriceRepo struct {
	mu     sync.Mutex
	prices []domain.Price
}

var _ portsrepo.PriceRepositoryFacade = (*fakePriceRepo)(nil)

func newFakePriceRepo() *fakePriceRepo {
	return &fakePriceRepo{}
}

func (r *fakePriceRepo) SavePrice(_ context.Context, price domain.Price) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, p := range r.prices {
		if p.InstrumentID == price.InstrumentID && p.Date.Equal(price.Date) {
			r.prices[i] = price
			return nil
		}
	}
	r.prices = append(r.prices, price)
	return nil
}

func (r *fakePriceRepo) LatestPrice(_ context.Context, instrumentID string, asOf time.Time) (*domain.Price, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *domain.Price
	for i := range r.prices {
		p := r.prices[i]
		if p.InstrumentID != instrumentID || p.Date.After(asOf) {
			continue
		}
		if best == nil || p.Date.After(best.Date) {
			best = &p
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: no price for instrument %s", apperrors.ErrNotFound, instrumentID)
	}
	found := *best
	return &found, nil
}

// --- lots ---

type fakeLotRepo struct {
	mu           sync.Mutex
	lots         map[string]domain.Lot
	consumptions []domain.LotConsumption
	adjustments  []domain.LotAdjustment
}

var _ portsrepo.LotRepositoryFacade = (*fakeLotRepo)(nil)

func newFakeLotRepo() *fakeLotRepo {
	return &fakeLotRepo{lots: make(map[string]domain.Lot)}
}

func (r *fakeLotRepo) FindLotByID(_ context.Context, lotID string) (*domain.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lot, ok := r.lots[lotID]
	if !ok {
		return nil, fmt.Errorf("%w: lot %s", apperrors.ErrNotFound, lotID)
	}
	return &lot, nil
}

func (r *fakeLotRepo) OpenLots(ctx context.Context, instrumentID string, accountID string) ([]domain.Lot, error) {
	return r.AllOpenLots(ctx, accountID, instrumentID)
}

func (r *fakeLotRepo) OpenLotsByInstrument(ctx context.Context, instrumentID string) ([]domain.Lot, error) {
	return r.AllOpenLots(ctx, "", instrumentID)
}

func (r *fakeLotRepo) AllOpenLots(_ context.Context, accountID string, instrumentID string) ([]domain.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lots := make([]domain.Lot, 0)
	for _, lot := range r.lots {
		if lot.Closed {
			continue
		}
		if accountID != "" && lot.AccountID != accountID {
			continue
		}
		if instrumentID != "" && lot.InstrumentID != instrumentID {
			continue
		}
		lots = append(lots, lot)
	}
	sortLotsFIFO(lots)
	return lots, nil
}

func (r *fakeLotRepo) LotsByOpenTransaction(_ context.Context, transactionID string) ([]domain.Lot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	lots := make([]domain.Lot, 0)
	for _, lot := range r.lots {
		if lot.OpenTransactionID == transactionID {
			lots = append(lots, lot)
		}
	}
	sortLotsFIFO(lots)
	return lots, nil
}

func (r *fakeLotRepo) ConsumptionsByTransaction(_ context.Context, transactionID string) ([]domain.LotConsumption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make([]domain.LotConsumption, 0)
	for _, c := range r.consumptions {
		if c.TransactionID == transactionID {
			found = append(found, c)
		}
	}
	return found, nil
}

func (r *fakeLotRepo) ConsumptionsByLotIDs(_ context.Context, lotIDs []string) ([]domain.LotConsumption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[string]struct{}, len(lotIDs))
	for _, id := range lotIDs {
		wanted[id] = struct{}{}
	}
	found := make([]domain.LotConsumption, 0)
	for _, c := range r.consumptions {
		if _, ok := wanted[c.LotID]; ok {
			found = append(found, c)
		}
	}
	return found, nil
}

func (r *fakeLotRepo) ConsumptionsInRange(_ context.Context, filter portsrepo.ConsumptionFilter) ([]domain.LotConsumption, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make([]domain.LotConsumption, 0)
	for _, c := range r.consumptions {
		lot := r.lots[c.LotID]
		if filter.AccountID != "" && lot.AccountID != filter.AccountID {
			continue
		}
		if filter.InstrumentID != "" && lot.InstrumentID != filter.InstrumentID {
			continue
		}
		if filter.DateFrom != nil && c.TradeDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && c.TradeDate.After(*filter.DateTo) {
			continue
		}
		if filter.SeqFrom != 0 && c.Seq < filter.SeqFrom {
			continue
		}
		if filter.SeqTo != 0 && c.Seq > filter.SeqTo {
			continue
		}
		found = append(found, c)
	}
	return found, nil
}

func (r *fakeLotRepo) AdjustmentsByLotIDs(_ context.Context, lotIDs []string) ([]domain.LotAdjustment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	wanted := make(map[string]struct{}, len(lotIDs))
	for _, id := range lotIDs {
		wanted[id] = struct{}{}
	}
	found := make([]domain.LotAdjustment, 0)
	for _, a := range r.adjustments {
		if _, ok := wanted[a.LotID]; ok {
			found = append(found, a)
		}
	}
	return found, nil
}

func (r *fakeLotRepo) applyLotEffects(effects domain.LotEffects) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, lot := range effects.Opened {
		r.lots[lot.LotID] = lot
	}
	for _, lot := range effects.Updated {
		r.lots[lot.LotID] = lot
	}
	r.consumptions = append(r.consumptions, effects.Consumptions...)
}

func (r *fakeLotRepo) applyUnpostEffects(effects domain.UnpostEffects) {
	r.mu.Lock()
	defer r.mu.Unlock()
	deleted := make(map[string]struct{}, len(effects.DeletedConsumptionIDs))
	for _, id := range effects.DeletedConsumptionIDs {
		deleted[id] = struct{}{}
	}
	kept := r.consumptions[:0]
	for _, c := range r.consumptions {
		if _, ok := deleted[c.ConsumptionID]; !ok {
			kept = append(kept, c)
		}
	}
	r.consumptions = kept
	for _, lot := range effects.Restored {
		r.lots[lot.LotID] = lot
	}
	for _, id := range effects.DeletedLotIDs {
		delete(r.lots, id)
	}
}

func sortLotsFIFO(lots []domain.Lot) {
	sort.Slice(lots, func(i, j int) bool {
		if !lots[i].OpenDate.Equal(lots[j].OpenDate) {
			return lots[i].OpenDate.Before(lots[j].OpenDate)
		}
		if lots[i].OpenSeq != lots[j].OpenSeq {
			return lots[i].OpenSeq < lots[j].OpenSeq
		}
		return lots[i].LotID < lots[j].LotID
	})
}

// --- journal ---

type fakeJournalRepo struct {
	mu      sync.Mutex
	txns    map[string]domain.Transaction
	seq     int64
	lotRepo *fakeLotRepo
}

var _ portsrepo.JournalRepositoryFacade = (*fakeJournalRepo)(nil)

func newFakeJournalRepo(lotRepo *fakeLotRepo) *fakeJournalRepo {
	return &fakeJournalRepo{txns: make(map[string]domain.Transaction), lotRepo: lotRepo}
}

func (r *fakeJournalRepo) SaveDraft(_ context.Context, txn domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.txns[txn.TransactionID]; ok {
		return fmt.Errorf("%w: transaction %s", apperrors.ErrDuplicate, txn.TransactionID)
	}
	r.txns[txn.TransactionID] = txn
	return nil
}

func (r *fakeJournalRepo) UpdateDraft(_ context.Context, txn domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.txns[txn.TransactionID]
	if !ok {
		return fmt.Errorf("%w: transaction %s", apperrors.ErrNotFound, txn.TransactionID)
	}
	if stored.Status != domain.Draft {
		return fmt.Errorf("%w: transaction %s is not a draft", apperrors.ErrNotFound, txn.TransactionID)
	}
	r.txns[txn.TransactionID] = txn
	return nil
}

func (r *fakeJournalRepo) DeleteDraft(_ context.Context, transactionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.txns[transactionID]
	if !ok || stored.Status != domain.Draft {
		return fmt.Errorf("%w: draft transaction %s", apperrors.ErrNotFound, transactionID)
	}
	delete(r.txns, transactionID)
	return nil
}

func (r *fakeJournalRepo) FindTransactionByID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.txns[transactionID]
	if !ok {
		return nil, fmt.Errorf("%w: transaction %s", apperrors.ErrNotFound, transactionID)
	}
	txn := stored
	txn.Lines = append([]domain.Line(nil), stored.Lines...)
	return &txn, nil
}

func (r *fakeJournalRepo) ListTransactions(_ context.Context, filter portsrepo.ListTransactionsFilter) ([]domain.Transaction, *string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	all := make([]domain.Transaction, 0, len(r.txns))
	for _, txn := range r.txns {
		if filter.Status != nil && txn.Status != *filter.Status {
			continue
		}
		if filter.Type != nil && txn.Type != *filter.Type {
			continue
		}
		if filter.DateFrom != nil && txn.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && txn.Date.After(*filter.DateTo) {
			continue
		}
		all = append(all, txn)
	}
	sort.Slice(all, func(i, j int) bool {
		if !all[i].Date.Equal(all[j].Date) {
			return all[i].Date.Before(all[j].Date)
		}
		return all[i].TransactionID < all[j].TransactionID
	})
	if filter.Limit > 0 && len(all) > filter.Limit {
		all = all[:filter.Limit]
	}
	return all, nil, nil
}

func (r *fakeJournalRepo) NextPostingSeq(_ context.Context) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	return r.seq, nil
}

func (r *fakeJournalRepo) SavePosting(_ context.Context, txn domain.Transaction, effects domain.LotEffects) error {
	r.mu.Lock()
	stored, ok := r.txns[txn.TransactionID]
	if !ok || stored.Status != domain.Draft {
		r.mu.Unlock()
		return fmt.Errorf("%w: transaction %s is not a draft", apperrors.ErrConflict, txn.TransactionID)
	}
	r.txns[txn.TransactionID] = txn
	r.mu.Unlock()

	r.lotRepo.applyLotEffects(effects)
	return nil
}

func (r *fakeJournalRepo) SaveUnposting(_ context.Context, txn domain.Transaction, effects domain.UnpostEffects) error {
	r.mu.Lock()
	stored, ok := r.txns[txn.TransactionID]
	if !ok || stored.Status != domain.Posted {
		r.mu.Unlock()
		return fmt.Errorf("%w: transaction %s is not posted", apperrors.ErrConflict, txn.TransactionID)
	}
	r.txns[txn.TransactionID] = txn
	r.mu.Unlock()

	r.lotRepo.applyUnpostEffects(effects)
	return nil
}

// savePosted stores an already-posted transaction, as SaveProcessing does for
// generated entries.
func (r *fakeJournalRepo) savePosted(txn domain.Transaction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.txns[txn.TransactionID] = txn
}

func (r *fakeJournalRepo) ListPostedLines(_ context.Context, filter portsrepo.LedgerFilter) ([]domain.LedgerEntry, *string, error) {
	entries := r.postedEntries()
	found := make([]domain.LedgerEntry, 0)
	for _, e := range entries {
		if e.AccountID != filter.AccountID {
			continue
		}
		if filter.DateFrom != nil && e.TransactionDate.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && e.TransactionDate.After(*filter.DateTo) {
			continue
		}
		found = append(found, e)
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].TransactionDate.Equal(found[j].TransactionDate) {
			return found[i].TransactionDate.Before(found[j].TransactionDate)
		}
		return found[i].LineID < found[j].LineID
	})
	if filter.Limit > 0 && len(found) > filter.Limit {
		found = found[:filter.Limit]
	}
	return found, nil, nil
}

func (r *fakeJournalRepo) SumPostedLinesBefore(_ context.Context, accountID string, before time.Time, beforeLineID string) (decimal.Decimal, decimal.Decimal, error) {
	dr, cr := decimal.Zero, decimal.Zero
	for _, e := range r.postedEntries() {
		if e.AccountID != accountID {
			continue
		}
		if beforeLineID == "" {
			if !e.TransactionDate.Before(before) {
				continue
			}
		} else if !e.TransactionDate.Before(before) && !(e.TransactionDate.Equal(before) && e.LineID < beforeLineID) {
			continue
		}
		if e.Side == domain.Debit {
			dr = dr.Add(e.Amount)
		} else {
			cr = cr.Add(e.Amount)
		}
	}
	return dr, cr, nil
}

func (r *fakeJournalRepo) ListPostedTradeLines(_ context.Context) ([]domain.LedgerEntry, error) {
	entries := make([]domain.LedgerEntry, 0)
	for _, e := range r.postedEntries() {
		if e.InstrumentID != "" {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].PostingSeq < entries[j].PostingSeq })
	return entries, nil
}

func (r *fakeJournalRepo) postedEntries() []domain.LedgerEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	entries := make([]domain.LedgerEntry, 0)
	for _, txn := range r.txns {
		if txn.Status != domain.Posted {
			continue
		}
		for _, line := range txn.Lines {
			entries = append(entries, domain.LedgerEntry{
				Line:            line,
				TransactionDate: txn.Date,
				TransactionMemo: txn.Memo,
				TransactionType: txn.Type,
				PostingSeq:      txn.PostingSeq,
			})
		}
	}
	return entries
}

// --- corporate actions ---

type fakeActionRepo struct {
	mu          sync.Mutex
	actions     map[string]domain.CorporateAction
	lotRepo     *fakeLotRepo
	journalRepo *fakeJournalRepo
}

var _ portsrepo.CorporateActionRepositoryFacade = (*fakeActionRepo)(nil)

func newFakeActionRepo(lotRepo *fakeLotRepo, journalRepo *fakeJournalRepo) *fakeActionRepo {
	return &fakeActionRepo{
		actions:     make(map[string]domain.CorporateAction),
		lotRepo:     lotRepo,
		journalRepo: journalRepo,
	}
}

func (r *fakeActionRepo) SaveAction(_ context.Context, action domain.CorporateAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.actions[action.ActionID]; ok {
		return fmt.Errorf("%w: corporate action %s", apperrors.ErrDuplicate, action.ActionID)
	}
	r.actions[action.ActionID] = action
	return nil
}

func (r *fakeActionRepo) UpdateDraftAction(_ context.Context, action domain.CorporateAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.actions[action.ActionID]
	if !ok || stored.Processed {
		return fmt.Errorf("%w: draft corporate action %s", apperrors.ErrNotFound, action.ActionID)
	}
	r.actions[action.ActionID] = action
	return nil
}

func (r *fakeActionRepo) DeleteDraftAction(_ context.Context, actionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.actions[actionID]
	if !ok || stored.Processed {
		return fmt.Errorf("%w: draft corporate action %s", apperrors.ErrNotFound, actionID)
	}
	delete(r.actions, actionID)
	return nil
}

func (r *fakeActionRepo) FindActionByID(_ context.Context, actionID string) (*domain.CorporateAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	action, ok := r.actions[actionID]
	if !ok {
		return nil, fmt.Errorf("%w: corporate action %s", apperrors.ErrNotFound, actionID)
	}
	return &action, nil
}

func (r *fakeActionRepo) ListActions(_ context.Context, filter portsrepo.ListActionsFilter) ([]domain.CorporateAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make([]domain.CorporateAction, 0)
	for _, action := range r.actions {
		if filter.InstrumentID != "" && action.InstrumentID != filter.InstrumentID {
			continue
		}
		if filter.Processed != nil && action.Processed != *filter.Processed {
			continue
		}
		if filter.DateFrom != nil && action.Date.Before(*filter.DateFrom) {
			continue
		}
		if filter.DateTo != nil && action.Date.After(*filter.DateTo) {
			continue
		}
		found = append(found, action)
	}
	sort.Slice(found, func(i, j int) bool {
		if !found[i].Date.Equal(found[j].Date) {
			return found[i].Date.Before(found[j].Date)
		}
		return found[i].CreatedAt.Before(found[j].CreatedAt)
	})
	return found, nil
}

func (r *fakeActionRepo) ListProcessedActions(_ context.Context) ([]domain.CorporateAction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	found := make([]domain.CorporateAction, 0)
	for _, action := range r.actions {
		if action.Processed {
			found = append(found, action)
		}
	}
	sort.Slice(found, func(i, j int) bool { return found[i].ProcessedSeq < found[j].ProcessedSeq })
	return found, nil
}

func (r *fakeActionRepo) SaveProcessing(_ context.Context, effects domain.ActionEffects) error {
	r.mu.Lock()
	stored, ok := r.actions[effects.Action.ActionID]
	if !ok || stored.Processed {
		r.mu.Unlock()
		return fmt.Errorf("%w: corporate action %s", apperrors.ErrAlreadyProcessed, effects.Action.ActionID)
	}
	r.actions[effects.Action.ActionID] = effects.Action
	r.mu.Unlock()

	r.lotRepo.applyLotEffects(domain.LotEffects{Opened: effects.CreatedLots, Updated: effects.UpdatedLots})
	r.lotRepo.mu.Lock()
	r.lotRepo.adjustments = append(r.lotRepo.adjustments, effects.Adjustments...)
	r.lotRepo.mu.Unlock()
	for _, txn := range effects.Transactions {
		r.journalRepo.savePosted(txn)
	}
	return nil
}

func pageSlice[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all
}
