package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/core/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/utils/locking"
)

const (
	instACME   = "inst-acme"
	instNEW    = "inst-new"
	instSpinA  = "inst-spin-a"
	instSpinB  = "inst-spin-b"
	acctIncome = "acct-div-income"
)

type actionEnv struct {
	ctx         context.Context
	accountRepo *fakeAccountRepo
	instRepo    *fakeInstrumentRepo
	lotRepo     *fakeLotRepo
	journalRepo *fakeJournalRepo
	actionRepo  *fakeActionRepo
	journalSvc  portssvc.JournalSvcFacade
	svc         portssvc.CorporateActionSvcFacade
}

func newActionEnv(t *testing.T, dividendAccts services.DividendAccounts) *actionEnv {
	t.Helper()
	env := &actionEnv{
		ctx:         context.Background(),
		accountRepo: newFakeAccountRepo(),
		instRepo:    newFakeInstrumentRepo(),
		lotRepo:     newFakeLotRepo(),
	}
	env.journalRepo = newFakeJournalRepo(env.lotRepo)
	env.actionRepo = newFakeActionRepo(env.lotRepo, env.journalRepo)

	for _, id := range []string{acctBroker, acctCash} {
		env.accountRepo.accounts[id] = domain.Account{
			AccountID: id, Name: id, AccountType: domain.Asset, CurrencyCode: "USD", IsActive: true,
		}
	}
	env.accountRepo.accounts[acctIncome] = domain.Account{
		AccountID: acctIncome, Name: acctIncome, AccountType: domain.Income, CurrencyCode: "USD", IsActive: true,
	}
	for _, id := range []string{instACME, instNEW, instSpinA, instSpinB} {
		env.instRepo.instruments[id] = domain.Instrument{
			InstrumentID: id, Symbol: id, Name: id, InstrumentType: domain.EquityInstrument,
			CurrencyCode: "USD", CostBasisMethod: domain.FIFO, IsActive: true,
		}
	}

	locks := locking.NewKeyedMutex()
	lotSvc := services.NewLotService(env.lotRepo)
	env.journalSvc = services.NewJournalService(
		env.journalRepo, env.accountRepo, env.instRepo, lotSvc, locks, "USD")
	env.svc = services.NewCorporateActionService(
		env.actionRepo, env.lotRepo, env.instRepo, env.journalRepo, env.journalSvc, locks, dividendAccts)
	return env
}

func defaultDividendAccounts() services.DividendAccounts {
	return services.DividendAccounts{CashAccountID: acctCash, IncomeAccountID: acctIncome}
}

func (env *actionEnv) seedHolding(lotID, instrumentID string, openDate time.Time, openSeq int64, qty, costTotal int64) domain.Lot {
	lot := domain.Lot{
		LotID:             lotID,
		InstrumentID:      instrumentID,
		AccountID:         acctBroker,
		OpenDate:          openDate,
		QtyOpened:         decimal.NewFromInt(qty),
		QtyRemaining:      decimal.NewFromInt(qty),
		CostPerUnit:       decimal.NewFromInt(costTotal).Div(decimal.NewFromInt(qty)),
		CostTotal:         decimal.NewFromInt(costTotal),
		Method:            domain.FIFO,
		OpenTransactionID: "txn-open-" + lotID,
		OpenSeq:           openSeq,
	}
	env.lotRepo.lots[lotID] = lot
	return lot
}

func TestProcessSplit(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 10, 1000)

	action, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME,
		Type:         domain.Split,
		Date:         day(5),
		Ratio:        decimal.NewFromInt(2),
	}, testUser)
	require.NoError(t, err)

	result, err := env.svc.Process(env.ctx, action.ActionID, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, result.PositionsAffected)
	assert.Equal(t, 1, result.LotsAdjusted)
	assert.Equal(t, 0, result.LotsCreated)
	require.Len(t, result.GeneratedTransactionIDs, 1)

	lot := env.lotRepo.lots["lot-1"]
	assert.True(t, lot.QtyOpened.Equal(decimal.NewFromInt(20)))
	assert.True(t, lot.QtyRemaining.Equal(decimal.NewFromInt(20)))
	assert.True(t, lot.CostPerUnit.Equal(decimal.NewFromInt(50)), "cost per unit %s", lot.CostPerUnit)
	// Total cost never changes on a split.
	assert.True(t, lot.CostTotal.Equal(decimal.NewFromInt(1000)))

	require.Len(t, env.lotRepo.adjustments, 1)
	adj := env.lotRepo.adjustments[0]
	assert.Equal(t, domain.AdjustScale, adj.Kind)
	assert.True(t, adj.QtyRemainingBefore.Equal(decimal.NewFromInt(10)))
	assert.True(t, adj.QtyRemainingAfter.Equal(decimal.NewFromInt(20)))

	memo, err := env.journalRepo.FindTransactionByID(env.ctx, result.GeneratedTransactionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.Adjust, memo.Type)
	assert.Equal(t, domain.Posted, memo.Status)
	for _, line := range memo.Lines {
		assert.True(t, line.Amount.IsZero())
	}

	_, err = env.svc.Process(env.ctx, action.ActionID, testUser)
	require.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)
}

func TestProcessStockDividend(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 8, 800)

	action, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME,
		Type:         domain.StockDividend,
		Date:         day(5),
		Ratio:        decimal.RequireFromString("0.25"),
	}, testUser)
	require.NoError(t, err)

	_, err = env.svc.Process(env.ctx, action.ActionID, testUser)
	require.NoError(t, err)

	lot := env.lotRepo.lots["lot-1"]
	assert.True(t, lot.QtyRemaining.Equal(decimal.NewFromInt(10)), "quantity %s", lot.QtyRemaining)
	assert.True(t, lot.CostTotal.Equal(decimal.NewFromInt(800)))
	assert.True(t, lot.CostPerUnit.Equal(decimal.NewFromInt(80)))
}

func TestProcessCashDividend(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 100, 5000)

	action, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME,
		Type:         domain.CashDividend,
		Date:         day(5),
		CashPerShare: decimal.RequireFromString("0.50"),
	}, testUser)
	require.NoError(t, err)

	result, err := env.svc.Process(env.ctx, action.ActionID, testUser)
	require.NoError(t, err)
	assert.True(t, result.TotalCashPaid.Equal(decimal.NewFromInt(50)), "cash paid %s", result.TotalCashPaid)
	require.Len(t, result.GeneratedTransactionIDs, 1)

	// Holdings are untouched by a cash dividend; the only adjustment is the
	// no-op snapshot tying the payout to its source lot.
	lot := env.lotRepo.lots["lot-1"]
	assert.True(t, lot.QtyRemaining.Equal(decimal.NewFromInt(100)))
	require.Len(t, env.lotRepo.adjustments, 1)
	snap := env.lotRepo.adjustments[0]
	assert.Equal(t, domain.AdjustSnapshot, snap.Kind)
	assert.Equal(t, "lot-1", snap.LotID)
	assert.True(t, snap.QtyRemainingBefore.Equal(snap.QtyRemainingAfter))
	assert.True(t, snap.CostTotalBefore.Equal(snap.CostTotalAfter))

	txn, err := env.journalRepo.FindTransactionByID(env.ctx, result.GeneratedTransactionIDs[0])
	require.NoError(t, err)
	assert.Equal(t, domain.Dividend, txn.Type)
	require.Len(t, txn.Lines, 2)
	assert.Equal(t, acctCash, txn.Lines[0].AccountID)
	assert.Equal(t, domain.Debit, txn.Lines[0].Side)
	assert.True(t, txn.Lines[0].Amount.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, acctIncome, txn.Lines[1].AccountID)
	assert.Equal(t, domain.Credit, txn.Lines[1].Side)
}

func TestUnpostBlockedAfterCashDividend(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	buy := env.postTrade(t, day(1), instACME, 100, 5000)

	action, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME,
		Type:         domain.CashDividend,
		Date:         day(5),
		CashPerShare: decimal.NewFromInt(1),
	}, testUser)
	require.NoError(t, err)
	_, err = env.svc.Process(env.ctx, action.ActionID, testUser)
	require.NoError(t, err)

	// The payout was computed from the holding this buy opened, so the buy
	// can no longer be unposted.
	_, err = env.journalSvc.Unpost(env.ctx, buy.TransactionID, testUser)
	require.ErrorIs(t, err, apperrors.ErrDependentState)

	lots, err := env.lotRepo.LotsByOpenTransaction(env.ctx, buy.TransactionID)
	require.NoError(t, err)
	require.Len(t, lots, 1)
	assert.True(t, lots[0].QtyRemaining.Equal(decimal.NewFromInt(100)))
}

func TestProcessSymbolChange(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 10, 1000)

	action, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID:    instACME,
		Type:            domain.SymbolChange,
		Date:            day(5),
		NewInstrumentID: instNEW,
	}, testUser)
	require.NoError(t, err)

	_, err = env.svc.Process(env.ctx, action.ActionID, testUser)
	require.NoError(t, err)

	oldLots, err := env.lotRepo.OpenLotsByInstrument(env.ctx, instACME)
	require.NoError(t, err)
	assert.Empty(t, oldLots)

	newLots, err := env.lotRepo.OpenLotsByInstrument(env.ctx, instNEW)
	require.NoError(t, err)
	require.Len(t, newLots, 1)
	assert.Equal(t, "lot-1", newLots[0].LotID)
	assert.True(t, newLots[0].QtyRemaining.Equal(decimal.NewFromInt(10)))
	assert.True(t, newLots[0].CostTotal.Equal(decimal.NewFromInt(1000)))

	require.Len(t, env.lotRepo.adjustments, 1)
	assert.Equal(t, domain.AdjustRekey, env.lotRepo.adjustments[0].Kind)
}

func TestCreateMergerRejectsRatiosNotSummingToOne(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())

	_, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME,
		Type:         domain.Merger,
		Date:         day(5),
		Allocations: []dto.ActionAllocationRequest{
			{InstrumentID: instSpinA, Ratio: decimal.RequireFromString("0.5")},
			{InstrumentID: instSpinB, Ratio: decimal.RequireFromString("0.4")},
		},
	}, testUser)
	require.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestProcessSpinoff(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 10, 1000)

	action, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME,
		Type:         domain.Spinoff,
		Date:         day(5),
		Allocations: []dto.ActionAllocationRequest{
			{InstrumentID: instSpinA, Ratio: decimal.RequireFromString("0.8")},
			{InstrumentID: instSpinB, Ratio: decimal.RequireFromString("0.2")},
		},
	}, testUser)
	require.NoError(t, err)

	result, err := env.svc.Process(env.ctx, action.ActionID, testUser)
	require.NoError(t, err)
	assert.Equal(t, 1, result.LotsAdjusted)
	assert.Equal(t, 2, result.LotsCreated)

	original := env.lotRepo.lots["lot-1"]
	assert.True(t, original.Closed)
	assert.True(t, original.QtyRemaining.IsZero())

	lotsA, err := env.lotRepo.OpenLotsByInstrument(env.ctx, instSpinA)
	require.NoError(t, err)
	require.Len(t, lotsA, 1)
	assert.True(t, lotsA[0].QtyRemaining.Equal(decimal.NewFromInt(8)))
	assert.True(t, lotsA[0].CostTotal.Equal(decimal.NewFromInt(800)))
	// New lots inherit the original open date for FIFO ordering.
	assert.True(t, lotsA[0].OpenDate.Equal(day(1)))

	lotsB, err := env.lotRepo.OpenLotsByInstrument(env.ctx, instSpinB)
	require.NoError(t, err)
	require.Len(t, lotsB, 1)
	assert.True(t, lotsB[0].QtyRemaining.Equal(decimal.NewFromInt(2)))
	assert.True(t, lotsB[0].CostTotal.Equal(decimal.NewFromInt(200)))
}

func TestUpdateProcessedActionFails(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 10, 1000)

	action, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME,
		Type:         domain.Split,
		Date:         day(5),
		Ratio:        decimal.NewFromInt(2),
	}, testUser)
	require.NoError(t, err)

	_, err = env.svc.Process(env.ctx, action.ActionID, testUser)
	require.NoError(t, err)

	ratio := decimal.NewFromInt(3)
	_, err = env.svc.UpdateAction(env.ctx, action.ActionID, dto.UpdateCorporateActionRequest{Ratio: &ratio}, testUser)
	require.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)

	err = env.svc.DeleteAction(env.ctx, action.ActionID)
	require.ErrorIs(t, err, apperrors.ErrAlreadyProcessed)
}

func TestProcessPendingAppliesInDateOrder(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 10, 1000)

	first, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME, Type: domain.Split, Date: day(2), Ratio: decimal.NewFromInt(2),
	}, testUser)
	require.NoError(t, err)
	second, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME, Type: domain.Split, Date: day(4), Ratio: decimal.NewFromInt(3),
	}, testUser)
	require.NoError(t, err)

	results, err := env.svc.ProcessPending(env.ctx, day(10), testUser)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, first.ActionID, results[0].ActionID)
	assert.Equal(t, second.ActionID, results[1].ActionID)

	lot := env.lotRepo.lots["lot-1"]
	assert.True(t, lot.QtyRemaining.Equal(decimal.NewFromInt(60)), "quantity %s", lot.QtyRemaining)
}

func TestProcessPendingStopsAtFirstFailure(t *testing.T) {
	// No dividend accounts configured, so the cash dividend cannot process.
	env := newActionEnv(t, services.DividendAccounts{})
	env.seedHolding("lot-1", instACME, day(1), 1, 10, 1000)

	_, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME, Type: domain.CashDividend, Date: day(2), CashPerShare: decimal.NewFromInt(1),
	}, testUser)
	require.NoError(t, err)
	split, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME, Type: domain.Split, Date: day(4), Ratio: decimal.NewFromInt(2),
	}, testUser)
	require.NoError(t, err)

	results, err := env.svc.ProcessPending(env.ctx, day(10), testUser)
	require.ErrorIs(t, err, apperrors.ErrValidation)
	assert.Empty(t, results)

	// The later split must not have been applied out of order.
	found, err := env.svc.GetAction(env.ctx, split.ActionID)
	require.NoError(t, err)
	assert.False(t, found.Processed)
	lot := env.lotRepo.lots["lot-1"]
	assert.True(t, lot.QtyRemaining.Equal(decimal.NewFromInt(10)))
}

func TestProcessPendingIgnoresActionsAfterCutoff(t *testing.T) {
	env := newActionEnv(t, defaultDividendAccounts())
	env.seedHolding("lot-1", instACME, day(1), 1, 10, 1000)

	_, err := env.svc.CreateAction(env.ctx, dto.CreateCorporateActionRequest{
		InstrumentID: instACME, Type: domain.Split, Date: day(8), Ratio: decimal.NewFromInt(2),
	}, testUser)
	require.NoError(t, err)

	results, err := env.svc.ProcessPending(env.ctx, day(5), testUser)
	require.NoError(t, err)
	assert.Empty(t, results)
}
