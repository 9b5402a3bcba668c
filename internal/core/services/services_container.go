package services

import (
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/platform/config"
	"github.com/quantfolio/portfolio_accountant/internal/utils/locking"
)

// NewServiceContainer wires every service with its dependencies. The journal
// and corporate action services share one keyed mutex so lot mutations for
// the same (instrument, account) pair never interleave, whichever operation
// drives them.
func NewServiceContainer(cfg *config.Config, repos portsrepo.RepositoryProvider) *portssvc.ServiceContainer {
	container := &portssvc.ServiceContainer{}
	locks := locking.NewKeyedMutex()

	container.Account = NewAccountService(repos.AccountRepo)
	container.Instrument = NewInstrumentService(
		repos.InstrumentRepo,
		repos.PriceRepo,
		domain.CostBasisMethod(cfg.DefaultCostBasisMethod),
	)
	container.Lot = NewLotService(repos.LotRepo)
	container.Journal = NewJournalService(
		repos.JournalRepo,
		repos.AccountRepo,
		repos.InstrumentRepo,
		container.Lot,
		locks,
		cfg.BaseCurrency,
	)
	container.CorporateAction = NewCorporateActionService(
		repos.CorporateActionRepo,
		repos.LotRepo,
		repos.InstrumentRepo,
		repos.JournalRepo,
		container.Journal,
		locks,
		DividendAccounts{
			CashAccountID:   cfg.DividendCashAccountID,
			IncomeAccountID: cfg.DividendIncomeAccountID,
		},
	)
	container.Reconciliation = NewReconciliationService(repos.LotRepo, repos.JournalRepo, repos.CorporateActionRepo)
	container.Valuation = NewValuationService(repos.LotRepo, repos.PriceRepo)

	return container
}
