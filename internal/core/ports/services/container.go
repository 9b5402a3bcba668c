package services

// ServiceContainer bundles every service facade for handler wiring.
type ServiceContainer struct {
	Account         AccountSvcFacade
	Instrument      InstrumentSvcFacade
	Journal         JournalSvcFacade
	Lot             LotSvcFacade
	Reconciliation  ReconciliationSvcFacade
	CorporateAction CorporateActionSvcFacade
	Valuation       ValuationSvcFacade
}
