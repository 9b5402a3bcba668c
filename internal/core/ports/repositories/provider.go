package repositories

// RepositoryProvider bundles every repository facade for service wiring.
type RepositoryProvider struct {
	AccountRepo         AccountRepositoryFacade
	InstrumentRepo      InstrumentRepositoryFacade
	PriceRepo           PriceRepositoryFacade
	JournalRepo         JournalRepositoryFacade
	LotRepo             LotRepositoryFacade
	CorporateActionRepo CorporateActionRepositoryFacade
}
