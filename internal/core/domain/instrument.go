package domain

// InstrumentType categorizes what kind of asset an instrument is.
type InstrumentType string

const (
	EquityInstrument InstrumentType = "EQUITY"
	ETFInstrument    InstrumentType = "ETF"
	BondInstrument   InstrumentType = "BOND"
	CashInstrument   InstrumentType = "CASH"
	CryptoInstrument InstrumentType = "CRYPTO"
)

// CostBasisMethod selects how the lot engine charges cost when quantity is
// closed.
type CostBasisMethod string

const (
	// FIFO consumes lots strictly in open-date order at each lot's own cost.
	FIFO CostBasisMethod = "FIFO"
	// Average decrements lots in the same FIFO order but charges every slice
	// the weighted-average cost of the whole position.
	Average CostBasisMethod = "AVERAGE"
)

// Instrument is a tradeable asset whose holdings the lot engine tracks.
type Instrument struct {
	InstrumentID   string         `json:"instrumentID"` // Primary Key (UUID)
	Symbol         string         `json:"symbol"`       // Ticker, unique among active instruments
	Name           string         `json:"name"`
	InstrumentType InstrumentType `json:"instrumentType"`
	CurrencyCode   string         `json:"currencyCode"` // Currency the instrument trades in
	// CostBasisMethod is fixed per instrument; changing it would make
	// previously recorded consumptions unreproducible.
	CostBasisMethod CostBasisMethod `json:"costBasisMethod"`
	IsActive        bool            `json:"isActive"`
	AuditFields
}
