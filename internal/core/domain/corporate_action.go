package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CorporateActionType categorizes instrument events that adjust holdings or
// cost basis without a market trade.
type CorporateActionType string

const (
	Split         CorporateActionType = "SPLIT"
	CashDividend  CorporateActionType = "CASH_DIVIDEND"
	StockDividend CorporateActionType = "STOCK_DIVIDEND"
	SymbolChange  CorporateActionType = "SYMBOL_CHANGE"
	Merger        CorporateActionType = "MERGER"
	Spinoff       CorporateActionType = "SPINOFF"
)

// ActionAllocation directs a fraction of each open lot to a target
// instrument during a MERGER or SPINOFF. Ratios across all allocations of an
// action must sum to exactly one so aggregate cost is preserved.
type ActionAllocation struct {
	InstrumentID string          `json:"instrumentID"`
	Ratio        decimal.Decimal `json:"ratio"`
}

// CorporateAction is created in draft (processed=false) and transitions to
// processed exactly once, atomically with its lot mutations and generated
// transaction. It is immutable thereafter.
type CorporateAction struct {
	ActionID     string              `json:"actionID"`     // Primary Key (UUID)
	InstrumentID string              `json:"instrumentID"` // FK -> Instrument
	Type         CorporateActionType `json:"type"`
	Date         time.Time           `json:"date"`
	// Ratio is required for SPLIT (new shares per old share) and
	// STOCK_DIVIDEND (additional shares per held share).
	Ratio decimal.Decimal `json:"ratio"`
	// CashPerShare is required for CASH_DIVIDEND.
	CashPerShare decimal.Decimal `json:"cashPerShare"`
	// NewInstrumentID is required for SYMBOL_CHANGE.
	NewInstrumentID string `json:"newInstrumentID"`
	// Allocations are required for MERGER and SPINOFF.
	Allocations []ActionAllocation `json:"allocations,omitempty"`
	Notes       string             `json:"notes"`
	Processed   bool               `json:"processed"`
	// ProcessedSeq is the posting sequence assigned when the action was
	// processed; zero while draft.
	ProcessedSeq int64 `json:"processedSeq"`
	// GeneratedTransactionIDs are the journal entries emitted by processing.
	GeneratedTransactionIDs []string `json:"generatedTransactionIDs,omitempty"`
	AuditFields
}

// LotAdjustmentKind identifies how a corporate action touched a lot.
type LotAdjustmentKind string

const (
	AdjustScale    LotAdjustmentKind = "SCALE"    // split / stock dividend quantity scaling
	AdjustRekey    LotAdjustmentKind = "REKEY"    // symbol change to a new instrument
	AdjustSplit    LotAdjustmentKind = "ALLOCATE" // merger / spinoff allocation
	AdjustCreate   LotAdjustmentKind = "CREATE"   // lot created by the action
	AdjustSnapshot LotAdjustmentKind = "SNAPSHOT" // cash dividend computed from the lot
)

// LotAdjustment records a corporate action's mutation of one lot, with
// enough before/after state to audit the change and to detect that later
// state depends on an earlier posting.
type LotAdjustment struct {
	AdjustmentID string            `json:"adjustmentID"` // Primary Key (UUID)
	LotID        string            `json:"lotID"`        // FK -> Lot
	ActionID     string            `json:"actionID"`     // FK -> CorporateAction
	Kind         LotAdjustmentKind `json:"kind"`

	QtyOpenedBefore    decimal.Decimal `json:"qtyOpenedBefore"`
	QtyOpenedAfter     decimal.Decimal `json:"qtyOpenedAfter"`
	QtyRemainingBefore decimal.Decimal `json:"qtyRemainingBefore"`
	QtyRemainingAfter  decimal.Decimal `json:"qtyRemainingAfter"`
	CostTotalBefore    decimal.Decimal `json:"costTotalBefore"`
	CostTotalAfter     decimal.Decimal `json:"costTotalAfter"`
	InstrumentBefore   string          `json:"instrumentBefore"`
	InstrumentAfter    string          `json:"instrumentAfter"`

	Seq       int64     `json:"seq"`
	CreatedAt time.Time `json:"createdAt"`
}

// ProcessingResult summarizes the effects of processing a corporate action.
type ProcessingResult struct {
	ActionID                string              `json:"actionID"`
	Type                    CorporateActionType `json:"type"`
	PositionsAffected       int                 `json:"positionsAffected"`
	LotsAdjusted            int                 `json:"lotsAdjusted"`
	LotsCreated             int                 `json:"lotsCreated"`
	GeneratedTransactionIDs []string            `json:"generatedTransactionIDs"`
	TotalCashPaid           decimal.Decimal     `json:"totalCashPaid"`
	ProcessedAt             time.Time           `json:"processedAt"`
}
