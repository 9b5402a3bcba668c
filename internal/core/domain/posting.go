package domain

// LotEffects is the complete set of lot mutations produced while posting a
// transaction. The journal repository applies it together with the status
// change in one commit, so no reader ever observes a transaction as POSTED
// while its lot effects are only partially applied.
type LotEffects struct {
	Opened       []Lot
	Updated      []Lot
	Consumptions []LotConsumption
}

// IsEmpty reports whether the posting touches no lots.
func (e LotEffects) IsEmpty() bool {
	return len(e.Opened) == 0 && len(e.Updated) == 0 && len(e.Consumptions) == 0
}

// UnpostEffects is the exact inverse of a posting's lot effects,
// reconstructed from the recorded consumption ledger.
type UnpostEffects struct {
	// DeletedLotIDs are lots the posting opened; they are removed.
	DeletedLotIDs []string
	// Restored are lots the posting consumed, with quantities put back.
	Restored []Lot
	// DeletedConsumptionIDs are the consumption records being reversed.
	DeletedConsumptionIDs []string
}

// ActionEffects is the write-set of processing a corporate action: lot
// mutations, audit adjustments, and the generated transactions, committed
// as one unit with the processed flag.
type ActionEffects struct {
	Action       CorporateAction
	UpdatedLots  []Lot
	CreatedLots  []Lot
	Adjustments  []LotAdjustment
	Transactions []Transaction
}
