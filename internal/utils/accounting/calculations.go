package accounting

import (
	"fmt"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	"github.com/shopspring/decimal"
)

// CalculateSignedAmount applies the correct sign to a line amount based on
// account type and line side. Used by services and repositories so running
// balances follow one convention.
func CalculateSignedAmount(line domain.Line, accountType domain.AccountType) (decimal.Decimal, error) {
	signedAmount := line.Amount
	isDebit := line.Side == domain.Debit

	// DEBIT to ASSET/EXPENSE -> Positive (+)
	// CREDIT to ASSET/EXPENSE -> Negative (-)
	// DEBIT to LIABILITY/EQUITY/INCOME -> Negative (-)
	// CREDIT to LIABILITY/EQUITY/INCOME -> Positive (+)
	switch accountType {
	case domain.Asset, domain.Expense:
		if !isDebit {
			signedAmount = signedAmount.Neg()
		}
	case domain.Liability, domain.Equity, domain.Income:
		if isDebit {
			signedAmount = signedAmount.Neg()
		}
	default:
		return decimal.Zero, fmt.Errorf("unknown account type '%s' encountered for account ID %s", accountType, line.AccountID)
	}
	return signedAmount, nil
}

// AllocateProRata splits total across weights, assigning any remainder from
// division to the last slice so the parts always sum exactly to total.
func AllocateProRata(total decimal.Decimal, weights []decimal.Decimal, places int32) []decimal.Decimal {
	parts := make([]decimal.Decimal, len(weights))
	if len(weights) == 0 {
		return parts
	}
	weightSum := decimal.Zero
	for _, w := range weights {
		weightSum = weightSum.Add(w)
	}
	if weightSum.IsZero() {
		parts[len(parts)-1] = total
		return parts
	}
	allocated := decimal.Zero
	for i, w := range weights {
		if i == len(weights)-1 {
			parts[i] = total.Sub(allocated)
			break
		}
		parts[i] = total.Mul(w).Div(weightSum).Round(places)
		allocated = allocated.Add(parts[i])
	}
	return parts
}
