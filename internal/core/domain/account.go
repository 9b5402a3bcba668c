package domain

// AccountType defines the fundamental accounting type of an account.
type AccountType string

const (
	Asset     AccountType = "ASSET"
	Liability AccountType = "LIABILITY"
	Equity    AccountType = "EQUITY"
	Income    AccountType = "INCOME"
	Expense   AccountType = "EXPENSE"
)

// Account represents a financial account within the core domain.
// The account type is immutable once any posted line references the account,
// because historical normal-balance semantics depend on it.
type Account struct {
	AccountID    string      `json:"accountID"`    // Primary Key (UUID)
	Name         string      `json:"name"`         // User-defined name
	AccountType  AccountType `json:"accountType"`  // ASSET, LIABILITY, etc.
	CurrencyCode string      `json:"currencyCode"` // Currency of all line amounts on this account
	Description  string      `json:"description"`  // Nullable user description
	IsActive     bool        `json:"isActive"`     // Soft delete or status flag
	AuditFields
}
