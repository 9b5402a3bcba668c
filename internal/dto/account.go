package dto

import (
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
)

// CreateAccountRequest creates a chart-of-accounts entry.
type CreateAccountRequest struct {
	Name         string             `json:"name" binding:"required"`
	AccountType  domain.AccountType `json:"accountType" binding:"required,oneof=ASSET LIABILITY EQUITY INCOME EXPENSE"`
	CurrencyCode string             `json:"currencyCode" binding:"required,len=3"`
	Description  string             `json:"description"`
}

// UpdateAccountRequest updates mutable account fields. AccountType changes
// are rejected once posted lines reference the account.
type UpdateAccountRequest struct {
	Name        *string             `json:"name"`
	AccountType *domain.AccountType `json:"accountType"`
	Description *string             `json:"description"`
}

// AccountResponse is the API shape of an account.
type AccountResponse struct {
	AccountID    string    `json:"accountID"`
	Name         string    `json:"name"`
	AccountType  string    `json:"accountType"`
	CurrencyCode string    `json:"currencyCode"`
	Description  string    `json:"description,omitempty"`
	IsActive     bool      `json:"isActive"`
	CreatedAt    time.Time `json:"createdAt"`
}

// ToAccountResponse converts a domain.Account to its API shape.
func ToAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		AccountID:    a.AccountID,
		Name:         a.Name,
		AccountType:  string(a.AccountType),
		CurrencyCode: a.CurrencyCode,
		Description:  a.Description,
		IsActive:     a.IsActive,
		CreatedAt:    a.CreatedAt,
	}
}
