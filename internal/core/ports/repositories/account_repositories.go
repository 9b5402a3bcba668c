package repositories

import (
	"context"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
)

// AccountRepositoryFacade defines persistence operations for accounts.
type AccountRepositoryFacade interface {
	SaveAccount(ctx context.Context, account domain.Account) error
	FindAccountByID(ctx context.Context, accountID string) (*domain.Account, error)
	FindAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error)
	ListAccounts(ctx context.Context, limit int, offset int) ([]domain.Account, error)
	UpdateAccount(ctx context.Context, account domain.Account) error
	// HasPostedLines reports whether any posted line references the account.
	// Account type changes are rejected once this returns true.
	HasPostedLines(ctx context.Context, accountID string) (bool, error)
}
