package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

type accountService struct {
	accountRepo portsrepo.AccountRepositoryFacade
}

// NewAccountService creates a new account service.
func NewAccountService(accountRepo portsrepo.AccountRepositoryFacade) portssvc.AccountSvcFacade {
	return &accountService{accountRepo: accountRepo}
}

var _ portssvc.AccountSvcFacade = (*accountService)(nil)

// CreateAccount registers a chart-of-accounts entry.
func (s *accountService) CreateAccount(ctx context.Context, req dto.CreateAccountRequest, creatorUserID string) (*domain.Account, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	now := time.Now().UTC()
	account := &domain.Account{
		AccountID:    uuid.NewString(),
		Name:         req.Name,
		AccountType:  req.AccountType,
		CurrencyCode: req.CurrencyCode,
		Description:  req.Description,
		IsActive:     true,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}

	if err := s.accountRepo.SaveAccount(ctx, *account); err != nil {
		return nil, fmt.Errorf("failed to save account: %w", err)
	}

	logger.Info("account created",
		slog.String("account_id", account.AccountID),
		slog.String("account_type", string(account.AccountType)))
	return account, nil
}

func (s *accountService) GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.accountRepo.FindAccountByID(ctx, accountID)
}

func (s *accountService) GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	return s.accountRepo.FindAccountsByIDs(ctx, accountIDs)
}

func (s *accountService) ListAccounts(ctx context.Context, limit int, offset int) ([]domain.Account, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.accountRepo.ListAccounts(ctx, limit, offset)
}

// UpdateAccount updates mutable account fields. The account type is frozen
// once any posted line references the account, because historical
// normal-balance semantics depend on it.
func (s *accountService) UpdateAccount(ctx context.Context, accountID string, req dto.UpdateAccountRequest, userID string) (*domain.Account, error) {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}

	if req.AccountType != nil && *req.AccountType != account.AccountType {
		hasPosted, err := s.accountRepo.HasPostedLines(ctx, accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to check posted lines for account %s: %w", accountID, err)
		}
		if hasPosted {
			return nil, fmt.Errorf("%w: account %s has posted lines, its type cannot change", apperrors.ErrConflict, accountID)
		}
		account.AccountType = *req.AccountType
	}
	if req.Name != nil {
		account.Name = *req.Name
	}
	if req.Description != nil {
		account.Description = *req.Description
	}
	account.LastUpdatedAt = time.Now().UTC()
	account.LastUpdatedBy = userID

	if err := s.accountRepo.UpdateAccount(ctx, *account); err != nil {
		return nil, fmt.Errorf("failed to update account %s: %w", accountID, err)
	}
	return account, nil
}

// DeactivateAccount soft-deletes an account. Its history remains queryable;
// new lines referencing it are rejected.
func (s *accountService) DeactivateAccount(ctx context.Context, accountID string, userID string) error {
	account, err := s.accountRepo.FindAccountByID(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.IsActive {
		return nil
	}
	account.IsActive = false
	account.LastUpdatedAt = time.Now().UTC()
	account.LastUpdatedBy = userID
	return s.accountRepo.UpdateAccount(ctx, *account)
}
