package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portssvc "github.com/quantfolio/portfolio_accountant/internal/core/ports/services"
	"github.com/quantfolio/portfolio_accountant/internal/dto"
	"github.com/quantfolio/portfolio_accountant/internal/middleware"
)

// --- Mock AccountService ---

type MockAccountService struct {
	mock.Mock
}

func (m *MockAccountService) CreateAccount(ctx context.Context, req dto.CreateAccountRequest, creatorUserID string) (*domain.Account, error) {
	args := m.Called(ctx, req, creatorUserID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountService) GetAccountByID(ctx context.Context, accountID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountService) GetAccountsByIDs(ctx context.Context, accountIDs []string) (map[string]domain.Account, error) {
	args := m.Called(ctx, accountIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]domain.Account), args.Error(1)
}

func (m *MockAccountService) ListAccounts(ctx context.Context, limit int, offset int) ([]domain.Account, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Account), args.Error(1)
}

func (m *MockAccountService) UpdateAccount(ctx context.Context, accountID string, req dto.UpdateAccountRequest, userID string) (*domain.Account, error) {
	args := m.Called(ctx, accountID, req, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Account), args.Error(1)
}

func (m *MockAccountService) DeactivateAccount(ctx context.Context, accountID string, userID string) error {
	args := m.Called(ctx, accountID, userID)
	return args.Error(0)
}

var _ portssvc.AccountSvcFacade = (*MockAccountService)(nil)

// --- Test Suite ---

type AccountHandlerTestSuite struct {
	suite.Suite
	router      *gin.Engine
	mockService *MockAccountService
}

func (suite *AccountHandlerTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)
	suite.router = gin.New()
	suite.mockService = new(MockAccountService)

	v1 := suite.router.Group("/api/v1", middleware.ActorMiddleware())
	registerAccountRoutes(v1, suite.mockService)
}

func (suite *AccountHandlerTestSuite) TestCreateAccount() {
	account := &domain.Account{
		AccountID:    "acct-1",
		Name:         "Brokerage Cash",
		AccountType:  domain.Asset,
		CurrencyCode: "USD",
		IsActive:     true,
		AuditFields:  domain.AuditFields{CreatedAt: time.Now().UTC()},
	}
	suite.mockService.On("CreateAccount",
		mock.Anything,
		mock.MatchedBy(func(req dto.CreateAccountRequest) bool {
			return req.Name == "Brokerage Cash" && req.AccountType == domain.Asset
		}),
		"alice",
	).Return(account, nil).Once()

	body := `{"name":"Brokerage Cash","accountType":"ASSET","currencyCode":"USD"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-ID", "alice")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusCreated, w.Code)
	var resp dto.AccountResponse
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Equal("acct-1", resp.AccountID)
	suite.Equal("ASSET", resp.AccountType)
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *AccountHandlerTestSuite) TestCreateAccountRejectsBadType() {
	body := `{"name":"Bad","accountType":"SAVINGS","currencyCode":"USD"}`
	req, _ := http.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusBadRequest, w.Code)
	suite.mockService.AssertNotCalled(suite.T(), "CreateAccount")
}

func (suite *AccountHandlerTestSuite) TestGetAccountNotFound() {
	suite.mockService.On("GetAccountByID", mock.Anything, "acct-missing").
		Return(nil, apperrors.ErrNotFound).Once()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/accounts/acct-missing", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusNotFound, w.Code)
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *AccountHandlerTestSuite) TestListAccountsPassesPaging() {
	accounts := []domain.Account{
		{AccountID: "acct-1", Name: "Cash", AccountType: domain.Asset, CurrencyCode: "USD", IsActive: true},
	}
	suite.mockService.On("ListAccounts", mock.Anything, 10, 5).Return(accounts, nil).Once()

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/accounts?limit=10&offset=5", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusOK, w.Code)
	var resp struct {
		Accounts []dto.AccountResponse `json:"accounts"`
	}
	suite.NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	suite.Len(resp.Accounts, 1)
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *AccountHandlerTestSuite) TestUpdateAccountConflict() {
	suite.mockService.On("UpdateAccount", mock.Anything, "acct-1", mock.Anything, "system").
		Return(nil, apperrors.ErrConflict).Once()

	body := `{"accountType":"LIABILITY"}`
	req, _ := http.NewRequest(http.MethodPut, "/api/v1/accounts/acct-1", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusConflict, w.Code)
	suite.mockService.AssertExpectations(suite.T())
}

func (suite *AccountHandlerTestSuite) TestDeactivateAccount() {
	suite.mockService.On("DeactivateAccount", mock.Anything, "acct-1", "system").
		Return(nil).Once()

	req, _ := http.NewRequest(http.MethodDelete, "/api/v1/accounts/acct-1", nil)
	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	suite.Equal(http.StatusNoContent, w.Code)
	suite.mockService.AssertExpectations(suite.T())
}

func TestAccountHandler(t *testing.T) {
	suite.Run(t, new(AccountHandlerTestSuite))
}
