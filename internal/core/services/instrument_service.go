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

type instrumentService struct {
	instrumentRepo portsrepo.InstrumentRepositoryFacade
	priceRepo      portsrepo.PriceRepositoryFacade
	defaultMethod  domain.CostBasisMethod
}

// NewInstrumentService creates a new instrument service. defaultMethod is
// applied to instruments created without an explicit cost basis method.
func NewInstrumentService(
	instrumentRepo portsrepo.InstrumentRepositoryFacade,
	priceRepo portsrepo.PriceRepositoryFacade,
	defaultMethod domain.CostBasisMethod,
) portssvc.InstrumentSvcFacade {
	if defaultMethod == "" {
		defaultMethod = domain.FIFO
	}
	return &instrumentService{
		instrumentRepo: instrumentRepo,
		priceRepo:      priceRepo,
		defaultMethod:  defaultMethod,
	}
}

var _ portssvc.InstrumentSvcFacade = (*instrumentService)(nil)

// CreateInstrument registers a tradeable instrument. Symbols must be unique
// among active instruments.
func (s *instrumentService) CreateInstrument(ctx context.Context, req dto.CreateInstrumentRequest, creatorUserID string) (*domain.Instrument, error) {
	logger := middleware.GetLoggerFromCtx(ctx)

	existing, err := s.instrumentRepo.FindInstrumentBySymbol(ctx, req.Symbol)
	if err == nil && existing != nil && existing.IsActive {
		return nil, fmt.Errorf("%w: active instrument with symbol %s", apperrors.ErrDuplicate, req.Symbol)
	}

	method := req.CostBasisMethod
	if method == "" {
		method = s.defaultMethod
	}

	now := time.Now().UTC()
	instrument := &domain.Instrument{
		InstrumentID:    uuid.NewString(),
		Symbol:          req.Symbol,
		Name:            req.Name,
		InstrumentType:  req.InstrumentType,
		CurrencyCode:    req.CurrencyCode,
		CostBasisMethod: method,
		IsActive:        true,
		AuditFields: domain.AuditFields{
			CreatedAt:     now,
			CreatedBy:     creatorUserID,
			LastUpdatedAt: now,
			LastUpdatedBy: creatorUserID,
		},
	}

	if err := s.instrumentRepo.SaveInstrument(ctx, *instrument); err != nil {
		return nil, fmt.Errorf("failed to save instrument: %w", err)
	}

	logger.Info("instrument created",
		slog.String("instrument_id", instrument.InstrumentID),
		slog.String("symbol", instrument.Symbol),
		slog.String("cost_basis_method", string(method)))
	return instrument, nil
}

func (s *instrumentService) GetInstrumentByID(ctx context.Context, instrumentID string) (*domain.Instrument, error) {
	return s.instrumentRepo.FindInstrumentByID(ctx, instrumentID)
}

func (s *instrumentService) GetInstrumentsByIDs(ctx context.Context, instrumentIDs []string) (map[string]domain.Instrument, error) {
	return s.instrumentRepo.FindInstrumentsByIDs(ctx, instrumentIDs)
}

func (s *instrumentService) GetInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	return s.instrumentRepo.FindInstrumentBySymbol(ctx, symbol)
}

func (s *instrumentService) ListInstruments(ctx context.Context, limit int, offset int) ([]domain.Instrument, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if offset < 0 {
		offset = 0
	}
	return s.instrumentRepo.ListInstruments(ctx, limit, offset)
}

// UpdateInstrument updates mutable instrument fields. The cost basis method
// is frozen once set; changing it would make recorded consumptions
// unreproducible.
func (s *instrumentService) UpdateInstrument(ctx context.Context, instrumentID string, req dto.UpdateInstrumentRequest, userID string) (*domain.Instrument, error) {
	instrument, err := s.instrumentRepo.FindInstrumentByID(ctx, instrumentID)
	if err != nil {
		return nil, err
	}

	if req.CostBasisMethod != nil && *req.CostBasisMethod != instrument.CostBasisMethod {
		return nil, fmt.Errorf("%w: cost basis method of instrument %s cannot change", apperrors.ErrConflict, instrumentID)
	}
	if req.Symbol != nil {
		instrument.Symbol = *req.Symbol
	}
	if req.Name != nil {
		instrument.Name = *req.Name
	}
	instrument.LastUpdatedAt = time.Now().UTC()
	instrument.LastUpdatedBy = userID

	if err := s.instrumentRepo.UpdateInstrument(ctx, *instrument); err != nil {
		return nil, fmt.Errorf("failed to update instrument %s: %w", instrumentID, err)
	}
	return instrument, nil
}

// RecordPrice stores an externally sourced closing price.
func (s *instrumentService) RecordPrice(ctx context.Context, instrumentID string, req dto.RecordPriceRequest) error {
	if !req.Close.IsPositive() {
		return fmt.Errorf("%w: price must be positive, got %s", apperrors.ErrValidation, req.Close)
	}
	if _, err := s.instrumentRepo.FindInstrumentByID(ctx, instrumentID); err != nil {
		return err
	}
	return s.priceRepo.SavePrice(ctx, domain.Price{
		InstrumentID: instrumentID,
		Date:         req.Date,
		Close:        req.Close,
	})
}

// LatestPrice returns the most recent stored price on or before asOf.
func (s *instrumentService) LatestPrice(ctx context.Context, instrumentID string, asOf time.Time) (*domain.Price, error) {
	return s.priceRepo.LatestPrice(ctx, instrumentID, asOf)
}
