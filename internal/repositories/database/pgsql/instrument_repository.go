package pgsql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
)

const instrumentColumns = `instrument_id, symbol, name, instrument_type, currency_code, cost_basis_method, is_active, created_at, created_by, last_updated_at, last_updated_by`

type PgxInstrumentRepository struct {
	pool *pgxpool.Pool
}

// newPgxInstrumentRepository creates a new repository for instrument data.
func newPgxInstrumentRepository(pool *pgxpool.Pool) portsrepo.InstrumentRepositoryFacade {
	return &PgxInstrumentRepository{pool: pool}
}

var _ portsrepo.InstrumentRepositoryFacade = (*PgxInstrumentRepository)(nil)

func scanInstrument(row pgx.Row) (domain.Instrument, error) {
	var i domain.Instrument
	err := row.Scan(
		&i.InstrumentID,
		&i.Symbol,
		&i.Name,
		&i.InstrumentType,
		&i.CurrencyCode,
		&i.CostBasisMethod,
		&i.IsActive,
		&i.CreatedAt,
		&i.CreatedBy,
		&i.LastUpdatedAt,
		&i.LastUpdatedBy,
	)
	return i, err
}

// SaveInstrument inserts a new instrument.
func (r *PgxInstrumentRepository) SaveInstrument(ctx context.Context, instrument domain.Instrument) error {
	query := `
		INSERT INTO instruments (` + instrumentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11);
	`
	_, err := r.pool.Exec(ctx, query,
		instrument.InstrumentID,
		instrument.Symbol,
		instrument.Name,
		instrument.InstrumentType,
		instrument.CurrencyCode,
		instrument.CostBasisMethod,
		instrument.IsActive,
		instrument.CreatedAt,
		instrument.CreatedBy,
		instrument.LastUpdatedAt,
		instrument.LastUpdatedBy,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("%w: instrument with symbol %s already exists", apperrors.ErrDuplicate, instrument.Symbol)
		}
		return fmt.Errorf("failed to save instrument %s: %w", instrument.InstrumentID, err)
	}
	return nil
}

// FindInstrumentByID retrieves an instrument by its ID.
func (r *PgxInstrumentRepository) FindInstrumentByID(ctx context.Context, instrumentID string) (*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE instrument_id = $1;`

	instrument, err := scanInstrument(r.pool.QueryRow(ctx, query, instrumentID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find instrument by ID %s: %w", instrumentID, err)
	}
	return &instrument, nil
}

// FindInstrumentsByIDs retrieves multiple instruments by their IDs.
func (r *PgxInstrumentRepository) FindInstrumentsByIDs(ctx context.Context, instrumentIDs []string) (map[string]domain.Instrument, error) {
	if len(instrumentIDs) == 0 {
		return map[string]domain.Instrument{}, nil
	}

	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE instrument_id = ANY($1);`

	rows, err := r.pool.Query(ctx, query, instrumentIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments by IDs: %w", err)
	}
	defer rows.Close()

	instrumentsMap := make(map[string]domain.Instrument)
	for rows.Next() {
		instrument, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument row during batch fetch: %w", err)
		}
		instrumentsMap[instrument.InstrumentID] = instrument
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instrument rows during batch fetch: %w", err)
	}
	return instrumentsMap, nil
}

// FindInstrumentBySymbol retrieves an active instrument by its symbol.
func (r *PgxInstrumentRepository) FindInstrumentBySymbol(ctx context.Context, symbol string) (*domain.Instrument, error) {
	query := `SELECT ` + instrumentColumns + ` FROM instruments WHERE symbol = $1 AND is_active = TRUE;`

	instrument, err := scanInstrument(r.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find instrument by symbol %s: %w", symbol, err)
	}
	return &instrument, nil
}

// ListInstruments retrieves a paginated list of active instruments.
func (r *PgxInstrumentRepository) ListInstruments(ctx context.Context, limit int, offset int) ([]domain.Instrument, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT ` + instrumentColumns + `
		FROM instruments
		WHERE is_active = TRUE
		ORDER BY symbol
		LIMIT $1 OFFSET $2;
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query instruments: %w", err)
	}
	defer rows.Close()

	instruments := []domain.Instrument{}
	for rows.Next() {
		instrument, err := scanInstrument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instrument row: %w", err)
		}
		instruments = append(instruments, instrument)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating instrument rows: %w", rows.Err())
	}
	return instruments, nil
}

// UpdateInstrument updates an existing instrument.
func (r *PgxInstrumentRepository) UpdateInstrument(ctx context.Context, instrument domain.Instrument) error {
	query := `
		UPDATE instruments
		SET symbol = $2, name = $3, is_active = $4, last_updated_at = $5, last_updated_by = $6
		WHERE instrument_id = $1;
	`
	cmdTag, err := r.pool.Exec(ctx, query,
		instrument.InstrumentID,
		instrument.Symbol,
		instrument.Name,
		instrument.IsActive,
		instrument.LastUpdatedAt,
		instrument.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to execute update instrument %s: %w", instrument.InstrumentID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

type PgxPriceRepository struct {
	pool *pgxpool.Pool
}

// newPgxPriceRepository creates a new repository for stored closing prices.
func newPgxPriceRepository(pool *pgxpool.Pool) portsrepo.PriceRepositoryFacade {
	return &PgxPriceRepository{pool: pool}
}

var _ portsrepo.PriceRepositoryFacade = (*PgxPriceRepository)(nil)

// SavePrice upserts the closing price for (instrument, date).
func (r *PgxPriceRepository) SavePrice(ctx context.Context, price domain.Price) error {
	query := `
		INSERT INTO prices (instrument_id, price_date, close_price)
		VALUES ($1, $2, $3)
		ON CONFLICT (instrument_id, price_date) DO UPDATE SET close_price = EXCLUDED.close_price;
	`
	_, err := r.pool.Exec(ctx, query, price.InstrumentID, price.Date, price.Close)
	if err != nil {
		return fmt.Errorf("failed to save price for instrument %s: %w", price.InstrumentID, err)
	}
	return nil
}

// LatestPrice returns the most recent price on or before asOf.
func (r *PgxPriceRepository) LatestPrice(ctx context.Context, instrumentID string, asOf time.Time) (*domain.Price, error) {
	query := `
		SELECT instrument_id, price_date, close_price
		FROM prices
		WHERE instrument_id = $1 AND price_date <= $2
		ORDER BY price_date DESC
		LIMIT 1;
	`
	var price domain.Price
	err := r.pool.QueryRow(ctx, query, instrumentID, asOf).Scan(&price.InstrumentID, &price.Date, &price.Close)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find latest price for instrument %s: %w", instrumentID, err)
	}
	return &price, nil
}
