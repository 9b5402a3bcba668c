package pgsql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
)

const lotColumns = `lot_id, instrument_id, account_id, open_date, qty_opened, qty_remaining, cost_per_unit, cost_total, method, closed, open_transaction_id, open_seq, created_at, created_by, last_updated_at, last_updated_by`

// fifoOrder sorts open lots the way the lot engine consumes them.
const fifoOrder = ` ORDER BY open_date, open_seq, lot_id`

type PgxLotRepository struct {
	pool *pgxpool.Pool
}

// newPgxLotRepository creates a new read-side repository for lot state. Lot
// writes go through the journal and corporate action repositories so they
// share the owning operation's commit.
func newPgxLotRepository(pool *pgxpool.Pool) portsrepo.LotRepositoryFacade {
	return &PgxLotRepository{pool: pool}
}

var _ portsrepo.LotRepositoryFacade = (*PgxLotRepository)(nil)

func scanLot(row pgx.Row) (domain.Lot, error) {
	var lot domain.Lot
	err := row.Scan(
		&lot.LotID, &lot.InstrumentID, &lot.AccountID, &lot.OpenDate,
		&lot.QtyOpened, &lot.QtyRemaining, &lot.CostPerUnit, &lot.CostTotal,
		&lot.Method, &lot.Closed, &lot.OpenTransactionID, &lot.OpenSeq,
		&lot.CreatedAt, &lot.CreatedBy, &lot.LastUpdatedAt, &lot.LastUpdatedBy,
	)
	return lot, err
}

func (r *PgxLotRepository) queryLots(ctx context.Context, query string, args ...any) ([]domain.Lot, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lots: %w", err)
	}
	defer rows.Close()

	lots := []domain.Lot{}
	for rows.Next() {
		lot, err := scanLot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lot row: %w", err)
		}
		lots = append(lots, lot)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating lot rows: %w", rows.Err())
	}
	return lots, nil
}

// FindLotByID retrieves a lot by its ID.
func (r *PgxLotRepository) FindLotByID(ctx context.Context, lotID string) (*domain.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE lot_id = $1;`

	lot, err := scanLot(r.pool.QueryRow(ctx, query, lotID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find lot by ID %s: %w", lotID, err)
	}
	return &lot, nil
}

// OpenLots returns open lots for one (instrument, account) pair in FIFO order.
func (r *PgxLotRepository) OpenLots(ctx context.Context, instrumentID string, accountID string) ([]domain.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE instrument_id = $1 AND account_id = $2 AND closed = FALSE` + fifoOrder + `;`
	return r.queryLots(ctx, query, instrumentID, accountID)
}

// OpenLotsByInstrument returns open lots across all accounts holding the
// instrument.
func (r *PgxLotRepository) OpenLotsByInstrument(ctx context.Context, instrumentID string) ([]domain.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE instrument_id = $1 AND closed = FALSE` + fifoOrder + `;`
	return r.queryLots(ctx, query, instrumentID)
}

// AllOpenLots returns every open lot, optionally filtered by account and
// instrument.
func (r *PgxLotRepository) AllOpenLots(ctx context.Context, accountID string, instrumentID string) ([]domain.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE closed = FALSE`
	args := []any{}
	argN := 1
	if accountID != "" {
		query += fmt.Sprintf(" AND account_id = $%d", argN)
		args = append(args, accountID)
		argN++
	}
	if instrumentID != "" {
		query += fmt.Sprintf(" AND instrument_id = $%d", argN)
		args = append(args, instrumentID)
		argN++
	}
	query += fifoOrder + `;`
	return r.queryLots(ctx, query, args...)
}

// LotsByOpenTransaction returns the lots a posting opened.
func (r *PgxLotRepository) LotsByOpenTransaction(ctx context.Context, transactionID string) ([]domain.Lot, error) {
	query := `SELECT ` + lotColumns + ` FROM lots WHERE open_transaction_id = $1` + fifoOrder + `;`
	return r.queryLots(ctx, query, transactionID)
}

const consumptionColumns = `consumption_id, lot_id, transaction_id, line_id, quantity, cost_amount, proceeds_amount, trade_date, seq, created_at`

func (r *PgxLotRepository) queryConsumptions(ctx context.Context, query string, args ...any) ([]domain.LotConsumption, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lot consumptions: %w", err)
	}
	defer rows.Close()

	consumptions := []domain.LotConsumption{}
	for rows.Next() {
		var c domain.LotConsumption
		err := rows.Scan(&c.ConsumptionID, &c.LotID, &c.TransactionID, &c.LineID,
			&c.Quantity, &c.CostAmount, &c.ProceedsAmount, &c.TradeDate, &c.Seq, &c.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan consumption row: %w", err)
		}
		consumptions = append(consumptions, c)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating consumption rows: %w", rows.Err())
	}
	return consumptions, nil
}

// ConsumptionsByTransaction returns the consumption records of one posting
// in entry order.
func (r *PgxLotRepository) ConsumptionsByTransaction(ctx context.Context, transactionID string) ([]domain.LotConsumption, error) {
	query := `SELECT ` + consumptionColumns + ` FROM lot_consumptions WHERE transaction_id = $1 ORDER BY created_at, consumption_id;`
	return r.queryConsumptions(ctx, query, transactionID)
}

// ConsumptionsByLotIDs returns every consumption touching the given lots.
func (r *PgxLotRepository) ConsumptionsByLotIDs(ctx context.Context, lotIDs []string) ([]domain.LotConsumption, error) {
	if len(lotIDs) == 0 {
		return []domain.LotConsumption{}, nil
	}
	query := `SELECT ` + consumptionColumns + ` FROM lot_consumptions WHERE lot_id = ANY($1) ORDER BY seq, consumption_id;`
	return r.queryConsumptions(ctx, query, lotIDs)
}

// ConsumptionsInRange returns consumptions filtered by the lot's account and
// instrument and by trade date or sequence range, for realized P&L reporting.
func (r *PgxLotRepository) ConsumptionsInRange(ctx context.Context, filter portsrepo.ConsumptionFilter) ([]domain.LotConsumption, error) {
	query := `
		SELECT c.consumption_id, c.lot_id, c.transaction_id, c.line_id, c.quantity, c.cost_amount, c.proceeds_amount, c.trade_date, c.seq, c.created_at
		FROM lot_consumptions c
		JOIN lots l ON l.lot_id = c.lot_id
		WHERE 1=1
	`
	args := []any{}
	argN := 1
	if filter.AccountID != "" {
		query += fmt.Sprintf(" AND l.account_id = $%d", argN)
		args = append(args, filter.AccountID)
		argN++
	}
	if filter.InstrumentID != "" {
		query += fmt.Sprintf(" AND l.instrument_id = $%d", argN)
		args = append(args, filter.InstrumentID)
		argN++
	}
	if filter.DateFrom != nil {
		query += fmt.Sprintf(" AND c.trade_date >= $%d", argN)
		args = append(args, *filter.DateFrom)
		argN++
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(" AND c.trade_date <= $%d", argN)
		args = append(args, *filter.DateTo)
		argN++
	}
	if filter.SeqFrom > 0 {
		query += fmt.Sprintf(" AND c.seq >= $%d", argN)
		args = append(args, filter.SeqFrom)
		argN++
	}
	if filter.SeqTo > 0 {
		query += fmt.Sprintf(" AND c.seq <= $%d", argN)
		args = append(args, filter.SeqTo)
		argN++
	}
	query += ` ORDER BY c.seq, c.consumption_id;`
	return r.queryConsumptions(ctx, query, args...)
}

// AdjustmentsByLotIDs returns every corporate action adjustment touching the
// given lots.
func (r *PgxLotRepository) AdjustmentsByLotIDs(ctx context.Context, lotIDs []string) ([]domain.LotAdjustment, error) {
	if len(lotIDs) == 0 {
		return []domain.LotAdjustment{}, nil
	}
	query := `
		SELECT adjustment_id, lot_id, action_id, kind,
			qty_opened_before, qty_opened_after, qty_remaining_before, qty_remaining_after,
			cost_total_before, cost_total_after, instrument_before, instrument_after,
			seq, created_at
		FROM lot_adjustments
		WHERE lot_id = ANY($1)
		ORDER BY seq, adjustment_id;
	`
	rows, err := r.pool.Query(ctx, query, lotIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query lot adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := []domain.LotAdjustment{}
	for rows.Next() {
		var a domain.LotAdjustment
		err := rows.Scan(&a.AdjustmentID, &a.LotID, &a.ActionID, &a.Kind,
			&a.QtyOpenedBefore, &a.QtyOpenedAfter, &a.QtyRemainingBefore, &a.QtyRemainingAfter,
			&a.CostTotalBefore, &a.CostTotalAfter, &a.InstrumentBefore, &a.InstrumentAfter,
			&a.Seq, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan adjustment row: %w", err)
		}
		adjustments = append(adjustments, a)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating adjustment rows: %w", rows.Err())
	}
	return adjustments, nil
}

// insertLotTx inserts a lot inside tx. Shared by the journal and corporate
// action write-sets.
func insertLotTx(ctx context.Context, tx pgx.Tx, lot domain.Lot) error {
	query := `
		INSERT INTO lots (` + lotColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`
	_, err := tx.Exec(ctx, query,
		lot.LotID, lot.InstrumentID, lot.AccountID, lot.OpenDate,
		lot.QtyOpened, lot.QtyRemaining, lot.CostPerUnit, lot.CostTotal,
		lot.Method, lot.Closed, lot.OpenTransactionID, lot.OpenSeq,
		lot.CreatedAt, lot.CreatedBy, lot.LastUpdatedAt, lot.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to insert lot %s: %w", lot.LotID, err)
	}
	return nil
}

// updateLotTx rewrites a lot's mutable state inside tx.
func updateLotTx(ctx context.Context, tx pgx.Tx, lot domain.Lot) error {
	query := `
		UPDATE lots
		SET instrument_id = $2, qty_opened = $3, qty_remaining = $4, cost_per_unit = $5, cost_total = $6,
			closed = $7, last_updated_at = $8, last_updated_by = $9
		WHERE lot_id = $1;
	`
	cmdTag, err := tx.Exec(ctx, query,
		lot.LotID, lot.InstrumentID, lot.QtyOpened, lot.QtyRemaining, lot.CostPerUnit, lot.CostTotal,
		lot.Closed, lot.LastUpdatedAt, lot.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update lot %s: %w", lot.LotID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: lot %s", apperrors.ErrNotFound, lot.LotID)
	}
	return nil
}

// insertConsumptionTx inserts a consumption record inside tx.
func insertConsumptionTx(ctx context.Context, tx pgx.Tx, c domain.LotConsumption) error {
	query := `
		INSERT INTO lot_consumptions (` + consumptionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := tx.Exec(ctx, query,
		c.ConsumptionID, c.LotID, c.TransactionID, c.LineID,
		c.Quantity, c.CostAmount, c.ProceedsAmount, c.TradeDate, c.Seq, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert consumption %s: %w", c.ConsumptionID, err)
	}
	return nil
}

// insertAdjustmentTx inserts a corporate action adjustment record inside tx.
func insertAdjustmentTx(ctx context.Context, tx pgx.Tx, a domain.LotAdjustment) error {
	query := `
		INSERT INTO lot_adjustments (adjustment_id, lot_id, action_id, kind,
			qty_opened_before, qty_opened_after, qty_remaining_before, qty_remaining_after,
			cost_total_before, cost_total_after, instrument_before, instrument_after,
			seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14);
	`
	_, err := tx.Exec(ctx, query,
		a.AdjustmentID, a.LotID, a.ActionID, a.Kind,
		a.QtyOpenedBefore, a.QtyOpenedAfter, a.QtyRemainingBefore, a.QtyRemainingAfter,
		a.CostTotalBefore, a.CostTotalAfter, a.InstrumentBefore, a.InstrumentAfter,
		a.Seq, a.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert adjustment %s: %w", a.AdjustmentID, err)
	}
	return nil
}
