package pgsql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
	"github.com/quantfolio/portfolio_accountant/internal/utils/pagination"
)

type PgxJournalRepository struct {
	BaseRepository
}

// newPgxJournalRepository creates a new repository for transaction data.
func newPgxJournalRepository(pool *pgxpool.Pool) portsrepo.JournalRepositoryFacade {
	return &PgxJournalRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.JournalRepositoryFacade = (*PgxJournalRepository)(nil)

// SaveDraft inserts a transaction with its lines in one commit.
func (r *PgxJournalRepository) SaveDraft(ctx context.Context, txn domain.Transaction) error {
	return r.runInTx(ctx, func(tx pgx.Tx) error {
		return insertTransactionTx(ctx, tx, txn)
	})
}

// UpdateDraft replaces a draft transaction's fields and lines. Posted
// transactions never reach here; the guard still protects against races.
func (r *PgxJournalRepository) UpdateDraft(ctx context.Context, txn domain.Transaction) error {
	return r.runInTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE transactions
			SET txn_date = $2, memo = $3, txn_type = $4, last_updated_at = $5, last_updated_by = $6
			WHERE transaction_id = $1 AND status = 'DRAFT';
		`
		cmdTag, err := tx.Exec(ctx, query,
			txn.TransactionID, txn.Date, txn.Memo, txn.Type, txn.LastUpdatedAt, txn.LastUpdatedBy)
		if err != nil {
			return fmt.Errorf("failed to update draft transaction %s: %w", txn.TransactionID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: draft transaction %s", apperrors.ErrNotFound, txn.TransactionID)
		}

		if _, err := tx.Exec(ctx, `DELETE FROM transaction_lines WHERE transaction_id = $1;`, txn.TransactionID); err != nil {
			return fmt.Errorf("failed to delete lines of transaction %s: %w", txn.TransactionID, err)
		}
		return insertLinesTx(ctx, tx, txn)
	})
}

// DeleteDraft removes a draft transaction and its lines.
func (r *PgxJournalRepository) DeleteDraft(ctx context.Context, transactionID string) error {
	return r.runInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM transaction_lines WHERE transaction_id = $1;`, transactionID); err != nil {
			return fmt.Errorf("failed to delete lines of transaction %s: %w", transactionID, err)
		}
		cmdTag, err := tx.Exec(ctx, `DELETE FROM transactions WHERE transaction_id = $1 AND status = 'DRAFT';`, transactionID)
		if err != nil {
			return fmt.Errorf("failed to delete draft transaction %s: %w", transactionID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: draft transaction %s", apperrors.ErrNotFound, transactionID)
		}
		return nil
	})
}

// FindTransactionByID returns the transaction with its lines in entry order.
func (r *PgxJournalRepository) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	query := `
		SELECT transaction_id, txn_date, memo, txn_type, status, posting_seq, created_at, created_by, last_updated_at, last_updated_by
		FROM transactions
		WHERE transaction_id = $1;
	`
	var txn domain.Transaction
	err := r.Pool.QueryRow(ctx, query, transactionID).Scan(
		&txn.TransactionID, &txn.Date, &txn.Memo, &txn.Type, &txn.Status, &txn.PostingSeq,
		&txn.CreatedAt, &txn.CreatedBy, &txn.LastUpdatedAt, &txn.LastUpdatedBy,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find transaction by ID %s: %w", transactionID, err)
	}

	lines, err := r.findLines(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	txn.Lines = lines
	return &txn, nil
}

// ListTransactions returns a filtered page of transactions without lines,
// ordered by (date, id), with a (date, id) cursor token for the next page.
func (r *PgxJournalRepository) ListTransactions(ctx context.Context, filter portsrepo.ListTransactionsFilter) ([]domain.Transaction, *string, error) {
	query := `
		SELECT transaction_id, txn_date, memo, txn_type, status, posting_seq, created_at, created_by, last_updated_at, last_updated_by
		FROM transactions
		WHERE 1=1
	`
	args := []any{}
	argN := 1

	if filter.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argN)
		args = append(args, *filter.Status)
		argN++
	}
	if filter.Type != nil {
		query += fmt.Sprintf(" AND txn_type = $%d", argN)
		args = append(args, *filter.Type)
		argN++
	}
	if filter.DateFrom != nil {
		query += fmt.Sprintf(" AND txn_date >= $%d", argN)
		args = append(args, *filter.DateFrom)
		argN++
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(" AND txn_date <= $%d", argN)
		args = append(args, *filter.DateTo)
		argN++
	}
	if filter.NextToken != nil && *filter.NextToken != "" {
		date, id, err := pagination.DecodeToken(*filter.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		query += fmt.Sprintf(" AND (txn_date, transaction_id) >= ($%d, $%d)", argN, argN+1)
		args = append(args, date, id)
		argN += 2
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	// Fetch one extra row; it becomes the next page's cursor.
	query += fmt.Sprintf(" ORDER BY txn_date, transaction_id LIMIT $%d;", argN)
	args = append(args, limit+1)

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	txns := []domain.Transaction{}
	for rows.Next() {
		var txn domain.Transaction
		err := rows.Scan(
			&txn.TransactionID, &txn.Date, &txn.Memo, &txn.Type, &txn.Status, &txn.PostingSeq,
			&txn.CreatedAt, &txn.CreatedBy, &txn.LastUpdatedAt, &txn.LastUpdatedBy,
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, txn)
	}
	if rows.Err() != nil {
		return nil, nil, fmt.Errorf("error iterating transaction rows: %w", rows.Err())
	}

	var nextToken *string
	if len(txns) > limit {
		token := pagination.EncodeToken(txns[limit].Date, txns[limit].TransactionID)
		nextToken = &token
		txns = txns[:limit]
	}
	return txns, nextToken, nil
}

// NextPostingSeq reserves the next posting sequence number.
func (r *PgxJournalRepository) NextPostingSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := r.Pool.QueryRow(ctx, `SELECT nextval('posting_seq');`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("failed to get next posting sequence: %w", err)
	}
	return seq, nil
}

// SavePosting marks the transaction POSTED and applies its lot effects in
// one commit. The status guard makes a lost race surface as a conflict
// instead of a double posting.
func (r *PgxJournalRepository) SavePosting(ctx context.Context, txn domain.Transaction, effects domain.LotEffects) error {
	return r.runInTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE transactions
			SET status = 'POSTED', posting_seq = $2, last_updated_at = $3, last_updated_by = $4
			WHERE transaction_id = $1 AND status = 'DRAFT';
		`
		cmdTag, err := tx.Exec(ctx, query, txn.TransactionID, txn.PostingSeq, txn.LastUpdatedAt, txn.LastUpdatedBy)
		if err != nil {
			return fmt.Errorf("failed to mark transaction %s posted: %w", txn.TransactionID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: transaction %s is not a draft", apperrors.ErrConflict, txn.TransactionID)
		}

		for _, line := range txn.Lines {
			if line.LotID == "" {
				continue
			}
			if _, err := tx.Exec(ctx, `UPDATE transaction_lines SET lot_id = $2 WHERE line_id = $1;`, line.LineID, line.LotID); err != nil {
				return fmt.Errorf("failed to link line %s to lot %s: %w", line.LineID, line.LotID, err)
			}
		}

		for _, lot := range effects.Opened {
			if err := insertLotTx(ctx, tx, lot); err != nil {
				return err
			}
		}
		for _, lot := range effects.Updated {
			if err := updateLotTx(ctx, tx, lot); err != nil {
				return err
			}
		}
		for _, c := range effects.Consumptions {
			if err := insertConsumptionTx(ctx, tx, c); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveUnposting reverts the transaction to DRAFT and reverses its lot
// effects in one commit.
func (r *PgxJournalRepository) SaveUnposting(ctx context.Context, txn domain.Transaction, effects domain.UnpostEffects) error {
	return r.runInTx(ctx, func(tx pgx.Tx) error {
		query := `
			UPDATE transactions
			SET status = 'DRAFT', posting_seq = 0, last_updated_at = $2, last_updated_by = $3
			WHERE transaction_id = $1 AND status = 'POSTED';
		`
		cmdTag, err := tx.Exec(ctx, query, txn.TransactionID, txn.LastUpdatedAt, txn.LastUpdatedBy)
		if err != nil {
			return fmt.Errorf("failed to mark transaction %s draft: %w", txn.TransactionID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: transaction %s is not posted", apperrors.ErrConflict, txn.TransactionID)
		}

		if _, err := tx.Exec(ctx, `UPDATE transaction_lines SET lot_id = NULL WHERE transaction_id = $1;`, txn.TransactionID); err != nil {
			return fmt.Errorf("failed to unlink lines of transaction %s: %w", txn.TransactionID, err)
		}

		if len(effects.DeletedConsumptionIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM lot_consumptions WHERE consumption_id = ANY($1);`, effects.DeletedConsumptionIDs); err != nil {
				return fmt.Errorf("failed to delete consumptions: %w", err)
			}
		}
		for _, lot := range effects.Restored {
			if err := updateLotTx(ctx, tx, lot); err != nil {
				return err
			}
		}
		if len(effects.DeletedLotIDs) > 0 {
			if _, err := tx.Exec(ctx, `DELETE FROM lots WHERE lot_id = ANY($1);`, effects.DeletedLotIDs); err != nil {
				return fmt.Errorf("failed to delete lots: %w", err)
			}
		}
		return nil
	})
}

// ListPostedLines returns posted lines of one account ordered by
// (transaction date, line id), with a cursor token for the next page.
func (r *PgxJournalRepository) ListPostedLines(ctx context.Context, filter portsrepo.LedgerFilter) ([]domain.LedgerEntry, *string, error) {
	query := `
		SELECT ` + lineColumnsQualified + `, t.txn_date, t.memo, t.txn_type, t.posting_seq
		FROM transaction_lines l
		JOIN transactions t ON t.transaction_id = l.transaction_id
		WHERE t.status = 'POSTED' AND l.account_id = $1
	`
	args := []any{filter.AccountID}
	argN := 2

	if filter.DateFrom != nil {
		query += fmt.Sprintf(" AND t.txn_date >= $%d", argN)
		args = append(args, *filter.DateFrom)
		argN++
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(" AND t.txn_date <= $%d", argN)
		args = append(args, *filter.DateTo)
		argN++
	}
	if filter.NextToken != nil && *filter.NextToken != "" {
		date, id, err := pagination.DecodeToken(*filter.NextToken)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		query += fmt.Sprintf(" AND (t.txn_date, l.line_id) >= ($%d, $%d)", argN, argN+1)
		args = append(args, date, id)
		argN += 2
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	query += fmt.Sprintf(" ORDER BY t.txn_date, l.line_id LIMIT $%d;", argN)
	args = append(args, limit+1)

	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to query posted lines for account %s: %w", filter.AccountID, err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, nil, err
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, nil, fmt.Errorf("error iterating posted line rows: %w", rows.Err())
	}

	var nextToken *string
	if len(entries) > limit {
		token := pagination.EncodeToken(entries[limit].TransactionDate, entries[limit].LineID)
		nextToken = &token
		entries = entries[:limit]
	}
	return entries, nextToken, nil
}

// SumPostedLinesBefore returns debit and credit totals of the account's
// posted lines strictly before the (date, id) cursor. An empty line id
// means everything on earlier dates.
func (r *PgxJournalRepository) SumPostedLinesBefore(ctx context.Context, accountID string, before time.Time, beforeLineID string) (decimal.Decimal, decimal.Decimal, error) {
	query := `
		SELECT
			COALESCE(SUM(CASE WHEN l.side = 'DR' THEN l.amount ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN l.side = 'CR' THEN l.amount ELSE 0 END), 0)
		FROM transaction_lines l
		JOIN transactions t ON t.transaction_id = l.transaction_id
		WHERE t.status = 'POSTED' AND l.account_id = $1
	`
	args := []any{accountID, before}
	if beforeLineID == "" {
		query += ` AND t.txn_date < $2;`
	} else {
		query += ` AND (t.txn_date, l.line_id) < ($2, $3);`
		args = append(args, beforeLineID)
	}

	var dr, cr decimal.Decimal
	if err := r.Pool.QueryRow(ctx, query, args...).Scan(&dr, &cr); err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to sum posted lines for account %s: %w", accountID, err)
	}
	return dr, cr, nil
}

// ListPostedTradeLines returns every posted line carrying an instrument,
// ordered by posting sequence then entry order, for reconciliation replay.
func (r *PgxJournalRepository) ListPostedTradeLines(ctx context.Context) ([]domain.LedgerEntry, error) {
	query := `
		SELECT ` + lineColumnsQualified + `, t.txn_date, t.memo, t.txn_type, t.posting_seq
		FROM transaction_lines l
		JOIN transactions t ON t.transaction_id = l.transaction_id
		WHERE t.status = 'POSTED' AND l.instrument_id IS NOT NULL
		ORDER BY t.posting_seq, l.line_no;
	`
	rows, err := r.Pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query posted trade lines: %w", err)
	}
	defer rows.Close()

	entries := []domain.LedgerEntry{}
	for rows.Next() {
		entry, err := scanLedgerEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating posted trade line rows: %w", rows.Err())
	}
	return entries, nil
}

const lineColumnsQualified = `l.line_id, l.transaction_id, l.account_id, l.instrument_id, l.lot_id, l.side, l.amount, l.quantity, l.currency_code, l.notes, l.created_at, l.created_by, l.last_updated_at, l.last_updated_by`

func (r *PgxJournalRepository) findLines(ctx context.Context, transactionID string) ([]domain.Line, error) {
	query := `
		SELECT line_id, transaction_id, account_id, instrument_id, lot_id, side, amount, quantity, currency_code, notes, created_at, created_by, last_updated_at, last_updated_by
		FROM transaction_lines
		WHERE transaction_id = $1
		ORDER BY line_no;
	`
	rows, err := r.Pool.Query(ctx, query, transactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query lines of transaction %s: %w", transactionID, err)
	}
	defer rows.Close()

	lines := []domain.Line{}
	for rows.Next() {
		line, err := scanLine(rows)
		if err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating line rows: %w", rows.Err())
	}
	return lines, nil
}

func scanLine(row pgx.Row) (domain.Line, error) {
	var line domain.Line
	var instrumentID, lotID sql.NullString
	err := row.Scan(
		&line.LineID, &line.TransactionID, &line.AccountID, &instrumentID, &lotID,
		&line.Side, &line.Amount, &line.Quantity, &line.CurrencyCode, &line.Notes,
		&line.CreatedAt, &line.CreatedBy, &line.LastUpdatedAt, &line.LastUpdatedBy,
	)
	if err != nil {
		return domain.Line{}, fmt.Errorf("failed to scan line row: %w", err)
	}
	line.InstrumentID = instrumentID.String
	line.LotID = lotID.String
	return line, nil
}

func scanLedgerEntry(row pgx.Row) (domain.LedgerEntry, error) {
	var entry domain.LedgerEntry
	var instrumentID, lotID sql.NullString
	err := row.Scan(
		&entry.LineID, &entry.TransactionID, &entry.AccountID, &instrumentID, &lotID,
		&entry.Side, &entry.Amount, &entry.Quantity, &entry.CurrencyCode, &entry.Notes,
		&entry.CreatedAt, &entry.CreatedBy, &entry.LastUpdatedAt, &entry.LastUpdatedBy,
		&entry.TransactionDate, &entry.TransactionMemo, &entry.TransactionType, &entry.PostingSeq,
	)
	if err != nil {
		return domain.LedgerEntry{}, fmt.Errorf("failed to scan ledger entry row: %w", err)
	}
	entry.InstrumentID = instrumentID.String
	entry.LotID = lotID.String
	return entry, nil
}

// insertTransactionTx inserts a transaction and its lines inside tx. Shared
// with the corporate action repository so generated entries commit in the
// processing transaction.
func insertTransactionTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error {
	query := `
		INSERT INTO transactions (transaction_id, txn_date, memo, txn_type, status, posting_seq, created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
	`
	_, err := tx.Exec(ctx, query,
		txn.TransactionID, txn.Date, txn.Memo, txn.Type, txn.Status, txn.PostingSeq,
		txn.CreatedAt, txn.CreatedBy, txn.LastUpdatedAt, txn.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to save transaction %s: %w", txn.TransactionID, err)
	}
	return insertLinesTx(ctx, tx, txn)
}

func insertLinesTx(ctx context.Context, tx pgx.Tx, txn domain.Transaction) error {
	query := `
		INSERT INTO transaction_lines (line_id, transaction_id, line_no, account_id, instrument_id, lot_id, side, amount, quantity, currency_code, notes, created_at, created_by, last_updated_at, last_updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15);
	`
	batch := &pgx.Batch{}
	for i, line := range txn.Lines {
		var instrumentID, lotID sql.NullString
		if line.InstrumentID != "" {
			instrumentID = sql.NullString{String: line.InstrumentID, Valid: true}
		}
		if line.LotID != "" {
			lotID = sql.NullString{String: line.LotID, Valid: true}
		}
		batch.Queue(query,
			line.LineID, txn.TransactionID, i, line.AccountID, instrumentID, lotID,
			line.Side, line.Amount, line.Quantity, line.CurrencyCode, line.Notes,
			line.CreatedAt, line.CreatedBy, line.LastUpdatedAt, line.LastUpdatedBy,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("failed to save line %d of transaction %s: %w", i+1, txn.TransactionID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to close line insert batch: %w", err)
	}
	return nil
}
