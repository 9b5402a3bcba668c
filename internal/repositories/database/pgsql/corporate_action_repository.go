package pgsql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quantfolio/portfolio_accountant/internal/apperrors"
	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
	portsrepo "github.com/quantfolio/portfolio_accountant/internal/core/ports/repositories"
)

const actionColumns = `action_id, instrument_id, action_type, action_date, ratio, cash_per_share, new_instrument_id, allocations, notes, processed, processed_seq, generated_transaction_ids, created_at, created_by, last_updated_at, last_updated_by`

type PgxCorporateActionRepository struct {
	BaseRepository
}

// newPgxCorporateActionRepository creates a new repository for corporate
// action data.
func newPgxCorporateActionRepository(pool *pgxpool.Pool) portsrepo.CorporateActionRepositoryFacade {
	return &PgxCorporateActionRepository{BaseRepository: BaseRepository{Pool: pool}}
}

var _ portsrepo.CorporateActionRepositoryFacade = (*PgxCorporateActionRepository)(nil)

func actionArgs(a domain.CorporateAction) ([]any, error) {
	allocations, err := json.Marshal(a.Allocations)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal allocations of action %s: %w", a.ActionID, err)
	}
	generated, err := json.Marshal(a.GeneratedTransactionIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal generated transaction IDs of action %s: %w", a.ActionID, err)
	}
	var newInstrumentID sql.NullString
	if a.NewInstrumentID != "" {
		newInstrumentID = sql.NullString{String: a.NewInstrumentID, Valid: true}
	}
	return []any{
		a.ActionID, a.InstrumentID, a.Type, a.Date, a.Ratio, a.CashPerShare, newInstrumentID,
		allocations, a.Notes, a.Processed, a.ProcessedSeq, generated,
		a.CreatedAt, a.CreatedBy, a.LastUpdatedAt, a.LastUpdatedBy,
	}, nil
}

func scanAction(row pgx.Row) (domain.CorporateAction, error) {
	var a domain.CorporateAction
	var newInstrumentID sql.NullString
	var allocations, generated []byte
	err := row.Scan(
		&a.ActionID, &a.InstrumentID, &a.Type, &a.Date, &a.Ratio, &a.CashPerShare, &newInstrumentID,
		&allocations, &a.Notes, &a.Processed, &a.ProcessedSeq, &generated,
		&a.CreatedAt, &a.CreatedBy, &a.LastUpdatedAt, &a.LastUpdatedBy,
	)
	if err != nil {
		return domain.CorporateAction{}, err
	}
	a.NewInstrumentID = newInstrumentID.String
	if len(allocations) > 0 {
		if err := json.Unmarshal(allocations, &a.Allocations); err != nil {
			return domain.CorporateAction{}, fmt.Errorf("failed to unmarshal allocations of action %s: %w", a.ActionID, err)
		}
	}
	if len(generated) > 0 {
		if err := json.Unmarshal(generated, &a.GeneratedTransactionIDs); err != nil {
			return domain.CorporateAction{}, fmt.Errorf("failed to unmarshal generated transaction IDs of action %s: %w", a.ActionID, err)
		}
	}
	return a, nil
}

// SaveAction inserts a new draft corporate action.
func (r *PgxCorporateActionRepository) SaveAction(ctx context.Context, action domain.CorporateAction) error {
	args, err := actionArgs(action)
	if err != nil {
		return err
	}
	query := `
		INSERT INTO corporate_actions (` + actionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16);
	`
	if _, err := r.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to save corporate action %s: %w", action.ActionID, err)
	}
	return nil
}

// UpdateDraftAction rewrites a draft action. The processed guard protects
// against racing with Process.
func (r *PgxCorporateActionRepository) UpdateDraftAction(ctx context.Context, action domain.CorporateAction) error {
	allocations, err := json.Marshal(action.Allocations)
	if err != nil {
		return fmt.Errorf("failed to marshal allocations of action %s: %w", action.ActionID, err)
	}
	query := `
		UPDATE corporate_actions
		SET action_date = $2, ratio = $3, cash_per_share = $4, allocations = $5, notes = $6, last_updated_at = $7, last_updated_by = $8
		WHERE action_id = $1 AND processed = FALSE;
	`
	cmdTag, err := r.Pool.Exec(ctx, query,
		action.ActionID, action.Date, action.Ratio, action.CashPerShare, allocations, action.Notes,
		action.LastUpdatedAt, action.LastUpdatedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to update corporate action %s: %w", action.ActionID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: draft corporate action %s", apperrors.ErrNotFound, action.ActionID)
	}
	return nil
}

// DeleteDraftAction removes a draft action.
func (r *PgxCorporateActionRepository) DeleteDraftAction(ctx context.Context, actionID string) error {
	cmdTag, err := r.Pool.Exec(ctx, `DELETE FROM corporate_actions WHERE action_id = $1 AND processed = FALSE;`, actionID)
	if err != nil {
		return fmt.Errorf("failed to delete corporate action %s: %w", actionID, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: draft corporate action %s", apperrors.ErrNotFound, actionID)
	}
	return nil
}

// FindActionByID retrieves a corporate action by its ID.
func (r *PgxCorporateActionRepository) FindActionByID(ctx context.Context, actionID string) (*domain.CorporateAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corporate_actions WHERE action_id = $1;`

	action, err := scanAction(r.Pool.QueryRow(ctx, query, actionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to find corporate action by ID %s: %w", actionID, err)
	}
	return &action, nil
}

// ListActions returns a filtered list of corporate actions ordered by date.
func (r *PgxCorporateActionRepository) ListActions(ctx context.Context, filter portsrepo.ListActionsFilter) ([]domain.CorporateAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corporate_actions WHERE 1=1`
	args := []any{}
	argN := 1

	if filter.InstrumentID != "" {
		query += fmt.Sprintf(" AND instrument_id = $%d", argN)
		args = append(args, filter.InstrumentID)
		argN++
	}
	if filter.Processed != nil {
		query += fmt.Sprintf(" AND processed = $%d", argN)
		args = append(args, *filter.Processed)
		argN++
	}
	if filter.DateFrom != nil {
		query += fmt.Sprintf(" AND action_date >= $%d", argN)
		args = append(args, *filter.DateFrom)
		argN++
	}
	if filter.DateTo != nil {
		query += fmt.Sprintf(" AND action_date <= $%d", argN)
		args = append(args, *filter.DateTo)
		argN++
	}

	query += " ORDER BY action_date, created_at"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argN)
		args = append(args, filter.Limit)
		argN++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argN)
		args = append(args, filter.Offset)
		argN++
	}
	query += ";"

	return r.queryActions(ctx, query, args...)
}

// ListProcessedActions returns processed actions in processing order, for
// reconciliation replay.
func (r *PgxCorporateActionRepository) ListProcessedActions(ctx context.Context) ([]domain.CorporateAction, error) {
	query := `SELECT ` + actionColumns + ` FROM corporate_actions WHERE processed = TRUE ORDER BY processed_seq;`
	return r.queryActions(ctx, query)
}

func (r *PgxCorporateActionRepository) queryActions(ctx context.Context, query string, args ...any) ([]domain.CorporateAction, error) {
	rows, err := r.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query corporate actions: %w", err)
	}
	defer rows.Close()

	actions := []domain.CorporateAction{}
	for rows.Next() {
		action, err := scanAction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan corporate action row: %w", err)
		}
		actions = append(actions, action)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("error iterating corporate action rows: %w", rows.Err())
	}
	return actions, nil
}

// SaveProcessing marks the action processed and applies every lot mutation,
// adjustment record, and generated transaction in one commit. The processed
// guard makes a lost race surface as a conflict instead of double
// processing.
func (r *PgxCorporateActionRepository) SaveProcessing(ctx context.Context, effects domain.ActionEffects) error {
	return r.runInTx(ctx, func(tx pgx.Tx) error {
		action := effects.Action
		generated, err := json.Marshal(action.GeneratedTransactionIDs)
		if err != nil {
			return fmt.Errorf("failed to marshal generated transaction IDs of action %s: %w", action.ActionID, err)
		}
		query := `
			UPDATE corporate_actions
			SET processed = TRUE, processed_seq = $2, generated_transaction_ids = $3, last_updated_at = $4, last_updated_by = $5
			WHERE action_id = $1 AND processed = FALSE;
		`
		cmdTag, err := tx.Exec(ctx, query,
			action.ActionID, action.ProcessedSeq, generated, action.LastUpdatedAt, action.LastUpdatedBy)
		if err != nil {
			return fmt.Errorf("failed to mark corporate action %s processed: %w", action.ActionID, err)
		}
		if cmdTag.RowsAffected() == 0 {
			return fmt.Errorf("%w: corporate action %s", apperrors.ErrAlreadyProcessed, action.ActionID)
		}

		for _, lot := range effects.UpdatedLots {
			if err := updateLotTx(ctx, tx, lot); err != nil {
				return err
			}
		}
		for _, lot := range effects.CreatedLots {
			if err := insertLotTx(ctx, tx, lot); err != nil {
				return err
			}
		}
		for _, adjustment := range effects.Adjustments {
			if err := insertAdjustmentTx(ctx, tx, adjustment); err != nil {
				return err
			}
		}
		for _, txn := range effects.Transactions {
			if err := insertTransactionTx(ctx, tx, txn); err != nil {
				return err
			}
		}
		return nil
	})
}
