package repositories

import (
	"context"
	"time"

	"github.com/quantfolio/portfolio_accountant/internal/core/domain"
)

// ListActionsFilter narrows corporate action listings.
type ListActionsFilter struct {
	InstrumentID string
	Processed    *bool
	DateFrom     *time.Time
	DateTo       *time.Time
	Limit        int
	Offset       int
}

// CorporateActionRepositoryFacade owns CorporateAction persistence. The
// processor is the only writer of the processed flag, which commits
// atomically with lot mutations and generated transactions via
// SaveProcessing.
type CorporateActionRepositoryFacade interface {
	SaveAction(ctx context.Context, action domain.CorporateAction) error
	UpdateDraftAction(ctx context.Context, action domain.CorporateAction) error
	DeleteDraftAction(ctx context.Context, actionID string) error
	FindActionByID(ctx context.Context, actionID string) (*domain.CorporateAction, error)
	ListActions(ctx context.Context, filter ListActionsFilter) ([]domain.CorporateAction, error)
	// ListProcessedActions returns processed actions ordered by their
	// processing sequence, for reconciliation replay.
	ListProcessedActions(ctx context.Context) ([]domain.CorporateAction, error)
	// SaveProcessing marks the action processed and applies every lot
	// mutation, adjustment record, and generated transaction in one commit.
	SaveProcessing(ctx context.Context, effects domain.ActionEffects) error
}
