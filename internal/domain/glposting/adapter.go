// Package glposting builds balanced double-entry journal lines from a
// period's cost figures and submits them to the external general-ledger
// collaborator. The GL's own draft/post/reverse lifecycle is out of scope;
// this adapter only guarantees correctly summed, non-negative, period-scoped
// monetary figures.
package glposting

import (
	"context"
	"fmt"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/valuation"
	"brigata/pkg/logger"
)

// Account codes the engine posts against. The chart of accounts mapping is
// owned by the GL collaborator; these are the engine-side identifiers.
const (
	AccountCOGS              = "COGS"
	AccountWasteExpense      = "WASTE_EXPENSE"
	AccountAdjustmentExpense = "INVENTORY_ADJUSTMENT"
	AccountInventory         = "INVENTORY"
)

// JournalLine is one side of a double-entry posting.
type JournalLine struct {
	Account string      `json:"account"`
	Debit   types.Money `json:"debit"`
	Credit  types.Money `json:"credit"`
	Memo    string      `json:"memo,omitempty"`
}

// JournalPoster is the external GL collaborator.
type JournalPoster interface {
	PostJournalEntry(ctx context.Context, lines []JournalLine) (entryID id.ID, err error)
}

// Adapter converts period close results into journal entries.
type Adapter struct {
	poster JournalPoster
}

// NewAdapter creates a GL posting adapter.
func NewAdapter(poster JournalPoster) *Adapter {
	return &Adapter{poster: poster}
}

// PeriodFigures are the monetary inputs for one period posting.
type PeriodFigures struct {
	PeriodID id.ID
	Revision int
	COGS     types.Money
	Waste    types.Money

	// AdjustmentNet may be negative (net write-on); it is posted on the
	// side that keeps every line amount non-negative.
	AdjustmentNet types.Money
}

// FiguresFromSummaries folds movement summaries into period figures, with
// COGS supplied by the reconciliation engine.
func FiguresFromSummaries(periodID id.ID, revision int, cogs types.Money, summaries []valuation.MovementSummary) PeriodFigures {
	f := PeriodFigures{
		PeriodID:      periodID,
		Revision:      revision,
		COGS:          cogs,
		Waste:         types.ZeroMoney(),
		AdjustmentNet: types.ZeroMoney(),
	}
	for _, s := range summaries {
		f.Waste = f.Waste.Add(s.WasteCost)
		f.AdjustmentNet = f.AdjustmentNet.Sub(s.AdjustmentCost)
	}
	return f
}

// BuildLines constructs balanced journal lines for the period figures.
// Debits always equal credits; every line amount is non-negative.
func (a *Adapter) BuildLines(figures PeriodFigures) ([]JournalLine, error) {
	if figures.COGS.IsNegative() || figures.Waste.IsNegative() {
		return nil, apperror.NewValidation("cost figures must not be negative").
			WithDetail("cogs", figures.COGS.String()).
			WithDetail("waste", figures.Waste.String())
	}

	memo := fmt.Sprintf("period %s rev %d", figures.PeriodID, figures.Revision)
	zero := types.ZeroMoney()
	var lines []JournalLine

	if figures.COGS.IsPositive() {
		lines = append(lines, JournalLine{
			Account: AccountCOGS, Debit: figures.COGS, Credit: zero, Memo: memo,
		})
	}
	if figures.Waste.IsPositive() {
		lines = append(lines, JournalLine{
			Account: AccountWasteExpense, Debit: figures.Waste, Credit: zero, Memo: memo,
		})
	}
	switch {
	case figures.AdjustmentNet.IsPositive():
		lines = append(lines, JournalLine{
			Account: AccountAdjustmentExpense, Debit: figures.AdjustmentNet, Credit: zero, Memo: memo,
		})
	case figures.AdjustmentNet.IsNegative():
		lines = append(lines, JournalLine{
			Account: AccountAdjustmentExpense, Debit: zero, Credit: figures.AdjustmentNet.Neg(), Memo: memo,
		})
	}

	if len(lines) == 0 {
		return nil, nil
	}

	// Inventory credit balances the entry.
	debits, credits := sumSides(lines)
	inventory := debits.Sub(credits)
	switch {
	case inventory.IsPositive():
		lines = append(lines, JournalLine{
			Account: AccountInventory, Debit: zero, Credit: inventory, Memo: memo,
		})
	case inventory.IsNegative():
		lines = append(lines, JournalLine{
			Account: AccountInventory, Debit: inventory.Neg(), Credit: zero, Memo: memo,
		})
	}

	debits, credits = sumSides(lines)
	if !debits.Equal(credits) {
		return nil, apperror.NewUnbalancedJournal(debits.String(), credits.String())
	}
	return lines, nil
}

// PostPeriod builds and submits the journal entry for a period's figures.
// Returns the GL entry id, or nil id when there is nothing to post.
func (a *Adapter) PostPeriod(ctx context.Context, figures PeriodFigures) (id.ID, error) {
	lines, err := a.BuildLines(figures)
	if err != nil {
		return id.Nil(), err
	}
	if len(lines) == 0 {
		logger.Info(ctx, "no journal entry needed for period",
			"period_id", figures.PeriodID,
			"revision", figures.Revision,
		)
		return id.Nil(), nil
	}

	entryID, err := a.poster.PostJournalEntry(ctx, lines)
	if err != nil {
		return id.Nil(), fmt.Errorf("post journal entry: %w", err)
	}

	logger.Info(ctx, "journal entry posted",
		"period_id", figures.PeriodID,
		"revision", figures.Revision,
		"entry_id", entryID,
		"lines", len(lines),
	)
	return entryID, nil
}

func sumSides(lines []JournalLine) (debits, credits types.Money) {
	debits = types.ZeroMoney()
	credits = types.ZeroMoney()
	for _, l := range lines {
		debits = debits.Add(l.Debit)
		credits = credits.Add(l.Credit)
	}
	return debits, credits
}
