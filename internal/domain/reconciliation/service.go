// Package reconciliation compares theoretical (recipe-driven) consumption
// against actual ledger depletion and computes period COGS.
package reconciliation

import (
	"context"
	"fmt"
	"sort"
	"time"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/ledger"
	"brigata/internal/domain/orgpolicy"
	"brigata/pkg/logger"
)

// RecipeResolver resolves a menu item sale into ingredient quantities.
// Implemented by the external recipe/menu collaborator.
type RecipeResolver interface {
	ResolveIngredients(ctx context.Context, menuItemID id.ID, qty types.Quantity) ([]IngredientRequirement, error)
}

// IngredientRequirement is one ingredient line of a resolved recipe.
type IngredientRequirement struct {
	ItemID   id.ID
	Quantity types.Quantity
}

// SalesProvider reports menu item sales for a branch over a window.
// Implemented by the external order/POS collaborator.
type SalesProvider interface {
	MenuItemSales(ctx context.Context, branchID id.ID, from, to time.Time) ([]MenuItemSale, error)
}

// MenuItemSale is the sold quantity of one menu item.
type MenuItemSale struct {
	MenuItemID id.ID
	Quantity   types.Quantity
}

// Row is one item's reconciliation result. Derived, not persisted.
type Row struct {
	ItemID      id.ID          `json:"itemId"`
	Theoretical types.Quantity `json:"theoretical"`
	Actual      types.Quantity `json:"actual"`
	Variance    types.Quantity `json:"variance"`
	Tolerance   types.Quantity `json:"tolerance"`
	Flagged     bool           `json:"flagged"`

	// TheoreticalCost is theoretical quantity priced at the item's
	// FIFO-consistent unit cost (actual allocated cost / actual quantity).
	TheoreticalCost types.Money `json:"theoreticalCost"`
}

// Report is the reconciliation result for one branch/window.
type Report struct {
	BranchID id.ID       `json:"branchId"`
	From     time.Time   `json:"from"`
	To       time.Time   `json:"to"`
	Rows     []Row       `json:"rows"`
	COGS     types.Money `json:"cogs"`
	Flagged  int         `json:"flagged"`
}

// Service computes reconciliation reports.
type Service struct {
	movements ledger.Repository
	recipes   RecipeResolver
	sales     SalesProvider
	policies  *orgpolicy.Service
}

// NewService creates a reconciliation service.
func NewService(movements ledger.Repository, recipes RecipeResolver, sales SalesProvider, policies *orgpolicy.Service) *Service {
	return &Service{
		movements: movements,
		recipes:   recipes,
		sales:     sales,
		policies:  policies,
	}
}

// Reconcile builds the variance report for a branch over [from, to).
// Variance = actual − theoretical; |variance| above the org tolerance flags
// the row for investigation. The aggregate theoretical-usage cost is the
// period's COGS figure.
func (s *Service) Reconcile(ctx context.Context, orgID, branchID id.ID, from, to time.Time) (*Report, error) {
	policy, err := s.policies.PolicyFor(ctx, orgID)
	if err != nil {
		return nil, err
	}

	theoretical, err := s.theoreticalConsumption(ctx, branchID, from, to)
	if err != nil {
		return nil, err
	}

	actuals, err := s.movements.SumDepletionByItem(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("sum actual depletion: %w", err)
	}

	actualByItem := make(map[id.ID]ledger.DepletionTotal, len(actuals))
	for _, a := range actuals {
		actualByItem[a.ItemID] = a
	}

	// Union of items seen on either side.
	items := make(map[id.ID]struct{}, len(theoretical)+len(actualByItem))
	for itemID := range theoretical {
		items[itemID] = struct{}{}
	}
	for itemID := range actualByItem {
		items[itemID] = struct{}{}
	}

	report := &Report{
		BranchID: branchID,
		From:     from,
		To:       to,
		COGS:     types.ZeroMoney(),
	}

	for itemID := range items {
		theo := theoretical[itemID]
		actual := actualByItem[itemID]

		row := Row{
			ItemID:          itemID,
			Theoretical:     theo,
			Actual:          actual.Quantity,
			Variance:        actual.Quantity - theo,
			Tolerance:       policy.VarianceTolerance,
			TheoreticalCost: types.ZeroMoney(),
		}
		row.Flagged = row.Variance.Abs() > policy.VarianceTolerance

		// FIFO-consistent unit cost from the actual depletion allocation.
		if actual.Quantity.IsPositive() {
			unitCost := actual.Cost.Div(actual.Quantity.Decimal())
			row.TheoreticalCost = unitCost.Mul(theo.Decimal())
		}

		report.Rows = append(report.Rows, row)
		report.COGS = report.COGS.Add(row.TheoreticalCost)
		if row.Flagged {
			report.Flagged++
		}
	}

	sort.Slice(report.Rows, func(i, j int) bool {
		return report.Rows[i].ItemID.String() < report.Rows[j].ItemID.String()
	})

	logger.Info(ctx, "reconciliation computed",
		"branch_id", branchID,
		"items", len(report.Rows),
		"flagged", report.Flagged,
		"cogs", report.COGS,
	)

	return report, nil
}

// theoreticalConsumption resolves menu item sales into ingredient totals.
func (s *Service) theoreticalConsumption(ctx context.Context, branchID id.ID, from, to time.Time) (map[id.ID]types.Quantity, error) {
	sales, err := s.sales.MenuItemSales(ctx, branchID, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetch menu item sales: %w", err)
	}

	totals := make(map[id.ID]types.Quantity)
	for _, sale := range sales {
		ingredients, err := s.recipes.ResolveIngredients(ctx, sale.MenuItemID, sale.Quantity)
		if err != nil {
			return nil, fmt.Errorf("resolve recipe %s: %w", sale.MenuItemID, err)
		}
		for _, ing := range ingredients {
			totals[ing.ItemID] += ing.Quantity
		}
	}
	return totals, nil
}
