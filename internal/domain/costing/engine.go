// Package costing implements lot-based FIFO cost allocation.
//
// Allocation is a pure function over an ordered lot list: given identical
// inputs it always produces identical per-lot consumption and total cost.
// Period reopen/close relies on this to recompute results byte-for-byte.
package costing

import (
	"fmt"
	"sort"
	"time"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
)

// Lot is the allocator's view of a stock lot. The ledger owns the persistent
// Lot entity; this projection keeps the engine free of storage concerns.
type Lot struct {
	ID         id.ID
	ReceivedAt time.Time
	UnitCost   types.Money
	Received   types.Quantity
	Remaining  types.Quantity
}

// Line records consumption from a single lot within one allocation.
type Line struct {
	LotID    id.ID
	Quantity types.Quantity
	UnitCost types.Money
	Cost     types.Money
}

// Allocation is the result of costing one outbound movement.
type Allocation struct {
	Lines     []Line
	TotalCost types.Money

	// Fallback is set when part of the quantity was priced at the
	// weighted-average unit cost because lots were exhausted. Movements
	// carrying such allocations are flagged for downstream review.
	Fallback bool
}

// Policy controls behavior when lots are exhausted.
type Policy struct {
	// AllowAverageFallback prices any shortfall at the weighted-average
	// unit cost across all known lots instead of failing. Off by default;
	// enabling it is an explicit, audited org-level decision.
	AllowAverageFallback bool
}

// InsufficientStockError is returned when the requested quantity exceeds the
// remaining quantity across all lots and no fallback policy applies.
type InsufficientStockError struct {
	Requested types.Quantity
	Available types.Quantity
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient lot stock: requested %s, available %s",
		e.Requested, e.Available)
}

// Allocate consumes lots oldest-first to cover qty and returns the cost
// breakdown. The input slice is not modified; apply the returned lines to
// lot state separately. qty must be positive.
func Allocate(lots []Lot, qty types.Quantity, policy Policy) (Allocation, error) {
	if !qty.IsPositive() {
		return Allocation{}, fmt.Errorf("allocation quantity must be positive, got %s", qty)
	}

	ordered := orderLots(lots)

	var (
		alloc     Allocation
		remaining = qty
	)
	alloc.TotalCost = types.ZeroMoney()

	for _, lot := range ordered {
		if remaining.IsZero() {
			break
		}
		if !lot.Remaining.IsPositive() {
			continue
		}

		take := lot.Remaining
		if take > remaining {
			take = remaining
		}

		cost := lot.UnitCost.Mul(take.Decimal())
		alloc.Lines = append(alloc.Lines, Line{
			LotID:    lot.ID,
			Quantity: take,
			UnitCost: lot.UnitCost,
			Cost:     cost,
		})
		alloc.TotalCost = alloc.TotalCost.Add(cost)
		remaining -= take
	}

	if remaining.IsZero() {
		return alloc, nil
	}

	if !policy.AllowAverageFallback {
		return Allocation{}, &InsufficientStockError{
			Requested: qty,
			Available: qty - remaining,
		}
	}

	// Shortfall draw priced at the weighted-average unit cost across all
	// known lots. Weighted by quantity received so the price stays defined
	// even when every lot is fully consumed.
	avg := WeightedAverageUnitCost(lots)
	cost := avg.Mul(remaining.Decimal())
	alloc.Lines = append(alloc.Lines, Line{
		LotID:    id.Nil(),
		Quantity: remaining,
		UnitCost: avg,
		Cost:     cost,
	})
	alloc.TotalCost = alloc.TotalCost.Add(cost)
	alloc.Fallback = true

	return alloc, nil
}

// WeightedAverageUnitCost computes the received-quantity-weighted average
// unit cost over all known lots. Returns zero when no lots exist.
func WeightedAverageUnitCost(lots []Lot) types.Money {
	totalCost := types.ZeroMoney()
	var totalQty types.Quantity

	for _, lot := range lots {
		if !lot.Received.IsPositive() {
			continue
		}
		totalCost = totalCost.Add(lot.UnitCost.Mul(lot.Received.Decimal()))
		totalQty += lot.Received
	}

	if !totalQty.IsPositive() {
		return types.ZeroMoney()
	}
	return totalCost.Div(totalQty.Decimal())
}

// orderLots returns a copy sorted by received-at ascending, lot id as
// tie-break. Stable ordering is what makes allocation deterministic.
func orderLots(lots []Lot) []Lot {
	ordered := make([]Lot, len(lots))
	copy(ordered, lots)
	sort.Slice(ordered, func(i, j int) bool {
		if !ordered[i].ReceivedAt.Equal(ordered[j].ReceivedAt) {
			return ordered[i].ReceivedAt.Before(ordered[j].ReceivedAt)
		}
		return ordered[i].ID.String() < ordered[j].ID.String()
	})
	return ordered
}
