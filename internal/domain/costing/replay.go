package costing

import (
	"time"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
)

// Replayer rebuilds FIFO lot state by feeding a movement sequence through the
// allocator. The snapshot builder uses it to compute point-in-time quantity
// and value as a pure function of ledger rows.
//
// Movements must be applied in effective-time order. Issues that exceed
// available lot stock consume what is there and track the shortfall; the
// on-hand quantity can go negative while the valuation floor stays at zero.
type Replayer struct {
	lots      []Lot
	onHand    types.Quantity
	shortfall types.Quantity
}

// NewReplayer creates an empty replay state.
func NewReplayer() *Replayer {
	return &Replayer{}
}

// ApplyReceipt adds a lot and increases on-hand quantity.
func (r *Replayer) ApplyReceipt(lotID id.ID, receivedAt time.Time, unitCost types.Money, qty types.Quantity) {
	r.lots = append(r.lots, Lot{
		ID:         lotID,
		ReceivedAt: receivedAt,
		UnitCost:   unitCost,
		Received:   qty,
		Remaining:  qty,
	})
	r.onHand += qty
}

// ApplyIssue consumes qty from replayed lots oldest-first and returns the
// allocated cost of what was actually covered by lots.
func (r *Replayer) ApplyIssue(qty types.Quantity) types.Money {
	r.onHand -= qty

	ordered := orderLots(r.lots)
	remaining := qty
	cost := types.ZeroMoney()

	for i := range ordered {
		if remaining.IsZero() {
			break
		}
		if !ordered[i].Remaining.IsPositive() {
			continue
		}
		take := ordered[i].Remaining
		if take > remaining {
			take = remaining
		}
		cost = cost.Add(ordered[i].UnitCost.Mul(take.Decimal()))
		ordered[i].Remaining -= take
		remaining -= take
	}

	r.lots = ordered
	r.shortfall += remaining
	return cost
}

// OnHand returns the replayed quantity on hand (sum of signed movements).
func (r *Replayer) OnHand() types.Quantity {
	return r.onHand
}

// Shortfall returns the total quantity issued without lot coverage.
func (r *Replayer) Shortfall() types.Quantity {
	return r.shortfall
}

// Value returns the monetary value of remaining lot stock.
func (r *Replayer) Value() types.Money {
	v := types.ZeroMoney()
	for _, lot := range r.lots {
		if lot.Remaining.IsPositive() {
			v = v.Add(lot.UnitCost.Mul(lot.Remaining.Decimal()))
		}
	}
	return v
}

// Lots returns the current replayed lot state, ordered.
func (r *Replayer) Lots() []Lot {
	return orderLots(r.lots)
}
