package costing

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
)

func qty(v float64) types.Quantity {
	return types.NewQuantityFromFloat64(v)
}

func money(s string) types.Money {
	return types.MustMoney(s)
}

func TestAllocate_FIFOAcrossLots(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lotA := Lot{ID: id.New(), ReceivedAt: base, UnitCost: money("200"), Received: qty(100), Remaining: qty(100)}
	lotB := Lot{ID: id.New(), ReceivedAt: base.Add(24 * time.Hour), UnitCost: money("220"), Received: qty(50), Remaining: qty(50)}

	alloc, err := Allocate([]Lot{lotA, lotB}, qty(120), Policy{})
	require.NoError(t, err)

	require.Len(t, alloc.Lines, 2)
	assert.Equal(t, lotA.ID, alloc.Lines[0].LotID)
	assert.Equal(t, qty(100), alloc.Lines[0].Quantity)
	assert.True(t, alloc.Lines[0].Cost.Equal(money("20000")))

	assert.Equal(t, lotB.ID, alloc.Lines[1].LotID)
	assert.Equal(t, qty(20), alloc.Lines[1].Quantity)
	assert.True(t, alloc.Lines[1].Cost.Equal(money("4400")))

	assert.True(t, alloc.TotalCost.Equal(money("24400")))
	assert.False(t, alloc.Fallback)
}

func TestAllocate_SkipsExhaustedLots(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	empty := Lot{ID: id.New(), ReceivedAt: base, UnitCost: money("100"), Received: qty(10), Remaining: qty(0)}
	live := Lot{ID: id.New(), ReceivedAt: base.Add(time.Hour), UnitCost: money("150"), Received: qty(10), Remaining: qty(10)}

	alloc, err := Allocate([]Lot{empty, live}, qty(5), Policy{})
	require.NoError(t, err)

	require.Len(t, alloc.Lines, 1)
	assert.Equal(t, live.ID, alloc.Lines[0].LotID)
	assert.True(t, alloc.TotalCost.Equal(money("750")))
}

func TestAllocate_InsufficientStock(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lot := Lot{ID: id.New(), ReceivedAt: base, UnitCost: money("200"), Received: qty(100), Remaining: qty(30)}

	_, err := Allocate([]Lot{lot}, qty(50), Policy{})

	var insufficient *InsufficientStockError
	require.True(t, errors.As(err, &insufficient))
	assert.Equal(t, qty(50), insufficient.Requested)
	assert.Equal(t, qty(30), insufficient.Available)
}

func TestAllocate_AverageFallback(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// 100 @ 200 and 100 @ 300, 10 left in the newer lot. Average = 250.
	lotA := Lot{ID: id.New(), ReceivedAt: base, UnitCost: money("200"), Received: qty(100), Remaining: qty(0)}
	lotB := Lot{ID: id.New(), ReceivedAt: base.Add(time.Hour), UnitCost: money("300"), Received: qty(100), Remaining: qty(10)}

	alloc, err := Allocate([]Lot{lotA, lotB}, qty(25), Policy{AllowAverageFallback: true})
	require.NoError(t, err)

	assert.True(t, alloc.Fallback)
	require.Len(t, alloc.Lines, 2)

	// 10 from lot B at 300, then 15 at the average of 250.
	assert.Equal(t, lotB.ID, alloc.Lines[0].LotID)
	assert.True(t, alloc.Lines[0].Cost.Equal(money("3000")))

	assert.True(t, id.IsNil(alloc.Lines[1].LotID))
	assert.Equal(t, qty(15), alloc.Lines[1].Quantity)
	assert.True(t, alloc.Lines[1].UnitCost.Equal(money("250")))
	assert.True(t, alloc.Lines[1].Cost.Equal(money("3750")))

	assert.True(t, alloc.TotalCost.Equal(money("6750")))
}

func TestAllocate_Deterministic(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	// Same receive time: lot id string decides the order.
	idA := id.MustParse("018e0000-0000-7000-8000-000000000001")
	idB := id.MustParse("018e0000-0000-7000-8000-000000000002")

	lots := []Lot{
		{ID: idB, ReceivedAt: base, UnitCost: money("300"), Received: qty(10), Remaining: qty(10)},
		{ID: idA, ReceivedAt: base, UnitCost: money("200"), Received: qty(10), Remaining: qty(10)},
	}

	first, err := Allocate(lots, qty(15), Policy{})
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		again, err := Allocate(lots, qty(15), Policy{})
		require.NoError(t, err)
		assert.Equal(t, first.Lines, again.Lines)
		assert.True(t, first.TotalCost.Equal(again.TotalCost))
	}

	// Lower id consumed first on equal receive time.
	assert.Equal(t, idA, first.Lines[0].LotID)
}

func TestAllocate_DoesNotMutateInput(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	lots := []Lot{
		{ID: id.New(), ReceivedAt: base.Add(time.Hour), UnitCost: money("220"), Received: qty(50), Remaining: qty(50)},
		{ID: id.New(), ReceivedAt: base, UnitCost: money("200"), Received: qty(100), Remaining: qty(100)},
	}
	firstID := lots[0].ID

	_, err := Allocate(lots, qty(120), Policy{})
	require.NoError(t, err)

	assert.Equal(t, firstID, lots[0].ID)
	assert.Equal(t, qty(50), lots[0].Remaining)
	assert.Equal(t, qty(100), lots[1].Remaining)
}

func TestAllocate_RejectsNonPositiveQuantity(t *testing.T) {
	_, err := Allocate(nil, qty(0), Policy{})
	assert.Error(t, err)

	_, err = Allocate(nil, qty(-5), Policy{})
	assert.Error(t, err)
}

func TestWeightedAverageUnitCost(t *testing.T) {
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	t.Run("weighted by received quantity", func(t *testing.T) {
		lots := []Lot{
			{ID: id.New(), ReceivedAt: base, UnitCost: money("200"), Received: qty(100), Remaining: qty(0)},
			{ID: id.New(), ReceivedAt: base, UnitCost: money("300"), Received: qty(50), Remaining: qty(0)},
		}
		// (100*200 + 50*300) / 150 = 233.33...
		avg := WeightedAverageUnitCost(lots)
		assert.True(t, avg.Equal(money("20000").Add(money("15000")).Div(qty(150).Decimal())))
	})

	t.Run("no lots", func(t *testing.T) {
		assert.True(t, WeightedAverageUnitCost(nil).IsZero())
	})
}
