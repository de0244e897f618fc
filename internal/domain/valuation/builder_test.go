package valuation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/ledger"
)

func qty(v float64) types.Quantity {
	return types.NewQuantityFromFloat64(v)
}

func money(s string) types.Money {
	return types.MustMoney(s)
}

// --- Mocks ---

type mockMovements struct {
	pairs []ledger.ItemLocation
	// rows keyed by item id; all fixtures use a single location per item.
	rows map[id.ID][]ledger.StockMovement
}

func (m *mockMovements) ListActiveItemLocations(context.Context, id.ID, time.Time) ([]ledger.ItemLocation, error) {
	return m.pairs, nil
}

func (m *mockMovements) ListForReplay(_ context.Context, _ id.ID, itemID, _ id.ID, until time.Time) ([]ledger.StockMovement, error) {
	var out []ledger.StockMovement
	for _, mv := range m.rows[itemID] {
		if !mv.EffectiveAt.After(until) {
			out = append(out, mv)
		}
	}
	return out, nil
}

func (m *mockMovements) CreateMovement(context.Context, *ledger.StockMovement) error { return nil }
func (m *mockMovements) GetMovement(context.Context, id.ID) (*ledger.StockMovement, error) {
	return nil, nil
}
func (m *mockMovements) ListMovements(context.Context, ledger.MovementFilter) ([]ledger.StockMovement, error) {
	return nil, nil
}
func (m *mockMovements) OnHandAt(context.Context, id.ID, id.ID, id.ID, time.Time) (types.Quantity, error) {
	return 0, nil
}
func (m *mockMovements) SumDepletionByItem(context.Context, id.ID, time.Time, time.Time) ([]ledger.DepletionTotal, error) {
	return nil, nil
}
func (m *mockMovements) CreateLot(context.Context, *ledger.Lot) error { return nil }
func (m *mockMovements) GetLotsForUpdate(context.Context, id.ID, id.ID, id.ID) ([]ledger.Lot, error) {
	return nil, nil
}
func (m *mockMovements) DecrementLotRemaining(context.Context, id.ID, types.Quantity) error {
	return nil
}
func (m *mockMovements) CreateConsumptions(context.Context, []ledger.LotConsumption) error {
	return nil
}
func (m *mockMovements) GetConsumptionsByMovement(context.Context, id.ID) ([]ledger.LotConsumption, error) {
	return nil, nil
}

type mockValuationRepo struct {
	snapshots []Snapshot
	summaries []MovementSummary
}

func (m *mockValuationRepo) InsertSnapshots(_ context.Context, rows []Snapshot) error {
	m.snapshots = append(m.snapshots, rows...)
	return nil
}

func (m *mockValuationRepo) InsertSummaries(_ context.Context, rows []MovementSummary) error {
	m.summaries = append(m.summaries, rows...)
	return nil
}

func (m *mockValuationRepo) GetSnapshot(context.Context, id.ID, id.ID, id.ID, int) (*Snapshot, error) {
	return nil, nil
}

func (m *mockValuationRepo) ListSnapshots(context.Context, id.ID, int) ([]Snapshot, error) {
	return m.snapshots, nil
}

func (m *mockValuationRepo) LatestRevision(context.Context, id.ID) (int, error) { return 0, nil }

func (m *mockValuationRepo) ListSummaries(context.Context, id.ID, int) ([]MovementSummary, error) {
	return m.summaries, nil
}

// --- Fixtures ---

func movement(itemID, locationID id.ID, typ ledger.MovementType, q types.Quantity, unitCost, allocated types.Money, at time.Time) ledger.StockMovement {
	lotID := id.New()
	m := ledger.StockMovement{
		ID:            id.New(),
		OrgID:         id.New(),
		BranchID:      id.New(),
		ItemID:        itemID,
		LocationID:    locationID,
		Type:          typ,
		Quantity:      q,
		UnitCost:      unitCost,
		AllocatedCost: allocated,
		EffectiveAt:   at,
		RecordedAt:    at,
	}
	if q.IsPositive() {
		m.LotID = &lotID
	}
	return m
}

// --- Tests ---

func TestBuild_SnapshotMatchesReplayedMovements(t *testing.T) {
	itemID := id.New()
	locationID := id.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	movements := &mockMovements{
		pairs: []ledger.ItemLocation{{ItemID: itemID, LocationID: locationID}},
		rows: map[id.ID][]ledger.StockMovement{
			itemID: {
				movement(itemID, locationID, ledger.MovementReceipt, qty(100), money("200"), money("0"), start.Add(24*time.Hour)),
				movement(itemID, locationID, ledger.MovementReceipt, qty(50), money("220"), money("0"), start.Add(48*time.Hour)),
				movement(itemID, locationID, ledger.MovementSaleDepletion, qty(-120), money("0"), money("24400"), start.Add(72*time.Hour)),
			},
		},
	}
	repo := &mockValuationRepo{}
	builder := NewBuilder(movements, repo)

	result, err := builder.Build(context.Background(), BuildInput{
		PeriodID: id.New(),
		BranchID: id.New(),
		StartsAt: start,
		EndsAt:   end,
		Revision: 1,
	})
	require.NoError(t, err)

	require.Len(t, result.Snapshots, 1)
	snap := result.Snapshots[0]
	// 150 in, 120 out: 30 left in the 220 lot.
	assert.Equal(t, qty(30), snap.Quantity)
	assert.True(t, snap.Value.Equal(money("6600")))
	assert.Equal(t, 1, snap.Revision)

	require.Len(t, repo.snapshots, 1)
	require.Len(t, repo.summaries, 1)

	sum := repo.summaries[0]
	assert.Equal(t, qty(150), sum.ReceiptQty)
	assert.True(t, sum.ReceiptCost.Equal(money("31000")))
	assert.Equal(t, qty(120), sum.DepletionQty)
	assert.True(t, sum.DepletionCost.Equal(money("24400")))
}

func TestBuild_ShortfallProducesNegativeQuantityZeroValue(t *testing.T) {
	itemID := id.New()
	locationID := id.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	movements := &mockMovements{
		pairs: []ledger.ItemLocation{{ItemID: itemID, LocationID: locationID}},
		rows: map[id.ID][]ledger.StockMovement{
			itemID: {
				movement(itemID, locationID, ledger.MovementReceipt, qty(10), money("100"), money("0"), start.Add(time.Hour)),
				movement(itemID, locationID, ledger.MovementWaste, qty(-25), money("0"), money("1000"), start.Add(2*time.Hour)),
			},
		},
	}
	repo := &mockValuationRepo{}
	builder := NewBuilder(movements, repo)

	result, err := builder.Build(context.Background(), BuildInput{
		PeriodID: id.New(),
		BranchID: id.New(),
		StartsAt: start,
		EndsAt:   end,
		Revision: 1,
	})
	require.NoError(t, err)

	require.Len(t, result.Snapshots, 1)
	assert.Equal(t, qty(-15), result.Snapshots[0].Quantity)
	assert.True(t, result.Snapshots[0].Value.IsZero())
}

func TestBuild_ExcludesMovementsAfterBoundary(t *testing.T) {
	itemID := id.New()
	locationID := id.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	movements := &mockMovements{
		pairs: []ledger.ItemLocation{{ItemID: itemID, LocationID: locationID}},
		rows: map[id.ID][]ledger.StockMovement{
			itemID: {
				movement(itemID, locationID, ledger.MovementReceipt, qty(10), money("100"), money("0"), start.Add(time.Hour)),
				// Next period: ignored both for stock and for the summary.
				movement(itemID, locationID, ledger.MovementReceipt, qty(99), money("100"), money("0"), end.Add(time.Hour)),
			},
		},
	}
	repo := &mockValuationRepo{}
	builder := NewBuilder(movements, repo)

	result, err := builder.Build(context.Background(), BuildInput{
		PeriodID: id.New(),
		BranchID: id.New(),
		StartsAt: start,
		EndsAt:   end,
		Revision: 1,
	})
	require.NoError(t, err)

	assert.Equal(t, qty(10), result.Snapshots[0].Quantity)
	require.Len(t, result.Summaries, 1)
	assert.Equal(t, qty(10), result.Summaries[0].ReceiptQty)
}

func TestBuild_DeterministicAcrossRevisions(t *testing.T) {
	itemID := id.New()
	locationID := id.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	movements := &mockMovements{
		pairs: []ledger.ItemLocation{{ItemID: itemID, LocationID: locationID}},
		rows: map[id.ID][]ledger.StockMovement{
			itemID: {
				movement(itemID, locationID, ledger.MovementReceipt, qty(40), money("12.5"), money("0"), start.Add(time.Hour)),
				movement(itemID, locationID, ledger.MovementSaleDepletion, qty(-15), money("0"), money("187.5"), start.Add(2*time.Hour)),
			},
		},
	}
	builder := NewBuilder(movements, &mockValuationRepo{})

	in := BuildInput{PeriodID: id.New(), BranchID: id.New(), StartsAt: start, EndsAt: end, Revision: 1}
	first, err := builder.Build(context.Background(), in)
	require.NoError(t, err)

	in.Revision = 2
	second, err := builder.Build(context.Background(), in)
	require.NoError(t, err)

	// Same ledger rows: the recomputed revision matches the first.
	assert.Equal(t, first.Snapshots[0].Quantity, second.Snapshots[0].Quantity)
	assert.True(t, first.Snapshots[0].Value.Equal(second.Snapshots[0].Value))
	assert.Equal(t, 2, second.Snapshots[0].Revision)
}

func TestBuild_AdjustmentSignsNetOut(t *testing.T) {
	itemID := id.New()
	locationID := id.New()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	movements := &mockMovements{
		pairs: []ledger.ItemLocation{{ItemID: itemID, LocationID: locationID}},
		rows: map[id.ID][]ledger.StockMovement{
			itemID: {
				movement(itemID, locationID, ledger.MovementReceipt, qty(100), money("10"), money("0"), start.Add(time.Hour)),
				movement(itemID, locationID, ledger.MovementAdjustment, qty(5), money("10"), money("0"), start.Add(2*time.Hour)),
				movement(itemID, locationID, ledger.MovementAdjustment, qty(-3), money("0"), money("30"), start.Add(3*time.Hour)),
			},
		},
	}
	repo := &mockValuationRepo{}
	builder := NewBuilder(movements, repo)

	_, err := builder.Build(context.Background(), BuildInput{
		PeriodID: id.New(),
		BranchID: id.New(),
		StartsAt: start,
		EndsAt:   end,
		Revision: 1,
	})
	require.NoError(t, err)

	sum := repo.summaries[0]
	assert.Equal(t, qty(2), sum.AdjustmentQty)
	// +50 write-on, -30 write-off.
	assert.True(t, sum.AdjustmentCost.Equal(money("20")))
}
