package period

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/ledger"
	"brigata/internal/domain/orgpolicy"
	"brigata/internal/domain/reconciliation"
	"brigata/internal/domain/valuation"
)

func qty(v float64) types.Quantity {
	return types.NewQuantityFromFloat64(v)
}

// --- Mocks ---

type mockTxManager struct{}

func (m *mockTxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type mockPeriodRepo struct {
	periods map[id.ID]*InventoryPeriod
	events  []*Event

	shareLocks int
}

func newMockPeriodRepo() *mockPeriodRepo {
	return &mockPeriodRepo{periods: make(map[id.ID]*InventoryPeriod)}
}

func (m *mockPeriodRepo) Create(_ context.Context, p *InventoryPeriod) error {
	cp := *p
	m.periods[p.ID] = &cp
	return nil
}

func (m *mockPeriodRepo) GetByID(_ context.Context, periodID id.ID) (*InventoryPeriod, error) {
	p, ok := m.periods[periodID]
	if !ok {
		return nil, apperror.NewNotFound("period", periodID.String())
	}
	cp := *p
	return &cp, nil
}

func (m *mockPeriodRepo) GetForUpdate(ctx context.Context, periodID id.ID) (*InventoryPeriod, error) {
	return m.GetByID(ctx, periodID)
}

func (m *mockPeriodRepo) FindAt(_ context.Context, branchID id.ID, at time.Time) (*InventoryPeriod, error) {
	for _, p := range m.periods {
		if p.BranchID == branchID && p.Contains(at) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, apperror.NewNotFound("period", at.Format(time.RFC3339))
}

func (m *mockPeriodRepo) FindAtForShare(ctx context.Context, branchID id.ID, at time.Time) (*InventoryPeriod, error) {
	m.shareLocks++
	return m.FindAt(ctx, branchID, at)
}

func (m *mockPeriodRepo) CountOverlapping(_ context.Context, branchID id.ID, startsAt, endsAt time.Time) (int, error) {
	count := 0
	for _, p := range m.periods {
		if p.BranchID == branchID && p.StartsAt.Before(endsAt) && p.EndsAt.After(startsAt) {
			count++
		}
	}
	return count, nil
}

func (m *mockPeriodRepo) UpdateState(_ context.Context, p *InventoryPeriod) error {
	cp := *p
	m.periods[p.ID] = &cp
	return nil
}

func (m *mockPeriodRepo) List(_ context.Context, branchID id.ID, _, _ int) ([]InventoryPeriod, error) {
	var out []InventoryPeriod
	for _, p := range m.periods {
		if p.BranchID == branchID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (m *mockPeriodRepo) AppendEvent(_ context.Context, e *Event) error {
	m.events = append(m.events, e)
	return nil
}

func (m *mockPeriodRepo) ListEvents(_ context.Context, periodID id.ID) ([]Event, error) {
	var out []Event
	for _, e := range m.events {
		if e.PeriodID == periodID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (m *mockPeriodRepo) eventsOfType(periodID id.ID, typ EventType) []*Event {
	var out []*Event
	for _, e := range m.events {
		if e.PeriodID == periodID && e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

// stubMovements is an empty ledger: snapshot builds produce no rows.
type stubMovements struct {
	depletions []ledger.DepletionTotal
}

func (s *stubMovements) CreateMovement(context.Context, *ledger.StockMovement) error { return nil }
func (s *stubMovements) GetMovement(context.Context, id.ID) (*ledger.StockMovement, error) {
	return nil, nil
}
func (s *stubMovements) ListMovements(context.Context, ledger.MovementFilter) ([]ledger.StockMovement, error) {
	return nil, nil
}
func (s *stubMovements) ListForReplay(context.Context, id.ID, id.ID, id.ID, time.Time) ([]ledger.StockMovement, error) {
	return nil, nil
}
func (s *stubMovements) ListActiveItemLocations(context.Context, id.ID, time.Time) ([]ledger.ItemLocation, error) {
	return nil, nil
}
func (s *stubMovements) OnHandAt(context.Context, id.ID, id.ID, id.ID, time.Time) (types.Quantity, error) {
	return 0, nil
}
func (s *stubMovements) SumDepletionByItem(context.Context, id.ID, time.Time, time.Time) ([]ledger.DepletionTotal, error) {
	return s.depletions, nil
}
func (s *stubMovements) CreateLot(context.Context, *ledger.Lot) error { return nil }
func (s *stubMovements) GetLotsForUpdate(context.Context, id.ID, id.ID, id.ID) ([]ledger.Lot, error) {
	return nil, nil
}
func (s *stubMovements) DecrementLotRemaining(context.Context, id.ID, types.Quantity) error {
	return nil
}
func (s *stubMovements) CreateConsumptions(context.Context, []ledger.LotConsumption) error {
	return nil
}
func (s *stubMovements) GetConsumptionsByMovement(context.Context, id.ID) ([]ledger.LotConsumption, error) {
	return nil, nil
}

type stubValuations struct {
	inserts int
}

func (s *stubValuations) InsertSnapshots(_ context.Context, rows []valuation.Snapshot) error {
	s.inserts++
	return nil
}
func (s *stubValuations) InsertSummaries(context.Context, []valuation.MovementSummary) error {
	return nil
}
func (s *stubValuations) GetSnapshot(context.Context, id.ID, id.ID, id.ID, int) (*valuation.Snapshot, error) {
	return nil, nil
}
func (s *stubValuations) ListSnapshots(context.Context, id.ID, int) ([]valuation.Snapshot, error) {
	return nil, nil
}
func (s *stubValuations) LatestRevision(context.Context, id.ID) (int, error) { return 0, nil }
func (s *stubValuations) ListSummaries(context.Context, id.ID, int) ([]valuation.MovementSummary, error) {
	return nil, nil
}

type mockPolicyRepo struct {
	policy *orgpolicy.Policy
}

func (m *mockPolicyRepo) Get(_ context.Context, orgID id.ID) (orgpolicy.Policy, error) {
	if m.policy == nil {
		return orgpolicy.Policy{}, apperror.NewNotFound("org policy", orgID.String())
	}
	return *m.policy, nil
}

func (m *mockPolicyRepo) Upsert(_ context.Context, p orgpolicy.Policy) error {
	m.policy = &p
	return nil
}

type stubRecipes struct{}

func (stubRecipes) ResolveIngredients(_ context.Context, _ id.ID, q types.Quantity) ([]reconciliation.IngredientRequirement, error) {
	return nil, nil
}

type stubSales struct{}

func (stubSales) MenuItemSales(context.Context, id.ID, time.Time, time.Time) ([]reconciliation.MenuItemSale, error) {
	return nil, nil
}

// --- Fixtures ---

type fixture struct {
	svc    *Service
	repo   *mockPeriodRepo
	policy *mockPolicyRepo
}

func newFixture(t *testing.T, withRecon bool, movements *stubMovements) *fixture {
	t.Helper()
	repo := newMockPeriodRepo()
	policyRepo := &mockPolicyRepo{}
	policies := orgpolicy.NewService(policyRepo)
	if movements == nil {
		movements = &stubMovements{}
	}
	valuations := &stubValuations{}
	builder := valuation.NewBuilder(movements, valuations)

	var recon *reconciliation.Service
	if withRecon {
		recon = reconciliation.NewService(movements, stubRecipes{}, stubSales{}, policies)
	}

	svc := NewService(repo, &mockTxManager{}, builder, valuations, policies, recon)
	return &fixture{svc: svc, repo: repo, policy: policyRepo}
}

func (f *fixture) createPeriod(t *testing.T) *InventoryPeriod {
	t.Helper()
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p, _, err := f.svc.Create(context.Background(), id.New(), id.New(), start, start.AddDate(0, 1, 0), "tester")
	require.NoError(t, err)
	return p
}

// --- Tests ---

func TestCreate_RecordsCreatedEvent(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	assert.Equal(t, StatusOpen, p.Status)
	assert.Equal(t, 1, p.Revision)
	assert.Nil(t, p.ClosedAt)

	events := f.repo.eventsOfType(p.ID, EventCreated)
	require.Len(t, events, 1)
	assert.Equal(t, "tester", events[0].Actor)
}

func TestCreate_RejectsOverlap(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	// Second period overlapping the first by two weeks.
	_, _, err := f.svc.Create(context.Background(), p.OrgID, p.BranchID,
		p.StartsAt.AddDate(0, 0, 14), p.EndsAt.AddDate(0, 0, 14), "tester")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestCreate_RejectsInvertedBoundaries(t *testing.T) {
	f := newFixture(t, false, nil)
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	_, _, err := f.svc.Create(context.Background(), id.New(), id.New(), start, start, "tester")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestClose_FirstClose(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	closed, event, err := f.svc.Close(context.Background(), p.ID, "tester")
	require.NoError(t, err)

	assert.Equal(t, StatusClosed, closed.Status)
	assert.Equal(t, 1, closed.Revision)
	require.NotNil(t, closed.ClosedAt)

	require.NotNil(t, event)
	assert.Equal(t, EventClosed, event.Type)
	assert.Equal(t, 1, event.Metadata["revision"])
}

func TestClose_AlreadyClosed(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	_, _, err := f.svc.Close(context.Background(), p.ID, "tester")
	require.NoError(t, err)

	_, _, err = f.svc.Close(context.Background(), p.ID, "tester")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestReopenClose_BumpsRevision(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	_, _, err := f.svc.Close(context.Background(), p.ID, "tester")
	require.NoError(t, err)

	reopened, event, err := f.svc.Reopen(context.Background(), p.ID, "tester", "found missing invoice")
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, reopened.Status)
	// Reopen never changes revision or the original close timestamp.
	assert.Equal(t, 1, reopened.Revision)
	require.NotNil(t, reopened.ClosedAt)
	assert.Equal(t, EventReopened, event.Type)
	assert.Equal(t, "found missing invoice", event.Reason)

	closed, _, err := f.svc.Close(context.Background(), p.ID, "tester")
	require.NoError(t, err)
	assert.Equal(t, 2, closed.Revision)
}

func TestReopen_RequiresReason(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	_, _, err := f.svc.Close(context.Background(), p.ID, "tester")
	require.NoError(t, err)

	_, _, err = f.svc.Reopen(context.Background(), p.ID, "tester", "")
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestReopen_RejectsOpenPeriod(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	_, _, err := f.svc.Reopen(context.Background(), p.ID, "tester", "why not")
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}

func TestClose_ReconciliationGateBlocks(t *testing.T) {
	// Actual depletion with no theoretical usage and zero tolerance: the
	// single flagged row must block the close.
	movements := &stubMovements{
		depletions: []ledger.DepletionTotal{
			{ItemID: id.New(), Quantity: qty(8), Cost: types.MustMoney("96")},
		},
	}
	f := newFixture(t, true, movements)
	orgID := id.New()
	f.policy.policy = &orgpolicy.Policy{
		OrgID:                      orgID,
		RequireCleanReconciliation: true,
	}

	p := f.createPeriod(t)

	_, _, err := f.svc.Close(context.Background(), p.ID, "tester")
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeReconciliationTolerance))

	// Period stays open, no CLOSED event.
	current, err := f.svc.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOpen, current.Status)
	assert.Empty(t, f.repo.eventsOfType(p.ID, EventClosed))
}

func TestClose_GateDisabledWithoutReconService(t *testing.T) {
	movements := &stubMovements{
		depletions: []ledger.DepletionTotal{
			{ItemID: id.New(), Quantity: qty(8), Cost: types.MustMoney("96")},
		},
	}
	f := newFixture(t, false, movements)
	f.policy.policy = &orgpolicy.Policy{
		OrgID:                      id.New(),
		RequireCleanReconciliation: true,
	}

	p := f.createPeriod(t)
	_, _, err := f.svc.Close(context.Background(), p.ID, "tester")
	assert.NoError(t, err)
}

func TestClosedPeriodAt_Guard(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)
	inside := p.StartsAt.Add(72 * time.Hour)

	// Open period: not closed.
	_, closed, err := f.svc.ClosedPeriodAt(context.Background(), p.BranchID, inside)
	require.NoError(t, err)
	assert.False(t, closed)

	_, _, err = f.svc.Close(context.Background(), p.ID, "tester")
	require.NoError(t, err)

	periodID, closed, err := f.svc.ClosedPeriodAt(context.Background(), p.BranchID, inside)
	require.NoError(t, err)
	assert.True(t, closed)
	assert.Equal(t, p.ID, periodID)

	// Outside any period: not closed.
	_, closed, err = f.svc.ClosedPeriodAt(context.Background(), p.BranchID, p.EndsAt.Add(time.Hour))
	require.NoError(t, err)
	assert.False(t, closed)

	// Every guard lookup goes through the share-locking read, so the answer
	// holds for the rest of the caller's transaction against close/reopen.
	assert.Equal(t, 3, f.repo.shareLocks)
}

func TestRecordOverride_AppendsEvent(t *testing.T) {
	f := newFixture(t, false, nil)
	p := f.createPeriod(t)

	err := f.svc.RecordOverride(context.Background(), p.ID, "ops@example.com", "late invoice")
	require.NoError(t, err)

	events := f.repo.eventsOfType(p.ID, EventOverrideUsed)
	require.Len(t, events, 1)
	assert.Equal(t, "late invoice", events[0].Reason)
}
