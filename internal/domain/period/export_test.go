package period

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/core/types"
	"brigata/internal/domain/orgpolicy"
	"brigata/internal/domain/valuation"
)

// exportValuations serves stored snapshot rows for export tests.
type exportValuations struct {
	stubValuations
	latest    int
	snapshots []valuation.Snapshot
	summaries []valuation.MovementSummary
}

func (e *exportValuations) LatestRevision(context.Context, id.ID) (int, error) {
	return e.latest, nil
}

func (e *exportValuations) ListSnapshots(context.Context, id.ID, int) ([]valuation.Snapshot, error) {
	return e.snapshots, nil
}

func (e *exportValuations) ListSummaries(context.Context, id.ID, int) ([]valuation.MovementSummary, error) {
	return e.summaries, nil
}

func newExportFixture(t *testing.T, valuations valuation.Repository) (*Service, *mockPeriodRepo) {
	t.Helper()
	repo := newMockPeriodRepo()
	policies := orgpolicy.NewService(&mockPolicyRepo{})
	builder := valuation.NewBuilder(&stubMovements{}, valuations)
	svc := NewService(repo, &mockTxManager{}, builder, valuations, policies, nil)
	return svc, repo
}

func TestExport_StreamsGzipDocument(t *testing.T) {
	periodID := id.New()
	valuations := &exportValuations{
		latest: 2,
		snapshots: []valuation.Snapshot{
			{PeriodID: periodID, ItemID: id.New(), LocationID: id.New(), Revision: 2,
				Quantity: types.NewQuantityFromFloat64(30), Value: types.MustMoney("6600")},
		},
		summaries: []valuation.MovementSummary{
			{PeriodID: periodID, ItemID: id.New(), Revision: 2},
		},
	}
	svc, repo := newExportFixture(t, valuations)

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p, _, err := svc.Create(context.Background(), id.New(), id.New(), start, start.AddDate(0, 1, 0), "tester")
	require.NoError(t, err)

	var buf bytes.Buffer
	err = svc.Export(context.Background(), p.ID, 0, "tester", &buf)
	require.NoError(t, err)

	gz, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	defer gz.Close()

	var doc struct {
		PeriodID  id.ID                       `json:"periodId"`
		Revision  int                         `json:"revision"`
		Snapshots []valuation.Snapshot        `json:"snapshots"`
		Summaries []valuation.MovementSummary `json:"summaries"`
	}
	require.NoError(t, json.NewDecoder(gz).Decode(&doc))

	assert.Equal(t, p.ID, doc.PeriodID)
	assert.Equal(t, 2, doc.Revision)
	require.Len(t, doc.Snapshots, 1)
	require.Len(t, doc.Summaries, 1)

	events := repo.eventsOfType(p.ID, EventExportGenerated)
	require.Len(t, events, 1)
	assert.Equal(t, 2, events[0].Metadata["revision"])
	assert.Equal(t, 1, events[0].Metadata["snapshot_rows"])
}

func TestExport_NoRevisionToExport(t *testing.T) {
	svc, _ := newExportFixture(t, &exportValuations{latest: 0})

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	p, _, err := svc.Create(context.Background(), id.New(), id.New(), start, start.AddDate(0, 1, 0), "tester")
	require.NoError(t, err)

	var buf bytes.Buffer
	err = svc.Export(context.Background(), p.ID, 0, "tester", &buf)
	assert.True(t, apperror.IsCode(err, apperror.CodeConflict))
}
