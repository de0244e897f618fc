package period

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"brigata/internal/core/apperror"
	"brigata/internal/core/id"
	"brigata/internal/domain/valuation"
	"brigata/pkg/logger"
)

// exportDocument is the close-results payload consumed by downstream GL and
// reporting pipelines.
type exportDocument struct {
	PeriodID    id.ID                       `json:"periodId"`
	BranchID    id.ID                       `json:"branchId"`
	StartsAt    time.Time                   `json:"startsAt"`
	EndsAt      time.Time                   `json:"endsAt"`
	Revision    int                         `json:"revision"`
	GeneratedAt time.Time                   `json:"generatedAt"`
	Snapshots   []valuation.Snapshot        `json:"snapshots"`
	Summaries   []valuation.MovementSummary `json:"summaries"`
}

// Export streams a gzip-compressed JSON document with the period's snapshot
// and summary rows for the given revision (0 selects the latest), and
// appends an EXPORT_GENERATED audit event.
func (s *Service) Export(ctx context.Context, periodID id.ID, revision int, actor string, w io.Writer) error {
	p, err := s.repo.GetByID(ctx, periodID)
	if err != nil {
		return err
	}

	if revision <= 0 {
		revision, err = s.valuations.LatestRevision(ctx, periodID)
		if err != nil {
			return fmt.Errorf("resolve latest revision: %w", err)
		}
	}
	if revision == 0 {
		return apperror.NewConflict("period has no closed revision to export").
			WithDetail("period_id", periodID.String())
	}

	snapshots, err := s.valuations.ListSnapshots(ctx, periodID, revision)
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	summaries, err := s.valuations.ListSummaries(ctx, periodID, revision)
	if err != nil {
		return fmt.Errorf("list summaries: %w", err)
	}

	doc := exportDocument{
		PeriodID:    p.ID,
		BranchID:    p.BranchID,
		StartsAt:    p.StartsAt,
		EndsAt:      p.EndsAt,
		Revision:    revision,
		GeneratedAt: time.Now().UTC(),
		Snapshots:   snapshots,
		Summaries:   summaries,
	}

	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("flush export: %w", err)
	}

	event := NewEvent(periodID, EventExportGenerated, actor, "").
		WithMetadata("revision", revision).
		WithMetadata("snapshot_rows", len(snapshots)).
		WithMetadata("summary_rows", len(summaries))
	if err := s.repo.AppendEvent(ctx, event); err != nil {
		return fmt.Errorf("append export event: %w", err)
	}

	logger.Info(ctx, "period export generated",
		"period_id", periodID,
		"revision", revision,
		"snapshot_rows", len(snapshots),
	)
	return nil
}
