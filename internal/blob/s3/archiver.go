package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// Narrow store interfaces required by the archiver. The archiver only needs
// the query and prune methods it actually calls, not the full domain store
// interfaces. The Postgres stores satisfy these implicitly.

// OpportunityArchiveStore provides read and prune access to opportunities
// for archival purposes.
type OpportunityArchiveStore interface {
	// ListBefore returns opportunities detected strictly before the cutoff,
	// oldest first.
	ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error)
	// DeleteBefore removes opportunities detected strictly before the cutoff
	// and reports how many rows were removed.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// SnapshotArchiveStore provides read access to snapshots for archival
// purposes. Snapshots are never pruned: they are the backtest dataset.
type SnapshotArchiveStore interface {
	ListByPair(ctx context.Context, pairID string, opts domain.ListOpts) ([]domain.HistoricalSnapshot, error)
}

// ArchiveImpl implements domain.Archiver by querying the domain stores for
// aged records, serializing them to JSONL, and uploading the result to S3.
//
// Opportunities are pruned from the primary store only after the archive
// upload has succeeded, so a failed upload never loses data.
type ArchiveImpl struct {
	writer        domain.BlobWriter
	opportunities OpportunityArchiveStore
	snapshots     SnapshotArchiveStore
}

// NewArchiver creates a new ArchiveImpl.
func NewArchiver(writer domain.BlobWriter, opps OpportunityArchiveStore, snaps SnapshotArchiveStore) *ArchiveImpl {
	return &ArchiveImpl{
		writer:        writer,
		opportunities: opps,
		snapshots:     snaps,
	}
}

// ArchiveOpportunities queries all opportunities detected before the cutoff,
// serializes them to JSONL, uploads the file to S3 at
// archive/opportunities/YYYY-MM.jsonl, and then prunes the archived rows from
// the primary store. The count of archived records is returned.
func (a *ArchiveImpl) ArchiveOpportunities(ctx context.Context, before time.Time) (int64, error) {
	opps, err := a.opportunities.ListBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities query: %w", err)
	}
	if len(opps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(opps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities marshal: %w", err)
	}

	path := archivePath("opportunities", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive opportunities upload: %w", err)
	}

	if _, err := a.opportunities.DeleteBefore(ctx, before); err != nil {
		return int64(len(opps)), fmt.Errorf("s3blob: archive opportunities prune: %w", err)
	}

	return int64(len(opps)), nil
}

// ArchiveSnapshots exports the full snapshot history for one market pair to
// S3 at archive/snapshots/{pairID}.jsonl. The primary store keeps its copy;
// the export exists so a backtest dataset can be shared or rebuilt elsewhere.
func (a *ArchiveImpl) ArchiveSnapshots(ctx context.Context, pairID string) (int64, error) {
	snaps, err := a.snapshots.ListByPair(ctx, pairID, domain.ListOpts{})
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots query: %w", err)
	}
	if len(snaps) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(snaps)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := fmt.Sprintf("archive/snapshots/%s.jsonl", pairID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}

	return int64(len(snaps)), nil
}

// ArchiveBacktest uploads the full backtest result, including every simulated
// trade and the capital path, to S3 at archive/backtests/{runID}.json. The
// database keeps only the summary row, so this is the durable copy of the
// complete run.
func (a *ArchiveImpl) ArchiveBacktest(ctx context.Context, result domain.BacktestResult) error {
	buf, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("s3blob: archive backtest marshal: %w", err)
	}

	path := fmt.Sprintf("archive/backtests/%s.json", result.ID)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/json"); err != nil {
		return fmt.Errorf("s3blob: archive backtest upload: %w", err)
	}

	return nil
}

var _ domain.Archiver = (*ArchiveImpl)(nil)

// archivePath builds the S3 key for an archive file, partitioned by the
// year-month of the cutoff time.
//
//	archive/opportunities/2025-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01"))
}

// marshalJSONL serialises a slice of values as newline-delimited JSON.
// Each element is marshalled as a single compact JSON line followed by '\n'.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
