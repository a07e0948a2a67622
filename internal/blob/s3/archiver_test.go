package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

type capturedPut struct {
	path        string
	contentType string
	body        []byte
}

type stubWriter struct {
	puts []capturedPut
	err  error
}

func (w *stubWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	w.puts = append(w.puts, capturedPut{path: path, contentType: contentType, body: body})
	return nil
}

func (w *stubWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(context.Background(), path, data, "")
}

type stubOppStore struct {
	opps    []domain.ArbitrageOpportunity
	deleted *time.Time
}

func (s *stubOppStore) ListBefore(_ context.Context, _ time.Time) ([]domain.ArbitrageOpportunity, error) {
	return s.opps, nil
}

func (s *stubOppStore) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deleted = &before
	return int64(len(s.opps)), nil
}

type stubSnapStore struct {
	snaps []domain.HistoricalSnapshot
}

func (s *stubSnapStore) ListByPair(_ context.Context, _ string, _ domain.ListOpts) ([]domain.HistoricalSnapshot, error) {
	return s.snaps, nil
}

func TestArchiveOpportunitiesUploadsThenPrunes(t *testing.T) {
	cutoff := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	opps := &stubOppStore{opps: []domain.ArbitrageOpportunity{
		{ID: "opp-1", Result: domain.ArbitrageResult{ProfitPercent: 2.5}},
		{ID: "opp-2", Result: domain.ArbitrageResult{ProfitPercent: 1.1}},
	}}
	writer := &stubWriter{}
	arch := NewArchiver(writer, opps, &stubSnapStore{})

	count, err := arch.ArchiveOpportunities(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.Len(t, writer.puts, 1)
	put := writer.puts[0]
	assert.Equal(t, "archive/opportunities/2025-04.jsonl", put.path)
	assert.Equal(t, "application/x-ndjson", put.contentType)

	lines := strings.Split(strings.TrimRight(string(put.body), "\n"), "\n")
	require.Len(t, lines, 2)
	var first domain.ArbitrageOpportunity
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "opp-1", first.ID)

	require.NotNil(t, opps.deleted)
	assert.Equal(t, cutoff, *opps.deleted)
}

func TestArchiveOpportunitiesEmptySkipsUpload(t *testing.T) {
	writer := &stubWriter{}
	opps := &stubOppStore{}
	arch := NewArchiver(writer, opps, &stubSnapStore{})

	count, err := arch.ArchiveOpportunities(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts)
	assert.Nil(t, opps.deleted)
}

func TestArchiveOpportunitiesUploadFailureSkipsPrune(t *testing.T) {
	opps := &stubOppStore{opps: []domain.ArbitrageOpportunity{{ID: "opp-1"}}}
	writer := &stubWriter{err: errors.New("bucket unreachable")}
	arch := NewArchiver(writer, opps, &stubSnapStore{})

	_, err := arch.ArchiveOpportunities(context.Background(), time.Now())
	require.Error(t, err)
	assert.Nil(t, opps.deleted, "rows must not be pruned when the upload fails")
}

func TestArchiveSnapshotsKeepsPrimaryCopy(t *testing.T) {
	snaps := &stubSnapStore{snaps: []domain.HistoricalSnapshot{
		{PairID: "pair-a", Timestamp: time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)},
		{PairID: "pair-a", Timestamp: time.Date(2025, 4, 1, 13, 0, 0, 0, time.UTC)},
		{PairID: "pair-a", Timestamp: time.Date(2025, 4, 1, 14, 0, 0, 0, time.UTC)},
	}}
	writer := &stubWriter{}
	arch := NewArchiver(writer, &stubOppStore{}, snaps)

	count, err := arch.ArchiveSnapshots(context.Background(), "pair-a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), count)

	require.Len(t, writer.puts, 1)
	assert.Equal(t, "archive/snapshots/pair-a.jsonl", writer.puts[0].path)
}

func TestArchiveBacktestUploadsFullResult(t *testing.T) {
	writer := &stubWriter{}
	arch := NewArchiver(writer, &stubOppStore{}, &stubSnapStore{})

	result := domain.BacktestResult{
		ID:    "run-42",
		RanAt: time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC),
	}
	require.NoError(t, arch.ArchiveBacktest(context.Background(), result))

	require.Len(t, writer.puts, 1)
	put := writer.puts[0]
	assert.Equal(t, "archive/backtests/run-42.json", put.path)
	assert.Equal(t, "application/json", put.contentType)

	var got domain.BacktestResult
	require.NoError(t, json.Unmarshal(put.body, &got))
	assert.Equal(t, "run-42", got.ID)
}

func TestMarshalJSONL(t *testing.T) {
	type rec struct {
		Name string `json:"name"`
	}
	buf, err := marshalJSONL([]rec{{Name: "a"}, {Name: "b"}})
	require.NoError(t, err)
	assert.Equal(t, "{\"name\":\"a\"}\n{\"name\":\"b\"}\n", string(buf))
	assert.True(t, bytes.HasSuffix(buf, []byte("\n")))
}
