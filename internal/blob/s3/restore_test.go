package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

type stubReader struct {
	objects map[string][]byte
}

func (r *stubReader) Get(_ context.Context, path string) (io.ReadCloser, error) {
	body, ok := r.objects[path]
	if !ok {
		return nil, fmt.Errorf("stub: get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(body)), nil
}

func (r *stubReader) List(_ context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, body := range r.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(body))})
		}
	}
	return infos, nil
}

func (r *stubReader) Exists(_ context.Context, path string) (bool, error) {
	_, ok := r.objects[path]
	return ok, nil
}

func TestRestoreOpportunitiesRoundTrip(t *testing.T) {
	older, err := marshalJSONL([]domain.ArbitrageOpportunity{
		{ID: "opp-jan", DetectedAt: time.Date(2025, 1, 15, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	newer, err := marshalJSONL([]domain.ArbitrageOpportunity{
		{ID: "opp-feb-1", DetectedAt: time.Date(2025, 2, 2, 0, 0, 0, 0, time.UTC)},
		{ID: "opp-feb-2", DetectedAt: time.Date(2025, 2, 9, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	reader := &stubReader{objects: map[string][]byte{
		"archive/opportunities/2025-02.jsonl": newer,
		"archive/opportunities/2025-01.jsonl": older,
		"archive/backtests/run-1.json":        []byte(`{}`),
	}}

	opps, err := NewRestorer(reader).RestoreOpportunities(context.Background())
	require.NoError(t, err)

	// Monthly files come back in key order, oldest first; records outside
	// the opportunity prefix are ignored.
	require.Len(t, opps, 3)
	assert.Equal(t, "opp-jan", opps[0].ID)
	assert.Equal(t, "opp-feb-1", opps[1].ID)
	assert.Equal(t, "opp-feb-2", opps[2].ID)
}

func TestRestoreOpportunitiesEmptyArchive(t *testing.T) {
	reader := &stubReader{objects: map[string][]byte{}}

	opps, err := NewRestorer(reader).RestoreOpportunities(context.Background())
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestRestoreOpportunitiesMalformedLineFails(t *testing.T) {
	reader := &stubReader{objects: map[string][]byte{
		"archive/opportunities/2025-03.jsonl": []byte("{\"ID\":\"ok\"}\nnot json\n"),
	}}

	_, err := NewRestorer(reader).RestoreOpportunities(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2025-03.jsonl")
}

func TestRestoreOpportunitiesSkipsBlankLines(t *testing.T) {
	reader := &stubReader{objects: map[string][]byte{
		"archive/opportunities/2025-04.jsonl": []byte("\n{\"ID\":\"opp-apr\"}\n\n"),
	}}

	opps, err := NewRestorer(reader).RestoreOpportunities(context.Background())
	require.NoError(t, err)
	require.Len(t, opps, 1)
	assert.Equal(t, "opp-apr", opps[0].ID)
}
