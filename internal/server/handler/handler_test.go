package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubOppStore struct {
	opps       []domain.ArbitrageOpportunity
	lastFilter domain.OpportunityFilter
	err        error
}

func (s *stubOppStore) Insert(ctx context.Context, opp domain.ArbitrageOpportunity) error {
	return nil
}

func (s *stubOppStore) GetByID(ctx context.Context, id string) (domain.ArbitrageOpportunity, error) {
	if s.err != nil {
		return domain.ArbitrageOpportunity{}, s.err
	}
	for _, o := range s.opps {
		if o.ID == id {
			return o, nil
		}
	}
	return domain.ArbitrageOpportunity{}, domain.ErrNotFound
}

func (s *stubOppStore) List(ctx context.Context, filter domain.OpportunityFilter) ([]domain.ArbitrageOpportunity, error) {
	s.lastFilter = filter
	return s.opps, s.err
}

func (s *stubOppStore) ListBefore(ctx context.Context, before time.Time) ([]domain.ArbitrageOpportunity, error) {
	return nil, nil
}

type stubBacktestStore struct {
	summaries []domain.BacktestSummary
	err       error
}

func (s *stubBacktestStore) Insert(ctx context.Context, result domain.BacktestResult) error {
	return nil
}

func (s *stubBacktestStore) GetByID(ctx context.Context, id string) (domain.BacktestSummary, error) {
	if s.err != nil {
		return domain.BacktestSummary{}, s.err
	}
	if len(s.summaries) == 0 {
		return domain.BacktestSummary{}, domain.ErrNotFound
	}
	return s.summaries[0], nil
}

func (s *stubBacktestStore) ListRecent(ctx context.Context, limit int) ([]domain.BacktestSummary, error) {
	return s.summaries, s.err
}

type stubJobCache struct {
	job domain.CollectionJob
	err error
}

func (s *stubJobCache) SetJob(ctx context.Context, job domain.CollectionJob, ttl time.Duration) error {
	return nil
}

func (s *stubJobCache) GetJob(ctx context.Context, id string) (domain.CollectionJob, error) {
	if s.err != nil {
		return domain.CollectionJob{}, s.err
	}
	return s.job, nil
}

func TestOpportunityListParsesFilter(t *testing.T) {
	store := &stubOppStore{opps: []domain.ArbitrageOpportunity{{ID: "opp-1"}}}
	h := NewOpportunityHandler(store, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities?pair_id=pair-1&min_profit_percent=1.5&only_valid=true&limit=10", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pair-1", store.lastFilter.PairID)
	assert.Equal(t, 1.5, store.lastFilter.MinProfitPct)
	assert.True(t, store.lastFilter.OnlyValid)
	assert.Equal(t, 10, store.lastFilter.Limit)

	var resp listOpportunitiesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Opportunities, 1)
	assert.Equal(t, "opp-1", resp.Opportunities[0].ID)
}

func TestOpportunityListEmptyReturnsArray(t *testing.T) {
	h := NewOpportunityHandler(&stubOppStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"opportunities":[]}`, rec.Body.String())
}

func TestOpportunityListStoreError(t *testing.T) {
	h := NewOpportunityHandler(&stubOppStore{err: errors.New("db down")}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestOpportunityGetNotFound(t *testing.T) {
	h := NewOpportunityHandler(&stubOppStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/opportunities/missing", nil)
	req.SetPathValue("id", "missing")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBacktestListRecent(t *testing.T) {
	store := &stubBacktestStore{summaries: []domain.BacktestSummary{{FinalCapital: 11000}}}
	h := NewBacktestHandler(store, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/backtests", nil)
	rec := httptest.NewRecorder()
	h.ListRecent(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "11000")
}

func TestBacktestGetNotFound(t *testing.T) {
	h := NewBacktestHandler(&stubBacktestStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/backtests/run-1", nil)
	req.SetPathValue("id", "run-1")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJobGet(t *testing.T) {
	cache := &stubJobCache{job: domain.CollectionJob{ID: "job-1", Status: domain.JobStatusRunning}}
	h := NewJobHandler(cache, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/job-1", nil)
	req.SetPathValue("id", "job-1")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "job-1")
}

func TestJobGetNotFound(t *testing.T) {
	h := NewJobHandler(&stubJobCache{err: domain.ErrNotFound}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/jobs/x", nil)
	req.SetPathValue("id", "x")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPairList(t *testing.T) {
	pairs := []domain.MarketPair{
		{
			ID:              "pair-1",
			First:           domain.Market{ID: "poly-1", Venue: domain.VenuePolymarket},
			Second:          domain.Market{ID: "KXRAIN", Venue: domain.VenueKalshi},
			ResolutionScore: 0.95,
		},
	}
	h := NewPairHandler(pairs, nil, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/pairs", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "poly-1")
	assert.Contains(t, rec.Body.String(), "KXRAIN")
}

type stubPositionStore struct {
	positions []domain.Position
	err       error
}

func (s *stubPositionStore) Save(ctx context.Context, pos domain.Position) error { return s.err }

func (s *stubPositionStore) GetOpen(ctx context.Context) ([]domain.Position, error) {
	return s.positions, s.err
}

func (s *stubPositionStore) Delete(ctx context.Context, id string) error { return s.err }

func TestPositionList(t *testing.T) {
	store := &stubPositionStore{positions: []domain.Position{
		{ID: "pos-1", PairID: "pair-1", Size: 120, Status: domain.PositionStatusOpen},
	}}
	h := NewPositionHandler(store, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pos-1")
}

func TestPositionListEmptyReturnsArray(t *testing.T) {
	h := NewPositionHandler(&stubPositionStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"positions":[]}`, rec.Body.String())
}

func TestPositionListUnsupported(t *testing.T) {
	h := NewPositionHandler(domain.UnsupportedPositionStore{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestPositionListStoreError(t *testing.T) {
	h := NewPositionHandler(&stubPositionStore{err: errors.New("boom")}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/positions", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestParseListOptsDefaultsAndCaps(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	opts := parseListOpts(req)
	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)

	req = httptest.NewRequest(http.MethodGet, "/x?limit=9999&offset=20", nil)
	opts = parseListOpts(req)
	assert.Equal(t, 500, opts.Limit)
	assert.Equal(t, 20, opts.Offset)
}
