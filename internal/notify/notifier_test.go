package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

type stubSender struct {
	name  string
	err   error
	sent  []string
	calls int
}

func (s *stubSender) Send(ctx context.Context, title, message string) error {
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, title)
	return nil
}

func (s *stubSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyDeliversToAllSenders(t *testing.T) {
	a := &stubSender{name: "a"}
	b := &stubSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discardLogger())

	err := n.Notify(context.Background(), EventOpportunity, "title", "body")
	require.NoError(t, err)
	assert.Equal(t, []string{"title"}, a.sent)
	assert.Equal(t, []string{"title"}, b.sent)
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &stubSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventBacktest}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), EventOpportunity, "skip", "x"))
	assert.Zero(t, s.calls)

	require.NoError(t, n.Notify(context.Background(), EventBacktest, "keep", "x"))
	assert.Equal(t, 1, s.calls)
}

func TestNotifyOneSenderFailingDoesNotBlockOthers(t *testing.T) {
	bad := &stubSender{name: "bad", err: errors.New("boom")}
	good := &stubSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, discardLogger())

	err := n.Notify(context.Background(), EventOpportunity, "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []string{"t"}, good.sent)
}

func TestNotifyNoSendersIsNoop(t *testing.T) {
	n := NewNotifier(nil, nil, discardLogger())
	assert.NoError(t, n.Notify(context.Background(), EventOpportunity, "t", "m"))
}

func TestOpportunityAlertFormat(t *testing.T) {
	opp := domain.ArbitrageOpportunity{
		ID:     "opp-1",
		PairID: "pair-1",
		Result: domain.ArbitrageResult{
			Direction:     domain.DirectionYesFirst,
			FirstLeg:      domain.Leg{Venue: domain.VenuePolymarket, Side: domain.SideYes, Price: 0.48},
			SecondLeg:     domain.Leg{Venue: domain.VenueKalshi, Side: domain.SideNo, Price: 0.49},
			TotalCost:     0.97,
			NetProfit:     0.03,
			ProfitPercent: 3.09,
		},
		MaxSize:    100,
		Confidence: 100,
		TTLSeconds: 120,
		DetectedAt: time.Now(),
	}

	title, msg := OpportunityAlert(opp)
	assert.Contains(t, title, "pair-1")
	assert.Contains(t, title, "3.09")
	assert.Contains(t, msg, "0.4800")
	assert.Contains(t, msg, "polymarket")
	assert.Contains(t, msg, "TTL: 120s")
}

func TestCollectionAlertFormat(t *testing.T) {
	job := domain.CollectionJob{
		ID:     "job-1",
		Status: domain.JobStatusCompleted,
		Progress: domain.JobProgress{
			PairsCompleted: 3,
			PairsFailed:    1,
		},
	}

	title, msg := CollectionAlert(job, 42)
	assert.Contains(t, title, "job-1")
	assert.Contains(t, msg, "3 completed")
	assert.Contains(t, msg, "1 failed")
	assert.Contains(t, msg, "42")
}
