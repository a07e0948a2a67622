package backtest

import (
	"sort"
	"time"

	"github.com/alanyoungcy/arbscan/internal/domain"
)

// intervalReports buckets the trade ledger into calendar periods and
// aggregates per-period figures. Periods with no trades are omitted.
func intervalReports(trades []domain.SimulatedTrade, path []domain.CapitalPoint, interval domain.ReportInterval) []domain.IntervalReport {
	if len(trades) == 0 {
		return nil
	}

	buckets := make(map[time.Time]*domain.IntervalReport)
	for _, t := range trades {
		start := periodStart(t.EntryAt, interval)
		r, ok := buckets[start]
		if !ok {
			r = &domain.IntervalReport{
				PeriodStart: start,
				PeriodEnd:   periodEnd(start, interval),
			}
			buckets[start] = r
		}
		r.Trades++
		switch t.Outcome {
		case domain.OutcomeWin:
			r.Wins++
		case domain.OutcomeLoss:
			r.Losses++
		}
		r.NetProfit += t.RealizedProfit
		r.Fees += t.Fees
		r.Slippage += t.SlippageCost
	}

	reports := make([]domain.IntervalReport, 0, len(buckets))
	for _, r := range buckets {
		r.EndCapital = capitalAt(path, r.PeriodEnd)
		reports = append(reports, *r)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].PeriodStart.Before(reports[j].PeriodStart)
	})
	return reports
}

// periodStart truncates a timestamp to its containing day, or to the
// Monday of its containing ISO week.
func periodStart(ts time.Time, interval domain.ReportInterval) time.Time {
	ts = ts.UTC()
	day := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	if interval == domain.ReportWeekly {
		offset := (int(day.Weekday()) + 6) % 7
		return day.AddDate(0, 0, -offset)
	}
	return day
}

func periodEnd(start time.Time, interval domain.ReportInterval) time.Time {
	if interval == domain.ReportWeekly {
		return start.AddDate(0, 0, 7)
	}
	return start.AddDate(0, 0, 1)
}

// capitalAt reads the capital path at the last point not after ts. The path
// is appended in settlement order, which is not strictly sorted when holding
// periods overlap, so scan the whole slice.
func capitalAt(path []domain.CapitalPoint, ts time.Time) float64 {
	var best time.Time
	var capital float64
	for _, p := range path {
		if p.Timestamp.After(ts) {
			continue
		}
		if best.IsZero() || !p.Timestamp.Before(best) {
			best = p.Timestamp
			capital = p.Capital
		}
	}
	return capital
}
